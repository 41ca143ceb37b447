package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"aiclone/models"

	"github.com/cenkalti/backoff/v4"
)

// 最初の発言の後に続く返答の数
const ReplyTurns = 7

type Participant struct {
	UserID      string
	Personality models.Personality
}

// Orchestrator は2人のクローンに交互に発言させる
type Orchestrator struct {
	provider   ChatProvider
	logger     *slog.Logger
	maxRetries int
	newBackOff func() backoff.BackOff
	now        func() time.Time
}

type OrchestratorOption func(*Orchestrator)

// WithMaxRetries は一時的な失敗のとき各ターンを最大n回やり直す。0ならリトライしない
func WithMaxRetries(n int) OrchestratorOption {
	return func(o *Orchestrator) { o.maxRetries = n }
}

func WithBackOff(newBackOff func() backoff.BackOff) OrchestratorOption {
	return func(o *Orchestrator) { o.newBackOff = newBackOff }
}

func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

func NewOrchestrator(provider ChatProvider, logger *slog.Logger, opts ...OrchestratorOption) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		provider: provider,
		logger:   logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 10 * time.Second
			return b
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// セッションは会話1回ごとに分ける
func SessionID(userID, runID string) string {
	return fmt.Sprintf("clone_%s_%s", userID, runID)
}

type speaker struct {
	name    string
	session ChatSession
}

// Run は p1 から始めて交互に発言させる。途中で失敗したらメッセージは返さない
func (o *Orchestrator) Run(ctx context.Context, p1, p2 Participant, topic, runID string) ([]models.Message, error) {
	var speakers [2]speaker
	for i, p := range [2]Participant{p1, p2} {
		session, err := o.provider.NewChatSession(ctx, BuildPersonalityPrompt(p.Personality), SessionID(p.UserID, runID))
		if err != nil {
			return nil, fmt.Errorf("%w: open session for %s: %w", ErrUpstream, p.UserID, err)
		}
		speakers[i] = speaker{name: p.Personality.Name, session: session}
	}

	start := time.Now()
	messages := make([]models.Message, 0, ReplyTurns+1)

	reply, err := o.turn(ctx, runID, 0, speakers[0], OpenerPrompt(topic))
	if err != nil {
		return nil, err
	}
	messages = append(messages, o.message(speakers[0].name, reply))

	last := reply
	current := 1
	for i := 1; i <= ReplyTurns; i++ {
		s := speakers[current]
		reply, err := o.turn(ctx, runID, i, s, ReplyPrompt(last))
		if err != nil {
			return nil, err
		}
		messages = append(messages, o.message(s.name, reply))
		last = reply
		current = (current + 1) % len(speakers)
	}

	o.logger.Info("conversation generated",
		"run", runID,
		"model", o.provider.Model(),
		"messages", len(messages),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return messages, nil
}

func (o *Orchestrator) message(name, text string) models.Message {
	return models.Message{
		Speaker:   name,
		Message:   text,
		Timestamp: FormatTimestamp(o.now()),
	}
}

func (o *Orchestrator) turn(ctx context.Context, runID string, index int, s speaker, prompt string) (string, error) {
	start := time.Now()
	reply, err := o.send(ctx, s, prompt)
	if err != nil {
		o.logger.Warn("conversation turn failed", "run", runID, "turn", index, "speaker", s.name, "error", err)
		if !errors.Is(err, ErrUpstream) {
			err = fmt.Errorf("%w: %w", ErrUpstream, err)
		}
		return "", fmt.Errorf("turn %d (%s): %w", index, s.name, err)
	}

	o.logger.Debug("conversation turn",
		"run", runID,
		"turn", index,
		"speaker", s.name,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return reply, nil
}

func (o *Orchestrator) send(ctx context.Context, s speaker, prompt string) (string, error) {
	if o.maxRetries <= 0 {
		return s.session.SendMessage(ctx, prompt)
	}

	var reply string
	attempt := 0
	op := func() error {
		attempt++
		r, err := s.session.SendMessage(ctx, prompt)
		if err == nil {
			reply = r
			return nil
		}
		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		o.logger.Warn("transient upstream failure", "speaker", s.name, "attempt", attempt, "error", err)
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(o.newBackOff(), uint64(o.maxRetries)), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return "", err
	}
	return reply, nil
}
