package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"
)

type OpenAIConfig struct {
	APIKey  string
	BaseURL string // 空なら OpenAI 本体
	Timeout time.Duration
}

type OpenAIProvider struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

func NewOpenAIProvider(cfg OpenAIConfig, logger *slog.Logger) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is not set")
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   DefaultModel,
		timeout: cfg.Timeout,
		logger:  logger,
	}, nil
}

func (p *OpenAIProvider) Model() string {
	return p.model
}

func (p *OpenAIProvider) NewChatSession(_ context.Context, systemInstruction, sessionID string) (ChatSession, error) {
	if err := validateSessionArgs(systemInstruction, sessionID); err != nil {
		return nil, err
	}
	return &openAISession{
		provider:  p,
		sessionID: sessionID,
		history:   newChatHistory(systemInstruction),
	}, nil
}

type openAISession struct {
	provider  *OpenAIProvider
	sessionID string
	history   *chatHistory
}

func (s *openAISession) SendMessage(ctx context.Context, prompt string) (string, error) {
	p := s.provider
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	turns := s.history.withPrompt(prompt)
	messages := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    t.role,
			Content: t.content,
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: messages,
		User:     s.sessionID,
	})
	if err != nil {
		return "", upstreamError("openai", openAIStatus(err), err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", upstreamError("openai", 0, errEmptyReply)
	}

	reply := resp.Choices[0].Message.Content
	s.history.record(prompt, reply)

	p.logger.Debug("openai reply", "session", s.sessionID, "history_len", s.history.len(), "reply_len", len(reply))
	return reply, nil
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
