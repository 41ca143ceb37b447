package services_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"aiclone/services"
)

type sentPrompt struct {
	sessionID string
	prompt    string
}

// fakeProvider answers every prompt through reply. It records session
// openings and prompts in call order.
type fakeProvider struct {
	mu       sync.Mutex
	sessions map[string]string // session id -> system instruction
	sent     []sentPrompt
	openErr  error
	reply    func(call int, sessionID, prompt string) (string, error)
}

func newFakeProvider() *fakeProvider {
	p := &fakeProvider{sessions: make(map[string]string)}
	p.reply = func(call int, sessionID, _ string) (string, error) {
		return fmt.Sprintf("reply %d from %s", call, sessionID), nil
	}
	return p
}

func (p *fakeProvider) Model() string { return "fake-model" }

func (p *fakeProvider) NewChatSession(_ context.Context, systemInstruction, sessionID string) (services.ChatSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.openErr != nil {
		return nil, p.openErr
	}
	p.sessions[sessionID] = systemInstruction
	return &fakeSession{provider: p, id: sessionID}, nil
}

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

type fakeSession struct {
	provider *fakeProvider
	id       string
}

func (s *fakeSession) SendMessage(_ context.Context, prompt string) (string, error) {
	p := s.provider
	p.mu.Lock()
	call := len(p.sent)
	p.sent = append(p.sent, sentPrompt{sessionID: s.id, prompt: prompt})
	reply := p.reply
	p.mu.Unlock()
	return reply(call, s.id, prompt)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
