package services

import (
	"context"
	"fmt"
	"sync"
)

const DefaultModel = "gpt-4o-mini"

// ChatSession はシステム指示を固定した1つの会話文脈。自分に送られたプロンプトしか見えない
type ChatSession interface {
	SendMessage(ctx context.Context, prompt string) (string, error)
}

type ChatProvider interface {
	NewChatSession(ctx context.Context, systemInstruction, sessionID string) (ChatSession, error)
	Model() string
}

type chatTurn struct {
	role    string
	content string
}

const (
	roleSystem    = "system"
	roleUser      = "user"
	roleAssistant = "assistant"
)

// chat completions はステートレスなので履歴を毎回送る
type chatHistory struct {
	mu    sync.Mutex
	turns []chatTurn
}

func newChatHistory(systemInstruction string) *chatHistory {
	return &chatHistory{turns: []chatTurn{{role: roleSystem, content: systemInstruction}}}
}

func (h *chatHistory) withPrompt(prompt string) []chatTurn {
	h.mu.Lock()
	defer h.mu.Unlock()

	turns := make([]chatTurn, len(h.turns), len(h.turns)+1)
	copy(turns, h.turns)
	return append(turns, chatTurn{role: roleUser, content: prompt})
}

func (h *chatHistory) record(prompt, reply string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.turns = append(h.turns,
		chatTurn{role: roleUser, content: prompt},
		chatTurn{role: roleAssistant, content: reply},
	)
}

func (h *chatHistory) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

func validateSessionArgs(systemInstruction, sessionID string) error {
	if systemInstruction == "" {
		return fmt.Errorf("%w: system instruction is required", ErrValidation)
	}
	if sessionID == "" {
		return fmt.Errorf("%w: session id is required", ErrValidation)
	}
	return nil
}
