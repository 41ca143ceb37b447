package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

type GatewayConfig struct {
	BaseURL string // 例: https://gateway.example.com/v1
	APIKey  string
	Timeout time.Duration
}

// GatewayProvider は OpenAI 互換の chat completions エンドポイントを HTTP で直接呼ぶ
type GatewayProvider struct {
	client *resty.Client
	model  string
	logger *slog.Logger
}

type gatewayMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type gatewayRequest struct {
	Model    string           `json:"model"`
	Messages []gatewayMessage `json:"messages"`
	User     string           `json:"user,omitempty"`
}

type gatewayResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type gatewayErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func NewGatewayProvider(cfg GatewayConfig, logger *slog.Logger) (*GatewayProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("gateway base URL is not set")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gateway API key is not set")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	return &GatewayProvider{
		client: client,
		model:  DefaultModel,
		logger: logger,
	}, nil
}

func (p *GatewayProvider) Model() string {
	return p.model
}

// 最初のメッセージまでは何も送信しない
func (p *GatewayProvider) NewChatSession(_ context.Context, systemInstruction, sessionID string) (ChatSession, error) {
	if err := validateSessionArgs(systemInstruction, sessionID); err != nil {
		return nil, err
	}
	return &gatewaySession{
		provider:  p,
		sessionID: sessionID,
		history:   newChatHistory(systemInstruction),
	}, nil
}

type gatewaySession struct {
	provider  *GatewayProvider
	sessionID string
	history   *chatHistory
}

func (s *gatewaySession) SendMessage(ctx context.Context, prompt string) (string, error) {
	p := s.provider

	turns := s.history.withPrompt(prompt)
	body := gatewayRequest{
		Model:    p.model,
		Messages: make([]gatewayMessage, 0, len(turns)),
		User:     s.sessionID,
	}
	for _, t := range turns {
		body.Messages = append(body.Messages, gatewayMessage{Role: t.role, Content: t.content})
	}

	var result gatewayResponse
	var apiErr gatewayErrorResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&apiErr).
		Post("/chat/completions")
	if err != nil {
		return "", upstreamError("gateway", 0, err)
	}

	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = resp.Status()
		}
		return "", upstreamError("gateway", resp.StatusCode(), fmt.Errorf("%s", msg))
	}

	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return "", upstreamError("gateway", 0, errEmptyReply)
	}

	reply := result.Choices[0].Message.Content
	s.history.record(prompt, reply)

	p.logger.Debug("gateway reply", "session", s.sessionID, "history_len", s.history.len(), "reply_len", len(reply))
	return reply, nil
}
