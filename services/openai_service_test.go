package services_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"aiclone/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model    string              `json:"model"`
	Messages []completionMessage `json:"messages"`
	User     string              `json:"user"`
}

// completionServer is a fake OpenAI-compatible /chat/completions endpoint.
type completionServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []completionRequest
	auth     []string
	handle   func(w http.ResponseWriter, req completionRequest)
}

func newCompletionServer(t *testing.T) *completionServer {
	s := &completionServer{}
	s.handle = func(w http.ResponseWriter, req completionRequest) {
		writeCompletion(w, "reply to: "+req.Messages[len(req.Messages)-1].Content)
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req completionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.requests = append(s.requests, req)
		s.auth = append(s.auth, r.Header.Get("Authorization"))
		handle := s.handle
		s.mu.Unlock()
		handle(w, req)
	}))
	t.Cleanup(s.Close)
	return s
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   services.DefaultModel,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]string{"role": "assistant", "content": content},
		}},
	})
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": message, "type": "test_error"},
	})
}

func newOpenAISession(t *testing.T, srv *completionServer) services.ChatSession {
	t.Helper()
	provider, err := services.NewOpenAIProvider(services.OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
	}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, services.DefaultModel, provider.Model())

	session, err := provider.NewChatSession(context.Background(), "You are Alice", "clone_u1_run")
	require.NoError(t, err)
	return session
}

func TestOpenAISessionKeepsHistory(t *testing.T) {
	srv := newCompletionServer(t)
	session := newOpenAISession(t, srv)
	ctx := context.Background()

	reply, err := session.SendMessage(ctx, "first")
	require.NoError(t, err)
	assert.Equal(t, "reply to: first", reply)

	_, err = session.SendMessage(ctx, "second")
	require.NoError(t, err)

	require.Len(t, srv.requests, 2)
	req := srv.requests[1]
	assert.Equal(t, services.DefaultModel, req.Model)
	assert.Equal(t, "clone_u1_run", req.User)
	assert.Equal(t, []completionMessage{
		{Role: "system", Content: "You are Alice"},
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "reply to: first"},
		{Role: "user", Content: "second"},
	}, req.Messages)
	assert.Equal(t, "Bearer test-key", srv.auth[0])
}

func TestOpenAISessionUpstreamError(t *testing.T) {
	srv := newCompletionServer(t)
	srv.handle = func(w http.ResponseWriter, _ completionRequest) {
		writeAPIError(w, http.StatusTooManyRequests, "slow down")
	}
	session := newOpenAISession(t, srv)

	_, err := session.SendMessage(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrUpstream)

	var upstream *services.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "openai", upstream.Provider)
	assert.Equal(t, http.StatusTooManyRequests, upstream.StatusCode)
	assert.True(t, upstream.Transient())
}

func TestOpenAISessionFailedTurnIsNotRecorded(t *testing.T) {
	srv := newCompletionServer(t)
	fail := true
	srv.handle = func(w http.ResponseWriter, req completionRequest) {
		if fail {
			fail = false
			writeAPIError(w, http.StatusInternalServerError, "boom")
			return
		}
		writeCompletion(w, "ok")
	}
	session := newOpenAISession(t, srv)

	_, err := session.SendMessage(context.Background(), "hello")
	require.Error(t, err)
	_, err = session.SendMessage(context.Background(), "hello again")
	require.NoError(t, err)

	require.Len(t, srv.requests, 2)
	assert.Len(t, srv.requests[1].Messages, 2, "system instruction plus the new prompt")
}

func TestOpenAISessionEmptyChoices(t *testing.T) {
	srv := newCompletionServer(t)
	srv.handle = func(w http.ResponseWriter, _ completionRequest) {
		writeCompletion(w, "")
	}
	session := newOpenAISession(t, srv)

	_, err := session.SendMessage(context.Background(), "hello")
	assert.ErrorIs(t, err, services.ErrUpstream)

	var upstream *services.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.False(t, upstream.Transient())
}

func TestNewOpenAIProviderRequiresKey(t *testing.T) {
	_, err := services.NewOpenAIProvider(services.OpenAIConfig{}, testLogger())
	assert.Error(t, err)
}

func TestNewChatSessionValidation(t *testing.T) {
	provider, err := services.NewOpenAIProvider(services.OpenAIConfig{APIKey: "k"}, testLogger())
	require.NoError(t, err)

	_, err = provider.NewChatSession(context.Background(), "", "clone_u1")
	assert.ErrorIs(t, err, services.ErrValidation)

	_, err = provider.NewChatSession(context.Background(), "You are Alice", "")
	assert.ErrorIs(t, err, services.ErrValidation)
}
