package client_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aiclone/client"
	"aiclone/models"
	"aiclone/routes"
	"aiclone/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoProvider struct{}

func (echoProvider) Model() string { return "echo" }

func (echoProvider) NewChatSession(context.Context, string, string) (services.ChatSession, error) {
	return echoSession{}, nil
}

type echoSession struct{}

func (echoSession) SendMessage(_ context.Context, prompt string) (string, error) {
	return "you said: " + prompt, nil
}

func newAPI(t *testing.T) *client.Client {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := services.NewMemoryStore()

	srv := httptest.NewServer(routes.SetupRouter(routes.Dependencies{
		Users:         services.NewUserService(store, logger),
		Conversations: services.NewConversationService(store, services.NewOrchestrator(echoProvider{}, logger), logger),
		Logger:        logger,
	}))
	t.Cleanup(srv.Close)
	return client.New(srv.URL, 10*time.Second)
}

func user(id, username string) models.User {
	return models.User{
		UserID:   id,
		Username: username,
		Personality: models.Personality{
			Name:               username,
			CommunicationStyle: "terse",
			Interests:          []string{"chess"},
			PersonalityTraits:  []string{"patient"},
			FavoriteTopics:     []string{"endgames"},
			SpeakingQuirks:     "counts moves aloud",
			Background:         "club player",
		},
		CreatedAt: "2025-01-01T00:00:00Z",
	}
}

func TestClientRoundTrip(t *testing.T) {
	api := newAPI(t)
	ctx := context.Background()

	health, err := api.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)

	created, err := api.CreateUser(ctx, user("u1", "alice"))
	require.NoError(t, err)
	assert.Equal(t, "u1", created.UserID)
	_, err = api.CreateUser(ctx, user("u2", "bob"))
	require.NoError(t, err)

	users, err := api.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	got, err := api.GetUser(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, []string{"chess"}, got.Personality.Interests)

	view, err := api.CreateConversation(ctx, "u1", "u2", "openings")
	require.NoError(t, err)
	assert.NotEmpty(t, view.ConversationID)
	assert.Len(t, view.Messages, services.ReplyTurns+1)
	assert.Equal(t, "alice", view.Participants.User1)

	all, err := api.ListConversations(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "openings", all[0].Topic)

	mine, err := api.ListConversations(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestClientAPIError(t *testing.T) {
	api := newAPI(t)

	_, err := api.GetUser(context.Background(), "missing")
	require.Error(t, err)

	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "User not found", apiErr.Message)
}

func TestClientEscapesUserID(t *testing.T) {
	api := newAPI(t)
	ctx := context.Background()

	_, err := api.CreateUser(ctx, user("team", "plain"))
	require.NoError(t, err)
	_, err = api.CreateUser(ctx, user("team?a#1", "reserved"))
	require.NoError(t, err)
	_, err = api.CreateUser(ctx, user("other", "other"))
	require.NoError(t, err)

	got, err := api.GetUser(ctx, "team?a#1")
	require.NoError(t, err)
	assert.Equal(t, "team?a#1", got.UserID)
	assert.Equal(t, "reserved", got.Username)

	_, err = api.CreateConversation(ctx, "team", "other", "")
	require.NoError(t, err)

	views, err := api.ListConversations(ctx, "team?a#1")
	require.NoError(t, err)
	assert.Empty(t, views, "must not fall back to the conversations of user team")

	views, err = api.ListConversations(ctx, "team")
	require.NoError(t, err)
	assert.Len(t, views, 1)
}

func TestClientDefaultsServerURL(t *testing.T) {
	t.Setenv("CLONE_SERVER_URL", "")
	api := client.New("", 0)
	require.NotNil(t, api)
}
