package client

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"aiclone/models"

	"github.com/go-resty/resty/v2"
)

const DefaultServerURL = "http://localhost:8001"

type Client struct {
	http *resty.Client
}

// APIError は2xx以外のレスポンス
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

type Health struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type CreateUserResponse struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

type errorBody struct {
	Error string `json:"error"`
}

// New は serverURL が空なら CLONE_SERVER_URL、次に DefaultServerURL を使う。
// timeout は会話生成1回分をまかなえる長さにする
func New(serverURL string, timeout time.Duration) *Client {
	if serverURL == "" {
		serverURL = os.Getenv("CLONE_SERVER_URL")
	}
	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &Client{
		http: resty.New().
			SetBaseURL(serverURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.do(ctx, http.MethodGet, "/api/health", nil, nil, &out)
	return out, err
}

func (c *Client) CreateUser(ctx context.Context, user models.User) (CreateUserResponse, error) {
	var out CreateUserResponse
	err := c.do(ctx, http.MethodPost, "/api/users", nil, user, &out)
	return out, err
}

func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	var out struct {
		Users []models.User `json:"users"`
	}
	err := c.do(ctx, http.MethodGet, "/api/users", nil, nil, &out)
	return out.Users, err
}

func (c *Client) GetUser(ctx context.Context, userID string) (models.User, error) {
	var out models.User
	err := c.do(ctx, http.MethodGet, "/api/users/{user_id}", userParam(userID), nil, &out)
	return out, err
}

// CreateConversation のレスポンスには user_id、topic、created_at が含まれない
func (c *Client) CreateConversation(ctx context.Context, user1ID, user2ID, topic string) (models.ConversationView, error) {
	body := map[string]string{"user1_id": user1ID, "user2_id": user2ID}
	if topic != "" {
		body["topic"] = topic
	}
	var out models.ConversationView
	err := c.do(ctx, http.MethodPost, "/api/conversations", nil, body, &out)
	return out, err
}

// ListConversations は userID が空なら全件を返す
func (c *Client) ListConversations(ctx context.Context, userID string) ([]models.ConversationView, error) {
	path, params := "/api/conversations", map[string]string(nil)
	if userID != "" {
		path, params = "/api/conversations/{user_id}", userParam(userID)
	}
	var out struct {
		Conversations []models.ConversationView `json:"conversations"`
	}
	err := c.do(ctx, http.MethodGet, path, params, nil, &out)
	return out.Conversations, err
}

// user_id は任意の文字列なので、パスに埋め込む前にエスケープする
func userParam(userID string) map[string]string {
	return map[string]string{"user_id": userID}
}

func (c *Client) do(ctx context.Context, method, path string, params map[string]string, body, result any) error {
	var apiErr errorBody
	req := c.http.R().
		SetContext(ctx).
		SetPathParams(params).
		SetResult(result).
		SetError(&apiErr)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		msg := apiErr.Error
		if msg == "" {
			msg = resp.Status()
		}
		return &APIError{StatusCode: resp.StatusCode(), Message: msg}
	}
	return nil
}
