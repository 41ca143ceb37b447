package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"aiclone/models"

	"github.com/lib/pq"
)

type PostgresStore struct {
	db                 *sql.DB
	usersTable         string
	conversationsTable string
	logger             *slog.Logger
}

// sslmode の指定がなければ disable にする
func NewPostgresStore(ctx context.Context, uri, tablePrefix string, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("postgres", withSSLMode(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &PostgresStore{
		db:                 db,
		usersTable:         pq.QuoteIdentifier(tablePrefix + "_users"),
		conversationsTable: pq.QuoteIdentifier(tablePrefix + "_conversations"),
		logger:             logger,
	}, nil
}

func withSSLMode(uri string) string {
	if strings.Contains(uri, "sslmode=") {
		return uri
	}
	if strings.Contains(uri, "://") {
		if strings.Contains(uri, "?") {
			return uri + "&sslmode=disable"
		}
		return uri + "?sslmode=disable"
	}
	// key=value 形式の DSN
	return uri + " sslmode=disable"
}

// EnsureSchema はテーブルがなければ作成する
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            user_id     TEXT PRIMARY KEY,
            username    TEXT NOT NULL UNIQUE,
            personality JSONB NOT NULL,
            created_at  TEXT NOT NULL DEFAULT ''
        )`, s.usersTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            conversation_id TEXT PRIMARY KEY,
            user1_id        TEXT NOT NULL,
            user2_id        TEXT NOT NULL,
            topic           TEXT NOT NULL,
            messages        JSONB NOT NULL,
            created_at      TEXT NOT NULL
        )`, s.conversationsTable),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return storeError("ensure schema", err)
		}
	}
	s.logger.Info("postgres schema ready", "users", s.usersTable, "conversations", s.conversationsTable)
	return nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user models.User) error {
	personality, err := json.Marshal(user.Personality)
	if err != nil {
		return storeError("encode personality", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (user_id, username, personality, created_at) VALUES ($1, $2, $3, $4)`, s.usersTable)
	_, err = s.db.ExecContext(ctx, query, user.UserID, user.Username, personality, user.CreatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		if strings.Contains(pqErr.Constraint, "username") {
			return fmt.Errorf("%w: %s", ErrUsernameTaken, user.Username)
		}
		return fmt.Errorf("%w: %s", ErrUserExists, user.UserID)
	}
	if err != nil {
		return storeError("insert user", err)
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (models.User, error) {
	query := fmt.Sprintf(`SELECT user_id, username, personality, created_at FROM %s WHERE user_id = $1`, s.usersTable)
	user, err := scanUser(s.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return models.User{}, storeError("get user", err)
	}
	return user, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]models.User, error) {
	query := fmt.Sprintf(`SELECT user_id, username, personality, created_at FROM %s ORDER BY created_at COLLATE "C", user_id COLLATE "C"`, s.usersTable)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storeError("list users", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, storeError("scan user", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list users", err)
	}
	return users, nil
}

func (s *PostgresStore) CreateConversation(ctx context.Context, c models.Conversation) error {
	messages, err := json.Marshal(c.Messages)
	if err != nil {
		return storeError("encode messages", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (conversation_id, user1_id, user2_id, topic, messages, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`, s.conversationsTable)
	if _, err := s.db.ExecContext(ctx, query, c.ConversationID, c.User1ID, c.User2ID, c.Topic, messages, c.CreatedAt); err != nil {
		return storeError("insert conversation", err)
	}
	return nil
}

func (s *PostgresStore) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	query := fmt.Sprintf(`SELECT conversation_id, user1_id, user2_id, topic, messages, created_at
        FROM %s ORDER BY created_at COLLATE "C", conversation_id COLLATE "C"`, s.conversationsTable)
	return s.queryConversations(ctx, query)
}

func (s *PostgresStore) ListConversationsForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	query := fmt.Sprintf(`SELECT conversation_id, user1_id, user2_id, topic, messages, created_at
        FROM %s WHERE user1_id = $1 OR user2_id = $1 ORDER BY created_at COLLATE "C", conversation_id COLLATE "C"`, s.conversationsTable)
	return s.queryConversations(ctx, query, userID)
}

func (s *PostgresStore) Close(context.Context) error {
	return s.db.Close()
}

func (s *PostgresStore) queryConversations(ctx context.Context, query string, args ...any) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("list conversations", err)
	}
	defer rows.Close()

	conversations := []models.Conversation{}
	for rows.Next() {
		var c models.Conversation
		var messages []byte
		if err := rows.Scan(&c.ConversationID, &c.User1ID, &c.User2ID, &c.Topic, &messages, &c.CreatedAt); err != nil {
			return nil, storeError("scan conversation", err)
		}
		if err := json.Unmarshal(messages, &c.Messages); err != nil {
			return nil, storeError("decode messages", err)
		}
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list conversations", err)
	}
	return conversations, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (models.User, error) {
	var u models.User
	var personality []byte
	if err := row.Scan(&u.UserID, &u.Username, &personality, &u.CreatedAt); err != nil {
		return models.User{}, err
	}
	if err := json.Unmarshal(personality, &u.Personality); err != nil {
		return models.User{}, fmt.Errorf("decode personality: %w", err)
	}
	return u, nil
}
