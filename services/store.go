package services

import (
	"context"
	"sort"

	"aiclone/models"
)

// RecordStore はユーザーと会話を保存する。
// 重複は ErrUsernameTaken か ErrUserExists、見つからなければ ErrNotFound、
// インフラの失敗は ErrStore を返す。一覧は created_at、同じなら id の順
type RecordStore interface {
	CreateUser(ctx context.Context, user models.User) error
	GetUser(ctx context.Context, userID string) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)

	CreateConversation(ctx context.Context, conversation models.Conversation) error
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	ListConversationsForUser(ctx context.Context, userID string) ([]models.Conversation, error)

	Close(ctx context.Context) error
}

func sortUsers(users []models.User) {
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].CreatedAt == users[j].CreatedAt {
			return users[i].UserID < users[j].UserID
		}
		return users[i].CreatedAt < users[j].CreatedAt
	})
}

func sortConversations(conversations []models.Conversation) {
	sort.SliceStable(conversations, func(i, j int) bool {
		if conversations[i].CreatedAt == conversations[j].CreatedAt {
			return conversations[i].ConversationID < conversations[j].ConversationID
		}
		return conversations[i].CreatedAt < conversations[j].CreatedAt
	})
}

func involves(c models.Conversation, userID string) bool {
	return c.User1ID == userID || c.User2ID == userID
}
