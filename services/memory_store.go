package services

import (
	"context"
	"fmt"
	"sync"

	"aiclone/models"
)

// MemoryStore はプロセス内の RecordStore（開発・テスト用）
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]models.User
	usernames     map[string]string
	conversations map[string]models.Conversation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]models.User),
		usernames:     make(map[string]string),
		conversations: make(map[string]models.Conversation),
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usernames[user.Username]; ok {
		return fmt.Errorf("%w: %s", ErrUsernameTaken, user.Username)
	}
	if _, ok := s.users[user.UserID]; ok {
		return fmt.Errorf("%w: %s", ErrUserExists, user.UserID)
	}

	s.users[user.UserID] = cloneUser(user)
	s.usernames[user.Username] = user.UserID
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, userID string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return cloneUser(user), nil
}

func (s *MemoryStore) ListUsers(_ context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, cloneUser(u))
	}
	sortUsers(users)
	return users, nil
}

func (s *MemoryStore) CreateConversation(_ context.Context, conversation models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversation.ConversationID]; ok {
		return storeError("create conversation", fmt.Errorf("conversation %s already exists", conversation.ConversationID))
	}
	s.conversations[conversation.ConversationID] = cloneConversation(conversation)
	return nil
}

func (s *MemoryStore) ListConversations(_ context.Context) ([]models.Conversation, error) {
	return s.filterConversations(func(models.Conversation) bool { return true }), nil
}

func (s *MemoryStore) ListConversationsForUser(_ context.Context, userID string) ([]models.Conversation, error) {
	return s.filterConversations(func(c models.Conversation) bool { return involves(c, userID) }), nil
}

func (s *MemoryStore) Close(context.Context) error {
	return nil
}

func (s *MemoryStore) filterConversations(keep func(models.Conversation) bool) []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		if keep(c) {
			out = append(out, cloneConversation(c))
		}
	}
	sortConversations(out)
	return out
}

// 呼び出し側のスライスを共有しない
func cloneUser(u models.User) models.User {
	p := &u.Personality
	p.Interests = cloneStrings(p.Interests)
	p.PersonalityTraits = cloneStrings(p.PersonalityTraits)
	p.FavoriteTopics = cloneStrings(p.FavoriteTopics)
	return u
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append(make([]string, 0, len(s)), s...)
}

func cloneConversation(c models.Conversation) models.Conversation {
	if c.Messages != nil {
		c.Messages = append(make([]models.Message, 0, len(c.Messages)), c.Messages...)
	}
	return c
}
