package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"aiclone/models"

	"github.com/google/uuid"
)

// ユーザーが見つからない参加者の表示名
const UnknownUsername = "Unknown"

type ConversationRequest struct {
	User1ID string
	User2ID string
	Topic   string
}

type ConversationService struct {
	store        RecordStore
	orchestrator *Orchestrator
	logger       *slog.Logger
	newID        func() string
	now          func() time.Time
}

func NewConversationService(store RecordStore, orchestrator *Orchestrator, logger *slog.Logger) *ConversationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationService{
		store:        store,
		orchestrator: orchestrator,
		logger:       logger,
		newID:        func() string { return uuid.New().String() },
		now:          time.Now,
	}
}

// Create はモデルを呼ぶ前に両ユーザーを確認し、全ターン成功した場合だけ保存する
func (s *ConversationService) Create(ctx context.Context, req ConversationRequest) (models.ConversationView, error) {
	if req.User1ID == "" || req.User2ID == "" {
		return models.ConversationView{}, fmt.Errorf("%w: user1_id and user2_id are required", ErrValidation)
	}
	if req.User1ID == req.User2ID {
		return models.ConversationView{}, fmt.Errorf("%w: a clone cannot converse with itself", ErrValidation)
	}

	// 空白だけの話題は省略扱い、それ以外は送られたまま保存する
	topic := req.Topic
	if strings.TrimSpace(topic) == "" {
		topic = models.DefaultTopic
	}

	user1, err := s.store.GetUser(ctx, req.User1ID)
	if err != nil {
		return models.ConversationView{}, err
	}
	user2, err := s.store.GetUser(ctx, req.User2ID)
	if err != nil {
		return models.ConversationView{}, err
	}

	conversationID := s.newID()
	log := s.logger.With("conversation_id", conversationID, "user1_id", user1.UserID, "user2_id", user2.UserID)
	log.Info("generating conversation", "topic", topic)

	messages, err := s.orchestrator.Run(ctx,
		Participant{UserID: user1.UserID, Personality: user1.Personality},
		Participant{UserID: user2.UserID, Personality: user2.Personality},
		topic, conversationID,
	)
	if err != nil {
		log.Error("conversation generation failed", "error", err)
		return models.ConversationView{}, fmt.Errorf("generate conversation: %w", err)
	}

	conversation := models.Conversation{
		ConversationID: conversationID,
		User1ID:        user1.UserID,
		User2ID:        user2.UserID,
		Topic:          topic,
		Messages:       messages,
		CreatedAt:      FormatTimestamp(s.now()),
	}
	if err := s.store.CreateConversation(ctx, conversation); err != nil {
		log.Error("failed to store conversation", "error", err)
		return models.ConversationView{}, err
	}

	return models.ConversationView{
		Conversation: conversation,
		Participants: models.Participants{User1: user1.Username, User2: user2.Username},
	}, nil
}

func (s *ConversationService) List(ctx context.Context) ([]models.ConversationView, error) {
	conversations, err := s.store.ListConversations(ctx)
	if err != nil {
		return nil, err
	}
	return s.annotate(ctx, conversations)
}

func (s *ConversationService) ListForUser(ctx context.Context, userID string) ([]models.ConversationView, error) {
	conversations, err := s.store.ListConversationsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.annotate(ctx, conversations)
}

func (s *ConversationService) annotate(ctx context.Context, conversations []models.Conversation) ([]models.ConversationView, error) {
	usernames := make(map[string]string)
	resolve := func(userID string) (string, error) {
		if name, ok := usernames[userID]; ok {
			return name, nil
		}
		name := UnknownUsername
		user, err := s.store.GetUser(ctx, userID)
		switch {
		case err == nil:
			name = user.Username
		case !errors.Is(err, ErrNotFound):
			return "", err
		}
		usernames[userID] = name
		return name, nil
	}

	views := make([]models.ConversationView, 0, len(conversations))
	for _, c := range conversations {
		user1, err := resolve(c.User1ID)
		if err != nil {
			return nil, err
		}
		user2, err := resolve(c.User2ID)
		if err != nil {
			return nil, err
		}
		views = append(views, models.ConversationView{
			Conversation: c,
			Participants: models.Participants{User1: user1, User2: user2},
		})
	}
	return views, nil
}
