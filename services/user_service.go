package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"aiclone/models"
)

type UserService struct {
	store  RecordStore
	logger *slog.Logger
}

func NewUserService(store RecordStore, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{store: store, logger: logger}
}

// ユーザー名は一意
func (s *UserService) Create(ctx context.Context, user models.User) error {
	if strings.TrimSpace(user.UserID) == "" {
		return fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	if strings.TrimSpace(user.Username) == "" {
		return fmt.Errorf("%w: username is required", ErrValidation)
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		return err
	}

	s.logger.Info("user created", "user_id", user.UserID, "username", user.Username)
	return nil
}

func (s *UserService) Get(ctx context.Context, userID string) (models.User, error) {
	return s.store.GetUser(ctx, userID)
}

func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	return s.store.ListUsers(ctx)
}
