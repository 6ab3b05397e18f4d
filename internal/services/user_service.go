package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/quicknotes/quicknotes/internal/models"
	pkglogger "github.com/quicknotes/quicknotes/pkg/logger"
)

// UserService handles profile and account administration
type UserService struct {
	users  UserRepository
	tokens *TokenService
	logger *slog.Logger
	audit  *pkglogger.AuditLogger
}

// NewUserService creates a new UserService
func NewUserService(users UserRepository, tokens *TokenService, logger *slog.Logger, audit *pkglogger.AuditLogger) *UserService {
	return &UserService{
		users:  users,
		tokens: tokens,
		logger: logger,
		audit:  audit,
	}
}

func (s *UserService) GetProfile(ctx context.Context, userID string) (*models.PublicUser, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return user.Public(), nil
}

// ProfileUpdate carries optional profile fields; nil means leave unchanged
type ProfileUpdate struct {
	Username *string
	Bio      *string
	Avatar   *string
}

func (s *UserService) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*models.PublicUser, error) {
	if update.Username != nil {
		trimmed := strings.TrimSpace(*update.Username)
		if trimmed == "" {
			return nil, models.ErrBadRequest
		}
		update.Username = &trimmed
	}

	user, err := s.users.UpdateProfile(ctx, userID, update.Username, update.Bio, update.Avatar)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrDuplicateIdentity
		}
		s.logger.Error("failed to update profile",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return user.Public(), nil
}

// List returns users for the admin surface
func (s *UserService) List(ctx context.Context, limit, offset int) ([]*models.PublicUser, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	users, err := s.users.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("failed to list users", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	public := make([]*models.PublicUser, len(users))
	for i, u := range users {
		public[i] = u.Public()
	}
	return public, nil
}

// Delete removes an account and revokes its outstanding sessions
func (s *UserService) Delete(ctx context.Context, userID string) error {
	if _, err := s.tokens.RevokeAllForUser(ctx, userID, models.TokenKindRefresh); err != nil {
		return err
	}

	if err := s.users.Delete(ctx, userID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to delete user",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.LogAccountAction("user_deleted", userID, "", nil)
	return nil
}
