package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/quicknotes/quicknotes/internal/auth"
	"github.com/quicknotes/quicknotes/internal/config"
	"github.com/quicknotes/quicknotes/internal/models"
)

// TokenService is the lifecycle manager for opaque tokens: it issues them
// with kind-appropriate lifetimes and arbitrates redemption. Single-use kinds
// (reset, verification) are consumed atomically so two racing requests cannot
// both redeem one value; refresh tokens stay live until revoked or expired.
type TokenService struct {
	repo   TokenRepository
	cfg    config.AuthConfig
	logger *slog.Logger
}

// NewTokenService creates a new TokenService
func NewTokenService(repo TokenRepository, cfg config.AuthConfig, logger *slog.Logger) *TokenService {
	return &TokenService{
		repo:   repo,
		cfg:    cfg,
		logger: logger,
	}
}

func (s *TokenService) ttlFor(kind models.TokenKind) time.Duration {
	switch kind {
	case models.TokenKindRefresh:
		return s.cfg.RefreshTokenExpiry
	case models.TokenKindReset:
		return s.cfg.ResetTokenExpiry
	case models.TokenKindVerification:
		return s.cfg.VerificationTokenExpiry
	}
	return 0
}

// Issue mints a fresh opaque token of the given kind and persists it
func (s *TokenService) Issue(ctx context.Context, userID string, kind models.TokenKind) (*models.Token, error) {
	if !kind.Valid() {
		return nil, models.ErrBadRequest
	}

	value, err := auth.GenerateOpaqueToken()
	if err != nil {
		s.logger.Error("failed to generate token value", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	token := &models.Token{
		Value:     value,
		UserID:    userID,
		Kind:      kind,
		ExpiresAt: time.Now().Add(s.ttlFor(kind)),
	}

	if err := s.repo.Create(ctx, token); err != nil {
		s.logger.Error("failed to persist token",
			slog.String("kind", string(kind)),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return token, nil
}

// Redeem validates a presented token value and, for single-use kinds,
// consumes it. Checks run in a fixed order so callers get a deterministic
// error: unknown value, then revoked, then expired. Consumption happens
// before the caller applies any effect; if two requests race, the loser of
// the compare-and-set sees ErrTokenRevoked and applies nothing.
func (s *TokenService) Redeem(ctx context.Context, value string, kind models.TokenKind) (*models.Token, error) {
	token, err := s.lookup(ctx, value, kind)
	if err != nil {
		return nil, err
	}

	if kind.SingleUse() {
		won, err := s.repo.CompareAndSetRevoked(ctx, value)
		if err != nil {
			s.logger.Error("failed to consume token",
				slog.String("kind", string(kind)),
				slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		if !won {
			// Lost the race to a concurrent redemption
			return nil, models.ErrTokenRevoked
		}
	}

	return token, nil
}

// Validate checks a token without consuming it. This is the refresh path:
// a refresh token is presented many times over its life.
func (s *TokenService) Validate(ctx context.Context, value string, kind models.TokenKind) (*models.Token, error) {
	return s.lookup(ctx, value, kind)
}

func (s *TokenService) lookup(ctx context.Context, value string, kind models.TokenKind) (*models.Token, error) {
	if value == "" || !kind.Valid() {
		return nil, models.ErrTokenNotFound
	}

	token, err := s.repo.GetByValue(ctx, value, kind)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrTokenNotFound
		}
		s.logger.Error("failed to look up token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if token.Revoked {
		return nil, models.ErrTokenRevoked
	}
	if token.IsExpired() {
		return nil, models.ErrTokenExpired
	}

	return token, nil
}

// Revoke marks a single token revoked. Idempotent: revoking a token that is
// already revoked or unknown succeeds.
func (s *TokenService) Revoke(ctx context.Context, value string) error {
	if err := s.repo.Revoke(ctx, value); err != nil {
		s.logger.Error("failed to revoke token", slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}

// RevokeAllForUser revokes every live token of a kind for the user. Used to
// cut off all sessions after a password reset.
func (s *TokenService) RevokeAllForUser(ctx context.Context, userID string, kind models.TokenKind) (int64, error) {
	n, err := s.repo.RevokeAllForUser(ctx, userID, kind)
	if err != nil {
		s.logger.Error("failed to revoke user tokens",
			slog.String("user_id", userID),
			slog.String("kind", string(kind)),
			slog.Any("error", err))
		return 0, models.ErrInternalServer
	}
	if n > 0 {
		s.logger.Info("revoked user tokens",
			slog.String("user_id", userID),
			slog.String("kind", string(kind)),
			slog.Int64("count", n))
	}
	return n, nil
}

// ReapExpired deletes token records whose expiry is older than the retention
// window. Correctness never depends on this running: expired records are
// already unredeemable, and the retention window keeps them around a while
// for audits.
func (s *TokenService) ReapExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpiredBefore(ctx, time.Now().Add(-s.cfg.TokenRetention))
	if err != nil {
		s.logger.Error("failed to reap expired tokens", slog.Any("error", err))
		return 0, err
	}
	return n, nil
}
