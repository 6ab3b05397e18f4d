package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/quicknotes/quicknotes/internal/auth"
	"github.com/quicknotes/quicknotes/internal/models"
	pkgauth "github.com/quicknotes/quicknotes/pkg/auth"
	pkglogger "github.com/quicknotes/quicknotes/pkg/logger"
)

// TwoFactorService manages enrollment of the TOTP second factor. Setup writes
// a pending secret that does nothing until the user proves possession of the
// authenticator by submitting a valid code to Enable.
type TwoFactorService struct {
	users           UserRepository
	totp            *auth.TOTPEngine
	backupCodeCount int
	logger          *slog.Logger
	audit           *pkglogger.AuditLogger
}

// NewTwoFactorService creates a new TwoFactorService
func NewTwoFactorService(users UserRepository, totp *auth.TOTPEngine, backupCodeCount int, logger *slog.Logger, audit *pkglogger.AuditLogger) *TwoFactorService {
	return &TwoFactorService{
		users:           users,
		totp:            totp,
		backupCodeCount: backupCodeCount,
		logger:          logger,
		audit:           audit,
	}
}

// EnableResult carries the one-time view of the backup codes. They are shown
// exactly once; only digests are stored.
type EnableResult struct {
	BackupCodes []string `json:"backup_codes"`
}

// Setup generates a fresh secret for the user and stores it pending. Calling
// Setup again before Enable replaces the pending secret. Setup on an account
// that already has the factor enabled is rejected; disable it first.
func (s *TwoFactorService) Setup(ctx context.Context, userID string) (*auth.SetupMaterial, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user for 2fa setup", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if user.TwoFactor.Enabled {
		return nil, models.ErrConflict
	}

	material, err := s.totp.GenerateSecret(user.Email)
	if err != nil {
		s.logger.Error("failed to generate totp secret",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.users.SetTwoFactorSecret(ctx, userID, material.Secret); err != nil {
		s.logger.Error("failed to store totp secret",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return material, nil
}

// Enable turns the factor on once the user submits a code generated from the
// pending secret. Backup codes are minted here and returned in plaintext the
// one and only time.
func (s *TwoFactorService) Enable(ctx context.Context, userID, code string) (*EnableResult, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user for 2fa enable", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if user.TwoFactor.Enabled {
		return nil, models.ErrConflict
	}
	if user.TwoFactor.Secret == "" {
		// Enable without a prior Setup
		return nil, models.ErrBadRequest
	}

	if !s.totp.ValidateCode(user.TwoFactor.Secret, code) {
		return nil, models.ErrInvalidSecondFactor
	}

	codes, err := s.totp.GenerateBackupCodes(s.backupCodeCount)
	if err != nil {
		s.logger.Error("failed to generate backup codes",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	hashes := make([]string, len(codes))
	for i, c := range codes {
		hashes[i] = auth.HashBackupCode(c)
	}

	if err := s.users.EnableTwoFactor(ctx, userID, hashes); err != nil {
		s.logger.Error("failed to enable two-factor",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.LogAccountAction("two_factor_enabled", userID, "", nil)
	return &EnableResult{BackupCodes: codes}, nil
}

// Disable turns the factor off. The user's password is required so a hijacked
// session cannot quietly weaken the account.
func (s *TwoFactorService) Disable(ctx context.Context, userID, password string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrUnauthorized
		}
		s.logger.Error("failed to get user for 2fa disable", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if !user.TwoFactor.Enabled {
		return models.ErrBadRequest
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		s.audit.LogAccountAction("two_factor_disable_denied", userID, "", nil)
		return models.ErrInvalidCredentials
	}

	if err := s.users.DisableTwoFactor(ctx, userID); err != nil {
		s.logger.Error("failed to disable two-factor",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.LogAccountAction("two_factor_disabled", userID, "", nil)
	return nil
}
