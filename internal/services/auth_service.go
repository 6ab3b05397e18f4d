package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/quicknotes/quicknotes/internal/auth"
	"github.com/quicknotes/quicknotes/internal/models"
	pkgauth "github.com/quicknotes/quicknotes/pkg/auth"
	pkglogger "github.com/quicknotes/quicknotes/pkg/logger"
)

// dummyHash is compared against when the account does not exist, so the
// password check costs the same whether or not the email is registered.
const dummyHash = "$2a$12$K3JNi5xUQ3xP1lXCEMBCOeBDab91yReRVu2eucKnQOZR5PHVUmW6W"

// AuthService implements the login state machine and the account lifecycle
// flows built on top of the token store: registration, email verification,
// refresh, logout and password reset.
type AuthService struct {
	users  UserRepository
	tokens *TokenService
	tm     *auth.TokenManager
	totp   *auth.TOTPEngine
	emails EmailSender
	logger *slog.Logger
	audit  *pkglogger.AuditLogger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	users UserRepository,
	tokens *TokenService,
	tm *auth.TokenManager,
	totp *auth.TOTPEngine,
	emails EmailSender,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		tm:     tm,
		totp:   totp,
		emails: emails,
		logger: logger,
		audit:  audit,
	}
}

// LoginResult is the outcome of a login attempt. When RequiresTwoFactor is
// set the credentials were correct but no session exists yet; the client must
// repeat the call with a code. Tokens are only ever present on a full success.
type LoginResult struct {
	RequiresTwoFactor bool               `json:"requires_two_factor,omitempty"`
	User              *models.PublicUser `json:"user,omitempty"`
	AccessToken       string             `json:"access_token,omitempty"`
	RefreshToken      string             `json:"refresh_token,omitempty"`
}

// Login authenticates a user. Password failures and unknown emails both come
// back as ErrInvalidCredentials so a caller cannot distinguish them. When the
// account has a second factor enabled and no code was supplied, the result is
// a challenge, not an error: the password was right.
func (s *AuthService) Login(ctx context.Context, email, password, twoFactorCode string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, models.ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Burn the same bcrypt cost as a real comparison
			_ = pkgauth.ComparePassword(dummyHash, password)
			s.audit.LogAuthAttempt(pkglogger.AuditEvent{
				EventType:     "login_failed",
				FailureReason: "invalid_credentials",
				Success:       false,
			})
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		s.audit.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			UserID:        user.ID,
			FailureReason: "invalid_credentials",
			Success:       false,
		})
		return nil, models.ErrInvalidCredentials
	}

	if user.TwoFactor.Enabled {
		if twoFactorCode == "" {
			s.audit.LogAuthAttempt(pkglogger.AuditEvent{
				EventType: "login_challenge",
				UserID:    user.ID,
				Success:   true,
			})
			return &LoginResult{RequiresTwoFactor: true}, nil
		}
		if err := s.checkSecondFactor(ctx, user, twoFactorCode); err != nil {
			s.audit.LogAuthAttempt(pkglogger.AuditEvent{
				EventType:     "login_failed",
				UserID:        user.ID,
				FailureReason: "invalid_second_factor",
				Success:       false,
			})
			return nil, err
		}
	}

	return s.openSession(ctx, user, "login_success")
}

// checkSecondFactor accepts either a current TOTP code or one of the user's
// unused backup codes. A backup code match consumes the code atomically, so
// presenting the same code twice concurrently authenticates at most once.
func (s *AuthService) checkSecondFactor(ctx context.Context, user *models.User, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return models.ErrInvalidSecondFactor
	}

	if s.totp.ValidateCode(user.TwoFactor.Secret, code) {
		return nil
	}

	consumed, err := s.users.ConsumeBackupCode(ctx, user.ID, auth.HashBackupCode(code))
	if err != nil {
		s.logger.Error("failed to consume backup code",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}
	if consumed {
		s.logger.Info("backup code used for login", slog.String("user_id", user.ID))
		return nil
	}

	return models.ErrInvalidSecondFactor
}

// openSession issues the refresh/access pair for an authenticated user
func (s *AuthService) openSession(ctx context.Context, user *models.User, event string) (*LoginResult, error) {
	refresh, err := s.tokens.Issue(ctx, user.ID, models.TokenKindRefresh)
	if err != nil {
		return nil, err
	}

	access, err := s.tm.GenerateAccessToken(user.ID, user.Role)
	if err != nil {
		s.logger.Error("failed to generate access token",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := time.Now()
	if err := s.users.SetLastLogin(ctx, user.ID, now); err != nil {
		// Not worth failing the login over
		s.logger.Warn("failed to record last login",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
	}
	user.LastLoginAt = &now

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: event,
		UserID:    user.ID,
		Success:   true,
	})

	return &LoginResult{
		User:         user.Public(),
		AccessToken:  access,
		RefreshToken: refresh.Value,
	}, nil
}

// Register creates a new account, sends the verification email and opens the
// first session. The account starts unverified; verification gates the notes
// surface, not authentication. Duplicate email or username surfaces as
// ErrDuplicateIdentity.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if username == "" || email == "" {
		return nil, models.ErrBadRequest
	}
	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, models.ErrBadRequest
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user, err := s.users.Create(ctx, &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrDuplicateIdentity
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("email", pkglogger.SanitizedEmail(user.Email)))
	s.audit.LogAccountAction("user_registered", user.ID, "", nil)

	if err := s.sendVerification(ctx, user); err != nil {
		// Account exists; the user can request another email
		s.logger.Warn("failed to send verification email",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
	}

	return s.openSession(ctx, user, "register_success")
}

func (s *AuthService) sendVerification(ctx context.Context, user *models.User) error {
	token, err := s.tokens.Issue(ctx, user.ID, models.TokenKindVerification)
	if err != nil {
		return err
	}
	return s.emails.SendVerificationEmail(ctx, user.Email, token.Value, token.ExpiresAt)
}

// Refresh exchanges a live refresh token for a fresh access token. The
// refresh token is validated, not consumed: it keeps working until it expires
// or is revoked.
func (s *AuthService) Refresh(ctx context.Context, refreshValue string) (*LoginResult, error) {
	token, err := s.tokens.Validate(ctx, refreshValue, models.TokenKindRefresh)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Account deleted since the token was issued
			return nil, models.ErrTokenRevoked
		}
		s.logger.Error("failed to get user for refresh", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	access, err := s.tm.GenerateAccessToken(user.ID, user.Role)
	if err != nil {
		s.logger.Error("failed to generate access token",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.LogTokenEvent("token_refreshed", user.ID, string(models.TokenKindRefresh), true)

	return &LoginResult{
		User:        user.Public(),
		AccessToken: access,
	}, nil
}

// Logout revokes the presented refresh token. Idempotent: logging out twice,
// or with a token that was never issued, succeeds.
func (s *AuthService) Logout(ctx context.Context, refreshValue string) error {
	if refreshValue == "" {
		return nil
	}
	if err := s.tokens.Revoke(ctx, refreshValue); err != nil {
		return err
	}
	s.logger.Info("session ended")
	return nil
}

// VerifyEmail redeems a verification token and marks the account verified.
// The token is consumed even if the account was already verified; a
// verification link works exactly once.
func (s *AuthService) VerifyEmail(ctx context.Context, tokenValue string) error {
	token, err := s.tokens.Redeem(ctx, tokenValue, models.TokenKindVerification)
	if err != nil {
		return err
	}

	if err := s.users.SetEmailVerified(ctx, token.UserID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrTokenRevoked
		}
		s.logger.Error("failed to mark email verified",
			slog.String("user_id", token.UserID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.LogAccountAction("email_verified", token.UserID, "", nil)
	return nil
}

// ResendVerification issues a fresh verification token for an unverified
// account and emails it
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Do not reveal whether the address is registered
			return nil
		}
		s.logger.Error("failed to get user for resend", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if user.EmailVerified {
		return models.ErrEmailAlreadyVerified
	}

	if err := s.sendVerification(ctx, user); err != nil {
		// The token is issued either way; only delivery failed
		s.logger.Warn("failed to resend verification email",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return models.ErrNotificationFailure
	}

	return nil
}

// ForgotPassword issues a reset token and emails it. Always reports success
// to the caller: whether the address is registered is not disclosed.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		s.logger.Error("failed to get user for password reset", slog.Any("error", err))
		return models.ErrInternalServer
	}

	token, err := s.tokens.Issue(ctx, user.ID, models.TokenKindReset)
	if err != nil {
		return err
	}

	if err := s.emails.SendPasswordResetEmail(ctx, user.Email, token.Value, token.ExpiresAt); err != nil {
		// The token is issued either way; only delivery failed
		s.logger.Warn("failed to send reset email",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return models.ErrNotificationFailure
	}

	s.audit.LogAccountAction("password_reset_requested", user.ID, "", nil)
	return nil
}

// ResetPassword redeems a reset token and installs a new password. The token
// is consumed before the password changes, so a second request carrying the
// same token fails without touching the account. All refresh tokens are
// revoked and the change instant is recorded, which invalidates outstanding
// access tokens at the middleware.
func (s *AuthService) ResetPassword(ctx context.Context, tokenValue, newPassword string) error {
	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return models.ErrBadRequest
	}

	token, err := s.tokens.Redeem(ctx, tokenValue, models.TokenKindReset)
	if err != nil {
		return err
	}

	hash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	now := time.Now()
	if err := s.users.UpdatePassword(ctx, token.UserID, hash, now); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrTokenRevoked
		}
		s.logger.Error("failed to update password",
			slog.String("user_id", token.UserID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	if _, err := s.tokens.RevokeAllForUser(ctx, token.UserID, models.TokenKindRefresh); err != nil {
		s.logger.Error("failed to revoke sessions after reset",
			slog.String("user_id", token.UserID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.LogPasswordChange(token.UserID, "", true)
	return nil
}

// ChangePassword updates the password for an authenticated user after
// re-verifying the current one. Like a reset, it revokes all refresh tokens
// and cuts off outstanding access tokens.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return models.ErrBadRequest
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrUnauthorized
		}
		s.logger.Error("failed to get user for password change", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, currentPassword); err != nil {
		s.audit.LogPasswordChange(userID, "", false)
		return models.ErrInvalidCredentials
	}

	hash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.users.UpdatePassword(ctx, userID, hash, time.Now()); err != nil {
		s.logger.Error("failed to update password",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	if _, err := s.tokens.RevokeAllForUser(ctx, userID, models.TokenKindRefresh); err != nil {
		s.logger.Error("failed to revoke sessions after password change",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.LogPasswordChange(userID, "", true)
	return nil
}
