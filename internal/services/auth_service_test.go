package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/quicknotes/quicknotes/internal/auth"
	"github.com/quicknotes/quicknotes/internal/models"
	pkgauth "github.com/quicknotes/quicknotes/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testHashOnce sync.Once
	testHash     string
)

// testPasswordHash returns a bcrypt hash of "secret1", computed once
func testPasswordHash(t *testing.T) string {
	t.Helper()
	testHashOnce.Do(func() {
		hash, err := pkgauth.HashPassword("secret1")
		if err != nil {
			t.Fatalf("failed to hash test password: %v", err)
		}
		testHash = hash
	})
	return testHash
}

func testUser(t *testing.T) *models.User {
	return &models.User{
		ID:            "user-1",
		Username:      "alice",
		Email:         "alice@example.com",
		PasswordHash:  testPasswordHash(t),
		EmailVerified: true,
		Role:          "user",
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
}

func newTestAuthService(users UserRepository, store TokenRepository, emails EmailSender) (*AuthService, *TokenService) {
	cfg := testAuthConfig()
	tokens := NewTokenService(store, cfg, newTestLogger())
	tm := auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenExpiry)
	engine := auth.NewTOTPEngine(cfg.TOTPIssuer)
	svc := NewAuthService(users, tokens, tm, engine, emails, newTestLogger(), newTestAudit())
	return svc, tokens
}

func TestAuthService_Login_Success(t *testing.T) {
	user := testUser(t)
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			assert.Equal(t, "alice@example.com", email)
			return user, nil
		},
	}
	svc, _ := newTestAuthService(users, NewFakeTokenStore(), &MockEmailSender{})

	result, err := svc.Login(context.Background(), "Alice@Example.com ", "secret1", "")
	require.NoError(t, err)
	assert.False(t, result.RequiresTwoFactor)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	require.NotNil(t, result.User)
	assert.Equal(t, "user-1", result.User.ID)
}

func TestAuthService_Login_UniformFailures(t *testing.T) {
	user := testUser(t)
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			if email == user.Email {
				return user, nil
			}
			return nil, models.ErrNotFound
		},
	}
	svc, _ := newTestAuthService(users, NewFakeTokenStore(), &MockEmailSender{})
	ctx := context.Background()

	// Unknown email and wrong password come back as the same error value
	_, errUnknown := svc.Login(ctx, "nobody@example.com", "secret1", "")
	_, errWrongPw := svc.Login(ctx, "alice@example.com", "wrongpw", "")

	assert.ErrorIs(t, errUnknown, models.ErrInvalidCredentials)
	assert.ErrorIs(t, errWrongPw, models.ErrInvalidCredentials)
	assert.Equal(t, errUnknown, errWrongPw)
}

func TestAuthService_Login_EmptyInput(t *testing.T) {
	svc, _ := newTestAuthService(&MockUserRepository{}, NewFakeTokenStore(), &MockEmailSender{})

	_, err := svc.Login(context.Background(), "", "secret1", "")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "alice@example.com", "", "")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func twoFactorUser(t *testing.T, secret string) *models.User {
	user := testUser(t)
	user.TwoFactor = models.TwoFactor{Enabled: true, Secret: secret}
	return user
}

func TestAuthService_Login_TwoFactorChallenge(t *testing.T) {
	engine := auth.NewTOTPEngine("QuickNotes")
	material, err := engine.GenerateSecret("alice@example.com")
	require.NoError(t, err)

	user := twoFactorUser(t, material.Secret)
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	}
	store := NewFakeTokenStore()
	svc, _ := newTestAuthService(users, store, &MockEmailSender{})
	ctx := context.Background()

	// Correct password, no code: a challenge with no session
	result, err := svc.Login(ctx, "alice@example.com", "secret1", "")
	require.NoError(t, err)
	assert.True(t, result.RequiresTwoFactor)
	assert.Empty(t, result.AccessToken)
	assert.Empty(t, result.RefreshToken)
	assert.Nil(t, result.User)
	assert.Equal(t, 0, store.Len(), "no refresh token may exist before the second factor passes")

	// Wrong password with a code still fails on credentials
	_, err = svc.Login(ctx, "alice@example.com", "wrongpw", "123456")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	// Bad code
	_, err = svc.Login(ctx, "alice@example.com", "secret1", "000000")
	assert.ErrorIs(t, err, models.ErrInvalidSecondFactor)

	// Valid TOTP code completes the login
	code, err := totp.GenerateCode(material.Secret, time.Now())
	require.NoError(t, err)
	result, err = svc.Login(ctx, "alice@example.com", "secret1", code)
	require.NoError(t, err)
	assert.False(t, result.RequiresTwoFactor)
	assert.NotEmpty(t, result.RefreshToken)
}

func TestAuthService_Login_BackupCodeConsumedOnce(t *testing.T) {
	engine := auth.NewTOTPEngine("QuickNotes")
	material, err := engine.GenerateSecret("alice@example.com")
	require.NoError(t, err)

	const backupCode = "ABCD2345"
	remaining := map[string]bool{auth.HashBackupCode(backupCode): true}
	var mu sync.Mutex

	user := twoFactorUser(t, material.Secret)
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
		ConsumeBackupCodeFunc: func(ctx context.Context, id, codeHash string) (bool, error) {
			mu.Lock()
			defer mu.Unlock()
			if remaining[codeHash] {
				delete(remaining, codeHash)
				return true, nil
			}
			return false, nil
		},
	}
	svc, _ := newTestAuthService(users, NewFakeTokenStore(), &MockEmailSender{})
	ctx := context.Background()

	// First use succeeds
	result, err := svc.Login(ctx, "alice@example.com", "secret1", backupCode)
	require.NoError(t, err)
	assert.NotEmpty(t, result.RefreshToken)

	// Same code again is spent
	_, err = svc.Login(ctx, "alice@example.com", "secret1", backupCode)
	assert.ErrorIs(t, err, models.ErrInvalidSecondFactor)
}

func TestAuthService_Register_Success(t *testing.T) {
	users := &MockUserRepository{
		CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
			user.ID = "user-new"
			user.Role = "user"
			user.CreatedAt = time.Now()
			user.UpdatedAt = time.Now()
			return user, nil
		},
	}
	store := NewFakeTokenStore()
	emails := &MockEmailSender{}
	svc, tokens := newTestAuthService(users, store, emails)

	result, err := svc.Register(context.Background(), "bob", "Bob@Example.com", "secret1")
	require.NoError(t, err)
	require.NotNil(t, result.User)
	assert.Equal(t, "user-new", result.User.ID)
	assert.Equal(t, "bob@example.com", result.User.Email)
	assert.False(t, result.User.EmailVerified)

	// Registration opens a session: the unverified account holds a valid
	// access/refresh pair straight away
	assert.NotEmpty(t, result.AccessToken)
	require.NotEmpty(t, result.RefreshToken)
	refresh, err := tokens.Validate(context.Background(), result.RefreshToken, models.TokenKindRefresh)
	require.NoError(t, err)
	assert.Equal(t, "user-new", refresh.UserID)

	// A verification token was issued and handed to the email sender
	sent := emails.LastVerification()
	require.NotEmpty(t, sent)
	token, err := tokens.Validate(context.Background(), sent, models.TokenKindVerification)
	require.NoError(t, err)
	assert.Equal(t, "user-new", token.UserID)
}

func TestAuthService_Register_DuplicateIdentity(t *testing.T) {
	users := &MockUserRepository{
		CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
			return nil, models.ErrConflict
		},
	}
	svc, _ := newTestAuthService(users, NewFakeTokenStore(), &MockEmailSender{})

	_, err := svc.Register(context.Background(), "bob", "bob@example.com", "secret1")
	assert.ErrorIs(t, err, models.ErrDuplicateIdentity)
}

func TestAuthService_Register_RejectsShortPassword(t *testing.T) {
	svc, _ := newTestAuthService(&MockUserRepository{}, NewFakeTokenStore(), &MockEmailSender{})

	_, err := svc.Register(context.Background(), "bob", "bob@example.com", "abc12")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestAuthService_Register_EmailFailureDoesNotFail(t *testing.T) {
	users := &MockUserRepository{
		CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
			user.ID = "user-new"
			return user, nil
		},
	}
	emails := &MockEmailSender{FailWith: models.ErrNotificationFailure}
	svc, _ := newTestAuthService(users, NewFakeTokenStore(), emails)

	// The account and its session exist even when the welcome email cannot
	// be sent
	result, err := svc.Register(context.Background(), "bob", "bob@example.com", "secret1")
	require.NoError(t, err)
	require.NotNil(t, result.User)
	assert.Equal(t, "user-new", result.User.ID)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
}

func TestAuthService_Refresh(t *testing.T) {
	user := testUser(t)
	users := &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return user, nil
		},
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	}
	store := NewFakeTokenStore()
	svc, _ := newTestAuthService(users, store, &MockEmailSender{})
	ctx := context.Background()

	login, err := svc.Login(ctx, "alice@example.com", "secret1", "")
	require.NoError(t, err)

	// Refresh returns a new access token; the refresh token keeps working
	for i := 0; i < 3; i++ {
		result, err := svc.Refresh(ctx, login.RefreshToken)
		require.NoError(t, err)
		assert.NotEmpty(t, result.AccessToken)
		assert.Empty(t, result.RefreshToken)
	}
}

func TestAuthService_Refresh_InvalidToken(t *testing.T) {
	svc, _ := newTestAuthService(&MockUserRepository{}, NewFakeTokenStore(), &MockEmailSender{})

	_, err := svc.Refresh(context.Background(), "never-issued")
	assert.ErrorIs(t, err, models.ErrTokenNotFound)
}

func TestAuthService_Logout(t *testing.T) {
	user := testUser(t)
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return user, nil
		},
	}
	store := NewFakeTokenStore()
	svc, _ := newTestAuthService(users, store, &MockEmailSender{})
	ctx := context.Background()

	login, err := svc.Login(ctx, "alice@example.com", "secret1", "")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, login.RefreshToken))

	// The revoked token no longer refreshes
	_, err = svc.Refresh(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, models.ErrTokenRevoked)

	// Logout is idempotent
	require.NoError(t, svc.Logout(ctx, login.RefreshToken))
	require.NoError(t, svc.Logout(ctx, "never-issued"))
	require.NoError(t, svc.Logout(ctx, ""))
}

func TestAuthService_VerifyEmail_SingleUse(t *testing.T) {
	verified := 0
	users := &MockUserRepository{
		SetEmailVerifiedFunc: func(ctx context.Context, id string) error {
			verified++
			return nil
		},
	}
	store := NewFakeTokenStore()
	svc, tokens := newTestAuthService(users, store, &MockEmailSender{})
	ctx := context.Background()

	token, err := tokens.Issue(ctx, "user-1", models.TokenKindVerification)
	require.NoError(t, err)

	require.NoError(t, svc.VerifyEmail(ctx, token.Value))
	assert.Equal(t, 1, verified)

	// The link works exactly once
	err = svc.VerifyEmail(ctx, token.Value)
	assert.ErrorIs(t, err, models.ErrTokenRevoked)
	assert.Equal(t, 1, verified)
}

func TestAuthService_ResendVerification(t *testing.T) {
	user := testUser(t)
	user.EmailVerified = false
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			if email == user.Email {
				return user, nil
			}
			return nil, models.ErrNotFound
		},
	}
	emails := &MockEmailSender{}
	svc, _ := newTestAuthService(users, NewFakeTokenStore(), emails)
	ctx := context.Background()

	require.NoError(t, svc.ResendVerification(ctx, "alice@example.com"))
	assert.NotEmpty(t, emails.LastVerification())

	// Unknown address: silent success, nothing sent
	before := len(emails.Verifications)
	require.NoError(t, svc.ResendVerification(ctx, "nobody@example.com"))
	assert.Equal(t, before, len(emails.Verifications))

	// Already verified
	user.EmailVerified = true
	err := svc.ResendVerification(ctx, "alice@example.com")
	assert.ErrorIs(t, err, models.ErrEmailAlreadyVerified)
}

func TestAuthService_ForgotPassword_AntiEnumeration(t *testing.T) {
	user := testUser(t)
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			if email == user.Email {
				return user, nil
			}
			return nil, models.ErrNotFound
		},
	}
	store := NewFakeTokenStore()
	emails := &MockEmailSender{}
	svc, _ := newTestAuthService(users, store, emails)
	ctx := context.Background()

	// Known address: token issued and mailed
	require.NoError(t, svc.ForgotPassword(ctx, "alice@example.com"))
	assert.NotEmpty(t, emails.LastReset())

	// Unknown address: identical outcome for the caller, nothing issued
	before := store.Len()
	require.NoError(t, svc.ForgotPassword(ctx, "nobody@example.com"))
	assert.Equal(t, before, store.Len())
	assert.Len(t, emails.Resets, 1)
}

func TestAuthService_ForgotPassword_MailerFailureIsNonFatal(t *testing.T) {
	user := testUser(t)
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	}
	store := NewFakeTokenStore()
	emails := &MockEmailSender{FailWith: models.ErrNotificationFailure}
	svc, _ := newTestAuthService(users, store, emails)

	// Delivery failure does not roll back the issued token
	err := svc.ForgotPassword(context.Background(), "alice@example.com")
	assert.ErrorIs(t, err, models.ErrNotificationFailure)
	assert.Equal(t, 1, store.Len())
}

func TestAuthService_ResetPassword_FullFlow(t *testing.T) {
	user := testUser(t)
	updates := 0
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return user, nil
		},
		UpdatePasswordFunc: func(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
			updates++
			assert.Equal(t, "user-1", id)
			assert.NoError(t, pkgauth.ComparePassword(passwordHash, "newpass1"))
			return nil
		},
	}
	store := NewFakeTokenStore()
	emails := &MockEmailSender{}
	svc, _ := newTestAuthService(users, store, emails)
	ctx := context.Background()

	// Open a session, then request and perform a reset
	login, err := svc.Login(ctx, "alice@example.com", "secret1", "")
	require.NoError(t, err)
	require.NoError(t, svc.ForgotPassword(ctx, "alice@example.com"))

	resetToken := emails.LastReset()
	require.NoError(t, svc.ResetPassword(ctx, resetToken, "newpass1"))
	assert.Equal(t, 1, updates)

	// Every refresh token from before the reset is dead
	_, err = svc.Refresh(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, models.ErrTokenRevoked)

	// The reset token was single-use: replay changes nothing
	err = svc.ResetPassword(ctx, resetToken, "hijack99")
	assert.ErrorIs(t, err, models.ErrTokenRevoked)
	assert.Equal(t, 1, updates)
}

func TestAuthService_ResetPassword_ExpiredToken(t *testing.T) {
	updates := 0
	users := &MockUserRepository{
		UpdatePasswordFunc: func(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
			updates++
			return nil
		},
	}
	store := NewFakeTokenStore()
	svc, _ := newTestAuthService(users, store, &MockEmailSender{})
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &models.Token{
		Value:     "stale-reset-token",
		UserID:    "user-1",
		Kind:      models.TokenKindReset,
		ExpiresAt: time.Now().Add(-1 * time.Minute),
	}))

	err := svc.ResetPassword(ctx, "stale-reset-token", "newpass1")
	assert.ErrorIs(t, err, models.ErrTokenExpired)
	assert.Equal(t, 0, updates)
}

func TestAuthService_ResetPassword_WeakPasswordLeavesTokenLive(t *testing.T) {
	store := NewFakeTokenStore()
	svc, tokens := newTestAuthService(&MockUserRepository{}, store, &MockEmailSender{})
	ctx := context.Background()

	token, err := tokens.Issue(ctx, "user-1", models.TokenKindReset)
	require.NoError(t, err)

	// Password validation runs before redemption, so a rejected password
	// does not burn the token
	err = svc.ResetPassword(ctx, token.Value, "abc")
	assert.ErrorIs(t, err, models.ErrBadRequest)

	_, err = tokens.Validate(ctx, token.Value, models.TokenKindReset)
	assert.NoError(t, err)
}

func TestAuthService_ChangePassword(t *testing.T) {
	user := testUser(t)
	updates := 0
	users := &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return user, nil
		},
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
		UpdatePasswordFunc: func(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
			updates++
			return nil
		},
	}
	store := NewFakeTokenStore()
	svc, _ := newTestAuthService(users, store, &MockEmailSender{})
	ctx := context.Background()

	login, err := svc.Login(ctx, "alice@example.com", "secret1", "")
	require.NoError(t, err)

	// Wrong current password
	err = svc.ChangePassword(ctx, "user-1", "wrongpw", "newpass1")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	assert.Equal(t, 0, updates)

	require.NoError(t, svc.ChangePassword(ctx, "user-1", "secret1", "newpass1"))
	assert.Equal(t, 1, updates)

	// Sessions from before the change are revoked
	_, err = svc.Refresh(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, models.ErrTokenRevoked)
}
