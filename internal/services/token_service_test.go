package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/quicknotes/quicknotes/internal/config"
	"github.com/quicknotes/quicknotes/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:               "test-secret-key-for-signing-tokens",
		AccessTokenExpiry:       15 * time.Minute,
		RefreshTokenExpiry:      30 * 24 * time.Hour,
		ResetTokenExpiry:        1 * time.Hour,
		VerificationTokenExpiry: 24 * time.Hour,
		TokenRetention:          30 * 24 * time.Hour,
		TOTPIssuer:              "QuickNotes",
		BackupCodeCount:         10,
	}
}

func newTokenService(store TokenRepository) *TokenService {
	return NewTokenService(store, testAuthConfig(), newTestLogger())
}

func TestTokenService_IssueLifetimes(t *testing.T) {
	store := NewFakeTokenStore()
	svc := newTokenService(store)
	ctx := context.Background()

	tests := []struct {
		kind models.TokenKind
		ttl  time.Duration
	}{
		{models.TokenKindRefresh, 30 * 24 * time.Hour},
		{models.TokenKindReset, 1 * time.Hour},
		{models.TokenKindVerification, 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			token, err := svc.Issue(ctx, "user-1", tt.kind)
			require.NoError(t, err)
			assert.Len(t, token.Value, 80)
			assert.Equal(t, "user-1", token.UserID)
			assert.Equal(t, tt.kind, token.Kind)
			assert.False(t, token.Revoked)
			assert.WithinDuration(t, time.Now().Add(tt.ttl), token.ExpiresAt, 5*time.Second)
		})
	}
}

func TestTokenService_Issue_InvalidKind(t *testing.T) {
	svc := newTokenService(NewFakeTokenStore())

	_, err := svc.Issue(context.Background(), "user-1", models.TokenKind("bogus"))
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestTokenService_Redeem_UnknownValue(t *testing.T) {
	svc := newTokenService(NewFakeTokenStore())

	_, err := svc.Redeem(context.Background(), "never-issued", models.TokenKindReset)
	assert.ErrorIs(t, err, models.ErrTokenNotFound)
}

func TestTokenService_Redeem_WrongKind(t *testing.T) {
	store := NewFakeTokenStore()
	svc := newTokenService(store)
	ctx := context.Background()

	token, err := svc.Issue(ctx, "user-1", models.TokenKindVerification)
	require.NoError(t, err)

	// A verification token presented as a reset token does not exist
	_, err = svc.Redeem(ctx, token.Value, models.TokenKindReset)
	assert.ErrorIs(t, err, models.ErrTokenNotFound)

	// It is still redeemable under its real kind
	_, err = svc.Redeem(ctx, token.Value, models.TokenKindVerification)
	assert.NoError(t, err)
}

func TestTokenService_Redeem_SingleUse(t *testing.T) {
	store := NewFakeTokenStore()
	svc := newTokenService(store)
	ctx := context.Background()

	token, err := svc.Issue(ctx, "user-1", models.TokenKindReset)
	require.NoError(t, err)

	redeemed, err := svc.Redeem(ctx, token.Value, models.TokenKindReset)
	require.NoError(t, err)
	assert.Equal(t, "user-1", redeemed.UserID)

	// Second presentation of the same value fails
	_, err = svc.Redeem(ctx, token.Value, models.TokenKindReset)
	assert.ErrorIs(t, err, models.ErrTokenRevoked)
}

func TestTokenService_Redeem_Expired(t *testing.T) {
	store := NewFakeTokenStore()
	svc := newTokenService(store)
	ctx := context.Background()

	expired := &models.Token{
		Value:     "expired-token-value",
		UserID:    "user-1",
		Kind:      models.TokenKindReset,
		ExpiresAt: time.Now().Add(-1 * time.Minute),
	}
	require.NoError(t, store.Create(ctx, expired))

	_, err := svc.Redeem(ctx, "expired-token-value", models.TokenKindReset)
	assert.ErrorIs(t, err, models.ErrTokenExpired)
}

func TestTokenService_Redeem_RevokedBeatsExpired(t *testing.T) {
	store := NewFakeTokenStore()
	svc := newTokenService(store)
	ctx := context.Background()

	// Both revoked and expired: the revoked check runs first
	token := &models.Token{
		Value:     "revoked-and-expired",
		UserID:    "user-1",
		Kind:      models.TokenKindReset,
		ExpiresAt: time.Now().Add(-1 * time.Minute),
		Revoked:   true,
	}
	require.NoError(t, store.Create(ctx, token))

	_, err := svc.Redeem(ctx, "revoked-and-expired", models.TokenKindReset)
	assert.ErrorIs(t, err, models.ErrTokenRevoked)
}

func TestTokenService_Redeem_ConcurrentSingleWinner(t *testing.T) {
	store := NewFakeTokenStore()
	svc := newTokenService(store)
	ctx := context.Background()

	token, err := svc.Issue(ctx, "user-1", models.TokenKindReset)
	require.NoError(t, err)

	const attempts = 50
	var wg sync.WaitGroup
	results := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Redeem(ctx, token.Value, models.TokenKindReset)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, models.ErrTokenRevoked)
		}
	}
	assert.Equal(t, 1, winners, "exactly one concurrent redemption must win")
}

func TestTokenService_Validate_DoesNotConsume(t *testing.T) {
	store := NewFakeTokenStore()
	svc := newTokenService(store)
	ctx := context.Background()

	token, err := svc.Issue(ctx, "user-1", models.TokenKindRefresh)
	require.NoError(t, err)

	// A refresh token survives any number of validations
	for i := 0; i < 5; i++ {
		got, err := svc.Validate(ctx, token.Value, models.TokenKindRefresh)
		require.NoError(t, err)
		assert.False(t, got.Revoked)
	}
}

func TestTokenService_Revoke_Idempotent(t *testing.T) {
	store := NewFakeTokenStore()
	svc := newTokenService(store)
	ctx := context.Background()

	token, err := svc.Issue(ctx, "user-1", models.TokenKindRefresh)
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, token.Value))
	require.NoError(t, svc.Revoke(ctx, token.Value))
	require.NoError(t, svc.Revoke(ctx, "never-issued"))

	_, err = svc.Validate(ctx, token.Value, models.TokenKindRefresh)
	assert.ErrorIs(t, err, models.ErrTokenRevoked)
}

func TestTokenService_RevokeAllForUser_ScopedByKind(t *testing.T) {
	store := NewFakeTokenStore()
	svc := newTokenService(store)
	ctx := context.Background()

	r1, err := svc.Issue(ctx, "user-1", models.TokenKindRefresh)
	require.NoError(t, err)
	r2, err := svc.Issue(ctx, "user-1", models.TokenKindRefresh)
	require.NoError(t, err)
	verification, err := svc.Issue(ctx, "user-1", models.TokenKindVerification)
	require.NoError(t, err)
	other, err := svc.Issue(ctx, "user-2", models.TokenKindRefresh)
	require.NoError(t, err)

	n, err := svc.RevokeAllForUser(ctx, "user-1", models.TokenKindRefresh)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = svc.Validate(ctx, r1.Value, models.TokenKindRefresh)
	assert.ErrorIs(t, err, models.ErrTokenRevoked)
	_, err = svc.Validate(ctx, r2.Value, models.TokenKindRefresh)
	assert.ErrorIs(t, err, models.ErrTokenRevoked)

	// Other kinds and other users untouched
	_, err = svc.Validate(ctx, verification.Value, models.TokenKindVerification)
	assert.NoError(t, err)
	_, err = svc.Validate(ctx, other.Value, models.TokenKindRefresh)
	assert.NoError(t, err)
}

func TestTokenService_ReapExpired(t *testing.T) {
	store := NewFakeTokenStore()
	cfg := testAuthConfig()
	cfg.TokenRetention = 0
	svc := NewTokenService(store, cfg, newTestLogger())
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &models.Token{
		Value:     "long-gone",
		UserID:    "user-1",
		Kind:      models.TokenKindReset,
		ExpiresAt: time.Now().Add(-48 * time.Hour),
	}))
	live, err := svc.Issue(ctx, "user-1", models.TokenKindRefresh)
	require.NoError(t, err)

	n, err := svc.ReapExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, store.Len())

	// The live token is unaffected
	_, err = svc.Validate(ctx, live.Value, models.TokenKindRefresh)
	assert.NoError(t, err)
}
