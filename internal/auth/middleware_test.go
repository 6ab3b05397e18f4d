package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/quicknotes/quicknotes/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserFetcher struct {
	GetByIDFunc func(ctx context.Context, id string) (*models.User, error)
}

func (f *fakeUserFetcher) GetByID(ctx context.Context, id string) (*models.User, error) {
	if f.GetByIDFunc != nil {
		return f.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func protectedEcho(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetUserFromContext(r)
		require.NotNil(t, claims)
		w.WriteHeader(http.StatusOK)
	})
}

func authedRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestMiddleware_ValidToken(t *testing.T) {
	tm := NewTokenManager(testSecret, 15*time.Minute)
	users := &fakeUserFetcher{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return &models.User{ID: id, Role: "user"}, nil
		},
	}
	handler := Middleware(tm, users)(protectedEcho(t))

	token, err := tm.GenerateAccessToken("user-1", "user")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(token))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_RejectsMissingOrMalformedHeader(t *testing.T) {
	tm := NewTokenManager(testSecret, 15*time.Minute)
	handler := Middleware(tm, &fakeUserFetcher{})(protectedEcho(t))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwdw==")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_RejectsBadToken(t *testing.T) {
	tm := NewTokenManager(testSecret, 15*time.Minute)
	handler := Middleware(tm, &fakeUserFetcher{})(protectedEcho(t))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest("not-a-real-token"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_RejectsDeletedUser(t *testing.T) {
	tm := NewTokenManager(testSecret, 15*time.Minute)
	handler := Middleware(tm, &fakeUserFetcher{})(protectedEcho(t))

	token, err := tm.GenerateAccessToken("user-gone", "user")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(token))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_PasswordChangeCutsOffOldTokens(t *testing.T) {
	tm := NewTokenManager(testSecret, 15*time.Minute)

	var changedAt *time.Time
	users := &fakeUserFetcher{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return &models.User{ID: id, Role: "user", PasswordChangedAt: changedAt}, nil
		},
	}
	handler := Middleware(tm, users)(protectedEcho(t))

	token, err := tm.GenerateAccessToken("user-1", "user")
	require.NoError(t, err)

	// Usable before the change
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(token))
	require.Equal(t, http.StatusOK, rec.Code)

	// Still well-signed and unexpired, but dead the moment the password changes
	now := time.Now().Add(1 * time.Second)
	changedAt = &now
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(token))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	tm := NewTokenManager(testSecret, 15*time.Minute)
	role := "user"
	users := &fakeUserFetcher{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return &models.User{ID: id, Role: role}, nil
		},
	}
	handler := Middleware(tm, users)(RequireRole(users, "admin")(protectedEcho(t)))

	token, err := tm.GenerateAccessToken("user-1", "user")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(token))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Promotion in the database takes effect on the next request: the role
	// check never trusts the role claim baked into the token
	role = "admin"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(token))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireVerifiedEmail(t *testing.T) {
	tm := NewTokenManager(testSecret, 15*time.Minute)
	verified := false
	users := &fakeUserFetcher{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return &models.User{ID: id, Role: "user", EmailVerified: verified}, nil
		},
	}
	handler := Middleware(tm, users)(RequireVerifiedEmail(users)(protectedEcho(t)))

	token, err := tm.GenerateAccessToken("user-1", "user")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(token))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	verified = true
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(token))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetUserFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, GetUserFromContext(req))
}
