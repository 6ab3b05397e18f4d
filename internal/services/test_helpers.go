package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/quicknotes/quicknotes/internal/models"
	"github.com/quicknotes/quicknotes/internal/repositories"
	pkglogger "github.com/quicknotes/quicknotes/pkg/logger"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAudit() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(newTestLogger())
}

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc            func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc         func(ctx context.Context, email string) (*models.User, error)
	GetByUsernameFunc      func(ctx context.Context, username string) (*models.User, error)
	ListFunc               func(ctx context.Context, limit, offset int) ([]*models.User, error)
	CreateFunc             func(ctx context.Context, user *models.User) (*models.User, error)
	UpdateProfileFunc      func(ctx context.Context, id string, username, bio, avatar *string) (*models.User, error)
	SetEmailVerifiedFunc   func(ctx context.Context, id string) error
	SetLastLoginFunc       func(ctx context.Context, id string, at time.Time) error
	UpdatePasswordFunc     func(ctx context.Context, id, passwordHash string, changedAt time.Time) error
	SetTwoFactorSecretFunc func(ctx context.Context, id, secret string) error
	EnableTwoFactorFunc    func(ctx context.Context, id string, backupCodeHashes []string) error
	DisableTwoFactorFunc   func(ctx context.Context, id string) error
	ConsumeBackupCodeFunc  func(ctx context.Context, id, codeHash string) (bool, error)
	DeleteFunc             func(ctx context.Context, id string) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.User{}, nil
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) UpdateProfile(ctx context.Context, id string, username, bio, avatar *string) (*models.User, error) {
	if m.UpdateProfileFunc != nil {
		return m.UpdateProfileFunc(ctx, id, username, bio, avatar)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) SetEmailVerified(ctx context.Context, id string) error {
	if m.SetEmailVerifiedFunc != nil {
		return m.SetEmailVerifiedFunc(ctx, id)
	}
	return nil
}

func (m *MockUserRepository) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	if m.SetLastLoginFunc != nil {
		return m.SetLastLoginFunc(ctx, id, at)
	}
	return nil
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash, changedAt)
	}
	return nil
}

func (m *MockUserRepository) SetTwoFactorSecret(ctx context.Context, id, secret string) error {
	if m.SetTwoFactorSecretFunc != nil {
		return m.SetTwoFactorSecretFunc(ctx, id, secret)
	}
	return nil
}

func (m *MockUserRepository) EnableTwoFactor(ctx context.Context, id string, backupCodeHashes []string) error {
	if m.EnableTwoFactorFunc != nil {
		return m.EnableTwoFactorFunc(ctx, id, backupCodeHashes)
	}
	return nil
}

func (m *MockUserRepository) DisableTwoFactor(ctx context.Context, id string) error {
	if m.DisableTwoFactorFunc != nil {
		return m.DisableTwoFactorFunc(ctx, id)
	}
	return nil
}

func (m *MockUserRepository) ConsumeBackupCode(ctx context.Context, id, codeHash string) (bool, error) {
	if m.ConsumeBackupCodeFunc != nil {
		return m.ConsumeBackupCodeFunc(ctx, id, codeHash)
	}
	return false, nil
}

func (m *MockUserRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

// FakeTokenStore is an in-memory TokenRepository with the same atomicity
// guarantees as the real one. Used to exercise concurrent redemption without
// a database.
type FakeTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*models.Token
}

func NewFakeTokenStore() *FakeTokenStore {
	return &FakeTokenStore{tokens: make(map[string]*models.Token)}
}

func (f *FakeTokenStore) Create(ctx context.Context, token *models.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.tokens[token.Value]; exists {
		return models.ErrConflict
	}
	token.CreatedAt = time.Now()
	copied := *token
	f.tokens[token.Value] = &copied
	return nil
}

func (f *FakeTokenStore) GetByValue(ctx context.Context, value string, kind models.TokenKind) (*models.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	token, ok := f.tokens[value]
	if !ok || token.Kind != kind {
		return nil, models.ErrNotFound
	}
	copied := *token
	return &copied, nil
}

func (f *FakeTokenStore) CompareAndSetRevoked(ctx context.Context, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	token, ok := f.tokens[value]
	if !ok || token.Revoked {
		return false, nil
	}
	token.Revoked = true
	return true, nil
}

func (f *FakeTokenStore) Revoke(ctx context.Context, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if token, ok := f.tokens[value]; ok {
		token.Revoked = true
	}
	return nil
}

func (f *FakeTokenStore) RevokeAllForUser(ctx context.Context, userID string, kind models.TokenKind) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var n int64
	for _, token := range f.tokens {
		if token.UserID == userID && token.Kind == kind && !token.Revoked {
			token.Revoked = true
			n++
		}
	}
	return n, nil
}

func (f *FakeTokenStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var n int64
	for value, token := range f.tokens {
		if token.ExpiresAt.Before(cutoff) {
			delete(f.tokens, value)
			n++
		}
	}
	return n, nil
}

// Len reports how many token records the store holds
func (f *FakeTokenStore) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tokens)
}

// MockNoteRepository implements NoteRepository for testing
type MockNoteRepository struct {
	CreateFunc      func(ctx context.Context, note *models.Note) (*models.Note, error)
	GetByIDFunc     func(ctx context.Context, id string) (*models.Note, error)
	ListForUserFunc func(ctx context.Context, userID string, filter repositories.NoteFilter) ([]*models.Note, error)
	UpdateFunc      func(ctx context.Context, note *models.Note) (*models.Note, error)
	DeleteFunc      func(ctx context.Context, id string) error
	ShareFunc       func(ctx context.Context, noteID, userID string, permission models.SharePermission) error
	UnshareFunc     func(ctx context.Context, noteID, userID string) error
}

func (m *MockNoteRepository) Create(ctx context.Context, note *models.Note) (*models.Note, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, note)
	}
	return nil, models.ErrInternalServer
}

func (m *MockNoteRepository) GetByID(ctx context.Context, id string) (*models.Note, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockNoteRepository) ListForUser(ctx context.Context, userID string, filter repositories.NoteFilter) ([]*models.Note, error) {
	if m.ListForUserFunc != nil {
		return m.ListForUserFunc(ctx, userID, filter)
	}
	return []*models.Note{}, nil
}

func (m *MockNoteRepository) Update(ctx context.Context, note *models.Note) (*models.Note, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, note)
	}
	return nil, models.ErrInternalServer
}

func (m *MockNoteRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

func (m *MockNoteRepository) Share(ctx context.Context, noteID, userID string, permission models.SharePermission) error {
	if m.ShareFunc != nil {
		return m.ShareFunc(ctx, noteID, userID, permission)
	}
	return nil
}

func (m *MockNoteRepository) Unshare(ctx context.Context, noteID, userID string) error {
	if m.UnshareFunc != nil {
		return m.UnshareFunc(ctx, noteID, userID)
	}
	return nil
}

// MockEmailSender implements EmailSender for testing
type MockEmailSender struct {
	mu            sync.Mutex
	Verifications []string // token values passed to SendVerificationEmail
	Resets        []string // token values passed to SendPasswordResetEmail
	FailWith      error
}

func (m *MockEmailSender) SendVerificationEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.Verifications = append(m.Verifications, token)
	return nil
}

func (m *MockEmailSender) SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.Resets = append(m.Resets, token)
	return nil
}

// LastReset returns the most recent reset token handed to the sender
func (m *MockEmailSender) LastReset() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Resets) == 0 {
		return ""
	}
	return m.Resets[len(m.Resets)-1]
}

// LastVerification returns the most recent verification token handed to the sender
func (m *MockEmailSender) LastVerification() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Verifications) == 0 {
		return ""
	}
	return m.Verifications[len(m.Verifications)-1]
}
