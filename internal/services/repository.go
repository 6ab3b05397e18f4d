package services

import (
	"context"
	"time"

	"github.com/quicknotes/quicknotes/internal/models"
	"github.com/quicknotes/quicknotes/internal/repositories"
)

// Repository interfaces are declared here, at the consumer, so services can
// be tested against the mocks in test_helpers.go. The concrete
// implementations live in internal/repositories.

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdateProfile(ctx context.Context, id string, username, bio, avatar *string) (*models.User, error)
	SetEmailVerified(ctx context.Context, id string) error
	SetLastLogin(ctx context.Context, id string, at time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error
	SetTwoFactorSecret(ctx context.Context, id, secret string) error
	EnableTwoFactor(ctx context.Context, id string, backupCodeHashes []string) error
	DisableTwoFactor(ctx context.Context, id string) error
	ConsumeBackupCode(ctx context.Context, id, codeHash string) (bool, error)
	Delete(ctx context.Context, id string) error
}

type TokenRepository interface {
	Create(ctx context.Context, token *models.Token) error
	GetByValue(ctx context.Context, value string, kind models.TokenKind) (*models.Token, error)
	CompareAndSetRevoked(ctx context.Context, value string) (bool, error)
	Revoke(ctx context.Context, value string) error
	RevokeAllForUser(ctx context.Context, userID string, kind models.TokenKind) (int64, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type NoteRepository interface {
	Create(ctx context.Context, note *models.Note) (*models.Note, error)
	GetByID(ctx context.Context, id string) (*models.Note, error)
	ListForUser(ctx context.Context, userID string, filter repositories.NoteFilter) ([]*models.Note, error)
	Update(ctx context.Context, note *models.Note) (*models.Note, error)
	Delete(ctx context.Context, id string) error
	Share(ctx context.Context, noteID, userID string, permission models.SharePermission) error
	Unshare(ctx context.Context, noteID, userID string) error
}
