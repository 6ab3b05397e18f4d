package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/quicknotes/quicknotes/internal/database"
	"github.com/quicknotes/quicknotes/internal/models"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{pool: db.Pool}
}

const userColumns = `id, username, email, password_hash, email_verified, role,
	two_factor_enabled, two_factor_secret, backup_codes,
	bio, avatar, created_at, updated_at, last_login_at, password_changed_at`

// rowScanner interface for scanning user rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanUserRow handles nullable fields and populates a User model from a database row
func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var secret, bio, avatar *string
	var backupCodes pq.StringArray
	var lastLoginAt, passwordChangedAt *time.Time

	err := scanner.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.EmailVerified, &user.Role,
		&user.TwoFactor.Enabled, &secret, &backupCodes,
		&bio, &avatar,
		&user.CreatedAt, &user.UpdatedAt,
		&lastLoginAt, &passwordChangedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if secret != nil {
		user.TwoFactor.Secret = *secret
	}
	user.TwoFactor.BackupCodes = []string(backupCodes)
	if bio != nil {
		user.Bio = *bio
	}
	if avatar != nil {
		user.Avatar = *avatar
	}
	user.LastLoginAt = lastLoginAt
	user.PasswordChangedAt = passwordChangedAt

	return &user, nil
}

// scanUserRows iterates through rows and scans each into User models
func scanUserRows(rows pgx.Rows) ([]*models.User, error) {
	defer rows.Close()

	users := make([]*models.User, 0)

	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return users, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUserRow(r.pool.QueryRow(ctx, query, email))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, username))
}

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}

	return scanUserRows(rows)
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if user.Role == "" {
		user.Role = "user"
	}

	query := `
		INSERT INTO users (id, username, email, password_hash, email_verified, role, backup_codes, bio, avatar, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query,
		user.ID, user.Username, user.Email, user.PasswordHash,
		user.EmailVerified, user.Role, pq.Array([]string{}),
		nullable(user.Bio), nullable(user.Avatar),
		user.CreatedAt, user.UpdatedAt,
	))
}

func (r *UserRepository) UpdateProfile(ctx context.Context, id string, username, bio, avatar *string) (*models.User, error) {
	query := `
		UPDATE users
		SET username = COALESCE($2, username),
		    bio = COALESCE($3, bio),
		    avatar = COALESCE($4, avatar),
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query, id, username, bio, avatar))
}

func (r *UserRepository) SetEmailVerified(ctx context.Context, id string) error {
	return r.exec(ctx,
		`UPDATE users SET email_verified = true, updated_at = now() WHERE id = $1`, id)
}

func (r *UserRepository) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx,
		`UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at)
}

// UpdatePassword replaces the password hash and records the change instant.
// The timestamp is the cutoff for outstanding access tokens.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	return r.exec(ctx,
		`UPDATE users SET password_hash = $2, password_changed_at = $3, updated_at = now() WHERE id = $1`,
		id, passwordHash, changedAt)
}

// SetTwoFactorSecret stores a pending secret. The factor does not gate login
// until EnableTwoFactor runs.
func (r *UserRepository) SetTwoFactorSecret(ctx context.Context, id, secret string) error {
	return r.exec(ctx,
		`UPDATE users SET two_factor_secret = $2, updated_at = now() WHERE id = $1`, id, secret)
}

// EnableTwoFactor turns the factor on and installs the backup code digests
func (r *UserRepository) EnableTwoFactor(ctx context.Context, id string, backupCodeHashes []string) error {
	return r.exec(ctx,
		`UPDATE users SET two_factor_enabled = true, backup_codes = $2, updated_at = now() WHERE id = $1`,
		id, pq.Array(backupCodeHashes))
}

// DisableTwoFactor clears the factor entirely, secret and codes included
func (r *UserRepository) DisableTwoFactor(ctx context.Context, id string) error {
	return r.exec(ctx,
		`UPDATE users SET two_factor_enabled = false, two_factor_secret = NULL, backup_codes = '{}', updated_at = now() WHERE id = $1`,
		id)
}

// ConsumeBackupCode atomically removes a backup code digest if it is still
// present. Returns false when the digest was absent, which means the code was
// already spent or never existed; two concurrent logins with the same code
// cannot both win.
func (r *UserRepository) ConsumeBackupCode(ctx context.Context, id, codeHash string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET backup_codes = array_remove(backup_codes, $2), updated_at = now()
		 WHERE id = $1 AND $2 = ANY(backup_codes)`,
		id, codeHash)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *UserRepository) exec(ctx context.Context, query string, args ...interface{}) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
