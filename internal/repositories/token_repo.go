package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quicknotes/quicknotes/internal/database"
	"github.com/quicknotes/quicknotes/internal/models"
)

// TokenRepository is the durable ledger of issued opaque tokens. The token
// value is the primary key; every issued value maps to exactly one record.
type TokenRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRepository(db *database.DB) *TokenRepository {
	return &TokenRepository{pool: db.Pool}
}

func (r *TokenRepository) Create(ctx context.Context, token *models.Token) error {
	token.CreatedAt = time.Now()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO tokens (token, user_id, kind, expires_at, revoked, created_at)
		 VALUES ($1, $2, $3, $4, false, $5)`,
		token.Value, token.UserID, token.Kind, token.ExpiresAt, token.CreatedAt)
	if err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

// GetByValue looks a token up by its random value and kind. Kind participates
// in the lookup so a stolen verification token can never be presented where a
// refresh token is expected.
func (r *TokenRepository) GetByValue(ctx context.Context, value string, kind models.TokenKind) (*models.Token, error) {
	var token models.Token

	err := r.pool.QueryRow(ctx,
		`SELECT token, user_id, kind, expires_at, revoked, created_at
		 FROM tokens WHERE token = $1 AND kind = $2`,
		value, kind).Scan(
		&token.Value, &token.UserID, &token.Kind,
		&token.ExpiresAt, &token.Revoked, &token.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &token, nil
}

// CompareAndSetRevoked flips revoked from false to true in one atomic
// statement. Returns true only for the caller that performed the flip: when
// two requests race to consume the same single-use token, exactly one sees
// true and the other false.
func (r *TokenRepository) CompareAndSetRevoked(ctx context.Context, value string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tokens SET revoked = true WHERE token = $1 AND revoked = false`,
		value)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return tag.RowsAffected() == 1, nil
}

// Revoke marks a token revoked. Revoking an already-revoked or missing token
// is not an error; the end state is the same.
func (r *TokenRepository) Revoke(ctx context.Context, value string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE tokens SET revoked = true WHERE token = $1`, value)
	if err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

// RevokeAllForUser revokes every live token of the given kind for a user.
// Returns the number of tokens revoked.
func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID string, kind models.TokenKind) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tokens SET revoked = true WHERE user_id = $1 AND kind = $2 AND revoked = false`,
		userID, kind)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpiredBefore removes token records whose expiry is older than the
// cutoff. Purely hygiene: an expired record is already unredeemable, deletion
// just keeps the table from growing without bound.
func (r *TokenRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountForUser reports live (unrevoked, unexpired) tokens of a kind for a
// user.
func (r *TokenRepository) CountForUser(ctx context.Context, userID string, kind models.TokenKind) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM tokens WHERE user_id = $1 AND kind = $2 AND revoked = false AND expires_at > now()`,
		userID, kind).Scan(&count)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}
