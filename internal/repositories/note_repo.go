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

type NoteRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewNoteRepository(db *database.DB) *NoteRepository {
	return &NoteRepository{db: db, pool: db.Pool}
}

// NoteFilter narrows ListForUser results. Zero values mean "no filter".
type NoteFilter struct {
	Category string
	Tag      string
	Archived *bool
	Pinned   *bool
	Search   string
	Limit    int
	Offset   int
}

func scanNoteRow(scanner rowScanner) (*models.Note, error) {
	var note models.Note
	var category, color *string
	var tags pq.StringArray

	err := scanner.Scan(
		&note.ID, &note.UserID, &note.Title, &note.Content,
		&category, &tags, &color,
		&note.IsPinned, &note.IsArchived,
		&note.CreatedAt, &note.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if category != nil {
		note.Category = *category
	}
	if color != nil {
		note.Color = *color
	}
	note.Tags = []string(tags)

	return &note, nil
}

const noteColumns = `id, user_id, title, content, category, tags, color,
	is_pinned, is_archived, created_at, updated_at`

func (r *NoteRepository) Create(ctx context.Context, note *models.Note) (*models.Note, error) {
	note.ID = uuid.New().String()

	now := time.Now()
	note.CreatedAt = now
	note.UpdatedAt = now

	if note.Tags == nil {
		note.Tags = []string{}
	}

	query := `
		INSERT INTO notes (id, user_id, title, content, category, tags, color, is_pinned, is_archived, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + noteColumns

	created, err := scanNoteRow(r.pool.QueryRow(ctx, query,
		note.ID, note.UserID, note.Title, note.Content,
		nullable(note.Category), pq.Array(note.Tags), nullable(note.Color),
		note.IsPinned, note.IsArchived,
		note.CreatedAt, note.UpdatedAt,
	))
	if err != nil {
		return nil, err
	}

	return created, nil
}

// GetByID returns the note with its share list populated
func (r *NoteRepository) GetByID(ctx context.Context, id string) (*models.Note, error) {
	note, err := scanNoteRow(r.pool.QueryRow(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}

	shares, err := r.sharesFor(ctx, id)
	if err != nil {
		return nil, err
	}
	note.SharedWith = shares

	return note, nil
}

// ListForUser returns notes the user owns or that are shared with them
func (r *NoteRepository) ListForUser(ctx context.Context, userID string, filter NoteFilter) ([]*models.Note, error) {
	query := `
		SELECT DISTINCT n.id, n.user_id, n.title, n.content, n.category, n.tags, n.color,
			n.is_pinned, n.is_archived, n.created_at, n.updated_at
		FROM notes n
		LEFT JOIN note_shares s ON s.note_id = n.id
		WHERE (n.user_id = $1 OR s.user_id = $1)`

	args := []interface{}{userID}
	idx := 2

	if filter.Category != "" {
		query += fmt.Sprintf(" AND n.category = $%d", idx)
		args = append(args, filter.Category)
		idx++
	}
	if filter.Tag != "" {
		query += fmt.Sprintf(" AND $%d = ANY(n.tags)", idx)
		args = append(args, filter.Tag)
		idx++
	}
	if filter.Archived != nil {
		query += fmt.Sprintf(" AND n.is_archived = $%d", idx)
		args = append(args, *filter.Archived)
		idx++
	}
	if filter.Pinned != nil {
		query += fmt.Sprintf(" AND n.is_pinned = $%d", idx)
		args = append(args, *filter.Pinned)
		idx++
	}
	if filter.Search != "" {
		query += fmt.Sprintf(" AND (n.title ILIKE $%d OR n.content ILIKE $%d)", idx, idx)
		args = append(args, "%"+filter.Search+"%")
		idx++
	}

	query += " ORDER BY n.is_pinned DESC, n.updated_at DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}

	return scanNoteRows(rows)
}

func scanNoteRows(rows pgx.Rows) ([]*models.Note, error) {
	defer rows.Close()

	notes := make([]*models.Note, 0)

	for rows.Next() {
		note, err := scanNoteRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, note)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return notes, nil
}

func (r *NoteRepository) Update(ctx context.Context, note *models.Note) (*models.Note, error) {
	query := `
		UPDATE notes
		SET title = $2, content = $3, category = $4, tags = $5, color = $6,
		    is_pinned = $7, is_archived = $8, updated_at = now()
		WHERE id = $1
		RETURNING ` + noteColumns

	if note.Tags == nil {
		note.Tags = []string{}
	}

	updated, err := scanNoteRow(r.pool.QueryRow(ctx, query,
		note.ID, note.Title, note.Content,
		nullable(note.Category), pq.Array(note.Tags), nullable(note.Color),
		note.IsPinned, note.IsArchived,
	))
	if err != nil {
		return nil, err
	}

	updated.SharedWith = note.SharedWith
	return updated, nil
}

func (r *NoteRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM notes WHERE id = $1`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Share grants or updates a user's access to a note. The grant and the
// recency bump on the note commit together: a share also surfaces the note in
// updated_at-ordered lists.
func (r *NoteRepository) Share(ctx context.Context, noteID, userID string, permission models.SharePermission) error {
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO note_shares (note_id, user_id, permission)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (note_id, user_id) DO UPDATE SET permission = EXCLUDED.permission`,
			noteID, userID, permission); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `UPDATE notes SET updated_at = now() WHERE id = $1`, noteID)
		return err
	})
	if err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

func (r *NoteRepository) Unshare(ctx context.Context, noteID, userID string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM note_shares WHERE note_id = $1 AND user_id = $2`,
		noteID, userID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *NoteRepository) sharesFor(ctx context.Context, noteID string) ([]models.NoteShare, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, permission FROM note_shares WHERE note_id = $1`, noteID)
	if err != nil {
		return nil, fmt.Errorf("failed to query note shares: %w", err)
	}
	defer rows.Close()

	shares := make([]models.NoteShare, 0)
	for rows.Next() {
		var share models.NoteShare
		if err := rows.Scan(&share.UserID, &share.Permission); err != nil {
			return nil, fmt.Errorf("failed to scan note share: %w", err)
		}
		shares = append(shares, share)
	}

	return shares, rows.Err()
}
