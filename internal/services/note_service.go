package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/quicknotes/quicknotes/internal/models"
	"github.com/quicknotes/quicknotes/internal/repositories"
)

// NoteService handles note CRUD and sharing with per-user access checks
type NoteService struct {
	notes  NoteRepository
	users  UserRepository
	logger *slog.Logger
}

// NewNoteService creates a new NoteService
func NewNoteService(notes NoteRepository, users UserRepository, logger *slog.Logger) *NoteService {
	return &NoteService{
		notes:  notes,
		users:  users,
		logger: logger,
	}
}

// NoteInput is the writable surface of a note
type NoteInput struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Category   string   `json:"category"`
	Tags       []string `json:"tags"`
	Color      string   `json:"color"`
	IsPinned   bool     `json:"is_pinned"`
	IsArchived bool     `json:"is_archived"`
}

func (s *NoteService) Create(ctx context.Context, userID string, input NoteInput) (*models.Note, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, models.ErrBadRequest
	}

	note, err := s.notes.Create(ctx, &models.Note{
		UserID:     userID,
		Title:      input.Title,
		Content:    input.Content,
		Category:   input.Category,
		Tags:       input.Tags,
		Color:      input.Color,
		IsPinned:   input.IsPinned,
		IsArchived: input.IsArchived,
	})
	if err != nil {
		s.logger.Error("failed to create note",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return note, nil
}

// Get returns a note if the caller owns it or it is shared with them
func (s *NoteService) Get(ctx context.Context, userID, noteID string) (*models.Note, error) {
	note, err := s.fetch(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if !note.CanView(userID) {
		// Indistinguishable from a note that does not exist
		return nil, models.ErrNotFound
	}
	return note, nil
}

func (s *NoteService) List(ctx context.Context, userID string, filter repositories.NoteFilter) ([]*models.Note, error) {
	notes, err := s.notes.ListForUser(ctx, userID, filter)
	if err != nil {
		s.logger.Error("failed to list notes",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return notes, nil
}

func (s *NoteService) Update(ctx context.Context, userID, noteID string, input NoteInput) (*models.Note, error) {
	note, err := s.fetch(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if !note.CanView(userID) {
		return nil, models.ErrNotFound
	}
	if !note.CanEdit(userID) {
		return nil, models.ErrForbidden
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, models.ErrBadRequest
	}

	note.Title = input.Title
	note.Content = input.Content
	note.Category = input.Category
	note.Tags = input.Tags
	note.Color = input.Color
	note.IsPinned = input.IsPinned
	note.IsArchived = input.IsArchived

	updated, err := s.notes.Update(ctx, note)
	if err != nil {
		s.logger.Error("failed to update note",
			slog.String("note_id", noteID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return updated, nil
}

// Delete removes a note. Only the owner may delete; a write share is not
// enough.
func (s *NoteService) Delete(ctx context.Context, userID, noteID string) error {
	note, err := s.fetch(ctx, noteID)
	if err != nil {
		return err
	}
	if !note.CanView(userID) {
		return models.ErrNotFound
	}
	if note.UserID != userID {
		return models.ErrForbidden
	}

	if err := s.notes.Delete(ctx, noteID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to delete note",
			slog.String("note_id", noteID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	return nil
}

// Share grants another user access to a note. Only the owner can share.
// The target is looked up by email.
func (s *NoteService) Share(ctx context.Context, ownerID, noteID, targetEmail string, permission models.SharePermission) error {
	if permission != models.ShareRead && permission != models.ShareWrite {
		return models.ErrBadRequest
	}

	note, err := s.fetch(ctx, noteID)
	if err != nil {
		return err
	}
	if !note.CanView(ownerID) {
		return models.ErrNotFound
	}
	if note.UserID != ownerID {
		return models.ErrForbidden
	}

	target, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(targetEmail)))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to look up share target", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if target.ID == ownerID {
		return models.ErrBadRequest
	}

	if err := s.notes.Share(ctx, noteID, target.ID, permission); err != nil {
		s.logger.Error("failed to share note",
			slog.String("note_id", noteID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	return nil
}

// Unshare revokes a user's access to a note. Only the owner can unshare.
func (s *NoteService) Unshare(ctx context.Context, ownerID, noteID, targetUserID string) error {
	note, err := s.fetch(ctx, noteID)
	if err != nil {
		return err
	}
	if !note.CanView(ownerID) {
		return models.ErrNotFound
	}
	if note.UserID != ownerID {
		return models.ErrForbidden
	}

	if err := s.notes.Unshare(ctx, noteID, targetUserID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to unshare note",
			slog.String("note_id", noteID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	return nil
}

func (s *NoteService) fetch(ctx context.Context, noteID string) (*models.Note, error) {
	note, err := s.notes.GetByID(ctx, noteID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get note",
			slog.String("note_id", noteID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return note, nil
}
