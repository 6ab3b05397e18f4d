package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/quicknotes/quicknotes/internal/auth"
	"github.com/quicknotes/quicknotes/internal/models"
	"github.com/quicknotes/quicknotes/internal/repositories"
	"github.com/quicknotes/quicknotes/internal/services"
	pkghttp "github.com/quicknotes/quicknotes/pkg/http"
)

// NoteServiceInterface defines the interface for note business logic
type NoteServiceInterface interface {
	Create(ctx context.Context, userID string, input services.NoteInput) (*models.Note, error)
	Get(ctx context.Context, userID, noteID string) (*models.Note, error)
	List(ctx context.Context, userID string, filter repositories.NoteFilter) ([]*models.Note, error)
	Update(ctx context.Context, userID, noteID string, input services.NoteInput) (*models.Note, error)
	Delete(ctx context.Context, userID, noteID string) error
	Share(ctx context.Context, ownerID, noteID, targetEmail string, permission models.SharePermission) error
	Unshare(ctx context.Context, ownerID, noteID, targetUserID string) error
}

// NoteHandler handles note HTTP requests
type NoteHandler struct {
	service NoteServiceInterface
}

// NewNoteHandler creates a new NoteHandler
func NewNoteHandler(service NoteServiceInterface) *NoteHandler {
	return &NoteHandler{service: service}
}

// NoteRequest represents the writable fields of a note
type NoteRequest struct {
	Title      string   `json:"title" validate:"required,max=200"`
	Content    string   `json:"content"`
	Category   string   `json:"category" validate:"max=50"`
	Tags       []string `json:"tags"`
	Color      string   `json:"color" validate:"max=20"`
	IsPinned   bool     `json:"is_pinned"`
	IsArchived bool     `json:"is_archived"`
}

// ShareNoteRequest represents the request body for sharing a note
type ShareNoteRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Permission string `json:"permission" validate:"required,oneof=read write"`
}

func (req NoteRequest) toInput() services.NoteInput {
	return services.NoteInput{
		Title:      req.Title,
		Content:    req.Content,
		Category:   req.Category,
		Tags:       req.Tags,
		Color:      req.Color,
		IsPinned:   req.IsPinned,
		IsArchived: req.IsArchived,
	}
}

func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req NoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	note, err := h.service.Create(r.Context(), claims.UserID, req.toInput())
	if err != nil {
		writeNoteError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, note)
}

func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	note, err := h.service.Get(r.Context(), claims.UserID, chi.URLParam(r, "id"))
	if err != nil {
		writeNoteError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, note)
}

func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	q := r.URL.Query()
	filter := repositories.NoteFilter{
		Category: q.Get("category"),
		Tag:      q.Get("tag"),
		Search:   q.Get("search"),
	}
	if v := q.Get("archived"); v != "" {
		archived := v == "true"
		filter.Archived = &archived
	}
	if v := q.Get("pinned"); v != "" {
		pinned := v == "true"
		filter.Pinned = &pinned
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		filter.Offset = v
	}

	notes, err := h.service.List(r.Context(), claims.UserID, filter)
	if err != nil {
		writeNoteError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, notes)
}

func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req NoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	note, err := h.service.Update(r.Context(), claims.UserID, chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		writeNoteError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, note)
}

func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.service.Delete(r.Context(), claims.UserID, chi.URLParam(r, "id")); err != nil {
		writeNoteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *NoteHandler) Share(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req ShareNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.service.Share(r.Context(), claims.UserID, chi.URLParam(r, "id"),
		req.Email, models.SharePermission(req.Permission))
	if err != nil {
		writeNoteError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Note shared"})
}

func (h *NoteHandler) Unshare(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	err := h.service.Unshare(r.Context(), claims.UserID, chi.URLParam(r, "id"), chi.URLParam(r, "userID"))
	if err != nil {
		writeNoteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeNoteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Note not found")
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, "Insufficient permissions")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Invalid note data")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
