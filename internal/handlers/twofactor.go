package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/quicknotes/quicknotes/internal/auth"
	"github.com/quicknotes/quicknotes/internal/models"
	"github.com/quicknotes/quicknotes/internal/services"
	pkghttp "github.com/quicknotes/quicknotes/pkg/http"
)

// TwoFactorServiceInterface defines the interface for second-factor enrollment
type TwoFactorServiceInterface interface {
	Setup(ctx context.Context, userID string) (*auth.SetupMaterial, error)
	Enable(ctx context.Context, userID, code string) (*services.EnableResult, error)
	Disable(ctx context.Context, userID, password string) error
}

// TwoFactorHandler handles second-factor enrollment HTTP requests
type TwoFactorHandler struct {
	service TwoFactorServiceInterface
}

// NewTwoFactorHandler creates a new TwoFactorHandler
func NewTwoFactorHandler(service TwoFactorServiceInterface) *TwoFactorHandler {
	return &TwoFactorHandler{service: service}
}

// EnableTwoFactorRequest carries the proof-of-possession code
type EnableTwoFactorRequest struct {
	Code string `json:"code" validate:"required,len=6"`
}

// DisableTwoFactorRequest carries the password confirmation
type DisableTwoFactorRequest struct {
	Password string `json:"password" validate:"required"`
}

// Setup begins enrollment: generates a pending secret and returns the QR code
func (h *TwoFactorHandler) Setup(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	material, err := h.service.Setup(r.Context(), claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "Two-factor authentication is already enabled")
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "unauthorized")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, material)
}

// Enable completes enrollment and returns the backup codes
func (h *TwoFactorHandler) Enable(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req EnableTwoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.Enable(r.Context(), claims.UserID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidSecondFactor):
			pkghttp.WriteUnauthorized(w, "Invalid verification code")
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "Two-factor authentication is already enabled")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Run setup before enabling")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// Disable turns the second factor off after a password confirmation
func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req DisableTwoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.Disable(r.Context(), claims.UserID, req.Password); err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteUnauthorized(w, "Authentication failed")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Two-factor authentication is not enabled")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Two-factor authentication disabled"})
}
