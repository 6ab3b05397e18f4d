package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Authentication errors
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidSecondFactor  = errors.New("invalid two-factor authentication code")
	ErrDuplicateIdentity    = errors.New("email or username already in use")
	ErrEmailAlreadyVerified = errors.New("email is already verified")

	// Token redemption errors. The HTTP boundary collapses all three into a
	// single generic message so callers cannot probe token existence.
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExpired  = errors.New("token has expired")
	ErrTokenRevoked  = errors.New("token has been revoked")

	ErrNotificationFailure = errors.New("notification delivery failure")
)
