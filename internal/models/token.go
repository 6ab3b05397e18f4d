package models

import "time"

// TokenKind identifies what a stored token is for. A token's kind is fixed at
// creation and participates in every lookup, so a reset token can never be
// redeemed as a refresh token.
type TokenKind string

const (
	TokenKindRefresh      TokenKind = "refresh"
	TokenKindReset        TokenKind = "reset"
	TokenKindVerification TokenKind = "verification"
)

// Valid reports whether k is one of the known token kinds.
func (k TokenKind) Valid() bool {
	switch k {
	case TokenKindRefresh, TokenKindReset, TokenKindVerification:
		return true
	}
	return false
}

// SingleUse reports whether tokens of this kind are consumed on redemption.
// Refresh tokens back long-lived sessions and stay usable until they expire
// or are explicitly revoked.
func (k TokenKind) SingleUse() bool {
	return k == TokenKindReset || k == TokenKindVerification
}

// Token is a durable record of an issued opaque token. The random value is
// the lookup key; there is exactly one record per issued value.
type Token struct {
	Value     string    `json:"-"` // never serialized
	UserID    string    `json:"user_id"`
	Kind      TokenKind `json:"kind"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired checks if the token is past its expiry timestamp.
func (t *Token) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// Usable reports whether the token can still be redeemed.
func (t *Token) Usable() bool {
	return !t.Revoked && !t.IsExpired()
}
