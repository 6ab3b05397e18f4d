package models

import "time"

// TwoFactor holds a user's second-factor state. The secret is written when
// setup begins but the factor only gates login once Enabled is true. Backup
// codes are stored as SHA-256 hashes of the codes still available for use;
// consuming a code removes its hash.
type TwoFactor struct {
	Enabled     bool     `json:"enabled"`
	Secret      string   `json:"-"` // base32, privileged view only
	BackupCodes []string `json:"-"` // unused code hashes, privileged view only
}

type User struct {
	ID                string     `json:"id"`
	Username          string     `json:"username"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"-"`
	EmailVerified     bool       `json:"is_email_verified"`
	Role              string     `json:"role"` // "user" or "admin"
	TwoFactor         TwoFactor  `json:"-"`
	Bio               string     `json:"bio,omitempty"`
	Avatar            string     `json:"avatar,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	LastLoginAt       *time.Time `json:"last_login,omitempty"`
	PasswordChangedAt *time.Time `json:"-"`
}

// PublicUser is the projection of a user safe to hand to any caller: no
// password hash, no two-factor secret, no backup codes. Operations that need
// the secrets work with the full User and must fetch it through the
// privileged repository methods.
type PublicUser struct {
	ID               string     `json:"id"`
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	EmailVerified    bool       `json:"is_email_verified"`
	Role             string     `json:"role"`
	TwoFactorEnabled bool       `json:"two_factor_enabled"`
	Bio              string     `json:"bio,omitempty"`
	Avatar           string     `json:"avatar,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	LastLoginAt      *time.Time `json:"last_login,omitempty"`
}

// Public returns the unprivileged projection of the user.
func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		EmailVerified:    u.EmailVerified,
		Role:             u.Role,
		TwoFactorEnabled: u.TwoFactor.Enabled,
		Bio:              u.Bio,
		Avatar:           u.Avatar,
		CreatedAt:        u.CreatedAt,
		LastLoginAt:      u.LastLoginAt,
	}
}

// ChangedPasswordAfter reports whether the user's password was changed after
// the given instant. Access credentials issued before a password change are
// no longer trusted.
func (u *User) ChangedPasswordAfter(t time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return t.Before(*u.PasswordChangedAt)
}
