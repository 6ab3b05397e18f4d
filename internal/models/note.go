package models

import "time"

// SharePermission is the access level granted on a shared note.
type SharePermission string

const (
	ShareRead  SharePermission = "read"
	ShareWrite SharePermission = "write"
)

type Note struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	Title      string      `json:"title"`
	Content    string      `json:"content"`
	Category   string      `json:"category"`
	Tags       []string    `json:"tags"`
	Color      string      `json:"color"`
	IsPinned   bool        `json:"is_pinned"`
	IsArchived bool        `json:"is_archived"`
	SharedWith []NoteShare `json:"shared_with,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// NoteShare grants another user access to a note.
type NoteShare struct {
	UserID     string          `json:"user_id"`
	Permission SharePermission `json:"permission"`
}

// CanEdit reports whether the given user may modify the note.
func (n *Note) CanEdit(userID string) bool {
	if n.UserID == userID {
		return true
	}
	for _, s := range n.SharedWith {
		if s.UserID == userID && s.Permission == ShareWrite {
			return true
		}
	}
	return false
}

// CanView reports whether the given user may read the note.
func (n *Note) CanView(userID string) bool {
	if n.UserID == userID {
		return true
	}
	for _, s := range n.SharedWith {
		if s.UserID == userID {
			return true
		}
	}
	return false
}
