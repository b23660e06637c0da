// Package models defines the core data structures for users, sessions and
// stashed items.
package models

import "time"

// User represents an application account.
type User struct {
	// ID is the unique identifier for the user.
	ID string `json:"id"`
	// Email is the login address chosen by the user.
	Email string `json:"email"`
	// PasswordHash is the bcrypt hash of the user's password. Never serialized.
	PasswordHash []byte `json:"-"`
	// CreatedAt is when the account was created.
	CreatedAt time.Time `json:"created_at"`
}

// Session is a server-issued opaque credential granting item access.
// At most one session is active client-side at a time.
type Session struct {
	// Token is the opaque bearer credential.
	Token string `json:"token"`
	// UserID identifies the account the token belongs to.
	UserID string `json:"user_id"`
	// ExpiresAt is when the token stops being honored.
	ExpiresAt time.Time `json:"expires_at"`
}

// Item is a single stashed record: a note, link, photo or business card.
// IDs are assigned client-side at creation so optimistic UI can show an
// item before any server round-trip; they are never reassigned.
type Item struct {
	// ID is the client-generated unique identifier.
	ID string `json:"id"`
	// Kind is a free-form category tag ("note", "link", "photo", "card").
	Kind string `json:"kind"`
	// Content holds the textual payload.
	Content string `json:"content"`
	// Tags are user-assigned labels.
	Tags []string `json:"tags,omitempty"`
	// ImageData is an optional embedded image payload, base64-encoded.
	ImageData string `json:"image_data,omitempty"`
	// Extraction holds optional structured fields pulled out of the item
	// (e.g. name/phone/company from a business card).
	Extraction map[string]string `json:"extraction,omitempty"`
	// Pinned marks the item as pinned.
	Pinned bool `json:"pinned"`
	// Completed marks the item as done.
	Completed bool `json:"completed"`
	// CompletedAt is set when Completed flips to true, nil otherwise.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// CreatedAt is when the item was captured.
	CreatedAt time.Time `json:"created_at"`
}

// ItemPatch describes a partial update. Nil fields are left untouched,
// matching the PUT /items/:id contract of fields-present-in-body-only.
type ItemPatch struct {
	Kind        *string            `json:"kind,omitempty"`
	Content     *string            `json:"content,omitempty"`
	Tags        *[]string          `json:"tags,omitempty"`
	ImageData   *string            `json:"image_data,omitempty"`
	Extraction  *map[string]string `json:"extraction,omitempty"`
	Pinned      *bool              `json:"pinned,omitempty"`
	Completed   *bool              `json:"completed,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

// Apply merges the patch into the item, touching only non-nil fields.
func (p ItemPatch) Apply(it *Item) {
	if p.Kind != nil {
		it.Kind = *p.Kind
	}
	if p.Content != nil {
		it.Content = *p.Content
	}
	if p.Tags != nil {
		it.Tags = *p.Tags
	}
	if p.ImageData != nil {
		it.ImageData = *p.ImageData
	}
	if p.Extraction != nil {
		it.Extraction = *p.Extraction
	}
	if p.Pinned != nil {
		it.Pinned = *p.Pinned
	}
	if p.Completed != nil {
		it.Completed = *p.Completed
	}
	if p.CompletedAt != nil {
		it.CompletedAt = p.CompletedAt
	}
}

// ItemKind defines the set of well-known item kind identifiers.
// Kind is free-form on the wire; these are the ones the clients produce.
type ItemKind string

const (
	// KindNote represents a plain text note.
	KindNote ItemKind = "note"
	// KindLink represents a saved URL.
	KindLink ItemKind = "link"
	// KindPhoto represents an item with an embedded image payload.
	KindPhoto ItemKind = "photo"
	// KindCard represents a scanned business card with extracted fields.
	KindCard ItemKind = "card"
)
