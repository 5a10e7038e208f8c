// Package models defines the syncable domain types shared by the store,
// the outbox and the sync engine.
package models

import "time"

// Kind classifies a record.
type Kind string

const (
	KindLink     Kind = "link"
	KindNote     Kind = "note"
	KindCategory Kind = "category"
)

// TagAttachment marks a record whose body references a large attachment.
// The sync engine holds such records back while connectivity is constrained.
const TagAttachment = "attachment"

// SyncState tracks where a record stands relative to the backend.
type SyncState string

const (
	StatePending  SyncState = "pending"
	StateSynced   SyncState = "synced"
	StateConflict SyncState = "conflict"
	StateFailed   SyncState = "failed"
)

// Record is a captured item persisted locally and synced with the server.
//
// ID is assigned at creation and never changes; RemoteID is set once the
// backend has accepted the record. UpdatedAt is monotonically non-decreasing
// and bumps on every local or remote-applied mutation.
type Record struct {
	// ID is a globally unique identifier for the record (UUID).
	ID string

	// RemoteID is the backend-assigned identifier, empty until first accepted.
	RemoteID string

	Kind  Kind
	Title string
	URL   string
	Body  string
	Tags  []string

	// Fingerprint is a content hash used for dedup-safe ingestion of
	// at-least-once inbox deliveries.
	Fingerprint string

	// CreatedAt / UpdatedAt are UTC.
	CreatedAt time.Time
	UpdatedAt time.Time

	// Deleted marks the record as a tombstone awaiting remote confirmation.
	Deleted bool

	SyncState SyncState

	// LastError holds the last sync failure message for UI indicators.
	LastError string
}

// Fields is the payload portion of a record as sent over the wire and as
// snapshotted into the outbox. UpdatedAt rides along because last-writer-wins
// resolution compares it.
type Fields struct {
	Kind        Kind      `json:"kind"`
	Title       string    `json:"title"`
	URL         string    `json:"url,omitempty"`
	Body        string    `json:"body,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Deleted     bool      `json:"deleted,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Fields extracts the wire payload from a record.
func (r *Record) Fields() Fields {
	return Fields{
		Kind:        r.Kind,
		Title:       r.Title,
		URL:         r.URL,
		Body:        r.Body,
		Tags:        r.Tags,
		Fingerprint: r.Fingerprint,
		Deleted:     r.Deleted,
		UpdatedAt:   r.UpdatedAt,
	}
}

// Apply overwrites the record payload with f, used when the remote copy wins
// a conflict.
func (r *Record) Apply(f Fields) {
	r.Kind = f.Kind
	r.Title = f.Title
	r.URL = f.URL
	r.Body = f.Body
	r.Tags = f.Tags
	r.Fingerprint = f.Fingerprint
	r.Deleted = f.Deleted
	r.UpdatedAt = f.UpdatedAt
}
