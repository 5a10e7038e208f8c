package records

import (
	"context"
	"time"

	"github.com/clipdeck/clipdeck/internal/models"
)

// Query filters Search results. Zero-value fields are ignored.
type Query struct {
	// Text matches title, url or body (substring, case-insensitive).
	Text string
	// Tag must be present in the record's tag list.
	Tag string
	// Kind restricts to a single record kind.
	Kind models.Kind
	// IncludeDeleted also returns tombstones awaiting sync.
	IncludeDeleted bool
}

// Repository describes transactional CRUD and query operations over records.
// Implementations are bound to a dbx.DBTX so they compose into the same
// transaction as the outbox repository.
type Repository interface {
	// Insert stores a brand-new record.
	Insert(ctx context.Context, r *models.Record) error

	// Update rewrites the payload fields of an existing record.
	Update(ctx context.Context, r *models.Record) error

	// SoftDelete tombstones a record pending remote confirmation.
	SoftDelete(ctx context.Context, id string, at time.Time) error

	// Purge removes a row entirely (after a confirmed remote delete).
	Purge(ctx context.Context, id string) error

	// GetByID returns a record, including tombstones.
	GetByID(ctx context.Context, id string) (*models.Record, error)

	// GetAll lists all non-deleted records.
	GetAll(ctx context.Context) ([]models.Record, error)

	// Search filters records by q.
	Search(ctx context.Context, q Query) ([]models.Record, error)

	// FindByFingerprint returns the first live record with the given
	// content fingerprint, or common.ErrNotFound.
	FindByFingerprint(ctx context.Context, fp string) (*models.Record, error)

	// CountActive counts non-deleted records of the given kind
	// (all kinds when kind is empty). Consulted by the quota gate.
	CountActive(ctx context.Context, kind models.Kind) (int, error)

	// SetSyncState updates sync bookkeeping only.
	SetSyncState(ctx context.Context, id string, state models.SyncState, lastError string) error

	// MarkSynced records remote acceptance: canonical timestamp, remote id,
	// state synced, error cleared.
	MarkSynced(ctx context.Context, id, remoteID string, updatedAt time.Time) error

	// ApplyRemote overwrites the local payload with the canonical remote
	// fields (conflict resolution, remote side won).
	ApplyRemote(ctx context.Context, id, remoteID string, f models.Fields) error
}
