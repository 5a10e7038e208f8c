// Package repo exposes the record CRUD surface consumed by the presentation
// layer. Two implementations exist: LocalRepository persists records only,
// SyncRepository additionally derives outbox entries so every committed
// mutation eventually reaches the backend. Callers cannot distinguish the
// two; sync never runs on their critical path.
package repo

import (
	"context"
	"time"

	"github.com/clipdeck/clipdeck/internal/client/repositories/records"
	"github.com/clipdeck/clipdeck/internal/models"
)

// Draft is the payload for a new record.
type Draft struct {
	Kind  models.Kind
	Title string
	URL   string
	Body  string
	Tags  []string
}

// Change is the replacement payload for an update.
type Change struct {
	Title string
	URL   string
	Body  string
	Tags  []string
}

// Repository is the capability surface for record mutations and queries.
// All mutations are transactional and return synchronously once the local
// commit is durable.
type Repository interface {
	// Create stores a new record. It fails with common.ErrQuotaExceeded
	// when the usage limit is reached and common.ErrOutboxFull under
	// sync backpressure; in both cases nothing is persisted.
	Create(ctx context.Context, d Draft) (*models.Record, error)

	// CreateIfAbsent creates the record unless a live record with the same
	// content fingerprint already exists; it reports whether a record was
	// created. Used by at-least-once inbox ingestion.
	CreateIfAbsent(ctx context.Context, d Draft) (*models.Record, bool, error)

	// Update replaces the payload of an existing record.
	Update(ctx context.Context, id string, c Change) (*models.Record, error)

	// Delete tombstones a record; it disappears from queries immediately.
	Delete(ctx context.Context, id string) error

	// GetByID returns a live record or common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.Record, error)

	// GetAll lists live records, most recently updated first.
	GetAll(ctx context.Context) ([]models.Record, error)

	// Search filters live records.
	Search(ctx context.Context, q records.Query) ([]models.Record, error)
}

// bumpClock returns now, pushed forward if needed so a record's UpdatedAt
// never decreases (wall clocks may step backwards).
func bumpClock(prev, now time.Time) time.Time {
	if now.After(prev) {
		return now
	}
	return prev.Add(time.Nanosecond)
}
