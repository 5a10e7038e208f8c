// Package remote talks to the sync backend. The Client interface is the only
// surface the sync engine sees; errors come back as common sentinels so
// callers can classify outcomes with errors.Is.
package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/clipdeck/clipdeck/internal/common"
	"github.com/clipdeck/clipdeck/internal/models"
)

// UpsertRequest submits a record snapshot. BaseUpdatedAt is the canonical
// timestamp the client last saw for this record (zero for never-synced
// records); the server rejects the write with a conflict when its copy has
// moved past it.
type UpsertRequest struct {
	ID            string        `json:"id"`
	BaseUpdatedAt time.Time     `json:"base_updated_at"`
	Fields        models.Fields `json:"fields"`
}

// RemoteRecord is the server's canonical view of a record. ID is the client
// record id echoed back; RemoteID is the server-assigned identifier.
type RemoteRecord struct {
	ID       string        `json:"id"`
	RemoteID string        `json:"remote_id"`
	Fields   models.Fields `json:"fields"`
}

// ConflictError reports that the server's copy diverged from the submitted
// base. Remote carries the canonical state so the caller can resolve without
// another round trip. errors.Is(err, common.ErrConflict) matches it.
type ConflictError struct {
	Remote RemoteRecord
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: server copy updated at %s", e.Remote.Fields.UpdatedAt.Format(time.RFC3339Nano))
}

func (e *ConflictError) Unwrap() error { return common.ErrConflict }

// Client is the backend surface consumed by the sync engine and the
// reachability monitor.
type Client interface {
	// Upsert creates or replaces a record. Resubmitting an already-applied
	// snapshot succeeds idempotently. A diverged base yields *ConflictError.
	Upsert(ctx context.Context, req UpsertRequest) (*RemoteRecord, error)

	// Delete removes a record. Deleting an unknown id is a success.
	Delete(ctx context.Context, id string, base time.Time) error

	// Ping checks that the backend answers.
	Ping(ctx context.Context) error

	Close() error
}
