package outbox

import (
	"context"
	"time"

	"github.com/clipdeck/clipdeck/internal/models"
)

// Repository is the durable queue of pending remote operations. It lives in
// the same SQLite store as the records table so an enqueue commits in the
// same transaction as the record mutation it was derived from.
//
// At most one entry exists per record id: Enqueue coalesces into an existing
// entry instead of appending.
type Repository interface {
	// Enqueue inserts a pending operation, or coalesces into the existing
	// entry for the same record: snapshot and operation are replaced, the
	// original created_at and base precondition are kept, attempts reset,
	// seq bumped. A brand-new entry is rejected with common.ErrOutboxFull
	// once capacity is reached (capacity <= 0 means unbounded).
	Enqueue(ctx context.Context, e *models.OutboxEntry, capacity int) error

	// ClaimDue returns up to limit entries whose next_attempt_at has passed
	// and whose attempt count is below maxAttempts, oldest first.
	ClaimDue(ctx context.Context, now time.Time, maxAttempts, limit int) ([]models.OutboxEntry, error)

	// Remove deletes the entry if its seq still matches the claimed one.
	// It reports false when a newer local edit re-coalesced the entry while
	// the operation was in flight; the entry then stays queued.
	Remove(ctx context.Context, recordID string, seq int64) (bool, error)

	// Fail records a transient failure: attempts incremented, error kept,
	// retry scheduled. A seq mismatch is a no-op (the entry was re-edited
	// and starts a fresh attempt window anyway).
	Fail(ctx context.Context, recordID string, seq int64, errMsg string, nextAttemptAt time.Time) error

	// SetBase refreshes the remote precondition after a conflict resolved
	// in the local copy's favour and re-arms the entry for resubmission.
	SetBase(ctx context.Context, recordID string, seq int64, base, now time.Time) error

	// ResetAttempts re-arms a parked entry (manual retry): attempts back to
	// zero, error cleared, due immediately.
	ResetAttempts(ctx context.Context, recordID string, now time.Time) error

	// GetByRecordID returns the pending entry for a record, or
	// common.ErrNotFound.
	GetByRecordID(ctx context.Context, recordID string) (*models.OutboxEntry, error)

	// Count returns the number of pending entries.
	Count(ctx context.Context) (int, error)
}
