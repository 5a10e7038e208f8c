package models

import "time"

// Operation is the remote mutation derived from a local commit.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// OutboxEntry is a pending remote operation. At most one entry exists per
// record id at any instant: rapid local edits coalesce into it, replacing
// Snapshot and Operation while keeping the original CreatedAt so old edits
// are not perpetually pushed back in the queue.
type OutboxEntry struct {
	ID       string
	RecordID string

	Operation Operation

	// Snapshot is the JSON-encoded Fields of the record's latest committed
	// state at enqueue time.
	Snapshot []byte

	// BaseUpdatedAt is the last remote-acknowledged timestamp of the record
	// and travels as the precondition of the remote call. Zero for records
	// the remote has never seen. Refreshed when a conflict resolves in the
	// local copy's favour.
	BaseUpdatedAt time.Time

	// CreatedAt is the time of the first edit in the current coalescing
	// window.
	CreatedAt time.Time

	// NextAttemptAt gates ClaimDue; it moves forward on transient failures
	// per the capped exponential backoff schedule.
	NextAttemptAt time.Time

	AttemptCount int

	// Seq increments on every coalescing replace. A worker remembers the
	// claimed Seq and removal is conditional on it, so an edit that lands
	// while the entry is in flight is never lost.
	Seq int64

	LastError string
}
