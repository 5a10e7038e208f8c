// Package common defines shared constants and sentinel errors used across
// ClipDeck components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Local storage errors are fatal to the triggering operation and are
	// surfaced synchronously to the caller.
	ErrLocalStorage = errors.New("local storage error")

	// ErrQuotaExceeded blocks a create before any mutation occurs.
	ErrQuotaExceeded = errors.New("usage quota exceeded")

	// ErrOutboxFull is the backpressure signal returned when a brand-new
	// record cannot be enqueued for sync.
	ErrOutboxFull = errors.New("outbox at capacity")

	// Remote call classification.
	ErrUnavailable = errors.New("server unavailable")
	ErrConflict    = errors.New("remote version conflict")

	// Auth errors on the remote channel.
	ErrUnauthorized = errors.New("unauthorized")
	ErrTokenExpired = errors.New("token expired")

	// ErrPayloadCorrupt marks a single malformed inbox payload; it never
	// aborts processing of the remaining payloads.
	ErrPayloadCorrupt = errors.New("corrupt inbox payload")
)
