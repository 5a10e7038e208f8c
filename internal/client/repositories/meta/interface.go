// Package meta is a small key/value store persisted alongside records, used
// for sync bookkeeping (cursors, cached entitlements, auth token).
package meta

import "context"

type Repository interface {
	// Get returns the value for key, or (nil, nil) when absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
