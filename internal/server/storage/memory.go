// Package storage holds the backend's record state. The reference backend
// keeps everything in memory; what matters is the precondition contract the
// sync protocol relies on, not durability.
package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/clipdeck/clipdeck/internal/models"
)

// Record is the canonical server-side copy. ID echoes the client record id
// so conflict resolution can compare ids without a lookup.
type Record struct {
	ID       string        `json:"id"`
	RemoteID string        `json:"remote_id"`
	Fields   models.Fields `json:"fields"`
}

// Memory is a versioned in-memory record store keyed by client record id.
// Writes carry the client's last-seen canonical timestamp as a precondition.
type Memory struct {
	mu   sync.RWMutex
	recs map[string]Record
	seq  int
}

func NewMemory() *Memory {
	return &Memory{recs: make(map[string]Record)}
}

// Upsert applies a create or update.
//
// Outcomes:
//   - unknown id: created, regardless of base (a create replay after the
//     server lost state must not strand the client).
//   - known id, snapshot already applied: success with the canonical copy,
//     so an idempotent replay of an acknowledged-but-unconfirmed submit is
//     not a duplicate.
//   - known id, base equals the canonical timestamp: applied.
//   - otherwise: conflict; the canonical copy is returned for resolution.
func (m *Memory) Upsert(id string, base time.Time, f models.Fields) (Record, *Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.recs[id]
	if !ok {
		m.seq++
		rec := Record{ID: id, RemoteID: fmt.Sprintf("r-%06d", m.seq), Fields: f}
		m.recs[id] = rec
		return rec, nil
	}

	if f.UpdatedAt.Equal(cur.Fields.UpdatedAt) && f.Fingerprint == cur.Fields.Fingerprint {
		return cur, nil
	}

	if base.Equal(cur.Fields.UpdatedAt) {
		cur.Fields = f
		m.recs[id] = cur
		return cur, nil
	}

	conflict := cur
	return Record{}, &conflict
}

// Delete removes a record. Deleting an unknown id succeeds (the replayed
// delete already took effect). A base mismatch is a conflict.
func (m *Memory) Delete(id string, base time.Time) *Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.recs[id]
	if !ok {
		return nil
	}
	if base.Equal(cur.Fields.UpdatedAt) {
		delete(m.recs, id)
		return nil
	}

	conflict := cur
	return &conflict
}

// Get returns the canonical copy of a record.
func (m *Memory) Get(id string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recs[id]
	return rec, ok
}

// Len reports how many records the store holds.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.recs)
}
