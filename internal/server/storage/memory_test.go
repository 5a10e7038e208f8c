package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clipdeck/clipdeck/internal/models"
)

func fields(title string, at time.Time) models.Fields {
	return models.Fields{Kind: models.KindLink, Title: title, Fingerprint: "fp-" + title, UpdatedAt: at}
}

func TestUpsert_CreateAndUpdate(t *testing.T) {
	m := NewMemory()
	t0 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	rec, conflict := m.Upsert("rec-1", time.Time{}, fields("v1", t0))
	require.Nil(t, conflict)
	require.NotEmpty(t, rec.RemoteID)
	require.Equal(t, "rec-1", rec.ID)
	require.Equal(t, 1, m.Len())

	t1 := t0.Add(time.Minute)
	rec2, conflict := m.Upsert("rec-1", t0, fields("v2", t1))
	require.Nil(t, conflict)
	require.Equal(t, rec.RemoteID, rec2.RemoteID, "remote id is stable across updates")
	require.Equal(t, "v2", rec2.Fields.Title)
}

func TestUpsert_ReplayedSnapshotIsIdempotent(t *testing.T) {
	m := NewMemory()
	t0 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	first, conflict := m.Upsert("rec-1", time.Time{}, fields("v1", t0))
	require.Nil(t, conflict)

	// The client never saw the ack and submits the same snapshot again.
	replay, conflict := m.Upsert("rec-1", time.Time{}, fields("v1", t0))
	require.Nil(t, conflict)
	require.Equal(t, first.RemoteID, replay.RemoteID)
	require.Equal(t, 1, m.Len(), "no duplicate row")
}

func TestUpsert_StaleBaseConflicts(t *testing.T) {
	m := NewMemory()
	t0 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)

	_, conflict := m.Upsert("rec-1", time.Time{}, fields("device-a", t0))
	require.Nil(t, conflict)
	_, conflict = m.Upsert("rec-1", t0, fields("device-a-2", t1))
	require.Nil(t, conflict)

	// Device B still carries base t0.
	_, conflict = m.Upsert("rec-1", t0, fields("device-b", t0.Add(30*time.Second)))
	require.NotNil(t, conflict)
	require.Equal(t, "device-a-2", conflict.Fields.Title, "canonical copy returned")
	require.Equal(t, "rec-1", conflict.ID, "record id echoed for id-based tie-breaks")
}

func TestDelete_Semantics(t *testing.T) {
	m := NewMemory()
	t0 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	require.Nil(t, m.Delete("ghost", time.Time{}), "unknown id deletes idempotently")

	_, conflict := m.Upsert("rec-1", time.Time{}, fields("v1", t0))
	require.Nil(t, conflict)

	require.NotNil(t, m.Delete("rec-1", t0.Add(-time.Hour)), "stale base conflicts")
	require.Nil(t, m.Delete("rec-1", t0))
	require.Zero(t, m.Len())

	require.Nil(t, m.Delete("rec-1", t0), "replayed delete succeeds")
}
