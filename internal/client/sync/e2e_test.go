package sync_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/clipdeck/clipdeck/internal/client/remote"
	"github.com/clipdeck/clipdeck/internal/client/repo"
	"github.com/clipdeck/clipdeck/internal/client/repositories/outbox"
	"github.com/clipdeck/clipdeck/internal/client/repositories/records"
	"github.com/clipdeck/clipdeck/internal/client/store"
	syncengine "github.com/clipdeck/clipdeck/internal/client/sync"
	"github.com/clipdeck/clipdeck/internal/events"
	"github.com/clipdeck/clipdeck/internal/logging"
	"github.com/clipdeck/clipdeck/internal/models"
	"github.com/clipdeck/clipdeck/internal/server"
	"github.com/clipdeck/clipdeck/internal/server/auth"
	serverconfig "github.com/clipdeck/clipdeck/internal/server/config"
	"github.com/clipdeck/clipdeck/internal/server/storage"
)

// device bundles one simulated client installation: its own store, repo and
// engine, all pointed at a shared backend.
type device struct {
	db     *sql.DB
	repo   *repo.SyncRepository
	engine *syncengine.Engine
}

var e2eSeq int

func quietLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func startBackend(t *testing.T) (*httptest.Server, *storage.Memory) {
	t.Helper()
	cfg := &serverconfig.Config{
		JWT: serverconfig.JWTConfig{
			Secret:                 "e2e-secret",
			Expiration:             time.Hour,
			RefreshTokenExpiration: time.Hour,
		},
	}
	mem := storage.NewMemory()
	srv := httptest.NewServer(server.NewRouter(cfg, mem, quietLogger()))
	t.Cleanup(srv.Close)
	return srv, mem
}

func newDevice(t *testing.T, baseURL string) *device {
	t.Helper()
	e2eSeq++
	dsn := fmt.Sprintf("file:e2e_test_%d?mode=memory&cache=shared", e2eSeq)
	db, err := store.Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	token, err := auth.GenerateToken("dev", []byte("e2e-secret"), time.Hour)
	require.NoError(t, err)
	client := remote.NewHTTPClient(baseURL)
	client.SetTokens(token, "")

	return &device{
		db:     db,
		repo:   repo.NewSyncRepository(db, nil, 0),
		engine: syncengine.NewEngine(db, client, events.NewBus(), quietLogger(), syncengine.Options{}),
	}
}

// seedRecord plants a record with a fixed id, as if this device had captured
// the same logical item as its sibling.
func seedRecord(t *testing.T, d *device, id, title string, at time.Time) {
	t.Helper()
	ctx := context.Background()

	rec := &models.Record{
		ID:          id,
		Kind:        models.KindNote,
		Title:       title,
		Body:        title + " body",
		Fingerprint: "fp-" + title,
		CreatedAt:   at,
		UpdatedAt:   at,
		SyncState:   models.StatePending,
	}
	require.NoError(t, records.NewSQLiteRepository(d.db).Insert(ctx, rec))

	snapshot, err := json.Marshal(rec.Fields())
	require.NoError(t, err)
	require.NoError(t, outbox.NewSQLiteRepository(d.db).Enqueue(ctx, &models.OutboxEntry{
		ID:            uuid.NewString(),
		RecordID:      id,
		Operation:     models.OpCreate,
		Snapshot:      snapshot,
		CreatedAt:     at,
		NextAttemptAt: at,
	}, 0))
}

type summary struct {
	Title     string
	Body      string
	SyncState models.SyncState
	HasRemote bool
}

func summarize(t *testing.T, d *device) []summary {
	t.Helper()
	all, err := d.repo.GetAll(context.Background())
	require.NoError(t, err)

	out := make([]summary, 0, len(all))
	for _, r := range all {
		out = append(out, summary{Title: r.Title, Body: r.Body, SyncState: r.SyncState, HasRemote: r.RemoteID != ""})
	}
	return out
}

// The same mutation sequence must land on the same state whether each step
// synced immediately or everything drained after a long offline stretch.
func TestOfflineMutationsConvergeToOnlineState(t *testing.T) {
	srv, _ := startBackend(t)
	online := newDevice(t, srv.URL)
	offline := newDevice(t, srv.URL)
	ctx := context.Background()

	mutate := func(d *device, drainEach bool) {
		a, err := d.repo.Create(ctx, repo.Draft{Kind: models.KindLink, Title: "article", URL: "https://example.com/a"})
		require.NoError(t, err)
		if drainEach {
			d.engine.Drain(ctx)
		}

		b, err := d.repo.Create(ctx, repo.Draft{Kind: models.KindNote, Title: "scratch", Body: "temp"})
		require.NoError(t, err)
		if drainEach {
			d.engine.Drain(ctx)
		}

		_, err = d.repo.Update(ctx, a.ID, repo.Change{Title: "article (edited)", URL: "https://example.com/a"})
		require.NoError(t, err)
		if drainEach {
			d.engine.Drain(ctx)
		}

		require.NoError(t, d.repo.Delete(ctx, b.ID))
		if drainEach {
			d.engine.Drain(ctx)
		}
	}

	mutate(online, true)
	mutate(offline, false)
	offline.engine.Drain(ctx)

	want := []summary{{Title: "article (edited)", Body: "", SyncState: models.StateSynced, HasRemote: true}}
	require.Equal(t, want, summarize(t, online))
	require.Equal(t, want, summarize(t, offline))
}

// A replayed submission of an already-applied entry must not create a second
// remote record.
func TestReplayedSubmissionIsNotDuplicated(t *testing.T) {
	srv, mem := startBackend(t)
	d := newDevice(t, srv.URL)
	ctx := context.Background()

	at := time.Now().UTC().Truncate(0)
	seedRecord(t, d, "rec-replay", "captured", at)
	d.engine.Drain(ctx)
	require.Equal(t, 1, mem.Len())

	// The ack was lost; the same snapshot is enqueued and drained again.
	seedAgain := &models.Record{
		ID: "rec-replay", Kind: models.KindNote, Title: "captured", Body: "captured body",
		Fingerprint: "fp-captured", CreatedAt: at, UpdatedAt: at, SyncState: models.StatePending,
	}
	snapshot, err := json.Marshal(seedAgain.Fields())
	require.NoError(t, err)
	require.NoError(t, outbox.NewSQLiteRepository(d.db).Enqueue(ctx, &models.OutboxEntry{
		ID:            uuid.NewString(),
		RecordID:      "rec-replay",
		Operation:     models.OpCreate,
		Snapshot:      snapshot,
		CreatedAt:     at,
		NextAttemptAt: at,
	}, 0))
	d.engine.Drain(ctx)

	require.Equal(t, 1, mem.Len(), "replay applied idempotently")
	got, err := records.NewSQLiteRepository(d.db).GetByID(ctx, "rec-replay")
	require.NoError(t, err)
	require.Equal(t, models.StateSynced, got.SyncState)
}

// Whatever order the two devices drain in, the greater updatedAt wins.
func TestTwoDeviceConflictIsDeterministic(t *testing.T) {
	baseTime := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	for _, order := range []string{"older-first", "newer-first"} {
		t.Run(order, func(t *testing.T) {
			srv, mem := startBackend(t)
			d1 := newDevice(t, srv.URL)
			d2 := newDevice(t, srv.URL)
			ctx := context.Background()

			seedRecord(t, d1, "rec-x", "device1 version", baseTime)
			seedRecord(t, d2, "rec-x", "device2 version", baseTime.Add(5*time.Second))

			second := d2
			if order == "older-first" {
				d1.engine.Drain(ctx)
				d2.engine.Drain(ctx)
			} else {
				d2.engine.Drain(ctx)
				d1.engine.Drain(ctx)
				second = d1
			}

			canonical, ok := mem.Get("rec-x")
			require.True(t, ok)
			require.Equal(t, "device2 version", canonical.Fields.Title)
			require.True(t, canonical.Fields.UpdatedAt.Equal(baseTime.Add(5*time.Second)))

			// The device that hit the conflict converged on the canonical copy.
			rec, err := records.NewSQLiteRepository(second.db).GetByID(ctx, "rec-x")
			require.NoError(t, err)
			require.Equal(t, "device2 version", rec.Title)
			require.Equal(t, models.StateSynced, rec.SyncState)
		})
	}
}
