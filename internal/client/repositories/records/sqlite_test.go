package records

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/clipdeck/clipdeck/internal/client/store"
	"github.com/clipdeck/clipdeck/internal/common"
	"github.com/clipdeck/clipdeck/internal/models"
)

var dbSeq int

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	dbSeq++
	dsn := fmt.Sprintf("file:records_test_%d?mode=memory&cache=shared", dbSeq)
	db, err := store.Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testRecord(id string) *models.Record {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Record{
		ID:          id,
		Kind:        models.KindLink,
		Title:       "Example",
		URL:         "https://example.com",
		Tags:        []string{"reading", "go"},
		Fingerprint: "fp-" + id,
		CreatedAt:   now,
		UpdatedAt:   now,
		SyncState:   models.StatePending,
	}
}

func TestInsertAndGetByID(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	rec := testRecord("r1")
	require.NoError(t, repo.Insert(ctx, rec))

	got, err := repo.GetByID(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, rec.Title, got.Title)
	require.Equal(t, rec.Tags, got.Tags)
	require.Equal(t, rec.UpdatedAt, got.UpdatedAt)
	require.Equal(t, models.StatePending, got.SyncState)
	require.False(t, got.Deleted)
}

func TestGetByID_NotFound(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)

	_, err := repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpdate_RewritesPayload(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	rec := testRecord("r1")
	require.NoError(t, repo.Insert(ctx, rec))

	rec.Title = "Renamed"
	rec.UpdatedAt = rec.UpdatedAt.Add(time.Second)
	require.NoError(t, repo.Update(ctx, rec))

	got, err := repo.GetByID(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, "Renamed", got.Title)
	require.Equal(t, rec.UpdatedAt, got.UpdatedAt)
}

func TestSoftDelete_TombstonesOnce(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	rec := testRecord("r1")
	require.NoError(t, repo.Insert(ctx, rec))

	at := rec.UpdatedAt.Add(time.Second)
	require.NoError(t, repo.SoftDelete(ctx, "r1", at))

	got, err := repo.GetByID(ctx, "r1")
	require.NoError(t, err)
	require.True(t, got.Deleted)
	require.Equal(t, models.StatePending, got.SyncState)

	// Double delete finds no live row.
	require.ErrorIs(t, repo.SoftDelete(ctx, "r1", at), common.ErrNotFound)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestSearch_Filters(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	a := testRecord("a")
	a.Title = "Go concurrency patterns"
	b := testRecord("b")
	b.Kind = models.KindNote
	b.Title = "Groceries"
	b.Tags = []string{"home"}
	require.NoError(t, repo.Insert(ctx, a))
	require.NoError(t, repo.Insert(ctx, b))

	got, err := repo.Search(ctx, Query{Text: "concurrency"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "a", got[0].ID)

	got, err = repo.Search(ctx, Query{Kind: models.KindNote})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "b", got[0].ID)

	got, err = repo.Search(ctx, Query{Tag: "home"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "b", got[0].ID)

	got, err = repo.Search(ctx, Query{Text: "nothing-matches"})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestFindByFingerprint(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	rec := testRecord("r1")
	require.NoError(t, repo.Insert(ctx, rec))

	got, err := repo.FindByFingerprint(ctx, rec.Fingerprint)
	require.NoError(t, err)
	require.Equal(t, "r1", got.ID)

	_, err = repo.FindByFingerprint(ctx, "unknown")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestCountActive(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	a := testRecord("a")
	b := testRecord("b")
	b.Kind = models.KindCategory
	require.NoError(t, repo.Insert(ctx, a))
	require.NoError(t, repo.Insert(ctx, b))

	n, err := repo.CountActive(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = repo.CountActive(ctx, models.KindCategory)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, repo.SoftDelete(ctx, "a", time.Now().UTC()))
	n, err = repo.CountActive(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestMarkSynced(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	rec := testRecord("r1")
	require.NoError(t, repo.Insert(ctx, rec))

	canonical := rec.UpdatedAt.Add(2 * time.Second)
	require.NoError(t, repo.MarkSynced(ctx, "r1", "srv-9", canonical))

	got, err := repo.GetByID(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, models.StateSynced, got.SyncState)
	require.Equal(t, "srv-9", got.RemoteID)
	require.Equal(t, canonical, got.UpdatedAt)
	require.Empty(t, got.LastError)
}

func TestApplyRemote_OverwritesPayload(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	rec := testRecord("r1")
	require.NoError(t, repo.Insert(ctx, rec))

	remote := models.Fields{
		Kind:      models.KindLink,
		Title:     "Canonical title",
		URL:       "https://example.com/canonical",
		UpdatedAt: rec.UpdatedAt.Add(5 * time.Second),
	}
	require.NoError(t, repo.ApplyRemote(ctx, "r1", "srv-1", remote))

	got, err := repo.GetByID(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, "Canonical title", got.Title)
	require.Equal(t, remote.UpdatedAt, got.UpdatedAt)
	require.Equal(t, models.StateSynced, got.SyncState)
	require.Empty(t, got.Tags)
}

func TestSetSyncState(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	rec := testRecord("r1")
	require.NoError(t, repo.Insert(ctx, rec))

	require.NoError(t, repo.SetSyncState(ctx, "r1", models.StateFailed, "gave up"))

	got, err := repo.GetByID(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, models.StateFailed, got.SyncState)
	require.Equal(t, "gave up", got.LastError)
}
