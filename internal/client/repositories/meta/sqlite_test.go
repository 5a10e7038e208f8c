package meta

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/clipdeck/clipdeck/internal/client/store"
)

func TestMetaRoundTrip(t *testing.T) {
	db, err := store.Open(context.Background(), "file:meta_test?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	got, err := repo.Get(ctx, "cursor")
	require.NoError(t, err)
	require.Nil(t, got, "absent key yields nil without error")

	require.NoError(t, repo.Set(ctx, "cursor", []byte("42")))
	got, err = repo.Get(ctx, "cursor")
	require.NoError(t, err)
	require.Equal(t, []byte("42"), got)

	// Upsert semantics.
	require.NoError(t, repo.Set(ctx, "cursor", []byte("43")))
	got, err = repo.Get(ctx, "cursor")
	require.NoError(t, err)
	require.Equal(t, []byte("43"), got)

	require.NoError(t, repo.Delete(ctx, "cursor"))
	got, err = repo.Get(ctx, "cursor")
	require.NoError(t, err)
	require.Nil(t, got)
}
