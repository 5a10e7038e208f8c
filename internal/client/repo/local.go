package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clipdeck/clipdeck/internal/client/repositories/records"
	"github.com/clipdeck/clipdeck/internal/common"
	"github.com/clipdeck/clipdeck/internal/dbx"
	"github.com/clipdeck/clipdeck/internal/fingerprint"
	"github.com/clipdeck/clipdeck/internal/models"
)

// LocalRepository implements Repository against the primary store without
// any sync bookkeeping. Records it writes are considered settled.
type LocalRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewLocalRepository(db *sql.DB) *LocalRepository {
	return &LocalRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func newRecord(d Draft, now time.Time, state models.SyncState) *models.Record {
	return &models.Record{
		ID:          uuid.NewString(),
		Kind:        d.Kind,
		Title:       d.Title,
		URL:         d.URL,
		Body:        d.Body,
		Tags:        d.Tags,
		Fingerprint: Fingerprint(d),
		CreatedAt:   now,
		UpdatedAt:   now,
		SyncState:   state,
	}
}

// Fingerprint derives the dedup key for a draft's content.
func Fingerprint(d Draft) string {
	return fingerprint.Sum(string(d.Kind), d.Title, d.URL, d.Body)
}

func (r *LocalRepository) Create(ctx context.Context, d Draft) (*models.Record, error) {
	rec := newRecord(d, r.now(), models.StateSynced)
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return records.NewSQLiteRepository(tx).Insert(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *LocalRepository) CreateIfAbsent(ctx context.Context, d Draft) (*models.Record, bool, error) {
	var (
		rec     *models.Record
		created bool
	)
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := records.NewSQLiteRepository(tx)

		existing, err := repo.FindByFingerprint(ctx, Fingerprint(d))
		if err == nil {
			rec = existing
			return nil
		}
		if !errors.Is(err, common.ErrNotFound) {
			return err
		}

		rec = newRecord(d, r.now(), models.StateSynced)
		created = true
		return repo.Insert(ctx, rec)
	})
	if err != nil {
		return nil, false, err
	}
	return rec, created, nil
}

func (r *LocalRepository) Update(ctx context.Context, id string, c Change) (*models.Record, error) {
	var rec *models.Record
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := records.NewSQLiteRepository(tx)

		existing, err := liveByID(ctx, repo, id)
		if err != nil {
			return err
		}

		applyChange(existing, c, bumpClock(existing.UpdatedAt, r.now()))
		existing.SyncState = models.StateSynced
		rec = existing
		return repo.Update(ctx, existing)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *LocalRepository) Delete(ctx context.Context, id string) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return records.NewSQLiteRepository(tx).Purge(ctx, id)
	})
}

func (r *LocalRepository) GetByID(ctx context.Context, id string) (*models.Record, error) {
	return liveByID(ctx, records.NewSQLiteRepository(r.db), id)
}

func (r *LocalRepository) GetAll(ctx context.Context) ([]models.Record, error) {
	return records.NewSQLiteRepository(r.db).GetAll(ctx)
}

func (r *LocalRepository) Search(ctx context.Context, q records.Query) ([]models.Record, error) {
	return records.NewSQLiteRepository(r.db).Search(ctx, q)
}

// liveByID hides tombstones from the CRUD surface.
func liveByID(ctx context.Context, repo records.Repository, id string) (*models.Record, error) {
	rec, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Deleted {
		return nil, common.ErrNotFound
	}
	return rec, nil
}

func applyChange(rec *models.Record, c Change, at time.Time) {
	rec.Title = c.Title
	rec.URL = c.URL
	rec.Body = c.Body
	rec.Tags = c.Tags
	rec.Fingerprint = fingerprint.Sum(string(rec.Kind), c.Title, c.URL, c.Body)
	rec.UpdatedAt = at
}
