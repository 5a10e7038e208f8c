package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clipdeck/clipdeck/internal/client/repositories/outbox"
	"github.com/clipdeck/clipdeck/internal/client/repositories/records"
	"github.com/clipdeck/clipdeck/internal/common"
	"github.com/clipdeck/clipdeck/internal/dbx"
	"github.com/clipdeck/clipdeck/internal/models"
)

// CreateGate is consulted before a create; satisfied by quota.Gate.
type CreateGate interface {
	AllowCreate(ctx context.Context, kind models.Kind) error
}

// allowAll is used when no gate is configured.
type allowAll struct{}

func (allowAll) AllowCreate(context.Context, models.Kind) error { return nil }

// SyncRepository implements Repository and, inside the same transaction as
// each record mutation, derives the outbox entry that will replay it against
// the backend. Either both the record write and the outbox write survive a
// crash, or neither does.
type SyncRepository struct {
	db       *sql.DB
	gate     CreateGate
	capacity int
	now      func() time.Time
}

// NewSyncRepository wires the sync-composing repository. capacity bounds the
// outbox (<= 0 means unbounded); gate may be nil.
func NewSyncRepository(db *sql.DB, gate CreateGate, capacity int) *SyncRepository {
	if gate == nil {
		gate = allowAll{}
	}
	return &SyncRepository{
		db:       db,
		gate:     gate,
		capacity: capacity,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *SyncRepository) Create(ctx context.Context, d Draft) (*models.Record, error) {
	if err := r.gate.AllowCreate(ctx, d.Kind); err != nil {
		return nil, err
	}

	rec := newRecord(d, r.now(), models.StatePending)
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := records.NewSQLiteRepository(tx).Insert(ctx, rec); err != nil {
			return err
		}
		return r.enqueue(ctx, tx, rec, models.OpCreate, time.Time{})
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *SyncRepository) CreateIfAbsent(ctx context.Context, d Draft) (*models.Record, bool, error) {
	existing, err := records.NewSQLiteRepository(r.db).FindByFingerprint(ctx, Fingerprint(d))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, false, err
	}

	rec, err := r.Create(ctx, d)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (r *SyncRepository) Update(ctx context.Context, id string, c Change) (*models.Record, error) {
	var rec *models.Record
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := records.NewSQLiteRepository(tx)

		existing, err := liveByID(ctx, repo, id)
		if err != nil {
			return err
		}
		base := syncedBase(existing)

		applyChange(existing, c, bumpClock(existing.UpdatedAt, r.now()))
		existing.SyncState = models.StatePending
		existing.LastError = ""
		if err := repo.Update(ctx, existing); err != nil {
			return err
		}

		rec = existing
		return r.enqueue(ctx, tx, existing, models.OpUpdate, base)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *SyncRepository) Delete(ctx context.Context, id string) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := records.NewSQLiteRepository(tx)

		existing, err := liveByID(ctx, repo, id)
		if err != nil {
			return err
		}
		base := syncedBase(existing)

		at := bumpClock(existing.UpdatedAt, r.now())
		if err := repo.SoftDelete(ctx, id, at); err != nil {
			return err
		}

		existing.Deleted = true
		existing.UpdatedAt = at
		return r.enqueue(ctx, tx, existing, models.OpDelete, base)
	})
}

// RetryFailed re-arms a record whose automatic retries were exhausted: the
// coalesced outbox entry gets a fresh attempt budget and the record goes
// back to pending.
func (r *SyncRepository) RetryFailed(ctx context.Context, id string) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := outbox.NewSQLiteRepository(tx).ResetAttempts(ctx, id, r.now()); err != nil {
			return err
		}
		return records.NewSQLiteRepository(tx).SetSyncState(ctx, id, models.StatePending, "")
	})
}

func (r *SyncRepository) GetByID(ctx context.Context, id string) (*models.Record, error) {
	return liveByID(ctx, records.NewSQLiteRepository(r.db), id)
}

func (r *SyncRepository) GetAll(ctx context.Context) ([]models.Record, error) {
	return records.NewSQLiteRepository(r.db).GetAll(ctx)
}

func (r *SyncRepository) Search(ctx context.Context, q records.Query) ([]models.Record, error) {
	return records.NewSQLiteRepository(r.db).Search(ctx, q)
}

func (r *SyncRepository) enqueue(ctx context.Context, tx dbx.DBTX, rec *models.Record, op models.Operation, base time.Time) error {
	snapshot, err := json.Marshal(rec.Fields())
	if err != nil {
		return fmt.Errorf("failed to encode outbox snapshot: %w", err)
	}

	now := r.now()
	return outbox.NewSQLiteRepository(tx).Enqueue(ctx, &models.OutboxEntry{
		ID:            uuid.NewString(),
		RecordID:      rec.ID,
		Operation:     op,
		Snapshot:      snapshot,
		BaseUpdatedAt: base,
		CreatedAt:     now,
		NextAttemptAt: now,
	}, r.capacity)
}

// syncedBase returns the precondition for a mutation of rec: the canonical
// timestamp the remote last acknowledged, or zero when the remote has not
// seen the record.
func syncedBase(rec *models.Record) time.Time {
	if rec.SyncState == models.StateSynced {
		return rec.UpdatedAt
	}
	return time.Time{}
}
