package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/clipdeck/clipdeck/internal/common"
	"github.com/clipdeck/clipdeck/internal/dbx"
	"github.com/clipdeck/clipdeck/internal/models"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const entryColumns = `id, record_id, operation, snapshot, base_updated_at,
	created_at, next_attempt_at, attempt_count, seq, last_error`

func (r *SQLiteRepository) Enqueue(ctx context.Context, e *models.OutboxEntry, capacity int) error {
	existing, err := r.GetByRecordID(ctx, e.RecordID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return err
	}

	if existing != nil {
		op := e.Operation
		// The remote has not seen the record yet, so the coalesced
		// operation must remain a create.
		if existing.Operation == models.OpCreate && op == models.OpUpdate {
			op = models.OpCreate
		}
		query := `UPDATE outbox SET operation=?, snapshot=?, attempt_count=0,
			next_attempt_at=?, seq=seq+1, last_error='' WHERE record_id=?`
		_, err := r.db.ExecContext(ctx, query,
			op, e.Snapshot, e.NextAttemptAt.UnixNano(), e.RecordID)
		if err != nil {
			return fmt.Errorf("failed to coalesce outbox entry: %w", err)
		}
		return nil
	}

	if capacity > 0 {
		n, err := r.Count(ctx)
		if err != nil {
			return err
		}
		if n >= capacity {
			return common.ErrOutboxFull
		}
	}

	query := `INSERT INTO outbox (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, 1, '')`
	_, err = r.db.ExecContext(ctx, query,
		e.ID, e.RecordID, e.Operation, e.Snapshot, nanos(e.BaseUpdatedAt),
		e.CreatedAt.UnixNano(), e.NextAttemptAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ClaimDue(ctx context.Context, now time.Time, maxAttempts, limit int) ([]models.OutboxEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM outbox
		WHERE next_attempt_at <= ? AND attempt_count < ?
		ORDER BY created_at ASC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, now.UnixNano(), maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox entries: %w", err)
	}
	defer rows.Close()

	var result []models.OutboxEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Remove(ctx context.Context, recordID string, seq int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM outbox WHERE record_id=? AND seq=?`, recordID, seq)
	if err != nil {
		return false, fmt.Errorf("failed to remove outbox entry: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return ra == 1, nil
}

func (r *SQLiteRepository) Fail(ctx context.Context, recordID string, seq int64, errMsg string, nextAttemptAt time.Time) error {
	query := `UPDATE outbox SET attempt_count=attempt_count+1, last_error=?, next_attempt_at=?
		WHERE record_id=? AND seq=?`
	_, err := r.db.ExecContext(ctx, query, errMsg, nextAttemptAt.UnixNano(), recordID, seq)
	if err != nil {
		return fmt.Errorf("failed to record outbox failure: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) SetBase(ctx context.Context, recordID string, seq int64, base, now time.Time) error {
	query := `UPDATE outbox SET base_updated_at=?, next_attempt_at=? WHERE record_id=? AND seq=?`
	_, err := r.db.ExecContext(ctx, query, nanos(base), now.UnixNano(), recordID, seq)
	if err != nil {
		return fmt.Errorf("failed to refresh outbox precondition: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ResetAttempts(ctx context.Context, recordID string, now time.Time) error {
	query := `UPDATE outbox SET attempt_count=0, last_error='', next_attempt_at=? WHERE record_id=?`
	res, err := r.db.ExecContext(ctx, query, now.UnixNano(), recordID)
	if err != nil {
		return fmt.Errorf("failed to reset outbox attempts: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) GetByRecordID(ctx context.Context, recordID string) (*models.OutboxEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM outbox WHERE record_id=?`, recordID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox entry: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count outbox entries: %w", err)
	}
	return n, nil
}

func scanEntry(row interface{ Scan(...any) error }) (*models.OutboxEntry, error) {
	var (
		e             models.OutboxEntry
		base          int64
		createdAt     int64
		nextAttemptAt int64
	)
	err := row.Scan(&e.ID, &e.RecordID, &e.Operation, &e.Snapshot, &base,
		&createdAt, &nextAttemptAt, &e.AttemptCount, &e.Seq, &e.LastError)
	if err != nil {
		return nil, err
	}
	e.BaseUpdatedAt = fromNanos(base)
	e.CreatedAt = time.Unix(0, createdAt).UTC()
	e.NextAttemptAt = time.Unix(0, nextAttemptAt).UTC()
	return &e, nil
}

// A zero time is stored as 0: the zero time.Time predates the int64
// nanosecond range, so UnixNano would be undefined for it.
func nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
