package records

import (
	"context"
	"database/sql"
	"encoding/json"
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

const recordColumns = `id, remote_id, kind, title, url, body, tags, fingerprint,
	created_at, updated_at, deleted, sync_state, last_error`

func encodeTags(tags []string) (string, error) {
	if len(tags) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}
	return string(b), nil
}

func scanRecord(row interface{ Scan(...any) error }) (*models.Record, error) {
	var (
		r          models.Record
		tags       string
		createdAt  int64
		updatedAt  int64
		deletedInt int
	)
	err := row.Scan(&r.ID, &r.RemoteID, &r.Kind, &r.Title, &r.URL, &r.Body,
		&tags, &r.Fingerprint, &createdAt, &updatedAt, &deletedInt, &r.SyncState, &r.LastError)
	if err != nil {
		return nil, err
	}
	if tags != "" && tags != "[]" {
		if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags: %w", err)
		}
	}
	r.CreatedAt = time.Unix(0, createdAt).UTC()
	r.UpdatedAt = time.Unix(0, updatedAt).UTC()
	r.Deleted = deletedInt != 0
	return &r, nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, rec *models.Record) error {
	tags, err := encodeTags(rec.Tags)
	if err != nil {
		return err
	}
	query := `INSERT INTO records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		rec.ID, rec.RemoteID, rec.Kind, rec.Title, rec.URL, rec.Body, tags, rec.Fingerprint,
		rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano(), boolToInt(rec.Deleted),
		rec.SyncState, rec.LastError)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Update(ctx context.Context, rec *models.Record) error {
	tags, err := encodeTags(rec.Tags)
	if err != nil {
		return err
	}
	query := `UPDATE records SET kind=?, title=?, url=?, body=?, tags=?, fingerprint=?,
		updated_at=?, sync_state=?, last_error=? WHERE id=?`
	res, err := r.db.ExecContext(ctx, query,
		rec.Kind, rec.Title, rec.URL, rec.Body, tags, rec.Fingerprint,
		rec.UpdatedAt.UnixNano(), rec.SyncState, rec.LastError, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	return requireOneRow(res)
}

func (r *SQLiteRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE records SET deleted=1, updated_at=?, sync_state=? WHERE id=? AND deleted=0`
	res, err := r.db.ExecContext(ctx, query, at.UnixNano(), models.StatePending, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return requireOneRow(res)
}

func (r *SQLiteRepository) Purge(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to purge record: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id=?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE deleted=0 ORDER BY updated_at DESC`
	return r.queryRecords(ctx, query)
}

func (r *SQLiteRepository) Search(ctx context.Context, q Query) ([]models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE 1=1`
	var args []any

	if !q.IncludeDeleted {
		query += ` AND deleted=0`
	}
	if q.Kind != "" {
		query += ` AND kind=?`
		args = append(args, q.Kind)
	}
	if q.Text != "" {
		query += ` AND (title LIKE ? COLLATE NOCASE OR url LIKE ? COLLATE NOCASE OR body LIKE ? COLLATE NOCASE)`
		pattern := "%" + q.Text + "%"
		args = append(args, pattern, pattern, pattern)
	}
	if q.Tag != "" {
		// Tags are stored as a JSON array of strings.
		query += ` AND tags LIKE ?`
		tag, err := json.Marshal(q.Tag)
		if err != nil {
			return nil, fmt.Errorf("failed to encode tag filter: %w", err)
		}
		args = append(args, "%"+string(tag)+"%")
	}
	query += ` ORDER BY updated_at DESC`

	return r.queryRecords(ctx, query, args...)
}

func (r *SQLiteRepository) queryRecords(ctx context.Context, query string, args ...any) ([]models.Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) FindByFingerprint(ctx context.Context, fp string) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE fingerprint=? AND deleted=0 LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, fp)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find record by fingerprint: %w", err)
	}
	return rec, nil
}

func (r *SQLiteRepository) CountActive(ctx context.Context, kind models.Kind) (int, error) {
	query := `SELECT COUNT(*) FROM records WHERE deleted=0`
	var args []any
	if kind != "" {
		query += ` AND kind=?`
		args = append(args, kind)
	}
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) SetSyncState(ctx context.Context, id string, state models.SyncState, lastError string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE records SET sync_state=?, last_error=? WHERE id=?`,
		state, lastError, id)
	if err != nil {
		return fmt.Errorf("failed to set sync state: %w", err)
	}
	return requireOneRow(res)
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id, remoteID string, updatedAt time.Time) error {
	query := `UPDATE records SET remote_id=?, updated_at=?, sync_state=?, last_error='' WHERE id=?`
	res, err := r.db.ExecContext(ctx, query, remoteID, updatedAt.UnixNano(), models.StateSynced, id)
	if err != nil {
		return fmt.Errorf("failed to mark record synced: %w", err)
	}
	return requireOneRow(res)
}

func (r *SQLiteRepository) ApplyRemote(ctx context.Context, id, remoteID string, f models.Fields) error {
	tags, err := encodeTags(f.Tags)
	if err != nil {
		return err
	}
	query := `UPDATE records SET remote_id=?, kind=?, title=?, url=?, body=?, tags=?,
		fingerprint=?, updated_at=?, deleted=?, sync_state=?, last_error='' WHERE id=?`
	res, err := r.db.ExecContext(ctx, query,
		remoteID, f.Kind, f.Title, f.URL, f.Body, tags, f.Fingerprint,
		f.UpdatedAt.UnixNano(), boolToInt(f.Deleted), models.StateSynced, id)
	if err != nil {
		return fmt.Errorf("failed to apply remote record: %w", err)
	}
	return requireOneRow(res)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireOneRow(res sql.Result) error {
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrNotFound
	}
	return nil
}
