// Package batch records the lifecycle of CSV upload batches and answers
// progress polls.
package batch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/press-directory/internal/db"
	"github.com/sells-group/press-directory/internal/model"
)

// ErrNotFound is returned when a batch id does not exist.
var ErrNotFound = eris.New("batch: not found")

// Meta describes a new upload at ingestion start.
type Meta struct {
	Filename   string
	TotalCount int
	FileSize   int64
	UploadedBy string
}

// Tracker provides read/write access to the upload_batches table.
type Tracker struct {
	pool db.Pool
}

// NewTracker creates a Tracker backed by the given connection pool.
func NewTracker(pool db.Pool) *Tracker {
	return &Tracker{pool: pool}
}

// Create inserts a new batch row with status processing and returns its id.
func (t *Tracker) Create(ctx context.Context, meta Meta) (string, error) {
	id := uuid.NewString()
	_, err := t.pool.Exec(ctx,
		`INSERT INTO upload_batches (id, filename, total_count, success_count, error_count, file_size, uploaded_by, status, created_at)
		 VALUES ($1, $2, $3, 0, 0, $4, $5, $6, now())`,
		id, meta.Filename, meta.TotalCount, meta.FileSize, meta.UploadedBy, model.StatusProcessing,
	)
	if err != nil {
		return "", eris.Wrapf(err, "batch: create %s", meta.Filename)
	}
	return id, nil
}

// UpdateTotal corrects the declared row count once the staged count is known.
func (t *Tracker) UpdateTotal(ctx context.Context, id string, total int) error {
	_, err := t.pool.Exec(ctx,
		`UPDATE upload_batches SET total_count = $1, updated_at = now() WHERE id = $2`,
		total, id,
	)
	if err != nil {
		return eris.Wrapf(err, "batch: update total %s", id)
	}
	return nil
}

// UpdateProgress writes counts and status for a batch. Only the owning loader
// run calls this; pollers use Progress.
func (t *Tracker) UpdateProgress(ctx context.Context, id string, success, errCount int, status string) error {
	_, err := t.pool.Exec(ctx,
		`UPDATE upload_batches SET success_count = $1, error_count = $2, status = $3, updated_at = now() WHERE id = $4`,
		success, errCount, status, id,
	)
	if err != nil {
		return eris.Wrapf(err, "batch: update progress %s", id)
	}
	return nil
}

// Fail marks a batch as failed with a sentinel error count. Used when the
// whole ingestion aborts before any row is promoted.
func (t *Tracker) Fail(ctx context.Context, id string) error {
	return t.UpdateProgress(ctx, id, 0, 1, model.StatusFailed)
}

// Progress returns the polling view of a batch. Read-only and idempotent.
func (t *Tracker) Progress(ctx context.Context, id string) (*model.BatchProgress, error) {
	var p model.BatchProgress
	p.BatchID = id
	err := t.pool.QueryRow(ctx,
		`SELECT success_count, total_count, error_count, status FROM upload_batches WHERE id = $1`,
		id,
	).Scan(&p.Processed, &p.Total, &p.Errors, &p.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "batch: progress %s", id)
	}
	return &p, nil
}

// List returns the most recent batches, newest first.
func (t *Tracker) List(ctx context.Context, limit int) ([]model.UploadBatch, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := t.pool.Query(ctx,
		`SELECT id, filename, total_count, success_count, error_count, file_size, COALESCE(uploaded_by, ''), status, created_at, updated_at
		 FROM upload_batches ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "batch: list")
	}
	defer rows.Close()

	var batches []model.UploadBatch
	for rows.Next() {
		var b model.UploadBatch
		var updatedAt *time.Time
		if err := rows.Scan(&b.ID, &b.Filename, &b.TotalCount, &b.SuccessCount, &b.ErrorCount,
			&b.FileSize, &b.UploadedBy, &b.Status, &b.CreatedAt, &updatedAt); err != nil {
			return nil, eris.Wrap(err, "batch: scan batch")
		}
		b.UpdatedAt = updatedAt
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// Delete removes a batch and every company release it owns. Returns the
// number of deleted releases.
func (t *Tracker) Delete(ctx context.Context, id string) (int64, error) {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "batch: delete %s: begin tx", id)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM company_releases WHERE batch_id = $1`, id)
	if err != nil {
		return 0, eris.Wrapf(err, "batch: delete releases for %s", id)
	}
	deleted := tag.RowsAffected()

	batchTag, err := tx.Exec(ctx, `DELETE FROM upload_batches WHERE id = $1`, id)
	if err != nil {
		return 0, eris.Wrapf(err, "batch: delete row %s", id)
	}
	if batchTag.RowsAffected() == 0 {
		return 0, ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "batch: delete %s: commit", id)
	}
	return deleted, nil
}
