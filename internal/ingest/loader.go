// Package ingest bulk-loads press-release CSV exports into the durable store.
//
// The load path is COPY into an ephemeral staging relation followed by a
// single transactional INSERT...SELECT promotion, so readers never observe a
// partially-promoted batch and the per-row cost stays at COPY-protocol speed.
package ingest

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/press-directory/internal/batch"
	"github.com/sells-group/press-directory/internal/db"
	"github.com/sells-group/press-directory/internal/model"
)

// Refresher is notified after a batch lands so the search snapshot can be
// rebuilt. Notification is fire-and-forget.
type Refresher interface {
	RefreshInBackground()
}

// Config controls charset handling and the skipped-row accounting policy.
type Config struct {
	// Charset of the CSV payload ("", "utf-8" or any IANA name, e.g. "shift_jis").
	Charset string
	// NullSentinel marks explicit NULLs in the export (besides empty fields).
	NullSentinel string
	// CountSkippedAsErrors controls whether rows excluded by promotion
	// validation appear in the batch error count. When false they are
	// invisible and the batch total shrinks to the promoted count.
	CountSkippedAsErrors bool
}

// DefaultConfig matches the historical exporter behavior.
func DefaultConfig() Config {
	return Config{NullSentinel: "-", CountSkippedAsErrors: true}
}

// Result summarizes one completed (or failed) load.
type Result struct {
	BatchID  string
	Staged   int64
	Promoted int64
	Errors   int
	Status   string
}

// Loader streams CSV payloads into the durable store and keeps the owning
// upload batch up to date.
type Loader struct {
	pool      db.Pool
	tracker   *batch.Tracker
	refresher Refresher
	cfg       Config
}

// NewLoader creates a Loader. refresher may be nil.
func NewLoader(pool db.Pool, tracker *batch.Tracker, refresher Refresher, cfg Config) *Loader {
	return &Loader{pool: pool, tracker: tracker, refresher: refresher, cfg: cfg}
}

// Load ingests one CSV payload under a new batch. Staging or copy failures
// abort the whole batch and mark it failed with a sentinel error count;
// nothing is promoted in that case. The returned error mirrors what was
// recorded on the batch.
func (l *Loader) Load(ctx context.Context, r io.Reader, meta batch.Meta) (*Result, error) {
	batchID, err := l.tracker.Create(ctx, meta)
	if err != nil {
		return nil, err
	}
	return l.loadInto(ctx, r, batchID, meta)
}

// LoadAsync creates the batch synchronously so callers can hand out its id,
// then ingests in the background. Progress is observable via the tracker.
// The reader must stay valid after LoadAsync returns.
func (l *Loader) LoadAsync(ctx context.Context, r io.Reader, meta batch.Meta) (string, error) {
	batchID, err := l.tracker.Create(ctx, meta)
	if err != nil {
		return "", err
	}
	go func() {
		// Detached from the request context; the upload outlives it.
		// loadInto records and logs its own failures.
		_, _ = l.loadInto(context.Background(), r, batchID, meta)
	}()
	return batchID, nil
}

func (l *Loader) loadInto(ctx context.Context, r io.Reader, batchID string, meta batch.Meta) (*Result, error) {
	staged, promoted, err := l.run(ctx, r, batchID)
	if err != nil {
		zap.L().Error("ingest: batch failed",
			zap.String("batch_id", batchID),
			zap.Error(err),
		)
		if failErr := l.tracker.Fail(ctx, batchID); failErr != nil {
			zap.L().Error("ingest: mark failed", zap.String("batch_id", batchID), zap.Error(failErr))
		}
		return &Result{BatchID: batchID, Status: model.StatusFailed, Errors: 1}, err
	}

	skipped := int(staged - promoted)
	errCount := skipped
	total := meta.TotalCount
	if !l.cfg.CountSkippedAsErrors {
		errCount = 0
		total = int(promoted)
	} else if total < int(staged) {
		// Covers an undeclared total and a declared one the payload outgrew;
		// success+error may never exceed the batch total.
		total = int(staged)
	}
	if total != meta.TotalCount || meta.TotalCount == 0 {
		if err := l.tracker.UpdateTotal(ctx, batchID, total); err != nil {
			zap.L().Warn("ingest: update total", zap.String("batch_id", batchID), zap.Error(err))
		}
	}

	status := model.DeriveStatus(int(promoted), errCount)
	if err := l.tracker.UpdateProgress(ctx, batchID, int(promoted), errCount, status); err != nil {
		return nil, err
	}

	zap.L().Info("ingest: batch complete",
		zap.String("batch_id", batchID),
		zap.Int64("staged", staged),
		zap.Int64("promoted", promoted),
		zap.Int("skipped", skipped),
		zap.String("status", status),
	)

	if l.refresher != nil {
		l.refresher.RefreshInBackground()
	}

	return &Result{
		BatchID:  batchID,
		Staged:   staged,
		Promoted: promoted,
		Errors:   errCount,
		Status:   status,
	}, nil
}

// run stages and promotes inside one transaction.
func (l *Loader) run(ctx context.Context, r io.Reader, batchID string) (staged, promoted int64, err error) {
	decoded, err := decodeReader(r, l.cfg.Charset)
	if err != nil {
		return 0, 0, err
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, 0, eris.Wrap(err, "ingest: begin tx")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, createStagingSQL); err != nil {
		return 0, 0, eris.Wrap(err, "ingest: create staging table")
	}

	src := newCSVCopySource(decoded, l.cfg.NullSentinel)
	staged, err = db.CopyFrom(ctx, tx, stagingTable, CSVColumns, src)
	if err != nil {
		return 0, 0, eris.Wrap(err, "ingest: COPY into staging")
	}
	if err := src.Err(); err != nil {
		return 0, 0, err
	}

	tag, err := tx.Exec(ctx, promoteSQL, batchID)
	if err != nil {
		return 0, 0, eris.Wrap(err, "ingest: promote staged rows")
	}
	promoted = tag.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, eris.Wrap(err, "ingest: commit")
	}
	return staged, promoted, nil
}
