package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/press-directory/internal/db"
	"github.com/sells-group/press-directory/internal/model"
)

// DefaultBuildTimeout bounds the full-snapshot query so a runaway scan
// degrades to the database fallback path instead of hanging the manager.
const DefaultBuildTimeout = 60 * time.Second

// selectUsableSQL loads every row with a usable website. Rows with NULL,
// empty or "-" websites are excluded from canonicalization entirely.
const selectUsableSQL = `SELECT id, delivered_at,
	COALESCE(press_release_url, ''), COALESCE(press_release_title, ''),
	COALESCE(press_release_type1, ''), COALESCE(press_release_type2, ''),
	COALESCE(company_name, ''), company_website,
	COALESCE(industry, ''), COALESCE(address, ''), COALESCE(phone, ''),
	COALESCE(representative, ''), COALESCE(listing_status, ''),
	COALESCE(capital_text, ''), capital_amount, established_year, established_month,
	COALESCE(batch_id, '')
FROM company_releases
WHERE company_website IS NOT NULL AND company_website <> '' AND company_website <> '-'`

// Builder loads the durable store and produces deduplicated snapshots.
type Builder struct {
	pool    db.Pool
	timeout time.Duration
}

// NewBuilder creates a Builder. A non-positive timeout falls back to
// DefaultBuildTimeout.
func NewBuilder(pool db.Pool, timeout time.Duration) *Builder {
	if timeout <= 0 {
		timeout = DefaultBuildTimeout
	}
	return &Builder{pool: pool, timeout: timeout}
}

// Build runs the snapshot query under a statement timeout and deduplicates
// the result in one pass.
func (b *Builder) Build(ctx context.Context) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "snapshot: begin tx")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", b.timeout.Milliseconds())); err != nil {
		return nil, eris.Wrap(err, "snapshot: set statement timeout")
	}

	rows, err := tx.Query(ctx, selectUsableSQL)
	if err != nil {
		return nil, eris.Wrap(err, "snapshot: query releases")
	}
	defer rows.Close()

	var releases []model.CompanyRelease
	for rows.Next() {
		var c model.CompanyRelease
		if err := rows.Scan(&c.ID, &c.DeliveredAt, &c.PressReleaseURL, &c.PressReleaseTitle,
			&c.PressReleaseType1, &c.PressReleaseType2, &c.CompanyName, &c.CompanyWebsite,
			&c.Industry, &c.Address, &c.Phone, &c.Representative, &c.ListingStatus,
			&c.CapitalText, &c.CapitalAmount, &c.EstablishedYear, &c.EstablishedMonth,
			&c.BatchID); err != nil {
			return nil, eris.Wrap(err, "snapshot: scan release")
		}
		releases = append(releases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "snapshot: iterate releases")
	}
	rows.Close()

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "snapshot: commit")
	}

	s := BuildFromReleases(releases)
	zap.L().Info("snapshot: built",
		zap.Int("raw_rows", s.RawCount),
		zap.Int("companies", s.Size()),
		zap.Int("domain_fallbacks", s.DomainFallbacks),
	)
	return s, nil
}
