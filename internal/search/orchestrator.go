package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/press-directory/internal/canonical"
	"github.com/sells-group/press-directory/internal/db"
	"github.com/sells-group/press-directory/internal/model"
	"github.com/sells-group/press-directory/internal/resilience"
	"github.com/sells-group/press-directory/internal/snapshot"
	"github.com/sells-group/press-directory/pkg/meili"
)

// Orchestrator answers filtered company queries. Paths are tried in order —
// full-text engine, in-memory snapshot, direct database query — and the
// first success wins. All paths return the identical response envelope.
type Orchestrator struct {
	engine  meili.Client // nil disables the engine path
	index   string
	manager *snapshot.Manager
	pool    db.Pool
	breaker *resilience.CircuitBreaker
}

// NewOrchestrator wires the three search paths. A circuit breaker sheds
// engine calls during an outage so every request is not taxed the engine
// timeout before falling back.
func NewOrchestrator(engine meili.Client, index string, manager *snapshot.Manager, pool db.Pool) *Orchestrator {
	breaker := resilience.NewCircuitBreaker(resilience.CircuitConfig{
		// A 4xx from the engine is a request problem, not an outage.
		ShouldTrip: func(err error) bool {
			var apiErr *meili.APIError
			if errors.As(err, &apiErr) {
				return apiErr.StatusCode >= 500
			}
			return true
		},
		OnStateChange: func(from, to resilience.CircuitState) {
			zap.L().Warn("search: engine circuit transition",
				zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})
	return &Orchestrator{engine: engine, index: index, manager: manager, pool: pool, breaker: breaker}
}

// Search runs the fallback chain. Only exhaustion of every path returns an
// error; individual path failures are logged and recovered.
func (o *Orchestrator) Search(ctx context.Context, f model.SearchFilter) (*model.SearchResult, error) {
	start := time.Now()

	if o.engine != nil {
		res, err := resilience.ExecuteVal(ctx, o.breaker, func(ctx context.Context) (*model.SearchResult, error) {
			return o.searchEngine(ctx, f)
		})
		if err == nil {
			res.ResponseTimeMS = time.Since(start).Milliseconds()
			return res, nil
		}
		zap.L().Warn("search: engine path failed, trying snapshot", zap.Error(err))
	}

	res, err := o.searchSnapshot(ctx, f)
	if err == nil {
		res.ResponseTimeMS = time.Since(start).Milliseconds()
		return res, nil
	}
	zap.L().Warn("search: snapshot path failed, trying database", zap.Error(err))

	res, err = o.searchDatabase(ctx, f)
	if err == nil {
		res.ResponseTimeMS = time.Since(start).Milliseconds()
		return res, nil
	}
	zap.L().Error("search: all paths exhausted", zap.Error(err))

	return &model.SearchResult{
		Companies:      []model.CompanyRelease{},
		Pagination:     model.NewPagination(1, 0, 0),
		ResponseTimeMS: time.Since(start).Milliseconds(),
		Cache:          model.CacheFallback,
		SearchMethod:   model.MethodDatabase,
		Error:          "search unavailable",
	}, err
}

// searchEngine translates the filter for the full-text engine. The index's
// distinct attribute deduplicates hits on the same canonical key the other
// paths use.
func (o *Orchestrator) searchEngine(ctx context.Context, f model.SearchFilter) (*model.SearchResult, error) {
	page, limit := f.Normalize()

	req := meili.SearchRequest{
		Query:  strings.TrimSpace(f.CompanyName),
		Filter: buildEngineFilter(f),
		Limit:  limit,
		Offset: (page - 1) * limit,
		Sort:   []string{"delivered_at_unix:desc"},
	}
	if f.CountOnly {
		req.Limit = 0
		req.Offset = 0
		req.Sort = nil
	}

	resp, err := o.engine.Search(ctx, o.index, req)
	if err != nil {
		return nil, err
	}

	companies := make([]model.CompanyRelease, 0, len(resp.Hits))
	for _, raw := range resp.Hits {
		var doc Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, eris.Wrap(err, "search: decode engine hit")
		}
		companies = append(companies, doc.CompanyRelease)
	}

	return &model.SearchResult{
		Companies:    companies,
		Pagination:   model.NewPagination(page, limit, resp.EstimatedTotalHits),
		Cache:        model.CacheMiss,
		SearchMethod: model.MethodMeilisearch,
	}, nil
}

// searchSnapshot serves from the deduplicated in-memory view.
func (o *Orchestrator) searchSnapshot(ctx context.Context, f model.SearchFilter) (*model.SearchResult, error) {
	snap, err := o.manager.EnsureReady(ctx)
	if err != nil {
		return nil, err
	}

	page, limit := f.Normalize()
	matched := matchSnapshot(snap, f)
	total := len(matched)

	result := &model.SearchResult{
		Companies:    []model.CompanyRelease{},
		Pagination:   model.NewPagination(page, limit, total),
		Cache:        model.CacheHit,
		SearchMethod: model.MethodMemoryCache,
		RawCount:     snap.RawCount,
	}
	if f.CountOnly {
		return result, nil
	}

	offset := (page - 1) * limit
	if offset < total {
		end := min(offset+limit, total)
		result.Companies = make([]model.CompanyRelease, 0, end-offset)
		for _, i := range matched[offset:end] {
			result.Companies = append(result.Companies, snap.Companies[i])
		}
	}
	return result, nil
}

const releaseColumnsSQL = `id, delivered_at,
	COALESCE(press_release_url, ''), COALESCE(press_release_title, ''),
	COALESCE(press_release_type1, ''), COALESCE(press_release_type2, ''),
	COALESCE(company_name, ''), company_website,
	COALESCE(industry, ''), COALESCE(address, ''), COALESCE(phone, ''),
	COALESCE(representative, ''), COALESCE(listing_status, ''),
	COALESCE(capital_text, ''), capital_amount, established_year, established_month,
	COALESCE(batch_id, '')`

// buildSQLFilter renders the WHERE clause for the database path. The usable
// website condition matches the snapshot builder so all paths dedupe the
// same underlying set.
func buildSQLFilter(f model.SearchFilter) (string, []any) {
	clauses := []string{
		"company_website IS NOT NULL",
		"company_website <> ''",
		"company_website <> '-'",
	}
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if name := strings.TrimSpace(f.CompanyName); name != "" {
		clauses = append(clauses, fmt.Sprintf("company_name ILIKE '%%' || %s || '%%'", arg(name)))
	}
	if len(f.Industries) > 0 {
		clauses = append(clauses, fmt.Sprintf("industry = ANY(%s)", arg(f.Industries)))
	}
	if len(f.PressReleaseTypes) > 0 {
		p := arg(f.PressReleaseTypes)
		clauses = append(clauses, fmt.Sprintf("(press_release_type1 = ANY(%s) OR press_release_type2 = ANY(%s))", p, p))
	}
	if len(f.ListingStatuses) > 0 {
		clauses = append(clauses, fmt.Sprintf("listing_status = ANY(%s)", arg(f.ListingStatuses)))
	}
	if f.CapitalMin != nil {
		clauses = append(clauses, fmt.Sprintf("capital_amount >= %s", arg(*f.CapitalMin)))
	}
	if f.CapitalMax != nil {
		clauses = append(clauses, fmt.Sprintf("capital_amount <= %s", arg(*f.CapitalMax)))
	}
	if f.EstablishedYearMin != nil {
		clauses = append(clauses, fmt.Sprintf("established_year >= %s", arg(*f.EstablishedYearMin)))
	}
	if f.EstablishedYearMax != nil {
		clauses = append(clauses, fmt.Sprintf("established_year <= %s", arg(*f.EstablishedYearMax)))
	}
	if from, to := f.DeliveryRange(); from != nil || to != nil {
		if from != nil {
			clauses = append(clauses, fmt.Sprintf("delivered_at >= %s", arg(*from)))
		}
		if to != nil {
			clauses = append(clauses, fmt.Sprintf("delivered_at <= %s", arg(*to)))
		}
	}

	return strings.Join(clauses, " AND "), args
}

// searchDatabase reproduces canonicalization at query time with DISTINCT ON
// over the canonical-key expression, then re-sorts by delivery date.
func (o *Orchestrator) searchDatabase(ctx context.Context, f model.SearchFilter) (*model.SearchResult, error) {
	page, limit := f.Normalize()
	where, args := buildSQLFilter(f)
	keyExpr := canonical.KeySQL("company_website", "company_name", "id")

	var total int
	countSQL := "SELECT COUNT(DISTINCT " + keyExpr + ") FROM company_releases WHERE " + where
	if err := o.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, eris.Wrap(err, "search: database count")
	}

	result := &model.SearchResult{
		Companies:    []model.CompanyRelease{},
		Pagination:   model.NewPagination(page, limit, total),
		Cache:        model.CacheFallback,
		SearchMethod: model.MethodDatabase,
	}
	if f.CountOnly {
		return result, nil
	}

	query := "SELECT " + releaseColumnsSQL + " FROM (" +
		"SELECT DISTINCT ON (" + keyExpr + ") " + releaseColumnsSQL +
		" FROM company_releases WHERE " + where +
		" ORDER BY " + keyExpr + ", delivered_at DESC, id DESC" +
		") dedup ORDER BY delivered_at DESC, id DESC" +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, (page-1)*limit)

	rows, err := o.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "search: database query")
	}
	defer rows.Close()

	for rows.Next() {
		var c model.CompanyRelease
		if err := rows.Scan(&c.ID, &c.DeliveredAt, &c.PressReleaseURL, &c.PressReleaseTitle,
			&c.PressReleaseType1, &c.PressReleaseType2, &c.CompanyName, &c.CompanyWebsite,
			&c.Industry, &c.Address, &c.Phone, &c.Representative, &c.ListingStatus,
			&c.CapitalText, &c.CapitalAmount, &c.EstablishedYear, &c.EstablishedMonth,
			&c.BatchID); err != nil {
			return nil, eris.Wrap(err, "search: scan database row")
		}
		result.Companies = append(result.Companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "search: iterate database rows")
	}
	return result, nil
}
