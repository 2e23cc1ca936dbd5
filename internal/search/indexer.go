package search

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/press-directory/internal/resilience"
	"github.com/sells-group/press-directory/internal/snapshot"
	"github.com/sells-group/press-directory/pkg/meili"
)

const defaultSyncBatchSize = 1000

// Indexer pushes the canonical company set into the full-text engine.
type Indexer struct {
	engine    meili.Client
	index     string
	manager   *snapshot.Manager
	batchSize int
	retry     resilience.RetryConfig
}

// NewIndexer creates an Indexer syncing from the snapshot manager. Document
// pushes retry on engine outages but not on rejected payloads.
func NewIndexer(engine meili.Client, index string, manager *snapshot.Manager) *Indexer {
	retry := resilience.DefaultRetryConfig()
	retry.ShouldRetry = func(err error) bool {
		var apiErr *meili.APIError
		if errors.As(err, &apiErr) {
			return apiErr.StatusCode >= 500
		}
		return true
	}
	retry.OnRetry = resilience.RetryLogger("push index documents")
	return &Indexer{engine: engine, index: index, manager: manager, batchSize: defaultSyncBatchSize, retry: retry}
}

// Configure pushes the index settings. The distinct attribute must stay
// canonical_key or engine results stop deduplicating on the same identity
// as the snapshot and database paths.
func (ix *Indexer) Configure(ctx context.Context) error {
	distinct := "canonical_key"
	settings := meili.Settings{
		SearchableAttributes: []string{"company_name", "press_release_title", "industry", "address", "representative"},
		FilterableAttributes: []string{
			"industry", "press_release_types", "listing_status",
			"capital_amount", "established_year", "delivered_at_unix", "capital_bracket",
		},
		SortableAttributes: []string{"delivered_at_unix", "capital_amount"},
		DistinctAttribute:  &distinct,
	}
	if _, err := ix.engine.UpdateSettings(ctx, ix.index, settings); err != nil {
		return eris.Wrapf(err, "search: configure index %s", ix.index)
	}
	return nil
}

// SyncAll rebuilds the snapshot and pushes every canonical company to the
// engine in batches. Returns the number of documents pushed.
func (ix *Indexer) SyncAll(ctx context.Context) (int, error) {
	if err := ix.Configure(ctx); err != nil {
		return 0, err
	}

	snap, err := ix.manager.Refresh(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "search: refresh snapshot for sync")
	}

	docs := make([]Document, 0, ix.batchSize)
	pushed := 0
	flush := func() error {
		if len(docs) == 0 {
			return nil
		}
		err := resilience.Do(ctx, ix.retry, func(ctx context.Context) error {
			_, err := ix.engine.AddDocuments(ctx, ix.index, docs)
			return err
		})
		if err != nil {
			return eris.Wrapf(err, "search: push %d documents", len(docs))
		}
		pushed += len(docs)
		docs = docs[:0]
		return nil
	}

	for i, c := range snap.Companies {
		docs = append(docs, newDocument(c, snap.Keys[i]))
		if len(docs) >= ix.batchSize {
			if err := flush(); err != nil {
				return pushed, err
			}
		}
	}
	if err := flush(); err != nil {
		return pushed, err
	}

	zap.L().Info("search: index sync complete",
		zap.String("index", ix.index),
		zap.Int("documents", pushed),
		zap.Int("raw_rows", snap.RawCount))
	return pushed, nil
}
