package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/press-directory/internal/batch"
	"github.com/sells-group/press-directory/internal/db"
	"github.com/sells-group/press-directory/internal/ingest"
	"github.com/sells-group/press-directory/internal/search"
	"github.com/sells-group/press-directory/internal/snapshot"
	"github.com/sells-group/press-directory/pkg/meili"
)

// env bundles the wired application components shared by the commands.
type env struct {
	pool    *pgxpool.Pool
	tracker *batch.Tracker
	manager *snapshot.Manager
	loader  *ingest.Loader
	engine  meili.Client // nil when no engine is configured
	search  *search.Orchestrator
	indexer *search.Indexer // nil when no engine is configured
}

func (e *env) Close() {
	if e.pool != nil {
		e.pool.Close()
	}
}

// initEnv connects the store, runs migrations, and wires the components.
func initEnv(ctx context.Context) (*env, error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, eris.New("store.database_url is required (PRESSDIR_STORE_DATABASE_URL)")
	}

	pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, &db.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	builder := snapshot.NewBuilder(pool, time.Duration(cfg.Snapshot.BuildTimeoutSecs)*time.Second)
	manager := snapshot.NewManager(builder.Build, time.Duration(cfg.Snapshot.RefreshDebounceSecs)*time.Second)

	tracker := batch.NewTracker(pool)
	loader := ingest.NewLoader(pool, tracker, manager, ingest.Config{
		Charset:              cfg.Ingest.Charset,
		NullSentinel:         cfg.Ingest.NullSentinel,
		CountSkippedAsErrors: cfg.Ingest.CountSkippedAsErrors,
	})

	var engine meili.Client
	var indexer *search.Indexer
	if cfg.Search.EngineURL != "" {
		engine = meili.NewClient(cfg.Search.APIKey,
			meili.WithBaseURL(cfg.Search.EngineURL),
			meili.WithTimeout(time.Duration(cfg.Search.TimeoutSecs)*time.Second),
			meili.WithRateLimit(cfg.Search.RateLimit),
		)
		indexer = search.NewIndexer(engine, cfg.Search.Index, manager)
	}

	return &env{
		pool:    pool,
		tracker: tracker,
		manager: manager,
		loader:  loader,
		engine:  engine,
		search:  search.NewOrchestrator(engine, cfg.Search.Index, manager, pool),
		indexer: indexer,
	}, nil
}
