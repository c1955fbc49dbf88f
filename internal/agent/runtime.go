package agent

import (
	"context"

	config "github.com/mwantia/gotape/internal/config/server"
	"github.com/mwantia/gotape/pkg/archive"
	"github.com/mwantia/gotape/pkg/db/store"
	"github.com/mwantia/gotape/pkg/jobs"
	"github.com/mwantia/gotape/pkg/library"
	"github.com/mwantia/gotape/pkg/log"
	"github.com/mwantia/gotape/pkg/recovery"
	"github.com/mwantia/gotape/pkg/tape"
)

// Runtime bundles the connected core services. Both the long-running
// agent and the one-shot client commands build one from configuration.
type Runtime struct {
	Catalog   *store.SQLiteStore
	Tapes     *tape.Manager
	Pipeline  *archive.Pipeline
	Recovery  *recovery.Engine
	Optimizer *library.Optimizer
	Jobs      *jobs.Runner

	log log.LoggerService
}

// NewRuntime connects the catalog, discovers external tools and wires
// the core services. Archives left mid-stream by an earlier crash are
// swept to a failed state before anything else runs.
func NewRuntime(ctx context.Context, cfg *config.BaseServerConfig, logger log.LoggerService) (*Runtime, error) {
	catalog, err := store.NewSQLiteStore(store.SQLiteConfig{
		Path: cfg.Metadata.SQLite.Path,
	})
	if err != nil {
		return nil, err
	}
	if err := catalog.Connect(ctx); err != nil {
		return nil, err
	}
	if err := catalog.Migrate(ctx); err != nil {
		catalog.Close()
		return nil, err
	}

	swept, err := catalog.FailStaleStreaming(ctx)
	if err != nil {
		logger.Warn("Stale archive sweep failed: %v", err)
	} else if swept > 0 {
		logger.Warn("Marked %d interrupted archives as failed", swept)
	}

	tools, err := tape.DiscoverTools()
	if err != nil {
		catalog.Close()
		return nil, err
	}
	tapes := tape.NewManager(tools, logger)

	engine, err := recovery.NewEngine(catalog, tapes, logger)
	if err != nil {
		catalog.Close()
		return nil, err
	}

	return &Runtime{
		Catalog:   catalog,
		Tapes:     tapes,
		Pipeline:  archive.NewPipeline(catalog, tapes, cfg.Tape, logger),
		Recovery:  engine,
		Optimizer: library.NewOptimizer(catalog, cfg.Tape.CapacityBytes, logger),
		Jobs:      jobs.NewRunner(logger),
		log:       logger,
	}, nil
}

// Close drains running jobs and closes the catalog.
func (r *Runtime) Close(ctx context.Context) error {
	if err := r.Jobs.Drain(ctx); err != nil {
		r.log.Warn("Job drain incomplete: %v", err)
	}
	return r.Catalog.Close()
}
