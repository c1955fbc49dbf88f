package agent

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/mwantia/fabric/pkg/container"
	config "github.com/mwantia/gotape/internal/config/server"
	"github.com/mwantia/gotape/pkg/archive"
	"github.com/mwantia/gotape/pkg/db/store"
	"github.com/mwantia/gotape/pkg/jobs"
	"github.com/mwantia/gotape/pkg/library"
	"github.com/mwantia/gotape/pkg/log"
	"github.com/mwantia/gotape/pkg/recovery"
	"github.com/mwantia/gotape/pkg/tape"
)

type GoTapeAgent struct {
	mutex sync.RWMutex
	wait  sync.WaitGroup

	cfg *config.BaseServerConfig
	sc  *container.ServiceContainer
	log log.LoggerService

	runtime *Runtime
}

func NewAgent(cfg *config.BaseServerConfig) *GoTapeAgent {
	return &GoTapeAgent{
		cfg: cfg,
		sc:  container.NewServiceContainer(),
		log: log.NewLoggerService("gotape", cfg.Log),
	}
}

func (gta *GoTapeAgent) setupServices(ctx context.Context) error {
	errs := container.Errors{}

	gta.log.Debug("Registering 'LoggerService'...")
	errs.Add(container.Register[log.LoggerServiceImpl](gta.sc,
		container.With[log.LoggerService](),
		container.WithInstance(gta.log)))

	runtime, err := NewRuntime(ctx, gta.cfg, gta.log)
	if err != nil {
		return err
	}
	gta.runtime = runtime

	gta.log.Debug("Registering 'CatalogStore'...")
	errs.Add(container.Register[store.SQLiteStore](gta.sc,
		container.With[store.CatalogStore](),
		container.WithInstance(runtime.Catalog)))

	gta.log.Debug("Registering 'TapeManager'...")
	errs.Add(container.Register[tape.Manager](gta.sc,
		container.WithInstance(runtime.Tapes)))

	gta.log.Debug("Registering 'ArchivePipeline'...")
	errs.Add(container.Register[archive.Pipeline](gta.sc,
		container.WithInstance(runtime.Pipeline)))

	gta.log.Debug("Registering 'RecoveryEngine'...")
	errs.Add(container.Register[recovery.Engine](gta.sc,
		container.WithInstance(runtime.Recovery)))

	gta.log.Debug("Registering 'Optimizer'...")
	errs.Add(container.Register[library.Optimizer](gta.sc,
		container.WithInstance(runtime.Optimizer)))

	gta.log.Debug("Registering 'JobRunner'...")
	errs.Add(container.Register[jobs.Runner](gta.sc,
		container.WithInstance(runtime.Jobs)))

	return errs.Errors()
}

func (gta *GoTapeAgent) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	gta.mutex.Lock()

	if err := gta.setupServices(ctx); err != nil {
		gta.mutex.Unlock()
		return err
	}

	gta.mutex.Unlock()

	gta.log.Info("Agent ready, catalog at %s", gta.cfg.Metadata.SQLite.Path)
	<-ctx.Done()

	timeout, err := time.ParseDuration(gta.cfg.ShutdownTimeout)
	if err != nil {
		// Set default of 60 seconds if error
		timeout = 60 * time.Second
	}

	shutdown, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if gta.runtime != nil {
		if err := gta.runtime.Close(shutdown); err != nil {
			gta.log.Warn("Runtime shutdown reported: %v", err)
		}
	}
	if err := gta.sc.Cleanup(shutdown); err != nil {
		return fmt.Errorf("failed to complete service container cleanup: %w", err)
	}

	gta.wait.Wait()
	return nil
}
