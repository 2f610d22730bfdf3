package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/dbsmedya/goingest/internal/config"
	"github.com/dbsmedya/goingest/internal/database"
	"github.com/dbsmedya/goingest/internal/ledger"
	"github.com/dbsmedya/goingest/internal/lock"
	"github.com/dbsmedya/goingest/internal/logger"
	"github.com/dbsmedya/goingest/internal/objectstore"
	"github.com/dbsmedya/goingest/internal/pipeline"
	"github.com/dbsmedya/goingest/internal/warehouse"
)

// loadConfig reads the config file, applies CLI overrides and validates.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	overrides := GetCLIOverrides()
	cfg.ApplyOverrides(overrides.LogLevel, overrides.LogFormat,
		overrides.Concurrency, overrides.StagingRoot)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// app holds the connections shared by run and serve.
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	db     *database.Manager
	store  *objectstore.Client
	loader *warehouse.Loader
	ledger *ledger.Ledger // nil when the state database is disabled
}

// newApp connects to the store, the warehouse and, if enabled, the state database.
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, db: database.NewManager(cfg)}

	if err := a.db.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to databases: %w", err)
	}

	store, err := objectstore.New(ctx, &cfg.Store, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}
	a.store = store

	a.loader, err = warehouse.NewLoader(a.db.Warehouse, cfg.WarehouseCallTimeout(), log)
	if err != nil {
		a.Close()
		return nil, err
	}

	if a.db.State != nil {
		a.ledger, err = ledger.New(a.db.State, cfg.Processing.CycleName, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := a.ledger.InitializeTables(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	return a, nil
}

// orchestrator builds a cycle orchestrator wired to the app's connections.
func (a *app) orchestrator() (*pipeline.Orchestrator, error) {
	orch, err := pipeline.NewOrchestrator(a.store, a.loader, pipeline.Options{
		Concurrency: a.cfg.Processing.Concurrency,
		StagingRoot: a.cfg.Processing.StagingRoot,
		Load:        warehouse.LoadOptionsFromConfig(&a.cfg.Warehouse),
	}, a.log)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	if a.ledger != nil {
		orch.SetRecorder(a.ledger)
	}
	return orch, nil
}

// acquireCycleLock takes the cycle lock on the state database. It returns a
// release func, which is a no-op when no lock was taken.
func (a *app) acquireCycleLock(ctx context.Context, force bool) (func(), error) {
	noop := func() {}

	if a.db.State == nil {
		a.log.Debug("State database disabled, running without cycle lock")
		return noop, nil
	}
	if force {
		a.log.Warnw("Skipping cycle lock acquisition (--force flag used)", "cycle", a.cfg.Processing.CycleName)
		return noop, nil
	}

	cycleLock := lock.NewCycleLock(a.db.State, a.cfg.Processing.CycleName)
	if err := cycleLock.AcquireOrFail(ctx); err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			return nil, fmt.Errorf("cycle '%s' is already running on another instance (use --force to override)",
				a.cfg.Processing.CycleName)
		}
		return nil, fmt.Errorf("failed to acquire cycle lock: %w", err)
	}
	a.log.Infow("Acquired advisory lock for cycle", "cycle", a.cfg.Processing.CycleName)

	if a.ledger != nil {
		if _, err := a.ledger.MarkInterrupted(ctx); err != nil {
			a.log.Warnf("Failed to mark interrupted cycles: %v", err)
		}
	}

	return func() {
		if _, err := cycleLock.ReleaseLock(context.Background()); err != nil {
			a.log.Warnf("Failed to release cycle lock: %v", err)
		}
	}, nil
}

// Close releases all connections.
func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Warnf("Failed to close database connections: %v", err)
	}
}
