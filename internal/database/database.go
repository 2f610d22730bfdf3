// Package database provides warehouse and state database connection management for GoIngest.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/snowflakedb/gosnowflake"

	"github.com/dbsmedya/goingest/internal/config"
)

// Manager handles the warehouse pool and the optional state database.
type Manager struct {
	Warehouse *sql.DB
	State     *sql.DB
	config    *config.Config
}

// NewManager creates a new database manager from configuration.
func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		config: cfg,
	}
}

// Connect establishes the warehouse pool and, when enabled, the state pool.
func (m *Manager) Connect(ctx context.Context) error {
	if err := m.ConnectWarehouse(ctx); err != nil {
		return err
	}

	if m.config.State.Enabled {
		if err := m.ConnectState(ctx); err != nil {
			m.Warehouse.Close()
			m.Warehouse = nil
			return err
		}
	}

	return nil
}

// ConnectWarehouse establishes the warehouse pool only.
func (m *Manager) ConnectWarehouse(ctx context.Context) error {
	dsn, err := BuildWarehouseDSN(&m.config.Warehouse)
	if err != nil {
		return fmt.Errorf("failed to build warehouse DSN: %w", err)
	}

	m.Warehouse, err = connectWithRetry(ctx, "snowflake", dsn,
		m.config.Warehouse.MaxConnections, m.config.Warehouse.MaxIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	return nil
}

// ConnectState establishes the state database pool only.
func (m *Manager) ConnectState(ctx context.Context) error {
	var err error
	m.State, err = connectWithRetry(ctx, "mysql", BuildStateDSN(&m.config.State),
		m.config.State.MaxConnections, m.config.State.MaxIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to state database: %w", err)
	}
	return nil
}

// connectWithRetry attempts to connect with exponential backoff.
func connectWithRetry(ctx context.Context, driver, dsn string, maxOpen, maxIdle int) (*sql.DB, error) {
	var db *sql.DB
	var err error

	maxRetries := 3
	backoff := time.Second

	for i := 0; i < maxRetries; i++ {
		db, err = open(driver, dsn, maxOpen, maxIdle)
		if err == nil {
			if pingErr := db.PingContext(ctx); pingErr == nil {
				return db, nil
			} else {
				db.Close()
				err = pingErr
			}
		}

		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}
	}

	return nil, fmt.Errorf("failed after %d retries: %w", maxRetries, err)
}

func open(driver, dsn string, maxOpen, maxIdle int) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	db.SetConnMaxLifetime(10 * time.Minute)

	return db, nil
}

// BuildWarehouseDSN constructs a Snowflake DSN from configuration.
func BuildWarehouseDSN(cfg *config.WarehouseConfig) (string, error) {
	sfCfg := &gosnowflake.Config{
		Account:   cfg.Account,
		User:      cfg.User,
		Password:  cfg.Password,
		Database:  cfg.Database,
		Schema:    cfg.Schema,
		Warehouse: cfg.Warehouse,
		Role:      cfg.Role,
	}
	return gosnowflake.DSN(sfCfg)
}

// BuildStateDSN constructs a MySQL DSN from configuration.
func BuildStateDSN(cfg *config.StateConfig) string {
	// Format: user:password@tcp(host:port)/database?params
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
	)

	if cfg.Database != "" {
		dsn += cfg.Database
	}

	params := "?parseTime=true"
	switch cfg.TLS {
	case "disable":
		params += "&tls=false"
	case "required":
		params += "&tls=true"
	case "preferred", "":
		params += "&tls=preferred"
	}

	return dsn + params
}

// Close closes all database connections gracefully.
func (m *Manager) Close() error {
	var errs []error

	if m.State != nil {
		if err := m.State.Close(); err != nil {
			errs = append(errs, fmt.Errorf("state close: %w", err))
		}
	}

	if m.Warehouse != nil {
		if err := m.Warehouse.Close(); err != nil {
			errs = append(errs, fmt.Errorf("warehouse close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing connections: %v", errs)
	}
	return nil
}

// Ping verifies all connections are alive.
func (m *Manager) Ping(ctx context.Context) error {
	if m.Warehouse != nil {
		if err := m.Warehouse.PingContext(ctx); err != nil {
			return fmt.Errorf("warehouse ping failed: %w", err)
		}
	}

	if m.State != nil {
		if err := m.State.PingContext(ctx); err != nil {
			return fmt.Errorf("state ping failed: %w", err)
		}
	}

	return nil
}
