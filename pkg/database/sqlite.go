package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"soil-platform/pkg/logging"
	"soil-platform/pkg/metrics"
)

// MemoryPath opens a private in-process SQLite database
const MemoryPath = ":memory:"

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// NewSQLiteDB opens a SQLite reference store at cfg.Path
func NewSQLiteDB(cfg *Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*DB, error) {
	cfg.Driver = DriverSQLite
	if cfg.Path == "" {
		cfg.Path = MemoryPath
	}

	// Each connection to :memory: is a separate database, so pin the pool to one
	if cfg.Path == MemoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
		cfg.ConnMaxIdleTime = 0
	}

	db, err := sqlx.Open(DriverSQLite, cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	d, err := newDB(db, cfg, logger, metricsCollector)
	if err != nil {
		return nil, err
	}

	logger.Info(context.Background(), "[DB_INIT] SQLite database opened", logging.Fields{
		"path":           cfg.Path,
		"max_open_conns": cfg.MaxOpenConns,
	})

	return d, nil
}
