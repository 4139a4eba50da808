// Package duck manages the DuckDB warehouse behind the analytics pipeline.
// It opens the database, seeds the events table from CSV when asked, and
// hands out connections pinned to the events schema.
package duck

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
)

// DB is the warehouse handle the querier works against.
type DB interface {
	Conn(ctx context.Context) (Connection, error)
	Table() string
	Close() error
}

// Connection is a single database connection. Callers must Close it.
type Connection interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	Close() error
}

type Warehouse struct {
	log   *slog.Logger
	db    *sql.DB
	table string
}

type warehouseConn struct {
	conn *sql.Conn
}

func (c *warehouseConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.conn.ExecContext(ctx, query, args...)
}

func (c *warehouseConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.conn.QueryContext(ctx, query, args...)
}

func (c *warehouseConn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.conn.QueryRowContext(ctx, query, args...)
}

func (c *warehouseConn) Close() error {
	return c.conn.Close()
}

// NewWarehouse opens the DuckDB database described by cfg and seeds the
// events table when cfg.DataPath is set. The returned warehouse owns the
// underlying handle; Close releases it.
func NewWarehouse(ctx context.Context, cfg Config) (*Warehouse, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate warehouse config: %w", err)
	}

	dsn := ""
	if cfg.Path != "" {
		abs, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = abs
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	w := &Warehouse{log: cfg.Logger, db: db, table: cfg.Table}

	if cfg.DataPath != "" {
		if err := w.seed(ctx, cfg.DataPath); err != nil {
			db.Close()
			return nil, err
		}
	}

	return w, nil
}

// seed loads the CSV into the raw table and points the events view at it.
// Reseeding replaces the previous contents.
func (w *Warehouse) seed(ctx context.Context, dataPath string) error {
	abs, err := filepath.Abs(dataPath)
	if err != nil {
		return fmt.Errorf("failed to resolve data path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("data file not readable: %w", err)
	}

	load := fmt.Sprintf(
		`CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv_auto('%s', header=true)`,
		SeedTable, escapeLiteral(abs),
	)
	if _, err := w.db.ExecContext(ctx, load); err != nil {
		return fmt.Errorf("failed to load data file: %w", err)
	}

	view := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM %s`, w.table, SeedTable)
	if _, err := w.db.ExecContext(ctx, view); err != nil {
		return fmt.Errorf("failed to create events view: %w", err)
	}

	var count int64
	if err := w.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, w.table)).Scan(&count); err != nil {
		return fmt.Errorf("failed to count seeded rows: %w", err)
	}
	w.log.Info("seeded events table", "path", abs, "rows", count)
	return nil
}

func (w *Warehouse) Table() string {
	return w.table
}

func (w *Warehouse) Close() error {
	return w.db.Close()
}

func (w *Warehouse) Conn(ctx context.Context) (Connection, error) {
	conn, err := w.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &warehouseConn{conn: conn}, nil
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
