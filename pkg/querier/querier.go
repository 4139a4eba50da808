// Package querier executes read-only SQL against the warehouse and returns
// results in a column/row shape the rest of the pipeline shares.
package querier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/helioslabs/ledgerscope/pkg/duck"
)

type Config struct {
	Logger *slog.Logger
	DB     duck.DB
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.DB == nil {
		return fmt.Errorf("database is required")
	}
	return nil
}

type Querier struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Querier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate querier config: %w", err)
	}
	return &Querier{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// Ready reports whether the warehouse answers a trivial probe.
func (q *Querier) Ready(ctx context.Context) bool {
	conn, err := q.cfg.DB.Conn(ctx)
	if err != nil {
		return false
	}
	defer conn.Close()

	var one int
	if err := conn.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		q.log.Debug("querier: readiness probe failed", "error", err)
		return false
	}
	return true
}

// Tables lists the tables and views visible to generated queries.
func (q *Querier) Tables(ctx context.Context) ([]string, error) {
	conn, err := q.cfg.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, `SELECT table_name FROM information_schema.tables ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return tables, nil
}

func (q *Querier) Query(ctx context.Context, sql string) (*ResultSet, error) {
	sql = q.normalizeTable(sql)

	conn, err := q.cfg.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	var resultRows []Row
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(Row)
		for i, col := range columns {
			val := values[i]
			if val == nil {
				row[col] = nil
			} else {
				switch v := val.(type) {
				case []byte:
					row[col] = string(v)
				default:
					row[col] = val
				}
			}
		}
		resultRows = append(resultRows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &ResultSet{
		SQL:     sql,
		Columns: columns,
		Rows:    resultRows,
		Count:   len(resultRows),
	}, nil
}

// normalizeTable rewrites the raw seed table name to the canonical view so
// generated SQL works whichever name the model picked.
func (q *Querier) normalizeTable(sql string) string {
	table := q.cfg.DB.Table()
	if table == "" || table == duck.SeedTable {
		return sql
	}
	return strings.ReplaceAll(sql, duck.SeedTable, table)
}
