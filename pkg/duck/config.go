package duck

import (
	"fmt"
	"log/slog"
)

const (
	// DefaultTable is the queryable view all generated SQL targets.
	DefaultTable = "events"

	// SeedTable is the raw table the CSV seed loads into. The events view
	// selects from it so generated SQL can use either name.
	SeedTable = "sample_events"
)

type Config struct {
	Logger *slog.Logger

	// Path is the DuckDB database file. Empty means in-memory.
	Path string

	// DataPath is an optional CSV file loaded into the events table on
	// startup. Existing data is left untouched when empty.
	DataPath string

	// Table overrides the queryable view name. Defaults to DefaultTable.
	Table string
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	return nil
}
