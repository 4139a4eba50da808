// Package history persists completed runs to SQLite for replay, feedback
// collection, and aggregate statistics.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/helioslabs/ledgerscope/pkg/pipeline"
	"github.com/helioslabs/ledgerscope/pkg/querier"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id                  TEXT PRIMARY KEY,
	question            TEXT NOT NULL,
	intent              TEXT,
	sql_query           TEXT,
	result_summary_json TEXT,
	final_text          TEXT,
	trace_json          TEXT,
	score               REAL,
	tier                TEXT,
	scores_json         TEXT,
	user_score          INTEGER,
	user_feedback       TEXT,
	latency_ms          REAL DEFAULT 0,
	tokens_in           INTEGER DEFAULT 0,
	tokens_out          INTEGER DEFAULT 0,
	error_count         INTEGER DEFAULT 0,
	created_at          TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_user_score ON runs(user_score);
`

// maxSampleRows bounds the rows kept in the stored result summary.
const maxSampleRows = 3

// ErrNotFound is returned when a run id does not exist.
var ErrNotFound = errors.New("run not found")

// ResultSummary is the compact result shape stored per run.
type ResultSummary struct {
	RowCount int           `json:"row_count"`
	Columns  []string      `json:"columns"`
	Sample   []querier.Row `json:"sample,omitempty"`
}

// Run is a stored pipeline run.
type Run struct {
	ID            string             `json:"id"`
	Question      string             `json:"question"`
	Intent        string             `json:"intent,omitempty"`
	SQL           string             `json:"sql,omitempty"`
	ResultSummary *ResultSummary     `json:"result_summary,omitempty"`
	FinalText     string             `json:"final_text,omitempty"`
	Trace         json.RawMessage    `json:"trace,omitempty"`
	Score         float64            `json:"score"`
	Tier          string             `json:"tier,omitempty"`
	Components    map[string]float64 `json:"components,omitempty"`
	UserScore     *int               `json:"user_score,omitempty"`
	UserFeedback  string             `json:"user_feedback,omitempty"`
	LatencyMS     float64            `json:"latency_ms"`
	TokensIn      int64              `json:"tokens_in"`
	TokensOut     int64              `json:"tokens_out"`
	ErrorCount    int                `json:"error_count"`
	CreatedAt     time.Time          `json:"created_at"`
}

// Rated reports whether the run has user feedback.
func (r *Run) Rated() bool {
	return r.UserScore != nil
}

// Stats aggregates the stored runs.
type Stats struct {
	TotalRuns       int     `json:"total_runs"`
	AvgScore        float64 `json:"avg_score"`
	AvgUserScore    float64 `json:"avg_user_score"`
	AvgLatencyMS    float64 `json:"avg_latency_ms"`
	AvgTokens       float64 `json:"avg_tokens"`
	ErrorRatePct    float64 `json:"error_rate_pct"`
	RatedPct        float64 `json:"rated_pct"`
	RatedRuns       int     `json:"rated_runs"`
	RunsWithErrors  int     `json:"runs_with_errors"`
}

type Config struct {
	Logger *slog.Logger

	// Path is the SQLite database file.
	Path string
}

func (cfg *Config) Validate() error {
	if cfg.Path == "" {
		return fmt.Errorf("database path is required")
	}
	return nil
}

// Store persists runs in SQLite. It implements pipeline.Recorder.
type Store struct {
	log *slog.Logger
	db  *sql.DB
}

// New opens the database, enables WAL, and runs migrations.
func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate history config: %w", err)
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to migrate history db: %w", err)
	}

	return &Store{log: cfg.Logger, db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores a completed pipeline run. It satisfies pipeline.Recorder.
func (s *Store) Record(ctx context.Context, result *pipeline.RunResult) error {
	run := &Run{
		ID:         result.RunID,
		Question:   result.Question,
		Intent:     string(result.Intent),
		SQL:        result.SQL,
		FinalText:  result.FinalText,
		LatencyMS:  float64(result.Elapsed) / float64(time.Millisecond),
		TokensIn:   result.TokensIn,
		TokensOut:  result.TokensOut,
		ErrorCount: len(result.Errors),
		CreatedAt:  result.StartedAt,
	}
	if result.Result != nil {
		sample := result.Result.Rows
		if len(sample) > maxSampleRows {
			sample = sample[:maxSampleRows]
		}
		run.ResultSummary = &ResultSummary{
			RowCount: result.Result.Count,
			Columns:  result.Result.Columns,
			Sample:   sample,
		}
	}
	if result.Confidence != nil {
		run.Score = result.Confidence.Score
		run.Tier = string(result.Confidence.Tier)
		run.Components = result.Confidence.Components
	}
	if len(result.Trace) > 0 {
		trace, err := json.Marshal(result.Trace)
		if err != nil {
			return fmt.Errorf("failed to encode trace: %w", err)
		}
		run.Trace = trace
	}

	return s.Save(ctx, run)
}

// Save inserts or replaces a run.
func (s *Store) Save(ctx context.Context, run *Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}

	summary, err := marshalNullable(run.ResultSummary)
	if err != nil {
		return fmt.Errorf("failed to encode result summary: %w", err)
	}
	components, err := marshalNullable(run.Components)
	if err != nil {
		return fmt.Errorf("failed to encode score components: %w", err)
	}

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (
			id, question, intent, sql_query,
			result_summary_json, final_text, trace_json,
			score, tier, scores_json, user_score, user_feedback,
			latency_ms, tokens_in, tokens_out, error_count, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Question, nullString(run.Intent), nullString(run.SQL),
		summary, nullString(run.FinalText), nullRaw(run.Trace),
		run.Score, nullString(run.Tier), components, nullIntPtr(run.UserScore), nullString(run.UserFeedback),
		run.LatencyMS, run.TokensIn, run.TokensOut, run.ErrorCount,
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	if s.log != nil {
		s.log.Debug("history: saved run", "run_id", run.ID, "score", run.Score)
	}
	return nil
}

// Get returns one run by id.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, selectRuns+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	return run, nil
}

// Recent returns the newest runs, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryRuns(ctx, selectRuns+` ORDER BY created_at DESC LIMIT ?`, limit)
}

// Unrated returns recent runs with no user feedback yet.
func (s *Store) Unrated(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryRuns(ctx,
		selectRuns+` WHERE user_score IS NULL ORDER BY created_at DESC LIMIT ?`, limit)
}

// UpdateFeedback attaches a 1-5 rating and optional comment to a run.
func (s *Store) UpdateFeedback(ctx context.Context, id string, score int, comment string) error {
	if score < 1 || score > 5 {
		return fmt.Errorf("score must be between 1 and 5, got %d", score)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET user_score = ?, user_feedback = ? WHERE id = ?`,
		score, nullString(comment), id)
	if err != nil {
		return fmt.Errorf("failed to update feedback: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check feedback update: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats aggregates all stored runs.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(AVG(score), 0),
			COALESCE(AVG(user_score), 0),
			COALESCE(AVG(latency_ms), 0),
			COALESCE(AVG(tokens_in + tokens_out), 0),
			COALESCE(SUM(CASE WHEN error_count > 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN user_score IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM runs`)

	var stats Stats
	if err := row.Scan(
		&stats.TotalRuns, &stats.AvgScore, &stats.AvgUserScore,
		&stats.AvgLatencyMS, &stats.AvgTokens,
		&stats.RunsWithErrors, &stats.RatedRuns,
	); err != nil {
		return nil, fmt.Errorf("failed to aggregate stats: %w", err)
	}

	if stats.TotalRuns > 0 {
		stats.ErrorRatePct = float64(stats.RunsWithErrors) / float64(stats.TotalRuns) * 100
		stats.RatedPct = float64(stats.RatedRuns) / float64(stats.TotalRuns) * 100
	}
	return &stats, nil
}

const selectRuns = `
	SELECT id, question, intent, sql_query,
	       result_summary_json, final_text, trace_json,
	       score, tier, scores_json, user_score, user_feedback,
	       latency_ms, tokens_in, tokens_out, error_count, created_at
	FROM runs`

func (s *Store) queryRuns(ctx context.Context, query string, args ...any) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run        Run
		intent     sql.NullString
		sqlQuery   sql.NullString
		summary    sql.NullString
		finalText  sql.NullString
		trace      sql.NullString
		tier       sql.NullString
		components sql.NullString
		userScore  sql.NullInt64
		feedback   sql.NullString
		createdAt  string
	)

	if err := row.Scan(
		&run.ID, &run.Question, &intent, &sqlQuery,
		&summary, &finalText, &trace,
		&run.Score, &tier, &components, &userScore, &feedback,
		&run.LatencyMS, &run.TokensIn, &run.TokensOut, &run.ErrorCount, &createdAt,
	); err != nil {
		return nil, err
	}

	run.Intent = intent.String
	run.SQL = sqlQuery.String
	run.FinalText = finalText.String
	run.Tier = tier.String
	run.UserFeedback = feedback.String
	if trace.Valid {
		run.Trace = json.RawMessage(trace.String)
	}
	if summary.Valid {
		if err := json.Unmarshal([]byte(summary.String), &run.ResultSummary); err != nil {
			return nil, fmt.Errorf("failed to decode result summary: %w", err)
		}
	}
	if components.Valid {
		if err := json.Unmarshal([]byte(components.String), &run.Components); err != nil {
			return nil, fmt.Errorf("failed to decode score components: %w", err)
		}
	}
	if userScore.Valid {
		v := int(userScore.Int64)
		run.UserScore = &v
	}
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		run.CreatedAt = ts
	}

	return &run, nil
}

func marshalNullable(v any) (any, error) {
	switch val := v.(type) {
	case *ResultSummary:
		if val == nil {
			return nil, nil
		}
	case map[string]float64:
		if len(val) == 0 {
			return nil, nil
		}
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
