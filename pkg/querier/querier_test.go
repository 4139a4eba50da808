package querier

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helioslabs/ledgerscope/pkg/duck"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

const seedCSV = `event_id,event_ts,event_date,account_id,customer_id,product_type,event_type,event_name,channel,event_amount,currency,balance_after
EVT-90001,2024-01-02 09:15:00,2024-01-02,ACC-1001,CUST-501,CHEQUING,money_movement,deposit,DIGITAL,1250.00,USD,3250.00
EVT-90002,2024-01-03 14:40:00,2024-01-03,ACC-1001,CUST-501,CHEQUING,money_movement,withdrawal,BRANCH,-200.00,USD,3050.00
EVT-90003,2024-01-04 11:05:00,2024-01-04,ACC-1002,CUST-502,SAVINGS,money_movement,deposit,DIGITAL,800.00,USD,5800.00
`

func newTestQuerier(t *testing.T) *Querier {
	t.Helper()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "events.csv")
	require.NoError(t, os.WriteFile(path, []byte(seedCSV), 0o644))

	w, err := duck.NewWarehouse(ctx, duck.Config{Logger: testLogger(), DataPath: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	q, err := New(Config{Logger: testLogger(), DB: w})
	require.NoError(t, err)
	return q
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logger is required")

	_, err = New(Config{Logger: testLogger()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is required")
}

func TestQuerierReady(t *testing.T) {
	q := newTestQuerier(t)
	assert.True(t, q.Ready(context.Background()))
}

func TestQuerierTables(t *testing.T) {
	q := newTestQuerier(t)

	tables, err := q.Tables(context.Background())
	require.NoError(t, err)
	assert.Contains(t, tables, duck.DefaultTable)
	assert.Contains(t, tables, duck.SeedTable)
}

func TestQuerierQuery(t *testing.T) {
	q := newTestQuerier(t)

	result, err := q.Query(context.Background(),
		"SELECT event_name, COUNT(*) AS event_count FROM events GROUP BY event_name ORDER BY event_name")
	require.NoError(t, err)

	assert.Equal(t, []string{"event_name", "event_count"}, result.Columns)
	assert.Equal(t, 2, result.Count)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "deposit", result.Rows[0]["event_name"])
	assert.EqualValues(t, 2, result.Rows[0]["event_count"])
	assert.Equal(t, "withdrawal", result.Rows[1]["event_name"])
	assert.EqualValues(t, 1, result.Rows[1]["event_count"])
}

func TestQuerierRewritesSeedTable(t *testing.T) {
	q := newTestQuerier(t)

	result, err := q.Query(context.Background(), "SELECT COUNT(*) AS n FROM sample_events")
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) AS n FROM events", result.SQL)
	require.Len(t, result.Rows, 1)
	assert.EqualValues(t, 3, result.Rows[0]["n"])
}

func TestQuerierEmptyResult(t *testing.T) {
	q := newTestQuerier(t)

	result, err := q.Query(context.Background(), "SELECT event_type FROM events WHERE event_amount > 99999")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Count)
	assert.True(t, result.Empty())
	assert.Equal(t, []string{"event_type"}, result.Columns)
}

func TestQuerierNullValues(t *testing.T) {
	q := newTestQuerier(t)

	result, err := q.Query(context.Background(), "SELECT NULL AS missing FROM events LIMIT 1")
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Nil(t, result.Rows[0]["missing"])
}

func TestQuerierQueryError(t *testing.T) {
	q := newTestQuerier(t)

	_, err := q.Query(context.Background(), "SELECT no_such_column FROM events")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute query")
}
