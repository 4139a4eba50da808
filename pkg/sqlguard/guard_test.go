package sqlguard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testColumns = []string{
	"event_id", "event_ts", "event_date", "account_id", "customer_id",
	"product_type", "event_type", "event_name", "channel", "event_amount",
	"currency", "balance_after",
}

func TestValidateRejectsInvalidQueries(t *testing.T) {
	v := NewValidator(testColumns)

	tests := []struct {
		name   string
		sql    string
		reason string
	}{
		{
			name:   "empty query",
			sql:    "",
			reason: "Empty SQL query",
		},
		{
			name:   "whitespace only",
			sql:    "   \n\t  ",
			reason: "Empty SQL query",
		},
		{
			name:   "bare drop",
			sql:    "DROP TABLE events",
			reason: "Disallowed SQL operation: DROP. Only SELECT queries are permitted.",
		},
		{
			name: "chained drop is caught by the operation check, not the pattern check",
			sql:  "SELECT * FROM events; DROP TABLE users",
			// DROP appears in the operation list, so the operation rule
			// fires before the multiple-statement pattern is consulted.
			reason: "Disallowed SQL operation: DROP. Only SELECT queries are permitted.",
		},
		{
			name:   "chained truncate",
			sql:    "SELECT 1; TRUNCATE events",
			reason: "Disallowed SQL operation: TRUNCATE. Only SELECT queries are permitted.",
		},
		{
			name:   "insert",
			sql:    "INSERT INTO events VALUES (1)",
			reason: "Disallowed SQL operation: INSERT. Only SELECT queries are permitted.",
		},
		{
			name:   "wrong statement kind",
			sql:    "SHOW TABLES",
			reason: "Query must start with SELECT or WITH. Got: SHOW TABLES...",
		},
		{
			name:   "always true condition",
			sql:    "SELECT * FROM events WHERE channel = 'X' OR 1=1 LIMIT 5",
			reason: "Potentially dangerous SQL pattern detected: Always-true condition (injection pattern)",
		},
		{
			name:   "union injection",
			sql:    "SELECT event_name FROM events UNION ALL SELECT currency FROM events",
			reason: "Potentially dangerous SQL pattern detected: UNION injection pattern",
		},
		{
			name:   "trailing comment",
			sql:    "SELECT 1 --",
			reason: "Potentially dangerous SQL pattern detected: SQL comment at end (potential injection)",
		},
		{
			name:   "inline block comment",
			sql:    "SELECT 1 /* hidden */ FROM events LIMIT 5",
			reason: "Potentially dangerous SQL pattern detected: Block comment (potential injection)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(tt.sql)
			assert.Equal(t, StatusInvalid, res.Status)
			assert.Equal(t, tt.reason, res.Reason)
			assert.False(t, res.Allowed())
			assert.Empty(t, res.Sanitized)
		})
	}
}

func TestValidateOperationsMatchWholeWords(t *testing.T) {
	v := NewValidator(testColumns)

	// "created_month" must not trip CREATE and "updated" must not trip
	// UPDATE; only whole-word matches count.
	res := v.Validate("SELECT strftime(event_date, '%Y-%m') AS created_month FROM events LIMIT 5")
	require.True(t, res.Allowed(), "reason: %s", res.Reason)
}

func TestValidateCleanQuery(t *testing.T) {
	v := NewValidator(testColumns)

	res := v.Validate("SELECT event_type, COUNT(*) AS cnt FROM events GROUP BY event_type ORDER BY cnt DESC LIMIT 10")
	assert.Equal(t, StatusValid, res.Status)
	assert.Equal(t, "SQL query is valid", res.Reason)
	assert.True(t, res.Allowed())
	assert.Empty(t, res.Warnings)
	assert.NotEmpty(t, res.Sanitized)
}

func TestValidateCollectsWarnings(t *testing.T) {
	v := NewValidator(testColumns)

	res := v.Validate("SELECT * FROM events")
	assert.Equal(t, StatusWarning, res.Status)
	assert.Equal(t, "Query is valid but has warnings", res.Reason)
	assert.True(t, res.Allowed())
	assert.Equal(t, []string{
		"SELECT * may return more data than needed",
		"Query has no LIMIT clause",
	}, res.Warnings)
	assert.Equal(t, "SELECT * FROM events", res.Sanitized)
}

func TestValidateFlagsUnknownColumns(t *testing.T) {
	v := NewValidator(testColumns)

	res := v.Validate("SELECT txn_amount FROM events LIMIT 5")
	assert.Equal(t, StatusWarning, res.Status)
	assert.Contains(t, res.Warnings, "Possible invalid column reference: 'txn_amount'")

	// Known columns pass untouched.
	res = v.Validate("SELECT event_amount FROM events LIMIT 5")
	assert.Equal(t, StatusValid, res.Status)
}

func TestValidateSkipsColumnCheckWithoutSchema(t *testing.T) {
	v := NewValidator(nil)

	res := v.Validate("SELECT txn_amount FROM events LIMIT 5")
	assert.Equal(t, StatusValid, res.Status)
	assert.Empty(t, res.Warnings)
}

func TestSanitize(t *testing.T) {
	in := "SELECT event_type -- trailing note\nFROM events /* block\ncomment */ WHERE event_amount > 0"
	want := "SELECT event_type FROM events WHERE event_amount > 0"

	got := Sanitize(in)
	assert.Equal(t, want, got)
	assert.Equal(t, got, Sanitize(got), "sanitize must be idempotent")
}

func TestAddLimit(t *testing.T) {
	assert.Equal(t, "SELECT * FROM events LIMIT 100", AddLimit("SELECT * FROM events;", 100))
	assert.Equal(t, "SELECT * FROM events LIMIT 100", AddLimit("SELECT * FROM events  \n", 100))
	assert.Equal(t, "SELECT * FROM events LIMIT 5", AddLimit("SELECT * FROM events LIMIT 5", 100))
	assert.Equal(t, "SELECT * FROM events limit 5", AddLimit("SELECT * FROM events limit 5", 100))
}

func TestDangerousPatternOrder(t *testing.T) {
	require.Equal(t, []string{
		"Multiple statements with dangerous operation",
		"SQL comment at end (potential injection)",
		"Block comment (potential injection)",
		"UNION injection pattern",
		"Always-true condition (injection pattern)",
		"String-based injection pattern",
	}, DangerousPatternDescriptions())
}
