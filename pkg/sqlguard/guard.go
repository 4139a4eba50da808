// Package sqlguard validates model-generated SQL before it reaches the
// database. Checks run in a fixed order and the first hard failure wins;
// warnings are collected and never block execution on their own.
package sqlguard

import (
	"fmt"
	"regexp"
	"strings"
)

// Status is the outcome class of a validation.
type Status string

const (
	StatusValid   Status = "valid"
	StatusInvalid Status = "invalid"
	StatusWarning Status = "warning"
)

// Result describes a validated query.
type Result struct {
	Status    Status   `json:"status"`
	Reason    string   `json:"reason"`
	Warnings  []string `json:"warnings,omitempty"`
	Sanitized string   `json:"sanitized,omitempty"`
}

// Allowed reports whether the query may execute. Warnings do not block.
func (r Result) Allowed() bool {
	return r.Status == StatusValid || r.Status == StatusWarning
}

// DisallowedOperations are mutating or DDL verbs rejected anywhere in a
// query, checked as whole words in list order.
var DisallowedOperations = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "CREATE", "ALTER",
	"TRUNCATE", "GRANT", "REVOKE", "EXEC", "EXECUTE",
}

// AllowedLeads are the statement kinds a query may start with.
var AllowedLeads = []string{"SELECT", "WITH"}

type opPattern struct {
	op string
	re *regexp.Regexp
}

type namedPattern struct {
	re          *regexp.Regexp
	description string
}

// dangerousPatterns are injection shapes, checked in order against the
// upper-cased query. First match wins.
var dangerousPatterns = []namedPattern{
	{regexp.MustCompile(`;\s*(DROP|DELETE|INSERT|UPDATE|TRUNCATE)`), "Multiple statements with dangerous operation"},
	{regexp.MustCompile(`--\s*$`), "SQL comment at end (potential injection)"},
	{regexp.MustCompile(`/\*.*\*/`), "Block comment (potential injection)"},
	{regexp.MustCompile(`UNION\s+ALL\s+SELECT`), "UNION injection pattern"},
	{regexp.MustCompile(`OR\s+1\s*=\s*1`), "Always-true condition (injection pattern)"},
	{regexp.MustCompile(`'\s*OR\s+'`), "String-based injection pattern"},
}

var (
	selectStarRe   = regexp.MustCompile(`SELECT\s+\*`)
	lineCommentRe  = regexp.MustCompile(`--[^\n]*`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	wordRe         = regexp.MustCompile(`\b[a-z_][a-z0-9_]*\b`)
)

// sqlStoplist holds keywords and known table names the column heuristic
// must ignore.
var sqlStoplist = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"select", "from", "where", "and", "or", "not", "in", "is", "null",
		"group", "by", "order", "asc", "desc", "limit", "offset", "having",
		"join", "left", "right", "inner", "outer", "on", "as", "distinct",
		"count", "sum", "avg", "min", "max", "round", "abs", "case", "when",
		"then", "else", "end", "between", "like", "true", "false", "cast",
		"events", "sample_events", "data", "csv", "with", "over", "partition",
		"strftime", "date", "filter", "coalesce", "nullif",
	} {
		sqlStoplist[w] = struct{}{}
	}
}

// Validator checks SQL against the operation, pattern, and column rules.
// A validator built with no columns skips the column heuristic.
type Validator struct {
	columns    map[string]struct{}
	disallowed []opPattern
}

// NewValidator builds a validator. columns is the known schema column set
// for the soft reference check; it may be nil.
func NewValidator(columns []string) *Validator {
	v := &Validator{columns: make(map[string]struct{}, len(columns))}
	for _, c := range columns {
		v.columns[strings.ToLower(c)] = struct{}{}
	}
	for _, op := range DisallowedOperations {
		v.disallowed = append(v.disallowed, opPattern{op: op, re: regexp.MustCompile(`\b` + op + `\b`)})
	}
	return v
}

// DangerousPatternDescriptions returns the injection checks in evaluation
// order. Order is part of the validator's contract.
func DangerousPatternDescriptions() []string {
	out := make([]string, 0, len(dangerousPatterns))
	for _, p := range dangerousPatterns {
		out = append(out, p.description)
	}
	return out
}

// Validate runs the ordered checks and returns the outcome. Invalid results
// carry no sanitized SQL.
func (v *Validator) Validate(sql string) Result {
	clean := strings.TrimSpace(sql)
	upper := strings.ToUpper(clean)

	if clean == "" {
		return Result{Status: StatusInvalid, Reason: "Empty SQL query"}
	}

	for _, p := range v.disallowed {
		if p.re.MatchString(upper) {
			return Result{
				Status: StatusInvalid,
				Reason: fmt.Sprintf("Disallowed SQL operation: %s. Only SELECT queries are permitted.", p.op),
			}
		}
	}

	startsValid := false
	for _, lead := range AllowedLeads {
		if strings.HasPrefix(upper, lead) {
			startsValid = true
			break
		}
	}
	if !startsValid {
		head := upper
		if len(head) > 20 {
			head = head[:20]
		}
		return Result{
			Status: StatusInvalid,
			Reason: fmt.Sprintf("Query must start with SELECT or WITH. Got: %s...", head),
		}
	}

	for _, p := range dangerousPatterns {
		if p.re.MatchString(upper) {
			return Result{
				Status: StatusInvalid,
				Reason: fmt.Sprintf("Potentially dangerous SQL pattern detected: %s", p.description),
			}
		}
	}

	var warnings []string
	if selectStarRe.MatchString(upper) {
		warnings = append(warnings, "SELECT * may return more data than needed")
	}
	if !strings.Contains(upper, "LIMIT") {
		warnings = append(warnings, "Query has no LIMIT clause")
	}
	warnings = append(warnings, v.checkColumns(clean)...)

	sanitized := Sanitize(clean)

	if len(warnings) > 0 {
		return Result{
			Status:    StatusWarning,
			Reason:    "Query is valid but has warnings",
			Warnings:  warnings,
			Sanitized: sanitized,
		}
	}
	return Result{Status: StatusValid, Reason: "SQL query is valid", Sanitized: sanitized}
}

// checkColumns flags tokens that look like column names but match nothing in
// the schema. Heuristic only; results are warnings, never failures.
func (v *Validator) checkColumns(sql string) []string {
	if len(v.columns) == 0 {
		return nil
	}

	var warnings []string
	seen := make(map[string]struct{})
	for _, word := range wordRe.FindAllString(strings.ToLower(sql), -1) {
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}

		if _, ok := sqlStoplist[word]; ok {
			continue
		}
		if _, ok := v.columns[word]; ok {
			continue
		}
		if len(word) <= 2 {
			continue
		}
		if strings.Contains(word, "_") || strings.HasSuffix(word, "_id") || strings.HasSuffix(word, "_date") {
			warnings = append(warnings, fmt.Sprintf("Possible invalid column reference: '%s'", word))
		}
	}
	return warnings
}

// Sanitize strips comments and collapses whitespace. Applying it twice gives
// the same result as applying it once.
func Sanitize(sql string) string {
	sql = lineCommentRe.ReplaceAllString(sql, "")
	sql = blockCommentRe.ReplaceAllString(sql, "")
	return strings.Join(strings.Fields(sql), " ")
}

// AddLimit appends a LIMIT clause when the query has none. A trailing
// semicolon is dropped so the clause lands inside the statement.
func AddLimit(sql string, n int) string {
	if strings.Contains(strings.ToUpper(sql), "LIMIT") {
		return sql
	}
	trimmed := strings.TrimRight(strings.TrimRight(sql, " \t\r\n"), ";")
	return fmt.Sprintf("%s LIMIT %d", trimmed, n)
}
