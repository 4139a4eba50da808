// Package quality inspects query results before they reach the user. Checks
// run in a fixed order and each yields pass, warning, or fail; the privacy
// check is the only one that can fail a result outright.
package quality

import (
	"fmt"
	"sort"
	"strings"

	"github.com/helioslabs/ledgerscope/pkg/querier"
)

type CheckStatus string

const (
	StatusPass    CheckStatus = "pass"
	StatusWarning CheckStatus = "warning"
	StatusFail    CheckStatus = "fail"
)

// Check names, in evaluation order.
const (
	CheckHasData  = "has_data"
	CheckNulls    = "null_check"
	CheckRowCount = "row_count"
	CheckNumeric  = "numeric_check"
	CheckPrivacy  = "privacy"
)

const (
	// DefaultKThreshold is the minimum group size a grouped result may
	// expose without a privacy concern.
	DefaultKThreshold = 5

	largeResultRows = 10000
	outlierRatio    = 100.0
)

// forbiddenColumns identify individual people or accounts and must never
// appear in user-facing results.
var forbiddenColumns = []string{"customer_id", "account_id"}

// Check is the outcome of a single inspection.
type Check struct {
	Name       string         `json:"name"`
	Status     CheckStatus    `json:"status"`
	Message    string         `json:"message"`
	NullCounts map[string]int `json:"null_counts,omitempty"`
}

// Privacy summarises the k-anonymity posture of a result.
type Privacy struct {
	KMet      bool     `json:"k_met"`
	Threshold int      `json:"threshold"`
	Concerns  []string `json:"concerns,omitempty"`
}

// Report is the combined outcome of all checks against one result.
type Report struct {
	Status  CheckStatus `json:"status"`
	Message string      `json:"message"`
	Checks  []Check     `json:"checks"`
	Privacy Privacy     `json:"privacy"`
}

// Passed reports whether the result may be shown. Warnings pass.
func (r *Report) Passed() bool {
	return r != nil && r.Status != StatusFail
}

// HasSmallGroups reports whether the privacy check flagged groups below the
// k-anonymity threshold. Identifier exposure is a fail, not a small group.
func (r *Report) HasSmallGroups() bool {
	if r == nil || r.Privacy.KMet {
		return false
	}
	for _, c := range r.Checks {
		if c.Name == CheckPrivacy && c.Status == StatusWarning {
			return true
		}
	}
	return false
}

type Checker struct {
	threshold int
}

func NewChecker() *Checker {
	return NewCheckerWithThreshold(DefaultKThreshold)
}

func NewCheckerWithThreshold(k int) *Checker {
	if k <= 0 {
		k = DefaultKThreshold
	}
	return &Checker{threshold: k}
}

// Validate runs every check against the result and rolls them up. A nil
// result fails without running any checks.
func (c *Checker) Validate(result *querier.ResultSet) *Report {
	if result == nil {
		return &Report{
			Status:  StatusFail,
			Message: "no result to validate",
			Privacy: Privacy{KMet: true, Threshold: c.threshold},
		}
	}

	report := &Report{Privacy: Privacy{KMet: true, Threshold: c.threshold}}
	report.Checks = append(report.Checks, c.checkHasData(result))
	report.Checks = append(report.Checks, c.checkNulls(result))
	report.Checks = append(report.Checks, c.checkRowCount(result))
	report.Checks = append(report.Checks, c.checkNumeric(result))
	report.Checks = append(report.Checks, c.checkPrivacy(result, &report.Privacy))

	worst := StatusPass
	for _, chk := range report.Checks {
		if chk.Status == StatusFail {
			worst = StatusFail
			break
		}
		if chk.Status == StatusWarning {
			worst = StatusWarning
		}
	}

	report.Status = worst
	switch worst {
	case StatusFail:
		report.Message = "Data quality checks failed"
	case StatusWarning:
		report.Message = "Data quality checks passed with warnings"
	default:
		report.Message = "All data quality checks passed"
	}
	return report
}

func (c *Checker) checkHasData(result *querier.ResultSet) Check {
	n := len(result.Rows)
	if n == 0 {
		return Check{Name: CheckHasData, Status: StatusWarning, Message: "Query returned no results"}
	}
	return Check{Name: CheckHasData, Status: StatusPass, Message: fmt.Sprintf("Query returned %d rows", n)}
}

func (c *Checker) checkNulls(result *querier.ResultSet) Check {
	if len(result.Rows) == 0 {
		return Check{Name: CheckNulls, Status: StatusPass, Message: "No data to check"}
	}

	counts := make(map[string]int)
	for _, row := range result.Rows {
		for _, col := range result.Columns {
			if v, ok := row[col]; ok && v == nil {
				counts[col]++
			}
		}
	}
	if len(counts) == 0 {
		return Check{Name: CheckNulls, Status: StatusPass, Message: "No null values found"}
	}
	return Check{
		Name:       CheckNulls,
		Status:     StatusWarning,
		Message:    fmt.Sprintf("Found null values in %d column(s)", len(counts)),
		NullCounts: counts,
	}
}

func (c *Checker) checkRowCount(result *querier.ResultSet) Check {
	n := len(result.Rows)
	switch {
	case n > largeResultRows:
		return Check{
			Name:    CheckRowCount,
			Status:  StatusWarning,
			Message: fmt.Sprintf("Large result set (%d rows) may impact performance", n),
		}
	case n == 1:
		return Check{Name: CheckRowCount, Status: StatusPass, Message: "Single aggregate result"}
	default:
		return Check{Name: CheckRowCount, Status: StatusPass, Message: fmt.Sprintf("Row count (%d) is reasonable", n)}
	}
}

// checkNumeric looks only at aggregate-named columns. Negative amounts are
// normal for transaction data, but a negative count or total is not.
func (c *Checker) checkNumeric(result *querier.ResultSet) Check {
	var issues []string
	for _, col := range result.Columns {
		lower := strings.ToLower(col)
		if !strings.Contains(lower, "count") && !strings.Contains(lower, "total") && !strings.Contains(lower, "sum") {
			continue
		}

		var values []float64
		negatives := 0
		for _, row := range result.Rows {
			v, ok := toFloat(row[col])
			if !ok {
				continue
			}
			values = append(values, v)
			if v < 0 {
				negatives++
			}
		}

		if negatives > 0 {
			issues = append(issues, fmt.Sprintf("Column '%s' has %d negative value(s)", col, negatives))
		}
		if len(values) > 2 {
			if m := median(values); m > 0 {
				for _, v := range values {
					if v > outlierRatio*m {
						issues = append(issues, fmt.Sprintf("Column '%s' may have outliers", col))
						break
					}
				}
			}
		}
	}

	if len(issues) > 0 {
		return Check{Name: CheckNumeric, Status: StatusWarning, Message: strings.Join(issues, "; ")}
	}
	return Check{Name: CheckNumeric, Status: StatusPass, Message: "Numeric values look reasonable"}
}

// checkPrivacy fails closed on identifier columns and flags aggregate groups
// smaller than the k-anonymity threshold.
func (c *Checker) checkPrivacy(result *querier.ResultSet, privacy *Privacy) Check {
	var exposed []string
	for _, col := range result.Columns {
		lower := strings.ToLower(col)
		for _, forbidden := range forbiddenColumns {
			if lower == forbidden {
				exposed = append(exposed, col)
			}
		}
	}
	if len(exposed) > 0 {
		privacy.KMet = false
		for _, col := range exposed {
			privacy.Concerns = append(privacy.Concerns, fmt.Sprintf("identifier column '%s' present in result", col))
		}
		return Check{
			Name:    CheckPrivacy,
			Status:  StatusFail,
			Message: fmt.Sprintf("Result exposes identifier column(s): %s", strings.Join(exposed, ", ")),
		}
	}

	smallGroups := 0
	for _, col := range result.Columns {
		if !strings.Contains(strings.ToLower(col), "count") {
			continue
		}
		below := 0
		for _, row := range result.Rows {
			if v, ok := toFloat(row[col]); ok && v > 0 && v < float64(c.threshold) {
				below++
			}
		}
		if below > 0 {
			smallGroups += below
			privacy.Concerns = append(privacy.Concerns,
				fmt.Sprintf("column '%s' has %d group(s) below the k-anonymity threshold (k=%d)", col, below, c.threshold))
		}
	}
	if smallGroups > 0 {
		privacy.KMet = false
		return Check{
			Name:    CheckPrivacy,
			Status:  StatusWarning,
			Message: fmt.Sprintf("Found group(s) below the privacy threshold (k=%d)", c.threshold),
		}
	}

	return Check{
		Name:    CheckPrivacy,
		Status:  StatusPass,
		Message: fmt.Sprintf("Privacy threshold met (k=%d)", c.threshold),
	}
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
