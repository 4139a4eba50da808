// Package scoring turns a finished pipeline run into a weighted confidence
// score with a tier and a list of concrete issues. Scoring is pure; the
// caller snapshots run state into an Input.
package scoring

import (
	"math"
	"strings"

	"github.com/helioslabs/ledgerscope/pkg/quality"
	"github.com/helioslabs/ledgerscope/pkg/querier"
	"github.com/helioslabs/ledgerscope/pkg/sqlguard"
)

// Tier buckets a score for display and routing.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// Component names, in evaluation order.
const (
	ComponentQuerySyntax        = "query_syntax"
	ComponentQueryExecuted      = "query_executed"
	ComponentHasData            = "has_data"
	ComponentQualityPassed      = "quality_passed"
	ComponentExplanationPresent = "explanation_present"
	ComponentNoErrors           = "no_errors"
)

var componentOrder = []string{
	ComponentQuerySyntax,
	ComponentQueryExecuted,
	ComponentHasData,
	ComponentQualityPassed,
	ComponentExplanationPresent,
	ComponentNoErrors,
}

// Weights sum to 1.0. Execution and data presence carry the most signal.
var Weights = map[string]float64{
	ComponentQuerySyntax:        0.15,
	ComponentQueryExecuted:      0.20,
	ComponentHasData:            0.20,
	ComponentQualityPassed:      0.15,
	ComponentExplanationPresent: 0.15,
	ComponentNoErrors:           0.15,
}

// Input is a snapshot of one finished run.
type Input struct {
	SQL             string
	SQLStatus       sqlguard.Status
	Result          *querier.ResultSet
	Executed        bool
	ExecutionFailed bool
	ErrorText       string
	Quality         *quality.Report
	HasExplanation  bool
	Summary         string
	Insights        []string
	FallbackText    string
	ErrorCount      int
}

// Evaluation is the scored outcome.
type Evaluation struct {
	Score      float64            `json:"score"`
	Tier       Tier               `json:"tier"`
	Components map[string]float64 `json:"components"`
	Issues     []string           `json:"issues,omitempty"`
}

// Evaluate scores the run. Component values are 0-100; the overall score is
// their weighted sum rounded to two decimals.
func Evaluate(in Input) *Evaluation {
	components := map[string]float64{
		ComponentQuerySyntax:        scoreQuerySyntax(in),
		ComponentQueryExecuted:      scoreQueryExecuted(in),
		ComponentHasData:            scoreHasData(in),
		ComponentQualityPassed:      scoreQualityPassed(in),
		ComponentExplanationPresent: scoreExplanationPresent(in),
		ComponentNoErrors:           scoreNoErrors(in),
	}

	score := 0.0
	for name, value := range components {
		score += Weights[name] * value
	}
	score = math.Round(score*100) / 100

	return &Evaluation{
		Score:      score,
		Tier:       TierFor(score),
		Components: components,
		Issues:     collectIssues(components),
	}
}

// TierFor maps a score onto a tier. Boundaries are inclusive: exactly 80 is
// high and exactly 50 is medium.
func TierFor(score float64) Tier {
	switch {
	case score >= 80:
		return TierHigh
	case score >= 50:
		return TierMedium
	default:
		return TierLow
	}
}

func scoreQuerySyntax(in Input) float64 {
	if in.SQL == "" {
		return 0
	}
	if in.SQLStatus == sqlguard.StatusInvalid {
		return 50
	}
	if strings.Contains(strings.ToUpper(in.SQL), "SELECT") {
		return 100
	}
	return 50
}

func scoreQueryExecuted(in Input) float64 {
	switch {
	case in.Executed:
		return 100
	case in.ExecutionFailed || in.ErrorText != "":
		return 0
	case in.Result == nil:
		return 0
	case len(in.Result.Columns) > 0:
		return 100
	default:
		return 50
	}
}

// scoreHasData gives partial credit when the query carried a group-size
// filter, since an empty result may be privacy suppression rather than a
// miss.
func scoreHasData(in Input) float64 {
	if in.Result != nil && len(in.Result.Rows) > 0 {
		return 100
	}
	upper := strings.ToUpper(in.SQL)
	if strings.Contains(upper, "HAVING") && strings.Contains(upper, "COUNT") {
		return 50
	}
	return 0
}

func scoreQualityPassed(in Input) float64 {
	if in.Quality == nil {
		return 50
	}
	switch in.Quality.Status {
	case quality.StatusPass:
		return 100
	case quality.StatusWarning:
		return 75
	default:
		return 25
	}
}

func scoreExplanationPresent(in Input) float64 {
	if in.HasExplanation {
		if len(in.Summary) > 20 && len(in.Insights) >= 1 {
			return 100
		}
		if len(in.Summary) > 0 {
			return 75
		}
		return 50
	}
	if in.FallbackText != "" {
		lower := strings.ToLower(in.FallbackText)
		if strings.Contains(lower, "error") || strings.Contains(lower, "could not") {
			return 25
		}
		if len(in.FallbackText) > 50 {
			return 75
		}
		return 25
	}
	return 0
}

func scoreNoErrors(in Input) float64 {
	switch in.ErrorCount {
	case 0:
		return 100
	case 1:
		return 50
	case 2:
		return 25
	default:
		return 0
	}
}

func collectIssues(components map[string]float64) []string {
	var issues []string
	for _, name := range componentOrder {
		value := components[name]
		switch name {
		case ComponentQuerySyntax:
			if value < 100 {
				issues = append(issues, "SQL query had validation issues")
			}
		case ComponentQueryExecuted:
			if value == 0 {
				issues = append(issues, "SQL execution encountered errors")
			}
		case ComponentHasData:
			if value == 50 {
				issues = append(issues, "Query returned no data (may be due to privacy filtering)")
			} else if value == 0 {
				issues = append(issues, "No data returned")
			}
		case ComponentQualityPassed:
			if value <= 25 {
				issues = append(issues, "Some data quality checks failed")
			}
		case ComponentExplanationPresent:
			if value <= 50 {
				issues = append(issues, "Missing or incomplete explanation")
			}
		case ComponentNoErrors:
			if value < 100 {
				issues = append(issues, "Pipeline errors occurred")
			}
		}
	}
	return issues
}
