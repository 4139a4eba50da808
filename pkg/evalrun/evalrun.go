// Package evalrun executes YAML-defined evaluation suites against the
// pipeline and grades each case's outcome.
package evalrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/alitto/pond/v2"
	"gopkg.in/yaml.v3"

	"github.com/helioslabs/ledgerscope/pkg/pipeline"
	"github.com/helioslabs/ledgerscope/pkg/scoring"
)

const defaultWorkers = 4

// tierRank orders confidence tiers for at-least comparisons.
var tierRank = map[string]int{
	string(scoring.TierLow):    1,
	string(scoring.TierMedium): 2,
	string(scoring.TierHigh):   3,
}

// Expect lists the graded expectations for one case. All fields are
// optional; an empty Expect passes whenever the run itself succeeds.
type Expect struct {
	Allowed      *bool    `yaml:"allowed,omitempty" json:"allowed,omitempty"`
	TierAtLeast  string   `yaml:"tier_at_least,omitempty" json:"tier_at_least,omitempty"`
	TextContains []string `yaml:"text_contains,omitempty" json:"text_contains,omitempty"`
	MaxErrors    *int     `yaml:"max_errors,omitempty" json:"max_errors,omitempty"`
}

type Case struct {
	Name     string `yaml:"name" json:"name"`
	Question string `yaml:"question" json:"question"`
	Expect   Expect `yaml:"expect" json:"expect"`
}

type Suite struct {
	Name  string `yaml:"name" json:"name"`
	Cases []Case `yaml:"cases" json:"cases"`
}

// LoadSuite reads and validates a YAML suite file.
func LoadSuite(path string) (*Suite, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite: %w", err)
	}

	var suite Suite
	if err := yaml.Unmarshal(raw, &suite); err != nil {
		return nil, fmt.Errorf("failed to parse suite: %w", err)
	}
	if len(suite.Cases) == 0 {
		return nil, fmt.Errorf("suite has no cases")
	}
	for i, c := range suite.Cases {
		if c.Name == "" {
			return nil, fmt.Errorf("case %d has no name", i)
		}
		if c.Question == "" {
			return nil, fmt.Errorf("case %q has no question", c.Name)
		}
		if c.Expect.TierAtLeast != "" {
			if _, ok := tierRank[c.Expect.TierAtLeast]; !ok {
				return nil, fmt.Errorf("case %q has unknown tier %q", c.Name, c.Expect.TierAtLeast)
			}
		}
	}
	return &suite, nil
}

// RunFunc executes one question end to end.
type RunFunc func(ctx context.Context, question string) (*pipeline.RunResult, error)

// Outcome is one graded case. Failures lists unmet expectations; Error
// carries a run-level failure. A case passes when both are empty.
type Outcome struct {
	Case     Case                `json:"case"`
	Result   *pipeline.RunResult `json:"result,omitempty"`
	Failures []string            `json:"failures,omitempty"`
	Error    string              `json:"error,omitempty"`
	Elapsed  time.Duration       `json:"elapsed"`
}

func (o *Outcome) Passed() bool {
	return o.Error == "" && len(o.Failures) == 0
}

// Summary aggregates a suite execution. Outcomes keep the suite's case order.
type Summary struct {
	Suite    string        `json:"suite"`
	Total    int           `json:"total"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Elapsed  time.Duration `json:"elapsed"`
	Outcomes []Outcome     `json:"outcomes"`
}

type Config struct {
	Logger *slog.Logger

	// Run executes one question through the pipeline.
	Run RunFunc

	// Workers bounds concurrent case execution.
	Workers int
}

func (cfg *Config) Validate() error {
	if cfg.Run == nil {
		return fmt.Errorf("run func is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	return nil
}

// Runner executes suites on a bounded worker pool.
type Runner struct {
	cfg  Config
	pool pond.ResultPool[Outcome]
}

func NewRunner(cfg Config) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate evalrun config: %w", err)
	}
	return &Runner{
		cfg:  cfg,
		pool: pond.NewResultPool[Outcome](cfg.Workers),
	}, nil
}

// Run executes every case concurrently and grades the results.
func (r *Runner) Run(ctx context.Context, suite *Suite) (*Summary, error) {
	start := time.Now()
	group := r.pool.NewGroupContext(ctx)

	for _, c := range suite.Cases {
		c := c
		group.SubmitErr(func() (Outcome, error) {
			return r.runCase(ctx, c), nil
		})
	}

	outcomes, err := group.Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to run suite: %w", err)
	}

	summary := &Summary{
		Suite:    suite.Name,
		Total:    len(outcomes),
		Elapsed:  time.Since(start),
		Outcomes: outcomes,
	}
	for i := range outcomes {
		if outcomes[i].Passed() {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}

	if r.cfg.Logger != nil {
		r.cfg.Logger.Info("evalrun: suite finished",
			"suite", suite.Name, "passed", summary.Passed, "failed", summary.Failed,
			"elapsed", summary.Elapsed)
	}
	return summary, nil
}

func (r *Runner) runCase(ctx context.Context, c Case) Outcome {
	start := time.Now()
	outcome := Outcome{Case: c}

	result, err := r.cfg.Run(ctx, c.Question)
	outcome.Elapsed = time.Since(start)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}

	outcome.Result = result
	outcome.Failures = grade(c.Expect, result)
	return outcome
}

// grade returns one message per unmet expectation.
func grade(expect Expect, result *pipeline.RunResult) []string {
	var failures []string

	if expect.Allowed != nil {
		switch {
		case result.Admission == nil:
			failures = append(failures, "no admission verdict recorded")
		case result.Admission.Allowed() != *expect.Allowed:
			failures = append(failures, fmt.Sprintf(
				"admission allowed=%t, expected %t", result.Admission.Allowed(), *expect.Allowed))
		}
	}

	if expect.TierAtLeast != "" {
		switch {
		case result.Confidence == nil:
			failures = append(failures, "no confidence evaluation recorded")
		case tierRank[string(result.Confidence.Tier)] < tierRank[expect.TierAtLeast]:
			failures = append(failures, fmt.Sprintf(
				"confidence tier %q below %q", result.Confidence.Tier, expect.TierAtLeast))
		}
	}

	lowered := strings.ToLower(result.FinalText)
	for _, want := range expect.TextContains {
		if !strings.Contains(lowered, strings.ToLower(want)) {
			failures = append(failures, fmt.Sprintf("final text missing %q", want))
		}
	}

	if expect.MaxErrors != nil && len(result.Errors) > *expect.MaxErrors {
		failures = append(failures, fmt.Sprintf(
			"%d errors, expected at most %d", len(result.Errors), *expect.MaxErrors))
	}

	return failures
}
