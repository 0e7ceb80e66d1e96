package models

import "time"

// TestResult is the outcome of running a single item through a backend.
type TestResult struct {
	ItemID     string             `json:"item_id"`
	BackendID  string             `json:"backend_id"`
	Passed     bool               `json:"passed"`
	Score      float64            `json:"score"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	RawOutput  string             `json:"raw_output,omitempty"`
	DurationMs int64              `json:"duration_ms"`
	Metadata   map[string]any     `json:"metadata,omitempty"`
}

// DimensionResult summarizes one dimension's CAT session once it stops.
type DimensionResult struct {
	Dimension        Dimension `json:"dimension"`
	Theta            float64   `json:"theta"`
	SE               float64   `json:"se"`
	CILower          float64   `json:"ci_lower"`
	CIUpper          float64   `json:"ci_upper"`
	NTests           int       `json:"n_tests"`
	NormalizedScore  float64   `json:"normalized_score"`
	ConvergedAtIndex *int      `json:"converged_at_index,omitempty"`
}

// ExecutionMetadata records how a run was carried out.
type ExecutionMetadata struct {
	Strategy      string   `json:"strategy"` // "adaptive" or "exhaustive"
	BackendsUsed  []string `json:"backends_used"`
}

// ExecutionResults is the top-level output of a run.
type ExecutionResults struct {
	EvaluationID      string              `json:"evaluation_id"`
	TestResults       []TestResult        `json:"test_results"`
	IRTEstimates      []DimensionResult   `json:"irt_estimates"`
	ExecutionMetadata ExecutionMetadata   `json:"execution_metadata"`
	StartedAt         time.Time           `json:"started_at"`
	FinishedAt        time.Time           `json:"finished_at"`
}

// CIFor computes the 95% confidence interval θ ± 1.96·SE for a
// DimensionResult, mirroring spec.md §4.7 step 5's formula. It is a
// package-level helper (not a method) because the interval is derived,
// not stored state.
func CIFor(theta, se float64) (lower, upper float64) {
	const z95 = 1.96
	return theta - z95*se, theta + z95*se
}
