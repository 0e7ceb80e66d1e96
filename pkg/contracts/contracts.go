// Package contracts defines the interfaces at the engine's boundary:
// the target Adapter, the pluggable execution Backend, and the result
// persistence Sink. These interfaces are exposed in pkg/ (not internal/)
// so a collaborator — a CLI, an HTTP service, a test harness — can
// provide its own implementation without importing engine internals,
// following the same split the teacher draws between pkg/contracts and
// its internal/ service implementations.
package contracts

import (
	"context"
	"time"

	"github.com/aptcat/engine/pkg/models"
)

// ── Adapter contract ─────────────────────────────────────────

// TargetConfig describes how to reach a target system under test.
type TargetConfig struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
}

// SendResult is what a target returned for one input.
type SendResult struct {
	Content   string
	Format    string // "text", "json", or "markdown"
	LatencyMs int64
	Metadata  map[string]any
}

// InspectResult reports what an adapter can tell about its target
// without sending a full test input.
type InspectResult struct {
	Reachable        bool
	ResponseFormat   string
	DetectedProvider string
	Headers          map[string]string
}

// Adapter is the target connection boundary the engine calls through. A
// concrete implementation owns retries, auth, and transport-specific
// failure classification; the engine only ever sees Send succeed or
// return one of the sentinel errors in errors.go.
type Adapter interface {
	Connect(ctx context.Context, cfg TargetConfig) error
	Send(ctx context.Context, input models.ItemInput) (*SendResult, error)
	Inspect(ctx context.Context) (*InspectResult, error)
	Disconnect() error
}

// ── Backend contract ─────────────────────────────────────────

// Capabilities declares what optional features a Backend supports.
type Capabilities struct {
	SupportsReplications bool
	SupportsStreaming    bool
	SupportsMultimodal   bool
	SupportsMultiTurn    bool
}

// HealthResult is a Backend's self-reported availability.
type HealthResult struct {
	Available    bool
	Version      string
	ErrorMessage string
}

// Backend runs one item against a target (through an Adapter) and scores
// the result. Every backend declares which item categories it supports
// and which optional capabilities it has. The executor picks a backend by
// ID alone (the item's preferred list, then built-in, then the first
// available) and takes the replication count from its noise config; it
// does not consult SupportedCategories or Capabilities.
type Backend interface {
	ID() string
	Name() string
	SupportedCategories() []models.Category
	Capabilities() Capabilities
	Healthcheck(ctx context.Context) HealthResult
	Execute(ctx context.Context, item models.Item, adapter Adapter) (models.TestResult, error)
}

// ── Result sink contract ────────────────────────────────────

// ResultSink persists the engine's outputs into the four-table layout
// spec.md §6 describes (evaluations, test_results, irt_estimates,
// test_calibration). The engine never imports this package's
// implementations directly — only a caller (CLI, HTTP service) does —
// keeping persistence entirely outside the core's dependency boundary.
type ResultSink interface {
	SaveEvaluation(ctx context.Context, results models.ExecutionResults) error
	SaveTestResult(ctx context.Context, evaluationID string, result models.TestResult) error
	SaveIRTEstimate(ctx context.Context, evaluationID string, result models.DimensionResult) error
	SaveCalibration(ctx context.Context, item models.Item) error
}
