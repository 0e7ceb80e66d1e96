// Package executor implements the adaptive evaluation loop: for each
// dimension in a plan, it repeatedly asks the selector for the next item,
// runs it through the noise isolator and a backend, feeds the response into
// the ability estimator, and consults the convergence controller — until
// the dimension is done or the plan is exhausted.
//
// Grounded on the teacher's internal/executor.Executor: a sequential,
// per-run loop that assembles a trace object turn by turn, calls out to a
// router with preferred-then-fallback selection, and logs structured
// zerolog events at the start and end of each unit of work. Here "turn"
// becomes "administered item", router.Route's provider fallback becomes
// backend selection with the same preferred-then-fallback shape, and the
// trace becomes the per-dimension Session plus the run-level
// ExecutionResults.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aptcat/engine/internal/convergence"
	"github.com/aptcat/engine/internal/estimator"
	"github.com/aptcat/engine/internal/eventbus"
	"github.com/aptcat/engine/internal/irt"
	"github.com/aptcat/engine/internal/noise"
	"github.com/aptcat/engine/internal/selector"
	"github.com/aptcat/engine/pkg/contracts"
	"github.com/aptcat/engine/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/aptcat/engine/internal/executor")

// Strategy names the executor's run mode, carried into ExecutionMetadata.
type Strategy string

const (
	StrategyAdaptive   Strategy = "adaptive"
	StrategyExhaustive Strategy = "exhaustive"
)

// Plan is the input to a run: the item pool and the configuration that
// governs estimation, convergence, and replication.
type Plan struct {
	Items  []models.Item
	Config models.EngineConfig
}

// Executor orchestrates the CAT loop over a configured set of backends and
// a single adapter representing the target under test.
type Executor struct {
	Backends []contracts.Backend
	Adapter  contracts.Adapter
	Bus      *eventbus.Bus
	Now      func() time.Time
}

// New creates an Executor. backends must be non-empty and adapter non-nil;
// both are checked at RunAdaptive/RunExhaustive time per spec.md §7's
// configuration error class.
func New(backends []contracts.Backend, adapter contracts.Adapter, bus *eventbus.Bus) *Executor {
	if bus == nil {
		bus = eventbus.New()
	}
	return &Executor{Backends: backends, Adapter: adapter, Bus: bus, Now: time.Now}
}

// RunAdaptive runs the full CAT loop, one dimension at a time, stopping
// each dimension when its convergence controller says so or its item pool
// is exhausted.
func (e *Executor) RunAdaptive(ctx context.Context, plan Plan) (models.ExecutionResults, error) {
	if err := e.validate(); err != nil {
		return models.ExecutionResults{}, err
	}

	evaluationID := uuid.New().String()
	startedAt := e.Now()

	ctx, span := tracer.Start(ctx, "executor.run_adaptive")
	defer span.End()

	available, err := e.healthyBackends(ctx)
	if err != nil {
		return models.ExecutionResults{}, err
	}

	e.Bus.Publish(eventbus.Event{Type: eventbus.TypeExecutorStarted, Payload: plan})

	if len(plan.Items) > 0 {
		e.runWarmup(ctx, plan.Items[0].Input, plan.Config.Noise.WarmupCount)
	}

	byDimension := groupByDimension(plan.Items)
	backendsUsed := map[string]bool{}

	var dimensionResults []models.DimensionResult
	var testResults []models.TestResult

	for _, dim := range models.ValidDimensions {
		pool, ok := byDimension[dim]
		if !ok || len(pool) == 0 {
			continue
		}

		dimCtx, dimSpan := tracer.Start(ctx, "executor.dimension", trace.WithAttributes(
			attribute.String("dimension", string(dim)),
		))

		session := models.NewSession(dim, e.Now())
		conv := convergence.New(plan.Config.Convergence)
		conv.Now = e.Now

		for {
			state := convergence.State{
				SE:           session.SE,
				NResponses:   session.AdministeredCount(),
				StartTime:    session.StartTime,
				ThetaHistory: thetaHistory(session),
			}
			if result := conv.Check(state); result.Converged {
				idx := session.AdministeredCount()
				session.SetConvergedAtIndex(idx)
				e.Bus.Publish(eventbus.Event{Type: eventbus.TypeDimensionConverged, Payload: DimensionConvergedPayload{
					Dimension: dim, Theta: session.Theta, SE: session.SE, Reason: result.Reason,
				}})
				break
			}

			item, ok := selector.SelectNext(session.Theta, pool, session.Administered, dim)
			if !ok {
				break
			}

			e.Bus.Publish(eventbus.Event{Type: eventbus.TypeTestStarted, Payload: TestStartedPayload{ItemID: item.ID, Dimension: dim}})

			testResult, backendID, err := e.executeWithFallback(dimCtx, *item, available, plan.Config.Noise)
			if err != nil {
				log.Warn().Err(err).Str("item", item.ID).Msg("executor: no backend could run this item, recording failure")
				testResult = models.TestResult{ItemID: item.ID, BackendID: "", Passed: false, Score: 0,
					Metadata: map[string]any{"error": true}}
			} else {
				backendsUsed[backendID] = true
			}

			session.MarkAdministered(item.ID)
			response := models.Response{
				ItemID:    item.ID,
				Passed:    boolToInt(testResult.Passed),
				Timestamp: e.Now(),
			}

			responses := responsesOf(session)
			responses = append(responses, response.Passed)
			items := itemParamsFor(pool, session)
			items = append(items, irt.ItemParams{Alpha: item.Alpha, Beta: item.Beta, Gamma: item.Gamma})

			est := estimator.Estimate(items, responses, plan.Config.Estimator)
			session.Theta = est.Theta
			session.SE = est.SE
			response.Theta = est.Theta
			response.SE = est.SE
			session.Responses = append(session.Responses, response)

			testResults = append(testResults, testResult)

			e.Bus.Publish(eventbus.Event{Type: eventbus.TypeTestCompleted, Payload: TestCompletedPayload{
				ItemID: item.ID, Passed: testResult.Passed, Theta: est.Theta, SE: est.SE, Dimension: dim,
			}})
			e.Bus.Publish(eventbus.Event{Type: eventbus.TypeIRTUpdated, Payload: IRTUpdatedPayload{
				Dimension: dim, Theta: est.Theta, SE: est.SE, NTests: session.AdministeredCount(),
			}})
		}

		dimSpan.End()
		dimensionResults = append(dimensionResults, dimensionResultFrom(session))
	}

	e.Bus.Publish(eventbus.Event{Type: eventbus.TypeExecutorCompleted})

	results := models.ExecutionResults{
		EvaluationID: evaluationID,
		TestResults:  testResults,
		IRTEstimates: dimensionResults,
		ExecutionMetadata: models.ExecutionMetadata{
			Strategy:     string(StrategyAdaptive),
			BackendsUsed: keysOf(backendsUsed),
		},
		StartedAt:  startedAt,
		FinishedAt: e.Now(),
	}
	return results, nil
}

// RunExhaustive executes every item in the plan exactly once, then fits one
// CAT session per dimension by replaying the recorded responses in order.
// No convergence checks gate execution.
func (e *Executor) RunExhaustive(ctx context.Context, plan Plan) (models.ExecutionResults, error) {
	if err := e.validate(); err != nil {
		return models.ExecutionResults{}, err
	}

	evaluationID := uuid.New().String()
	startedAt := e.Now()

	ctx, span := tracer.Start(ctx, "executor.run_exhaustive")
	defer span.End()

	available, err := e.healthyBackends(ctx)
	if err != nil {
		return models.ExecutionResults{}, err
	}

	e.Bus.Publish(eventbus.Event{Type: eventbus.TypeExecutorStarted, Payload: plan})

	if len(plan.Items) > 0 {
		e.runWarmup(ctx, plan.Items[0].Input, plan.Config.Noise.WarmupCount)
	}

	byDimension := groupByDimension(plan.Items)
	backendsUsed := map[string]bool{}
	var testResults []models.TestResult
	responsesByDim := map[models.Dimension][]int{}
	itemsByDim := map[models.Dimension][]irt.ItemParams{}

	for _, dim := range models.ValidDimensions {
		pool := byDimension[dim]
		for _, item := range pool {
			e.Bus.Publish(eventbus.Event{Type: eventbus.TypeTestStarted, Payload: TestStartedPayload{ItemID: item.ID, Dimension: dim}})

			testResult, backendID, err := e.executeWithFallback(ctx, item, available, plan.Config.Noise)
			if err != nil {
				log.Warn().Err(err).Str("item", item.ID).Msg("executor: no backend could run this item, recording failure")
				testResult = models.TestResult{ItemID: item.ID, BackendID: "", Passed: false, Score: 0,
					Metadata: map[string]any{"error": true}}
			} else {
				backendsUsed[backendID] = true
			}

			testResults = append(testResults, testResult)
			responsesByDim[dim] = append(responsesByDim[dim], boolToInt(testResult.Passed))
			itemsByDim[dim] = append(itemsByDim[dim], irt.ItemParams{Alpha: item.Alpha, Beta: item.Beta, Gamma: item.Gamma})

			e.Bus.Publish(eventbus.Event{Type: eventbus.TypeTestCompleted, Payload: TestCompletedPayload{
				ItemID: item.ID, Passed: testResult.Passed, Dimension: dim,
			}})
		}
	}

	var dimensionResults []models.DimensionResult
	for _, dim := range models.ValidDimensions {
		items := itemsByDim[dim]
		if len(items) == 0 {
			continue
		}
		est := estimator.Estimate(items, responsesByDim[dim], plan.Config.Estimator)
		n := len(items)
		lower, upper := models.CIFor(est.Theta, est.SE)
		dimensionResults = append(dimensionResults, models.DimensionResult{
			Dimension:       dim,
			Theta:           est.Theta,
			SE:              est.SE,
			CILower:         lower,
			CIUpper:         upper,
			NTests:          n,
			NormalizedScore: irt.NormalizedScore(est.Theta),
		})
		e.Bus.Publish(eventbus.Event{Type: eventbus.TypeIRTUpdated, Payload: IRTUpdatedPayload{
			Dimension: dim, Theta: est.Theta, SE: est.SE, NTests: n,
		}})
	}

	e.Bus.Publish(eventbus.Event{Type: eventbus.TypeExecutorCompleted})

	return models.ExecutionResults{
		EvaluationID: evaluationID,
		TestResults:  testResults,
		IRTEstimates: dimensionResults,
		ExecutionMetadata: models.ExecutionMetadata{
			Strategy:     string(StrategyExhaustive),
			BackendsUsed: keysOf(backendsUsed),
		},
		StartedAt:  startedAt,
		FinishedAt: e.Now(),
	}, nil
}

func (e *Executor) validate() error {
	if len(e.Backends) == 0 {
		return fmt.Errorf("executor: %w: no backends configured", contracts.ErrConfiguration)
	}
	if e.Adapter == nil {
		return fmt.Errorf("executor: %w: no adapter configured", contracts.ErrConfiguration)
	}
	return nil
}

// healthyBackends health-checks every configured backend and keeps those
// reporting available. An empty result is run-fatal per spec.md §4.7 step 1.
func (e *Executor) healthyBackends(ctx context.Context) ([]contracts.Backend, error) {
	var available []contracts.Backend
	for _, b := range e.Backends {
		health := b.Healthcheck(ctx)
		if health.Available {
			available = append(available, b)
		} else {
			log.Warn().Str("backend", b.ID()).Str("reason", health.ErrorMessage).Msg("executor: backend unavailable, excluding from run")
		}
	}
	if len(available) == 0 {
		return nil, fmt.Errorf("executor: %w: no backend reported healthy", contracts.ErrBackendUnavailable)
	}
	return available, nil
}

func (e *Executor) runWarmup(ctx context.Context, referenceInput models.ItemInput, n int) {
	if n <= 0 {
		return
	}
	e.Bus.Publish(eventbus.Event{Type: eventbus.TypeWarmupProgress, Payload: WarmupProgressPayload{Current: 0, Total: n}})
	noise.Warmup(ctx, e.Adapter, referenceInput, n)
	e.Bus.Publish(eventbus.Event{Type: eventbus.TypeWarmupProgress, Payload: WarmupProgressPayload{Current: n, Total: n}})
}

// executeWithFallback picks a backend per spec.md §4.7 step 4's chain —
// preferred, then built-in, then any available — and runs the item through
// the noise isolator on the chosen backend.
func (e *Executor) executeWithFallback(ctx context.Context, item models.Item, available []contracts.Backend, noiseCfg models.NoiseConfig) (models.TestResult, string, error) {
	backend, err := pickBackend(item, available)
	if err != nil {
		return models.TestResult{}, "", err
	}

	itemCtx, itemSpan := tracer.Start(ctx, "executor.item", trace.WithAttributes(
		attribute.String("item_id", item.ID),
		attribute.String("backend_id", backend.ID()),
	))
	defer itemSpan.End()

	outcome, err := noise.Replicate(itemCtx, backend, item, e.Adapter, noiseCfg.Replications, noiseCfg.CVThreshold)
	if err != nil {
		log.Warn().Err(err).Str("item", item.ID).Str("backend", backend.ID()).Msg("executor: backend failed, recording as failed response")
		return models.TestResult{ItemID: item.ID, BackendID: backend.ID(), Passed: false, Score: 0,
			Metadata: map[string]any{"error": true}}, backend.ID(), nil
	}

	result := outcome.Result
	if result.Metadata == nil {
		result.Metadata = map[string]any{}
	}
	result.Metadata["noise_cv"] = outcome.CV
	result.Metadata["noise_flagged"] = outcome.Flagged
	return result, backend.ID(), nil
}

func pickBackend(item models.Item, available []contracts.Backend) (contracts.Backend, error) {
	byID := make(map[string]contracts.Backend, len(available))
	for _, b := range available {
		byID[b.ID()] = b
	}

	for _, preferredID := range item.PreferredBackends {
		if b, ok := byID[preferredID]; ok {
			return b, nil
		}
	}
	if b, ok := byID["built-in"]; ok {
		return b, nil
	}
	if len(available) > 0 {
		return available[0], nil
	}
	return nil, errors.New("executor: no backend available for item " + item.ID)
}

func groupByDimension(items []models.Item) map[models.Dimension][]models.Item {
	byDim := make(map[models.Dimension][]models.Item)
	for _, it := range items {
		byDim[it.Dimension] = append(byDim[it.Dimension], it)
	}
	return byDim
}

func thetaHistory(session *models.Session) []float64 {
	history := make([]float64, len(session.Responses))
	for i, r := range session.Responses {
		history[i] = r.Theta
	}
	return history
}

func responsesOf(session *models.Session) []int {
	responses := make([]int, len(session.Responses))
	for i, r := range session.Responses {
		responses[i] = r.Passed
	}
	return responses
}

func itemParamsFor(pool []models.Item, session *models.Session) []irt.ItemParams {
	byID := make(map[string]models.Item, len(pool))
	for _, it := range pool {
		byID[it.ID] = it
	}
	params := make([]irt.ItemParams, 0, len(session.Responses))
	for _, r := range session.Responses {
		if it, ok := byID[r.ItemID]; ok {
			params = append(params, irt.ItemParams{Alpha: it.Alpha, Beta: it.Beta, Gamma: it.Gamma})
		}
	}
	return params
}

func dimensionResultFrom(session *models.Session) models.DimensionResult {
	lower, upper := models.CIFor(session.Theta, session.SE)
	return models.DimensionResult{
		Dimension:        session.Dimension,
		Theta:            session.Theta,
		SE:               session.SE,
		CILower:          lower,
		CIUpper:          upper,
		NTests:           session.AdministeredCount(),
		NormalizedScore:  irt.NormalizedScore(session.Theta),
		ConvergedAtIndex: session.ConvergedAtIndex,
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func keysOf(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
