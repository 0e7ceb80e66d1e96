// Package builtin implements the engine's default execution backend: it
// sends an item's input through an Adapter and scores the reply against
// the item's declared evaluators.
//
// The evaluator dispatch below is a direct generalization of the
// teacher's internal/guardrails.evaluateOne switch — a closed set of
// kinds, dispatched with a plain switch, no reflection, no interface per
// variant.
package builtin

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/aptcat/engine/pkg/contracts"
	"github.com/aptcat/engine/pkg/models"
)

// ID is the built-in backend's identifier, used by the executor's
// fallback chain (preferred -> built-in -> any available -> fail).
const ID = "built-in"

// llmJudgeMinLength is the heuristic length threshold the reserved
// llmJudge evaluator uses until a real judging backend replaces it.
// spec.md §9 preserves this as the explicit, documented behavior.
const llmJudgeMinLength = 20

// Backend is the built-in evaluator-driven execution backend.
type Backend struct{}

// New creates the built-in backend.
func New() *Backend { return &Backend{} }

func (b *Backend) ID() string   { return ID }
func (b *Backend) Name() string { return "Built-in Evaluator Backend" }

func (b *Backend) SupportedCategories() []models.Category {
	return append([]models.Category(nil), models.ValidDimensions...)
}

func (b *Backend) Capabilities() contracts.Capabilities {
	return contracts.Capabilities{SupportsReplications: true}
}

func (b *Backend) Healthcheck(ctx context.Context) contracts.HealthResult {
	return contracts.HealthResult{Available: true, Version: "1.0"}
}

// Execute sends item.Input through adapter and scores the reply. Score
// is the fraction of evaluators that passed; Passed is the conjunction
// of every evaluator's verdict. An item with no evaluators never passes.
func (b *Backend) Execute(ctx context.Context, item models.Item, adapter contracts.Adapter) (models.TestResult, error) {
	start := time.Now()
	sendResult, err := adapter.Send(ctx, item.Input)
	if err != nil {
		return models.TestResult{}, err
	}
	duration := time.Since(start).Milliseconds()

	if len(item.Evaluators) == 0 {
		return models.TestResult{
			ItemID:     item.ID,
			BackendID:  ID,
			Passed:     false,
			Score:      0,
			RawOutput:  sendResult.Content,
			DurationMs: duration,
		}, nil
	}

	passedCount := 0
	for _, ev := range item.Evaluators {
		if evaluate(ev, sendResult.Content) {
			passedCount++
		}
	}

	score := float64(passedCount) / float64(len(item.Evaluators))
	passed := passedCount == len(item.Evaluators)

	return models.TestResult{
		ItemID:     item.ID,
		BackendID:  ID,
		Passed:     passed,
		Score:      score,
		RawOutput:  sendResult.Content,
		DurationMs: duration,
	}, nil
}

// evaluate dispatches a single evaluator against the target's reply text.
func evaluate(ev models.Evaluator, text string) bool {
	switch ev.Kind {
	case models.EvaluatorContains:
		return containsFold(text, ev.Value)
	case models.EvaluatorNotContains:
		return !containsFold(text, ev.Value)
	case models.EvaluatorRegex:
		return matchesRegex(ev.Value, text)
	case models.EvaluatorNotRegex:
		return !matchesRegex(ev.Value, text)
	case models.EvaluatorScoreThreshold:
		return strings.TrimSpace(text) != ""
	case models.EvaluatorLLMJudge:
		return len(strings.TrimSpace(text)) > llmJudgeMinLength
	default:
		return false
	}
}

func containsFold(text, needle string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(needle))
}

// matchesRegex strips surrounding code fences, then matches with
// dotall+case-insensitive flags. An invalid pattern never matches rather
// than panicking.
func matchesRegex(pattern, text string) bool {
	re, err := regexp.Compile("(?is)" + pattern)
	if err != nil {
		return false
	}
	return re.MatchString(stripCodeFence(text))
}

// stripCodeFence removes a single pair of surrounding triple-backtick
// code fences (with an optional language tag on the opening fence), the
// way a target's markdown-formatted reply commonly wraps its answer.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	} else {
		trimmed = strings.TrimPrefix(trimmed, "```")
	}
	trimmed = strings.TrimSuffix(strings.TrimRight(trimmed, "\n"), "```")
	return strings.TrimSpace(trimmed)
}
