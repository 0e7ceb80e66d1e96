// Package noise implements warm-up and replicated execution over a
// backend, to isolate measurement noise before the estimator ever sees a
// single binary response. Grounded on the "run several trials, aggregate,
// pick a representative" shape common to the pack's eval-runner examples,
// and on the teacher's warm-up-then-measure phasing in its process
// supervisor.
package noise

import (
	"context"
	"math"
	"sort"

	"github.com/aptcat/engine/pkg/contracts"
	"github.com/aptcat/engine/pkg/models"
	"github.com/rs/zerolog/log"
)

// Replication is one trial's outcome, retained for observability even
// though only the representative feeds the estimator.
type Replication struct {
	Score      float64 `json:"score"`
	Passed     bool    `json:"passed"`
	DurationMs int64   `json:"duration_ms"`
}

// Outcome is the result of a (possibly replicated) execution.
type Outcome struct {
	Result       models.TestResult
	CV           float64
	Flagged      bool
	Replications []Replication
}

// Warmup sends the reference input through the adapter n times,
// discarding results. Warm-up failures are logged and never fatal —
// spec.md §4.7 treats warm-up errors as non-fatal by design.
func Warmup(ctx context.Context, adapter contracts.Adapter, referenceInput models.ItemInput, n int) {
	for i := 0; i < n; i++ {
		if _, err := adapter.Send(ctx, referenceInput); err != nil {
			log.Debug().Err(err).Int("attempt", i+1).Msg("noise: warm-up request failed, continuing")
		}
	}
}

// Replicate runs backend against item n times (n<=1 runs it once) and
// returns a single representative outcome plus noise statistics.
func Replicate(ctx context.Context, backend contracts.Backend, item models.Item, adapter contracts.Adapter, n int, cvThreshold float64) (Outcome, error) {
	if n <= 1 {
		result, err := backend.Execute(ctx, item, adapter)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Result:       result,
			CV:           0,
			Flagged:      false,
			Replications: []Replication{{Score: result.Score, Passed: result.Passed, DurationMs: result.DurationMs}},
		}, nil
	}

	results := make([]models.TestResult, 0, n)
	for i := 0; i < n; i++ {
		result, err := backend.Execute(ctx, item, adapter)
		if err != nil {
			log.Warn().Err(err).Str("item", item.ID).Int("replication", i+1).
				Msg("noise: replication failed, recording as a failed trial")
			result = models.TestResult{ItemID: item.ID, BackendID: backend.ID(), Passed: false, Score: 0}
		}
		results = append(results, result)
	}

	mean, stdev := meanAndPopStdev(scoresOf(results))
	cv := 0.0
	if mean > 0 {
		cv = stdev / mean
	}
	flagged := cv > cvThreshold

	representative := medianByScore(results)

	replications := make([]Replication, 0, len(results))
	for _, r := range results {
		replications = append(replications, Replication{Score: r.Score, Passed: r.Passed, DurationMs: r.DurationMs})
	}

	return Outcome{
		Result:       representative,
		CV:           cv,
		Flagged:      flagged,
		Replications: replications,
	}, nil
}

func scoresOf(results []models.TestResult) []float64 {
	scores := make([]float64, len(results))
	for i, r := range results {
		scores[i] = r.Score
	}
	return scores
}

func meanAndPopStdev(scores []float64) (mean, stdev float64) {
	if len(scores) == 0 {
		return 0, 0
	}
	var sum float64
	allSame := true
	for _, s := range scores {
		sum += s
		if s != scores[0] {
			allSame = false
		}
	}
	if allSame {
		// Exact zero spread; summing and dividing could leave rounding error.
		return scores[0], 0
	}
	mean = sum / float64(len(scores))

	var sumSq float64
	for _, s := range scores {
		d := s - mean
		sumSq += d * d
	}
	stdev = math.Sqrt(sumSq / float64(len(scores)))
	return mean, stdev
}

// medianByScore returns the result at the middle index after sorting a
// copy by score. For even n this is the upper-median (index n/2).
func medianByScore(results []models.TestResult) models.TestResult {
	sorted := make([]models.TestResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score < sorted[j].Score })
	return sorted[len(sorted)/2]
}
