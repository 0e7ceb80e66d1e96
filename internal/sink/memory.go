// Package sink implements contracts.ResultSink: the storage side of the
// engine's produced records (evaluations, test results, IRT estimates,
// item calibration). Grounded on the teacher's internal/store: a plain
// interface with an in-memory implementation for tests and local runs, and
// a PostgreSQL-backed implementation for production, mirroring the split
// between store.MemoryStore and vectorstore.PgvectorStore.
package sink

import (
	"context"
	"sync"

	"github.com/aptcat/engine/pkg/contracts"
	"github.com/aptcat/engine/pkg/models"
)

// Memory implements contracts.ResultSink with mutex-guarded maps. It is
// the default sink when no database is configured, matching the teacher's
// "MemoryStore as fallback when PostgreSQL is not available" default.
type Memory struct {
	mu           sync.RWMutex
	evaluations  map[string]models.ExecutionResults
	testResults  map[string][]models.TestResult
	irtEstimates map[string][]models.DimensionResult
	calibrations []models.Item
}

// NewMemory creates an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{
		evaluations:  make(map[string]models.ExecutionResults),
		testResults:  make(map[string][]models.TestResult),
		irtEstimates: make(map[string][]models.DimensionResult),
	}
}

func (m *Memory) SaveEvaluation(ctx context.Context, results models.ExecutionResults) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evaluations[results.EvaluationID] = results
	return nil
}

func (m *Memory) SaveTestResult(ctx context.Context, evaluationID string, result models.TestResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.testResults[evaluationID] = append(m.testResults[evaluationID], result)
	return nil
}

func (m *Memory) SaveIRTEstimate(ctx context.Context, evaluationID string, result models.DimensionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.irtEstimates[evaluationID] = append(m.irtEstimates[evaluationID], result)
	return nil
}

func (m *Memory) SaveCalibration(ctx context.Context, item models.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calibrations = append(m.calibrations, item)
	return nil
}

// Evaluation returns a saved evaluation by ID, for tests and the debug
// HTTP surface's GET /runs/{id}.
func (m *Memory) Evaluation(evaluationID string) (models.ExecutionResults, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results, ok := m.evaluations[evaluationID]
	return results, ok
}

var _ contracts.ResultSink = (*Memory)(nil)
