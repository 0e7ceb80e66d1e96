package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aptcat/engine/pkg/contracts"
	"github.com/aptcat/engine/pkg/models"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Postgres implements contracts.ResultSink against the four tables named
// in spec.md §6: evaluations, test_results, irt_estimates, and
// test_calibration. Grounded on the teacher's vectorstore.PgvectorStore:
// pgxpool.New, ping, migrate-on-connect, one struct per driver.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to connURL and ensures the schema exists.
func NewPostgres(ctx context.Context, connURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("sink: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("sink: ping: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("sink: migrate: %w", err)
	}

	log.Info().Msg("sink: postgres result store initialized")
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS evaluations (
			evaluation_id TEXT PRIMARY KEY,
			strategy      TEXT NOT NULL,
			backends_used JSONB NOT NULL DEFAULT '[]',
			started_at    TIMESTAMPTZ NOT NULL,
			finished_at   TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS test_results (
			id            BIGSERIAL PRIMARY KEY,
			evaluation_id TEXT NOT NULL REFERENCES evaluations(evaluation_id),
			item_id       TEXT NOT NULL,
			backend_id    TEXT NOT NULL,
			passed        BOOLEAN NOT NULL,
			score         DOUBLE PRECISION NOT NULL,
			raw_output    TEXT NOT NULL DEFAULT '',
			duration_ms   BIGINT NOT NULL DEFAULT 0,
			metadata      JSONB NOT NULL DEFAULT '{}',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_test_results_eval ON test_results (evaluation_id);

		CREATE TABLE IF NOT EXISTS irt_estimates (
			id                 BIGSERIAL PRIMARY KEY,
			evaluation_id      TEXT NOT NULL REFERENCES evaluations(evaluation_id),
			dimension          TEXT NOT NULL,
			theta              DOUBLE PRECISION NOT NULL,
			se                 DOUBLE PRECISION NOT NULL,
			ci_lower           DOUBLE PRECISION NOT NULL,
			ci_upper           DOUBLE PRECISION NOT NULL,
			n_tests            INTEGER NOT NULL,
			normalized_score   DOUBLE PRECISION NOT NULL,
			converged_at_index INTEGER,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_irt_estimates_eval ON irt_estimates (evaluation_id);

		CREATE TABLE IF NOT EXISTS test_calibration (
			item_id       TEXT PRIMARY KEY,
			dimension     TEXT NOT NULL,
			alpha         DOUBLE PRECISION NOT NULL,
			beta          DOUBLE PRECISION NOT NULL,
			gamma         DOUBLE PRECISION NOT NULL,
			preliminary   BOOLEAN NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`
	_, err := p.pool.Exec(ctx, ddl)
	return err
}

func (p *Postgres) SaveEvaluation(ctx context.Context, results models.ExecutionResults) error {
	backendsJSON, err := json.Marshal(results.ExecutionMetadata.BackendsUsed)
	if err != nil {
		return fmt.Errorf("sink: marshal backends_used: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO evaluations (evaluation_id, strategy, backends_used, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (evaluation_id) DO UPDATE SET
			strategy = EXCLUDED.strategy,
			backends_used = EXCLUDED.backends_used,
			finished_at = EXCLUDED.finished_at
	`, results.EvaluationID, results.ExecutionMetadata.Strategy, backendsJSON, results.StartedAt, results.FinishedAt)
	if err != nil {
		return fmt.Errorf("sink: save evaluation: %w", err)
	}
	for _, tr := range results.TestResults {
		if err := p.SaveTestResult(ctx, results.EvaluationID, tr); err != nil {
			return err
		}
	}
	for _, dr := range results.IRTEstimates {
		if err := p.SaveIRTEstimate(ctx, results.EvaluationID, dr); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) SaveTestResult(ctx context.Context, evaluationID string, result models.TestResult) error {
	metaJSON, err := json.Marshal(result.Metadata)
	if err != nil {
		return fmt.Errorf("sink: marshal test result metadata: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO test_results (evaluation_id, item_id, backend_id, passed, score, raw_output, duration_ms, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, evaluationID, result.ItemID, result.BackendID, result.Passed, result.Score, result.RawOutput, result.DurationMs, metaJSON)
	if err != nil {
		return fmt.Errorf("sink: save test result: %w", err)
	}
	return nil
}

func (p *Postgres) SaveIRTEstimate(ctx context.Context, evaluationID string, result models.DimensionResult) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO irt_estimates (evaluation_id, dimension, theta, se, ci_lower, ci_upper, n_tests, normalized_score, converged_at_index)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, evaluationID, string(result.Dimension), result.Theta, result.SE, result.CILower, result.CIUpper,
		result.NTests, result.NormalizedScore, result.ConvergedAtIndex)
	if err != nil {
		return fmt.Errorf("sink: save irt estimate: %w", err)
	}
	return nil
}

func (p *Postgres) SaveCalibration(ctx context.Context, item models.Item) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO test_calibration (item_id, dimension, alpha, beta, gamma, preliminary, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (item_id) DO UPDATE SET
			alpha = EXCLUDED.alpha, beta = EXCLUDED.beta, gamma = EXCLUDED.gamma,
			preliminary = EXCLUDED.preliminary, updated_at = NOW()
	`, item.ID, string(item.Dimension), item.Alpha, item.Beta, item.Gamma, item.IsPreliminary)
	if err != nil {
		return fmt.Errorf("sink: save calibration: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() { p.pool.Close() }

var _ contracts.ResultSink = (*Postgres)(nil)
