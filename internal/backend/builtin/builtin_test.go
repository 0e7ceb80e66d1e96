package builtin_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aptcat/engine/internal/backend/builtin"
	"github.com/aptcat/engine/pkg/contracts"
	"github.com/aptcat/engine/pkg/models"
)

type fixedAdapter struct {
	content string
	err     error
}

func (a *fixedAdapter) Connect(ctx context.Context, cfg contracts.TargetConfig) error { return nil }
func (a *fixedAdapter) Send(ctx context.Context, input models.ItemInput) (*contracts.SendResult, error) {
	if a.err != nil {
		return nil, a.err
	}
	return &contracts.SendResult{Content: a.content, Format: "text"}, nil
}
func (a *fixedAdapter) Inspect(ctx context.Context) (*contracts.InspectResult, error) {
	return &contracts.InspectResult{Reachable: true}, nil
}
func (a *fixedAdapter) Disconnect() error { return nil }

func TestExecute_NoEvaluatorsNeverPasses(t *testing.T) {
	b := builtin.New()
	item := models.Item{ID: "x", Input: models.ItemInput{Text: "hi"}}
	res, err := b.Execute(context.Background(), item, &fixedAdapter{content: "anything"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Passed || res.Score != 0 {
		t.Errorf("expected passed=false score=0 with no evaluators, got %+v", res)
	}
}

func TestExecute_ContainsCaseInsensitive(t *testing.T) {
	b := builtin.New()
	item := models.Item{
		ID:         "x",
		Evaluators: []models.Evaluator{{Kind: models.EvaluatorContains, Value: "HELLO"}},
	}
	res, err := b.Execute(context.Background(), item, &fixedAdapter{content: "well, hello there"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Passed || res.Score != 1 {
		t.Errorf("expected pass, got %+v", res)
	}
}

func TestExecute_NotContains(t *testing.T) {
	b := builtin.New()
	item := models.Item{
		ID:         "x",
		Evaluators: []models.Evaluator{{Kind: models.EvaluatorNotContains, Value: "refuse"}},
	}
	res, _ := b.Execute(context.Background(), item, &fixedAdapter{content: "sure, here you go"})
	if !res.Passed {
		t.Errorf("expected pass when forbidden word absent, got %+v", res)
	}

	res, _ = b.Execute(context.Background(), item, &fixedAdapter{content: "I must refuse that"})
	if res.Passed {
		t.Errorf("expected fail when forbidden word present, got %+v", res)
	}
}

func TestExecute_RegexStripsCodeFence(t *testing.T) {
	b := builtin.New()
	item := models.Item{
		ID:         "x",
		Evaluators: []models.Evaluator{{Kind: models.EvaluatorRegex, Value: `^\{.*"ok":\s*true.*\}$`}},
	}
	content := "```json\n{\"ok\": true}\n```"
	res, _ := b.Execute(context.Background(), item, &fixedAdapter{content: content})
	if !res.Passed {
		t.Errorf("expected regex to match after fence-stripping, got %+v", res)
	}
}

func TestExecute_NotRegex(t *testing.T) {
	b := builtin.New()
	item := models.Item{
		ID:         "x",
		Evaluators: []models.Evaluator{{Kind: models.EvaluatorNotRegex, Value: `error`}},
	}
	res, _ := b.Execute(context.Background(), item, &fixedAdapter{content: "all good"})
	if !res.Passed {
		t.Errorf("expected pass with no match, got %+v", res)
	}
}

func TestExecute_ScoreThreshold(t *testing.T) {
	b := builtin.New()
	item := models.Item{
		ID:         "x",
		Evaluators: []models.Evaluator{{Kind: models.EvaluatorScoreThreshold, Threshold: 0.8}},
	}
	res, _ := b.Execute(context.Background(), item, &fixedAdapter{content: "non-empty"})
	if !res.Passed {
		t.Errorf("expected pass for non-empty text, got %+v", res)
	}
	res, _ = b.Execute(context.Background(), item, &fixedAdapter{content: "   "})
	if res.Passed {
		t.Errorf("expected fail for blank text, got %+v", res)
	}
}

func TestExecute_LLMJudgeHeuristic(t *testing.T) {
	b := builtin.New()
	item := models.Item{
		ID:         "x",
		Evaluators: []models.Evaluator{{Kind: models.EvaluatorLLMJudge, Value: "is this a good answer?"}},
	}
	res, _ := b.Execute(context.Background(), item, &fixedAdapter{content: "short"})
	if res.Passed {
		t.Errorf("expected fail for short text, got %+v", res)
	}
	res, _ = b.Execute(context.Background(), item, &fixedAdapter{content: "this is a much longer response that clears the heuristic threshold"})
	if !res.Passed {
		t.Errorf("expected pass for long text, got %+v", res)
	}
}

func TestExecute_ScoreIsFractionOfPassedEvaluators(t *testing.T) {
	b := builtin.New()
	item := models.Item{
		ID: "x",
		Evaluators: []models.Evaluator{
			{Kind: models.EvaluatorContains, Value: "hello"},
			{Kind: models.EvaluatorContains, Value: "goodbye"},
		},
	}
	res, _ := b.Execute(context.Background(), item, &fixedAdapter{content: "hello there"})
	if res.Score != 0.5 {
		t.Errorf("Score = %v, want 0.5", res.Score)
	}
	if res.Passed {
		t.Errorf("Passed should require all evaluators, got %+v", res)
	}
}

func TestExecute_PropagatesAdapterError(t *testing.T) {
	b := builtin.New()
	item := models.Item{ID: "x", Evaluators: []models.Evaluator{{Kind: models.EvaluatorContains, Value: "x"}}}
	wantErr := errors.New("boom")
	_, err := b.Execute(context.Background(), item, &fixedAdapter{err: wantErr})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected adapter error to propagate, got %v", err)
	}
}
