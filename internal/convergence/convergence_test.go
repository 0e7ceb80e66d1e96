package convergence_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aptcat/engine/internal/convergence"
	"github.com/aptcat/engine/pkg/models"
)

func TestCheck_EmptyHistoryNeverConverges(t *testing.T) {
	c := convergence.New(models.DefaultConvergenceConfig())
	res := c.Check(convergence.State{})
	if res.Converged {
		t.Error("empty history should never converge")
	}
}

func TestCheck_SEThreshold(t *testing.T) {
	cfg := models.DefaultConvergenceConfig()
	c := convergence.New(cfg)
	res := c.Check(convergence.State{SE: cfg.SEThreshold - 0.01, NResponses: 1, StartTime: time.Now()})
	if !res.Converged || !strings.Contains(res.Reason, "SE") {
		t.Errorf("expected SE convergence, got %+v", res)
	}
}

func TestCheck_MaxTests(t *testing.T) {
	cfg := models.DefaultConvergenceConfig()
	cfg.SEThreshold = 0 // unreachable
	c := convergence.New(cfg)
	res := c.Check(convergence.State{SE: 1, NResponses: cfg.MaxTests, StartTime: time.Now()})
	if !res.Converged {
		t.Errorf("expected max-tests convergence, got %+v", res)
	}
}

func TestCheck_Timeout(t *testing.T) {
	cfg := models.DefaultConvergenceConfig()
	cfg.SEThreshold = 0
	cfg.MaxTests = 1000
	cfg.Timeout = 1 * time.Millisecond
	start := time.Now().Add(-1 * time.Hour)
	c := convergence.New(cfg)
	res := c.Check(convergence.State{SE: 1, NResponses: 1, StartTime: start})
	if !res.Converged || !strings.Contains(res.Reason, "Timeout") {
		t.Errorf("expected timeout convergence, got %+v", res)
	}
}

func TestCheck_StableWindow(t *testing.T) {
	cfg := models.ConvergenceConfig{
		SEThreshold:  0.01, // unreachable given inputs
		MaxTests:     100,
		Timeout:      30 * time.Minute,
		StableWindow: 5,
		StableDelta:  0.1,
	}
	c := convergence.New(cfg)
	history := []float64{0.50, 0.52, 0.51, 0.53, 0.52, 0.52}
	res := c.Check(convergence.State{
		SE:           0.5,
		NResponses:   len(history),
		StartTime:    time.Now(),
		ThetaHistory: history,
	})
	if !res.Converged || !strings.Contains(res.Reason, "stable") {
		t.Errorf("expected stable-window convergence, got %+v", res)
	}
}

func TestCheck_StableWindowNotYetReached(t *testing.T) {
	cfg := models.DefaultConvergenceConfig()
	cfg.SEThreshold = 0
	c := convergence.New(cfg)
	history := []float64{0.5, 0.9, 0.2, 0.8}
	res := c.Check(convergence.State{
		SE:           0.5,
		NResponses:   len(history),
		StartTime:    time.Now(),
		ThetaHistory: history,
	})
	if res.Converged {
		t.Errorf("volatile theta history should not converge, got %+v", res)
	}
}

func TestCheck_OrderPrefersSEOverStableWindow(t *testing.T) {
	cfg := models.DefaultConvergenceConfig()
	c := convergence.New(cfg)
	history := []float64{0.50, 0.51, 0.50, 0.51, 0.50, 0.51}
	res := c.Check(convergence.State{
		SE:           cfg.SEThreshold - 0.001,
		NResponses:   len(history),
		StartTime:    time.Now(),
		ThetaHistory: history,
	})
	if !strings.Contains(res.Reason, "SE") {
		t.Errorf("SE criterion should win over stable-window when both fire, got %+v", res)
	}
}
