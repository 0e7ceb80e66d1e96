// Package convergence implements the four-criterion stop protocol for a
// CAT session, generalized from the teacher's internal/guardrails.evaluate
// dispatch: check rules in declared order, short-circuit on the first
// match, return a typed, side-effect-free result.
package convergence

import (
	"fmt"
	"time"

	"github.com/aptcat/engine/pkg/models"
)

// State is the minimal slice of session state a convergence check needs.
type State struct {
	SE         float64
	NResponses int
	StartTime  time.Time
	// ThetaHistory is the ordered ability estimate after each response,
	// used by the stability-window criterion.
	ThetaHistory []float64
}

// Result reports whether a session has converged and, if so, why.
type Result struct {
	Converged bool
	Reason    string
}

// Controller checks the four ordered stop criteria from spec.md §4.4. Now
// is injected rather than read from time.Now() internally, so wall-clock
// behavior is exact and testable without sleeping — the same
// dependency-injection style the teacher uses for its HTTP clients.
type Controller struct {
	Config models.ConvergenceConfig
	Now    func() time.Time
}

// New creates a Controller with the given config, defaulting Now to
// time.Now.
func New(cfg models.ConvergenceConfig) *Controller {
	return &Controller{Config: cfg, Now: time.Now}
}

// Check evaluates the four criteria in order, returning at the first
// match. An empty history (zero responses) never converges.
func (c *Controller) Check(state State) Result {
	if state.NResponses == 0 {
		return Result{Converged: false}
	}

	if state.SE < c.Config.SEThreshold {
		return Result{Converged: true, Reason: fmt.Sprintf("SE %.4f below threshold %.4f", state.SE, c.Config.SEThreshold)}
	}

	if state.NResponses >= c.Config.MaxTests {
		return Result{Converged: true, Reason: fmt.Sprintf("item budget %d reached", c.Config.MaxTests)}
	}

	now := c.Now
	if now == nil {
		now = time.Now
	}
	elapsed := now().Sub(state.StartTime)
	if elapsed >= c.Config.Timeout {
		return Result{Converged: true, Reason: fmt.Sprintf("Timeout of %s reached", c.Config.Timeout)}
	}

	if c.stableWindowReached(state.ThetaHistory) {
		return Result{Converged: true, Reason: fmt.Sprintf("stable ability estimate over last %d responses", c.Config.StableWindow)}
	}

	return Result{Converged: false}
}

// stableWindowReached reports whether the last StableWindow consecutive
// theta deltas are each strictly less than StableDelta.
func (c *Controller) stableWindowReached(history []float64) bool {
	w := c.Config.StableWindow
	if w <= 0 || len(history) < w+1 {
		return false
	}
	tail := history[len(history)-(w+1):]
	for i := 1; i < len(tail); i++ {
		delta := tail[i] - tail[i-1]
		if delta < 0 {
			delta = -delta
		}
		if delta >= c.Config.StableDelta {
			return false
		}
	}
	return true
}
