package models

import (
	"math"
	"time"
)

// Session is the mutable per-dimension state of a computerized adaptive
// test. It owns its own history and administered-item set; it never
// shares mutable state with another session, and its Dimension is fixed
// for its lifetime (invariant 7 in spec.md §3).
type Session struct {
	Dimension Dimension `json:"dimension"`

	Theta float64 `json:"theta"`
	SE    float64 `json:"se"`

	Responses    []Response      `json:"responses"`
	administered map[string]bool `json:"-"`

	StartTime time.Time `json:"start_time"`

	// ConvergedAtIndex records len(Responses) at the moment convergence
	// was first detected. Once set it is never unset (invariant 6).
	ConvergedAtIndex *int `json:"converged_at_index,omitempty"`
}

// NewSession creates a fresh session for a dimension with the initial
// state spec.md §3 requires: theta=0, se=+Inf, empty history.
func NewSession(dim Dimension, now time.Time) *Session {
	return &Session{
		Dimension:    dim,
		Theta:        0,
		SE:           math.Inf(1),
		Responses:    nil,
		administered: make(map[string]bool),
		StartTime:    now,
	}
}

// Administered reports whether itemID has already been administered in
// this session.
func (s *Session) Administered(itemID string) bool {
	return s.administered[itemID]
}

// AdministeredCount returns the number of distinct items administered so
// far. It always equals len(Responses) (invariant 2).
func (s *Session) AdministeredCount() int {
	return len(s.administered)
}

// MarkAdministered records itemID as used. Calling it twice for the same
// item is a caller bug — sessions rely on the executor never doing so.
func (s *Session) MarkAdministered(itemID string) {
	s.administered[itemID] = true
}

// SetConvergedAtIndex sets ConvergedAtIndex the first time it is called;
// subsequent calls are no-ops, enforcing invariant 6.
func (s *Session) SetConvergedAtIndex(idx int) {
	if s.ConvergedAtIndex == nil {
		v := idx
		s.ConvergedAtIndex = &v
	}
}

// Snapshot returns a read-only copy of the session's current estimate,
// safe to hand to event subscribers or a reporter.
type Snapshot struct {
	Dimension Dimension
	Theta     float64
	SE        float64
	NTests    int
	Converged bool
}

// Snapshot returns the session's current read-only view.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Dimension: s.Dimension,
		Theta:     s.Theta,
		SE:        s.SE,
		NTests:    len(s.Responses),
		Converged: s.ConvergedAtIndex != nil,
	}
}
