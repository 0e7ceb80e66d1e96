package executor

import "github.com/aptcat/engine/pkg/models"

// Event payloads for the eventbus.Bus events published during a run. These
// are informational per spec.md §6 and never fed back into engine state.

type WarmupProgressPayload struct {
	Current int
	Total   int
}

type TestStartedPayload struct {
	ItemID    string
	Dimension models.Dimension
}

type TestCompletedPayload struct {
	ItemID    string
	Passed    bool
	Theta     float64
	SE        float64
	Dimension models.Dimension
}

type IRTUpdatedPayload struct {
	Dimension models.Dimension
	Theta     float64
	SE        float64
	NTests    int
}

type DimensionConvergedPayload struct {
	Dimension models.Dimension
	Theta     float64
	SE        float64
	Reason    string
}
