// Package selector implements maximum-Fisher-information item selection
// for a computerized adaptive test, generalized from the teacher's
// internal/router.orderProviders: score every candidate by a criterion,
// then deterministically pick the best.
package selector

import (
	"github.com/aptcat/engine/internal/irt"
	"github.com/aptcat/engine/pkg/models"
)

// preliminaryDiscount is applied to an uncalibrated item's information so
// it is only preferred over a calibrated alternative when its true
// information is meaningfully higher.
const preliminaryDiscount = 0.5

// SelectNext returns the item in pool with the highest adjusted Fisher
// information at theta, among those matching dimension and not already
// in administered. Ties are broken by first-seen order: pool is scanned
// in its given order and the running best is only replaced by a strictly
// greater adjusted score, so whichever candidate reaches the maximum
// first wins. Returns (nil, false) when no candidate is eligible.
func SelectNext(theta float64, pool []models.Item, administered func(itemID string) bool, dimension models.Dimension) (*models.Item, bool) {
	var best *models.Item
	var bestScore float64

	for i := range pool {
		item := &pool[i]
		if item.Dimension != dimension {
			continue
		}
		if administered(item.ID) {
			continue
		}

		score := irt.Information(theta, item.Alpha, item.Beta, item.Gamma)
		if item.IsPreliminary {
			score *= preliminaryDiscount
		}

		if best == nil || score > bestScore {
			best = item
			bestScore = score
		}
	}

	if best == nil {
		return nil, false
	}
	return best, true
}
