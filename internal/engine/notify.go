package engine

import (
	"time"

	"github.com/LifesaverLabs/inner-friend-circle-sub002/internal/notify"
)

// PriorityFor maps a tier to its delivery urgency: the closest tiers
// interrupt, outer batches, ambient tiers stay in-app, and the
// outermost tiers are silent by default.
func PriorityFor(tier Tier) notify.Priority {
	switch tier {
	case TierCore, TierInner:
		return notify.PriorityImmediate
	case TierOuter:
		return notify.PriorityBatched
	case TierNaybor, TierParasocial:
		return notify.PriorityQuiet
	default: // rolemodel, acquainted
		return notify.PriorityDisabled
	}
}

// Schedule computes the delivery policy for events at a tier: the
// priority plus the aggregation window for batched delivery. Actual
// transport is the notifier collaborator's concern.
func (e *Engine) Schedule(tier Tier) (notify.Priority, time.Duration) {
	priority := PriorityFor(tier)
	if priority == notify.PriorityBatched {
		return priority, e.batchWindow
	}
	return priority, 0
}
