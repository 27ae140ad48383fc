package engine

import (
	"context"
	"fmt"
	"time"
)

// Nudge is a derived reconnection reminder, recomputed from edge state
// on every pass. DaysSinceContact is -1 when the friend has never been
// deeply contacted, which always exceeds the threshold.
type Nudge struct {
	ID               string
	FriendID         string
	Tier             Tier
	LastDeepContact  *time.Time
	DaysSinceContact int
	SuggestedAction  string
}

// defaultNudgeActions keys the suggested reconnection action by tier:
// the closest tier gets the highest-fidelity ask.
var defaultNudgeActions = map[Tier]string{
	TierCore:   "plan_meetup",
	TierInner:  "voice_note",
	TierNaybor: "proximity_ping",
	TierOuter:  "send_message",
}

func thresholdsFromConfig(raw map[string]int) map[Tier]int {
	thresholds := make(map[Tier]int, len(raw))
	for name, days := range raw {
		thresholds[Tier(name)] = days
	}
	return thresholds
}

// ComputeNudges derives the reconnection reminders due for an owner at
// the given time. Tiers without a threshold (parasocial, rolemodel,
// and acquainted's batch review) never nudge. A dismissed nudge stays
// suppressed for the cooldown window unless deep contact after the
// dismissal restarts the clock.
func (e *Engine) ComputeNudges(ctx context.Context, ownerID string, now time.Time) ([]Nudge, error) {
	edges, err := e.DB.ListConfirmedEdgesForPerson(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return nil, nil
	}
	dismissals, err := e.DB.ListNudgeDismissals(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	var nudges []Nudge
	for _, edge := range edges {
		tier := MyTierFor(ownerID, edge)
		threshold, ok := e.thresholds[tier]
		if !ok {
			continue
		}

		days := -1
		if edge.LastDeepContact != nil {
			days = int(now.Sub(*edge.LastDeepContact).Hours() / 24)
			if days < threshold {
				continue
			}
		}

		friendID := FriendIDFor(ownerID, edge)
		if dismissedAt, dismissed := dismissals[friendID]; dismissed {
			contactedSince := edge.LastDeepContact != nil && edge.LastDeepContact.After(dismissedAt)
			if !contactedSince && now.Sub(dismissedAt) < e.cooldown {
				continue
			}
		}

		nudges = append(nudges, Nudge{
			ID:               nudgeID(ownerID, friendID),
			FriendID:         friendID,
			Tier:             tier,
			LastDeepContact:  edge.LastDeepContact,
			DaysSinceContact: days,
			SuggestedAction:  e.actions[tier],
		})
	}
	return nudges, nil
}

// DismissNudge suppresses the current nudge for a friend. The nudge
// re-surfaces after the cooldown window if the friend still has not
// been contacted.
func (e *Engine) DismissNudge(ctx context.Context, ownerID, friendID string, now time.Time) error {
	if ownerID == "" || friendID == "" {
		return fmt.Errorf("%w: owner and friend ids required", ErrValidation)
	}
	if _, err := e.DB.EdgeForPair(ctx, ownerID, friendID); err != nil {
		return mapStoreErr(err)
	}
	return e.DB.DismissNudge(ctx, ownerID, friendID, now)
}

// RecordDeepContact marks a high-fidelity touch between two connected
// persons outside the post/interaction flow (a call, a meetup).
func (e *Engine) RecordDeepContact(ctx context.Context, a, b string, at time.Time) error {
	if _, err := e.DB.EdgeForPair(ctx, a, b); err != nil {
		return mapStoreErr(err)
	}
	return e.DB.TouchLastDeepContact(ctx, a, b, at)
}

// Nudge IDs are derived, not stored: stable per (owner, friend) so a
// dismissal can address the current instance.
func nudgeID(ownerID, friendID string) string {
	return ownerID + ":" + friendID
}
