package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/LifesaverLabs/inner-friend-circle-sub002/internal/store"
)

// TierCapacity is the capacity ledger for one (person, tier).
// Available is -1 when the tier is uncapped.
type TierCapacity struct {
	Tier        Tier
	FriendCount int
	Reserved    int
	Used        int
	Available   int
	Groups      []store.ReservedGroup
}

// Capacity reads the ledger for a (person, tier). Pure query: returns
// zeroed counts when the person has no connections or groups.
func (e *Engine) Capacity(ctx context.Context, personID string, tier Tier) (*TierCapacity, error) {
	friends, err := e.DB.CountFriendsInTier(ctx, personID, string(tier))
	if err != nil {
		return nil, err
	}
	groups, err := e.DB.ListReservedGroups(ctx, personID, string(tier))
	if err != nil {
		return nil, err
	}

	reserved := 0
	for _, g := range groups {
		reserved += g.Count
	}

	tc := &TierCapacity{
		Tier:        tier,
		FriendCount: friends,
		Reserved:    reserved,
		Used:        friends + reserved,
		Available:   -1,
		Groups:      groups,
	}
	if limit := e.caps.For(tier); limit >= 0 {
		tc.Available = limit - tc.Used
		if tc.Available < 0 {
			tc.Available = 0
		}
	}
	return tc, nil
}

// AddReservedGroup reserves capacity at a tier without naming a person.
// The stored count clamps to whatever capacity remains (best effort);
// ErrNoCapacity only when the tier is already full.
func (e *Engine) AddReservedGroup(ctx context.Context, personID string, tier Tier, count int, note string) (*store.ReservedGroup, error) {
	if personID == "" {
		return nil, fmt.Errorf("%w: person id required", ErrValidation)
	}
	if count <= 0 {
		return nil, fmt.Errorf("%w: count must be positive", ErrValidation)
	}

	now := time.Now().UTC()
	group, err := e.DB.CreateReservedGroup(ctx, store.ReservedGroup{
		ID:        newID(),
		OwnerID:   personID,
		Tier:      string(tier),
		Count:     count,
		Note:      note,
		CreatedAt: now,
		UpdatedAt: now,
	}, e.caps.For(tier))
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return group, nil
}

// UpdateReservedGroup changes a group's count and note. Increases clamp
// against remaining capacity; decreases always apply.
func (e *Engine) UpdateReservedGroup(ctx context.Context, personID, groupID string, count int, note string) (*store.ReservedGroup, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: count must be positive", ErrValidation)
	}

	group, err := e.DB.UpdateReservedGroup(ctx, groupID, personID, count, note, e.capacityFor, time.Now().UTC())
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return group, nil
}

// RemoveReservedGroup deletes a reserved group. Idempotent.
func (e *Engine) RemoveReservedGroup(ctx context.Context, personID, groupID string) error {
	return e.DB.DeleteReservedGroup(ctx, groupID, personID)
}

// capacityFor adapts the tier cap table to the store's callback shape.
func (e *Engine) capacityFor(tier string) int {
	return e.caps.For(Tier(tier))
}
