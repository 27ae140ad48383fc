package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func daysAgo(now time.Time, days int) time.Time {
	return now.Add(-time.Duration(days) * 24 * time.Hour)
}

func TestComputeNudgesThresholds(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	now := time.Now().UTC()

	owner := mustPerson(t, e, "Owner")
	coreFriend := mustPerson(t, e, "Core Friend")
	outerFriend := mustPerson(t, e, "Outer Friend")
	mustConnect(t, e, owner.ID, coreFriend.ID, TierCore, TierOuter)
	mustConnect(t, e, owner.ID, outerFriend.ID, TierOuter, TierOuter)

	// Both last touched 20 days ago: past core's 14-day threshold,
	// inside outer's 90.
	for _, friend := range []string{coreFriend.ID, outerFriend.ID} {
		if err := e.RecordDeepContact(ctx, owner.ID, friend, daysAgo(now, 20)); err != nil {
			t.Fatalf("RecordDeepContact: %v", err)
		}
	}

	nudges, err := e.ComputeNudges(ctx, owner.ID, now)
	if err != nil {
		t.Fatalf("ComputeNudges: %v", err)
	}
	if len(nudges) != 1 {
		t.Fatalf("got %d nudges, want 1", len(nudges))
	}
	n := nudges[0]
	if n.FriendID != coreFriend.ID {
		t.Errorf("FriendID = %q, want core friend", n.FriendID)
	}
	if n.Tier != TierCore {
		t.Errorf("Tier = %q, want core", n.Tier)
	}
	if n.DaysSinceContact != 20 {
		t.Errorf("DaysSinceContact = %d, want 20", n.DaysSinceContact)
	}
	if n.SuggestedAction != "plan_meetup" {
		t.Errorf("SuggestedAction = %q, want plan_meetup", n.SuggestedAction)
	}
}

func TestComputeNudgesNeverContacted(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	owner := mustPerson(t, e, "Owner")
	friend := mustPerson(t, e, "Friend")
	mustConnect(t, e, owner.ID, friend.ID, TierInner, TierInner)

	// No deep contact ever recorded: always due.
	nudges, err := e.ComputeNudges(ctx, owner.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("ComputeNudges: %v", err)
	}
	if len(nudges) != 1 {
		t.Fatalf("got %d nudges, want 1", len(nudges))
	}
	if nudges[0].DaysSinceContact != -1 {
		t.Errorf("DaysSinceContact = %d, want -1", nudges[0].DaysSinceContact)
	}
	if nudges[0].SuggestedAction != "voice_note" {
		t.Errorf("SuggestedAction = %q, want voice_note", nudges[0].SuggestedAction)
	}
}

func TestComputeNudgesSkipsUnthresholdedTiers(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	owner := mustPerson(t, e, "Owner")
	celebrity := mustPerson(t, e, "Celebrity")
	mustConnect(t, e, owner.ID, celebrity.ID, TierParasocial, TierParasocial)

	nudges, err := e.ComputeNudges(ctx, owner.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("ComputeNudges: %v", err)
	}
	if len(nudges) != 0 {
		t.Errorf("got %d nudges for parasocial, want 0", len(nudges))
	}
}

func TestDismissNudgeCooldown(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	now := time.Now().UTC()

	owner := mustPerson(t, e, "Owner")
	friend := mustPerson(t, e, "Friend")
	mustConnect(t, e, owner.ID, friend.ID, TierCore, TierCore)

	if err := e.DismissNudge(ctx, owner.ID, friend.ID, now); err != nil {
		t.Fatalf("DismissNudge: %v", err)
	}

	// Suppressed inside the 7-day cooldown.
	nudges, err := e.ComputeNudges(ctx, owner.ID, now.Add(3*24*time.Hour))
	if err != nil {
		t.Fatalf("ComputeNudges inside cooldown: %v", err)
	}
	if len(nudges) != 0 {
		t.Errorf("got %d nudges inside cooldown, want 0", len(nudges))
	}

	// Back once the cooldown lapses with no contact.
	nudges, err = e.ComputeNudges(ctx, owner.ID, now.Add(8*24*time.Hour))
	if err != nil {
		t.Fatalf("ComputeNudges after cooldown: %v", err)
	}
	if len(nudges) != 1 {
		t.Errorf("got %d nudges after cooldown, want 1", len(nudges))
	}
}

func TestDeepContactAfterDismissalRestartsClock(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	now := time.Now().UTC()

	owner := mustPerson(t, e, "Owner")
	friend := mustPerson(t, e, "Friend")
	mustConnect(t, e, owner.ID, friend.ID, TierCore, TierCore)

	if err := e.DismissNudge(ctx, owner.ID, friend.ID, daysAgo(now, 30)); err != nil {
		t.Fatalf("DismissNudge: %v", err)
	}
	// Contact after the dismissal clears the suppression; recency then
	// decides. Contact 20 days ago is past core's threshold again.
	if err := e.RecordDeepContact(ctx, owner.ID, friend.ID, daysAgo(now, 20)); err != nil {
		t.Fatalf("RecordDeepContact: %v", err)
	}

	nudges, err := e.ComputeNudges(ctx, owner.ID, now)
	if err != nil {
		t.Fatalf("ComputeNudges: %v", err)
	}
	if len(nudges) != 1 {
		t.Errorf("got %d nudges, want 1", len(nudges))
	}
}

func TestDismissNudgeUnknownFriend(t *testing.T) {
	e := newTestEngine(t)
	owner := mustPerson(t, e, "Owner")

	err := e.DismissNudge(context.Background(), owner.ID, "stranger", time.Now().UTC())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRecordDeepContactRequiresEdge(t *testing.T) {
	e := newTestEngine(t)
	owner := mustPerson(t, e, "Owner")

	err := e.RecordDeepContact(context.Background(), owner.ID, "stranger", time.Now().UTC())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestNudgeIDStablePerPair(t *testing.T) {
	if nudgeID("a", "b") != nudgeID("a", "b") {
		t.Error("nudgeID not stable")
	}
	if nudgeID("a", "b") == nudgeID("b", "a") {
		t.Error("nudgeID should be directional: owner then friend")
	}
}
