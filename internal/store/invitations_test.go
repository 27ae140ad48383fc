package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newInvitation(id, inviter, canonical, tier string) PendingInvitation {
	return PendingInvitation{
		ID:               id,
		InviterID:        inviter,
		InviteeContact:   canonical,
		InviteeCanonical: canonical,
		ServiceType:      "email",
		Tier:             tier,
		CreatedAt:        time.Now().UTC(),
	}
}

func TestCreateAndListInvitations(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.CreateInvitation(ctx, newInvitation("i1", "alice", "bob@example.com", "inner")); err != nil {
		t.Fatalf("CreateInvitation: %v", err)
	}
	if err := db.CreateInvitation(ctx, newInvitation("i2", "alice", "carol@example.com", "outer")); err != nil {
		t.Fatalf("CreateInvitation: %v", err)
	}

	invitations, err := db.ListInvitationsForInviter(ctx, "alice")
	if err != nil {
		t.Fatalf("ListInvitationsForInviter: %v", err)
	}
	if len(invitations) != 2 {
		t.Fatalf("got %d invitations, want 2", len(invitations))
	}

	inv, err := db.GetInvitation(ctx, "i1")
	if err != nil {
		t.Fatalf("GetInvitation: %v", err)
	}
	if inv.InviteeCanonical != "bob@example.com" {
		t.Errorf("InviteeCanonical = %q, want bob@example.com", inv.InviteeCanonical)
	}
	if inv.MatchedAt != nil {
		t.Error("new invitation should be unmatched")
	}
}

func TestListUnmatchedByCanonical(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.CreateInvitation(ctx, newInvitation("i1", "bob", "alice@example.com", "outer")); err != nil {
		t.Fatalf("CreateInvitation: %v", err)
	}
	if err := db.CreateInvitation(ctx, newInvitation("i2", "carol", "alice@example.com", "inner")); err != nil {
		t.Fatalf("CreateInvitation: %v", err)
	}
	if err := db.CreateInvitation(ctx, newInvitation("i3", "alice", "alice@example.com", "core")); err != nil {
		t.Fatalf("CreateInvitation: %v", err)
	}

	got, err := db.ListUnmatchedByCanonical(ctx, []string{"alice@example.com"}, "alice")
	if err != nil {
		t.Fatalf("ListUnmatchedByCanonical: %v", err)
	}
	// alice's own invitation is excluded.
	if len(got) != 2 {
		t.Fatalf("got %d invitations, want 2", len(got))
	}
	for _, inv := range got {
		if inv.InviterID == "alice" {
			t.Errorf("invitation %s by the excluded inviter returned", inv.ID)
		}
	}

	got, err = db.ListUnmatchedByCanonical(ctx, []string{"nobody@example.com"}, "")
	if err != nil {
		t.Fatalf("ListUnmatchedByCanonical miss: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d invitations, want 0", len(got))
	}
}

func TestMatchInvitations(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	invA := newInvitation("i1", "bob", "alice@example.com", "outer")
	invB := newInvitation("i2", "alice", "bob@example.com", "inner")
	for _, inv := range []PendingInvitation{invA, invB} {
		if err := db.CreateInvitation(ctx, inv); err != nil {
			t.Fatalf("CreateInvitation %s: %v", inv.ID, err)
		}
	}

	now := time.Now().UTC()
	edge := Edge{
		ID:            "e1",
		RequesterID:   "bob",
		TargetID:      "alice",
		RequesterTier: "outer",
		TargetTier:    "inner",
		Status:        StatusConfirmed,
		CreatedAt:     now,
		ConfirmedAt:   &now,
	}
	if err := db.MatchInvitations(ctx, edge, invA, invB, uncapped, now); err != nil {
		t.Fatalf("MatchInvitations: %v", err)
	}

	got, err := db.GetEdge(ctx, "e1")
	if err != nil {
		t.Fatalf("GetEdge: %v", err)
	}
	if got.Status != StatusConfirmed {
		t.Errorf("Status = %q, want confirmed", got.Status)
	}
	if got.RequesterTier != "outer" || got.TargetTier != "inner" {
		t.Errorf("tiers = %q/%q, want outer/inner", got.RequesterTier, got.TargetTier)
	}

	a, err := db.GetInvitation(ctx, "i1")
	if err != nil {
		t.Fatalf("GetInvitation i1: %v", err)
	}
	if a.MatchedAt == nil || a.MatchedUserID != "alice" {
		t.Errorf("i1 matched = (%v, %q), want (set, alice)", a.MatchedAt, a.MatchedUserID)
	}
	b, err := db.GetInvitation(ctx, "i2")
	if err != nil {
		t.Fatalf("GetInvitation i2: %v", err)
	}
	if b.MatchedAt == nil || b.MatchedUserID != "bob" {
		t.Errorf("i2 matched = (%v, %q), want (set, bob)", b.MatchedAt, b.MatchedUserID)
	}
}

func TestMatchInvitationsAllOrNothing(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	invA := newInvitation("i1", "bob", "alice@example.com", "outer")
	invB := newInvitation("i2", "alice", "bob@example.com", "inner")
	for _, inv := range []PendingInvitation{invA, invB} {
		if err := db.CreateInvitation(ctx, inv); err != nil {
			t.Fatalf("CreateInvitation %s: %v", inv.ID, err)
		}
	}

	// i1 was already consumed by a concurrent match.
	if _, err := db.ExecContext(ctx,
		`UPDATE pending_invitations SET matched_at = ?, matched_user_id = 'dan' WHERE id = 'i1'`,
		toMillis(time.Now()),
	); err != nil {
		t.Fatalf("seed matched: %v", err)
	}

	now := time.Now().UTC()
	edge := Edge{
		ID:            "e1",
		RequesterID:   "bob",
		TargetID:      "alice",
		RequesterTier: "outer",
		TargetTier:    "inner",
		Status:        StatusConfirmed,
		CreatedAt:     now,
		ConfirmedAt:   &now,
	}
	err := db.MatchInvitations(ctx, edge, invA, invB, uncapped, now)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	// The whole transaction rolled back: no edge, i2 still open.
	if _, err := db.GetEdge(ctx, "e1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("edge after rollback: err = %v, want ErrNotFound", err)
	}
	b, err := db.GetInvitation(ctx, "i2")
	if err != nil {
		t.Fatalf("GetInvitation i2: %v", err)
	}
	if b.MatchedAt != nil {
		t.Error("i2 marked matched despite rollback")
	}
}

func TestMatchInvitationsCapacity(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	invA := newInvitation("i1", "bob", "alice@example.com", "core")
	invB := newInvitation("i2", "alice", "bob@example.com", "inner")
	for _, inv := range []PendingInvitation{invA, invB} {
		if err := db.CreateInvitation(ctx, inv); err != nil {
			t.Fatalf("CreateInvitation %s: %v", inv.ID, err)
		}
	}

	now := time.Now().UTC()
	edge := Edge{
		ID:            "e1",
		RequesterID:   "bob",
		TargetID:      "alice",
		RequesterTier: "core",
		TargetTier:    "inner",
		Status:        StatusConfirmed,
		CreatedAt:     now,
		ConfirmedAt:   &now,
	}
	full := func(tier string) int {
		if tier == "core" {
			return 0
		}
		return -1
	}
	if err := db.MatchInvitations(ctx, edge, invA, invB, full, now); !errors.Is(err, ErrNoCapacity) {
		t.Errorf("err = %v, want ErrNoCapacity", err)
	}
}

func TestUpdateInvitation(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.CreateInvitation(ctx, newInvitation("i1", "alice", "bob@example.com", "inner")); err != nil {
		t.Fatalf("CreateInvitation: %v", err)
	}

	if err := db.UpdateInvitation(ctx, "i1", "alice", "core", "Bobby"); err != nil {
		t.Fatalf("UpdateInvitation: %v", err)
	}
	inv, err := db.GetInvitation(ctx, "i1")
	if err != nil {
		t.Fatalf("GetInvitation: %v", err)
	}
	if inv.Tier != "core" || inv.FriendName != "Bobby" {
		t.Errorf("after update = (%q, %q), want (core, Bobby)", inv.Tier, inv.FriendName)
	}

	if err := db.UpdateInvitation(ctx, "i1", "mallory", "outer", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("wrong inviter: err = %v, want ErrNotFound", err)
	}
}

func TestDeleteInvitation(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.CreateInvitation(ctx, newInvitation("i1", "alice", "bob@example.com", "inner")); err != nil {
		t.Fatalf("CreateInvitation: %v", err)
	}
	if err := db.DeleteInvitation(ctx, "i1", "alice"); err != nil {
		t.Fatalf("DeleteInvitation: %v", err)
	}
	if _, err := db.GetInvitation(ctx, "i1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete: err = %v, want ErrNotFound", err)
	}
}
