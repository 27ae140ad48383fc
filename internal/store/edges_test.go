package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func uncapped(string) int { return -1 }

func pendingEdge(id, requester, target, tier string) Edge {
	return Edge{
		ID:            id,
		RequesterID:   requester,
		TargetID:      target,
		RequesterTier: tier,
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestCreateEdgeGated(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.CreateEdgeGated(ctx, pendingEdge("e1", "alice", "bob", "core"), 5); err != nil {
		t.Fatalf("CreateEdgeGated: %v", err)
	}

	got, err := db.GetEdge(ctx, "e1")
	if err != nil {
		t.Fatalf("GetEdge: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("Status = %q, want pending", got.Status)
	}
	if got.TargetTier != "" {
		t.Errorf("TargetTier = %q, want empty", got.TargetTier)
	}
}

func TestCreateEdgePairUnique(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.CreateEdgeGated(ctx, pendingEdge("e1", "alice", "bob", "core"), -1); err != nil {
		t.Fatalf("CreateEdgeGated: %v", err)
	}

	// Same pair, same direction.
	err := db.CreateEdgeGated(ctx, pendingEdge("e2", "alice", "bob", "inner"), -1)
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("same direction: err = %v, want ErrDuplicate", err)
	}

	// Same pair, reversed direction.
	err = db.CreateEdgeGated(ctx, pendingEdge("e3", "bob", "alice", "outer"), -1)
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("reversed direction: err = %v, want ErrDuplicate", err)
	}
}

func TestCreateEdgeCapacityGate(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	// Two confirmed core friends against a cap of 2.
	for i := 0; i < 2; i++ {
		id := fmt.Sprintf("e%d", i)
		friend := fmt.Sprintf("friend%d", i)
		if err := db.CreateEdgeGated(ctx, pendingEdge(id, "alice", friend, "core"), 2); err != nil {
			t.Fatalf("CreateEdgeGated %s: %v", id, err)
		}
		if _, err := db.RespondEdgeGated(ctx, id, true, "", uncapped, time.Now()); err != nil {
			t.Fatalf("RespondEdgeGated %s: %v", id, err)
		}
	}

	err := db.CreateEdgeGated(ctx, pendingEdge("e9", "alice", "overflow", "core"), 2)
	if !errors.Is(err, ErrNoCapacity) {
		t.Errorf("err = %v, want ErrNoCapacity", err)
	}

	// A different tier is unaffected.
	if err := db.CreateEdgeGated(ctx, pendingEdge("e10", "alice", "overflow", "inner"), 2); err != nil {
		t.Errorf("other tier: %v", err)
	}
}

func TestRespondEdgeAccept(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.CreateEdgeGated(ctx, pendingEdge("e1", "alice", "bob", "core"), -1); err != nil {
		t.Fatalf("CreateEdgeGated: %v", err)
	}

	edge, err := db.RespondEdgeGated(ctx, "e1", true, "outer", uncapped, time.Now())
	if err != nil {
		t.Fatalf("RespondEdgeGated: %v", err)
	}
	if edge.Status != StatusConfirmed {
		t.Errorf("Status = %q, want confirmed", edge.Status)
	}
	if edge.TargetTier != "outer" {
		t.Errorf("TargetTier = %q, want outer", edge.TargetTier)
	}
	if edge.ConfirmedAt == nil {
		t.Error("ConfirmedAt not set")
	}
}

func TestRespondEdgeMirrorsTier(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.CreateEdgeGated(ctx, pendingEdge("e1", "alice", "bob", "inner"), -1); err != nil {
		t.Fatalf("CreateEdgeGated: %v", err)
	}

	// Empty target tier mirrors the requester's classification.
	edge, err := db.RespondEdgeGated(ctx, "e1", true, "", uncapped, time.Now())
	if err != nil {
		t.Fatalf("RespondEdgeGated: %v", err)
	}
	if edge.TargetTier != "inner" {
		t.Errorf("TargetTier = %q, want inner", edge.TargetTier)
	}
}

func TestRespondEdgeDecline(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.CreateEdgeGated(ctx, pendingEdge("e1", "alice", "bob", "core"), -1); err != nil {
		t.Fatalf("CreateEdgeGated: %v", err)
	}

	edge, err := db.RespondEdgeGated(ctx, "e1", false, "", uncapped, time.Now())
	if err != nil {
		t.Fatalf("RespondEdgeGated: %v", err)
	}
	if edge.Status != StatusDeclined {
		t.Errorf("Status = %q, want declined", edge.Status)
	}
	if edge.TargetTier != "" {
		t.Errorf("TargetTier = %q, want empty on decline", edge.TargetTier)
	}
}

func TestRespondEdgeTerminalConflict(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.CreateEdgeGated(ctx, pendingEdge("e1", "alice", "bob", "core"), -1); err != nil {
		t.Fatalf("CreateEdgeGated: %v", err)
	}
	if _, err := db.RespondEdgeGated(ctx, "e1", false, "", uncapped, time.Now()); err != nil {
		t.Fatalf("decline: %v", err)
	}

	// The declined edge stays declined no matter what comes next.
	if _, err := db.RespondEdgeGated(ctx, "e1", true, "core", uncapped, time.Now()); !errors.Is(err, ErrConflict) {
		t.Errorf("accept after decline: err = %v, want ErrConflict", err)
	}
	got, err := db.GetEdge(ctx, "e1")
	if err != nil {
		t.Fatalf("GetEdge: %v", err)
	}
	if got.Status != StatusDeclined {
		t.Errorf("Status = %q, want declined", got.Status)
	}
}

func TestRespondEdgeNotFound(t *testing.T) {
	db := testDB(t)

	_, err := db.RespondEdgeGated(context.Background(), "nope", true, "", uncapped, time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRespondEdgeTargetCapacity(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	// Fill bob's core tier.
	if err := db.CreateEdgeGated(ctx, pendingEdge("e1", "bob", "carol", "core"), -1); err != nil {
		t.Fatalf("CreateEdgeGated: %v", err)
	}
	if _, err := db.RespondEdgeGated(ctx, "e1", true, "", uncapped, time.Now()); err != nil {
		t.Fatalf("RespondEdgeGated: %v", err)
	}

	if err := db.CreateEdgeGated(ctx, pendingEdge("e2", "alice", "bob", "outer"), -1); err != nil {
		t.Fatalf("CreateEdgeGated: %v", err)
	}

	coreCapOne := func(tier string) int {
		if tier == "core" {
			return 1
		}
		return -1
	}
	_, err := db.RespondEdgeGated(ctx, "e2", true, "core", coreCapOne, time.Now())
	if !errors.Is(err, ErrNoCapacity) {
		t.Fatalf("err = %v, want ErrNoCapacity", err)
	}

	// The edge is untouched and can still be confirmed at another tier.
	edge, err := db.RespondEdgeGated(ctx, "e2", true, "inner", coreCapOne, time.Now())
	if err != nil {
		t.Fatalf("retry at inner: %v", err)
	}
	if edge.Status != StatusConfirmed {
		t.Errorf("Status = %q, want confirmed", edge.Status)
	}
}

func TestRespondEdgeRequesterCapacity(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	// Alice opens two core requests against a cap of 1. Pending edges
	// consume nothing, so both creates pass; only one accept may.
	if err := db.CreateEdgeGated(ctx, pendingEdge("e1", "alice", "bob", "core"), 1); err != nil {
		t.Fatalf("CreateEdgeGated e1: %v", err)
	}
	if err := db.CreateEdgeGated(ctx, pendingEdge("e2", "alice", "carol", "core"), 1); err != nil {
		t.Fatalf("CreateEdgeGated e2: %v", err)
	}

	coreCapOne := func(tier string) int {
		if tier == "core" {
			return 1
		}
		return -1
	}
	if _, err := db.RespondEdgeGated(ctx, "e1", true, "outer", coreCapOne, time.Now()); err != nil {
		t.Fatalf("accept e1: %v", err)
	}
	if _, err := db.RespondEdgeGated(ctx, "e2", true, "outer", coreCapOne, time.Now()); !errors.Is(err, ErrNoCapacity) {
		t.Errorf("accept e2: err = %v, want ErrNoCapacity", err)
	}
}

func TestDeleteEdgeIdempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.CreateEdgeGated(ctx, pendingEdge("e1", "alice", "bob", "core"), -1); err != nil {
		t.Fatalf("CreateEdgeGated: %v", err)
	}
	if err := db.DeleteEdge(ctx, "e1"); err != nil {
		t.Fatalf("DeleteEdge: %v", err)
	}
	if err := db.DeleteEdge(ctx, "e1"); err != nil {
		t.Errorf("second DeleteEdge: %v", err)
	}
	if _, err := db.GetEdge(ctx, "e1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetEdge after delete: err = %v, want ErrNotFound", err)
	}

	// The pair is reusable after deletion.
	if err := db.CreateEdgeGated(ctx, pendingEdge("e2", "bob", "alice", "inner"), -1); err != nil {
		t.Errorf("recreate pair: %v", err)
	}
}

func TestEdgeForPair(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.CreateEdgeGated(ctx, pendingEdge("e1", "alice", "bob", "core"), -1); err != nil {
		t.Fatalf("CreateEdgeGated: %v", err)
	}

	for _, pair := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		edge, err := db.EdgeForPair(ctx, pair[0], pair[1])
		if err != nil {
			t.Fatalf("EdgeForPair(%s, %s): %v", pair[0], pair[1], err)
		}
		if edge.ID != "e1" {
			t.Errorf("EdgeForPair(%s, %s) = %q, want e1", pair[0], pair[1], edge.ID)
		}
	}

	if _, err := db.EdgeForPair(ctx, "alice", "stranger"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unconnected pair: err = %v, want ErrNotFound", err)
	}
}

func TestTouchLastDeepContact(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.CreateEdgeGated(ctx, pendingEdge("e1", "alice", "bob", "core"), -1); err != nil {
		t.Fatalf("CreateEdgeGated: %v", err)
	}

	at := time.Now().UTC().Truncate(time.Millisecond)

	// Pending edge: no-op.
	if err := db.TouchLastDeepContact(ctx, "alice", "bob", at); err != nil {
		t.Fatalf("TouchLastDeepContact pending: %v", err)
	}
	edge, err := db.GetEdge(ctx, "e1")
	if err != nil {
		t.Fatalf("GetEdge: %v", err)
	}
	if edge.LastDeepContact != nil {
		t.Error("LastDeepContact set on pending edge")
	}

	if _, err := db.RespondEdgeGated(ctx, "e1", true, "", uncapped, time.Now()); err != nil {
		t.Fatalf("RespondEdgeGated: %v", err)
	}
	if err := db.TouchLastDeepContact(ctx, "bob", "alice", at); err != nil {
		t.Fatalf("TouchLastDeepContact: %v", err)
	}
	edge, err = db.GetEdge(ctx, "e1")
	if err != nil {
		t.Fatalf("GetEdge: %v", err)
	}
	if edge.LastDeepContact == nil || !edge.LastDeepContact.Equal(at) {
		t.Errorf("LastDeepContact = %v, want %v", edge.LastDeepContact, at)
	}
}

func TestListConfirmedEdgesForPerson(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.CreateEdgeGated(ctx, pendingEdge("e1", "alice", "bob", "core"), -1); err != nil {
		t.Fatalf("CreateEdgeGated e1: %v", err)
	}
	if err := db.CreateEdgeGated(ctx, pendingEdge("e2", "carol", "alice", "inner"), -1); err != nil {
		t.Fatalf("CreateEdgeGated e2: %v", err)
	}
	if err := db.CreateEdgeGated(ctx, pendingEdge("e3", "alice", "dan", "outer"), -1); err != nil {
		t.Fatalf("CreateEdgeGated e3: %v", err)
	}
	for _, id := range []string{"e1", "e2"} {
		if _, err := db.RespondEdgeGated(ctx, id, true, "", uncapped, time.Now()); err != nil {
			t.Fatalf("RespondEdgeGated %s: %v", id, err)
		}
	}

	all, err := db.ListEdgesForPerson(ctx, "alice")
	if err != nil {
		t.Fatalf("ListEdgesForPerson: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListEdgesForPerson = %d edges, want 3", len(all))
	}

	confirmed, err := db.ListConfirmedEdgesForPerson(ctx, "alice")
	if err != nil {
		t.Fatalf("ListConfirmedEdgesForPerson: %v", err)
	}
	if len(confirmed) != 2 {
		t.Errorf("ListConfirmedEdgesForPerson = %d edges, want 2", len(confirmed))
	}
}

func TestCountFriendsInTierUsesOwnLabel(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	// Alice labels bob core; bob labels alice outer.
	if err := db.CreateEdgeGated(ctx, pendingEdge("e1", "alice", "bob", "core"), -1); err != nil {
		t.Fatalf("CreateEdgeGated: %v", err)
	}
	if _, err := db.RespondEdgeGated(ctx, "e1", true, "outer", uncapped, time.Now()); err != nil {
		t.Fatalf("RespondEdgeGated: %v", err)
	}

	cases := []struct {
		person, tier string
		want         int
	}{
		{"alice", "core", 1},
		{"alice", "outer", 0},
		{"bob", "outer", 1},
		{"bob", "core", 0},
	}
	for _, c := range cases {
		n, err := db.CountFriendsInTier(ctx, c.person, c.tier)
		if err != nil {
			t.Fatalf("CountFriendsInTier(%s, %s): %v", c.person, c.tier, err)
		}
		if n != c.want {
			t.Errorf("CountFriendsInTier(%s, %s) = %d, want %d", c.person, c.tier, n, c.want)
		}
	}
}
