package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/LifesaverLabs/inner-friend-circle-sub002/internal/config"
	"github.com/LifesaverLabs/inner-friend-circle-sub002/internal/notify"
	"github.com/LifesaverLabs/inner-friend-circle-sub002/internal/store"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, config.Default())
}

func mustPerson(t *testing.T, e *Engine, name string) *store.Person {
	t.Helper()
	p, err := e.RegisterPerson(context.Background(), name)
	if err != nil {
		t.Fatalf("RegisterPerson %s: %v", name, err)
	}
	return p
}

// mustConnect confirms a connection where the requester labels the
// target requesterTier and the target labels back targetTier.
func mustConnect(t *testing.T, e *Engine, requesterID, targetID string, requesterTier, targetTier Tier) *store.Edge {
	t.Helper()
	ctx := context.Background()
	edge, err := e.CreateConnectionRequest(ctx, ConnectionRequest{
		RequesterID: requesterID,
		TargetID:    targetID,
		Tier:        requesterTier,
	})
	if err != nil {
		t.Fatalf("CreateConnectionRequest: %v", err)
	}
	confirmed, err := e.RespondToRequest(ctx, edge.ID, true, targetTier)
	if err != nil {
		t.Fatalf("RespondToRequest: %v", err)
	}
	return confirmed
}

// captureNotifier records deliveries and invites for assertions. Safe
// for the engine's fire-and-forget goroutines.
type captureNotifier struct {
	mu            sync.Mutex
	invites       []notify.Invite
	notifications []notify.Notification
	delivered     chan notify.Notification
	sent          chan notify.Invite
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{
		delivered: make(chan notify.Notification, 16),
		sent:      make(chan notify.Invite, 16),
	}
}

func (c *captureNotifier) SendInvite(ctx context.Context, inv notify.Invite) error {
	c.mu.Lock()
	c.invites = append(c.invites, inv)
	c.mu.Unlock()
	c.sent <- inv
	return nil
}

func (c *captureNotifier) Deliver(ctx context.Context, n notify.Notification) error {
	c.mu.Lock()
	c.notifications = append(c.notifications, n)
	c.mu.Unlock()
	c.delivered <- n
	return nil
}
