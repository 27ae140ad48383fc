// Package notify defines the outbound-notifier collaborator boundary.
// Delivery is fire-and-forget from the engine's point of view: a failed
// send never rolls back the mutation that triggered it.
package notify

import (
	"context"
	"log"
	"time"
)

// Priority is the delivery urgency assigned to a notification.
type Priority string

const (
	PriorityImmediate Priority = "immediate"
	PriorityBatched   Priority = "batched"
	PriorityQuiet     Priority = "quiet"
	PriorityDisabled  Priority = "disabled"
)

// Notification is one deliverable event.
type Notification struct {
	RecipientID string
	Kind        string // e.g. "post", "interaction", "connection_request"
	SubjectID   string
	Message     string
	Priority    Priority
	// Window is the aggregation window for batched delivery; zero for
	// everything else.
	Window time.Duration
}

// Invite is an out-of-band invitation to someone without an account.
type Invite struct {
	Contact     string
	ServiceType string
	InviterName string
	FriendName  string
	Tier        string
}

// Notifier delivers notifications and invites through an external
// transport (push, email, SMS). Implementations must tolerate being
// called from goroutines.
type Notifier interface {
	SendInvite(ctx context.Context, inv Invite) error
	Deliver(ctx context.Context, n Notification) error
}

// LogNotifier writes deliveries to the process log. It is the default
// when no transport is configured, and keeps the engine's
// fire-and-forget contract observable in development.
type LogNotifier struct{}

func (LogNotifier) SendInvite(ctx context.Context, inv Invite) error {
	log.Printf("notify: invite %s (%s) from %s [tier %s]", inv.Contact, inv.ServiceType, inv.InviterName, inv.Tier)
	return nil
}

func (LogNotifier) Deliver(ctx context.Context, n Notification) error {
	if n.Priority == PriorityDisabled {
		return nil
	}
	log.Printf("notify: %s -> %s (%s, priority %s)", n.Kind, n.RecipientID, n.SubjectID, n.Priority)
	return nil
}
