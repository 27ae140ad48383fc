package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LifesaverLabs/inner-friend-circle-sub002/internal/bus"
	"github.com/LifesaverLabs/inner-friend-circle-sub002/internal/notify"
	"github.com/LifesaverLabs/inner-friend-circle-sub002/internal/store"
)

// ConnectionRequest is the input to CreateConnectionRequest.
type ConnectionRequest struct {
	RequesterID            string
	TargetID               string
	Tier                   Tier
	DiscloseCircle         bool
	MatchedContactMethodID string
}

// Friend is one confirmed connection from a viewer's perspective.
type Friend struct {
	PersonID  string
	MyTier    Tier
	TheirTier Tier
	Edge      store.Edge
}

// CreateConnectionRequest opens a pending edge from requester to
// target. The requester's capacity at the chosen tier gates the write;
// the unordered pair may hold at most one edge in any status.
func (e *Engine) CreateConnectionRequest(ctx context.Context, req ConnectionRequest) (*store.Edge, error) {
	if req.RequesterID == "" || req.TargetID == "" {
		return nil, fmt.Errorf("%w: requester and target ids required", ErrValidation)
	}
	if req.RequesterID == req.TargetID {
		return nil, ErrSelfConnection
	}
	if _, err := ParseTier(string(req.Tier)); err != nil {
		return nil, err
	}

	edge := store.Edge{
		ID:                     newID(),
		RequesterID:            req.RequesterID,
		TargetID:               req.TargetID,
		RequesterTier:          string(req.Tier),
		Status:                 store.StatusPending,
		DiscloseCircle:         req.DiscloseCircle,
		MatchedContactMethodID: req.MatchedContactMethodID,
		CreatedAt:              time.Now().UTC(),
	}
	if err := e.DB.CreateEdgeGated(ctx, edge, e.caps.For(req.Tier)); err != nil {
		return nil, mapStoreErr(err)
	}

	e.Bus.Publish(bus.Event{
		Topic:   bus.TopicEdgeCreated,
		Subject: edge.ID,
		Actors:  []string{edge.RequesterID, edge.TargetID},
	})
	e.dispatch(notify.Notification{
		RecipientID: edge.TargetID,
		Kind:        "connection_request",
		SubjectID:   edge.ID,
		Priority:    notify.PriorityImmediate,
	})
	return &edge, nil
}

// RespondToRequest applies the single pending → confirmed/declined
// transition. targetTier "" mirrors the requester's classification.
// Responding to a terminal edge returns ErrConflictingState and changes
// nothing.
func (e *Engine) RespondToRequest(ctx context.Context, edgeID string, accept bool, targetTier Tier) (*store.Edge, error) {
	if targetTier != "" {
		if _, err := ParseTier(string(targetTier)); err != nil {
			return nil, err
		}
	}

	edge, err := e.DB.RespondEdgeGated(ctx, edgeID, accept, string(targetTier), e.capacityFor, time.Now().UTC())
	if err != nil {
		return nil, mapStoreErr(err)
	}

	topic := bus.TopicEdgeDeclined
	if accept {
		topic = bus.TopicEdgeConfirmed
	}
	e.Bus.Publish(bus.Event{
		Topic:   topic,
		Subject: edge.ID,
		Actors:  []string{edge.RequesterID, edge.TargetID},
	})
	if accept {
		e.dispatch(notify.Notification{
			RecipientID: edge.RequesterID,
			Kind:        "connection_confirmed",
			SubjectID:   edge.ID,
			Priority:    notify.PriorityImmediate,
		})
	}
	return edge, nil
}

// DeleteConnection removes an edge unconditionally; either party may
// call it at any time. Idempotent.
func (e *Engine) DeleteConnection(ctx context.Context, edgeID string) error {
	edge, err := e.DB.GetEdge(ctx, edgeID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := e.DB.DeleteEdge(ctx, edgeID); err != nil {
		return err
	}
	e.Bus.Publish(bus.Event{
		Topic:   bus.TopicEdgeDeleted,
		Subject: edgeID,
		Actors:  []string{edge.RequesterID, edge.TargetID},
	})
	return nil
}

// MyTierFor returns how the viewer classifies the other party on an
// edge. Pure projection, no side effects.
func MyTierFor(viewerID string, e store.Edge) Tier {
	if viewerID == e.RequesterID {
		return Tier(e.RequesterTier)
	}
	return Tier(e.TargetTier)
}

// TheirTierFor returns how the other party classifies the viewer.
func TheirTierFor(viewerID string, e store.Edge) Tier {
	if viewerID == e.RequesterID {
		return Tier(e.TargetTier)
	}
	return Tier(e.RequesterTier)
}

// FriendIDFor returns the other party's id on an edge.
func FriendIDFor(viewerID string, e store.Edge) string {
	if viewerID == e.RequesterID {
		return e.TargetID
	}
	return e.RequesterID
}

// ConfirmedFriendsInTier lists confirmed connections the viewer
// classifies at the given tier.
func (e *Engine) ConfirmedFriendsInTier(ctx context.Context, viewerID string, tier Tier) ([]Friend, error) {
	edges, err := e.DB.ListConfirmedEdgesForPerson(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	var friends []Friend
	for _, edge := range edges {
		if MyTierFor(viewerID, edge) != tier {
			continue
		}
		friends = append(friends, Friend{
			PersonID:  FriendIDFor(viewerID, edge),
			MyTier:    tier,
			TheirTier: TheirTierFor(viewerID, edge),
			Edge:      edge,
		})
	}
	return friends, nil
}
