package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/LifesaverLabs/inner-friend-circle-sub002/internal/bus"
	"github.com/LifesaverLabs/inner-friend-circle-sub002/internal/notify"
	"github.com/LifesaverLabs/inner-friend-circle-sub002/internal/store"
)

// Directory resolves a contact identifier to its owner. The engine's
// default implementation is store-backed; a remote directory can be
// swapped in. Lookup returns nil, nil when nothing resolves.
type Directory interface {
	Lookup(ctx context.Context, serviceType, canonical string) (*DirectoryEntry, error)
}

// DirectoryEntry is a resolved contact identifier.
type DirectoryEntry struct {
	PersonID        string
	ContactMethodID string
}

type storeDirectory struct {
	db *store.DB
}

func (d storeDirectory) Lookup(ctx context.Context, serviceType, canonical string) (*DirectoryEntry, error) {
	cm, err := d.db.LookupContact(ctx, canonical)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &DirectoryEntry{PersonID: cm.PersonID, ContactMethodID: cm.ID}, nil
}

// CanonicalIdentifier normalizes a contact identifier for matching.
// Emails fold to lowercase; phone numbers reduce to digits with an
// optional leading +; handles fold to lowercase without a leading @.
// Email and phone deliberately canonicalize differently.
func CanonicalIdentifier(serviceType, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: contact identifier required", ErrValidation)
	}

	switch serviceType {
	case "email":
		if !strings.Contains(raw, "@") {
			return "", fmt.Errorf("%w: malformed email %q", ErrValidation, raw)
		}
		return strings.ToLower(raw), nil
	case "phone":
		var b strings.Builder
		for i, r := range raw {
			if r >= '0' && r <= '9' {
				b.WriteRune(r)
			} else if r == '+' && i == 0 {
				b.WriteRune(r)
			}
		}
		canonical := b.String()
		if len(strings.TrimPrefix(canonical, "+")) < 7 {
			return "", fmt.Errorf("%w: malformed phone %q", ErrValidation, raw)
		}
		return canonical, nil
	case "handle":
		return strings.ToLower(strings.TrimPrefix(raw, "@")), nil
	default:
		return "", fmt.Errorf("%w: unknown service type %q", ErrValidation, serviceType)
	}
}

// InvitationResult reports what RecordInvitation did.
type InvitationResult struct {
	// Invitation is the stored one-sided intent; nil when the contact
	// resolved directly to an existing member.
	Invitation *store.PendingInvitation
	// Edge is set when a connection was created: the direct pending
	// request, or the confirmed edge from a mutual match.
	Edge *store.Edge
	// Matched is true when a counterpart invitation reconciled.
	Matched bool
}

// RecordInvitation stores an intent to connect with someone addressed
// only by contact identifier, then reconciles it against counterpart
// invitations. If the identifier already resolves to a member, a direct
// connection request is made instead. Reconciliation applies
// all-or-nothing; failures of the directory or the invite transport
// never roll back the stored invitation.
func (e *Engine) RecordInvitation(ctx context.Context, inviterID, serviceType, contact string, tier Tier, friendName string) (*InvitationResult, error) {
	if inviterID == "" {
		return nil, fmt.Errorf("%w: inviter id required", ErrValidation)
	}
	if _, err := ParseTier(string(tier)); err != nil {
		return nil, err
	}
	canonical, err := CanonicalIdentifier(serviceType, contact)
	if err != nil {
		return nil, err
	}

	// Already a member? Connect directly instead of recording intent.
	entry, err := e.Directory.Lookup(ctx, serviceType, canonical)
	if err != nil {
		// Directory trouble degrades to the unresolved path.
		log.Printf("matcher: directory lookup %s: %v", canonical, err)
		entry = nil
	}
	if entry != nil {
		if entry.PersonID == inviterID {
			return nil, ErrSelfConnection
		}
		edge, err := e.CreateConnectionRequest(ctx, ConnectionRequest{
			RequesterID:            inviterID,
			TargetID:               entry.PersonID,
			Tier:                   tier,
			MatchedContactMethodID: entry.ContactMethodID,
		})
		if err != nil {
			return nil, err
		}
		return &InvitationResult{Edge: edge}, nil
	}

	inv := store.PendingInvitation{
		ID:               newID(),
		InviterID:        inviterID,
		InviteeContact:   strings.TrimSpace(contact),
		InviteeCanonical: canonical,
		ServiceType:      serviceType,
		Tier:             string(tier),
		FriendName:       friendName,
		CreatedAt:        time.Now().UTC(),
	}
	if err := e.DB.CreateInvitation(ctx, inv); err != nil {
		return nil, err
	}

	edge, matched, err := e.reconcile(ctx, inv)
	if err != nil {
		return nil, err
	}
	if matched {
		return &InvitationResult{Invitation: &inv, Edge: edge, Matched: true}, nil
	}

	// No counterpart yet: hand off to the out-of-band invite transport.
	// Fire-and-forget; the stored invitation stands regardless.
	inviterName := inviterID
	if p, err := e.DB.GetPerson(ctx, inviterID); err == nil {
		inviterName = p.DisplayName
	}
	go func(inv notify.Invite) {
		sendCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Notifier.SendInvite(sendCtx, inv); err != nil {
			log.Printf("matcher: send invite to %s: %v", inv.Contact, err)
		}
	}(notify.Invite{
		Contact:     inv.InviteeContact,
		ServiceType: serviceType,
		InviterName: inviterName,
		FriendName:  friendName,
		Tier:        string(tier),
	})

	return &InvitationResult{Invitation: &inv}, nil
}

// reconcile scans for a counterpart invitation: someone who already
// tried to invite one of the inviter's own identifiers, and who owns
// the identifier this invitation targets. On a mutual match the
// confirmed edge and both matched markers are written in one
// transaction.
func (e *Engine) reconcile(ctx context.Context, inv store.PendingInvitation) (*store.Edge, bool, error) {
	own, err := e.DB.ListContactMethods(ctx, inv.InviterID)
	if err != nil {
		return nil, false, err
	}
	if len(own) == 0 {
		return nil, false, nil
	}
	canonicals := make([]string, len(own))
	for i, cm := range own {
		canonicals[i] = cm.Canonical
	}

	candidates, err := e.DB.ListUnmatchedByCanonical(ctx, canonicals, inv.InviterID)
	if err != nil {
		return nil, false, err
	}

	for _, candidate := range candidates {
		theirs, err := e.DB.ListContactMethods(ctx, candidate.InviterID)
		if err != nil {
			return nil, false, err
		}

		var matchedMethod string
		for _, cm := range theirs {
			if cm.Canonical == inv.InviteeCanonical {
				matchedMethod = cm.ID
				break
			}
		}
		if matchedMethod == "" {
			continue
		}

		// Mutual intent: the earlier inviter becomes the requester, each
		// side's chosen tier lands on its own label of the single edge.
		now := time.Now().UTC()
		confirmed := now
		edge := store.Edge{
			ID:                     newID(),
			RequesterID:            candidate.InviterID,
			TargetID:               inv.InviterID,
			RequesterTier:          candidate.Tier,
			TargetTier:             inv.Tier,
			Status:                 store.StatusConfirmed,
			MatchedContactMethodID: matchedMethod,
			CreatedAt:              now,
			ConfirmedAt:            &confirmed,
		}

		err = e.DB.MatchInvitations(ctx, edge, candidate, inv, e.capacityFor, now)
		if errors.Is(err, store.ErrDuplicate) || errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNoCapacity) {
			// Pair already connected, candidate matched concurrently, or a
			// side is at capacity. Leave this invitation open.
			log.Printf("matcher: skip candidate %s for %s: %v", candidate.ID, inv.ID, err)
			continue
		}
		if err != nil {
			return nil, false, err
		}

		e.Bus.Publish(bus.Event{
			Topic:   bus.TopicInvitationMatched,
			Subject: inv.ID,
			Actors:  []string{inv.InviterID, candidate.InviterID},
		})
		e.Bus.Publish(bus.Event{
			Topic:   bus.TopicEdgeConfirmed,
			Subject: edge.ID,
			Actors:  []string{edge.RequesterID, edge.TargetID},
		})
		return &edge, true, nil
	}

	return nil, false, nil
}

// MatchOnRegistration re-runs reconciliation for every open invitation
// a person has authored. Called when the person registers a new contact
// method, since that may complete a previously unresolvable match.
func (e *Engine) MatchOnRegistration(ctx context.Context, personID string) (int, error) {
	invitations, err := e.DB.ListInvitationsForInviter(ctx, personID)
	if err != nil {
		return 0, err
	}

	matched := 0
	for _, inv := range invitations {
		if inv.MatchedAt != nil {
			continue
		}
		if _, ok, err := e.reconcile(ctx, inv); err != nil {
			return matched, err
		} else if ok {
			matched++
		}
	}
	return matched, nil
}
