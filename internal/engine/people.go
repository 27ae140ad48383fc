package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/LifesaverLabs/inner-friend-circle-sub002/internal/store"
)

// RegisterPerson creates a person record.
func (e *Engine) RegisterPerson(ctx context.Context, displayName string) (*store.Person, error) {
	if displayName == "" {
		return nil, fmt.Errorf("%w: display name required", ErrValidation)
	}

	p := store.Person{
		ID:          newID(),
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.DB.CreatePerson(ctx, p); err != nil {
		return nil, mapStoreErr(err)
	}
	return &p, nil
}

// AddContactMethod registers a contact identifier for a person, then
// re-runs invitation matching: the new identifier may complete a match
// the person was waiting on, and open invitations addressed to the new
// identifier may now reconcile.
func (e *Engine) AddContactMethod(ctx context.Context, personID, serviceType, identifier string) (*store.ContactMethod, error) {
	if _, err := e.DB.GetPerson(ctx, personID); err != nil {
		return nil, mapStoreErr(err)
	}
	canonical, err := CanonicalIdentifier(serviceType, identifier)
	if err != nil {
		return nil, err
	}

	cm := store.ContactMethod{
		ID:          newID(),
		PersonID:    personID,
		ServiceType: serviceType,
		Identifier:  identifier,
		Canonical:   canonical,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.DB.AddContactMethod(ctx, cm); err != nil {
		return nil, mapStoreErr(err)
	}

	if _, err := e.MatchOnRegistration(ctx, personID); err != nil {
		// Matching is best effort here; the identifier is registered.
		log.Printf("people: match on registration for %s: %v", personID, err)
	}
	return &cm, nil
}
