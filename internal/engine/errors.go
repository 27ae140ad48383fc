package engine

import (
	"errors"

	"github.com/LifesaverLabs/inner-friend-circle-sub002/internal/store"
)

// Engine error taxonomy. All mutations return one of these wrapped
// sentinels for expected outcomes; callers branch with errors.Is.
// Duplicate and self-connection attempts are ordinary results, not
// system failures.
var (
	ErrValidation          = errors.New("validation error")
	ErrSelfConnection      = errors.New("cannot connect to self")
	ErrDuplicateConnection = errors.New("connection already exists")
	ErrNoCapacity          = errors.New("no tier capacity remaining")
	ErrNotFound            = errors.New("not found")
	ErrConflictingState    = errors.New("conflicting state")
	ErrNotAuthenticated    = errors.New("not authenticated")
)

// mapStoreErr translates store sentinels into the engine taxonomy.
func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrDuplicate):
		return ErrDuplicateConnection
	case errors.Is(err, store.ErrConflict):
		return ErrConflictingState
	case errors.Is(err, store.ErrNoCapacity):
		return ErrNoCapacity
	}
	return err
}
