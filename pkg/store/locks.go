package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/adelansari/steam-workshop-collection/pkg/types"
)

// LocksRecordName is the backend record holding every locked collection id.
const LocksRecordName = "locked_collections"

// LockRegistry is the append-only set of collections that are permanently
// full. A locked collection is never selected as a placement target again,
// whatever a later capacity reading shows. There is no unlock.
type LockRegistry struct {
	backend Backend

	mu     sync.RWMutex
	locked *Set[types.CollectionID]
}

// NewLockRegistry creates an empty registry persisted through backend.
func NewLockRegistry(backend Backend) *LockRegistry {
	return &LockRegistry{
		backend: backend,
		locked:  NewSet[types.CollectionID](),
	}
}

// Load unions the persisted registry into memory. Unlike cache records, an
// unreadable registry is an error: dropping locks could overfill collections.
func (r *LockRegistry) Load(ctx context.Context) error {
	ids, err := r.backend.Read(ctx, LocksRecordName)
	if err != nil {
		return fmt.Errorf("failed to load lock registry: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.locked.Add(fromStrings[types.CollectionID](ids)...)
	return nil
}

// IsLocked reports whether id is locked.
func (r *LockRegistry) IsLocked(id types.CollectionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.locked.Contains(id)
}

// Lock adds id and persists the registry immediately. Locking an id that is
// already locked is a no-op and returns false. If persisting fails the id
// stays locked in memory and the error is returned.
func (r *LockRegistry) Lock(ctx context.Context, id types.CollectionID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.locked.Add(id) == 0 {
		return false, nil
	}
	if err := r.backend.Write(ctx, LocksRecordName, toStrings(r.locked.Sorted())); err != nil {
		return true, fmt.Errorf("failed to persist lock for %s: %w", id, err)
	}
	return true, nil
}

// Locked returns every locked id in ascending order.
func (r *LockRegistry) Locked() []types.CollectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.locked.Sorted()
}
