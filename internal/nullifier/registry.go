// Package nullifier enforces at-most-once acceptance per nullifier value.
//
// The registry is the serialization point of the submission pipeline:
// check-then-insert happens under one lock, so two concurrent submissions
// carrying the same nullifier resolve to exactly one accept and one
// reject. It is safe for concurrent use.
package nullifier

import (
	"errors"
	"sync"
	"time"

	"github.com/anonpick/anonpick/pkg/commitment"
)

// DefaultCapacity bounds the registry to prevent memory exhaustion from
// unbounded submission floods.
const DefaultCapacity = 1 << 20

// Errors returned by the registry.
var (
	ErrDuplicateNullifier = errors.New("nullifier: already registered")
	ErrEmptyNullifier     = errors.New("nullifier: empty value")
	ErrRegistryAtCapacity = errors.New("nullifier: registry at capacity")
)

// record is the stored state for one accepted nullifier. Once written it
// is never modified; a duplicate registration leaves it untouched.
type record struct {
	kind         commitment.Kind
	registeredAt time.Time
}

// Registry tracks accepted nullifiers.
type Registry struct {
	mu       sync.RWMutex
	seen     map[commitment.Nullifier]record
	capacity int
}

// New creates a Registry with DefaultCapacity.
func New() *Registry {
	return NewWithCapacity(DefaultCapacity)
}

// NewWithCapacity creates a Registry bounded to the given number of
// entries. Useful for tests.
func NewWithCapacity(capacity int) *Registry {
	return &Registry{
		seen:     make(map[commitment.Nullifier]record),
		capacity: capacity,
	}
}

// Register accepts a nullifier exactly once. A second registration of the
// same value fails with ErrDuplicateNullifier and does not mutate state.
// The check and the insert happen under one lock, which makes registration
// linearizable per value.
func (r *Registry) Register(n commitment.Nullifier, kind commitment.Kind) error {
	if n.Empty() {
		return ErrEmptyNullifier
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.seen[n]; exists {
		return ErrDuplicateNullifier
	}
	if len(r.seen) >= r.capacity {
		return ErrRegistryAtCapacity
	}

	r.seen[n] = record{kind: kind, registeredAt: time.Now()}
	return nil
}

// Unregister removes an accepted nullifier so the value may be registered
// again. The submission pipeline calls it when a step after registration
// fails; without the removal the slot stays burned and a valid retry of a
// never-persisted submission would be rejected forever.
func (r *Registry) Unregister(n commitment.Nullifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.seen, n)
}

// Seen reports whether a nullifier has been accepted.
func (r *Registry) Seen(n commitment.Nullifier) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.seen[n]
	return ok
}

// Stats returns the total number of accepted nullifiers and a per-kind
// breakdown.
func (r *Registry) Stats() (total int, byKind map[commitment.Kind]int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byKind = make(map[commitment.Kind]int)
	for _, rec := range r.seen {
		byKind[rec.kind]++
	}
	return len(r.seen), byKind
}
