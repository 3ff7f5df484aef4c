// Package store defines the persistence collaborator consumed by the
// submission pipeline, plus the in-memory implementation the daemon runs
// on by default.
//
// The pipeline assumes single-record atomicity from a Store and nothing
// more: no cross-record transactions, no retries. Failures propagate to
// the caller as-is.
package store

import (
	"errors"
	"fmt"
	"sync"
)

// Table names used by the pipeline.
const (
	TablePicks   = "picks"
	TableRewards = "rewards"
	TableStrikes = "strikes"
)

// Errors returned by stores.
var (
	ErrNotFound     = errors.New("store: record not found")
	ErrNoKey        = errors.New("store: record has no key")
	ErrDuplicateKey = errors.New("store: duplicate key")
)

// Record is one stored row. Every record carries its lookup hash under
// the "hash" field.
type Record map[string]any

// Key returns the record's lookup hash.
func (r Record) Key() (string, bool) {
	k, ok := r["hash"].(string)
	return k, ok && k != ""
}

// Store is the storage collaborator. Implementations must make each
// method atomic at the single-record level.
type Store interface {
	// FindByHash looks a record up by its hash key.
	FindByHash(table, hash string) (Record, bool, error)

	// Insert adds a record and returns it. The record must carry a
	// "hash" field; an existing key fails with ErrDuplicateKey.
	Insert(table string, rec Record) (Record, error)

	// Update applies a patch to an existing record and returns the
	// result. Unknown key fails with ErrNotFound.
	Update(table, hash string, patch map[string]any) (Record, error)
}

// MemStore is a mutex-guarded in-memory Store.
type MemStore struct {
	mu     sync.RWMutex
	tables map[string]map[string]Record
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{tables: make(map[string]map[string]Record)}
}

// FindByHash implements Store.
func (s *MemStore) FindByHash(table, hash string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.tables[table][hash]
	if !ok {
		return nil, false, nil
	}
	return rec.copy(), true, nil
}

// Insert implements Store.
func (s *MemStore) Insert(table string, rec Record) (Record, error) {
	key, ok := rec.Key()
	if !ok {
		return nil, ErrNoKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tables[table] == nil {
		s.tables[table] = make(map[string]Record)
	}
	if _, exists := s.tables[table][key]; exists {
		return nil, fmt.Errorf("%w: insert %s/%s", ErrDuplicateKey, table, key)
	}

	stored := rec.copy()
	s.tables[table][key] = stored
	return stored.copy(), nil
}

// Update implements Store.
func (s *MemStore) Update(table, hash string, patch map[string]any) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tables[table][hash]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, table, hash)
	}

	for k, v := range patch {
		rec[k] = v
	}
	return rec.copy(), nil
}

// Count returns the number of records in a table.
func (s *MemStore) Count(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table])
}

func (r Record) copy() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
