// Package strikes accumulates abuse strikes keyed by anonymous commitment.
// It is an independent side channel: strikes reference the same commitment
// space as submissions but never touch identities or the ledger.
//
// Banning is a policy decision the tracker only exposes a hook for; no
// threshold is enforced here.
package strikes

import (
	"sync"
	"time"

	"github.com/anonpick/anonpick/pkg/digest"
)

// Record is the strike state for one anonymous commitment. Reasons is
// append-only and kept in report order.
type Record struct {
	Commitment   digest.Hash
	StrikeCount  uint32
	Reasons      []string
	LastStrikeAt time.Time
	BannedAt     *time.Time
}

func (r *Record) clone() Record {
	out := *r
	out.Reasons = append([]string(nil), r.Reasons...)
	if r.BannedAt != nil {
		at := *r.BannedAt
		out.BannedAt = &at
	}
	return out
}

// Tracker owns the strike table. Safe for concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	records map[digest.Hash]*Record
	now     func() time.Time
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		records: make(map[digest.Hash]*Record),
		now:     time.Now,
	}
}

// Add appends a strike reason for a commitment, creating the record on
// first report, and returns the updated state.
func (t *Tracker) Add(commitment digest.Hash, reason string) Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[commitment]
	if !ok {
		rec = &Record{Commitment: commitment}
		t.records[commitment] = rec
	}

	rec.StrikeCount++
	rec.Reasons = append(rec.Reasons, reason)
	rec.LastStrikeAt = t.now()

	return rec.clone()
}

// Check returns the strike record for a commitment, if any. Pure read.
func (t *Tracker) Check(commitment digest.Hash) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.records[commitment]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// MarkBanned sets the ban timestamp for a commitment. This is the hook an
// external ban policy calls; it has no effect on an unknown commitment and
// never overwrites an earlier ban.
func (t *Tracker) MarkBanned(commitment digest.Hash, at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[commitment]
	if !ok || rec.BannedAt != nil {
		return false
	}
	rec.BannedAt = &at
	return true
}
