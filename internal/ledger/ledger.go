// Package ledger accumulates points and action counts keyed by a public
// anonymous identifier. Identities are looked up only by their public
// hash; the ledger never sees a real-world identifier or a recovery
// phrase.
//
// The ledger is safe for concurrent use. Reward and transfer are the only
// mutations; both run under one lock, and when snapshot persistence is
// configured a failed write rolls the in-memory mutation back, so a
// mutation and its persistence act as a single unit of work.
package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/anonpick/anonpick/internal/identity"
	"github.com/anonpick/anonpick/pkg/digest"
)

// Errors returned by ledger operations.
var (
	ErrIdentityNotFound    = errors.New("ledger: identity not found")
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrNegativeAmount      = errors.New("ledger: amount must be positive")
)

// tokenScale is the fixed-point scale: 18 implied decimals.
var tokenScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Identity is one ledger row. Balance carries 18 implied decimals.
type Identity struct {
	PublicHash   digest.Hash `json:"public_hash"`
	Balance      *big.Int    `json:"balance"`
	TotalActions uint64      `json:"total_actions"`
	CreatedAt    time.Time   `json:"created_at"`
	LastActive   time.Time   `json:"last_active"`
}

func (id *Identity) clone() *Identity {
	out := *id
	out.Balance = new(big.Int).Set(id.Balance)
	return &out
}

// GlobalStats is a read-only aggregate snapshot.
type GlobalStats struct {
	Identities   int
	TotalBalance *big.Int
	TotalActions uint64
	AvgActions   float64
}

// Ledger owns the identity table. Construct with New and pass it as a
// dependency; there is no package-level instance.
type Ledger struct {
	mu         sync.Mutex
	identities map[digest.Hash]*Identity
	snapshot   *Snapshotter // optional
	now        func() time.Time
}

// New creates an empty in-memory ledger.
func New() *Ledger {
	return &Ledger{
		identities: make(map[digest.Hash]*Identity),
		now:        time.Now,
	}
}

// WithSnapshot attaches encrypted snapshot persistence. Every mutation is
// flushed; a failed flush rolls the mutation back.
func (l *Ledger) WithSnapshot(s *Snapshotter) *Ledger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snapshot = s
	return l
}

// Create registers a fresh anonymous identity. When withRecovery is true
// the returned material holds the 12-word phrase that deterministically
// recovers the same identity; the phrase itself is never stored.
func (l *Ledger) Create(withRecovery bool) (*Identity, *identity.RecoveryMaterial, error) {
	var (
		anon     *identity.Identity
		material *identity.RecoveryMaterial
		err      error
	)
	if withRecovery {
		anon, material, err = identity.NewWithRecovery()
	} else {
		anon, err = identity.New()
	}
	if err != nil {
		return nil, nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	row := &Identity{
		PublicHash:   anon.PublicHash,
		Balance:      big.NewInt(0),
		TotalActions: 0,
		CreatedAt:    now,
		LastActive:   now,
	}
	l.identities[row.PublicHash] = row

	if err := l.persistLocked(); err != nil {
		delete(l.identities, row.PublicHash)
		return nil, nil, err
	}

	return row.clone(), material, nil
}

// Recover resolves a recovery phrase to an existing identity. Recovery
// never auto-creates: an unknown derived hash returns false, as does an
// invalid phrase.
func (l *Ledger) Recover(phrase string) (*Identity, bool) {
	hash, err := identity.HashPhrase(phrase)
	if err != nil {
		return nil, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	row, ok := l.identities[hash]
	if !ok {
		return nil, false
	}
	return row.clone(), true
}

// Lookup returns the identity for a public hash.
func (l *Ledger) Lookup(publicHash digest.Hash) (*Identity, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	row, ok := l.identities[publicHash]
	if !ok {
		return nil, false
	}
	return row.clone(), true
}

// Reward credits points*10^18 to an identity and bumps its action count.
// Returns false when the identity is unknown; a persistence failure is
// returned with the mutation rolled back.
func (l *Ledger) Reward(publicHash digest.Hash, points int) (bool, error) {
	if points < 0 {
		return false, ErrNegativeAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	row, ok := l.identities[publicHash]
	if !ok {
		return false, nil
	}

	prev := row.clone()
	row.Balance.Add(row.Balance, new(big.Int).Mul(big.NewInt(int64(points)), tokenScale))
	row.TotalActions++
	row.LastActive = l.now()

	if err := l.persistLocked(); err != nil {
		l.identities[publicHash] = prev
		return false, fmt.Errorf("ledger: persist reward: %w", err)
	}
	return true, nil
}

// Revoke undoes a prior Reward: points*10^18 is debited and the action
// count decremented. The pipeline uses it to unwind a submission that
// fails after its reward was credited. The balance floors at zero in case
// the funds were transferred away in between. Returns false when the
// identity is unknown.
func (l *Ledger) Revoke(publicHash digest.Hash, points int) (bool, error) {
	if points < 0 {
		return false, ErrNegativeAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	row, ok := l.identities[publicHash]
	if !ok {
		return false, nil
	}

	prev := row.clone()
	row.Balance.Sub(row.Balance, new(big.Int).Mul(big.NewInt(int64(points)), tokenScale))
	if row.Balance.Sign() < 0 {
		row.Balance.SetInt64(0)
	}
	if row.TotalActions > 0 {
		row.TotalActions--
	}
	row.LastActive = l.now()

	if err := l.persistLocked(); err != nil {
		l.identities[publicHash] = prev
		return false, fmt.Errorf("ledger: persist revoke: %w", err)
	}
	return true, nil
}

// Transfer moves amount (raw units, 18 implied decimals) between two
// identities. All-or-nothing: on any failure both balances are unchanged.
func (l *Ledger) Transfer(from, to digest.Hash, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrNegativeAmount
	}

	// One lock covers both rows, so no partial transfer is observable.
	l.mu.Lock()
	defer l.mu.Unlock()

	src, ok := l.identities[from]
	if !ok {
		return fmt.Errorf("%w: sender %s", ErrIdentityNotFound, from.Short())
	}
	dst, ok := l.identities[to]
	if !ok {
		return fmt.Errorf("%w: recipient %s", ErrIdentityNotFound, to.Short())
	}
	if src.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}

	prevSrc, prevDst := src.clone(), dst.clone()
	now := l.now()

	src.Balance.Sub(src.Balance, amount)
	src.TotalActions++
	src.LastActive = now
	dst.Balance.Add(dst.Balance, amount)
	dst.TotalActions++
	dst.LastActive = now

	if err := l.persistLocked(); err != nil {
		l.identities[from] = prevSrc
		l.identities[to] = prevDst
		return fmt.Errorf("ledger: persist transfer: %w", err)
	}
	return nil
}

// Aggregate returns global ledger statistics. AvgActions is 0 when the
// ledger is empty.
func (l *Ledger) Aggregate() GlobalStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := GlobalStats{TotalBalance: big.NewInt(0)}
	for _, row := range l.identities {
		stats.Identities++
		stats.TotalActions += row.TotalActions
		stats.TotalBalance.Add(stats.TotalBalance, row.Balance)
	}
	if stats.Identities > 0 {
		stats.AvgActions = float64(stats.TotalActions) / float64(stats.Identities)
	}
	return stats
}

// restore replaces the identity table from a loaded snapshot.
func (l *Ledger) restore(rows []*Identity) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.identities = make(map[digest.Hash]*Identity, len(rows))
	for _, row := range rows {
		if row.Balance == nil {
			row.Balance = big.NewInt(0)
		}
		l.identities[row.PublicHash] = row
	}
}

// rowsLocked returns the table for snapshot serialization. Caller holds
// the lock.
func (l *Ledger) rowsLocked() []*Identity {
	out := make([]*Identity, 0, len(l.identities))
	for _, row := range l.identities {
		out = append(out, row)
	}
	return out
}

func (l *Ledger) persistLocked() error {
	if l.snapshot == nil {
		return nil
	}
	return l.snapshot.write(l.rowsLocked())
}
