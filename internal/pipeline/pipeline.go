// Package pipeline orchestrates anonymous submissions: validation,
// content hashing, duplicate detection, classification, location
// anonymization, commitment construction, nullifier registration, and
// reward accrual.
//
// Exact coordinates and the commitment salt exist only inside Submit;
// nothing persisted by this package can be reversed to a point more
// precise than the stated accuracy radius.
package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/anonpick/anonpick/internal/classify"
	"github.com/anonpick/anonpick/internal/identity"
	"github.com/anonpick/anonpick/internal/ledger"
	"github.com/anonpick/anonpick/internal/nullifier"
	"github.com/anonpick/anonpick/internal/store"
	"github.com/anonpick/anonpick/internal/strikes"
	"github.com/anonpick/anonpick/pkg/commitment"
	"github.com/anonpick/anonpick/pkg/digest"
	"github.com/anonpick/anonpick/pkg/geo"
)

// identityDomain separates submitter-secret hashing from every other use
// of the digest, so a secret never collides with content hashes.
const identityDomain = "anonpick-identity-v1:"

// Errors exposed to the API layer.
var (
	ErrInvalidSubmission   = errors.New("pipeline: invalid submission")
	ErrDuplicateSubmission = errors.New("pipeline: duplicate submission")
)

// Submission is one incoming geotagged photo report.
type Submission struct {
	ImageBytes []byte
	ImageRef   string // URL or opaque reference stored alongside the pick
	Lat        float64
	Lng        float64

	// UserSecret, when present, binds the reward aggregate to a stable
	// anonymous identity. When absent a one-off identity hash is drawn
	// per submission.
	UserSecret string

	// PrivacyLevel is one of public|anonymous|private; empty defaults
	// to anonymous.
	PrivacyLevel string
}

// Result is returned to the API layer on acceptance.
type Result struct {
	PickID         string
	RewardHash     digest.Hash
	Points         int
	Classification classify.Label
	Confidence     float64
	Location       geo.LocationRange
	CommitmentHash digest.Hash
}

// Service wires the pipeline's collaborators. Construct with New; every
// dependency is explicit, there is no package-level state.
type Service struct {
	store      store.Store
	classifier classify.Classifier
	anonymizer *geo.Anonymizer
	registry   *nullifier.Registry
	ledger     *ledger.Ledger
	strikes    *strikes.Tracker
	points     map[classify.Label]int
	log        *slog.Logger
	now        func() time.Time

	// accrualMu serializes the reward-aggregate read-modify-write so two
	// concurrent submissions sharing a reward hash cannot race the upsert.
	accrualMu sync.Mutex
}

// Options configures optional Service collaborators.
type Options struct {
	// Points overrides the default classification points table.
	Points map[classify.Label]int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// New constructs the submission service.
func New(st store.Store, cl classify.Classifier, led *ledger.Ledger, opts Options) *Service {
	points := opts.Points
	if points == nil {
		points = classify.Table()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		store:      st,
		classifier: cl,
		anonymizer: geo.NewAnonymizer(),
		registry:   nullifier.New(),
		ledger:     led,
		strikes:    strikes.New(),
		points:     points,
		log:        log,
		now:        time.Now,
	}
}

// Submit runs the full anonymous submission flow. It fails with
// ErrInvalidSubmission before any hashing for malformed input, and with
// ErrDuplicateSubmission (no mutation) when the image was already
// accepted.
func (s *Service) Submit(ctx context.Context, sub Submission) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(sub.ImageBytes) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidSubmission)
	}
	level, err := geo.ParseLevel(sub.PrivacyLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}
	if err := geo.ValidateCoordinates(sub.Lat, sub.Lng); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}

	imageHash := digest.Sum(sub.ImageBytes)

	if _, exists, err := s.store.FindByHash(store.TablePicks, string(imageHash)); err != nil {
		return nil, fmt.Errorf("pipeline: duplicate lookup: %w", err)
	} else if exists {
		s.log.Info("submission rejected", "reason", "duplicate image", "image", imageHash.Short())
		return nil, fmt.Errorf("%w: image %s", ErrDuplicateSubmission, imageHash.Short())
	}

	label, confidence := s.classifier.Classify(imageHash)

	location, err := s.anonymizer.Anonymize(sub.Lat, sub.Lng, level)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}

	identityHash, err := s.identityHash(sub.UserSecret)
	if err != nil {
		return nil, err
	}

	now := s.now()
	com, err := commitment.Build(commitment.Input{
		Kind:           commitment.KindDuplicateItem,
		ImageHash:      imageHash,
		Lat:            sub.Lat,
		Lng:            sub.Lng,
		Location:       location,
		Classification: string(label),
		Confidence:     confidence,
		IdentityHash:   identityHash,
		Timestamp:      now,
	})
	if err != nil {
		if errors.Is(err, commitment.ErrInvalidSubmission) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
		}
		return nil, err
	}

	if err := s.registry.Register(com.Nullifier, com.Kind); err != nil {
		if errors.Is(err, nullifier.ErrDuplicateNullifier) {
			s.log.Info("submission rejected", "reason", "duplicate nullifier", "image", imageHash.Short())
			return nil, fmt.Errorf("%w: nullifier already spent", ErrDuplicateSubmission)
		}
		return nil, err
	}

	points := s.pointsFor(label)

	// Every step past registration unwinds on failure: a nullifier burned
	// for a submission that was never persisted would reject its retry.
	if err := s.accrueReward(identityHash, com.CommitmentHash, points, now); err != nil {
		s.registry.Unregister(com.Nullifier)
		return nil, err
	}

	rewarded, err := s.ledger.Reward(identityHash, points)
	if err != nil {
		s.unwind(identityHash, com.Nullifier, points, false)
		return nil, err
	}
	if !rewarded {
		// The reward hash has no ledger identity; the store aggregate
		// above still carries the accrual.
		s.log.Debug("no ledger identity for reward", "reward", identityHash.Short())
	}

	pickID, err := newPickID()
	if err != nil {
		s.unwind(identityHash, com.Nullifier, points, rewarded)
		return nil, err
	}

	_, err = s.store.Insert(store.TablePicks, store.Record{
		"hash":             string(imageHash),
		"pick_id":          pickID,
		"image_ref":        sub.ImageRef,
		"classification":   string(label),
		"confidence_score": confidence,
		"location_range":   location,
		"anonymous_hash":   string(identityHash),
		"points":           points,
		"commitment_hash":  string(com.CommitmentHash),
		"public_signals":   com.PublicSignals,
		"is_verified":      false,
		"submitted_at":     now,
	})
	if err != nil {
		s.unwind(identityHash, com.Nullifier, points, rewarded)
		return nil, fmt.Errorf("pipeline: persist pick: %w", err)
	}

	s.log.Info("submission accepted",
		"pick", pickID,
		"classification", label,
		"points", points,
		"accuracy_km", location.AccuracyKm,
	)

	return &Result{
		PickID:         pickID,
		RewardHash:     identityHash,
		Points:         points,
		Classification: label,
		Confidence:     confidence,
		Location:       location,
		CommitmentHash: com.CommitmentHash,
	}, nil
}

// Strike records an abuse strike against an anonymous commitment.
func (s *Service) Strike(com digest.Hash, reason string) strikes.Record {
	rec := s.strikes.Add(com, reason)
	s.log.Info("strike recorded", "commitment", com.Short(), "count", rec.StrikeCount)
	return rec
}

// Strikes returns the strike record for a commitment, if any.
func (s *Service) Strikes(com digest.Hash) (strikes.Record, bool) {
	return s.strikes.Check(com)
}

// Stats summarizes pipeline state for operators.
type Stats struct {
	Ledger     ledger.GlobalStats
	Nullifiers int
	ByKind     map[commitment.Kind]int
}

// Stats returns a consistent read-only snapshot of pipeline counters.
func (s *Service) Stats() Stats {
	total, byKind := s.registry.Stats()
	return Stats{
		Ledger:     s.ledger.Aggregate(),
		Nullifiers: total,
		ByKind:     byKind,
	}
}

// accrueReward upserts the anonymous reward aggregate: created on first
// reward, incremented thereafter, never overwritten. accrualMu makes the
// read-modify-write atomic within this process; a duplicate-key insert
// lost to a writer outside it degrades to an increment.
func (s *Service) accrueReward(rewardHash, commitmentHash digest.Hash, points int, now time.Time) error {
	s.accrualMu.Lock()
	defer s.accrualMu.Unlock()

	rec, exists, err := s.store.FindByHash(store.TableRewards, string(rewardHash))
	if err != nil {
		return fmt.Errorf("pipeline: reward lookup: %w", err)
	}

	if !exists {
		_, err = s.store.Insert(store.TableRewards, store.Record{
			"hash":             string(rewardHash),
			"total_points":     points,
			"total_picks":      1,
			"commitment":       string(commitmentHash),
			"last_activity_at": now,
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrDuplicateKey) {
			return fmt.Errorf("pipeline: create reward aggregate: %w", err)
		}
		rec, exists, err = s.store.FindByHash(store.TableRewards, string(rewardHash))
		if err != nil || !exists {
			return fmt.Errorf("pipeline: reward aggregate missing after duplicate insert: %w", err)
		}
	}

	totalPoints, err := recInt(rec, "total_points")
	if err != nil {
		return err
	}
	totalPicks, err := recInt(rec, "total_picks")
	if err != nil {
		return err
	}

	_, err = s.store.Update(store.TableRewards, string(rewardHash), map[string]any{
		"total_points":     totalPoints + points,
		"total_picks":      totalPicks + 1,
		"commitment":       string(commitmentHash),
		"last_activity_at": now,
	})
	if err != nil {
		return fmt.Errorf("pipeline: update reward aggregate: %w", err)
	}
	return nil
}

// unwind reverses the side effects of a submission that failed after its
// nullifier was accepted: the ledger credit (when one happened), the
// reward aggregate, then the nullifier slot itself.
func (s *Service) unwind(rewardHash digest.Hash, n commitment.Nullifier, points int, rewarded bool) {
	if rewarded {
		if _, err := s.ledger.Revoke(rewardHash, points); err != nil {
			s.log.Error("ledger revoke failed during unwind", "reward", rewardHash.Short(), "err", err)
		}
	}
	s.revertAccrual(rewardHash, points)
	s.registry.Unregister(n)
}

// revertAccrual decrements the reward aggregate during unwind. Failures
// are logged, not returned: unwind already runs on an error path.
func (s *Service) revertAccrual(rewardHash digest.Hash, points int) {
	s.accrualMu.Lock()
	defer s.accrualMu.Unlock()

	rec, exists, err := s.store.FindByHash(store.TableRewards, string(rewardHash))
	if err != nil {
		s.log.Error("reward revert lookup failed", "reward", rewardHash.Short(), "err", err)
		return
	}
	if !exists {
		return
	}

	totalPoints, errPoints := recInt(rec, "total_points")
	totalPicks, errPicks := recInt(rec, "total_picks")
	if errPoints != nil || errPicks != nil {
		s.log.Error("reward revert skipped: malformed aggregate", "reward", rewardHash.Short())
		return
	}

	_, err = s.store.Update(store.TableRewards, string(rewardHash), map[string]any{
		"total_points": max(totalPoints-points, 0),
		"total_picks":  max(totalPicks-1, 0),
	})
	if err != nil {
		s.log.Error("reward revert failed", "reward", rewardHash.Short(), "err", err)
	}
}

// recInt reads an integer aggregate field. External store decoders may
// hand back int64 or float64 for values written as int; anything else is
// a corrupted aggregate, never a zero.
func recInt(rec store.Record, key string) (int, error) {
	switch v := rec[key].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("pipeline: reward aggregate field %q has unexpected type %T", key, v)
	}
}

func (s *Service) pointsFor(label classify.Label) int {
	if p, ok := s.points[label]; ok {
		return p
	}
	return classify.DefaultPoints
}

// identityHash derives the reward hash. A recovery phrase maps to its
// ledger identity, any other stable secret maps to a stable hash, and
// without a secret a random hash keeps submissions unlinkable.
func (s *Service) identityHash(userSecret string) (digest.Hash, error) {
	if userSecret != "" {
		if h, err := identity.HashPhrase(userSecret); err == nil {
			return h, nil
		}
		return digest.SumString(identityDomain + userSecret), nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("pipeline: generate identity hash: %w", err)
	}
	return digest.Sum(buf), nil
}

func newPickID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("pipeline: generate pick id: %w", err)
	}
	return "pick_" + hex.EncodeToString(buf), nil
}
