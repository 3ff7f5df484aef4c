// Package commitment assembles the hash-bound proof object persisted for
// every anonymous submission. A Commitment binds the image digest, the
// anonymized location, the classification, and a fixed public-signal
// vector into a single commitment hash.
//
// This is a documented commitment scheme, not a succinct proof: the
// commitment hash is a pure function of its inputs plus a private salt, so
// recomputing it from the same inputs yields the same value. Determinism
// is what the nullifier derivation relies on; secrecy comes from never
// persisting the private inputs.
package commitment

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/anonpick/anonpick/pkg/digest"
	"github.com/anonpick/anonpick/pkg/geo"
)

// Kind tags which proof variant a commitment represents. The three kinds
// share one builder; they differ only in nullifier derivation.
type Kind string

const (
	// KindDuplicateItem nullifies on (item content, anonymous identity):
	// the same identity cannot submit the same item twice.
	KindDuplicateItem Kind = "duplicate-item"

	// KindLocationClaim nullifies on (identity, coarse location,
	// timestamp): one claim per identity per place per moment.
	KindLocationClaim Kind = "location-claim"

	// KindReputation carries no nullifier. Reputation proofs are not
	// single-use.
	KindReputation Kind = "reputation-claim"
)

// saltBytes is the length of a generated private salt.
const saltBytes = 16

// Errors returned by the builder.
var (
	ErrInvalidSubmission = errors.New("commitment: invalid submission")
	ErrUnknownKind       = errors.New("commitment: unknown proof kind")
)

// Input carries everything the builder needs. The exact coordinates and
// the salt are private inputs: they participate in the commitment hash but
// never appear on the built Commitment.
type Input struct {
	Kind           Kind
	ImageHash      digest.Hash
	Lat, Lng       float64
	Location       geo.LocationRange
	Classification string
	Confidence     float64
	IdentityHash   digest.Hash
	Timestamp      time.Time

	// Salt is optional; a random salt is generated when empty.
	Salt string
}

// Commitment is the persisted proof record. Built once at submission time,
// never mutated. It contains no exact coordinates and no salt.
type Commitment struct {
	Kind           Kind              `json:"kind"`
	ImageHash      digest.Hash       `json:"image_hash"`
	Location       geo.LocationRange `json:"location"`
	Classification string            `json:"classification"`
	Confidence     float64           `json:"confidence"`
	PublicSignals  []int64           `json:"public_signals"`
	CommitmentHash digest.Hash       `json:"commitment_hash"`
	Nullifier      Nullifier         `json:"nullifier,omitempty"`
}

// privateInputs is the serialization layout of the hidden half of the
// commitment. Field order is part of the hash contract.
type privateInputs struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Salt string  `json:"salt"`
}

// Build validates the input and assembles the commitment.
//
// Public signals are laid out as
//
//	[floor(centerLat*1000), floor(centerLng*1000), floor(confidence*100), unixSeconds]
//
// exactly; downstream verifiers depend on this order and scaling.
//
// Validation happens before any hashing so a malformed submission never
// burns a nullifier slot.
func Build(in Input) (*Commitment, error) {
	switch in.Kind {
	case KindDuplicateItem, KindLocationClaim, KindReputation:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, in.Kind)
	}
	if !in.ImageHash.Valid() {
		return nil, fmt.Errorf("%w: missing image hash", ErrInvalidSubmission)
	}
	if math.IsNaN(in.Confidence) || in.Confidence < 0 || in.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidSubmission, in.Confidence)
	}
	if in.Timestamp.IsZero() {
		return nil, fmt.Errorf("%w: zero timestamp", ErrInvalidSubmission)
	}

	salt := in.Salt
	if salt == "" {
		var err error
		salt, err = randomSalt()
		if err != nil {
			return nil, err
		}
	}

	signals := []int64{
		int64(math.Floor(in.Location.CenterLat * 1000)),
		int64(math.Floor(in.Location.CenterLng * 1000)),
		int64(math.Floor(in.Confidence * 100)),
		in.Timestamp.Unix(),
	}

	hash, err := digest.SumJSON(privateInputs{Lat: in.Lat, Lng: in.Lng, Salt: salt}, signals)
	if err != nil {
		return nil, err
	}

	nullifier, err := Derive(in.Kind, in.ImageHash, in.IdentityHash, in.Location, in.Timestamp)
	if err != nil {
		return nil, err
	}

	return &Commitment{
		Kind:           in.Kind,
		ImageHash:      in.ImageHash,
		Location:       in.Location,
		Classification: in.Classification,
		Confidence:     in.Confidence,
		PublicSignals:  signals,
		CommitmentHash: hash,
		Nullifier:      nullifier,
	}, nil
}

func randomSalt() (string, error) {
	buf := make([]byte, saltBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("commitment: generate salt: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
