package commitment

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"

	"github.com/anonpick/anonpick/pkg/digest"
	"github.com/anonpick/anonpick/pkg/geo"
)

// Nullifier is the hex encoding of a BN254 field element derived from an
// (actor, action) pair. It enforces single-use semantics without revealing
// the actor. Reputation commitments carry the empty nullifier.
type Nullifier string

// Empty reports whether the commitment kind carries no nullifier.
func (n Nullifier) Empty() bool { return n == "" }

// Derive computes the nullifier for a proof kind. Each kind prepends its
// own namespace element so identical inputs under different kinds can
// never collide:
//
//	duplicate-item  ← (imageHash, identityHash)
//	location-claim  ← (identityHash, floor(centerLat*1000), floor(centerLng*1000), unixSeconds)
//	reputation      ← none (empty nullifier)
//
// Inputs are folded into BN254 field elements and hashed with MiMC.
func Derive(kind Kind, imageHash, identityHash digest.Hash, loc geo.LocationRange, ts time.Time) (Nullifier, error) {
	switch kind {
	case KindReputation:
		return "", nil
	case KindDuplicateItem:
		return mimcHash(string(kind), string(imageHash), string(identityHash))
	case KindLocationClaim:
		return mimcHash(string(kind), string(identityHash),
			fmt.Sprintf("%d:%d", int64(loc.CenterLat*1000), int64(loc.CenterLng*1000)),
			fmt.Sprintf("%d", ts.Unix()))
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// mimcHash folds each part into a reduced field element and hashes the
// sequence with MiMC. Parts are pre-hashed with SHA-256 so arbitrary-length
// strings map uniformly below the BN254 modulus.
func mimcHash(parts ...string) (Nullifier, error) {
	h := mimc.NewMiMC()

	for _, part := range parts {
		sum := sha256.Sum256([]byte(part))

		var elem fr.Element
		elem.SetBytes(sum[:])

		b := elem.Bytes()
		if _, err := h.Write(b[:]); err != nil {
			return "", fmt.Errorf("commitment: mimc write: %w", err)
		}
	}

	var out fr.Element
	out.SetBytes(h.Sum(nil))

	raw := out.Bytes()
	return Nullifier(hex.EncodeToString(raw[:])), nil
}
