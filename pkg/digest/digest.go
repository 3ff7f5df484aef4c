// Package digest provides deterministic content hashing for the anonymous
// submission pipeline. All digests are SHA-256, encoded as lowercase hex,
// so that independent components (and reimplementations) derive identical
// hashes from identical logical input.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// HexLength is the length of a hex-encoded SHA-256 digest.
const HexLength = 64

// Hash is a hex-encoded SHA-256 digest.
type Hash string

// Valid reports whether h is a well-formed hex-encoded SHA-256 digest.
func (h Hash) Valid() bool {
	if len(h) != HexLength {
		return false
	}
	_, err := hex.DecodeString(string(h))
	return err == nil
}

// Bytes decodes the digest back to its 32 raw bytes.
// Returns an error if the hash is malformed.
func (h Hash) Bytes() ([]byte, error) {
	if len(h) != HexLength {
		return nil, fmt.Errorf("digest: malformed hash %q", string(h))
	}
	return hex.DecodeString(string(h))
}

// Short returns the first 12 hex characters, for logging.
func (h Hash) Short() string {
	if len(h) < 12 {
		return string(h)
	}
	return string(h[:12])
}

// Sum hashes raw bytes.
func Sum(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// SumString hashes the UTF-8 bytes of s.
func SumString(s string) Hash {
	return Sum([]byte(s))
}

// SumJSON hashes the concatenation of the canonical JSON encodings of each
// part, in argument order. Field order inside a part follows Go struct
// declaration order (encoding/json semantics), which fixes the serialization
// layout: two callers passing structurally identical values always produce
// the same digest.
func SumJSON(parts ...any) (Hash, error) {
	h := sha256.New()
	for _, part := range parts {
		data, err := json.Marshal(part)
		if err != nil {
			return "", fmt.Errorf("digest: encode part: %w", err)
		}
		h.Write(data)
	}
	return Hash(hex.EncodeToString(h.Sum(nil))), nil
}
