// Package identity derives anonymous submitter identities. An identity is
// addressed exclusively by the SHA-256 hash of its ed25519 public key; no
// real-world identifier ever enters the derivation.
//
// Recovery uses a 12-word BIP-39 mnemonic. The mapping from phrase to
// public hash is a pure function: the phrase is never stored, only the
// derived hash is used as a lookup key.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/tyler-smith/go-bip39"

	"github.com/anonpick/anonpick/pkg/digest"
)

// recoveryDomain is the fixed domain-separation passphrase mixed into the
// BIP-39 seed derivation. Changing it would orphan every recoverable
// identity, so it is part of the wire contract.
const recoveryDomain = "anonpick-recovery-v1"

// mnemonicEntropyBits yields a 12-word phrase.
const mnemonicEntropyBits = 128

// ErrInvalidPhrase is returned when a recovery phrase fails BIP-39 checksum
// validation.
var ErrInvalidPhrase = errors.New("identity: invalid recovery phrase")

// Identity is an anonymous submitter handle.
type Identity struct {
	// PublicHash is the sole lookup key: sha256 of the ed25519 public key.
	PublicHash digest.Hash

	// DisplayID is a short base58 rendering of the public key, for logs
	// and CLI output.
	DisplayID string

	verifyKey ed25519.PublicKey
}

// RecoveryMaterial carries the one-time recovery phrase handed to the user
// at creation. It is never persisted.
type RecoveryMaterial struct {
	Phrase string
}

// New generates a fresh random identity with no recovery material.
func New() (*Identity, error) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate keypair: %w", err)
	}
	return fromPublicKey(pub), nil
}

// NewWithRecovery generates an identity together with its 12-word recovery
// phrase. The phrase deterministically recovers the same identity via
// FromPhrase.
func NewWithRecovery() (*Identity, *RecoveryMaterial, error) {
	entropy, err := bip39.NewEntropy(mnemonicEntropyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("identity: entropy: %w", err)
	}

	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, nil, fmt.Errorf("identity: mnemonic: %w", err)
	}

	id, err := FromPhrase(phrase)
	if err != nil {
		return nil, nil, err
	}

	return id, &RecoveryMaterial{Phrase: phrase}, nil
}

// FromPhrase deterministically derives the identity for a recovery phrase.
// The same phrase always produces the same PublicHash.
func FromPhrase(phrase string) (*Identity, error) {
	if !bip39.IsMnemonicValid(phrase) {
		return nil, ErrInvalidPhrase
	}

	seed := bip39.NewSeed(phrase, recoveryDomain)
	priv := ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize])

	return fromPublicKey(priv.Public().(ed25519.PublicKey)), nil
}

// HashPhrase returns only the derived public hash for a phrase, for ledger
// lookups that do not need the full identity.
func HashPhrase(phrase string) (digest.Hash, error) {
	id, err := FromPhrase(phrase)
	if err != nil {
		return "", err
	}
	return id.PublicHash, nil
}

func fromPublicKey(pub ed25519.PublicKey) *Identity {
	return &Identity{
		PublicHash: digest.Sum(pub),
		DisplayID:  base58.Encode(pub)[:12],
		verifyKey:  pub,
	}
}
