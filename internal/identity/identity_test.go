package identity

import (
	"strings"
	"testing"

	"github.com/tyler-smith/go-bip39"
)

func TestNewWithRecovery(t *testing.T) {
	id, material, err := NewWithRecovery()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if id == nil {
		t.Fatal("identity is nil")
	}
	if material == nil {
		t.Fatal("recovery material is nil")
	}

	words := strings.Split(material.Phrase, " ")
	if len(words) != 12 {
		t.Errorf("expected 12 words, got %d", len(words))
	}
	if !bip39.IsMnemonicValid(material.Phrase) {
		t.Error("phrase is not a valid mnemonic")
	}
	if !id.PublicHash.Valid() {
		t.Errorf("public hash should be a valid digest, got %q", id.PublicHash)
	}
	if id.DisplayID == "" {
		t.Error("display ID is empty")
	}
}

func TestFromPhraseDeterministic(t *testing.T) {
	_, material, err := NewWithRecovery()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	id1, err := FromPhrase(material.Phrase)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id2, err := FromPhrase(material.Phrase)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if id1.PublicHash != id2.PublicHash {
		t.Errorf("same phrase should derive same hash: %s vs %s", id1.PublicHash, id2.PublicHash)
	}
}

func TestFromPhraseRecoversCreatedIdentity(t *testing.T) {
	created, material, err := NewWithRecovery()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	recovered, err := FromPhrase(material.Phrase)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if recovered.PublicHash != created.PublicHash {
		t.Errorf("recovered hash %s does not match created %s",
			recovered.PublicHash, created.PublicHash)
	}
}

func TestFromPhraseRejectsInvalid(t *testing.T) {
	invalid := []string{
		"",
		"not a mnemonic at all",
		"abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon",
	}

	for _, phrase := range invalid {
		if _, err := FromPhrase(phrase); err == nil {
			t.Errorf("FromPhrase(%q) should fail", phrase)
		}
	}
}

func TestDistinctIdentitiesDistinctHashes(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if a.PublicHash == b.PublicHash {
		t.Error("two fresh identities should not share a hash")
	}
}

func TestHashPhraseMatchesFromPhrase(t *testing.T) {
	_, material, err := NewWithRecovery()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h, err := HashPhrase(material.Phrase)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	id, err := FromPhrase(material.Phrase)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if h != id.PublicHash {
		t.Errorf("HashPhrase %s does not match FromPhrase %s", h, id.PublicHash)
	}
}
