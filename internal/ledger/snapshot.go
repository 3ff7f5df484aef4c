package ledger

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
)

// ErrCorruptSnapshot is returned when a snapshot file fails to decrypt or
// decode, including when the passphrase is wrong.
var ErrCorruptSnapshot = fmt.Errorf("ledger: corrupt or undecryptable snapshot")

// snapshotVersion is the current on-disk payload version.
const snapshotVersion = 1

const saltLen = 16

// snapshotPayload is the JSON structure encrypted into the snapshot file.
type snapshotPayload struct {
	Version    int         `json:"version"`
	Identities []*Identity `json:"identities"`
}

// Snapshotter persists the ledger to one encrypted file.
//
// File layout: salt(16) + nonce(12) + AES-256-GCM ciphertext. The key is
// derived from the passphrase with Argon2id and the per-file salt. Writes
// go through a temp file in the same directory followed by a rename, so a
// crash never leaves a torn snapshot.
type Snapshotter struct {
	path       string
	passphrase string
}

// NewSnapshotter creates a Snapshotter for the given file path.
func NewSnapshotter(path, passphrase string) *Snapshotter {
	return &Snapshotter{path: path, passphrase: passphrase}
}

// deriveKey uses Argon2id to derive an AES-256 key from the passphrase.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

func (s *Snapshotter) write(rows []*Identity) error {
	data, err := json.Marshal(snapshotPayload{Version: snapshotVersion, Identities: rows})
	if err != nil {
		return fmt.Errorf("ledger: serialize snapshot: %w", err)
	}

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("ledger: generate salt: %w", err)
	}

	block, err := aes.NewCipher(deriveKey(s.passphrase, salt))
	if err != nil {
		return fmt.Errorf("ledger: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("ledger: create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("ledger: generate nonce: %w", err)
	}

	out := append(salt, nonce...)
	out = gcm.Seal(out, nonce, data, nil)

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("ledger: create snapshot directory: %w", err)
	}

	// Atomic write: temp file in the same directory, sync, rename.
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("ledger: create temp snapshot: %w", err)
	}
	if _, err := f.Write(out); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("ledger: write snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("ledger: sync snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ledger: close snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ledger: rename snapshot: %w", err)
	}
	return nil
}

// read loads and decrypts the snapshot file.
func (s *Snapshotter) read() ([]*Identity, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	if len(raw) < saltLen+12 {
		return nil, ErrCorruptSnapshot
	}

	salt := raw[:saltLen]

	block, err := aes.NewCipher(deriveKey(s.passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("ledger: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("ledger: create GCM: %w", err)
	}

	nonceEnd := saltLen + gcm.NonceSize()
	if len(raw) < nonceEnd {
		return nil, ErrCorruptSnapshot
	}

	data, err := gcm.Open(nil, raw[saltLen:nonceEnd], raw[nonceEnd:], nil)
	if err != nil {
		return nil, ErrCorruptSnapshot
	}

	var payload snapshotPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, ErrCorruptSnapshot
	}
	if payload.Version != snapshotVersion {
		return nil, fmt.Errorf("ledger: unsupported snapshot version %d", payload.Version)
	}
	return payload.Identities, nil
}

// Load restores a ledger from the snapshot file. A missing file yields an
// empty ledger, which makes first startup a non-event.
func Load(s *Snapshotter) (*Ledger, error) {
	l := New().WithSnapshot(s)

	rows, err := s.read()
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, err
	}

	l.restore(rows)
	return l, nil
}
