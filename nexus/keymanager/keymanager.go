// Package keymanager owns the Ed25519 keypair used by agents and consensus
// nodes to sign outgoing messages and receipts. It mirrors the atomic
// write-then-rename persistence pattern nhbchain/crypto.SaveToKeystore uses
// for the chain's secp256k1 keystore, but persists a raw Ed25519 seed since
// agent/node keys are not wrapped in the Ethereum v3 keystore format the
// chain-account keys use.
package keymanager

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrCorruptKeyFile is returned when an existing key file cannot be decoded.
// A corrupted key file is fatal: it is never silently regenerated, since that
// would change the agent's identity and could look like an equivocating key
// rotation to consensus nodes.
var ErrCorruptKeyFile = errors.New("keymanager: corrupt key file")

const seedHexLen = ed25519.SeedSize * 2

// KeyManager owns a single Ed25519 keypair and produces deterministic
// signatures over arbitrary byte strings.
type KeyManager struct {
	path string
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// LoadOrGenerate loads the keypair persisted at path, generating and
// persisting a new one (CSPRNG-backed) if no file exists yet. Subsequent
// calls against the same path are guaranteed to return a byte-identical
// keypair.
func LoadOrGenerate(path string) (*KeyManager, error) {
	if path == "" {
		return nil, errors.New("keymanager: empty path")
	}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		seed, decodeErr := decodeSeed(raw)
		if decodeErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptKeyFile, decodeErr)
		}
		priv := ed25519.NewKeyFromSeed(seed)
		return &KeyManager{path: path, priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
	case errors.Is(err, fs.ErrNotExist):
		seed := make([]byte, ed25519.SeedSize)
		if _, randErr := rand.Read(seed); randErr != nil {
			return nil, fmt.Errorf("keymanager: generate seed: %w", randErr)
		}
		priv := ed25519.NewKeyFromSeed(seed)
		km := &KeyManager{path: path, priv: priv, pub: priv.Public().(ed25519.PublicKey)}
		if err := km.persist(seed); err != nil {
			return nil, err
		}
		return km, nil
	default:
		return nil, fmt.Errorf("keymanager: read %s: %w", path, err)
	}
}

func decodeSeed(raw []byte) ([]byte, error) {
	trimmed := trimTrailingNewline(raw)
	if len(trimmed) != seedHexLen {
		return nil, fmt.Errorf("expected %d hex chars, got %d", seedHexLen, len(trimmed))
	}
	seed, err := hex.DecodeString(string(trimmed))
	if err != nil {
		return nil, err
	}
	return seed, nil
}

func trimTrailingNewline(raw []byte) []byte {
	for len(raw) > 0 && (raw[len(raw)-1] == '\n' || raw[len(raw)-1] == '\r') {
		raw = raw[:len(raw)-1]
	}
	return raw
}

// persist writes the seed atomically (temp file + rename) with owner-only
// read permissions, matching crypto.SaveToKeystore's directory handling.
func (km *KeyManager) persist(seed []byte) error {
	dir := filepath.Dir(km.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("keymanager: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "agentkey-")
	if err != nil {
		return fmt.Errorf("keymanager: create temp key file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(hex.EncodeToString(seed)); err != nil {
		tmp.Close()
		return fmt.Errorf("keymanager: write temp key file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("keymanager: chmod temp key file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("keymanager: close temp key file: %w", err)
	}
	if err := os.Rename(tmpPath, km.path); err != nil {
		return fmt.Errorf("keymanager: rename key file: %w", err)
	}
	return nil
}

// Sign produces a deterministic 64-byte Ed25519 signature over bytes.
func (km *KeyManager) Sign(bytes []byte) [ed25519.SignatureSize]byte {
	var out [ed25519.SignatureSize]byte
	copy(out[:], ed25519.Sign(km.priv, bytes))
	return out
}

// Verify checks a signature against a public key. Exposed as a package
// function (not a method) since verification happens against arbitrary
// remote public keys, not only this manager's own key.
func Verify(pub [ed25519.PublicKeySize]byte, bytes []byte, sig [ed25519.SignatureSize]byte) bool {
	return ed25519.Verify(pub[:], bytes, sig[:])
}

// PublicKeyBytes returns the raw 32-byte Ed25519 public key.
func (km *KeyManager) PublicKeyBytes() [ed25519.PublicKeySize]byte {
	var out [ed25519.PublicKeySize]byte
	copy(out[:], km.pub)
	return out
}

// PublicKeyHex returns the 64-hex-char encoded public key.
func (km *KeyManager) PublicKeyHex() string {
	return hex.EncodeToString(km.pub)
}
