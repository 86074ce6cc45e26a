// Package apikey validates the API keys that guard the portal's maintenance
// routes. Raw keys are generated with crypto/rand and only their SHA-256
// digests are configured; a presented key is hashed and compared against
// every configured digest in constant time.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/shepardc348-cloud/Freshwater-Vault/pkg/config"
)

var (
	ErrMissingKey = errors.New("missing api key")
	ErrInvalidKey = errors.New("invalid api key")
)

// KeyInfo identifies the configured key a request authenticated with.
type KeyInfo struct {
	Name string `json:"name"`
}

// Validator checks a raw API key.
type Validator interface {
	Validate(ctx context.Context, rawKey string) (*KeyInfo, error)
}

type storedKey struct {
	name string
	hash []byte
}

// StaticValidator validates keys against digests loaded from config. It is
// immutable after construction. With no keys configured it rejects every
// key.
type StaticValidator struct {
	keys []storedKey
}

// NewStaticValidator builds a validator from configured key digests.
func NewStaticValidator(keys []config.AdminKey) (*StaticValidator, error) {
	v := &StaticValidator{}
	for i, k := range keys {
		hash, err := hex.DecodeString(strings.TrimSpace(k.Hash))
		if err != nil || len(hash) != sha256.Size {
			return nil, fmt.Errorf("admin key %d (%q): hash must be a hex SHA-256 digest", i, k.Name)
		}
		name := k.Name
		if name == "" {
			name = fmt.Sprintf("key-%d", i+1)
		}
		v.keys = append(v.keys, storedKey{name: name, hash: hash})
	}
	return v, nil
}

// Len returns the number of configured keys.
func (v *StaticValidator) Len() int {
	return len(v.keys)
}

// Validate returns the matching key's info, ErrMissingKey for an empty key,
// or ErrInvalidKey.
func (v *StaticValidator) Validate(_ context.Context, rawKey string) (*KeyInfo, error) {
	if rawKey == "" {
		return nil, ErrMissingKey
	}
	sum := sha256.Sum256([]byte(rawKey))
	var match *KeyInfo
	// No early exit: every digest is compared.
	for _, k := range v.keys {
		if subtle.ConstantTimeCompare(sum[:], k.hash) == 1 && match == nil {
			match = &KeyInfo{Name: k.name}
		}
	}
	if match == nil {
		return nil, ErrInvalidKey
	}
	return match, nil
}

// HashKey returns the SHA-256 hex digest of a raw API key.
func HashKey(raw string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(raw)))
}

// GenerateKey returns a random 32-byte hex-encoded key.
func GenerateKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
