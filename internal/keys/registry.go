// Package keys holds the registered client signing keys. Keys live as JWK
// documents in a directory, one file per client, and are reloaded when the
// directory changes.
package keys

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	jose "github.com/go-jose/go-jose/v4"
)

var (
	ErrUnknownKey      = errors.New("unknown key")
	ErrUnsupportedKey  = errors.New("unsupported key")
	ErrMalformedKeyDoc = errors.New("malformed key document")
)

// Registry resolves client key ids to their Ed25519 verification keys.
type Registry struct {
	dir string

	mu   sync.RWMutex
	keys map[string]ed25519.PublicKey
}

// NewRegistry loads every key document in dir. A registry that can't load
// its keys at startup can't verify anyone, so failure here is fatal.
func NewRegistry(
	dir string,
) *Registry {
	r := &Registry{
		dir:  dir,
		keys: make(map[string]ed25519.PublicKey),
	}
	if err := r.Reload(); err != nil {
		log.Fatalf("failed to load key registry: %v\n", err)
	}
	return r
}

// GetKey returns the verification key registered under keyID.
func (r *Registry) GetKey(
	keyID string,
) (
	ed25519.PublicKey,
	error,
) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key, ok := r.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownKey, keyID)
	}
	return key, nil
}

// Reload re-reads the key directory. The previous key set stays in effect
// if any document fails to load, so a bad deploy can't empty the registry.
func (r *Registry) Reload() error {
	files, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("couldn't read key registry dir: %v", err)
	}

	loaded := make(map[string]ed25519.PublicKey)
	for _, file := range files {
		if !file.Type().IsRegular() {
			continue
		}
		name := file.Name()
		keyID, key, err := loadKeyDoc(filepath.Join(r.dir, name))
		if err != nil {
			return fmt.Errorf("key doc '%s': %w", name, err)
		}
		if _, ok := loaded[keyID]; ok {
			return fmt.Errorf("%w: duplicate key id '%s'", ErrMalformedKeyDoc, keyID)
		}
		loaded[keyID] = key
	}

	r.mu.Lock()
	r.keys = loaded
	r.mu.Unlock()

	log.Printf("loaded %d client keys from %s\n", len(loaded), r.dir)
	return nil
}

func loadKeyDoc(
	path string,
) (
	string,
	ed25519.PublicKey,
	error,
) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedKeyDoc, err)
	}

	var jwk jose.JSONWebKey
	if err := json.Unmarshal(data, &jwk); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedKeyDoc, err)
	}
	if jwk.KeyID == "" {
		return "", nil, fmt.Errorf("%w: missing kid", ErrMalformedKeyDoc)
	}

	key, ok := jwk.Key.(ed25519.PublicKey)
	if !ok {
		return "", nil, fmt.Errorf("%w: '%s' is not an Ed25519 public key", ErrUnsupportedKey, jwk.KeyID)
	}
	return jwk.KeyID, key, nil
}
