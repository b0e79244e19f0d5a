package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"sotto/internal/domain"
	"sotto/internal/util/memzero"
)

const identityFilename = "identity.json.enc"

// ErrNoIdentity is returned by LoadIdentity when no identity file exists.
var ErrNoIdentity = errors.New("store: no identity")

// IdentityFileStore persists the local identity to disk, encrypted under a
// passphrase-derived key.
type IdentityFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewIdentityFileStore returns an IdentityFileStore rooted at dir.
func NewIdentityFileStore(dir string) *IdentityFileStore {
	return &IdentityFileStore{dir: dir}
}

var _ domain.IdentityStore = (*IdentityFileStore)(nil)

// SaveIdentity writes the encrypted identity to disk.
func (s *IdentityFileStore) SaveIdentity(passphrase string, id domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(id)
	if err != nil {
		return err
	}
	N, r, p := scryptParamsDefault()
	ct, err := sealKeystore(passphrase, raw, N, r, p)
	memzero.Zero(raw)
	if err != nil {
		return err
	}
	return writeFile(filepath.Join(s.dir, identityFilename), ct, 0o600)
}

// LoadIdentity reads and decrypts the identity.
func (s *IdentityFileStore) LoadIdentity(passphrase string) (domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(filepath.Join(s.dir, identityFilename))
	if errors.Is(err, os.ErrNotExist) {
		return domain.Identity{}, ErrNoIdentity
	}
	if err != nil {
		return domain.Identity{}, err
	}
	pt, err := openKeystore(passphrase, b)
	if err != nil {
		return domain.Identity{}, err
	}
	var id domain.Identity
	err = json.Unmarshal(pt, &id)
	memzero.Zero(pt)
	if err != nil {
		return domain.Identity{}, err
	}
	return id, nil
}

// HasIdentity reports whether an identity file exists.
func (s *IdentityFileStore) HasIdentity() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := os.Stat(filepath.Join(s.dir, identityFilename))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteIdentity removes the identity file if present.
func (s *IdentityFileStore) DeleteIdentity() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return removeFile(filepath.Join(s.dir, identityFilename))
}
