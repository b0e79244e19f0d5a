package identity

import (
	"fmt"
	"unicode"

	"sotto/internal/crypto"
	"sotto/internal/domain"
)

// minPassphraseLength is the minimum number of characters required for a
// passphrase.
const minPassphraseLength = 12

// ErrWeakPassphrase is returned when the passphrase fails the strength
// policy.
var ErrWeakPassphrase = fmt.Errorf(
	"passphrase is too weak (must be at least %d characters and include upper, lower, "+
		"number, and symbol)",
	minPassphraseLength,
)

// Service manages identity key creation and access using a backing store.
//
// The identity contains:
//   - X25519 key pair for Diffie-Hellman (X3DH and Double Ratchet).
//   - Ed25519 key pair for signing (for example, signing the signed prekey).
type Service struct {
	engine domain.CryptoEngine
	store  domain.IdentityStore
}

// New returns an identity service backed by the given engine and store.
func New(eng domain.CryptoEngine, s domain.IdentityStore) *Service {
	return &Service{engine: eng, store: s}
}

var _ domain.IdentityService = (*Service)(nil)

// GenerateIdentity creates a new identity, saves it encrypted with the
// passphrase, and returns the identity plus a short fingerprint of the
// X25519 public key.
func (s *Service) GenerateIdentity(passphrase string) (domain.Identity, domain.Fingerprint, error) {
	if !isSecurePassphrase(passphrase) {
		return domain.Identity{}, "", ErrWeakPassphrase
	}
	id, err := s.engine.GenerateIdentity()
	if err != nil {
		return domain.Identity{}, "", err
	}
	if err := s.store.SaveIdentity(passphrase, id); err != nil {
		return domain.Identity{}, "", err
	}
	return id, domain.Fingerprint(crypto.Fingerprint(id.XPub.Slice())), nil
}

// LoadIdentity decrypts and returns the local identity.
func (s *Service) LoadIdentity(passphrase string) (domain.Identity, error) {
	return s.store.LoadIdentity(passphrase)
}

// FingerprintIdentity returns a short fingerprint of the local X25519
// public key.
func (s *Service) FingerprintIdentity(passphrase string) (domain.Fingerprint, error) {
	id, err := s.store.LoadIdentity(passphrase)
	if err != nil {
		return "", err
	}
	return domain.Fingerprint(crypto.Fingerprint(id.XPub.Slice())), nil
}

// HasIdentity reports whether an identity exists on disk.
func (s *Service) HasIdentity() (bool, error) {
	return s.store.HasIdentity()
}

// ResetIdentity deletes the stored identity. Every session bound to it
// becomes undecryptable; callers wipe those too.
func (s *Service) ResetIdentity() error {
	return s.store.DeleteIdentity()
}

// isSecurePassphrase enforces a basic strength policy.
func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}
