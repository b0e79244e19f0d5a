package types

import (
	"encoding/base64"
	"fmt"
)

// PeerKey is the url-safe base64 form of an X25519 identity public key.
// It is the canonical address of a peer: inbox topics, session records and
// contact records are all keyed by it.
type PeerKey string

// String returns the string form of the peer key.
func (k PeerKey) String() string { return string(k) }

// IsZero reports whether the key is empty (broadcast recipient).
func (k PeerKey) IsZero() bool { return k == "" }

// Decode recovers the raw public key bytes.
func (k PeerKey) Decode() (X25519Public, error) {
	var pub X25519Public
	raw, err := base64.RawURLEncoding.DecodeString(string(k))
	if err != nil {
		return pub, fmt.Errorf("decode peer key: %w", err)
	}
	if len(raw) != 32 {
		return pub, fmt.Errorf("decode peer key: got %d bytes, want 32", len(raw))
	}
	copy(pub[:], raw)
	return pub, nil
}

// PeerKeyOf derives the peer key for an identity public key.
func PeerKeyOf(pub X25519Public) PeerKey {
	return PeerKey(base64.RawURLEncoding.EncodeToString(pub[:]))
}

// ParsePeerKey validates a peer key received from the wire.
func ParsePeerKey(s string) (PeerKey, error) {
	k := PeerKey(s)
	if _, err := k.Decode(); err != nil {
		return "", err
	}
	return k, nil
}

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// SignedPrekeyID uniquely identifies a signed prekey.
type SignedPrekeyID string

// String returns the string form of the identifier.
func (id SignedPrekeyID) String() string { return string(id) }

// OneTimePrekeyID uniquely identifies a one-time prekey.
type OneTimePrekeyID string

// String returns the string form of the identifier.
func (id OneTimePrekeyID) String() string { return string(id) }
