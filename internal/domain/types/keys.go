package types

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// X25519Public is a Curve25519 public key.
type X25519Public [32]byte

// Slice returns the key as a []byte.
func (p X25519Public) Slice() []byte { return p[:] }

// IsZero reports whether the key is all zero bytes (unset).
func (p X25519Public) IsZero() bool { return p == X25519Public{} }

// Compare orders two keys lexicographically by raw bytes. The transport
// glare tie-break and nothing else should depend on this ordering.
func (p X25519Public) Compare(o X25519Public) int { return bytes.Compare(p[:], o[:]) }

// MarshalJSON encodes the key as url-safe base64, matching PeerKey.
func (p X25519Public) MarshalJSON() ([]byte, error) { return marshalKey(p[:]) }

// UnmarshalJSON decodes a url-safe base64 key.
func (p *X25519Public) UnmarshalJSON(b []byte) error { return unmarshalKey(b, p[:]) }

// X25519Private is a Curve25519 private key.
type X25519Private [32]byte

// Slice returns the key as a []byte.
func (k X25519Private) Slice() []byte { return k[:] }

// MarshalJSON encodes the key as url-safe base64.
func (k X25519Private) MarshalJSON() ([]byte, error) { return marshalKey(k[:]) }

// UnmarshalJSON decodes a url-safe base64 key.
func (k *X25519Private) UnmarshalJSON(b []byte) error { return unmarshalKey(b, k[:]) }

// Ed25519Public is an Ed25519 signing public key.
type Ed25519Public [32]byte

// Slice returns the key as a []byte.
func (p Ed25519Public) Slice() []byte { return p[:] }

// MarshalJSON encodes the key as url-safe base64.
func (p Ed25519Public) MarshalJSON() ([]byte, error) { return marshalKey(p[:]) }

// UnmarshalJSON decodes a url-safe base64 key.
func (p *Ed25519Public) UnmarshalJSON(b []byte) error { return unmarshalKey(b, p[:]) }

// Ed25519Private is an Ed25519 signing private key.
type Ed25519Private [64]byte

// Slice returns the key as a []byte.
func (k Ed25519Private) Slice() []byte { return k[:] }

// MarshalJSON encodes the key as url-safe base64.
func (k Ed25519Private) MarshalJSON() ([]byte, error) { return marshalKey(k[:]) }

// UnmarshalJSON decodes a url-safe base64 key.
func (k *Ed25519Private) UnmarshalJSON(b []byte) error { return unmarshalKey(b, k[:]) }

func marshalKey(raw []byte) ([]byte, error) {
	return json.Marshal(base64.RawURLEncoding.EncodeToString(raw))
}

func unmarshalKey(b, dst []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return err
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("key length %d, want %d", len(raw), len(dst))
	}
	copy(dst, raw)
	return nil
}
