package engine

import (
	"encoding/json"
	"errors"
	"fmt"

	"sotto/internal/domain"
	"sotto/internal/protocol/ratchet"
)

// message is the wire form produced by Encrypt: the ratchet header travels
// in the clear next to the ciphertext it authenticates.
type message struct {
	Header ratchet.Header `json:"header"`
	Cipher []byte         `json:"cipher"`
}

// cipherSession hides the ratchet state behind the opaque session boundary.
type cipherSession struct {
	st ratchet.State
}

var _ domain.CipherSession = (*cipherSession)(nil)

// InitInitiator builds a session that can encrypt immediately, ratcheting
// against the peer's signed prekey public key.
func (e *Engine) InitInitiator(sharedSecret []byte, peerPrekeyPub domain.X25519Public) (domain.CipherSession, error) {
	st, err := ratchet.InitInitiator(sharedSecret, peerPrekeyPub)
	if err != nil {
		return nil, fmt.Errorf("init initiator session: %w", err)
	}
	return &cipherSession{st: st}, nil
}

// InitResponder builds a session anchored on the signed prekey pair the
// initiator agreed against. Encrypt fails until the first inbound message
// has been decrypted.
func (e *Engine) InitResponder(sharedSecret []byte, signedPrekey domain.SignedPrekeyPair) (domain.CipherSession, error) {
	return &cipherSession{st: ratchet.InitResponder(sharedSecret, signedPrekey.Priv, signedPrekey.Pub)}, nil
}

// Deserialize restores a session captured with Serialize.
func (e *Engine) Deserialize(data []byte) (domain.CipherSession, error) {
	var st ratchet.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("deserialize session: %w", err)
	}
	if st.Skipped == nil {
		st.Skipped = make(map[string][]byte)
	}
	return &cipherSession{st: st}, nil
}

func (s *cipherSession) Encrypt(plaintext []byte) ([]byte, error) {
	header, ct, err := ratchet.Encrypt(&s.st, nil, plaintext)
	if err != nil {
		if errors.Is(err, ratchet.ErrNoSendKey) {
			return nil, fmt.Errorf("%w: %v", ErrNoSendKey, err)
		}
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	return json.Marshal(message{Header: header, Cipher: ct})
}

func (s *cipherSession) Decrypt(data []byte) ([]byte, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: malformed message: %v", ErrDecryptionFailed, err)
	}
	pt, err := ratchet.Decrypt(&s.st, nil, msg.Header, msg.Cipher)
	if err != nil {
		if errors.Is(err, ratchet.ErrDecryptFailed) {
			return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
		}
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return pt, nil
}

func (s *cipherSession) Serialize() ([]byte, error) {
	return json.Marshal(&s.st)
}
