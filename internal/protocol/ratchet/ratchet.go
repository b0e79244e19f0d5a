package ratchet

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"sotto/internal/domain"
	"sotto/internal/util/memzero"
)

const (
	aeadKeySize  = 32
	nonceSize    = chacha20poly1305.NonceSize
	maxSkippedMK = 1000
)

var (
	// ErrNoSendKey means the sending chain does not exist yet: a responder
	// cannot encrypt until it has decrypted the initiator's first message.
	ErrNoSendKey = errors.New("ratchet: no sending chain before first received message")

	// ErrDecryptFailed covers authentication failures and messages too far
	// outside the skipped-key window.
	ErrDecryptFailed = errors.New("ratchet: decrypt failed")

	errChainUninitialised = errors.New("ratchet: chain key is uninitialised")
)

// Header is sent alongside every ciphertext.
type Header struct {
	DHPub []byte `json:"dh_pub"`
	PN    uint32 `json:"pn"`
	N     uint32 `json:"n"`
}

// State contains all fields the Double Ratchet tracks between messages.
// It is serialized verbatim; losing a mutation is unrecoverable for the
// conversation.
type State struct {
	RootKey   []byte               `json:"root_key"`
	DHPriv    domain.X25519Private `json:"dh_priv"`
	DHPub     domain.X25519Public  `json:"dh_pub"`
	PeerDHPub domain.X25519Public  `json:"peer_dh_pub"`
	SendCK    []byte               `json:"send_ck,omitempty"`
	RecvCK    []byte               `json:"recv_ck,omitempty"`
	Ns        uint32               `json:"ns"`
	Nr        uint32               `json:"nr"`
	PN        uint32               `json:"pn"`
	Skipped   map[string][]byte    `json:"skipped_keys"`
}

// InitInitiator seeds a state that can send immediately. peerRatchetPub is
// the peer's signed prekey public: the responder holds its private half as
// its first ratchet key.
func InitInitiator(root []byte, peerRatchetPub domain.X25519Public) (State, error) {
	priv, pub, err := newRatchetPair()
	if err != nil {
		return State{}, err
	}
	dh, err := x25519(priv, peerRatchetPub)
	if err != nil {
		return State{}, err
	}
	newRK, sendCK := kdfRK(root, dh[:])
	memzero.Zero(dh[:])

	return State{
		RootKey:   newRK,
		DHPriv:    priv,
		DHPub:     pub,
		PeerDHPub: peerRatchetPub,
		SendCK:    sendCK,
		Skipped:   make(map[string][]byte),
	}, nil
}

// InitResponder seeds a state around the signed prekey pair. The peer's
// ratchet public key is unknown until the first message header arrives, so
// the state has no chains yet and Encrypt fails with ErrNoSendKey.
func InitResponder(root []byte, ratchetPriv domain.X25519Private, ratchetPub domain.X25519Public) State {
	return State{
		RootKey: bytes.Clone(root),
		DHPriv:  ratchetPriv,
		DHPub:   ratchetPub,
		Skipped: make(map[string][]byte),
	}
}

// Encrypt produces a header and ciphertext and advances the sending chain.
func Encrypt(st *State, ad, plaintext []byte) (Header, []byte, error) {
	if len(st.SendCK) == 0 {
		// No sending chain. For a responder that has never received, there
		// is no peer ratchet key to step against; surface that instead of
		// deriving from a zero key.
		if st.PeerDHPub.IsZero() {
			return Header{}, nil, ErrNoSendKey
		}
		if err := stepSending(st); err != nil {
			return Header{}, nil, err
		}
	}

	mk, err := kdfCKSend(st)
	if err != nil {
		return Header{}, nil, err
	}
	h := Header{DHPub: st.DHPub.Slice(), PN: st.PN, N: st.Ns}

	ct, err := seal(mk, h, ad, plaintext)
	memzero.Zero(mk)
	if err != nil {
		return Header{}, nil, err
	}
	st.Ns++
	return h, ct, nil
}

// Decrypt handles skipped keys, performs a DH ratchet step on a new remote
// public key, then opens the message. On any failure st is left unchanged,
// so a tampered or replayed message cannot wedge the conversation.
func Decrypt(st *State, ad []byte, header Header, ciphertext []byte) ([]byte, error) {
	scratch := st.clone()
	pt, err := decrypt(&scratch, ad, header, ciphertext)
	if err != nil {
		return nil, err
	}
	*st = scratch
	return pt, nil
}

func decrypt(st *State, ad []byte, header Header, ciphertext []byte) ([]byte, error) {
	if samePub(st.PeerDHPub, header.DHPub) {
		if mk, ok := takeSkipped(st, header.N); ok {
			pt, err := open(mk, header, ad, ciphertext)
			memzero.Zero(mk)
			return pt, err
		}
	} else {
		// New remote ratchet key: close out the old receiving chain, then
		// advance both chains.
		skipUntil(st, header.PN)
		if err := stepReceiving(st, header); err != nil {
			return nil, err
		}
	}

	skipUntil(st, header.N)
	mk, err := kdfCKRecv(st)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	pt, err := open(mk, header, ad, ciphertext)
	memzero.Zero(mk)
	if err != nil {
		return nil, err
	}
	st.Nr++
	return pt, nil
}

// stepSending rotates the local ratchet pair and derives a fresh sending
// chain against the peer's current ratchet key.
func stepSending(st *State) error {
	st.PN = st.Ns
	st.Ns = 0

	priv, pub, err := newRatchetPair()
	if err != nil {
		return err
	}
	dh, err := x25519(priv, st.PeerDHPub)
	if err != nil {
		return err
	}
	rk2, sendCK := kdfRK(st.RootKey, dh[:])
	memzero.Zero(dh[:])

	st.RootKey = rk2
	st.DHPriv, st.DHPub = priv, pub
	st.SendCK = sendCK
	return nil
}

// stepReceiving adopts the new remote ratchet key from a header: advance
// the receiving chain with the old local pair, then rotate the local pair
// and advance the sending chain.
func stepReceiving(st *State, header Header) error {
	var newPeer domain.X25519Public
	copy(newPeer[:], header.DHPub)

	dh, err := x25519(st.DHPriv, newPeer)
	if err != nil {
		return err
	}
	rk2, recvCK := kdfRK(st.RootKey, dh[:])
	memzero.Zero(dh[:])

	priv, pub, err := newRatchetPair()
	if err != nil {
		return err
	}
	dh2, err := x25519(priv, newPeer)
	if err != nil {
		return err
	}
	rk3, sendCK := kdfRK(rk2, dh2[:])
	memzero.Zero(dh2[:])

	st.PN = st.Ns
	st.Ns, st.Nr = 0, 0
	st.RootKey = rk3
	st.DHPriv, st.DHPub = priv, pub
	st.PeerDHPub = newPeer
	st.SendCK, st.RecvCK = sendCK, recvCK
	return nil
}

// --- helpers ---

// clone deep-copies the state so decrypt can work on a scratch copy. Chain
// keys are replaced rather than mutated in place, but the skipped-key map
// is edited directly and must not be shared.
func (st *State) clone() State {
	out := *st
	out.RootKey = bytes.Clone(st.RootKey)
	out.SendCK = bytes.Clone(st.SendCK)
	out.RecvCK = bytes.Clone(st.RecvCK)
	out.Skipped = make(map[string][]byte, len(st.Skipped))
	for k, v := range st.Skipped {
		out.Skipped[k] = bytes.Clone(v)
	}
	return out
}

func newRatchetPair() (domain.X25519Private, domain.X25519Public, error) {
	var priv domain.X25519Private
	var pub domain.X25519Public
	if _, err := rand.Read(priv[:]); err != nil {
		return priv, pub, err
	}
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pubBytes, err := curve25519.X25519(priv.Slice(), curve25519.Basepoint)
	if err != nil {
		return priv, pub, err
	}
	copy(pub[:], pubBytes)
	return priv, pub, nil
}

func seal(mk []byte, header Header, ad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(mk[:aeadKeySize])
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceSize)
	binary.BigEndian.PutUint32(nonce[nonceSize-4:], header.N)
	return aead.Seal(nil, nonce, plaintext, adBytes(ad, header)), nil
}

func open(mk []byte, header Header, ad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(mk[:aeadKeySize])
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceSize)
	binary.BigEndian.PutUint32(nonce[nonceSize-4:], header.N)
	pt, err := aead.Open(nil, nonce, ciphertext, adBytes(ad, header))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	return pt, nil
}

// adBytes binds the header into the AEAD associated data.
func adBytes(ad []byte, h Header) []byte {
	out := make([]byte, 0, len(ad)+len(h.DHPub)+8)
	out = append(out, ad...)
	out = append(out, h.DHPub...)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], h.PN)
	out = append(out, b[:]...)
	binary.BigEndian.PutUint32(b[:], h.N)
	out = append(out, b[:]...)
	return out
}

func x25519(priv domain.X25519Private, pub domain.X25519Public) ([32]byte, error) {
	res, err := curve25519.X25519(priv.Slice(), pub.Slice())
	var out [32]byte
	if err != nil {
		return out, err
	}
	copy(out[:], res)
	return out, nil
}

// HKDF-based KDFs with labels.
func kdfRK(rk, dh []byte) (newRK, ck []byte) {
	r := hkdf.New(sha256.New, dh, rk, []byte("DR|rk"))
	newRK = make([]byte, 32)
	ck = make([]byte, 32)
	_, _ = io.ReadFull(r, newRK)
	_, _ = io.ReadFull(r, ck)
	return
}

func kdfCK(ck []byte) (nextCK, mk []byte) {
	r := hkdf.New(sha256.New, ck, nil, []byte("DR|ck"))
	nextCK = make([]byte, 32)
	mk = make([]byte, 32)
	_, _ = io.ReadFull(r, nextCK)
	_, _ = io.ReadFull(r, mk)
	return
}

func kdfCKSend(st *State) ([]byte, error) {
	if len(st.SendCK) == 0 {
		return nil, errChainUninitialised
	}
	nextCK, mk := kdfCK(st.SendCK)
	st.SendCK = nextCK
	return mk, nil
}

func kdfCKRecv(st *State) ([]byte, error) {
	if len(st.RecvCK) == 0 {
		return nil, errChainUninitialised
	}
	nextCK, mk := kdfCK(st.RecvCK)
	st.RecvCK = nextCK
	return mk, nil
}

// skippedKeyID must stay valid UTF-8: it is a JSON map key in the
// serialized state.
func skippedKeyID(peer domain.X25519Public, n uint32) string {
	return fmt.Sprintf("%s|%d", base64.RawURLEncoding.EncodeToString(peer[:]), n)
}

func takeSkipped(st *State, n uint32) ([]byte, bool) {
	keyID := skippedKeyID(st.PeerDHPub, n)
	mk, ok := st.Skipped[keyID]
	if ok {
		delete(st.Skipped, keyID)
	}
	return mk, ok
}

// skipUntil derives and stores message keys up to n with a hard cap.
func skipUntil(st *State, n uint32) {
	if len(st.RecvCK) == 0 {
		return
	}
	for st.Nr < n {
		mk, err := kdfCKRecv(st)
		if err != nil {
			return
		}
		if len(st.Skipped) >= maxSkippedMK {
			for k := range st.Skipped {
				delete(st.Skipped, k)
				break
			}
		}
		st.Skipped[skippedKeyID(st.PeerDHPub, st.Nr)] = mk
		st.Nr++
	}
}

func samePub(pub domain.X25519Public, raw []byte) bool {
	if len(raw) != 32 {
		return false
	}
	var v byte
	for i := 0; i < 32; i++ {
		v |= pub[i] ^ raw[i]
	}
	return v == 0
}
