package engine

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"sotto/internal/crypto"
	"sotto/internal/domain"
	"sotto/internal/protocol/x3dh"
)

var (
	// ErrSignatureInvalid is returned by InitiatorAgree when the bundle's
	// signed prekey signature does not verify against its signing key.
	ErrSignatureInvalid = errors.New("engine: prekey signature invalid")

	// ErrDecryptionFailed covers authentication failures and replayed or
	// too-old messages. The sender of such a message must not be trusted.
	ErrDecryptionFailed = errors.New("engine: decryption failed")

	// ErrNoSendKey is returned by Encrypt on a responder session that has
	// not yet decrypted the initiator's first message.
	ErrNoSendKey = errors.New("engine: no sending key before first received message")
)

// Engine is the concrete crypto engine.
type Engine struct{}

var _ domain.CryptoEngine = (*Engine)(nil)

// New returns a ready engine.
func New() *Engine { return &Engine{} }

// GenerateIdentity creates fresh long-term X25519 and Ed25519 pairs.
func (e *Engine) GenerateIdentity() (domain.Identity, error) {
	xPriv, xPub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.Identity{}, fmt.Errorf("generate x25519: %w", err)
	}
	edPriv, edPub, err := crypto.GenerateEd25519()
	if err != nil {
		return domain.Identity{}, fmt.Errorf("generate ed25519: %w", err)
	}
	return domain.Identity{
		XPub:   xPub,
		XPriv:  xPriv,
		EdPub:  edPub,
		EdPriv: edPriv,
	}, nil
}

// GenerateSignedPrekey creates a medium-lived prekey pair and signs its
// public half with the identity's Ed25519 key.
func (e *Engine) GenerateSignedPrekey(ident domain.Identity) (domain.SignedPrekeyPair, error) {
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.SignedPrekeyPair{}, fmt.Errorf("generate signed prekey: %w", err)
	}
	return domain.SignedPrekeyPair{
		ID:        domain.SignedPrekeyID("spk-" + uuid.NewString()),
		Priv:      priv,
		Pub:       pub,
		Signature: crypto.SignEd25519(ident.EdPriv, pub[:]),
	}, nil
}

// GenerateOneTimePrekeys creates count single-use pairs.
func (e *Engine) GenerateOneTimePrekeys(count int) ([]domain.OneTimePrekeyPair, error) {
	pairs := make([]domain.OneTimePrekeyPair, 0, count)
	for i := 0; i < count; i++ {
		priv, pub, err := crypto.GenerateX25519()
		if err != nil {
			return nil, fmt.Errorf("generate one-time prekey: %w", err)
		}
		pairs = append(pairs, domain.OneTimePrekeyPair{
			ID:   domain.OneTimePrekeyID("opk-" + uuid.NewString()),
			Priv: priv,
			Pub:  pub,
		})
	}
	return pairs, nil
}

// InitiatorAgree runs the initiator side of X3DH against a peer bundle.
func (e *Engine) InitiatorAgree(ident domain.Identity, bundle domain.PrekeyBundle) (domain.InitiatorAgreement, error) {
	root, spkID, opkID, ephPub, err := x3dh.InitiatorRoot(ident, bundle)
	if err != nil {
		if errors.Is(err, x3dh.ErrBadSPK) {
			return domain.InitiatorAgreement{}, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
		}
		return domain.InitiatorAgreement{}, fmt.Errorf("initiator agreement: %w", err)
	}
	return domain.InitiatorAgreement{
		SharedSecret:      root,
		EphemeralPub:      ephPub,
		UsedSignedPrekey:  spkID,
		UsedOneTimePrekey: opkID,
	}, nil
}

// ResponderAgree recomputes the shared secret on the responder side.
func (e *Engine) ResponderAgree(
	ident domain.Identity,
	signedPrekey domain.SignedPrekeyPair,
	oneTimePrekey *domain.OneTimePrekeyPair,
	peerIdentityPub domain.X25519Public,
	peerEphemeralPub domain.X25519Public,
) ([]byte, error) {
	init := domain.HandshakeInitPayload{
		InitiatorIdentityKey: peerIdentityPub,
		EphemeralKey:         peerEphemeralPub,
		SignedPrekeyID:       signedPrekey.ID,
	}
	var opkPriv *domain.X25519Private
	if oneTimePrekey != nil {
		opkPriv = &oneTimePrekey.Priv
	}
	root, err := x3dh.ResponderRoot(ident, signedPrekey.Priv, opkPriv, init)
	if err != nil {
		return nil, fmt.Errorf("responder agreement: %w", err)
	}
	return root, nil
}
