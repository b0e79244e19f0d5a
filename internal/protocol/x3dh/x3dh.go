package x3dh

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"sotto/internal/crypto"
	"sotto/internal/domain"
	"sotto/internal/util/memzero"
)

// ErrBadSPK is returned when the signed prekey signature fails verification.
var ErrBadSPK = errors.New("x3dh: signed prekey signature invalid")

var hkdfInfo = []byte("sotto-x3dh")

// InitiatorRoot verifies the bundle, generates the ephemeral pair, and
// derives the root key. It returns the identifiers of the prekeys it used
// (picking the first one-time prekey when the bundle carries any) and the
// ephemeral public key the responder needs.
func InitiatorRoot(ident domain.Identity, bundle domain.PrekeyBundle) (
	root []byte,
	spkID domain.SignedPrekeyID,
	opkID domain.OneTimePrekeyID,
	ephPub domain.X25519Public,
	err error,
) {
	if !VerifySPK(bundle.SigningKey, bundle.SignedPrekey, bundle.SignedPrekeySignature) {
		err = ErrBadSPK
		return
	}

	ephPriv, ephPub, err := crypto.GenerateX25519()
	if err != nil {
		return
	}
	defer memzero.Zero(ephPriv[:])

	var opk *domain.X25519Public
	if len(bundle.OneTimePrekeys) > 0 {
		opkID = bundle.OneTimePrekeys[0].ID
		opk = &bundle.OneTimePrekeys[0].Pub
	}

	root, err = initiatorRootKey(ident.XPriv, ephPriv, bundle.IdentityKey, bundle.SignedPrekey, opk)
	if err != nil {
		return
	}
	spkID = bundle.SignedPrekeyID
	return
}

// ResponderRoot recomputes the initiator's root key from the handshake
// parameters, the local signed prekey private and (when the initiator used
// one) the consumed one-time prekey private.
func ResponderRoot(
	ident domain.Identity,
	spkPriv domain.X25519Private,
	opkPriv *domain.X25519Private,
	init domain.HandshakeInitPayload,
) ([]byte, error) {
	dh1, err := crypto.DH(spkPriv, init.InitiatorIdentityKey) // DH(SPKB, IKA)
	if err != nil {
		return nil, fmt.Errorf("dh1: %w", err)
	}
	dh2, err := crypto.DH(ident.XPriv, init.EphemeralKey) // DH(IKB, EKA)
	if err != nil {
		return nil, fmt.Errorf("dh2: %w", err)
	}
	dh3, err := crypto.DH(spkPriv, init.EphemeralKey) // DH(SPKB, EKA)
	if err != nil {
		return nil, fmt.Errorf("dh3: %w", err)
	}

	dhConcat := make([]byte, 0, 32*4)
	dhConcat = append(dhConcat, dh1[:]...)
	dhConcat = append(dhConcat, dh2[:]...)
	dhConcat = append(dhConcat, dh3[:]...)

	if opkPriv != nil {
		dh4, err := crypto.DH(*opkPriv, init.EphemeralKey) // DH(OPKB, EKA)
		if err != nil {
			return nil, fmt.Errorf("dh4: %w", err)
		}
		dhConcat = append(dhConcat, dh4[:]...)
	}

	root := deriveRoot(dhConcat)
	memzero.Zero(dhConcat)
	return root, nil
}

// VerifySPK checks the signed prekey signature.
func VerifySPK(edPub domain.Ed25519Public, spk domain.X25519Public, sig []byte) bool {
	return ed25519.Verify(edPub.Slice(), spk.Slice(), sig)
}

func initiatorRootKey(
	ourIDPriv domain.X25519Private,
	ourEphPriv domain.X25519Private,
	peerIDPub domain.X25519Public,
	peerSPK domain.X25519Public,
	peerOPK *domain.X25519Public,
) ([]byte, error) {
	dh1, err := crypto.DH(ourIDPriv, peerSPK) // DH(IKA, SPKB)
	if err != nil {
		return nil, fmt.Errorf("dh1: %w", err)
	}
	dh2, err := crypto.DH(ourEphPriv, peerIDPub) // DH(EKA, IKB)
	if err != nil {
		return nil, fmt.Errorf("dh2: %w", err)
	}
	dh3, err := crypto.DH(ourEphPriv, peerSPK) // DH(EKA, SPKB)
	if err != nil {
		return nil, fmt.Errorf("dh3: %w", err)
	}

	dhConcat := make([]byte, 0, 32*4)
	dhConcat = append(dhConcat, dh1[:]...)
	dhConcat = append(dhConcat, dh2[:]...)
	dhConcat = append(dhConcat, dh3[:]...)

	if peerOPK != nil {
		dh4, err := crypto.DH(ourEphPriv, *peerOPK) // DH(EKA, OPKB)
		if err != nil {
			return nil, fmt.Errorf("dh4: %w", err)
		}
		dhConcat = append(dhConcat, dh4[:]...)
	}

	root := deriveRoot(dhConcat)
	memzero.Zero(dhConcat)
	return root, nil
}

func deriveRoot(dhConcat []byte) []byte {
	root := make([]byte, 32)
	_, _ = io.ReadFull(hkdf.New(sha256.New, dhConcat, nil, hkdfInfo), root)
	return root
}
