package interfaces

import domaintypes "sotto/internal/domain/types"

// CryptoEngine is the opaque boundary around key agreement and ratcheting.
// Consumers hold identities, bundles and serialized session bytes; they
// never see root keys, chain keys or ratchet internals.
type CryptoEngine interface {
	GenerateIdentity() (domaintypes.Identity, error)
	GenerateSignedPrekey(ident domaintypes.Identity) (domaintypes.SignedPrekeyPair, error)
	GenerateOneTimePrekeys(count int) ([]domaintypes.OneTimePrekeyPair, error)

	// InitiatorAgree runs the initiator side of the key agreement against a
	// peer's published bundle. Fails with ErrSignatureInvalid when the
	// signed prekey signature does not verify.
	InitiatorAgree(
		ident domaintypes.Identity,
		bundle domaintypes.PrekeyBundle,
	) (domaintypes.InitiatorAgreement, error)

	// ResponderAgree derives the same shared secret from the responder
	// side, given the initiator's identity and ephemeral public keys.
	ResponderAgree(
		ident domaintypes.Identity,
		signedPrekey domaintypes.SignedPrekeyPair,
		oneTimePrekey *domaintypes.OneTimePrekeyPair,
		peerIdentityPub domaintypes.X25519Public,
		peerEphemeralPub domaintypes.X25519Public,
	) ([]byte, error)

	// InitInitiator builds a session that can encrypt immediately.
	InitInitiator(sharedSecret []byte, peerPrekeyPub domaintypes.X25519Public) (CipherSession, error)

	// InitResponder builds a session that cannot encrypt until the first
	// inbound message supplies the initiator's ratchet public key.
	InitResponder(sharedSecret []byte, signedPrekey domaintypes.SignedPrekeyPair) (CipherSession, error)

	// Deserialize restores a session previously captured with Serialize.
	Deserialize(data []byte) (CipherSession, error)
}

// CipherSession is one live ratchet session. Encrypt and Decrypt mutate the
// session in place; callers must serialize the new state immediately after
// every successful call, and must not interleave calls for the same peer.
type CipherSession interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(message []byte) ([]byte, error)
	Serialize() ([]byte, error)
}
