package interfaces

import domaintypes "sotto/internal/domain/types"

// IdentityService creates, retrieves, and inspects the local identity keys.
type IdentityService interface {
	GenerateIdentity(passphrase string) (
		domaintypes.Identity,
		domaintypes.Fingerprint,
		error,
	)
	LoadIdentity(passphrase string) (domaintypes.Identity, error)
	FingerprintIdentity(passphrase string) (domaintypes.Fingerprint, error)
	HasIdentity() (bool, error)
	ResetIdentity() error
}

// PrekeyService generates, stores and assembles the local prekey bundle.
type PrekeyService interface {
	GeneratePrekeys(passphrase string, oneTimeCount int) (domaintypes.PrekeyBundle, error)
	LocalBundle(passphrase string) (domaintypes.PrekeyBundle, error)
}

// SessionManager owns every peer session: the handshake state machine, the
// exclusive in-memory registry, and durable serialized session state.
// Per-peer operations are serialized internally; operations for different
// peers may run concurrently.
type SessionManager interface {
	// RestoreAll deserializes every stored session into the registry. It
	// must complete before any signaling traffic is dispatched. Returns
	// the number of restored sessions.
	RestoreAll() (int, error)

	// InitiateHandshake builds an initiator-role session for the bundle's
	// owner and returns the handshake material to deliver to the peer.
	// Fails with ErrAlreadyEstablished when a usable session exists.
	InitiateHandshake(bundle domaintypes.PrekeyBundle) (domaintypes.HandshakeInitPayload, error)

	// AcceptHandshake builds a responder-role session from an inbound
	// handshake-init. A duplicate for an existing session is ignored and
	// logged, not reprocessed.
	AcceptHandshake(from domaintypes.PeerKey, init domaintypes.HandshakeInitPayload) error

	EncryptFor(peer domaintypes.PeerKey, plaintext []byte) ([]byte, error)
	DecryptFrom(peer domaintypes.PeerKey, message []byte) ([]byte, error)

	SessionState(peer domaintypes.PeerKey) domaintypes.SessionState
	Sessions() []domaintypes.SessionInfo
	EstablishedPeers() []domaintypes.PeerKey
	RemoveSession(peer domaintypes.PeerKey) error
}

// ContactDirectory maps peer keys to trust metadata. Records are created
// once and never silently overwritten.
type ContactDirectory interface {
	// EnsureContact creates the record if absent and reports whether it
	// did. An existing record is left untouched.
	EnsureContact(rec domaintypes.ContactRecord) (bool, error)

	// AddContact creates the record, failing with ErrExists when one is
	// already present for the key.
	AddContact(rec domaintypes.ContactRecord) error

	GetContact(key domaintypes.PeerKey) (domaintypes.ContactRecord, error)
	HasContact(key domaintypes.PeerKey) (bool, error)
	ListContacts() ([]domaintypes.ContactRecord, error)
	RenameContact(key domaintypes.PeerKey, displayName string) error
	RemoveContact(key domaintypes.PeerKey) error
}
