package interfaces

import domaintypes "sotto/internal/domain/types"

// IdentityStore persists the long-term identity keys, encrypted at rest.
type IdentityStore interface {
	SaveIdentity(passphrase string, id domaintypes.Identity) error
	LoadIdentity(passphrase string) (domaintypes.Identity, error)
	HasIdentity() (bool, error)
	DeleteIdentity() error
}

// PrekeyStore manages signed and one-time prekeys on disk.
type PrekeyStore interface {
	SaveSignedPrekey(pair domaintypes.SignedPrekeyPair) error
	LoadSignedPrekey(id domaintypes.SignedPrekeyID) (domaintypes.SignedPrekeyPair, bool, error)

	// Current signed prekey selection
	SetCurrentSignedPrekeyID(id domaintypes.SignedPrekeyID) error
	CurrentSignedPrekeyID() (domaintypes.SignedPrekeyID, bool, error)

	// One-time prekeys; Consume removes the pair so it is used at most once.
	SaveOneTimePrekeys(pairs []domaintypes.OneTimePrekeyPair) error
	ConsumeOneTimePrekey(id domaintypes.OneTimePrekeyID) (domaintypes.OneTimePrekeyPair, bool, error)
	ListOneTimePrekeyPublics() ([]domaintypes.OneTimePrekeyPublic, error)

	DeleteAllPrekeys() error
}

// SessionStore persists one serialized session record per peer, keyed by
// the url-safe encoding of the peer public key. Writes are synchronous;
// when Save returns the record is on disk.
type SessionStore interface {
	SaveSessionRecord(peer domaintypes.PeerKey, rec domaintypes.SessionRecord) error
	LoadSessionRecord(peer domaintypes.PeerKey) (domaintypes.SessionRecord, bool, error)
	AllSessionRecords() (map[domaintypes.PeerKey]domaintypes.SessionRecord, error)
	DeleteSessionRecord(peer domaintypes.PeerKey) error
	DeleteAllSessionRecords() error
}

// ContactStore persists contact records keyed by peer key.
type ContactStore interface {
	SaveContact(rec domaintypes.ContactRecord) error
	LoadContact(key domaintypes.PeerKey) (domaintypes.ContactRecord, bool, error)
	AllContacts() (map[domaintypes.PeerKey]domaintypes.ContactRecord, error)
	DeleteContact(key domaintypes.PeerKey) error
}
