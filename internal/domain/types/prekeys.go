package types

// SignedPrekeyPair is the full signed prekey stored locally: the keypair
// plus the Ed25519 signature over its public half.
type SignedPrekeyPair struct {
	ID        SignedPrekeyID `json:"id"`
	Priv      X25519Private  `json:"priv"`
	Pub       X25519Public   `json:"pub"`
	Signature []byte         `json:"signature"`
}

// OneTimePrekeyPair is the full (private+public) one-time prekey stored locally.
type OneTimePrekeyPair struct {
	ID   OneTimePrekeyID `json:"id"`
	Priv X25519Private   `json:"priv"`
	Pub  X25519Public    `json:"pub"`
}

// OneTimePrekeyPublic is only the public half (sent in bundles).
type OneTimePrekeyPublic struct {
	ID  OneTimePrekeyID `json:"id"`
	Pub X25519Public    `json:"pub"`
}

// PrekeyBundle is the set of public keys registered with the rendezvous
// service so peers can initiate a handshake while the owner is offline.
// SignedPrekeySignature is base64-encoded automatically.
type PrekeyBundle struct {
	IdentityKey           X25519Public          `json:"identity_key"`
	SigningKey            Ed25519Public         `json:"signing_key"`
	SignedPrekeyID        SignedPrekeyID        `json:"signed_prekey_id"`
	SignedPrekey          X25519Public          `json:"signed_prekey"`
	SignedPrekeySignature []byte                `json:"signed_prekey_signature"`
	OneTimePrekeys        []OneTimePrekeyPublic `json:"one_time_prekeys,omitempty"`
}

// PeerKey returns the bundle owner's public address.
func (b PrekeyBundle) PeerKey() PeerKey { return PeerKeyOf(b.IdentityKey) }

// InitiatorAgreement is the initiator side's key-agreement output: the
// shared secret plus the ephemeral material the peer needs to derive it.
type InitiatorAgreement struct {
	SharedSecret      []byte
	EphemeralPub      X25519Public
	UsedSignedPrekey  SignedPrekeyID
	UsedOneTimePrekey OneTimePrekeyID
}
