package types

// Identity holds the long-lived X25519 agreement and Ed25519 signing keys.
// The X25519 public half is the peer's permanent address; regenerating an
// identity destroys every session bound to it.
type Identity struct {
	XPub   X25519Public   `json:"xpub"`
	XPriv  X25519Private  `json:"xpriv"`
	EdPub  Ed25519Public  `json:"edpub"`
	EdPriv Ed25519Private `json:"edpriv"`
}

// PeerKey returns the identity's public address.
func (id Identity) PeerKey() PeerKey { return PeerKeyOf(id.XPub) }
