package types

// Role marks which side of the handshake built a session.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// SessionState is the per-peer handshake state machine. HandshakeSent and
// HandshakeReceived are passed through while the corresponding operation
// runs; Established is terminal until explicit removal. A responder session
// sits in EstablishedAwaitingFirstMessage until the initiator's first
// message arrives, because the ratchet gives the responder no sending chain
// before that.
type SessionState string

const (
	StateNoSession             SessionState = "no-session"
	StateHandshakeSent         SessionState = "handshake-sent"
	StateHandshakeReceived     SessionState = "handshake-received"
	StateAwaitingFirstMessage  SessionState = "established-awaiting-first-message"
	StateEstablished           SessionState = "established"
)

// String returns the string form of the state.
func (s SessionState) String() string { return string(s) }

// Usable reports whether the session can carry traffic in at least one
// direction.
func (s SessionState) Usable() bool {
	return s == StateEstablished || s == StateAwaitingFirstMessage
}

// SessionRecord is the persisted per-peer session: the opaque serialized
// engine session plus the registry metadata that rides alongside it.
// Version increases by one on every persisted mutation.
type SessionRecord struct {
	Role       Role         `json:"role"`
	State      SessionState `json:"state"`
	Version    uint64       `json:"version"`
	CreatedUTC int64        `json:"created_utc"`
	Session    []byte       `json:"session"`
}

// SessionInfo is the registry's read-only view of one peer session.
type SessionInfo struct {
	Peer       PeerKey      `json:"peer"`
	Role       Role         `json:"role"`
	State      SessionState `json:"state"`
	Version    uint64       `json:"version"`
	CreatedUTC int64        `json:"created_utc"`
}
