package types

// LinkPhase is the lifecycle of a per-peer direct channel.
type LinkPhase string

const (
	LinkIdle        LinkPhase = "idle"
	LinkNegotiating LinkPhase = "negotiating"
	LinkOpen        LinkPhase = "open"
	LinkClosed      LinkPhase = "closed"
)

// String returns the string form of the phase.
func (p LinkPhase) String() string { return string(p) }
