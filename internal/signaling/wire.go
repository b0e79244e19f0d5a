package signaling

import "sotto/internal/domain"

// Frame ops. Clients send sub and pub; the broker delivers pub frames.
const (
	OpSub = "sub"
	OpPub = "pub"
)

// BroadcastTopic carries presence and typing envelopes to every connected
// client.
const BroadcastTopic = "broadcast"

// Frame is the single message shape exchanged with the broker. Clients
// publish and subscribe with it; the broker fans pub frames out verbatim.
type Frame struct {
	Op       string           `json:"op"`
	Topic    string           `json:"topic"`
	Envelope *domain.Envelope `json:"envelope,omitempty"`
}

// InboxTopic is the per-peer topic envelopes addressed to peer arrive on.
func InboxTopic(peer domain.PeerKey) string {
	return "inbox/" + peer.String()
}
