package types

import "encoding/json"

// EnvelopeType tags a signaling envelope. The set is closed: envelopes with
// any other tag are rejected at the signaling boundary.
type EnvelopeType string

const (
	EnvelopeHandshakeInit     EnvelopeType = "handshake-init"
	EnvelopeTransportOffer    EnvelopeType = "transport-offer"
	EnvelopeTransportAnswer   EnvelopeType = "transport-answer"
	EnvelopeTransportICE      EnvelopeType = "transport-ice"
	EnvelopeRelayedCiphertext EnvelopeType = "relayed-ciphertext"
	EnvelopePresence          EnvelopeType = "presence"
	EnvelopeTyping            EnvelopeType = "typing"

	// EnvelopeWildcard subscribes a handler to every envelope type.
	EnvelopeWildcard EnvelopeType = "*"
)

// KnownEnvelopeType reports whether t is in the closed tag set.
func KnownEnvelopeType(t EnvelopeType) bool {
	switch t {
	case EnvelopeHandshakeInit, EnvelopeTransportOffer, EnvelopeTransportAnswer,
		EnvelopeTransportICE, EnvelopeRelayedCiphertext, EnvelopePresence, EnvelopeTyping:
		return true
	}
	return false
}

// Envelope is the transient wire unit of the signaling channel. To is empty
// for broadcast envelopes. Timestamp is unix milliseconds at send time.
type Envelope struct {
	Type      EnvelopeType    `json:"type"`
	From      PeerKey         `json:"from"`
	To        PeerKey         `json:"to,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

// HandshakeInitPayload carries the X3DH parameters of a handshake-init
// envelope: everything the responder needs to derive the shared secret.
type HandshakeInitPayload struct {
	InitiatorIdentityKey X25519Public    `json:"initiator_identity_key"`
	InitiatorSigningKey  Ed25519Public   `json:"initiator_signing_key"`
	EphemeralKey         X25519Public    `json:"ephemeral_key"`
	SignedPrekeyID       SignedPrekeyID  `json:"signed_prekey_id"`
	OneTimePrekeyID      OneTimePrekeyID `json:"one_time_prekey_id,omitempty"`
}

// OfferPayload and AnswerPayload carry SDP for direct-channel negotiation.
type OfferPayload struct {
	SDP string `json:"sdp"`
}

// AnswerPayload is the response half of an offer/answer exchange.
type AnswerPayload struct {
	SDP string `json:"sdp"`
}

// ICEPayload carries one trickled ICE candidate.
type ICEPayload struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdp_mid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdp_mline_index,omitempty"`
}

// CiphertextPayload wraps already-encrypted session bytes relayed through
// the signaling channel when no direct channel is open.
type CiphertextPayload struct {
	Data []byte `json:"data"`
}

// PresenceStatus values for PresencePayload.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// PresencePayload announces reachability on the broadcast address.
type PresencePayload struct {
	Status      string `json:"status"`
	DisplayName string `json:"display_name,omitempty"`
}

// TypingPayload signals a typing indicator to one peer.
type TypingPayload struct {
	Active bool `json:"active"`
}
