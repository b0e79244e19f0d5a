package domain

import (
	interfaces "sotto/internal/domain/interfaces"
	types "sotto/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	PeerKey              = types.PeerKey
	Fingerprint          = types.Fingerprint
	SignedPrekeyID       = types.SignedPrekeyID
	OneTimePrekeyID      = types.OneTimePrekeyID
	Identity             = types.Identity
	SignedPrekeyPair     = types.SignedPrekeyPair
	OneTimePrekeyPair    = types.OneTimePrekeyPair
	OneTimePrekeyPublic  = types.OneTimePrekeyPublic
	PrekeyBundle         = types.PrekeyBundle
	InitiatorAgreement   = types.InitiatorAgreement
	EnvelopeType         = types.EnvelopeType
	Envelope             = types.Envelope
	HandshakeInitPayload = types.HandshakeInitPayload
	OfferPayload         = types.OfferPayload
	AnswerPayload        = types.AnswerPayload
	ICEPayload           = types.ICEPayload
	CiphertextPayload    = types.CiphertextPayload
	PresencePayload      = types.PresencePayload
	TypingPayload        = types.TypingPayload
	Role                 = types.Role
	SessionState         = types.SessionState
	SessionRecord        = types.SessionRecord
	SessionInfo          = types.SessionInfo
	TrustOrigin          = types.TrustOrigin
	ContactRecord        = types.ContactRecord
	LinkPhase            = types.LinkPhase
	X25519Public         = types.X25519Public
	X25519Private        = types.X25519Private
	Ed25519Public        = types.Ed25519Public
	Ed25519Private       = types.Ed25519Private
)

// Constant aliases keep call sites on the domain package.
const (
	EnvelopeHandshakeInit     = types.EnvelopeHandshakeInit
	EnvelopeTransportOffer    = types.EnvelopeTransportOffer
	EnvelopeTransportAnswer   = types.EnvelopeTransportAnswer
	EnvelopeTransportICE      = types.EnvelopeTransportICE
	EnvelopeRelayedCiphertext = types.EnvelopeRelayedCiphertext
	EnvelopePresence          = types.EnvelopePresence
	EnvelopeTyping            = types.EnvelopeTyping
	EnvelopeWildcard          = types.EnvelopeWildcard

	RoleInitiator = types.RoleInitiator
	RoleResponder = types.RoleResponder

	StateNoSession            = types.StateNoSession
	StateHandshakeSent        = types.StateHandshakeSent
	StateHandshakeReceived    = types.StateHandshakeReceived
	StateAwaitingFirstMessage = types.StateAwaitingFirstMessage
	StateEstablished          = types.StateEstablished

	TrustDirectVerification = types.TrustDirectVerification
	TrustSharedLink         = types.TrustSharedLink

	LinkIdle        = types.LinkIdle
	LinkNegotiating = types.LinkNegotiating
	LinkOpen        = types.LinkOpen
	LinkClosed      = types.LinkClosed

	PresenceOnline  = types.PresenceOnline
	PresenceOffline = types.PresenceOffline
)

// Function aliases for peer key handling.
var (
	PeerKeyOf         = types.PeerKeyOf
	ParsePeerKey      = types.ParsePeerKey
	KnownEnvelopeType = types.KnownEnvelopeType
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	CryptoEngine     = interfaces.CryptoEngine
	CipherSession    = interfaces.CipherSession
	IdentityService  = interfaces.IdentityService
	PrekeyService    = interfaces.PrekeyService
	SessionManager   = interfaces.SessionManager
	ContactDirectory = interfaces.ContactDirectory
	Signaler         = interfaces.Signaler
	EnvelopeHandler  = interfaces.EnvelopeHandler
	TransportRouter  = interfaces.TransportRouter
	RendezvousClient = interfaces.RendezvousClient
	IdentityStore    = interfaces.IdentityStore
	PrekeyStore      = interfaces.PrekeyStore
	SessionStore     = interfaces.SessionStore
	ContactStore     = interfaces.ContactStore
)
