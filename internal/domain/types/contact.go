package types

// TrustOrigin records how a contact relationship was established.
type TrustOrigin string

const (
	// TrustDirectVerification means the user confirmed the key out of band.
	TrustDirectVerification TrustOrigin = "direct-verification"
	// TrustSharedLink means the key arrived via a fetched bundle or an
	// inbound handshake and has not been independently verified.
	TrustSharedLink TrustOrigin = "shared-link"
)

// ContactRecord is the trust metadata kept per peer. Once created it is
// never silently overwritten; a second handshake from the same key keeps
// the original record.
type ContactRecord struct {
	PublicKey     PeerKey     `json:"public_key"`
	DisplayName   string      `json:"display_name"`
	TrustOrigin   TrustOrigin `json:"trust_origin"`
	EstablishedAt int64       `json:"established_at"`
}
