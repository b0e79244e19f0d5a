// Package engine implements the opaque crypto boundary consumed by the
// session manager: identity and prekey generation, X3DH agreement, and
// Double Ratchet sessions addressed only through serialized bytes.
//
// Nothing above this package sees root keys, chain keys or ratchet
// internals; sessions cross the boundary as domain.CipherSession values
// and persist as the bytes Serialize returns.
package engine
