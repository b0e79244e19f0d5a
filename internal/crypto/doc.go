// Package crypto exposes the minimal primitives used by sotto.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie–Hellman (GenerateX25519, DH)
//   - Ed25519 key generation, signing and verification (GenerateEd25519,
//     SignEd25519, VerifyEd25519)
//   - base64 helpers for wire and address encodings (B64, B64URL)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// All functions return fixed-size array types defined in internal/domain to
// avoid accidental reallocations. Callers should treat returned secrets as
// sensitive and wipe intermediates with internal/util/memzero when practical.
package crypto
