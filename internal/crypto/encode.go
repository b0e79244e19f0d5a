package crypto

import "encoding/base64"

// B64 returns standard base64 encoding without newlines.
func B64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// B64URL returns unpadded url-safe base64, the encoding used for peer
// addressing and store keys.
func B64URL(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

// B64URLDecode reverses B64URL.
func B64URLDecode(s string) ([]byte, error) { return base64.RawURLEncoding.DecodeString(s) }
