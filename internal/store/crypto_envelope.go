package store

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// Current version of the encrypted blob format on disk.
const keystoreFormatVersion = 1

// ErrWrongPassphrase is returned when the passphrase is incorrect or the
// ciphertext has been modified or corrupted. The two cases are
// indistinguishable.
var ErrWrongPassphrase = errors.New("store: wrong passphrase or corrupted keystore")

// keystoreBlob is the on-disk JSON structure holding the ciphertext and
// KDF parameters.
type keystoreBlob struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Cipher []byte `json:"cipher"`
}

// sealKeystore derives a key from passphrase and seals raw into a JSON blob.
func sealKeystore(passphrase string, raw []byte, N, r, p int) ([]byte, error) {
	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, err
	}
	key, err := scrypt.Key([]byte(passphrase), salt[:], N, r, p, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	// Zero nonce: the key is derived from a fresh random salt per seal, so
	// it is never reused.
	var nonce [chacha20poly1305.NonceSize]byte
	ct := aead.Seal(nil, nonce[:], raw, salt[:])

	return json.Marshal(keystoreBlob{
		V:      keystoreFormatVersion,
		Salt:   salt[:],
		N:      N,
		R:      r,
		P:      p,
		Cipher: ct,
	})
}

// openKeystore opens the JSON blob using a key derived from passphrase.
func openKeystore(passphrase string, b []byte) ([]byte, error) {
	var bl keystoreBlob
	if err := json.Unmarshal(b, &bl); err != nil {
		return nil, err
	}
	if bl.V > keystoreFormatVersion {
		return nil, fmt.Errorf("unsupported keystore version %d", bl.V)
	}

	key, err := scrypt.Key([]byte(passphrase), bl.Salt, bl.N, bl.R, bl.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	pt, err := aead.Open(nil, nonce[:], bl.Cipher, bl.Salt)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return pt, nil
}

// Tunables for scrypt key derivation.
func scryptParamsDefault() (N, r, p int) { return 1 << 15, 8, 1 }
