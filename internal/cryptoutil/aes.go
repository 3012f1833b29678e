// Package cryptoutil wraps the small set of primitives the pairing,
// FairPlay, audio and mirror-video subsystems share: AES-128 in CTR/CBC/GCM,
// X25519, Ed25519, SHA-512 and a CSPRNG. Everything here is a thin layer
// over the standard library plus golang.org/x/crypto/curve25519 for X25519 —
// see DESIGN.md for why no third-party AES/Ed25519 package was warranted.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
)

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// CTRCipher is a resumable AES-128-CTR keystream. Because CTR's
// XORKeyStream already supports calls of arbitrary, non-block-aligned
// length while preserving cipher state across calls, it satisfies the
// mirror-stream's "carry a partial 16-byte block across packets" contract
// without needing a hand-rolled carry buffer (see DESIGN.md).
type CTRCipher struct {
	stream cipher.Stream
}

// NewCTR builds a CTR keystream under key/iv (both 16 bytes).
func NewCTR(key, iv []byte) (*CTRCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &CTRCipher{stream: cipher.NewCTR(block, iv)}, nil
}

// XORKeyStream encrypts or decrypts (CTR is symmetric) src into dst.
func (c *CTRCipher) XORKeyStream(dst, src []byte) {
	c.stream.XORKeyStream(dst, src)
}

// Advance consumes exactly n bytes of keystream without producing usable
// output; pair-verify's round-2 decryption uses it to burn one extra 64-byte
// stretch after round 1 already consumed 64 bytes for the encrypted
// signature.
func (c *CTRCipher) Advance(n int) {
	scratch := make([]byte, n)
	c.stream.XORKeyStream(scratch, scratch)
}

// CBCDecrypt decrypts src (a multiple of 16 bytes) under key/iv with no
// padding, the scheme used for encrypted audio payloads.
func CBCDecrypt(key, iv, src []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	dst := make([]byte, len(src))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(dst, src)
	return dst, nil
}

// CBCEncrypt encrypts src (a multiple of 16 bytes) under key/iv with no padding.
func CBCEncrypt(key, iv, src []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	dst := make([]byte, len(src))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(dst, src)
	return dst, nil
}

// GCMSeal encrypts plaintext with a 16-byte IV, appending a 16-byte tag.
func GCMSeal(key, iv, plaintext, additionalData []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, iv, plaintext, additionalData), nil
}

// GCMOpen decrypts and authenticates ciphertext (which must include its
// trailing 16-byte tag) under key/iv.
func GCMOpen(key, iv, ciphertext, additionalData []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, iv, ciphertext, additionalData)
}
