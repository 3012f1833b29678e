package cryptoutil

import "crypto/sha512"

// SHA512 hashes the concatenation of parts.
func SHA512(parts ...[]byte) []byte {
	h := sha512.New()
	for _, p := range parts {
		h.Write(p) //nolint:errcheck
	}
	return h.Sum(nil)
}

// DeriveKey16 derives a 16-byte key as SHA512(salt || secret)[0:16], the
// scheme pair-verify, the mirror stream key and the audio stream key all use.
func DeriveKey16(salt, secret []byte) []byte {
	sum := SHA512(salt, secret)
	return sum[:16]
}
