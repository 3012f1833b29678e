package cryptoutil

import (
	"crypto/rand"

	"golang.org/x/crypto/curve25519"
)

// X25519KeySize is the size, in bytes, of a raw X25519 public or private key.
const X25519KeySize = 32

// X25519Key is an X25519 key pair.
type X25519Key struct {
	priv [X25519KeySize]byte
	pub  [X25519KeySize]byte
}

// GenerateX25519Key generates a fresh ephemeral X25519 key pair.
func GenerateX25519Key() (*X25519Key, error) {
	var priv [X25519KeySize]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return nil, err
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	k := &X25519Key{priv: priv}
	copy(k.pub[:], pub)
	return k, nil
}

// X25519KeyFromRaw imports a peer's public key (no private component).
func X25519KeyFromRaw(raw []byte) *X25519Key {
	k := &X25519Key{}
	copy(k.pub[:], raw)
	return k
}

// Raw returns the 32-byte public key.
func (k *X25519Key) Raw() []byte {
	out := make([]byte, X25519KeySize)
	copy(out, k.pub[:])
	return out
}

// DeriveSecret computes the 32-byte ECDH shared secret between our key pair
// and a peer's public key.
func (k *X25519Key) DeriveSecret(peer *X25519Key) ([]byte, error) {
	return curve25519.X25519(k.priv[:], peer.pub[:])
}
