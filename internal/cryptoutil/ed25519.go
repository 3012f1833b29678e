package cryptoutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"encoding/pem"
	"errors"
	"os"
)

const persistentKeySalt = "UxPlay-Persistent-Not-Secure-Public-Key"

// LoadOrGenerateEd25519Key returns the server's long-term Ed25519 identity
// key. With a non-empty keyfile, it loads a PEM-encoded private key from
// disk, generating and persisting a fresh one if the file is absent or
// unreadable. With an empty keyfile, the key is deterministically derived
// from SHA-512(persistentKeySalt || deviceID), matching every other build
// of this server so the same device id always yields the same identity.
func LoadOrGenerateEd25519Key(deviceID, keyfile string) (ed25519.PrivateKey, error) {
	if keyfile == "" {
		h := sha512.Sum512(append([]byte(persistentKeySalt), []byte(deviceID)...))
		return ed25519.NewKeyFromSeed(h[:ed25519.SeedSize]), nil
	}

	if data, err := os.ReadFile(keyfile); err == nil {
		block, _ := pem.Decode(data)
		if block != nil && len(block.Bytes) == ed25519.SeedSize {
			return ed25519.NewKeyFromSeed(block.Bytes), nil
		}
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	seed := priv.Seed()
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: seed}
	if err := os.WriteFile(keyfile, pem.EncodeToMemory(block), 0o600); err != nil {
		return nil, err
	}
	return priv, nil
}

// Ed25519Sign signs message with priv.
func Ed25519Sign(priv ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(priv, message)
}

// Ed25519Verify verifies sig over message under pub.
func Ed25519Verify(pub ed25519.PublicKey, message, sig []byte) bool {
	return ed25519.Verify(pub, message, sig)
}

// ErrInvalidPublicKeySize is returned by PublicKeyFromRaw.
var ErrInvalidPublicKeySize = errors.New("invalid ed25519 public key size")

// PublicKeyFromRaw validates and wraps a 32-byte raw public key.
func PublicKeyFromRaw(raw []byte) (ed25519.PublicKey, error) {
	if len(raw) != ed25519.PublicKeySize {
		return nil, ErrInvalidPublicKeySize
	}
	pub := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(pub, raw)
	return pub, nil
}
