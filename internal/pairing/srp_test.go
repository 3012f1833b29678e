package pairing

import (
	"crypto/ed25519"
	"crypto/sha512"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antimof/UxPlay-sub000/internal/cryptoutil"
)

// simulatedSRPClientProof plays the client side of pair-setup-pin using the same
// primitives as SRPServerState, independently of the server's internals.
func simulatedSRPClientProof(t *testing.T, deviceID, pin string, salt, serverPubB []byte) (clientPubA *big.Int, proofM1, sessionKey []byte) {
	t.Helper()

	a := new(big.Int).SetBytes(mustRandom(t, 32))
	A := new(big.Int).Exp(srpG, a, srpN)

	x := calculateX(salt, deviceID, []byte(pin))
	B := new(big.Int).SetBytes(serverPubB)
	u := new(big.Int).SetBytes(rfc5054Hash(srpN, A, B))

	// S = (B - k*g^x) ^ (a + u*x) mod N
	gx := new(big.Int).Exp(srpG, x, srpN)
	kgx := new(big.Int).Mod(new(big.Int).Mul(new(big.Int).SetBytes(srpK), gx), srpN)
	base := new(big.Int).Mod(new(big.Int).Sub(B, kgx), srpN)
	exp := new(big.Int).Add(a, new(big.Int).Mul(u, x))
	S := new(big.Int).Exp(base, exp, srpN)

	sessionKey = srpSessionKey(S)
	proofM1 = calculateM(deviceID, salt, A, B, sessionKey)
	return A, proofM1, sessionKey
}

func mustRandom(t *testing.T, n int) []byte {
	t.Helper()
	b, err := cryptoutil.RandomBytes(n)
	require.NoError(t, err)
	return b
}

func TestSRPPairSetupRoundTrip(t *testing.T) {
	identity, _ := newTestIdentity(t)
	server := NewSession(identity)

	salt, serverPubB, err := server.StartSRPPairing("AA:BB:CC:DD:EE:FF", "1234")
	require.NoError(t, err)

	clientA, clientProof, clientSessionKey := simulatedSRPClientProof(t, "AA:BB:CC:DD:EE:FF", "1234", salt, serverPubB)
	require.Equal(t, SRPSessionKeySize, len(clientSessionKey))

	clientEdPub, clientEdPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	keyHash := sha512.Sum512(append([]byte(pairSetupKeySalt), clientSessionKey...))
	ivHash := sha512.Sum512(append([]byte(pairSetupIVSalt), clientSessionKey...))
	aesKey := keyHash[:16]
	aesIV := append([]byte(nil), ivHash[:16]...)
	aesIV[15]++

	sealed, err := cryptoutil.GCMSeal(aesKey, aesIV, clientEdPub, nil)
	require.NoError(t, err)
	encClientPub, authTag := sealed[:len(sealed)-16], sealed[len(sealed)-16:]

	proofM2, encServerPub, err := server.FinishSRPPairing(clientA.Bytes(), clientProof, encClientPub, authTag)
	require.NoError(t, err)
	require.NotNil(t, proofM2)
	require.Equal(t, StatusSetup, server.Status())

	aesIV[15]++
	serverPub, err := cryptoutil.GCMOpen(aesKey, aesIV, encServerPub, nil)
	require.NoError(t, err)
	require.Equal(t, identity.PublicKey(), serverPub)

	_ = clientEdPriv
}

func TestSRPPairSetupWrongPINFails(t *testing.T) {
	identity, _ := newTestIdentity(t)
	server := NewSession(identity)

	salt, serverPubB, err := server.StartSRPPairing("AA:BB:CC:DD:EE:FF", "1234")
	require.NoError(t, err)

	clientA, wrongProof, _ := simulatedSRPClientProof(t, "AA:BB:CC:DD:EE:FF", "9999", salt, serverPubB)

	_, err = server.SRP.ValidateProof(clientA.Bytes(), wrongProof)
	require.Error(t, err)
	require.False(t, server.SRP.Authenticated())
}
