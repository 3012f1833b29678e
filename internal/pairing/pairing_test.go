package pairing

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antimof/UxPlay-sub000/internal/cryptoutil"
)

func newTestIdentity(t *testing.T) (*Identity, ed25519.PublicKey) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return NewIdentity(priv), pub
}

// simulatedPeer plays the client side of pair-verify using the same
// primitives, so the test exercises a full honest round-trip.
type simulatedPeer struct {
	ed       ed25519.PrivateKey
	edPub    ed25519.PublicKey
	ecdh     *cryptoutil.X25519Key
	ctr      *cryptoutil.CTRCipher
	secret   []byte
	serverPK *cryptoutil.X25519Key
}

func newSimulatedPeer(t *testing.T) *simulatedPeer {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	ecdh, err := cryptoutil.GenerateX25519Key()
	require.NoError(t, err)
	return &simulatedPeer{ed: priv, edPub: pub, ecdh: ecdh}
}

func TestPairVerifyRoundTrip(t *testing.T) {
	identity, _ := newTestIdentity(t)
	server := NewSession(identity)
	peer := newSimulatedPeer(t)

	serverPub, encSig, err := server.VerifyRound1(peer.ecdh.Raw(), peer.edPub)
	require.NoError(t, err)

	// peer derives its own view of the shared secret and verifies the
	// server's round-1 signature exactly like the server will verify
	// the peer's round-2 signature.
	serverKey := cryptoutil.X25519KeyFromRaw(serverPub)
	peerSecret, err := peer.ecdh.DeriveSecret(serverKey)
	require.NoError(t, err)
	secret, ok := server.SharedSecret()
	require.True(t, ok)
	require.Equal(t, secret, peerSecret)

	key := cryptoutil.DeriveKey16([]byte(pairVerifyKeySalt), peerSecret)
	iv := cryptoutil.DeriveKey16([]byte(pairVerifyIVSalt), peerSecret)
	peerCTR, err := cryptoutil.NewCTR(key, iv)
	require.NoError(t, err)
	sig := make([]byte, len(encSig))
	peerCTR.XORKeyStream(sig, encSig)
	sigMsg := append(append([]byte(nil), serverPub...), peer.ecdh.Raw()...)
	require.True(t, cryptoutil.Ed25519Verify(identity.PublicKey(), sigMsg, sig))

	// now the peer signs their_ecdh_pub||our_ecdh_pub (from the peer's
	// perspective: peer_ecdh||server_ecdh) and the round-2 key continues
	// the same CTR stream the peer's own cipher is on.
	peerSigMsg := append(append([]byte(nil), peer.ecdh.Raw()...), serverPub...)
	peerSig := cryptoutil.Ed25519Sign(peer.ed, peerSigMsg)
	peerCTR.Advance(SignatureSize)
	encPeerSig := make([]byte, len(peerSig))
	peerCTR.XORKeyStream(encPeerSig, peerSig)

	require.NoError(t, server.VerifyRound2(encPeerSig))
	require.Equal(t, StatusFinished, server.Status())
}

func TestPairVerifyRoundTripBitFlipFails(t *testing.T) {
	identity, _ := newTestIdentity(t)
	server := NewSession(identity)
	peer := newSimulatedPeer(t)

	serverPub, _, err := server.VerifyRound1(peer.ecdh.Raw(), peer.edPub)
	require.NoError(t, err)

	serverKey := cryptoutil.X25519KeyFromRaw(serverPub)
	peerSecret, err := peer.ecdh.DeriveSecret(serverKey)
	require.NoError(t, err)

	key := cryptoutil.DeriveKey16([]byte(pairVerifyKeySalt), peerSecret)
	iv := cryptoutil.DeriveKey16([]byte(pairVerifyIVSalt), peerSecret)
	peerCTR, err := cryptoutil.NewCTR(key, iv)
	require.NoError(t, err)
	peerCTR.Advance(SignatureSize) // burn round-1 keystream

	peerSigMsg := append(append([]byte(nil), peer.ecdh.Raw()...), serverPub...)
	peerSig := cryptoutil.Ed25519Sign(peer.ed, peerSigMsg)
	peerCTR.Advance(SignatureSize)
	encPeerSig := make([]byte, len(peerSig))
	peerCTR.XORKeyStream(encPeerSig, peerSig)

	encPeerSig[0] ^= 0xFF

	require.Error(t, server.VerifyRound2(encPeerSig))
	require.NotEqual(t, StatusFinished, server.Status())
}

func TestPairSetupReturnsPublicKey(t *testing.T) {
	identity, pub := newTestIdentity(t)
	session := NewSession(identity)
	got := session.PairSetup()
	require.Equal(t, []byte(pub), got)
	require.Equal(t, StatusSetup, session.Status())
}
