// Package pairing implements the AirPlay legacy-pairing state machine:
// pair-setup (record that setup occurred, publish our Ed25519 public key)
// and the two-round pair-verify ECDH handshake, plus (optionally) SRP-6a
// pair-setup with a PIN. Grounded on UxPlay's lib/pairing.c, byte for byte
// on the key-derivation and AES-CTR "fake round" quirk.
package pairing

import (
	"crypto/ed25519"

	"github.com/antimof/UxPlay-sub000/internal/cryptoutil"
	"github.com/antimof/UxPlay-sub000/internal/liberrors"
)

// Status is the pairing session's state.
type Status int

// Session states, in transition order.
const (
	StatusInitial Status = iota
	StatusSetup
	StatusHandshake
	StatusFinished
)

const (
	pairVerifyKeySalt = "Pair-Verify-AES-Key"
	pairVerifyIVSalt  = "Pair-Verify-AES-IV"

	// SignatureSize is the size of an Ed25519 signature.
	SignatureSize = ed25519.SignatureSize
)

// Identity is the server's long-term Ed25519 key pair, shared by every
// Session derived from it.
type Identity struct {
	priv ed25519.PrivateKey
}

// NewIdentity wraps a long-term Ed25519 private key.
func NewIdentity(priv ed25519.PrivateKey) *Identity {
	return &Identity{priv: priv}
}

// PublicKey returns the server's 32-byte Ed25519 public key.
func (id *Identity) PublicKey() []byte {
	return []byte(id.priv.Public().(ed25519.PublicKey))
}

// Session is a single connection's pairing state.
type Session struct {
	identity *Identity
	status   Status

	ecdhOurs   *cryptoutil.X25519Key
	ecdhTheirs *cryptoutil.X25519Key
	ecdhSecret []byte

	edTheirs ed25519.PublicKey

	// ctrState carries the AES-CTR keystream across pair-verify's two
	// rounds so round 2 can "replay" the fake 64-byte advance before
	// decrypting the real signature, per lib/pairing.c.
	ctrState *cryptoutil.CTRCipher

	SRP *SRPServerState
}

// NewSession allocates a pairing session bound to the server's identity.
func NewSession(identity *Identity) *Session {
	return &Session{identity: identity, status: StatusInitial}
}

// Status returns the session's current state.
func (s *Session) Status() Status {
	return s.status
}

// PairSetup handles `POST /pair-setup`: records that setup occurred and
// returns our Ed25519 public key.
func (s *Session) PairSetup() []byte {
	s.status = StatusSetup
	return s.identity.PublicKey()
}

// StartSRPPairing begins a pair-setup-pin exchange: it salts and verifies
// pin under deviceID and returns (salt, server public key B) for the
// pair-pin-start response.
func (s *Session) StartSRPPairing(deviceID, pin string) (salt, serverPub []byte, err error) {
	s.SRP, err = NewSRPServerState(deviceID, pin)
	if err != nil {
		return nil, nil, err
	}
	return s.SRP.Salt(), s.SRP.ServerPublicKey(), nil
}

// FinishSRPPairing validates the client's SRP proof and, on success,
// finishes pair-setup by exchanging Ed25519 public keys under the SRP
// session key (lib/pairing.c's srp_confirm_pair_setup).
func (s *Session) FinishSRPPairing(clientPubA, clientProofM1, encClientEd25519Pub, authTag []byte) (proofM2, encServerEd25519Pub []byte, err error) {
	if s.SRP == nil {
		return nil, nil, liberrors.ErrSRPProofMismatch{}
	}

	proofM2, err = s.SRP.ValidateProof(clientPubA, clientProofM1)
	if err != nil {
		return nil, nil, err
	}

	clientPub, encServerPub, err := s.SRP.ConfirmPairSetup(s.identity.PublicKey(), encClientEd25519Pub, authTag)
	if err != nil {
		return nil, nil, err
	}
	s.edTheirs = clientPub
	s.status = StatusSetup
	s.SRP = nil
	return proofM2, encServerPub, nil
}

// SharedSecret returns the 32-byte ECDH secret once pair-verify has reached
// at least STATUS_HANDSHAKE (UxPlay allows callers to read it from
// HANDSHAKE onward, not only once FINISHED, since SETUP's stream-key
// derivation only needs a completed key exchange).
func (s *Session) SharedSecret() ([]byte, bool) {
	if s.status < StatusHandshake {
		return nil, false
	}
	return s.ecdhSecret, true
}

// VerifyRound1 handles pair-verify round 1: given the peer's ephemeral
// X25519 public key and long-term Ed25519 public key, it generates our own
// ephemeral X25519 key pair, derives the shared secret, and returns
// (our ECDH public key, AES-CTR-encrypted signature over
// our_ecdh_pub||their_ecdh_pub).
func (s *Session) VerifyRound1(peerECDHPub, peerEdPub []byte) (ourECDHPub, encSignature []byte, err error) {
	s.ecdhTheirs = cryptoutil.X25519KeyFromRaw(peerECDHPub)
	s.edTheirs = append(ed25519.PublicKey(nil), peerEdPub...)

	s.ecdhOurs, err = cryptoutil.GenerateX25519Key()
	if err != nil {
		return nil, nil, err
	}

	s.ecdhSecret, err = s.ecdhOurs.DeriveSecret(s.ecdhTheirs)
	if err != nil {
		return nil, nil, err
	}

	s.status = StatusHandshake

	sigMsg := append(append([]byte(nil), s.ecdhOurs.Raw()...), s.ecdhTheirs.Raw()...)
	signature := cryptoutil.Ed25519Sign(s.identity.priv, sigMsg)

	key := cryptoutil.DeriveKey16([]byte(pairVerifyKeySalt), s.ecdhSecret)
	iv := cryptoutil.DeriveKey16([]byte(pairVerifyIVSalt), s.ecdhSecret)
	s.ctrState, err = cryptoutil.NewCTR(key, iv)
	if err != nil {
		return nil, nil, err
	}

	enc := make([]byte, len(signature))
	s.ctrState.XORKeyStream(enc, signature)

	return s.ecdhOurs.Raw(), enc, nil
}

// VerifyRound2 handles pair-verify round 2: decrypts the peer's encrypted
// signature (continuing the CTR keystream from round 1, first burning one
// fake 64-byte block as the reference implementation does) and verifies it
// against their_ecdh_pub||our_ecdh_pub under the peer's Ed25519 key. On
// success the session becomes FINISHED.
func (s *Session) VerifyRound2(encSignature []byte) error {
	if s.status != StatusHandshake || s.ctrState == nil {
		return liberrors.ErrSignatureVerification{}
	}

	s.ctrState.Advance(SignatureSize)

	signature := make([]byte, len(encSignature))
	s.ctrState.XORKeyStream(signature, encSignature)

	sigMsg := append(append([]byte(nil), s.ecdhTheirs.Raw()...), s.ecdhOurs.Raw()...)
	if !cryptoutil.Ed25519Verify(s.edTheirs, sigMsg, signature) {
		return liberrors.ErrSignatureVerification{}
	}

	s.status = StatusFinished
	return nil
}
