package pairing

import (
	"crypto/sha512"
	"math/big"

	"github.com/antimof/UxPlay-sub000/internal/cryptoutil"
	"github.com/antimof/UxPlay-sub000/internal/liberrors"
)

// SRP-6a sizes, grounded on lib/pairing.c's srp_t layout and lib/srp.c's
// APPLE_VARIANT session key (two concatenated SHA-512 digests).
const (
	SRPSaltSize       = 16
	SRPPrivateKeySize = 32
	SRPSessionKeySize = 2 * sha512.Size
)

// srpN is the 2048-bit RFC 5054 safe prime; srpG is its generator.
var (
	srpN, _ = new(big.Int).SetString(
		"AC6BDB41324A9A9BF166DE5E1389582FAF72B6651987EE07FC3192943DB56050A37329CBB4"+
			"A099ED8193E0757767A13DD52312AB4B03310DCD7F48A9DA04FD50E8083969EDB767B0CF60"+
			"95179A163AB3661A05FBD5FAAAE82918A9962F0B93B855F97993EC975EEAA80D740ADBF4FF"+
			"747359D041D5C33EA71D281E446B14773BCA97B43A23FB801676BD207A436C6481F1D2B907"+
			"8717461A5B9D32E688F87748544523B524B0D57D5EA77A2775D2ECFA032CFBDBF52FB37861"+
			"60279004E57AE6AF874E7303CE53299CCC041C7BC308D82A5698F3A8D0C38271AE35F8E9DB"+
			"FBB694B5C803D89F7AE435DE236D525F54759B65E372FCD68EF20FA7111F9E4AFF73", 16)
	srpG = big.NewInt(2)
	srpK = rfc5054Hash(srpN, srpN, srpG)
)

// rfc5054Hash implements lib/srp.c's H_nn_rfc5054: both operands are
// zero-padded up to len(N) bytes before hashing, so the digest doesn't
// depend on where a leading zero byte happened to fall.
func rfc5054Hash(n, a, b *big.Int) []byte {
	width := (n.BitLen() + 7) / 8
	buf := make([]byte, 2*width)
	a.FillBytes(buf[width-len(a.Bytes()) : width])
	b.FillBytes(buf[2*width-len(b.Bytes()):])
	sum := sha512.Sum512(buf)
	return sum[:]
}

// hashInt hashes the unpadded big-endian bytes of n, matching lib/srp.c's
// hash_num (no RFC 5054 zero-padding).
func hashInt(n *big.Int) []byte {
	sum := sha512.Sum512(n.Bytes())
	return sum[:]
}

// srpSessionKey computes the Apple-variant double-length session key:
// SHA512(S||00000000) || SHA512(S||00000001), per lib/srp.c's
// hash_session_key.
func srpSessionKey(s *big.Int) []byte {
	sBytes := s.Bytes()
	out := make([]byte, 0, SRPSessionKeySize)
	for _, counter := range [2]byte{0, 1} {
		h := sha512.New()
		h.Write(sBytes)                           //nolint:errcheck
		h.Write([]byte{0, 0, 0, counter})          //nolint:errcheck
		out = h.Sum(out)
	}
	return out
}

// SRPServerState is the server side of one SRP-6a pair-setup-with-PIN
// exchange, grounded on lib/pairing.c's srp_t plus lib/srp.c's
// srp_verifier_new/srp_verifier_verify_session (APPLE_VARIANT, RFC 5054
// compatible k/u derivation).
type SRPServerState struct {
	username   string
	salt       []byte
	verifier   *big.Int
	privateKey *big.Int // "b"

	serverPub  *big.Int // "B"
	clientPub  *big.Int // "A"
	expectedM  []byte
	sessionKey []byte

	authenticated bool
}

// NewSRPServerState starts a pair-setup-pin exchange: it salts and verifies
// the PIN the way lib/srp.c's srp_create_salted_verification_key does, then
// derives the server's ephemeral public key B.
func NewSRPServerState(deviceID, pin string) (*SRPServerState, error) {
	salt, err := cryptoutil.RandomBytes(SRPSaltSize)
	if err != nil {
		return nil, err
	}
	privBytes, err := cryptoutil.RandomBytes(SRPPrivateKeySize)
	if err != nil {
		return nil, err
	}

	x := calculateX(salt, deviceID, []byte(pin))
	v := new(big.Int).Exp(srpG, x, srpN)
	b := new(big.Int).SetBytes(privBytes)

	// B = (k*v + g^b) mod N
	kv := new(big.Int).Mul(new(big.Int).SetBytes(srpK), v)
	gb := new(big.Int).Exp(srpG, b, srpN)
	B := new(big.Int).Mod(new(big.Int).Add(kv, gb), srpN)

	return &SRPServerState{
		username:   deviceID,
		salt:       salt,
		verifier:   v,
		privateKey: b,
		serverPub:  B,
	}, nil
}

// calculateX computes x = H(salt || H(username:password)), per lib/srp.c's
// calculate_x.
func calculateX(salt []byte, username string, password []byte) *big.Int {
	inner := sha512.New()
	inner.Write([]byte(username)) //nolint:errcheck
	inner.Write([]byte(":"))      //nolint:errcheck
	inner.Write(password)         //nolint:errcheck
	ucpHash := inner.Sum(nil)

	outer := sha512.New()
	outer.Write(salt)  //nolint:errcheck
	outer.Write(ucpHash) //nolint:errcheck
	return new(big.Int).SetBytes(outer.Sum(nil))
}

// Salt returns the 16-byte salt to send back in the pair-setup-pin response.
func (s *SRPServerState) Salt() []byte { return s.salt }

// Authenticated reports whether ValidateProof has already succeeded.
func (s *SRPServerState) Authenticated() bool { return s.authenticated }

// ServerPublicKey returns B, padded to the 256-byte width of N.
func (s *SRPServerState) ServerPublicKey() []byte {
	return padTo(s.serverPub, 256)
}

// ValidateProof consumes the client's public key A and its proof M1,
// computes the shared session key, and returns the server's counter-proof
// M2 on success. It mirrors lib/pairing.c's srp_validate_proof +
// lib/srp.c's srp_verifier_new/srp_verifier_verify_session.
func (s *SRPServerState) ValidateProof(clientPubA, clientProofM1 []byte) (proofM2 []byte, err error) {
	A := new(big.Int).SetBytes(clientPubA)
	if new(big.Int).Mod(A, srpN).Sign() == 0 {
		return nil, liberrors.ErrSRPProofMismatch{}
	}
	s.clientPub = A

	u := new(big.Int).SetBytes(rfc5054Hash(srpN, A, s.serverPub))

	// S = (A * v^u) ^ b mod N
	vu := new(big.Int).Exp(s.verifier, u, srpN)
	avu := new(big.Int).Mod(new(big.Int).Mul(A, vu), srpN)
	S := new(big.Int).Exp(avu, s.privateKey, srpN)

	sessionKey := srpSessionKey(S)
	expectedM := calculateM(s.username, s.salt, A, s.serverPub, sessionKey)

	if !constantTimeEqual(expectedM, clientProofM1) {
		return nil, liberrors.ErrSRPProofMismatch{}
	}

	s.sessionKey = sessionKey
	s.authenticated = true
	return calculateHAMK(A, expectedM, sessionKey), nil
}

// calculateM computes the client's expected proof, per lib/srp.c's calculate_M.
func calculateM(username string, salt []byte, A, B *big.Int, sessionKey []byte) []byte {
	hN := hashInt(srpN)
	hG := hashInt(srpG)
	hXor := make([]byte, len(hN))
	for i := range hN {
		hXor[i] = hN[i] ^ hG[i]
	}
	hI := sha512.Sum512([]byte(username))

	h := sha512.New()
	h.Write(hXor)          //nolint:errcheck
	h.Write(hI[:])         //nolint:errcheck
	h.Write(salt)          //nolint:errcheck
	h.Write(A.Bytes())     //nolint:errcheck
	h.Write(B.Bytes())     //nolint:errcheck
	h.Write(sessionKey)    //nolint:errcheck
	return h.Sum(nil)
}

// calculateHAMK computes H(A || M || K), per lib/srp.c's calculate_H_AMK.
func calculateHAMK(A *big.Int, m, sessionKey []byte) []byte {
	h := sha512.New()
	h.Write(A.Bytes()) //nolint:errcheck
	h.Write(m)          //nolint:errcheck
	h.Write(sessionKey) //nolint:errcheck
	return h.Sum(nil)
}

func padTo(n *big.Int, width int) []byte {
	buf := make([]byte, width)
	n.FillBytes(buf)
	return buf
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}

// pairSetupAESKeySalt/IVSalt derive the GCM key/IV that wrap the client's
// and server's Ed25519 public keys at the end of a PIN pair-setup, per
// lib/pairing.c's srp_confirm_pair_setup.
const (
	pairSetupKeySalt = "Pair-Setup-AES-Key"
	pairSetupIVSalt  = "Pair-Setup-AES-IV"
)

// ConfirmPairSetup decrypts the client's GCM-wrapped Ed25519 public key
// (authenticated against authTag) using the SRP session key, then
// re-encrypts the server's own public key under the same key with the IV
// bumped by one, matching lib/pairing.c's undocumented double-increment.
func (s *SRPServerState) ConfirmPairSetup(serverPub, encClientPub, authTag []byte) (clientPub, encServerPub []byte, err error) {
	if !s.authenticated {
		return nil, nil, liberrors.ErrSRPProofMismatch{}
	}

	keyHash := sha512.Sum512(append([]byte(pairSetupKeySalt), s.sessionKey...))
	ivHash := sha512.Sum512(append([]byte(pairSetupIVSalt), s.sessionKey...))
	aesKey := keyHash[:16]
	aesIV := append([]byte(nil), ivHash[:16]...)
	aesIV[15]++

	clientPub, err = cryptoutil.GCMOpen(aesKey, aesIV, append(append([]byte(nil), encClientPub...), authTag...), nil)
	if err != nil {
		return nil, nil, err
	}

	aesIV[15]++
	sealed, err := cryptoutil.GCMSeal(aesKey, aesIV, serverPub, nil)
	if err != nil {
		return nil, nil, err
	}
	return clientPub, sealed, nil
}
