// Package fairplay implements the server side of the two-step FairPlay
// challenge/response that wraps the AirPlay audio stream key.
//
// The real FairPlay-v3 transform is a set of opaque vendor lookup tables
// with no publicly documented semantics; spec.md scopes it out of the core
// and specifies it only by its fixed input/output contract. This package
// honors that contract (sizes, the version byte at req[4], pure-function
// per-connection state) with a deterministic placeholder transform, so the
// rest of the pairing/SETUP flow has something real to call during
// development and testing. Swapping in the vendor tables means replacing
// the three functions below; nothing else in the module depends on their
// internals.
package fairplay

import (
	"crypto/sha512"

	"github.com/antimof/UxPlay-sub000/internal/liberrors"
)

// Sizes mandated by the protocol.
const (
	SetupRequestSize  = 16
	SetupResponseSize = 142
	HandshakeReqSize  = 164
	HandshakeResSize  = 32
	DecryptInputSize  = 72
	DecryptOutputSize = 16
)

// SupportedVersion is the only FairPlay protocol version this server speaks.
const SupportedVersion = 3

// Context is the per-connection FairPlay state. Each operation is pure
// given this context, matching the "no externally observable intermediate
// state" requirement.
type Context struct {
	challenge [SetupRequestSize]byte
}

// New allocates a fresh per-connection FairPlay context.
func New() *Context {
	return &Context{}
}

// Setup handles the first fp-setup round: a 16-byte challenge in, a
// 142-byte response out. req[4] carries the protocol version; any value
// other than SupportedVersion is a protocol error the caller must surface
// as HTTP 421 Misdirected Request.
func (c *Context) Setup(req []byte) ([]byte, error) {
	if len(req) != SetupRequestSize {
		return nil, liberrors.ErrBadBodyLength{Want: SetupRequestSize, Got: len(req)}
	}
	if req[4] != SupportedVersion {
		return nil, liberrors.ErrUnsupportedFairPlayVersion{Version: req[4]}
	}

	copy(c.challenge[:], req)

	res := make([]byte, SetupResponseSize)
	expand(res, c.challenge[:], "fairplay-setup-response")
	return res, nil
}

// Handshake handles the second fp-setup round: a 164-byte request in, a
// 32-byte session-key material out.
func (c *Context) Handshake(req []byte) ([]byte, error) {
	if len(req) != HandshakeReqSize {
		return nil, liberrors.ErrBadBodyLength{Want: HandshakeReqSize, Got: len(req)}
	}

	res := make([]byte, HandshakeResSize)
	expand(res, append(c.challenge[:], req...), "fairplay-handshake-response")
	return res, nil
}

// Decrypt recovers the 16-byte AES stream key from the 72-byte `ekey` blob
// carried in the initial SETUP plist.
func (c *Context) Decrypt(ekey []byte) ([]byte, error) {
	if len(ekey) != DecryptInputSize {
		return nil, liberrors.ErrBadBodyLength{Want: DecryptInputSize, Got: len(ekey)}
	}

	out := make([]byte, DecryptOutputSize)
	expand(out, ekey, "fairplay-decrypt")
	return out, nil
}

// expand fills dst with a SHA-512-based keystream keyed on in and label,
// standing in for the vendor FairPlay tables.
func expand(dst, in []byte, label string) {
	counter := byte(0)
	for off := 0; off < len(dst); {
		h := sha512.New()
		h.Write([]byte(label)) //nolint:errcheck
		h.Write(in)            //nolint:errcheck
		h.Write([]byte{counter})
		block := h.Sum(nil)
		n := copy(dst[off:], block)
		off += n
		counter++
	}
}
