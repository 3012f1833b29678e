package rtsp

import (
	"github.com/antimof/UxPlay-sub000/internal/fairplay"
	"github.com/antimof/UxPlay-sub000/internal/liberrors"
	"github.com/antimof/UxPlay-sub000/internal/pairing"
	"github.com/antimof/UxPlay-sub000/internal/session"
	"github.com/antimof/UxPlay-sub000/pkg/base"
)

// octetResponse wraps body as a 200 OK with the plain-binary content type
// pair-setup/pair-verify/fp-setup all use, as distinct from SETUP's plist
// content type.
func octetResponse(body []byte) *base.Response {
	res := &base.Response{
		StatusCode: base.StatusOK,
		Header:     make(base.Header),
		Body:       body,
	}
	res.Header.Set("Content-Type", "application/octet-stream")
	return res
}

// handlePairSetup answers POST /pair-setup: lazily starts the connection's
// pairing session and returns our Ed25519 public key.
func (d *Dispatcher) handlePairSetup(conn *session.Connection) *base.Response {
	if conn.Pairing == nil {
		conn.Pairing = pairing.NewSession(d.identity)
	}
	return octetResponse(conn.Pairing.PairSetup())
}

// handlePairVerify answers POST /pair-verify's two rounds, dispatched on the
// leading byte of the body: 1 for round 1 (68-byte body: 4-byte pad, 32-byte
// ECDH public key, 32-byte Ed25519 public key), 0 for round 2 (68-byte body:
// 4-byte pad, 64-byte encrypted signature).
func (d *Dispatcher) handlePairVerify(conn *session.Connection, req *base.Request) *base.Response {
	if conn.Pairing == nil {
		conn.Pairing = pairing.NewSession(d.identity)
	}
	body := req.Body
	if len(body) != 68 {
		return &base.Response{StatusCode: base.StatusBadRequest}
	}

	switch body[0] {
	case 1:
		ourPub, encSig, err := conn.Pairing.VerifyRound1(body[4:36], body[36:68])
		if err != nil {
			d.log.Warn().Err(err).Msg("pair-verify round 1 failed")
			return base.CloseConn(&base.Response{StatusCode: base.StatusBadRequest})
		}
		return octetResponse(append(ourPub, encSig...))

	case 0:
		if err := conn.Pairing.VerifyRound2(body[4:68]); err != nil {
			d.log.Warn().Err(err).Msg("pair-verify round 2 failed")
			return base.CloseConn(&base.Response{StatusCode: base.StatusBadRequest})
		}
		if secret, ok := conn.Pairing.SharedSecret(); ok {
			conn.SetECDHSecret(secret)
		}
		return octetResponse(nil)

	default:
		return base.CloseConn(&base.Response{StatusCode: base.StatusBadRequest})
	}
}

// handleFPSetup answers POST /fp-setup, dispatched purely on body length:
// 16 bytes is the challenge round, 164 bytes is the handshake round.
func (d *Dispatcher) handleFPSetup(conn *session.Connection, req *base.Request) *base.Response {
	if conn.FairPlay == nil {
		conn.FairPlay = fairplay.New()
	}

	switch len(req.Body) {
	case fairplay.SetupRequestSize:
		res, err := conn.FairPlay.Setup(req.Body)
		if err != nil {
			if _, ok := err.(liberrors.ErrUnsupportedFairPlayVersion); ok {
				return &base.Response{StatusCode: base.StatusMisdirectedRequest}
			}
			return &base.Response{StatusCode: base.StatusBadRequest}
		}
		return octetResponse(res)

	case fairplay.HandshakeReqSize:
		res, err := conn.FairPlay.Handshake(req.Body)
		if err != nil {
			return &base.Response{StatusCode: base.StatusBadRequest}
		}
		return octetResponse(res)

	default:
		return &base.Response{StatusCode: base.StatusBadRequest}
	}
}

// handlePairPinStart answers POST /pair-pin-start: the SRP-6a
// pair-setup-with-PIN exchange's first round, gated on a configured PIN (see
// DESIGN.md's "Pair-setup-with-PIN route names" entry for why these two
// route names aren't grounded in a retained original_source file).
func (d *Dispatcher) handlePairPinStart(conn *session.Connection, req *base.Request) *base.Response {
	if d.cfg.PIN == "" {
		return &base.Response{StatusCode: base.StatusNotImplemented}
	}
	if conn.Pairing == nil {
		conn.Pairing = pairing.NewSession(d.identity)
	}

	salt, serverPub, err := conn.Pairing.StartSRPPairing(d.cfg.DeviceID, d.cfg.PIN)
	if err != nil {
		d.log.Warn().Err(err).Msg("pair-pin-start failed")
		return &base.Response{StatusCode: base.StatusInternalServerError}
	}

	body, err := buildSRPPlist(salt, serverPub)
	if err != nil {
		return &base.Response{StatusCode: base.StatusInternalServerError}
	}
	return base.NewPlistResponse(body)
}

// handlePairPinConfirm answers POST /pair-pin-confirm: the SRP-6a exchange's
// second round, carrying the client's public key and proof plus its
// encrypted long-term Ed25519 public key.
func (d *Dispatcher) handlePairPinConfirm(conn *session.Connection, req *base.Request) *base.Response {
	if d.cfg.PIN == "" || conn.Pairing == nil || conn.Pairing.SRP == nil {
		return &base.Response{StatusCode: base.StatusBadRequest}
	}

	clientPubA, clientProofM1, encClientEdPub, authTag, err := parseSRPConfirmPlist(req.Body)
	if err != nil {
		return &base.Response{StatusCode: base.StatusBadRequest}
	}

	proofM2, encServerEdPub, err := conn.Pairing.FinishSRPPairing(clientPubA, clientProofM1, encClientEdPub, authTag)
	if err != nil {
		d.log.Warn().Err(err).Msg("pair-pin-confirm failed")
		return base.CloseConn(&base.Response{StatusCode: base.StatusBadRequest})
	}
	if secret, ok := conn.Pairing.SharedSecret(); ok {
		conn.SetECDHSecret(secret)
	}

	body, err := buildSRPConfirmResponsePlist(proofM2, encServerEdPub)
	if err != nil {
		return &base.Response{StatusCode: base.StatusInternalServerError}
	}
	return base.NewPlistResponse(body)
}
