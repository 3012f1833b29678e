// Package liberrors holds the typed errors surfaced by the daemon, the
// dispatcher, the pairing state machine and the RTP sessions, so callers can
// branch on error kind with errors.As instead of string matching.
package liberrors

import "fmt"

// ErrCSeqMissing is returned when a request carries no (or a duplicated) CSeq header.
type ErrCSeqMissing struct{}

func (ErrCSeqMissing) Error() string { return "CSeq header missing" }

// ErrUnsupportedFairPlayVersion is returned when fp-setup names a version other than 3.
type ErrUnsupportedFairPlayVersion struct {
	Version byte
}

func (e ErrUnsupportedFairPlayVersion) Error() string {
	return fmt.Sprintf("unsupported FairPlay version %d", e.Version)
}

// ErrBadBodyLength is returned when a pair-verify/fp-setup body has the wrong size.
type ErrBadBodyLength struct {
	Want, Got int
}

func (e ErrBadBodyLength) Error() string {
	return fmt.Sprintf("expected body of %d bytes, got %d", e.Want, e.Got)
}

// ErrSignatureVerification is returned when an Ed25519 pair-verify signature fails.
type ErrSignatureVerification struct{}

func (ErrSignatureVerification) Error() string { return "signature verification failed" }

// ErrSRPProofMismatch is returned when a client's SRP-6a proof doesn't match.
type ErrSRPProofMismatch struct{}

func (ErrSRPProofMismatch) Error() string { return "SRP proof mismatch" }

// ErrUnknownStreamType is returned when a SETUP streams[] entry carries an
// unrecognized `type` field.
type ErrUnknownStreamType struct {
	Type int
}

func (e ErrUnknownStreamType) Error() string {
	return fmt.Sprintf("unknown stream type %d", e.Type)
}

// ErrSessionNotLinked is returned when a request's session id doesn't match
// the connection's active session.
type ErrSessionNotLinked struct{}

func (ErrSessionNotLinked) Error() string { return "connection is linked to a different session" }

// ErrNTPTimeout is returned when a timing-port exchange doesn't get a reply
// in time; it does not close the connection, only the NTP session.
type ErrNTPTimeout struct{}

func (ErrNTPTimeout) Error() string { return "no NTP reply within timeout" }

// ErrTerminated is returned by a session's run loop once its context has
// been canceled.
type ErrTerminated struct{}

func (ErrTerminated) Error() string { return "terminated" }

// ErrTransport wraps a socket-level error encountered by a session; it is
// handled locally and does not propagate across sessions.
type ErrTransport struct {
	Err error
}

func (e ErrTransport) Error() string { return fmt.Sprintf("transport error: %v", e.Err) }

func (e ErrTransport) Unwrap() error { return e.Err }
