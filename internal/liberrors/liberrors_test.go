package liberrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	require.Equal(t, "CSeq header missing", ErrCSeqMissing{}.Error())
	require.Equal(t, "unsupported FairPlay version 5", ErrUnsupportedFairPlayVersion{Version: 5}.Error())
	require.Equal(t, "expected body of 68 bytes, got 3", ErrBadBodyLength{Want: 68, Got: 3}.Error())
	require.Equal(t, "signature verification failed", ErrSignatureVerification{}.Error())
	require.Equal(t, "SRP proof mismatch", ErrSRPProofMismatch{}.Error())
	require.Equal(t, "unknown stream type 42", ErrUnknownStreamType{Type: 42}.Error())
	require.Equal(t, "connection is linked to a different session", ErrSessionNotLinked{}.Error())
	require.Equal(t, "no NTP reply within timeout", ErrNTPTimeout{}.Error())
	require.Equal(t, "terminated", ErrTerminated{}.Error())
}

func TestErrTransportUnwraps(t *testing.T) {
	inner := errors.New("connection reset")
	wrapped := ErrTransport{Err: inner}

	require.Contains(t, wrapped.Error(), "connection reset")
	require.True(t, errors.Is(wrapped, inner))
}

func TestErrorsAsDiscriminatesByKind(t *testing.T) {
	var err error = ErrUnsupportedFairPlayVersion{Version: 9}

	var badLen ErrBadBodyLength
	require.False(t, errors.As(err, &badLen))

	var unsupported ErrUnsupportedFairPlayVersion
	require.True(t, errors.As(err, &unsupported))
	require.EqualValues(t, 9, unsupported.Version)
}
