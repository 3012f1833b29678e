package rtsp

import (
	"crypto/ed25519"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/antimof/UxPlay-sub000/internal/config"
	"github.com/antimof/UxPlay-sub000/internal/pairing"
	"github.com/antimof/UxPlay-sub000/internal/renderer"
	"github.com/antimof/UxPlay-sub000/internal/session"
	"github.com/antimof/UxPlay-sub000/pkg/base"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	identity := pairing.NewIdentity(priv)

	cfg, err := config.New(config.WithDeviceID("AA:BB:CC:DD:EE:FF"))
	require.NoError(t, err)

	return New(zerolog.Nop(), cfg, identity, session.NewArena(), renderer.NoopSink{}, 7000)
}

func TestHandleOptionsListsMethods(t *testing.T) {
	d := newTestDispatcher(t)
	res := d.handleOptions()
	require.Equal(t, base.StatusOK, res.StatusCode)
	require.Contains(t, res.Header.Get("Public"), "SETUP")
	require.Contains(t, res.Header.Get("Public"), "GET_PARAMETER")
}

func TestHandleHonorsCSeqAndServerHeader(t *testing.T) {
	d := newTestDispatcher(t)
	req := &base.Request{
		Method:   base.MethodOptions,
		URL:      "*",
		Protocol: base.ProtoRTSP10,
		Header:   base.Header{"CSeq": base.HeaderValue{"7"}},
	}
	res, action := d.Handle(nil, req)
	require.Equal(t, ActionNone, action)
	require.Equal(t, "7", res.Header.Get("CSeq"))
	require.Equal(t, serverHeader, res.Header.Get("Server"))
}

func TestHandleGetParameterVolume(t *testing.T) {
	d := newTestDispatcher(t)
	req := &base.Request{Body: []byte("volume")}
	res := d.handleGetParameter(req)
	require.Equal(t, base.StatusOK, res.StatusCode)
	require.Equal(t, "volume: 0.0\r\n", string(res.Body))
	require.Equal(t, "text/parameters", res.Header.Get("Content-Type"))
}

func TestHandleGetParameterUnknown(t *testing.T) {
	d := newTestDispatcher(t)
	req := &base.Request{Body: []byte("bogus")}
	res := d.handleGetParameter(req)
	require.Equal(t, base.StatusOK, res.StatusCode)
	require.Empty(t, res.Body)
}

func TestHandleRecordReportsLatencyAndJackStatus(t *testing.T) {
	d := newTestDispatcher(t)
	res := d.handleRecord()
	require.Equal(t, "11025", res.Header.Get("Audio-Latency"))
	require.Contains(t, res.Header.Get("Audio-Jack-Status"), "connected")
}

func TestHandleSetPropertyKnownName(t *testing.T) {
	d := newTestDispatcher(t)
	res := d.handleSetProperty("actionAtItemEnd")
	require.Equal(t, base.StatusOK, res.StatusCode)
	require.Contains(t, res.Header.Get("Content-Type"), "x-apple-plist+xml")
	require.NotEmpty(t, res.Body)
}

func TestHandleSetPropertyUnknownName(t *testing.T) {
	d := newTestDispatcher(t)
	res := d.handleSetProperty("somethingElse")
	require.Equal(t, base.StatusOK, res.StatusCode)
	require.Empty(t, res.Body)
}

func TestParseFlushSeq(t *testing.T) {
	seq, ok := parseFlushSeq("seq=12345")
	require.True(t, ok)
	require.EqualValues(t, 12345, seq)

	_, ok = parseFlushSeq("rtptime=99")
	require.False(t, ok)

	_, ok = parseFlushSeq("")
	require.False(t, ok)
}

func TestQueryFloat(t *testing.T) {
	v, ok := queryFloat("position=12.5&foo=bar", "position")
	require.True(t, ok)
	require.InDelta(t, 12.5, v, 0.0001)

	_, ok = queryFloat("foo=bar", "position")
	require.False(t, ok)
}

func TestApplyTextParametersIgnoresConnectionWithoutAudioSession(t *testing.T) {
	d := newTestDispatcher(t)
	conn := &session.Connection{}

	// conn.Audio is nil until SETUP has completed; applyTextParameters
	// must not panic when a SET_PARAMETER arrives before then.
	require.NotPanics(t, func() {
		d.applyTextParameters(conn, []byte("volume: -15.0\r\nprogress: 0/500/1000\r\n"))
	})
}

func TestApplyTextParametersSkipsMalformedLines(t *testing.T) {
	d := newTestDispatcher(t)
	conn := &session.Connection{}

	require.NotPanics(t, func() {
		d.applyTextParameters(conn, []byte("volume: not-a-number\r\nprogress: bad\r\nunknownKey: 1\r\n"))
	})
}
