package session

import (
	"net"
	"strconv"
	"sync"

	"github.com/antimof/UxPlay-sub000/internal/audiortp"
	"github.com/antimof/UxPlay-sub000/internal/fairplay"
	"github.com/antimof/UxPlay-sub000/internal/mirrorrtp"
	"github.com/antimof/UxPlay-sub000/internal/ntpsync"
	"github.com/antimof/UxPlay-sub000/internal/pairing"
	"github.com/antimof/UxPlay-sub000/internal/renderer"
)

// Connection is one accepted TCP socket and everything hung off it: the
// pairing state machine, the FairPlay context, and whichever of the NTP,
// audio and mirror subsessions the RTSP dispatcher has created. The HLS
// controller is deliberately not here: it is owned by the dispatcher at
// server scope, since the client's "push" (PTTH) socket and the socket
// that carries POST /play and POST /action are two different
// Connections, both referencing the same one active-playback state
// (grounded on raop_conn_t.raop->airplay_video in
// original_source/lib/http_handlers.h, a field hung off the shared server
// struct rather than the per-connection one).
// Invariant: Audio and Mirror, if both present, were derived from the same
// ECDH secret (spec.md §3 "Connection" invariant).
type Connection struct {
	Handle Handle

	NetConn    net.Conn
	LocalAddr  net.Addr
	RemoteAddr net.Addr

	Class Class

	// Sink is the renderer the subsessions created on this connection
	// drive, and the target of the connection-lifecycle callbacks
	// (ConnInit/ConnDestroy/ConnReset/ConnTeardown) spec.md §6 names.
	Sink renderer.Sink

	Pairing  *pairing.Session
	FairPlay *fairplay.Context

	NTP    *ntpsync.Session
	Audio  *audiortp.Session
	Mirror *mirrorrtp.Session

	// mu guards the side-effect flag bag below, written by RTSP handlers
	// running on the daemon's goroutine and read by this connection's own
	// goroutine, per spec.md §5 "Shared resources."
	mu             sync.Mutex
	ntpTimeouts    int
	streamConnID   uint64
	ecdhSecret     []byte
	audioKey       []byte
	audioIV        []byte
	audioCtrlPort  int
	audioDataPort  int

	closed bool
}

// NewConnection wraps an accepted net.Conn with fresh, empty per-connection
// state; subsessions are created lazily by the RTSP dispatcher as the
// handshake and SETUP sequence progresses. sink may be nil in tests that
// never exercise the lifecycle callbacks.
func NewConnection(nconn net.Conn, sink renderer.Sink) *Connection {
	return &Connection{
		NetConn:    nconn,
		LocalAddr:  nconn.LocalAddr(),
		RemoteAddr: nconn.RemoteAddr(),
		Class:      ClassUnknown,
		Sink:       sink,
	}
}

// ID renders the connection's arena handle as the stable string identifier
// passed to every renderer.Sink callback.
func (c *Connection) ID() string {
	return strconv.Itoa(c.Handle.Index) + "-" + strconv.Itoa(c.Handle.Generation)
}

// SetECDHSecret records the pairing session's shared secret, available
// once pair-verify has finished.
func (c *Connection) SetECDHSecret(secret []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ecdhSecret = secret
}

// ECDHSecret returns the stored shared secret, or nil if pairing hasn't
// finished yet.
func (c *Connection) ECDHSecret() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ecdhSecret
}

// SetStreamKeys records the FairPlay-decrypted audio key and IV from the
// initial SETUP, used to derive both the audio and (later) mirror stream
// keys.
func (c *Connection) SetStreamKeys(key, iv []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audioKey = key
	c.audioIV = iv
}

// StreamKeys returns the stored audio key and IV.
func (c *Connection) StreamKeys() (key, iv []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audioKey, c.audioIV
}

// SetAudioPorts records the audio session's bound control/data ports, read
// back by the SETUP streams-array phase's type-96 entry.
func (c *Connection) SetAudioPorts(control, data int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audioCtrlPort = control
	c.audioDataPort = data
}

// AudioPorts returns the stored audio control/data ports.
func (c *Connection) AudioPorts() (control, data int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audioCtrlPort, c.audioDataPort
}

// SetStreamConnectionID records the streamConnectionID a mirroring
// SETUP entry carries, used in the mirror key/IV derivation.
func (c *Connection) SetStreamConnectionID(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streamConnID = id
}

// StreamConnectionID returns the stored streamConnectionID.
func (c *Connection) StreamConnectionID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamConnID
}

// NoteNTPTimeout increments the consecutive-timeout counter and reports
// whether it has now reached max (0 disables the check), the condition
// that triggers conn_reset per spec.md §7.
func (c *Connection) NoteNTPTimeout(max int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ntpTimeouts++
	return max > 0 && c.ntpTimeouts >= max
}

// ResetNTPTimeouts clears the consecutive-timeout counter after a
// successful exchange.
func (c *Connection) ResetNTPTimeouts() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ntpTimeouts = 0
}

// Teardown stops every live subsession and, if a Sink is attached, reports
// the teardown and flushes the mirror renderer, the way raop.c's conn_destroy
// calls callbacks.video_flush once its own subsessions are gone. Safe to call
// more than once.
func (c *Connection) Teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	ntp, audio, mirror := c.NTP, c.Audio, c.Mirror
	c.mu.Unlock()

	if c.Sink != nil {
		c.Sink.ConnTeardown(c.ID(), audio != nil, mirror != nil)
	}

	if ntp != nil {
		ntp.Stop()
	}
	if audio != nil {
		audio.Stop()
	}
	if mirror != nil {
		mirror.Stop()
	}

	if c.Sink != nil {
		c.Sink.VideoFlush(c.ID())
	}

	c.NetConn.Close()
}
