// Package ntpsync implements the timing-port clock-sync exchange AirPlay
// runs over the UDP port advertised in the SETUP response: a 32-byte request
// every 3 seconds, an 8-sample ring buffer of offset/delay/dispersion
// readings, and the weighted-dispersion estimate the audio and mirror RTP
// sessions use to convert between local and remote wall-clock time.
package ntpsync

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/antimof/UxPlay-sub000/internal/liberrors"
	"github.com/antimof/UxPlay-sub000/internal/renderer"
	"github.com/antimof/UxPlay-sub000/pkg/ntpwire"
)

const (
	sampleCount = 8

	// phiPPM, rRho and sRho are the packet/system clock precision and
	// skew-rate constants the timing exchange's dispersion formula uses.
	phiPPM = 15
	rRho   = (uint64(1) << 32) / 1000
	sRho   = (uint64(1) << 32) / 1000

	requestInterval = 3 * time.Second
	readTimeout     = 3 * time.Millisecond
	packetSize      = 32
)

// twoPowN[i] is the divisor applied to the i-th newest sample's dispersion
// when folding the ring buffer into a single weighted estimate: older
// samples count for less.
var twoPowN = [sampleCount]uint64{2, 4, 8, 16, 32, 64, 128, 256}

type sample struct {
	time       uint64 // local time (us since Unix epoch) this sample was taken
	dispersion uint64
	delay      int64
	offset     int64
}

// TimeoutReporter tracks a connection's consecutive-NTP-timeout count.
// session.Connection satisfies this interface without this package
// importing package session, which already imports ntpsync.
type TimeoutReporter interface {
	// NoteNTPTimeout records one missed reply and reports whether the
	// consecutive count has reached max (0 disables the check).
	NoteNTPTimeout(max int) bool
	// ResetNTPTimeouts clears the consecutive count after a reply arrives.
	ResetNTPTimeouts()
}

// Session runs one timing-port exchange against a single AirPlay client.
// Offset/delay/dispersion estimates are safe to read concurrently with the
// background exchange via Offset/Delay/Dispersion.
type Session struct {
	log       zerolog.Logger
	conn      *net.UDPConn
	remote    *net.UDPAddr
	sessionID string
	sink      renderer.Sink

	reporter    TimeoutReporter
	maxTimeouts int

	samples    [sampleCount]sample
	sampleNext int

	// syncMu guards offset/delay/dispersion, written by the background
	// exchange goroutine and read by Offset/Delay/Dispersion from any
	// goroutine.
	syncMu     sync.Mutex
	offset     int64
	delay      int64
	dispersion uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// New binds a local UDP socket (dual-stack per the network family of
// remoteAddr) and returns a Session ready to Start. The bound local port is
// returned so the caller can advertise it in the SETUP response.
//
// reporter is notified of every timeout and every successful exchange so the
// owning connection can track consecutive misses; once that count reaches
// maxTimeouts (0 disables the check), sink.ConnReset is invoked with
// reset_video=true, the client-silence rule spec.md §7 and Scenario E
// describe.
func New(log zerolog.Logger, remoteAddr *net.UDPAddr, sessionID string, sink renderer.Sink, reporter TimeoutReporter, maxTimeouts int) (*Session, int, error) {
	network := "udp4"
	if remoteAddr.IP.To4() == nil {
		network = "udp6"
	}
	conn, err := net.ListenUDP(network, nil)
	if err != nil {
		return nil, 0, err
	}
	s := &Session{
		log:         log.With().Str("component", "ntpsync").Logger(),
		conn:        conn,
		remote:      remoteAddr,
		sessionID:   sessionID,
		sink:        sink,
		reporter:    reporter,
		maxTimeouts: maxTimeouts,
		done:        make(chan struct{}),
	}
	now := nowMicros()
	for i := range s.samples {
		s.samples[i] = sample{
			time:       uint64(now),
			delay:      int64(maxDispersion),
			dispersion: maxDispersion,
		}
	}
	return s, conn.LocalAddr().(*net.UDPAddr).Port, nil
}

const maxDispersion = uint64(16) << 32

// Start launches the background exchange goroutine. Cancel ctx (or call
// Stop) to end it.
func (s *Session) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.run(ctx)
}

// Stop ends the exchange goroutine and closes the UDP socket.
func (s *Session) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
	s.conn.Close()
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(requestInterval)
	defer ticker.Stop()

	// fire the first request immediately rather than waiting a full
	// interval for the initial sample.
	s.exchangeOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.exchangeOnce()
		}
	}
}

func (s *Session) exchangeOnce() {
	req := make([]byte, packetSize)
	req[0] = 0x80
	req[1] = 0xd2
	req[3] = 0x07
	sendTime := nowMicros()
	ntpwire.PutTimestamp(req, 24, uint64(sendTime), true)

	if _, err := s.conn.WriteToUDP(req, s.remote); err != nil {
		s.log.Warn().Err(err).Msg("failed to send NTP request")
		return
	}

	if err := s.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		s.log.Warn().Err(err).Msg("failed to set read deadline")
		return
	}
	resp := make([]byte, 128)
	n, err := s.conn.Read(resp)
	if err != nil {
		s.log.Debug().Err(liberrors.ErrNTPTimeout{}).Msg("NTP round trip timed out")
		s.noteTimeout()
		return
	}
	if n < 32 {
		return
	}

	t3 := nowMicros()
	t0 := int64(ntpwire.ReadTimestamp(resp, 8, true))
	t1 := int64(ntpwire.ReadTimestamp(resp, 16, true))
	t2 := int64(ntpwire.ReadTimestamp(resp, 24, true))

	s.sampleNext = (s.sampleNext + 1) % sampleCount
	s.samples[s.sampleNext] = sample{
		time:       uint64(t3),
		offset:     ((t1 - t0) + (t2 - t3)) / 2,
		delay:      (t3 - t0) - (t2 - t1),
		dispersion: rRho + sRho + uint64(t3-t0)*phiPPM/1000000,
	}

	sorted := s.samples
	sort.Slice(sorted[:], func(i, j int) bool { return sorted[i].delay < sorted[j].delay })

	var dispersion uint64
	for i := 0; i < sampleCount; i++ {
		smp := s.samples[(s.sampleNext-i+sampleCount)%sampleCount]
		disp := smp.dispersion + uint64(t3-int64(smp.time))*phiPPM/1000000
		dispersion += disp / twoPowN[i]
	}

	s.syncMu.Lock()
	s.offset = sorted[0].offset
	s.delay = sorted[sampleCount-1].delay
	s.dispersion = dispersion
	s.syncMu.Unlock()

	if s.reporter != nil {
		s.reporter.ResetNTPTimeouts()
	}
}

// noteTimeout reports a missed reply to reporter and, once the consecutive
// count reaches maxTimeouts, resets the connection the client has gone
// silent on.
func (s *Session) noteTimeout() {
	if s.reporter == nil {
		return
	}
	timeouts := s.maxTimeouts
	if s.reporter.NoteNTPTimeout(s.maxTimeouts) && s.sink != nil {
		s.sink.ConnReset(s.sessionID, timeouts, true)
	}
}

// Offset returns the latest remote-minus-local clock offset, in
// microseconds.
func (s *Session) Offset() int64 {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	return s.offset
}

// Delay returns the latest round-trip delay estimate, in microseconds.
func (s *Session) Delay() int64 {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	return s.delay
}

// Dispersion returns the latest weighted dispersion estimate.
func (s *Session) Dispersion() uint64 {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	return s.dispersion
}

// RemoteTime returns the current remote wall-clock time, in microseconds
// since the Unix epoch, estimated from the local clock and the latest
// offset.
func (s *Session) RemoteTime() uint64 {
	return uint64(nowMicros() + s.Offset())
}

// ToLocalTime converts a point in remote clock time to local clock time.
func (s *Session) ToLocalTime(remoteMicros uint64) uint64 {
	return uint64(int64(remoteMicros) - s.Offset())
}

// ToRemoteTime converts a point in local clock time to remote clock time.
func (s *Session) ToRemoteTime(localMicros uint64) uint64 {
	return uint64(int64(localMicros) + s.Offset())
}

func nowMicros() int64 {
	return time.Now().UnixMicro()
}
