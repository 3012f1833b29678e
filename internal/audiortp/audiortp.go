// Package audiortp implements one AirPlay audio RTP session: a pair of UDP
// sockets (control + data), the 32-slot reorder/decrypt pipeline grounded on
// UxPlay's raop_buffer.c, and the rtp-to-wallclock sync grounded on
// raop_rtp.c's rtp64_time/raop_rtp_sync_clock. Side effects requested by the
// RTSP dispatcher (volume, flush, metadata, cover art, DACP identity,
// progress) cross into the session's own goroutine through a buffered
// Command channel instead of mutex-guarded flags, the idiomatic Go
// replacement for raop_rtp.c's thread-plus-mutex side-channel fields.
package audiortp

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/antimof/UxPlay-sub000/internal/cryptoutil"
	"github.com/antimof/UxPlay-sub000/internal/ntpsync"
	"github.com/antimof/UxPlay-sub000/internal/renderer"
	"github.com/antimof/UxPlay-sub000/pkg/bytesutil"
	"github.com/antimof/UxPlay-sub000/pkg/reorderer"
)

// Compression types named in spec.md §4.7's initial-latency table.
const (
	CompressionALAC   = 2
	CompressionAACELD = 8
)

const (
	delayALAC = 2000000 // microseconds, empirical per raop_rtp.c
	delayAAC  = 500000

	controlPacketMinLen = 20
	dataPacketMinLen    = 12
	loopInterval        = 5 * time.Millisecond
)

// CommandKind tags the side effect carried by a Command.
type CommandKind int

const (
	CmdSetVolume CommandKind = iota
	CmdSetMetadata
	CmdSetCoverArt
	CmdSetProgress
	CmdSetRemoteControlID
	CmdFlush
)

// Command is one side-effect request queued from the RTSP dispatcher's
// goroutine onto the session's own loop.
type Command struct {
	Kind CommandKind

	Volume float64

	DMAP []byte

	CoverArtMIME string
	CoverArtData []byte

	ProgressStart, ProgressCurrent, ProgressEnd uint32

	DACPID, ActiveRemote string

	FlushSeq uint16
}

// Session is one active audio RTP stream.
type Session struct {
	log       zerolog.Logger
	sessionID string
	sink      renderer.Sink
	ntp       *ntpsync.Session

	controlConn *net.UDPConn
	dataConn    *net.UDPConn
	remoteCtrl  *net.UDPAddr

	aesKey, aesIV []byte

	compressionType int
	format          renderer.AudioFormat

	reorder *reorderer.Reorderer

	rtpClockStarted bool
	rtpTime         uint64
	rtpStartTime    uint64

	ntpStartTime uint64

	rtpSyncOffset int64
	haveSynced    bool

	// initial-latency-estimate bookkeeping, used only until the first
	// 0x54 time-sync control packet arrives.
	rtpCount          int
	offsetEstimateSum float64
	offsetEstimateN   int
	lastSeq1, lastSeq2 uint16

	cmd    chan Command
	cancel context.CancelFunc
	done   chan struct{}
}

// New opens the control and data UDP sockets and returns the session along
// with the two local ports (control, data) to report back in the SETUP
// response. format is the result of negotiating the stream's audio format
// with the sink via AudioGetFormat at SETUP time (spec.md §6/§4.9).
func New(log zerolog.Logger, sessionID string, sink renderer.Sink, ntp *ntpsync.Session, aesKey, aesIV []byte, compressionType int, format renderer.AudioFormat, remoteControlPort int, remoteAddr net.IP) (*Session, int, int, error) {
	controlConn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, 0, 0, err
	}
	dataConn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		controlConn.Close()
		return nil, 0, 0, err
	}

	var remoteCtrl *net.UDPAddr
	if remoteControlPort != 0 {
		remoteCtrl = &net.UDPAddr{IP: remoteAddr, Port: remoteControlPort}
	}

	s := &Session{
		log:             log.With().Str("component", "audiortp").Str("session", sessionID).Logger(),
		sessionID:       sessionID,
		sink:            sink,
		ntp:             ntp,
		controlConn:     controlConn,
		dataConn:        dataConn,
		remoteCtrl:      remoteCtrl,
		aesKey:          aesKey,
		aesIV:           aesIV,
		compressionType: compressionType,
		format:          format,
		reorder:         reorderer.New(),
		cmd:             make(chan Command, 32),
		done:            make(chan struct{}),
	}

	return s, controlConn.LocalAddr().(*net.UDPAddr).Port, dataConn.LocalAddr().(*net.UDPAddr).Port, nil
}

// Start launches the session's receive/dequeue loop.
func (s *Session) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.ntpStartTime = s.ntp.RemoteTime()
	s.log.Debug().
		Int("samplesPerFrame", s.format.SamplesPerFrame).
		Bool("usingScreen", s.format.UsingScreen).
		Bool("isMedia", s.format.IsMedia).
		Msg("negotiated audio format")
	go s.run(ctx)
}

// Stop terminates the session and releases its sockets.
func (s *Session) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.controlConn.Close()
	s.dataConn.Close()
}

// Enqueue queues a side-effect command for the session's own goroutine to
// apply on its next loop iteration.
func (s *Session) Enqueue(c Command) {
	select {
	case s.cmd <- c:
	default:
		s.log.Warn().Msg("command channel full, dropping")
	}
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.drainCommands()
		s.pollControl()
		s.pollData()
		s.dequeueReady()
		s.maybeResend()

		select {
		case <-ctx.Done():
			return
		case <-time.After(loopInterval):
		}
	}
}

func (s *Session) drainCommands() {
	for {
		select {
		case c := <-s.cmd:
			s.applyCommand(c)
		default:
			return
		}
	}
}

func (s *Session) applyCommand(c Command) {
	switch c.Kind {
	case CmdSetVolume:
		s.sink.AudioSetVolume(s.sessionID, c.Volume)
	case CmdSetMetadata:
		s.sink.AudioSetMetadata(s.sessionID, c.DMAP)
	case CmdSetCoverArt:
		s.sink.AudioSetCoverArt(s.sessionID, c.CoverArtMIME, c.CoverArtData)
	case CmdSetProgress:
		s.sink.AudioSetProgress(s.sessionID, c.ProgressStart, c.ProgressCurrent, c.ProgressEnd)
	case CmdSetRemoteControlID:
		s.sink.AudioRemoteControlID(s.sessionID, c.DACPID, c.ActiveRemote)
	case CmdFlush:
		s.reorder.FlushTo(c.FlushSeq)
		s.sink.AudioFlush(s.sessionID)
	}
}

func (s *Session) pollControl() {
	buf := make([]byte, 2048)
	for {
		s.controlConn.SetReadDeadline(time.Now())
		n, _, err := s.controlConn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		s.handleControlPacket(buf[:n])
	}
}

func (s *Session) handleControlPacket(packet []byte) {
	if len(packet) < 2 {
		return
	}
	typeC := packet[1] &^ 0x80

	switch {
	case typeC == 0x56 && len(packet) >= 4+dataPacketMinLen:
		// resend response: inner packet starts at offset 4.
		s.handleDataPacket(packet[4:])

	case typeC == 0x54 && len(packet) >= controlPacketMinLen:
		syncRTP := bytesutil.GetIntBE(packet, 4)
		syncRTP64 := s.rtp64Time(syncRTP)
		syncNTPRemote := bytesutil.GetNTPTimestamp(packet, 8)
		syncNTPLocal := s.ntp.ToLocalTime(syncNTPRemote)
		s.syncClock(syncRTP64, syncNTPLocal)
	}
}

// rtp64Time reconstructs a 64-bit rtp timestamp from the wire's 32-bit
// value, tracking the running value across rollover the same way
// raop_rtp.c's rtp64_time does.
func (s *Session) rtp64Time(rtp32 uint32) uint64 {
	if !s.rtpClockStarted {
		s.rtpTime = (uint64(1) << 32) | uint64(rtp32)
		s.rtpStartTime = s.rtpTime
		s.rtpClockStarted = true
		return s.rtpTime
	}
	current32 := uint32(s.rtpTime)
	diff1 := rtp32 - current32
	diff2 := current32 - rtp32
	if diff1 <= diff2 {
		s.rtpTime += uint64(diff1)
	} else {
		s.rtpTime -= uint64(diff2)
	}
	return s.rtpTime
}

// syncClock updates the running rtp-to-wallclock offset from one time-sync
// sample, per spec.md §4.7.
func (s *Session) syncClock(rtpTime64, ntpLocal uint64) {
	offset := int64(ntpLocal) - int64(s.ntpStartTime) - int64(rtpTime64-s.rtpStartTime)/44100*1000000
	s.rtpSyncOffset = offset
	s.haveSynced = true
}

func (s *Session) pollData() {
	buf := make([]byte, 2048)
	for {
		s.dataConn.SetReadDeadline(time.Now())
		n, _, err := s.dataConn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		s.handleDataPacket(pkt)
	}
}

func (s *Session) handleDataPacket(packet []byte) {
	if len(packet) < dataPacketMinLen {
		return
	}
	seq := bytesutil.GetShortBE(packet, 2)
	rtpTimestamp32 := bytesutil.GetIntBE(packet, 4)
	rtpTime64 := s.rtp64Time(rtpTimestamp32)

	payload := s.decryptPayload(packet[dataPacketMinLen:])

	s.updateInitialLatencyEstimate(seq, rtpTime64)

	s.reorder.Enqueue(seq, rtpTimestamp32, payload)
}

// decryptPayload applies AES-128-CBC to the leading block-aligned bytes,
// leaving any trailing partial block unchanged, per raop_buffer_decrypt.
func (s *Session) decryptPayload(payload []byte) []byte {
	n := (len(payload) / 16) * 16
	out := make([]byte, len(payload))
	copy(out, payload)
	if n == 0 {
		return out
	}
	plain, err := cryptoutil.CBCDecrypt(s.aesKey, s.aesIV, payload[:n])
	if err != nil {
		s.log.Warn().Err(err).Msg("audio decrypt failed")
		return out
	}
	copy(out[:n], plain)
	return out
}

// updateInitialLatencyEstimate derives a provisional rtp-to-wallclock
// offset until the first 0x54 time-sync packet arrives, per spec.md's
// "Initial latency estimate" paragraph. For AAC-ELD only the first copy of
// each triplicated frame participates in the average; a packet whose
// sequence number matches either of the two previous packets is skipped.
func (s *Session) updateInitialLatencyEstimate(seq uint16, rtpTime64 uint64) {
	if s.haveSynced {
		return
	}

	participate := true
	if s.compressionType == CompressionAACELD {
		participate = seq != s.lastSeq1 && seq != s.lastSeq2
		s.lastSeq2 = s.lastSeq1
		s.lastSeq1 = seq
	}
	if !participate {
		return
	}

	delay := int64(delayALAC)
	if s.compressionType == CompressionAACELD {
		delay = int64(delayAAC)
	}

	ntpNow := s.ntp.RemoteTime()
	sampleOffset := int64(ntpNow) - int64(s.ntpStartTime) - int64(rtpTime64-s.rtpStartTime)/44100*1000000 - delay

	s.offsetEstimateSum += float64(sampleOffset)
	s.offsetEstimateN++
	s.rtpSyncOffset = int64(s.offsetEstimateSum / float64(s.offsetEstimateN))
	s.rtpCount++
}

func (s *Session) dequeueReady() {
	for _, e := range s.reorder.DequeueReady() {
		rtpTime64 := s.rtp64Time(e.Timestamp)
		presentationNTP := s.ntpStartTime + uint64((int64(rtpTime64-s.rtpStartTime)*1000000)/44100) - uint64(s.rtpSyncOffset)

		s.sink.AudioProcess(s.sessionID, renderer.AudioFrame{
			Data:            e.Payload,
			Sequence:        e.Sequence,
			NTPTimeRemote:   s.ntp.ToRemoteTime(presentationNTP),
			RTPTime:         rtpTime64,
			CompressionType: s.compressionType,
		})
	}
}

// maybeResend issues an 8-byte resend request to the control socket when
// the reorder window's head is unfilled and resends are enabled (the
// remote control port was provided at SETUP time), per spec.md §4.7.
func (s *Session) maybeResend() {
	if s.remoteCtrl == nil {
		return
	}
	seq, count, ok := s.reorder.Missing()
	if !ok {
		return
	}

	req := make([]byte, 8)
	req[0] = 0x80
	req[1] = 0xd5
	bytesutil.PutShortBE(req, 2, seq)
	bytesutil.PutShortBE(req, 4, seq)
	bytesutil.PutShortBE(req, 6, uint16(count))

	if _, err := s.controlConn.WriteToUDP(req, s.remoteCtrl); err != nil {
		s.log.Debug().Err(err).Msg("resend request failed")
	}
}
