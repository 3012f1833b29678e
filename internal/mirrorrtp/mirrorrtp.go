// Package mirrorrtp implements the AirPlay screen-mirroring TCP stream: a
// 128-byte little-endian header followed by either an AES-128-CTR-encrypted
// H.264 NAL buffer (type 0) or a plaintext SPS/PPS descriptor (type 1),
// grounded on UxPlay's raop_rtp_mirror.c and mirror_buffer.c.
package mirrorrtp

import (
	"bufio"
	"context"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/antimof/UxPlay-sub000/internal/cryptoutil"
	"github.com/antimof/UxPlay-sub000/internal/liberrors"
	"github.com/antimof/UxPlay-sub000/internal/ntpsync"
	"github.com/antimof/UxPlay-sub000/internal/renderer"
	"github.com/antimof/UxPlay-sub000/pkg/bytesutil"
)

const (
	headerSize = 128

	payloadTypeVideo = 0
	payloadTypeSPS   = 1

	readTimeout = 5 * time.Millisecond
)

// Session is one accepted mirroring connection.
type Session struct {
	log       zerolog.Logger
	sessionID string
	sink      renderer.Sink
	ntp       *ntpsync.Session
	ctr       *cryptoutil.CTRCipher

	listener *net.TCPListener
	cancel   context.CancelFunc
	done     chan struct{}
}

// New opens the listening TCP socket and returns the session along with the
// local port to report back as dataPort in the SETUP response. The AES key
// and IV passed in are already the fully-derived per-stream mirror
// key/IV, derived by internal/rtsp's setupMirroring through a two-stage
// cryptoutil.DeriveKey16 chain.
func New(log zerolog.Logger, sessionID string, sink renderer.Sink, ntp *ntpsync.Session, key, iv []byte) (*Session, int, error) {
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{})
	if err != nil {
		return nil, 0, err
	}
	ctr, err := cryptoutil.NewCTR(key, iv)
	if err != nil {
		ln.Close()
		return nil, 0, err
	}

	s := &Session{
		log:       log.With().Str("component", "mirrorrtp").Str("session", sessionID).Logger(),
		sessionID: sessionID,
		sink:      sink,
		ntp:       ntp,
		ctr:       ctr,
		listener:  ln,
		done:      make(chan struct{}),
	}
	return s, ln.Addr().(*net.TCPAddr).Port, nil
}

// Start launches the accept-then-read loop in the background. A single
// client connection is accepted, per spec.md §4.8; the session ends when
// that connection closes or ctx is canceled.
func (s *Session) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.run(ctx)
}

// Stop cancels the session and releases its listener.
func (s *Session) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.listener.Close()
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	s.listener.SetDeadline(time.Now().Add(5 * time.Second))
	conn, err := s.listener.AcceptTCP()
	if err != nil {
		s.log.Debug().Err(err).Msg("mirror accept failed or canceled")
		return
	}
	defer conn.Close()

	configureKeepalive(conn)

	r := bufio.NewReaderSize(conn, 256*1024)
	header := make([]byte, headerSize)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		if _, err := io.ReadFull(r, header); err != nil {
			if isTimeout(err) {
				continue
			}
			s.log.Debug().Err(err).Msg("mirror connection closed")
			return
		}

		if err := s.handlePacket(header, r); err != nil {
			s.log.Warn().Err(err).Msg("mirror packet handling failed")
			return
		}
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// configureKeepalive applies the socket options spec.md §4.8 requires;
// per-interval tuning (TCP_KEEPIDLE/INTVL/CNT) has no portable stdlib
// surface beyond SetKeepAlive/SetKeepAlivePeriod, so only the portable
// subset is set here — see DESIGN.md.
func configureKeepalive(conn *net.TCPConn) {
	conn.SetKeepAlive(true)
	conn.SetKeepAlivePeriod(10 * time.Second)
}

func (s *Session) handlePacket(header []byte, r io.Reader) error {
	payloadSize := int(bytesutil.GetIntLE(header, 0))
	payloadType := bytesutil.GetShortLE(header, 4) & 0xff
	ntpTimestampRaw := bytesutil.GetLongLE(header, 8)

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(r, payload); err != nil {
		return liberrors.ErrTransport{Err: err}
	}

	switch payloadType {
	case payloadTypeVideo:
		s.handleVideoPacket(payload, ntpTimestampRaw)
	case payloadTypeSPS:
		s.handleSPSPacket(header, payload)
	}
	return nil
}

// handleVideoPacket decrypts one AES-CTR NAL buffer and rewrites its
// 4-byte big-endian length prefixes to Annex-B start codes in place.
func (s *Session) handleVideoPacket(payload []byte, ntpTimestampRaw uint64) {
	decrypted := make([]byte, len(payload))
	s.ctr.XORKeyStream(decrypted, payload)

	nalCount := 0
	pos := 0
	for pos+4 <= len(decrypted) {
		nalLen := int(bytesutil.GetIntBE(decrypted, pos))
		decrypted[pos+0] = 0
		decrypted[pos+1] = 0
		decrypted[pos+2] = 0
		decrypted[pos+3] = 1
		pos += nalLen + 4
		nalCount++
		if nalLen < 0 || pos > len(decrypted) {
			break
		}
	}

	// mirror NTP timestamps use the "since last boot" epoch: no
	// SECONDS_FROM_1900_TO_1970 adjustment, per spec.md §4.8.
	ntpRemote := bytesutil.GetNTPTimestampNoEpoch(ntpTimestampRaw)
	pts := s.ntp.ToLocalTime(ntpRemote)

	s.sink.VideoProcess(s.sessionID, renderer.VideoFrame{
		Data:     decrypted,
		NALCount: nalCount,
		IsConfig: false,
		PTS:      pts,
	})
}

// handleSPSPacket parses the unencrypted SPS/PPS configuration payload per
// the exact byte offsets spec.md §4.8 gives and reports the four stream
// dimensions carried in the packet header.
func (s *Session) handleSPSPacket(header, payload []byte) {
	widthSource := bytesutil.GetFloatLE(header, 40)
	heightSource := bytesutil.GetFloatLE(header, 44)
	width := bytesutil.GetFloatLE(header, 56)
	height := bytesutil.GetFloatLE(header, 60)
	s.sink.VideoReportSize(s.sessionID, widthSource, heightSource, width, height)

	if len(payload) < 8 {
		return
	}
	spsSize := int(bytesutil.GetShortBE(payload, 6))
	if 8+spsSize+3 > len(payload) {
		return
	}
	sps := payload[8 : 8+spsSize]

	ppsCountOffset := 8 + spsSize
	ppsSizeLo := payload[ppsCountOffset+2]
	ppsSize := int(ppsSizeLo) & 0xff
	ppsStart := ppsCountOffset + 3
	if ppsStart+ppsSize > len(payload) {
		return
	}
	pps := payload[ppsStart : ppsStart+ppsSize]

	out := make([]byte, 0, 8+len(sps)+len(pps))
	out = append(out, 0, 0, 0, 1)
	out = append(out, sps...)
	out = append(out, 0, 0, 0, 1)
	out = append(out, pps...)

	s.sink.VideoProcess(s.sessionID, renderer.VideoFrame{
		Data:     out,
		NALCount: 2,
		IsConfig: true,
		PTS:      0,
	})
}
