package mirrorrtp

import (
	"math"
	"net"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/antimof/UxPlay-sub000/internal/cryptoutil"
	"github.com/antimof/UxPlay-sub000/internal/ntpsync"
	"github.com/antimof/UxPlay-sub000/internal/renderer"
	"github.com/antimof/UxPlay-sub000/pkg/bytesutil"
)

type recordingSink struct {
	renderer.NoopSink
	frames []renderer.VideoFrame
	sizes  []float32
}

func (r *recordingSink) VideoProcess(_ string, f renderer.VideoFrame) {
	r.frames = append(r.frames, f)
}

func (r *recordingSink) VideoReportSize(_ string, widthSource, heightSource, width, height float32) {
	r.sizes = append(r.sizes, widthSource, heightSource, width, height)
}

func newTestNTP(t *testing.T) *ntpsync.Session {
	t.Helper()
	remote, err := net.ResolveUDPAddr("udp4", "127.0.0.1:1")
	require.NoError(t, err)
	ntp, _, err := ntpsync.New(zerolog.Nop(), remote, "sess1", renderer.NoopSink{}, nil, 0)
	require.NoError(t, err)
	return ntp
}

func TestHandleVideoPacketRewritesStartCodesAndDecrypts(t *testing.T) {
	key := make([]byte, 16)
	iv := make([]byte, 16)
	ntp := newTestNTP(t)
	s, _, err := New(zerolog.Nop(), "sess1", &recordingSink{}, ntp, key, iv)
	require.NoError(t, err)
	defer s.listener.Close()

	nal1 := []byte{0x67, 0xAA, 0xBB}
	nal2 := []byte{0x68, 0xCC}
	plain := make([]byte, 0)
	plain = append(plain, 0, 0, 0, byte(len(nal1)))
	plain = append(plain, nal1...)
	plain = append(plain, 0, 0, 0, byte(len(nal2)))
	plain = append(plain, nal2...)

	enc, err := cryptoutil.NewCTR(key, iv)
	require.NoError(t, err)
	ciphertext := make([]byte, len(plain))
	enc.XORKeyStream(ciphertext, plain)

	sink := &recordingSink{}
	s.sink = sink
	s.handleVideoPacket(ciphertext, 0)

	require.Len(t, sink.frames, 1)
	f := sink.frames[0]
	require.Equal(t, 2, f.NALCount)
	require.False(t, f.IsConfig)
	require.Equal(t, []byte{0, 0, 0, 1}, f.Data[0:4])
	require.Equal(t, nal1, f.Data[4:4+len(nal1)])
	startCode2 := f.Data[4+len(nal1) : 4+len(nal1)+4]
	require.Equal(t, []byte{0, 0, 0, 1}, startCode2)
}

func TestHandleSPSPacketParsesOffsetsAndReportsSize(t *testing.T) {
	ntp := newTestNTP(t)
	sink := &recordingSink{}
	s, _, err := New(zerolog.Nop(), "sess1", sink, ntp, make([]byte, 16), make([]byte, 16))
	require.NoError(t, err)
	defer s.listener.Close()

	sps := []byte{0x67, 0x01, 0x02, 0x03}
	pps := []byte{0x68, 0x11}

	payload := make([]byte, 8+len(sps)+3+len(pps))
	payload[0] = 1 // version
	payload[1] = 0x64
	payload[2] = 0x00
	payload[3] = 0x1f
	bytesutil.PutShortBE(payload, 6, uint16(len(sps)))
	copy(payload[8:], sps)
	ppsCountOffset := 8 + len(sps)
	payload[ppsCountOffset] = 1 // pps_count
	payload[ppsCountOffset+2] = byte(len(pps))
	copy(payload[ppsCountOffset+3:], pps)

	header := make([]byte, headerSize)
	bytesutil.PutIntLE(header, 40, math.Float32bits(320))
	bytesutil.PutIntLE(header, 44, math.Float32bits(240))
	bytesutil.PutIntLE(header, 56, math.Float32bits(1920))
	bytesutil.PutIntLE(header, 60, math.Float32bits(1080))

	s.handleSPSPacket(header, payload)

	require.Len(t, sink.frames, 1)
	f := sink.frames[0]
	require.True(t, f.IsConfig)
	require.Equal(t, []byte{0, 0, 0, 1}, f.Data[0:4])
	require.Equal(t, sps, f.Data[4:4+len(sps)])
	require.Equal(t, []byte{0, 0, 0, 1}, f.Data[4+len(sps):8+len(sps)])
	require.Equal(t, pps, f.Data[8+len(sps):])

	require.Equal(t, []float32{320, 240, 1920, 1080}, sink.sizes)
}
