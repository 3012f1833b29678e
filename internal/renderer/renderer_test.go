package renderer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoopSinkSatisfiesInterface(t *testing.T) {
	var s Sink = NoopSink{}
	s.AudioProcess("conn1", AudioFrame{Sequence: 1})
	s.VideoProcess("conn1", VideoFrame{NALCount: 2})
	format := s.AudioGetFormat(2)
	require.Equal(t, AudioFormat{}, format)

	info := s.OnVideoAcquirePlaybackInfo("conn1")
	require.Equal(t, PlaybackInfo{}, info)
}
