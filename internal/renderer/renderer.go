// Package renderer defines the sink interface the protocol engine drives
// with decoded-but-still-compressed audio frames, raw video NAL buffers and
// HLS playback events. Concrete renderers (GStreamer pipelines, test
// doubles) live outside this module; this package only describes the
// contract, the way UxPlay's raop_handlers/renderer struct of function
// pointers does, expressed as a Go interface instead of a callback table
// plus an opaque context pointer.
package renderer

// AudioFrame is one decoded-but-still-compressed audio packet handed to the
// renderer, with its reconstructed presentation time.
type AudioFrame struct {
	Data           []byte
	Sequence       uint16
	NTPTimeRemote  uint64
	RTPTime        uint64
	CompressionType int
}

// VideoFrame is one (possibly multi-NAL) mirror-video buffer.
type VideoFrame struct {
	Data        []byte
	NALCount    int
	IsConfig    bool // true for the SPS/PPS configuration buffer
	PTS         uint64
}

// AudioFormat is negotiated on SETUP.
type AudioFormat struct {
	CompressionType int
	SamplesPerFrame int
	UsingScreen     bool
	IsMedia         bool
}

// PlaybackInfo is returned by the HLS controller's playback_info endpoint.
type PlaybackInfo struct {
	Duration                float64 // -1 means playback finished
	Position                float64
	Rate                    float64
	ReadyToPlay             bool
	PlaybackBufferEmpty     bool
	PlaybackBufferFull      bool
	PlaybackLikelyToKeepUp  bool
	LoadedTimeRanges        []TimeRange
	SeekableTimeRanges      []TimeRange
}

// TimeRange is a [Start, Start+Duration) interval, as used in
// LoadedTimeRanges/SeekableTimeRanges.
type TimeRange struct {
	Start    float64
	Duration float64
}

// Sink is the interface a renderer implementation provides; the protocol
// engine never examines its internals. A no-op implementation is valid and
// useful for tests.
type Sink interface {
	// AudioProcess delivers one decoded-but-compressed audio frame.
	AudioProcess(sessionID string, frame AudioFrame)
	// VideoProcess delivers one mirror-video buffer.
	VideoProcess(sessionID string, frame VideoFrame)
	// AudioGetFormat negotiates the audio format at SETUP time.
	AudioGetFormat(compressionType int) AudioFormat

	AudioSetVolume(sessionID string, volume float64)
	AudioSetMetadata(sessionID string, dmap []byte)
	AudioSetCoverArt(sessionID string, mimeType string, data []byte)
	AudioSetProgress(sessionID string, start, current, end uint32)
	AudioRemoteControlID(sessionID, dacpID, activeRemote string)

	VideoReportSize(sessionID string, widthSource, heightSource, width, height float32)

	VideoFlush(sessionID string)
	AudioFlush(sessionID string)
	VideoReset(sessionID string)

	// HLS callbacks.
	OnVideoPlay(sessionID, url string, startPositionSeconds float64)
	OnVideoScrub(sessionID string, position float64)
	OnVideoRate(sessionID string, rate float64)
	OnVideoStop(sessionID string)
	OnVideoAcquirePlaybackInfo(sessionID string) PlaybackInfo

	// Connection lifecycle.
	ConnInit(connID string)
	ConnDestroy(connID string)
	ConnReset(connID string, timeouts int, resetVideo bool)
	ConnTeardown(connID string, hasAudio, hasMirror bool)
}

// NoopSink is a Sink that does nothing; useful as a default and in tests
// that only exercise the protocol engine.
type NoopSink struct{}

func (NoopSink) AudioProcess(string, AudioFrame) {}
func (NoopSink) VideoProcess(string, VideoFrame) {}
func (NoopSink) AudioGetFormat(int) AudioFormat  { return AudioFormat{} }

func (NoopSink) AudioSetVolume(string, float64)                 {}
func (NoopSink) AudioSetMetadata(string, []byte)                {}
func (NoopSink) AudioSetCoverArt(string, string, []byte)        {}
func (NoopSink) AudioSetProgress(string, uint32, uint32, uint32) {}
func (NoopSink) AudioRemoteControlID(string, string, string)    {}

func (NoopSink) VideoReportSize(string, float32, float32, float32, float32) {}

func (NoopSink) VideoFlush(string) {}
func (NoopSink) AudioFlush(string) {}
func (NoopSink) VideoReset(string) {}

func (NoopSink) OnVideoPlay(string, string, float64)        {}
func (NoopSink) OnVideoScrub(string, float64)               {}
func (NoopSink) OnVideoRate(string, float64)                {}
func (NoopSink) OnVideoStop(string)                         {}
func (NoopSink) OnVideoAcquirePlaybackInfo(string) PlaybackInfo {
	return PlaybackInfo{}
}

func (NoopSink) ConnInit(string)    {}
func (NoopSink) ConnDestroy(string) {}
func (NoopSink) ConnReset(string, int, bool) {}
func (NoopSink) ConnTeardown(string, bool, bool) {}

var _ Sink = NoopSink{}
