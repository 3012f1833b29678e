// Package hls implements the AirPlay-video (mirrored HLS) reverse-HTTP
// control flow: FCUP playlist requests pushed to the client over the PTTH
// channel, the client's POST /action replies, master/media playlist
// rewriting, and the /play /scrub /rate /stop /playback_info endpoints.
// Grounded on UxPlay's raop_handlers.c AirPlay-video section (not retained
// verbatim since none of it survived spec.md's distillation byte-for-byte,
// but the FCUP request/response shape and cursor-driven fetch loop are
// carried over).
package hls

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/antimof/UxPlay-sub000/internal/plist"
	"github.com/antimof/UxPlay-sub000/internal/renderer"
)

// Pusher sends a reverse-HTTP request over the connection's PTTH channel.
// Implemented by the connection/dispatcher layer; the controller never
// touches the socket directly.
type Pusher interface {
	PushRequest(method, url string, headers map[string]string, body []byte) error
}

// mediaEntry is one row of the ordered media-playlist table.
type mediaEntry struct {
	uri      string
	text     []byte
	backIdx  int // -1 unless this entry shares text with an earlier one
	fetched  bool
}

// Controller is the per-connection AirPlay-video state machine.
type Controller struct {
	sessionID       string // 36-char X-Apple-Session-ID
	localURIPrefix  string
	sink            renderer.Sink

	mu              sync.Mutex
	pusher          Pusher
	playbackUUID    string
	clientURIPrefix string
	masterRaw       []byte
	masterRewritten []byte
	entries         []mediaEntry
	cursor          int
	requestIDSeq    int
	startPosition   float64
}

// New creates a controller for one connection; localPort is the daemon's
// own HTTP port, used to build the http://localhost:<port> prefix the
// rewritten master playlist points at.
func New(sessionID string, localPort int, sink renderer.Sink) *Controller {
	return &Controller{
		sessionID:      sessionID,
		localURIPrefix: fmt.Sprintf("http://localhost:%d", localPort),
		sink:           sink,
	}
}

// SetPusher wires the reverse-HTTP transport once the connection has been
// upgraded via POST /reverse.
func (c *Controller) SetPusher(p Pusher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pusher = p
}

// nextRequestID returns the next monotonic FCUP request id.
func (c *Controller) nextRequestID() int {
	c.requestIDSeq++
	return c.requestIDSeq
}

// OnPlay handles POST /play: records the playback uuid and start position,
// derives the client's URI prefix from contentLocation (the substring up
// to "/master.m3u8"), resets the playlist table, and issues the first FCUP
// request for the master playlist.
func (c *Controller) OnPlay(playbackUUID, contentLocation string, startPosition float64) error {
	c.mu.Lock()
	const marker = "/master.m3u8"
	idx := strings.Index(contentLocation, marker)
	prefix := contentLocation
	if idx >= 0 {
		prefix = contentLocation[:idx]
	}
	c.playbackUUID = playbackUUID
	c.clientURIPrefix = prefix
	c.startPosition = startPosition
	c.entries = nil
	c.cursor = 0
	c.mu.Unlock()

	return c.sendFCUPRequest(contentLocation)
}

// sendFCUPRequest builds and pushes one FCUP Request over the PTTH
// channel, per spec.md §4.10.
func (c *Controller) sendFCUPRequest(url string) error {
	c.mu.Lock()
	pusher := c.pusher
	reqID := c.nextRequestID()
	sessionID := c.sessionID
	c.mu.Unlock()

	if pusher == nil {
		return fmt.Errorf("hls: no reverse-HTTP pusher wired")
	}

	body, err := plist.MarshalXML(plist.Dict{
		"type": "unhandledURLRequest",
		"request": plist.Dict{
			"FCUP_Response_ClientInfo": 1,
			"FCUP_Response_ClientRef":  40030004,
			"FCUP_Response_RequestID":  reqID,
			"FCUP_Response_URL":        url,
			"sessionID":                1,
			"FCUP_Response_Headers": plist.Dict{
				"X-Playback-Session-Id": sessionID,
				"User-Agent":            "AppleCoreMedia/1.0.0.11B554a (Apple TV; U; CPU OS 7_0_3 like Mac OS X; en_us)",
			},
		},
	})
	if err != nil {
		return err
	}

	return pusher.PushRequest("POST", "/event", map[string]string{
		"Content-Type": "text/x-apple-plist+xml",
	}, body)
}

// OnAction handles POST /action: body is type=="unhandledURLResponse"
// carrying the fetched URL, its bytes and the matching request id.
func (c *Controller) OnAction(url string, data []byte) error {
	if strings.HasSuffix(url, "/master.m3u8") {
		return c.onMasterPlaylist(data)
	}
	return c.onMediaPlaylist(url, data)
}

func (c *Controller) onMasterPlaylist(data []byte) error {
	c.mu.Lock()
	rewritten := RewritePlaylist(data, c.clientURIPrefix, c.localURIPrefix)
	uris := ParseMediaPlaylistURIs(data, c.clientURIPrefix)
	c.masterRaw = data
	c.masterRewritten = rewritten
	c.entries = make([]mediaEntry, len(uris))
	for i, u := range uris {
		c.entries[i] = mediaEntry{uri: u, backIdx: -1}
	}
	c.cursor = 0
	c.mu.Unlock()

	return c.fetchNextOrFinish()
}

func (c *Controller) onMediaPlaylist(url string, data []byte) error {
	c.mu.Lock()
	if c.cursor >= len(c.entries) {
		c.mu.Unlock()
		return nil
	}

	back := -1
	for i := 0; i < c.cursor; i++ {
		if c.entries[i].fetched && c.entries[i].uri == url {
			back = i
			break
		}
	}

	e := &c.entries[c.cursor]
	e.fetched = true
	if back >= 0 {
		e.backIdx = back
		e.text = c.entries[back].text
	} else {
		e.text = data
	}
	c.cursor++
	c.mu.Unlock()

	return c.fetchNextOrFinish()
}

func (c *Controller) fetchNextOrFinish() error {
	c.mu.Lock()
	if c.cursor < len(c.entries) {
		next := c.entries[c.cursor].uri
		c.mu.Unlock()
		return c.sendFCUPRequest(next)
	}
	localMaster := c.localURIPrefix + "/master.m3u8"
	startPos := c.startPosition
	sessionID := c.sessionID
	sink := c.sink
	c.mu.Unlock()

	sink.OnVideoPlay(sessionID, localMaster, startPos)
	return nil
}

// ServeMasterPlaylist returns the rewritten master playlist bytes for
// GET /master.m3u8.
func (c *Controller) ServeMasterPlaylist() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.masterRewritten
}

// ServeMediaPlaylist returns the bytes for GET /<path>.m3u8: the entry
// whose original URI matches path by substring, expanding a YT condensed
// playlist if present.
func (c *Controller) ServeMediaPlaylist(path string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.entries {
		if strings.Contains(c.entries[i].uri, path) {
			text := c.entries[i].text
			if strings.HasPrefix(string(text), "#YT-EXT-CONDENSED-URL") {
				return ExpandCondensedPlaylist(text), true
			}
			out := make([]byte, len(text))
			copy(out, text)
			return out, true
		}
	}
	return nil, false
}

// Stop invokes the stop callback.
func (c *Controller) Stop() {
	c.mu.Lock()
	sink, id := c.sink, c.sessionID
	c.mu.Unlock()
	sink.OnVideoStop(id)
}

// Scrub invokes the scrub callback with the given position in seconds.
func (c *Controller) Scrub(position float64) {
	c.mu.Lock()
	sink, id := c.sink, c.sessionID
	c.mu.Unlock()
	sink.OnVideoScrub(id, position)
}

// Rate invokes the rate callback.
func (c *Controller) Rate(rate float64) {
	c.mu.Lock()
	sink, id := c.sink, c.sessionID
	c.mu.Unlock()
	sink.OnVideoRate(id, rate)
}

// PlaybackInfo returns the renderer's current playback state for
// GET /playback_info. If duration is -1 (playback finished), the caller is
// expected to schedule the connection for disconnect and invoke VideoReset,
// per spec.md §4.10.
func (c *Controller) PlaybackInfo() renderer.PlaybackInfo {
	c.mu.Lock()
	sink, id := c.sink, c.sessionID
	c.mu.Unlock()
	return sink.OnVideoAcquirePlaybackInfo(id)
}

// NewPlaybackUUID returns a fresh playback UUID, the value /play supplies
// alongside its own client-chosen uuid for diagnostics.
func NewPlaybackUUID() string {
	return uuid.New().String()
}
