package rtsp

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/antimof/UxPlay-sub000/internal/plist"
	"github.com/antimof/UxPlay-sub000/internal/renderer"
	"github.com/antimof/UxPlay-sub000/internal/session"
	"github.com/antimof/UxPlay-sub000/pkg/base"
)

const dateHeaderFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// reversePusher implements hls.Pusher over one connection's upgraded PTTH
// socket, writing a base.Request directly with the codec this module
// already uses for the forward direction.
type reversePusher struct {
	conn *session.Connection
}

func (p *reversePusher) PushRequest(method, url string, headers map[string]string, body []byte) error {
	hdr := make(base.Header, len(headers))
	for k, v := range headers {
		hdr.Set(k, v)
	}
	req := &base.Request{
		Method:   base.Method(method),
		URL:      url,
		Protocol: base.ProtoHTTP11,
		Header:   hdr,
		Body:     body,
	}
	bw := bufio.NewWriter(p.conn.NetConn)
	if err := req.Write(bw); err != nil {
		return err
	}
	return bw.Flush()
}

// handleReverse answers POST /reverse: the single live PTTH push
// connection is upgraded with 101 Switching Protocols; a second concurrent
// attempt is rejected, since only one client push socket can be wired into
// the shared HLS controller at a time (original_source logs this case and
// sets no response fields at all; responding 400 here gives the client a
// concrete signal instead of an undefined connection state).
func (d *Dispatcher) handleReverse(conn *session.Connection, req *base.Request) (*base.Response, Action) {
	d.mu.Lock()
	alreadyPushing := d.pushConn != nil
	if !alreadyPushing {
		d.pushConn = conn
	}
	d.mu.Unlock()

	if alreadyPushing {
		d.log.Warn().Msg("POST /reverse: a push connection is already active")
		return &base.Response{StatusCode: base.StatusBadRequest}, ActionNone
	}

	if c := d.controller(); c != nil {
		c.SetPusher(&reversePusher{conn: conn})
	}

	res := &base.Response{StatusCode: base.StatusSwitchingProtocols, Header: make(base.Header)}
	res.Header.Set("Connection", "Upgrade")
	res.Header.Set("Upgrade", "PTTH/1.0")
	return res, ActionUpgradeToReverse
}

// handlePlay answers POST /play: validates the session id, parses the
// plist body's uuid/Content-Location/Start-Position-Seconds fields, and
// kicks off the HLS controller's FCUP fetch sequence.
func (d *Dispatcher) handlePlay(conn *session.Connection, req *base.Request) *base.Response {
	if err := d.checkSessionID(req); err != nil {
		return &base.Response{StatusCode: base.StatusBadRequest}
	}
	if len(req.Body) == 0 {
		return &base.Response{StatusCode: base.StatusBadRequest}
	}

	ct := req.Header.Get("Content-Type")
	if !strings.Contains(ct, "x-apple-binary-plist") {
		d.log.Warn().Str("content-type", ct).Msg("POST /play: unsupported content type")
		return &base.Response{StatusCode: base.StatusBadRequest}
	}

	v, err := plist.Unmarshal(req.Body)
	if err != nil {
		return &base.Response{StatusCode: base.StatusBadRequest}
	}
	dict, ok := v.(plist.Dict)
	if !ok {
		return &base.Response{StatusCode: base.StatusBadRequest}
	}

	playbackUUID, err := plistString(dict, "uuid")
	if err != nil {
		return &base.Response{StatusCode: base.StatusBadRequest}
	}
	contentLocation, err := plistString(dict, "Content-Location")
	if err != nil {
		return &base.Response{StatusCode: base.StatusBadRequest}
	}
	startPosition := plistFloat(dict, "Start-Position-Seconds", 0.0)

	c := d.controller()
	if c == nil {
		return &base.Response{StatusCode: base.StatusBadRequest}
	}
	if err := c.OnPlay(playbackUUID, contentLocation, startPosition); err != nil {
		d.log.Warn().Err(err).Msg("POST /play: OnPlay failed")
		return &base.Response{StatusCode: base.StatusInternalServerError}
	}
	return base.NewEmptyOK()
}

// handleAction answers POST /action: the client's reply to a pushed FCUP
// request, nested under a "params" dict alongside the plist's "type".
func (d *Dispatcher) handleAction(conn *session.Connection, req *base.Request) *base.Response {
	if err := d.checkSessionID(req); err != nil {
		return &base.Response{StatusCode: base.StatusBadRequest}
	}
	if !strings.Contains(req.Header.Get("Content-Type"), "apple-binary-plist") {
		return &base.Response{StatusCode: base.StatusBadRequest}
	}
	if len(req.Body) == 0 {
		return &base.Response{StatusCode: base.StatusBadRequest}
	}

	v, err := plist.Unmarshal(req.Body)
	if err != nil {
		return &base.Response{StatusCode: base.StatusBadRequest}
	}
	dict, ok := v.(plist.Dict)
	if !ok {
		return &base.Response{StatusCode: base.StatusBadRequest}
	}

	actionType, err := plistString(dict, "type")
	if err != nil {
		return &base.Response{StatusCode: base.StatusBadRequest}
	}
	params, ok := dict["params"].(plist.Dict)
	if !ok {
		return &base.Response{StatusCode: base.StatusBadRequest}
	}
	url, err := plistString(params, "FCUP_Response_URL")
	if err != nil {
		return &base.Response{StatusCode: base.StatusBadRequest}
	}
	data, err := plistData(params, "FCUP_Response_Data")
	if err != nil {
		return &base.Response{StatusCode: base.StatusBadRequest}
	}

	if actionType != "unhandledURLResponse" {
		return base.NewEmptyOK()
	}

	c := d.controller()
	if c == nil {
		return &base.Response{StatusCode: base.StatusBadRequest}
	}
	if err := c.OnAction(url, data); err != nil {
		d.log.Warn().Err(err).Msg("POST /action: OnAction failed")
	}
	return base.NewEmptyOK()
}

// checkSessionID validates the X-Apple-Session-Id header against the
// controller currently bound to this server, per spec.md §4.10.
func (d *Dispatcher) checkSessionID(req *base.Request) error {
	id := req.Header.Get("X-Apple-Session-Id")
	d.mu.Lock()
	expected := d.hlsID
	d.mu.Unlock()
	if id == "" || expected == "" || id != expected {
		return fmt.Errorf("rtsp: session id mismatch")
	}
	return nil
}

func (d *Dispatcher) handleStop() *base.Response {
	if c := d.controller(); c != nil {
		c.Stop()
	}
	return base.NewEmptyOK()
}

// handleScrub parses the "position=<f>" query parameter POST /scrub carries
// instead of a body.
func (d *Dispatcher) handleScrub(query string) *base.Response {
	if pos, ok := queryFloat(query, "position"); ok {
		if c := d.controller(); c != nil {
			c.Scrub(pos)
		}
	}
	return base.NewEmptyOK()
}

// handleRate parses the "value=<f>" query parameter POST /rate carries
// instead of a body.
func (d *Dispatcher) handleRate(query string) *base.Response {
	if rate, ok := queryFloat(query, "value"); ok {
		if c := d.controller(); c != nil {
			c.Rate(rate)
		}
	}
	return base.NewEmptyOK()
}

// queryFloat extracts a "key=value" pair from a raw query string and parses
// it as a float, the manual parsing POST /scrub and /rate use instead of a
// structured query type.
func queryFloat(query, key string) (float64, bool) {
	for _, field := range strings.Split(query, "&") {
		k, v, found := strings.Cut(field, "=")
		if !found || k != key {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// knownSetProperties are the only PUT /setProperty names this server
// answers with a success plist; anything else gets an empty response.
var knownSetProperties = map[string]bool{
	"actionAtItemEnd": true,
	"reverseEndTime":  true,
	"forwardEndTime":  true,
}

// handleSetProperty answers PUT /setProperty?<name>: the query carries only
// the bare property name, never a "=value" pair.
func (d *Dispatcher) handleSetProperty(query string) *base.Response {
	if !knownSetProperties[query] {
		return &base.Response{StatusCode: base.StatusOK, Header: make(base.Header)}
	}

	body, err := plist.MarshalXML(plist.Dict{"errorCode": int64(0)})
	if err != nil {
		return &base.Response{StatusCode: base.StatusInternalServerError}
	}
	res := &base.Response{StatusCode: base.StatusOK, Header: make(base.Header), Body: body}
	res.Header.Set("Content-Type", "text/x-apple-plist+xml")
	return res
}

// handlePlaybackInfo answers GET /playback_info. Duration == -1 means
// playback has finished: the connection is scheduled for disconnect and the
// renderer is reset, with no body at all. Position == -1 is a distinct,
// narrower edge case: the response is left completely empty.
func (d *Dispatcher) handlePlaybackInfo(conn *session.Connection) *base.Response {
	c := d.controller()
	if c == nil {
		return &base.Response{StatusCode: base.StatusBadRequest}
	}
	info := c.PlaybackInfo()

	if info.Duration == -1 {
		d.sink.VideoReset(d.hlsID)
		return base.CloseConn(&base.Response{StatusCode: base.StatusOK, Header: make(base.Header)})
	}
	if info.Position == -1 {
		return &base.Response{StatusCode: base.StatusOK, Header: make(base.Header)}
	}

	body, err := plist.MarshalXML(plist.Dict{
		"duration":               info.Duration,
		"position":               info.Position,
		"rate":                   info.Rate,
		"readyToPlay":            info.ReadyToPlay,
		"playbackBufferEmpty":    info.PlaybackBufferEmpty,
		"playbackBufferFull":     info.PlaybackBufferFull,
		"playbackLikelyToKeepUp": info.PlaybackLikelyToKeepUp,
		"loadedTimeRanges":       timeRangesToPlist(info.LoadedTimeRanges),
		"seekableTimeRanges":     timeRangesToPlist(info.SeekableTimeRanges),
	})
	if err != nil {
		return &base.Response{StatusCode: base.StatusInternalServerError}
	}
	res := &base.Response{StatusCode: base.StatusOK, Header: make(base.Header), Body: body}
	res.Header.Set("Content-Type", "text/x-apple-plist+xml")
	return res
}

func timeRangesToPlist(ranges []renderer.TimeRange) []interface{} {
	out := make([]interface{}, len(ranges))
	for i, r := range ranges {
		out[i] = plist.Dict{"start": r.Start, "duration": r.Duration}
	}
	return out
}

// handleMasterPlaylist answers GET /master.m3u8.
func (d *Dispatcher) handleMasterPlaylist() *base.Response {
	var body []byte
	if c := d.controller(); c != nil {
		body = c.ServeMasterPlaylist()
	}
	return playlistResponse(body, len(body) > 0)
}

// handleMediaPlaylist answers GET /<path>.m3u8 with whichever stored media
// playlist's original URI contains path.
func (d *Dispatcher) handleMediaPlaylist(path string) *base.Response {
	c := d.controller()
	if c == nil {
		return playlistResponse(nil, false)
	}
	body, found := c.ServeMediaPlaylist(path)
	return playlistResponse(body, found)
}

// playlistResponse applies the CORS/Date/Content-Type headers every
// playlist response carries, and falls back to 404 when empty (a
// Go-idiomatic stand-in for original_source's assert(0) on a missing
// playlist).
func playlistResponse(body []byte, found bool) *base.Response {
	header := make(base.Header)
	header.Set("Access-Control-Allow-Headers", "Content-type")
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Date", time.Now().UTC().Format(dateHeaderFormat))

	if !found || len(body) == 0 {
		return &base.Response{StatusCode: base.StatusNotFound, Header: header}
	}

	header.Set("Content-Type", "application/x-mpegURL; charset=utf-8")
	return &base.Response{StatusCode: base.StatusOK, Header: header, Body: body}
}
