package rtsp

import (
	"strconv"
	"strings"

	"github.com/antimof/UxPlay-sub000/internal/audiortp"
	"github.com/antimof/UxPlay-sub000/internal/session"
	"github.com/antimof/UxPlay-sub000/pkg/base"
)

// handleOptions answers OPTIONS with the fixed method list every AirPlay
// legacy-pairing receiver advertises.
func (d *Dispatcher) handleOptions() *base.Response {
	res := &base.Response{StatusCode: base.StatusOK, Header: make(base.Header)}
	res.Header.Set("Public", "SETUP, RECORD, PAUSE, FLUSH, TEARDOWN, OPTIONS, GET_PARAMETER, SET_PARAMETER")
	return res
}

// handleGetParameter answers GET_PARAMETER. Only the "volume" parameter is
// recognized, and its answer is a fixed placeholder rather than the stream's
// actual current volume, matching the reference receiver.
func (d *Dispatcher) handleGetParameter(req *base.Request) *base.Response {
	if strings.TrimSpace(string(req.Body)) != "volume" {
		d.log.Warn().Str("body", string(req.Body)).Msg("GET_PARAMETER: unknown parameter")
		return &base.Response{StatusCode: base.StatusOK, Header: make(base.Header)}
	}
	res := &base.Response{
		StatusCode: base.StatusOK,
		Header:     make(base.Header),
		Body:       []byte("volume: 0.0\r\n"),
	}
	res.Header.Set("Content-Type", "text/parameters")
	return res
}

// handleSetParameter answers SET_PARAMETER, dispatched on Content-Type:
// text/parameters carries "volume: <f>" or "progress: <u>/<u>/<u>" lines;
// image/jpeg and image/png carry raw cover-art bytes; application/
// x-dmap-tagged carries raw DAAP/DMAP metadata.
func (d *Dispatcher) handleSetParameter(conn *session.Connection, req *base.Request) *base.Response {
	ct := req.Header.Get("Content-Type")

	switch {
	case strings.Contains(ct, "text/parameters"):
		d.applyTextParameters(conn, req.Body)

	case strings.Contains(ct, "image/jpeg") || strings.Contains(ct, "image/png"):
		if conn.Audio != nil {
			conn.Audio.Enqueue(audiortp.Command{
				Kind:         audiortp.CmdSetCoverArt,
				CoverArtMIME: ct,
				CoverArtData: req.Body,
			})
		}

	case strings.Contains(ct, "application/x-dmap-tagged"):
		if conn.Audio != nil {
			conn.Audio.Enqueue(audiortp.Command{Kind: audiortp.CmdSetMetadata, DMAP: req.Body})
		}
	}

	return base.NewEmptyOK()
}

func (d *Dispatcher) applyTextParameters(conn *session.Connection, body []byte) {
	for _, line := range strings.Split(string(body), "\r\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "volume":
			vol, err := strconv.ParseFloat(value, 64)
			if err != nil {
				d.log.Warn().Str("value", value).Msg("SET_PARAMETER: bad volume")
				continue
			}
			if conn.Audio != nil {
				conn.Audio.Enqueue(audiortp.Command{Kind: audiortp.CmdSetVolume, Volume: vol})
			}

		case "progress":
			parts := strings.Split(value, "/")
			if len(parts) != 3 {
				d.log.Warn().Str("value", value).Msg("SET_PARAMETER: bad progress")
				continue
			}
			start, err1 := strconv.ParseUint(parts[0], 10, 32)
			current, err2 := strconv.ParseUint(parts[1], 10, 32)
			end, err3 := strconv.ParseUint(parts[2], 10, 32)
			if err1 != nil || err2 != nil || err3 != nil {
				d.log.Warn().Str("value", value).Msg("SET_PARAMETER: bad progress")
				continue
			}
			if conn.Audio != nil {
				conn.Audio.Enqueue(audiortp.Command{
					Kind:            audiortp.CmdSetProgress,
					ProgressStart:   uint32(start),
					ProgressCurrent: uint32(current),
					ProgressEnd:     uint32(end),
				})
			}

		default:
			d.log.Warn().Str("key", key).Msg("SET_PARAMETER: unknown parameter")
		}
	}
}

// handleRecord answers RECORD with the fixed audio-latency/jack-status
// headers the reference receiver always reports.
func (d *Dispatcher) handleRecord() *base.Response {
	res := &base.Response{StatusCode: base.StatusOK, Header: make(base.Header)}
	res.Header.Set("Audio-Latency", "11025")
	res.Header.Set("Audio-Jack-Status", "connected; type=analog")
	return res
}

// handleFlush answers FLUSH: the RTP-Info header carries the sequence
// number the stream should flush up to.
func (d *Dispatcher) handleFlush(conn *session.Connection, req *base.Request) *base.Response {
	if conn.Audio != nil {
		if seq, ok := parseFlushSeq(req.Header.Get("RTP-Info")); ok {
			conn.Audio.Enqueue(audiortp.Command{Kind: audiortp.CmdFlush, FlushSeq: seq})
		}
	}
	return base.NewEmptyOK()
}

// parseFlushSeq extracts the seq= field from an RTP-Info header value like
// "seq=12345".
func parseFlushSeq(header string) (uint16, bool) {
	for _, field := range strings.Split(header, ";") {
		field = strings.TrimSpace(field)
		k, v, found := strings.Cut(field, "=")
		if !found || strings.TrimSpace(k) != "seq" {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 16)
		if err != nil {
			return 0, false
		}
		return uint16(n), true
	}
	return 0, false
}
