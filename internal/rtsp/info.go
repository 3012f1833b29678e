package rtsp

import (
	"encoding/hex"

	"github.com/antimof/UxPlay-sub000/internal/hls"
	"github.com/antimof/UxPlay-sub000/internal/plist"
	"github.com/antimof/UxPlay-sub000/internal/session"
	"github.com/antimof/UxPlay-sub000/pkg/base"
)

// Constants named in original_source/lib/global.h and dnssdint.h, carried
// over verbatim: the AirPlay protocol/source version string, the device
// model this server identifies as, the opaque FairPlay-adjacent public key
// blob every legacy-pairing AirPlay receiver advertises, and the AirPlay
// "protocol information" UUID.
const (
	airplayModel      = "AppleTV3,2"
	airplaySourceVers = "220.68"
	airplayPI         = "2e388006-13ba-4041-9a67-25dd4a43d536"
	airplayPKHex      = "b07727d6f6cd6e08b58ede525ec3cdeaa252ad9f683feb212ef8a205246554e7"
	airplayFeatures   = int64(0x1E)<<32 | 0x5A7FFFF7
)

// handleInfo answers GET /info and, on an AirPlay connection's first call,
// creates the server-scoped HLS controller, per spec.md §4.10.
func (d *Dispatcher) handleInfo(conn *session.Connection, req *base.Request) *base.Response {
	conn.Class = session.ClassAirPlay
	d.ensureHLSController(req.Header.Get("X-Apple-Session-Id"))

	pk, _ := hex.DecodeString(airplayPKHex)

	body, err := plist.Marshal(plist.Dict{
		"txtAirPlay": encodeTXT(airplayTXTRecord(d.cfg.DeviceID)),
		"features":   airplayFeatures,
		"name":       d.cfg.ServerName,
		"audioFormats": []interface{}{
			plist.Dict{"type": int64(100), "audioInputFormats": int64(67108860), "audioOutputFormats": int64(67108860)},
			plist.Dict{"type": int64(101), "audioInputFormats": int64(67108860), "audioOutputFormats": int64(67108860)},
		},
		"pi":                       airplayPI,
		"vv":                       int64(2),
		"statusFlags":              int64(68),
		"keepAliveLowPower":        true,
		"sourceVersion":            airplaySourceVers,
		"pk":                       pk,
		"keepAliveSendStatsAsBody": true,
		"deviceID":                 d.cfg.DeviceID,
		"audioLatencies": []interface{}{
			plist.Dict{"outputLatencyMicros": int64(0), "type": int64(100), "audioType": "default", "inputLatencyMicros": int64(0)},
			plist.Dict{"outputLatencyMicros": int64(0), "type": int64(101), "audioType": "default", "inputLatencyMicros": int64(0)},
		},
		"model":      airplayModel,
		"macAddress": d.cfg.DeviceID,
		"displays": []interface{}{
			plist.Dict{
				"uuid":           "e0ff8a27-6738-3d56-8a16-cc53aacee925",
				"widthPhysical":  int64(0),
				"heightPhysical": int64(0),
				"width":          int64(1920),
				"height":         int64(1080),
				"widthPixels":    int64(1920),
				"heightPixels":   int64(1080),
				"rotation":       false,
				"refreshRate":    1.0 / 60.0,
				"overscanned":    true,
				"features":       int64(14),
			},
		},
	})
	if err != nil {
		return &base.Response{StatusCode: base.StatusInternalServerError}
	}

	return base.NewPlistResponse(body)
}

// ensureHLSController creates the shared AirPlay-video controller on the
// first /info for a given X-Apple-Session-Id, and replaces it if a later
// /info supersedes it with a new session id, per spec.md §5 "Global state."
func (d *Dispatcher) ensureHLSController(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if sessionID == "" || d.hlsID == sessionID {
		return
	}
	d.hlsID = sessionID
	d.hls = hls.New(sessionID, d.eventPort, d.sink)
	d.pushConn = nil
}

// controller returns the current shared HLS controller, or nil if none has
// been created yet.
func (d *Dispatcher) controller() *hls.Controller {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hls
}

// airplayTXTRecord builds the _airplay._tcp DNS-SD TXT key/value set named
// in spec.md §6, reused verbatim as the "txtAirPlay" data blob GET /info
// embeds.
func airplayTXTRecord(deviceID string) map[string]string {
	return map[string]string{
		"deviceid": deviceID,
		"features": "0x527FFEE6,0x0",
		"flags":    "0x4",
		"model":    airplayModel,
		"pk":       airplayPKHex,
		"pi":       airplayPI,
		"srcvers":  airplaySourceVers,
		"vv":       "2",
	}
}

// encodeTXT renders a DNS-SD TXT record as its length-prefixed
// "key=value" wire segments (RFC 6763 §6.1). internal/discovery's
// ServiceInfo.TXT is already this shape for the host DNS-SD daemon; GET
// /info separately needs the same bytes inline as a plist data blob, which
// is the one piece of wire encoding not covered by any third-party package
// in the retrieved corpus (see DESIGN.md).
func encodeTXT(kv map[string]string) []byte {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sortStrings(keys)

	var out []byte
	for _, k := range keys {
		seg := k + "=" + kv[k]
		if len(seg) > 255 {
			seg = seg[:255]
		}
		out = append(out, byte(len(seg)))
		out = append(out, seg...)
	}
	return out
}

// sortStrings is a tiny insertion sort so the TXT record's segment order is
// deterministic without importing "sort" into a file that otherwise has no
// other use for it.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
