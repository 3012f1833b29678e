// Package rtsp implements the request dispatcher that sits on top of the
// pkg/base codec: one Handle call per parsed Request, routing by
// method||path the way raop_handlers.h's big if/else chain does, translated
// into a Go switch plus one small file per route group.
package rtsp

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/antimof/UxPlay-sub000/internal/config"
	"github.com/antimof/UxPlay-sub000/internal/hls"
	"github.com/antimof/UxPlay-sub000/internal/pairing"
	"github.com/antimof/UxPlay-sub000/internal/renderer"
	"github.com/antimof/UxPlay-sub000/internal/session"
	"github.com/antimof/UxPlay-sub000/pkg/base"
)

// serverHeader is the value of every response's Server header, matching the
// version string AirPlay legacy pairing advertises elsewhere (GLOBAL_VERSION
// in original_source/lib/global.h).
const serverHeader = "AirTunes/220.68"

// Action tells the daemon layer about a side effect Handle can't perform
// itself because it doesn't own the connection's Parser or net.Conn.
type Action int

// Actions a handled request can ask the daemon to perform after the
// response has been written.
const (
	// ActionNone: nothing further to do.
	ActionNone Action = iota
	// ActionUpgradeToReverse: the daemon must call conn's Parser.SetReverse
	// and set conn.Class to session.ClassPTTH (POST /reverse); handleReverse
	// has already wired a reversePusher into the HLS controller.
	ActionUpgradeToReverse
)

// Dispatcher routes parsed requests to their handlers. One Dispatcher is
// shared by every connection the daemon accepts.
type Dispatcher struct {
	log      zerolog.Logger
	cfg      *config.Config
	identity *pairing.Identity
	arena    *session.Arena
	sink     renderer.Sink

	// eventPort is the daemon's own RTSP port, reported back as
	// SETUP's "eventPort" and used to build the HLS controller's
	// http://localhost:<port> URI prefix (original_source's
	// conn->raop->port).
	eventPort int

	// The AirPlay-video controller and the PTTH "push" connection are
	// server-scoped, not connection-scoped: the client's push socket
	// (POST /reverse) and the socket carrying POST /play and POST /action
	// are two different Connections referencing the same one active
	// playback, per raop_conn_t.raop->airplay_video in
	// original_source/lib/http_handlers.h. Lifecycle: created on the
	// first GET /info seen on any connection, replaced if a later /info
	// supersedes it (spec.md §5 "Global state").
	mu        sync.Mutex
	hlsID     string
	hls       *hls.Controller
	pushConn  *session.Connection
}

// New builds a Dispatcher. eventPort is the daemon's own RTSP listening
// port, reported in SETUP responses and used as the HLS local-prefix port.
func New(log zerolog.Logger, cfg *config.Config, identity *pairing.Identity, arena *session.Arena, sink renderer.Sink, eventPort int) *Dispatcher {
	return &Dispatcher{
		log:       log.With().Str("component", "rtsp").Logger(),
		cfg:       cfg,
		identity:  identity,
		arena:     arena,
		sink:      sink,
		eventPort: eventPort,
	}
}

// Handle dispatches one parsed request for conn and returns the response to
// write back, plus any Action the daemon must additionally carry out.
func (d *Dispatcher) Handle(conn *session.Connection, req *base.Request) (*base.Response, Action) {
	res, action := d.route(conn, req)
	if res.Header == nil {
		res.Header = make(base.Header)
	}
	if cseq := req.Header.Get("CSeq"); cseq != "" {
		res.Header.Set("CSeq", cseq)
	}
	res.Header.Set("Server", serverHeader)
	return res, action
}

func (d *Dispatcher) route(conn *session.Connection, req *base.Request) (*base.Response, Action) {
	path, query := splitQuery(req.URL)

	switch {
	case req.Method == base.MethodOptions:
		return d.handleOptions(), ActionNone

	case req.Method == base.MethodGet && path == "/info":
		return d.handleInfo(conn, req), ActionNone

	case req.Method == base.MethodPost && path == "/pair-setup":
		return d.handlePairSetup(conn), ActionNone

	case req.Method == base.MethodPost && path == "/pair-verify":
		return d.handlePairVerify(conn, req), ActionNone

	case req.Method == base.MethodPost && path == "/fp-setup":
		return d.handleFPSetup(conn, req), ActionNone

	case req.Method == base.MethodPost && path == "/pair-pin-start":
		return d.handlePairPinStart(conn, req), ActionNone

	case req.Method == base.MethodPost && path == "/pair-pin-confirm":
		return d.handlePairPinConfirm(conn, req), ActionNone

	case req.Method == base.MethodSetup:
		return d.handleSetup(conn, req), ActionNone

	case req.Method == base.MethodGetParameter:
		return d.handleGetParameter(req), ActionNone

	case req.Method == base.MethodSetParameter:
		return d.handleSetParameter(conn, req), ActionNone

	case req.Method == base.MethodPost && path == "/feedback":
		return base.NewEmptyOK(), ActionNone

	case req.Method == base.MethodRecord:
		return d.handleRecord(), ActionNone

	case req.Method == base.MethodPause:
		return base.NewEmptyOK(), ActionNone

	case req.Method == base.MethodFlush:
		return d.handleFlush(conn, req), ActionNone

	case req.Method == base.MethodTeardown:
		conn.Teardown()
		return base.NewEmptyOK(), ActionNone

	case req.Method == base.MethodPost && path == "/reverse":
		return d.handleReverse(conn, req)

	case req.Method == base.MethodPost && path == "/play":
		return d.handlePlay(conn, req), ActionNone

	case req.Method == base.MethodPost && path == "/action":
		return d.handleAction(conn, req), ActionNone

	case req.Method == base.MethodPost && path == "/stop":
		return d.handleStop(), ActionNone

	case req.Method == base.MethodPost && path == "/scrub":
		return d.handleScrub(query), ActionNone

	case req.Method == base.MethodPost && path == "/rate":
		return d.handleRate(query), ActionNone

	case req.Method == base.MethodPut && path == "/setProperty":
		return d.handleSetProperty(query), ActionNone

	case req.Method == base.MethodGet && path == "/playback_info":
		return d.handlePlaybackInfo(conn), ActionNone

	case req.Method == base.MethodGet && path == "/master.m3u8":
		return d.handleMasterPlaylist(), ActionNone

	case req.Method == base.MethodGet:
		return d.handleMediaPlaylist(path), ActionNone
	}

	return &base.Response{StatusCode: base.StatusNotImplemented}, ActionNone
}

// splitQuery splits a request URL into its path and raw query string (the
// part after "?", or "" if absent), the manual parsing
// http_handler_scrub/rate/set_property use instead of a structured query
// type.
func splitQuery(url string) (path, query string) {
	for i := 0; i < len(url); i++ {
		if url[i] == '?' {
			return url[:i], url[i+1:]
		}
	}
	return url, ""
}
