// Package daemon owns the accepted TCP sockets: the dual IPv4/optional-IPv6
// listeners, the per-connection accept loop, the 12-connection
// AppleTV3-compatibility cap, and the long-term Ed25519 identity and DNS-SD
// advertisements every connection shares. Grounded on gortsplib's
// ServerConn/Server accept-loop split (the teacher repo's own
// goroutine-per-connection model), generalized from "one RTSP session per
// socket" to "one RTSP OR reverse-HTTP session per socket, reclassified as
// the handshake progresses."
package daemon

import (
	"bufio"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/antimof/UxPlay-sub000/internal/config"
	"github.com/antimof/UxPlay-sub000/internal/cryptoutil"
	"github.com/antimof/UxPlay-sub000/internal/discovery"
	"github.com/antimof/UxPlay-sub000/internal/pairing"
	"github.com/antimof/UxPlay-sub000/internal/renderer"
	"github.com/antimof/UxPlay-sub000/internal/rtsp"
	"github.com/antimof/UxPlay-sub000/internal/session"
	"github.com/antimof/UxPlay-sub000/pkg/base"
)

// Server accepts connections and dispatches their requests. One Server
// serves one logical AirPlay legacy-pairing device.
type Server struct {
	log   zerolog.Logger
	cfg   *config.Config
	arena *session.Arena
	disp  *rtsp.Dispatcher
	sink  renderer.Sink

	listeners []net.Listener
	port      int

	wg   sync.WaitGroup
	quit chan struct{}
}

// New builds a Server bound to its listening port(s) but not yet accepting
// connections; call Start to begin serving.
func New(log zerolog.Logger, cfg *config.Config, sink renderer.Sink) (*Server, error) {
	priv, err := cryptoutil.LoadOrGenerateEd25519Key(cfg.DeviceID, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("daemon: loading identity: %w", err)
	}
	identity := pairing.NewIdentity(priv)
	arena := session.NewArena()

	primary, err := net.Listen("tcp4", fmt.Sprintf(":%d", cfg.RTSPPort))
	if err != nil {
		return nil, fmt.Errorf("daemon: listening on RTSP port: %w", err)
	}
	port := primary.Addr().(*net.TCPAddr).Port

	listeners := []net.Listener{primary}
	if cfg.EnableIPv6 {
		if ln, err := net.Listen("tcp6", fmt.Sprintf(":%d", port)); err == nil {
			listeners = append(listeners, ln)
		} else {
			log.Warn().Err(err).Msg("daemon: IPv6 listener unavailable, continuing IPv4-only")
		}
	}

	disp := rtsp.New(log, cfg, identity, arena, sink, port)

	return &Server{
		log:       log.With().Str("component", "daemon").Logger(),
		cfg:       cfg,
		arena:     arena,
		disp:      disp,
		sink:      sink,
		listeners: listeners,
		port:      port,
		quit:      make(chan struct{}),
	}, nil
}

// Port returns the bound RTSP port (useful when cfg.RTSPPort was 0).
func (s *Server) Port() int {
	return s.port
}

// Start registers the DNS-SD advertisements and launches one accept loop
// per listener. It returns immediately; Stop ends serving.
func (s *Server) Start() {
	s.advertise()
	for _, ln := range s.listeners {
		s.wg.Add(1)
		go s.acceptLoop(ln)
	}
}

func (s *Server) advertise() {
	txt := map[string]string{
		"deviceid": s.cfg.DeviceID,
		"model":    airplayModel,
	}
	services := []discovery.ServiceInfo{
		{Type: "_raop._tcp", InstanceName: raopInstanceName(s.cfg.DeviceID, s.cfg.ServerName), Port: s.port, TXT: txt},
		{Type: "_airplay._tcp", InstanceName: s.cfg.ServerName, Port: s.port, TXT: txt},
	}
	for _, svc := range services {
		if err := s.cfg.Advertiser.Advertise(svc); err != nil {
			s.log.Warn().Err(err).Str("service", svc.Type).Msg("daemon: advertise failed")
		}
	}
}

func (s *Server) withdraw() {
	services := []discovery.ServiceInfo{
		{Type: "_raop._tcp", InstanceName: raopInstanceName(s.cfg.DeviceID, s.cfg.ServerName), Port: s.port},
		{Type: "_airplay._tcp", InstanceName: s.cfg.ServerName, Port: s.port},
	}
	for _, svc := range services {
		if err := s.cfg.Advertiser.Withdraw(svc); err != nil {
			s.log.Warn().Err(err).Str("service", svc.Type).Msg("daemon: withdraw failed")
		}
	}
}

// raopInstanceName builds the "<deviceid-no-colons>@<name>" instance name
// convention _raop._tcp advertisements use, per spec.md §6.
func raopInstanceName(deviceID, name string) string {
	compact := make([]byte, 0, len(deviceID))
	for _, c := range deviceID {
		if c != ':' {
			compact = append(compact, byte(c))
		}
	}
	return string(compact) + "@" + name
}

// airplayModel mirrors internal/rtsp's device-descriptor constant; kept
// distinct here since the TXT record advertised over mDNS is the host's
// responsibility, not internal/rtsp's.
const airplayModel = "AppleTV3,2"

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	for {
		nconn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				s.log.Warn().Err(err).Msg("daemon: accept failed")
				return
			}
		}

		if s.cfg.MaxConnections > 0 && s.arena.Count() >= s.cfg.MaxConnections {
			s.log.Warn().Msg("daemon: connection cap reached, rejecting")
			nconn.Close()
			continue
		}

		conn := session.NewConnection(nconn, s.sink)
		handle := s.arena.Insert(conn)
		s.sink.ConnInit(conn.ID())

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(conn)
			s.sink.ConnDestroy(conn.ID())
			s.arena.Remove(handle)
		}()
	}
}

// serve runs one connection's read/dispatch/write loop until it closes,
// errors, or a response asks for disconnect. After an upgrade to
// reverse-HTTP the loop keeps reading, but the parser then yields the
// client's responses, which are drained and discarded; the HLS
// controller's reversePusher writes requests to the connection instead.
func (s *Server) serve(conn *session.Connection) {
	defer conn.Teardown()

	parser := base.NewParser(conn.NetConn)
	bw := bufio.NewWriter(conn.NetConn)

	for {
		req, _, err := parser.Next()
		if err != nil {
			return
		}
		if req == nil {
			// A Response arriving here is the client's acknowledgment of
			// a pushed FCUP request on an upgraded reverse-HTTP
			// connection; the actual playlist bytes come back separately
			// as a forward POST /action on a different connection, so
			// there is nothing to do but keep draining these.
			continue
		}

		res, action := s.disp.Handle(conn, req)
		if err := res.Write(bw); err != nil {
			return
		}

		if action == rtsp.ActionUpgradeToReverse {
			parser.SetReverse()
			conn.Class = session.ClassPTTH
		}

		if res.CloseAfterSend {
			return
		}
	}
}

// Stop ends every accept loop and tears down all live connections.
func (s *Server) Stop() {
	close(s.quit)
	for _, ln := range s.listeners {
		ln.Close()
	}
	s.withdraw()

	for _, conn := range s.arena.All() {
		conn.Teardown()
	}

	s.wg.Wait()
}
