package rtsp

import (
	"context"
	"net"
	"strconv"

	"github.com/antimof/UxPlay-sub000/internal/audiortp"
	"github.com/antimof/UxPlay-sub000/internal/cryptoutil"
	"github.com/antimof/UxPlay-sub000/internal/mirrorrtp"
	"github.com/antimof/UxPlay-sub000/internal/ntpsync"
	"github.com/antimof/UxPlay-sub000/internal/plist"
	"github.com/antimof/UxPlay-sub000/internal/session"
	"github.com/antimof/UxPlay-sub000/pkg/base"
)

// Stream types named in a SETUP streams[] entry's "type" field.
const (
	streamTypeAudio     = 96
	streamTypeMirroring = 110
)

// handleSetup answers SETUP's two distinct phases, told apart by which
// fields the parsed plist body carries: the initial phase ("eiv"/"ekey"/
// "timingPort") opens the NTP and audio subsessions, the later
// streams-array phase ("streams": [...]) opens one mirroring or audio
// subsession per entry.
func (d *Dispatcher) handleSetup(conn *session.Connection, req *base.Request) *base.Response {
	v, err := plist.Unmarshal(req.Body)
	if err != nil {
		return &base.Response{StatusCode: base.StatusBadRequest}
	}
	dict, ok := v.(plist.Dict)
	if !ok {
		return &base.Response{StatusCode: base.StatusBadRequest}
	}

	if _, isInitial := dict["ekey"]; isInitial {
		return d.handleInitialSetup(conn, dict)
	}
	if _, isStreams := dict["streams"]; isStreams {
		return d.handleStreamsSetup(conn, dict)
	}
	return &base.Response{StatusCode: base.StatusBadRequest}
}

func (d *Dispatcher) handleInitialSetup(conn *session.Connection, dict plist.Dict) *base.Response {
	eiv, err := plistData(dict, "eiv")
	if err != nil {
		return &base.Response{StatusCode: base.StatusBadRequest}
	}
	ekey, err := plistData(dict, "ekey")
	if err != nil {
		return &base.Response{StatusCode: base.StatusBadRequest}
	}
	timingPort, err := plistInt(dict, "timingPort")
	if err != nil {
		return &base.Response{StatusCode: base.StatusBadRequest}
	}

	if conn.FairPlay == nil {
		return &base.Response{StatusCode: base.StatusMethodNotValidState}
	}
	aesKey, err := conn.FairPlay.Decrypt(ekey)
	if err != nil {
		d.log.Warn().Err(err).Msg("SETUP: stream key decrypt failed")
		return &base.Response{StatusCode: base.StatusBadRequest}
	}
	conn.SetStreamKeys(aesKey, eiv)

	id := connID(conn)
	remoteIP := hostIP(conn.RemoteAddr)
	ntp, localTimingPort, err := ntpsync.New(d.log, &net.UDPAddr{IP: remoteIP, Port: int(timingPort)}, id, d.sink, conn, d.cfg.MaxNTPTimeouts)
	if err != nil {
		d.log.Warn().Err(err).Msg("SETUP: ntpsync.New failed")
		return &base.Response{StatusCode: base.StatusInternalServerError}
	}
	ntp.Start(context.Background())
	conn.NTP = ntp

	compressionType := int(plistFloat(dict, "ct", float64(audiortp.CompressionALAC)))
	format := d.sink.AudioGetFormat(compressionType)
	audio, controlPort, dataPort, err := audiortp.New(d.log, id, d.sink, ntp, aesKey, eiv, compressionType, format, 0, remoteIP)
	if err != nil {
		d.log.Warn().Err(err).Msg("SETUP: audiortp.New failed")
		return &base.Response{StatusCode: base.StatusInternalServerError}
	}
	audio.Start(context.Background())
	conn.Audio = audio
	conn.SetAudioPorts(controlPort, dataPort)

	body, err := plist.Marshal(plist.Dict{
		"timingPort": int64(localTimingPort),
		"eventPort":  int64(d.eventPort),
	})
	if err != nil {
		return &base.Response{StatusCode: base.StatusInternalServerError}
	}
	return base.NewPlistResponse(body)
}

func (d *Dispatcher) handleStreamsSetup(conn *session.Connection, dict plist.Dict) *base.Response {
	rawStreams, ok := dict["streams"].([]interface{})
	if !ok {
		return &base.Response{StatusCode: base.StatusBadRequest}
	}

	responses := make([]interface{}, 0, len(rawStreams))
	for _, rs := range rawStreams {
		entry, ok := rs.(plist.Dict)
		if !ok {
			return &base.Response{StatusCode: base.StatusBadRequest}
		}
		streamType, err := plistInt(entry, "type")
		if err != nil {
			return &base.Response{StatusCode: base.StatusBadRequest}
		}

		switch streamType {
		case streamTypeMirroring:
			res, err := d.setupMirroring(conn, entry)
			if err != nil {
				d.log.Warn().Err(err).Msg("SETUP: mirroring stream failed")
				return base.CloseConn(&base.Response{StatusCode: base.StatusBadRequest})
			}
			responses = append(responses, res)

		case streamTypeAudio:
			controlPort, dataPort := conn.AudioPorts()
			responses = append(responses, plist.Dict{
				"type":        int64(streamTypeAudio),
				"dataPort":    int64(dataPort),
				"controlPort": int64(controlPort),
			})

		default:
			return base.CloseConn(&base.Response{StatusCode: base.StatusBadRequest})
		}
	}

	body, err := plist.Marshal(plist.Dict{"streams": responses})
	if err != nil {
		return &base.Response{StatusCode: base.StatusInternalServerError}
	}
	return base.NewPlistResponse(body)
}

// setupMirroring derives the per-stream mirror key/IV in two DeriveKey16
// stages (the audio stream key with the ECDH secret, then that result with
// the entry's streamConnectionID) and opens the mirroring session.
func (d *Dispatcher) setupMirroring(conn *session.Connection, entry plist.Dict) (plist.Dict, error) {
	streamConnID, err := plistInt(entry, "streamConnectionID")
	if err != nil {
		return nil, err
	}
	conn.SetStreamConnectionID(uint64(streamConnID))

	aesKey, _ := conn.StreamKeys()
	ecdhSecret := conn.ECDHSecret()

	eaeskey16 := cryptoutil.DeriveKey16(aesKey, ecdhSecret)
	idStr := strconv.FormatUint(uint64(streamConnID), 10)
	key := cryptoutil.DeriveKey16([]byte("AirPlayStreamKey"+idStr), eaeskey16)
	iv := cryptoutil.DeriveKey16([]byte("AirPlayStreamIV"+idStr), eaeskey16)

	mirror, port, err := mirrorrtp.New(d.log, connID(conn), d.sink, conn.NTP, key, iv)
	if err != nil {
		return nil, err
	}
	mirror.Start(context.Background())
	conn.Mirror = mirror

	return plist.Dict{
		"type":     int64(streamTypeMirroring),
		"dataPort": int64(port),
	}, nil
}

// connID renders a connection's arena handle as a stable string identifier
// for the RTP sessions' logging and renderer.Sink callbacks.
func connID(conn *session.Connection) string {
	return conn.ID()
}

// hostIP extracts the IP from a net.Addr, the shape net.Conn.RemoteAddr
// always returns for TCP connections.
func hostIP(addr net.Addr) net.IP {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return nil
	}
	return net.ParseIP(host)
}
