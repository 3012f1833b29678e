package base

import (
	"bufio"
	"fmt"
)

// Request is an incoming RTSP, HTTP, or reverse-HTTP (PTTH) request.
type Request struct {
	Method   Method
	URL      string
	Protocol Protocol
	Header   Header
	Body     []byte
}

// Read parses a request from rb. The caller is responsible for having
// already peeked/consumed any reverse-direction framing (see Parser).
func (req *Request) Read(rb *bufio.Reader) error {
	byts, err := readBytesLimited(rb, ' ', maxMethodLength)
	if err != nil {
		return err
	}
	req.Method = Method(byts[:len(byts)-1])
	if req.Method == "" {
		return fmt.Errorf("empty method")
	}

	byts, err = readBytesLimited(rb, ' ', maxURLLength)
	if err != nil {
		return err
	}
	req.URL = string(byts[:len(byts)-1])
	if req.URL == "" {
		return fmt.Errorf("empty url")
	}

	byts, err = readBytesLimited(rb, '\r', maxProtocolLength)
	if err != nil {
		return err
	}
	proto := Protocol(byts[:len(byts)-1])
	switch proto {
	case ProtoRTSP10, ProtoHTTP11, ProtoPTTH10:
	default:
		return fmt.Errorf("unsupported protocol %q", proto)
	}
	req.Protocol = proto

	if err := readByteEqual(rb, '\n'); err != nil {
		return err
	}

	req.Header = make(Header)
	if err := req.Header.read(rb); err != nil {
		return err
	}

	req.Body, err = readContentLength(rb, req.Header)
	return err
}

// Write serializes the request to bw.
func (req Request) Write(bw *bufio.Writer) error {
	if _, err := bw.Write([]byte(string(req.Method) + " " + req.URL + " " + string(req.Protocol) + "\r\n")); err != nil {
		return err
	}

	if req.Header == nil {
		req.Header = make(Header)
	}
	if len(req.Body) != 0 {
		req.Header.Set("Content-Length", fmt.Sprintf("%d", len(req.Body)))
	}

	if err := req.Header.write(bw); err != nil {
		return err
	}

	if err := writeBody(bw, req.Body); err != nil {
		return err
	}

	return bw.Flush()
}
