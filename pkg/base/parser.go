package base

import (
	"bufio"
	"io"
)

const readBufferSize = 4096

// Parser reads framed RTSP/HTTP/PTTH messages off a connection. Once a
// connection has been upgraded to reverse-HTTP (PTTH), the server becomes
// the one issuing requests and the client's replies are plain HTTP/1.1
// responses; Parser recognizes those by peeking at the first 8 bytes of
// each message and, if they spell "HTTP/1.1", returns them as a Response
// instead of attempting to parse a Request. The reverse bit is sticky: once
// a connection is marked reverse it never goes back.
type Parser struct {
	br      *bufio.Reader
	reverse bool
}

// NewParser allocates a Parser reading from rw.
func NewParser(rw io.ReadWriter) *Parser {
	return &Parser{br: bufio.NewReaderSize(rw, readBufferSize)}
}

// SetReverse marks the connection as reverse-HTTP. Sticky: Parser has no
// way to clear the mark once set.
func (p *Parser) SetReverse() {
	p.reverse = true
}

// IsReverse reports whether the connection has been upgraded.
func (p *Parser) IsReverse() bool {
	return p.reverse
}

// Next reads the next message. It returns exactly one of (*Request, nil) or
// (nil, *Response) depending on which side's framing was observed.
func (p *Parser) Next() (*Request, *Response, error) {
	if p.reverse {
		peek, err := p.br.Peek(8)
		if err == nil && string(peek) == string(ProtoHTTP11) {
			res := &Response{}
			if err := readResponseLine(res, p.br); err != nil {
				return nil, nil, err
			}
			return nil, res, nil
		}
	}

	req := &Request{}
	if err := req.Read(p.br); err != nil {
		return nil, nil, err
	}
	return req, nil, nil
}

// readResponseLine parses a reverse-HTTP response: status line, headers,
// and a Content-Length body. Response has no Read method of its own:
// these reverse responses are the only responses this package parses.
func readResponseLine(res *Response, rb *bufio.Reader) error {
	byts, err := readBytesLimited(rb, ' ', 32)
	if err != nil {
		return err
	}
	res.Protocol = Protocol(byts[:len(byts)-1])

	byts, err = readBytesLimited(rb, ' ', 8)
	if err != nil {
		return err
	}
	code := 0
	for _, c := range byts[:len(byts)-1] {
		if c < '0' || c > '9' {
			break
		}
		code = code*10 + int(c-'0')
	}
	res.StatusCode = StatusCode(code)

	byts, err = readBytesLimited(rb, '\r', 128)
	if err != nil {
		return err
	}
	res.StatusMessage = string(byts[:len(byts)-1])

	if err := readByteEqual(rb, '\n'); err != nil {
		return err
	}

	res.Header = make(Header)
	if err := res.Header.read(rb); err != nil {
		return err
	}

	res.Body, err = readContentLength(rb, res.Header)
	return err
}
