package base

import (
	"bufio"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

func headerKeyNormalize(in string) string {
	switch strings.ToLower(in) {
	case "cseq":
		return "CSeq"
	case "rtp-info":
		return "RTP-Info"
	case "www-authenticate":
		return "WWW-Authenticate"
	case "x-apple-session-id":
		return "X-Apple-Session-Id"
	}
	return http.CanonicalHeaderKey(in)
}

// HeaderValue holds the value(s) sent for a single header key.
type HeaderValue []string

// Header is the set of header fields of a Request or Response.
type Header map[string]HeaderValue

// Get returns the first value of key, or "" if absent.
func (h Header) Get(key string) string {
	v, ok := h[headerKeyNormalize(key)]
	if !ok || len(v) == 0 {
		return ""
	}
	return v[0]
}

// Set assigns a single value to key.
func (h Header) Set(key, value string) {
	h[headerKeyNormalize(key)] = HeaderValue{value}
}

func (h *Header) read(rb *bufio.Reader) error {
	*h = make(Header)
	count := 0

	for {
		b, err := rb.ReadByte()
		if err != nil {
			return err
		}

		if b == '\r' {
			if err := readByteEqual(rb, '\n'); err != nil {
				return err
			}
			break
		}

		if count >= maxHeaderCount {
			return fmt.Errorf("too many headers")
		}

		key := string([]byte{b})
		byts, err := readBytesLimited(rb, ':', maxHeaderKeyLen-1)
		if err != nil {
			return fmt.Errorf("malformed header key: %w", err)
		}
		key += string(byts[:len(byts)-1])
		key = headerKeyNormalize(key)

		for {
			b, err := rb.ReadByte()
			if err != nil {
				return err
			}
			if b != ' ' {
				break
			}
		}
		rb.UnreadByte() //nolint:errcheck

		byts, err = readBytesLimited(rb, '\r', maxHeaderValLen)
		if err != nil {
			return fmt.Errorf("malformed header value: %w", err)
		}
		val := string(byts[:len(byts)-1])

		if err := readByteEqual(rb, '\n'); err != nil {
			return err
		}

		(*h)[key] = append((*h)[key], val)
		count++
	}

	return nil
}

func (h Header) write(wb *bufio.Writer) error {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		for _, v := range h[k] {
			if _, err := wb.Write([]byte(k + ": " + v + "\r\n")); err != nil {
				return err
			}
		}
	}

	_, err := wb.Write([]byte("\r\n"))
	return err
}
