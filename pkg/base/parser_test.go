package base

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestRoundTrip(t *testing.T) {
	req := Request{
		Method:   MethodSetup,
		URL:      "rtsp://192.168.1.2/stream",
		Protocol: ProtoRTSP10,
		Header: Header{
			"CSeq": HeaderValue{"3"},
		},
		Body: []byte("hello"),
	}

	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	require.NoError(t, req.Write(bw))

	var got Request
	require.NoError(t, got.Read(bufio.NewReader(&buf)))
	require.Equal(t, req.Method, got.Method)
	require.Equal(t, req.URL, got.URL)
	require.Equal(t, req.Body, got.Body)
	require.Equal(t, "3", got.Header.Get("CSeq"))
}

func TestParserStickyReverse(t *testing.T) {
	var buf bytes.Buffer
	p := NewParser(&buf)

	require.False(t, p.IsReverse())
	p.SetReverse()
	require.True(t, p.IsReverse())
}

func TestParserReadsRequestWhenNotReverse(t *testing.T) {
	raw := "OPTIONS * RTSP/1.0\r\nCSeq: 1\r\n\r\n"
	buf := bytes.NewBufferString(raw)
	p := NewParser(buf)

	req, res, err := p.Next()
	require.NoError(t, err)
	require.Nil(t, res)
	require.Equal(t, MethodOptions, req.Method)
}

func TestParserDiscardsReverseHTTPResponse(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"
	buf := bytes.NewBufferString(raw)
	p := NewParser(buf)
	p.SetReverse()

	req, res, err := p.Next()
	require.NoError(t, err)
	require.Nil(t, req)
	require.Equal(t, StatusOK, res.StatusCode)
	require.Equal(t, []byte("ok"), res.Body)
}
