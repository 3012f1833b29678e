package hls

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antimof/UxPlay-sub000/internal/renderer"
)

func TestRewritePlaylistRoundTrip(t *testing.T) {
	data := []byte("http://c.example/a.m3u8\nsomething\nhttp://c.example/b.m3u8\n")
	rewritten := RewritePlaylist(data, "http://c.example", "http://localhost:8080")

	require.NotContains(t, string(rewritten), "http://c.example")
	require.Equal(t, 2, countOccurrences(string(rewritten), "http://localhost:8080"))
	require.Equal(t, len(data)+2*(len("http://localhost:8080")-len("http://c.example")), len(rewritten))
}

func countOccurrences(s, substr string) int {
	count := 0
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			count++
		}
	}
	return count
}

func TestParseMediaPlaylistURIs(t *testing.T) {
	data := []byte("#EXTM3U\nhttp://c.example/v/720.m3u8\n#EXT-X-STREAM-INF\nhttp://c.example/v/480.m3u8\n")
	uris := ParseMediaPlaylistURIs(data, "http://c.example")
	require.Equal(t, []string{"http://c.example/v/720.m3u8", "http://c.example/v/480.m3u8"}, uris)
}

func TestExpandCondensedPlaylistIsNoOpOnPlainPlaylist(t *testing.T) {
	data := []byte("#EXTM3U\n#EXTINF:10,\nsegment1.ts\n#EXT-X-ENDLIST")
	out := ExpandCondensedPlaylist(data)
	require.Equal(t, data, out)
}

func TestExpandCondensedPlaylistExpandsParams(t *testing.T) {
	header := `#YT-EXT-CONDENSED-URL BASE-URI="http://example.com/base" PARAMS="p1,p2" PREFIX="X"`
	data := []byte(header + "\n#EXTINF:10,\nXaabbb\n#EXT-X-ENDLIST")
	out := ExpandCondensedPlaylist(data)
	require.Contains(t, string(out), "http://example.com/base/")
	require.NotContains(t, string(out), "Xaabbb")
}

type stubSink struct {
	renderer.NoopSink
	playedURL string
	startPos  float64
}

func (s *stubSink) OnVideoPlay(_ string, url string, startPos float64) {
	s.playedURL = url
	s.startPos = startPos
}

type recordingPusher struct {
	requests []struct {
		method, url string
		body        []byte
	}
}

func (p *recordingPusher) PushRequest(method, url string, _ map[string]string, body []byte) error {
	p.requests = append(p.requests, struct {
		method, url string
		body        []byte
	}{method, url, body})
	return nil
}

func TestOnPlayIssuesFirstFCUPRequest(t *testing.T) {
	sink := &stubSink{}
	c := New("sess1", 8080, sink)
	pusher := &recordingPusher{}
	c.SetPusher(pusher)

	err := c.OnPlay("uuid1", "http://c.example/v/master.m3u8", 12.5)
	require.NoError(t, err)
	require.Len(t, pusher.requests, 1)
	require.Equal(t, "/event", pusher.requests[0].url)
}

func TestFullPlaySequenceInvokesOnVideoPlay(t *testing.T) {
	sink := &stubSink{}
	c := New("sess1", 8080, sink)
	pusher := &recordingPusher{}
	c.SetPusher(pusher)

	require.NoError(t, c.OnPlay("uuid1", "http://c.example/v/master.m3u8", 12.5))

	master := []byte("http://c.example/v/a.m3u8\nhttp://c.example/v/b.m3u8\n")
	require.NoError(t, c.OnAction("http://c.example/v/master.m3u8", master))
	require.Len(t, pusher.requests, 2) // master fetch + first media fetch

	require.NoError(t, c.OnAction("http://c.example/v/a.m3u8", []byte("#EXTM3U\nseg1.ts\n")))
	require.Len(t, pusher.requests, 3)

	require.NoError(t, c.OnAction("http://c.example/v/b.m3u8", []byte("#EXTM3U\nseg2.ts\n")))

	require.Equal(t, "http://localhost:8080/master.m3u8", sink.playedURL)
	require.Equal(t, 12.5, sink.startPos)
}
