package hls

import (
	"bytes"
	"strings"
)

// RewritePlaylist replaces every occurrence of clientPrefix in data with
// localPrefix, byte for byte, satisfying the round-trip property: if data
// has k occurrences of clientPrefix (length m), the result has k
// occurrences of localPrefix (length n), zero of clientPrefix, and length
// |data| + k*(n-m).
func RewritePlaylist(data []byte, clientPrefix, localPrefix string) []byte {
	if clientPrefix == "" {
		out := make([]byte, len(data))
		copy(out, data)
		return out
	}
	return bytes.ReplaceAll(data, []byte(clientPrefix), []byte(localPrefix))
}

// ParseMediaPlaylistURIs scans the original (unrewritten) master playlist
// bytes for lines naming a media playlist under clientPrefix, returning
// them in the order encountered.
func ParseMediaPlaylistURIs(data []byte, clientPrefix string) []string {
	var uris []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if clientPrefix != "" && !strings.Contains(line, clientPrefix) {
			continue
		}
		if !strings.HasSuffix(line, ".m3u8") {
			continue
		}
		uris = append(uris, line)
	}
	return uris
}

// ExpandCondensedPlaylist expands a "#YT-EXT-CONDENSED-URL" playlist: each
// #EXTINF stanza's URI line is shortened to "<PREFIX>" followed by N
// parameter slots with the "/" separators omitted; expansion replaces
// PREFIX with BASE-URI and re-inserts a "/" before each parameter, per
// spec.md §4.10.
//
// Expanding an already-expanded (non-condensed) playlist is a no-op,
// satisfying the idempotence property: the header line is only present in
// the condensed form, so a playlist lacking it is returned unchanged.
func ExpandCondensedPlaylist(data []byte) []byte {
	lines := strings.Split(string(data), "\n")
	if len(lines) == 0 || !strings.HasPrefix(lines[0], "#YT-EXT-CONDENSED-URL") {
		out := make([]byte, len(data))
		copy(out, data)
		return out
	}

	header := lines[0]
	baseURI := extractAttr(header, "BASE-URI")
	params := strings.Split(extractAttr(header, "PARAMS"), ",")
	prefix := extractAttr(header, "PREFIX")

	var out strings.Builder
	isURILine := false
	for i := 1; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], "\r")
		switch {
		case strings.HasPrefix(line, "#EXTINF"):
			out.WriteString(line)
			out.WriteString("\n")
			isURILine = true
		case isURILine:
			out.WriteString(expandCondensedURI(line, prefix, baseURI, params))
			out.WriteString("\n")
			isURILine = false
		case line == "#EXT-X-ENDLIST":
			out.WriteString(line)
			out.WriteString("\n")
		default:
			out.WriteString(line)
			out.WriteString("\n")
		}
	}
	return []byte(strings.TrimSuffix(out.String(), "\n"))
}

// expandCondensedURI rewrites one shortened "<PREFIX>ab1cd2..." URI line
// into "<BASE-URI>/ab1/cd2/..." by replacing the prefix and inserting a "/"
// before each of the len(params) parameter slots, which are assumed to be
// equal-width chunks of the remainder (the condensed form omits only the
// separators, not the characters).
func expandCondensedURI(line, prefix, baseURI string, params []string) string {
	if !strings.HasPrefix(line, prefix) {
		return line
	}
	rest := line[len(prefix):]
	n := len(params)
	if n == 0 || len(rest) == 0 {
		return baseURI + rest
	}

	chunkLen := len(rest) / n
	if chunkLen == 0 {
		return baseURI + rest
	}

	var b strings.Builder
	b.WriteString(baseURI)
	pos := 0
	for i := 0; i < n; i++ {
		end := pos + chunkLen
		if i == n-1 || end > len(rest) {
			end = len(rest)
		}
		b.WriteString("/")
		b.WriteString(rest[pos:end])
		pos = end
	}
	return b.String()
}

// extractAttr pulls ATTR="value" out of an #EXT header line.
func extractAttr(line, attr string) string {
	marker := attr + "=\""
	idx := strings.Index(line, marker)
	if idx < 0 {
		return ""
	}
	rest := line[idx+len(marker):]
	end := strings.Index(rest, "\"")
	if end < 0 {
		return ""
	}
	return rest[:end]
}
