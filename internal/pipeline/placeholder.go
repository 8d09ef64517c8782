package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Placeholder marker syntax. A marker wraps a short description of the
// missing fact: {{unresolved:annual revenue for 2025}}.
const (
	markerOpen  = "{{unresolved:"
	markerClose = "}}"
)

// Marker is one typed placeholder match in section content.
type Marker struct {
	Start int    // byte offset of the opening delimiter
	End   int    // byte offset just past the closing delimiter
	Text  string // trimmed description between the delimiters
}

// Raw returns the full marker as it appears in the content.
func (m Marker) Raw(content string) string {
	return content[m.Start:m.End]
}

// ScanMarkers tokenizes content and returns all placeholder markers in
// content order. Malformed markers (no closing delimiter) are ignored.
func ScanMarkers(content string) []Marker {
	var out []Marker
	off := 0
	for {
		i := strings.Index(content[off:], markerOpen)
		if i < 0 {
			return out
		}
		start := off + i
		rest := content[start+len(markerOpen):]
		j := strings.Index(rest, markerClose)
		if j < 0 {
			return out
		}
		end := start + len(markerOpen) + j + len(markerClose)
		out = append(out, Marker{
			Start: start,
			End:   end,
			Text:  strings.TrimSpace(rest[:j]),
		})
		off = end
	}
}

// MarkerHash returns the stable identity of a placeholder: identical
// (section key, marker text) pairs hash identically across runs, so
// re-scanning unchanged content never mints a duplicate question.
func MarkerHash(sectionKey, text string) string {
	h := sha256.Sum256([]byte(sectionKey + "\x00" + text))
	return hex.EncodeToString(h[:16])
}

// ReplaceMarker substitutes every marker with the given text by answer and
// returns the updated content. Used when a question is answered. The scan
// runs left to right over the original content only, so markers inside the
// answer text itself are left alone.
func ReplaceMarker(content, text, answer string) string {
	var b strings.Builder
	last := 0
	for _, m := range ScanMarkers(content) {
		if m.Text != text {
			continue
		}
		b.WriteString(content[last:m.Start])
		b.WriteString(answer)
		last = m.End
	}
	if last == 0 {
		return content
	}
	b.WriteString(content[last:])
	return b.String()
}
