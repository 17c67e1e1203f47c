package reviews

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

const maxCommentLength = 2000

var stripPolicy = bluemonday.StrictPolicy()

// SanitizeComment removes markup and control characters, collapses runs of spaces and keeps
// intentional newlines. The result is NFC-normalized.
func SanitizeComment(input string) string {
	stripped := html.UnescapeString(stripPolicy.Sanitize(input))
	trimmed := strings.TrimSpace(norm.NFC.String(stripped))
	if trimmed == "" {
		return ""
	}

	normalized := strings.ReplaceAll(strings.ReplaceAll(trimmed, "\r\n", "\n"), "\r", "\n")
	lines := strings.Split(normalized, "\n")
	for i, line := range lines {
		line = strings.Map(func(r rune) rune {
			if unicode.IsControl(r) {
				return -1
			}
			return r
		}, line)
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
