package oracle

import (
	"regexp"
	"strings"
)

var (
	codeFenceRe   = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	lineCommentRe = regexp.MustCompile(`(?m)//[^\n]*$`)
	blockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// ExtractJSON defensively pulls a JSON value out of raw oracle text: it
// strips code-fence wrappers, scans for the first balanced bracket pair
// (tolerating stray closing brackets in narrative text around it), drops
// control characters, and strips trailing commas / comments before the
// caller attempts to unmarshal. Per spec §4.1.
func ExtractJSON(raw string, open, close byte) (string, bool) {
	text := raw
	if m := codeFenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	text = stripControlChars(text)

	start := strings.IndexByte(text, open)
	if start < 0 {
		return "", false
	}

	depth := 0
	end := -1
	for i := start; i < len(text); i++ {
		switch text[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				end = i
			} else if depth < 0 {
				// stray closer before we've opened fully; tolerate and keep scanning
				depth = 0
			}
		}
		if end >= 0 {
			break
		}
	}
	if end < 0 {
		return "", false
	}

	candidate := text[start : end+1]
	candidate = blockComment.ReplaceAllString(candidate, "")
	candidate = lineCommentRe.ReplaceAllString(candidate, "")
	candidate = trailingComma.ReplaceAllString(candidate, "$1")
	return candidate, true
}

func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' || r == '\r' {
			b.WriteRune(r)
			continue
		}
		if r < 0x20 {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ExtractJSONObject finds the first balanced `{...}` in raw.
func ExtractJSONObject(raw string) (string, bool) { return ExtractJSON(raw, '{', '}') }

// ExtractJSONArray finds the first balanced `[...]` in raw.
func ExtractJSONArray(raw string) (string, bool) { return ExtractJSON(raw, '[', ']') }
