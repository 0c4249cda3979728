package template

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var uuidPattern = regexp.MustCompile(
	`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// diacriticsRemover decomposes to NFD, drops combining marks, recomposes.
var diacriticsRemover = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// stripDiacritics removes combining marks: "negação" -> "negacao".
func stripDiacritics(s string) string {
	out, _, err := transform.String(diacriticsRemover, s)
	if err != nil {
		return s
	}
	return out
}

// normalizeValue lowercases, trims, and strips diacritics for alias lookup.
func normalizeValue(s string) string {
	return stripDiacritics(strings.ToLower(strings.TrimSpace(s)))
}

// emptyMarkers are reason values that normalize to "no reason given".
var emptyMarkers = map[string]bool{
	"":           true,
	"-":          true,
	"n/a":        true,
	"na":         true,
	"(opcional)": true,
}

// normalizeReason returns nil when the value is an empty marker, otherwise
// the trimmed original text (reasons keep their accents and casing).
func normalizeReason(raw string) *string {
	trimmed := strings.TrimSpace(raw)
	if emptyMarkers[normalizeValue(trimmed)] {
		return nil
	}
	return &trimmed
}

// findUUID extracts the first UUID-shaped token inside a value, or "".
func findUUID(s string) string {
	return strings.ToLower(uuidPattern.FindString(s))
}

// ignorableLine reports whether a reply line carries no template content:
// blank lines, code fences, and quoted context from the chat client.
func ignorableLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true
	}
	return strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, ">")
}

// splitKeyValue splits a "key: value" line. ok is false when the line has no
// colon and should be treated as free text.
func splitKeyValue(line string) (key, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", false
	}
	key = strings.ToLower(strings.TrimSpace(line[:idx]))
	value = strings.TrimSpace(line[idx+1:])
	return key, value, key != ""
}
