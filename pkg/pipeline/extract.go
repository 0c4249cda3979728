package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// TextExtractor is the PDF decoding port. Byte-level PDF parsing lives
// behind it; the pipeline only sees text.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// PlainTextExtractor is the offline extractor: it treats the payload as
// UTF-8 text. Used with the deterministic LLM runtime, where test fixtures
// post plain-text bodies with a .pdf name.
type PlainTextExtractor struct{}

// Extract returns the payload as text, rejecting binary content.
func (PlainTextExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty document")
	}
	text := strings.TrimPrefix(string(data), "%PDF-1.4\n")
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("document is not plain text")
	}
	return text, nil
}

var recordNumberPattern = regexp.MustCompile(`^[0-9]{5}$`)

// ExtractRecordNumber finds the agency record number in extracted text: the
// first whitespace-delimited token that is exactly 5 digits. All occurrences
// of that exact token are removed from the returned clean text. When no
// token exists, a digit-only epoch-millis fallback (>= 13 digits) is
// synthesized and the text is returned unchanged.
func ExtractRecordNumber(text string, now time.Time) (recordNumber, cleanText string) {
	for _, token := range strings.Fields(text) {
		if !recordNumberPattern.MatchString(token) {
			continue
		}
		clean := regexp.MustCompile(`\b`+token+`\b`).ReplaceAllString(text, "")
		return token, clean
	}
	return strconv.FormatInt(now.UnixMilli(), 10), text
}
