package ingest

import (
	"regexp"
	"strings"
)

// Extracted datasheet text carries PDF artifacts: page headers, bare
// URLs, control characters, and ragged whitespace. Clean strips them
// down to a single-spaced character stream the chunker can segment.
var (
	pageLineRE   = regexp.MustCompile(`(?im)^\s*page \d+.*$`)
	urlRE        = regexp.MustCompile(`(?:https?://|www\.)\S+`)
	charsetRE    = regexp.MustCompile(`[^\w\s.,;:!?\-()\[\]/+=<>@#$%^&*]`)
	whitespaceRE = regexp.MustCompile(`\s+`)
)

// Clean normalizes raw extracted text. Best effort: it never fails, and
// empty input yields empty output.
func Clean(text string) string {
	text = pageLineRE.ReplaceAllString(text, "")
	text = urlRE.ReplaceAllString(text, "")
	text = charsetRE.ReplaceAllString(text, " ")
	text = whitespaceRE.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
