// Package chunk splits long datasheet text into overlapping segments
// suitable for embedding. Splitting is offset-based: a cursor walks the
// text emitting windows of at most MaxSize characters, preferring to end
// each window on a sentence boundary when one falls near the window edge.
package chunk

import "strings"

// Default segmentation parameters used by the ingestion pipeline.
const (
	DefaultMinSize = 1000 // minimum characters per segment
	DefaultMaxSize = 2000 // maximum characters per segment
	DefaultOverlap = 200  // characters shared between adjacent segments
)

// boundaryLookback is how far back from the tentative window end we
// search for a sentence terminator before giving up and cutting mid-text.
const boundaryLookback = 200

// sentence terminators recognized as segment boundaries. The trailing
// space or newline distinguishes end-of-sentence punctuation from
// decimal points and part numbers like "3.3V" or "STM32F4".
var sentenceEnds = []string{". ", "! ", "? ", ".\n", "!\n", "?\n"}

// Segment is a contiguous span of a source document. Start and End are
// offsets into the source text before whitespace trimming; Text is the
// trimmed content and Length its trimmed length.
type Segment struct {
	Text        string
	Start       int
	End         int
	Index       int
	Length      int
	TotalLength int
}

// Chunker carries segmentation parameters. The zero value is not usable;
// construct with New.
type Chunker struct {
	minSize int
	maxSize int
	overlap int
}

// New creates a Chunker. Non-positive arguments fall back to the
// package defaults.
func New(minSize, maxSize, overlap int) *Chunker {
	if minSize <= 0 {
		minSize = DefaultMinSize
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	return &Chunker{minSize: minSize, maxSize: maxSize, overlap: overlap}
}

// Split segments text into overlapping Segments. Empty or whitespace-only
// input yields no segments. Text shorter than the minimum size yields a
// single segment covering the whole input: a short tail is never dropped.
//
// The cursor advances by at least minSize per iteration, so the number of
// segments is bounded by len(text)/minSize and Split always terminates.
func (c *Chunker) Split(text string) []Segment {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var segments []Segment
	start := 0
	index := 0

	for start < len(text) {
		end := min(start+c.maxSize, len(text))

		// Not the final window: prefer to cut just after the latest
		// sentence terminator in the trailing lookback region.
		if end < len(text) {
			searchStart := max(start+c.minSize, end-boundaryLookback)
			if boundary := lastSentenceEnd(text, searchStart, end); boundary > 0 {
				end = boundary
			}
		}

		trimmed := strings.TrimSpace(text[start:end])

		// Keep the segment if it meets the minimum size, or if it reaches
		// the end of the source (the last segment is kept unconditionally).
		if len(trimmed) >= c.minSize || start+len(trimmed) >= len(text) {
			segments = append(segments, Segment{
				Text:        trimmed,
				Start:       start,
				End:         end,
				Index:       index,
				Length:      len(trimmed),
				TotalLength: len(text),
			})
			index++
		}

		next := max(start+c.minSize, end-c.overlap)
		if next <= start {
			// Degenerate window (overlap >= produced span); force progress.
			next = start + c.minSize
		}
		start = next
	}

	return segments
}

// lastSentenceEnd returns the offset just past the latest sentence
// terminator within text[from:to), or -1 if none occurs there.
func lastSentenceEnd(text string, from, to int) int {
	if from < 0 {
		from = 0
	}
	if from >= to {
		return -1
	}
	best := -1
	window := text[:to]
	for _, pat := range sentenceEnds {
		if pos := strings.LastIndex(window[from:], pat); pos >= 0 {
			if end := from + pos + len(pat); end > best {
				best = end
			}
		}
	}
	return best
}
