package document

import "strings"

// Chunking defaults, sized to sit comfortably inside the generation
// model's context window while keeping cross-chunk continuity.
const (
	DefaultChunkSize = 4000
	DefaultOverlap   = 400

	// boundaryLookback bounds how far back from the window edge we search
	// for a whitespace break before giving up and cutting mid-word.
	boundaryLookback = 200
)

// Chunk splits text into overlapping windows of at most maxChunkChars
// characters. Adjacent chunks share a span of overlapChars: each window
// starts that many characters before the end of the previous one, so
// concatenating the chunks and dropping the overlap from every chunk
// after the first reconstructs the input exactly.
//
// Windows prefer to end at the last whitespace at or before the window
// edge, falling back to a hard cut when none is found within the
// lookback. Text no longer than maxChunkChars comes back as a single
// chunk, unmodified. Empty or whitespace-only input yields nil, which is
// not an error.
//
// Requires maxChunkChars > overlapChars >= 0; out-of-range parameters
// are clamped to the defaults.
func Chunk(text string, maxChunkChars, overlapChars int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if maxChunkChars <= 0 || overlapChars < 0 || overlapChars >= maxChunkChars {
		maxChunkChars = DefaultChunkSize
		overlapChars = DefaultOverlap
	}
	if len(text) <= maxChunkChars {
		return []string{text}
	}

	lookback := boundaryLookback
	// Keep the window large enough after a boundary cut that the next
	// start (end - overlap) always advances past the current start.
	if max := maxChunkChars - overlapChars - 1; lookback > max {
		lookback = max
	}

	var chunks []string
	start := 0
	for {
		end := start + maxChunkChars
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			return chunks
		}
		if cut := lastBreak(text, start+maxChunkChars-lookback, end); cut > 0 {
			end = cut
		}
		chunks = append(chunks, text[start:end])
		start = end - overlapChars
	}
}

// lastBreak returns the index just past the last ASCII whitespace byte
// in text[lo:hi], or -1 when the span contains none. Paragraph and line
// breaks count the same as spaces; the cut lands after the whitespace so
// no character is lost. Only ASCII whitespace qualifies: UTF-8
// continuation bytes share values with some Unicode space code points,
// and treating them as breaks would cut mid-rune.
func lastBreak(text string, lo, hi int) int {
	if lo < 0 {
		lo = 0
	}
	for i := hi - 1; i >= lo; i-- {
		switch text[i] {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			return i + 1
		}
	}
	return -1
}
