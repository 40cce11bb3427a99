// Package segment splits normalized document text into bounded chunks for
// indexing. Each segment is indexed as its own document so the embedding
// model never sees more input than it can attend to.
package segment

import (
	"fmt"
	"strings"
)

// DefaultMaxChars is the default segment budget. The embedding model
// truncates past 512 tokens; the budget is applied to the character length
// of the whitespace-joined token run, which keeps segments comfortably
// inside the model window. This is intentionally not a real token counter:
// segment ids are derived from ordinals, so changing the split would orphan
// previously indexed segments.
const DefaultMaxChars = 512

// Segment is one bounded chunk of a document.
type Segment struct {
	// ID is the indexed document id: "<entityID>_<ordinal>".
	ID string
	// Ordinal is the zero-based position of the segment in the document.
	Ordinal int
	// Text is the segment content.
	Text string
}

// ID builds the deterministic segment id for an entity and ordinal.
func ID(entityID string, ordinal int) string {
	return fmt.Sprintf("%s_%d", entityID, ordinal)
}

// Split normalizes text and splits it into segments of at most maxChars
// characters. Tokens are accumulated greedily and joined with single
// spaces; a segment is closed when appending the next token would exceed
// the budget. A single token longer than maxChars is kept whole in its own
// segment. Empty input yields no segments.
func Split(entityID, text string, maxChars int) []Segment {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	text = Normalize(text)

	var segments []Segment
	var current strings.Builder

	flush := func() {
		s := strings.TrimSpace(current.String())
		if s != "" {
			segments = append(segments, Segment{
				ID:      ID(entityID, len(segments)),
				Ordinal: len(segments),
				Text:    s,
			})
		}
		current.Reset()
	}

	for _, token := range strings.Fields(text) {
		if current.Len()+len(token)+1 > maxChars {
			flush()
		}
		current.WriteString(token)
		current.WriteByte(' ')
	}
	flush()

	return segments
}

// Normalize collapses newline and carriage-return characters (both literal
// and backslash-escaped) to spaces and decodes \uXXXX escape sequences back
// to their characters. Content arrives JSON-escaped from the repository
// text API, so both forms occur.
func Normalize(text string) string {
	replacer := strings.NewReplacer(
		`\n`, " ",
		`\r`, " ",
		"\n", " ",
		"\r", " ",
		"\t", " ",
	)
	return DecodeUnicodeEscapes(replacer.Replace(text))
}
