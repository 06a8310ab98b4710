package chunk

import (
	"iter"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

// recursiveSpans runs langchaingo's recursive character splitter and maps its
// segments back onto rune offsets. Oversized segments are re-cut with walk.
// When the splitter fails or rewrites text, the boundary strategy is used.
func (s *Splitter) recursiveSpans(raw string, text []rune) iter.Seq[span] {
	return func(yield func(span) bool) {
		spans, ok := s.locateSegments(raw)
		if !ok {
			s.walk(text, 0, len(text), yield)
			return
		}
		for _, sp := range spans {
			if sp.end-sp.start > s.settings.MaxLength {
				if !s.walk(text, sp.start, sp.end, yield) {
					return
				}
				continue
			}
			if !yield(sp) {
				return
			}
		}
	}
}

func (s *Splitter) locateSegments(raw string) ([]span, bool) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(s.settings.MaxLength),
		textsplitter.WithChunkOverlap(s.settings.Overlap),
		textsplitter.WithLenFunc(utf8.RuneCountInString),
	)
	segments, err := splitter.SplitText(raw)
	if err != nil {
		return nil, false
	}
	spans := make([]span, 0, len(segments))
	byteCursor, runeCursor := 0, 0
	for _, seg := range segments {
		if strings.TrimSpace(seg) == "" {
			continue
		}
		idx := strings.Index(raw[byteCursor:], seg)
		if idx < 0 {
			return nil, false
		}
		start := runeCursor + utf8.RuneCountInString(raw[byteCursor:byteCursor+idx])
		spans = append(spans, span{start: start, end: start + utf8.RuneCountInString(seg)})
		_, width := utf8.DecodeRuneInString(seg)
		byteCursor += idx + width
		runeCursor = start + 1
	}
	return spans, len(spans) > 0
}
