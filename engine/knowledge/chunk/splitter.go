package chunk

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/gnoskos/gnoskos/engine/core"
	"github.com/gnoskos/gnoskos/engine/knowledge"
)

// breakTiers lists natural breakpoints from strongest to weakest. Within a
// tier the latest match wins.
var breakTiers = [][][]rune{
	{[]rune("\n\n")},
	{[]rune("\n")},
	{[]rune(". "), []rune("! "), []rune("? "), []rune(".\" "), []rune("?\" "), []rune("!\" ")},
	{[]rune("; "), []rune(": "), []rune(", ")},
	{[]rune(" ")},
}

// Splitter produces overlapping chunks from documents.
type Splitter struct {
	settings Settings
}

func NewSplitter(settings Settings) (*Splitter, error) {
	if settings.Strategy == "" {
		settings.Strategy = StrategyBoundary
	}
	switch settings.Strategy {
	case StrategyBoundary, StrategyRecursive:
	default:
		return nil, fmt.Errorf("%w: chunk: unknown strategy %q", core.ErrInvalidConfiguration, settings.Strategy)
	}
	if settings.MaxLength <= 0 {
		return nil, fmt.Errorf("%w: chunk: max length must be greater than zero", core.ErrInvalidConfiguration)
	}
	if settings.Overlap < 0 {
		return nil, fmt.Errorf("%w: chunk: overlap cannot be negative", core.ErrInvalidConfiguration)
	}
	if settings.Overlap >= settings.MaxLength {
		return nil, fmt.Errorf(
			"%w: chunk: overlap %d must be smaller than max length %d",
			core.ErrInvalidConfiguration,
			settings.Overlap,
			settings.MaxLength,
		)
	}
	return &Splitter{settings: settings}, nil
}

// Split chunks doc with the boundary strategy.
func Split(doc knowledge.Document, maxLength, overlap int) (iter.Seq[Chunk], error) {
	s, err := NewSplitter(Settings{Strategy: StrategyBoundary, MaxLength: maxLength, Overlap: overlap})
	if err != nil {
		return nil, err
	}
	return s.Split(doc), nil
}

func (s *Splitter) Settings() Settings {
	return s.settings
}

// Split returns a lazy sequence of chunks covering doc end to end. Each range
// over the sequence walks the document again from the start. Blank documents
// yield nothing.
func (s *Splitter) Split(doc knowledge.Document) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		if strings.TrimSpace(doc.Text) == "" {
			return
		}
		text := []rune(doc.Text)
		spans := s.boundarySpans(text)
		if s.settings.Strategy == StrategyRecursive {
			spans = s.recursiveSpans(doc.Text, text)
		}
		base := doc.Metadata()
		idx := 0
		for sp := range spans {
			meta := base.Clone()
			meta.ChunkIndex = idx
			meta.Offset = sp.start
			if !yield(Chunk{Text: string(text[sp.start:sp.end]), Metadata: meta}) {
				return
			}
			idx++
		}
	}
}

type span struct {
	start int
	end   int
}

// boundarySpans yields [start, end) windows. Consecutive windows share exactly
// Overlap runes: the next window starts at the previous end minus Overlap.
func (s *Splitter) boundarySpans(text []rune) iter.Seq[span] {
	return func(yield func(span) bool) {
		s.walk(text, 0, len(text), yield)
	}
}

func (s *Splitter) walk(text []rune, from, to int, yield func(span) bool) bool {
	maxLen, overlap := s.settings.MaxLength, s.settings.Overlap
	pos := from
	for {
		end := pos + maxLen
		if end >= to {
			return yield(span{start: pos, end: to})
		}
		cut := breakpoint(text, pos+max(overlap+1, maxLen/2), end)
		if !yield(span{start: pos, end: cut}) {
			return false
		}
		pos = cut - overlap
	}
}

// breakpoint returns the latest cut in [lo, hi] that follows a natural break,
// or hi when the window has none.
func breakpoint(text []rune, lo, hi int) int {
	for _, tier := range breakTiers {
		best := -1
		for _, sep := range tier {
			if c := lastCut(text, lo, hi, sep); c > best {
				best = c
			}
		}
		if best >= 0 {
			return best
		}
	}
	return hi
}

func lastCut(text []rune, lo, hi int, sep []rune) int {
	n := len(sep)
	for i := hi - n; i >= 0 && i+n >= lo; i-- {
		if slices.Equal(text[i:i+n], sep) {
			return i + n
		}
	}
	return -1
}
