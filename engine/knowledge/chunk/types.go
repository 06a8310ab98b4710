package chunk

import "github.com/gnoskos/gnoskos/engine/knowledge"

type Strategy string

const (
	// StrategyBoundary cuts at the latest paragraph, line, sentence, clause or word
	// break that fits, falling back to a hard cut.
	StrategyBoundary Strategy = "boundary"
	// StrategyRecursive delegates to langchaingo's recursive character splitter.
	StrategyRecursive Strategy = "recursive"
)

const (
	DefaultMaxLength = 1000
	DefaultOverlap   = 200
)

// Settings configures chunking. Lengths are measured in runes.
type Settings struct {
	Strategy  Strategy
	MaxLength int
	Overlap   int
}

func DefaultSettings() Settings {
	return Settings{Strategy: StrategyBoundary, MaxLength: DefaultMaxLength, Overlap: DefaultOverlap}
}

// Chunk is a contiguous slice of a document ready for embedding.
type Chunk struct {
	Text     string
	Metadata knowledge.Metadata
}
