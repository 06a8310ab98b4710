package retriever

import (
	"context"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/gnoskos/gnoskos/pkg/logger"
)

const defaultEncoding = "cl100k_base"

type TokenEstimator interface {
	EstimateTokens(ctx context.Context, text string) int
}

type runeEstimator struct{}

func (runeEstimator) EstimateTokens(_ context.Context, text string) int {
	count := utf8.RuneCountInString(text)
	if count == 0 {
		return 0
	}
	return max(count/4, 1)
}

// tiktokenEstimator loads the BPE ranks on first use and falls back to the
// rune heuristic when they are unavailable.
type tiktokenEstimator struct {
	once sync.Once
	tke  *tiktoken.Tiktoken
}

func NewTiktokenEstimator() TokenEstimator {
	return &tiktokenEstimator{}
}

func (e *tiktokenEstimator) EstimateTokens(ctx context.Context, text string) int {
	e.once.Do(func() {
		tke, err := tiktoken.GetEncoding(defaultEncoding)
		if err != nil {
			logger.FromContext(ctx).Warn("Token encoding unavailable, estimating from runes", "error", err)
			return
		}
		e.tke = tke
	})
	if e.tke == nil {
		return runeEstimator{}.EstimateTokens(ctx, text)
	}
	return len(e.tke.Encode(text, nil, nil))
}
