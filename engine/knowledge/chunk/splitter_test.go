package chunk

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/gnoskos/gnoskos/engine/core"
	"github.com/gnoskos/gnoskos/engine/knowledge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDocument(text string) knowledge.Document {
	return knowledge.Document{Title: "Emma", Author: "Jane Austen", Source: "pg31100.txt", Text: text}
}

// prose builds deterministic text with words, sentences, line and paragraph breaks.
func prose(seed uint64, words int) string {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	vocab := []string{"Emma", "Harriet", "Mr.", "Knightley", "the", "of", "a", "very", "much", "Highbury",
		"résumé", "naïve", "walk", "said", "she", "could", "not", "be", "happier"}
	var b strings.Builder
	for i := range words {
		if i > 0 {
			switch r := rng.IntN(40); {
			case r == 0:
				b.WriteString(".\n\n")
			case r == 1:
				b.WriteString("\n")
			case r < 5:
				b.WriteString(". ")
			case r < 8:
				b.WriteString(", ")
			default:
				b.WriteString(" ")
			}
		}
		b.WriteString(vocab[rng.IntN(len(vocab))])
	}
	return b.String()
}

func reconstruct(chunks []Chunk, overlap int) string {
	var out []rune
	for i, c := range chunks {
		r := []rune(c.Text)
		if i > 0 {
			r = r[overlap:]
		}
		out = append(out, r...)
	}
	return string(out)
}

func TestNewSplitter(t *testing.T) {
	t.Run("Should reject overlap equal to or above max length", func(t *testing.T) {
		for _, overlap := range []int{100, 101, 500} {
			_, err := NewSplitter(Settings{MaxLength: 100, Overlap: overlap})
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
		}
	})

	t.Run("Should reject non-positive max length and negative overlap", func(t *testing.T) {
		_, err := NewSplitter(Settings{MaxLength: 0})
		assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
		_, err = NewSplitter(Settings{MaxLength: 10, Overlap: -1})
		assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
	})

	t.Run("Should reject unknown strategies", func(t *testing.T) {
		_, err := NewSplitter(Settings{Strategy: "semantic", MaxLength: 10})
		assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
	})

	t.Run("Should default to the boundary strategy", func(t *testing.T) {
		s, err := NewSplitter(Settings{MaxLength: 10, Overlap: 2})
		require.NoError(t, err)
		assert.Equal(t, StrategyBoundary, s.Settings().Strategy)
	})

	t.Run("Should fail through the direct Split contract", func(t *testing.T) {
		_, err := Split(testDocument("text"), 10, 10)
		assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
	})
}

func TestSplitter_Split(t *testing.T) {
	t.Run("Should reconstruct the document and respect max length", func(t *testing.T) {
		for seed := uint64(1); seed <= 6; seed++ {
			text := prose(seed, 400)
			for _, maxLen := range []int{7, 40, 137, 1000} {
				for _, overlap := range []int{0, 1, 3, maxLen / 4, maxLen - 1} {
					name := fmt.Sprintf("seed=%d max=%d overlap=%d", seed, maxLen, overlap)
					seq, err := Split(testDocument(text), maxLen, overlap)
					require.NoError(t, err, name)
					chunks := slices.Collect(seq)
					require.NotEmpty(t, chunks, name)
					for _, c := range chunks {
						assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), maxLen, name)
						assert.NotEmpty(t, c.Text, name)
					}
					assert.Equal(t, text, reconstruct(chunks, overlap), name)
				}
			}
		}
	})

	t.Run("Should share exactly overlap runes between neighbours", func(t *testing.T) {
		text := prose(42, 300)
		seq, err := Split(testDocument(text), 120, 30)
		require.NoError(t, err)
		chunks := slices.Collect(seq)
		require.Greater(t, len(chunks), 2)
		runes := []rune(text)
		for i, c := range chunks {
			start := c.Metadata.Offset
			assert.Equal(t, string(runes[start:start+utf8.RuneCountInString(c.Text)]), c.Text)
			if i == 0 {
				continue
			}
			prev := []rune(chunks[i-1].Text)
			assert.Equal(t, string(prev[len(prev)-30:]), string([]rune(c.Text)[:30]))
		}
	})

	t.Run("Should yield exactly one chunk for short documents", func(t *testing.T) {
		for _, text := range []string{"Emma Woodhouse, handsome, clever, and rich.", strings.Repeat("x", 50)} {
			seq, err := Split(testDocument(text), 50, 10)
			require.NoError(t, err)
			chunks := slices.Collect(seq)
			require.Len(t, chunks, 1)
			assert.Equal(t, text, chunks[0].Text)
			assert.Equal(t, 0, chunks[0].Metadata.Offset)
		}
	})

	t.Run("Should prefer paragraph breaks over word breaks", func(t *testing.T) {
		first := strings.Repeat("word ", 12)
		text := first + "\n\n" + strings.Repeat("more ", 12)
		seq, err := Split(testDocument(text), 100, 0)
		require.NoError(t, err)
		chunks := slices.Collect(seq)
		require.Len(t, chunks, 2)
		assert.Equal(t, first+"\n\n", chunks[0].Text)
	})

	t.Run("Should prefer sentence ends over commas", func(t *testing.T) {
		text := "She walked to Highbury. Then, quite alone, she went home, and rested, and slept."
		seq, err := Split(testDocument(text), 40, 0)
		require.NoError(t, err)
		chunks := slices.Collect(seq)
		assert.Equal(t, "She walked to Highbury. ", chunks[0].Text)
	})

	t.Run("Should hard cut text without breakpoints", func(t *testing.T) {
		text := strings.Repeat("abcdefghij", 5)
		seq, err := Split(testDocument(text), 20, 5)
		require.NoError(t, err)
		chunks := slices.Collect(seq)
		require.Len(t, chunks, 3)
		assert.Equal(t, text[0:20], chunks[0].Text)
		assert.Equal(t, text[15:35], chunks[1].Text)
		assert.Equal(t, text[30:50], chunks[2].Text)
	})

	t.Run("Should count multibyte characters as one", func(t *testing.T) {
		text := strings.Repeat("é", 30)
		seq, err := Split(testDocument(text), 10, 0)
		require.NoError(t, err)
		chunks := slices.Collect(seq)
		require.Len(t, chunks, 3)
		for _, c := range chunks {
			assert.Equal(t, 10, utf8.RuneCountInString(c.Text))
		}
	})

	t.Run("Should be restartable and stop early on demand", func(t *testing.T) {
		seq, err := Split(testDocument(prose(7, 200)), 50, 10)
		require.NoError(t, err)
		first := slices.Collect(seq)
		second := slices.Collect(seq)
		assert.Equal(t, first, second)

		seen := 0
		for range seq {
			seen++
			if seen == 2 {
				break
			}
		}
		assert.Equal(t, 2, seen)
	})

	t.Run("Should inherit document attribution and number chunks", func(t *testing.T) {
		seq, err := Split(testDocument(prose(3, 200)), 60, 10)
		require.NoError(t, err)
		for i, c := range slices.Collect(seq) {
			assert.Equal(t, "Emma", c.Metadata.Title)
			assert.Equal(t, "Jane Austen", c.Metadata.Author)
			assert.Equal(t, "pg31100.txt", c.Metadata.Source)
			assert.Equal(t, i, c.Metadata.ChunkIndex)
			assert.NoError(t, c.Metadata.Validate())
		}
	})

	t.Run("Should yield nothing for blank documents", func(t *testing.T) {
		seq, err := Split(testDocument(" \n\t "), 10, 2)
		require.NoError(t, err)
		assert.Empty(t, slices.Collect(seq))
	})
}

func TestSplitter_Recursive(t *testing.T) {
	t.Run("Should keep chunks within max length and locate their offsets", func(t *testing.T) {
		s, err := NewSplitter(Settings{Strategy: StrategyRecursive, MaxLength: 80, Overlap: 20})
		require.NoError(t, err)
		text := prose(11, 500)
		runes := []rune(text)
		chunks := slices.Collect(s.Split(testDocument(text)))
		require.NotEmpty(t, chunks)
		for i, c := range chunks {
			n := utf8.RuneCountInString(c.Text)
			assert.LessOrEqual(t, n, 80)
			require.GreaterOrEqual(t, c.Metadata.Offset, 0)
			assert.Equal(t, string(runes[c.Metadata.Offset:c.Metadata.Offset+n]), c.Text)
			assert.Equal(t, i, c.Metadata.ChunkIndex)
		}
	})

	t.Run("Should return the whole short document as one chunk", func(t *testing.T) {
		s, err := NewSplitter(Settings{Strategy: StrategyRecursive, MaxLength: 200, Overlap: 20})
		require.NoError(t, err)
		chunks := slices.Collect(s.Split(testDocument("A short note.")))
		require.Len(t, chunks, 1)
		assert.Equal(t, "A short note.", chunks[0].Text)
	})
}
