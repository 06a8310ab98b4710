package embedder

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestHashEmbedder(t *testing.T) {
	h := NewHashEmbedder(DefaultDimension)

	t.Run("Should be deterministic and unit length", func(t *testing.T) {
		a, err := h.EmbedQuery(t.Context(), "Emma Woodhouse, handsome, clever, and rich")
		require.NoError(t, err)
		b, err := h.EmbedQuery(t.Context(), "Emma Woodhouse, handsome, clever, and rich")
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.InDelta(t, 1, cosine(a, a), 1e-5)
	})

	t.Run("Should score shared content words above unrelated text", func(t *testing.T) {
		vectors, err := h.EmbedDocuments(t.Context(), []string{
			"Emma Woodhouse, handsome, clever, and rich, with a comfortable home",
			"Sir Walter Elliot, of Kellynch Hall, in Somersetshire",
		})
		require.NoError(t, err)
		q, err := h.EmbedQuery(t.Context(), "Who is Emma?")
		require.NoError(t, err)
		assert.Greater(t, cosine(q, vectors[0]), cosine(q, vectors[1]))
	})

	t.Run("Should embed stopword-only and empty text without zero vectors", func(t *testing.T) {
		for _, text := range []string{"who is", ""} {
			v, err := h.EmbedQuery(t.Context(), text)
			require.NoError(t, err)
			assert.InDelta(t, 1, cosine(v, v), 1e-5)
		}
	})

	t.Run("Should honour cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		_, err := h.EmbedDocuments(ctx, []string{"x"})
		assert.Error(t, err)
	})
}
