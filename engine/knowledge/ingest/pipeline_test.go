package ingest

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnoskos/gnoskos/engine/core"
	"github.com/gnoskos/gnoskos/engine/knowledge"
	"github.com/gnoskos/gnoskos/engine/knowledge/chunk"
	"github.com/gnoskos/gnoskos/engine/knowledge/embedder"
	"github.com/gnoskos/gnoskos/engine/knowledge/vectordb"
)

const testDim = 4

type stubEmbedder struct {
	failOn map[string]bool
	calls  atomic.Int32
}

func (s *stubEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	s.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if s.failOn[text] {
			return nil, errors.New("provider returned 400")
		}
		vec := make([]float32, testDim)
		vec[int(text[0])%testDim] = 1
		out[i] = vec
	}
	return out, nil
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (s *stubEmbedder) Dimension() int {
	return testDim
}

type flakyStore struct {
	*vectordb.MemoryStore
	failOn    map[string]bool
	schemaErr error
}

func (f *flakyStore) EnsureSchema(ctx context.Context) error {
	if f.schemaErr != nil {
		return f.schemaErr
	}
	return f.MemoryStore.EnsureSchema(ctx)
}

func (f *flakyStore) Insert(ctx context.Context, rec vectordb.Record) (int64, error) {
	if f.failOn[rec.Content] {
		return 0, errors.New("connection reset by peer")
	}
	return f.MemoryStore.Insert(ctx, rec)
}

type countingLimiter struct {
	waits atomic.Int32
	err   error
}

func (c *countingLimiter) Wait(context.Context) error {
	c.waits.Add(1)
	return c.err
}

// fiveChunkDoc splits into exactly five ten-rune chunks with max 10, overlap 0.
func fiveChunkDoc(title string) knowledge.Document {
	var sb strings.Builder
	for _, r := range "abcde" {
		sb.WriteString(strings.Repeat(string(r), 10))
	}
	return knowledge.Document{Title: title, Author: "Jane Austen", Source: "pg31100.txt", Text: sb.String()}
}

func newTestPipeline(t *testing.T, emb embedder.Embedder, store vectordb.Store, opts Options) *Pipeline {
	t.Helper()
	splitter, err := chunk.NewSplitter(chunk.Settings{MaxLength: 10, Overlap: 0})
	require.NoError(t, err)
	p, err := NewPipeline(splitter, emb, store, opts)
	require.NoError(t, err)
	return p
}

func TestPipeline_Run(t *testing.T) {
	t.Run("Should skip a chunk whose embedding fails and store the rest", func(t *testing.T) {
		emb := &stubEmbedder{failOn: map[string]bool{strings.Repeat("c", 10): true}}
		store := vectordb.NewMemoryStore(testDim)
		p := newTestPipeline(t, emb, store, Options{BatchSize: 2})

		res, err := p.Run(t.Context(), []knowledge.Document{fiveChunkDoc("Emma")})
		require.NoError(t, err)
		assert.Equal(t, 5, res.Attempted)
		assert.Equal(t, 4, res.Stored)
		assert.Equal(t, 1, res.Failed)
		assert.Equal(t, 3, res.Batches)
		require.Len(t, res.Failures, 1)
		assert.Equal(t, 2, res.Failures[0].Index)
		assert.Equal(t, "Emma", res.Failures[0].Title)
		assert.Equal(t, StageEmbed, res.Failures[0].Stage)
		assert.ErrorIs(t, res.Failures[0].Err, core.ErrEmbeddingFailure)
		n, err := store.Count(t.Context())
		require.NoError(t, err)
		assert.EqualValues(t, 4, n)
	})

	t.Run("Should skip a chunk whose insert fails", func(t *testing.T) {
		store := &flakyStore{
			MemoryStore: vectordb.NewMemoryStore(testDim),
			failOn:      map[string]bool{strings.Repeat("e", 10): true},
		}
		p := newTestPipeline(t, &stubEmbedder{}, store, Options{})

		res, err := p.Run(t.Context(), []knowledge.Document{fiveChunkDoc("Persuasion")})
		require.NoError(t, err)
		assert.Equal(t, 4, res.Stored)
		require.Len(t, res.Failures, 1)
		assert.Equal(t, StageStore, res.Failures[0].Stage)
		assert.Equal(t, 4, res.Failures[0].Index)
		assert.ErrorIs(t, res.Failures[0].Err, core.ErrStorageFailure)
	})

	t.Run("Should abort before embedding when the schema cannot be ensured", func(t *testing.T) {
		emb := &stubEmbedder{}
		store := &flakyStore{MemoryStore: vectordb.NewMemoryStore(testDim), schemaErr: errors.New("permission denied")}
		p := newTestPipeline(t, emb, store, Options{})

		res, err := p.Run(t.Context(), []knowledge.Document{fiveChunkDoc("Emma")})
		assert.ErrorIs(t, err, core.ErrStorageFailure)
		require.NotNil(t, res)
		assert.Zero(t, res.Attempted)
		assert.Zero(t, emb.calls.Load())
	})

	t.Run("Should skip invalid documents and keep going", func(t *testing.T) {
		store := vectordb.NewMemoryStore(testDim)
		p := newTestPipeline(t, &stubEmbedder{}, store, Options{})
		docs := []knowledge.Document{
			{Title: "Blank", Author: "Jane Austen", Source: "pg31100.txt", Text: "   "},
			{Title: "Anonymous", Source: "pg31100.txt", Text: "text"},
			fiveChunkDoc("Emma"),
		}

		res, err := p.Run(t.Context(), docs)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Documents)
		assert.Equal(t, 2, res.SkippedDocuments)
		assert.Equal(t, 5, res.Stored)
	})

	t.Run("Should pause between batches but not after the last", func(t *testing.T) {
		delay := 30 * time.Millisecond
		p := newTestPipeline(t, &stubEmbedder{}, vectordb.NewMemoryStore(testDim), Options{
			BatchSize:       5,
			InterBatchDelay: delay,
		})
		docs := []knowledge.Document{fiveChunkDoc("Emma"), fiveChunkDoc("Persuasion")}

		res, err := p.Run(t.Context(), docs)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Batches)
		assert.Equal(t, 10, res.Stored)
		assert.GreaterOrEqual(t, res.Duration, delay)
		assert.Less(t, res.Duration, 2*delay+time.Second)
	})

	t.Run("Should stop during the inter-batch delay when cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()
		p := newTestPipeline(t, &stubEmbedder{}, vectordb.NewMemoryStore(testDim), Options{
			BatchSize:       2,
			InterBatchDelay: time.Hour,
			Progress: func(pr Progress) {
				if pr.Attempted == 2 {
					cancel()
				}
			},
		})

		res, err := p.Run(ctx, []knowledge.Document{fiveChunkDoc("Emma")})
		assert.ErrorIs(t, err, context.Canceled)
		require.NotNil(t, res)
		assert.Equal(t, 2, res.Stored)
		assert.Equal(t, 1, res.Batches)
	})

	t.Run("Should gate every embed and insert through the limiter", func(t *testing.T) {
		limiter := &countingLimiter{}
		p := newTestPipeline(t, &stubEmbedder{}, vectordb.NewMemoryStore(testDim), Options{Limiter: limiter})

		res, err := p.Run(t.Context(), []knowledge.Document{fiveChunkDoc("Emma")})
		require.NoError(t, err)
		assert.Equal(t, 5, res.Stored)
		assert.EqualValues(t, 10, limiter.waits.Load())
	})

	t.Run("Should abort when the limiter refuses", func(t *testing.T) {
		limiter := &countingLimiter{err: errors.New("rate: Wait(n=1) would exceed context deadline")}
		emb := &stubEmbedder{}
		p := newTestPipeline(t, emb, vectordb.NewMemoryStore(testDim), Options{Limiter: limiter})

		res, err := p.Run(t.Context(), []knowledge.Document{fiveChunkDoc("Emma")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate limiter")
		assert.Zero(t, res.Stored)
		assert.Zero(t, emb.calls.Load())
	})

	t.Run("Should fan out within a batch when concurrency is raised", func(t *testing.T) {
		emb := &stubEmbedder{failOn: map[string]bool{strings.Repeat("a", 10): true}}
		store := vectordb.NewMemoryStore(testDim)
		var reports atomic.Int32
		p := newTestPipeline(t, emb, store, Options{
			BatchSize:   4,
			Concurrency: 3,
			Progress:    func(Progress) { reports.Add(1) },
		})
		docs := []knowledge.Document{fiveChunkDoc("Emma"), fiveChunkDoc("Persuasion")}

		res, err := p.Run(t.Context(), docs)
		require.NoError(t, err)
		assert.Equal(t, 10, res.Attempted)
		assert.Equal(t, 8, res.Stored)
		assert.EqualValues(t, 10, reports.Load())
		require.Len(t, res.Failures, 2)
		assert.Equal(t, "Emma", res.Failures[0].Title)
		assert.Equal(t, "Persuasion", res.Failures[1].Title)
		n, err := store.Count(t.Context())
		require.NoError(t, err)
		assert.EqualValues(t, 8, n)
	})

	t.Run("Should report monotonically increasing progress", func(t *testing.T) {
		var seen []Progress
		p := newTestPipeline(t, &stubEmbedder{}, vectordb.NewMemoryStore(testDim), Options{
			Progress: func(pr Progress) { seen = append(seen, pr) },
		})

		_, err := p.Run(t.Context(), []knowledge.Document{fiveChunkDoc("Emma")})
		require.NoError(t, err)
		require.Len(t, seen, 5)
		for i, pr := range seen {
			assert.Equal(t, 5, pr.Total)
			assert.Equal(t, i+1, pr.Attempted)
		}
	})
}

func TestNewPipeline(t *testing.T) {
	t.Run("Should require every collaborator", func(t *testing.T) {
		splitter, err := chunk.NewSplitter(chunk.DefaultSettings())
		require.NoError(t, err)
		store := vectordb.NewMemoryStore(testDim)
		_, err = NewPipeline(nil, &stubEmbedder{}, store, Options{})
		assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
		_, err = NewPipeline(splitter, nil, store, Options{})
		assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
		_, err = NewPipeline(splitter, &stubEmbedder{}, nil, Options{})
		assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
	})

	t.Run("Should apply default batch size", func(t *testing.T) {
		p := newTestPipeline(t, &stubEmbedder{}, vectordb.NewMemoryStore(testDim), Options{InterBatchDelay: -time.Second})
		assert.Equal(t, DefaultBatchSize, p.options.BatchSize)
		assert.Zero(t, p.options.InterBatchDelay)
		assert.Equal(t, 1, p.options.Concurrency)
	})
}

func TestIngest(t *testing.T) {
	t.Run("Should return the count of stored chunks", func(t *testing.T) {
		emb, err := embedder.New(t.Context(), &embedder.Config{
			Provider:  embedder.ProviderHash,
			Model:     "hash",
			Dimension: 64,
		})
		require.NoError(t, err)
		store := vectordb.NewMemoryStore(64)
		text := strings.Repeat("Emma Woodhouse, handsome, clever, and rich, had lived nearly twenty-one years. ", 40)
		doc := knowledge.Document{Title: "Emma", Author: "Jane Austen", Source: "pg31100.txt", Text: text}

		stored, err := Ingest(t.Context(), []knowledge.Document{doc}, emb, store, 2, 0)
		require.NoError(t, err)
		assert.Greater(t, stored, 1)
		n, err := store.Count(t.Context())
		require.NoError(t, err)
		assert.EqualValues(t, stored, n)
	})
}

func TestNewRateLimiter(t *testing.T) {
	t.Run("Should disable limiting for non-positive rates", func(t *testing.T) {
		assert.Nil(t, NewRateLimiter(0, 5))
	})

	t.Run("Should admit the burst immediately", func(t *testing.T) {
		limiter := NewRateLimiter(1, 2)
		require.NotNil(t, limiter)
		ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
		defer cancel()
		require.NoError(t, limiter.Wait(ctx))
		require.NoError(t, limiter.Wait(ctx))
	})
}
