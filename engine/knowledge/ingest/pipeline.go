package ingest

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gnoskos/gnoskos/engine/core"
	"github.com/gnoskos/gnoskos/engine/knowledge"
	"github.com/gnoskos/gnoskos/engine/knowledge/chunk"
	"github.com/gnoskos/gnoskos/engine/knowledge/embedder"
	"github.com/gnoskos/gnoskos/engine/knowledge/vectordb"
	"github.com/gnoskos/gnoskos/pkg/logger"
)

type Stage string

const (
	StageEmbed Stage = "embed"
	StageStore Stage = "store"
)

// Failure describes a chunk that was skipped. Index is the chunk's position
// within its document.
type Failure struct {
	Index int
	Title string
	Stage Stage
	Err   error

	seq int
}

type Result struct {
	Documents        int
	SkippedDocuments int
	Attempted        int
	Stored           int
	Failed           int
	Failures         []Failure
	Batches          int
	Duration         time.Duration
}

type Pipeline struct {
	splitter *chunk.Splitter
	embedder embedder.Embedder
	store    vectordb.Store
	options  Options
}

func NewPipeline(
	splitter *chunk.Splitter,
	emb embedder.Embedder,
	store vectordb.Store,
	opts Options,
) (*Pipeline, error) {
	if splitter == nil {
		return nil, fmt.Errorf("%w: ingest: splitter is required", core.ErrInvalidConfiguration)
	}
	if emb == nil {
		return nil, fmt.Errorf("%w: ingest: embedder implementation is required", core.ErrInvalidConfiguration)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: ingest: vector store is required", core.ErrInvalidConfiguration)
	}
	return &Pipeline{
		splitter: splitter,
		embedder: emb,
		store:    store,
		options:  opts.normalized(),
	}, nil
}

// Ingest chunks docs with the default splitter and stores them, returning the
// number of chunks written.
func Ingest(
	ctx context.Context,
	docs []knowledge.Document,
	emb embedder.Embedder,
	store vectordb.Store,
	batchSize int,
	interBatchDelay time.Duration,
) (int, error) {
	splitter, err := chunk.NewSplitter(chunk.DefaultSettings())
	if err != nil {
		return 0, err
	}
	p, err := NewPipeline(splitter, emb, store, Options{BatchSize: batchSize, InterBatchDelay: interBatchDelay})
	if err != nil {
		return 0, err
	}
	res, err := p.Run(ctx, docs)
	if res == nil {
		return 0, err
	}
	return res.Stored, err
}

type pending struct {
	seq   int
	chunk chunk.Chunk
}

// Run stores every chunk of docs. Chunk failures are logged and skipped; only
// schema setup and cancellation end the run early. On cancellation the partial
// result is returned together with the context error.
func (p *Pipeline) Run(ctx context.Context, docs []knowledge.Document) (*Result, error) {
	log := logger.FromContext(ctx)
	start := time.Now()
	res := &Result{}
	defer func() {
		res.Duration = time.Since(start)
		knowledge.RecordIngestDuration(ctx, res.Duration)
		knowledge.RecordIngestChunks(ctx, "stored", res.Stored)
		knowledge.RecordIngestChunks(ctx, "failed", res.Failed)
	}()
	if err := p.store.EnsureSchema(ctx); err != nil {
		return res, core.WrapKind(core.ErrStorageFailure, "ingest: ensure schema", err)
	}
	items, err := p.collect(ctx, docs, res)
	if err != nil {
		return res, err
	}
	t := &tally{res: res, total: len(items), progress: p.options.Progress}
	size := p.options.BatchSize
	for from := 0; from < len(items); from += size {
		if from > 0 {
			if err := sleep(ctx, p.options.InterBatchDelay); err != nil {
				t.finish()
				return res, err
			}
		}
		batch := items[from:min(from+size, len(items))]
		res.Batches++
		if err := p.runBatch(ctx, batch, t); err != nil {
			t.finish()
			return res, err
		}
		log.Debug("Ingestion batch completed", "batch", res.Batches, "size", len(batch), "stored", res.Stored)
	}
	t.finish()
	log.Info(
		"Knowledge ingestion completed",
		"documents", res.Documents,
		"skipped_documents", res.SkippedDocuments,
		"attempted", res.Attempted,
		"stored", res.Stored,
		"failed", res.Failed,
		"batches", res.Batches,
	)
	return res, nil
}

func (p *Pipeline) collect(ctx context.Context, docs []knowledge.Document, res *Result) ([]pending, error) {
	log := logger.FromContext(ctx)
	var items []pending
	for i := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := docs[i].Validate(); err != nil {
			log.Warn("Skipping invalid document", "index", i, "title", docs[i].Title, "error", err)
			res.SkippedDocuments++
			continue
		}
		res.Documents++
		for c := range p.splitter.Split(docs[i]) {
			items = append(items, pending{seq: len(items), chunk: c})
		}
	}
	return items, nil
}

func (p *Pipeline) runBatch(ctx context.Context, batch []pending, t *tally) error {
	if p.options.Concurrency <= 1 {
		for i := range batch {
			if err := p.processChunk(ctx, &batch[i], t); err != nil {
				return err
			}
		}
		return nil
	}
	var g errgroup.Group
	g.SetLimit(p.options.Concurrency)
	for i := range batch {
		if ctx.Err() != nil {
			break
		}
		item := &batch[i]
		g.Go(func() error {
			return p.processChunk(ctx, item, t)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// processChunk returns an error only when ctx is done or the limiter fails.
func (p *Pipeline) processChunk(ctx context.Context, item *pending, t *tally) error {
	if err := p.wait(ctx); err != nil {
		return err
	}
	vectors, err := p.embedder.EmbedDocuments(ctx, []string{item.chunk.Text})
	if err == nil && len(vectors) != 1 {
		err = fmt.Errorf("%w: embedder returned %d vectors for 1 chunk", core.ErrEmbeddingFailure, len(vectors))
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.fail(ctx, item, StageEmbed, core.WrapKind(core.ErrEmbeddingFailure, "ingest: embed chunk", err))
		return nil
	}
	if err := p.wait(ctx); err != nil {
		return err
	}
	rec := vectordb.Record{Content: item.chunk.Text, Metadata: item.chunk.Metadata, Embedding: vectors[0]}
	if _, err := p.store.Insert(ctx, rec); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.fail(ctx, item, StageStore, core.WrapKind(core.ErrStorageFailure, "ingest: store chunk", err))
		return nil
	}
	t.stored()
	return nil
}

func (p *Pipeline) wait(ctx context.Context) error {
	if p.options.Limiter == nil {
		return ctx.Err()
	}
	if err := p.options.Limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ingest: rate limiter: %w", err)
	}
	return nil
}

type tally struct {
	mu       sync.Mutex
	res      *Result
	total    int
	progress func(Progress)
}

func (t *tally) stored() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.res.Attempted++
	t.res.Stored++
	t.report()
}

func (t *tally) fail(ctx context.Context, item *pending, stage Stage, err error) {
	logger.FromContext(ctx).Warn(
		"Skipping chunk",
		"title", item.chunk.Metadata.Title,
		"chunk_index", item.chunk.Metadata.ChunkIndex,
		"stage", string(stage),
		"error", core.RedactError(err),
	)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.res.Attempted++
	t.res.Failed++
	t.res.Failures = append(t.res.Failures, Failure{
		Index: item.chunk.Metadata.ChunkIndex,
		Title: item.chunk.Metadata.Title,
		Stage: stage,
		Err:   err,
		seq:   item.seq,
	})
	t.report()
}

func (t *tally) report() {
	if t.progress == nil {
		return
	}
	t.progress(Progress{Total: t.total, Attempted: t.res.Attempted, Stored: t.res.Stored, Failed: t.res.Failed})
}

func (t *tally) finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	slices.SortFunc(t.res.Failures, func(a, b Failure) int { return cmp.Compare(a.seq, b.seq) })
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
