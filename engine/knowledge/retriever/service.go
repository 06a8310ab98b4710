package retriever

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gnoskos/gnoskos/engine/core"
	"github.com/gnoskos/gnoskos/engine/knowledge"
	"github.com/gnoskos/gnoskos/engine/knowledge/embedder"
	"github.com/gnoskos/gnoskos/engine/knowledge/vectordb"
	"github.com/gnoskos/gnoskos/engine/llm"
	"github.com/gnoskos/gnoskos/pkg/logger"
)

const (
	DefaultTopK          = 3
	DefaultPreviewLength = 200
	contextSeparator     = "\n\n"
	previewEllipsis      = "..."
)

type Options struct {
	TopK          int
	PreviewLength int
	// MaxContextTokens caps the context handed to the model. Zero disables
	// the cap. The best match is always kept.
	MaxContextTokens int
	Estimator        TokenEstimator
	Subject          string
	Collection       string
}

type Source struct {
	Content    string             `json:"content"`
	Metadata   knowledge.Metadata `json:"metadata"`
	Similarity float64            `json:"similarity"`
}

type Answer struct {
	Response string   `json:"response"`
	Sources  []Source `json:"sources"`
}

// Service answers questions from the chunks nearest to them. It holds no
// per-request state and is safe for concurrent use.
type Service struct {
	embedder  embedder.Embedder
	store     vectordb.Store
	completer llm.Completer
	options   Options
	tracer    trace.Tracer
}

func NewService(
	emb embedder.Embedder,
	store vectordb.Store,
	completer llm.Completer,
	opts Options,
) (*Service, error) {
	if emb == nil {
		return nil, fmt.Errorf("%w: retriever embedder is required", core.ErrInvalidConfiguration)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: retriever vector store is required", core.ErrInvalidConfiguration)
	}
	if completer == nil {
		return nil, fmt.Errorf("%w: retriever completer is required", core.ErrInvalidConfiguration)
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.PreviewLength <= 0 {
		opts.PreviewLength = DefaultPreviewLength
	}
	if opts.Estimator == nil {
		opts.Estimator = NewTiktokenEstimator()
	}
	return &Service{
		embedder:  emb,
		store:     store,
		completer: completer,
		options:   opts,
		tracer:    otel.Tracer("gnoskos.knowledge.retriever"),
	}, nil
}

// Answer embeds question, retrieves the nearest chunks and asks the model to
// answer from them.
func (s *Service) Answer(ctx context.Context, question string) (answer *Answer, err error) {
	if err := validateQuestion(question); err != nil {
		return nil, err
	}
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "gnoskos.knowledge.retriever.answer")
	defer func() { s.finish(ctx, span, start, answer, err) }()

	matches, err := s.Retrieve(ctx, question)
	if err != nil {
		return nil, err
	}
	matches = s.fitBudget(ctx, matches)
	text, err := renderPrompt(promptData{
		Subject:    s.options.Subject,
		Collection: s.options.Collection,
		Context:    joinContext(matches),
		Question:   question,
	})
	if err != nil {
		return nil, core.WrapKind(core.ErrCompletionFailure, "retriever: render prompt", err)
	}
	response, err := s.complete(ctx, text)
	if err != nil {
		return nil, err
	}
	return &Answer{Response: response, Sources: s.sources(matches)}, nil
}

// Retrieve returns the TopK chunks nearest to question, best first.
func (s *Service) Retrieve(ctx context.Context, question string) ([]vectordb.Match, error) {
	if err := validateQuestion(question); err != nil {
		return nil, err
	}
	vector, err := s.embedQuery(ctx, question)
	if err != nil {
		return nil, err
	}
	matches, err := s.search(ctx, vector)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		knowledge.RecordRetrievalEmpty(ctx)
		logger.FromContext(ctx).Warn("No stored chunks matched the question")
	}
	return matches, nil
}

func validateQuestion(question string) error {
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("%w: question is required", core.ErrInvalidRequest)
	}
	return nil
}

func (s *Service) embedQuery(ctx context.Context, question string) ([]float32, error) {
	spanCtx, span := s.tracer.Start(ctx, "gnoskos.knowledge.retriever.embed_query", trace.WithAttributes(
		attribute.Int("question_length", len(question)),
	))
	defer span.End()
	vector, err := s.embedder.EmbedQuery(spanCtx, question)
	if err != nil {
		recordSpanError(span, err)
		return nil, core.WrapKind(core.ErrEmbeddingFailure, "retriever: embed question", err)
	}
	return vector, nil
}

func (s *Service) search(ctx context.Context, vector []float32) ([]vectordb.Match, error) {
	spanCtx, span := s.tracer.Start(ctx, "gnoskos.knowledge.retriever.vector_search", trace.WithAttributes(
		attribute.Int("top_k", s.options.TopK),
	))
	defer span.End()
	matches, err := s.store.NearestNeighbors(spanCtx, vector, s.options.TopK)
	if err != nil {
		recordSpanError(span, err)
		return nil, core.WrapKind(core.ErrStorageFailure, "retriever: nearest neighbors", err)
	}
	span.SetAttributes(attribute.Int("matches", len(matches)))
	return matches, nil
}

func (s *Service) complete(ctx context.Context, prompt string) (string, error) {
	spanCtx, span := s.tracer.Start(ctx, "gnoskos.knowledge.retriever.complete", trace.WithAttributes(
		attribute.Int("prompt_length", len(prompt)),
	))
	defer span.End()
	response, err := s.completer.Complete(spanCtx, prompt)
	if err != nil {
		recordSpanError(span, err)
		return "", core.WrapKind(core.ErrCompletionFailure, "retriever: complete", err)
	}
	return response, nil
}

// fitBudget drops the lowest-ranked matches until the context fits
// MaxContextTokens.
func (s *Service) fitBudget(ctx context.Context, matches []vectordb.Match) []vectordb.Match {
	limit := s.options.MaxContextTokens
	if limit <= 0 || len(matches) <= 1 {
		return matches
	}
	counts := make([]int, len(matches))
	total := 0
	for i := range matches {
		counts[i] = s.options.Estimator.EstimateTokens(ctx, matches[i].Content)
		total += counts[i]
	}
	kept := len(matches)
	for total > limit && kept > 1 {
		kept--
		total -= counts[kept]
	}
	if kept < len(matches) {
		logger.FromContext(ctx).Debug(
			"Trimmed retrieved context to token budget",
			"kept", kept,
			"dropped", len(matches)-kept,
			"tokens", total,
			"max_tokens", limit,
		)
	}
	return matches[:kept]
}

func (s *Service) sources(matches []vectordb.Match) []Source {
	out := make([]Source, len(matches))
	for i := range matches {
		out[i] = Source{
			Content:    preview(matches[i].Content, s.options.PreviewLength),
			Metadata:   matches[i].Metadata,
			Similarity: matches[i].Similarity,
		}
	}
	return out
}

func (s *Service) finish(ctx context.Context, span trace.Span, start time.Time, answer *Answer, err error) {
	duration := time.Since(start)
	log := logger.FromContext(ctx)
	if err != nil {
		knowledge.RecordQueryLatency(ctx, core.KindOf(err), duration)
		log.Error("Question answering failed", "kind", core.KindOf(err), "error", core.RedactError(err))
		recordSpanError(span, err)
		span.End()
		return
	}
	knowledge.RecordQueryLatency(ctx, "success", duration)
	log.Info("Question answered", "sources", len(answer.Sources), "duration_seconds", duration.Seconds())
	span.SetAttributes(attribute.Int("sources", len(answer.Sources)))
	span.End()
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func joinContext(matches []vectordb.Match) string {
	parts := make([]string, len(matches))
	for i := range matches {
		parts[i] = matches[i].Content
	}
	return strings.Join(parts, contextSeparator)
}

func preview(content string, limit int) string {
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit]) + previewEllipsis
}
