package vectordb

import (
	"context"
	"errors"
	"time"

	"github.com/gnoskos/gnoskos/engine/knowledge"
)

// Provider enumerates supported vector store backends.
type Provider string

const (
	ProviderPGVector Provider = "pgvector"
	ProviderMemory   Provider = "memory"
)

// IndexKind selects the approximate index built over the embedding column.
type IndexKind string

const (
	IndexNone    IndexKind = ""
	IndexHNSW    IndexKind = "hnsw"
	IndexIVFFlat IndexKind = "ivfflat"
)

const DefaultTable = "documents"

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrSchemaMissing     = errors.New("schema not initialized")
)

// Record is a chunk ready to be persisted.
type Record struct {
	Content   string
	Metadata  knowledge.Metadata
	Embedding []float32
}

// Match is a stored record returned by a nearest-neighbour search.
//
// Distance is cosine distance in [0, 2] and Similarity is 1 - Distance, so
// Similarity lies in [-1, 1].
type Match struct {
	ID         int64
	Content    string
	Metadata   knowledge.Metadata
	Distance   float64
	Similarity float64
}

// Store is the append-only contract shared by ingestion and retrieval.
type Store interface {
	// EnsureSchema creates the vector capability and the table when absent.
	EnsureSchema(ctx context.Context) error
	Insert(ctx context.Context, rec Record) (int64, error)
	// NearestNeighbors returns at most k records ordered by ascending distance.
	NearestNeighbors(ctx context.Context, query []float32, k int) ([]Match, error)
	Count(ctx context.Context) (int64, error)
	Close(ctx context.Context) error
}

// Config captures connection and schema details for a store.
type Config struct {
	Provider     Provider
	DSN          string
	Table        string
	Dimension    int
	Index        IndexKind
	MaxConns     int32
	MinConns     int32
	QueryTimeout time.Duration
}
