package vectordb

import (
	"cmp"
	"context"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/gnoskos/gnoskos/engine/core"
)

// MemoryStore is a brute-force cosine store held in process memory. It uses
// the same distance convention as the pgvector store.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	ready     bool
	nextID    int64
	records   []memoryRecord
}

type memoryRecord struct {
	id  int64
	rec Record
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{dimension: dimension}
}

func (m *MemoryStore) EnsureSchema(_ context.Context) error {
	m.mu.Lock()
	m.ready = true
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Insert(ctx context.Context, rec Record) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, core.WrapKind(core.ErrStorageFailure, "memory: insert", err)
	}
	if err := checkRecord(&rec, m.dimension); err != nil {
		return 0, core.WrapKind(core.ErrStorageFailure, "memory: insert", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return 0, core.WrapKind(core.ErrStorageFailure, "memory: insert", ErrSchemaMissing)
	}
	m.nextID++
	stored := Record{
		Content:   rec.Content,
		Metadata:  rec.Metadata.Clone(),
		Embedding: slices.Clone(rec.Embedding),
	}
	m.records = append(m.records, memoryRecord{id: m.nextID, rec: stored})
	return m.nextID, nil
}

func (m *MemoryStore) NearestNeighbors(ctx context.Context, query []float32, k int) ([]Match, error) {
	if k <= 0 {
		return []Match{}, nil
	}
	if len(query) != m.dimension {
		return nil, core.WrapKind(core.ErrStorageFailure, "memory: search", ErrDimensionMismatch)
	}
	if err := ctx.Err(); err != nil {
		return nil, core.WrapKind(core.ErrStorageFailure, "memory: search", err)
	}
	start := time.Now()
	m.mu.RLock()
	matches := make([]Match, 0, len(m.records))
	for _, r := range m.records {
		d := cosineDistance(query, r.rec.Embedding)
		matches = append(matches, Match{
			ID:         r.id,
			Content:    r.rec.Content,
			Metadata:   r.rec.Metadata.Clone(),
			Distance:   d,
			Similarity: 1 - d,
		})
	}
	m.mu.RUnlock()
	slices.SortStableFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	recordSearch(ctx, string(ProviderMemory), time.Since(start), len(matches), nil)
	return matches, nil
}

func (m *MemoryStore) Count(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.records)), nil
}

func (m *MemoryStore) Close(_ context.Context) error {
	return nil
}

// cosineDistance mirrors pgvector's <=>: 1 - cos(a, b), in [0, 2]. A zero
// vector has no direction and is treated as orthogonal.
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return 1 - math.Max(-1, math.Min(1, cos))
}
