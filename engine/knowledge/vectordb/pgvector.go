package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/gnoskos/gnoskos/engine/core"
	"github.com/gnoskos/gnoskos/engine/knowledge"
)

// DB is the subset of *pgxpool.Pool the store relies on.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PGStore persists records in a PostgreSQL table with a pgvector column and
// ranks them by cosine distance (the <=> operator).
type PGStore struct {
	db           DB
	table        string
	tableIdent   string
	indexIdent   string
	index        IndexKind
	dimension    int
	queryTimeout time.Duration
	sb           sq.StatementBuilderType
}

var _ Store = (*PGStore)(nil)

// NewPGStore opens a bounded connection pool. The schema is not touched until
// EnsureSchema is called.
func NewPGStore(ctx context.Context, cfg *Config) (*PGStore, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: pgvector: parse dsn: %w", core.ErrInvalidConfiguration, err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, core.WrapKind(core.ErrStorageFailure, "pgvector: connect", err)
	}
	return NewPGStoreWithDB(pool, cfg), nil
}

// NewPGStoreWithDB builds a store over an existing pool.
func NewPGStoreWithDB(db DB, cfg *Config) *PGStore {
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	return &PGStore{
		db:           db,
		table:        table,
		tableIdent:   pgx.Identifier{table}.Sanitize(),
		indexIdent:   pgx.Identifier{table + "_embedding_idx"}.Sanitize(),
		index:        cfg.Index,
		dimension:    cfg.Dimension,
		queryTimeout: cfg.QueryTimeout,
		sb:           sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (p *PGStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	if _, err := p.db.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return core.WrapKind(core.ErrStorageFailure, "pgvector: enable extension", err)
	}
	createTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	content TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	embedding vector(%d) NOT NULL
)`, p.tableIdent, p.dimension)
	if _, err := p.db.Exec(ctx, createTable); err != nil {
		return core.WrapKind(core.ErrStorageFailure, "pgvector: create table", err)
	}
	if p.index == IndexNone {
		return nil
	}
	createIndex := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON %s USING %s (embedding vector_cosine_ops)",
		p.indexIdent,
		p.tableIdent,
		p.index,
	)
	if _, err := p.db.Exec(ctx, createIndex); err != nil {
		return core.WrapKind(core.ErrStorageFailure, "pgvector: create index", err)
	}
	return nil
}

func (p *PGStore) Insert(ctx context.Context, rec Record) (int64, error) {
	if err := checkRecord(&rec, p.dimension); err != nil {
		return 0, core.WrapKind(core.ErrStorageFailure, "pgvector: insert", err)
	}
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return 0, core.WrapKind(core.ErrStorageFailure, "pgvector: marshal metadata", err)
	}
	query, args, err := p.sb.Insert(p.tableIdent).
		Columns("content", "metadata", "embedding").
		Values(rec.Content, metadata, pgvector.NewVector(rec.Embedding)).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, core.WrapKind(core.ErrStorageFailure, "pgvector: build insert", err)
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	var id int64
	if err := p.db.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, core.WrapKind(core.ErrStorageFailure, "pgvector: insert", err)
	}
	return id, nil
}

type matchRow struct {
	ID       int64   `db:"id"`
	Content  string  `db:"content"`
	Metadata []byte  `db:"metadata"`
	Distance float64 `db:"distance"`
}

func (p *PGStore) NearestNeighbors(ctx context.Context, query []float32, k int) ([]Match, error) {
	if k <= 0 {
		return []Match{}, nil
	}
	if len(query) != p.dimension {
		err := fmt.Errorf("%w: query has %d dimensions, want %d", ErrDimensionMismatch, len(query), p.dimension)
		return nil, core.WrapKind(core.ErrStorageFailure, "pgvector: search", err)
	}
	vec := pgvector.NewVector(query)
	sql, args, err := p.sb.Select("id", "content", "metadata").
		Column(sq.Expr("embedding <=> ? AS distance", vec)).
		From(p.tableIdent).
		OrderByClause("embedding <=> ?", vec).
		Limit(uint64(k)). // #nosec G115 -- k > 0
		ToSql()
	if err != nil {
		return nil, core.WrapKind(core.ErrStorageFailure, "pgvector: build search", err)
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	start := time.Now()
	var rows []matchRow
	if err := pgxscan.Select(ctx, p.db, &rows, sql, args...); err != nil {
		recordSearch(ctx, string(ProviderPGVector), time.Since(start), 0, err)
		return nil, core.WrapKind(core.ErrStorageFailure, "pgvector: search", err)
	}
	matches := make([]Match, 0, len(rows))
	for i := range rows {
		var meta knowledge.Metadata
		if len(rows[i].Metadata) > 0 {
			if err := json.Unmarshal(rows[i].Metadata, &meta); err != nil {
				return nil, core.WrapKind(core.ErrStorageFailure, "pgvector: decode metadata", err)
			}
		}
		matches = append(matches, Match{
			ID:         rows[i].ID,
			Content:    rows[i].Content,
			Metadata:   meta,
			Distance:   rows[i].Distance,
			Similarity: 1 - rows[i].Distance,
		})
	}
	recordSearch(ctx, string(ProviderPGVector), time.Since(start), len(matches), nil)
	return matches, nil
}

func (p *PGStore) Count(ctx context.Context) (int64, error) {
	sql, args, err := p.sb.Select("count(*)").From(p.tableIdent).ToSql()
	if err != nil {
		return 0, core.WrapKind(core.ErrStorageFailure, "pgvector: build count", err)
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	var n int64
	if err := p.db.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, core.WrapKind(core.ErrStorageFailure, "pgvector: count", err)
	}
	return n, nil
}

func (p *PGStore) Close(_ context.Context) error {
	p.db.Close()
	return nil
}

func (p *PGStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.queryTimeout)
}
