package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"ragchat/types"
)

// ErrIndexUnavailable marks failures of the index backing itself, as opposed
// to an empty index, which is never an error.
var ErrIndexUnavailable = errors.New("vector index unavailable")

// VectorStorer holds indexed chunks and answers nearest-neighbor queries.
// Search never mutates the index; AddChunks is the only mutator and appends
// duplicates without dedup.
type VectorStorer interface {
	AddChunks(ctx context.Context, chunks []types.Chunk) error
	Search(ctx context.Context, embedding []float32, k int) ([]types.Chunk, error)
	Reset(ctx context.Context) error
	Close() error
}

// PostgresStore backs the index with pgvector, cosine distance.
type PostgresStore struct {
	pool      *pgxpool.Pool
	vectorDim int
}

func NewPostgresStore(ctx context.Context, connStr string, vectorDim int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	return &PostgresStore{
		pool:      pool,
		vectorDim: vectorDim,
	}, nil
}

func (p *PostgresStore) Init(ctx context.Context) error {
	query := fmt.Sprintf(`
    CREATE EXTENSION IF NOT EXISTS vector;

    CREATE TABLE IF NOT EXISTS chunks (
        id UUID PRIMARY KEY,
        doc_id UUID NOT NULL,
        position INT NOT NULL,
        content TEXT NOT NULL,
        embedding vector(%d) NOT NULL
    );

	CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING ivfflat (embedding vector_cosine_ops)
	WITH (lists = 100);

	CREATE INDEX IF NOT EXISTS idx_chunks_doc_id ON chunks(doc_id);
    `, p.vectorDim)
	if _, err := p.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	return nil
}

func (p *PostgresStore) AddChunks(ctx context.Context, chunks []types.Chunk) error {
	batch := &pgx.Batch{}
	query := `
    INSERT INTO chunks (id, doc_id, position, content, embedding)
    VALUES ($1, $2, $3, $4, $5)
    `
	for _, c := range chunks {
		batch.Queue(query, c.ID, c.DocID, c.Index, c.Content, pgvector.NewVector(c.Embedding))
	}

	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	return nil
}

func (p *PostgresStore) Search(ctx context.Context, embedding []float32, k int) ([]types.Chunk, error) {
	if len(embedding) == 0 {
		return nil, errors.New("empty query vector")
	}

	query := `
		SELECT id, doc_id, position, content,
		       1-(embedding <=> $1) AS distance
		FROM chunks
		ORDER BY embedding <=> $1
		LIMIT $2
	`
	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	defer rows.Close()

	var chunks []types.Chunk
	for rows.Next() {
		var chunk types.Chunk
		if err := rows.Scan(
			&chunk.ID,
			&chunk.DocID,
			&chunk.Index,
			&chunk.Content,
			&chunk.Distance); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	return chunks, nil
}

func (p *PostgresStore) Reset(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, "TRUNCATE chunks"); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	return nil
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}
