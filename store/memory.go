package store

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"

	"ragchat/types"
)

const memoryCollection = "chunks"

// MemoryStore backs the index with an in-process chromem-go collection.
// Entries live for the lifetime of the process, or until Reset.
type MemoryStore struct {
	db *chromem.DB

	mu         sync.RWMutex
	collection *chromem.Collection
}

func NewMemoryStore() (*MemoryStore, error) {
	db := chromem.NewDB()
	collection, err := db.GetOrCreateCollection(memoryCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	return &MemoryStore{
		db:         db,
		collection: collection,
	}, nil
}

func (m *MemoryStore) AddChunks(ctx context.Context, chunks []types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:      c.ID.String(),
			Content: c.Content,
			Metadata: map[string]string{
				"doc_id": c.DocID.String(),
				"index":  strconv.Itoa(c.Index),
			},
			Embedding: c.Embedding,
		}
	}

	m.mu.RLock()
	collection := m.collection
	m.mu.RUnlock()

	if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	return nil
}

func (m *MemoryStore) Search(ctx context.Context, embedding []float32, k int) ([]types.Chunk, error) {
	m.mu.RLock()
	collection := m.collection
	m.mu.RUnlock()

	// chromem rejects a query asking for more results than stored entries.
	if n := collection.Count(); n < k {
		k = n
	}
	if k <= 0 {
		return nil, nil
	}

	results, err := collection.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	chunks := make([]types.Chunk, 0, len(results))
	for _, res := range results {
		chunk := types.Chunk{
			Content:  res.Content,
			Distance: float64(res.Similarity),
		}
		if id, err := uuid.Parse(res.ID); err == nil {
			chunk.ID = id
		}
		if docID, err := uuid.Parse(res.Metadata["doc_id"]); err == nil {
			chunk.DocID = docID
		}
		if idx, err := strconv.Atoi(res.Metadata["index"]); err == nil {
			chunk.Index = idx
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func (m *MemoryStore) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.db.DeleteCollection(memoryCollection); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	collection, err := m.db.GetOrCreateCollection(memoryCollection, nil, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	m.collection = collection
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
