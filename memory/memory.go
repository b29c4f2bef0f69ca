package memory

import (
	"context"
	"fmt"

	"github.com/mindfold/solace/core"
)

// Entry is one embedded, metadata-tagged unit stored in the vector index.
// ID is caller-chosen and must be unique per logical event; metadata is
// restricted to flat string values because index backends may reject
// composite payloads.
type Entry struct {
	ID       string
	Text     string
	Vector   []float32
	Metadata map[string]string
}

// Embedder turns text into vectors. EmbedDocuments and EmbedQuery are
// distinct because many embedding backends are tuned differently for
// documents vs. queries.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Index stores entries and answers filtered top-K similarity queries.
type Index interface {
	Upsert(ctx context.Context, entries []Entry) error
	Query(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]core.SearchResult, error)
}

// Service wires an Embedder and an Index into the core.Memory contract.
// No caching, deduplication or eviction happens here: every call is a
// direct round trip.
type Service struct {
	embedder Embedder
	index    Index
}

// NewService constructs the memory service from its two collaborators.
func NewService(embedder Embedder, index Index) *Service {
	return &Service{embedder: embedder, index: index}
}

// UpsertTexts embeds the batch in document mode and writes the resulting
// entries to the index. The embedding call and the index write are not
// independently retryable: a failure at either stage fails the whole upsert.
func (s *Service) UpsertTexts(ctx context.Context, ids []string, texts []string, metadata []map[string]string) error {
	if len(ids) != len(texts) || len(texts) != len(metadata) {
		return fmt.Errorf("upsert batch mismatch: %d ids, %d texts, %d metadata", len(ids), len(texts), len(metadata))
	}
	if len(ids) == 0 {
		return nil
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding documents: %w", err)
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}

	entries := make([]Entry, len(ids))
	for i := range ids {
		entries[i] = Entry{
			ID:       ids[i],
			Text:     texts[i],
			Vector:   vectors[i],
			Metadata: metadata[i],
		}
	}
	if err := s.index.Upsert(ctx, entries); err != nil {
		return fmt.Errorf("indexing entries: %w", err)
	}
	return nil
}

// QueryText embeds the query in query mode and returns the top-K matches
// whose metadata satisfies every filter key, ordered by descending score.
func (s *Service) QueryText(ctx context.Context, text string, topK int, filter map[string]string) ([]core.SearchResult, error) {
	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	results, err := s.index.Query(ctx, vector, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}
	return results, nil
}

// Interface compliance (compile-time assertion)
var _ core.Memory = (*Service)(nil)
