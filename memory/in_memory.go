package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/mindfold/solace/core"
)

// InMemoryIndex is a volatile Index implementation storing entries in a
// process local map. It is safe for concurrent access and best suited for
// tests or ephemeral demo servers. Query performs an exact cosine scan;
// swap in a remote vector database for production retrieval.
type InMemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewInMemoryIndex constructs an empty in-memory index.
func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{entries: make(map[string]Entry)}
}

// Upsert stores the entries, overwriting any existing ids.
func (idx *InMemoryIndex) Upsert(_ context.Context, entries []Entry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, e := range entries {
		idx.entries[e.ID] = e
	}
	return nil
}

// Query returns the topK entries matching every filter key, ordered by
// descending cosine similarity to the query vector.
func (idx *InMemoryIndex) Query(_ context.Context, vector []float32, topK int, filter map[string]string) ([]core.SearchResult, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var results []core.SearchResult
	for _, e := range idx.entries {
		if !matchesFilter(e.Metadata, filter) {
			continue
		}
		meta := make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			meta[k] = v
		}
		results = append(results, core.SearchResult{
			ID:       e.ID,
			Content:  e.Text,
			Score:    cosineSimilarity(vector, e.Vector),
			Metadata: meta,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Len reports the number of stored entries.
func (idx *InMemoryIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

func matchesFilter(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Interface compliance (compile-time assertion)
var _ Index = (*InMemoryIndex)(nil)
