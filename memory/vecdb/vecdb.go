// Package vecdb is a minimal REST client for a Qdrant-style vector index,
// implementing memory.Index. It assumes cosine distance and creates the
// collection if missing. Entry metadata is stored flat in the point payload
// alongside the original text, enabling filtered retrieval by metadata key.
package vecdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mindfold/solace/core"
	"github.com/mindfold/solace/memory"
)

// Config contains connection details for the vector index service.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// Index is the remote vector index client.
type Index struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

// NewIndex creates a client for the configured collection.
func NewIndex(cfg Config) *Index {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Index{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// Init creates the collection with the given vector dimension if it does not
// already exist.
func (x *Index) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	return x.putJSON(ctx, fmt.Sprintf("%s/collections/%s", x.url, x.collection), body)
}

// Upsert writes the entries as points; ids are the caller-chosen entry ids.
func (x *Index) Upsert(ctx context.Context, entries []memory.Entry) error {
	points := make([]map[string]any, len(entries))
	for i, e := range entries {
		payload := map[string]any{"text": e.Text}
		for k, v := range e.Metadata {
			payload[k] = v
		}
		points[i] = map[string]any{
			"id":      e.ID,
			"vector":  e.Vector,
			"payload": payload,
		}
	}
	body := map[string]any{"points": points}
	return x.putJSON(ctx, fmt.Sprintf("%s/collections/%s/points?wait=true", x.url, x.collection), body)
}

// Query returns the topK points matching every filter key, most similar first.
func (x *Index) Query(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]core.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if len(filter) > 0 {
		var must []map[string]any
		for k, v := range filter {
			must = append(must, map[string]any{
				"key":   k,
				"match": map[string]any{"value": v},
			})
		}
		req["filter"] = map[string]any{"must": must}
	}

	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := x.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/search", x.url, x.collection), req, &resp); err != nil {
		return nil, err
	}

	results := make([]core.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		res := core.SearchResult{
			ID:       fmt.Sprintf("%v", r.ID),
			Score:    r.Score,
			Metadata: make(map[string]string, len(r.Payload)),
		}
		for k, v := range r.Payload {
			s, ok := v.(string)
			if !ok {
				continue
			}
			if k == "text" {
				res.Content = s
				continue
			}
			res.Metadata[k] = s
		}
		results = append(results, res)
	}
	return results, nil
}

func (x *Index) putJSON(ctx context.Context, url string, body any) error {
	return x.send(ctx, http.MethodPut, url, body, nil)
}

func (x *Index) postJSON(ctx context.Context, url string, body, out any) error {
	return x.send(ctx, http.MethodPost, url, body, out)
}

func (x *Index) send(ctx context.Context, method, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if x.apiKey != "" {
		req.Header.Set("api-key", x.apiKey)
	}
	resp, err := x.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling vector index: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("vector index %s %s failed: %s: %s", method, url, resp.Status, string(raw))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Interface compliance (compile-time assertion)
var _ memory.Index = (*Index)(nil)
