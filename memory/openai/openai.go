// Package openai implements memory.Embedder using the OpenAI embeddings API.
// Document and query modes are realized as configurable input prefixes
// (empty for OpenAI's own models, which are symmetric; set to the
// "search_document: " / "search_query: " convention for asymmetric models
// served through OpenAI-compatible endpoints).
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
)

// Options configure the embeddings client.
type Options struct {
	Model          openai.EmbeddingModel
	DocumentPrefix string
	QueryPrefix    string
}

// Embedder wraps the OpenAI embeddings endpoint.
type Embedder struct {
	client *openai.Client
	opts   Options
}

// NewEmbedder creates an embedder using the official client.
func NewEmbedder(optFns ...func(o *Options)) *Embedder {
	client := openai.NewClient()
	return NewEmbedderFromClient(&client, optFns...)
}

// NewEmbedderFromClient creates an embedder from an existing client.
func NewEmbedderFromClient(client *openai.Client, optFns ...func(o *Options)) *Embedder {
	opts := Options{Model: openai.EmbeddingModelTextEmbedding3Small}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Embedder{client: client, opts: opts}
}

// EmbedDocuments embeds a batch of texts in document mode.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = e.opts.DocumentPrefix + t
	}
	return e.embed(ctx, inputs)
}

// EmbedQuery embeds a single query string in query mode.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{e.opts.QueryPrefix + text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *Embedder) embed(ctx context.Context, inputs []string) ([][]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
		Model: e.opts.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings error: %w", err)
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(inputs), len(resp.Data))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		vectors[i] = vec
	}
	return vectors, nil
}
