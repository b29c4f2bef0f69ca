// Package ollama provides a model.Model implementation for local or
// self-hosted completion endpoints speaking the Ollama chat API (or any
// OpenAI-compatible server). Because these servers vary in response layout,
// reply extraction goes through model.DecodeReply's explicit shape set.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mindfold/solace/core"
	"github.com/mindfold/solace/model"
)

// Options configure the Ollama model adapter.
type Options struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Model calls an Ollama-style chat endpoint over plain HTTP.
type Model struct {
	opts   Options
	client *http.Client
}

// NewModel creates a new Ollama model adapter.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := Options{
		BaseURL: "http://localhost:11434",
		Model:   "llama3.2",
		Timeout: 120 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{opts: opts, client: &http.Client{Timeout: opts.Timeout}}
}

type chatRequest struct {
	Model    string          `json:"model"`
	Messages []model.Message `json:"messages"`
	Stream   bool            `json:"stream"`
}

// Complete sends the assembled messages and decodes the reply via the known
// shape set. Non-success statuses surface as *core.UpstreamError; a success
// with an unrecognizable body yields empty Text for the caller's fallback.
func (m *Model) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	messages := make([]model.Message, 0, len(req.Messages)+1)
	if req.Instructions != "" {
		messages = append(messages, model.Message{Role: "system", Content: req.Instructions})
	}
	messages = append(messages, req.Messages...)

	payload, err := json.Marshal(chatRequest{Model: m.opts.Model, Messages: messages, Stream: false})
	if err != nil {
		return model.Response{}, fmt.Errorf("marshaling chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.opts.BaseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return model.Response{}, fmt.Errorf("creating chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return model.Response{}, fmt.Errorf("calling completion endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Response{}, fmt.Errorf("reading completion response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.Response{}, &core.UpstreamError{
			Operation: "ollama completion",
			Status:    resp.StatusCode,
			Body:      string(body),
		}
	}

	text, ok := model.DecodeReply(body)
	if !ok {
		return model.Response{}, nil
	}
	return model.Response{Text: text, FinishReason: "stop"}, nil
}

// Info returns metadata describing this Ollama model implementation.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "ollama"}
}
