package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Message is one conversational turn sent to the completion service.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request captures the normalized completion input produced by the
// orchestrator's prompt assembly.
type Request struct {
	Instructions string    `json:"instructions"` // System/persona preamble
	Messages     []Message `json:"messages"`     // Ordered conversation turns
}

// Response is the completion service's reply. Text may be empty when the
// upstream returned a success status with an unusable body; callers are
// expected to substitute FallbackReply rather than fail.
type Response struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "ollama", ...
}

// Model is the minimal interface required to drive completion generation.
// Complete must be cancellable via ctx and must surface service-level
// failures as errors (typically *core.UpstreamError); it must not fabricate
// reply text on failure.
type Model interface {
	Complete(ctx context.Context, req Request) (Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// FallbackReply is substituted when the completion service returns success
// but no recognizable reply shape. The conversation must not dead-end on a
// malformed upstream response.
const FallbackReply = "I'm sorry, I wasn't able to put together a response just now. Could you say that again?"

// replyShape decodes one known completion response body layout. Decoders are
// tried in declaration order; the first that yields non-empty text wins.
type replyShape struct {
	name   string
	decode func(body []byte) string
}

// replyShapes is the explicit, exhaustive set of response layouts seen across
// supported completion backends. Extend here rather than adding ad hoc
// fallbacks at call sites.
var replyShapes = []replyShape{
	{"openai_chat", func(body []byte) string {
		var v struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		if json.Unmarshal(body, &v) != nil || len(v.Choices) == 0 {
			return ""
		}
		return v.Choices[0].Message.Content
	}},
	{"anthropic_messages", func(body []byte) string {
		var v struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		}
		if json.Unmarshal(body, &v) != nil {
			return ""
		}
		var sb strings.Builder
		for _, b := range v.Content {
			if b.Type == "text" {
				sb.WriteString(b.Text)
			}
		}
		return sb.String()
	}},
	{"ollama_chat", func(body []byte) string {
		var v struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		}
		if json.Unmarshal(body, &v) != nil {
			return ""
		}
		return v.Message.Content
	}},
	{"ollama_generate", func(body []byte) string {
		var v struct {
			Response string `json:"response"`
		}
		if json.Unmarshal(body, &v) != nil {
			return ""
		}
		return v.Response
	}},
}

// DecodeReply extracts reply text from a raw completion response body by
// trying the known shapes in order. The boolean reports whether any shape
// matched with non-empty text; on false, callers should use FallbackReply.
func DecodeReply(body []byte) (string, bool) {
	for _, shape := range replyShapes {
		if text := strings.TrimSpace(shape.decode(body)); text != "" {
			return text, true
		}
	}
	return "", false
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
type MockModel struct {
	info      Info
	responses map[string]string
	err       error
}

// NewMockModel constructs a MockModel.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: provider},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input message.
func (m *MockModel) AddResponse(input, response string) { m.responses[input] = response }

// FailWith makes every Complete call return err.
func (m *MockModel) FailWith(err error) { m.err = err }

// Complete implements Model; replies to the last message in the request.
func (m *MockModel) Complete(ctx context.Context, req Request) (Response, error) {
	if m.err != nil {
		return Response{}, m.err
	}
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	if len(req.Messages) == 0 {
		return Response{}, fmt.Errorf("no messages provided")
	}
	last := req.Messages[len(req.Messages)-1].Content
	reply := m.responses[last]
	if reply == "" {
		reply = fmt.Sprintf("Mock response to: %s", last)
	}
	return Response{Text: reply, FinishReason: "stop"}, nil
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
