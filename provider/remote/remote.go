// Package remote implements core.Provider against a remote unified data API
// over HTTP. Two resilience behaviors distinguish it from the direct store:
//
//   - Schema-variant negotiation for score writes: deployed API versions
//     disagree about payload casing and enveloping, so writes try a fixed,
//     ordered set of encodings, advancing only on validation-class (422)
//     rejections and aborting immediately on anything else.
//   - Fallback-on-degraded-read for questions: when the remote is
//     unreachable or returns a malformed question list, the bundled static
//     set keeps scoring available.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mindfold/solace/core"
	"github.com/mindfold/solace/logging"
	"github.com/mindfold/solace/scoring"
)

// Options configure the remote provider.
type Options struct {
	// APIKey, when set, is sent as the api-key header on every request.
	APIKey string
	// Timeout bounds each individual HTTP round trip.
	Timeout time.Duration
	// ReseedOnMismatch enables a one-shot seed-then-reread cycle before
	// falling back to the bundled question set.
	ReseedOnMismatch bool
	// FallbackQuestions replaces the bundled static set used on degraded
	// reads. Must contain exactly core.QuestionCount items.
	FallbackQuestions []core.Question
	// Logger receives degraded-read and negotiation diagnostics.
	Logger logging.Logger
}

// Provider is the remote-API backend of core.Provider.
type Provider struct {
	baseURL string
	client  *http.Client
	opts    Options
}

// New creates a remote provider rooted at baseURL.
func New(baseURL string, optFns ...func(o *Options)) *Provider {
	opts := Options{
		Timeout:           15 * time.Second,
		FallbackQuestions: scoring.DefaultQuestions(),
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: opts.Timeout},
		opts:    opts,
	}
}

// GetQuestions fetches the questionnaire from the remote API. When the
// remote is unreachable or the list does not contain exactly
// core.QuestionCount items, the bundled static set is returned instead so
// scoring can still proceed. With ReseedOnMismatch set, one seed-then-reread
// cycle is attempted first.
func (p *Provider) GetQuestions(ctx context.Context) ([]core.Question, error) {
	questions, err := p.fetchQuestions(ctx)
	if err == nil && len(questions) == core.QuestionCount {
		return questions, nil
	}

	if p.opts.ReseedOnMismatch {
		p.opts.Logger.Warn("question list degraded, attempting reseed", "items", len(questions), "error", errString(err))
		if seedErr := p.postJSON(ctx, "/questions/seed", p.opts.FallbackQuestions, nil); seedErr == nil {
			if questions, err = p.fetchQuestions(ctx); err == nil && len(questions) == core.QuestionCount {
				return questions, nil
			}
		}
	}

	p.opts.Logger.Warn("falling back to bundled question set", "items", len(questions), "error", errString(err))
	fallback := make([]core.Question, len(p.opts.FallbackQuestions))
	copy(fallback, p.opts.FallbackQuestions)
	return fallback, nil
}

func (p *Provider) fetchQuestions(ctx context.Context) ([]core.Question, error) {
	body, status, err := p.get(ctx, "/questions")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &core.UpstreamError{Operation: "get questions", Status: status, Body: string(body)}
	}
	// Accept both a bare array and a data envelope.
	var direct []core.Question
	if err := json.Unmarshal(body, &direct); err == nil {
		return direct, nil
	}
	var enveloped struct {
		Data []core.Question `json:"data"`
	}
	if err := json.Unmarshal(body, &enveloped); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	return enveloped.Data, nil
}

// CreateScore persists a score record through schema-variant negotiation and
// returns the id assigned by the remote API.
func (p *Provider) CreateScore(ctx context.Context, rec *core.ScoreRecord) (string, error) {
	body, err := p.negotiate(ctx, http.MethodPost, "/scores", scoreVariants(rec))
	if err != nil {
		return "", err
	}
	id := decodeID(body)
	if id == "" {
		return "", fmt.Errorf("create score: response carried no id")
	}
	return id, nil
}

// UpdateFollowUp overwrites the follow-up list on a score record through
// schema-variant negotiation.
func (p *Provider) UpdateFollowUp(ctx context.Context, id string, followUp []int) error {
	path := "/scores/" + url.PathEscape(id) + "/follow-up"
	_, err := p.negotiate(ctx, http.MethodPatch, path, followUpVariants(followUp))
	return err
}

// GetScoresByUser returns the user's score records, most recent first. An
// unknown user yields an empty slice, not an error.
func (p *Provider) GetScoresByUser(ctx context.Context, userID string) ([]core.ScoreRecord, error) {
	var records []core.ScoreRecord
	if err := p.getJSON(ctx, "/users/"+url.PathEscape(userID)+"/scores", &records); err != nil {
		return nil, err
	}
	return records, nil
}

// GetChatBySession returns the session transcript, or (nil, nil) when the
// session does not exist remotely.
func (p *Provider) GetChatBySession(ctx context.Context, sessionID string) (*core.ChatSession, error) {
	body, status, err := p.get(ctx, "/chats/"+url.PathEscape(sessionID))
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, &core.UpstreamError{Operation: "get chat", Status: status, Body: string(body)}
	}
	var session core.ChatSession
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("decode chat: %w", err)
	}
	return &session, nil
}

// GetChatsByUser returns all chat sessions denormalized to the user.
func (p *Provider) GetChatsByUser(ctx context.Context, userID string) ([]core.ChatSession, error) {
	var sessions []core.ChatSession
	if err := p.getJSON(ctx, "/users/"+url.PathEscape(userID)+"/chats", &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// UpsertChatMessage appends one turn to the session transcript. The remote
// API performs the create-if-absent + append atomically; this client sends a
// single canonical shape (turn writes never needed negotiation upstream).
func (p *Provider) UpsertChatMessage(ctx context.Context, msg core.ChatMessage) error {
	payload := map[string]any{
		"sessionId":  msg.SessionID,
		"userId":     msg.UserID,
		"scoreDocId": msg.ScoreDocID,
		"role":       string(msg.Role),
		"content":    msg.Content,
	}
	return p.postJSON(ctx, "/chats", payload, nil)
}

func (p *Provider) get(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	p.setHeaders(req)
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("calling data API: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("reading response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// getJSON decodes a list read; 404 and empty bodies decode to empty results.
func (p *Provider) getJSON(ctx context.Context, path string, out any) error {
	body, status, err := p.get(ctx, path)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return nil
	}
	if status != http.StatusOK {
		return &core.UpstreamError{Operation: "GET " + path, Status: status, Body: string(body)}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (p *Provider) postJSON(ctx context.Context, path string, payload any, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	p.setHeaders(req)
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling data API: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &core.UpstreamError{Operation: "POST " + path, Status: resp.StatusCode, Body: string(body)}
	}
	if out != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return nil
}

func (p *Provider) setHeaders(req *http.Request) {
	if p.opts.APIKey != "" {
		req.Header.Set("api-key", p.opts.APIKey)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Interface compliance (compile-time assertion)
var _ core.Provider = (*Provider)(nil)
