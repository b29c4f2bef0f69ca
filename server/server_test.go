package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindfold/solace/core"
	"github.com/mindfold/solace/memory"
	"github.com/mindfold/solace/model"
	"github.com/mindfold/solace/orchestrator"
	"github.com/mindfold/solace/scoring"
)

// stubProvider is a core.Provider fake with per-operation failure injection.
type stubProvider struct {
	mu           sync.Mutex
	scores       map[string]*core.ScoreRecord
	messages     []core.ChatMessage
	createErr    error
	followUpErr  error
	questionsErr error
}

func newStubProvider() *stubProvider {
	return &stubProvider{scores: make(map[string]*core.ScoreRecord)}
}

func (p *stubProvider) GetQuestions(context.Context) ([]core.Question, error) {
	if p.questionsErr != nil {
		return nil, p.questionsErr
	}
	return scoring.DefaultQuestions(), nil
}

func (p *stubProvider) CreateScore(_ context.Context, rec *core.ScoreRecord) (string, error) {
	if p.createErr != nil {
		return "", p.createErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := "score-" + strconv.Itoa(len(p.scores)+1)
	stored := *rec
	stored.ID = id
	p.scores[id] = &stored
	return id, nil
}

func (p *stubProvider) UpdateFollowUp(_ context.Context, id string, followUp []int) error {
	if p.followUpErr != nil {
		return p.followUpErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.scores[id]
	if !ok {
		return core.ErrNotFound
	}
	rec.FollowUp = followUp
	return nil
}

func (p *stubProvider) GetScoresByUser(context.Context, string) ([]core.ScoreRecord, error) {
	return nil, nil
}

func (p *stubProvider) GetChatBySession(context.Context, string) (*core.ChatSession, error) {
	return nil, nil
}

func (p *stubProvider) GetChatsByUser(context.Context, string) ([]core.ChatSession, error) {
	return nil, nil
}

func (p *stubProvider) UpsertChatMessage(_ context.Context, msg core.ChatMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

type testHarness struct {
	provider *stubProvider
	model    *model.MockModel
	server   *Server
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	provider := newStubProvider()
	mem := memory.NewService(constEmbedder{}, memory.NewInMemoryIndex())
	mdl := model.NewMockModel("test-model", "mock")
	orch := orchestrator.New(provider, mem, mdl)
	engine := scoring.NewEngine()
	return &testHarness{
		provider: provider,
		model:    mdl,
		server:   New("127.0.0.1:0", orch, engine, provider, mem),
	}
}

// constEmbedder keeps memory functional without a real embedding backend.
type constEmbedder struct{}

func (constEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1}
	}
	return out, nil
}

func (constEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{1}, nil
}

func (h *testHarness) post(t *testing.T, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func allResponses(idx int) map[string]float64 {
	responses := make(map[string]float64, core.QuestionCount)
	for serial := 1; serial <= core.QuestionCount; serial++ {
		responses[strconv.Itoa(serial)] = float64(idx)
	}
	return responses
}

func TestHandleAgent(t *testing.T) {
	h := newTestHarness(t)
	h.model.AddResponse("hello", "hi there, how are you feeling?")

	rec := h.post(t, "/agent", orchestrator.Request{SessionID: "s1", UserID: "u1", Message: "hello"})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[orchestrator.Response](t, rec)
	assert.Equal(t, "hi there, how are you feeling?", resp.Reply)
	assert.Equal(t, "s1", resp.SessionID)

	// Both turns landed in the transcript.
	h.provider.mu.Lock()
	defer h.provider.mu.Unlock()
	require.Len(t, h.provider.messages, 2)
	assert.Equal(t, core.RoleUser, h.provider.messages[0].Role)
	assert.Equal(t, core.RoleAssistant, h.provider.messages[1].Role)
}

func TestHandleAgent_ValidationTo400(t *testing.T) {
	h := newTestHarness(t)

	rec := h.post(t, "/agent", orchestrator.Request{SessionID: "s1", Message: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.post(t, "/agent", orchestrator.Request{Message: "hello"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAgent_UpstreamTo502(t *testing.T) {
	h := newTestHarness(t)
	h.model.FailWith(&core.UpstreamError{Operation: "completion", Status: 429, Body: `{"error":"rate limited"}`})

	rec := h.post(t, "/agent", orchestrator.Request{SessionID: "s1", Message: "hello"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "rate limited")
}

func TestHandleAgent_MalformedBodyTo400(t *testing.T) {
	h := newTestHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/agent", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleScore(t *testing.T) {
	h := newTestHarness(t)

	rec := h.post(t, "/score", map[string]any{"user": "u1", "testResponses": allResponses(2)})
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decodeBody[scoreResponse](t, rec)
	assert.Equal(t, 20, resp.TotalScore)
	assert.True(t, resp.Persisted)
	assert.NotEmpty(t, resp.ID)
	require.NotNil(t, resp.FullScore)
	assert.Equal(t, "u1", resp.FullScore.UserID)
	assert.Len(t, resp.FullScore.ScoreInfo, core.QuestionCount)
}

func TestHandleScore_PersistFailureDegrades(t *testing.T) {
	h := newTestHarness(t)
	h.provider.createErr = errors.New("store down")

	rec := h.post(t, "/score", map[string]any{"testResponses": allResponses(1)})
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decodeBody[scoreResponse](t, rec)
	assert.False(t, resp.Persisted)
	assert.Empty(t, resp.ID)
	assert.Equal(t, 10, resp.TotalScore)
}

func TestHandleScore_IncompleteResponsesTo400(t *testing.T) {
	h := newTestHarness(t)

	rec := h.post(t, "/score", map[string]any{"testResponses": map[string]float64{"1": 2}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleScore_QuestionnaireUnavailableTo500(t *testing.T) {
	h := newTestHarness(t)
	h.provider.questionsErr = errors.New("remote down")

	rec := h.post(t, "/score", map[string]any{"testResponses": allResponses(0)})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleFollowUp_FlatShape(t *testing.T) {
	h := newTestHarness(t)
	created := decodeBody[scoreResponse](t, h.post(t, "/score", map[string]any{"testResponses": allResponses(0)}))

	rec := h.post(t, "/followup", map[string]any{"id": created.ID, "followUp": []int{1, 0, 2}})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[followUpResponse](t, rec)
	assert.True(t, resp.Persisted)
	assert.Equal(t, []int{1, 0, 2}, resp.FollowUp)

	h.provider.mu.Lock()
	defer h.provider.mu.Unlock()
	assert.Equal(t, []int{1, 0, 2}, h.provider.scores[created.ID].FollowUp)
}

func TestHandleFollowUp_FullScoreEnvelope(t *testing.T) {
	h := newTestHarness(t)
	created := decodeBody[scoreResponse](t, h.post(t, "/score", map[string]any{"testResponses": allResponses(0)}))

	rec := h.post(t, "/followup", map[string]any{
		"fullScore": map[string]any{"_id": created.ID, "userId": "u1", "followUp": []int{3}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[followUpResponse](t, rec)
	assert.Equal(t, created.ID, resp.ID)
	assert.Equal(t, []int{3}, resp.FollowUp)
}

func TestHandleFollowUp_Rejections(t *testing.T) {
	h := newTestHarness(t)
	created := decodeBody[scoreResponse](t, h.post(t, "/score", map[string]any{"testResponses": allResponses(0)}))

	tests := []struct {
		name    string
		payload map[string]any
		status  int
	}{
		{"missing id", map[string]any{"followUp": []int{1}}, http.StatusBadRequest},
		{"too many answers", map[string]any{"id": created.ID, "followUp": []int{1, 2, 3, 4, 5, 6}}, http.StatusBadRequest},
		{"unknown id", map[string]any{"id": "missing", "followUp": []int{1}}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.post(t, "/followup", tt.payload)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestHandleFollowUp_PersistFailureDegrades(t *testing.T) {
	h := newTestHarness(t)
	h.provider.followUpErr = errors.New("store down")

	rec := h.post(t, "/followup", map[string]any{"id": "score-1", "followUp": []int{1}})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[followUpResponse](t, rec)
	assert.False(t, resp.Persisted)
}

func TestHandleHealth(t *testing.T) {
	h := newTestHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
