package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindfold/solace/core"
	"github.com/mindfold/solace/model"
)

// recordingProvider is a core.Provider fake that records the order of calls
// and lets individual operations be failed.
type recordingProvider struct {
	mu       sync.Mutex
	calls    []string
	messages []core.ChatMessage

	scores       []core.ScoreRecord
	chat         *core.ChatSession
	scoresErr    error
	chatErr      error
	upsertErr    error
	failOnUpsert int // fail the nth UpsertChatMessage call (1-based), 0 = never
}

func (p *recordingProvider) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *recordingProvider) GetQuestions(context.Context) ([]core.Question, error) {
	p.record("GetQuestions")
	return nil, nil
}

func (p *recordingProvider) CreateScore(context.Context, *core.ScoreRecord) (string, error) {
	p.record("CreateScore")
	return "", errors.New("not used in these tests")
}

func (p *recordingProvider) UpdateFollowUp(context.Context, string, []int) error {
	p.record("UpdateFollowUp")
	return nil
}

func (p *recordingProvider) GetScoresByUser(context.Context, string) ([]core.ScoreRecord, error) {
	p.record("GetScoresByUser")
	return p.scores, p.scoresErr
}

func (p *recordingProvider) GetChatBySession(context.Context, string) (*core.ChatSession, error) {
	p.record("GetChatBySession")
	return p.chat, p.chatErr
}

func (p *recordingProvider) GetChatsByUser(context.Context, string) ([]core.ChatSession, error) {
	p.record("GetChatsByUser")
	return nil, nil
}

func (p *recordingProvider) UpsertChatMessage(_ context.Context, msg core.ChatMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "UpsertChatMessage")
	if p.failOnUpsert > 0 && len(p.messages)+1 == p.failOnUpsert {
		return p.upsertErr
	}
	p.messages = append(p.messages, msg)
	return nil
}

// recordingMemory is a core.Memory fake.
type recordingMemory struct {
	mu       sync.Mutex
	upserts  [][]string
	metadata []map[string]string
	results  []core.SearchResult
	queryErr error
	upErr    error
}

func (m *recordingMemory) UpsertTexts(_ context.Context, ids []string, texts []string, metadata []map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upErr != nil {
		return m.upErr
	}
	m.upserts = append(m.upserts, texts)
	m.metadata = append(m.metadata, metadata...)
	return nil
}

func (m *recordingMemory) QueryText(context.Context, string, int, map[string]string) ([]core.SearchResult, error) {
	return m.results, m.queryErr
}

func (m *recordingMemory) upsertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.upserts)
}

// capturingModel records the request it received and returns a canned reply.
type capturingModel struct {
	request model.Request
	reply   string
	err     error
}

func (m *capturingModel) Complete(_ context.Context, req model.Request) (model.Response, error) {
	m.request = req
	if m.err != nil {
		return model.Response{}, m.err
	}
	return model.Response{Text: m.reply, FinishReason: "stop"}, nil
}

func (m *capturingModel) Info() model.Info {
	return model.Info{Name: "capturing", Provider: "test"}
}

// backgroundCollector joins best-effort tasks so tests can wait on them.
type backgroundCollector struct {
	mu   sync.Mutex
	done map[string]error
	ch   chan struct{}
}

func newBackgroundCollector() *backgroundCollector {
	return &backgroundCollector{done: make(map[string]error), ch: make(chan struct{}, 16)}
}

func (c *backgroundCollector) sink(task string, err error) {
	c.mu.Lock()
	c.done[task] = err
	c.mu.Unlock()
	c.ch <- struct{}{}
}

func (c *backgroundCollector) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for background task %d of %d", i+1, n)
		}
	}
}

func newTestOrchestrator(p *recordingProvider, m *recordingMemory, mdl model.Model, c *backgroundCollector) *Orchestrator {
	return New(p, m, mdl, func(o *Options) {
		if c != nil {
			o.BackgroundSink = c.sink
		}
	})
}

func TestRespond_HappyPath(t *testing.T) {
	provider := &recordingProvider{
		scores: []core.ScoreRecord{{ID: "sc1", TotalScore: 12, Message: "support", CreatedAt: time.Now()}},
		chat: &core.ChatSession{
			SessionID: "s1",
			Turns: []core.ChatTurn{
				{Role: core.RoleUser, Content: "hello"},
				{Role: core.RoleAssistant, Content: "hi, how are you feeling?"},
			},
		},
	}
	mem := &recordingMemory{
		results: []core.SearchResult{
			{Content: "slept badly this week", Metadata: map[string]string{core.MetaType: core.MemoryTypeChat, core.MetaRole: "user"}},
		},
	}
	mdl := &capturingModel{reply: "I'm here with you."}
	collector := newBackgroundCollector()
	orch := newTestOrchestrator(provider, mem, mdl, collector)

	resp, err := orch.Respond(context.Background(), Request{
		SessionID:  "s1",
		UserID:     "u1",
		Message:    "still tired",
		ScoreDocID: "sc1",
	})
	require.NoError(t, err)
	assert.Equal(t, "I'm here with you.", resp.Reply)
	assert.Equal(t, "s1", resp.SessionID)

	// Both transcript turns were persisted, user before assistant.
	require.Len(t, provider.messages, 2)
	assert.Equal(t, core.RoleUser, provider.messages[0].Role)
	assert.Equal(t, "still tired", provider.messages[0].Content)
	assert.Equal(t, core.RoleAssistant, provider.messages[1].Role)
	assert.Equal(t, "I'm here with you.", provider.messages[1].Content)

	// The prompt carries persona, score context, retrieved block and history.
	assert.Contains(t, mdl.request.Instructions, "Solace")
	assert.Contains(t, mdl.request.Instructions, "Total score: 12")
	assert.Contains(t, mdl.request.Instructions, "slept badly this week")
	require.Len(t, mdl.request.Messages, 3)
	assert.Equal(t, "still tired", mdl.request.Messages[2].Content)

	// Both memory writes complete in the background.
	collector.wait(t, 2)
	assert.Equal(t, 2, mem.upsertCount())
}

func TestRespond_ValidationErrors(t *testing.T) {
	orch := newTestOrchestrator(&recordingProvider{}, &recordingMemory{}, &capturingModel{reply: "ok"}, nil)

	tests := []struct {
		name string
		req  Request
	}{
		{"empty message", Request{SessionID: "s1", Message: "   "}},
		{"empty session", Request{SessionID: "", Message: "hello"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := orch.Respond(context.Background(), tt.req)
			assert.Nil(t, resp)
			assert.True(t, core.IsValidation(err))
		})
	}
}

func TestRespond_UserTurnPersistedBeforeCompletion(t *testing.T) {
	provider := &recordingProvider{}
	mdl := &capturingModel{err: &core.UpstreamError{Operation: "completion", Status: 500, Body: "boom"}}
	orch := newTestOrchestrator(provider, &recordingMemory{}, mdl, nil)

	resp, err := orch.Respond(context.Background(), Request{SessionID: "s1", Message: "hi"})
	assert.Nil(t, resp)

	ue, ok := core.AsUpstream(err)
	require.True(t, ok)
	assert.Equal(t, 500, ue.Status)

	// The user turn landed; the assistant turn never did.
	require.Len(t, provider.messages, 1)
	assert.Equal(t, core.RoleUser, provider.messages[0].Role)
}

func TestRespond_UserTurnPersistFailureIsFatal(t *testing.T) {
	provider := &recordingProvider{failOnUpsert: 1, upsertErr: errors.New("store down")}
	mdl := &capturingModel{reply: "never reached"}
	orch := newTestOrchestrator(provider, &recordingMemory{}, mdl, nil)

	resp, err := orch.Respond(context.Background(), Request{SessionID: "s1", Message: "hi"})
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.Empty(t, mdl.request.Messages, "completion must not run when the user turn fails to persist")
}

func TestRespond_AssistantTurnPersistFailureIsFatal(t *testing.T) {
	provider := &recordingProvider{failOnUpsert: 2, upsertErr: errors.New("store down")}
	orch := newTestOrchestrator(provider, &recordingMemory{}, &capturingModel{reply: "hello"}, nil)

	resp, err := orch.Respond(context.Background(), Request{SessionID: "s1", Message: "hi"})
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assistant turn")
}

func TestRespond_BestEffortReadsDegrade(t *testing.T) {
	provider := &recordingProvider{
		scoresErr: errors.New("scores unavailable"),
		chatErr:   errors.New("history unavailable"),
	}
	mem := &recordingMemory{queryErr: errors.New("index unavailable")}
	mdl := &capturingModel{reply: "still here"}
	orch := newTestOrchestrator(provider, mem, mdl, nil)

	resp, err := orch.Respond(context.Background(), Request{SessionID: "s1", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "still here", resp.Reply)

	// Degraded prompt: persona plus the new message only.
	assert.NotContains(t, mdl.request.Instructions, "Total score")
	require.Len(t, mdl.request.Messages, 1)
}

func TestRespond_BackgroundMemoryFailureDoesNotFailRequest(t *testing.T) {
	mem := &recordingMemory{upErr: errors.New("embedder down")}
	collector := newBackgroundCollector()
	orch := newTestOrchestrator(&recordingProvider{}, mem, &capturingModel{reply: "ok"}, collector)

	resp, err := orch.Respond(context.Background(), Request{SessionID: "s1", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Reply)

	collector.wait(t, 2)
	collector.mu.Lock()
	defer collector.mu.Unlock()
	for task, taskErr := range collector.done {
		assert.Error(t, taskErr, "task %s should surface the failure to the sink", task)
	}
}

func TestRespond_EmptyCompletionSubstitutesFallback(t *testing.T) {
	provider := &recordingProvider{}
	orch := newTestOrchestrator(provider, &recordingMemory{}, &capturingModel{reply: "   "}, nil)

	resp, err := orch.Respond(context.Background(), Request{SessionID: "s1", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, model.FallbackReply, resp.Reply)

	// The fallback is what gets persisted as the assistant turn.
	require.Len(t, provider.messages, 2)
	assert.Equal(t, model.FallbackReply, provider.messages[1].Content)
}

func TestRespond_ScoreSelection(t *testing.T) {
	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	provider := &recordingProvider{
		scores: []core.ScoreRecord{
			{ID: "old", TotalScore: 3, CreatedAt: older},
			{ID: "new", TotalScore: 15, CreatedAt: newer},
		},
	}
	mdl := &capturingModel{reply: "ok"}
	orch := newTestOrchestrator(provider, &recordingMemory{}, mdl, nil)

	// No explicit id: latest record wins.
	_, err := orch.Respond(context.Background(), Request{SessionID: "s1", Message: "hi"})
	require.NoError(t, err)
	assert.Contains(t, mdl.request.Instructions, "Total score: 15")

	// Explicit id overrides recency.
	_, err = orch.Respond(context.Background(), Request{SessionID: "s1", Message: "hi", ScoreDocID: "old"})
	require.NoError(t, err)
	assert.Contains(t, mdl.request.Instructions, "Total score: 3")
}

func TestRespond_AnonymousUserDefault(t *testing.T) {
	provider := &recordingProvider{}
	orch := newTestOrchestrator(provider, &recordingMemory{}, &capturingModel{reply: "ok"}, nil)

	_, err := orch.Respond(context.Background(), Request{SessionID: "s1", Message: "hi"})
	require.NoError(t, err)
	require.Len(t, provider.messages, 2)
	assert.Equal(t, core.AnonymousUser, provider.messages[0].UserID)
}

func TestRespond_MemoryUpsertsSurviveRequestCancellation(t *testing.T) {
	mem := &recordingMemory{}
	collector := newBackgroundCollector()
	orch := newTestOrchestrator(&recordingProvider{}, mem, &capturingModel{reply: "ok"}, collector)

	ctx, cancel := context.WithCancel(context.Background())
	resp, err := orch.Respond(ctx, Request{SessionID: "s1", Message: "hi"})
	cancel()
	require.NoError(t, err)
	require.NotNil(t, resp)

	// Detached writes complete even though the request context is cancelled.
	collector.wait(t, 2)
	assert.Equal(t, 2, mem.upsertCount())
}

func TestBuildPrompt_DropsEchoedUserTurn(t *testing.T) {
	// The transcript already ends with the incoming message because the
	// user turn persists before history loads.
	history := &core.ChatSession{
		SessionID: "s1",
		Turns: []core.ChatTurn{
			{Role: core.RoleUser, Content: "hello"},
			{Role: core.RoleAssistant, Content: "hi, how are you feeling?"},
			{Role: core.RoleUser, Content: "still tired"},
		},
	}
	req := buildPrompt(nil, nil, history, "still tired")

	require.Len(t, req.Messages, 3)
	assert.Equal(t, "hello", req.Messages[0].Content)
	assert.Equal(t, "hi, how are you feeling?", req.Messages[1].Content)
	assert.Equal(t, "still tired", req.Messages[2].Content)

	// An earlier identical user turn that is not the final one stays.
	history.Turns = append(history.Turns, core.ChatTurn{Role: core.RoleAssistant, Content: "rest matters"})
	req = buildPrompt(nil, nil, history, "still tired")
	require.Len(t, req.Messages, 5)
	assert.Equal(t, "still tired", req.Messages[2].Content)
	assert.Equal(t, "still tired", req.Messages[4].Content)
}

func TestBuildPrompt_ContextLabels(t *testing.T) {
	retrieved := []core.SearchResult{
		{Content: "score submitted", Metadata: map[string]string{core.MetaType: core.MemoryTypeQuiz}},
		{Content: "follow-up given", Metadata: map[string]string{core.MetaType: core.MemoryTypeFollowUp}},
		{Content: "said earlier", Metadata: map[string]string{core.MetaType: core.MemoryTypeChat, core.MetaRole: string(core.RoleAssistant)}},
		{Content: "", Metadata: map[string]string{core.MetaType: core.MemoryTypeChat}},
	}
	req := buildPrompt(nil, retrieved, nil, "hello")

	assert.Contains(t, req.Instructions, "[check-in] score submitted")
	assert.Contains(t, req.Instructions, "[follow-up] follow-up given")
	assert.Contains(t, req.Instructions, "[assistant turn] said earlier")
	assert.Equal(t, 3, strings.Count(req.Instructions, "- ["))
}
