package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mindfold/solace/core"
	"github.com/mindfold/solace/logging"
	"github.com/mindfold/solace/model"
)

// DefaultTopK is the fixed number of memory entries retrieved per message.
const DefaultTopK = 7

// Options configure the orchestrator.
type Options struct {
	// Logger receives request tracing and background task outcomes.
	Logger logging.Logger
	// TopK bounds memory retrieval per message.
	TopK int
	// ReadTimeout bounds each best-effort read so a single slow dependency
	// cannot stall the whole request.
	ReadTimeout time.Duration
	// CompletionTimeout bounds the mandatory completion call.
	CompletionTimeout time.Duration
	// BackgroundTimeout bounds each detached memory upsert.
	BackgroundTimeout time.Duration
	// BackgroundSink, when set, observes the terminal outcome of every
	// background task. Intended for metrics and tests; it must not block.
	BackgroundSink func(task string, err error)
}

// Orchestrator handles one conversational exchange per Respond call. All
// collaborators are injected at construction and used read-only thereafter;
// the zero value is not usable.
type Orchestrator struct {
	provider core.Provider
	memory   core.Memory
	model    model.Model
	opts     Options
}

// New constructs an Orchestrator with explicit dependencies.
func New(provider core.Provider, mem core.Memory, mdl model.Model, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		Logger:            logging.NoOpLogger{},
		TopK:              DefaultTopK,
		ReadTimeout:       5 * time.Second,
		CompletionTimeout: 60 * time.Second,
		BackgroundTimeout: 30 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Orchestrator{provider: provider, memory: mem, model: mdl, opts: opts}
}

// Request is one incoming user message.
type Request struct {
	SessionID  string `json:"sessionId"`
	UserID     string `json:"userId,omitempty"`
	Message    string `json:"message"`
	ScoreDocID string `json:"scoreDocId,omitempty"`
}

// Response is the assistant's reply for one exchange.
type Response struct {
	Reply     string `json:"reply"`
	SessionID string `json:"sessionId"`
}

// Respond runs the full exchange state machine. Returns a
// *core.ValidationError for empty input, the completion service's
// *core.UpstreamError on upstream failure, or a wrapped provider error when
// a mandatory transcript write fails. If an error is returned at or after
// the completion call, the user turn has already been recorded.
func (o *Orchestrator) Respond(ctx context.Context, req Request) (*Response, error) {
	message := strings.TrimSpace(req.Message)
	sessionID := strings.TrimSpace(req.SessionID)
	if message == "" {
		return nil, core.NewValidationError("message must not be empty")
	}
	if sessionID == "" {
		return nil, core.NewValidationError("sessionId must not be empty")
	}
	userID := req.UserID
	if userID == "" {
		userID = core.AnonymousUser
	}

	requestID := core.NewID()
	logger := o.opts.Logger
	logger.Debug("handling message", "request_id", requestID, "session_id", sessionID, "user_id", userID)

	// Best-effort: score history for grounding context.
	scoreDoc := o.lookupScore(ctx, userID, req.ScoreDocID, requestID)

	// Mandatory: the user turn must exist before anything can retrieve it.
	userTurn := core.ChatMessage{
		SessionID:  sessionID,
		UserID:     userID,
		ScoreDocID: req.ScoreDocID,
		Role:       core.RoleUser,
		Content:    message,
	}
	if err := o.provider.UpsertChatMessage(ctx, userTurn); err != nil {
		return nil, fmt.Errorf("persisting user turn: %w", err)
	}

	o.backgroundUpsert(ctx, "user turn memory upsert",
		memoryEntryID(sessionID, core.RoleUser), message,
		turnMetadata(sessionID, userID, core.RoleUser))

	// Best-effort: prior turns and semantically similar context.
	history := o.loadHistory(ctx, sessionID, requestID)
	retrieved := o.retrieveContext(ctx, sessionID, message, requestID)

	mreq := buildPrompt(scoreDoc, retrieved, history, message)

	cctx, cancel := context.WithTimeout(ctx, o.opts.CompletionTimeout)
	defer cancel()
	start := time.Now()
	resp, err := o.model.Complete(cctx, mreq)
	if err != nil {
		logger.Error("completion call failed", "request_id", requestID, "duration", time.Since(start), "error", err)
		return nil, fmt.Errorf("completion call: %w", err)
	}
	logger.Debug("completion call succeeded", "request_id", requestID, "duration", time.Since(start))

	reply := strings.TrimSpace(resp.Text)
	if reply == "" {
		// Success status but no usable reply shape: never dead-end.
		logger.Warn("completion returned no usable reply, substituting fallback", "request_id", requestID)
		reply = model.FallbackReply
	}

	// Mandatory: record the assistant turn before returning it.
	assistantTurn := core.ChatMessage{
		SessionID:  sessionID,
		UserID:     userID,
		ScoreDocID: req.ScoreDocID,
		Role:       core.RoleAssistant,
		Content:    reply,
	}
	if err := o.provider.UpsertChatMessage(ctx, assistantTurn); err != nil {
		return nil, fmt.Errorf("persisting assistant turn: %w", err)
	}

	o.backgroundUpsert(ctx, "assistant turn memory upsert",
		memoryEntryID(sessionID, core.RoleAssistant), reply,
		turnMetadata(sessionID, userID, core.RoleAssistant))

	return &Response{Reply: reply, SessionID: sessionID}, nil
}

// lookupScore fetches the user's score history and selects the record
// matching scoreDocID when supplied and present, else the most recently
// created one. Any failure degrades to no score context.
func (o *Orchestrator) lookupScore(ctx context.Context, userID, scoreDocID, requestID string) *core.ScoreRecord {
	rctx, cancel := context.WithTimeout(ctx, o.opts.ReadTimeout)
	defer cancel()
	scores, err := o.provider.GetScoresByUser(rctx, userID)
	if err != nil {
		o.opts.Logger.Warn("score lookup failed, continuing without score context", "request_id", requestID, "error", err)
		return nil
	}
	if len(scores) == 0 {
		return nil
	}
	if scoreDocID != "" {
		for i := range scores {
			if scores[i].ID == scoreDocID {
				return &scores[i]
			}
		}
	}
	latest := &scores[0]
	for i := range scores {
		if scores[i].CreatedAt.After(latest.CreatedAt) {
			latest = &scores[i]
		}
	}
	return latest
}

// loadHistory fetches the session transcript, degrading to empty history.
func (o *Orchestrator) loadHistory(ctx context.Context, sessionID, requestID string) *core.ChatSession {
	rctx, cancel := context.WithTimeout(ctx, o.opts.ReadTimeout)
	defer cancel()
	history, err := o.provider.GetChatBySession(rctx, sessionID)
	if err != nil {
		o.opts.Logger.Warn("history load failed, continuing with empty history", "request_id", requestID, "error", err)
		return nil
	}
	return history
}

// retrieveContext queries semantic memory scoped to the session, degrading
// to no retrieved context.
func (o *Orchestrator) retrieveContext(ctx context.Context, sessionID, message, requestID string) []core.SearchResult {
	rctx, cancel := context.WithTimeout(ctx, o.opts.ReadTimeout)
	defer cancel()
	results, err := o.memory.QueryText(rctx, message, o.opts.TopK, map[string]string{core.MetaSessionID: sessionID})
	if err != nil {
		o.opts.Logger.Warn("memory retrieval failed, continuing without retrieved context", "request_id", requestID, "error", err)
		return nil
	}
	return results
}

// memoryEntryID builds a caller-unique index id. The timestamp qualifier
// keeps the two concurrent write sites (user turn, assistant turn) from
// colliding within a session.
func memoryEntryID(sessionID string, role core.Role) string {
	return fmt.Sprintf("%s-%s-%d", sessionID, role, time.Now().UnixMilli())
}

// turnMetadata builds the flat metadata for a transcript memory entry. All
// values are strings because the index may reject composite payloads.
func turnMetadata(sessionID, userID string, role core.Role) map[string]string {
	return map[string]string{
		core.MetaSessionID: sessionID,
		core.MetaUserID:    userID,
		core.MetaRole:      string(role),
		core.MetaType:      core.MemoryTypeChat,
		core.MetaTimestamp: strconv.FormatInt(time.Now().UnixMilli(), 10),
	}
}

// backgroundUpsert launches the named best-effort memory write for one turn.
func (o *Orchestrator) backgroundUpsert(ctx context.Context, task, id, text string, meta map[string]string) {
	sink := o.opts.BackgroundSink
	BestEffort(ctx, o.opts.Logger, o.opts.BackgroundTimeout, task, func(ctx context.Context) error {
		err := o.memory.UpsertTexts(ctx, []string{id}, []string{text}, []map[string]string{meta})
		if sink != nil {
			sink(task, err)
		}
		return err
	})
}
