package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mindfold/solace/core"
	"github.com/mindfold/solace/logging"
	"github.com/mindfold/solace/orchestrator"
	"github.com/mindfold/solace/scoring"
)

// Options configure the server.
type Options struct {
	Logger logging.Logger
	// BackgroundTimeout bounds the detached memory writes fired after
	// score and follow-up submissions.
	BackgroundTimeout time.Duration
	// ReadTimeout / WriteTimeout apply to the underlying http.Server.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP front of Solace.
type Server struct {
	addr     string
	orch     *orchestrator.Orchestrator
	engine   *scoring.Engine
	provider core.Provider
	memory   core.Memory
	opts     Options
}

// New creates a server with explicit dependencies.
func New(addr string, orch *orchestrator.Orchestrator, engine *scoring.Engine, provider core.Provider, memory core.Memory, optFns ...func(o *Options)) *Server {
	opts := Options{
		Logger:            logging.NoOpLogger{},
		BackgroundTimeout: 30 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      120 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Server{addr: addr, orch: orch, engine: engine, provider: provider, memory: memory, opts: opts}
}

// Handler returns the route mux. Exposed separately from Start for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /agent", s.handleAgent)
	mux.HandleFunc("POST /score", s.handleScore)
	mux.HandleFunc("POST /followup", s.handleFollowUp)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.opts.Logger.Info("server starting", "addr", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	resp, err := s.orch.Respond(r.Context(), req)
	if err != nil {
		s.writeAgentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeAgentError maps the error taxonomy onto response statuses: caller
// faults to 400, upstream completion failures to 502 with the upstream
// body, everything else to 500.
func (s *Server) writeAgentError(w http.ResponseWriter, err error) {
	if core.IsValidation(err) {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	if ue, ok := core.AsUpstream(err); ok {
		writeError(w, http.StatusBadGateway, "completion service failed", ue.Body)
		return
	}
	s.opts.Logger.Error("agent request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error", "")
}

type scoreRequest struct {
	User          string             `json:"user,omitempty"`
	TestResponses map[string]float64 `json:"testResponses"`
}

type scoreResponse struct {
	ID         string            `json:"id"`
	TotalScore int               `json:"totalScore"`
	Message    string            `json:"message"`
	Persisted  bool              `json:"persisted"`
	FullScore  *core.ScoreRecord `json:"fullScore"`
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	questions, err := s.provider.GetQuestions(r.Context())
	if err != nil {
		s.opts.Logger.Error("loading questionnaire failed", "error", err)
		writeError(w, http.StatusInternalServerError, "questionnaire unavailable", "")
		return
	}

	responses := make(map[int]int, len(req.TestResponses))
	for key, v := range req.TestResponses {
		serial, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			continue
		}
		responses[serial] = int(v)
	}

	rec, err := s.engine.Score(questions, responses)
	if err != nil {
		if core.IsValidation(err) {
			writeError(w, http.StatusBadRequest, err.Error(), "")
			return
		}
		s.opts.Logger.Error("scoring failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", "")
		return
	}
	if req.User != "" {
		rec.UserID = req.User
	}

	// Persist is best-effort for the caller: a degraded store must not
	// hide a successfully computed result. persisted:false signals it.
	persisted := true
	id, err := s.provider.CreateScore(r.Context(), rec)
	if err != nil {
		s.opts.Logger.Warn("score persist degraded", "error", err)
		persisted = false
	} else {
		rec.ID = id
	}

	if persisted {
		s.backgroundQuizUpsert(r.Context(), rec)
	}

	writeJSON(w, http.StatusCreated, scoreResponse{
		ID:         rec.ID,
		TotalScore: rec.TotalScore,
		Message:    rec.Message,
		Persisted:  persisted,
		FullScore:  rec,
	})
}

type followUpRequest struct {
	ID        string `json:"id"`
	FollowUp  []int  `json:"followUp"`
	FullScore *struct {
		ID       string `json:"id"`
		AltID    string `json:"_id"`
		UserID   string `json:"userId"`
		FollowUp []int  `json:"followUp"`
	} `json:"fullScore"`
}

type followUpResponse struct {
	Message   string `json:"message"`
	ID        string `json:"id"`
	FollowUp  []int  `json:"followUp"`
	Persisted bool   `json:"persisted"`
}

func (s *Server) handleFollowUp(w http.ResponseWriter, r *http.Request) {
	var req followUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	// Accept both the flat shape and the fullScore envelope.
	id, followUp, userID := req.ID, req.FollowUp, ""
	if req.FullScore != nil {
		if id == "" {
			id = req.FullScore.ID
		}
		if id == "" {
			id = req.FullScore.AltID
		}
		if len(followUp) == 0 {
			followUp = req.FullScore.FollowUp
		}
		userID = req.FullScore.UserID
	}
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required", "")
		return
	}
	if err := scoring.ValidateFollowUp(followUp); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	persisted := true
	if err := s.provider.UpdateFollowUp(r.Context(), id, followUp); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeError(w, http.StatusNotFound, "score not found", "")
			return
		}
		s.opts.Logger.Warn("follow-up persist degraded", "error", err)
		persisted = false
	}

	if persisted {
		s.backgroundFollowUpUpsert(r.Context(), id, userID, followUp)
	}

	writeJSON(w, http.StatusOK, followUpResponse{
		Message:   "Follow-up answers recorded.",
		ID:        id,
		FollowUp:  followUp,
		Persisted: persisted,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// backgroundQuizUpsert records the check-in result in semantic memory.
// Scored under the user's own namespace so later conversations can surface
// it; fire-and-forget like the orchestrator's turn upserts.
func (s *Server) backgroundQuizUpsert(ctx context.Context, rec *core.ScoreRecord) {
	now := time.Now().UnixMilli()
	id := fmt.Sprintf("%s-quiz-%d", rec.UserID, now)
	text := fmt.Sprintf("Wellbeing check-in result: total score %d. %s", rec.TotalScore, rec.Message)
	meta := map[string]string{
		core.MetaSessionID: rec.UserID,
		core.MetaUserID:    rec.UserID,
		core.MetaType:      core.MemoryTypeQuiz,
		core.MetaTimestamp: strconv.FormatInt(now, 10),
	}
	orchestrator.BestEffort(ctx, s.opts.Logger, s.opts.BackgroundTimeout, "quiz memory upsert", func(ctx context.Context) error {
		return s.memory.UpsertTexts(ctx, []string{id}, []string{text}, []map[string]string{meta})
	})
}

func (s *Server) backgroundFollowUpUpsert(ctx context.Context, scoreID, userID string, followUp []int) {
	if userID == "" {
		userID = core.AnonymousUser
	}
	now := time.Now().UnixMilli()
	id := fmt.Sprintf("%s-follow-up-%d", scoreID, now)
	parts := make([]string, len(followUp))
	for i, v := range followUp {
		parts[i] = strconv.Itoa(v)
	}
	text := fmt.Sprintf("Follow-up answers to the wellbeing check-in: %s", strings.Join(parts, ", "))
	meta := map[string]string{
		core.MetaSessionID: userID,
		core.MetaUserID:    userID,
		core.MetaType:      core.MemoryTypeFollowUp,
		core.MetaTimestamp: strconv.FormatInt(now, 10),
	}
	orchestrator.BestEffort(ctx, s.opts.Logger, s.opts.BackgroundTimeout, "follow-up memory upsert", func(ctx context.Context) error {
		return s.memory.UpsertTexts(ctx, []string{id}, []string{text}, []map[string]string{meta})
	})
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, errorBody{Error: msg, Details: details})
}
