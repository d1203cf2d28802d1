// Package server exposes the drafting pipeline over HTTP with Server-Sent
// Events progress streams.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/tsgdraft/internal/agentapi"
	"github.com/dusk-indust/tsgdraft/internal/orchestrator"
	"github.com/dusk-indust/tsgdraft/internal/tsg"
)

// Frame types written on a progress stream besides progress events.
const (
	FrameRunStarted = "run_started"
	FrameKeepalive  = "keepalive"
	FrameResult     = "result"
	FrameError      = "error"
	FrameCancelled  = "cancelled"
)

// Server serves the generate, answer, cancel, session, and validate
// endpoints.
type Server struct {
	orch      orchestrator.Orchestrator
	sessions  *SessionStore
	keepalive time.Duration
	buffer    int
	log       *zap.Logger

	mu   sync.Mutex
	runs map[string]*orchestrator.Run
}

// Option configures a Server.
type Option func(*Server)

// WithKeepalive sets the idle interval between keepalive frames.
func WithKeepalive(d time.Duration) Option {
	return func(s *Server) { s.keepalive = d }
}

// WithProgressBuffer sets each run's progress channel capacity.
func WithProgressBuffer(n int) Option {
	return func(s *Server) { s.buffer = n }
}

// WithSessionStore shares a session store.
func WithSessionStore(st *SessionStore) Option {
	return func(s *Server) { s.sessions = st }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New creates a Server that runs pipelines on orch.
func New(orch orchestrator.Orchestrator, opts ...Option) *Server {
	s := &Server{
		orch:      orch,
		sessions:  NewSessionStore(),
		keepalive: orchestrator.DefaultKeepalive,
		buffer:    orchestrator.DefaultProgressBuffer,
		log:       zap.NewNop(),
		runs:      make(map[string]*orchestrator.Run),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Sessions returns the server's session store.
func (s *Server) Sessions() *SessionStore { return s.sessions }

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/generate/stream", s.handleGenerate)
	mux.HandleFunc("POST /api/answer/stream", s.handleAnswer)
	mux.HandleFunc("POST /api/cancel/{run_id}", s.handleCancel)
	mux.HandleFunc("DELETE /api/session/{thread_id}", s.handleDeleteSession)
	mux.HandleFunc("POST /api/validate", s.handleValidate)
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.cancelAll()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// ---------------------------------------------------------------------------
// Request and response bodies
// ---------------------------------------------------------------------------

type generateRequest struct {
	Notes string `json:"notes"`
}

type answerRequest struct {
	ThreadID string `json:"thread_id"`
	Answers  string `json:"answers"`
}

type validateRequest struct {
	Text string `json:"text"`
}

type validateResponse struct {
	tsg.Validation
	Placeholders []string `json:"placeholders"`
}

type startedFrame struct {
	Type  string `json:"type"`
	RunID string `json:"run_id"`
}

type keepaliveFrame struct {
	Type string `json:"type"`
}

type resultFrame struct {
	Type            string               `json:"type"`
	ThreadID        string               `json:"thread_id"`
	TSG             string               `json:"tsg"`
	Questions       string               `json:"questions"`
	Research        string               `json:"research"`
	Review          *tsg.Review          `json:"review,omitempty"`
	StagesCompleted []orchestrator.Stage `json:"stages_completed"`
	RetryCount      int                  `json:"retry_count"`
	Warnings        []string             `json:"warnings,omitempty"`
}

type messageFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorBody struct {
	Error string `json:"error"`
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body generateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON: " + err.Error()})
		return
	}
	if strings.TrimSpace(body.Notes) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "notes are required"})
		return
	}
	s.stream(w, r, orchestrator.RunRequest{Notes: body.Notes})
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var body answerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON: " + err.Error()})
		return
	}
	if body.ThreadID == "" || strings.TrimSpace(body.Answers) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "thread_id and answers are required"})
		return
	}
	sess, err := s.sessions.Get(body.ThreadID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}
	s.stream(w, r, orchestrator.RunRequest{
		Notes:             sess.Notes,
		ContinuationToken: sess.ThreadID,
		PriorTSG:          sess.TSG,
		UserAnswers:       body.Answers,
		PriorResearch:     sess.Research,
		PriorReview:       sess.Review,
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("run_id")
	s.mu.Lock()
	run, ok := s.runs[id]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "run not found"})
		return
	}
	run.Cancel()
	s.log.Info("cancel requested", zap.String("run_id", id))
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("thread_id")
	if err := s.sessions.Delete(id); err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var body validateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON: " + err.Error()})
		return
	}
	v := tsg.Validate(body.Text)
	placeholders := tsg.Placeholders(v.TSGContent)
	if placeholders == nil {
		placeholders = []string{}
	}
	if v.Issues == nil {
		v.Issues = []string{}
	}
	writeJSON(w, http.StatusOK, validateResponse{Validation: v, Placeholders: placeholders})
}

// stream runs req and relays its progress as SSE frames, ending with a
// result, error, or cancelled frame.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, req orchestrator.RunRequest) {
	sse := agentapi.NewSSEWriter(w)
	sse.Init()

	run := orchestrator.Start(r.Context(), s.orch, req, s.buffer)
	log := s.log.With(zap.String("run_id", run.ID))
	s.track(run)
	defer s.untrack(run)

	if err := sse.WriteEvent(startedFrame{Type: FrameRunStarted, RunID: run.ID}); err != nil {
		run.Abort()
		run.Detach()
		run.Wait()
		log.Warn("client gone before run started", zap.Error(err))
		return
	}

	result, err := run.Stream(r.Context(), s.keepalive, func(f orchestrator.Frame) error {
		if f.Keepalive {
			return sse.WriteEvent(keepaliveFrame{Type: FrameKeepalive})
		}
		return sse.WriteEvent(f.Event)
	})
	if err != nil {
		log.Warn("progress stream ended early", zap.Error(err))
		return
	}

	switch {
	case result.Cancelled:
		err = sse.WriteEvent(messageFrame{Type: FrameCancelled, Message: "Generation cancelled"})
	case result.Success:
		if result.ContinuationToken != "" {
			if perr := s.sessions.Put(Session{
				ThreadID:  result.ContinuationToken,
				Notes:     req.Notes,
				TSG:       result.TSGContent,
				Questions: result.QuestionsContent,
				Research:  result.ResearchReport,
				Review:    result.Review,
			}); perr != nil {
				log.Warn("session not stored", zap.Error(perr))
			}
		}
		err = sse.WriteEvent(resultFrame{
			Type:            FrameResult,
			ThreadID:        result.ContinuationToken,
			TSG:             result.TSGContent,
			Questions:       result.Questions(),
			Research:        result.ResearchReport,
			Review:          result.Review,
			StagesCompleted: result.StagesCompleted,
			RetryCount:      result.RetryCount,
			Warnings:        result.Warnings(),
		})
	default:
		msg := result.Error
		if msg == "" {
			msg = "generation failed"
		}
		err = sse.WriteEvent(messageFrame{Type: FrameError, Message: msg})
	}
	if err != nil {
		log.Warn("write final frame", zap.Error(err))
	}
}

func (s *Server) track(run *orchestrator.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
}

func (s *Server) untrack(run *orchestrator.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, run.ID)
}

func (s *Server) cancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, run := range s.runs {
		run.Cancel()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
