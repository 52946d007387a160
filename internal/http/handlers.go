package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"vetchat/internal/core"
	"vetchat/internal/llm"
	"vetchat/internal/metrics"
	"vetchat/pkg"
	"vetchat/pkg/logging"
)

// DefaultMaxBodyBytes bounds chat request bodies, which may carry base64
// attachments.
const DefaultMaxBodyBytes = 25 << 20

// RunLister reads the summarization journal.
type RunLister interface {
	ListRuns(ctx context.Context, patientID string, limit int) ([]pkg.SummarizationRun, error)
}

// Server bundles together the dependencies required by HTTP handlers.
type Server struct {
	Chat           *core.ChatService
	Runs           RunLister
	Logger         *logging.Logger
	Metrics        *metrics.ChatMetrics
	MetricsHandler http.Handler
	AuthCookie     string
	MaxBodyBytes   int64
}

// NewServer constructs a Server. Runs and MetricsHandler are optional and
// can be set on the returned value.
func NewServer(chat *core.ChatService, logger *logging.Logger, m *metrics.ChatMetrics) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{
		Chat:         chat,
		Logger:       logger,
		Metrics:      m,
		AuthCookie:   "token",
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

// Routes returns the chi router for the service.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(BearerToken(s.AuthCookie))
	r.Use(RequestLogger(s.Logger))

	r.Get("/healthz", s.handleHealth)
	if s.MetricsHandler != nil {
		r.Handle("/metrics", s.MetricsHandler)
	}
	r.Post("/api/chat", s.handleChat)
	if s.Runs != nil {
		r.Get("/api/patients/{patientID}/summarization-runs", s.handleListRuns)
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleChat composes the context for one chat turn and streams the reply.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.MaxBodyBytes)

	var req pkg.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.Metrics.ObserveRequest("too_large")
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		s.Metrics.ObserveRequest("bad_request")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	turn, err := s.Chat.Prepare(ctx, req)
	if err != nil {
		if errors.Is(err, llm.ErrInvalidMessages) {
			s.Metrics.ObserveRequest("invalid_messages")
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.Metrics.ObserveRequest("error")
		s.Logger.Error("chat prepare failed", zap.String("request_id", RequestIDFromContext(ctx)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	stream := newUIStream(w)
	if _, err := s.Chat.Respond(ctx, turn, stream.Delta); err != nil {
		s.Logger.Warn("chat stream failed",
			zap.String("request_id", RequestIDFromContext(ctx)),
			zap.String("patient_id", turn.PatientID),
			zap.Error(err))
		s.Metrics.ObserveRequest("stream_error")
		if ctx.Err() == nil {
			_ = stream.Fail("An error occurred while generating the response.")
		}
		return
	}
	if err := stream.Finish(); err != nil {
		s.Logger.Debug("stream close failed", zap.Error(err))
	}
	s.Metrics.ObserveRequest("ok")
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patientID")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	runs, err := s.Runs.ListRuns(r.Context(), patientID, limit)
	if err != nil {
		s.Logger.Error("list summarization runs failed", zap.String("patient_id", patientID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if runs == nil {
		runs = []pkg.SummarizationRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
