// Package chi exposes the HTTP API: ingestion cycles, question answering,
// filing inspection, replay, and operational status.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/finsight-ai/finsight/internal/domain"
	"github.com/finsight-ai/finsight/internal/repository/state"
	healthuc "github.com/finsight-ai/finsight/internal/usecase/health"
	"github.com/finsight-ai/finsight/internal/usecase/ingest"
)

// Error response codes. Stable, machine-readable.
const (
	codeBadRequest       = "bad_request"
	codeUnauthorized     = "unauthorized"
	codeValidationFailed = "validation_failed"
	codeFilingNotFound   = "filing_not_found"
	codeReplayDenied     = "replay_denied"
	codeRateLimited      = "rate_limited"
	codeProviderError    = "provider_error"
	codeInternalError    = "internal_error"
)

// Orchestrator is the pipeline surface the API calls into.
type Orchestrator interface {
	RunCycle(ctx context.Context, tickers []string) (ingest.Summary, error)
	Replay(ctx context.Context, sourceKey string) (domain.Filing, error)
}

// Answerer produces grounded answers.
type Answerer interface {
	Answer(ctx context.Context, question, ticker string) (domain.Answer, error)
}

// FilingReader is the state repository surface the API reads from.
type FilingReader interface {
	Get(ctx context.Context, sourceKey string) (domain.Filing, error)
	GetAnalysis(ctx context.Context, sourceKey string) (domain.Analysis, error)
	ListByStatus(ctx context.Context, status domain.Status) ([]domain.Filing, error)
	CountByStatus(ctx context.Context) (map[domain.Status]int, error)
	RecentEvents(ctx context.Context, count int) ([]state.Event, error)
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server implements the HTTP API handlers.
type Server struct {
	pipeline      Orchestrator
	answers       Answerer
	filings       FilingReader
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	pipeline Orchestrator,
	answers Answerer,
	filings FilingReader,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		pipeline: pipeline,
		answers:  answers,
		filings:  filings,
		health:   health,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrFilingNotFound, http.StatusNotFound, codeFilingNotFound),
		sentinelHandler(domain.ErrReplayDenied, http.StatusConflict, codeReplayDenied),
		sentinelHandler(domain.ErrInvalidTransition, http.StatusConflict, codeReplayDenied),
		sentinelHandler(domain.ErrInvalidPayload, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited),
		sentinelHandler(domain.ErrProviderError, http.StatusBadGateway, codeProviderError),
		sentinelHandler(domain.ErrModelError, http.StatusBadGateway, codeProviderError),
	}
	return s
}

// Register mounts the API routes on a router.
func (s *Server) Register(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/cycles", s.runCycle)
		r.Post("/ask", s.ask)
		r.Get("/filings", s.listFilings)
		r.Get("/filings/{sourceKey}", s.getFiling)
		r.Post("/filings/{sourceKey}/replay", s.replayFiling)
		r.Get("/ops/status", s.opsStatus)
	})
	r.Get("/healthz", s.healthCheck)
	r.Get("/metrics", s.metricsHandler)
}

type cycleRequest struct {
	Tickers []string `json:"tickers,omitempty"`
}

// runCycle handles POST /v1/cycles. An empty body or ticker list runs the
// configured watch list.
func (s *Server) runCycle(w http.ResponseWriter, r *http.Request) {
	var req cycleRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}

	summary, err := s.pipeline.RunCycle(r.Context(), req.Tickers)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

type askRequest struct {
	Question string `json:"question"`
	Ticker   string `json:"ticker,omitempty"`
}

// ask handles POST /v1/ask.
func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "question is required")
		return
	}

	answer, err := s.answers.Answer(r.Context(), req.Question, req.Ticker)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

// listFilings handles GET /v1/filings?status=DEAD_LETTER.
func (s *Server) listFilings(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "status query parameter is required")
		return
	}
	status := domain.Status(raw)
	if !status.IsValid() {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "unknown status "+strconv.Quote(raw))
		return
	}

	filings, err := s.filings.ListByStatus(r.Context(), status)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]filingResponse, len(filings))
	for i := range filings {
		items[i] = filingToResponse(&filings[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

// getFiling handles GET /v1/filings/{sourceKey}. The saved analysis is
// included once the filing has passed extraction.
func (s *Server) getFiling(w http.ResponseWriter, r *http.Request) {
	sourceKey := chi.URLParam(r, "sourceKey")

	filing, err := s.filings.Get(r.Context(), sourceKey)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := struct {
		filingResponse
		Analysis *domain.Analysis `json:"analysis,omitempty"`
	}{filingResponse: filingToResponse(&filing)}

	if analysis, err := s.filings.GetAnalysis(r.Context(), sourceKey); err == nil {
		resp.Analysis = &analysis
	}

	writeJSON(w, http.StatusOK, resp)
}

// replayFiling handles POST /v1/filings/{sourceKey}/replay.
func (s *Server) replayFiling(w http.ResponseWriter, r *http.Request) {
	sourceKey := chi.URLParam(r, "sourceKey")

	filing, err := s.pipeline.Replay(r.Context(), sourceKey)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, filingToResponse(&filing))
}

// opsStatus handles GET /v1/ops/status.
func (s *Server) opsStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.filings.CountByStatus(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	events, err := s.filings.RecentEvents(r.Context(), 50)
	if err != nil {
		s.logger.Warn("reading recent events failed", zap.Error(err))
		events = nil
	}

	eventItems := make([]map[string]any, len(events))
	for i, e := range events {
		eventItems[i] = map[string]any{
			"id":     e.ID,
			"topic":  e.Topic,
			"source": e.Source,
			"detail": e.Detail,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status_counts": counts,
		"recent_events": eventItems,
	})
}

// healthCheck handles GET /health.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// metricsHandler handles GET /metrics.
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

type filingResponse struct {
	SourceKey  string `json:"source_key"`
	Ticker     string `json:"ticker"`
	SourceURL  string `json:"source_url,omitempty"`
	FilingType string `json:"filing_type,omitempty"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	LastError  string `json:"last_error,omitempty"`
	RetryCount int    `json:"retry_count,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

func filingToResponse(f *domain.Filing) filingResponse {
	return filingResponse{
		SourceKey:  f.SourceKey,
		Ticker:     f.Ticker,
		SourceURL:  f.SourceURL,
		FilingType: f.FilingType,
		Status:     string(f.Status),
		Reason:     f.Reason,
		LastError:  f.LastError,
		RetryCount: f.RetryCount,
		CreatedAt:  f.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  f.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrFilingNotFound,
		domain.ErrReplayDenied,
		domain.ErrInvalidTransition,
		domain.ErrInvalidPayload,
		domain.ErrRateLimited,
		domain.ErrProviderError,
		domain.ErrModelError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
