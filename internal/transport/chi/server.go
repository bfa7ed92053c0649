// Package chi exposes the engine over HTTP.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aetheris-os/aetheris/internal/domain"
	healthuc "github.com/aetheris-os/aetheris/internal/usecase/health"
	indexuc "github.com/aetheris-os/aetheris/internal/usecase/index"
	intentuc "github.com/aetheris-os/aetheris/internal/usecase/intent"
	planneruc "github.com/aetheris-os/aetheris/internal/usecase/planner"
	strategyuc "github.com/aetheris-os/aetheris/internal/usecase/strategy"
	thermaluc "github.com/aetheris-os/aetheris/internal/usecase/thermal"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the HTTP handlers over the engine services.
type Server struct {
	index         *indexuc.Service
	intent        *intentuc.Resolver
	planner       *planneruc.Service
	strategy      *strategyuc.Service
	thermal       *thermaluc.Tracker
	health        *healthuc.Checker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	index *indexuc.Service,
	intent *intentuc.Resolver,
	planner *planneruc.Service,
	strategy *strategyuc.Service,
	thermal *thermaluc.Tracker,
	health *healthuc.Checker,
	logger *zap.Logger,
) *Server {
	s := &Server{
		index:    index,
		intent:   intent,
		planner:  planner,
		strategy: strategy,
		thermal:  thermal,
		health:   health,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, "validation_failed"),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, "not_found"),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, "vector_dim_mismatch"),
		sentinelHandler(domain.ErrEmbeddingUnavailable, http.StatusBadGateway, "embedding_unavailable"),
		sentinelHandler(domain.ErrForecastUnavailable, http.StatusBadGateway, "forecast_unavailable"),
		sentinelHandler(domain.ErrStoreRead, http.StatusServiceUnavailable, "store_read_failed"),
		sentinelHandler(domain.ErrStoreWrite, http.StatusServiceUnavailable, "store_write_failed"),
	}
	return s
}

// Routes mounts every handler on a fresh sub-router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/systems", s.UpsertSystem)
		r.Get("/systems", s.ListSystems)
		r.Get("/systems/{id}", s.GetSystem)
		r.Delete("/systems/{id}", s.DeleteSystem)
		r.Post("/systems/search", s.SearchSystems)
		r.Post("/intent", s.ResolveIntent)
		r.Get("/plan/72h", s.Plan72h)
		r.Get("/thermal/state", s.ThermalState)
		r.Post("/thermal/readings", s.RecordReading)
		r.Get("/strategy", s.Strategy)
	})

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	return r
}

// UpsertSystem handles POST /api/v1/systems.
func (s *Server) UpsertSystem(w http.ResponseWriter, r *http.Request) {
	var req upsertSystemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	rec, err := req.toDomain()
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	stored, created, err := s.index.Upsert(r.Context(), rec)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		w.Header().Set("Location", "/api/v1/systems/"+stored.ID)
	}
	writeJSON(w, status, systemToResponse(stored))
}

// ListSystems handles GET /api/v1/systems.
func (s *Server) ListSystems(w http.ResponseWriter, r *http.Request) {
	records, err := s.index.List(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]systemResponse, len(records))
	for i, rec := range records {
		items[i] = systemToResponse(rec)
	}
	writeJSON(w, http.StatusOK, listSystemsResponse{Items: items, Total: len(items)})
}

// GetSystem handles GET /api/v1/systems/{id}.
func (s *Server) GetSystem(w http.ResponseWriter, r *http.Request) {
	rec, err := s.index.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, systemToResponse(rec))
}

// DeleteSystem handles DELETE /api/v1/systems/{id}.
func (s *Server) DeleteSystem(w http.ResponseWriter, r *http.Request) {
	if err := s.index.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SearchSystems handles POST /api/v1/systems/search.
func (s *Server) SearchSystems(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	matches, err := s.index.Search(r.Context(), req.Query, req.TopK)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]matchResponse, len(matches))
	for i, m := range matches {
		items[i] = matchToResponse(m)
	}
	writeJSON(w, http.StatusOK, searchResponse{Items: items, Total: len(items)})
}

// ResolveIntent handles POST /api/v1/intent.
func (s *Server) ResolveIntent(w http.ResponseWriter, r *http.Request) {
	var req intentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	directive, err := s.intent.Resolve(r.Context(), req.Utterance)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	out := intentResponse{Directive: directive}

	// Intent resolution never fails on routing problems; the strategy is
	// a best-effort companion to the directive.
	if strategy, serr := s.strategy.ForDirective(r.Context(), directive); serr == nil {
		out.Strategy = &strategy
	} else {
		s.logger.Warn("strategy for resolved intent failed", zap.Error(serr))
	}

	writeJSON(w, http.StatusOK, out)
}

// Plan72h handles GET /api/v1/plan/72h.
func (s *Server) Plan72h(w http.ResponseWriter, r *http.Request) {
	plan, err := s.planner.Plan72h(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// ThermalState handles GET /api/v1/thermal/state.
func (s *Server) ThermalState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.thermal.Current())
}

// RecordReading handles POST /api/v1/thermal/readings.
func (s *Server) RecordReading(w http.ResponseWriter, r *http.Request) {
	var req readingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	state, err := s.thermal.Record(req.HeatOutputWatts, req.AmbientTemperatureC)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// Strategy handles GET /api/v1/strategy. An optional goal query parameter
// routes through the directive path.
func (s *Server) Strategy(w http.ResponseWriter, r *http.Request) {
	var (
		strategy domain.Strategy
		err      error
	)

	if goalParam := r.URL.Query().Get("goal"); goalParam != "" {
		goal, perr := domain.ParseGoal(goalParam)
		if perr != nil {
			s.handleDomainError(w, perr)
			return
		}
		strategy, err = s.strategy.ForDirective(r.Context(), domain.Directive{Goal: goal, Confidence: 1})
	} else {
		strategy, err = s.strategy.Current(r.Context())
	}
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, strategy)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.StatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
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
		domain.ErrValidation,
		domain.ErrNotFound,
		domain.ErrVectorDimMismatch,
		domain.ErrEmbeddingUnavailable,
		domain.ErrForecastUnavailable,
		domain.ErrStoreRead,
		domain.ErrStoreWrite,
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
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
