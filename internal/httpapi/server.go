// Package httpapi serves the browse service over HTTP.
//
// Routes:
//
//	GET  /health          liveness and record count
//	GET  /messages        paged listing (start, limit, start_date, end_date,
//	                      audited, hide_audited, include_recurring)
//	GET  /messages/{id}   one record with its position in the listing
//	GET  /search          keyword search (query, limit)
//	POST /audit           save (audited=true) or clear a correction
//	POST /rescue-log      record a manual pickup (location, rescued_at,
//	                      items, notes, photo_urls)
//	GET  /rescue-log      manual pickups (start, limit, start_date, end_date)
//	GET  /metrics         Prometheus exposition
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hurttlocker/rescuelog/internal/metrics"
	"github.com/hurttlocker/rescuelog/internal/search"
	"github.com/hurttlocker/rescuelog/internal/store"
)

// Server holds the HTTP handlers.
type Server struct {
	engine  *search.Engine
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates a server. A nil logger discards logs.
func New(engine *search.Engine, logger *zap.Logger, m *metrics.Metrics) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewMetrics()
	}
	return &Server{engine: engine, logger: logger, metrics: m}
}

// Router wires the routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	s.RegisterRoutes(r)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// RegisterRoutes registers the API routes on r.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Get("/messages", s.handleList)
	r.Get("/messages/{id}", s.handleGet)
	r.Get("/search", s.handleSearch)
	r.Post("/audit", s.handleAudit)
	r.Post("/rescue-log", s.handleCreateRescueLog)
	r.Get("/rescue-log", s.handleListRescueLogs)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	page, err := s.engine.List(r.Context(), search.ListOptions{})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "total": page.Total})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	page, err := s.engine.List(r.Context(), opts)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, badRequest("message id must be an integer"))
		return
	}
	opts, err := listOptions(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	page, err := s.engine.Get(r.Context(), id, opts)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), search.DefaultSearchLimit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	resp, err := s.engine.Search(r.Context(), q.Get("query"), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// auditResponse acknowledges an audit change.
type auditResponse struct {
	Status  string `json:"status"`
	ID      int    `json:"id"`
	Audited bool   `json:"audited"`
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	var rec search.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		s.respondError(w, r, badRequest("invalid payload: expected JSON object"))
		return
	}
	if rec.ID <= 0 {
		s.respondError(w, r, badRequest("invalid payload: missing id"))
		return
	}

	if !rec.Audited {
		if err := s.engine.DeleteAudit(r.Context(), rec.ID); err != nil {
			s.respondError(w, r, err)
			return
		}
		s.logger.Info("audit cleared", zap.Int("id", rec.ID))
		respondJSON(w, http.StatusOK, auditResponse{Status: "ok", ID: rec.ID, Audited: false})
		return
	}

	saved, err := s.engine.SaveAudit(r.Context(), rec)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.logger.Info("audit saved", zap.Int("id", saved.ID))
	respondJSON(w, http.StatusOK, auditResponse{Status: "ok", ID: saved.ID, Audited: true})
}

// rescueLogResponse acknowledges a new rescue log.
type rescueLogResponse struct {
	Status            string   `json:"status"`
	ID                int      `json:"id"`
	TotalEstimatedLbs *float64 `json:"total_estimated_lbs"`
}

func (s *Server) handleCreateRescueLog(w http.ResponseWriter, r *http.Request) {
	var l search.RescueLog
	if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
		s.respondError(w, r, badRequest("invalid payload: expected JSON object with an items array"))
		return
	}
	saved, err := s.engine.CreateRescueLog(r.Context(), l)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.logger.Info("rescue log created",
		zap.Int("id", saved.ID),
		zap.String("location", saved.Location),
		zap.Int("items", len(saved.Items)))
	respondJSON(w, http.StatusOK, rescueLogResponse{Status: "ok", ID: saved.ID, TotalEstimatedLbs: saved.TotalEstimatedLbs})
}

func (s *Server) handleListRescueLogs(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	logs, err := s.engine.RescueLogs(r.Context(), opts)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"rescue_logs": logs})
}

// listOptions reads the listing query parameters.
func listOptions(r *http.Request) (search.ListOptions, error) {
	q := r.URL.Query()
	var opts search.ListOptions
	var err error
	if opts.Start, err = intParam(q.Get("start"), 0); err != nil {
		return opts, err
	}
	if opts.Limit, err = intParam(q.Get("limit"), search.DefaultListLimit); err != nil {
		return opts, err
	}
	opts.StartDate = q.Get("start_date")
	opts.EndDate = q.Get("end_date")
	if opts.Audited, err = boolParam(q.Get("audited")); err != nil {
		return opts, err
	}
	if opts.HideAudited, err = boolParam(q.Get("hide_audited")); err != nil {
		return opts, err
	}
	if opts.IncludeRecurring, err = boolParam(q.Get("include_recurring")); err != nil {
		return opts, err
	}
	return opts, nil
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("expected an integer, got " + strconv.Quote(raw))
	}
	return n, nil
}

func boolParam(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, badRequest("expected a boolean, got " + strconv.Quote(raw))
	}
	return b, nil
}

// errBadRequest marks malformed request parameters.
var errBadRequest = errors.New("bad request")

type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }
func (e *requestError) Unwrap() error { return errBadRequest }

func badRequest(msg string) error { return &requestError{msg: msg} }

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, search.ErrInvalidQuery), errors.Is(err, search.ErrInvalidAudit),
		errors.Is(err, search.ErrInvalidRescueLog):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, search.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
	respondJSON(w, status, map[string]string{"detail": err.Error()})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// observe logs each request and records it in the HTTP metrics, labelled
// by chi route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.metrics.ObserveRequest(route, strconv.Itoa(status), elapsed)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// cors allows any origin, as the browse UI is served separately.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
