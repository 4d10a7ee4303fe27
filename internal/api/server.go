// Package api exposes the HTTP interface for the regulation refresh service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/regwatch/munireg/internal/metrics"
	"github.com/regwatch/munireg/internal/munireg"
	"github.com/regwatch/munireg/internal/scheduler"
)

// Runner starts one refresh job. Satisfied by the orchestrator.
type Runner interface {
	Run(ctx context.Context, kind munireg.RunKind, actorID, target string) (munireg.Job, error)
}

// Config controls server behavior.
type Config struct {
	AuthEnabled bool
	APIKey      string
	Timeout     time.Duration
}

// Server wires HTTP handlers to the orchestrator and stores.
type Server struct {
	router  chi.Router
	records munireg.RecordStore
	jobs    munireg.JobStore
	runLog  munireg.RunLogStore
	runner  Runner
	trigger *scheduler.Trigger
	logger  *zap.Logger
	cfg     Config
}

// NewServer constructs a Server with middleware and routes. The schedule
// trigger is optional; without it /v1/schedule reports disabled.
func NewServer(
	records munireg.RecordStore,
	jobs munireg.JobStore,
	runLog munireg.RunLogStore,
	runner Runner,
	trigger *scheduler.Trigger,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		// Targeted synchronous refreshes wait on a generator call.
		cfg.Timeout = 5 * time.Minute
	}
	metrics.Init()
	s := &Server{
		records: records,
		jobs:    jobs,
		runLog:  runLog,
		runner:  runner,
		trigger: trigger,
		logger:  logger,
		cfg:     cfg,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(cfg.Timeout))
	if cfg.AuthEnabled {
		r.Use(apiKeyMiddleware(cfg.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/refresh", s.refresh)
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.listJobs)
			r.Get("/active", s.activeJob)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getJob)
				r.Get("/log", s.getJobLog)
			})
		})
		r.Route("/countries", func(r chi.Router) {
			r.Get("/", s.listCountries)
			r.Get("/{code}", s.getCountry)
		})
		r.Get("/schedule", s.schedule)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The job store is the hard dependency; listing it exercises the pool.
	if _, err := s.jobs.List(r.Context(), nil, 1, 0); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "job store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type refreshRequest struct {
	Country string `json:"country"`
	ActorID string `json:"actor_id"`
}

// refresh starts a manual run. Targeted runs execute synchronously and
// return the finalized job; full runs execute in the background and return
// 202 immediately.
func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ActorID == "" {
		req.ActorID = "api"
	}

	if req.Country != "" {
		job, err := s.runner.Run(r.Context(), munireg.RunKindManual, req.ActorID, req.Country)
		switch {
		case errors.Is(err, munireg.ErrRunActive):
			s.writeError(w, http.StatusConflict, "a refresh job is already running")
		case errors.Is(err, munireg.ErrNotFound):
			s.writeError(w, http.StatusNotFound, "country not found")
		case err != nil && job.ID == "":
			s.writeError(w, http.StatusInternalServerError, err.Error())
		default:
			// A finalized job, completed or failed, is a valid outcome.
			s.writeJSON(w, http.StatusOK, map[string]any{"job": job})
		}
		return
	}

	if _, err := s.jobs.ActiveRun(r.Context()); err == nil {
		s.writeError(w, http.StatusConflict, "a refresh job is already running")
		return
	}
	go func() {
		// Detached from the request lifetime; a full run outlives it by hours.
		if _, err := s.runner.Run(context.Background(), munireg.RunKindManual, req.ActorID, ""); err != nil {
			s.logger.Warn("background refresh run ended with error", zap.Error(err))
		}
	}()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	var status *munireg.JobStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := munireg.JobStatus(raw)
		switch st {
		case munireg.JobStatusRunning, munireg.JobStatusCompleted, munireg.JobStatusFailed:
			status = &st
		default:
			s.writeError(w, http.StatusBadRequest, "unknown status filter")
			return
		}
	}
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	jobs, err := s.jobs.List(r.Context(), status, limit, offset)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []munireg.Job{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) activeJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.ActiveRun(r.Context())
	if errors.Is(err, munireg.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "no active job")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load active job")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(r.Context(), chi.URLParam(r, "job_id"))
	if errors.Is(err, munireg.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) getJobLog(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if _, err := s.jobs.Get(r.Context(), jobID); err != nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	entries, err := s.runLog.ListByJob(r.Context(), jobID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load run log")
		return
	}
	if entries == nil {
		entries = []munireg.RunLogEntry{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) listCountries(w http.ResponseWriter, r *http.Request) {
	countries, err := s.records.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list countries")
		return
	}
	if countries == nil {
		countries = []munireg.Country{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"countries": countries})
}

func (s *Server) getCountry(w http.ResponseWriter, r *http.Request) {
	rec, err := s.records.FindByCode(r.Context(), chi.URLParam(r, "code"))
	if errors.Is(err, munireg.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "country not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load country")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"country": rec})
}

func (s *Server) schedule(w http.ResponseWriter, _ *http.Request) {
	if s.trigger == nil {
		s.writeJSON(w, http.StatusOK, scheduler.Status{Enabled: false})
		return
	}
	s.writeJSON(w, http.StatusOK, s.trigger.Status())
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON response failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
