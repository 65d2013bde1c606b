package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/edvin/batchctl/internal/api/handler"
	mw "github.com/edvin/batchctl/internal/api/middleware"
	"github.com/edvin/batchctl/internal/config"
	"github.com/edvin/batchctl/internal/core"
	"github.com/edvin/batchctl/internal/scheduler"
	"github.com/edvin/batchctl/internal/worker"
)

type Server struct {
	router    chi.Router
	logger    zerolog.Logger
	services  *core.Services
	pool      *pgxpool.Pool
	worker    worker.Client
	evaluator *scheduler.Evaluator
	cfg       *config.Config
}

func NewServer(logger zerolog.Logger, pool *pgxpool.Pool, wc worker.Client, services *core.Services, evaluator *scheduler.Evaluator, cfg *config.Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger,
		services:  services,
		pool:      pool,
		worker:    wc,
		evaluator: evaluator,
		cfg:       cfg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint
	s.router.Handle("/metrics", promhttp.Handler())

	// Health check endpoints
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	// Worker-facing surface: lifecycle event ingest.
	event := handler.NewEvent(s.services.Execution)
	s.router.Route("/internal/v1", func(r chi.Router) {
		r.Use(mw.WorkerAuth(s.cfg.WorkerToken))
		r.Post("/events", event.Ingest)
	})

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.Auth(s.pool))

		// Jobs
		job := handler.NewJob(s.services.Job)
		r.Get("/jobs", job.List)
		r.Post("/jobs", job.Create)
		r.Get("/job-types", job.JobTypes)
		r.Get("/jobs/by-name/{name}", job.GetByName)
		r.Get("/jobs/{id}", job.Get)
		r.Put("/jobs/{id}", job.Update)
		r.Delete("/jobs/{id}", job.Delete)
		r.Post("/jobs/{id}/hold", job.Hold())
		r.Post("/jobs/{id}/ice", job.Ice())
		r.Post("/jobs/{id}/resume", job.Resume())
		r.Post("/jobs/{id}/enable", job.Enable())
		r.Post("/jobs/{id}/disable", job.Disable())

		// Dependencies
		dependency := handler.NewDependency(s.services.Dependency)
		r.Get("/jobs/{id}/dependencies", dependency.ListDependencies)
		r.Post("/jobs/{id}/dependencies", dependency.Add)
		r.Delete("/jobs/{id}/dependencies/{dependsOnID}", dependency.Remove)
		r.Get("/jobs/{id}/dependents", dependency.ListDependents)
		r.Get("/jobs/{id}/dependency-graph", dependency.Subgraph)
		r.Post("/jobs/execution-order", dependency.ExecutionOrder)

		// Calendars
		calendar := handler.NewCalendar(s.services.Calendar)
		r.Get("/calendars", calendar.List)
		r.Post("/calendars", calendar.Create)
		r.Get("/calendars/{id}", calendar.Get)
		r.Put("/calendars/{id}", calendar.Update)
		r.Delete("/calendars/{id}", calendar.Delete)
		r.Get("/calendars/{id}/dates", calendar.Dates)
		r.Post("/calendars/{id}/dates", calendar.AddDates)
		r.Delete("/calendars/{id}/dates/{date}", calendar.RemoveDate)
		r.Get("/jobs/{id}/calendars", calendar.AssignmentsForJob)
		r.Post("/jobs/{id}/calendars", calendar.Assign)
		r.Delete("/jobs/{id}/calendars/{calendarID}", calendar.Unassign)

		// Executions
		execution := handler.NewExecution(s.services.Execution)
		r.Post("/jobs/{id}/trigger", execution.Trigger)
		r.Get("/jobs/{id}/executions", execution.ListByJob)
		r.Get("/executions/running", execution.ListRunning)
		r.Get("/executions/recent", execution.ListRecent)
		r.Get("/executions/{triggerID}", execution.Get)
		r.Post("/executions/{triggerID}/stop", execution.Stop)

		// Audit logs
		audit := handler.NewAudit(s.services.Audit)
		r.Get("/audit-logs", audit.List)

		// Scheduler admin
		admin := handler.NewAdmin(s.evaluator, s.worker)
		r.Get("/admin/scheduler", admin.SchedulerStatus)
		r.Post("/admin/scheduler/pause", admin.PauseScheduler)
		r.Post("/admin/scheduler/resume", admin.ResumeScheduler)
		r.Get("/admin/worker", admin.WorkerHealth)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := s.pool.Ping(ctx); err != nil {
		checks["db"] = err.Error()
		healthy = false
	} else {
		checks["db"] = "ok"
	}

	if err := s.worker.Health(ctx); err != nil {
		checks["worker"] = err.Error()
	} else {
		checks["worker"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
