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
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/apmec/internal/api/handler"
	mw "github.com/edvin/apmec/internal/api/middleware"
	"github.com/edvin/apmec/internal/core"
)

type Server struct {
	router         chi.Router
	logger         zerolog.Logger
	services       *core.Services
	corePool       *pgxpool.Pool
	temporalClient temporalclient.Client
}

func NewServer(logger zerolog.Logger, services *core.Services, corePool *pgxpool.Pool, temporalClient temporalclient.Client) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		logger:         logger,
		services:       services,
		corePool:       corePool,
		temporalClient: temporalClient,
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

	s.router.Route("/api/v1", func(r chi.Router) {
		// Descriptor catalogs
		mead := handler.NewMEAD(s.services)
		r.Get("/meads", mead.List)
		r.Post("/meads", mead.Create)
		r.Get("/meads/{meadID}", mead.Get)
		r.Delete("/meads/{meadID}", mead.Delete)

		mesd := handler.NewMESD(s.services)
		r.Get("/mesds", mesd.List)
		r.Post("/mesds", mesd.Create)
		r.Get("/mesds/{mesdID}", mesd.Get)
		r.Delete("/mesds/{mesdID}", mesd.Delete)

		mecad := handler.NewMECAD(s.services)
		r.Get("/mecads", mecad.List)
		r.Post("/mecads", mecad.Create)
		r.Get("/mecads/{mecadID}", mecad.Get)
		r.Delete("/mecads/{mecadID}", mecad.Delete)

		// Application instances
		mea := handler.NewMEA(s.services)
		r.Get("/meas", mea.List)
		r.Post("/meas", mea.Create)
		r.Get("/meas/{meaID}", mea.Get)
		r.Put("/meas/{meaID}", mea.Update)
		r.Delete("/meas/{meaID}", mea.Delete)
		r.Post("/meas/{meaID}/scale", mea.Scale)
		r.Get("/meas/{meaID}/resources", mea.Resources)
		// Alarm callback; the trailing key was minted when the alarm
		// policy was bound and keeps the URL unguessable.
		r.Post("/meas/{meaID}/triggers/{policy}/{action}/{key}", mea.Trigger)

		// Composed services
		mes := handler.NewMES(s.services)
		r.Get("/mess", mes.List)
		r.Post("/mess", mes.Create)
		r.Get("/mess/{mesID}", mes.Get)
		r.Delete("/mess/{mesID}", mes.Delete)

		// Application chains
		meca := handler.NewMECA(s.services)
		r.Get("/mecas", meca.List)
		r.Post("/mecas", meca.Create)
		r.Get("/mecas/{mecaID}", meca.Get)
		r.Delete("/mecas/{mecaID}", meca.Delete)

		// Infrastructure
		vim := handler.NewVIM(s.services)
		r.Get("/vims", vim.List)
		r.Post("/vims", vim.Register)
		r.Get("/vims/{vimID}", vim.Get)
		r.Put("/vims/{vimID}", vim.Update)
		r.Delete("/vims/{vimID}", vim.Delete)

		// Lifecycle events
		event := handler.NewEvent(s.services)
		r.Get("/events", event.List)
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

	if err := s.corePool.Ping(ctx); err != nil {
		checks["core_db"] = err.Error()
		healthy = false
	} else {
		checks["core_db"] = "ok"
	}

	if _, err := s.temporalClient.CheckHealth(ctx, &temporalclient.CheckHealthRequest{}); err != nil {
		checks["temporal"] = err.Error()
		healthy = false
	} else {
		checks["temporal"] = "ok"
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
