package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"blueprint-room-pipeline/internal/domain/ports/repository"
	"blueprint-room-pipeline/internal/infra/logging"
	"blueprint-room-pipeline/internal/infra/notify"
)

const requestIDHeader = "X-Request-ID"

// Server exposes the job API: submit a drawing, watch progress over a
// websocket, read per-stage results, cancel.
type Server struct {
	jobs       repository.JobRegistry
	artifacts  repository.ArtifactStore
	blueprints repository.BlueprintStore
	subs       repository.SubscriptionDirectory
	hub        *notify.Hub
	auth       *AuthManager
	log        *zerolog.Logger
}

func NewServer(
	jobs repository.JobRegistry,
	artifacts repository.ArtifactStore,
	blueprints repository.BlueprintStore,
	subs repository.SubscriptionDirectory,
	hub *notify.Hub,
	auth *AuthManager,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		jobs:       jobs,
		artifacts:  artifacts,
		blueprints: blueprints,
		subs:       subs,
		hub:        hub,
		auth:       auth,
		log:        logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/jobs", s.submitJob)
		r.Group(func(r chi.Router) {
			r.Use(s.subscriberAuth)
			r.Get("/jobs/{jobID}", s.jobStatus)
			r.Post("/jobs/{jobID}/cancel", s.cancelJob)
			r.Get("/jobs/{jobID}/results/{stage}", s.stageResult)
			r.Get("/jobs/{jobID}/events", s.subscribeEvents)
		})
	})
	return r
}

// requestID tags each request with an ID for log correlation. An inbound
// X-Request-ID is honored so the fronting proxy's ID survives end to end;
// the ID is echoed on the response either way.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

// subscriberAuth checks that the request carries a token minted for the job
// it addresses.
func (s *Server) subscriberAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if claims.JobID != chi.URLParam(r, "jobID") {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
