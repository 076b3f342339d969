package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"blueprint-room-pipeline/internal/domain"
	"blueprint-room-pipeline/internal/domain/model"
	"blueprint-room-pipeline/internal/domain/ports/repository"
	"blueprint-room-pipeline/internal/infra/logging"
)

// Drawings above this size are rejected before touching storage.
const maxBlueprintBytes = 20 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Tokens gate subscriptions; origin checks belong to the fronting proxy.
	CheckOrigin: func(*http.Request) bool { return true },
}

type submitResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
	Token  string `json:"token"`
}

// submitJob accepts the raw drawing bytes (PNG, JPEG, GIF or PDF), stores
// them, and enqueues a pending job for the pipeline workers.
func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.With(ctx, s.log)

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBlueprintBytes+1))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	if len(data) == 0 {
		http.Error(w, "Empty blueprint", http.StatusBadRequest)
		return
	}
	if len(data) > maxBlueprintBytes {
		http.Error(w, "Blueprint too large", http.StatusRequestEntityTooLarge)
		return
	}

	jobID := uuid.NewString()
	key := jobID

	if err := s.blueprints.Put(ctx, key, data); err != nil {
		log.Error().Err(err).Msg("blueprint write failed")
		http.Error(w, "Failed to store blueprint", http.StatusInternalServerError)
		return
	}

	job := &model.Job{
		ID:           jobID,
		Status:       model.JobStatusPending,
		BlueprintKey: key,
	}
	if err := s.jobs.Create(ctx, repository.NoTX, job); err != nil {
		log.Error().Err(err).Msg("job create failed")
		http.Error(w, "Failed to create job", http.StatusInternalServerError)
		return
	}

	token, err := s.auth.Mint(jobID)
	if err != nil {
		log.Error().Err(err).Msg("token mint failed")
		http.Error(w, "Failed to create token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(submitResponse{
		JobID:  jobID,
		Status: string(job.Status),
		Token:  token,
	})
}

func (s *Server) jobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := s.jobs.GetStatus(r.Context(), repository.NoTX, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to load job", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		JobID     string `json:"job_id"`
		Status    string `json:"status"`
		Stage     string `json:"stage,omitempty"`
		Attempt   int    `json:"attempt,omitempty"`
		LastError string `json:"last_error,omitempty"`
	}{
		JobID:     job.ID,
		Status:    string(job.Status),
		Stage:     string(job.Stage),
		Attempt:   job.Attempt,
		LastError: job.LastError,
	})
}

// cancelJob sets the cooperative cancellation flag. The pipeline honors it at
// the next stage boundary; a stage already in flight runs to completion.
func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	err := s.jobs.RequestCancel(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobFinished) {
			http.Error(w, "Job already finished", http.StatusConflict)
			return
		}
		http.Error(w, "Failed to cancel job", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"job_id": jobID, "status": "cancel_requested"})
}

// stageResult serves the stored artifact for one stage. Earlier stage results
// stay available even when a later stage failed.
func (s *Server) stageResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	stage := model.Stage(chi.URLParam(r, "stage"))

	valid := false
	for _, st := range model.Stages() {
		if st == stage {
			valid = true
			break
		}
	}
	if !valid {
		http.Error(w, "Unknown stage", http.StatusBadRequest)
		return
	}

	artifact, err := s.artifacts.Get(r.Context(), jobID, stage)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "No result for this stage", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to load result", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(artifact)
}

// subscribeEvents upgrades to a websocket and registers the connection as a
// delivery channel for the job's progress events.
func (s *Server) subscribeEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	log := logging.With(r.Context(), s.log)

	if _, err := s.jobs.GetStatus(r.Context(), repository.NoTX, jobID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to load job", http.StatusInternalServerError)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	channelID := uuid.NewString()
	s.hub.Register(channelID, ws)
	if err := s.subs.Subscribe(r.Context(), jobID, channelID); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("subscribe failed")
		s.hub.Unregister(channelID)
		return
	}
	log.Info().Str("job_id", jobID).Str("channel", channelID).Msg("subscriber connected")

	// Read loop exists only to observe the close; clients do not send data.
	// The request context dies when this handler returns, so cleanup uses a
	// fresh one.
	go func() {
		defer func() {
			_ = s.subs.Unsubscribe(context.Background(), jobID, channelID)
			s.hub.Unregister(channelID)
			log.Debug().Str("job_id", jobID).Str("channel", channelID).Msg("subscriber disconnected")
		}()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
