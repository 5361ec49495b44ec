package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/palikit/canonpress/internal/pipeline"
)

func (s *Server) handleAssemble(w http.ResponseWriter, r *http.Request) {
	editionID := chi.URLParam(r, "editionID")
	if editionID == "" {
		jsonError(w, "edition id is required", http.StatusBadRequest)
		return
	}

	job := pipeline.NewJob(editionID)
	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":     job.ID,
		"edition_id": job.EditionID,
		"status":     job.Status,
		"poll_url":   fmt.Sprintf("/api/jobs/%s", job.ID),
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job.Snapshot())
}

func (s *Server) handleJobVolume(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}

	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		jsonError(w, "volume number must be an integer", http.StatusBadRequest)
		return
	}

	switch job.Snapshot().Status {
	case pipeline.StatusCompleted, pipeline.StatusPartial:
	default:
		jsonError(w, "job has no composed volumes yet", http.StatusConflict)
		return
	}

	vol := job.Volume(number)
	if vol == nil {
		jsonError(w, fmt.Sprintf("volume %d not available", number), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(vol)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
