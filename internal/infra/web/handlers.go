package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"media-analysis-pipeline/internal/domain"
	"media-analysis-pipeline/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

// Payload bodies are small JSON documents; this bound is generous.
const maxPayloadBytes = 1 << 20

type enqueueResponse struct {
	JobID string `json:"jobId"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// enqueueHandler accepts the raw payload for one job type, validates it and
// returns the job ID as soon as the queue write commits. Processing happens
// later; callers poll the status endpoint.
func (s *Server) enqueueHandler(w http.ResponseWriter, r *http.Request) {
	t, ok := model.ParseJobType(chi.URLParam(r, "type"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown job type")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	priority := 0
	if p := r.URL.Query().Get("priority"); p != "" {
		priority, err = strconv.Atoi(p)
		if err != nil {
			writeError(w, http.StatusBadRequest, "priority must be an integer")
			return
		}
	}

	jobID, err := s.pipeline.Enqueue(r.Context(), t, body, priority)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidPayload) || errors.Is(err, domain.ErrUnknownJobType) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error().Err(err).Str("type", string(t)).Msg("enqueue failed")
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}
	writeJSON(w, http.StatusAccepted, enqueueResponse{JobID: jobID})
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	t, ok := model.ParseJobType(chi.URLParam(r, "type"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown job type")
		return
	}
	jobID := chi.URLParam(r, "id")

	status, err := s.pipeline.Status(r.Context(), t, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.log.Error().Err(err).Str("job_id", jobID).Msg("status lookup failed")
		writeError(w, http.StatusInternalServerError, "failed to get job status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.pipeline.Stats(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("stats failed")
		writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
