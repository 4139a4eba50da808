package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/helioslabs/ledgerscope/pkg/history"
	"github.com/helioslabs/ledgerscope/pkg/redact"
)

const (
	maxBodyBytes        = 1 << 20
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type askRequest struct {
	Question string `json:"question"`
}

type feedbackRequest struct {
	RunID   string `json:"run_id"`
	Score   int    `json:"score"`
	Comment string `json:"comment,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) askHandler(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Question == "" {
		s.writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	result, err := s.cfg.Pipeline.Run(r.Context(), req.Question)
	if err != nil {
		s.log.Error("server: run failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to process question")
		return
	}

	// Outbound text is scrubbed once more at the boundary.
	result.FinalText = redact.Apply(result.FinalText)

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxHistoryLimit)
	}

	runs, err := s.cfg.History.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error("server: history query failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

func (s *Server) historyShowHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	run, err := s.cfg.History.Get(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.log.Error("server: history lookup failed", "run_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}

	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) feedbackHandler(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.RunID == "" {
		s.writeError(w, http.StatusBadRequest, "run_id is required")
		return
	}
	if req.Score < 1 || req.Score > 5 {
		s.writeError(w, http.StatusBadRequest, "score must be between 1 and 5")
		return
	}

	err := s.cfg.History.UpdateFeedback(r.Context(), req.RunID, req.Score, req.Comment)
	if errors.Is(err, history.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.log.Error("server: feedback update failed", "run_id", req.RunID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to record feedback")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("server: failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
