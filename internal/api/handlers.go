package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"vatproof/internal/ingest"
	"vatproof/internal/status"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// handleSystemStatus handles GET /api/status
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, SystemStatus{
		Status:    "ok",
		Timestamp: s.now().UTC().Format(time.RFC3339),
		Services:  map[string]string{"jobs": "ok"},
		Version:   Version,
	}, http.StatusOK)
}

// handlePaste handles POST /api/verify-paste: the list is parsed and a
// verification job is created for it.
func (s *Server) handlePaste(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	var req *PasteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil || req == nil {
		writeJSONError(w, "content is missing", http.StatusBadRequest)
		return
	}

	list, err := ingest.ParseText(req.Content)
	if err != nil {
		writeJSONError(w, "content is empty", http.StatusBadRequest)
		return
	}

	e := newJobEntry(status.JobID(uuid.NewString()), list.Numbers, s.now())
	s.startJob(e)

	preview := list.Numbers
	if len(preview) > s.opts.PreviewSize {
		preview = preview[:s.opts.PreviewSize]
	}

	msg := fmt.Sprintf("%d lines detected", len(list.Numbers))
	if list.Truncated {
		msg += fmt.Sprintf(" (truncated to %d)", ingest.MaxLines)
	}

	writeJSON(w, PasteResponse{
		Message:    msg,
		LinesCount: len(list.Numbers),
		Preview:    preview,
		JobID:      e.id,
		Status:     "parsed",
	}, http.StatusOK)
}

// handleJobByID routes GET /api/jobs/{id}/status and DELETE /api/jobs/{id}.
func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeJSONError(w, "job id missing", http.StatusBadRequest)
		return
	}

	switch {
	case sub == "status" && r.Method == http.MethodGet:
		s.getJobStatus(w, status.JobID(id))
	case sub == "" && r.Method == http.MethodDelete:
		s.cancelJob(w, status.JobID(id))
	case sub == "status" || sub == "":
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
	default:
		writeJSONError(w, "not found", http.StatusNotFound)
	}
}

func (s *Server) getJobStatus(w http.ResponseWriter, id status.JobID) {
	e, ok := s.job(id)
	if !ok {
		writeJSONError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, e.statusResponse(s.now(), s.opts.Step), http.StatusOK)
}

func (s *Server) cancelJob(w http.ResponseWriter, id status.JobID) {
	e, ok := s.job(id)
	if !ok {
		writeJSONError(w, "job not found", http.StatusNotFound)
		return
	}
	e.markCancelled()
	logrus.WithField("job_id", id).Info("job cancelled by client")
	w.WriteHeader(http.StatusNoContent)
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, v interface{}, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("failed to encode response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, ErrorResponse{Error: msg}, code)
}
