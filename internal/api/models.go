package api

import (
	"vatproof/internal/status"
)

// PasteRequest is the body of POST /api/verify-paste.
type PasteRequest struct {
	Content string `json:"content"`
}

// PasteResponse is returned after a pasted VAT list was accepted and a
// verification job was created for it.
type PasteResponse struct {
	Message    string       `json:"message"`
	LinesCount int          `json:"lines_count"`
	Preview    []string     `json:"preview"`
	JobID      status.JobID `json:"job_id"`
	Status     string       `json:"status"` // parsed
}

// SystemStatus is returned by GET /api/status.
type SystemStatus struct {
	Status    string            `json:"status"` // ok | degraded
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Version   string            `json:"version"`
}

// Healthy reports whether the backend declared itself fully available.
func (s *SystemStatus) Healthy() bool {
	return s.Status == "ok"
}

// JobStatusResponse is the body of GET /api/jobs/{id}/status.
type JobStatusResponse struct {
	JobID               status.JobID     `json:"job_id"`
	Status              status.JobStatus `json:"status"`
	Progress            status.Progress  `json:"progress"`
	CreatedAt           string           `json:"created_at"`
	EstimatedCompletion *string          `json:"estimated_completion"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}
