package status

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedResponse is returned when a status body cannot be decoded into
// a Payload. Missing fields are not an error; they default to their zero value.
var ErrMalformedResponse = errors.New("malformed status response")

// JobID identifies a backend verification job.
type JobID string

// JobStatus is the status string reported by the backend for a job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusInProgress JobStatus = "in_progress"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further progress is expected for the job.
// Unknown values are treated as non-terminal.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Progress holds the raw work counters as sent by the backend.
type Progress struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	InProgress int `json:"in_progress"`
}

// Payload is the decoded body of GET /jobs/{id}/status.
type Payload struct {
	JobID               JobID     `json:"job_id"`
	Status              JobStatus `json:"status"`
	Progress            Progress  `json:"progress"`
	CreatedAt           string    `json:"created_at,omitempty"`
	EstimatedCompletion *string   `json:"estimated_completion,omitempty"`

	// Raw keeps the undecoded body so consumers of terminal notifications get
	// everything the backend sent, including fields unknown to this package.
	Raw json.RawMessage `json:"-"`
}

// Parse decodes a status body. The body must be a JSON object; absent
// fields (including the whole progress block) are left at zero.
func Parse(body []byte) (*Payload, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if probe == nil {
		return nil, fmt.Errorf("%w: body is not an object", ErrMalformedResponse)
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	p.Raw = append(json.RawMessage(nil), body...)
	return &p, nil
}

// Snapshot derives the normalized progress reading for this payload.
func (p *Payload) Snapshot() Snapshot {
	return NewSnapshot(p.Progress)
}
