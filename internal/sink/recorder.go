package sink

import (
	"time"

	"vatproof/internal/status"

	"github.com/sirupsen/logrus"
)

// Event kinds written by ProgressRecorder.
const (
	KindProgress  = "progress"
	KindCompleted = "completed"
	KindFailed    = "failed"
	KindError     = "error"
)

// ProgressRecorder turns poller notifications into sink events so the
// history of a job can be inspected after the fact. Every event has the
// same columns regardless of its kind.
type ProgressRecorder struct {
	sink Sink
	now  func() time.Time
}

func NewProgressRecorder(s Sink) *ProgressRecorder {
	return &ProgressRecorder{sink: s, now: time.Now}
}

func (r *ProgressRecorder) OnProgress(jobID status.JobID, snap status.Snapshot) {
	evt := r.event(jobID, KindProgress)
	fillSnapshot(evt, snap)
	r.write(evt)
}

func (r *ProgressRecorder) OnCompleted(jobID status.JobID, payload *status.Payload) {
	r.terminal(jobID, KindCompleted, payload)
}

func (r *ProgressRecorder) OnFailed(jobID status.JobID, payload *status.Payload) {
	r.terminal(jobID, KindFailed, payload)
}

func (r *ProgressRecorder) OnError(jobID status.JobID, err error) {
	evt := r.event(jobID, KindError)
	evt["error"] = err.Error()
	r.write(evt)
}

func (r *ProgressRecorder) terminal(jobID status.JobID, kind string, payload *status.Payload) {
	evt := r.event(jobID, kind)
	if payload != nil {
		evt["status"] = string(payload.Status)
		fillSnapshot(evt, payload.Snapshot())
	}
	r.write(evt)
}

func (r *ProgressRecorder) event(jobID status.JobID, kind string) Event {
	return Event{
		"job_id":       string(jobID),
		"recorded_at":  r.now().UTC().Format(time.RFC3339Nano),
		"kind":         kind,
		"status":       "",
		"total":        nil,
		"completed":    nil,
		"failed":       nil,
		"in_progress":  nil,
		"pending":      nil,
		"percentage":   nil,
		"inconsistent": nil,
		"error":        "",
	}
}

func fillSnapshot(evt Event, snap status.Snapshot) {
	evt["total"] = snap.Total
	evt["completed"] = snap.Completed
	evt["failed"] = snap.Failed
	evt["in_progress"] = snap.InProgress
	evt["pending"] = snap.Pending
	evt["percentage"] = snap.Percentage
	evt["inconsistent"] = snap.Inconsistent
}

// write logs failures; listeners have no way to return them.
func (r *ProgressRecorder) write(evt Event) {
	if r.sink == nil {
		return
	}
	if err := r.sink.Write(evt); err != nil {
		logrus.WithField("job_id", evt["job_id"]).Errorf("failed to record %v event: %v", evt["kind"], err)
	}
}
