package poller

import (
	"vatproof/internal/status"
)

// Listener receives the lifecycle notifications of a polled job. All calls
// for one run happen on the same goroutine, in request completion order.
// Implementations may call back into the Poller.
type Listener interface {
	// OnProgress is called after every successful status response.
	OnProgress(jobID status.JobID, snap status.Snapshot)
	// OnCompleted is called once when the job reports "completed".
	OnCompleted(jobID status.JobID, payload *status.Payload)
	// OnFailed is called once when the job reports "failed".
	OnFailed(jobID status.JobID, payload *status.Payload)
	// OnError is called when a status request or its decoding fails.
	// Polling continues after the error retry interval.
	OnError(jobID status.JobID, err error)
}

// Funcs adapts plain functions to a Listener. Nil fields are skipped.
type Funcs struct {
	Progress  func(jobID status.JobID, snap status.Snapshot)
	Completed func(jobID status.JobID, payload *status.Payload)
	Failed    func(jobID status.JobID, payload *status.Payload)
	Error     func(jobID status.JobID, err error)
}

func (f Funcs) OnProgress(jobID status.JobID, snap status.Snapshot) {
	if f.Progress != nil {
		f.Progress(jobID, snap)
	}
}

func (f Funcs) OnCompleted(jobID status.JobID, payload *status.Payload) {
	if f.Completed != nil {
		f.Completed(jobID, payload)
	}
}

func (f Funcs) OnFailed(jobID status.JobID, payload *status.Payload) {
	if f.Failed != nil {
		f.Failed(jobID, payload)
	}
}

func (f Funcs) OnError(jobID status.JobID, err error) {
	if f.Error != nil {
		f.Error(jobID, err)
	}
}

type multi []Listener

// Multi fans every notification out to each listener in order.
func Multi(listeners ...Listener) Listener {
	m := make(multi, 0, len(listeners))
	for _, l := range listeners {
		if l != nil {
			m = append(m, l)
		}
	}
	return m
}

func (m multi) OnProgress(jobID status.JobID, snap status.Snapshot) {
	for _, l := range m {
		l.OnProgress(jobID, snap)
	}
}

func (m multi) OnCompleted(jobID status.JobID, payload *status.Payload) {
	for _, l := range m {
		l.OnCompleted(jobID, payload)
	}
}

func (m multi) OnFailed(jobID status.JobID, payload *status.Payload) {
	for _, l := range m {
		l.OnFailed(jobID, payload)
	}
}

func (m multi) OnError(jobID status.JobID, err error) {
	for _, l := range m {
		l.OnError(jobID, err)
	}
}
