package api

import (
	"context"
	"sync"
	"time"

	"vatproof/internal/status"

	"github.com/sirupsen/logrus"
)

type itemState int

const (
	itemPending itemState = iota
	itemInProgress
	itemCompleted
	itemFailed
)

type jobItem struct {
	vat   string
	valid bool
	state itemState
}

// jobEntry is one simulated verification job. Items move
// pending -> in progress -> completed (or failed for malformed numbers).
type jobEntry struct {
	id        status.JobID
	createdAt time.Time
	cancel    context.CancelFunc // allows cancellation via DELETE /api/jobs/{id}

	mu        sync.Mutex
	items     []jobItem
	cancelled bool
}

func newJobEntry(id status.JobID, numbers []string, now time.Time) *jobEntry {
	items := make([]jobItem, len(numbers))
	for i, n := range numbers {
		items[i] = jobItem{vat: n, valid: validVATFormat(n)}
	}
	return &jobEntry{id: id, createdAt: now, items: items}
}

// advance moves the simulation one step: the oldest in-progress item is
// resolved and the next pending item starts. It reports whether the job
// has no work left.
func (e *jobEntry) advance() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancelled {
		return true
	}
	resolved, started := false, false
	for i := range e.items {
		it := &e.items[i]
		switch {
		case it.state == itemInProgress && !resolved:
			if it.valid {
				it.state = itemCompleted
			} else {
				it.state = itemFailed
			}
			resolved = true
		case it.state == itemPending && !started:
			it.state = itemInProgress
			started = true
		}
	}
	return !resolved && !started
}

func (e *jobEntry) markCancelled() {
	e.mu.Lock()
	e.cancelled = true
	e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *jobEntry) progress() status.Progress {
	p := status.Progress{Total: len(e.items)}
	for _, it := range e.items {
		switch it.state {
		case itemInProgress:
			p.InProgress++
		case itemCompleted:
			p.Completed++
		case itemFailed:
			p.Failed++
		}
	}
	return p
}

// statusResponse renders the job the way GET /api/jobs/{id}/status reports it.
func (e *jobEntry) statusResponse(now time.Time, step time.Duration) JobStatusResponse {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.progress()
	remaining := p.Total - p.Completed - p.Failed

	var st status.JobStatus
	switch {
	case e.cancelled:
		st = status.StatusFailed
	case remaining == 0 && p.Failed == p.Total && p.Total > 0:
		st = status.StatusFailed
	case remaining == 0:
		st = status.StatusCompleted
	case p.InProgress == 0 && remaining == p.Total:
		st = status.StatusPending
	default:
		st = status.StatusInProgress
	}

	res := JobStatusResponse{
		JobID:     e.id,
		Status:    st,
		Progress:  p,
		CreatedAt: e.createdAt.UTC().Format(time.RFC3339),
	}
	if !st.Terminal() {
		eta := now.Add(time.Duration(remaining) * step).UTC().Format(time.RFC3339)
		res.EstimatedCompletion = &eta
	}
	return res
}

// runJob drives the simulation until every item is resolved or the job is
// cancelled.
func (s *Server) runJob(ctx context.Context, e *jobEntry) {
	log := logrus.WithField("job_id", e.id)
	log.Infof("verification started for %d numbers", len(e.items))

	ticker := time.NewTicker(s.opts.Step)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("verification cancelled")
			return
		case <-ticker.C:
			if e.advance() {
				p := e.progress()
				log.WithFields(logrus.Fields{"completed": p.Completed, "failed": p.Failed}).Info("verification finished")
				return
			}
		}
	}
}
