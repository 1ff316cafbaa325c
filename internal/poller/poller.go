package poller

import (
	"context"
	"sync"
	"time"

	"vatproof/internal/config"
	"vatproof/internal/status"

	"github.com/sirupsen/logrus"
)

const (
	DefaultPollInterval       = 5 * time.Second
	DefaultErrorRetryInterval = 10 * time.Second
)

// State is the lifecycle state of a Poller.
type State int

const (
	Idle State = iota
	Polling
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Polling:
		return "polling"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Source returns the raw status body of a job. client.Client implements it.
type Source interface {
	FetchStatus(ctx context.Context, jobID status.JobID) ([]byte, error)
}

// Options tunes the polling schedule. Zero values select the defaults.
type Options struct {
	// PollInterval is the wait after a successful response.
	PollInterval time.Duration
	// ErrorRetryInterval is the wait after a failed request.
	ErrorRetryInterval time.Duration
	// RequestTimeout bounds each status request. Defaults to PollInterval.
	RequestTimeout time.Duration
}

// OptionsFromConfig maps the poll settings of a loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PollInterval:       cfg.PollInterval(),
		ErrorRetryInterval: cfg.ErrorRetryInterval(),
		RequestTimeout:     cfg.RequestTimeout(),
	}
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.ErrorRetryInterval <= 0 {
		o.ErrorRetryInterval = DefaultErrorRetryInterval
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = o.PollInterval
	}
	return o
}

// Poller tracks a single verification job at a time: it polls the job status,
// turns every response into a Snapshot and tells its Listener about progress
// until the job reaches a terminal status or Stop is called.
//
// A Poller is safe for concurrent use and can be restarted after it stopped.
type Poller struct {
	source   Source
	listener Listener
	opts     Options

	mu     sync.Mutex
	state  State
	jobID  status.JobID
	gen    uint64 // bumped by Start and Stop; a run only acts while its generation is current
	cancel context.CancelFunc
}

// New builds an idle Poller. A nil listener discards notifications.
func New(source Source, listener Listener, opts Options) *Poller {
	if listener == nil {
		listener = Funcs{}
	}
	return &Poller{
		source:   source,
		listener: listener,
		opts:     opts.withDefaults(),
	}
}

// Start begins polling jobID: the first request is issued immediately.
// Calling Start while already polling is a no-op, whatever the job id.
// Cancelling ctx stops the run silently, like Stop.
func (p *Poller) Start(ctx context.Context, jobID status.JobID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == Polling {
		fields := logrus.Fields{"job_id": p.jobID}
		if jobID != p.jobID {
			fields["requested_job_id"] = jobID
			logrus.WithFields(fields).Warn("poller already active for another job, start ignored")
		} else {
			logrus.WithFields(fields).Debug("poller already active, start ignored")
		}
		return
	}

	p.gen++
	runCtx, cancel := context.WithCancel(ctx)
	p.state = Polling
	p.jobID = jobID
	p.cancel = cancel

	logrus.WithFields(logrus.Fields{
		"job_id":   jobID,
		"interval": p.opts.PollInterval,
	}).Info("polling started")

	go p.run(runCtx, cancel, p.gen, jobID)
}

// Stop ends the current run. A pending timer or an in-flight request of
// that run is discarded and no further notification is dispatched for it.
// Only a callback already executing on another goroutine may still finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == Polling {
		logrus.WithField("job_id", p.jobID).Info("polling stopped")
		p.state = Stopped
	}
	p.gen++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// IsActive reports whether a job is being polled.
func (p *Poller) IsActive() bool {
	return p.State() == Polling
}

func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// JobID returns the job of the current or last run.
func (p *Poller) JobID() status.JobID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jobID
}

func (p *Poller) run(ctx context.Context, cancel context.CancelFunc, gen uint64, jobID status.JobID) {
	defer cancel()
	defer p.release(gen)

	log := logrus.WithField("job_id", jobID)

	// The first request goes out without delay.
	var wait time.Duration
	for {
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		if ctx.Err() != nil || !p.current(gen) {
			return
		}

		payload, err := p.poll(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warnf("status request failed, retrying in %s: %v", p.opts.ErrorRetryInterval, err)
			if !p.notify(gen, func(l Listener) { l.OnError(jobID, err) }) {
				return
			}
			wait = p.opts.ErrorRetryInterval
			continue
		}

		snap := payload.Snapshot()
		if snap.Inconsistent {
			log.WithFields(logrus.Fields{
				"total":       snap.Total,
				"completed":   snap.Completed,
				"failed":      snap.Failed,
				"in_progress": snap.InProgress,
				"pending":     snap.Pending,
			}).Warn("inconsistent progress counters reported by backend")
		}
		log.Debugf("status=%s progress=%d%% (%d/%d)", payload.Status, snap.Percentage, snap.Done(), snap.Total)

		if !p.notify(gen, func(l Listener) { l.OnProgress(jobID, snap) }) {
			return
		}

		if payload.Status.Terminal() {
			if !p.finish(gen) {
				return
			}
			log.WithField("status", payload.Status).Info("job reached terminal status")
			if payload.Status == status.StatusCompleted {
				p.listener.OnCompleted(jobID, payload)
			} else {
				p.listener.OnFailed(jobID, payload)
			}
			return
		}

		wait = p.opts.PollInterval
	}
}

func (p *Poller) poll(ctx context.Context, jobID status.JobID) (*status.Payload, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.opts.RequestTimeout)
	defer cancel()

	body, err := p.source.FetchStatus(reqCtx, jobID)
	if err != nil {
		return nil, err
	}
	return status.Parse(body)
}

func (p *Poller) current(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen == gen && p.state == Polling
}

// notify delivers a notification if the run is still current. The lock is
// released before calling out so listeners can use the Poller.
func (p *Poller) notify(gen uint64, fn func(Listener)) bool {
	if !p.current(gen) {
		return false
	}
	fn(p.listener)
	return true
}

// finish moves a current run to Stopped after a terminal status. It returns
// false when the run was superseded, in which case nothing must be emitted.
func (p *Poller) finish(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen || p.state != Polling {
		return false
	}
	p.state = Stopped
	p.cancel = nil
	return true
}

// release marks a run that ended on its own (context cancelled) as stopped.
func (p *Poller) release(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen == gen && p.state == Polling {
		p.state = Stopped
		p.cancel = nil
	}
}
