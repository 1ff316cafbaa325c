package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"vatproof/internal/status"

	"github.com/sirupsen/logrus"
)

// Version is reported by GET /api/status.
const Version = "1.0.0-dev"

// Options tunes the simulated backend.
type Options struct {
	// Step is the time it takes the simulation to move one item forward.
	Step time.Duration
	// PreviewSize is the number of lines echoed back by verify-paste.
	PreviewSize int
}

// Server is a development stand-in for the VATProof backend: it accepts
// VAT lists, simulates their verification and reports job status.
type Server struct {
	mux  *http.ServeMux
	opts Options
	now  func() time.Time

	mu   sync.RWMutex
	jobs map[status.JobID]*jobEntry
	wg   sync.WaitGroup
}

// NewServer builds a server with basic logging and panic recovery middlewares.
func NewServer(opts Options) *Server {
	if opts.Step <= 0 {
		opts.Step = time.Second
	}
	if opts.PreviewSize <= 0 {
		opts.PreviewSize = 5
	}
	mux := http.NewServeMux()
	s := &Server{
		mux:  mux,
		opts: opts,
		now:  time.Now,
		jobs: make(map[status.JobID]*jobEntry),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/api/status", s.handleSystemStatus)  // GET /api/status
	s.mux.HandleFunc("/api/verify-paste", s.handlePaste)  // POST /api/verify-paste
	s.mux.HandleFunc("/api/jobs/", s.handleJobByID)       // GET /api/jobs/{id}/status, DELETE /api/jobs/{id}
}

// Handler returns the routed handler wrapped in the middlewares.
func (s *Server) Handler() http.Handler {
	return s.recoveryMiddleware(s.loggingMiddleware(s.mux))
}

// Run starts the HTTP server on the provided port.
func (s *Server) Run(port string) error {
	addr := fmt.Sprintf(":%s", port)
	logrus.Infof("HTTP server running on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// Close cancels every running simulation and waits for them to return.
func (s *Server) Close() {
	s.mu.Lock()
	for _, e := range s.jobs {
		if e.cancel != nil {
			e.cancel()
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Simple request logger middleware.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logrus.Debugf("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware catches panics and returns 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logrus.Errorf("panic recovered: %v", rec)
				writeJSONError(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) startJob(e *jobEntry) {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	s.mu.Lock()
	s.jobs[e.id] = e
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runJob(ctx, e)
	}()
}

func (s *Server) job(id status.JobID) (*jobEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.jobs[id]
	return e, ok
}
