package daemon

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/ObjectivityLtd/PSCI/internal/deploy"
	"github.com/ObjectivityLtd/PSCI/internal/metrics"
	"github.com/ObjectivityLtd/PSCI/internal/summary"
)

// Status is the JSON served on /status.
type Status struct {
	StartedAt      time.Time `json:"started_at"`
	LastDeployment string    `json:"last_deployment,omitempty"`
	LastStatus     string    `json:"last_status,omitempty"`
	LastFinished   time.Time `json:"last_finished,omitempty"`
	QueuedNow      int       `json:"queued_now"`
}

// StatusServer exposes health, status, metrics, and the last deployment
// summary over HTTP.
type StatusServer struct {
	registry *prom.Registry
	started  time.Time

	mu         sync.RWMutex
	lastResult *deploy.Result
	queueDepth func() int
}

// NewStatusServer creates a status server. registry may be nil.
func NewStatusServer(registry *prom.Registry) *StatusServer {
	return &StatusServer{registry: registry, started: time.Now()}
}

// RecordResult stores the most recent deployment outcome.
func (s *StatusServer) RecordResult(result *deploy.Result) {
	if result == nil {
		return
	}
	s.mu.Lock()
	s.lastResult = result
	s.mu.Unlock()
}

// QueueDepth registers a callback reporting how many deployments wait to run.
func (s *StatusServer) QueueDepth(fn func() int) {
	s.mu.Lock()
	s.queueDepth = fn
	s.mu.Unlock()
}

// Handler builds the HTTP mux.
func (s *StatusServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, _ *http.Request) {
		s.mu.RLock()
		status := Status{StartedAt: s.started}
		if s.queueDepth != nil {
			status.QueuedNow = s.queueDepth()
		}
		if s.lastResult != nil {
			status.LastDeployment = s.lastResult.DeploymentID
			status.LastStatus = s.lastResult.Status
			status.LastFinished = s.lastResult.FinishedAt
		}
		s.mu.RUnlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status)
	})

	mux.HandleFunc("GET /summary", func(w http.ResponseWriter, _ *http.Request) {
		s.mu.RLock()
		result := s.lastResult
		s.mu.RUnlock()
		if result == nil {
			http.Error(w, "no deployment yet", http.StatusNotFound)
			return
		}
		html, err := summary.HTML(result, nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(html))
	})

	if s.registry != nil {
		mux.Handle("GET /metrics", metrics.HTTPHandler(s.registry))
	}

	return mux
}
