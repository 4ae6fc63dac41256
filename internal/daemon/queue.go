package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ObjectivityLtd/PSCI/internal/deploy"
	"github.com/ObjectivityLtd/PSCI/internal/foundation/errors"
	"github.com/ObjectivityLtd/PSCI/internal/logfields"
)

// Trigger names the origin of a queued deployment.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerWatch    Trigger = "watch"
	TriggerManual   Trigger = "manual"
)

// Job is one queued deployment request.
type Job struct {
	ID          string
	Environment string
	Trigger     Trigger
	DryRun      bool
	CreatedAt   time.Time
}

// Runner executes a deployment for an environment.
type Runner interface {
	Deploy(ctx context.Context, environment string, dryRun bool) (*deploy.Result, error)
}

// Queue serializes deployment jobs: one deployment at a time, and at most one
// pending job per environment.
type Queue struct {
	runner Runner

	mu       sync.Mutex
	pending  map[string]bool // environment -> queued
	jobs     chan Job
	done     chan struct{}
	onResult func(Job, *deploy.Result, error)
}

// NewQueue creates a queue with the given capacity.
func NewQueue(runner Runner, capacity int) *Queue {
	if capacity <= 0 {
		capacity = 16
	}
	return &Queue{
		runner:  runner,
		pending: make(map[string]bool),
		jobs:    make(chan Job, capacity),
		done:    make(chan struct{}),
	}
}

// OnResult registers a callback invoked after each job finishes.
func (q *Queue) OnResult(fn func(Job, *deploy.Result, error)) {
	q.onResult = fn
}

// Enqueue queues a deployment. A second job for an environment that already
// has one pending is dropped.
func (q *Queue) Enqueue(environment string, trigger Trigger, dryRun bool) (string, error) {
	q.mu.Lock()
	if q.pending[environment] {
		q.mu.Unlock()
		slog.Debug("Deployment already queued, dropping",
			logfields.Environment(environment),
			slog.String("trigger", string(trigger)))
		return "", nil
	}
	q.pending[environment] = true
	q.mu.Unlock()

	job := Job{
		ID:          uuid.NewString(),
		Environment: environment,
		Trigger:     trigger,
		DryRun:      dryRun,
		CreatedAt:   time.Now(),
	}

	select {
	case q.jobs <- job:
		slog.Info("Deployment queued",
			logfields.Environment(environment),
			slog.String("trigger", string(trigger)))
		return job.ID, nil
	default:
		q.mu.Lock()
		delete(q.pending, environment)
		q.mu.Unlock()
		return "", errors.DaemonError("deployment queue is full").
			WithContext("environment", environment).
			Build()
	}
}

// Pending reports how many environments have a deployment waiting to run.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Run processes jobs until the context is canceled.
func (q *Queue) Run(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			q.mu.Lock()
			delete(q.pending, job.Environment)
			q.mu.Unlock()

			result, err := q.runner.Deploy(ctx, job.Environment, job.DryRun)
			if err != nil {
				slog.Error("Queued deployment failed",
					logfields.Environment(job.Environment),
					slog.String("trigger", string(job.Trigger)),
					logfields.Error(err))
			}
			if q.onResult != nil {
				q.onResult(job, result, err)
			}
		}
	}
}

// Wait blocks until Run has returned.
func (q *Queue) Wait() {
	<-q.done
}
