// Package daemon runs deployments continuously: on cron schedules, on
// project file changes, and on demand, with a status endpoint.
package daemon

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/ObjectivityLtd/PSCI/internal/config"
	"github.com/ObjectivityLtd/PSCI/internal/deploy"
	"github.com/ObjectivityLtd/PSCI/internal/logfields"
)

// Options configures a Daemon.
type Options struct {
	Config     *config.Config
	Runner     Runner
	Registry   *prom.Registry // optional, enables /metrics
	WatchPaths []string       // files whose changes trigger a redeploy
	WatchEnv   string         // environment deployed on watch trigger
}

// Daemon ties the queue, scheduler, watcher, status server, and event
// publisher together.
type Daemon struct {
	cfg       *config.Config
	queue     *Queue
	scheduler *Scheduler
	watcher   *Watcher
	publisher *EventPublisher
	status    *StatusServer
	server    *http.Server
}

// New assembles a daemon from options.
func New(opts Options) (*Daemon, error) {
	d := &Daemon{
		cfg:    opts.Config,
		status: NewStatusServer(opts.Registry),
	}

	d.queue = NewQueue(opts.Runner, 16)
	d.status.QueueDepth(d.queue.Pending)

	publisher, err := NewEventPublisher(opts.Config.Daemon.NATS)
	if err != nil {
		return nil, err
	}
	d.publisher = publisher

	d.queue.OnResult(func(job Job, result *deploy.Result, runErr error) {
		d.status.RecordResult(result)
		d.publisher.Publish(job, result, runErr)
	})

	scheduler, err := NewScheduler(d.queue)
	if err != nil {
		return nil, err
	}
	for _, sched := range opts.Config.Daemon.Schedules {
		if _, err := scheduler.AddSchedule(sched); err != nil {
			return nil, err
		}
	}
	d.scheduler = scheduler

	if opts.Config.Daemon.Watch && len(opts.WatchPaths) > 0 {
		watchEnv := opts.WatchEnv
		debounce := time.Duration(opts.Config.Daemon.DebounceSeconds) * time.Second
		watcher, err := NewWatcher(opts.WatchPaths, debounce, func() {
			if _, err := d.queue.Enqueue(watchEnv, TriggerWatch, false); err != nil {
				slog.Error("Failed to enqueue watched deployment", logfields.Error(err))
			}
		})
		if err != nil {
			return nil, err
		}
		d.watcher = watcher
	}

	d.server = &http.Server{
		Addr:              opts.Config.Daemon.Listen,
		Handler:           d.status.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return d, nil
}

// Enqueue queues a manual deployment.
func (d *Daemon) Enqueue(environment string, dryRun bool) (string, error) {
	return d.queue.Enqueue(environment, TriggerManual, dryRun)
}

// Run starts all components and blocks until the context is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	slog.Info("Daemon starting", slog.String("listen", d.server.Addr))

	go d.queue.Run(ctx)
	d.scheduler.Start(ctx)

	if d.watcher != nil {
		if err := d.watcher.Start(ctx); err != nil {
			return err
		}
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := d.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	slog.Info("Daemon stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = d.server.Shutdown(shutdownCtx)
	if err := d.scheduler.Stop(shutdownCtx); err != nil {
		slog.Warn("Scheduler shutdown error", logfields.Error(err))
	}
	if d.watcher != nil {
		d.watcher.Stop()
	}
	d.publisher.Close()
	d.queue.Wait()
	return nil
}
