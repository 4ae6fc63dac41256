package daemon

import (
	"context"
	"log/slog"

	"github.com/go-co-op/gocron/v2"

	"github.com/ObjectivityLtd/PSCI/internal/config"
	"github.com/ObjectivityLtd/PSCI/internal/foundation/errors"
	"github.com/ObjectivityLtd/PSCI/internal/logfields"
)

// Scheduler wraps gocron for cron-driven deployments.
type Scheduler struct {
	scheduler gocron.Scheduler
	queue     *Queue
}

// NewScheduler creates a scheduler feeding the deployment queue.
func NewScheduler(queue *Queue) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.DaemonError("failed to create scheduler").
			WithCause(err).
			Build()
	}
	return &Scheduler{scheduler: s, queue: queue}, nil
}

// AddSchedule registers one cron schedule. Returns the gocron job ID.
func (s *Scheduler) AddSchedule(sched config.ScheduleConfig) (string, error) {
	job, err := s.scheduler.NewJob(
		gocron.CronJob(sched.Cron, false),
		gocron.NewTask(func() {
			slog.Info("Schedule fired",
				logfields.ScheduleName(sched.Name),
				logfields.Environment(sched.Environment))
			if _, err := s.queue.Enqueue(sched.Environment, TriggerSchedule, sched.DryRun); err != nil {
				slog.Error("Failed to enqueue scheduled deployment",
					logfields.ScheduleName(sched.Name),
					logfields.Error(err))
			}
		}),
		gocron.WithName(sched.Name),
	)
	if err != nil {
		return "", errors.DaemonError("failed to create schedule").
			WithCause(err).
			WithContext("schedule", sched.Name).
			WithContext("cron", sched.Cron).
			Build()
	}

	slog.Info("Schedule registered",
		logfields.ScheduleID(job.ID().String()),
		logfields.ScheduleName(sched.Name),
		slog.String("cron", sched.Cron))
	return job.ID().String(), nil
}

// Start begins the scheduler.
func (s *Scheduler) Start(_ context.Context) {
	slog.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop(_ context.Context) error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}
