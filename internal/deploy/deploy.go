package deploy

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ObjectivityLtd/PSCI/internal/eventstore"
	"github.com/ObjectivityLtd/PSCI/internal/logfields"
	"github.com/ObjectivityLtd/PSCI/internal/metrics"
)

// StepResult records the outcome of one executed step.
type StepResult struct {
	Name     string
	Status   string // completed, failed, skipped
	Duration time.Duration
	Warnings []string
	Err      error
}

// Result is the outcome of a deployment run.
type Result struct {
	DeploymentID string
	Environment  string
	Status       string // completed, failed
	StartedAt    time.Time
	FinishedAt   time.Time
	Steps        []StepResult
	DryRun       bool
}

// Warnings collects all step warnings in execution order.
func (r *Result) Warnings() []string {
	var out []string
	for _, s := range r.Steps {
		out = append(out, s.Warnings...)
	}
	return out
}

// Deployer executes plans sequentially, recording events and metrics.
// Store and Recorder are optional.
type Deployer struct {
	Store    eventstore.Store
	Recorder metrics.Recorder
	Retry    RetryPolicy
	DryRun   bool
}

// NewDeployer creates a Deployer with the default retry policy.
func NewDeployer(store eventstore.Store, rec metrics.Recorder) *Deployer {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Deployer{
		Store:    store,
		Recorder: rec,
		Retry:    DefaultRetryPolicy(),
	}
}

// Run executes the plan's steps in order. The first step error aborts the run;
// the returned Result always describes everything that happened up to that
// point.
func (d *Deployer) Run(ctx context.Context, plan *Plan) (*Result, error) {
	rec := d.Recorder
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}

	result := &Result{
		DeploymentID: uuid.NewString(),
		Environment:  plan.Environment,
		Status:       "completed",
		StartedAt:    time.Now(),
		DryRun:       d.DryRun,
	}

	logger := slog.With(
		logfields.DeploymentID(result.DeploymentID),
		logfields.Environment(plan.Environment))
	logger.Info("Deployment started",
		slog.Int("steps", len(plan.Steps)),
		slog.Bool("dry_run", d.DryRun))

	d.appendEvent(ctx, result.DeploymentID, eventstore.TypeDeploymentStarted, map[string]string{
		"environment": plan.Environment,
	})

	var runErr error
	for _, step := range plan.Steps {
		stepResult := d.runStep(ctx, logger, result.DeploymentID, step)
		result.Steps = append(result.Steps, stepResult)
		if stepResult.Err != nil {
			runErr = stepResult.Err
			break
		}
	}

	result.FinishedAt = time.Now()
	duration := result.FinishedAt.Sub(result.StartedAt)
	rec.ObserveDeploymentDuration(duration)

	if runErr != nil {
		result.Status = "failed"
		rec.IncDeploymentOutcome("failed")
		d.appendEvent(ctx, result.DeploymentID, eventstore.TypeDeploymentFailed, map[string]string{
			"error": runErr.Error(),
		})
		logger.Error("Deployment failed",
			logfields.DurationMS(float64(duration.Milliseconds())),
			logfields.Error(runErr))
		return result, runErr
	}

	outcome := "success"
	if len(result.Warnings()) > 0 {
		outcome = "warning"
	}
	rec.IncDeploymentOutcome(outcome)
	d.appendEvent(ctx, result.DeploymentID, eventstore.TypeDeploymentCompleted, nil)
	logger.Info("Deployment completed",
		logfields.DurationMS(float64(duration.Milliseconds())),
		slog.Int("warnings", len(result.Warnings())))
	return result, nil
}

func (d *Deployer) runStep(ctx context.Context, logger *slog.Logger, deploymentID string, step Step) StepResult {
	rec := d.Recorder
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}

	if d.DryRun {
		logger.Info("Step skipped (dry run)", logfields.Step(step.Name))
		d.appendEvent(ctx, deploymentID, eventstore.TypeStepSkipped, map[string]string{"step": step.Name})
		rec.IncStepResult(step.Name, metrics.ResultSkipped)
		return StepResult{Name: step.Name, Status: "skipped"}
	}

	logger.Info("Step started", logfields.Step(step.Name))
	d.appendEvent(ctx, deploymentID, eventstore.TypeStepStarted, map[string]string{"step": step.Name})

	start := time.Now()
	warnings, err := withRetry(step, d.Retry, rec).Run(ctx)
	duration := time.Since(start)
	rec.ObserveStepDuration(step.Name, duration)

	if err != nil {
		rec.IncStepResult(step.Name, metrics.ResultFailed)
		d.appendEvent(ctx, deploymentID, eventstore.TypeStepFailed, map[string]string{
			"step":  step.Name,
			"error": err.Error(),
		})
		logger.Error("Step failed",
			logfields.Step(step.Name),
			logfields.DurationMS(float64(duration.Milliseconds())),
			logfields.Error(err))
		return StepResult{Name: step.Name, Status: "failed", Duration: duration, Warnings: warnings, Err: err}
	}

	label := metrics.ResultSuccess
	if len(warnings) > 0 {
		label = metrics.ResultWarning
	}
	rec.IncStepResult(step.Name, label)
	d.appendEvent(ctx, deploymentID, eventstore.TypeStepCompleted, map[string]string{"step": step.Name})
	logger.Info("Step completed",
		logfields.Step(step.Name),
		logfields.StepStatus("completed"),
		logfields.DurationMS(float64(duration.Milliseconds())),
		slog.Int("warnings", len(warnings)))
	return StepResult{Name: step.Name, Status: "completed", Duration: duration, Warnings: warnings}
}

// appendEvent records an event when a store is configured. Event store
// failures must not abort a deployment, so they are only logged.
func (d *Deployer) appendEvent(ctx context.Context, deploymentID, eventType string, metadata map[string]string) {
	if d.Store == nil {
		return
	}
	if err := d.Store.Append(ctx, deploymentID, eventType, []byte(`{}`), metadata); err != nil {
		slog.Warn("Failed to record deployment event",
			logfields.DeploymentID(deploymentID),
			slog.String("event_type", eventType),
			logfields.Error(err))
	}
}
