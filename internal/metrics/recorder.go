package metrics

import "time"

// ResultLabel enumerates step result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultWarning  ResultLabel = "warning"
	ResultFailed   ResultLabel = "failed"
	ResultSkipped  ResultLabel = "skipped"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for deployment and step metrics.
// Implementations may forward to Prometheus, OpenTelemetry, etc. All methods
// must be safe on the NoopRecorder so injection stays optional.
type Recorder interface {
	ObserveStepDuration(step string, d time.Duration)
	ObserveDeploymentDuration(d time.Duration)
	IncStepResult(step string, result ResultLabel)
	IncDeploymentOutcome(outcome string) // outcome: success|warning|failed|canceled
	IncPublishResult(itemType string, success bool)
	IncRetry(step string)
	IncRetryExhausted(step string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStepDuration(string, time.Duration) {}
func (NoopRecorder) ObserveDeploymentDuration(time.Duration)   {}
func (NoopRecorder) IncStepResult(string, ResultLabel)         {}
func (NoopRecorder) IncDeploymentOutcome(string)               {}
func (NoopRecorder) IncPublishResult(string, bool)             {}
func (NoopRecorder) IncRetry(string)                           {}
func (NoopRecorder) IncRetryExhausted(string)                  {}
