package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once               sync.Once
	stepDuration       *prom.HistogramVec
	deploymentDuration prom.Histogram
	stepResults        *prom.CounterVec
	deploymentOutcome  *prom.CounterVec
	publishResults     *prom.CounterVec
	retries            *prom.CounterVec
	retriesExhausted   *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stepDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "psci",
			Name:      "step_duration_seconds",
			Help:      "Duration of individual deployment steps",
			Buckets:   prom.DefBuckets,
		}, []string{"step"})
		pr.deploymentDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "psci",
			Name:      "deployment_duration_seconds",
			Help:      "Total deployment duration",
			Buckets:   prom.DefBuckets,
		})
		pr.stepResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "psci",
			Name:      "step_results_total",
			Help:      "Step result counts by outcome",
		}, []string{"step", "result"})
		pr.deploymentOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "psci",
			Name:      "deployment_outcomes_total",
			Help:      "Deployment outcomes by final status",
		}, []string{"outcome"})
		pr.publishResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "psci",
			Name:      "publish_results_total",
			Help:      "Published catalog items by type and success/failure",
		}, []string{"item_type", "result"})
		pr.retries = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "psci",
			Name:      "step_retries_total",
			Help:      "Total step retries (transient failures)",
		}, []string{"step"})
		pr.retriesExhausted = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "psci",
			Name:      "step_retry_exhausted_total",
			Help:      "Count of steps where retries were exhausted",
		}, []string{"step"})
		reg.MustRegister(pr.stepDuration, pr.deploymentDuration, pr.stepResults, pr.deploymentOutcome, pr.publishResults, pr.retries, pr.retriesExhausted)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveStepDuration(step string, d time.Duration) {
	if p == nil || p.stepDuration == nil {
		return
	}
	p.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveDeploymentDuration(d time.Duration) {
	if p == nil || p.deploymentDuration == nil {
		return
	}
	p.deploymentDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStepResult(step string, result ResultLabel) {
	if p == nil || p.stepResults == nil {
		return
	}
	p.stepResults.WithLabelValues(step, string(result)).Inc()
}

func (p *PrometheusRecorder) IncDeploymentOutcome(outcome string) {
	if p == nil || p.deploymentOutcome == nil {
		return
	}
	p.deploymentOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncPublishResult(itemType string, success bool) {
	if p == nil || p.publishResults == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.publishResults.WithLabelValues(itemType, res).Inc()
}

func (p *PrometheusRecorder) IncRetry(step string) {
	if p == nil || p.retries == nil {
		return
	}
	p.retries.WithLabelValues(step).Inc()
}

func (p *PrometheusRecorder) IncRetryExhausted(step string) {
	if p == nil || p.retriesExhausted == nil {
		return
	}
	p.retriesExhausted.WithLabelValues(step).Inc()
}
