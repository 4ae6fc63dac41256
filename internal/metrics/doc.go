// Package metrics defines the Recorder abstraction for deployment metrics and
// a Prometheus-backed implementation. Callers that do not configure metrics
// get the NoopRecorder.
package metrics
