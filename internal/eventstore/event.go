// Package eventstore persists deployment events so runs can be audited and
// replayed into history records.
package eventstore

import "time"

// Event types appended during a deployment run.
const (
	TypeDeploymentStarted   = "deployment.started"
	TypeDeploymentCompleted = "deployment.completed"
	TypeDeploymentFailed    = "deployment.failed"
	TypeStepStarted         = "step.started"
	TypeStepCompleted       = "step.completed"
	TypeStepFailed          = "step.failed"
	TypeStepSkipped         = "step.skipped"
)

// Event represents a domain event recorded during a deployment.
type Event interface {
	// ID returns the unique identifier for this event.
	ID() int64
	// DeploymentID returns the deployment this event belongs to.
	DeploymentID() string
	// Type returns the event type name.
	Type() string
	// Timestamp returns when the event occurred.
	Timestamp() time.Time
	// Payload returns the event data as bytes.
	Payload() []byte
	// Metadata returns optional event metadata.
	Metadata() map[string]string
}

// BaseEvent provides a default implementation of Event.
type BaseEvent struct {
	EventID           int64
	EventDeploymentID string
	EventType         string
	EventTimestamp    time.Time
	EventPayload      []byte
	EventMetadata     map[string]string
}

func (e *BaseEvent) ID() int64                   { return e.EventID }
func (e *BaseEvent) DeploymentID() string        { return e.EventDeploymentID }
func (e *BaseEvent) Type() string                { return e.EventType }
func (e *BaseEvent) Timestamp() time.Time        { return e.EventTimestamp }
func (e *BaseEvent) Payload() []byte             { return e.EventPayload }
func (e *BaseEvent) Metadata() map[string]string { return e.EventMetadata }
