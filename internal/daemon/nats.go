package daemon

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/ObjectivityLtd/PSCI/internal/config"
	"github.com/ObjectivityLtd/PSCI/internal/deploy"
	"github.com/ObjectivityLtd/PSCI/internal/foundation/errors"
	"github.com/ObjectivityLtd/PSCI/internal/logfields"
)

// DeploymentEvent is the message published to NATS after each deployment.
type DeploymentEvent struct {
	DeploymentID string    `json:"deployment_id"`
	Environment  string    `json:"environment"`
	Status       string    `json:"status"`
	Trigger      string    `json:"trigger"`
	DryRun       bool      `json:"dry_run"`
	Warnings     []string  `json:"warnings,omitempty"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// EventPublisher publishes deployment outcomes to a NATS JetStream subject.
type EventPublisher struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
}

// NewEventPublisher connects to NATS. Returns nil when no URL is configured.
func NewEventPublisher(cfg config.NATSConfig) (*EventPublisher, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	subject := cfg.Subject
	if subject == "" {
		subject = "psci.deployments"
	}

	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, errors.DaemonError("failed to connect to NATS").
			WithCause(err).
			WithContext("url", cfg.URL).
			Build()
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, errors.DaemonError("failed to create JetStream context").
			WithCause(err).
			Build()
	}

	slog.Info("NATS event publisher initialized",
		logfields.URL(cfg.URL),
		slog.String("subject", subject))
	return &EventPublisher{conn: conn, js: js, subject: subject}, nil
}

// Publish sends a deployment outcome. Publish failures are logged, not fatal.
func (p *EventPublisher) Publish(job Job, result *deploy.Result, runErr error) {
	if p == nil {
		return
	}

	event := DeploymentEvent{
		Environment: job.Environment,
		Trigger:     string(job.Trigger),
		DryRun:      job.DryRun,
		Timestamp:   time.Now(),
	}
	if result != nil {
		event.DeploymentID = result.DeploymentID
		event.Status = result.Status
		event.Warnings = result.Warnings()
	}
	if runErr != nil {
		event.Status = "failed"
		event.Error = runErr.Error()
	}

	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal deployment event", logfields.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := p.js.Publish(ctx, p.subject, data); err != nil {
		slog.Error("Failed to publish deployment event",
			slog.String("subject", p.subject),
			logfields.Error(err))
		return
	}

	slog.Debug("Published deployment event",
		logfields.DeploymentID(event.DeploymentID),
		logfields.Environment(event.Environment),
		slog.String("status", event.Status))
}

// Close closes the NATS connection.
func (p *EventPublisher) Close() {
	if p != nil && p.conn != nil {
		p.conn.Close()
	}
}
