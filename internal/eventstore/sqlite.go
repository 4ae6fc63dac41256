package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ObjectivityLtd/PSCI/internal/foundation/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS deployment_events (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	deployment_id TEXT NOT NULL,
	type          TEXT NOT NULL,
	occurred_at   INTEGER NOT NULL,
	payload       BLOB,
	metadata      TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_deployment ON deployment_events(deployment_id, seq);
CREATE INDEX IF NOT EXISTS idx_events_occurred ON deployment_events(occurred_at);
`

// SQLiteStore keeps the deployment history in a single sqlite database. The
// modernc driver is pure Go, so the history file needs no cgo toolchain.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the history database at path, creating the schema on
// first use. ":memory:" gives an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.NewError(errors.CategoryEventStore, "failed to open history database").
			WithCause(err).
			WithContext("path", path).
			Build()
	}
	// sqlite allows one writer; a single pooled connection also keeps
	// ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.NewError(errors.CategoryEventStore, "failed to create history schema").
			WithCause(err).
			WithContext("path", path).
			Build()
	}
	return &SQLiteStore{db: db}, nil
}

// Append records one lifecycle event for a deployment.
func (s *SQLiteStore) Append(ctx context.Context, deploymentID, eventType string, payload []byte, metadata map[string]string) error {
	var meta []byte
	if len(metadata) > 0 {
		var err error
		meta, err = json.Marshal(metadata)
		if err != nil {
			return errors.NewError(errors.CategoryEventStore, "failed to encode event metadata").
				WithCause(err).
				Build()
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deployment_events (deployment_id, type, occurred_at, payload, metadata)
		 VALUES (?, ?, ?, ?, ?)`,
		deploymentID, eventType, time.Now().UnixNano(), payload, meta)
	if err != nil {
		return errors.NewError(errors.CategoryEventStore, "failed to record event").
			WithCause(err).
			WithContext("deployment_id", deploymentID).
			WithContext("type", eventType).
			Build()
	}
	return nil
}

// GetByDeploymentID returns one deployment's events in append order, ready
// for folding into a DeploymentRecord.
func (s *SQLiteStore) GetByDeploymentID(ctx context.Context, deploymentID string) ([]Event, error) {
	return s.queryEvents(ctx,
		`SELECT seq, deployment_id, type, occurred_at, payload, metadata
		 FROM deployment_events WHERE deployment_id = ? ORDER BY seq`,
		deploymentID)
}

// GetRange returns all events recorded between start and end, oldest first.
func (s *SQLiteStore) GetRange(ctx context.Context, start, end time.Time) ([]Event, error) {
	return s.queryEvents(ctx,
		`SELECT seq, deployment_id, type, occurred_at, payload, metadata
		 FROM deployment_events WHERE occurred_at BETWEEN ? AND ? ORDER BY seq`,
		start.UnixNano(), end.UnixNano())
}

func (s *SQLiteStore) queryEvents(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewError(errors.CategoryEventStore, "failed to query events").
			WithCause(err).
			Build()
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		var (
			e    BaseEvent
			ns   int64
			meta []byte
		)
		if err := rows.Scan(&e.EventID, &e.EventDeploymentID, &e.EventType, &ns, &e.EventPayload, &meta); err != nil {
			return nil, errors.NewError(errors.CategoryEventStore, "failed to scan event row").
				WithCause(err).
				Build()
		}
		e.EventTimestamp = time.Unix(0, ns)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.EventMetadata); err != nil {
				return nil, errors.NewError(errors.CategoryEventStore, "failed to decode event metadata").
					WithCause(err).
					Build()
			}
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewError(errors.CategoryEventStore, "failed to read events").
			WithCause(err).
			Build()
	}
	return events, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
