package eventstore

import (
	"context"
	"time"
)

// Store is the persistence boundary for deployment history. The deployer
// appends lifecycle events; the history command folds them back into
// deployment records via ProjectDeployment and ProjectRange.
type Store interface {
	Append(ctx context.Context, deploymentID, eventType string, payload []byte, metadata map[string]string) error
	GetByDeploymentID(ctx context.Context, deploymentID string) ([]Event, error)
	GetRange(ctx context.Context, start, end time.Time) ([]Event, error)
	Close() error
}
