package eventstore

import (
	"context"
	"sort"
	"time"
)

// StepRecord is one executed step inside a deployment history record.
type StepRecord struct {
	Name       string    `json:"name"`
	Status     string    `json:"status"` // completed, failed, skipped
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Error      string    `json:"error,omitempty"`
}

// DeploymentRecord is the folded view of one deployment's event stream.
type DeploymentRecord struct {
	ID          string       `json:"id"`
	Environment string       `json:"environment"`
	Status      string       `json:"status"` // running, completed, failed
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	Steps       []StepRecord `json:"steps"`
	Error       string       `json:"error,omitempty"`
}

// ProjectDeployment folds the event stream of one deployment into a record.
func ProjectDeployment(ctx context.Context, store Store, deploymentID string) (*DeploymentRecord, error) {
	events, err := store.GetByDeploymentID(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	rec := foldEvents(deploymentID, events)
	return &rec, nil
}

// ProjectRange folds all deployments that emitted events inside the time
// range, newest first.
func ProjectRange(ctx context.Context, store Store, start, end time.Time) ([]DeploymentRecord, error) {
	events, err := store.GetRange(ctx, start, end)
	if err != nil {
		return nil, err
	}

	byDeployment := make(map[string][]Event)
	for _, e := range events {
		byDeployment[e.DeploymentID()] = append(byDeployment[e.DeploymentID()], e)
	}

	records := make([]DeploymentRecord, 0, len(byDeployment))
	for id, evs := range byDeployment {
		records = append(records, foldEvents(id, evs))
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})
	return records, nil
}

func foldEvents(deploymentID string, events []Event) DeploymentRecord {
	rec := DeploymentRecord{ID: deploymentID, Status: "running"}
	open := make(map[string]int) // step name -> index of open StepRecord

	for _, e := range events {
		meta := e.Metadata()
		switch e.Type() {
		case TypeDeploymentStarted:
			rec.StartedAt = e.Timestamp()
			rec.Environment = meta["environment"]
		case TypeDeploymentCompleted:
			rec.Status = "completed"
			rec.FinishedAt = e.Timestamp()
		case TypeDeploymentFailed:
			rec.Status = "failed"
			rec.FinishedAt = e.Timestamp()
			rec.Error = meta["error"]
		case TypeStepStarted:
			open[meta["step"]] = len(rec.Steps)
			rec.Steps = append(rec.Steps, StepRecord{
				Name:      meta["step"],
				Status:    "running",
				StartedAt: e.Timestamp(),
			})
		case TypeStepCompleted, TypeStepFailed, TypeStepSkipped:
			idx, ok := open[meta["step"]]
			if !ok {
				// Step event without a start; record it standalone.
				idx = len(rec.Steps)
				rec.Steps = append(rec.Steps, StepRecord{Name: meta["step"], StartedAt: e.Timestamp()})
			}
			rec.Steps[idx].FinishedAt = e.Timestamp()
			switch e.Type() {
			case TypeStepCompleted:
				rec.Steps[idx].Status = "completed"
			case TypeStepSkipped:
				rec.Steps[idx].Status = "skipped"
			default:
				rec.Steps[idx].Status = "failed"
				rec.Steps[idx].Error = meta["error"]
			}
			delete(open, meta["step"])
		}
	}
	return rec
}
