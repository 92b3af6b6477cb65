package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/petrijr/rewind/pkg/api"
)

var (
	// ErrInstanceExists and ErrInstanceNotFound are the api package's
	// sentinels; stores return the same values so errors.Is works across
	// layers.
	ErrInstanceExists   = api.ErrInstanceExists
	ErrInstanceNotFound = api.ErrInstanceNotFound

	// ErrHistoryConflict is returned when an append's expected version does
	// not match the stored history length. The caller must reload the
	// history and retry the resume cycle; the store never overwrites.
	ErrHistoryConflict = errors.New("history version conflict")
)

// InstanceRecord is the stored identity of an orchestration instance. The
// append-only history is the authoritative state; Status and Output are a
// derived cache maintained at append time so that listing by status does
// not require loading every history.
type InstanceRecord struct {
	ID        string
	Workflow  string
	Input     any
	CreatedAt time.Time

	Status api.Status
	Output any
	Detail string
}

// InstanceFilter selects instances from the store. Empty fields mean
// "no filter".
type InstanceFilter struct {
	Workflow string
	Status   api.Status
}

// HistoryStore is the durable checkpoint log of the engine: an append-only,
// totally ordered event history per instance.
//
// Append must be atomic and version-checked: expectedVersion is the history
// length the caller loaded, and a mismatch fails with ErrHistoryConflict
// without writing anything. Load returns the full ordered history and is the
// only way the engine reconstructs state.
type HistoryStore interface {
	CreateInstance(ctx context.Context, rec InstanceRecord) error
	Append(ctx context.Context, instanceID string, expectedVersion int, events []api.HistoryEvent) error
	Load(ctx context.Context, instanceID string) ([]api.HistoryEvent, error)
	GetInstance(ctx context.Context, instanceID string) (InstanceRecord, error)
	ListInstances(ctx context.Context, filter InstanceFilter) ([]InstanceRecord, error)
}

func unixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// applyDerived folds freshly appended events into the record's cached
// status/output. Shared by all store implementations.
func applyDerived(rec *InstanceRecord, events []api.HistoryEvent) {
	for _, ev := range events {
		switch ev.Type {
		case api.EventOrchestratorStarted:
			rec.Status = api.StatusRunning
		case api.EventOrchestratorCompleted:
			rec.Status = api.StatusCompleted
			rec.Output = ev.Output
		case api.EventOrchestratorFailed:
			rec.Status = api.StatusFailed
			rec.Detail = ev.Detail
		case api.EventOrchestratorTerminated:
			rec.Status = api.StatusTerminated
			rec.Detail = ev.Detail
		}
	}
}
