package rewind

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/rewind/internal/engine"
	"github.com/petrijr/rewind/internal/persistence"
	"github.com/petrijr/rewind/internal/taskqueue"
	"github.com/petrijr/rewind/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	WorkflowDefinition   = api.WorkflowDefinition
	ActivityDefinition   = api.ActivityDefinition
	OrchestratorFunc     = api.OrchestratorFunc
	ActivityFunc         = api.ActivityFunc
	OrchestrationContext = api.OrchestrationContext
	Instance             = api.Instance
	InstanceListOptions  = api.InstanceListOptions
	Status               = api.Status
	StatusReport         = api.StatusReport
	HistoryEvent         = api.HistoryEvent
	EventType            = api.EventType
	RetryPolicy          = api.RetryPolicy
	ActivityError        = api.ActivityError
	NonDeterminismError  = api.NonDeterminismError
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	Transient            = api.Transient
	Permanent            = api.Permanent
	IsPermanent          = api.IsPermanent
	IsAwaitError         = api.IsAwaitError
	DeriveStatus         = api.DeriveStatus

	ErrInstanceExists   = api.ErrInstanceExists
	ErrInstanceNotFound = api.ErrInstanceNotFound
)

// Re-export status and event type values for convenience.

const (
	StatusRunning    = api.StatusRunning
	StatusCompleted  = api.StatusCompleted
	StatusFailed     = api.StatusFailed
	StatusTerminated = api.StatusTerminated

	EventOrchestratorStarted    = api.EventOrchestratorStarted
	EventActivityScheduled      = api.EventActivityScheduled
	EventActivityCompleted      = api.EventActivityCompleted
	EventActivityFailed         = api.EventActivityFailed
	EventOrchestratorCompleted  = api.EventOrchestratorCompleted
	EventOrchestratorFailed     = api.EventOrchestratorFailed
	EventOrchestratorTerminated = api.EventOrchestratorTerminated
)

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewInMemoryEngine returns an Engine backed entirely by in-memory history
// storage and an in-memory task queue.
func NewInMemoryEngine() Engine {
	return NewInMemoryEngineWithObserver(nil)
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the given
// Observer.
func NewInMemoryEngineWithObserver(obs Observer) Engine {
	return engine.NewEngineWithConfig(engine.Config{
		Store:    persistence.NewInMemoryStore(),
		Observer: obs,
	})
}

// NewSQLiteEngine returns an Engine that persists instance histories and
// the activity task queue in a SQLite database.
func NewSQLiteEngine(db *sql.DB) (Engine, error) {
	return NewSQLiteEngineWithObserver(db, nil)
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the given
// Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, obs Observer) (Engine, error) {
	store, err := persistence.NewSQLiteHistoryStore(db)
	if err != nil {
		return nil, err
	}
	queue, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}
	return engine.NewEngineWithConfig(engine.Config{
		Store:    store,
		Queue:    queue,
		Observer: obs,
	}), nil
}

// NewRedisEngine returns an Engine that persists instance histories in
// Redis. Dispatch uses an in-memory queue; pair with SQLite if the queue
// itself must survive restarts.
func NewRedisEngine(client *redis.Client) Engine {
	return NewRedisEngineWithObserver(client, nil)
}

// NewRedisEngineWithObserver returns a Redis-backed Engine with the given
// Observer.
func NewRedisEngineWithObserver(client *redis.Client, obs Observer) Engine {
	return engine.NewEngineWithConfig(engine.Config{
		Store:    persistence.NewRedisHistoryStore(client, "rewind:"),
		Observer: obs,
	})
}

// NewMongoEngine returns an Engine that persists instance histories in
// MongoDB.
func NewMongoEngine(client *mongo.Client, dbName string) Engine {
	return NewMongoEngineWithObserver(client, dbName, nil)
}

// NewMongoEngineWithObserver returns a Mongo-backed Engine with the given
// Observer.
func NewMongoEngineWithObserver(client *mongo.Client, dbName string, obs Observer) Engine {
	return engine.NewEngineWithConfig(engine.Config{
		Store:    persistence.NewMongoHistoryStore(client, dbName, ""),
		Observer: obs,
	})
}

// Convenience helpers that just forward to the underlying Engine.

// Start creates a new orchestration instance and drives it until its first
// suspension point or terminal state.
func Start(ctx context.Context, eng Engine, workflow string, input any) (*Instance, error) {
	return eng.CreateInstance(ctx, "", workflow, input)
}

// StartWithID is Start with a caller-assigned instance id.
func StartWithID(ctx context.Context, eng Engine, id, workflow string, input any) (*Instance, error) {
	return eng.CreateInstance(ctx, id, workflow, input)
}

// Resume replays an instance against its recorded history.
func Resume(ctx context.Context, eng Engine, id string) (*Instance, error) {
	return eng.Resume(ctx, id)
}

// GetStatus returns the status projection of an instance.
func GetStatus(ctx context.Context, eng Engine, id string) (StatusReport, error) {
	return eng.GetStatus(ctx, id)
}

// GetInstance fetches an instance by ID.
func GetInstance(ctx context.Context, eng Engine, id string) (*Instance, error) {
	return eng.GetInstance(ctx, id)
}

// ListInstances lists orchestration instances according to the given options.
func ListInstances(ctx context.Context, eng Engine, opts InstanceListOptions) ([]*Instance, error) {
	return eng.ListInstances(ctx, opts)
}

// Terminate externally cancels an instance.
func Terminate(ctx context.Context, eng Engine, id, reason string) (*Instance, error) {
	return eng.Terminate(ctx, id, reason)
}

// RecoverPendingInstances delegates to eng.RecoverPendingInstances.
//
// It is typically called on process startup before starting any workers:
//
//	count, err := rewind.RecoverPendingInstances(ctx, engine)
func RecoverPendingInstances(ctx context.Context, eng Engine) (int, error) {
	return eng.RecoverPendingInstances(ctx)
}
