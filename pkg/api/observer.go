package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the orchestration engine for logging and
// metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay orchestration progress.
type Observer interface {
	// OnInstanceStarted is called once when an orchestration instance is
	// first created, before the first replay.
	OnInstanceStarted(ctx context.Context, inst *Instance)

	// OnInstanceCompleted is called when an instance reaches
	// StatusCompleted.
	OnInstanceCompleted(ctx context.Context, inst *Instance)

	// OnInstanceFailed is called when an instance transitions to
	// StatusFailed, including non-determinism faults.
	OnInstanceFailed(ctx context.Context, inst *Instance, err error)

	// OnInstanceTerminated is called when an instance is externally
	// cancelled.
	OnInstanceTerminated(ctx context.Context, inst *Instance, reason string)

	// OnActivityScheduled is called after an activity.scheduled event is
	// durably appended, before the activity is dispatched.
	OnActivityScheduled(ctx context.Context, inst *Instance, activity string, seq int)

	// OnActivityCompleted is called after a worker finishes an activity
	// invocation, for both successes and failures (err != nil).
	OnActivityCompleted(ctx context.Context, inst *Instance, activity string, seq int, err error, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnInstanceStarted(ctx context.Context, inst *Instance)                   {}
func (NoopObserver) OnInstanceCompleted(ctx context.Context, inst *Instance)                 {}
func (NoopObserver) OnInstanceFailed(ctx context.Context, inst *Instance, err error)         {}
func (NoopObserver) OnInstanceTerminated(ctx context.Context, inst *Instance, reason string) {}
func (NoopObserver) OnActivityScheduled(ctx context.Context, inst *Instance, activity string, seq int) {
}
func (NoopObserver) OnActivityCompleted(ctx context.Context, inst *Instance, activity string, seq int, err error, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnInstanceStarted(ctx context.Context, inst *Instance) {
	for _, o := range c.observers {
		o.OnInstanceStarted(ctx, inst)
	}
}

func (c *CompositeObserver) OnInstanceCompleted(ctx context.Context, inst *Instance) {
	for _, o := range c.observers {
		o.OnInstanceCompleted(ctx, inst)
	}
}

func (c *CompositeObserver) OnInstanceFailed(ctx context.Context, inst *Instance, err error) {
	for _, o := range c.observers {
		o.OnInstanceFailed(ctx, inst, err)
	}
}

func (c *CompositeObserver) OnInstanceTerminated(ctx context.Context, inst *Instance, reason string) {
	for _, o := range c.observers {
		o.OnInstanceTerminated(ctx, inst, reason)
	}
}

func (c *CompositeObserver) OnActivityScheduled(ctx context.Context, inst *Instance, activity string, seq int) {
	for _, o := range c.observers {
		o.OnActivityScheduled(ctx, inst, activity, seq)
	}
}

func (c *CompositeObserver) OnActivityCompleted(ctx context.Context, inst *Instance, activity string, seq int, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnActivityCompleted(ctx, inst, activity, seq, err, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs instance / activity
// lifecycle events using the provided slog.Logger. If logger is nil,
// slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnInstanceStarted(ctx context.Context, inst *Instance) {
	o.Logger.InfoContext(ctx, "instance_started",
		slog.String("workflow", inst.Workflow),
		slog.String("instance_id", inst.ID),
	)
}

func (o *LoggingObserver) OnInstanceCompleted(ctx context.Context, inst *Instance) {
	o.Logger.InfoContext(ctx, "instance_completed",
		slog.String("workflow", inst.Workflow),
		slog.String("instance_id", inst.ID),
		slog.Any("output", inst.Output),
	)
}

func (o *LoggingObserver) OnInstanceFailed(ctx context.Context, inst *Instance, err error) {
	o.Logger.ErrorContext(ctx, "instance_failed",
		slog.String("workflow", inst.Workflow),
		slog.String("instance_id", inst.ID),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnInstanceTerminated(ctx context.Context, inst *Instance, reason string) {
	o.Logger.WarnContext(ctx, "instance_terminated",
		slog.String("workflow", inst.Workflow),
		slog.String("instance_id", inst.ID),
		slog.String("reason", reason),
	)
}

func (o *LoggingObserver) OnActivityScheduled(ctx context.Context, inst *Instance, activity string, seq int) {
	o.Logger.DebugContext(ctx, "activity_scheduled",
		slog.String("workflow", inst.Workflow),
		slog.String("instance_id", inst.ID),
		slog.String("activity", activity),
		slog.Int("seq", seq),
	)
}

func (o *LoggingObserver) OnActivityCompleted(ctx context.Context, inst *Instance, activity string, seq int, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "activity_completed",
		slog.String("workflow", inst.Workflow),
		slog.String("instance_id", inst.ID),
		slog.String("activity", activity),
		slog.Int("seq", seq),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate activity durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	instancesStarted    atomic.Int64
	instancesCompleted  atomic.Int64
	instancesFailed     atomic.Int64
	instancesTerminated atomic.Int64
	activitiesScheduled atomic.Int64
	activitiesCompleted atomic.Int64
	totalActivityTime   atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	InstancesStarted    int64
	InstancesCompleted  int64
	InstancesFailed     int64
	InstancesTerminated int64
	PendingInstances    int64

	ActivitiesScheduled int64
	ActivitiesCompleted int64
	AvgActivityDuration time.Duration
}

func (m *BasicMetrics) OnInstanceStarted(ctx context.Context, inst *Instance) {
	m.instancesStarted.Add(1)
}

func (m *BasicMetrics) OnInstanceCompleted(ctx context.Context, inst *Instance) {
	m.instancesCompleted.Add(1)
}

func (m *BasicMetrics) OnInstanceFailed(ctx context.Context, inst *Instance, err error) {
	m.instancesFailed.Add(1)
}

func (m *BasicMetrics) OnInstanceTerminated(ctx context.Context, inst *Instance, reason string) {
	m.instancesTerminated.Add(1)
}

func (m *BasicMetrics) OnActivityScheduled(ctx context.Context, inst *Instance, activity string, seq int) {
	m.activitiesScheduled.Add(1)
}

func (m *BasicMetrics) OnActivityCompleted(ctx context.Context, inst *Instance, activity string, seq int, err error, d time.Duration) {
	// Only count successful activities for average duration.
	if err == nil {
		m.activitiesCompleted.Add(1)
		m.totalActivityTime.Add(d.Nanoseconds())
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.instancesStarted.Load()
	completed := m.instancesCompleted.Load()
	failed := m.instancesFailed.Load()
	terminated := m.instancesTerminated.Load()
	acts := m.activitiesCompleted.Load()
	totalNs := m.totalActivityTime.Load()

	var avg time.Duration
	if acts > 0 {
		avg = time.Duration(totalNs / acts)
	}

	return BasicMetricsSnapshot{
		InstancesStarted:    started,
		InstancesCompleted:  completed,
		InstancesFailed:     failed,
		InstancesTerminated: terminated,
		PendingInstances:    started - completed - failed - terminated,
		ActivitiesScheduled: m.activitiesScheduled.Load(),
		ActivitiesCompleted: acts,
		AvgActivityDuration: avg,
	}
}
