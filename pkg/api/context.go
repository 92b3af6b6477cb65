package api

// OrchestrationContext is the orchestrator's only window onto the outside
// world. It replays recorded history: a call whose result is already in
// history returns that result synchronously with no side effect; a call
// without a result suspends the orchestrator via *AwaitError and records a
// scheduling decision for the engine to dispatch.
//
// The context is rebuilt from scratch on every Resume; orchestrators must
// not stash state across invocations.
type OrchestrationContext struct {
	instanceID string
	history    []HistoryEvent

	// scheduled and results index the history by sequence number.
	scheduled map[int]HistoryEvent
	results   map[int]HistoryEvent

	nextSeq   int
	decisions []HistoryEvent
	ndErr     *NonDeterminismError
}

// NewOrchestrationContext builds a replay cursor over the given history.
func NewOrchestrationContext(instanceID string, history []HistoryEvent) *OrchestrationContext {
	c := &OrchestrationContext{
		instanceID: instanceID,
		history:    history,
		scheduled:  make(map[int]HistoryEvent),
		results:    make(map[int]HistoryEvent),
	}
	for _, ev := range history {
		switch ev.Type {
		case EventActivityScheduled:
			c.scheduled[ev.Seq] = ev
		case EventActivityCompleted, EventActivityFailed:
			c.results[ev.Seq] = ev
		}
	}
	return c
}

// InstanceID returns the id of the instance being replayed.
func (c *OrchestrationContext) InstanceID() string { return c.instanceID }

// ActivityFuture is the pending or recorded outcome of one scheduled
// activity call. Scheduling several futures before calling Get allows
// multiple activities to be outstanding at once.
type ActivityFuture struct {
	ctx      *OrchestrationContext
	activity string
	seq      int
	resolved bool
	result   any
	err      error
}

// ScheduleActivity assigns the next sequence number to an activity call and
// resolves it against history. If the call was never scheduled before, a
// scheduling decision is recorded; the engine appends it durably before
// dispatching the activity.
func (c *OrchestrationContext) ScheduleActivity(name string, input any) *ActivityFuture {
	seq := c.nextSeq
	c.nextSeq++

	f := &ActivityFuture{ctx: c, activity: name, seq: seq}

	rec, wasScheduled := c.scheduled[seq]
	if wasScheduled {
		if rec.Activity != name {
			// Replay diverged from history. Remember the first divergence;
			// everything after it is meaningless.
			if c.ndErr == nil {
				c.ndErr = &NonDeterminismError{Seq: seq, Recorded: rec.Activity, Replayed: name}
			}
			f.resolved = true
			f.err = c.ndErr
			return f
		}
	} else {
		c.decisions = append(c.decisions, NewActivityScheduled(seq, name, input))
	}

	if res, ok := c.results[seq]; ok {
		f.resolved = true
		switch res.Type {
		case EventActivityCompleted:
			f.result = res.Result
		case EventActivityFailed:
			f.err = &ActivityError{Activity: name, Seq: seq, Reason: res.Detail}
		}
	}
	return f
}

// Get returns the recorded result of the call, an *ActivityError if the call
// failed, or an *AwaitError if no result has been recorded yet.
func (f *ActivityFuture) Get() (any, error) {
	if f.ctx.ndErr != nil {
		return nil, f.ctx.ndErr
	}
	if !f.resolved {
		return nil, &AwaitError{Activity: f.activity, Seq: f.seq}
	}
	return f.result, f.err
}

// CallActivity schedules an activity and immediately waits for its result.
// This is the sequential form; use ScheduleActivity for fan-out.
func (c *OrchestrationContext) CallActivity(name string, input any) (any, error) {
	return c.ScheduleActivity(name, input).Get()
}

// Decisions returns the activity.scheduled events this replay produced that
// are not yet in history, in scheduling order.
func (c *OrchestrationContext) Decisions() []HistoryEvent { return c.decisions }

// NonDeterminism returns the first recorded replay divergence, if any.
func (c *OrchestrationContext) NonDeterminism() *NonDeterminismError { return c.ndErr }

// PendingActivities returns the scheduled calls that have no recorded
// result, including ones just decided by this replay. The engine uses it to
// (re-)dispatch work after a suspension.
func (c *OrchestrationContext) PendingActivities() []HistoryEvent {
	var pending []HistoryEvent
	for _, ev := range c.history {
		if ev.Type != EventActivityScheduled {
			continue
		}
		if _, done := c.results[ev.Seq]; !done {
			pending = append(pending, ev)
		}
	}
	pending = append(pending, c.decisions...)
	return pending
}
