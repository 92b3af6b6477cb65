// Package rewind is a durable orchestration engine built on deterministic
// replay. Orchestrators are plain Go functions that describe a multi-step
// business workflow; every activity they call is checkpointed in an
// append-only history before it executes, and its result is checkpointed
// after. On restart, retry, or re-execution the engine replays the recorded
// history through the orchestrator, so side effects are never repeated and
// progress is never lost.
//
// The essentials:
//
//   - An orchestrator suspends whenever it asks for an activity whose result
//     is not yet in history; workers execute the activity asynchronously and
//     the engine resumes the instance by replaying from the beginning.
//   - Orchestrators must be deterministic. Time, randomness, and all I/O go
//     through activities.
//   - Histories live in a pluggable store: in-memory, SQLite, Redis, or
//     MongoDB.
//
// A minimal workflow:
//
//	eng := rewind.NewInMemoryEngine()
//	_ = eng.RegisterActivity(rewind.ActivityDefinition{Name: "Greet", Fn: greet})
//	_ = eng.RegisterWorkflow(rewind.WorkflowDefinition{
//	    Name: "Greeting",
//	    Orchestrator: func(ctx *rewind.OrchestrationContext, input any) (any, error) {
//	        return ctx.CallActivity("Greet", input)
//	    },
//	})
//
//	runner := rewind.NewRunner(eng)
//	_ = runner.StartWorkers(context.Background(), 2)
//	defer runner.Stop()
//
//	inst, _ := rewind.Start(ctx, eng, "Greeting", "Gopher")
//
// The orderflow package contains a complete order-fulfillment workflow built
// on this engine.
package rewind
