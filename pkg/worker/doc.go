// Package worker provides the activity worker loop: it consumes dispatched
// activity tasks from the engine's queue and executes them, feeding results
// back into the orchestration history.
package worker
