// Package api defines the public types of the rewind orchestration engine:
// history events, instance state, the OrchestrationContext replay cursor,
// the error taxonomy, and the Observer callbacks.
//
// Most users should import the root rewind package, which re-exports
// everything here.
package api
