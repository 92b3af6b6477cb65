package engine

import (
	"fmt"
	"sync"

	"github.com/petrijr/rewind/pkg/api"
)

// registry maps workflow type names to orchestrators and activity names to
// handlers. Registration happens once at startup; an unknown name at
// dispatch time is a configuration error and fails fast.
type registry struct {
	mu         sync.RWMutex
	workflows  map[string]api.WorkflowDefinition
	activities map[string]api.ActivityDefinition
}

func newRegistry() *registry {
	return &registry{
		workflows:  make(map[string]api.WorkflowDefinition),
		activities: make(map[string]api.ActivityDefinition),
	}
}

func (r *registry) RegisterWorkflow(def api.WorkflowDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("workflow name is required")
	}
	if def.Orchestrator == nil {
		return fmt.Errorf("workflow %q has no orchestrator", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workflows[def.Name]; exists {
		return fmt.Errorf("workflow %q already registered", def.Name)
	}
	r.workflows[def.Name] = def
	return nil
}

func (r *registry) RegisterActivity(def api.ActivityDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("activity name is required")
	}
	if def.Fn == nil {
		return fmt.Errorf("activity %q has nil handler", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.activities[def.Name]; exists {
		return fmt.Errorf("activity %q already registered", def.Name)
	}
	r.activities[def.Name] = def
	return nil
}

func (r *registry) Workflow(name string) (api.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.workflows[name]
	if !ok {
		return api.WorkflowDefinition{}, fmt.Errorf("unknown workflow: %s", name)
	}
	return def, nil
}

func (r *registry) Activity(name string) (api.ActivityDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.activities[name]
	if !ok {
		return api.ActivityDefinition{}, fmt.Errorf("unknown activity: %s", name)
	}
	return def, nil
}
