// Package agents contains the processing steps of the research pipeline.
// Each agent reads the conversation state and emits a partial update; it
// never mutates state directly and never lets a collaborator failure
// escape as a panic.
package agents

import (
	"context"
	"fmt"

	"github.com/firmlens/orchestrator/internal/state"
)

// Agent is the common step contract: execute against the current state
// and return the fields that changed.
type Agent interface {
	Name() string
	Execute(ctx context.Context, st *state.ConversationState) (state.Update, error)
}

// Registry maps agent names to implementations. A lookup miss is a fatal
// configuration error, not a runtime condition to route around.
type Registry struct {
	agents map[string]Agent
}

// NewRegistry builds a registry from the given agents.
func NewRegistry(agents ...Agent) *Registry {
	r := &Registry{agents: make(map[string]Agent, len(agents))}
	for _, a := range agents {
		r.agents[a.Name()] = a
	}
	return r
}

// Get returns the agent registered under name.
func (r *Registry) Get(name string) (Agent, error) {
	a, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("no agent registered for %q", name)
	}
	return a, nil
}

// Names lists the registered agent names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.agents))
	for n := range r.agents {
		names = append(names, n)
	}
	return names
}
