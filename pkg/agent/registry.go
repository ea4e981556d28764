package agent

import (
	"sync"

	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// Factory creates an agent from shared dependencies
type Factory func(deps *Dependencies) (Agent, error)

// Registry maps agent types to factories
type Registry struct {
	mu        sync.RWMutex
	factories map[model.AgentType]Factory
}

// NewRegistry creates a registry with all built-in agent variants
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[model.AgentType]Factory)}

	r.Register(model.AgentTypeSearch, func(deps *Dependencies) (Agent, error) {
		return NewSearchAgent(deps)
	})
	r.Register(model.AgentTypeAnalysis, func(deps *Dependencies) (Agent, error) {
		return NewAnalysisAgent(deps)
	})
	r.Register(model.AgentTypeMemory, func(deps *Dependencies) (Agent, error) {
		return NewMemoryAgent(deps)
	})
	r.Register(model.AgentTypeSynthesis, func(deps *Dependencies) (Agent, error) {
		return NewSynthesisAgent(deps)
	})
	r.Register(model.AgentTypeCoordinator, func(deps *Dependencies) (Agent, error) {
		return NewCoordinator(deps, WithRegistry(r)), nil
	})

	return r
}

// Register sets or replaces the factory of an agent type
func (r *Registry) Register(t model.AgentType, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[t] = f
}

// Create builds an agent of the given type
func (r *Registry) Create(t model.AgentType, deps *Dependencies) (Agent, error) {
	r.mu.RLock()
	f, ok := r.factories[t]
	r.mu.RUnlock()

	if !ok {
		return nil, goerr.Wrap(ErrUnknownAgentType, "no factory registered", goerr.V("type", t))
	}

	a, err := f(deps)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create agent", goerr.V("type", t))
	}
	return a, nil
}
