package model

import (
	"slices"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// PlannedTask is one entry of a plan's task breakdown
type PlannedTask struct {
	Agent    AgentType `json:"agent"`
	Task     string    `json:"task"`
	Priority int       `json:"priority"`
	// Dependencies are recorded for display; the executor runs tasks in list order.
	Dependencies []AgentType `json:"dependencies,omitempty"`
}

// CoordinatorPlan is built once per coordination run and not modified afterwards
type CoordinatorPlan struct {
	Strategy       string        `json:"strategy"`
	AgentsInvolved []AgentType   `json:"agents_involved"`
	EstimatedSteps int           `json:"estimated_steps"`
	TaskBreakdown  []PlannedTask `json:"task_breakdown"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Involves reports whether the plan addresses the given agent
func (p *CoordinatorPlan) Involves(t AgentType) bool {
	return slices.Contains(p.AgentsInvolved, t)
}

// Validate checks that every dependency refers to an agent scheduled earlier
func (p *CoordinatorPlan) Validate() error {
	seen := make([]AgentType, 0, len(p.TaskBreakdown))
	for i, task := range p.TaskBreakdown {
		for _, dep := range task.Dependencies {
			if !slices.Contains(seen, dep) {
				return goerr.New("dependency is not scheduled before task",
					goerr.V("index", i),
					goerr.V("agent", task.Agent),
					goerr.V("dependency", dep))
			}
		}
		seen = append(seen, task.Agent)
	}
	return nil
}

// SynthesisEntry is one agent's contribution handed to the synthesis agent
type SynthesisEntry struct {
	Agent   AgentType `json:"agent"`
	Type    string    `json:"type"`
	Data    any       `json:"data"`
	Summary string    `json:"summary"`
}
