package agent

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/conclave/pkg/utils/logging"
)

// CreatePlan classifies the task by keywords, consults the plan policy if one
// is set, and lays out a fixed pipeline: memory first, synthesis last.
// Dependencies are recorded but do not gate execution.
func (c *Coordinator) CreatePlan(ctx context.Context, task string) (*model.CoordinatorPlan, error) {
	lower := strings.ToLower(task)
	needSearch := containsAny(lower, "find", "search")
	needAnalysis := containsAny(lower, "analyze", "analyse", "explain", "compare")

	if c.policy != nil {
		scope := c.Scope()
		if scope == nil {
			scope = &model.Scope{}
		}
		agents, err := c.policy.Agents(ctx, task, scope)
		if err != nil {
			logging.From(ctx).Warn("plan policy failed, using keyword plan", "error", err)
		}
		for _, t := range agents {
			switch t {
			case model.AgentTypeSearch:
				needSearch = true
			case model.AgentTypeAnalysis:
				needAnalysis = true
			}
		}
	}

	plan := buildPlan(task, needSearch, needAnalysis)
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

func buildPlan(task string, needSearch, needAnalysis bool) *model.CoordinatorPlan {
	tasks := []model.PlannedTask{
		{
			Agent:    model.AgentTypeMemory,
			Task:     "retrieve relevant memories for: " + task,
			Priority: 1,
		},
	}
	prior := []model.AgentType{model.AgentTypeMemory}

	if needSearch {
		tasks = append(tasks, model.PlannedTask{
			Agent:        model.AgentTypeSearch,
			Task:         task,
			Priority:     2,
			Dependencies: []model.AgentType{model.AgentTypeMemory},
		})
		prior = append(prior, model.AgentTypeSearch)
	}

	if needAnalysis {
		tasks = append(tasks, model.PlannedTask{
			Agent:        model.AgentTypeAnalysis,
			Task:         task,
			Priority:     3,
			Dependencies: append([]model.AgentType(nil), prior...),
		})
		prior = append(prior, model.AgentTypeAnalysis)
	}

	tasks = append(tasks, model.PlannedTask{
		Agent:        model.AgentTypeSynthesis,
		Task:         "synthesize results for: " + task,
		Priority:     len(tasks) + 1,
		Dependencies: prior,
	})

	agents := make([]model.AgentType, 0, len(tasks))
	names := make([]string, 0, len(tasks))
	for _, t := range tasks {
		agents = append(agents, t.Agent)
		names = append(names, string(t.Agent))
	}

	return &model.CoordinatorPlan{
		Strategy:       "sequential: " + strings.Join(names, " -> "),
		AgentsInvolved: agents,
		EstimatedSteps: len(tasks),
		TaskBreakdown:  tasks,
		CreatedAt:      time.Now(),
	}
}
