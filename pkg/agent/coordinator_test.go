package agent_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/m-mizutani/conclave/pkg/agent"
	"github.com/m-mizutani/conclave/pkg/interfaces"
	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/gt"
)

// panicAgent stands in for a specialist whose collaborator blows up
type panicAgent struct {
	agentType model.AgentType
}

func (a *panicAgent) Type() model.AgentType     { return a.agentType }
func (a *panicAgent) Status() model.AgentStatus { return model.AgentStatusIdle }
func (a *panicAgent) Initialize(ctx context.Context, scope *model.Scope) error {
	return nil
}
func (a *panicAgent) Execute(ctx context.Context, input *model.TaskInput) *model.AgentOutput {
	panic("connection reset by peer")
}
func (a *panicAgent) HandleMessage(ctx context.Context, msg *model.AgentMessage) *model.AgentMessage {
	panic("connection reset by peer")
}
func (a *panicAgent) Cleanup(ctx context.Context) {}

type staticPolicy []model.AgentType

func (p staticPolicy) Agents(ctx context.Context, task string, scope *model.Scope) ([]model.AgentType, error) {
	return p, nil
}

func newCoordinator(t *testing.T, env *testEnv, scope *model.Scope, opts ...agent.CoordinatorOption) *agent.Coordinator {
	t.Helper()
	c := agent.NewCoordinator(env.deps, opts...)
	gt.NoError(t, c.Initialize(context.Background(), scope))
	return c
}

func TestCreatePlan(t *testing.T) {
	env := newTestEnv(t)
	c := agent.NewCoordinator(env.deps)
	ctx := context.Background()

	testCases := []struct {
		task   string
		agents []model.AgentType
	}{
		{"find the safety diagram", []model.AgentType{model.AgentTypeMemory, model.AgentTypeSearch, model.AgentTypeSynthesis}},
		{"Search for pump manuals", []model.AgentType{model.AgentTypeMemory, model.AgentTypeSearch, model.AgentTypeSynthesis}},
		{"explain the incident", []model.AgentType{model.AgentTypeMemory, model.AgentTypeAnalysis, model.AgentTypeSynthesis}},
		{"find and compare floor plans", []model.AgentType{model.AgentTypeMemory, model.AgentTypeSearch, model.AgentTypeAnalysis, model.AgentTypeSynthesis}},
		{"hello there", []model.AgentType{model.AgentTypeMemory, model.AgentTypeSynthesis}},
	}

	for _, tc := range testCases {
		t.Run(tc.task, func(t *testing.T) {
			plan, err := c.CreatePlan(ctx, tc.task)
			gt.NoError(t, err)
			gt.Equal(t, plan.AgentsInvolved, tc.agents)
			gt.Equal(t, plan.EstimatedSteps, len(tc.agents))
			gt.Equal(t, plan.TaskBreakdown[0].Agent, model.AgentTypeMemory)
			gt.Equal(t, plan.TaskBreakdown[len(plan.TaskBreakdown)-1].Agent, model.AgentTypeSynthesis)
			gt.NoError(t, plan.Validate())
		})
	}

	t.Run("policy adds agents", func(t *testing.T) {
		c := agent.NewCoordinator(env.deps, agent.WithPlanPolicy(staticPolicy{model.AgentTypeAnalysis, model.AgentTypeMemory}))
		plan, err := c.CreatePlan(ctx, "hello there")
		gt.NoError(t, err)
		gt.Equal(t, plan.AgentsInvolved, []model.AgentType{model.AgentTypeMemory, model.AgentTypeAnalysis, model.AgentTypeSynthesis})
	})
}

func TestCoordinatorEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addItem(t, "P1", "safety_diagram_floor1.png", "image/png", "safety diagram floor 1", []byte("1"), "safety")
	env.addItem(t, "P1", "safety_diagram_floor2.png", "image/png", "safety diagram floor 2", []byte("2"), "safety")

	scope := testScope("P1")
	scope.UserQuery = "find the safety diagram"
	c := newCoordinator(t, env, scope)
	defer c.Cleanup(ctx)

	out := c.Execute(ctx, &model.TaskInput{Task: "find the safety diagram"})
	gt.True(t, out.Success)
	gt.Equal(t, c.Status(), model.AgentStatusCompleted)

	result := out.Result.(*model.CoordinationResult)
	gt.Equal(t, result.ConversationID, scope.ConversationID)
	gt.Equal(t, result.Plan.AgentsInvolved, []model.AgentType{model.AgentTypeMemory, model.AgentTypeSearch, model.AgentTypeSynthesis})

	for typ := range result.Results {
		gt.True(t, result.Plan.Involves(typ))
		gt.NotEqual(t, typ, model.AgentTypeSynthesis)
	}
	gt.Equal(t, len(result.Results), 2)

	search := result.Results[model.AgentTypeSearch]
	gt.True(t, search.Success)
	gt.Equal(t, search.Result.(*model.SearchResult).Found, 2)

	gt.NotEqual(t, result.Synthesis, "")
	gt.S(t, result.Synthesis).Contains("safety_diagram_floor1.png")
	gt.S(t, result.Synthesis).Contains("safety_diagram_floor2.png")
	gt.Equal(t, result.StepsUsed, 3)

	t.Run("derived memories are stored", func(t *testing.T) {
		memories, err := env.repo.ListMemoriesCreatedBefore(ctx, "P1", time.Now().Add(time.Hour))
		gt.NoError(t, err)
		gt.A(t, memories).Length(2)

		var types []model.MemoryType
		for _, m := range memories {
			types = append(types, m.Type)
		}
		gt.True(t, slices.Contains(types, model.MemoryTypePattern))
		gt.True(t, slices.Contains(types, model.MemoryTypeFact))
	})

	t.Run("next run sees the memory context", func(t *testing.T) {
		out := c.Execute(ctx, &model.TaskInput{Task: "find the safety diagram"})
		gt.True(t, out.Success)
		result := out.Result.(*model.CoordinationResult)
		gt.S(t, result.MemoryContext).Contains("User query: find the safety diagram")
	})
}

func TestCoordinatorSpecialistFailure(t *testing.T) {
	t.Run("panicking specialist", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()

		registry := agent.NewRegistry()
		registry.Register(model.AgentTypeSearch, func(deps *agent.Dependencies) (agent.Agent, error) {
			return &panicAgent{agentType: model.AgentTypeSearch}, nil
		})
		c := newCoordinator(t, env, testScope("P1"), agent.WithRegistry(registry))

		out := c.Execute(ctx, &model.TaskInput{Task: "find the safety diagram"})
		gt.True(t, out.Success)

		result := out.Result.(*model.CoordinationResult)
		search := result.Results[model.AgentTypeSearch]
		gt.False(t, search.Success)
		gt.Nil(t, search.Result)
		gt.S(t, search.Metadata.Error).Contains("connection reset by peer")

		gt.S(t, result.Synthesis).Contains("Failed: ")
		gt.True(t, result.Results[model.AgentTypeMemory].Success)

		delegated := c.DelegateTask(ctx, model.AgentTypeSearch, "find", nil)
		gt.False(t, delegated.Success)
	})

	t.Run("embedding service down", func(t *testing.T) {
		env := newTestEnv(t)
		env.embedder.Err = errors.New("embedding service unavailable")
		c := newCoordinator(t, env, testScope("P1"))

		out := c.Execute(context.Background(), &model.TaskInput{Task: "find the safety diagram"})
		gt.True(t, out.Success)

		result := out.Result.(*model.CoordinationResult)
		gt.False(t, result.Results[model.AgentTypeSearch].Success)
		gt.False(t, result.Results[model.AgentTypeMemory].Success)
		gt.Equal(t, result.MemoryContext, "")
		gt.S(t, result.Synthesis).Contains("embedding service unavailable")
	})

	t.Run("synthesis failure falls back to raw results", func(t *testing.T) {
		env := newTestEnv(t)
		env.addItem(t, "P1", "pump_manual.txt", "text/plain", "pump manual", []byte("m"))
		env.generator.GenerateFunc = func(ctx context.Context, prompt string, images ...*interfaces.Image) (string, error) {
			return "", errors.New("model overloaded")
		}
		c := newCoordinator(t, env, testScope("P1"))

		out := c.Execute(context.Background(), &model.TaskInput{Task: "find the pump manual"})
		gt.True(t, out.Success)

		synthesis := out.Result.(*model.CoordinationResult).Synthesis
		gt.S(t, synthesis).Contains("Results for: find the pump manual")
		gt.S(t, synthesis).Contains("[search] Found 1 results")
		gt.S(t, synthesis).Contains("pump_manual.txt")
	})

	t.Run("missing synthesis agent", func(t *testing.T) {
		env := newTestEnv(t)
		env.deps.Generator = nil
		c := newCoordinator(t, env, testScope("P1"))
		gt.Nil(t, c.Agent(model.AgentTypeSynthesis))

		out := c.Execute(context.Background(), &model.TaskInput{Task: "hello there"})
		gt.True(t, out.Success)
		gt.S(t, out.Result.(*model.CoordinationResult).Synthesis).Contains("[memory] Retrieved")
	})
}

func TestCoordinatorStepBudget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addItem(t, "P1", "floor1.png", "image/png", "floor 1", []byte("1"))

	c := newCoordinator(t, env, testScope("P1"), agent.WithMaxSteps(1))
	out := c.Execute(ctx, &model.TaskInput{Task: "find and analyze floor plans"})
	gt.True(t, out.Success)

	result := out.Result.(*model.CoordinationResult)
	gt.Equal(t, len(result.Plan.TaskBreakdown), 4)
	gt.Equal(t, len(result.Results), 1)
	gt.True(t, result.Results[model.AgentTypeMemory].Success)
	gt.NotEqual(t, result.Synthesis, "")

	state := c.State()
	gt.Equal(t, state.MaxSteps(), 1)
	gt.False(t, state.HasBudget())
	status, ok := state.AgentStatus(model.AgentTypeSynthesis)
	gt.True(t, ok)
	gt.Equal(t, status, model.AgentStatusCompleted)
}

func TestCoordinatorDelegateTask(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addItem(t, "P1", "pump_manual.txt", "text/plain", "pump manual", []byte("m"))

	c := agent.NewCoordinator(env.deps)
	gt.False(t, c.DelegateTask(ctx, model.AgentTypeSearch, "find pump", nil).Success)

	gt.NoError(t, c.Initialize(ctx, testScope("P1")))

	delegated := c.DelegateTask(ctx, model.AgentTypeSearch, "find pump manual", nil)
	gt.True(t, delegated.Success)
	direct := c.Agent(model.AgentTypeSearch).Execute(ctx, &model.TaskInput{Task: "find pump manual"})
	gt.True(t, direct.Success)
	gt.Equal(t, delegated.Result.(*model.SearchResult).Results[0].ID, direct.Result.(*model.SearchResult).Results[0].ID)

	failed := c.DelegateTask(ctx, model.AgentTypeAnalysis, "analyze", nil)
	gt.False(t, failed.Success)
	gt.S(t, failed.Metadata.Error).Contains("dataId is required")
}

func TestCoordinatorLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c := agent.NewCoordinator(env.deps)
	gt.False(t, c.Execute(ctx, &model.TaskInput{Task: "hello"}).Success)

	gt.NoError(t, c.Initialize(ctx, testScope("P1")))
	for _, typ := range model.SpecialistAgentTypes {
		a := c.Agent(typ)
		gt.V(t, a).NotNil()
		gt.Equal(t, a.Status(), model.AgentStatusPlanning)
	}

	t.Run("second initialize keeps the bound scope and specialists", func(t *testing.T) {
		search := c.Agent(model.AgentTypeSearch)
		projectID := c.Scope().ProjectID
		gt.NoError(t, c.Initialize(ctx, testScope("P2")))
		gt.Equal(t, c.Scope().ProjectID, projectID)
		gt.Equal(t, c.Agent(model.AgentTypeSearch), search)
	})

	empty := c.Execute(ctx, &model.TaskInput{Task: "   "})
	gt.False(t, empty.Success)

	search := c.Agent(model.AgentTypeSearch)
	c.Cleanup(ctx)
	c.Cleanup(ctx)
	gt.Equal(t, c.Status(), model.AgentStatusIdle)
	gt.Equal(t, search.Status(), model.AgentStatusIdle)
	gt.Nil(t, c.Agent(model.AgentTypeSearch))

	gt.NoError(t, c.Initialize(ctx, testScope("P2")))
	gt.Equal(t, c.Scope().ProjectID, "P2")
	gt.V(t, c.Agent(model.AgentTypeSearch)).NotNil()
	c.Cleanup(ctx)
}
