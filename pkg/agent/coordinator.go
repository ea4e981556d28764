package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/conclave/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"
)

// PlanPolicy can add specialist agents to a plan
type PlanPolicy interface {
	Agents(ctx context.Context, task string, scope *model.Scope) ([]model.AgentType, error)
}

// Coordinator plans a run, drives the specialist agents in sequence and
// synthesizes their outputs
type Coordinator struct {
	base
	deps     *Dependencies
	registry *Registry
	policy   PlanPolicy
	maxSteps int

	agentsMu sync.RWMutex
	agents   map[model.AgentType]Agent

	stateMu sync.RWMutex
	state   *State
}

var _ Agent = (*Coordinator)(nil)

// CoordinatorOption is a functional option for Coordinator
type CoordinatorOption func(*Coordinator)

// WithRegistry sets the registry used to create specialist agents
func WithRegistry(r *Registry) CoordinatorOption {
	return func(c *Coordinator) {
		c.registry = r
	}
}

// WithPlanPolicy sets an optional policy consulted when building plans
func WithPlanPolicy(p PlanPolicy) CoordinatorOption {
	return func(c *Coordinator) {
		c.policy = p
	}
}

// WithMaxSteps sets the step budget of a run
func WithMaxSteps(n int) CoordinatorOption {
	return func(c *Coordinator) {
		c.maxSteps = n
	}
}

func NewCoordinator(deps *Dependencies, opts ...CoordinatorOption) *Coordinator {
	if deps == nil {
		deps = &Dependencies{}
	}
	c := &Coordinator{
		deps:     deps,
		maxSteps: DefaultMaxSteps,
		agents:   make(map[model.AgentType]Agent),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = NewRegistry()
	}
	c.init(model.AgentTypeCoordinator, c.run)
	return c
}

// Initialize binds the scope and creates and initializes all specialist agents
// concurrently. A specialist that cannot be created is left out and reported as
// unavailable when addressed. It is a no-op while a scope is already bound.
func (c *Coordinator) Initialize(ctx context.Context, scope *model.Scope) error {
	newlyBound, err := c.bind(scope)
	if err != nil {
		return err
	}
	if !newlyBound {
		return nil
	}
	bound := c.Scope()

	var mu sync.Mutex
	agents := make(map[model.AgentType]Agent, len(model.SpecialistAgentTypes))

	eg, egCtx := errgroup.WithContext(ctx)
	for _, t := range model.SpecialistAgentTypes {
		eg.Go(func() error {
			a, err := c.registry.Create(t, c.deps)
			if err != nil {
				logging.From(egCtx).Warn("specialist agent is unavailable", "agent", t, "error", err)
				return nil
			}
			if err := a.Initialize(egCtx, bound); err != nil {
				return goerr.Wrap(err, "failed to initialize agent", goerr.V("agent", t))
			}

			mu.Lock()
			agents[t] = a
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		for _, a := range agents {
			a.Cleanup(ctx)
		}
		c.unbind(model.AgentStatusFailed)
		return err
	}

	c.agentsMu.Lock()
	c.agents = agents
	c.agentsMu.Unlock()
	return nil
}

// Agent returns an initialized specialist or nil
func (c *Coordinator) Agent(t model.AgentType) Agent {
	c.agentsMu.RLock()
	defer c.agentsMu.RUnlock()
	return c.agents[t]
}

// State returns the bookkeeping of the latest run, or nil before any run
func (c *Coordinator) State() *State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Coordinator) setState(s *State) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.state = s
}

func (c *Coordinator) run(ctx context.Context, input *model.TaskInput) (any, error) {
	start := time.Now()
	task := strings.TrimSpace(input.Task)
	if task == "" {
		return nil, goerr.New("task is required")
	}

	scope := c.Scope()
	state := NewState(scope.ConversationID, c.maxSteps)
	c.setState(state)

	ctx = logging.With(ctx, logging.From(ctx).With("conversation_id", scope.ConversationID))
	logger := logging.From(ctx)

	c.setStatus(model.AgentStatusPlanning)
	plan, err := c.CreatePlan(ctx, task)
	if err != nil {
		return nil, err
	}
	logger.Info("plan created",
		"strategy", plan.Strategy,
		"agents", plan.AgentsInvolved,
		"estimated_steps", plan.EstimatedSteps)
	c.setStatus(model.AgentStatusExecuting)

	memoryContext := c.retrieveMemoryContext(ctx, task)
	results := c.executePlan(ctx, plan, input, state)
	synthesis := c.synthesizeResults(ctx, plan, results, input, memoryContext, state)
	c.storeMemories(ctx, task, results)

	logger.Info("coordination completed",
		"steps", state.CurrentStep(),
		"duration", time.Since(start))

	return &model.CoordinationResult{
		ConversationID: scope.ConversationID,
		Synthesis:      synthesis,
		Plan:           plan,
		Results:        results,
		MemoryContext:  memoryContext,
		StepsUsed:      state.CurrentStep(),
		Duration:       time.Since(start),
	}, nil
}

// invoke calls a specialist directly and converts panics into a failed output
func (c *Coordinator) invoke(ctx context.Context, t model.AgentType, input *model.TaskInput) (output *model.AgentOutput) {
	start := time.Now()
	a := c.Agent(t)
	if a == nil {
		return model.NewFailureOutput(goerr.Wrap(ErrAgentUnavailable, "agent not initialized", goerr.V("agent", t)), time.Since(start))
	}

	defer func() {
		if r := recover(); r != nil {
			err := goerr.New(fmt.Sprintf("panic in agent: %v", r), goerr.V("agent", t))
			logging.From(ctx).Error("agent panicked", "error", err)
			output = model.NewFailureOutput(err, time.Since(start))
		}
	}()

	output = a.Execute(ctx, input)
	if output == nil {
		output = model.NewFailureOutput(goerr.New("agent returned no output", goerr.V("agent", t)), time.Since(start))
	}
	return output
}

// retrieveMemoryContext never fails; errors yield an empty context
func (c *Coordinator) retrieveMemoryContext(ctx context.Context, task string) string {
	if c.Agent(model.AgentTypeMemory) == nil {
		return ""
	}

	out := c.invoke(ctx, model.AgentTypeMemory, &model.TaskInput{
		Task: "context for: " + task,
		Data: model.TaskData{"query": task},
	})
	if !out.Success {
		logging.From(ctx).Warn("failed to retrieve memory context", "error", out.Metadata.Error)
		return ""
	}
	if r, ok := out.Result.(*model.MemoryResult); ok {
		return r.Context
	}
	return ""
}

// executePlan runs every non-synthesis task in list order. Only the latest
// output per agent type is kept. When the step budget is exhausted the
// remaining tasks are skipped.
func (c *Coordinator) executePlan(ctx context.Context, plan *model.CoordinatorPlan, original *model.TaskInput, state *State) map[model.AgentType]*model.AgentOutput {
	logger := logging.From(ctx)

	for i, pt := range plan.TaskBreakdown {
		if pt.Agent == model.AgentTypeSynthesis {
			continue
		}
		if !state.HasBudget() {
			logger.Warn("step budget exhausted, proceeding to synthesis",
				"max_steps", state.MaxSteps(),
				"skipped_from", i)
			break
		}

		input := &model.TaskInput{
			Task:     pt.Task,
			Data:     original.Data,
			Context:  original.Context,
			Priority: pt.Priority,
		}
		state.RouteMessage(ctx, model.NewAgentMessage(model.AgentTypeCoordinator, pt.Agent, state.ConversationID(), model.MessageTypeRequest, model.MessagePayload{
			Task:     input.Task,
			Data:     input.Data,
			Context:  input.Context,
			Priority: input.Priority,
		}))
		state.SetStatus(pt.Agent, model.AgentStatusExecuting)

		out := c.invoke(ctx, pt.Agent, input)
		state.SetResult(pt.Agent, out)

		logger.Debug("task finished", "agent", pt.Agent, "success", out.Success, "duration", out.Metadata.Duration)
	}

	return state.Results()
}

func (c *Coordinator) synthesizeResults(ctx context.Context, plan *model.CoordinatorPlan, results map[model.AgentType]*model.AgentOutput, original *model.TaskInput, memoryContext string, state *State) string {
	task := strings.TrimSpace(original.Task)
	entries := buildEntries(plan, results)

	if c.Agent(model.AgentTypeSynthesis) != nil {
		input := &model.TaskInput{
			Task: synthesisTask(plan, task),
			Data: model.TaskData{
				"mode":          SynthesisModeSynthesize,
				"entries":       entries,
				"memoryContext": memoryContext,
				"query":         task,
			},
			Context: original.Context,
		}
		state.RouteMessage(ctx, model.NewAgentMessage(model.AgentTypeCoordinator, model.AgentTypeSynthesis, state.ConversationID(), model.MessageTypeRequest, model.MessagePayload{
			Task: input.Task,
			Data: input.Data,
		}))

		out := c.invoke(ctx, model.AgentTypeSynthesis, input)
		if out.Success {
			state.SetStatus(model.AgentTypeSynthesis, model.AgentStatusCompleted)
			if r, ok := out.Result.(*model.SynthesisResult); ok && r.Synthesis != "" {
				return r.Synthesis
			}
		} else {
			state.SetStatus(model.AgentTypeSynthesis, model.AgentStatusFailed)
			logging.From(ctx).Warn("synthesis failed, falling back to raw results", "error", out.Metadata.Error)
		}
	}

	return fallbackSynthesis(task, entries)
}

func synthesisTask(plan *model.CoordinatorPlan, task string) string {
	for _, pt := range plan.TaskBreakdown {
		if pt.Agent == model.AgentTypeSynthesis {
			return pt.Task
		}
	}
	return "synthesize results for: " + task
}

// buildEntries lists outputs in plan order, one per agent type
func buildEntries(plan *model.CoordinatorPlan, results map[model.AgentType]*model.AgentOutput) []model.SynthesisEntry {
	var entries []model.SynthesisEntry
	seen := make(map[model.AgentType]bool)
	for _, pt := range plan.TaskBreakdown {
		out, ok := results[pt.Agent]
		if !ok || seen[pt.Agent] {
			continue
		}
		seen[pt.Agent] = true
		entries = append(entries, model.SynthesisEntry{
			Agent:   pt.Agent,
			Type:    resultType(out),
			Data:    out.Result,
			Summary: summarizeOutput(out),
		})
	}
	return entries
}

func resultType(out *model.AgentOutput) string {
	if !out.Success {
		return "error"
	}
	switch out.Result.(type) {
	case *model.SearchResult:
		return "search_results"
	case *model.AnalysisResult:
		return "analysis"
	case *model.ComparisonResult:
		return "comparison"
	case *model.MemoryResult:
		return "memories"
	}
	return "result"
}

func summarizeOutput(out *model.AgentOutput) string {
	if !out.Success {
		return "Failed: " + out.Metadata.Error
	}
	switch r := out.Result.(type) {
	case *model.SearchResult:
		return fmt.Sprintf("Found %d results", r.Found)
	case *model.AnalysisResult:
		return "Analysis completed for " + r.Filename
	case *model.ComparisonResult:
		return fmt.Sprintf("Comparison completed for %d items", len(r.Items))
	case *model.MemoryResult:
		return fmt.Sprintf("Retrieved %d memories", len(r.Memories))
	}
	return "Completed"
}

func fallbackSynthesis(task string, entries []model.SynthesisEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Results for: %s\n", task)
	for _, e := range entries {
		fmt.Fprintf(&b, "\n[%s] %s\n", e.Agent, e.Summary)
		if e.Data == nil {
			continue
		}
		raw, err := json.MarshalIndent(e.Data, "", "  ")
		if err != nil {
			fmt.Fprintf(&b, "%v\n", e.Data)
			continue
		}
		b.Write(raw)
		b.WriteString("\n")
	}
	return b.String()
}

// storeMemories records the query as a pattern and successful search hits as a
// fact. Failures are logged only.
func (c *Coordinator) storeMemories(ctx context.Context, task string, results map[model.AgentType]*model.AgentOutput) {
	if c.Agent(model.AgentTypeMemory) == nil {
		return
	}

	store := func(data model.TaskData) {
		out := c.invoke(ctx, model.AgentTypeMemory, &model.TaskInput{Task: "store", Data: data})
		if !out.Success {
			logging.From(ctx).Warn("failed to store memory", "type", data.String("type"), "error", out.Metadata.Error)
		}
	}

	store(model.TaskData{
		"type":       string(model.MemoryTypePattern),
		"content":    "User query: " + task,
		"confidence": 0.8,
		"tags":       []string{"query"},
		"source":     string(model.AgentTypeCoordinator),
	})

	out, ok := results[model.AgentTypeSearch]
	if !ok || !out.Success {
		return
	}
	sr, ok := out.Result.(*model.SearchResult)
	if !ok || sr.Found == 0 {
		return
	}

	names := make([]string, 0, len(sr.Results))
	for _, hit := range sr.Results {
		names = append(names, hit.Filename)
	}
	store(model.TaskData{
		"type":       string(model.MemoryTypeFact),
		"content":    fmt.Sprintf("Search for %q found %d results: %s", task, sr.Found, strings.Join(names, ", ")),
		"confidence": 0.9,
		"tags":       []string{"search"},
		"source":     string(model.AgentTypeCoordinator),
	})
}

// DelegateTask sends a task to a specialist through the message envelope
func (c *Coordinator) DelegateTask(ctx context.Context, t model.AgentType, task string, data model.TaskData) (output *model.AgentOutput) {
	start := time.Now()
	scope := c.Scope()
	if scope == nil {
		return model.NewFailureOutput(goerr.Wrap(ErrNotInitialized, "delegate called before initialize"), time.Since(start))
	}
	a := c.Agent(t)
	if a == nil {
		return model.NewFailureOutput(goerr.Wrap(ErrAgentUnavailable, "cannot delegate", goerr.V("agent", t)), time.Since(start))
	}

	msg := model.NewAgentMessage(model.AgentTypeCoordinator, t, scope.ConversationID, model.MessageTypeRequest, model.MessagePayload{
		Task: task,
		Data: data,
	})
	if state := c.State(); state != nil {
		state.RouteMessage(ctx, msg)
	}

	defer func() {
		if r := recover(); r != nil {
			output = model.NewFailureOutput(goerr.New(fmt.Sprintf("panic in agent: %v", r), goerr.V("agent", t)), time.Since(start))
		}
	}()

	return outputFromReply(a.HandleMessage(ctx, msg), time.Since(start))
}

// Cleanup cleans up every specialist, then the coordinator itself
func (c *Coordinator) Cleanup(ctx context.Context) {
	c.cleanupAgents(ctx)
	c.base.Cleanup(ctx)
}

func (c *Coordinator) cleanupAgents(ctx context.Context) {
	c.agentsMu.Lock()
	agents := c.agents
	c.agents = make(map[model.AgentType]Agent)
	c.agentsMu.Unlock()

	for _, a := range agents {
		a.Cleanup(ctx)
	}
}
