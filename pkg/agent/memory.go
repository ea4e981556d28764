package agent

import (
	"context"
	"strings"

	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/conclave/pkg/usecase/memory"
	"github.com/m-mizutani/goerr/v2"
)

const defaultMemoryConfidence = 0.7

// MemoryAgent exposes the memory store to the coordinator
type MemoryAgent struct {
	base
	memory *memory.UseCase
}

var _ Agent = (*MemoryAgent)(nil)

func NewMemoryAgent(deps *Dependencies) (*MemoryAgent, error) {
	if deps == nil || deps.Memory == nil {
		return nil, goerr.New("memory agent requires memory store")
	}
	a := &MemoryAgent{memory: deps.Memory}
	a.init(model.AgentTypeMemory, a.run)
	return a, nil
}

const (
	memoryOpStore    = "store"
	memoryOpRetrieve = "retrieve"
	memoryOpContext  = "context"
	memoryOpLink     = "link"
)

// classifyMemoryTask looks at the leading verb of the task
func classifyMemoryTask(task string) string {
	fields := strings.Fields(strings.ToLower(task))
	if len(fields) == 0 {
		return memoryOpRetrieve
	}
	switch strings.TrimRight(fields[0], ":,.") {
	case "store", "remember", "save":
		return memoryOpStore
	case "context":
		return memoryOpContext
	case "link":
		return memoryOpLink
	}
	return memoryOpRetrieve
}

func (a *MemoryAgent) run(ctx context.Context, input *model.TaskInput) (any, error) {
	switch classifyMemoryTask(input.Task) {
	case memoryOpStore:
		return a.store(ctx, input.Data)
	case memoryOpContext:
		return a.loadContext(ctx, input.Data)
	case memoryOpLink:
		return a.link(ctx, input.Data)
	default:
		return a.retrieve(ctx, input)
	}
}

func (a *MemoryAgent) store(ctx context.Context, data model.TaskData) (*model.MemoryResult, error) {
	scope := a.Scope()

	memType := model.MemoryType(data.String("type"))
	if memType == "" {
		memType = model.MemoryTypeFact
	}
	source := data.String("source")
	if source == "" {
		source = string(model.AgentTypeMemory)
	}

	result, err := a.memory.Store(ctx, memory.StoreInput{
		ScopeID:        scope.ProjectID,
		SessionID:      scope.SessionID,
		UserID:         scope.UserID,
		ConversationID: scope.ConversationID,
		Type:           memType,
		Content:        data.String("content"),
		Source:         source,
		Confidence:     data.Float("confidence", defaultMemoryConfidence),
		Tags:           data.Strings("tags"),
	})
	if err != nil {
		return nil, err
	}

	return &model.MemoryResult{
		Operation: memoryOpStore,
		MemoryID:  result.ID,
		Enriched:  result.Enriched,
	}, nil
}

func (a *MemoryAgent) retrieve(ctx context.Context, input *model.TaskInput) (*model.MemoryResult, error) {
	scope := a.Scope()

	query := input.Data.String("query")
	if query == "" {
		query = scope.UserQuery
	}
	if query == "" {
		query = input.Task
	}

	minConfidence := input.Data.Float("minConfidence", memory.DefaultMinConfidence)
	memories, err := a.memory.Retrieve(ctx, memory.RetrieveOptions{
		Query:         query,
		ScopeID:       scope.ProjectID,
		Limit:         input.Data.Int("limit", memory.DefaultRetrieveLimit),
		Type:          model.MemoryType(input.Data.String("type")),
		MinConfidence: &minConfidence,
	})
	if err != nil {
		return nil, err
	}

	return &model.MemoryResult{
		Operation: memoryOpRetrieve,
		Memories:  memories,
	}, nil
}

func (a *MemoryAgent) loadContext(ctx context.Context, data model.TaskData) (*model.MemoryResult, error) {
	scope := a.Scope()

	text, memories, err := a.memory.Context(ctx, memory.ContextOptions{
		ScopeID:   scope.ProjectID,
		SessionID: scope.SessionID,
		Query:     data.String("query"),
	})
	if err != nil {
		return nil, err
	}

	return &model.MemoryResult{
		Operation: memoryOpContext,
		Memories:  memories,
		Context:   text,
	}, nil
}

func (a *MemoryAgent) link(ctx context.Context, data model.TaskData) (*model.MemoryResult, error) {
	id := model.MemoryID(data.String("memoryId"))
	if id == "" {
		return nil, goerr.New("memoryId is required for link")
	}
	if err := a.memory.Link(ctx, id, data.Strings("relatedIds")); err != nil {
		return nil, err
	}

	return &model.MemoryResult{
		Operation: memoryOpLink,
		MemoryID:  id,
	}, nil
}
