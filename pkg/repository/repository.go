package repository

import (
	"context"
	"time"

	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

var ErrNotFound = goerr.New("not found")

// MemoryFilter restricts a memory vector search. Expired records (relative to
// Now) are always excluded.
type MemoryFilter struct {
	ScopeID string
	Type    model.MemoryType // empty means any type
	Now     time.Time
}

// MemoryEnrichment is a field-level update that merges new content into an
// existing memory
type MemoryEnrichment struct {
	Content    string
	Confidence float64
	Tags       []string // added to the existing tags
	Related    []string // added to the existing related memories
}

// Repository is the vector store backing memories, project data and
// conversation records.
type Repository interface {
	// PutMemory creates or overwrites a memory
	PutMemory(ctx context.Context, memory *model.Memory) error

	// GetMemory retrieves a memory by ID
	GetMemory(ctx context.Context, id model.MemoryID) (*model.Memory, error)

	// SearchMemories runs a KNN search over non-expired memories matching the
	// filter and returns up to candidatePool results ordered by similarity
	SearchMemories(ctx context.Context, embedding []float32, filter MemoryFilter, candidatePool int) ([]*model.ScoredMemory, error)

	// ListSessionMemories returns the most recent non-expired memories of a session
	ListSessionMemories(ctx context.Context, scopeID, sessionID string, now time.Time, limit int) ([]*model.Memory, error)

	// ListMemoriesCreatedBefore returns memories of a scope created before cutoff
	ListMemoriesCreatedBefore(ctx context.Context, scopeID string, cutoff time.Time) ([]*model.Memory, error)

	// TouchMemory increments the access count and sets the last access time
	TouchMemory(ctx context.Context, id model.MemoryID, at time.Time) error

	// EnrichMemory replaces content and confidence and adds tags and related
	// references. Access metadata and the embedding are not changed.
	EnrichMemory(ctx context.Context, id model.MemoryID, enrichment MemoryEnrichment) error

	// AppendRelatedMemories adds related references that are not yet present
	AppendRelatedMemories(ctx context.Context, id model.MemoryID, related []string) error

	// DeleteMemory removes a memory
	DeleteMemory(ctx context.Context, id model.MemoryID) error

	// PutDataItem creates or overwrites a project data item
	PutDataItem(ctx context.Context, item *model.DataItem) error

	// GetDataItem retrieves a data item by ID
	GetDataItem(ctx context.Context, id model.DataID) (*model.DataItem, error)

	// SearchDataItems runs a KNN search over data items of a project
	SearchDataItems(ctx context.Context, embedding []float32, projectID string, limit int) ([]*model.ScoredDataItem, error)

	// PutConversation saves the record of a coordination run
	PutConversation(ctx context.Context, conv *model.AgentConversation) error

	// GetConversation retrieves the record of a coordination run
	GetConversation(ctx context.Context, id string) (*model.AgentConversation, error)

	// ListConversations returns the latest run records of a project, newest first
	ListConversations(ctx context.Context, projectID string, limit int) ([]*model.AgentConversation, error)
}
