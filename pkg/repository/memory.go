package repository

import (
	"context"
	"math"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// Memory is a process-local Repository. It runs exact KNN by cosine
// similarity over all stored vectors and is meant for tests and local runs.
type Memory struct {
	mu            sync.RWMutex
	memories      map[model.MemoryID]*model.Memory
	dataItems     map[model.DataID]*model.DataItem
	conversations map[string]*model.AgentConversation
}

// NewMemory creates an empty in-process repository
func NewMemory() *Memory {
	return &Memory{
		memories:      make(map[model.MemoryID]*model.Memory),
		dataItems:     make(map[model.DataID]*model.DataItem),
		conversations: make(map[string]*model.AgentConversation),
	}
}

func copyMemory(m *model.Memory) *model.Memory {
	c := *m
	c.Embedding = slices.Clone(m.Embedding)
	c.RelatedMemories = slices.Clone(m.RelatedMemories)
	c.Tags = slices.Clone(m.Tags)
	if m.ExpiresAt != nil {
		t := *m.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

func copyDataItem(d *model.DataItem) *model.DataItem {
	c := *d
	c.Embedding = slices.Clone(d.Embedding)
	c.Tags = slices.Clone(d.Tags)
	return &c
}

func (r *Memory) PutMemory(ctx context.Context, memory *model.Memory) error {
	if memory.ID == "" {
		return goerr.New("memory ID is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memories[memory.ID] = copyMemory(memory)
	return nil
}

func (r *Memory) GetMemory(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.memories[id]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "memory not found", goerr.V("memory_id", id))
	}
	return copyMemory(m), nil
}

func (r *Memory) SearchMemories(ctx context.Context, embedding []float32, filter MemoryFilter, candidatePool int) ([]*model.ScoredMemory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*model.ScoredMemory
	for _, m := range r.memories {
		if m.ScopeID != filter.ScopeID {
			continue
		}
		if filter.Type != "" && m.Type != filter.Type {
			continue
		}
		if m.IsExpired(filter.Now) {
			continue
		}
		results = append(results, &model.ScoredMemory{
			Memory: copyMemory(m),
			Score:  CosineSimilarity(embedding, m.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if candidatePool > 0 && len(results) > candidatePool {
		results = results[:candidatePool]
	}
	return results, nil
}

func (r *Memory) ListSessionMemories(ctx context.Context, scopeID, sessionID string, now time.Time, limit int) ([]*model.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*model.Memory
	for _, m := range r.memories {
		if m.ScopeID != scopeID || m.SessionID != sessionID || m.IsExpired(now) {
			continue
		}
		results = append(results, copyMemory(m))
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (r *Memory) ListMemoriesCreatedBefore(ctx context.Context, scopeID string, cutoff time.Time) ([]*model.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*model.Memory
	for _, m := range r.memories {
		if m.ScopeID == scopeID && m.CreatedAt.Before(cutoff) {
			results = append(results, copyMemory(m))
		}
	}
	return results, nil
}

func (r *Memory) TouchMemory(ctx context.Context, id model.MemoryID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.memories[id]
	if !ok {
		return goerr.Wrap(ErrNotFound, "memory not found", goerr.V("memory_id", id))
	}
	m.Metadata.AccessCount++
	m.Metadata.LastAccessed = at
	return nil
}

func (r *Memory) EnrichMemory(ctx context.Context, id model.MemoryID, enrichment MemoryEnrichment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.memories[id]
	if !ok {
		return goerr.Wrap(ErrNotFound, "memory not found", goerr.V("memory_id", id))
	}
	m.Content = enrichment.Content
	m.Metadata.Confidence = enrichment.Confidence
	m.Tags = model.UnionStrings(m.Tags, enrichment.Tags...)
	m.RelatedMemories = model.UnionStrings(m.RelatedMemories, enrichment.Related...)
	return nil
}

func (r *Memory) AppendRelatedMemories(ctx context.Context, id model.MemoryID, related []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.memories[id]
	if !ok {
		return goerr.Wrap(ErrNotFound, "memory not found", goerr.V("memory_id", id))
	}
	m.RelatedMemories = model.UnionStrings(m.RelatedMemories, related...)
	return nil
}

func (r *Memory) DeleteMemory(ctx context.Context, id model.MemoryID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.memories[id]; !ok {
		return goerr.Wrap(ErrNotFound, "memory not found", goerr.V("memory_id", id))
	}
	delete(r.memories, id)
	return nil
}

func (r *Memory) PutDataItem(ctx context.Context, item *model.DataItem) error {
	if item.ID == "" {
		return goerr.New("data item ID is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dataItems[item.ID] = copyDataItem(item)
	return nil
}

func (r *Memory) GetDataItem(ctx context.Context, id model.DataID) (*model.DataItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.dataItems[id]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "data item not found", goerr.V("data_id", id))
	}
	return copyDataItem(d), nil
}

func (r *Memory) SearchDataItems(ctx context.Context, embedding []float32, projectID string, limit int) ([]*model.ScoredDataItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*model.ScoredDataItem
	for _, d := range r.dataItems {
		if d.ProjectID != projectID {
			continue
		}
		results = append(results, &model.ScoredDataItem{
			Item:  copyDataItem(d),
			Score: CosineSimilarity(embedding, d.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (r *Memory) PutConversation(ctx context.Context, conv *model.AgentConversation) error {
	if conv.ID == "" {
		return goerr.New("conversation ID is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *conv
	r.conversations[conv.ID] = &c
	return nil
}

func (r *Memory) GetConversation(ctx context.Context, id string) (*model.AgentConversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conversations[id]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "conversation not found", goerr.V("conversation_id", id))
	}
	out := *c
	return &out, nil
}

func (r *Memory) ListConversations(ctx context.Context, projectID string, limit int) ([]*model.AgentConversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*model.AgentConversation
	for _, c := range r.conversations {
		if c.ProjectID != projectID {
			continue
		}
		out := *c
		results = append(results, &out)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// CosineSimilarity returns the cosine similarity of two vectors, or 0 when
// either is empty, zero or their lengths differ
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
