package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collectionMemories      = "memories"
	collectionDataItems     = "data_items"
	collectionConversations = "conversations"

	distanceResultField = "vector_distance"
)

// Firestore implements Repository with Firestore vector search. Vector indexes
// on memories.embedding (with scope_id, type) and data_items.embedding (with
// project_id) must exist.
type Firestore struct {
	client *firestore.Client
}

// New creates a new Firestore repository
func New(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID),
			goerr.V("database_id", databaseID))
	}
	return &Firestore{client: client}, nil
}

// Close closes the underlying client
func (r *Firestore) Close() error {
	return r.client.Close()
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func (r *Firestore) PutMemory(ctx context.Context, memory *model.Memory) error {
	if _, err := r.client.Collection(collectionMemories).Doc(string(memory.ID)).Set(ctx, memory); err != nil {
		return goerr.Wrap(err, "failed to put memory", goerr.V("memory_id", memory.ID))
	}
	return nil
}

func (r *Firestore) GetMemory(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	doc, err := r.client.Collection(collectionMemories).Doc(string(id)).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, goerr.Wrap(ErrNotFound, "memory not found", goerr.V("memory_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get memory", goerr.V("memory_id", id))
	}

	var memory model.Memory
	if err := doc.DataTo(&memory); err != nil {
		return nil, goerr.Wrap(err, "failed to decode memory", goerr.V("memory_id", id))
	}
	return &memory, nil
}

// SearchMemories uses cosine distance and converts it to similarity (1 - distance).
// Expiry is filtered after the vector query since an inequality filter on
// expires_at would drop records without expiry.
func (r *Firestore) SearchMemories(ctx context.Context, embedding []float32, filter MemoryFilter, candidatePool int) ([]*model.ScoredMemory, error) {
	q := r.client.Collection(collectionMemories).Where("scope_id", "==", filter.ScopeID)
	if filter.Type != "" {
		q = q.Where("type", "==", string(filter.Type))
	}

	vq := q.FindNearest("embedding", firestore.Vector32(embedding), candidatePool, firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{DistanceResultField: distanceResultField})

	iter := vq.Documents(ctx)
	defer iter.Stop()

	var results []*model.ScoredMemory
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to search memories", goerr.V("scope_id", filter.ScopeID))
		}

		var memory model.Memory
		if err := doc.DataTo(&memory); err != nil {
			return nil, goerr.Wrap(err, "failed to decode memory", goerr.V("doc_id", doc.Ref.ID))
		}
		if memory.IsExpired(filter.Now) {
			continue
		}

		results = append(results, &model.ScoredMemory{
			Memory: &memory,
			Score:  1.0 - distanceOf(doc),
		})
	}

	return results, nil
}

func distanceOf(doc *firestore.DocumentSnapshot) float64 {
	switch v := doc.Data()[distanceResultField].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 1.0
}

func (r *Firestore) ListSessionMemories(ctx context.Context, scopeID, sessionID string, now time.Time, limit int) ([]*model.Memory, error) {
	// Over-fetch so expired records do not starve the result
	iter := r.client.Collection(collectionMemories).
		Where("scope_id", "==", scopeID).
		Where("session_id", "==", sessionID).
		OrderBy("created_at", firestore.Desc).
		Limit(limit * 2).
		Documents(ctx)
	defer iter.Stop()

	var results []*model.Memory
	for len(results) < limit {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list session memories",
				goerr.V("scope_id", scopeID),
				goerr.V("session_id", sessionID))
		}

		var memory model.Memory
		if err := doc.DataTo(&memory); err != nil {
			return nil, goerr.Wrap(err, "failed to decode memory", goerr.V("doc_id", doc.Ref.ID))
		}
		if memory.IsExpired(now) {
			continue
		}
		results = append(results, &memory)
	}
	return results, nil
}

func (r *Firestore) ListMemoriesCreatedBefore(ctx context.Context, scopeID string, cutoff time.Time) ([]*model.Memory, error) {
	iter := r.client.Collection(collectionMemories).
		Where("scope_id", "==", scopeID).
		Where("created_at", "<", cutoff).
		Documents(ctx)
	defer iter.Stop()

	var results []*model.Memory
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list old memories", goerr.V("scope_id", scopeID))
		}

		var memory model.Memory
		if err := doc.DataTo(&memory); err != nil {
			return nil, goerr.Wrap(err, "failed to decode memory", goerr.V("doc_id", doc.Ref.ID))
		}
		results = append(results, &memory)
	}
	return results, nil
}

func (r *Firestore) TouchMemory(ctx context.Context, id model.MemoryID, at time.Time) error {
	_, err := r.client.Collection(collectionMemories).Doc(string(id)).Update(ctx, []firestore.Update{
		{Path: "metadata.access_count", Value: firestore.Increment(1)},
		{Path: "metadata.last_accessed", Value: at},
	})
	if err != nil {
		if isNotFound(err) {
			return goerr.Wrap(ErrNotFound, "memory not found", goerr.V("memory_id", id))
		}
		return goerr.Wrap(err, "failed to update memory access", goerr.V("memory_id", id))
	}
	return nil
}

func (r *Firestore) EnrichMemory(ctx context.Context, id model.MemoryID, enrichment MemoryEnrichment) error {
	updates := []firestore.Update{
		{Path: "content", Value: enrichment.Content},
		{Path: "metadata.confidence", Value: enrichment.Confidence},
	}
	if len(enrichment.Tags) > 0 {
		updates = append(updates, firestore.Update{Path: "tags", Value: firestore.ArrayUnion(toAnySlice(enrichment.Tags)...)})
	}
	if len(enrichment.Related) > 0 {
		updates = append(updates, firestore.Update{Path: "related_memories", Value: firestore.ArrayUnion(toAnySlice(enrichment.Related)...)})
	}

	if _, err := r.client.Collection(collectionMemories).Doc(string(id)).Update(ctx, updates); err != nil {
		if isNotFound(err) {
			return goerr.Wrap(ErrNotFound, "memory not found", goerr.V("memory_id", id))
		}
		return goerr.Wrap(err, "failed to enrich memory", goerr.V("memory_id", id))
	}
	return nil
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func (r *Firestore) AppendRelatedMemories(ctx context.Context, id model.MemoryID, related []string) error {
	if len(related) == 0 {
		return nil
	}
	_, err := r.client.Collection(collectionMemories).Doc(string(id)).Update(ctx, []firestore.Update{
		{Path: "related_memories", Value: firestore.ArrayUnion(toAnySlice(related)...)},
	})
	if err != nil {
		if isNotFound(err) {
			return goerr.Wrap(ErrNotFound, "memory not found", goerr.V("memory_id", id))
		}
		return goerr.Wrap(err, "failed to link memories", goerr.V("memory_id", id))
	}
	return nil
}

func (r *Firestore) DeleteMemory(ctx context.Context, id model.MemoryID) error {
	if _, err := r.client.Collection(collectionMemories).Doc(string(id)).Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete memory", goerr.V("memory_id", id))
	}
	return nil
}

func (r *Firestore) PutDataItem(ctx context.Context, item *model.DataItem) error {
	if _, err := r.client.Collection(collectionDataItems).Doc(string(item.ID)).Set(ctx, item); err != nil {
		return goerr.Wrap(err, "failed to put data item", goerr.V("data_id", item.ID))
	}
	return nil
}

func (r *Firestore) GetDataItem(ctx context.Context, id model.DataID) (*model.DataItem, error) {
	doc, err := r.client.Collection(collectionDataItems).Doc(string(id)).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, goerr.Wrap(ErrNotFound, "data item not found", goerr.V("data_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get data item", goerr.V("data_id", id))
	}

	var item model.DataItem
	if err := doc.DataTo(&item); err != nil {
		return nil, goerr.Wrap(err, "failed to decode data item", goerr.V("data_id", id))
	}
	return &item, nil
}

func (r *Firestore) SearchDataItems(ctx context.Context, embedding []float32, projectID string, limit int) ([]*model.ScoredDataItem, error) {
	vq := r.client.Collection(collectionDataItems).
		Where("project_id", "==", projectID).
		FindNearest("embedding", firestore.Vector32(embedding), limit, firestore.DistanceMeasureCosine,
			&firestore.FindNearestOptions{DistanceResultField: distanceResultField})

	iter := vq.Documents(ctx)
	defer iter.Stop()

	var results []*model.ScoredDataItem
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to search data items", goerr.V("project_id", projectID))
		}

		var item model.DataItem
		if err := doc.DataTo(&item); err != nil {
			return nil, goerr.Wrap(err, "failed to decode data item", goerr.V("doc_id", doc.Ref.ID))
		}
		results = append(results, &model.ScoredDataItem{
			Item:  &item,
			Score: 1.0 - distanceOf(doc),
		})
	}
	return results, nil
}

func (r *Firestore) PutConversation(ctx context.Context, conv *model.AgentConversation) error {
	if _, err := r.client.Collection(collectionConversations).Doc(conv.ID).Set(ctx, conv); err != nil {
		return goerr.Wrap(err, "failed to put conversation", goerr.V("conversation_id", conv.ID))
	}
	return nil
}

func (r *Firestore) GetConversation(ctx context.Context, id string) (*model.AgentConversation, error) {
	doc, err := r.client.Collection(collectionConversations).Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, goerr.Wrap(ErrNotFound, "conversation not found", goerr.V("conversation_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get conversation", goerr.V("conversation_id", id))
	}

	var conv model.AgentConversation
	if err := doc.DataTo(&conv); err != nil {
		return nil, goerr.Wrap(err, "failed to decode conversation", goerr.V("conversation_id", id))
	}
	return &conv, nil
}

func (r *Firestore) ListConversations(ctx context.Context, projectID string, limit int) ([]*model.AgentConversation, error) {
	iter := r.client.Collection(collectionConversations).
		Where("project_id", "==", projectID).
		OrderBy("created_at", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var results []*model.AgentConversation
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list conversations", goerr.V("project_id", projectID))
		}

		var conv model.AgentConversation
		if err := doc.DataTo(&conv); err != nil {
			return nil, goerr.Wrap(err, "failed to decode conversation", goerr.V("doc_id", doc.Ref.ID))
		}
		results = append(results, &conv)
	}
	return results, nil
}
