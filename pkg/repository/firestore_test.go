package repository_test

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/conclave/pkg/repository"
	"github.com/m-mizutani/gt"
)

func setupFirestore(t *testing.T) *repository.Firestore {
	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")

	if projectID == "" || databaseID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID and TEST_FIRESTORE_DATABASE_ID must be set to run Firestore tests")
	}

	repo, err := repository.New(context.Background(), projectID, databaseID)
	gt.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	return repo
}

func randomEmbedding(rng *rand.Rand, base float32) []float32 {
	v := make([]float32, 768)
	for i := range v {
		v[i] = base + float32(rng.Float64()*0.02-0.01)
	}
	return v
}

func TestFirestoreMemoryRoundTrip(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	scopeID := "test-scope-" + string(model.NewMemoryID())
	memory := &model.Memory{
		ID:        model.NewMemoryID(),
		ScopeID:   scopeID,
		SessionID: "session-1",
		Type:      model.MemoryTypeFact,
		Content:   "Reactor runs at 400C",
		Embedding: randomEmbedding(rng, 0.5),
		Metadata: model.MemoryMetadata{
			Source:       "test",
			Confidence:   0.9,
			LastAccessed: time.Now(),
		},
		Tags:      []string{"reactor"},
		CreatedAt: time.Now(),
	}
	gt.NoError(t, repo.PutMemory(ctx, memory))
	t.Cleanup(func() { _ = repo.DeleteMemory(ctx, memory.ID) })

	got, err := repo.GetMemory(ctx, memory.ID)
	gt.NoError(t, err)
	gt.Equal(t, got.Content, memory.Content)
	gt.A(t, got.Embedding).Length(768)

	gt.NoError(t, repo.TouchMemory(ctx, memory.ID, time.Now()))
	gt.NoError(t, repo.AppendRelatedMemories(ctx, memory.ID, []string{"conv-1", "conv-1"}))

	got, err = repo.GetMemory(ctx, memory.ID)
	gt.NoError(t, err)
	gt.Equal(t, got.Metadata.AccessCount, int64(1))
	gt.Equal(t, got.RelatedMemories, []string{"conv-1"})

	gt.NoError(t, repo.EnrichMemory(ctx, memory.ID, repository.MemoryEnrichment{
		Content:    memory.Content + " [ENRICHED: Reactor runs at 400C]",
		Confidence: 0.9,
		Tags:       []string{"reactor", "thermal"},
		Related:    []string{"conv-2"},
	}))

	got, err = repo.GetMemory(ctx, memory.ID)
	gt.NoError(t, err)
	gt.Equal(t, got.Metadata.AccessCount, int64(1))
	gt.Equal(t, got.Tags, []string{"reactor", "thermal"})
	gt.Equal(t, got.RelatedMemories, []string{"conv-1", "conv-2"})
	gt.S(t, got.Content).Contains("[ENRICHED:")

	results, err := repo.SearchMemories(ctx, randomEmbedding(rng, 0.5), repository.MemoryFilter{
		ScopeID: scopeID,
		Type:    model.MemoryTypeFact,
		Now:     time.Now(),
	}, 10)
	gt.NoError(t, err)
	gt.A(t, results).Longer(0)
	gt.Equal(t, results[0].Memory.ID, memory.ID)
}

func TestFirestoreGetMemoryNotFound(t *testing.T) {
	repo := setupFirestore(t)
	_, err := repo.GetMemory(context.Background(), model.NewMemoryID())
	gt.Error(t, err)
	gt.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestFirestoreConversations(t *testing.T) {
	repo := setupFirestore(t)
	ctx := context.Background()

	projectID := "test-project-" + model.NewConversationID()
	conv := &model.AgentConversation{
		ID:        model.NewConversationID(),
		ProjectID: projectID,
		SessionID: "session-1",
		Query:     "find the safety diagram",
		Synthesis: "diagram found",
		Success:   true,
		Duration:  1500 * time.Millisecond,
		CreatedAt: time.Now(),
	}
	gt.NoError(t, repo.PutConversation(ctx, conv))

	got, err := repo.GetConversation(ctx, conv.ID)
	gt.NoError(t, err)
	gt.Equal(t, got.Query, conv.Query)
	gt.True(t, got.Success)

	list, err := repo.ListConversations(ctx, projectID, 10)
	gt.NoError(t, err)
	gt.A(t, list).Length(1)
	gt.Equal(t, list[0].ID, conv.ID)
}
