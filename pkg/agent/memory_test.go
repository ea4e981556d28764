package agent_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/conclave/pkg/agent"
	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/gt"
)

func TestMemoryAgent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	scope := testScope("P1")
	a, err := agent.NewMemoryAgent(env.deps)
	a = initialized(t, a, err, scope)

	var stored model.MemoryID
	t.Run("store", func(t *testing.T) {
		out := a.Execute(ctx, &model.TaskInput{
			Task: "store this fact",
			Data: model.TaskData{
				"content":    "Reactor runs at 400C",
				"type":       "fact",
				"confidence": 0.9,
				"tags":       []any{"reactor"},
			},
		})
		gt.True(t, out.Success)

		result := out.Result.(*model.MemoryResult)
		gt.Equal(t, result.Operation, "store")
		gt.False(t, result.Enriched)
		stored = result.MemoryID

		m, err := env.repo.GetMemory(ctx, stored)
		gt.NoError(t, err)
		gt.Equal(t, m.ScopeID, "P1")
		gt.Equal(t, m.SessionID, "S1")
		gt.Equal(t, m.Metadata.Confidence, 0.9)
	})

	t.Run("store again enriches", func(t *testing.T) {
		out := a.Execute(ctx, &model.TaskInput{
			Task: "remember",
			Data: model.TaskData{"content": "Reactor runs at 400C", "confidence": 0.9},
		})
		gt.True(t, out.Success)
		result := out.Result.(*model.MemoryResult)
		gt.True(t, result.Enriched)
		gt.Equal(t, result.MemoryID, stored)

		m, err := env.repo.GetMemory(ctx, stored)
		gt.NoError(t, err)
		gt.A(t, m.RelatedMemories).Length(1)
		gt.Equal(t, m.RelatedMemories[0], scope.ConversationID)
	})

	t.Run("retrieve is the default", func(t *testing.T) {
		out := a.Execute(ctx, &model.TaskInput{
			Task: "what do we know",
			Data: model.TaskData{"query": "Reactor runs at 400C"},
		})
		gt.True(t, out.Success)
		result := out.Result.(*model.MemoryResult)
		gt.Equal(t, result.Operation, "retrieve")
		gt.A(t, result.Memories).Length(1)
		gt.Equal(t, result.Memories[0].Memory.ID, stored)
	})

	t.Run("context", func(t *testing.T) {
		out := a.Execute(ctx, &model.TaskInput{Task: "context"})
		gt.True(t, out.Success)
		result := out.Result.(*model.MemoryResult)
		gt.S(t, result.Context).Contains("[FACT] Reactor runs at 400C")
	})

	t.Run("link", func(t *testing.T) {
		out := a.Execute(ctx, &model.TaskInput{
			Task: "link memories",
			Data: model.TaskData{"memoryId": string(stored), "relatedIds": []string{"other-memory"}},
		})
		gt.True(t, out.Success)

		m, err := env.repo.GetMemory(ctx, stored)
		gt.NoError(t, err)
		gt.A(t, m.RelatedMemories).Length(2)
	})

	t.Run("invalid type", func(t *testing.T) {
		out := a.Execute(ctx, &model.TaskInput{
			Task: "store",
			Data: model.TaskData{"content": "x", "type": "rumor"},
		})
		gt.False(t, out.Success)
		gt.S(t, out.Metadata.Error).Contains("invalid memory type")
	})
}
