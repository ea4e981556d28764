package agent_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/conclave/pkg/adapter"
	"github.com/m-mizutani/conclave/pkg/agent"
	"github.com/m-mizutani/conclave/pkg/interfaces"
	"github.com/m-mizutani/conclave/pkg/mock"
	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/conclave/pkg/repository"
	"github.com/m-mizutani/conclave/pkg/usecase/memory"
	"github.com/m-mizutani/gt"
)

type testEnv struct {
	deps       *agent.Dependencies
	repo       *repository.Memory
	embedder   *mock.Embedder
	generator  *mock.Generator
	compressor *mock.ImageCompressor
	storage    adapter.Storage
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := adapter.NewFileStorage(t.TempDir())
	gt.NoError(t, err)

	env := &testEnv{
		repo:       repository.NewMemory(),
		embedder:   mock.NewEmbedder(),
		generator:  &mock.Generator{},
		compressor: &mock.ImageCompressor{},
		storage:    st,
	}
	env.deps = &agent.Dependencies{
		Repo:       env.repo,
		Memory:     memory.New(env.repo, env.embedder),
		Embedder:   env.embedder,
		Generator:  env.generator,
		Compressor: env.compressor,
		Storage:    env.storage,
	}
	return env
}

func testScope(projectID string) *model.Scope {
	return &model.Scope{
		ProjectID:      projectID,
		SessionID:      "S1",
		ConversationID: model.NewConversationID(),
		ProjectName:    "Plant Safety",
	}
}

func (e *testEnv) addItem(t *testing.T, projectID, filename, mimeType, description string, content []byte, tags ...string) *model.DataItem {
	t.Helper()
	ctx := context.Background()

	embedding, err := e.embedder.Embed(ctx, &interfaces.EmbedInput{
		Text: strings.Join([]string{filename, description}, " "),
		Mode: interfaces.EmbedModeDocument,
	})
	gt.NoError(t, err)

	item := &model.DataItem{
		ID:          model.NewDataID(),
		ProjectID:   projectID,
		Filename:    filename,
		Type:        mimeType,
		Description: description,
		Tags:        tags,
		Embedding:   embedding,
		CreatedAt:   time.Now(),
	}
	item.StoragePath = "data/" + string(item.ID)

	w, err := e.storage.Put(ctx, item.StoragePath)
	gt.NoError(t, err)
	_, err = w.Write(content)
	gt.NoError(t, err)
	gt.NoError(t, w.Close())

	gt.NoError(t, e.repo.PutDataItem(ctx, item))
	return item
}

func initialized[T agent.Agent](t *testing.T, a T, err error, scope *model.Scope) T {
	t.Helper()
	gt.NoError(t, err)
	gt.NoError(t, a.Initialize(context.Background(), scope))
	return a
}
