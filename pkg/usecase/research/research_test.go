package research_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/conclave/pkg/adapter"
	"github.com/m-mizutani/conclave/pkg/agent"
	"github.com/m-mizutani/conclave/pkg/interfaces"
	"github.com/m-mizutani/conclave/pkg/mock"
	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/conclave/pkg/repository"
	"github.com/m-mizutani/conclave/pkg/usecase/memory"
	"github.com/m-mizutani/conclave/pkg/usecase/research"
	"github.com/m-mizutani/gt"
)

type recordingBigQuery struct {
	mu   sync.Mutex
	rows []any
	err  error
}

func (b *recordingBigQuery) Insert(ctx context.Context, datasetID, tableID string, rows any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.rows = append(b.rows, rows)
	return nil
}

var _ adapter.BigQuery = (*recordingBigQuery)(nil)

type panicPolicy struct{}

func (panicPolicy) Agents(ctx context.Context, task string, scope *model.Scope) ([]model.AgentType, error) {
	panic("policy engine crashed")
}

type testEnv struct {
	deps    *agent.Dependencies
	repo    *repository.Memory
	storage adapter.Storage
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := adapter.NewFileStorage(t.TempDir())
	gt.NoError(t, err)

	repo := repository.NewMemory()
	embedder := mock.NewEmbedder()
	env := &testEnv{repo: repo, storage: st}
	env.deps = &agent.Dependencies{
		Repo:       repo,
		Memory:     memory.New(repo, embedder),
		Embedder:   embedder,
		Generator:  &mock.Generator{},
		Compressor: &mock.ImageCompressor{},
		Storage:    st,
	}

	ctx := context.Background()
	for _, name := range []string{"evacuation_map.png", "evacuation_plan.pdf"} {
		vec, err := embedder.Embed(ctx, &interfaces.EmbedInput{Text: name + " evacuation map", Mode: interfaces.EmbedModeDocument})
		gt.NoError(t, err)
		gt.NoError(t, repo.PutDataItem(ctx, &model.DataItem{
			ID:          model.NewDataID(),
			ProjectID:   "P1",
			Filename:    name,
			Type:        "image/png",
			Description: "evacuation map",
			Embedding:   vec,
			CreatedAt:   time.Now(),
		}))
	}
	return env
}

func readStored(t *testing.T, st adapter.Storage, id string) *model.AgentConversation {
	t.Helper()
	r, err := st.Get(context.Background(), "conversations/"+id+".json")
	gt.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	gt.NoError(t, err)

	var conv model.AgentConversation
	gt.NoError(t, json.Unmarshal(data, &conv))
	return &conv
}

func TestAsk(t *testing.T) {
	env := newTestEnv(t)
	bq := &recordingBigQuery{}
	uc := research.New(env.deps, research.WithAudit(bq, "audit", "conversations"))
	ctx := context.Background()

	result, err := uc.Ask(ctx, research.AskInput{
		Query:     "find the evacuation map",
		ProjectID: "P1",
		SessionID: "S1",
		UserID:    "U1",
	})
	gt.NoError(t, err)
	gt.S(t, result.Synthesis).Contains("evacuation_map.png")
	gt.Equal(t, result.Results[model.AgentTypeSearch].Result.(*model.SearchResult).Found, 2)

	t.Run("record in repository", func(t *testing.T) {
		conv, err := env.repo.GetConversation(ctx, result.ConversationID)
		gt.NoError(t, err)
		gt.True(t, conv.Success)
		gt.Equal(t, conv.Query, "find the evacuation map")
		gt.Equal(t, conv.SessionID, "S1")
		gt.Equal(t, conv.UserID, "U1")
		gt.Equal(t, conv.Synthesis, result.Synthesis)
		gt.Equal(t, conv.Plan.AgentsInvolved, result.Plan.AgentsInvolved)
	})

	t.Run("full JSON in storage", func(t *testing.T) {
		conv := readStored(t, env.storage, result.ConversationID)
		gt.True(t, conv.Success)
		gt.M(t, conv.Results).Length(2)
		gt.True(t, conv.Results[model.AgentTypeSearch].Success)
	})

	t.Run("audit row", func(t *testing.T) {
		gt.A(t, bq.rows).Length(1)
		data, err := json.Marshal(bq.rows[0])
		gt.NoError(t, err)
		gt.S(t, string(data)).Contains(result.ConversationID)
		gt.S(t, string(data)).Contains("find the evacuation map")
	})

	t.Run("show loads results", func(t *testing.T) {
		conv, err := uc.Show(ctx, result.ConversationID)
		gt.NoError(t, err)
		gt.M(t, conv.Results).Length(2)
	})

	t.Run("history", func(t *testing.T) {
		list, err := uc.History(ctx, "P1", 0)
		gt.NoError(t, err)
		gt.A(t, list).Length(1)
		gt.Equal(t, list[0].ID, result.ConversationID)
	})
}

func TestAskValidation(t *testing.T) {
	env := newTestEnv(t)
	uc := research.New(env.deps)
	ctx := context.Background()

	_, err := uc.Ask(ctx, research.AskInput{Query: "  ", ProjectID: "P1"})
	gt.True(t, errors.Is(err, research.ErrEmptyQuery))

	_, err = uc.Ask(ctx, research.AskInput{Query: "find maps"})
	gt.True(t, errors.Is(err, research.ErrProjectMissing))
}

func TestAskFailedRunIsPersisted(t *testing.T) {
	env := newTestEnv(t)
	bq := &recordingBigQuery{}
	uc := research.New(env.deps,
		research.WithAudit(bq, "audit", "conversations"),
		research.WithCoordinatorOptions(agent.WithPlanPolicy(panicPolicy{})),
	)
	ctx := context.Background()

	_, err := uc.Ask(ctx, research.AskInput{Query: "find the evacuation map", ProjectID: "P1", SessionID: "S1"})
	gt.Error(t, err)

	list, err := uc.History(ctx, "P1", 10)
	gt.NoError(t, err)
	gt.A(t, list).Length(1)
	gt.False(t, list[0].Success)
	gt.S(t, list[0].Error).Contains("policy engine crashed")

	conv := readStored(t, env.storage, list[0].ID)
	gt.False(t, conv.Success)
	gt.A(t, bq.rows).Length(1)
}

func TestAskPersistenceIsBestEffort(t *testing.T) {
	env := newTestEnv(t)
	uc := research.New(env.deps, research.WithAudit(&recordingBigQuery{err: errors.New("quota exceeded")}, "audit", "conversations"))

	result, err := uc.Ask(context.Background(), research.AskInput{Query: "find the evacuation map", ProjectID: "P1"})
	gt.NoError(t, err)
	gt.NotEqual(t, result.Synthesis, "")
}

func TestAskSelectedData(t *testing.T) {
	env := newTestEnv(t)
	uc := research.New(env.deps)
	ctx := context.Background()

	hits, err := env.repo.SearchDataItems(ctx, make([]float32, mock.DefaultEmbeddingDim), "P1", 10)
	gt.NoError(t, err)
	gt.A(t, hits).Length(2)

	result, err := uc.Ask(ctx, research.AskInput{
		Query:           "compare these maps",
		ProjectID:       "P1",
		SelectedDataIDs: []string{string(hits[0].Item.ID), string(hits[1].Item.ID)},
	})
	gt.NoError(t, err)

	out := result.Results[model.AgentTypeAnalysis]
	gt.True(t, out.Success)
	cmp := out.Result.(*model.ComparisonResult)
	gt.A(t, cmp.Items).Length(2)
}

func TestSession(t *testing.T) {
	env := newTestEnv(t)
	uc := research.New(env.deps)
	ctx := context.Background()

	s := uc.NewSession(research.AskInput{ProjectID: "P1"})
	gt.NotEqual(t, s.ID(), "")

	_, err := s.Ask(ctx, "find the evacuation map")
	gt.NoError(t, err)
	second, err := s.Ask(ctx, "find the evacuation map again")
	gt.NoError(t, err)

	gt.True(t, strings.Contains(second.MemoryContext, "User query: find the evacuation map"))
	gt.A(t, s.Turns()).Length(2)

	list, err := uc.History(ctx, "P1", 10)
	gt.NoError(t, err)
	gt.A(t, list).Length(2)
	for _, conv := range list {
		gt.Equal(t, conv.SessionID, s.ID())
	}
}
