package cli_test

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/conclave/pkg/adapter"
	"github.com/m-mizutani/conclave/pkg/cli"
	"github.com/m-mizutani/conclave/pkg/repository"
	"github.com/m-mizutani/gt"
)

func TestRunRequiresArguments(t *testing.T) {
	ctx := context.Background()

	t.Run("ask without project id", func(t *testing.T) {
		err := cli.Run(ctx, []string{"conclave", "ask", "find the diagram"})
		gt.NotNil(t, err)
		gt.Equal(t, err.Code, 1)
	})

	t.Run("memory link without ids", func(t *testing.T) {
		err := cli.Run(ctx, []string{"conclave", "memory", "link", "--data-dir", t.TempDir()})
		gt.NotNil(t, err)
	})
}

func TestNewRepositoryFallsBackToMemory(t *testing.T) {
	repo, err := cli.NewRepository(context.Background(), cli.TestConfig{})
	gt.NoError(t, err)
	_, ok := repo.(*repository.Memory)
	gt.True(t, ok)
}

func TestNewStorageUsesDataDir(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "store")

	st, err := cli.NewStorage(ctx, cli.TestConfig{DataDir: dir})
	gt.NoError(t, err)

	w, err := st.Put(ctx, "conversations/x.json")
	gt.NoError(t, err)
	_, err = w.Write([]byte("{}"))
	gt.NoError(t, err)
	gt.NoError(t, w.Close())

	r, err := st.Get(ctx, "conversations/x.json")
	gt.NoError(t, err)
	defer r.Close()
	body, err := io.ReadAll(r)
	gt.NoError(t, err)
	gt.Equal(t, string(body), "{}")

	_, err = cli.NewStorage(ctx, cli.TestConfig{})
	gt.Error(t, err)
}

func TestNewGenerator(t *testing.T) {
	t.Run("claude requires api key", func(t *testing.T) {
		_, err := cli.NewGenerator(cli.TestConfig{LLMProvider: "claude"})
		gt.Error(t, err)
	})

	t.Run("claude", func(t *testing.T) {
		g, err := cli.NewGenerator(cli.TestConfig{LLMProvider: "claude", APIKey: "sk-test"})
		gt.NoError(t, err)
		_, ok := g.(*adapter.Claude)
		gt.True(t, ok)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := cli.NewGenerator(cli.TestConfig{LLMProvider: "llama"})
		gt.Error(t, err)
	})
}
