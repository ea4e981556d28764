package cli

import (
	"context"

	"github.com/m-mizutani/conclave/pkg/adapter"
	"github.com/m-mizutani/conclave/pkg/interfaces"
	"github.com/m-mizutani/conclave/pkg/repository"
)

// TestConfig exposes config construction to tests
type TestConfig struct {
	Project     string
	Database    string
	DataDir     string
	LLMProvider string
	APIKey      string
}

func (x TestConfig) config() *config {
	return &config{
		project:         x.Project,
		database:        x.Database,
		dataDir:         x.DataDir,
		llmProvider:     x.LLMProvider,
		anthropicAPIKey: x.APIKey,
	}
}

func NewRepository(ctx context.Context, x TestConfig) (repository.Repository, error) {
	return x.config().newRepository(ctx)
}

func NewStorage(ctx context.Context, x TestConfig) (adapter.Storage, error) {
	return x.config().newStorage(ctx)
}

func NewGenerator(x TestConfig) (interfaces.TextGenerator, error) {
	return x.config().newGenerator(nil)
}
