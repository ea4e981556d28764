package cli

import (
	"context"

	"github.com/m-mizutani/conclave/pkg/adapter"
	"github.com/m-mizutani/conclave/pkg/agent"
	"github.com/m-mizutani/conclave/pkg/interfaces"
	"github.com/m-mizutani/conclave/pkg/policy"
	"github.com/m-mizutani/conclave/pkg/repository"
	"github.com/m-mizutani/conclave/pkg/service/image"
	"github.com/m-mizutani/conclave/pkg/service/mcp"
	"github.com/m-mizutani/conclave/pkg/usecase/memory"
	"github.com/m-mizutani/conclave/pkg/usecase/research"
	"github.com/m-mizutani/conclave/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

const (
	llmProviderGemini = "gemini"
	llmProviderClaude = "claude"
)

// config holds configuration values
type config struct {
	// Repository
	project  string
	database string

	// Content store
	bucket        string
	storagePrefix string
	dataDir       string

	// LLM
	llmProvider     string
	anthropicAPIKey string
	claudeModel     string
	geminiProject   string
	geminiLocation  string
	geminiModel     string
	embeddingModel  string
	embeddingDim    int64

	// Agents
	maxSteps    int64
	policyDir   string
	mcpConfig   string
	imageMaxDim int64

	// Audit
	bigqueryDataset string
	bigqueryTable   string
}

// globalFlags returns repository and content store flags
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID. In-process repository is used when empty",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket for content and conversation records",
			Sources:     cli.EnvVars("CONCLAVE_BUCKET"),
			Destination: &cfg.bucket,
		},
		&cli.StringFlag{
			Name:        "storage-prefix",
			Usage:       "Object key prefix in the bucket",
			Sources:     cli.EnvVars("CONCLAVE_STORAGE_PREFIX"),
			Destination: &cfg.storagePrefix,
		},
		&cli.StringFlag{
			Name:        "data-dir",
			Usage:       "Local directory used as content store when no bucket is set",
			Value:       ".conclave",
			Sources:     cli.EnvVars("CONCLAVE_DATA_DIR"),
			Destination: &cfg.dataDir,
		},
	}
}

// llmFlags returns flags for LLM-related configuration
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "llm-provider",
			Usage:       "Text generation provider (gemini|claude)",
			Value:       llmProviderGemini,
			Sources:     cli.EnvVars("CONCLAVE_LLM_PROVIDER"),
			Destination: &cfg.llmProvider,
		},
		&cli.StringFlag{
			Name:        "anthropic-api-key",
			Usage:       "Anthropic API key",
			Sources:     cli.EnvVars("ANTHROPIC_API_KEY"),
			Destination: &cfg.anthropicAPIKey,
		},
		&cli.StringFlag{
			Name:        "claude-model",
			Usage:       "Claude model name",
			Value:       "claude-sonnet-4-20250514",
			Sources:     cli.EnvVars("CONCLAVE_CLAUDE_MODEL"),
			Destination: &cfg.claudeModel,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini. Defaults to --project",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini generative model",
			Value:       "gemini-2.5-flash",
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Gemini embedding model",
			Value:       "gemini-embedding-001",
			Sources:     cli.EnvVars("GEMINI_EMBEDDING_MODEL"),
			Destination: &cfg.embeddingModel,
		},
		&cli.IntFlag{
			Name:        "embedding-dim",
			Usage:       "Embedding dimension. Must match the vector indexes",
			Value:       768,
			Sources:     cli.EnvVars("GEMINI_EMBEDDING_DIM"),
			Destination: &cfg.embeddingDim,
		},
	}
}

// agentFlags returns flags for the coordinator and specialists
func agentFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "max-steps",
			Usage:       "Maximum number of agent steps per query",
			Value:       agent.DefaultMaxSteps,
			Sources:     cli.EnvVars("CONCLAVE_MAX_STEPS"),
			Destination: &cfg.maxSteps,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego plan policies",
			Sources:     cli.EnvVars("CONCLAVE_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
		&cli.StringFlag{
			Name:        "mcp-config",
			Usage:       "MCP configuration file providing the web search tool",
			Sources:     cli.EnvVars("CONCLAVE_MCP_CONFIG"),
			Destination: &cfg.mcpConfig,
		},
		&cli.IntFlag{
			Name:        "image-max-dim",
			Usage:       "Maximum width or height of images sent to the model",
			Value:       image.DefaultMaxDimension,
			Sources:     cli.EnvVars("CONCLAVE_IMAGE_MAX_DIM"),
			Destination: &cfg.imageMaxDim,
		},
	}
}

// auditFlags returns flags for BigQuery audit rows
func auditFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "bigquery-dataset",
			Usage:       "BigQuery dataset for conversation audit rows",
			Sources:     cli.EnvVars("CONCLAVE_BIGQUERY_DATASET"),
			Destination: &cfg.bigqueryDataset,
		},
		&cli.StringFlag{
			Name:        "bigquery-table",
			Usage:       "BigQuery table for conversation audit rows",
			Sources:     cli.EnvVars("CONCLAVE_BIGQUERY_TABLE"),
			Destination: &cfg.bigqueryTable,
		},
	}
}

// newRepository creates the Firestore repository, or an in-process one when
// no project is configured
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	if cfg.project == "" {
		logging.From(ctx).Warn("no project configured, using in-process repository; data is not persisted")
		return repository.NewMemory(), nil
	}
	if cfg.database == "" {
		return nil, goerr.New("database is required")
	}

	repo, err := repository.New(ctx, cfg.project, cfg.database)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create repository")
	}
	return repo, nil
}

// newStorage creates the Cloud Storage adapter, or a local directory store
// when no bucket is configured
func (cfg *config) newStorage(ctx context.Context) (adapter.Storage, error) {
	if cfg.bucket == "" {
		if cfg.dataDir == "" {
			return nil, goerr.New("either bucket or data-dir is required")
		}
		return adapter.NewFileStorage(cfg.dataDir)
	}

	storage, err := adapter.NewStorage(ctx, cfg.bucket, adapter.WithStoragePrefix(cfg.storagePrefix))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return storage, nil
}

// newGemini creates a new Gemini adapter instance
func (cfg *config) newGemini(ctx context.Context) (*adapter.Gemini, error) {
	project := cfg.geminiProject
	if project == "" {
		project = cfg.project
	}
	if project == "" {
		return nil, goerr.New("gemini-project or project is required")
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}

	return adapter.NewGemini(ctx, project, cfg.geminiLocation,
		adapter.WithGenerativeModel(cfg.geminiModel),
		adapter.WithEmbeddingModel(cfg.embeddingModel),
		adapter.WithEmbeddingDimension(int32(cfg.embeddingDim)),
	)
}

// newGenerator picks the text generation service
func (cfg *config) newGenerator(gemini *adapter.Gemini) (interfaces.TextGenerator, error) {
	switch cfg.llmProvider {
	case llmProviderGemini, "":
		return gemini, nil
	case llmProviderClaude:
		if cfg.anthropicAPIKey == "" {
			return nil, goerr.New("anthropic-api-key is required for claude provider")
		}
		return adapter.NewClaude(cfg.anthropicAPIKey, adapter.WithClaudeModel(cfg.claudeModel)), nil
	default:
		return nil, goerr.New("unsupported llm provider", goerr.V("provider", cfg.llmProvider))
	}
}

// newWebSearcher connects to the MCP web search tool. It returns a nil
// interface when none is configured.
func (cfg *config) newWebSearcher(ctx context.Context) (interfaces.WebSearcher, func(), error) {
	ws, err := mcp.LoadWebSearcher(ctx, cfg.mcpConfig)
	if err != nil {
		return nil, nil, err
	}
	if ws == nil {
		return nil, func() {}, nil
	}
	return ws, func() {
		if err := ws.Close(); err != nil {
			logging.From(ctx).Warn("failed to close MCP sessions", "error", err)
		}
	}, nil
}

// newMemory creates the memory store use case
func (cfg *config) newMemory(ctx context.Context) (*memory.UseCase, error) {
	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, err
	}
	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		return nil, err
	}
	return memory.New(repo, gemini), nil
}

// newDependencies wires every collaborator the agents need. The returned
// function releases external sessions.
func (cfg *config) newDependencies(ctx context.Context) (*agent.Dependencies, func(), error) {
	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, nil, err
	}

	storage, err := cfg.newStorage(ctx)
	if err != nil {
		return nil, nil, err
	}

	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		return nil, nil, err
	}

	generator, err := cfg.newGenerator(gemini)
	if err != nil {
		return nil, nil, err
	}

	webSearch, closeWebSearch, err := cfg.newWebSearcher(ctx)
	if err != nil {
		return nil, nil, err
	}

	deps := &agent.Dependencies{
		Repo:       repo,
		Memory:     memory.New(repo, gemini),
		Embedder:   gemini,
		Generator:  generator,
		WebSearch:  webSearch,
		Compressor: image.New(image.WithMaxDimension(int(cfg.imageMaxDim))),
		Storage:    storage,
	}
	return deps, closeWebSearch, nil
}

// newResearch creates the research use case with plan policy and audit
func (cfg *config) newResearch(ctx context.Context, deps *agent.Dependencies) (*research.UseCase, error) {
	coordinatorOpts := []agent.CoordinatorOption{
		agent.WithMaxSteps(int(cfg.maxSteps)),
	}

	if cfg.policyDir != "" {
		planner, err := policy.New(ctx, cfg.policyDir)
		if err != nil {
			return nil, err
		}
		coordinatorOpts = append(coordinatorOpts, agent.WithPlanPolicy(planner))
	}

	opts := []research.Option{
		research.WithCoordinatorOptions(coordinatorOpts...),
	}

	if cfg.bigqueryDataset != "" && cfg.bigqueryTable != "" {
		if cfg.project == "" {
			return nil, goerr.New("project is required for BigQuery audit")
		}
		bq, err := adapter.NewBigQuery(ctx, cfg.project)
		if err != nil {
			return nil, err
		}
		opts = append(opts, research.WithAudit(bq, cfg.bigqueryDataset, cfg.bigqueryTable))
	}

	return research.New(deps, opts...), nil
}
