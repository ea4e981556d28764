package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/conclave/pkg/usecase/memory"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func memoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "memory",
		Usage: "Manage long-term memories",
		Commands: []*cli.Command{
			memoryStoreCommand(),
			memorySearchCommand(),
			memoryContextCommand(),
			memoryLinkCommand(),
			memoryPruneCommand(),
		},
	}
}

func memoryStoreCommand() *cli.Command {
	var (
		cfg        config
		sc         scope
		memType    string
		confidence float64
		tags       []string
		source     string
		ttl        time.Duration
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "type",
			Aliases:     []string{"t"},
			Usage:       "Memory type (fact|preference|pattern|context|skill)",
			Value:       string(model.MemoryTypeFact),
			Destination: &memType,
		},
		&cli.FloatFlag{
			Name:        "confidence",
			Aliases:     []string{"c"},
			Usage:       "Confidence in [0, 1]",
			Value:       0.7,
			Destination: &confidence,
		},
		&cli.StringSliceFlag{
			Name:        "tag",
			Usage:       "Tag (repeatable)",
			Destination: &tags,
		},
		&cli.StringFlag{
			Name:        "source",
			Usage:       "Origin of the memory",
			Value:       "cli",
			Destination: &source,
		},
		&cli.DurationFlag{
			Name:        "ttl",
			Usage:       "Expire the memory after this duration",
			Destination: &ttl,
		},
	}
	flags = append(flags, scopeFlags(&sc)...)
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:      "store",
		Usage:     "Store a memory, enriching a similar one if it exists",
		ArgsUsage: "<content>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			content := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if content == "" {
				return goerr.New("content is required")
			}

			uc, err := cfg.newMemory(ctx)
			if err != nil {
				return err
			}

			input := memory.StoreInput{
				ScopeID:    sc.projectID,
				SessionID:  sc.sessionID,
				UserID:     sc.userID,
				Type:       model.MemoryType(memType),
				Content:    content,
				Source:     source,
				Confidence: confidence,
				Tags:       tags,
			}
			if ttl > 0 {
				expiresAt := time.Now().Add(ttl)
				input.ExpiresAt = &expiresAt
			}

			result, err := uc.Store(ctx, input)
			if err != nil {
				return goerr.Wrap(err, "failed to store memory")
			}

			if result.Enriched {
				fmt.Fprintf(c.Root().Writer, "Memory enriched: %s\n", result.ID)
			} else {
				fmt.Fprintf(c.Root().Writer, "Memory stored: %s\n", result.ID)
			}
			return nil
		},
	}
}

func memorySearchCommand() *cli.Command {
	var (
		cfg           config
		sc            scope
		memType       string
		limit         int64
		minConfidence float64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "type",
			Aliases:     []string{"t"},
			Usage:       "Restrict to a memory type",
			Destination: &memType,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Maximum number of memories",
			Value:       memory.DefaultRetrieveLimit,
			Destination: &limit,
		},
		&cli.FloatFlag{
			Name:        "min-confidence",
			Usage:       "Minimum similarity and confidence, 0 disables the threshold",
			Value:       memory.DefaultMinConfidence,
			Destination: &minConfidence,
		},
	}
	flags = append(flags, scopeFlags(&sc)...)
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:      "search",
		Usage:     "Retrieve memories similar to a query",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if query == "" {
				return goerr.New("query is required")
			}

			uc, err := cfg.newMemory(ctx)
			if err != nil {
				return err
			}

			memories, err := uc.Retrieve(ctx, memory.RetrieveOptions{
				Query:         query,
				ScopeID:       sc.projectID,
				Limit:         int(limit),
				Type:          model.MemoryType(memType),
				MinConfidence: &minConfidence,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to retrieve memories")
			}

			printMemories(c.Root().Writer, memories)
			return nil
		},
	}
}

func memoryContextCommand() *cli.Command {
	var (
		cfg   config
		sc    scope
		query string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "query",
			Aliases:     []string{"q"},
			Usage:       "Select memories by similarity instead of session recency",
			Destination: &query,
		},
	}
	flags = append(flags, scopeFlags(&sc)...)
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "context",
		Usage: "Show the memory context block injected into prompts",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if query == "" && sc.sessionID == "" {
				return goerr.New("either query or session-id is required")
			}

			uc, err := cfg.newMemory(ctx)
			if err != nil {
				return err
			}

			text, _, err := uc.Context(ctx, memory.ContextOptions{
				ScopeID:   sc.projectID,
				SessionID: sc.sessionID,
				Query:     query,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to build memory context")
			}

			if text == "" {
				fmt.Fprintln(c.Root().Writer, "No memories found")
				return nil
			}
			fmt.Fprint(c.Root().Writer, text)
			return nil
		},
	}
}

func memoryLinkCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:      "link",
		Usage:     "Add related references to a memory",
		ArgsUsage: "<memory-id> <related-id>...",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			args := c.Args().Slice()
			if len(args) < 2 {
				return goerr.New("memory ID and at least one related ID are required")
			}

			uc, err := cfg.newMemory(ctx)
			if err != nil {
				return err
			}

			if err := uc.Link(ctx, model.MemoryID(args[0]), args[1:]); err != nil {
				return goerr.Wrap(err, "failed to link memories")
			}

			fmt.Fprintf(c.Root().Writer, "Memory linked: %s\n", args[0])
			return nil
		},
	}
}

func memoryPruneCommand() *cli.Command {
	var (
		cfg            config
		sc             scope
		minAccessCount int64
		minConfidence  float64
		olderThanDays  int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "min-access",
			Usage:       "Keep memories accessed at least this many times",
			Value:       memory.DefaultPruneMinAccess,
			Destination: &minAccessCount,
		},
		&cli.FloatFlag{
			Name:        "min-confidence",
			Usage:       "Keep memories with at least this confidence",
			Value:       memory.DefaultPruneConfidence,
			Destination: &minConfidence,
		},
		&cli.IntFlag{
			Name:        "older-than",
			Usage:       "Only consider memories older than this many days",
			Value:       memory.DefaultPruneOlderThan,
			Destination: &olderThanDays,
		},
	}
	flags = append(flags, scopeFlags(&sc)...)
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "prune",
		Usage: "Delete old memories that are rarely used and weakly held",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, err := cfg.newMemory(ctx)
			if err != nil {
				return err
			}

			n, err := uc.Prune(ctx, memory.PruneOptions{
				ScopeID:        sc.projectID,
				MinAccessCount: minAccessCount,
				MinConfidence:  minConfidence,
				OlderThanDays:  int(olderThanDays),
			})
			if err != nil {
				return goerr.Wrap(err, "failed to prune memories")
			}

			fmt.Fprintf(c.Root().Writer, "Pruned %d memories\n", n)
			return nil
		},
	}
}
