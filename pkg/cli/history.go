package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/conclave/pkg/agent"
	"github.com/m-mizutani/conclave/pkg/usecase/research"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Browse recorded research conversations",
		Commands: []*cli.Command{
			historyListCommand(),
			historyShowCommand(),
		},
	}
}

// newHistory creates a research use case for reading records only
func (cfg *config) newHistory(ctx context.Context) (*research.UseCase, error) {
	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, err
	}
	storage, err := cfg.newStorage(ctx)
	if err != nil {
		return nil, err
	}
	return research.New(&agent.Dependencies{Repo: repo, Storage: storage}), nil
}

func historyListCommand() *cli.Command {
	var (
		cfg   config
		sc    scope
		limit int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Maximum number of conversations",
			Value:       research.DefaultHistoryLimit,
			Destination: &limit,
		},
	}
	flags = append(flags, scopeFlags(&sc)...)
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List the latest conversations of a project",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, err := cfg.newHistory(ctx)
			if err != nil {
				return err
			}

			convs, err := uc.History(ctx, sc.projectID, int(limit))
			if err != nil {
				return goerr.Wrap(err, "failed to list conversations")
			}

			if len(convs) == 0 {
				fmt.Fprintf(c.Root().Writer, "No conversations found for project %s\n", sc.projectID)
				return nil
			}

			for _, conv := range convs {
				status := "ok"
				if !conv.Success {
					status = "failed"
				}
				fmt.Fprintf(c.Root().Writer, "%s\t%s\t%s\t%s\t%s\n",
					conv.ID,
					conv.CreatedAt.Format(timeFormat),
					status,
					conv.SessionID,
					conv.Query,
				)
			}
			return nil
		},
	}
}

func historyShowCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:      "show",
		Usage:     "Show a conversation with its agent results",
		ArgsUsage: "<conversation-id>",
		Flags:     globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			id := c.Args().First()
			if id == "" {
				return goerr.New("conversation ID is required")
			}

			uc, err := cfg.newHistory(ctx)
			if err != nil {
				return err
			}

			conv, err := uc.Show(ctx, id)
			if err != nil {
				return goerr.Wrap(err, "failed to get conversation")
			}
			return printJSON(c.Root().Writer, conv)
		},
	}
}
