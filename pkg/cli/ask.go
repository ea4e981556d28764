package cli

import (
	"context"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/m-mizutani/conclave/pkg/usecase/research"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func askCommand() *cli.Command {
	var (
		cfg         config
		sc          scope
		projectName string
		projectDesc string
		dataIDs     []string
		verbose     bool
		asJSON      bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "project-name",
			Usage:       "Project name given to the agents as context",
			Sources:     cli.EnvVars("CONCLAVE_PROJECT_NAME"),
			Destination: &projectName,
		},
		&cli.StringFlag{
			Name:        "project-description",
			Usage:       "Project description given to the agents as context",
			Sources:     cli.EnvVars("CONCLAVE_PROJECT_DESCRIPTION"),
			Destination: &projectDesc,
		},
		&cli.StringSliceFlag{
			Name:        "data-id",
			Aliases:     []string{"i"},
			Usage:       "Selected data item ID (repeatable)",
			Destination: &dataIDs,
		},
		&cli.BoolFlag{
			Name:        "verbose",
			Aliases:     []string{"v"},
			Usage:       "Show plan and agent results",
			Destination: &verbose,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "Print the full result as JSON",
			Destination: &asJSON,
		},
	}
	flags = append(flags, scopeFlags(&sc)...)
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, agentFlags(&cfg)...)
	flags = append(flags, auditFlags(&cfg)...)

	return &cli.Command{
		Name:      "ask",
		Usage:     "Run one research query through the agents",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if query == "" {
				return goerr.New("query is required")
			}

			deps, closer, err := cfg.newDependencies(ctx)
			if err != nil {
				return err
			}
			defer closer()

			uc, err := cfg.newResearch(ctx, deps)
			if err != nil {
				return err
			}

			w := c.Root().Writer
			s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(c.Root().ErrWriter))
			s.Suffix = " agents are working..."
			s.Start()

			result, err := uc.Ask(ctx, research.AskInput{
				Query:              query,
				ProjectID:          sc.projectID,
				SessionID:          sc.sessionID,
				UserID:             sc.userID,
				ProjectName:        projectName,
				ProjectDescription: projectDesc,
				SelectedDataIDs:    dataIDs,
			})
			s.Stop()
			if err != nil {
				return goerr.Wrap(err, "failed to run query")
			}

			if asJSON {
				return printJSON(w, result)
			}
			printResult(w, result, verbose)
			return nil
		},
	}
}
