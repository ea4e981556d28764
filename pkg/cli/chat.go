package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/conclave/pkg/usecase/research"
	"github.com/m-mizutani/conclave/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func chatCommand() *cli.Command {
	var (
		cfg         config
		sc          scope
		projectName string
		verbose     bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "project-name",
			Usage:       "Project name given to the agents as context",
			Sources:     cli.EnvVars("CONCLAVE_PROJECT_NAME"),
			Destination: &projectName,
		},
		&cli.BoolFlag{
			Name:        "verbose",
			Aliases:     []string{"v"},
			Usage:       "Show plan and agent results",
			Destination: &verbose,
		},
	}
	flags = append(flags, scopeFlags(&sc)...)
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, agentFlags(&cfg)...)
	flags = append(flags, auditFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive research session keeping one session ID",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			deps, closer, err := cfg.newDependencies(ctx)
			if err != nil {
				return err
			}
			defer closer()

			uc, err := cfg.newResearch(ctx, deps)
			if err != nil {
				return err
			}

			session := uc.NewSession(research.AskInput{
				ProjectID:   sc.projectID,
				SessionID:   sc.sessionID,
				UserID:      sc.userID,
				ProjectName: projectName,
			})

			w := c.Root().Writer
			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "> ",
				HistoryFile:     historyFile(),
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
				Stdout:          w,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to start readline")
			}
			defer rl.Close()

			fmt.Fprintf(w, "Session %s started. Type 'exit' to quit.\n", session.ID())

			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					if line == "" {
						break
					}
					continue
				}
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				message := strings.TrimSpace(line)
				if message == "exit" || message == "quit" {
					break
				}
				if message == "" {
					continue
				}

				s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(c.Root().ErrWriter))
				s.Suffix = " agents are working..."
				s.Start()
				result, err := session.Ask(ctx, message)
				s.Stop()

				if err != nil {
					logging.From(ctx).Error("query failed", "error", err)
					fmt.Fprintf(w, "Error: %v\n", err)
					continue
				}
				printResult(w, result, verbose)
			}

			fmt.Fprintf(w, "\nSession %s completed (%d queries)\n", session.ID(), len(session.Turns()))
			return nil
		},
	}
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".conclave_history")
}
