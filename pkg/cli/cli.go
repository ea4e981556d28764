package cli

import (
	"context"

	"github.com/m-mizutani/conclave/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	var (
		logLevel  string
		logFormat string
	)

	cmd := &cli.Command{
		Name:  "conclave",
		Usage: "Multi-agent research assistant with long-term memory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "Log level (debug|info|warn|error)",
				Value:       "info",
				Sources:     cli.EnvVars("CONCLAVE_LOG_LEVEL"),
				Destination: &logLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "Log format (console|json)",
				Value:       string(logging.FormatConsole),
				Sources:     cli.EnvVars("CONCLAVE_LOG_FORMAT"),
				Destination: &logFormat,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			logger := logging.NewWithFormat(logLevel, logging.Format(logFormat), c.Root().ErrWriter)
			logging.SetDefault(logger)
			return logging.With(ctx, logger), nil
		},
		Commands: []*cli.Command{
			askCommand(),
			chatCommand(),
			memoryCommand(),
			dataCommand(),
			historyCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		logging.From(ctx).Error("command failed", "error", err)
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

// scope holds the flags that select the research scope of a command
type scope struct {
	projectID string
	sessionID string
	userID    string
}

func scopeFlags(s *scope) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "project-id",
			Aliases:     []string{"P"},
			Usage:       "Research project ID that scopes memories and data",
			Sources:     cli.EnvVars("CONCLAVE_PROJECT_ID"),
			Destination: &s.projectID,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "session-id",
			Aliases:     []string{"s"},
			Usage:       "Session ID. Generated when empty",
			Sources:     cli.EnvVars("CONCLAVE_SESSION_ID"),
			Destination: &s.sessionID,
		},
		&cli.StringFlag{
			Name:        "user-id",
			Aliases:     []string{"u"},
			Usage:       "User ID recorded with memories and conversations",
			Sources:     cli.EnvVars("CONCLAVE_USER_ID"),
			Destination: &s.userID,
		},
	}
}
