package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/conclave/pkg/usecase/data"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func dataCommand() *cli.Command {
	return &cli.Command{
		Name:  "data",
		Usage: "Manage project data items",
		Commands: []*cli.Command{
			dataAddCommand(),
			dataSearchCommand(),
			dataShowCommand(),
		},
	}
}

// newData creates the data use case
func (cfg *config) newData(ctx context.Context) (*data.UseCase, error) {
	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, err
	}
	storage, err := cfg.newStorage(ctx)
	if err != nil {
		return nil, err
	}
	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		return nil, err
	}
	return data.New(repo, gemini, storage), nil
}

func dataAddCommand() *cli.Command {
	var (
		cfg         config
		sc          scope
		description string
		mimeType    string
		tags        []string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "description",
			Aliases:     []string{"m"},
			Usage:       "Description used for search",
			Destination: &description,
		},
		&cli.StringFlag{
			Name:        "type",
			Aliases:     []string{"t"},
			Usage:       "MIME type. Detected when empty",
			Destination: &mimeType,
		},
		&cli.StringSliceFlag{
			Name:        "tag",
			Usage:       "Tag (repeatable)",
			Destination: &tags,
		},
	}
	flags = append(flags, scopeFlags(&sc)...)
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:      "add",
		Usage:     "Ingest a file into a project",
		ArgsUsage: "<file>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			path := c.Args().First()
			if path == "" {
				return goerr.New("file path is required")
			}

			f, err := os.Open(path)
			if err != nil {
				return goerr.Wrap(err, "failed to open file", goerr.V("path", path))
			}
			defer f.Close()

			uc, err := cfg.newData(ctx)
			if err != nil {
				return err
			}

			item, err := uc.Add(ctx, data.AddInput{
				ProjectID:   sc.projectID,
				Filename:    path,
				MIMEType:    mimeType,
				Description: description,
				Tags:        tags,
				Content:     f,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to add data item")
			}

			fmt.Fprintf(c.Root().Writer, "Data item added: %s (%s)\n", item.ID, item.Type)
			return nil
		},
	}
}

func dataSearchCommand() *cli.Command {
	var (
		cfg   config
		sc    scope
		limit int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Maximum number of items",
			Value:       10,
			Destination: &limit,
		},
	}
	flags = append(flags, scopeFlags(&sc)...)
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:      "search",
		Usage:     "Search project data by similarity",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))

			uc, err := cfg.newData(ctx)
			if err != nil {
				return err
			}

			hits, err := uc.Search(ctx, data.SearchOptions{
				ProjectID: sc.projectID,
				Query:     query,
				Limit:     int(limit),
			})
			if err != nil {
				return goerr.Wrap(err, "failed to search data")
			}

			if len(hits) == 0 {
				fmt.Fprintln(c.Root().Writer, "No data items found")
				return nil
			}
			for _, hit := range hits {
				fmt.Fprintf(c.Root().Writer, "%s\t%.3f\t%s\t%s\n",
					hit.Item.ID,
					hit.Score,
					hit.Item.Filename,
					hit.Item.Description,
				)
			}
			return nil
		},
	}
}

func dataShowCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:      "show",
		Usage:     "Show a data item",
		ArgsUsage: "<data-id>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			id := c.Args().First()
			if id == "" {
				return goerr.New("data ID is required")
			}

			uc, err := cfg.newData(ctx)
			if err != nil {
				return err
			}

			item, err := uc.Show(ctx, model.DataID(id))
			if err != nil {
				return goerr.Wrap(err, "failed to get data item")
			}
			return printJSON(c.Root().Writer, item)
		},
	}
}
