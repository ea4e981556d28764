package data

import (
	"context"

	"github.com/m-mizutani/conclave/pkg/interfaces"
	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// SearchOptions contains options for searching project data
type SearchOptions struct {
	ProjectID string
	Query     string
	Limit     int // 0 means 10
}

// Search ranks the data items of a project by similarity to the query
func (u *UseCase) Search(ctx context.Context, opts SearchOptions) ([]*model.ScoredDataItem, error) {
	if opts.ProjectID == "" {
		return nil, goerr.New("project ID is required")
	}
	if opts.Query == "" {
		return nil, goerr.New("query is required")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	embedding, err := u.embedder.Embed(ctx, &interfaces.EmbedInput{
		Text: opts.Query,
		Mode: interfaces.EmbedModeQuery,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed query")
	}

	return u.repo.SearchDataItems(ctx, embedding, opts.ProjectID, limit)
}
