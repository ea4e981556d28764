package agent

import (
	"context"
	"strings"
	"unicode"

	"github.com/m-mizutani/conclave/pkg/interfaces"
	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/conclave/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

const defaultSearchLimit = 10

// SearchAgent finds project data items by semantic similarity and optionally
// searches the web
type SearchAgent struct {
	base
	deps *Dependencies
}

var _ Agent = (*SearchAgent)(nil)

func NewSearchAgent(deps *Dependencies) (*SearchAgent, error) {
	if deps == nil || deps.Repo == nil || deps.Embedder == nil {
		return nil, goerr.New("search agent requires repository and embedder")
	}
	a := &SearchAgent{deps: deps}
	a.init(model.AgentTypeSearch, a.run)
	return a, nil
}

type searchMode int

const (
	searchProject searchMode = iota
	searchSimilar
	searchWeb
)

// webIntents are whole-word phrases that ask for an external web search
var webIntents = []string{
	"web search",
	"search the web",
	"on the web",
	"search online",
	"internet",
}

// hasWebIntent reports whether the task asks for a web search. Words such as
// "website" or "web server" do not count.
func hasWebIntent(task string) bool {
	words := strings.FieldsFunc(strings.ToLower(task), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	padded := " " + strings.Join(words, " ") + " "
	for _, phrase := range webIntents {
		if strings.Contains(padded, " "+phrase+" ") {
			return true
		}
	}
	return false
}

// classifySearch picks the search mode. explicit is true when the caller set
// data["mode"] rather than the mode being inferred from the task wording.
func classifySearch(input *model.TaskInput) (mode searchMode, explicit bool) {
	switch input.Data.String("mode") {
	case "web":
		return searchWeb, true
	case "similar":
		return searchSimilar, true
	case "project":
		return searchProject, true
	}

	task := strings.ToLower(input.Task)
	switch {
	case hasWebIntent(task):
		return searchWeb, false
	case input.Data.String("referenceId") != "" || (strings.Contains(task, "similar") && input.Data.String("dataId") != ""):
		return searchSimilar, false
	default:
		return searchProject, false
	}
}

func (a *SearchAgent) run(ctx context.Context, input *model.TaskInput) (any, error) {
	limit := input.Data.Int("limit", defaultSearchLimit)
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	mode, explicit := classifySearch(input)
	if mode == searchWeb && !explicit && a.deps.WebSearch == nil {
		logging.From(ctx).Debug("web search is disabled, searching project data instead", "task", input.Task)
		mode = searchProject
	}

	switch mode {
	case searchWeb:
		return a.searchWeb(ctx, searchQuery(input))
	case searchSimilar:
		ref := input.Data.String("referenceId")
		if ref == "" {
			ref = input.Data.String("dataId")
		}
		return a.searchSimilar(ctx, model.DataID(ref), limit)
	default:
		return a.searchProject(ctx, searchQuery(input), limit)
	}
}

func searchQuery(input *model.TaskInput) string {
	if q := input.Data.String("query"); q != "" {
		return q
	}
	return input.Task
}

func (a *SearchAgent) searchProject(ctx context.Context, query string, limit int) (*model.SearchResult, error) {
	if query == "" {
		return nil, goerr.New("search query is required")
	}
	projectID := a.Scope().ProjectID

	embedding, err := a.deps.Embedder.Embed(ctx, &interfaces.EmbedInput{
		Text: query,
		Mode: interfaces.EmbedModeQuery,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed search query")
	}

	items, err := a.deps.Repo.SearchDataItems(ctx, embedding, projectID, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search data items", goerr.V("project_id", projectID))
	}

	return newSearchResult(query, items), nil
}

func (a *SearchAgent) searchSimilar(ctx context.Context, refID model.DataID, limit int) (*model.SearchResult, error) {
	projectID := a.Scope().ProjectID

	ref, err := a.deps.Repo.GetDataItem(ctx, refID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get reference item", goerr.V("data_id", refID))
	}
	if ref.ProjectID != projectID {
		return nil, goerr.New("reference item belongs to another project",
			goerr.V("data_id", refID),
			goerr.V("project_id", projectID))
	}
	if len(ref.Embedding) == 0 {
		return nil, goerr.New("reference item has no embedding", goerr.V("data_id", refID))
	}

	items, err := a.deps.Repo.SearchDataItems(ctx, ref.Embedding, projectID, limit+1)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search similar items", goerr.V("data_id", refID))
	}

	similar := make([]*model.ScoredDataItem, 0, len(items))
	for _, item := range items {
		if item.Item.ID == refID {
			continue
		}
		similar = append(similar, item)
	}
	if len(similar) > limit {
		similar = similar[:limit]
	}

	return newSearchResult(ref.Filename, similar), nil
}

func (a *SearchAgent) searchWeb(ctx context.Context, query string) (*model.SearchResult, error) {
	if a.deps.WebSearch == nil {
		return nil, goerr.Wrap(ErrWebSearchDisabled, "web search requested", goerr.V("query", query))
	}

	resp, err := a.deps.WebSearch.Search(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search web", goerr.V("query", query))
	}

	result := &model.SearchResult{
		Found:   len(resp.Citations),
		Results: make([]model.SearchHit, 0, len(resp.Citations)),
		Query:   query,
		Answer:  resp.Answer,
	}
	for _, c := range resp.Citations {
		result.Results = append(result.Results, model.SearchHit{
			ID:          c.URL,
			Filename:    c.Title,
			Type:        "web",
			Description: c.Snippet,
		})
	}
	return result, nil
}

func newSearchResult(query string, items []*model.ScoredDataItem) *model.SearchResult {
	result := &model.SearchResult{
		Found:   len(items),
		Results: make([]model.SearchHit, 0, len(items)),
		Query:   query,
	}
	for _, item := range items {
		result.Results = append(result.Results, model.SearchHit{
			ID:          string(item.Item.ID),
			Filename:    item.Item.Filename,
			Type:        item.Item.Type,
			Score:       item.Score,
			Description: item.Item.Description,
			Tags:        item.Item.Tags,
		})
	}
	return result
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
