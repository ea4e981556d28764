package agent

import (
	"bytes"
	"context"
	_ "embed"
	"io"
	"slices"
	"strings"
	"text/template"

	"github.com/m-mizutani/conclave/pkg/interfaces"
	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/conclave/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

//go:embed prompt/analyze.md
var analyzePromptRaw string

var analyzePromptTmpl = template.Must(template.New("analyze").Parse(analyzePromptRaw))

// maxTextContent bounds how much of a text item goes into the prompt
const maxTextContent = 32 * 1024

// AnalysisAgent analyzes stored project content with the text generator and
// compares items by their tags
type AnalysisAgent struct {
	base
	deps *Dependencies
}

var _ Agent = (*AnalysisAgent)(nil)

func NewAnalysisAgent(deps *Dependencies) (*AnalysisAgent, error) {
	if deps == nil || deps.Repo == nil || deps.Generator == nil || deps.Storage == nil {
		return nil, goerr.New("analysis agent requires repository, text generator and storage")
	}
	a := &AnalysisAgent{deps: deps}
	a.init(model.AgentTypeAnalysis, a.run)
	return a, nil
}

func (a *AnalysisAgent) run(ctx context.Context, input *model.TaskInput) (any, error) {
	if strings.Contains(strings.ToLower(input.Task), "compare") || len(input.Data.Strings("dataIds")) > 1 {
		return a.compare(ctx, input.Data.Strings("dataIds"))
	}

	dataID := input.Data.String("dataId")
	if dataID == "" {
		if selected := a.Scope().SelectedDataIDs; len(selected) > 0 {
			dataID = selected[0]
		}
	}
	if dataID == "" {
		return nil, goerr.New("dataId is required for analysis")
	}

	focus := input.Data.String("query")
	if focus == "" {
		focus = a.Scope().UserQuery
	}
	return a.analyze(ctx, model.DataID(dataID), focus)
}

func (a *AnalysisAgent) getItem(ctx context.Context, id model.DataID) (*model.DataItem, error) {
	item, err := a.deps.Repo.GetDataItem(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get data item", goerr.V("data_id", id))
	}
	if projectID := a.Scope().ProjectID; item.ProjectID != projectID {
		return nil, goerr.New("data item belongs to another project",
			goerr.V("data_id", id),
			goerr.V("project_id", projectID))
	}
	return item, nil
}

func (a *AnalysisAgent) readContent(ctx context.Context, item *model.DataItem) ([]byte, error) {
	r, err := a.deps.Storage.Get(ctx, item.StoragePath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open data content", goerr.V("data_id", item.ID))
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read data content", goerr.V("data_id", item.ID))
	}
	return data, nil
}

func isTextContent(mimeType string) bool {
	return strings.HasPrefix(mimeType, "text/") ||
		containsAny(mimeType, "json", "xml", "yaml", "csv")
}

func (a *AnalysisAgent) analyze(ctx context.Context, id model.DataID, focus string) (*model.AnalysisResult, error) {
	item, err := a.getItem(ctx, id)
	if err != nil {
		return nil, err
	}

	raw, err := a.readContent(ctx, item)
	if err != nil {
		return nil, err
	}

	content := &interfaces.CompressedContent{
		Data:     raw,
		MIMEType: item.Type,
		Stats: model.CompressionStats{
			OriginalSize:   len(raw),
			CompressedSize: len(raw),
			Ratio:          1.0,
		},
	}
	if a.deps.Compressor != nil {
		compressed, err := a.deps.Compressor.Compress(ctx, raw, item.Type)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to compress content", goerr.V("data_id", id))
		}
		content = compressed
	}

	scope := a.Scope()
	params := map[string]any{
		"ProjectName":        scope.ProjectName,
		"ProjectDescription": scope.ProjectDescription,
		"Filename":           item.Filename,
		"Type":               item.Type,
		"Description":        item.Description,
		"Tags":               strings.Join(item.Tags, ", "),
		"Focus":              focus,
		"IsImage":            content.Stats.IsImage,
	}

	var images []*interfaces.Image
	switch {
	case content.Stats.IsImage:
		images = append(images, &interfaces.Image{Data: content.Data, MIMEType: content.MIMEType})
	case isTextContent(item.Type):
		params["Content"] = truncateUTF8(string(content.Data), maxTextContent)
	}

	var buf bytes.Buffer
	if err := analyzePromptTmpl.Execute(&buf, params); err != nil {
		return nil, goerr.Wrap(err, "failed to execute analyze prompt template")
	}

	analysis, err := a.deps.Generator.Generate(ctx, buf.String(), images...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate analysis", goerr.V("data_id", id))
	}

	item.Analysis = analysis
	if err := a.deps.Repo.PutDataItem(ctx, item); err != nil {
		logging.From(ctx).Warn("failed to save analysis", "data_id", id, "error", err)
	}

	return &model.AnalysisResult{
		DataID:   item.ID,
		Filename: item.Filename,
		Analysis: analysis,
		Metadata: content.Stats,
	}, nil
}

// compare reports tags shared by every item and tags found in only one item
func (a *AnalysisAgent) compare(ctx context.Context, ids []string) (*model.ComparisonResult, error) {
	if len(ids) < 2 {
		return nil, goerr.New("at least two dataIds are required for comparison", goerr.V("count", len(ids)))
	}

	result := &model.ComparisonResult{
		Items:      make([]model.ComparedItem, 0, len(ids)),
		CommonTags: []string{},
		UniqueTags: make(map[model.DataID][]string, len(ids)),
	}

	tagCount := make(map[string]int)
	for _, id := range ids {
		item, err := a.getItem(ctx, model.DataID(id))
		if err != nil {
			return nil, err
		}
		tags := model.UnionStrings(nil, item.Tags...)
		for _, tag := range tags {
			tagCount[tag]++
		}
		result.Items = append(result.Items, model.ComparedItem{
			DataID:   item.ID,
			Filename: item.Filename,
			Analysis: item.Analysis,
			Tags:     tags,
		})
	}

	for i, item := range result.Items {
		unique := []string{}
		for _, tag := range item.Tags {
			switch tagCount[tag] {
			case 1:
				unique = append(unique, tag)
			case len(result.Items):
				if i == 0 && !slices.Contains(result.CommonTags, tag) {
					result.CommonTags = append(result.CommonTags, tag)
				}
			}
		}
		result.UniqueTags[item.DataID] = unique
	}

	return result, nil
}
