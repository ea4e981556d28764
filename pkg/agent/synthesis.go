package agent

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

var (
	//go:embed prompt/synthesize.md
	synthesizePromptRaw string
	//go:embed prompt/summarize.md
	summarizePromptRaw string
	//go:embed prompt/report.md
	reportPromptRaw string
	//go:embed prompt/compare.md
	comparePromptRaw string
)

var promptFuncs = template.FuncMap{
	"add": func(a, b int) int { return a + b },
}

var (
	synthesizePromptTmpl = template.Must(template.New("synthesize").Funcs(promptFuncs).Parse(synthesizePromptRaw))
	summarizePromptTmpl  = template.Must(template.New("summarize").Funcs(promptFuncs).Parse(summarizePromptRaw))
	reportPromptTmpl     = template.Must(template.New("report").Funcs(promptFuncs).Parse(reportPromptRaw))
	comparePromptTmpl    = template.Must(template.New("compare").Funcs(promptFuncs).Parse(comparePromptRaw))
)

// maxEntryData bounds the serialized data of one entry in a prompt
const maxEntryData = 8 * 1024

const (
	SynthesisModeSynthesize = "synthesize"
	SynthesisModeSummarize  = "summarize"
	SynthesisModeReport     = "report"
	SynthesisModeCompare    = "compare"
)

// SynthesisAgent merges agent outputs into one answer with the text generator
type SynthesisAgent struct {
	base
	deps *Dependencies
}

var _ Agent = (*SynthesisAgent)(nil)

func NewSynthesisAgent(deps *Dependencies) (*SynthesisAgent, error) {
	if deps == nil || deps.Generator == nil {
		return nil, goerr.New("synthesis agent requires text generator")
	}
	a := &SynthesisAgent{deps: deps}
	a.init(model.AgentTypeSynthesis, a.run)
	return a, nil
}

func classifySynthesis(input *model.TaskInput) string {
	if mode := input.Data.String("mode"); mode != "" {
		return mode
	}
	task := strings.ToLower(input.Task)
	switch {
	case strings.Contains(task, "summar"):
		return SynthesisModeSummarize
	case strings.Contains(task, "report"):
		return SynthesisModeReport
	case strings.Contains(task, "compare"):
		return SynthesisModeCompare
	}
	return SynthesisModeSynthesize
}

// promptEntry is a SynthesisEntry with its data rendered as text
type promptEntry struct {
	Agent   model.AgentType
	Type    string
	Summary string
	Data    string
}

func (a *SynthesisAgent) run(ctx context.Context, input *model.TaskInput) (any, error) {
	entries := entriesFrom(input.Data["entries"])
	query := input.Data.String("query")
	if query == "" {
		query = a.Scope().UserQuery
	}
	memoryContext := input.Data.String("memoryContext")

	var (
		tmpl   *template.Template
		params = map[string]any{
			"Query":         query,
			"MemoryContext": memoryContext,
			"Entries":       renderEntries(entries),
			"ProjectName":   a.Scope().ProjectName,
		}
		sources = entrySources(entries)
	)

	switch mode := classifySynthesis(input); mode {
	case SynthesisModeSynthesize:
		tmpl = synthesizePromptTmpl

	case SynthesisModeSummarize:
		content := input.Data.String("content")
		if content == "" && len(entries) == 0 {
			return nil, goerr.New("content or entries are required for summarization")
		}
		params["Content"] = content
		if content != "" && len(entries) == 0 {
			sources = []string{"content"}
		}
		tmpl = summarizePromptTmpl

	case SynthesisModeReport:
		title := input.Data.String("title")
		if title == "" {
			title = query
		}
		params["Title"] = title
		tmpl = reportPromptTmpl

	case SynthesisModeCompare:
		items := input.Data.Strings("items")
		if len(items) < 2 {
			return nil, goerr.New("at least two items are required for comparison", goerr.V("count", len(items)))
		}
		params["Items"] = items
		params["Labels"] = input.Data.Strings("labels")
		sources = items
		tmpl = comparePromptTmpl

	default:
		return nil, goerr.New("unknown synthesis mode", goerr.V("mode", mode))
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return nil, goerr.Wrap(err, "failed to execute synthesis prompt template", goerr.V("template", tmpl.Name()))
	}

	text, err := a.deps.Generator.Generate(ctx, buf.String())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate synthesis")
	}

	return &model.SynthesisResult{
		Synthesis:   text,
		SourceCount: len(sources),
		Sources:     sources,
	}, nil
}

func entriesFrom(v any) []model.SynthesisEntry {
	switch entries := v.(type) {
	case []model.SynthesisEntry:
		return entries
	case []*model.SynthesisEntry:
		out := make([]model.SynthesisEntry, 0, len(entries))
		for _, e := range entries {
			if e != nil {
				out = append(out, *e)
			}
		}
		return out
	case []any:
		// entries that went through a JSON round trip
		raw, err := json.Marshal(entries)
		if err != nil {
			return nil
		}
		var out []model.SynthesisEntry
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil
		}
		return out
	}
	return nil
}

func renderEntries(entries []model.SynthesisEntry) []promptEntry {
	out := make([]promptEntry, 0, len(entries))
	for _, e := range entries {
		data := ""
		if e.Data != nil {
			raw, err := json.MarshalIndent(e.Data, "", "  ")
			if err != nil {
				data = "(unserializable result)"
			} else {
				data = string(raw)
			}
		}
		if len(data) > maxEntryData {
			data = truncateUTF8(data, maxEntryData) + "\n... (truncated)"
		}
		out = append(out, promptEntry{
			Agent:   e.Agent,
			Type:    e.Type,
			Summary: e.Summary,
			Data:    data,
		})
	}
	return out
}

func entrySources(entries []model.SynthesisEntry) []string {
	sources := make([]string, 0, len(entries))
	for _, e := range entries {
		sources = append(sources, string(e.Agent))
	}
	return sources
}
