package agent_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/m-mizutani/conclave/pkg/agent"
	"github.com/m-mizutani/conclave/pkg/interfaces"
	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/gt"
)

func TestAnalysisAgentAnalyze(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	report := env.addItem(t, "P1", "incident_report.txt", "text/plain", "incident report", []byte("Valve V-12 leaked on 2025-03-02."), "incident")
	diagram := env.addItem(t, "P1", "safety_diagram.png", "image/png", "safety diagram", []byte("\x89PNG fake"), "safety")

	scope := testScope("P1")
	scope.ProjectDescription = "Safety review of the north plant"
	scope.SelectedDataIDs = []string{string(diagram.ID)}

	env.generator.GenerateFunc = func(ctx context.Context, prompt string, images ...*interfaces.Image) (string, error) {
		return "analysis-result", nil
	}

	a, err := agent.NewAnalysisAgent(env.deps)
	a = initialized(t, a, err, scope)

	t.Run("text item", func(t *testing.T) {
		out := a.Execute(ctx, &model.TaskInput{
			Task: "analyze the incident",
			Data: model.TaskData{"dataId": string(report.ID), "query": "what failed?"},
		})
		gt.True(t, out.Success)

		result := out.Result.(*model.AnalysisResult)
		gt.Equal(t, result.DataID, report.ID)
		gt.Equal(t, result.Filename, "incident_report.txt")
		gt.Equal(t, result.Analysis, "analysis-result")
		gt.False(t, result.Metadata.IsImage)

		prompts := env.generator.Prompts()
		prompt := prompts[len(prompts)-1]
		gt.S(t, prompt).Contains("Valve V-12 leaked")
		gt.S(t, prompt).Contains("what failed?")
		gt.S(t, prompt).Contains("Plant Safety")
		gt.S(t, prompt).Contains("Safety review of the north plant")

		saved, err := env.repo.GetDataItem(ctx, report.ID)
		gt.NoError(t, err)
		gt.Equal(t, saved.Analysis, "analysis-result")
	})

	t.Run("selected item is the default", func(t *testing.T) {
		before := env.compressor.Calls()
		out := a.Execute(ctx, &model.TaskInput{Task: "explain this"})
		gt.True(t, out.Success)

		result := out.Result.(*model.AnalysisResult)
		gt.Equal(t, result.DataID, diagram.ID)
		gt.True(t, result.Metadata.IsImage)
		gt.Equal(t, env.compressor.Calls(), before+1)
		gt.Equal(t, env.generator.ImageCount(), 1)
	})

	t.Run("long text is cut on a rune boundary", func(t *testing.T) {
		long := "a" + strings.Repeat("温", 11000)
		notes := env.addItem(t, "P1", "notes.txt", "text/plain", "operator notes", []byte(long))

		out := a.Execute(ctx, &model.TaskInput{Task: "analyze", Data: model.TaskData{"dataId": string(notes.ID)}})
		gt.True(t, out.Success)

		prompts := env.generator.Prompts()
		prompt := prompts[len(prompts)-1]
		gt.True(t, utf8.ValidString(prompt))
		gt.S(t, prompt).Contains("a温温")
		gt.S(t, prompt).NotContains(long)
	})

	t.Run("generator failure", func(t *testing.T) {
		env.generator.GenerateFunc = func(ctx context.Context, prompt string, images ...*interfaces.Image) (string, error) {
			return "", errors.New("model overloaded")
		}
		defer func() { env.generator.GenerateFunc = nil }()

		out := a.Execute(ctx, &model.TaskInput{Task: "analyze", Data: model.TaskData{"dataId": string(report.ID)}})
		gt.False(t, out.Success)
		gt.S(t, out.Metadata.Error).Contains("model overloaded")
	})
}

func TestAnalysisAgentInputErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	other := env.addItem(t, "P2", "other.txt", "text/plain", "other project", []byte("x"))

	a, err := agent.NewAnalysisAgent(env.deps)
	a = initialized(t, a, err, testScope("P1"))

	out := a.Execute(ctx, &model.TaskInput{Task: "analyze"})
	gt.False(t, out.Success)
	gt.S(t, out.Metadata.Error).Contains("dataId is required")

	out = a.Execute(ctx, &model.TaskInput{Task: "analyze", Data: model.TaskData{"dataId": string(other.ID)}})
	gt.False(t, out.Success)
	gt.S(t, out.Metadata.Error).Contains("another project")

	out = a.Execute(ctx, &model.TaskInput{Task: "compare", Data: model.TaskData{"dataIds": []string{"only-one"}}})
	gt.False(t, out.Success)
	gt.S(t, out.Metadata.Error).Contains("at least two")
}

func TestAnalysisAgentCompare(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a1 := env.addItem(t, "P1", "floor1.png", "image/png", "floor 1", []byte("1"), "safety", "floor1", "exits")
	a2 := env.addItem(t, "P1", "floor2.png", "image/png", "floor 2", []byte("2"), "safety", "floor2", "exits")
	a3 := env.addItem(t, "P1", "floor3.png", "image/png", "floor 3", []byte("3"), "safety", "floor2", "sprinklers")

	a, err := agent.NewAnalysisAgent(env.deps)
	a = initialized(t, a, err, testScope("P1"))

	out := a.Execute(ctx, &model.TaskInput{
		Task: "compare floor plans",
		Data: model.TaskData{"dataIds": []any{string(a1.ID), string(a2.ID), string(a3.ID)}},
	})
	gt.True(t, out.Success)
	gt.A(t, env.generator.Prompts()).Length(0)

	result := out.Result.(*model.ComparisonResult)
	gt.A(t, result.Items).Length(3)
	gt.A(t, result.CommonTags).Length(1)
	gt.Equal(t, result.CommonTags[0], "safety")

	gt.A(t, result.UniqueTags[a1.ID]).Length(1)
	gt.Equal(t, result.UniqueTags[a1.ID][0], "floor1")
	gt.A(t, result.UniqueTags[a2.ID]).Length(0)
	gt.A(t, result.UniqueTags[a3.ID]).Length(1)
	gt.Equal(t, result.UniqueTags[a3.ID][0], "sprinklers")
}
