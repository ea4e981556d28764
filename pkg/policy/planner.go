package policy

import (
	"context"
	"os"
	"path/filepath"
	"slices"

	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/conclave/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/topdown/print"
)

const planQuery = "data.plan"

// regoPrintHook forwards Rego print() statements to the logger
type regoPrintHook struct{}

func (h *regoPrintHook) Print(ctx print.Context, message string) error {
	logging.Default().Debug("rego print", "message", message, "location", ctx.Location.String())
	return nil
}

// Planner evaluates Rego plan policies. A policy adds specialist agents to a
// plan through the `agents` set of package `plan`:
//
//	package plan
//
//	agents contains "analysis" if {
//		contains(lower(input.task), "diagram")
//	}
type Planner struct {
	query *rego.PreparedEvalQuery
}

// Input is the document a plan policy sees as `input`
type Input struct {
	Task            string   `json:"task"`
	ProjectID       string   `json:"project_id"`
	SessionID       string   `json:"session_id"`
	UserID          string   `json:"user_id,omitempty"`
	SelectedDataIDs []string `json:"selected_data_ids,omitempty"`
}

// New loads all *.rego files in policyDir. Without any file the planner adds
// nothing to plans.
func New(ctx context.Context, policyDir string) (*Planner, error) {
	files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files", goerr.V("dir", policyDir))
	}
	if len(files) == 0 {
		return &Planner{}, nil
	}

	options := make([]func(*rego.Rego), 0, len(files)+1)
	options = append(options, rego.Query(planQuery))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		options = append(options, rego.Module(file, string(data)))
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare plan policy", goerr.V("dir", policyDir))
	}

	return &Planner{query: &prepared}, nil
}

// Agents returns the specialist agents the policy wants in the plan
func (p *Planner) Agents(ctx context.Context, task string, scope *model.Scope) ([]model.AgentType, error) {
	if p == nil || p.query == nil {
		return nil, nil
	}

	input := Input{Task: task}
	if scope != nil {
		input.ProjectID = scope.ProjectID
		input.SessionID = scope.SessionID
		input.UserID = scope.UserID
		input.SelectedDataIDs = scope.SelectedDataIDs
	}

	rs, err := p.query.Eval(ctx, rego.EvalInput(input), rego.EvalPrintHook(&regoPrintHook{}))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate plan policy")
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, nil
	}

	doc, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return nil, goerr.New("plan policy result is not an object")
	}

	raw, ok := doc["agents"].([]any)
	if !ok {
		return nil, nil
	}

	var agents []model.AgentType
	for _, v := range raw {
		name, ok := v.(string)
		if !ok {
			continue
		}
		t := model.AgentType(name)
		if !slices.Contains(model.SpecialistAgentTypes, t) {
			logging.From(ctx).Warn("plan policy returned unknown agent", "agent", name)
			continue
		}
		if !slices.Contains(agents, t) {
			agents = append(agents, t)
		}
	}

	return agents, nil
}
