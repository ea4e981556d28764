package research

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/conclave/pkg/agent"
	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/conclave/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// AskInput is one research query of a session
type AskInput struct {
	Query              string
	ProjectID          string
	SessionID          string
	UserID             string
	ProjectName        string
	ProjectDescription string
	SelectedDataIDs    []string
	// Data is passed to every specialist in addition to the selected IDs
	Data model.TaskData
}

func (x AskInput) taskData() model.TaskData {
	data := model.TaskData{}
	for k, v := range x.Data {
		data[k] = v
	}
	switch len(x.SelectedDataIDs) {
	case 0:
	case 1:
		if data.String("dataId") == "" {
			data["dataId"] = x.SelectedDataIDs[0]
		}
	default:
		if len(data.Strings("dataIds")) == 0 {
			data["dataIds"] = x.SelectedDataIDs
		}
	}
	return data
}

// Ask runs one coordination for the query and records the conversation. The
// record is written for failed runs too, carrying their partial results.
func (u *UseCase) Ask(ctx context.Context, input AskInput) (*model.CoordinationResult, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, goerr.Wrap(ErrEmptyQuery, "cannot ask")
	}
	if input.ProjectID == "" {
		return nil, goerr.Wrap(ErrProjectMissing, "cannot ask")
	}
	if input.SessionID == "" {
		input.SessionID = model.NewConversationID()
	}

	scope := &model.Scope{
		ProjectID:          input.ProjectID,
		SessionID:          input.SessionID,
		UserID:             input.UserID,
		ConversationID:     model.NewConversationID(),
		UserQuery:          query,
		ProjectName:        input.ProjectName,
		ProjectDescription: input.ProjectDescription,
		SelectedDataIDs:    input.SelectedDataIDs,
	}

	ctx = logging.With(ctx, logging.From(ctx).With(
		"conversation_id", scope.ConversationID,
		"session_id", scope.SessionID))

	coordinator := agent.NewCoordinator(u.deps, u.coordinatorOpts...)
	if err := coordinator.Initialize(ctx, scope); err != nil {
		return nil, goerr.Wrap(err, "failed to initialize coordinator", goerr.V("project_id", input.ProjectID))
	}
	defer coordinator.Cleanup(ctx)

	createdAt := time.Now()
	output := coordinator.Execute(ctx, &model.TaskInput{
		Task: query,
		Data: input.taskData(),
	})

	conv := &model.AgentConversation{
		ID:        scope.ConversationID,
		ProjectID: scope.ProjectID,
		SessionID: scope.SessionID,
		UserID:    scope.UserID,
		Query:     query,
		Success:   output.Success,
		Duration:  output.Metadata.Duration,
		CreatedAt: createdAt,
	}

	var result *model.CoordinationResult
	stepsUsed := 0
	if output.Success {
		r, ok := output.Result.(*model.CoordinationResult)
		if !ok {
			return nil, goerr.New("unexpected coordination result", goerr.V("type", typeName(output.Result)))
		}
		result = r
		conv.Plan = r.Plan
		conv.Synthesis = r.Synthesis
		conv.Results = r.Results
		stepsUsed = r.StepsUsed
	} else {
		conv.Error = output.Metadata.Error
		if state := coordinator.State(); state != nil {
			conv.Results = state.Results()
			stepsUsed = state.CurrentStep()
		}
	}

	u.saveConversation(ctx, conv, stepsUsed)

	if !output.Success {
		return nil, goerr.New("coordination failed",
			goerr.V("conversation_id", conv.ID),
			goerr.V("error", output.Metadata.Error))
	}
	return result, nil
}
