package research

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/conclave/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// DefaultHistoryLimit is the number of conversations History returns by default
const DefaultHistoryLimit = 20

func conversationKey(id string) string {
	return "conversations/" + id + ".json"
}

type auditRow struct {
	ConversationID string    `bigquery:"conversation_id"`
	ProjectID      string    `bigquery:"project_id"`
	SessionID      string    `bigquery:"session_id"`
	UserID         string    `bigquery:"user_id"`
	Query          string    `bigquery:"query"`
	Agents         []string  `bigquery:"agents"`
	Success        bool      `bigquery:"success"`
	Error          string    `bigquery:"error"`
	StepsUsed      int       `bigquery:"steps_used"`
	DurationMS     int64     `bigquery:"duration_ms"`
	CreatedAt      time.Time `bigquery:"created_at"`
}

func newAuditRow(conv *model.AgentConversation, stepsUsed int) *auditRow {
	row := &auditRow{
		ConversationID: conv.ID,
		ProjectID:      conv.ProjectID,
		SessionID:      conv.SessionID,
		UserID:         conv.UserID,
		Query:          conv.Query,
		Success:        conv.Success,
		Error:          conv.Error,
		StepsUsed:      stepsUsed,
		DurationMS:     conv.Duration.Milliseconds(),
		CreatedAt:      conv.CreatedAt,
	}
	if conv.Plan != nil {
		for _, t := range conv.Plan.AgentsInvolved {
			row.Agents = append(row.Agents, string(t))
		}
	}
	return row
}

// saveConversation writes the run record to the repository, the full JSON to
// the content store and an audit row to BigQuery. Every write is best-effort.
func (u *UseCase) saveConversation(ctx context.Context, conv *model.AgentConversation, stepsUsed int) {
	logger := logging.From(ctx)

	if u.deps.Repo != nil {
		if err := u.deps.Repo.PutConversation(ctx, conv); err != nil {
			logger.Warn("failed to save conversation", "error", err)
		}
	}

	if u.deps.Storage != nil {
		if err := u.writeConversation(ctx, conv); err != nil {
			logger.Warn("failed to write conversation to storage", "error", err)
		}
	}

	if u.bq != nil {
		if err := u.bq.Insert(ctx, u.auditDataset, u.auditTable, newAuditRow(conv, stepsUsed)); err != nil {
			logger.Warn("failed to insert audit row", "error", err)
		}
	}
}

func (u *UseCase) writeConversation(ctx context.Context, conv *model.AgentConversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal conversation", goerr.V("conversation_id", conv.ID))
	}

	w, err := u.deps.Storage.Put(ctx, conversationKey(conv.ID))
	if err != nil {
		return goerr.Wrap(err, "failed to create storage writer", goerr.V("conversation_id", conv.ID))
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to write conversation", goerr.V("conversation_id", conv.ID))
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to close storage writer", goerr.V("conversation_id", conv.ID))
	}
	return nil
}

// Show returns a conversation record. Agent results are loaded from the
// content store; when they cannot be read the record is returned without them.
func (u *UseCase) Show(ctx context.Context, id string) (*model.AgentConversation, error) {
	if u.deps.Repo == nil {
		return nil, goerr.New("repository is not configured")
	}

	conv, err := u.deps.Repo.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}

	if u.deps.Storage == nil {
		return conv, nil
	}

	stored, err := u.readConversation(ctx, id)
	if err != nil {
		logging.From(ctx).Warn("failed to load conversation results", "conversation_id", id, "error", err)
		return conv, nil
	}
	conv.Results = stored.Results
	return conv, nil
}

func (u *UseCase) readConversation(ctx context.Context, id string) (*model.AgentConversation, error) {
	r, err := u.deps.Storage.Get(ctx, conversationKey(id))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read conversation", goerr.V("conversation_id", id))
	}

	var conv model.AgentConversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal conversation", goerr.V("conversation_id", id))
	}
	return &conv, nil
}

// History lists the latest conversations of a project
func (u *UseCase) History(ctx context.Context, projectID string, limit int) ([]*model.AgentConversation, error) {
	if u.deps.Repo == nil {
		return nil, goerr.New("repository is not configured")
	}
	if projectID == "" {
		return nil, goerr.Wrap(ErrProjectMissing, "cannot list history")
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return u.deps.Repo.ListConversations(ctx, projectID, limit)
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
