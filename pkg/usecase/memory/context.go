package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// ContextOptions selects memories for prompt injection
type ContextOptions struct {
	ScopeID   string
	SessionID string
	// Query switches from "most recent in session" to semantic retrieval
	Query string
}

// Context returns memories relevant to a run and their formatted text block.
// The text is empty when nothing was found.
func (u *UseCase) Context(ctx context.Context, opts ContextOptions) (string, []*model.ScoredMemory, error) {
	var memories []*model.ScoredMemory

	if opts.Query != "" {
		minConfidence := ContextMinConfidence
		found, err := u.Retrieve(ctx, RetrieveOptions{
			Query:         opts.Query,
			ScopeID:       opts.ScopeID,
			Limit:         ContextLimit,
			MinConfidence: &minConfidence,
		})
		if err != nil {
			return "", nil, err
		}
		memories = found
	} else {
		recent, err := u.repo.ListSessionMemories(ctx, opts.ScopeID, opts.SessionID, u.now(), ContextLimit)
		if err != nil {
			return "", nil, goerr.Wrap(err, "failed to list session memories",
				goerr.V("scope_id", opts.ScopeID),
				goerr.V("session_id", opts.SessionID))
		}
		for _, m := range recent {
			memories = append(memories, &model.ScoredMemory{Memory: m, Score: 1.0})
		}
	}

	return FormatContext(memories), memories, nil
}

// FormatContext renders memories as a numbered block
func FormatContext(memories []*model.ScoredMemory) string {
	if len(memories) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Relevant memories from previous interactions:\n")
	for i, m := range memories {
		fmt.Fprintf(&b, "%d. [%s] %s (confidence: %.2f, accessed: %d)\n",
			i+1,
			strings.ToUpper(string(m.Memory.Type)),
			m.Memory.Content,
			m.Memory.Metadata.Confidence,
			m.Memory.Metadata.AccessCount)
	}
	return b.String()
}
