package memory

import (
	"context"

	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// Link adds related memory IDs to a memory. Linking the same IDs again is a no-op.
func (u *UseCase) Link(ctx context.Context, id model.MemoryID, relatedIDs []string) error {
	related := make([]string, 0, len(relatedIDs))
	for _, r := range relatedIDs {
		if r != "" && r != string(id) {
			related = append(related, r)
		}
	}
	if len(related) == 0 {
		return nil
	}

	if err := u.repo.AppendRelatedMemories(ctx, id, related); err != nil {
		return goerr.Wrap(err, "failed to link memories", goerr.V("memory_id", id))
	}
	return nil
}
