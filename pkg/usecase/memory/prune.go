package memory

import (
	"context"
	"time"

	"github.com/m-mizutani/conclave/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// PruneOptions sets the thresholds of a pruning pass. Zero values use defaults.
type PruneOptions struct {
	ScopeID        string
	MinAccessCount int64
	MinConfidence  float64
	OlderThanDays  int
}

// Prune deletes memories created before the cutoff whose access count and
// confidence are both below threshold. It returns the number deleted.
func (u *UseCase) Prune(ctx context.Context, opts PruneOptions) (int, error) {
	if opts.ScopeID == "" {
		return 0, goerr.New("scope ID is required")
	}

	minAccess := opts.MinAccessCount
	if minAccess <= 0 {
		minAccess = DefaultPruneMinAccess
	}
	minConfidence := opts.MinConfidence
	if minConfidence <= 0 {
		minConfidence = DefaultPruneConfidence
	}
	days := opts.OlderThanDays
	if days <= 0 {
		days = DefaultPruneOlderThan
	}

	cutoff := u.now().Add(-time.Duration(days) * 24 * time.Hour)
	candidates, err := u.repo.ListMemoriesCreatedBefore(ctx, opts.ScopeID, cutoff)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list prune candidates", goerr.V("scope_id", opts.ScopeID))
	}

	deleted := 0
	for _, m := range candidates {
		if m.Metadata.AccessCount >= minAccess || m.Metadata.Confidence >= minConfidence {
			continue
		}
		if err := u.repo.DeleteMemory(ctx, m.ID); err != nil {
			return deleted, goerr.Wrap(err, "failed to delete memory", goerr.V("memory_id", m.ID))
		}
		deleted++
	}

	logging.From(ctx).Info("memories pruned",
		"scope_id", opts.ScopeID,
		"deleted", deleted,
		"cutoff", cutoff)
	return deleted, nil
}
