package memory

import (
	"context"
	"sort"

	"github.com/m-mizutani/conclave/pkg/interfaces"
	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/conclave/pkg/repository"
	"github.com/m-mizutani/conclave/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// RetrieveOptions contains options for semantic memory retrieval
type RetrieveOptions struct {
	Query   string
	ScopeID string
	Limit   int              // 0 means DefaultRetrieveLimit
	Type    model.MemoryType // empty means any type
	// MinConfidence applies to both similarity score and stored confidence.
	// nil means DefaultMinConfidence; 0 disables the threshold.
	MinConfidence *float64
}

// Retrieve returns up to Limit memories most similar to the query, ordered by
// descending score. Every returned memory gets its access recorded.
func (u *UseCase) Retrieve(ctx context.Context, opts RetrieveOptions) ([]*model.ScoredMemory, error) {
	if opts.ScopeID == "" {
		return nil, goerr.New("scope ID is required")
	}
	if opts.Query == "" {
		return nil, goerr.New("query is required")
	}
	if opts.Type != "" {
		if err := opts.Type.Validate(); err != nil {
			return nil, err
		}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultRetrieveLimit
	}
	minConfidence := DefaultMinConfidence
	if opts.MinConfidence != nil {
		minConfidence = *opts.MinConfidence
	}

	embedding, err := u.embedder.Embed(ctx, &interfaces.EmbedInput{
		Text: opts.Query,
		Mode: interfaces.EmbedModeQuery,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed query")
	}

	now := u.now()
	candidates, err := u.repo.SearchMemories(ctx, embedding, repository.MemoryFilter{
		ScopeID: opts.ScopeID,
		Type:    opts.Type,
		Now:     now,
	}, limit*10)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search memories", goerr.V("scope_id", opts.ScopeID))
	}

	kept := make([]*model.ScoredMemory, 0, limit*2)
	for _, c := range candidates {
		if len(kept) >= limit*2 {
			break
		}
		if c.Score >= minConfidence && c.Memory.Metadata.Confidence >= minConfidence {
			kept = append(kept, c)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Score > kept[j].Score
	})
	if len(kept) > limit {
		kept = kept[:limit]
	}

	for _, c := range kept {
		if err := u.repo.TouchMemory(ctx, c.Memory.ID, now); err != nil {
			logging.From(ctx).Warn("failed to update memory access", "memory_id", c.Memory.ID, "error", err)
			continue
		}
		c.Memory.Metadata.AccessCount++
		c.Memory.Metadata.LastAccessed = now
	}

	return kept, nil
}

// UpdateAccess increments the access count of a memory
func (u *UseCase) UpdateAccess(ctx context.Context, id model.MemoryID) error {
	if err := u.repo.TouchMemory(ctx, id, u.now()); err != nil {
		return goerr.Wrap(err, "failed to update memory access", goerr.V("memory_id", id))
	}
	return nil
}
