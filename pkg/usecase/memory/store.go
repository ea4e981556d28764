package memory

import (
	"context"
	"time"

	"github.com/m-mizutani/conclave/pkg/interfaces"
	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/conclave/pkg/repository"
	"github.com/m-mizutani/conclave/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// StoreInput is a memory to be written
type StoreInput struct {
	ScopeID        string
	SessionID      string
	UserID         string
	ConversationID string
	Type           model.MemoryType
	Content        string
	Source         string
	Confidence     float64
	Tags           []string
	ExpiresAt      *time.Time
}

// StoreResult tells which record holds the memory and whether an existing one
// was enriched
type StoreResult struct {
	ID       model.MemoryID
	Enriched bool
}

// reference is what an enrichment records in RelatedMemories
func (x *StoreInput) reference() string {
	if x.ConversationID != "" {
		return x.ConversationID
	}
	return x.SessionID
}

func (x *StoreInput) validate() error {
	if x.ScopeID == "" {
		return goerr.New("scope ID is required")
	}
	if x.Content == "" {
		return goerr.New("memory content is required")
	}
	if err := x.Type.Validate(); err != nil {
		return err
	}
	return model.ValidateConfidence(x.Confidence)
}

// Store embeds the content and either enriches the most similar memory of the
// same scope and type (similarity above the merge threshold) or inserts a new
// record.
func (u *UseCase) Store(ctx context.Context, input StoreInput) (*StoreResult, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	unlock := u.lock(input.ScopeID, input.Type)
	defer unlock()

	embedding, err := u.embedder.Embed(ctx, &interfaces.EmbedInput{
		Text: input.Content,
		Mode: interfaces.EmbedModeDocument,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed memory content")
	}

	now := u.now()
	candidates, err := u.repo.SearchMemories(ctx, embedding, repository.MemoryFilter{
		ScopeID: input.ScopeID,
		Type:    input.Type,
		Now:     now,
	}, u.candidatePool)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search similar memories", goerr.V("scope_id", input.ScopeID))
	}

	if top := topCandidate(candidates); top != nil && top.Score > u.mergeThreshold {
		if err := u.enrich(ctx, top.Memory, &input); err != nil {
			return nil, err
		}
		logging.From(ctx).Debug("memory enriched",
			"memory_id", top.Memory.ID,
			"score", top.Score,
			"type", input.Type)
		return &StoreResult{ID: top.Memory.ID, Enriched: true}, nil
	}

	memory := &model.Memory{
		ID:        model.NewMemoryID(),
		ScopeID:   input.ScopeID,
		SessionID: input.SessionID,
		UserID:    input.UserID,
		Type:      input.Type,
		Content:   input.Content,
		Embedding: embedding,
		Metadata: model.MemoryMetadata{
			Source:       input.Source,
			Confidence:   input.Confidence,
			AccessCount:  0,
			LastAccessed: now,
		},
		RelatedMemories: []string{},
		Tags:            model.UnionStrings(nil, input.Tags...),
		CreatedAt:       now,
		ExpiresAt:       input.ExpiresAt,
	}
	if err := u.repo.PutMemory(ctx, memory); err != nil {
		return nil, goerr.Wrap(err, "failed to put memory", goerr.V("memory_id", memory.ID))
	}

	logging.From(ctx).Debug("memory stored", "memory_id", memory.ID, "type", memory.Type)
	return &StoreResult{ID: memory.ID}, nil
}

func topCandidate(candidates []*model.ScoredMemory) *model.ScoredMemory {
	var top *model.ScoredMemory
	for _, c := range candidates {
		if top == nil || c.Score > top.Score {
			top = c
		}
	}
	return top
}

// enrich merges input into existing with a field-level update so that access
// counts and links written since the lookup survive. The embedding is left as
// it is.
func (u *UseCase) enrich(ctx context.Context, existing *model.Memory, input *StoreInput) error {
	enrichment := repository.MemoryEnrichment{
		Content:    existing.Content + " [ENRICHED: " + input.Content + "]",
		Confidence: min(MaxEnrichedConfidence, (existing.Metadata.Confidence+input.Confidence)/2),
		Tags:       input.Tags,
	}
	if ref := input.reference(); ref != "" {
		enrichment.Related = []string{ref}
	}

	if err := u.repo.EnrichMemory(ctx, existing.ID, enrichment); err != nil {
		return goerr.Wrap(err, "failed to enrich memory", goerr.V("memory_id", existing.ID))
	}
	return nil
}
