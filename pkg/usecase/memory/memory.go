package memory

import (
	"sync"
	"time"

	"github.com/m-mizutani/conclave/pkg/interfaces"
	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/conclave/pkg/repository"
)

const (
	DefaultMergeThreshold  = 0.8
	DefaultCandidatePool   = 10
	DefaultRetrieveLimit   = 5
	DefaultMinConfidence   = 0.5
	ContextLimit           = 5
	ContextMinConfidence   = 0.6
	MaxEnrichedConfidence  = 0.95
	DefaultPruneMinAccess  = 1
	DefaultPruneConfidence = 0.3
	DefaultPruneOlderThan  = 90
)

// UseCase is the associative memory store. It deduplicates semantically
// similar memories of the same scope and type by enriching the existing record.
type UseCase struct {
	repo     repository.Repository
	embedder interfaces.Embedder

	mergeThreshold float64
	candidatePool  int
	now            func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithMergeThreshold sets the similarity above which a new memory enriches an
// existing one
func WithMergeThreshold(threshold float64) Option {
	return func(uc *UseCase) {
		uc.mergeThreshold = threshold
	}
}

// WithCandidatePool sets the KNN candidate pool used for the merge lookup
func WithCandidatePool(n int) Option {
	return func(uc *UseCase) {
		uc.candidatePool = n
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(uc *UseCase) {
		uc.now = now
	}
}

// New creates a new memory UseCase instance
func New(repo repository.Repository, embedder interfaces.Embedder, opts ...Option) *UseCase {
	uc := &UseCase{
		repo:           repo,
		embedder:       embedder,
		mergeThreshold: DefaultMergeThreshold,
		candidatePool:  DefaultCandidatePool,
		now:            time.Now,
		locks:          make(map[string]*sync.Mutex),
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// lock serializes the lookup-then-write sequence per (scope, type)
func (u *UseCase) lock(scopeID string, memType model.MemoryType) func() {
	key := scopeID + "\x00" + string(memType)

	u.locksMu.Lock()
	mu, ok := u.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		u.locks[key] = mu
	}
	u.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}
