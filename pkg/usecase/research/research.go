package research

import (
	"github.com/m-mizutani/conclave/pkg/adapter"
	"github.com/m-mizutani/conclave/pkg/agent"
	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrEmptyQuery     = goerr.New("query is empty")
	ErrProjectMissing = goerr.New("project ID is required")
)

// UseCase runs coordinated research queries and keeps their records
type UseCase struct {
	deps *agent.Dependencies

	coordinatorOpts []agent.CoordinatorOption

	bq           adapter.BigQuery
	auditDataset string
	auditTable   string
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithCoordinatorOptions passes options to every coordinator the use case creates
func WithCoordinatorOptions(opts ...agent.CoordinatorOption) Option {
	return func(u *UseCase) {
		u.coordinatorOpts = append(u.coordinatorOpts, opts...)
	}
}

// WithAudit enables one audit row per run in BigQuery
func WithAudit(bq adapter.BigQuery, datasetID, tableID string) Option {
	return func(u *UseCase) {
		u.bq = bq
		u.auditDataset = datasetID
		u.auditTable = tableID
	}
}

func New(deps *agent.Dependencies, opts ...Option) *UseCase {
	if deps == nil {
		deps = &agent.Dependencies{}
	}
	u := &UseCase{deps: deps}
	for _, opt := range opts {
		opt(u)
	}
	return u
}
