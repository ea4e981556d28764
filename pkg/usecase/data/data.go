package data

import (
	"github.com/m-mizutani/conclave/pkg/adapter"
	"github.com/m-mizutani/conclave/pkg/interfaces"
	"github.com/m-mizutani/conclave/pkg/repository"
)

// UseCase manages project data items
type UseCase struct {
	repo     repository.Repository
	embedder interfaces.Embedder
	storage  adapter.Storage
	maxSize  int64
}

// DefaultMaxSize bounds the content size accepted by Add
const DefaultMaxSize = 20 << 20

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithMaxSize sets the maximum content size in bytes
func WithMaxSize(n int64) Option {
	return func(u *UseCase) {
		u.maxSize = n
	}
}

func New(repo repository.Repository, embedder interfaces.Embedder, storage adapter.Storage, opts ...Option) *UseCase {
	u := &UseCase{
		repo:     repo,
		embedder: embedder,
		storage:  storage,
		maxSize:  DefaultMaxSize,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}
