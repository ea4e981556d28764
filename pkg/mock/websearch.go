package mock

import (
	"context"
	"sync"

	"github.com/m-mizutani/conclave/pkg/interfaces"
	"github.com/m-mizutani/conclave/pkg/model"
)

// WebSearcher returns a fixed result and records queries
type WebSearcher struct {
	Result *model.WebSearchResult
	Err    error

	mu      sync.Mutex
	queries []string
}

var _ interfaces.WebSearcher = (*WebSearcher)(nil)

func (w *WebSearcher) Search(ctx context.Context, query string) (*model.WebSearchResult, error) {
	w.mu.Lock()
	w.queries = append(w.queries, query)
	w.mu.Unlock()

	if w.Err != nil {
		return nil, w.Err
	}
	if w.Result == nil {
		return &model.WebSearchResult{}, nil
	}
	return w.Result, nil
}

func (w *WebSearcher) Queries() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.queries...)
}
