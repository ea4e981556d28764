package mock

import (
	"context"
	"sync"

	"github.com/m-mizutani/conclave/pkg/interfaces"
)

// Generator is a scripted text generator. Without GenerateFunc it echoes the
// prompt back, which lets tests assert on what reached the model.
type Generator struct {
	GenerateFunc func(ctx context.Context, prompt string, images ...*interfaces.Image) (string, error)

	mu      sync.Mutex
	prompts []string
	images  int
}

var _ interfaces.TextGenerator = (*Generator)(nil)

func (g *Generator) Generate(ctx context.Context, prompt string, images ...*interfaces.Image) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.images += len(images)
	g.mu.Unlock()

	if g.GenerateFunc != nil {
		return g.GenerateFunc(ctx, prompt, images...)
	}
	return prompt, nil
}

// Prompts returns every prompt received so far
func (g *Generator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

// ImageCount returns the total number of images received
func (g *Generator) ImageCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.images
}
