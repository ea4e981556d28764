package mock_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/conclave/pkg/interfaces"
	"github.com/m-mizutani/conclave/pkg/mock"
	"github.com/m-mizutani/conclave/pkg/repository"
	"github.com/m-mizutani/gt"
)

func TestEmbedder(t *testing.T) {
	ctx := context.Background()
	e := mock.NewEmbedder()

	embed := func(text string) []float32 {
		v, err := e.Embed(ctx, &interfaces.EmbedInput{Text: text, Mode: interfaces.EmbedModeDocument})
		gt.NoError(t, err)
		return v
	}

	a := embed("Reactor runs at 400C")
	gt.A(t, a).Length(mock.DefaultEmbeddingDim)
	gt.True(t, repository.CosineSimilarity(a, embed("reactor RUNS at 400c")) > 0.9999)
	gt.True(t, repository.CosineSimilarity(a, embed("weekly pump inspection")) < 0.5)

	e.Vectors = map[string][]float32{"fixed": {1, 0, 0}}
	gt.Equal(t, embed("fixed")[0], float32(1))

	_, err := e.Embed(ctx, &interfaces.EmbedInput{})
	gt.Error(t, err)
	gt.A(t, e.Calls()).Length(5)
}

func TestGenerator(t *testing.T) {
	g := &mock.Generator{}
	out, err := g.Generate(context.Background(), "hello", &interfaces.Image{Data: []byte{1}})
	gt.NoError(t, err)
	gt.Equal(t, out, "hello")
	gt.A(t, g.Prompts()).Length(1)
	gt.Equal(t, g.ImageCount(), 1)
}
