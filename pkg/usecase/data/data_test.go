package data_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/m-mizutani/conclave/pkg/adapter"
	"github.com/m-mizutani/conclave/pkg/mock"
	"github.com/m-mizutani/conclave/pkg/repository"
	"github.com/m-mizutani/conclave/pkg/usecase/data"
	"github.com/m-mizutani/gt"
)

func newUseCase(t *testing.T, opts ...data.Option) (*data.UseCase, *repository.Memory, *mock.Embedder) {
	t.Helper()
	st, err := adapter.NewFileStorage(t.TempDir())
	gt.NoError(t, err)
	repo := repository.NewMemory()
	embedder := mock.NewEmbedder()
	return data.New(repo, embedder, st, opts...), repo, embedder
}

func TestAdd(t *testing.T) {
	uc, repo, embedder := newUseCase(t)
	ctx := context.Background()

	item, err := uc.Add(ctx, data.AddInput{
		ProjectID:   "P1",
		Filename:    "docs/pump_manual.txt",
		Description: "maintenance manual for the cooling pump",
		Tags:        []string{"pump", "manual", "pump"},
		Content:     strings.NewReader("Check seals weekly."),
	})
	gt.NoError(t, err)
	gt.Equal(t, item.Filename, "pump_manual.txt")
	gt.Equal(t, item.Type, "text/plain")
	gt.Equal(t, item.Tags, []string{"pump", "manual"})
	gt.A(t, item.Embedding).Length(mock.DefaultEmbeddingDim)
	gt.S(t, item.StoragePath).Contains("data/P1/")
	gt.A(t, embedder.Calls()).Length(1)
	gt.S(t, embedder.Calls()[0].Text).Contains("cooling pump")

	stored, err := repo.GetDataItem(ctx, item.ID)
	gt.NoError(t, err)
	gt.Equal(t, stored.Description, item.Description)

	r, err := uc.Content(ctx, item.ID)
	gt.NoError(t, err)
	defer r.Close()
	body, err := io.ReadAll(r)
	gt.NoError(t, err)
	gt.Equal(t, string(body), "Check seals weekly.")

	shown, err := uc.Show(ctx, item.ID)
	gt.NoError(t, err)
	gt.Equal(t, shown.ID, item.ID)
}

func TestAddDetectsType(t *testing.T) {
	uc, _, _ := newUseCase(t)
	ctx := context.Background()

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	item, err := uc.Add(ctx, data.AddInput{ProjectID: "P1", Filename: "noext", Content: strings.NewReader(string(png))})
	gt.NoError(t, err)
	gt.Equal(t, item.Type, "image/png")

	item, err = uc.Add(ctx, data.AddInput{ProjectID: "P1", Filename: "a.bin", MIMEType: "application/x-custom", Content: strings.NewReader("x")})
	gt.NoError(t, err)
	gt.Equal(t, item.Type, "application/x-custom")
}

func TestAddValidation(t *testing.T) {
	uc, _, _ := newUseCase(t, data.WithMaxSize(4))
	ctx := context.Background()

	_, err := uc.Add(ctx, data.AddInput{Filename: "a.txt", Content: strings.NewReader("x")})
	gt.Error(t, err)

	_, err = uc.Add(ctx, data.AddInput{ProjectID: "P1", Content: strings.NewReader("x")})
	gt.Error(t, err)

	_, err = uc.Add(ctx, data.AddInput{ProjectID: "P1", Filename: "a.txt"})
	gt.Error(t, err)

	_, err = uc.Add(ctx, data.AddInput{ProjectID: "P1", Filename: "a.txt", Content: strings.NewReader("too large")})
	gt.Error(t, err)
}

func TestAddEmbedderDown(t *testing.T) {
	uc, repo, embedder := newUseCase(t)
	embedder.Err = errors.New("embedding service unavailable")

	_, err := uc.Add(context.Background(), data.AddInput{ProjectID: "P1", Filename: "a.txt", Content: strings.NewReader("x")})
	gt.Error(t, err)

	hits, err := repo.SearchDataItems(context.Background(), make([]float32, mock.DefaultEmbeddingDim), "P1", 10)
	gt.NoError(t, err)
	gt.A(t, hits).Length(0)
}

func TestSearch(t *testing.T) {
	uc, _, _ := newUseCase(t)
	ctx := context.Background()

	for _, in := range []data.AddInput{
		{ProjectID: "P1", Filename: "pump_manual.txt", Description: "cooling pump maintenance", Content: strings.NewReader("a")},
		{ProjectID: "P1", Filename: "floor_plan.png", Description: "building floor plan", Content: strings.NewReader("b")},
		{ProjectID: "P2", Filename: "pump_spec.txt", Description: "cooling pump specification", Content: strings.NewReader("c")},
	} {
		_, err := uc.Add(ctx, in)
		gt.NoError(t, err)
	}

	hits, err := uc.Search(ctx, data.SearchOptions{ProjectID: "P1", Query: "cooling pump"})
	gt.NoError(t, err)
	gt.A(t, hits).Length(2)
	gt.Equal(t, hits[0].Item.Filename, "pump_manual.txt")

	_, err = uc.Search(ctx, data.SearchOptions{ProjectID: "P1"})
	gt.Error(t, err)
}
