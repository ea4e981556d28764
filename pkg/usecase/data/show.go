package data

import (
	"context"
	"io"

	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// Show retrieves a data item
func (u *UseCase) Show(ctx context.Context, id model.DataID) (*model.DataItem, error) {
	return u.repo.GetDataItem(ctx, id)
}

// Content opens the stored content of a data item
func (u *UseCase) Content(ctx context.Context, id model.DataID) (io.ReadCloser, error) {
	item, err := u.repo.GetDataItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.StoragePath == "" {
		return nil, goerr.New("data item has no content", goerr.V("data_id", id))
	}
	return u.storage.Get(ctx, item.StoragePath)
}
