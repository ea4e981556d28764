package data

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/m-mizutani/conclave/pkg/interfaces"
	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/conclave/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// AddInput describes a file to ingest into a project
type AddInput struct {
	ProjectID   string
	Filename    string
	MIMEType    string // detected from filename or content when empty
	Description string
	Tags        []string
	Content     io.Reader
}

// Add uploads the content, embeds filename and description, and stores the item
func (u *UseCase) Add(ctx context.Context, input AddInput) (*model.DataItem, error) {
	if input.ProjectID == "" {
		return nil, goerr.New("project ID is required")
	}
	if input.Filename == "" {
		return nil, goerr.New("filename is required")
	}
	if input.Content == nil {
		return nil, goerr.New("content is required", goerr.V("filename", input.Filename))
	}

	content, err := io.ReadAll(io.LimitReader(input.Content, u.maxSize+1))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read content", goerr.V("filename", input.Filename))
	}
	if int64(len(content)) > u.maxSize {
		return nil, goerr.New("content is too large",
			goerr.V("filename", input.Filename),
			goerr.V("max_size", u.maxSize))
	}

	item := &model.DataItem{
		ID:          model.NewDataID(),
		ProjectID:   input.ProjectID,
		Filename:    path.Base(input.Filename),
		Type:        detectType(input.Filename, input.MIMEType, content),
		Description: input.Description,
		Tags:        model.UnionStrings(nil, input.Tags...),
		CreatedAt:   time.Now(),
	}
	item.StoragePath = "data/" + item.ProjectID + "/" + string(item.ID) + path.Ext(item.Filename)

	embedding, err := u.embedder.Embed(ctx, &interfaces.EmbedInput{
		Text: embeddingText(item),
		Mode: interfaces.EmbedModeDocument,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed data item", goerr.V("filename", item.Filename))
	}
	item.Embedding = embedding

	w, err := u.storage.Put(ctx, item.StoragePath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage writer", goerr.V("path", item.StoragePath))
	}
	if _, err := io.Copy(w, bytes.NewReader(content)); err != nil {
		_ = w.Close()
		return nil, goerr.Wrap(err, "failed to upload content", goerr.V("path", item.StoragePath))
	}
	if err := w.Close(); err != nil {
		return nil, goerr.Wrap(err, "failed to close storage writer", goerr.V("path", item.StoragePath))
	}

	if err := u.repo.PutDataItem(ctx, item); err != nil {
		return nil, goerr.Wrap(err, "failed to save data item", goerr.V("data_id", item.ID))
	}

	logging.From(ctx).Info("data item added",
		"data_id", item.ID,
		"project_id", item.ProjectID,
		"filename", item.Filename,
		"type", item.Type,
		"size", len(content))

	return item, nil
}

func embeddingText(item *model.DataItem) string {
	parts := []string{item.Filename}
	if item.Description != "" {
		parts = append(parts, item.Description)
	}
	if len(item.Tags) > 0 {
		parts = append(parts, strings.Join(item.Tags, " "))
	}
	return strings.Join(parts, " ")
}

func detectType(filename, given string, content []byte) string {
	if given != "" {
		return given
	}
	if t := mime.TypeByExtension(path.Ext(filename)); t != "" {
		if mediaType, _, err := mime.ParseMediaType(t); err == nil {
			return mediaType
		}
		return t
	}
	t := http.DetectContentType(content)
	if mediaType, _, err := mime.ParseMediaType(t); err == nil {
		return mediaType
	}
	return t
}
