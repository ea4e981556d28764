package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/m-mizutani/conclave/pkg/interfaces"
	"github.com/m-mizutani/conclave/pkg/model"
)

// ImageCompressor passes content through unchanged and records each call
type ImageCompressor struct {
	Err error

	mu    sync.Mutex
	calls int
}

var _ interfaces.ImageCompressor = (*ImageCompressor)(nil)

func (c *ImageCompressor) Compress(ctx context.Context, data []byte, mimeType string) (*interfaces.CompressedContent, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	if c.Err != nil {
		return nil, c.Err
	}
	return &interfaces.CompressedContent{
		Data:     data,
		MIMEType: mimeType,
		Stats: model.CompressionStats{
			OriginalSize:   len(data),
			CompressedSize: len(data),
			Ratio:          1.0,
			IsImage:        strings.HasPrefix(mimeType, "image/"),
		},
	}, nil
}

func (c *ImageCompressor) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
