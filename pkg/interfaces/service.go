package interfaces

import (
	"context"

	"github.com/m-mizutani/conclave/pkg/model"
)

type EmbedMode string

const (
	EmbedModeQuery    EmbedMode = "query"
	EmbedModeDocument EmbedMode = "document"
)

// EmbedInput is the input of an embedding request. Either Text or Image must be set.
type EmbedInput struct {
	Text     string
	Image    []byte
	MIMEType string
	Mode     EmbedMode
}

// Embedder computes embedding vectors. Identical input must yield vectors
// whose cosine similarity is 1.0.
type Embedder interface {
	Embed(ctx context.Context, input *EmbedInput) ([]float32, error)
}

// Image is binary image content passed to the text generator
type Image struct {
	Data     []byte
	MIMEType string
}

// TextGenerator generates plain text from a prompt and optional images
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, images ...*Image) (string, error)
}

// WebSearcher is the optional web search service
type WebSearcher interface {
	Search(ctx context.Context, query string) (*model.WebSearchResult, error)
}

// CompressedContent is the output of the image utility
type CompressedContent struct {
	Data     []byte
	MIMEType string
	Stats    model.CompressionStats
}

// ImageCompressor shrinks image content before it is sent to the text generator.
// Non-image content is returned unchanged with Stats.IsImage=false.
type ImageCompressor interface {
	Compress(ctx context.Context, data []byte, mimeType string) (*CompressedContent, error)
}
