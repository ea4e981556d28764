package image

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"strings"

	// decoders for image.Decode
	_ "image/gif"
	_ "image/png"

	"github.com/m-mizutani/conclave/pkg/interfaces"
	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/conclave/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxDimension = 1024
	DefaultQuality      = 80
)

// Compressor scales images down to fit MaxDimension and re-encodes them as JPEG
type Compressor struct {
	maxDimension int
	quality      int
}

var _ interfaces.ImageCompressor = (*Compressor)(nil)

type Option func(*Compressor)

func WithMaxDimension(n int) Option {
	return func(c *Compressor) {
		c.maxDimension = n
	}
}

func WithQuality(q int) Option {
	return func(c *Compressor) {
		c.quality = q
	}
}

func New(opts ...Option) *Compressor {
	c := &Compressor{
		maxDimension: DefaultMaxDimension,
		quality:      DefaultQuality,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func passThrough(data []byte, mimeType string) *interfaces.CompressedContent {
	return &interfaces.CompressedContent{
		Data:     data,
		MIMEType: mimeType,
		Stats: model.CompressionStats{
			OriginalSize:   len(data),
			CompressedSize: len(data),
			Ratio:          1.0,
		},
	}
}

// Compress returns non-image content unchanged. Images are decoded, scaled to
// fit within the max dimension keeping the aspect ratio, and encoded as JPEG.
// The original bytes are kept when re-encoding does not make them smaller.
func (c *Compressor) Compress(ctx context.Context, data []byte, mimeType string) (*interfaces.CompressedContent, error) {
	if !strings.HasPrefix(mimeType, "image/") {
		return passThrough(data, mimeType), nil
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to decode image", goerr.V("mime_type", mimeType), goerr.V("size", len(data)))
	}

	bounds := src.Bounds()
	width, height := fitWithin(bounds.Dx(), bounds.Dy(), c.maxDimension)

	var img image.Image = src
	if width != bounds.Dx() || height != bounds.Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.quality}); err != nil {
		return nil, goerr.Wrap(err, "failed to encode image", goerr.V("format", format))
	}

	out := &interfaces.CompressedContent{
		Data:     buf.Bytes(),
		MIMEType: "image/jpeg",
		Stats: model.CompressionStats{
			OriginalSize: len(data),
			Width:        width,
			Height:       height,
			IsImage:      true,
		},
	}
	if img == src && buf.Len() >= len(data) {
		out.Data = data
		out.MIMEType = mimeType
	}
	out.Stats.CompressedSize = len(out.Data)
	if len(data) > 0 {
		out.Stats.Ratio = float64(out.Stats.CompressedSize) / float64(len(data))
	}

	logging.From(ctx).Debug("image compressed",
		"format", format,
		"original_size", out.Stats.OriginalSize,
		"compressed_size", out.Stats.CompressedSize,
		"width", width,
		"height", height)

	return out, nil
}

func fitWithin(w, h, max int) (int, int) {
	if max <= 0 || (w <= max && h <= max) {
		return w, h
	}
	if w >= h {
		return max, maxInt(1, h*max/w)
	}
	return maxInt(1, w*max/h), max
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
