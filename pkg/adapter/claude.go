package adapter

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m-mizutani/conclave/pkg/interfaces"
	"github.com/m-mizutani/goerr/v2"
)

// Claude is a text generation service backed by the Anthropic Messages API
type Claude struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

var _ interfaces.TextGenerator = (*Claude)(nil)

type ClaudeOption func(*Claude)

func WithClaudeModel(model string) ClaudeOption {
	return func(c *Claude) {
		c.model = model
	}
}

func WithClaudeMaxTokens(n int64) ClaudeOption {
	return func(c *Claude) {
		c.maxTokens = n
	}
}

// NewClaude creates a new Claude API client
func NewClaude(apiKey string, opts ...ClaudeOption) *Claude {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)
	c := &Claude{
		client:    &client,
		model:     "claude-sonnet-4-20250514",
		maxTokens: 4096,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// claudeImageTypes lists the media types accepted by the Messages API
var claudeImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

func (c *Claude) Generate(ctx context.Context, prompt string, images ...*interfaces.Image) (string, error) {
	var blocks []anthropic.ContentBlockParamUnion
	for _, img := range images {
		if img == nil || len(img.Data) == 0 || !claudeImageTypes[img.MIMEType] {
			continue
		}
		blocks = append(blocks, anthropic.NewImageBlockBase64(img.MIMEType, base64.StdEncoding.EncodeToString(img.Data)))
	}
	blocks = append(blocks, anthropic.NewTextBlock(prompt))

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to call claude", goerr.V("model", c.model))
	}

	var texts []string
	for _, block := range resp.Content {
		if block.Type == "text" {
			if text := block.AsText().Text; text != "" {
				texts = append(texts, text)
			}
		}
	}
	if len(texts) == 0 {
		return "", goerr.New("empty response from claude", goerr.V("stop_reason", resp.StopReason))
	}
	return strings.Join(texts, "\n"), nil
}
