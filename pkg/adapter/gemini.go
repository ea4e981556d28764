package adapter

import (
	"context"
	"net/http"
	"strings"

	"github.com/m-mizutani/conclave/pkg/interfaces"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// Gemini provides both the embedding service and the text generation service
type Gemini struct {
	client          *genai.Client
	generativeModel string
	embeddingModel  string
	embeddingDim    int32
}

var (
	_ interfaces.Embedder      = (*Gemini)(nil)
	_ interfaces.TextGenerator = (*Gemini)(nil)
)

type GeminiOption func(*Gemini)

func WithGenerativeModel(model string) GeminiOption {
	return func(g *Gemini) {
		g.generativeModel = model
	}
}

func WithEmbeddingModel(model string) GeminiOption {
	return func(g *Gemini) {
		g.embeddingModel = model
	}
}

// WithEmbeddingDimension sets the output dimensionality of embeddings. It must
// match the dimension of the vector indexes.
func WithEmbeddingDimension(dim int32) GeminiOption {
	return func(g *Gemini) {
		g.embeddingDim = dim
	}
}

func NewGemini(ctx context.Context, projectID, location string, opts ...GeminiOption) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	g := &Gemini{
		client:          client,
		generativeModel: "gemini-2.5-flash",
		embeddingModel:  "gemini-embedding-001",
		embeddingDim:    768,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

func embedTaskType(mode interfaces.EmbedMode) string {
	if mode == interfaces.EmbedModeQuery {
		return "RETRIEVAL_QUERY"
	}
	return "RETRIEVAL_DOCUMENT"
}

// Embed computes an embedding for text and/or image content
func (g *Gemini) Embed(ctx context.Context, input *interfaces.EmbedInput) ([]float32, error) {
	if input == nil || (input.Text == "" && len(input.Image) == 0) {
		return nil, goerr.New("embedding input is empty")
	}

	var parts []*genai.Part
	if input.Text != "" {
		parts = append(parts, genai.NewPartFromText(input.Text))
	}
	if len(input.Image) > 0 {
		mimeType := input.MIMEType
		if mimeType == "" {
			mimeType = http.DetectContentType(input.Image)
		}
		parts = append(parts, genai.NewPartFromBytes(input.Image, mimeType))
	}

	dim := g.embeddingDim
	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.EmbedContentConfig{
			TaskType:             embedTaskType(input.Mode),
			OutputDimensionality: &dim,
		})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed content", goerr.V("model", g.embeddingModel))
	}

	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, goerr.New("empty embedding response", goerr.V("model", g.embeddingModel))
	}

	return resp.Embeddings[0].Values, nil
}

// Generate produces text for a prompt with optional images
func (g *Gemini) Generate(ctx context.Context, prompt string, images ...*interfaces.Image) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	for _, img := range images {
		if img == nil || len(img.Data) == 0 {
			continue
		}
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
	}

	thinkingBudget := int32(0)
	config := &genai.GenerateContentConfig{
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
	}

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := g.client.Models.GenerateContent(ctx, g.generativeModel, contents, config)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate content", goerr.V("model", g.generativeModel))
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", goerr.New("empty response from gemini")
	}

	var texts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n"), nil
}
