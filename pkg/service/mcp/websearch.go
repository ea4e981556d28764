package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/m-mizutani/conclave/pkg/interfaces"
	"github.com/m-mizutani/conclave/pkg/model"
	"github.com/m-mizutani/conclave/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// WebSearcher serves web searches by calling an MCP tool
type WebSearcher struct {
	client   *Client
	server   string
	tool     string
	queryArg string
}

var _ interfaces.WebSearcher = (*WebSearcher)(nil)

// NewWebSearcher binds the web search service to a tool of a connected server
func NewWebSearcher(client *Client, cfg WebSearchConfig) (*WebSearcher, error) {
	t, err := client.Tool(cfg.Server, cfg.Tool)
	if err != nil {
		return nil, goerr.Wrap(err, "web search tool is not available")
	}

	queryArg := cfg.QueryArg
	if queryArg == "" {
		schema, err := parseInputSchema(t.InputSchema)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to parse web search tool schema", goerr.V("tool", t.Name))
		}
		if queryArg, err = queryArgument(schema); err != nil {
			return nil, goerr.Wrap(err, "failed to find query argument", goerr.V("tool", t.Name))
		}
	}

	return &WebSearcher{
		client:   client,
		server:   cfg.Server,
		tool:     cfg.Tool,
		queryArg: queryArg,
	}, nil
}

// Close closes the underlying MCP sessions
func (w *WebSearcher) Close() error {
	return w.client.Close()
}

// Search calls the tool with the query. Structured output and JSON text in
// the shape of WebSearchResult are decoded; other text becomes the answer
// and resource links become citations.
func (w *WebSearcher) Search(ctx context.Context, query string) (*model.WebSearchResult, error) {
	result, err := w.client.CallTool(ctx, w.server, w.tool, map[string]any{w.queryArg: query})
	if err != nil {
		return nil, err
	}

	text := contentText(result.Content)
	if result.IsError {
		return nil, goerr.New("web search tool returned an error",
			goerr.V("tool", w.tool),
			goerr.V("message", text))
	}

	out := &model.WebSearchResult{}
	if result.StructuredContent != nil {
		if decoded, ok := decodeResult(result.StructuredContent); ok {
			out = decoded
		}
	} else if decoded, ok := decodeText(text); ok {
		out = decoded
	} else {
		out.Answer = text
	}

	for _, c := range result.Content {
		if link, ok := c.(*mcp.ResourceLink); ok {
			title := link.Title
			if title == "" {
				title = link.Name
			}
			out.Citations = append(out.Citations, model.WebCitation{
				Title:   title,
				URL:     link.URI,
				Snippet: link.Description,
			})
		}
	}

	logging.From(ctx).Debug("web search done",
		"tool", w.tool,
		"query", query,
		"citations", len(out.Citations))

	return out, nil
}

func contentText(contents []mcp.Content) string {
	var texts []string
	for _, c := range contents {
		if t, ok := c.(*mcp.TextContent); ok && t.Text != "" {
			texts = append(texts, t.Text)
		}
	}
	return strings.Join(texts, "\n")
}

func decodeResult(v any) (*model.WebSearchResult, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return decodeText(string(data))
}

func decodeText(text string) (*model.WebSearchResult, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "{") {
		return nil, false
	}
	var out model.WebSearchResult
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, false
	}
	if out.Answer == "" && len(out.Citations) == 0 {
		return nil, false
	}
	return &out, true
}
