package mcp

import (
	"context"
	"os"
	"path/filepath"

	"github.com/m-mizutani/conclave/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// Config is the MCP configuration file
//
//	servers:
//	  - name: search
//	    transport: http
//	    url: http://localhost:8080/mcp
//	web_search:
//	  server: search
//	  tool: web_search
type Config struct {
	Servers   []ServerConfig   `yaml:"servers"`
	WebSearch *WebSearchConfig `yaml:"web_search,omitempty"`
}

// WebSearchConfig names the tool used as the web search service. QueryArg
// is detected from the tool's input schema when empty.
type WebSearchConfig struct {
	Server   string `yaml:"server"`
	Tool     string `yaml:"tool"`
	QueryArg string `yaml:"query_arg,omitempty"`
}

// LoadConfig reads a YAML config file
func LoadConfig(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve config path", goerr.V("path", path))
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read MCP config file", goerr.V("path", absPath))
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, goerr.Wrap(err, "failed to parse MCP config file", goerr.V("path", absPath))
	}
	return &cfg, nil
}

// LoadWebSearcher loads the config, connects to the configured servers and
// returns the web searcher. It returns nil without error when configPath is
// empty or no web_search section exists. Servers that fail to connect are
// skipped with a warning; only the web search server is required.
func LoadWebSearcher(ctx context.Context, configPath string) (*WebSearcher, error) {
	if configPath == "" {
		return nil, nil
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.WebSearch == nil {
		logging.From(ctx).Warn("no web_search section in MCP config", "path", configPath)
		return nil, nil
	}

	client := NewClient()
	for _, serverCfg := range cfg.Servers {
		if err := client.Connect(ctx, serverCfg); err != nil {
			logging.From(ctx).Warn("failed to connect to MCP server", "server", serverCfg.Name, "error", err)
			continue
		}
		logging.From(ctx).Debug("connected to MCP server", "server", serverCfg.Name)
	}

	ws, err := NewWebSearcher(client, *cfg.WebSearch)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return ws, nil
}
