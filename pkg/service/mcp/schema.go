package mcp

import (
	"encoding/json"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
)

// defaultQueryArg is used when the schema gives no better hint
const defaultQueryArg = "query"

// parseInputSchema converts a tool input schema into jsonschema.Schema
func parseInputSchema(raw any) (*jsonschema.Schema, error) {
	if raw == nil {
		return nil, nil
	}
	if s, ok := raw.(*jsonschema.Schema); ok {
		return s, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal input schema")
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal input schema")
	}
	return &schema, nil
}

// queryArgument picks the argument that carries the search query: a "query"
// or "q" property, then the only required string property, then the only
// string property.
func queryArgument(schema *jsonschema.Schema) (string, error) {
	if schema == nil || len(schema.Properties) == 0 {
		return defaultQueryArg, nil
	}
	if schema.Type != "" && schema.Type != "object" {
		return "", goerr.New("tool input schema is not an object", goerr.V("type", schema.Type))
	}

	for _, name := range []string{"query", "q"} {
		if prop, ok := schema.Properties[name]; ok && isString(prop) {
			return name, nil
		}
	}

	var required []string
	for _, name := range schema.Required {
		if prop, ok := schema.Properties[name]; ok && isString(prop) {
			required = append(required, name)
		}
	}
	if len(required) == 1 {
		return required[0], nil
	}

	var strs []string
	for name, prop := range schema.Properties {
		if isString(prop) {
			strs = append(strs, name)
		}
	}
	sort.Strings(strs)
	if len(strs) == 1 {
		return strs[0], nil
	}

	return "", goerr.New("cannot determine query argument of tool", goerr.V("properties", strs))
}

func isString(s *jsonschema.Schema) bool {
	return s != nil && (s.Type == "string" || (s.Type == "" && len(s.Types) == 1 && s.Types[0] == "string"))
}
