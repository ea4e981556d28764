package mcp

var (
	ParseInputSchema = parseInputSchema
	QueryArgument    = queryArgument
)
