package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// createJSONResponse creates a standardized JSON response for MCP tools
func createJSONResponse(data any) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(content)},
		},
	}, nil
}

// createErrorResponse reports a tool failure inside the result with IsError
// set, so the client model can see it and correct the call
func createErrorResponse(operation string, err error) (*mcp.CallToolResult, error) {
	response, marshalErr := createJSONResponse(map[string]any{
		"success":   false,
		"error":     err.Error(),
		"operation": operation,
	})
	if marshalErr != nil {
		return nil, marshalErr
	}
	response.IsError = true
	return response, nil
}
