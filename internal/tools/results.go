package tools

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// userFacing is implemented by errors that carry a message safe to show in
// the GUI.
type userFacing interface {
	UserFacingError() string
}

// ErrorMessage returns the message shown for err: the user-facing message
// of the first error in the chain that has one, else err's own text.
func ErrorMessage(err error) string {
	var uf userFacing
	if errors.As(err, &uf) {
		return uf.UserFacingError()
	}
	return err.Error()
}

// ErrorResult reports a failed action, e.g. ErrorResult("Failed to list pods", err).
func ErrorResult(action string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %s", action, ErrorMessage(err)))
}

// JSONResult renders v as indented JSON text.
func JSONResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
