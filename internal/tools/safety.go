package tools

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/giantswarm/kubedeck/internal/server"
)

// CheckMutatingOperation returns an error result when the server runs in
// read-only mode, nil when operation may proceed. Only operations that change
// cluster state are guarded; registry edits stay local and are always allowed.
func CheckMutatingOperation(sc *server.ServerContext, operation string) *mcp.CallToolResult {
	if !sc.ReadOnly() {
		return nil
	}
	return mcp.NewToolResultError(fmt.Sprintf(
		"%s operations are not allowed in read-only mode",
		cases.Title(language.English).String(operation),
	))
}
