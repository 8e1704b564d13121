package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/tonimelisma/docsync/internal/docstore"
)

// ProjectResolver returns the project to use when a tool call names none.
type ProjectResolver func(explicit string) (string, error)

// NewMCPServer builds an MCP server exposing the ask_project tool.
func NewMCPServer(asker Asker, resolve ProjectResolver, version string, logger *slog.Logger) *mcpserver.MCPServer {
	if logger == nil {
		logger = slog.Default()
	}

	s := mcpserver.NewMCPServer(
		"docsync",
		version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)

	tool := mcp.NewTool("ask_project",
		mcp.WithDescription("Answer a question from the documents synced for a project. "+
			"The project defaults to the one named in the nearest document-sync.json."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question to ask")),
		mcp.WithString("projectName", mcp.Description("Project name; optional")),
	)

	s.AddTool(tool, askProjectHandler(asker, resolve, logger))

	return s
}

func askProjectHandler(asker Asker, resolve ProjectResolver, logger *slog.Logger) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		project, err := resolve(req.GetString("projectName", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		reply, err := asker.Ask(ctx, query, project)
		if err != nil {
			logger.Error("ask_project failed", slog.String("project", project), slog.String("error", err.Error()))
			return mcp.NewToolResultError(fmt.Sprintf("Error asking project %q: %v", project, err)), nil
		}

		return mcp.NewToolResultText(formatReply(reply.Text, reply.Citations)), nil
	}
}

func formatReply(text string, citations []docstore.Citation) string {
	if len(citations) == 0 {
		return text
	}

	var sb strings.Builder
	sb.WriteString(text)
	sb.WriteString("\n\nSources:\n")

	seen := make(map[string]bool)

	for _, c := range citations {
		if c.Title == "" || seen[c.Title] {
			continue
		}

		seen[c.Title] = true
		fmt.Fprintf(&sb, "- %s\n", c.Title)
	}

	return strings.TrimRight(sb.String(), "\n")
}

// ServeStdio runs s over the given streams until ctx is canceled or the
// input closes.
func ServeStdio(ctx context.Context, s *mcpserver.MCPServer, in io.Reader, out io.Writer) error {
	stdio := mcpserver.NewStdioServer(s)
	return stdio.Listen(ctx, in, out)
}
