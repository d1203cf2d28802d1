package mcptools

import (
	"context"
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewMCPServer creates an MCP server with the draft_tsg and validate_tsg
// tools registered.
func NewMCPServer(svc *DraftService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "tsgdraft",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "draft_tsg",
		Description: "Draft a Technical Support Guide from troubleshooting notes. Runs research, write, and review against the configured agents. To answer follow-up questions, call again with answers plus the threadId, priorTsg, and priorResearch of the earlier draft.",
	}, svc.DraftTSG)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "validate_tsg",
		Description: "Check writer output for the TSG and questions markers, required headings, and placeholder consistency. Returns the list of issues.",
	}, svc.ValidateTSG)

	return server
}

// RunStdio runs the MCP server on stdio transport, blocking until stdin is
// closed or the context is cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the MCP tools over streamable HTTP on addr until ctx is
// cancelled.
func RunHTTP(ctx context.Context, server *mcp.Server, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Shutdown gracefully when context is cancelled.
	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
