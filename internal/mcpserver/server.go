// Package mcpserver exposes read-only board state over MCP so a coding
// agent launched by executor.CLIExecutor can query the daemon's own view
// of a board mid-session instead of re-deriving it by shelling out to gh
// itself.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/exampleorg/boardrunner/internal/store"
	"github.com/exampleorg/boardrunner/internal/ticket"
)

// Server wraps the daemon's store and ticket adapter and exposes them as
// MCP tools.
type Server struct {
	store   store.Store
	adapter ticket.Adapter
}

// NewServer creates the MCP server wrapper.
func NewServer(st store.Store, adapter ticket.Adapter) *Server {
	return &Server{store: st, adapter: adapter}
}

// MCPServer returns a configured mcp-go server with every tool registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("boardrunner", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listBoardsTool())
	srv.AddTool(s.listItemsTool())
	srv.AddTool(s.runHistoryTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// boardrunner_list_boards
func (s *Server) listBoardsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("boardrunner_list_boards",
		mcp.WithDescription("List every board boardrunner is configured to poll. Returns a JSON array of repo, project_url, and watched_statuses."),
	)
	return tool, s.handleListBoards
}

func (s *Server) handleListBoards(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	boards, err := s.store.ListBoards(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list boards: %v", err)), nil
	}

	type boardOut struct {
		Repo            string   `json:"repo"`
		ProjectURL      string   `json:"project_url"`
		WatchedStatuses []string `json:"watched_statuses"`
	}
	out := make([]boardOut, len(boards))
	for i, b := range boards {
		out[i] = boardOut{Repo: b.Repo, ProjectURL: b.ProjectURL, WatchedStatuses: b.WatchedStatuses}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal boards: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// boardrunner_list_items
func (s *Server) listItemsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("boardrunner_list_items",
		mcp.WithDescription("List open items on one board, with their current status and labels. Returns a JSON array."),
		mcp.WithString("repo", mcp.Required(), mcp.Description("Board repo identifier, e.g. \"owner/repo\" or \"ghes.example.com/owner/repo\"")),
	)
	return tool, s.handleListItems
}

func (s *Server) handleListItems(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repo, err := request.RequireString("repo")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: repo"), nil
	}

	items, err := s.adapter.ListItems(ctx, repo)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list items: %v", err)), nil
	}

	type itemOut struct {
		ID     int      `json:"id"`
		Title  string   `json:"title"`
		Status string   `json:"status"`
		Labels []string `json:"labels"`
	}
	out := make([]itemOut, len(items))
	for i, it := range items {
		out[i] = itemOut{ID: it.ID, Title: it.Title, Status: it.Status, Labels: it.Labels}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal items: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// boardrunner_run_history
func (s *Server) runHistoryTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("boardrunner_run_history",
		mcp.WithDescription("List the most recent workflow runs for one ticket. Returns a JSON array ordered newest-first."),
		mcp.WithString("repo", mcp.Required(), mcp.Description("Board repo identifier")),
		mcp.WithString("ticket_id", mcp.Required(), mcp.Description("Ticket/issue number")),
		mcp.WithString("limit", mcp.Description("Maximum rows to return (default 10)")),
	)
	return tool, s.handleRunHistory
}

func (s *Server) handleRunHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repo, err := request.RequireString("repo")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: repo"), nil
	}
	ticketIDStr, err := request.RequireString("ticket_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: ticket_id"), nil
	}
	ticketID, err := strconv.Atoi(ticketIDStr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid ticket_id: %v", err)), nil
	}
	limit := 10
	if limitStr := request.GetString("limit", ""); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			limit = parsed
		}
	}

	runs, err := s.store.ListRunHistory(ctx, repo, ticketID, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list run history: %v", err)), nil
	}

	type runOut struct {
		Workflow  string `json:"workflow"`
		StartedAt string `json:"started_at"`
		Outcome   string `json:"outcome"`
	}
	out := make([]runOut, len(runs))
	for i, r := range runs {
		out[i] = runOut{Workflow: r.Workflow, StartedAt: r.StartedAt.Format("2006-01-02T15:04:05Z07:00"), Outcome: string(r.Outcome)}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal run history: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
