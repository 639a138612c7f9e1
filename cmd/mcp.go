package cmd

import (
	"github.com/spf13/cobra"

	"github.com/exampleorg/boardrunner/internal/mcpserver"
	"github.com/exampleorg/boardrunner/internal/ticket"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP stdio server exposing board state",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets a claude CLI workflow launched by the daemon query
boardrunner's own view of a board mid-session instead of re-deriving
it by shelling out to gh itself. Configure in Claude Code with:

  {
    "mcpServers": {
      "boardrunner": { "command": "boardrunner", "args": ["mcp"] }
    }
  }

Available tools: boardrunner_list_boards, boardrunner_list_items,
boardrunner_run_history`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := getStore()
		if err != nil {
			return err
		}
		srv := mcpserver.NewServer(st, ticket.NewGitHubAdapter())
		return srv.ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
