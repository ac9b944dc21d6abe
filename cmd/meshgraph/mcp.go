package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/meshgraph/pkg/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server on stdio",
	Long: `Exposes meshgraph-d to AI agents as an MCP server over standard input/output.
Logs go to stderr so they do not corrupt the JSON-RPC stream.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint, _ := cmd.Flags().GetString("endpoint")

		log.SetOutput(os.Stderr)
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
		slog.Info("Starting meshgraph MCP server (stdio)", "endpoint", endpoint)

		return mcp.NewServer(endpoint).Serve()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
