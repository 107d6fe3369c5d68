package cli

import (
	"github.com/spf13/cobra"

	"github.com/custodia-labs/prdmachine/internal/adapters/driving/mcp"
)

var mcpAddr string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Model Context Protocol integration",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve document tools to an MCP client",
	Long: `Expose prdmachine to AI assistants over the Model Context Protocol.

Tools cover status, distill, conflict and drift detection, alignment and
export. Documents and their versions are readable as resources.

JSON-RPC is spoken over stdio unless --http is given.

Examples:
  prdmachine mcp serve
  prdmachine mcp serve --http :8090

Client configuration:
  {
    "mcpServers": {
      "prdmachine": {"command": "prdmachine", "args": ["mcp", "serve"]}
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().StringVar(&mcpAddr, "http", "", "serve streamable HTTP on this address instead of stdio")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	repo := repoFlag
	if repo == "" {
		repo = defaultRepo
	}

	server, err := mcp.NewServer(&mcp.Ports{Evolution: evolutionService, DefaultRepo: repo})
	if err != nil {
		return err
	}

	if mcpAddr == "" {
		return server.Run(cmd.Context())
	}
	cmd.PrintErrf("MCP server listening on %s\n", mcpAddr)
	return server.RunHTTP(cmd.Context(), mcpAddr)
}
