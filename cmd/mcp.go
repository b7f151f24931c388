package cmd

import (
	"github.com/spf13/cobra"

	internal "github.com/ZanzyTHEbar/pitwall/pitwall"
	"github.com/ZanzyTHEbar/pitwall/pitwall/mcp"
)

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Expose the race engineer capabilities as an MCP server over stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := wireApp(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer a.Close()
			// stdout carries the protocol; logs stay on stderr
			return mcp.Run(a.tools, a.factory.CreateExecutor(nil), internal.Version, a.logger)
		},
	}
}
