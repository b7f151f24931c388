package cmd

import (
	internal "github.com/ZanzyTHEbar/pitwall/pitwall"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           internal.DefaultAppName,
		Short:         "F1 race engineer: chat, race data and live timing",
		Long:          "pitwall serves an F1 race engineer assistant over HTTP and MCP, backed by cached race sessions, standings and an indexed rulebook.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a config file (default: ./config.yaml or the user config dir)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(opts),
		newMCPCmd(opts),
		newIngestCmd(opts),
	)
	return rootCmd
}
