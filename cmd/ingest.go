package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/pitwall/pitwall/rulebook"
)

func newIngestCmd(opts *rootOptions) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Index regulation documents for rulebook search",
		Long:  "ingest chunks every supported regulation file under dir (default: rulebook.source_dir) into the full-text index. Unchanged files are skipped.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := wireApp(ctx, opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			dir := a.cfg.Rulebook.SourceDir
			if len(args) == 1 {
				dir = args[0]
			}

			ingester := rulebook.NewIngester(a.rules, a.logger)
			report, err := ingester.IngestDir(ctx, dir)
			if err != nil {
				return fmt.Errorf("ingest %s: %w", dir, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "files: %d indexed: %d unchanged: %d failed: %d chunks: %d\n",
				report.Files, report.Indexed, report.Unchanged, report.Failed, report.Chunks)

			if !watch {
				return nil
			}
			err = rulebook.NewWatcher(ingester, dir, 0, a.logger).Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and re-index files as they change")
	return cmd
}
