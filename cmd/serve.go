package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/pitwall/pitwall/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, live gateway and refill scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := wireApp(ctx, opts, false)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			return a.serve(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	srv := server.New(server.Deps{
		Orchestrator: a.factory.CreateOrchestrator(a.factory.CreateProvider(), a.tools),
		Policy:       a.factory.CreatePolicy(),
		Season:       a.ergast,
		Cache:        a.cache,
		LoadTimeout:  a.cfg.Enrichment.LoadTimeout(),
		Live:         a.gateway(),
	}, a.cfg.Server, a.logger)

	if a.cfg.Scheduler.Enabled {
		sched := a.scheduler()
		sched.Start(ctx)
		defer sched.Stop()
	}

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(srv.Run)
	if a.cfg.Rulebook.Watch && a.rules != nil {
		w := a.watcher()
		p.Go(func(ctx context.Context) error {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error().Err(err).Msg("rulebook watcher stopped")
			}
			return nil
		})
	}
	return p.Wait()
}
