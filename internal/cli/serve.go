package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"spread-trader/internal/notify"
	"spread-trader/internal/server"
	"spread-trader/internal/trading"
)

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduled engine and the approval API",
		Long: `Serve the approval API and run the scheduled jobs in one process: scans
and the end-of-day summary at fixed local times, the position monitor on an
interval, and periodic health checks. Stops gracefully on SIGINT or SIGTERM.`,
		Example: `  trader serve
  trader serve --addr :9090 --no-schedule`,
		RunE: withApp(app, func(cmd *cobra.Command, args []string, output *Output) error {
			cfg := app.Config
			srvCfg := cfg.Server
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				srvCfg.Addr = addr
			}
			noSchedule, _ := cmd.Flags().GetBool("no-schedule")
			poll, _ := cmd.Flags().GetDuration("poll")

			srv := server.New(srvCfg, app.ServerDeps(), app.Logger)

			var sched *trading.Scheduler
			if !noSchedule {
				var err error
				sched, err = trading.NewScheduler(cfg.Schedule, cfg.Location(),
					app.job(trading.JobScan, func(ctx context.Context) error {
						_, err := app.Pipeline.Run(ctx)
						return err
					}),
					app.job(trading.JobMonitor, func(ctx context.Context) error {
						_, err := app.Monitor.Run(ctx)
						return err
					}),
					app.job(trading.JobEOD, func(ctx context.Context) error {
						_, err := app.EOD.Run(ctx)
						return err
					}),
					app.Logger)
				if err != nil {
					output.Error("Invalid schedule: %v", err)
					return err
				}
			}

			app.Logger.Info().
				Str("mode", cfg.Trading.Mode).
				Str("addr", srvCfg.Addr).
				Bool("scheduled", sched != nil).
				Msg("Starting spread trader")

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				app.Health.Run(ctx)
				return nil
			})
			if sched != nil {
				g.Go(func() error {
					sched.Run(ctx, poll)
					return nil
				})
			}
			g.Go(func() error {
				return srv.Run(ctx)
			})

			if err := g.Wait(); err != nil {
				output.Error("Server stopped: %v", err)
				return err
			}
			app.Logger.Info().Msg("Shutdown complete")
			return nil
		}),
	}
	cmd.Flags().String("addr", "", "listen address (default: server.addr)")
	cmd.Flags().Bool("no-schedule", false, "serve the API without running scheduled jobs")
	cmd.Flags().Duration("poll", 30*time.Second, "how often the scheduler checks for due jobs")
	return cmd
}

// job reports a failed scheduled job through the notifier.
func (app *App) job(name string, run func(ctx context.Context) error) trading.JobFunc {
	return func(ctx context.Context) error {
		err := run(ctx)
		if err != nil && ctx.Err() == nil {
			if sendErr := app.Notifier.Send(ctx, notify.Error(err, name)); sendErr != nil {
				app.Logger.Warn().Err(sendErr).Str("job", name).Msg("Failed to send job failure")
			}
		}
		return err
	}
}
