package main

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"calagg/internal/apperr"
	"calagg/internal/config"
	appLog "calagg/internal/log"
	"calagg/internal/pipeline"
	"calagg/internal/web"
)

// cronLogger routes cron's own messages through the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...interface{}) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	appLog.Error("cron: "+msg, err, kv...)
}

func newWatchCmd(flags *rootFlags) *cobra.Command {
	var (
		schedule string
		listen   string
		runNow   bool
	)
	cmd := &cobra.Command{
		Use:   "watch <outdir>",
		Short: "Run aggregation passes on a cron schedule until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(flags)
			if err != nil {
				return err
			}
			if schedule != "" {
				s.Schedule = schedule
			}
			if listen != "" {
				s.Listen = listen
			}
			return watch(cmd.Context(), s, pipeline.New(s), args[0], runNow)
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", "", `Cron expression, e.g. "0 */6 * * *" (overrides settings)`)
	cmd.Flags().StringVar(&listen, "listen", "", "Serve the calendars over HTTP on this address (overrides settings)")
	cmd.Flags().BoolVar(&runNow, "run-now", true, "Run one pass immediately before waiting for the schedule")
	return cmd
}

// watch triggers r.Run from the configured schedule. Passes never overlap:
// a tick that fires while a pass is still running is skipped. A failed
// pass is logged and the next tick tries again.
func watch(ctx context.Context, s *config.Settings, r *pipeline.Runner, outdir string, runNow bool) error {
	logger := cronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	var srv *web.Server
	if s.Listen != "" {
		opts := []web.Option{web.WithBasicAuth(s.BasicAuthUsername, s.BasicAuthPassword)}
		if r.Metrics != nil {
			opts = append(opts, web.WithMetrics(r.Metrics.Registry()))
		}
		srv = web.NewServer(outdir, opts...)
	}

	pass := func() error {
		rep, err := r.Run(ctx, outdir)
		if srv != nil {
			srv.Record(rep, err)
		}
		if err != nil {
			appLog.Error("update failed", err, "kind", apperr.KindOf(err))
		}
		return err
	}
	id, err := c.AddFunc(s.Schedule, func() { _ = pass() })
	if err != nil {
		return apperr.Config("schedule", err)
	}

	if runNow {
		// Config errors fail fast; anything else is retried on schedule.
		if err := pass(); apperr.KindOf(err) == apperr.KindConfig {
			return err
		}
	}

	serveErr := make(chan error, 1)
	if srv != nil {
		go func() { serveErr <- srv.ListenAndServe(ctx, s.Listen) }()
	}

	c.Start()
	appLog.Info("watching", "schedule", s.Schedule, "outdir", outdir, "next", c.Entry(id).Next)

	select {
	case <-ctx.Done():
		appLog.Info("shutdown requested; waiting for running pass")
		<-c.Stop().Done()
		if srv != nil {
			return <-serveErr
		}
		return nil
	case err := <-serveErr:
		<-c.Stop().Done()
		return err
	}
}
