package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"calagg/internal/apperr"
	"calagg/internal/config"
	appLog "calagg/internal/log"
)

// rootFlags holds values shared by every subcommand.
type rootFlags struct {
	configPath string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		appLog.Error("calagg failed", err, "kind", apperr.KindOf(err))
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "calagg",
		Short:         "Aggregate event listings and feeds into per-category calendars",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to settings YAML (default $CALAGG_CONFIG)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides settings)")

	root.AddCommand(
		newUpdateCmd(flags),
		newCheckFeedsCmd(flags),
		newWatchCmd(flags),
	)
	return root
}

// loadSettings reads the settings and applies the log level.
func loadSettings(flags *rootFlags) (*config.Settings, error) {
	s, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		s.LogLevel = flags.logLevel
	}
	level, err := appLog.ParseLevel(s.LogLevel)
	if err != nil {
		return nil, apperr.Config("log level", err)
	}
	appLog.SetLevel(level)

	appLog.Debug("effective settings",
		"data_dir", s.DataDir,
		"calendar_file", s.CalendarPath(),
		"feeds_file", s.FeedsPath(),
		"horizon_days", s.HorizonDays,
		"incremental", s.Incremental,
		"scanner_enabled", s.ScannerKey != "",
		"metrics_file", s.MetricsFile,
	)
	return s, nil
}

// exitCode maps a failed run onto a process exit status.
func exitCode(err error) int {
	if errors.Is(err, context.Canceled) {
		return 130
	}
	switch apperr.KindOf(err) {
	case apperr.KindConfig:
		return 2
	case apperr.KindNetwork:
		return 3
	case apperr.KindParse:
		return 4
	case apperr.KindDataQuality:
		return 5
	default:
		return 1
	}
}
