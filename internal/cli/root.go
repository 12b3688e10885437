package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradecore/config"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// rootOptions holds the persistent flags and the config they resolve to.
type rootOptions struct {
	ConfigPath string
	DBPath     string
	LogLevel   string
	LogFormat  string

	cfg *config.Config
}

func NewRootCmd() *cobra.Command {
	ro := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "trader",
		Short:         "Trader — strategy backtests and live sessions on one ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global / persistent flags
	cmd.PersistentFlags().StringVar(&ro.ConfigPath, "config", "", "Path to config file (YAML or JSON; defaults when empty)")
	cmd.PersistentFlags().StringVar(&ro.DBPath, "db", "", "SQLite journal database (overrides journal section)")
	cmd.PersistentFlags().StringVar(&ro.LogLevel, "log-level", "", "Log level: debug|info|warn|error")
	cmd.PersistentFlags().StringVar(&ro.LogFormat, "log-format", "", "Log format: text|json")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		cfg, err := config.Load(ro.ConfigPath)
		if err != nil {
			return err
		}
		if ro.DBPath != "" {
			cfg.Journal = config.JournalConfig{Type: "sqlite", DBPath: ro.DBPath}
		}
		if ro.LogLevel != "" {
			cfg.Log.Level = ro.LogLevel
		}
		if ro.LogFormat != "" {
			cfg.Log.Format = ro.LogFormat
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		config.SetupLogger(cfg.Log, cmd.ErrOrStderr())
		ro.cfg = cfg
		return nil
	}

	cmd.AddCommand(
		newBacktestCmd(ro),
		newLiveCmd(ro),
		newRunsCmd(ro),
		newStrategiesCmd(),
	)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "trader %s\n", Version)
		},
	})

	return cmd
}

// Execute runs the root command; SIGINT/SIGTERM cancel its context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
