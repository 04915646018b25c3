// Package cli holds the cobra command tree.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"adaptrader/internal/app"
	"adaptrader/internal/config"
	"adaptrader/internal/logger"
)

// Version is set at build time with -ldflags "-X adaptrader/internal/cli.Version=...".
var Version = "dev"

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "adaptrader",
		Short: "Adaptive trading agent simulator",
		Long: `adaptrader replays a price series through a trading agent that watches its
own reward stream for concept drift and halves its learning rate when the
market regime changes.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Configuration file (.toml, .yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Override app.log_level")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func addSessionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("source", "", `Price CSV path, http(s) URL or "synthetic"`)
	f.Int("max-steps", 0, "Stop after this many steps (0 = whole series)")
	f.Float64("interval", 0, "Seconds between steps")
	f.Float64("duration", 0, "Wall-clock session limit in seconds (0 = none)")
	f.String("db", "", "SQLite session store path")
	f.String("trace", "", "Append the step trace to this CSV file")
	f.String("report", "", "Write an HTML report to this path")
	f.Bool("quiet", false, "Do not print step lines")
}

// setup loads the configuration, applies flag overrides and builds the
// logger and the App.
func setup(cmd *cobra.Command) (*app.App, *zap.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return nil, nil, err
	}

	log, err := logger.New(cfg.App.LogLevel, cfg.App.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(cfg, log, cmd.OutOrStdout())
	if err != nil {
		log.Sync()
		return nil, nil, err
	}
	return a, log, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("log-level") {
		cfg.App.LogLevel, _ = f.GetString("log-level")
		if _, err := logger.ParseLevel(cfg.App.LogLevel); err != nil {
			return err
		}
	}
	if f.Changed("source") {
		cfg.Market.Source, _ = f.GetString("source")
	}
	if f.Changed("max-steps") {
		cfg.Session.MaxSteps, _ = f.GetInt("max-steps")
	}
	if f.Changed("interval") {
		cfg.Session.StepIntervalSeconds, _ = f.GetFloat64("interval")
	}
	if f.Changed("duration") {
		cfg.Session.DurationSeconds, _ = f.GetFloat64("duration")
	}
	if f.Changed("db") {
		cfg.Store.Path, _ = f.GetString("db")
	}
	if f.Changed("trace") {
		cfg.Output.TraceCSV, _ = f.GetString("trace")
	}
	if f.Changed("report") {
		cfg.Output.ReportHTML, _ = f.GetString("report")
	}
	if f.Changed("quiet") {
		cfg.Output.Quiet, _ = f.GetBool("quiet")
	}
	if f.Changed("addr") {
		cfg.Server.Addr, _ = f.GetString("addr")
	}
	if cfg.Session.MaxSteps < 0 || cfg.Session.StepIntervalSeconds < 0 || cfg.Session.DurationSeconds < 0 {
		return fmt.Errorf("session limits must not be negative")
	}
	return nil
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one trading session in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, log, err := setup(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()
			_, err = a.Run(cmd.Context())
			return err
		},
	}
	addSessionFlags(cmd)
	return cmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a session while serving the HTTP API and live stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, log, err := setup(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()
			return a.Serve(cmd.Context())
		},
	}
	addSessionFlags(cmd)
	cmd.Flags().String("addr", "", "Listen address (default from server.addr)")
	return cmd
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [URL]",
		Short: "Follow the step stream of a running server",
		Example: `  adaptrader watch
  adaptrader watch ws://10.0.0.5:8080/ws`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := "ws://localhost:8080/ws"
			if len(args) == 1 {
				url = args[0]
			}
			a, log, err := setup(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()
			return a.Watch(cmd.Context(), url)
		},
	}
}

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List stored sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, log, err := setup(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()
			limit, _ := cmd.Flags().GetInt("limit")
			return a.ListSessions(cmd.Context(), limit)
		},
	}
	cmd.Flags().Int("limit", 20, "Number of sessions to show")
	cmd.PersistentFlags().String("db", "", "SQLite session store path")

	export := &cobra.Command{
		Use:   "export SESSION_ID",
		Short: "Write the HTML report of a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, log, err := setup(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()
			out, _ := cmd.Flags().GetString("out")
			if err := a.ExportReport(cmd.Context(), args[0], out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "report written to %s\n", out)
			return nil
		},
	}
	export.Flags().String("out", "report.html", "Output HTML file")
	cmd.AddCommand(export)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "adaptrader %s\n", Version)
		},
	}
}
