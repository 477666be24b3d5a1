package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"spread-trader/internal/config"
	"spread-trader/internal/logging"
	"spread-trader/internal/security"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2024-03-01"
)

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "trader",
		Short: "Spread Trader - credit spread trading engine",
		Long: `Spread Trader screens US equity options for credit spreads, turns the best
into recommendations awaiting approval and manages approved trades through
fills, exits and a graduated circuit breaker.

Run 'trader serve' for the scheduled engine with its approval API, or use the
one-shot commands below to drive each job by hand.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/spread-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	addJobCommands(rootCmd, app)
	addTradingCommands(rootCmd, app)
	addRiskCommands(rootCmd, app)
	rootCmd.AddCommand(newServeCmd(app))

	return rootCmd
}

// withApp builds the app before running fn.
func withApp(app *App, fn func(cmd *cobra.Command, args []string, output *Output) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		output := NewOutput(cmd)
		if err := app.Build(cmd.Context()); err != nil {
			output.Error("Startup failed: %v", err)
			return err
		}
		return fn(cmd, args, output)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("Spread Trader v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(redacted(app.Config))
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			dir, _ := cmd.Flags().GetString("config")
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": dir})
			}
			output.Println(dir)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

// redacted copies cfg with credentials and shared secrets masked.
func redacted(cfg *config.Config) config.Config {
	c := *cfg
	c.Credentials.Alpaca.APIKey = security.MaskCredential(c.Credentials.Alpaca.APIKey)
	c.Credentials.Alpaca.SecretKey = security.MaskCredential(c.Credentials.Alpaca.SecretKey)
	c.Credentials.OpenAI.APIKey = security.MaskCredential(c.Credentials.OpenAI.APIKey)
	c.Server.Secret = security.MaskCredential(c.Server.Secret)
	c.Notifications.Webhook.Secret = security.MaskCredential(c.Notifications.Webhook.Secret)
	c.Storage.Redis.Password = security.MaskCredential(c.Storage.Redis.Password)
	return c
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Trading")
	output.Printf("  Mode:             %s\n", cfg.Trading.Mode)
	output.Printf("  Underlyings:      %v\n", cfg.Trading.Underlyings)
	output.Printf("  Max Recs:         %d (top %d per underlying)\n", cfg.Trading.MaxRecommendations, cfg.Trading.TopPerUnderlying)
	output.Printf("  Rec TTL:          %s\n", cfg.Trading.RecommendationTTL)
	output.Printf("  Auto Approve:     %v\n", cfg.Trading.AutoApprove)
	output.Printf("  Timezone:         %s\n", cfg.Trading.Timezone)
	if cfg.IsPaperMode() {
		output.Printf("  Paper Balance:    %s\n", FormatCurrency(cfg.Trading.PaperBalance))
	}
	output.Println()

	output.Bold("Risk")
	output.Printf("  Risk per Trade:   %s\n", FormatRatio(cfg.Risk.MaxRiskPerTradePct))
	output.Printf("  Single Position:  %s\n", FormatRatio(cfg.Risk.MaxSinglePositionPct))
	output.Printf("  Portfolio Heat:   %s\n", FormatRatio(cfg.Risk.MaxPortfolioHeatPct))
	output.Printf("  Daily Halt:       %s\n", FormatRatio(cfg.Risk.DailyHaltPct))
	output.Printf("  Weekly Halt:      %s\n", FormatRatio(cfg.Risk.WeeklyHaltPct))
	output.Printf("  Drawdown Halt:    %s\n", FormatRatio(cfg.Risk.DrawdownHaltPct))
	output.Printf("  VIX Halt:         %.0f\n", cfg.Risk.VIXHalt)
	output.Println()

	output.Bold("Execution")
	output.Printf("  Fill Timeout:     %s\n", cfg.Execution.FillTimeout)
	output.Printf("  Poll Interval:    %s\n", cfg.Execution.PollInterval)
	output.Printf("  Ladder Rungs:     %d\n", len(cfg.Execution.Ladder))
	output.Println()

	output.Bold("Schedule")
	output.Printf("  Scans:            %v\n", cfg.Schedule.ScanTimes)
	output.Printf("  EOD:              %s\n", cfg.Schedule.EODTime)
	output.Printf("  Monitor Every:    %s\n", cfg.Schedule.MonitorInterval)
	output.Println()

	output.Bold("Storage")
	output.Printf("  Ledger:           %s\n", cfg.Storage.LedgerPath)
	output.Printf("  KV Backend:       %s\n", cfg.Storage.KVBackend)
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Enabled:          %v\n", cfg.Notifications.Enabled)
	output.Printf("  Level:            %s\n", cfg.Notifications.Level)
	output.Printf("  Terminal:         %v\n", cfg.Notifications.Terminal)
	output.Printf("  Webhook:          %v\n", cfg.Notifications.Webhook.Enabled)
	output.Printf("  Kafka:            %v\n", cfg.Notifications.Kafka.Enabled)
	output.Println()

	output.Bold("Agents")
	output.Printf("  Enabled:          %v\n", cfg.Agents.Enabled)
	output.Printf("  Model:            %s\n", cfg.Agents.Model)
	output.Println()

	output.Bold("Server")
	output.Printf("  Address:          %s\n", cfg.Server.Addr)
	output.Printf("  Signed Requests:  %v\n", cfg.Server.Secret != "")
}
