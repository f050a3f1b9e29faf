// Package cli provides the command-line interface for the trading engine.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"autotrader/internal/config"
	"autotrader/internal/logging"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2024-06-01"
)

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	ConfigDir string
	Logger    zerolog.Logger
}

// NewRootCmd creates the root command for the CLI. cfg may be nil, in which
// case configuration is loaded from --config before any command runs.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "trader",
		Short: "Risk-aware multi-symbol crypto trading engine",
		Long: `trader runs model-driven entries across a portfolio of spot symbols under
layered risk controls: per-trade sizing, per-symbol loss limits, portfolio
governors and a global kill switch.

Modes: paper (simulated fills), shadow (real prices, no orders) and live.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config")
			if app.Config == nil || dir != "" {
				loaded, err := config.Load(dir)
				if err != nil {
					return err
				}
				app.Config = loaded
				app.ConfigDir = dir
				app.Logger = logging.NewLoggerWithConfig(loaded.Logging)
			}

			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/autotrader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newReplayCmd(app))
	rootCmd.AddCommand(newReportCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Needs no configuration.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("trader v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
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
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			dir := app.ConfigDir
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			if output.IsJSON() {
				output.JSON(map[string]string{"path": dir})
			} else {
				output.Println(dir)
			}
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
			output.Success("Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Trading")
	output.Printf("  Mode:             %s\n", cfg.Trading.Mode)
	output.Printf("  Symbols:          %v\n", cfg.Trading.Symbols)
	output.Printf("  Timeframe:        %s (every %s)\n", cfg.Trading.Timeframe, cfg.Trading.LoopInterval)
	output.Printf("  Starting Balance: %.2f\n", cfg.Trading.StartingBalance)
	output.Printf("  Min Balance:      %.2f\n", cfg.Trading.MinBalance)
	output.Printf("  Allow Short:      %v\n", cfg.Trading.AllowShort)
	output.Println()

	output.Bold("Risk")
	output.Printf("  Risk per Trade:   %.2f%%\n", cfg.Risk.RiskPerTrade*100)
	output.Printf("  Max Notional:     %.0f%%\n", cfg.Risk.MaxPositionNotionalPct*100)
	output.Printf("  Stop / Trail:     %.2f%% / %.2f%%\n", cfg.Risk.StopLossPct*100, cfg.Risk.TrailingPct*100)
	output.Printf("  Daily Loss Limit: %.1f%%\n", cfg.Risk.MaxDailyLossPct*100)
	output.Printf("  Loss Streak:      %d\n", cfg.Risk.MaxConsecutiveLosses)
	output.Printf("  Global Max DD:    %.1f%%\n", cfg.Risk.GlobalMaxDrawdownPct*100)
	output.Println()

	output.Bold("Portfolio")
	output.Printf("  Max Active:       %d\n", cfg.Portfolio.MaxActivePositions)
	output.Printf("  Allocation:       %.0f%%\n", cfg.Portfolio.AllocationPct*100)
	output.Printf("  Error Budget:     %d\n", cfg.Portfolio.MaxConsecutiveErrors)
	output.Printf("  Top K:            %d\n", cfg.Portfolio.TopK)
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Enabled:          %v\n", cfg.Notifications.Enabled)
	output.Printf("  Level:            %s\n", cfg.Notifications.Level)
	output.Printf("  Webhook:          %v\n", cfg.Notifications.Webhook.Enabled)
	output.Printf("  Telegram:         %v\n", cfg.Notifications.Telegram.Enabled)

	return nil
}
