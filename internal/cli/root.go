// Package cli provides the command-line interface for the backtester.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"options-backtester/internal/config"
	"options-backtester/internal/logging"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-09-01"
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "backtest",
		Short: "Intraday index options strategy backtester",
		Long: `Backtest runs multi-leg index options strategies minute by minute
over historical data.

Strategies are defined as per-leg parameter files. Market data is pulled
from ClickHouse and cached locally in SQLite month partitions, so repeat
runs over the same period stay off the network.

Use 'backtest help <command>' for more information about a command.
Use 'backtest examples' to see common workflows.`,
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
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/options-backtester)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newDataCmd(app))
	rootCmd.AddCommand(newLegsCmd(app))
	addHelpCommands(rootCmd, app)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Options Backtester v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
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
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
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
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Engine Configuration")
	output.Printf("  Index:           %s\n", cfg.Engine.Index)
	output.Printf("  Strike Base:     %.0f\n", cfg.Engine.StrikeBase)
	output.Printf("  Entry Time:      %s\n", cfg.Engine.EntryTime)
	output.Printf("  Exit Time:       %s\n", cfg.Engine.ExitTime)
	output.Printf("  Lot Multiplier:  %d\n", cfg.Engine.LotMultiplier)
	output.Printf("  Stop Check On:   %s\n", cfg.Engine.StopCheckOn)
	output.Printf("  Target Check On: %s\n", cfg.Engine.TargetCheckOn)
	if cfg.Engine.DayLossBreaker > 0 {
		output.Printf("  Day Loss Breaker: %s\n", FormatIndianCurrency(cfg.Engine.DayLossBreaker))
	}
	output.Println()

	output.Bold("Data Configuration")
	output.Printf("  Options Table:   %s\n", cfg.Data.OptionsTable)
	output.Printf("  Spot Table:      %s\n", cfg.Data.SpotTable)
	output.Printf("  VIX Ticker:      %s\n", cfg.Data.VIXTicker)
	output.Printf("  Cache Dir:       %s\n", cfg.Data.CacheDir)
	output.Printf("  Cache Enabled:   %v\n", cfg.Data.CacheEnabled)
	output.Println()

	output.Bold("Output Configuration")
	output.Printf("  Results Dir:     %s\n", cfg.Output.ResultsDir)
	output.Printf("  Legs Dir:        %s\n", cfg.Output.LegsDir)

	return nil
}
