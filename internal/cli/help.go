package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

// addHelpCommands adds help and documentation commands.
func addHelpCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newCommandsCmd(app))
	rootCmd.AddCommand(newExamplesCmd(app))
	rootCmd.AddCommand(newQuickstartCmd(app))
}

func newCommandsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List all commands by category",
		Long:  "Display all available commands organized by category.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			output.Bold("Options Backtester Commands")
			output.Println()

			categories := []struct {
				name     string
				commands []struct {
					cmd  string
					desc string
				}
			}{
				{
					name: "Backtesting",
					commands: []struct {
						cmd  string
						desc string
					}{
						{"run --legs <dir> --from --to", "Run a backtest over a date range"},
						{"run --dry-run", "Parse and display the strategy only"},
						{"legs --legs <dir>", "Inspect parsed leg definitions"},
					},
				},
				{
					name: "Market Data",
					commands: []struct {
						cmd  string
						desc string
					}{
						{"data prefetch --from --to", "Warm the local month cache"},
						{"data status --from --to", "Show cached months"},
					},
				},
				{
					name: "Configuration",
					commands: []struct {
						cmd  string
						desc string
					}{
						{"config show", "Show current configuration"},
						{"config path", "Show configuration directory"},
						{"config validate", "Validate configuration files"},
					},
				},
				{
					name: "Help",
					commands: []struct {
						cmd  string
						desc string
					}{
						{"help <command>", "Detailed help"},
						{"commands", "List all commands"},
						{"examples", "Common workflows"},
						{"quickstart", "New user guide"},
						{"version", "Version information"},
					},
				},
			}

			for _, cat := range categories {
				output.Bold(cat.name)
				for _, c := range cat.commands {
					output.Printf("  %-32s %s\n", output.Cyan(c.cmd), c.desc)
				}
				output.Println()
			}

			output.Dim("Use 'backtest help <command>' for detailed help on any command")

			return nil
		},
	}
}

func newExamplesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "Show common workflow examples",
		Long:  "Display examples of common backtesting workflows.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			output.Bold("Common Workflow Examples")
			output.Println()

			examples := []struct {
				title    string
				commands []string
			}{
				{
					title: "First Run",
					commands: []string{
						"backtest config validate                    # Check configuration",
						"backtest legs --legs ./strategy             # Inspect the strategy",
						"backtest run --legs ./strategy --from 2024-01-01 --to 2024-01-31",
					},
				},
				{
					title: "Long Backtest with Warm Cache",
					commands: []string{
						"backtest data prefetch --from 2023-01-01 --to 2024-12-31",
						"backtest data status --from 2023-01-01 --to 2024-12-31",
						"backtest run --legs ./strategy --from 2023-01-01 --to 2024-12-31",
					},
				},
				{
					title: "Iterating on a Strategy",
					commands: []string{
						"backtest run --legs ./strategy --from 2024-06-01 --to 2024-06-30 --no-write",
						"backtest run --legs ./strategy --from 2024-06-01 --to 2024-06-30 --max-days 5",
						"backtest run --legs ./strategy --dry-run --from 2024-06-01 --to 2024-06-30",
					},
				},
				{
					title: "Machine Readable Output",
					commands: []string{
						"backtest run --legs ./strategy --from 2024-01-01 --to 2024-03-31 --json",
						"backtest legs --legs ./strategy --json",
					},
				},
			}

			for _, ex := range examples {
				output.Bold(ex.title)
				for _, c := range ex.commands {
					parts := strings.SplitN(c, "#", 2)
					if len(parts) == 2 {
						output.Printf("  %s %s\n", output.Cyan(strings.TrimSpace(parts[0])), output.DimText(strings.TrimSpace(parts[1])))
					} else {
						output.Printf("  %s\n", output.Cyan(c))
					}
				}
				output.Println()
			}

			return nil
		},
	}
}

func newQuickstartCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "quickstart",
		Short: "New user guide",
		Long:  "Step-by-step guide for new users.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			output.Bold("Options Backtester - Quick Start Guide")
			output.Println()

			steps := []struct {
				step  int
				title string
				desc  string
				cmd   string
			}{
				{
					step:  1,
					title: "Configure the Warehouse",
					desc:  "Edit config.toml with your ClickHouse DSN and index settings.",
					cmd:   "backtest config path  # Shows config directory",
				},
				{
					step:  2,
					title: "Validate Configuration",
					desc:  "Make sure times, rates and lot sizes parse.",
					cmd:   "backtest config validate",
				},
				{
					step:  3,
					title: "Write a Strategy",
					desc:  "Create a directory with leg_data/leg_1.csv and friends.",
					cmd:   "backtest legs --legs ./strategy",
				},
				{
					step:  4,
					title: "Warm the Cache",
					desc:  "Pull the months you plan to test into local SQLite.",
					cmd:   "backtest data prefetch --from 2024-01-01 --to 2024-03-31",
				},
				{
					step:  5,
					title: "Run the Backtest",
					desc:  "Simulate every weekday in the range.",
					cmd:   "backtest run --legs ./strategy --from 2024-01-01 --to 2024-03-31",
				},
				{
					step:  6,
					title: "Read the Results",
					desc:  "Trade logs land under the results directory, partitioned by month.",
					cmd:   "ls results/2024/january/",
				},
			}

			for _, s := range steps {
				output.Printf("%s Step %d: %s\n", output.Cyan("→"), s.step, output.BoldText(s.title))
				output.Printf("  %s\n", s.desc)
				output.Printf("  %s\n\n", output.DimText(s.cmd))
			}

			output.Bold("Configuration Files")
			output.Println()
			output.Printf("  %s - Engine, data and charge settings\n", output.Cyan("config.toml"))
			output.Printf("  %s - Lot size history per index\n", output.Cyan("lotsizes.yaml"))
			output.Println()

			output.Bold("Getting Help")
			output.Println()
			output.Printf("  %s - List all commands\n", output.Cyan("backtest commands"))
			output.Printf("  %s - Common workflows\n", output.Cyan("backtest examples"))
			output.Printf("  %s - Help for any command\n", output.Cyan("backtest help <command>"))

			return nil
		},
	}
}
