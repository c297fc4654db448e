package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"options-backtester/internal/cli"
	"options-backtester/internal/config"
	"options-backtester/internal/logging"
)

func main() {
	configDir := config.DefaultConfigDir()
	// --config has to be resolved before cobra parses flags because the
	// command tree is built from the loaded configuration.
	for i, arg := range os.Args[1:] {
		if arg == "--config" && i+2 < len(os.Args) {
			configDir = os.Args[i+2]
		}
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := cli.NewRootCmd(cfg, logger)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
