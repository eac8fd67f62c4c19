package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Execute runs the CLI entrypoint, cancelling the root context on SIGINT or
// SIGTERM so the serve loop and any running diagnostic server shut down
// cleanly.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SetContext(ctx)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "secure-dev-manager",
		Short: "Safety-aware process inspection and termination engine",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to an optional TOML configuration file")
	root.SilenceUsage = true
	root.SilenceErrors = true

	root.AddCommand(newServeCmd(&configPath))

	return root
}
