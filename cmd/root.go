// Package cmd defines the CLI commands for the munireg executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/regwatch/munireg/internal/app"
)

var cfgFile string

type appKeyType struct{}

var appKey appKeyType

// newApp is the application factory. A variable so tests can replace it.
var newApp = app.New

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "munireg",
		Short: "Keeps the per-country munitions-of-war regulation knowledge base fresh.",
		Long: `munireg maintains a knowledge base of aviation munitions-of-war
regulations per country. It refreshes records in paced batches through a
web-grounded summary generator, watches regulator source pages for changes,
and serves the records over HTTP.`,

		// Build and inject services after config loads, before RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey).(*app.App); ok && a != nil {
				a.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRefreshCmd())
	cmd.AddCommand(newSeedCmd())
	cmd.AddCommand(newCheckSourcesCmd())

	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
