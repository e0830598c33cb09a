package cmd

import (
	"fmt"
	"os"

	"silk-catalog/internal/config"
	"silk-catalog/internal/logger"
	"silk-catalog/internal/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "silk-catalog",
	Short: "Product catalog and media manager for the saree storefront",
	Long: `silk-catalog runs the admin API that stages, normalizes and files
product photos and keeps the live, unfilled, trash and draft buckets.

Run "serve" for the HTTP API, or use the maintenance commands directly
against the configured storage.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openDependencies loads configuration and builds the storage layers for
// a maintenance command
func openDependencies(cmd *cobra.Command) (*config.Config, *zap.Logger, *server.Dependencies, error) {
	cfg := config.Load()
	log := logger.NewCLI(verbose)

	deps, err := server.Build(cmd.Context(), cfg, log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return cfg, log, deps, nil
}
