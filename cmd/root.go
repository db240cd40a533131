// Package cmd implements the command-line interface for the grant
// ingestor: an HTTP server, one-shot sync runs, duplicate detection, and
// spreadsheet import.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grantpipe/grant-ingestor/internal/bootstrap"
	"github.com/grantpipe/grant-ingestor/internal/logger"
)

const version = "dev"

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "grant-ingestor",
		Short: "Grant ingestion and synchronization service",
		Long: `grant-ingestor pulls grant opportunities from external sources,
normalizes them into a canonical catalog, and keeps the catalog in sync.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yml", "path to configuration file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("grant-ingestor version %s\n", version)
		},
	})

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(dedupeCmd())
	rootCmd.AddCommand(importCmd())
}

// newApp wires the application for one command invocation.
func newApp() (*bootstrap.App, logger.Logger, error) {
	cfg, err := bootstrap.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	log, err := bootstrap.CreateLogger(cfg, version)
	if err != nil {
		return nil, nil, err
	}

	app, err := bootstrap.NewApp(cfg, log)
	if err != nil {
		return nil, nil, err
	}

	return app, log, nil
}
