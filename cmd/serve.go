package cmd

import (
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and sync scheduler",
		RunE: func(_ *cobra.Command, _ []string) error {
			app, log, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()
			defer func() { _ = log.Sync() }()

			return app.Serve()
		},
	}
}
