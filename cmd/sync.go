package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grantpipe/grant-ingestor/internal/sync"
)

func syncCmd() *cobra.Command {
	var jobType string

	cmd := &cobra.Command{
		Use:   "sync [source-key]",
		Short: "Run a sync pass, for one source or for all sync-enabled sources",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, log, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()
			defer func() { _ = log.Sync() }()

			ctx := cmd.Context()

			if len(args) == 0 {
				summaries, runErr := app.Runner.RunAll(ctx)
				if runErr != nil {
					return runErr
				}
				for _, s := range summaries {
					line := fmt.Sprintf("%-20s %-10s fetched=%d created=%d updated=%d skipped=%d errors=%d",
						s.SourceKey, s.Status, s.Fetched, s.Created, s.Updated, s.Skipped, s.Errors)
					if s.Error != "" {
						line += "  " + s.Error
					}
					fmt.Println(line)
				}
				return nil
			}

			job, runErr := app.Orchestrator.Run(ctx, args[0], sync.RunOptions{JobType: jobType})
			if runErr != nil {
				return runErr
			}
			fmt.Printf("job %s %s: fetched=%d created=%d updated=%d skipped=%d errors=%d\n",
				job.ID, job.Status, job.GrantsFetched, job.GrantsCreated,
				job.GrantsUpdated, job.GrantsSkipped, len(job.Errors))
			return nil
		},
	}

	cmd.Flags().StringVar(&jobType, "type", "", "job type: full, incremental, or single")
	return cmd
}
