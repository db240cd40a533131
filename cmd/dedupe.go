package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func dedupeCmd() *cobra.Command {
	var sourceKey string

	cmd := &cobra.Command{
		Use:   "dedupe [grant-id]",
		Short: "Detect duplicate grants, for one grant or across the catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, log, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()
			defer func() { _ = log.Sync() }()

			ctx := cmd.Context()

			if len(args) == 1 {
				matches, findErr := app.Finder.FindForGrant(ctx, args[0])
				if findErr != nil {
					return findErr
				}
				for _, m := range matches {
					fmt.Printf("%s -> %s  method=%s score=%.2f\n",
						m.PrimaryGrantID, m.DuplicateGrantID, m.Method, m.Score)
				}
				fmt.Printf("%d match(es)\n", len(matches))
				return nil
			}

			result, runErr := app.Finder.Run(ctx, sourceKey)
			if runErr != nil {
				return runErr
			}
			fmt.Printf("scanned=%d found=%d new=%d\n", result.Scanned, result.Found, result.New)
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceKey, "source", "", "limit the catalog scan to one source")
	return cmd
}
