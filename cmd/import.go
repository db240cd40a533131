package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.xlsx>",
		Short: "Bulk-import manually curated grants from a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, log, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()
			defer func() { _ = log.Sync() }()

			result, importErr := app.Importer.ImportFile(cmd.Context(), args[0])
			if importErr != nil {
				return importErr
			}

			fmt.Printf("rows=%d created=%d updated=%d skipped=%d rejected=%d\n",
				result.Rows, result.Created, result.Updated, result.Skipped, len(result.Errors))
			for _, rowErr := range result.Errors {
				fmt.Printf("  row %d: %s\n", rowErr.Row, rowErr.Error)
			}
			return nil
		},
	}
}
