package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/askcode/internal/indexer"
)

func newIndexCommand() *cobra.Command {
	var (
		excludes []string
		quiet    bool
	)

	cmd := &cobra.Command{
		Use:   "index <root>",
		Short: "Index a codebase and wait for completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.close()

			var reporter indexer.ProgressReporter = indexer.NoOpProgressReporter{}
			if !quiet {
				reporter = newBarReporter()
			}
			app.indexer.SetProgressReporter(reporter)

			app.indexer.Start(args[0], excludes)
			app.indexer.Wait()

			status := app.indexer.Status()
			fmt.Println(status.Message)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&excludes, "exclude", nil, "case-insensitive substring patterns to skip")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress the progress bar")
	return cmd
}
