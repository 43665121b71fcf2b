package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mvp-joe/askcode/internal/indexer"
	"github.com/mvp-joe/askcode/internal/server"
)

func newServeCommand() *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Long: `Starts the HTTP server. With --root, the given tree is indexed at
startup; combined with indexing.watch it is also re-indexed whenever
its files change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.close()

			if root != "" {
				app.indexer.Start(root, nil)

				if app.cfg.Indexing.Watch {
					w, err := indexer.NewWatcher(app.indexer, root, app.logger)
					if err != nil {
						return err
					}
					w.Start(cmd.Context())
					defer w.Stop()
					app.logger.Info("watching for file changes", zap.String("root", root))
				}
			}

			srv := server.New(app.indexer, app.retriever, app.models, app.detector, app.logger)
			return srv.Run(app.cfg.Server.Addr)
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "codebase root to index at startup")
	return cmd
}
