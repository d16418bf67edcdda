package cmd

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/flanksource/commons/logger"
	"github.com/spf13/cobra"

	"github.com/webcomponents/catalog/pkg/analysis"
	"github.com/webcomponents/catalog/pkg/datastore"
	"github.com/webcomponents/catalog/pkg/github"
	"github.com/webcomponents/catalog/pkg/ingest"
	"github.com/webcomponents/catalog/pkg/registry"
	"github.com/webcomponents/catalog/pkg/search"
	"github.com/webcomponents/catalog/pkg/server"
	"github.com/webcomponents/catalog/pkg/task"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the catalog server and task dispatcher",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := datastore.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		index, err := search.NewIndex(store.DB())
		if err != nil {
			return err
		}

		var publisher analysis.Publisher
		if cfg.Analysis.Project != "" {
			pubsubPublisher, err := analysis.NewPubsubPublisher(ctx,
				cfg.Analysis.Project, cfg.Analysis.RequestTopic, cfg.Analysis.ResponseTopic)
			if err != nil {
				return err
			}
			defer pubsubPublisher.Close()
			publisher = pubsubPublisher
		}

		service := ingest.NewService(store,
			github.NewClient(github.WithToken(cfg.Github.Token)),
			registry.NewClient(
				registry.WithBase(cfg.Registry.Base),
				registry.WithUnpkgBase(cfg.Registry.Unpkg)),
			index, publisher)

		srv := server.NewServer(server.Config{Addr: cfg.Listen, Service: service})

		dispatcher := task.NewDispatcher(store, cfg.BaseURL,
			task.WithConcurrency(cfg.Dispatcher.Concurrency),
			task.WithPollInterval(cfg.Dispatcher.PollInterval),
			task.WithBackoff(cfg.Dispatcher.Backoff))

		errs := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errs <- err
			}
		}()
		go dispatcher.Run(ctx)

		select {
		case err := <-errs:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("shutdown: %v", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
