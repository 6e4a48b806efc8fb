package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fhirstore/zunder/internal/worker"
	"github.com/fhirstore/zunder/pkg/logger"
	"github.com/spf13/cobra"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "run only the background indexing worker, without the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps()
			if err != nil {
				return err
			}
			defer d.db.Close()

			ctx, cancel := context.WithCancel(context.Background())
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-quit
				logger.Info("worker shutting down...")
				cancel()
			}()

			indexWorker := worker.NewIndexingWorker(d.db.Conn, d.indexer, worker.DefaultConfig())
			err = indexWorker.Run(ctx)
			if err == context.Canceled {
				return nil
			}
			return err
		},
	}
}
