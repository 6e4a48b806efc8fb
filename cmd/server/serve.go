package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fhirstore/zunder/internal/api"
	"github.com/fhirstore/zunder/internal/worker"
	"github.com/fhirstore/zunder/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API and the background indexing worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

// runServe wires the full process: HTTP router, runtime config
// LISTEN/NOTIFY subscriber, and the indexing worker, then blocks for
// SIGINT/SIGTERM the same way the teacher's cmd/api/main.go does.
func runServe() error {
	d, err := buildDeps()
	if err != nil {
		logger.Fatalf("failed to build server dependencies: %v", err)
	}
	defer d.db.Close()

	if d.cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	stopSubscribe := make(chan struct{})
	if err := d.rtService.Subscribe(d.cfg.Database.DSN(), stopSubscribe); err != nil {
		logger.WithFields(logger.Fields{"error": err}).Warn("runtime config subscriber failed to start, overrides will only refresh on restart")
	}
	defer close(stopSubscribe)

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	indexWorker := worker.NewIndexingWorker(d.db.Conn, d.indexer, worker.DefaultConfig())
	go func() {
		if err := indexWorker.Run(workerCtx); err != nil && err != context.Canceled {
			logger.WithFields(logger.Fields{"error": err}).Error("indexing worker exited")
		}
	}()
	defer cancelWorker()

	router := api.NewRouter(&api.Server{
		Store:         d.resources,
		Engine:        d.engine,
		Bundle:        d.processor,
		Hooks:         d.dispatcher,
		Config:        d.rtConfig,
		Conformance:   d.conform,
		BasePath:      d.cfg.Server.BasePath,
		FhirVersion:   d.cfg.Fhir.Version,
		StaticBaseURL: "http://localhost:" + d.cfg.Server.Port + d.cfg.Server.BasePath,
	})

	server := &http.Server{
		Addr:         ":" + d.cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  d.cfg.Server.ReadTimeout,
		WriteTimeout: d.cfg.Server.WriteTimeout,
		IdleTimeout:  d.cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Infof("server started on port %s", d.cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	cancelWorker()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatalf("server forced to shutdown: %v", err)
	}

	logger.Info("server exited")
	return nil
}
