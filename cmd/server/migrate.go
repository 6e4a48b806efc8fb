package main

import (
	"github.com/fhirstore/zunder/internal/config"
	"github.com/fhirstore/zunder/internal/store"
	"github.com/fhirstore/zunder/pkg/logger"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "create every table the server needs, if it doesn't already exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := store.Open(cfg.Database, cfg.Limits.DBMaxOpenConns, cfg.Limits.DBMaxIdleConns)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.InitSchema(); err != nil {
				return err
			}
			logger.Info("schema initialized")
			return nil
		},
	}
}
