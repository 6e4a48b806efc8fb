package main

import (
	"github.com/fhirstore/zunder/internal/index"
	"github.com/fhirstore/zunder/pkg/logger"
	"github.com/spf13/cobra"
)

// newReindexCmd re-enqueues every current resource version onto the same
// index_jobs queue a live write enqueues into (spec §5's worker-drains-
// a-queue design), rather than indexing synchronously here, so a
// running `worker`/`serve` process picks the backlog up the same way it
// would pick up ordinary writes.
func newReindexCmd() *cobra.Command {
	var resourceType string

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "re-enqueue index jobs for every current resource version",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps()
			if err != nil {
				return err
			}
			defer d.db.Close()

			type row struct {
				ResourceType string `db:"resource_type"`
				ID           string `db:"id"`
				VersionID    int64  `db:"version_id"`
			}
			var rows []row
			query := `SELECT resource_type, id, version_id FROM resources WHERE is_current = true AND deleted = false`
			args2 := []any{}
			if resourceType != "" {
				query += ` AND resource_type = $1`
				args2 = append(args2, resourceType)
			}
			if err := d.db.Conn.Select(&rows, query, args2...); err != nil {
				return err
			}

			tx, err := d.db.Conn.Beginx()
			if err != nil {
				return err
			}
			for _, r := range rows {
				if err := index.EnqueueJob(tx, r.ResourceType, r.ID, r.VersionID); err != nil {
					_ = tx.Rollback()
					return err
				}
			}
			if err := tx.Commit(); err != nil {
				return err
			}

			logger.WithFields(logger.Fields{"count": len(rows)}).Info("reindex jobs enqueued")
			return nil
		},
	}
	cmd.Flags().StringVar(&resourceType, "type", "", "limit reindexing to a single resource type")
	return cmd
}
