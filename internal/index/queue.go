package index

import "github.com/jmoiron/sqlx"

// EnqueueJob writes one row to the persistent index_jobs queue inside
// the same transaction as the resource write it indexes, so a job is
// never enqueued for a version that the transaction then rolls back
// (spec §5 backpressure: "the indexer worker reads jobs from a
// persistent queue table with SELECT ... FOR UPDATE SKIP LOCKED").
// Every write path — single-resource create/update/delete in
// internal/api and every phase of internal/bundle's processors — calls
// this after writing a version instead of indexing synchronously.
func EnqueueJob(tx *sqlx.Tx, resourceType, id string, versionID int64) error {
	_, err := tx.Exec(`
		INSERT INTO index_jobs (resource_type, resource_id, version_id)
		VALUES ($1, $2, $3)
	`, resourceType, id, versionID)
	return err
}
