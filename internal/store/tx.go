package store

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// TxContext is the narrow view of a database transaction that the bundle
// processor (C7) and the indexer (C4) drive. Keeping it as an interface
// rather than handing out *sqlx.Tx directly lets tests substitute an
// in-memory fake without a live Postgres connection.
type TxContext interface {
	CreateResource(r *ResourceRow) error
	UpdateResource(r *ResourceRow) error
	DeleteResource(resourceType, id string, versionID int64) error
	ReadCurrent(resourceType, id string) (*ResourceRow, error)
	ReadVersion(resourceType, id string, versionID int64) (*ResourceRow, error)
	NextVersion(resourceType, id string) (int64, error)
	VersionExists(resourceType, id string, versionID int64) (bool, error)
	UpdateCurrentResourceJSON(resourceType, id string, body []byte, contentHash string) error
	SyncVersionCounter(resourceType, id string, atLeast int64) error
	Tx() *sqlx.Tx
}

// ResourceRow is the store's row shape: identical fields to
// fhirmodel.Resource, kept distinct so store-internal queries don't import
// the wire package just to scan rows.
type ResourceRow struct {
	Type             string    `db:"resource_type"`
	ID               string    `db:"id"`
	VersionID        int64     `db:"version_id"`
	IsCurrent        bool      `db:"is_current"`
	Deleted          bool      `db:"deleted"`
	LastUpdated      time.Time `db:"last_updated"`
	CanonicalURL     *string   `db:"canonical_url"`
	CanonicalVersion *string   `db:"canonical_version"`
	Body             []byte    `db:"body"`
	ContentHash      *string   `db:"content_hash"`
}

type txContext struct {
	tx *sqlx.Tx
}

func newTxContext(tx *sqlx.Tx) *txContext {
	return &txContext{tx: tx}
}

func (t *txContext) Tx() *sqlx.Tx { return t.tx }

// NextVersion upserts the per-(type, id) counter row and returns the newly
// allocated version number, per spec §4.6: "a per-(type, id) counter row is
// upserted with next_version = next_version + 1 RETURNING next_version".
func (t *txContext) NextVersion(resourceType, id string) (int64, error) {
	var next int64
	err := t.tx.Get(&next, `
		INSERT INTO resource_versions (resource_type, id, next_version)
		VALUES ($1, $2, 1)
		ON CONFLICT (resource_type, id)
		DO UPDATE SET next_version = resource_versions.next_version + 1
		RETURNING next_version
	`, resourceType, id)
	if err != nil {
		return 0, fmt.Errorf("allocate next version: %w", err)
	}
	return next, nil
}

// CreateResource inserts a new version row and flips is_current, clearing
// the previous current row's flag (if any) in the same statement set.
func (t *txContext) CreateResource(r *ResourceRow) error {
	if _, err := t.tx.Exec(`
		UPDATE resources SET is_current = false
		WHERE resource_type = $1 AND id = $2 AND is_current
	`, r.Type, r.ID); err != nil {
		return fmt.Errorf("clear previous current: %w", err)
	}

	_, err := t.tx.Exec(`
		INSERT INTO resources
			(resource_type, id, version_id, is_current, deleted, last_updated,
			 canonical_url, canonical_version, body, content_hash)
		VALUES ($1, $2, $3, true, false, now(), $4, $5, $6, $7)
	`, r.Type, r.ID, r.VersionID, r.CanonicalURL, r.CanonicalVersion, r.Body, r.ContentHash)
	if err != nil {
		return fmt.Errorf("insert resource version: %w", err)
	}
	return nil
}

// UpdateResource is identical to CreateResource: every write is a new
// version row, update and create differ only in whether a current row
// already existed (the caller checks that before allocating a version).
func (t *txContext) UpdateResource(r *ResourceRow) error {
	return t.CreateResource(r)
}

// DeleteResource writes a tombstone version: is_current, deleted=true,
// empty body. The resource's history is never removed.
func (t *txContext) DeleteResource(resourceType, id string, versionID int64) error {
	if _, err := t.tx.Exec(`
		UPDATE resources SET is_current = false
		WHERE resource_type = $1 AND id = $2 AND is_current
	`, resourceType, id); err != nil {
		return fmt.Errorf("clear previous current: %w", err)
	}

	_, err := t.tx.Exec(`
		INSERT INTO resources
			(resource_type, id, version_id, is_current, deleted, last_updated, body)
		VALUES ($1, $2, $3, true, true, now(), NULL)
	`, resourceType, id, versionID)
	if err != nil {
		return fmt.Errorf("insert tombstone: %w", err)
	}
	return nil
}

func (t *txContext) ReadCurrent(resourceType, id string) (*ResourceRow, error) {
	var row ResourceRow
	err := t.tx.Get(&row, `
		SELECT resource_type, id, version_id, is_current, deleted, last_updated,
		       canonical_url, canonical_version, body, content_hash
		FROM resources
		WHERE resource_type = $1 AND id = $2 AND is_current
	`, resourceType, id)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (t *txContext) ReadVersion(resourceType, id string, versionID int64) (*ResourceRow, error) {
	var row ResourceRow
	err := t.tx.Get(&row, `
		SELECT resource_type, id, version_id, is_current, deleted, last_updated,
		       canonical_url, canonical_version, body, content_hash
		FROM resources
		WHERE resource_type = $1 AND id = $2 AND version_id = $3
	`, resourceType, id, versionID)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// UpdateCurrentResourceJSON rewrites the current version's body in place
// without allocating a new version. The bundle processor (C7) uses this
// to patch placeholder `urn:uuid:` references into concrete `Type/id`
// once every POST entry in a transaction bundle has its logical id
// allocated: the reference rewrite is an implementation detail of
// resolving the bundle's entries, not a client-visible edit, so it must
// not itself bump version_id or re-run as a second history entry.
// Grounded on original_source's db/transaction.rs
// `update_current_resource_json`.
func (t *txContext) UpdateCurrentResourceJSON(resourceType, id string, body []byte, contentHash string) error {
	_, err := t.tx.Exec(`
		UPDATE resources SET body = $3, content_hash = $4
		WHERE resource_type = $1 AND id = $2 AND is_current
	`, resourceType, id, body, contentHash)
	if err != nil {
		return fmt.Errorf("rewrite current resource body: %w", err)
	}
	return nil
}

// SyncVersionCounter advances the per-(type, id) version counter so that
// the next ordinary write allocates a version past atLeast, without
// itself allocating a version. The bundle processor's history-replay
// mode (C7) uses this when importing a version whose number is dictated
// by the bundle being replayed rather than by NextVersion.
func (t *txContext) SyncVersionCounter(resourceType, id string, atLeast int64) error {
	_, err := t.tx.Exec(`
		INSERT INTO resource_versions (resource_type, id, next_version)
		VALUES ($1, $2, $3)
		ON CONFLICT (resource_type, id)
		DO UPDATE SET next_version = GREATEST(resource_versions.next_version, $3)
	`, resourceType, id, atLeast)
	if err != nil {
		return fmt.Errorf("sync version counter: %w", err)
	}
	return nil
}

func (t *txContext) VersionExists(resourceType, id string, versionID int64) (bool, error) {
	var exists bool
	err := t.tx.Get(&exists, `
		SELECT EXISTS(
			SELECT 1 FROM resources
			WHERE resource_type = $1 AND id = $2 AND version_id = $3
		)
	`, resourceType, id, versionID)
	return exists, err
}
