package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/fhirstore/zunder/internal/apperr"
	"github.com/jmoiron/sqlx"
)

// ResourceStore is C6's public surface: the operations spec §4.6 names
// (create, upsert, read, vread, delete, hardDelete) plus the transaction
// entry point bundle processing needs to run several of them atomically.
type ResourceStore struct {
	db *DB
}

func NewResourceStore(db *DB) *ResourceStore {
	return &ResourceStore{db: db}
}

// Conn exposes the underlying pool for callers (the bundle processor's
// batch mode, the indexing worker) that need to run independent,
// already-committed-by-the-time-they-run statements outside any single
// ResourceStore transaction.
func (s *ResourceStore) Conn() *sqlx.DB {
	return s.db.Conn
}

func contentHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Create inserts the first version of a new resource. Returns
// apperr.KindVersionConflict if a current row already exists for this id.
func (s *ResourceStore) Create(resourceType, id string, body []byte, canonicalURL, canonicalVersion *string) (*ResourceRow, error) {
	var out *ResourceRow
	err := s.db.Transaction(func(tx *sqlx.Tx) error {
		txc := newTxContext(tx)

		if _, err := txc.ReadCurrent(resourceType, id); err == nil {
			return apperr.Newf(apperr.KindVersionConflict, "resource %s/%s already exists", resourceType, id)
		} else if !errors.Is(err, sql.ErrNoRows) {
			return apperr.Wrap(apperr.KindDatabase, err, "check existing resource")
		}

		version, err := txc.NextVersion(resourceType, id)
		if err != nil {
			return apperr.Wrap(apperr.KindDatabase, err, "allocate version")
		}

		hash := contentHash(body)
		row := &ResourceRow{
			Type: resourceType, ID: id, VersionID: version,
			CanonicalURL: canonicalURL, CanonicalVersion: canonicalVersion,
			Body: body, ContentHash: &hash,
		}
		if err := txc.CreateResource(row); err != nil {
			return apperr.Wrap(apperr.KindDatabase, err, "insert resource")
		}
		out = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Upsert creates the resource if it doesn't exist, otherwise writes a new
// version on top of the current one. expectedVersion, when non-nil, is
// checked against the current version_id before writing (If-Match / ETag
// concurrency control); a mismatch returns apperr.KindVersionConflict.
func (s *ResourceStore) Upsert(resourceType, id string, body []byte, expectedVersion *int64, canonicalURL, canonicalVersion *string) (row *ResourceRow, created bool, err error) {
	err = s.db.Transaction(func(tx *sqlx.Tx) error {
		txc := newTxContext(tx)

		current, readErr := txc.ReadCurrent(resourceType, id)
		if readErr != nil && !errors.Is(readErr, sql.ErrNoRows) {
			return apperr.Wrap(apperr.KindDatabase, readErr, "check existing resource")
		}

		if current == nil || errors.Is(readErr, sql.ErrNoRows) {
			created = true
			if expectedVersion != nil {
				return apperr.New(apperr.KindPreconditionFailed, "resource does not exist")
			}
		} else if expectedVersion != nil && *expectedVersion != current.VersionID {
			return apperr.Newf(apperr.KindVersionConflict,
				"expected version %d, current is %d", *expectedVersion, current.VersionID)
		}

		version, verErr := txc.NextVersion(resourceType, id)
		if verErr != nil {
			return apperr.Wrap(apperr.KindDatabase, verErr, "allocate version")
		}

		hash := contentHash(body)
		newRow := &ResourceRow{
			Type: resourceType, ID: id, VersionID: version,
			CanonicalURL: canonicalURL, CanonicalVersion: canonicalVersion,
			Body: body, ContentHash: &hash,
		}
		if err := txc.UpdateResource(newRow); err != nil {
			return apperr.Wrap(apperr.KindDatabase, err, "write resource")
		}
		row = newRow
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return row, created, nil
}

// Read returns the current version, or apperr.KindDeleted if the current
// row is a tombstone, or apperr.KindNotFound if there is no current row.
func (s *ResourceStore) Read(resourceType, id string) (*ResourceRow, error) {
	var row ResourceRow
	err := s.db.Conn.Get(&row, `
		SELECT resource_type, id, version_id, is_current, deleted, last_updated,
		       canonical_url, canonical_version, body, content_hash
		FROM resources
		WHERE resource_type = $1 AND id = $2 AND is_current
	`, resourceType, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.KindNotFound, "%s/%s not found", resourceType, id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, err, "read current resource")
	}
	if row.Deleted {
		return &row, apperr.Newf(apperr.KindDeleted, "%s/%s is deleted", resourceType, id)
	}
	return &row, nil
}

// VRead returns a specific historical version.
func (s *ResourceStore) VRead(resourceType, id string, versionID int64) (*ResourceRow, error) {
	var row ResourceRow
	err := s.db.Conn.Get(&row, `
		SELECT resource_type, id, version_id, is_current, deleted, last_updated,
		       canonical_url, canonical_version, body, content_hash
		FROM resources
		WHERE resource_type = $1 AND id = $2 AND version_id = $3
	`, resourceType, id, versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.KindNotFound, "%s/%s version %d not found", resourceType, id, versionID)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, err, "read resource version")
	}
	return &row, nil
}

// History returns every version of resourceType/id, most recent first,
// capped at limit (0 means unbounded). Each row, including a tombstone,
// is its own history entry per spec §6's instance-level _history.
func (s *ResourceStore) History(resourceType, id string, limit int) ([]ResourceRow, error) {
	query := `
		SELECT resource_type, id, version_id, is_current, deleted, last_updated,
		       canonical_url, canonical_version, body, content_hash
		FROM resources
		WHERE resource_type = $1 AND id = $2
		ORDER BY version_id DESC
	`
	args := []any{resourceType, id}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	var rows []ResourceRow
	if err := s.db.Conn.Select(&rows, query, args...); err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, err, "read resource history")
	}
	return rows, nil
}

// TypeHistory returns every version row of resourceType across every
// instance, most recent first, for the type-level _history interaction.
func (s *ResourceStore) TypeHistory(resourceType string, limit int) ([]ResourceRow, error) {
	query := `
		SELECT resource_type, id, version_id, is_current, deleted, last_updated,
		       canonical_url, canonical_version, body, content_hash
		FROM resources
		WHERE resource_type = $1
		ORDER BY last_updated DESC
	`
	args := []any{resourceType}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	var rows []ResourceRow
	if err := s.db.Conn.Select(&rows, query, args...); err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, err, "read type history")
	}
	return rows, nil
}

// SystemHistory returns every version row across every resource type,
// most recent first, for the system-level _history interaction.
func (s *ResourceStore) SystemHistory(limit int) ([]ResourceRow, error) {
	query := `
		SELECT resource_type, id, version_id, is_current, deleted, last_updated,
		       canonical_url, canonical_version, body, content_hash
		FROM resources
		ORDER BY last_updated DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	var rows []ResourceRow
	if err := s.db.Conn.Select(&rows, query); err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, err, "read system history")
	}
	return rows, nil
}

// Delete writes a tombstone version. expectedVersion, when non-nil, gates
// the write on a matching current version_id (If-Match on DELETE).
func (s *ResourceStore) Delete(resourceType, id string, expectedVersion *int64) (*ResourceRow, error) {
	var out *ResourceRow
	err := s.db.Transaction(func(tx *sqlx.Tx) error {
		txc := newTxContext(tx)

		current, err := txc.ReadCurrent(resourceType, id)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.Newf(apperr.KindNotFound, "%s/%s not found", resourceType, id)
		}
		if err != nil {
			return apperr.Wrap(apperr.KindDatabase, err, "check existing resource")
		}
		if current.Deleted {
			return nil // idempotent: already deleted, no new tombstone version
		}
		if expectedVersion != nil && *expectedVersion != current.VersionID {
			return apperr.Newf(apperr.KindVersionConflict,
				"expected version %d, current is %d", *expectedVersion, current.VersionID)
		}

		version, err := txc.NextVersion(resourceType, id)
		if err != nil {
			return apperr.Wrap(apperr.KindDatabase, err, "allocate version")
		}
		if err := txc.DeleteResource(resourceType, id, version); err != nil {
			return apperr.Wrap(apperr.KindDatabase, err, "write tombstone")
		}
		out = &ResourceRow{Type: resourceType, ID: id, VersionID: version, Deleted: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HardDelete permanently removes every version row for a resource,
// including its search index entries. Reserved for administrative purge
// operations; ordinary DELETE requests use Delete (tombstone) instead.
func (s *ResourceStore) HardDelete(resourceType, id string) error {
	return s.db.Transaction(func(tx *sqlx.Tx) error {
		tables := []string{
			"search_string", "search_token", "search_token_identifier",
			"search_reference", "search_date", "search_number", "search_quantity",
			"search_uri", "search_composite", "search_text", "search_content",
		}
		for _, table := range tables {
			if _, err := tx.Exec(
				fmt.Sprintf("DELETE FROM %s WHERE resource_type = $1 AND resource_id = $2", table),
				resourceType, id,
			); err != nil {
				return apperr.Wrap(apperr.KindDatabase, err, "purge "+table)
			}
		}
		if _, err := tx.Exec(`DELETE FROM resources WHERE resource_type = $1 AND id = $2`, resourceType, id); err != nil {
			return apperr.Wrap(apperr.KindDatabase, err, "purge resources")
		}
		if _, err := tx.Exec(`DELETE FROM resource_versions WHERE resource_type = $1 AND id = $2`, resourceType, id); err != nil {
			return apperr.Wrap(apperr.KindDatabase, err, "purge version counter")
		}
		return nil
	})
}

// WithTx runs fn inside a transaction and hands it a TxContext, for callers
// (the bundle processor) that need several store operations to share one
// atomic unit of work.
func (s *ResourceStore) WithTx(fn func(TxContext) error) error {
	return s.db.Transaction(func(tx *sqlx.Tx) error {
		return fn(newTxContext(tx))
	})
}
