package store

import "fmt"

// schemaStatements are applied in order by InitSchema. Grounded on the
// teacher's pkg/database.InitSchema (single CREATE TABLE IF NOT EXISTS per
// concern, executed sequentially against the pool), expanded to the full
// table set spec §3/§6 describes.
var schemaStatements = []string{
	// C6: resources + version counters.
	`CREATE TABLE IF NOT EXISTS resources (
		resource_type   TEXT NOT NULL,
		id              TEXT NOT NULL,
		version_id      BIGINT NOT NULL,
		is_current      BOOLEAN NOT NULL DEFAULT false,
		deleted         BOOLEAN NOT NULL DEFAULT false,
		last_updated    TIMESTAMPTZ NOT NULL DEFAULT now(),
		canonical_url   TEXT,
		canonical_version TEXT,
		body            JSONB,
		content_hash    TEXT,
		PRIMARY KEY (resource_type, id, version_id)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS resources_current_idx
		ON resources (resource_type, id) WHERE is_current`,
	`CREATE INDEX IF NOT EXISTS resources_canonical_idx
		ON resources (canonical_url, canonical_version) WHERE canonical_url IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS resource_versions (
		resource_type TEXT NOT NULL,
		id            TEXT NOT NULL,
		next_version  BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (resource_type, id)
	)`,

	// C4: search row tables, one per value family.
	`CREATE TABLE IF NOT EXISTS search_string (
		resource_type TEXT NOT NULL, resource_id TEXT NOT NULL, version_id BIGINT NOT NULL,
		parameter_name TEXT NOT NULL,
		value TEXT NOT NULL, value_normalized TEXT NOT NULL DEFAULT '',
		content_hash TEXT NOT NULL,
		PRIMARY KEY (resource_type, resource_id, version_id, parameter_name, content_hash)
	)`,
	`CREATE INDEX IF NOT EXISTS search_string_norm_idx ON search_string (parameter_name, value_normalized)`,

	`CREATE TABLE IF NOT EXISTS search_token (
		resource_type TEXT NOT NULL, resource_id TEXT NOT NULL, version_id BIGINT NOT NULL,
		parameter_name TEXT NOT NULL,
		system TEXT, code TEXT, code_ci TEXT NOT NULL DEFAULT '', display TEXT,
		content_hash TEXT NOT NULL,
		PRIMARY KEY (resource_type, resource_id, version_id, parameter_name, content_hash)
	)`,
	`CREATE INDEX IF NOT EXISTS search_token_sc_idx ON search_token (parameter_name, system, code)`,

	`CREATE TABLE IF NOT EXISTS search_token_identifier (
		resource_type TEXT NOT NULL, resource_id TEXT NOT NULL, version_id BIGINT NOT NULL,
		parameter_name TEXT NOT NULL,
		type_system TEXT, type_code TEXT NOT NULL DEFAULT '', value TEXT NOT NULL DEFAULT '',
		value_ci TEXT NOT NULL DEFAULT '',
		content_hash TEXT NOT NULL,
		PRIMARY KEY (resource_type, resource_id, version_id, parameter_name, content_hash)
	)`,

	`CREATE TABLE IF NOT EXISTS search_reference (
		resource_type TEXT NOT NULL, resource_id TEXT NOT NULL, version_id BIGINT NOT NULL,
		parameter_name TEXT NOT NULL,
		kind TEXT NOT NULL,
		target_type TEXT, target_id TEXT, target_version BIGINT,
		target_url TEXT, canonical_url TEXT, canonical_version TEXT,
		content_hash TEXT NOT NULL,
		PRIMARY KEY (resource_type, resource_id, version_id, parameter_name, content_hash)
	)`,
	`CREATE INDEX IF NOT EXISTS search_reference_target_idx ON search_reference (target_type, target_id)`,

	`CREATE TABLE IF NOT EXISTS search_date (
		resource_type TEXT NOT NULL, resource_id TEXT NOT NULL, version_id BIGINT NOT NULL,
		parameter_name TEXT NOT NULL,
		start_date TIMESTAMPTZ NOT NULL, end_date TIMESTAMPTZ NOT NULL,
		content_hash TEXT NOT NULL,
		PRIMARY KEY (resource_type, resource_id, version_id, parameter_name, content_hash),
		CHECK (start_date < end_date)
	)`,
	`CREATE INDEX IF NOT EXISTS search_date_range_idx ON search_date (parameter_name, start_date, end_date)`,

	`CREATE TABLE IF NOT EXISTS search_number (
		resource_type TEXT NOT NULL, resource_id TEXT NOT NULL, version_id BIGINT NOT NULL,
		parameter_name TEXT NOT NULL,
		value NUMERIC NOT NULL,
		content_hash TEXT NOT NULL,
		PRIMARY KEY (resource_type, resource_id, version_id, parameter_name, content_hash)
	)`,

	`CREATE TABLE IF NOT EXISTS search_quantity (
		resource_type TEXT NOT NULL, resource_id TEXT NOT NULL, version_id BIGINT NOT NULL,
		parameter_name TEXT NOT NULL,
		value NUMERIC NOT NULL, system TEXT, code TEXT, unit TEXT,
		content_hash TEXT NOT NULL,
		PRIMARY KEY (resource_type, resource_id, version_id, parameter_name, content_hash)
	)`,

	`CREATE TABLE IF NOT EXISTS search_uri (
		resource_type TEXT NOT NULL, resource_id TEXT NOT NULL, version_id BIGINT NOT NULL,
		parameter_name TEXT NOT NULL,
		value TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		PRIMARY KEY (resource_type, resource_id, version_id, parameter_name, content_hash)
	)`,

	`CREATE TABLE IF NOT EXISTS search_composite (
		resource_type TEXT NOT NULL, resource_id TEXT NOT NULL, version_id BIGINT NOT NULL,
		parameter_name TEXT NOT NULL,
		components JSONB NOT NULL,
		content_hash TEXT NOT NULL,
		PRIMARY KEY (resource_type, resource_id, version_id, parameter_name, content_hash)
	)`,

	`CREATE TABLE IF NOT EXISTS search_membership_in (
		collection_type TEXT NOT NULL, collection_id TEXT NOT NULL,
		member_type TEXT NOT NULL, member_id TEXT NOT NULL,
		member_inactive BOOLEAN NOT NULL DEFAULT false,
		period_start TIMESTAMPTZ, period_end TIMESTAMPTZ,
		PRIMARY KEY (collection_type, collection_id, member_type, member_id)
	)`,

	`CREATE TABLE IF NOT EXISTS search_membership_list (
		list_id TEXT NOT NULL, member_type TEXT NOT NULL, member_id TEXT NOT NULL,
		PRIMARY KEY (list_id, member_type, member_id)
	)`,

	`CREATE TABLE IF NOT EXISTS search_text (
		resource_type TEXT NOT NULL, resource_id TEXT NOT NULL, version_id BIGINT NOT NULL,
		tokens TEXT NOT NULL,
		PRIMARY KEY (resource_type, resource_id, version_id)
	)`,
	`CREATE TABLE IF NOT EXISTS search_content (
		resource_type TEXT NOT NULL, resource_id TEXT NOT NULL, version_id BIGINT NOT NULL,
		tokens TEXT NOT NULL,
		PRIMARY KEY (resource_type, resource_id, version_id)
	)`,

	// C7: transaction/audit tracking (spec §4.7, §6).
	`CREATE TABLE IF NOT EXISTS fhir_transactions (
		id TEXT PRIMARY KEY,
		bundle_type TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ,
		entry_count INT NOT NULL,
		error TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS fhir_transaction_entries (
		transaction_id TEXT NOT NULL REFERENCES fhir_transactions(id),
		entry_index INT NOT NULL,
		method TEXT NOT NULL,
		url TEXT NOT NULL,
		status_code INT,
		resource_type TEXT,
		resource_id TEXT,
		error TEXT,
		PRIMARY KEY (transaction_id, entry_index)
	)`,

	// Package registry (out of core scope; table kept for C3 version pins).
	`CREATE TABLE IF NOT EXISTS fhir_packages (
		name TEXT NOT NULL, version TEXT NOT NULL,
		installed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (name, version)
	)`,
	`CREATE TABLE IF NOT EXISTS resource_packages (
		package_name TEXT NOT NULL, package_version TEXT NOT NULL,
		resource_type TEXT NOT NULL, resource_id TEXT NOT NULL,
		PRIMARY KEY (package_name, package_version, resource_type, resource_id)
	)`,

	// C9: runtime config.
	`CREATE TABLE IF NOT EXISTS runtime_config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS runtime_config_audit (
		id BIGSERIAL PRIMARY KEY,
		key TEXT NOT NULL,
		old_value TEXT,
		new_value TEXT NOT NULL,
		actor TEXT,
		changed_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	// Terminology caches (C8 hook targets; supplemented feature D.3/D of SPEC_FULL).
	`CREATE TABLE IF NOT EXISTS valueset_expansions (
		id BIGSERIAL PRIMARY KEY,
		valueset_url TEXT NOT NULL,
		valueset_version TEXT,
		expires_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS valueset_expansions_url_idx ON valueset_expansions (valueset_url, valueset_version)`,
	`CREATE TABLE IF NOT EXISTS valueset_expansion_concepts (
		expansion_id BIGINT NOT NULL REFERENCES valueset_expansions(id) ON DELETE CASCADE,
		system TEXT NOT NULL, code TEXT NOT NULL, display TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS valueset_expansion_concepts_idx ON valueset_expansion_concepts (expansion_id, system, code)`,

	`CREATE TABLE IF NOT EXISTS terminology_concepts (
		codesystem_url TEXT NOT NULL, codesystem_version TEXT,
		code TEXT NOT NULL, display TEXT, parent_code TEXT,
		PRIMARY KEY (codesystem_url, code)
	)`,
	`CREATE TABLE IF NOT EXISTS conceptmap_groups (
		conceptmap_url TEXT NOT NULL, group_index INT NOT NULL,
		source_system TEXT, target_system TEXT,
		PRIMARY KEY (conceptmap_url, group_index)
	)`,
	`CREATE TABLE IF NOT EXISTS conceptmap_targets (
		conceptmap_url TEXT NOT NULL, group_index INT NOT NULL, element_index INT NOT NULL,
		source_code TEXT NOT NULL, target_code TEXT, equivalence TEXT,
		PRIMARY KEY (conceptmap_url, group_index, element_index)
	)`,

	// Indexing job queue (C4/§5 backpressure).
	`CREATE TABLE IF NOT EXISTS index_jobs (
		id BIGSERIAL PRIMARY KEY,
		resource_type TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		version_id BIGINT NOT NULL,
		enqueued_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		claimed_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		attempts INT NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS index_jobs_unclaimed_idx ON index_jobs (enqueued_at) WHERE completed_at IS NULL`,
}

// InitSchema creates every table the server needs if it doesn't already
// exist. Mirrors the teacher's single-exec InitSchema, generalized to the
// full table list.
func (d *DB) InitSchema() error {
	for i, stmt := range schemaStatements {
		if _, err := d.Conn.Exec(stmt); err != nil {
			return fmt.Errorf("init schema statement %d: %w", i, err)
		}
	}
	return nil
}
