package index

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// rowHash derives a stable content_hash from a row's own field values: two
// rows for the same parameter that carry different values always land on
// distinct primary keys (resource_type, resource_id, version_id,
// parameter_name, content_hash), while a genuinely duplicate extraction
// (the same expression matching twice, or a re-index producing identical
// output) collapses via ON CONFLICT DO NOTHING rather than growing the
// table (spec §4.4).
func rowHash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// WriteExtractedRows persists one resource version's ExtractedRows into
// the search_* tables inside tx. Its caller is the indexing worker
// (internal/worker), which runs it in its own transaction for a job the
// resource write enqueued, so the rows land after the resource write has
// committed. Old versions' rows are left in place — every
// query joins against is_current resources, so only the newest version's
// rows are ever reachable from a search (spec §4.4/§4.6).
func WriteExtractedRows(tx *sqlx.Tx, resourceType, resourceID string, versionID int64, rows *ExtractedRows) error {
	if err := writeStrings(tx, resourceType, resourceID, versionID, rows.Strings); err != nil {
		return err
	}
	if err := writeTokens(tx, resourceType, resourceID, versionID, rows.Tokens); err != nil {
		return err
	}
	if err := writeTokenIdentifiers(tx, resourceType, resourceID, versionID, rows.TokenIDs); err != nil {
		return err
	}
	if err := writeReferences(tx, resourceType, resourceID, versionID, rows.References); err != nil {
		return err
	}
	if err := writeDates(tx, resourceType, resourceID, versionID, rows.Dates); err != nil {
		return err
	}
	if err := writeNumbers(tx, resourceType, resourceID, versionID, rows.Numbers); err != nil {
		return err
	}
	if err := writeQuantities(tx, resourceType, resourceID, versionID, rows.Quantities); err != nil {
		return err
	}
	if err := writeURIs(tx, resourceType, resourceID, versionID, rows.URIs); err != nil {
		return err
	}
	if err := writeComposites(tx, resourceType, resourceID, versionID, rows.Composites); err != nil {
		return err
	}
	return writeTextContent(tx, resourceType, resourceID, versionID, rows.TextTokens, rows.ContentTokens)
}

func writeStrings(tx *sqlx.Tx, rt, rid string, vid int64, rows []StringRow) error {
	if len(rows) == 0 {
		return nil
	}
	params := make([]string, len(rows))
	values := make([]string, len(rows))
	normalized := make([]string, len(rows))
	hashes := make([]string, len(rows))
	for i, r := range rows {
		params[i], values[i], normalized[i] = r.ParamCode, r.Value, r.ValueNormalized
		hashes[i] = rowHash(r.ParamCode, r.Value, r.ValueNormalized)
	}
	_, err := tx.Exec(`
		INSERT INTO search_string (resource_type, resource_id, version_id, parameter_name, value, value_normalized, content_hash)
		SELECT $1, $2, $3, t.p, t.v, t.vn, t.h
		FROM UNNEST($4::text[], $5::text[], $6::text[], $7::text[]) AS t(p, v, vn, h)
		ON CONFLICT (resource_type, resource_id, version_id, parameter_name, content_hash) DO NOTHING
	`, rt, rid, vid, pq.Array(params), pq.Array(values), pq.Array(normalized), pq.Array(hashes))
	if err != nil {
		return fmt.Errorf("insert search_string: %w", err)
	}
	return nil
}

func writeTokens(tx *sqlx.Tx, rt, rid string, vid int64, rows []TokenRow) error {
	if len(rows) == 0 {
		return nil
	}
	params := make([]string, len(rows))
	systems := make([]*string, len(rows))
	codes := make([]string, len(rows))
	displays := make([]string, len(rows))
	hashes := make([]string, len(rows))
	for i, r := range rows {
		params[i], codes[i], displays[i] = r.ParamCode, r.Code, r.Display
		systems[i] = r.System
		sys := ""
		if r.System != nil {
			sys = *r.System
		}
		hashes[i] = rowHash(r.ParamCode, sys, r.Code, r.Display)
	}
	_, err := tx.Exec(`
		INSERT INTO search_token (resource_type, resource_id, version_id, parameter_name, system, code, code_ci, display, content_hash)
		SELECT $1, $2, $3, t.p, t.s, t.c, lower(t.c), t.d, t.h
		FROM UNNEST($4::text[], $5::text[], $6::text[], $7::text[], $8::text[]) AS t(p, s, c, d, h)
		ON CONFLICT (resource_type, resource_id, version_id, parameter_name, content_hash) DO NOTHING
	`, rt, rid, vid, pq.Array(params), pq.Array(systems), pq.Array(codes), pq.Array(displays), pq.Array(hashes))
	if err != nil {
		return fmt.Errorf("insert search_token: %w", err)
	}
	return nil
}

func writeTokenIdentifiers(tx *sqlx.Tx, rt, rid string, vid int64, rows []TokenIdentifierRow) error {
	if len(rows) == 0 {
		return nil
	}
	params := make([]string, len(rows))
	typeSystems := make([]string, len(rows))
	typeCodes := make([]string, len(rows))
	values := make([]string, len(rows))
	hashes := make([]string, len(rows))
	for i, r := range rows {
		params[i], typeSystems[i], typeCodes[i], values[i] = r.ParamCode, r.TypeSystem, r.TypeCode, r.Value
		hashes[i] = rowHash(r.ParamCode, r.TypeSystem, r.TypeCode, r.Value)
	}
	_, err := tx.Exec(`
		INSERT INTO search_token_identifier (resource_type, resource_id, version_id, parameter_name, type_system, type_code, value, value_ci, content_hash)
		SELECT $1, $2, $3, t.p, t.ts, t.tc, t.v, lower(t.v), t.h
		FROM UNNEST($4::text[], $5::text[], $6::text[], $7::text[], $8::text[]) AS t(p, ts, tc, v, h)
		ON CONFLICT (resource_type, resource_id, version_id, parameter_name, content_hash) DO NOTHING
	`, rt, rid, vid, pq.Array(params), pq.Array(typeSystems), pq.Array(typeCodes), pq.Array(values), pq.Array(hashes))
	if err != nil {
		return fmt.Errorf("insert search_token_identifier: %w", err)
	}
	return nil
}

func writeReferences(tx *sqlx.Tx, rt, rid string, vid int64, rows []ReferenceRow) error {
	if len(rows) == 0 {
		return nil
	}
	params := make([]string, len(rows))
	targetTypes := make([]string, len(rows))
	targetIDs := make([]string, len(rows))
	hashes := make([]string, len(rows))
	for i, r := range rows {
		params[i], targetTypes[i], targetIDs[i] = r.ParamCode, r.TargetType, r.TargetID
		hashes[i] = rowHash(r.ParamCode, r.TargetType, r.TargetID)
	}
	_, err := tx.Exec(`
		INSERT INTO search_reference (resource_type, resource_id, version_id, parameter_name, kind, target_type, target_id, content_hash)
		SELECT $1, $2, $3, t.p, 'literal', t.tt, t.ti, t.h
		FROM UNNEST($4::text[], $5::text[], $6::text[], $7::text[]) AS t(p, tt, ti, h)
		ON CONFLICT (resource_type, resource_id, version_id, parameter_name, content_hash) DO NOTHING
	`, rt, rid, vid, pq.Array(params), pq.Array(targetTypes), pq.Array(targetIDs), pq.Array(hashes))
	if err != nil {
		return fmt.Errorf("insert search_reference: %w", err)
	}
	return nil
}

func writeDates(tx *sqlx.Tx, rt, rid string, vid int64, rows []DateRow) error {
	if len(rows) == 0 {
		return nil
	}
	params := make([]string, len(rows))
	starts := make([]string, len(rows))
	ends := make([]string, len(rows))
	hashes := make([]string, len(rows))
	for i, r := range rows {
		params[i], starts[i], ends[i] = r.ParamCode, r.Start, r.End
		hashes[i] = rowHash(r.ParamCode, r.Start, r.End)
	}
	_, err := tx.Exec(`
		INSERT INTO search_date (resource_type, resource_id, version_id, parameter_name, start_date, end_date, content_hash)
		SELECT $1, $2, $3, t.p, t.s::timestamptz, t.e::timestamptz, t.h
		FROM UNNEST($4::text[], $5::text[], $6::text[], $7::text[]) AS t(p, s, e, h)
		ON CONFLICT (resource_type, resource_id, version_id, parameter_name, content_hash) DO NOTHING
	`, rt, rid, vid, pq.Array(params), pq.Array(starts), pq.Array(ends), pq.Array(hashes))
	if err != nil {
		return fmt.Errorf("insert search_date: %w", err)
	}
	return nil
}

func writeNumbers(tx *sqlx.Tx, rt, rid string, vid int64, rows []NumberRow) error {
	if len(rows) == 0 {
		return nil
	}
	params := make([]string, len(rows))
	values := make([]string, len(rows))
	hashes := make([]string, len(rows))
	for i, r := range rows {
		params[i] = r.ParamCode
		values[i] = r.Value.String()
		hashes[i] = rowHash(r.ParamCode, values[i])
	}
	_, err := tx.Exec(`
		INSERT INTO search_number (resource_type, resource_id, version_id, parameter_name, value, content_hash)
		SELECT $1, $2, $3, t.p, t.v::numeric, t.h
		FROM UNNEST($4::text[], $5::text[], $6::text[]) AS t(p, v, h)
		ON CONFLICT (resource_type, resource_id, version_id, parameter_name, content_hash) DO NOTHING
	`, rt, rid, vid, pq.Array(params), pq.Array(values), pq.Array(hashes))
	if err != nil {
		return fmt.Errorf("insert search_number: %w", err)
	}
	return nil
}

func writeQuantities(tx *sqlx.Tx, rt, rid string, vid int64, rows []QuantityRow) error {
	if len(rows) == 0 {
		return nil
	}
	params := make([]string, len(rows))
	values := make([]string, len(rows))
	systems := make([]*string, len(rows))
	codes := make([]*string, len(rows))
	units := make([]*string, len(rows))
	hashes := make([]string, len(rows))
	for i, r := range rows {
		params[i] = r.ParamCode
		values[i] = r.Value.String()
		systems[i], codes[i], units[i] = r.System, r.Code, r.Unit
		sys, code, unit := "", "", ""
		if r.System != nil {
			sys = *r.System
		}
		if r.Code != nil {
			code = *r.Code
		}
		if r.Unit != nil {
			unit = *r.Unit
		}
		hashes[i] = rowHash(r.ParamCode, values[i], sys, code, unit)
	}
	_, err := tx.Exec(`
		INSERT INTO search_quantity (resource_type, resource_id, version_id, parameter_name, value, system, code, unit, content_hash)
		SELECT $1, $2, $3, t.p, t.v::numeric, t.s, t.c, t.u, t.h
		FROM UNNEST($4::text[], $5::text[], $6::text[], $7::text[], $8::text[], $9::text[]) AS t(p, v, s, c, u, h)
		ON CONFLICT (resource_type, resource_id, version_id, parameter_name, content_hash) DO NOTHING
	`, rt, rid, vid, pq.Array(params), pq.Array(values), pq.Array(systems), pq.Array(codes), pq.Array(units), pq.Array(hashes))
	if err != nil {
		return fmt.Errorf("insert search_quantity: %w", err)
	}
	return nil
}

func writeURIs(tx *sqlx.Tx, rt, rid string, vid int64, rows []URIRow) error {
	if len(rows) == 0 {
		return nil
	}
	params := make([]string, len(rows))
	values := make([]string, len(rows))
	hashes := make([]string, len(rows))
	for i, r := range rows {
		params[i], values[i] = r.ParamCode, r.Value
		hashes[i] = rowHash(r.ParamCode, r.Value)
	}
	_, err := tx.Exec(`
		INSERT INTO search_uri (resource_type, resource_id, version_id, parameter_name, value, content_hash)
		SELECT $1, $2, $3, t.p, t.v, t.h
		FROM UNNEST($4::text[], $5::text[], $6::text[]) AS t(p, v, h)
		ON CONFLICT (resource_type, resource_id, version_id, parameter_name, content_hash) DO NOTHING
	`, rt, rid, vid, pq.Array(params), pq.Array(values), pq.Array(hashes))
	if err != nil {
		return fmt.Errorf("insert search_uri: %w", err)
	}
	return nil
}

func writeComposites(tx *sqlx.Tx, rt, rid string, vid int64, rows []CompositeRow) error {
	for _, r := range rows {
		hashParts := make([]string, 0, len(r.Components)+1)
		hashParts = append(hashParts, r.ParamCode)
		for _, c := range r.Components {
			hashParts = append(hashParts, string(c))
		}
		hash := rowHash(hashParts...)
		componentsJSON, err := json.Marshal(r.Components)
		if err != nil {
			return fmt.Errorf("marshal composite components: %w", err)
		}
		_, err = tx.Exec(`
			INSERT INTO search_composite (resource_type, resource_id, version_id, parameter_name, components, content_hash)
			VALUES ($1, $2, $3, $4, $5::jsonb, $6)
			ON CONFLICT (resource_type, resource_id, version_id, parameter_name, content_hash) DO NOTHING
		`, rt, rid, vid, r.ParamCode, componentsJSON, hash)
		if err != nil {
			return fmt.Errorf("insert search_composite: %w", err)
		}
	}
	return nil
}

func writeTextContent(tx *sqlx.Tx, rt, rid string, vid int64, text, content string) error {
	if text != "" {
		if _, err := tx.Exec(`
			INSERT INTO search_text (resource_type, resource_id, version_id, tokens)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (resource_type, resource_id, version_id) DO UPDATE SET tokens = EXCLUDED.tokens
		`, rt, rid, vid, text); err != nil {
			return fmt.Errorf("insert search_text: %w", err)
		}
	}
	if content != "" {
		if _, err := tx.Exec(`
			INSERT INTO search_content (resource_type, resource_id, version_id, tokens)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (resource_type, resource_id, version_id) DO UPDATE SET tokens = EXCLUDED.tokens
		`, rt, rid, vid, content); err != nil {
			return fmt.Errorf("insert search_content: %w", err)
		}
	}
	return nil
}
