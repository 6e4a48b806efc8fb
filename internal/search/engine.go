// Package search wires C5's three stages (params.Parse, lookup.Cache,
// builder.BuildWhere) into a single callable that runs against the
// resource store and returns matching logical ids. The three
// subpackages intentionally stop short of touching a database
// connection (spec §4.5 frames them as "Parse"/"Resolve"/"Plan"); this
// file is the "Execute" step every caller — the HTTP search handler and
// C7's conditional create/update/delete/reference resolution — actually
// needs, grounded on the overall search pipeline original_source wires
// up in its own handlers around `SearchEngine`.
package search

import (
	"fmt"

	"github.com/fhirstore/zunder/internal/apperr"
	"github.com/fhirstore/zunder/internal/search/builder"
	"github.com/fhirstore/zunder/internal/search/lookup"
	"github.com/fhirstore/zunder/internal/search/params"
	"github.com/jmoiron/sqlx"
)

// Engine executes parsed search queries against the resource table plus
// its typed search_* side tables.
type Engine struct {
	db   *sqlx.DB
	defs *lookup.Cache
}

func NewEngine(db *sqlx.DB, defs *lookup.Cache) *Engine {
	return &Engine{db: db, defs: defs}
}

// Resolve turns a parsed query's filtering items into builder.ResolvedParam
// values by looking up each item's SearchParameterDefinition. An item
// naming a code with no active definition for resourceType is reported
// back to the caller via apperr.KindInvalidResource (FHIR servers return
// 400 for an unknown search parameter, spec §7).
func (e *Engine) Resolve(resourceType string, items []params.SearchItem) ([]builder.ResolvedParam, error) {
	resolved := make([]builder.ResolvedParam, 0, len(items))
	for _, item := range items {
		if special, ok := specialParamType(item.ParamName); ok {
			resolved = append(resolved, resolvedFromItem(item, item.ParamName, special, nil))
			continue
		}

		def, ok, err := e.defs.Resolve(resourceType, item.ParamName)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindDatabase, err, "resolve search parameter definition")
		}
		if !ok {
			return nil, apperr.Newf(apperr.KindInvalidResource, "unknown search parameter %q for %s", item.ParamName, resourceType)
		}

		var components []builder.ComponentSpec
		if def.Type == "composite" {
			for _, c := range def.Components {
				components = append(components, builder.ComponentSpec{Code: c.Definition, Type: builder.ParamType(c.Expression)})
			}
		}
		resolved = append(resolved, resolvedFromItem(item, def.Code, builder.ParamType(def.Type), components))
	}
	return resolved, nil
}

func resolvedFromItem(item params.SearchItem, code string, t builder.ParamType, components []builder.ComponentSpec) builder.ResolvedParam {
	var values []builder.ResolvedValue
	for _, orGroup := range item.Values {
		for _, v := range orGroup {
			values = append(values, builder.ResolvedValue{Prefix: v.Prefix, Raw: v.Raw})
		}
	}
	return builder.ResolvedParam{Code: code, Type: t, Modifier: item.Modifier, Values: values, Component: components}
}

// specialParamType recognizes the handful of `_`-prefixed parameters
// that aren't backed by a SearchParameter resource at all (_id maps
// straight onto the resources table's primary key, _lastUpdated onto
// its timestamp column); everything else (_sort, _count, _include, ...)
// is a ResultParameters concern handled by params.Parse already, never
// reaching here as a filtering item.
func specialParamType(code string) (builder.ParamType, bool) {
	switch code {
	case "_id":
		return builder.TypeToken, true
	case "_lastUpdated":
		return builder.TypeDate, true
	}
	return "", false
}

// queryer is the sliver of *sqlx.DB/*sqlx.Tx this package needs, so
// FindIDs can run against either the connection pool (ordinary search
// requests) or a bundle's single in-flight transaction (conditional
// create/update/delete and conditional-reference resolution, which must
// see that transaction's own uncommitted writes — spec §4.7's
// interdependent-entry ordering depends on this).
type queryer interface {
	Select(dest any, query string, args ...any) error
}

// FindIDs returns every current, non-deleted logical id of resourceType
// matching rawQuery, capped at limit (0 means unbounded), run against
// the connection pool.
func (e *Engine) FindIDs(resourceType, rawQuery string, limit int) ([]string, error) {
	return e.findIDs(e.db, resourceType, rawQuery, limit)
}

// FindIDsTx is FindIDs run inside an existing transaction, used by the
// bundle processor so conditional matching observes the transaction's
// own not-yet-committed writes.
func (e *Engine) FindIDsTx(tx queryer, resourceType, rawQuery string, limit int) ([]string, error) {
	return e.findIDs(tx, resourceType, rawQuery, limit)
}

func (e *Engine) findIDs(q queryer, resourceType, rawQuery string, limit int) ([]string, error) {
	parsed, err := params.Parse(rawQuery)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "parse search query")
	}
	resolved, err := e.Resolve(resourceType, parsed.Items)
	if err != nil {
		return nil, err
	}
	where, bind := builder.BuildWhere(resolved, "r")

	query := `SELECT r.id FROM resources r WHERE r.resource_type = $1 AND r.is_current AND NOT r.deleted`
	args := []any{resourceType}
	if where != "" {
		query += fmt.Sprintf(" AND (%s)", renumber(where, 1))
		args = append(args, builder.Args(bind)...)
	}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	var ids []string
	if err := q.Select(&ids, query, args...); err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, err, "execute search query")
	}
	return ids, nil
}

// Count reports how many resources match rawQuery, capped at 2 so
// conditional-create/update/delete callers can cheaply distinguish
// "zero", "exactly one", and "more than one" without scanning a full
// result set (spec §4.7: conditional logic only ever needs 0/1/many).
func (e *Engine) Count(resourceType, rawQuery string) (int, error) {
	ids, err := e.FindIDs(resourceType, rawQuery, 2)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// CountTx is Count run inside an existing transaction.
func (e *Engine) CountTx(tx queryer, resourceType, rawQuery string) (int, error) {
	ids, err := e.FindIDsTx(tx, resourceType, rawQuery, 2)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// renumber shifts every "$N" placeholder in where (numbered from 1, the
// convention builder.BuildWhere's bind helpers use) up by offset so it
// doesn't collide with placeholders already consumed earlier in the
// surrounding query (here, $1 for resource_type).
func renumber(where string, offset int) string {
	out := make([]byte, 0, len(where)+8)
	for i := 0; i < len(where); i++ {
		if where[i] == '$' && i+1 < len(where) && where[i+1] >= '0' && where[i+1] <= '9' {
			j := i + 1
			n := 0
			for j < len(where) && where[j] >= '0' && where[j] <= '9' {
				n = n*10 + int(where[j]-'0')
				j++
			}
			out = append(out, '$')
			out = append(out, []byte(fmt.Sprintf("%d", n+offset))...)
			i = j - 1
			continue
		}
		out = append(out, where[i])
	}
	return string(out)
}
