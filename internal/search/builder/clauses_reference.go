package builder

import (
	"fmt"
	"strings"
)

// parsedReference is a reference search literal split into its optional
// type prefix and the bare resource id; a base URL before the type is
// dropped.
type parsedReference struct {
	resourceType string // "" if unspecified
	id           string
}

// parseReferenceValue accepts `Patient/123`, an absolute URL ending in
// `Patient/123`, or a bare `123` (matched against the caller's typeFilter
// argument when one is given).
func parseReferenceValue(raw string) parsedReference {
	v := strings.TrimSuffix(raw, "/_history/"+historySuffix(raw))
	if idx := strings.LastIndex(v, "/"); idx >= 0 {
		typePart := v[:idx]
		id := v[idx+1:]
		if slash := strings.LastIndex(typePart, "/"); slash >= 0 {
			typePart = typePart[slash+1:]
		}
		return parsedReference{resourceType: typePart, id: id}
	}
	return parsedReference{id: v}
}

func historySuffix(raw string) string {
	if idx := strings.Index(raw, "/_history/"); idx >= 0 {
		return raw[idx+len("/_history/"):]
	}
	return ""
}

// buildReferenceClause implements the `reference` search type as an
// EXISTS against search_reference, matching resource type when present in
// the literal and folding in an explicit type filter (`subject:Patient=`)
// when the caller supplied one.
func buildReferenceClause(resolved ResolvedParam, typeFilter string, bindParams *[]BindValue) string {
	var parts []string
	for _, v := range resolved.Values {
		ref := parseReferenceValue(v.Raw)
		idIdx := pushText(bindParams, ref.id)
		clause := fmt.Sprintf("sp.target_id = $%d", idIdx)
		effectiveType := ref.resourceType
		if effectiveType == "" {
			effectiveType = typeFilter
		}
		if effectiveType != "" {
			typeIdx := pushText(bindParams, effectiveType)
			clause += fmt.Sprintf(" AND sp.target_type = $%d", typeIdx)
		}
		parts = append(parts, "("+clause+")")
	}
	return joinOr(parts)
}

// buildChainedReferenceExists wraps an inner resource-filter clause (from
// another call into BuildWhere on the target type) in the
// search_reference-joined EXISTS the chained search requires, one level
// per dotted segment (spec §4.5 forward chaining, e.g.
// `subject.name=Smith`).
func buildChainedReferenceExists(refParam string, targetTypes []string, innerSQL string, bindParams *[]BindValue, resourceAlias, alias string) string {
	paramIdx := pushText(bindParams, refParam)
	sql := fmt.Sprintf(
		"EXISTS (SELECT 1 FROM search_reference sr_%s INNER JOIN resources %s ON %s.resource_type = sr_%s.target_type AND %s.id = sr_%s.target_id "+
			"WHERE sr_%s.resource_type = %s.resource_type AND sr_%s.resource_id = %s.id AND sr_%s.version_id = %s.version_id "+
			"AND sr_%s.parameter_name = $%d AND %s.is_current = true AND %s.deleted = false",
		alias, alias, alias, alias, alias, alias,
		alias, resourceAlias, alias, resourceAlias, alias, resourceAlias,
		alias, paramIdx, alias, alias)
	if len(targetTypes) > 0 {
		typesIdx := pushTextArray(bindParams, targetTypes)
		sql += fmt.Sprintf(" AND %s.resource_type = ANY($%d)", alias, typesIdx)
	}
	if innerSQL != "" {
		sql += " AND (" + innerSQL + ")"
	}
	sql += ")"
	return sql
}
