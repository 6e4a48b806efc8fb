package builder

import (
	"fmt"
	"strings"
)

// buildCompositeClause implements the `composite` search type: each
// `$`-joined component value must all match within the SAME indexed
// search_composite row (spec §4.5), which the indexer (C4) guarantees by
// writing one row per co-occurring component tuple rather than a
// cross-product of independently matched values.
func buildCompositeClause(resolved ResolvedParam, bindParams *[]BindValue) string {
	var parts []string
	for _, v := range resolved.Values {
		components := strings.Split(v.Raw, "$")
		if len(components) != len(resolved.Component) {
			continue
		}
		var componentClauses []string
		for i, comp := range resolved.Component {
			sub, ok := buildCompositeComponentClause(i, comp.Type, components[i], bindParams)
			if !ok {
				continue
			}
			componentClauses = append(componentClauses, sub)
		}
		if len(componentClauses) == 0 {
			continue
		}
		parts = append(parts, joinAnd(componentClauses))
	}

	if len(parts) == 0 {
		return ""
	}
	return fmt.Sprintf(
		"EXISTS (SELECT 1 FROM search_composite sc WHERE sc.resource_type = sp.resource_type AND sc.resource_id = sp.resource_id AND sc.version_id = sp.version_id AND (%s))",
		joinOr(parts))
}

// buildCompositeComponentClause dispatches each $-joined value against
// the JSONB `components` array column at its fixed position, reusing the
// *_json_clause family each underlying type defines (date/number/
// quantity ported in full below; token/string/reference folded in here
// since the JSONB shape is uniform: {"system","code","value","start",
// "end", ...}).
func buildCompositeComponentClause(idx int, compType ParamType, rawValue string, bindParams *[]BindValue) (string, bool) {
	switch compType {
	case TypeDate:
		clause := buildDateJSONClause(idx, rawValue, bindParams)
		return clause, clause != ""
	case TypeNumber:
		clause := buildNumberJSONClause(idx, rawValue, bindParams)
		return clause, clause != ""
	case TypeQuantity:
		clause := buildQuantityJSONClause(idx, rawValue, bindParams)
		return clause, clause != ""
	case TypeToken:
		ts := parseTokenValue(unescapeSearchValue(rawValue))
		codeExpr := fmt.Sprintf("sc.components->%d->>'code'", idx)
		sysExpr := fmt.Sprintf("sc.components->%d->>'system'", idx)
		switch ts.kind {
		case tokenSystemCode:
			sysIdx := pushText(bindParams, ts.system)
			codeIdx := pushText(bindParams, ts.code)
			return fmt.Sprintf("(%s = $%d AND %s = $%d)", sysExpr, sysIdx, codeExpr, codeIdx), true
		case tokenNoSystemCode:
			codeIdx := pushText(bindParams, ts.code)
			return fmt.Sprintf("(%s IS NULL AND %s = $%d)", sysExpr, codeExpr, codeIdx), true
		case tokenSystemOnly:
			sysIdx := pushText(bindParams, ts.system)
			return fmt.Sprintf("%s = $%d", sysExpr, sysIdx), true
		default:
			codeIdx := pushText(bindParams, ts.code)
			return fmt.Sprintf("%s = $%d", codeExpr, codeIdx), true
		}
	default:
		valueIdx := pushText(bindParams, rawValue)
		return fmt.Sprintf("sc.components->%d->>'value' = $%d", idx, valueIdx), true
	}
}

// buildDateJSONClause / buildNumberJSONClause / buildQuantityJSONClause
// mirror the non-composite comparisons but read from the positional JSONB
// element instead of a dedicated column.
func buildDateJSONClause(idx int, rawValue string, bindParams *[]BindValue) string {
	v := unescapeSearchValue(rawValue)
	prefix, rest := splitPrefix(v)
	start, end, err := fhirDateRange(rest)
	if err != nil {
		return ""
	}
	startExpr := fmt.Sprintf("(sc.components->%d->>'start')::timestamptz", idx)
	endExpr := fmt.Sprintf("(sc.components->%d->>'end')::timestamptz", idx)
	return dateRangeComparison(prefix, start, end, bindParams, startExpr, endExpr)
}

func buildNumberJSONClause(idx int, rawValue string, bindParams *[]BindValue) string {
	v := unescapeSearchValue(rawValue)
	prefix, rest := splitPrefix(v)
	min, max, err := numberPrecisionRange(rest)
	if err != nil {
		return ""
	}
	col := fmt.Sprintf("(sc.components->%d->>'value')::numeric", idx)
	clause, ok := numericComparison(prefix, rest, min, max, bindParams, col)
	if !ok {
		return ""
	}
	return clause
}

func buildQuantityJSONClause(idx int, rawValue string, bindParams *[]BindValue) string {
	v := unescapeSearchValue(rawValue)
	prefix, rest := splitPrefix(v)
	q, err := parseQuantity(rest)
	if err != nil {
		return ""
	}
	min, max, err := numberPrecisionRange(q.number)
	if err != nil {
		return ""
	}
	col := fmt.Sprintf("(sc.components->%d->>'value')::numeric", idx)
	clause, ok := numericComparison(prefix, q.number, min, max, bindParams, col)
	if !ok {
		return ""
	}
	if q.code != nil {
		codeIdx := pushText(bindParams, *q.code)
		clause += fmt.Sprintf(" AND sc.components->%d->>'code' = $%d", idx, codeIdx)
	}
	if q.system != nil {
		sysIdx := pushText(bindParams, *q.system)
		clause += fmt.Sprintf(" AND sc.components->%d->>'system' = $%d", idx, sysIdx)
	}
	return "(" + clause + ")"
}
