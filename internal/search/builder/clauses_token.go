package builder

import (
	"fmt"
	"strings"

	"github.com/fhirstore/zunder/internal/search/params"
)

// tokenValue is the parsed shape of a `[system]|[code]` token literal,
// ported from original_source's TokenSearchValue enum.
type tokenValue struct {
	kind   tokenValueKind
	system string
	code   string
}

type tokenValueKind int

const (
	tokenAnySystemCode tokenValueKind = iota
	tokenNoSystemCode
	tokenSystemOnly
	tokenSystemCode
)

func parseTokenValue(raw string) tokenValue {
	parts := splitUnescaped(raw, '|')
	switch len(parts) {
	case 1:
		return tokenValue{kind: tokenAnySystemCode, code: unescapeSearchValue(parts[0])}
	case 2:
		left := unescapeSearchValue(parts[0])
		right := unescapeSearchValue(parts[1])
		if left == "" {
			return tokenValue{kind: tokenNoSystemCode, code: right}
		}
		if right == "" {
			return tokenValue{kind: tokenSystemOnly, system: left}
		}
		return tokenValue{kind: tokenSystemCode, system: left, code: right}
	default:
		return tokenValue{kind: tokenAnySystemCode, code: raw}
	}
}

// isCaseSensitiveTokenSystem names coding systems whose codes must be
// compared byte-for-byte rather than folded, UCUM being the one exception
// search parameters commonly index (spec §4.5).
func isCaseSensitiveTokenSystem(system string) bool {
	return system == "http://unitsofmeasure.org"
}

// exactCiMatch matches either the raw value or its precomputed
// case-folded column, falling back to a runtime ILIKE when the
// case-folded column was never populated (legacy rows).
func exactCiMatch(alias, col, colCI, raw string, bindParams *[]BindValue, caseSensitive bool) string {
	rawIdx := pushText(bindParams, raw)
	if caseSensitive {
		return fmt.Sprintf("%s.%s = $%d", alias, col, rawIdx)
	}
	ciIdx := pushText(bindParams, strings.ToLower(raw))
	return fmt.Sprintf("(%s.%s = $%d OR %s.%s = $%d OR (%s.%s = '' AND %s.%s ILIKE $%d))",
		alias, col, rawIdx, alias, colCI, ciIdx, alias, colCI, alias, col, rawIdx)
}

func tokenMatchClause(alias string, ts tokenValue, bindParams *[]BindValue) string {
	switch ts.kind {
	case tokenSystemCode:
		sysIdx := pushText(bindParams, ts.system)
		caseSensitive := isCaseSensitiveTokenSystem(ts.system)
		return fmt.Sprintf("(%s.system = $%d AND %s)", alias, sysIdx,
			exactCiMatch(alias, "code", "code_ci", ts.code, bindParams, caseSensitive))
	case tokenNoSystemCode:
		return fmt.Sprintf("(%s.system IS NULL AND %s)", alias,
			exactCiMatch(alias, "code", "code_ci", ts.code, bindParams, false))
	case tokenSystemOnly:
		sysIdx := pushText(bindParams, ts.system)
		return fmt.Sprintf("(%s.system = $%d)", alias, sysIdx)
	default:
		return exactCiMatch(alias, "code", "code_ci", ts.code, bindParams, false)
	}
}

func escapeLikePattern(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		if c == '\\' || c == '%' || c == '_' {
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// buildTokenClause dispatches on modifier the way original_source's
// build_token_clause does: most modifiers reshape the match predicate
// without changing the EXISTS-subquery-per-clause structure the caller
// wraps this in.
func buildTokenClause(resolved ResolvedParam, bindParams *[]BindValue) string {
	switch resolved.Modifier {
	case params.ModifierText:
		var parts []string
		for _, v := range resolved.Values {
			raw := unescapeSearchValue(v.Raw)
			if strings.TrimSpace(raw) == "" {
				continue
			}
			idx := pushText(bindParams, escapeLikePattern(raw)+"%")
			parts = append(parts, fmt.Sprintf("sp.display ILIKE $%d ESCAPE '\\'", idx))
		}
		return joinOr(parts)

	case params.ModifierCodeText:
		var parts []string
		for _, v := range resolved.Values {
			raw := unescapeSearchValue(v.Raw)
			if strings.TrimSpace(raw) == "" {
				continue
			}
			idx := pushText(bindParams, escapeLikePattern(raw)+"%")
			parts = append(parts, fmt.Sprintf("sp.code ILIKE $%d ESCAPE '\\'", idx))
		}
		return joinOr(parts)

	case params.ModifierTextAdvanced:
		var parts []string
		for _, v := range resolved.Values {
			if v.Raw == "" {
				continue
			}
			idx := pushText(bindParams, v.Raw)
			parts = append(parts, fmt.Sprintf("to_tsvector('simple', sp.display) @@ websearch_to_tsquery('simple', $%d)", idx))
		}
		return joinOr(parts)

	case params.ModifierAbove:
		var parts []string
		for _, v := range resolved.Values {
			idx := pushText(bindParams, v.Raw+"%")
			parts = append(parts, fmt.Sprintf("sp.code LIKE $%d", idx))
		}
		return joinOr(parts)

	case params.ModifierBelow:
		var parts []string
		for _, v := range resolved.Values {
			idx := pushText(bindParams, v.Raw)
			parts = append(parts, fmt.Sprintf("$%d LIKE sp.code || '%%'", idx))
		}
		return joinOr(parts)

	case params.ModifierIn:
		return buildTokenInClause(resolved, bindParams)

	case params.ModifierNotIn, params.ModifierOfType:
		// Handled at the resource-level EXISTS/NOT EXISTS wrappers below
		// (buildTokenNotInClause / buildTokenOfTypeClause), not as an
		// in-subquery value predicate.
		return ""

	case params.ModifierNot:
		var parts []string
		for _, v := range resolved.Values {
			ts := parseTokenValue(v.Raw)
			var clause string
			switch ts.kind {
			case tokenSystemCode:
				sysIdx := pushText(bindParams, ts.system)
				codeIdx := pushText(bindParams, ts.code)
				clause = fmt.Sprintf("NOT (sp.system = $%d AND sp.code = $%d)", sysIdx, codeIdx)
			case tokenNoSystemCode:
				codeIdx := pushText(bindParams, ts.code)
				clause = fmt.Sprintf("NOT (sp.system IS NULL AND sp.code = $%d)", codeIdx)
			case tokenSystemOnly:
				sysIdx := pushText(bindParams, ts.system)
				clause = fmt.Sprintf("sp.system != $%d", sysIdx)
			default:
				codeIdx := pushText(bindParams, ts.code)
				clause = fmt.Sprintf("sp.code != $%d", codeIdx)
			}
			parts = append(parts, clause)
		}
		if len(parts) <= 1 {
			return joinOr(parts)
		}
		// Every supplied value must be excluded (AND logic, not OR).
		return joinAnd(parts)

	default:
		var parts []string
		for _, v := range resolved.Values {
			ts := parseTokenValue(v.Raw)
			parts = append(parts, tokenMatchClause("sp", ts, bindParams))
		}
		return joinOr(parts)
	}
}

// buildTokenNotClause implements the `:not` resource-level set semantics:
// the resource matches if none of its indexed token rows for this
// parameter equal any of the given values.
func buildTokenNotClause(resolved ResolvedParam, bindParams *[]BindValue, resourceAlias string) string {
	paramNameIdx := pushText(bindParams, resolved.Code)
	var parts []string
	for _, v := range resolved.Values {
		ts := parseTokenValue(v.Raw)
		parts = append(parts, tokenMatchClause("st", ts, bindParams))
	}
	if len(parts) == 0 {
		return ""
	}
	return fmt.Sprintf(
		"NOT EXISTS (SELECT 1 FROM search_token st WHERE st.resource_type = %s.resource_type AND st.resource_id = %s.id AND st.version_id = %s.version_id AND st.parameter_name = $%d AND (%s))",
		resourceAlias, resourceAlias, resourceAlias, paramNameIdx, strings.Join(parts, " OR "))
}

// buildTokenOfTypeClause implements `:of-type` for Identifier-typed
// tokens, matching against the separately indexed search_token_identifier
// table that carries the identifier's type system/code alongside value.
func buildTokenOfTypeClause(resolved ResolvedParam, bindParams *[]BindValue, resourceAlias string) string {
	paramNameIdx := pushText(bindParams, resolved.Code)
	var parts []string
	for _, v := range resolved.Values {
		typeSystem, typeCode, value, ok := parseTokenOfTypeValue(v.Raw)
		if !ok || typeSystem == "" {
			continue
		}
		tsIdx := pushText(bindParams, typeSystem)
		typeSystemClause := fmt.Sprintf("si.type_system = $%d", tsIdx)
		typeCodeClause := fmt.Sprintf("si.type_code = $%d", pushText(bindParams, typeCode))
		valueClause := exactCiMatch("si", "value", "value_ci", value, bindParams, false)
		parts = append(parts, fmt.Sprintf("(%s AND %s AND %s)", typeSystemClause, typeCodeClause, valueClause))
	}
	if len(parts) == 0 {
		return ""
	}
	return fmt.Sprintf(
		"EXISTS (SELECT 1 FROM search_token_identifier si WHERE si.resource_type = %s.resource_type AND si.resource_id = %s.id AND si.version_id = %s.version_id AND si.parameter_name = $%d AND (%s))",
		resourceAlias, resourceAlias, resourceAlias, paramNameIdx, strings.Join(parts, " OR "))
}

func parseTokenOfTypeValue(raw string) (typeSystem, typeCode, value string, ok bool) {
	parts := splitUnescaped(raw, '|')
	if len(parts) != 3 {
		return "", "", "", false
	}
	typeSystem = strings.TrimSpace(unescapeSearchValue(parts[0]))
	typeCode = strings.TrimSpace(unescapeSearchValue(parts[1]))
	value = strings.TrimSpace(unescapeSearchValue(parts[2]))
	if typeSystem == "" || typeCode == "" || value == "" {
		return "", "", "", false
	}
	return typeSystem, typeCode, value, true
}

// buildTokenInClause implements `:in`, matching a token against any
// concept cached from a $expand of the given ValueSet(s). An
// un-expanded ValueSet silently matches nothing rather than erroring;
// callers are expected to expand it first.
func buildTokenInClause(resolved ResolvedParam, bindParams *[]BindValue) string {
	filter := buildVsURLFilter(resolved, bindParams)
	if filter == "" {
		return ""
	}
	return fmt.Sprintf(
		"EXISTS (SELECT 1 FROM valueset_expansions ve "+
			"JOIN valueset_expansion_concepts vec ON vec.expansion_id = ve.id "+
			"WHERE %s AND (ve.expires_at IS NULL OR ve.expires_at > NOW()) "+
			"AND vec.system = sp.system AND vec.code = sp.code)", filter)
}

// buildTokenNotInClause implements `:not-in`'s resource-level negation:
// the resource matches only if none of its values for this parameter
// belong to the ValueSet expansion.
func buildTokenNotInClause(resolved ResolvedParam, bindParams *[]BindValue, resourceAlias string) string {
	paramNameIdx := pushText(bindParams, resolved.Code)
	filter := buildVsURLFilter(resolved, bindParams)
	if filter == "" {
		return ""
	}
	return fmt.Sprintf(
		"NOT EXISTS (SELECT 1 FROM search_token sp "+
			"JOIN valueset_expansions ve ON (%s AND (ve.expires_at IS NULL OR ve.expires_at > NOW())) "+
			"JOIN valueset_expansion_concepts vec ON vec.expansion_id = ve.id AND vec.system = sp.system AND vec.code = sp.code "+
			"WHERE sp.resource_type = %s.resource_type AND sp.resource_id = %s.id AND sp.version_id = %s.version_id AND sp.parameter_name = $%d)",
		filter, resourceAlias, resourceAlias, resourceAlias, paramNameIdx)
}

func buildVsURLFilter(resolved ResolvedParam, bindParams *[]BindValue) string {
	var parts []string
	for _, v := range resolved.Values {
		url := strings.TrimSpace(unescapeSearchValue(v.Raw))
		if url == "" {
			continue
		}
		idx := pushText(bindParams, url)
		parts = append(parts, fmt.Sprintf("ve.valueset_url = $%d", idx))
	}
	return joinOr(parts)
}
