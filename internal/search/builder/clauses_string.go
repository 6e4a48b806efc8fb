package builder

import (
	"fmt"

	"github.com/fhirstore/zunder/internal/search/params"
)

// buildStringClause implements the `string` search type: default
// matching is a normalized (accent/case-folded) prefix match,
// `:exact` compares the raw value verbatim, and `:contains` widens the
// prefix match to a substring match (spec §4.5).
func buildStringClause(resolved ResolvedParam, bindParams *[]BindValue) string {
	var parts []string
	for _, v := range resolved.Values {
		switch resolved.Modifier {
		case params.ModifierExact:
			idx := pushText(bindParams, v.Raw)
			parts = append(parts, fmt.Sprintf("sp.value = $%d", idx))
		case params.ModifierContains:
			normalized := NormalizeStringForSearch(v.Raw)
			if normalized == "" {
				continue
			}
			idx := pushText(bindParams, "%"+escapeLikePattern(normalized)+"%")
			parts = append(parts, fmt.Sprintf("sp.value_normalized ILIKE $%d ESCAPE '\\'", idx))
		default:
			normalized := NormalizeStringForSearch(v.Raw)
			if normalized == "" {
				continue
			}
			idx := pushText(bindParams, escapeLikePattern(normalized)+"%")
			parts = append(parts, fmt.Sprintf("sp.value_normalized ILIKE $%d ESCAPE '\\'", idx))
		}
	}
	return joinOr(parts)
}

// buildURIClause implements the `uri`/`reference`-as-literal-string
// search type with no normalization (spec §4.5): a byte-for-byte match by
// default, `:above` matching stored URIs that are a prefix of the value,
// and `:below` matching stored URIs that start with the value.
func buildURIClause(resolved ResolvedParam, bindParams *[]BindValue) string {
	var parts []string
	for _, v := range resolved.Values {
		switch resolved.Modifier {
		case params.ModifierAbove:
			idx := pushText(bindParams, v.Raw)
			parts = append(parts, fmt.Sprintf("$%d LIKE sp.value || '%%'", idx))
		case params.ModifierBelow:
			idx := pushText(bindParams, v.Raw+"%")
			parts = append(parts, fmt.Sprintf("sp.value LIKE $%d", idx))
		default:
			idx := pushText(bindParams, v.Raw)
			parts = append(parts, fmt.Sprintf("sp.value = $%d", idx))
		}
	}
	return joinOr(parts)
}
