package builder

import (
	"fmt"

	"github.com/fhirstore/zunder/internal/search/params"
)

// BuildParamClause compiles one resolved search parameter into a single
// EXISTS-subquery clause against its typed search_* table, dispatching on
// declared parameter type the way the Standard does (spec §4.5's "Plan"
// stage). _id and _lastUpdated instead compare the resource row's own id
// and last_updated columns, and token `:not-in`/`:of-type` use their own
// resource-level NOT EXISTS/EXISTS wrappers. typeFilter narrows a
// reference parameter to a single target resource type (e.g.
// `subject:Patient=123`).
func BuildParamClause(resolved ResolvedParam, typeFilter string, resourceAlias string, bindParams *[]BindValue) string {
	switch resolved.Code {
	case "_lastUpdated":
		return buildLastUpdatedClause(resolved, bindParams, resourceAlias)
	case "_id":
		var parts []string
		for _, v := range resolved.Values {
			parts = append(parts, fmt.Sprintf("%s.id = $%d", resourceAlias, pushText(bindParams, v.Raw)))
		}
		return joinOr(parts)
	}
	if resolved.Type == TypeToken && (resolved.Modifier == params.ModifierNotIn || resolved.Modifier == params.ModifierOfType) {
		mark := len(*bindParams)
		var clause string
		if resolved.Modifier == params.ModifierNotIn {
			clause = buildTokenNotInClause(resolved, bindParams, resourceAlias)
		} else {
			clause = buildTokenOfTypeClause(resolved, bindParams, resourceAlias)
		}
		if clause == "" {
			*bindParams = (*bindParams)[:mark] // drop the wrapper's unused parameter-name bind
		}
		return clause
	}
	inner := buildInnerClause(resolved, typeFilter, bindParams)
	if inner == "" {
		return ""
	}
	tableFor := searchTableFor(resolved.Type)
	if tableFor == "" {
		return inner
	}
	paramIdx := pushText(bindParams, resolved.Code)
	return fmt.Sprintf(
		"EXISTS (SELECT 1 FROM %s sp WHERE sp.resource_type = %s.resource_type AND sp.resource_id = %s.id AND sp.version_id = %s.version_id AND sp.parameter_name = $%d AND (%s))",
		tableFor, resourceAlias, resourceAlias, resourceAlias, paramIdx, inner)
}

func buildInnerClause(resolved ResolvedParam, typeFilter string, bindParams *[]BindValue) string {
	switch resolved.Type {
	case TypeString:
		return buildStringClause(resolved, bindParams)
	case TypeToken:
		return buildTokenClause(resolved, bindParams)
	case TypeDate:
		return buildDateClause(resolved, bindParams)
	case TypeNumber:
		return buildNumberClause(resolved, bindParams)
	case TypeQuantity:
		return buildQuantityClause(resolved, bindParams)
	case TypeURI:
		return buildURIClause(resolved, bindParams)
	case TypeReference:
		return buildReferenceClause(resolved, typeFilter, bindParams)
	case TypeComposite:
		return buildCompositeClause(resolved, bindParams)
	}
	return ""
}

func searchTableFor(t ParamType) string {
	switch t {
	case TypeString:
		return "search_string"
	case TypeToken:
		return "search_token"
	case TypeDate:
		return "search_date"
	case TypeNumber:
		return "search_number"
	case TypeQuantity:
		return "search_quantity"
	case TypeURI:
		return "search_uri"
	case TypeReference:
		return "search_reference"
	case TypeComposite:
		return "" // buildCompositeClause emits its own EXISTS wrapper
	}
	return ""
}

// BuildWhere compiles a full set of resolved AND-of-OR search items
// (already modifier-dispatched into ResolvedParams) into a single SQL
// boolean expression plus its bind parameter list, ready to splice into a
// `WHERE` clause alongside the base `is_current`/`deleted`/`resource_type`
// predicates the caller adds.
func BuildWhere(resolvedItems []ResolvedParam, resourceAlias string) (string, []BindValue) {
	var bindParams []BindValue
	var clauses []string
	for _, item := range resolvedItems {
		clause := BuildParamClause(item, "", resourceAlias, &bindParams)
		if clause == "" {
			continue
		}
		clauses = append(clauses, clause)
	}
	return joinAnd(clauses), bindParams
}
