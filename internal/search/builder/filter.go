package builder

import (
	"fmt"
	"strings"
)

// FilterExpr is the parsed `_filter` grammar's boolean tree (spec §4.5),
// ported from original_source's query_builder::filter module: each atom
// wraps either a standard resolved parameter comparison or one of the
// grammar's special forms (eq/ew string comparisons, date overlap), and
// And/Or/Not combine atoms the same way Parse/Resolve/Plan compose
// ordinary search items.
type FilterExpr interface {
	buildSQL(bindParams *[]BindValue, resourceAlias string) string
}

type FilterAtom struct {
	Chain []FilterChainStep
	Kind  FilterAtomKind
}

type FilterChainStep struct {
	ReferenceParam string
	TargetTypes    []string
	Filter         FilterExpr // nil if this is the terminal step
}

type FilterAtomKind struct {
	Standard            *ResolvedParam
	StringEqCode        string
	StringEqValue       string
	StringEndsWithCode  string
	StringEndsWithValue string
	DateOverlapsCode    string
	DateOverlapsValue   string
	LastUpdatedOverlaps *string
}

type FilterAnd struct{ A, B FilterExpr }
type FilterOr struct{ A, B FilterExpr }
type FilterNot struct{ Inner FilterExpr }

func (e FilterAnd) buildSQL(b *[]BindValue, alias string) string {
	return fmt.Sprintf("(%s AND %s)", e.A.buildSQL(b, alias), e.B.buildSQL(b, alias))
}
func (e FilterOr) buildSQL(b *[]BindValue, alias string) string {
	return fmt.Sprintf("(%s OR %s)", e.A.buildSQL(b, alias), e.B.buildSQL(b, alias))
}
func (e FilterNot) buildSQL(b *[]BindValue, alias string) string {
	return fmt.Sprintf("NOT (%s)", e.Inner.buildSQL(b, alias))
}

func (a FilterAtom) buildSQL(bindParams *[]BindValue, resourceAlias string) string {
	return buildChainSQL(a.Chain, a.Kind, bindParams, resourceAlias)
}

func buildChainSQL(chain []FilterChainStep, kind FilterAtomKind, bindParams *[]BindValue, currentAlias string) string {
	if len(chain) == 0 {
		return buildAtomSQL(kind, bindParams, currentAlias)
	}

	step := chain[0]
	alias := fmt.Sprintf("f%d_%s", len(chain), sanitizeAlias(step.ReferenceParam))
	tgtAlias := "t_" + alias

	paramIdx := pushText(bindParams, step.ReferenceParam)
	sql := fmt.Sprintf(
		"EXISTS (SELECT 1 FROM search_reference %s INNER JOIN resources %s ON %s.resource_type = %s.target_type AND %s.id = %s.target_id "+
			"WHERE %s.resource_type = %s.resource_type AND %s.resource_id = %s.id AND %s.version_id = %s.version_id "+
			"AND %s.parameter_name = $%d AND %s.is_current = true AND %s.deleted = false",
		alias, tgtAlias, tgtAlias, alias, tgtAlias, alias,
		alias, currentAlias, alias, currentAlias, alias, currentAlias,
		alias, paramIdx, tgtAlias, tgtAlias)

	if len(step.TargetTypes) > 0 {
		typesIdx := pushTextArray(bindParams, step.TargetTypes)
		sql += fmt.Sprintf(" AND %s.resource_type = ANY($%d)", tgtAlias, typesIdx)
	}
	if step.Filter != nil {
		sql += fmt.Sprintf(" AND (%s)", step.Filter.buildSQL(bindParams, tgtAlias))
	}

	inner := buildChainSQL(chain[1:], kind, bindParams, tgtAlias)
	sql += fmt.Sprintf(" AND (%s))", inner)
	return sql
}

func sanitizeAlias(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, s)
}

func buildAtomSQL(kind FilterAtomKind, bindParams *[]BindValue, resourceAlias string) string {
	switch {
	case kind.Standard != nil:
		sql := BuildParamClause(*kind.Standard, "", resourceAlias, bindParams)
		if sql == "" {
			return "FALSE"
		}
		return sql
	case kind.StringEqCode != "":
		return buildStringEqClause(kind.StringEqCode, kind.StringEqValue, bindParams, resourceAlias)
	case kind.StringEndsWithCode != "":
		return buildStringEndsWithClause(kind.StringEndsWithCode, kind.StringEndsWithValue, bindParams, resourceAlias)
	case kind.DateOverlapsCode != "":
		return buildDateOverlapsClause(kind.DateOverlapsCode, kind.DateOverlapsValue, bindParams, resourceAlias)
	case kind.LastUpdatedOverlaps != nil:
		return buildLastUpdatedOverlapsClause(*kind.LastUpdatedOverlaps, bindParams, resourceAlias)
	}
	return "FALSE"
}

// buildStringEqClause implements the `_filter` grammar's `eq` operator on
// string parameters: an exact, case-insensitive match, normalized the
// same way as default string search when a normalized column exists.
func buildStringEqClause(code, value string, bindParams *[]BindValue, resourceAlias string) string {
	normalized := NormalizeStringForSearch(value)
	if normalized == "" {
		return "FALSE"
	}
	paramIdx := pushText(bindParams, code)
	normIdx := pushText(bindParams, normalized)
	rawIdx := pushText(bindParams, value)
	return fmt.Sprintf(
		"EXISTS (SELECT 1 FROM search_string sp WHERE sp.resource_type = %s.resource_type AND sp.resource_id = %s.id AND sp.version_id = %s.version_id AND sp.parameter_name = $%d AND ((sp.value_normalized <> '' AND sp.value_normalized = $%d) OR (sp.value_normalized = '' AND lower(sp.value) = lower($%d))))",
		resourceAlias, resourceAlias, resourceAlias, paramIdx, normIdx, rawIdx)
}

// buildStringEndsWithClause implements the `_filter` grammar's `ew`
// (ends-with) operator.
func buildStringEndsWithClause(code, value string, bindParams *[]BindValue, resourceAlias string) string {
	if value == "" {
		return "FALSE"
	}
	paramIdx := pushText(bindParams, code)
	patIdx := pushText(bindParams, "%"+escapeLikePattern(value))
	return fmt.Sprintf(
		"EXISTS (SELECT 1 FROM search_string sp WHERE sp.resource_type = %s.resource_type AND sp.resource_id = %s.id AND sp.version_id = %s.version_id AND sp.parameter_name = $%d AND sp.value ILIKE $%d ESCAPE '\\')",
		resourceAlias, resourceAlias, resourceAlias, paramIdx, patIdx)
}

// buildDateOverlapsClause implements the `_filter` grammar's date
// overlap operator against a named date-typed parameter.
func buildDateOverlapsClause(code, value string, bindParams *[]BindValue, resourceAlias string) string {
	start, end, err := fhirDateRange(value)
	if err != nil {
		return "FALSE"
	}
	paramIdx := pushText(bindParams, code)
	clause := dateRangeComparison("eq", start, end, bindParams, "sp.start_date", "sp.end_date")
	return fmt.Sprintf(
		"EXISTS (SELECT 1 FROM search_date sp WHERE sp.resource_type = %s.resource_type AND sp.resource_id = %s.id AND sp.version_id = %s.version_id AND sp.parameter_name = $%d AND %s)",
		resourceAlias, resourceAlias, resourceAlias, paramIdx, clause)
}

func buildLastUpdatedOverlapsClause(value string, bindParams *[]BindValue, resourceAlias string) string {
	start, end, err := fhirDateRange(value)
	if err != nil {
		return "FALSE"
	}
	return dateRangeComparison("eq", start, end, bindParams, resourceAlias+".last_updated", resourceAlias+".last_updated")
}
