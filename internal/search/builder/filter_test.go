package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterAtom_StandardParamDelegatesToBuildParamClause(t *testing.T) {
	var binds []BindValue
	atom := FilterAtom{Kind: FilterAtomKind{Standard: &ResolvedParam{
		Code: "family", Type: TypeString, Values: []ResolvedValue{{Raw: "Smith"}},
	}}}
	sql := atom.buildSQL(&binds, "r")
	assert.Contains(t, sql, "search_string sp")
}

func TestFilterAtom_EmptyStandardClauseBecomesFalse(t *testing.T) {
	var binds []BindValue
	atom := FilterAtom{Kind: FilterAtomKind{Standard: &ResolvedParam{Code: "family", Type: TypeString}}}
	sql := atom.buildSQL(&binds, "r")
	assert.Equal(t, "FALSE", sql)
}

func TestFilterAnd_CombinesWithAnd(t *testing.T) {
	var binds []BindValue
	a := FilterAtom{Kind: FilterAtomKind{Standard: &ResolvedParam{Code: "a", Type: TypeString, Values: []ResolvedValue{{Raw: "x"}}}}}
	b := FilterAtom{Kind: FilterAtomKind{Standard: &ResolvedParam{Code: "b", Type: TypeString, Values: []ResolvedValue{{Raw: "y"}}}}}
	sql := FilterAnd{A: a, B: b}.buildSQL(&binds, "r")
	assert.Contains(t, sql, " AND ")
}

func TestFilterNot_WrapsInNot(t *testing.T) {
	var binds []BindValue
	a := FilterAtom{Kind: FilterAtomKind{Standard: &ResolvedParam{Code: "a", Type: TypeString, Values: []ResolvedValue{{Raw: "x"}}}}}
	sql := FilterNot{Inner: a}.buildSQL(&binds, "r")
	assert.Contains(t, sql, "NOT (")
}

func TestBuildStringEqClause_NormalizesAndFallsBackToRaw(t *testing.T) {
	var binds []BindValue
	sql := buildStringEqClause("family", "Café", &binds, "r")
	assert.Contains(t, sql, "value_normalized = $")
	assert.Contains(t, sql, "lower(sp.value) = lower($")
}

func TestBuildStringEqClause_EmptyValueIsFalse(t *testing.T) {
	var binds []BindValue
	assert.Equal(t, "FALSE", buildStringEqClause("family", "   ", &binds, "r"))
}

func TestBuildStringEndsWithClause_EscapesLikePattern(t *testing.T) {
	var binds []BindValue
	sql := buildStringEndsWithClause("family", "50%", &binds, "r")
	assert.Contains(t, sql, "ILIKE $")
	require.Len(t, binds, 2)
	assert.Equal(t, `%50\%`, *binds[1].Text)
}

func TestBuildDateOverlapsClause_InvalidDateIsFalse(t *testing.T) {
	var binds []BindValue
	assert.Equal(t, "FALSE", buildDateOverlapsClause("effective", "not-a-date", &binds, "r"))
}

func TestSanitizeAlias_ReplacesNonAlphanumeric(t *testing.T) {
	assert.Equal(t, "subject_name", sanitizeAlias("subject.name"))
}

func TestBuildChainSQL_EmptyChainDispatchesToAtom(t *testing.T) {
	var binds []BindValue
	kind := FilterAtomKind{Standard: &ResolvedParam{Code: "a", Type: TypeString, Values: []ResolvedValue{{Raw: "x"}}}}
	sql := buildChainSQL(nil, kind, &binds, "r")
	assert.Contains(t, sql, "search_string sp")
}

func TestBuildChainSQL_OneHopWrapsInExistsOnSearchReference(t *testing.T) {
	var binds []BindValue
	kind := FilterAtomKind{Standard: &ResolvedParam{Code: "name", Type: TypeString, Values: []ResolvedValue{{Raw: "Smith"}}}}
	chain := []FilterChainStep{{ReferenceParam: "subject", TargetTypes: []string{"Patient"}}}
	sql := buildChainSQL(chain, kind, &binds, "r")
	assert.Contains(t, sql, "search_reference")
	assert.Contains(t, sql, "= ANY($")
}
