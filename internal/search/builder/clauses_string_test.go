package builder

import (
	"testing"

	"github.com/fhirstore/zunder/internal/search/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildStringClause_DefaultIsNormalizedPrefix(t *testing.T) {
	var binds []BindValue
	resolved := ResolvedParam{Values: []ResolvedValue{{Raw: "Café"}}}
	clause := buildStringClause(resolved, &binds)
	assert.Contains(t, clause, "sp.value_normalized ILIKE")
	require.Len(t, binds, 1)
	assert.Equal(t, "cafe%", *binds[0].Text)
}

func TestBuildStringClause_ExactComparesRawVerbatim(t *testing.T) {
	var binds []BindValue
	resolved := ResolvedParam{Modifier: params.ModifierExact, Values: []ResolvedValue{{Raw: "Smith"}}}
	clause := buildStringClause(resolved, &binds)
	assert.Contains(t, clause, "sp.value =")
	require.Len(t, binds, 1)
	assert.Equal(t, "Smith", *binds[0].Text)
}

func TestBuildStringClause_ContainsWidensToSubstring(t *testing.T) {
	var binds []BindValue
	resolved := ResolvedParam{Modifier: params.ModifierContains, Values: []ResolvedValue{{Raw: "mit"}}}
	clause := buildStringClause(resolved, &binds)
	require.Len(t, binds, 1)
	assert.Equal(t, "%mit%", *binds[0].Text)
}

func TestBuildStringClause_EmptyNormalizedValueSkipped(t *testing.T) {
	var binds []BindValue
	resolved := ResolvedParam{Values: []ResolvedValue{{Raw: "   "}}}
	clause := buildStringClause(resolved, &binds)
	assert.Empty(t, clause)
	assert.Empty(t, binds)
}

func TestBuildStringClause_MultipleValuesJoinWithOr(t *testing.T) {
	var binds []BindValue
	resolved := ResolvedParam{Values: []ResolvedValue{{Raw: "Smith"}, {Raw: "Jones"}}}
	clause := buildStringClause(resolved, &binds)
	assert.Contains(t, clause, " OR ")
	assert.Len(t, binds, 2)
}

func TestBuildURIClause_DefaultIsExactMatch(t *testing.T) {
	var binds []BindValue
	resolved := ResolvedParam{Values: []ResolvedValue{{Raw: "http://example.org/fhir"}}}
	clause := buildURIClause(resolved, &binds)
	assert.Contains(t, clause, "sp.value =")
	assert.Equal(t, "http://example.org/fhir", *binds[0].Text)
}

func TestBuildURIClause_AboveMatchesAncestorURI(t *testing.T) {
	var binds []BindValue
	resolved := ResolvedParam{Modifier: params.ModifierAbove, Values: []ResolvedValue{{Raw: "http://example.org/fhir/ValueSet/x"}}}
	clause := buildURIClause(resolved, &binds)
	assert.Contains(t, clause, "LIKE sp.value")
}

func TestBuildURIClause_BelowMatchesDescendantURI(t *testing.T) {
	var binds []BindValue
	resolved := ResolvedParam{Modifier: params.ModifierBelow, Values: []ResolvedValue{{Raw: "http://example.org/fhir"}}}
	clause := buildURIClause(resolved, &binds)
	assert.Equal(t, "http://example.org/fhir%", *binds[0].Text)
}
