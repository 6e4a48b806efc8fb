package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildParamClause_WrapsInExistsAgainstTypedTable(t *testing.T) {
	var binds []BindValue
	resolved := ResolvedParam{Code: "family", Type: TypeString, Values: []ResolvedValue{{Raw: "Smith"}}}
	clause := BuildParamClause(resolved, "", "r", &binds)
	assert.Contains(t, clause, "FROM search_string sp")
	assert.Contains(t, clause, "sp.parameter_name = $")
	assert.Contains(t, clause, "r.resource_type")
}

func TestBuildParamClause_CompositeSkipsOuterWrapper(t *testing.T) {
	var binds []BindValue
	resolved := ResolvedParam{
		Code: "code-value-quantity", Type: TypeComposite,
		Component: []ComponentSpec{{Code: "code", Type: TypeToken}},
		Values:    []ResolvedValue{{Raw: "http://loinc.org|1"}},
	}
	clause := BuildParamClause(resolved, "", "r", &binds)
	assert.Contains(t, clause, "search_composite sc")
	assert.NotContains(t, clause, "sp.parameter_name")
}

func TestBuildParamClause_EmptyInnerClauseYieldsEmpty(t *testing.T) {
	var binds []BindValue
	resolved := ResolvedParam{Code: "active", Type: TypeString, Values: nil}
	clause := BuildParamClause(resolved, "", "r", &binds)
	assert.Empty(t, clause)
	assert.Empty(t, binds)
}

func TestBuildWhere_JoinsMultipleItemsWithAnd(t *testing.T) {
	items := []ResolvedParam{
		{Code: "family", Type: TypeString, Values: []ResolvedValue{{Raw: "Smith"}}},
		{Code: "gender", Type: TypeToken, Values: []ResolvedValue{{Raw: "female"}}},
	}
	where, binds := BuildWhere(items, "r")
	assert.Contains(t, where, " AND ")
	require.NotEmpty(t, binds)
}

func TestBuildWhere_SkipsItemsThatProduceNoClause(t *testing.T) {
	items := []ResolvedParam{
		{Code: "family", Type: TypeString, Values: nil},
		{Code: "gender", Type: TypeToken, Values: []ResolvedValue{{Raw: "female"}}},
	}
	where, _ := BuildWhere(items, "r")
	assert.NotContains(t, where, " AND ")
	assert.Contains(t, where, "search_token")
}
