package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCompositeClause_AllComponentsMustMatchSameRow(t *testing.T) {
	var binds []BindValue
	resolved := ResolvedParam{
		Component: []ComponentSpec{{Code: "code", Type: TypeToken}, {Code: "value-quantity", Type: TypeQuantity}},
		Values:    []ResolvedValue{{Raw: "http://loinc.org|1234-5$5.4|http://unitsofmeasure.org|mg"}},
	}
	clause := buildCompositeClause(resolved, &binds)
	require.NotEmpty(t, clause)
	assert.Contains(t, clause, "EXISTS (SELECT 1 FROM search_composite sc")
	assert.Contains(t, clause, "components->0->>'system'")
	assert.Contains(t, clause, "components->1->>'value'")
}

func TestBuildCompositeClause_MismatchedComponentCountSkipped(t *testing.T) {
	var binds []BindValue
	resolved := ResolvedParam{
		Component: []ComponentSpec{{Code: "code", Type: TypeToken}, {Code: "value", Type: TypeQuantity}},
		Values:    []ResolvedValue{{Raw: "only-one-part"}},
	}
	clause := buildCompositeClause(resolved, &binds)
	assert.Empty(t, clause)
}

func TestBuildCompositeComponentClause_TokenSystemCode(t *testing.T) {
	var binds []BindValue
	clause, ok := buildCompositeComponentClause(0, TypeToken, "http://loinc.org|1234-5", &binds)
	require.True(t, ok)
	assert.Contains(t, clause, "components->0->>'system'")
	assert.Contains(t, clause, "components->0->>'code'")
}

func TestBuildCompositeComponentClause_DefaultReadsValueField(t *testing.T) {
	var binds []BindValue
	clause, ok := buildCompositeComponentClause(2, TypeString, "Smith", &binds)
	require.True(t, ok)
	assert.Equal(t, "sc.components->2->>'value' = $1", clause)
}

func TestBuildNumberJSONClause_InvalidLiteralEmpty(t *testing.T) {
	var binds []BindValue
	clause := buildNumberJSONClause(0, "garbage", &binds)
	assert.Empty(t, clause)
}

func TestBuildQuantityJSONClause_IncludesCodeAndSystemWhenPresent(t *testing.T) {
	var binds []BindValue
	clause := buildQuantityJSONClause(1, "5.4|http://unitsofmeasure.org|mg", &binds)
	assert.Contains(t, clause, "components->1->>'code'")
	assert.Contains(t, clause, "components->1->>'system'")
}
