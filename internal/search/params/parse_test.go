package params

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_SimpleParamNoModifier(t *testing.T) {
	q, err := Parse("family=Smith")
	require.NoError(t, err)
	require.Len(t, q.Items, 1)
	item := q.Items[0]
	assert.Equal(t, "family", item.ParamName)
	assert.Equal(t, ModifierNone, item.Modifier)
	require.Len(t, item.Values, 1)
	require.Len(t, item.Values[0], 1)
	assert.Equal(t, SearchValue{Prefix: PrefixEq, Raw: "Smith"}, item.Values[0][0])
}

func TestParse_KnownModifierParsed(t *testing.T) {
	q, err := Parse("name:exact=Smith")
	require.NoError(t, err)
	require.Len(t, q.Items, 1)
	assert.Equal(t, "name", q.Items[0].ParamName)
	assert.Equal(t, ModifierExact, q.Items[0].Modifier)
}

func TestParse_UnknownModifierTreatedAsTypeFilter(t *testing.T) {
	q, err := Parse("subject:Patient=123")
	require.NoError(t, err)
	require.Len(t, q.Items, 1)
	assert.Equal(t, "subject", q.Items[0].ParamName)
	assert.Equal(t, ModifierNone, q.Items[0].Modifier)
	assert.Equal(t, "Patient", q.Items[0].TypeFilter)
}

func TestParse_ChainedReferenceParam(t *testing.T) {
	q, err := Parse("subject.name=Smith")
	require.NoError(t, err)
	require.Len(t, q.Items, 1)
	assert.Equal(t, "subject", q.Items[0].ParamName)
	assert.Equal(t, []string{"name"}, q.Items[0].Chain)
}

func TestParse_PrefixedDateValue(t *testing.T) {
	q, err := Parse("date=ge2024-01-01")
	require.NoError(t, err)
	require.Len(t, q.Items, 1)
	assert.Equal(t, PrefixGe, q.Items[0].Values[0][0].Prefix)
	assert.Equal(t, "2024-01-01", q.Items[0].Values[0][0].Raw)
}

func TestParse_CommaSeparatedValuesAreOneOrGroup(t *testing.T) {
	q, err := Parse("code=a,b,c")
	require.NoError(t, err)
	require.Len(t, q.Items[0].Values, 1)
	assert.Len(t, q.Items[0].Values[0], 3)
}

func TestParse_RepeatedParamIsTwoAndGroups(t *testing.T) {
	q, err := Parse("code=a&code=b")
	require.NoError(t, err)
	require.Len(t, q.Items[0].Values, 2)
}

func TestParse_ResultParameters(t *testing.T) {
	q, err := Parse("_sort=-birthdate,name&_count=10&_include=Patient:organization&_summary=count")
	require.NoError(t, err)
	assert.Equal(t, []SortSpec{{Param: "birthdate", Descending: true}, {Param: "name", Descending: false}}, q.Result.Sort)
	require.NotNil(t, q.Result.Count)
	assert.Equal(t, 10, *q.Result.Count)
	require.Len(t, q.Result.Include, 1)
	assert.Equal(t, "Patient", q.Result.Include[0].SourceType)
	assert.Equal(t, "organization", q.Result.Include[0].Param)
	assert.Equal(t, "count", q.Result.Summary)
}

func TestParse_IterateInclude(t *testing.T) {
	q, err := Parse("_include=iterate:Observation:subject:Patient")
	require.NoError(t, err)
	require.Len(t, q.Result.Include, 1)
	spec := q.Result.Include[0]
	assert.True(t, spec.Iterate)
	assert.Equal(t, "Observation", spec.SourceType)
	assert.Equal(t, "subject", spec.Param)
	assert.Equal(t, "Patient", spec.TargetType)
}

func TestParse_HasReverseChain(t *testing.T) {
	q, err := Parse("_has:Observation:subject:code=1234-5")
	require.NoError(t, err)
	require.Len(t, q.Result.Has, 1)
	spec := q.Result.Has[0]
	assert.Equal(t, "Observation", spec.ResourceType)
	assert.Equal(t, "subject", spec.RefParam)
	assert.Equal(t, "code", spec.SearchParam)
	assert.Equal(t, "1234-5", spec.Value)
}

func TestParse_TypeParameterSplitsOnComma(t *testing.T) {
	q, err := Parse("_type=Patient,Observation")
	require.NoError(t, err)
	assert.Equal(t, []string{"Patient", "Observation"}, q.Result.Type)
}
