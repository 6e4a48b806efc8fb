package search

import (
	"testing"

	"github.com/fhirstore/zunder/internal/search/builder"
	"github.com/fhirstore/zunder/internal/search/lookup"
	"github.com/fhirstore/zunder/internal/search/params"
	"github.com/fhirstore/zunder/pkg/fhirmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDefStore struct {
	byType map[string][]fhirmodel.SearchParameterDefinition
}

func (f *fakeDefStore) ListActive(resourceType string) ([]fhirmodel.SearchParameterDefinition, error) {
	return f.byType[resourceType], nil
}

func TestRenumber_ShiftsPlaceholdersByOffset(t *testing.T) {
	out := renumber("sp.value = $1 AND sp.code = $2", 3)
	assert.Equal(t, "sp.value = $4 AND sp.code = $5", out)
}

func TestRenumber_LeavesNonPlaceholderTextAlone(t *testing.T) {
	out := renumber("resource_type = 'Patient'", 5)
	assert.Equal(t, "resource_type = 'Patient'", out)
}

func TestSpecialParamType(t *testing.T) {
	ty, ok := specialParamType("_id")
	require.True(t, ok)
	assert.Equal(t, builder.TypeToken, ty)

	ty, ok = specialParamType("_lastUpdated")
	require.True(t, ok)
	assert.Equal(t, builder.TypeDate, ty)

	_, ok = specialParamType("_sort")
	assert.False(t, ok)
}

func TestResolvedFromItem_FlattensOrGroupsToValues(t *testing.T) {
	item := params.SearchItem{
		ParamName: "family",
		Modifier:  params.ModifierExact,
		Values: [][]params.SearchValue{
			{{Prefix: params.PrefixEq, Raw: "Smith"}, {Prefix: params.PrefixEq, Raw: "Jones"}},
		},
	}
	resolved := resolvedFromItem(item, "family", builder.TypeString, nil)
	assert.Equal(t, "family", resolved.Code)
	assert.Equal(t, params.ModifierExact, resolved.Modifier)
	require.Len(t, resolved.Values, 2)
	assert.Equal(t, "Smith", resolved.Values[0].Raw)
}

func TestEngine_ResolveHandlesSpecialParams(t *testing.T) {
	e := NewEngine(nil, lookup.NewCache(&fakeDefStore{}))
	resolved, err := e.Resolve("Patient", []params.SearchItem{
		{ParamName: "_id", Values: [][]params.SearchValue{{{Raw: "123"}}}},
	})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, builder.TypeToken, resolved[0].Type)
}

func TestEngine_ResolveUnknownParamErrors(t *testing.T) {
	e := NewEngine(nil, lookup.NewCache(&fakeDefStore{}))
	_, err := e.Resolve("Patient", []params.SearchItem{
		{ParamName: "nonexistent", Values: [][]params.SearchValue{{{Raw: "x"}}}},
	})
	assert.Error(t, err)
}

func TestEngine_ResolveLooksUpDefinedParam(t *testing.T) {
	store := &fakeDefStore{byType: map[string][]fhirmodel.SearchParameterDefinition{
		"Patient": {{Code: "family", ResourceType: "Patient", Type: "string"}},
	}}
	e := NewEngine(nil, lookup.NewCache(store))
	resolved, err := e.Resolve("Patient", []params.SearchItem{
		{ParamName: "family", Values: [][]params.SearchValue{{{Raw: "Smith"}}}},
	})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, builder.TypeString, resolved[0].Type)
}

func TestEngine_ResolveCompositeExpandsComponents(t *testing.T) {
	store := &fakeDefStore{byType: map[string][]fhirmodel.SearchParameterDefinition{
		"Observation": {{
			Code: "code-value-quantity", ResourceType: "Observation", Type: "composite",
			Components: []fhirmodel.SearchParamComponent{
				{Definition: "code", Expression: "token"},
				{Definition: "value-quantity", Expression: "quantity"},
			},
		}},
	}}
	e := NewEngine(nil, lookup.NewCache(store))
	resolved, err := e.Resolve("Observation", []params.SearchItem{
		{ParamName: "code-value-quantity", Values: [][]params.SearchValue{{{Raw: "http://loinc.org|1$5.4|http://unitsofmeasure.org|mg"}}}},
	})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	require.Len(t, resolved[0].Component, 2)
	assert.Equal(t, builder.ParamType("token"), resolved[0].Component[0].Type)
}
