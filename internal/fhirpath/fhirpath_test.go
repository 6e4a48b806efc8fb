package fhirpath_test

import (
	"encoding/json"
	"testing"

	"github.com/fhirstore/zunder/internal/fhirpath"
	"github.com/stretchr/testify/require"
)

func eval(t *testing.T, expr string, body []byte) fhirpath.Collection {
	t.Helper()
	node, err := fhirpath.Parse(expr)
	require.NoError(t, err)
	plan, err := fhirpath.Compile(node)
	require.NoError(t, err)
	raw := json.RawMessage(body)
	root := fhirpath.NewLazy(&raw, nil)
	vm := fhirpath.NewVM()
	out, err := vm.Run(plan, fhirpath.Collection{root}, &fhirpath.EvalContext{This: root})
	require.NoError(t, err)
	return out
}

func TestFhirPath_NavigatesSimplePath(t *testing.T) {
	body := []byte(`{"resourceType":"Patient","gender":"female"}`)
	out := eval(t, "gender", body)
	require.Len(t, out, 1)
	require.Equal(t, "female", out[0].Materialize().String)
}

func TestFhirPath_NavigatesThroughArray(t *testing.T) {
	body := []byte(`{"resourceType":"Patient","name":[{"family":"Smith"},{"family":"Jones"}]}`)
	out := eval(t, "name.family", body)
	require.Len(t, out, 2)
	assertFamily := func(v fhirpath.Value) string { return v.Materialize().String }
	require.Equal(t, "Smith", assertFamily(out[0]))
	require.Equal(t, "Jones", assertFamily(out[1]))
}

func TestFhirPath_WhereFiltersCollection(t *testing.T) {
	body := []byte(`{"resourceType":"Patient","name":[
		{"use":"old","family":"Smith"},
		{"use":"official","family":"Jones"}
	]}`)
	out := eval(t, "name.where(use = 'official').family", body)
	require.Len(t, out, 1)
	require.Equal(t, "Jones", out[0].Materialize().String)
}

func TestFhirPath_EmptyPathReturnsEmptyCollection(t *testing.T) {
	body := []byte(`{"resourceType":"Patient"}`)
	out := eval(t, "name.family", body)
	require.Empty(t, out)
}

func TestFhirPath_ExistsFunction(t *testing.T) {
	body := []byte(`{"resourceType":"Patient","active":true}`)
	out := eval(t, "active.exists()", body)
	require.Len(t, out, 1)
	require.True(t, out[0].Materialize().Boolean)
}

func TestParse_RejectsUnparsableExpression(t *testing.T) {
	_, err := fhirpath.Parse("name.")
	require.Error(t, err)
}
