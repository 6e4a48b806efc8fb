package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergePatch_ReplacesScalarField(t *testing.T) {
	doc := []byte(`{"resourceType":"Patient","active":true,"gender":"male"}`)
	patch := []byte(`{"gender":"female"}`)

	out, err := mergePatch(doc, patch)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "female", got["gender"])
	assert.Equal(t, true, got["active"])
	assert.Equal(t, "Patient", got["resourceType"])
}

func TestMergePatch_NullRemovesKey(t *testing.T) {
	doc := []byte(`{"resourceType":"Patient","gender":"male"}`)
	patch := []byte(`{"gender":null}`)

	out, err := mergePatch(doc, patch)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(out, &got))
	_, exists := got["gender"]
	assert.False(t, exists)
}

func TestMergePatch_MergesNestedObjectsRecursively(t *testing.T) {
	doc := []byte(`{"resourceType":"Patient","name":{"family":"Smith","given":["Jo"]}}`)
	patch := []byte(`{"name":{"family":"Jones"}}`)

	out, err := mergePatch(doc, patch)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(out, &got))
	name := got["name"].(map[string]any)
	assert.Equal(t, "Jones", name["family"])
	// array fields not named in the patch are untouched
	assert.Equal(t, []any{"Jo"}, name["given"])
}

func TestMergePatch_ArraysReplacedWholesaleNotMerged(t *testing.T) {
	doc := []byte(`{"resourceType":"Patient","name":{"given":["Jo","Q"]}}`)
	patch := []byte(`{"name":{"given":["Alex"]}}`)

	out, err := mergePatch(doc, patch)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(out, &got))
	name := got["name"].(map[string]any)
	assert.Equal(t, []any{"Alex"}, name["given"])
}

func TestSetResourceID_OverwritesIDField(t *testing.T) {
	out := setResourceID([]byte(`{"resourceType":"Patient","id":"old"}`), "new-id")
	var got map[string]any
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "new-id", got["id"])
}

func TestSetResourceID_ReturnsOriginalOnInvalidJSON(t *testing.T) {
	body := []byte(`not json`)
	assert.Equal(t, body, setResourceID(body, "new-id"))
}

func TestContentHash_StableForIdenticalInput(t *testing.T) {
	a := contentHash([]byte(`{"a":1}`))
	b := contentHash([]byte(`{"a":1}`))
	c := contentHash([]byte(`{"a":2}`))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestResourceTypeOf(t *testing.T) {
	rt, err := resourceTypeOf([]byte(`{"resourceType":"Observation"}`))
	require.NoError(t, err)
	assert.Equal(t, "Observation", rt)

	_, err = resourceTypeOf([]byte(`{}`))
	assert.Error(t, err)
}
