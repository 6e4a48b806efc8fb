package lookup

import (
	"testing"

	"github.com/fhirstore/zunder/pkg/fhirmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	calls int
	byType map[string][]fhirmodel.SearchParameterDefinition
}

func (f *fakeStore) ListActive(resourceType string) ([]fhirmodel.SearchParameterDefinition, error) {
	f.calls++
	return f.byType[resourceType], nil
}

func TestContainsBase(t *testing.T) {
	assert.True(t, containsBase([]string{"Patient"}, "Patient"))
	assert.True(t, containsBase([]string{"Resource"}, "Observation"))
	assert.True(t, containsBase([]string{"DomainResource"}, "Observation"))
	assert.False(t, containsBase([]string{"Encounter"}, "Patient"))
}

func TestCache_ResolveFindsDirectDefinition(t *testing.T) {
	store := &fakeStore{byType: map[string][]fhirmodel.SearchParameterDefinition{
		"Patient": {{Code: "family", ResourceType: "Patient"}},
	}}
	c := NewCache(store)
	def, ok, err := c.Resolve("Patient", "family")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Patient", def.ResourceType)
}

func TestCache_ResolveFallsBackToDomainResourceThenResource(t *testing.T) {
	store := &fakeStore{byType: map[string][]fhirmodel.SearchParameterDefinition{
		"DomainResource": {{Code: "_lastUpdated", ResourceType: "DomainResource"}},
		"Resource":       {{Code: "_id", ResourceType: "Resource"}},
	}}
	c := NewCache(store)

	_, ok, err := c.Resolve("Patient", "_lastUpdated")
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = c.Resolve("Patient", "_id")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCache_ResolveUnknownCodeReturnsFalse(t *testing.T) {
	c := NewCache(&fakeStore{})
	_, ok, err := c.Resolve("Patient", "nonexistent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_EnsureLoadedOnlyCallsStoreOnce(t *testing.T) {
	store := &fakeStore{byType: map[string][]fhirmodel.SearchParameterDefinition{
		"Patient": {{Code: "family", ResourceType: "Patient"}},
	}}
	c := NewCache(store)
	_, _, err := c.Resolve("Patient", "family")
	require.NoError(t, err)
	_, _, err = c.Resolve("Patient", "family")
	require.NoError(t, err)

	assert.Equal(t, 1, store.calls, "found directly on Patient, so the DomainResource/Resource fallback levels are never even loaded")
}

func TestCache_InvalidateForcesReload(t *testing.T) {
	store := &fakeStore{byType: map[string][]fhirmodel.SearchParameterDefinition{
		"Patient": {{Code: "family", ResourceType: "Patient"}},
	}}
	c := NewCache(store)
	_, _, err := c.Resolve("Patient", "family")
	require.NoError(t, err)
	c.Invalidate()
	_, _, err = c.Resolve("Patient", "family")
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
}

func TestCache_AllReturnsEveryDefinitionForType(t *testing.T) {
	store := &fakeStore{byType: map[string][]fhirmodel.SearchParameterDefinition{
		"Patient": {{Code: "family"}, {Code: "given"}},
	}}
	c := NewCache(store)
	defs, err := c.All("Patient")
	require.NoError(t, err)
	assert.Len(t, defs, 2)
}
