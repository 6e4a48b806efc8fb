package bundle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConditionalReferenceURI_ParsesTypeQueryAndFragment(t *testing.T) {
	rt, query, fragment, ok := parseConditionalReferenceURI("Patient?identifier=123#p1")
	require.True(t, ok)
	assert.Equal(t, "Patient", rt)
	assert.Equal(t, "identifier=123", query)
	assert.Equal(t, "p1", fragment)
}

func TestParseConditionalReferenceURI_StripsAbsoluteBase(t *testing.T) {
	rt, query, _, ok := parseConditionalReferenceURI("http://example.org/fhir/Patient?identifier=123")
	require.True(t, ok)
	assert.Equal(t, "Patient", rt)
	assert.Equal(t, "identifier=123", query)
}

func TestParseConditionalReferenceURI_RejectsMissingQuery(t *testing.T) {
	_, _, _, ok := parseConditionalReferenceURI("Patient/123")
	assert.False(t, ok)
}

func TestParseConditionalReferenceURI_RejectsLowercaseTypeName(t *testing.T) {
	_, _, _, ok := parseConditionalReferenceURI("patient?identifier=123")
	assert.False(t, ok)
}

func TestIsValidResourceTypeName(t *testing.T) {
	assert.True(t, isValidResourceTypeName("Patient"))
	assert.True(t, isValidResourceTypeName("DiagnosticReport"))
	assert.False(t, isValidResourceTypeName("patient"))
	assert.False(t, isValidResourceTypeName(""))
	assert.False(t, isValidResourceTypeName("Patient123"))
}

func TestValidateConditionalReferenceQuery_RejectsResultShapingParams(t *testing.T) {
	err := validateConditionalReferenceQuery("identifier=123&_count=10")
	assert.Error(t, err)
}

func TestValidateConditionalReferenceQuery_AllowsSearchParams(t *testing.T) {
	err := validateConditionalReferenceQuery("identifier=123&family=Smith")
	assert.NoError(t, err)
}

func TestValidateConditionalReferenceQuery_RejectsModifiedParamBase(t *testing.T) {
	err := validateConditionalReferenceQuery("_include:iterate=Patient:organization")
	assert.Error(t, err)
}

func TestParseIfNoneMatch_Wildcard(t *testing.T) {
	cond, err := parseIfNoneMatch("*")
	require.NoError(t, err)
	require.NotNil(t, cond)
	assert.True(t, cond.Any)
}

func TestParseIfNoneMatch_SpecificVersion(t *testing.T) {
	cond, err := parseIfNoneMatch(`W/"4"`)
	require.NoError(t, err)
	require.NotNil(t, cond)
	assert.True(t, cond.HasVersion)
	assert.Equal(t, int64(4), cond.Version)
}

func TestParseIfNoneMatch_EmptyHeaderReturnsNil(t *testing.T) {
	cond, err := parseIfNoneMatch("")
	require.NoError(t, err)
	assert.Nil(t, cond)
}

func TestParseIfNoneMatch_RejectsMultipleETags(t *testing.T) {
	_, err := parseIfNoneMatch(`W/"1", W/"2"`)
	assert.Error(t, err)
}

func TestParseIfNoneMatch_RejectsInvalidVersion(t *testing.T) {
	_, err := parseIfNoneMatch("not-a-version")
	assert.Error(t, err)
}
