package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReferenceValue_TypeAndID(t *testing.T) {
	ref := parseReferenceValue("Patient/123")
	assert.Equal(t, "Patient", ref.resourceType)
	assert.Equal(t, "123", ref.id)
}

func TestParseReferenceValue_BareID(t *testing.T) {
	ref := parseReferenceValue("123")
	assert.Equal(t, "", ref.resourceType)
	assert.Equal(t, "123", ref.id)
}

func TestParseReferenceValue_AbsoluteURL(t *testing.T) {
	ref := parseReferenceValue("http://example.org/fhir/Patient/123")
	assert.Equal(t, "Patient", ref.resourceType)
	assert.Equal(t, "123", ref.id)
}

func TestParseReferenceValue_StripsHistorySuffix(t *testing.T) {
	ref := parseReferenceValue("Patient/123/_history/2")
	assert.Equal(t, "Patient", ref.resourceType)
	assert.Equal(t, "123", ref.id)
}

func TestBuildReferenceClause_UsesLiteralType(t *testing.T) {
	var binds []BindValue
	resolved := ResolvedParam{Values: []ResolvedValue{{Raw: "Patient/123"}}}
	clause := buildReferenceClause(resolved, "", &binds)
	assert.Contains(t, clause, "sp.target_id =")
	assert.Contains(t, clause, "sp.target_type =")
	assert.Len(t, binds, 2)
}

func TestBuildReferenceClause_FallsBackToCallerTypeFilter(t *testing.T) {
	var binds []BindValue
	resolved := ResolvedParam{Values: []ResolvedValue{{Raw: "123"}}}
	clause := buildReferenceClause(resolved, "Patient", &binds)
	assert.Contains(t, clause, "sp.target_type =")
	require.Equal(t, "Patient", *binds[1].Text)
}

func TestBuildReferenceClause_NoTypeOmitsTypeCheck(t *testing.T) {
	var binds []BindValue
	resolved := ResolvedParam{Values: []ResolvedValue{{Raw: "123"}}}
	clause := buildReferenceClause(resolved, "", &binds)
	assert.NotContains(t, clause, "sp.target_type")
	assert.Len(t, binds, 1)
}
