package conformance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitCanonical_WithVersion(t *testing.T) {
	url, version := splitCanonical("http://hl7.org/fhir/StructureDefinition/Patient|4.0.1")
	assert.Equal(t, "http://hl7.org/fhir/StructureDefinition/Patient", url)
	assert.Equal(t, "4.0.1", version)
}

func TestSplitCanonical_WithoutVersion(t *testing.T) {
	url, version := splitCanonical("http://hl7.org/fhir/StructureDefinition/Patient")
	assert.Equal(t, "http://hl7.org/fhir/StructureDefinition/Patient", url)
	assert.Equal(t, "", version)
}

func TestIsPrimitiveTypeCode(t *testing.T) {
	assert.True(t, isPrimitiveTypeCode("string"))
	assert.True(t, isPrimitiveTypeCode("dateTime"))
	assert.False(t, isPrimitiveTypeCode("HumanName"))
	assert.False(t, isPrimitiveTypeCode(""))
}

func TestTrimTypeName_StripsLeadingTypePrefix(t *testing.T) {
	assert.Equal(t, ".family", trimTypeName("HumanName.family", "HumanName"))
}

func TestTrimTypeName_NoMatchReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", trimTypeName("Address.city", "HumanName"))
}

func TestMergeElement_DiffNarrowsCardinalityAndReplacesType(t *testing.T) {
	base := ElementDefinition{Path: "Patient.name", Min: 0, Max: "*", Type: []ElementType{{Code: "HumanName"}}}
	diff := ElementDefinition{Path: "Patient.name", Min: 1, Max: "1"}
	merged := mergeElement(base, diff)
	assert.Equal(t, 1, merged.Min)
	assert.Equal(t, "1", merged.Max)
	assert.Equal(t, []ElementType{{Code: "HumanName"}}, merged.Type, "diff with no Type leaves base type untouched")
}

func TestMergeElement_DiffBindingAndSlicingOverrideBase(t *testing.T) {
	base := ElementDefinition{Path: "Patient.gender"}
	diff := ElementDefinition{
		Path:    "Patient.gender",
		Binding: &ElementBinding{Strength: "required", ValueSet: "http://hl7.org/fhir/ValueSet/administrative-gender"},
		Slicing: &ElementSlicing{Rules: "open"},
	}
	merged := mergeElement(base, diff)
	assert.Equal(t, "required", merged.Binding.Strength)
	assert.Equal(t, "open", merged.Slicing.Rules)
}

func TestMergeDifferential_MatchesByPathAndAppendsNew(t *testing.T) {
	base := []ElementDefinition{
		{Path: "Patient.name", Min: 0, Max: "*"},
		{Path: "Patient.gender", Min: 0, Max: "1"},
	}
	diff := []ElementDefinition{
		{Path: "Patient.name", Min: 1},
		{Path: "Patient.extension", Min: 0, Max: "*"},
	}
	merged := mergeDifferential(base, diff)
	assert.Len(t, merged, 3)
	assert.Equal(t, 1, merged[0].Min, "Patient.name should be narrowed in place")
	assert.Equal(t, "Patient.extension", merged[2].Path, "new path appended")
}
