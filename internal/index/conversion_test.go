package index

import (
	"testing"

	"github.com/fhirstore/zunder/internal/fhirpath"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codingValue(system, code, display string) fhirpath.Value {
	return fhirpath.Value{
		Kind: fhirpath.KindObject,
		Object: map[string]fhirpath.Collection{
			"system":  {fhirpath.Str(system)},
			"code":    {fhirpath.Str(code)},
			"display": {fhirpath.Str(display)},
		},
	}
}

func TestTokenRowsFromValue_PlainCode(t *testing.T) {
	rows := tokenRowsFromValue("gender", fhirpath.Str("male"))
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].System)
	assert.Equal(t, "male", rows[0].Code)
}

func TestTokenRowsFromValue_Coding(t *testing.T) {
	rows := tokenRowsFromValue("code", codingValue("http://loinc.org", "1234-5", "Hemoglobin"))
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].System)
	assert.Equal(t, "http://loinc.org", *rows[0].System)
	assert.Equal(t, "1234-5", rows[0].Code)
	assert.Equal(t, "Hemoglobin", rows[0].Display)
}

func TestTokenRowsFromValue_CodeableConcept(t *testing.T) {
	cc := fhirpath.Value{
		Kind: fhirpath.KindObject,
		Object: map[string]fhirpath.Collection{
			"coding": {
				codingValue("http://loinc.org", "1234-5", "Hemoglobin"),
				codingValue("http://snomed.info/sct", "999", "Hb"),
			},
		},
	}
	rows := tokenRowsFromValue("code", cc)
	require.Len(t, rows, 2)
	assert.Equal(t, "1234-5", rows[0].Code)
	assert.Equal(t, "999", rows[1].Code)
}

func TestTokenRowsFromValue_Identifier(t *testing.T) {
	id := fhirpath.Value{
		Kind: fhirpath.KindObject,
		Object: map[string]fhirpath.Collection{
			"system": {fhirpath.Str("http://hospital.org/mrn")},
			"value":  {fhirpath.Str("12345")},
		},
	}
	rows := tokenRowsFromValue("identifier", id)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].System)
	assert.Equal(t, "http://hospital.org/mrn", *rows[0].System)
	assert.Equal(t, "12345", rows[0].Code)
}

func TestTokenIdentifierRowsFromValue(t *testing.T) {
	id := fhirpath.Value{
		Kind: fhirpath.KindObject,
		Object: map[string]fhirpath.Collection{
			"value": {fhirpath.Str("12345")},
			"type": {{
				Kind: fhirpath.KindObject,
				Object: map[string]fhirpath.Collection{
					"coding": {codingValue("http://terminology.hl7.org/CodeSystem/v2-0203", "MR", "Medical Record Number")},
				},
			}},
		},
	}
	rows := tokenIdentifierRowsFromValue("identifier", id)
	require.Len(t, rows, 1)
	assert.Equal(t, "MR", rows[0].TypeCode)
	assert.Equal(t, "12345", rows[0].Value)
}

func TestReferenceRowFromValue(t *testing.T) {
	ref := fhirpath.Value{
		Kind: fhirpath.KindObject,
		Object: map[string]fhirpath.Collection{
			"reference": {fhirpath.Str("Patient/123")},
		},
	}
	row, ok := referenceRowFromValue("subject", ref)
	require.True(t, ok)
	assert.Equal(t, "Patient", row.TargetType)
	assert.Equal(t, "123", row.TargetID)
}

func TestReferenceRowFromValue_Empty(t *testing.T) {
	_, ok := referenceRowFromValue("subject", fhirpath.Str(""))
	assert.False(t, ok)
}

func TestDateRowFromValue_Literal(t *testing.T) {
	row, ok := dateRowFromValue("birthdate", fhirpath.Str("2020-03"))
	require.True(t, ok)
	assert.Equal(t, "2020-03-01T00:00:00Z", row.Start)
	assert.Equal(t, "2020-04-01T00:00:00Z", row.End)
}

func TestDateRowFromValue_Period(t *testing.T) {
	period := fhirpath.Value{
		Kind: fhirpath.KindObject,
		Object: map[string]fhirpath.Collection{
			"start": {fhirpath.Str("2020-01-01")},
			"end":   {fhirpath.Str("2020-01-02")},
		},
	}
	row, ok := dateRowFromValue("date", period)
	require.True(t, ok)
	assert.Equal(t, "2020-01-01T00:00:00Z", row.Start)
	assert.Equal(t, "2020-01-03T00:00:00Z", row.End)
}

func TestNumberRowFromValue(t *testing.T) {
	row, ok := numberRowFromValue("value-quantity", fhirpath.Dec(decimal.NewFromFloat(5.4)))
	require.True(t, ok)
	assert.True(t, row.Value.Equal(decimal.NewFromFloat(5.4)))
}

func TestQuantityRowFromValue_Object(t *testing.T) {
	q := fhirpath.Value{
		Kind: fhirpath.KindObject,
		Object: map[string]fhirpath.Collection{
			"value":  {fhirpath.Dec(decimal.NewFromFloat(140))},
			"system": {fhirpath.Str("http://unitsofmeasure.org")},
			"code":   {fhirpath.Str("mg")},
			"unit":   {fhirpath.Str("mg")},
		},
	}
	row, ok := quantityRowFromValue("value-quantity", q)
	require.True(t, ok)
	assert.True(t, row.Value.Equal(decimal.NewFromFloat(140)))
	require.NotNil(t, row.System)
	assert.Equal(t, "http://unitsofmeasure.org", *row.System)
}

func TestDisplayString(t *testing.T) {
	assert.Equal(t, "hello", displayString(fhirpath.Str("hello")))
	assert.Equal(t, "", displayString(fhirpath.Bool(true)))

	name := fhirpath.Value{
		Kind:   fhirpath.KindObject,
		Object: map[string]fhirpath.Collection{"text": {fhirpath.Str("Jane Doe")}},
	}
	assert.Equal(t, "Jane Doe", displayString(name))
}
