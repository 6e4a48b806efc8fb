package index

import (
	"encoding/json"
	"testing"

	"github.com/fhirstore/zunder/internal/fhirpath"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponentJSON_Integer(t *testing.T) {
	raw := componentJSON(fhirpath.Value{Kind: fhirpath.KindInteger, Integer: 5})
	var m map[string]string
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "5", m["value"])
}

func TestComponentJSON_Decimal(t *testing.T) {
	raw := componentJSON(fhirpath.Value{Kind: fhirpath.KindDecimal, Decimal: decimal.NewFromFloat(1.5)})
	var m map[string]string
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "1.5", m["value"])
}

func TestComponentJSON_StringAlsoPopulatesCode(t *testing.T) {
	raw := componentJSON(fhirpath.Value{Kind: fhirpath.KindString, String: "final"})
	var m map[string]string
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "final", m["value"])
	assert.Equal(t, "final", m["code"])
}

func TestComponentJSON_StringDateLiteralAddsStartEnd(t *testing.T) {
	raw := componentJSON(fhirpath.Value{Kind: fhirpath.KindString, String: "2024-01-01"})
	var m map[string]string
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.NotEmpty(t, m["start"])
	assert.NotEmpty(t, m["end"])
}

func TestComponentJSON_Quantity(t *testing.T) {
	raw := componentJSON(fhirpath.Value{Kind: fhirpath.KindQuantity, Quantity: fhirpath.Quantity{
		Value: decimal.NewFromFloat(5.4), System: "http://unitsofmeasure.org", Code: "mg",
	}})
	var m map[string]string
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "5.4", m["value"])
	assert.Equal(t, "http://unitsofmeasure.org", m["system"])
	assert.Equal(t, "mg", m["code"])
}

func TestComponentJSON_UnknownKindYieldsEmptyObject(t *testing.T) {
	raw := componentJSON(fhirpath.Value{Kind: fhirpath.KindBoolean, Boolean: true})
	assert.JSONEq(t, `{}`, string(raw))
}
