package builder

import (
	"testing"

	"github.com/fhirstore/zunder/internal/search/params"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecimalPrecision_IntegerIsPreciseToUnits(t *testing.T) {
	p, err := decimalPrecision("100")
	require.NoError(t, err)
	assert.True(t, decimal.New(5, -1).Equal(p), p.String())
}

func TestDecimalPrecision_FractionalDigitsNarrowThePrecision(t *testing.T) {
	p, err := decimalPrecision("100.00")
	require.NoError(t, err)
	assert.True(t, decimal.New(5, -3).Equal(p), p.String())
}

func TestDecimalPrecision_ExponentialNotation(t *testing.T) {
	p, err := decimalPrecision("1.5e2")
	require.NoError(t, err)
	// 2 significant digits, exponent 2 -> unit = 10^(2-1) = 10, half-ulp = 5
	assert.True(t, decimal.NewFromInt(5).Equal(p), p.String())
}

func TestNumberPrecisionRange_100HasWiderBandThan100_00(t *testing.T) {
	min1, max1, err := numberPrecisionRange("100")
	require.NoError(t, err)
	min2, max2, err := numberPrecisionRange("100.00")
	require.NoError(t, err)
	assert.True(t, min1.LessThan(min2))
	assert.True(t, max1.GreaterThan(max2))
}

func TestNumberPrecisionRange_InvalidLiteralErrors(t *testing.T) {
	_, _, err := numberPrecisionRange("not-a-number")
	assert.Error(t, err)
}

func TestBuildNumberClause_EqProducesRangeCheck(t *testing.T) {
	var binds []BindValue
	resolved := ResolvedParam{Values: []ResolvedValue{{Prefix: params.PrefixEq, Raw: "100"}}}
	clause := buildNumberClause(resolved, &binds)
	assert.Contains(t, clause, ">= $1::numeric AND sp.value < $2::numeric")
	require.Len(t, binds, 2)
}

func TestBuildNumberClause_DefaultsToEqWhenPrefixMissing(t *testing.T) {
	var binds []BindValue
	resolved := ResolvedParam{Values: []ResolvedValue{{Raw: "5"}}}
	clause := buildNumberClause(resolved, &binds)
	assert.Contains(t, clause, "AND sp.value <")
}

func TestBuildNumberClause_InvalidLiteralSkipped(t *testing.T) {
	var binds []BindValue
	resolved := ResolvedParam{Values: []ResolvedValue{{Prefix: params.PrefixEq, Raw: "garbage"}}}
	clause := buildNumberClause(resolved, &binds)
	assert.Empty(t, clause)
	assert.Empty(t, binds)
}

func TestParseQuantity_NumberOnly(t *testing.T) {
	q, err := parseQuantity("5.4")
	require.NoError(t, err)
	assert.Equal(t, "5.4", q.number)
	assert.Nil(t, q.system)
	assert.Nil(t, q.code)
}

func TestParseQuantity_NumberAndCodeNoSystem(t *testing.T) {
	q, err := parseQuantity("5.4||mg")
	require.NoError(t, err)
	assert.Equal(t, "5.4", q.number)
	require.NotNil(t, q.code)
	assert.Equal(t, "mg", *q.code)
	assert.Nil(t, q.system)
}

func TestParseQuantity_NumberSystemAndCode(t *testing.T) {
	q, err := parseQuantity("5.4|http://unitsofmeasure.org|mg")
	require.NoError(t, err)
	require.NotNil(t, q.system)
	require.NotNil(t, q.code)
	assert.Equal(t, "http://unitsofmeasure.org", *q.system)
	assert.Equal(t, "mg", *q.code)
}

func TestParseQuantity_InvalidShapeErrors(t *testing.T) {
	_, err := parseQuantity("5.4|a|b|c")
	assert.Error(t, err)
}

func TestBuildQuantityClause_SystemAndCodeNarrowsToExactCode(t *testing.T) {
	var binds []BindValue
	resolved := ResolvedParam{Values: []ResolvedValue{{Prefix: params.PrefixEq, Raw: "5.4|http://unitsofmeasure.org|mg"}}}
	clause := buildQuantityClause(resolved, &binds)
	assert.Contains(t, clause, "sp.system = $")
	assert.Contains(t, clause, "sp.code = $")
}

func TestBuildQuantityClause_CodeOnlyMatchesCodeOrUnit(t *testing.T) {
	var binds []BindValue
	resolved := ResolvedParam{Values: []ResolvedValue{{Prefix: params.PrefixEq, Raw: "5.4||mg"}}}
	clause := buildQuantityClause(resolved, &binds)
	assert.Contains(t, clause, "sp.code = $")
	assert.Contains(t, clause, "OR sp.unit = $")
}
