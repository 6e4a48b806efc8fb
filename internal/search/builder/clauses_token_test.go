package builder

import (
	"testing"

	"github.com/fhirstore/zunder/internal/search/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTokenValue_CodeOnly(t *testing.T) {
	tv := parseTokenValue("15074-8")
	assert.Equal(t, tokenAnySystemCode, tv.kind)
	assert.Equal(t, "15074-8", tv.code)
}

func TestParseTokenValue_SystemAndCode(t *testing.T) {
	tv := parseTokenValue("http://loinc.org|15074-8")
	assert.Equal(t, tokenSystemCode, tv.kind)
	assert.Equal(t, "http://loinc.org", tv.system)
	assert.Equal(t, "15074-8", tv.code)
}

func TestParseTokenValue_SystemOnly(t *testing.T) {
	tv := parseTokenValue("http://loinc.org|")
	assert.Equal(t, tokenSystemOnly, tv.kind)
	assert.Equal(t, "http://loinc.org", tv.system)
}

func TestParseTokenValue_NoSystemCode(t *testing.T) {
	tv := parseTokenValue("|15074-8")
	assert.Equal(t, tokenNoSystemCode, tv.kind)
	assert.Equal(t, "15074-8", tv.code)
}

func TestParseTokenValue_EscapedPipeNotASeparator(t *testing.T) {
	tv := parseTokenValue(`a\|b`)
	assert.Equal(t, tokenAnySystemCode, tv.kind)
	assert.Equal(t, "a|b", tv.code)
}

func TestIsCaseSensitiveTokenSystem(t *testing.T) {
	assert.True(t, isCaseSensitiveTokenSystem("http://unitsofmeasure.org"))
	assert.False(t, isCaseSensitiveTokenSystem("http://loinc.org"))
}

func TestEscapeLikePattern_EscapesWildcardsAndBackslash(t *testing.T) {
	assert.Equal(t, `50\%\_off\\`, escapeLikePattern(`50%_off\`))
}

func TestParseTokenOfTypeValue_RequiresThreeParts(t *testing.T) {
	_, _, _, ok := parseTokenOfTypeValue("http://terminology.hl7.org/CodeSystem/v2-0203|MR|123456")
	assert.True(t, ok)

	_, _, _, ok = parseTokenOfTypeValue("MR|123456")
	assert.False(t, ok)
}

func TestBuildTokenClause_DefaultSystemCodeMatch(t *testing.T) {
	var binds []BindValue
	resolved := ResolvedParam{Values: []ResolvedValue{{Raw: "http://loinc.org|15074-8"}}}
	clause := buildTokenClause(resolved, &binds)
	assert.Contains(t, clause, "sp.system =")
	assert.Contains(t, clause, "sp.code =")
}

func TestBuildTokenClause_TextModifierUsesDisplayPrefix(t *testing.T) {
	var binds []BindValue
	resolved := ResolvedParam{Modifier: params.ModifierText, Values: []ResolvedValue{{Raw: "glucose"}}}
	clause := buildTokenClause(resolved, &binds)
	assert.Contains(t, clause, "sp.display ILIKE")
	require.Len(t, binds, 1)
	assert.Equal(t, "glucose%", *binds[0].Text)
}

func TestBuildTokenClause_NotModifierWithMultipleValuesUsesAnd(t *testing.T) {
	var binds []BindValue
	resolved := ResolvedParam{Modifier: params.ModifierNot, Values: []ResolvedValue{
		{Raw: "http://loinc.org|1"}, {Raw: "http://loinc.org|2"},
	}}
	clause := buildTokenClause(resolved, &binds)
	assert.Contains(t, clause, " AND ")
}

func TestBuildTokenClause_NotInAndOfTypeDeferToWrappers(t *testing.T) {
	var binds []BindValue
	assert.Empty(t, buildTokenClause(ResolvedParam{Modifier: params.ModifierNotIn}, &binds))
	assert.Empty(t, buildTokenClause(ResolvedParam{Modifier: params.ModifierOfType}, &binds))
}
