package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractGroupMembers_InactiveGroupYieldsNothing(t *testing.T) {
	body := []byte(`{"resourceType":"Group","active":false,"member":[{"entity":{"reference":"Patient/1"}}]}`)
	assert.Empty(t, extractGroupMembers(body))
}

func TestExtractGroupMembers_ExtractsEntityReferenceAndInactiveFlag(t *testing.T) {
	body := []byte(`{"resourceType":"Group","active":true,"member":[
		{"entity":{"reference":"Patient/1"},"inactive":true},
		{"entity":{"reference":"Patient/2"}}
	]}`)
	rows := extractGroupMembers(body)
	require.Len(t, rows, 2)
	assert.Equal(t, "Patient", rows[0].memberType)
	assert.Equal(t, "1", rows[0].memberID)
	assert.True(t, rows[0].memberInactive)
	assert.False(t, rows[1].memberInactive)
}

func TestExtractGroupMembers_PeriodBoundsParsed(t *testing.T) {
	body := []byte(`{"resourceType":"Group","member":[
		{"entity":{"reference":"Patient/1"},"period":{"start":"2024-01-01","end":"2024-06-01"}}
	]}`)
	rows := extractGroupMembers(body)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].periodStart)
	require.NotNil(t, rows[0].periodEnd)
	assert.Equal(t, 2024, rows[0].periodStart.Year())
}

func TestExtractCareTeamMembers_OnlyActiveIndexed(t *testing.T) {
	inactive := []byte(`{"resourceType":"CareTeam","status":"inactive","participant":[{"member":{"reference":"Practitioner/1"}}]}`)
	assert.Empty(t, extractCareTeamMembers(inactive))

	active := []byte(`{"resourceType":"CareTeam","status":"active","participant":[{"member":{"reference":"Practitioner/1"}}]}`)
	rows := extractCareTeamMembers(active)
	require.Len(t, rows, 1)
	assert.Equal(t, "Practitioner", rows[0].memberType)
}

func TestExtractListMembers_DeletedEntrySkipped(t *testing.T) {
	body := []byte(`{"resourceType":"List","status":"current","entry":[
		{"item":{"reference":"Observation/1"}},
		{"item":{"reference":"Observation/2"},"deleted":true}
	]}`)
	listRows, inRows := extractListMembers(body)
	require.Len(t, listRows, 1)
	require.Len(t, inRows, 1)
	assert.Equal(t, "Observation", listRows[0].memberType)
	assert.Equal(t, "1", listRows[0].memberID)
}

func TestExtractListMembers_NotCurrentStillPopulatesListButNotIn(t *testing.T) {
	body := []byte(`{"resourceType":"List","status":"retired","entry":[{"item":{"reference":"Observation/1"}}]}`)
	listRows, inRows := extractListMembers(body)
	assert.Len(t, listRows, 1)
	assert.Empty(t, inRows)
}

func TestExtractReferenceTargets_RequiresTypeSlashID(t *testing.T) {
	assert.Empty(t, extractReferenceTargets([]byte(`{"reference":"urn:uuid:abc"}`)))
	assert.Empty(t, extractReferenceTargets([]byte(`{}`)))

	targets := extractReferenceTargets([]byte(`{"reference":"Patient/42"}`))
	require.Len(t, targets, 1)
	assert.Equal(t, "Patient", targets[0].targetType)
	assert.Equal(t, "42", targets[0].targetID)
}

func TestParseFhirDatetime_SupportsMultiplePrecisions(t *testing.T) {
	assert.NotNil(t, parseFhirDatetime("2024-01-01"))
	assert.NotNil(t, parseFhirDatetime("2024-01-01T10:00"))
	assert.NotNil(t, parseFhirDatetime("2024-01-01T10:00:00Z"))
	assert.Nil(t, parseFhirDatetime(""))
	assert.Nil(t, parseFhirDatetime("not-a-date"))
}

func TestParsePeriodBounds_PartialPeriod(t *testing.T) {
	start, end := parsePeriodBounds([]byte(`{"start":"2024-01-01"}`))
	assert.NotNil(t, start)
	assert.Nil(t, end)
}

func TestIsTruthyBool(t *testing.T) {
	assert.True(t, isTruthyBool([]byte(`true`)))
	assert.False(t, isTruthyBool([]byte(`false`)))
	assert.False(t, isTruthyBool([]byte(`"true"`)))
}

func TestStringEqualFold(t *testing.T) {
	assert.True(t, stringEqualFold([]byte(`"Active"`), "active"))
	assert.False(t, stringEqualFold([]byte(`"retired"`), "active"))
}
