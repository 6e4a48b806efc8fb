package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompartmentRefParam_ClinicalEventTypesUseSubject(t *testing.T) {
	for _, rt := range []string{"Observation", "Condition", "DiagnosticReport", "Procedure", "MedicationRequest", "Immunization"} {
		assert.Equal(t, "subject", compartmentRefParam(rt), rt)
	}
}

func TestCompartmentRefParam_DefaultsToPatient(t *testing.T) {
	assert.Equal(t, "patient", compartmentRefParam("Encounter"))
	assert.Equal(t, "patient", compartmentRefParam("AllergyIntolerance"))
}

func TestClampCount_CapsAtMax(t *testing.T) {
	assert.Equal(t, 50, clampCount(200, 50))
}

func TestClampCount_UsesDefaultWhenUnderMax(t *testing.T) {
	assert.Equal(t, 20, clampCount(20, 50))
}

func TestClampCount_FallsBackToMaxWhenDefaultUnset(t *testing.T) {
	assert.Equal(t, 50, clampCount(0, 50))
}
