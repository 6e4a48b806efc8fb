package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fhirstore/zunder/internal/conformance"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type fakeFhirContext struct {
	resolvable map[string]bool
	resolveErr error
}

func (f *fakeFhirContext) Resolve(canonicalURL, version string) (json.RawMessage, bool, error) {
	if f.resolveErr != nil {
		return nil, false, f.resolveErr
	}
	return nil, f.resolvable[canonicalURL], nil
}

func (f *fakeFhirContext) Snapshot(canonicalURL, version string) (*conformance.ExpandedSnapshot, error) {
	return nil, nil
}

func newValidateTestContext(body string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/$validate", strings.NewReader(body))
	return c, w
}

func TestValidate_MissingResourceTypeReportsStructureIssue(t *testing.T) {
	s := &Server{Conformance: &fakeFhirContext{}}
	c, w := newValidateTestContext(`{}`)
	s.Validate(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "structure")
}

func TestValidate_PathTypeMismatchReportsInvalid(t *testing.T) {
	s := &Server{Conformance: &fakeFhirContext{}}
	c, w := newValidateTestContext(`{"resourceType":"Observation"}`)
	c.Params = gin.Params{{Key: "type", Value: "Patient"}}
	s.Validate(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "does not match")
}

func TestValidate_UnresolvedProfileReportsNotFoundWarning(t *testing.T) {
	s := &Server{Conformance: &fakeFhirContext{resolvable: map[string]bool{}}}
	c, w := newValidateTestContext(`{"resourceType":"Patient","meta":{"profile":["http://example.org/fhir/StructureDefinition/my-patient"]}}`)
	s.Validate(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "not installed")
}

func TestValidate_ResolvedProfileReportsNoIssues(t *testing.T) {
	s := &Server{Conformance: &fakeFhirContext{resolvable: map[string]bool{
		"http://example.org/fhir/StructureDefinition/my-patient": true,
	}}}
	c, w := newValidateTestContext(`{"resourceType":"Patient","meta":{"profile":["http://example.org/fhir/StructureDefinition/my-patient"]}}`)
	s.Validate(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "no issues detected")
}
