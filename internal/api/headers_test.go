package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fhirstore/zunder/pkg/fhirmodel"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(method, target string, headers map[string]string) *gin.Context {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	c.Request = req
	return c
}

func TestParsePrefer_DefaultsToMinimalAndStrict(t *testing.T) {
	c := newTestContext(http.MethodPost, "/Patient", nil)
	ret, handling := parsePrefer(c)
	assert.Equal(t, fhirmodel.PreferReturnMinimal, ret)
	assert.Equal(t, fhirmodel.PreferHandlingStrict, handling)
}

func TestParsePrefer_ReturnRepresentation(t *testing.T) {
	c := newTestContext(http.MethodPost, "/Patient", map[string]string{"Prefer": "return=representation"})
	ret, _ := parsePrefer(c)
	assert.Equal(t, fhirmodel.PreferReturnRepresentation, ret)
}

func TestParsePrefer_ReturnOperationOutcomeAndLenientHandling(t *testing.T) {
	c := newTestContext(http.MethodPost, "/Patient", map[string]string{"Prefer": `return=OperationOutcome, handling=lenient`})
	ret, handling := parsePrefer(c)
	assert.Equal(t, fhirmodel.PreferReturnOperationOutcome, ret)
	assert.Equal(t, fhirmodel.PreferHandlingLenient, handling)
}

func TestParseIfMatch_StripsWeakValidatorAndQuotes(t *testing.T) {
	c := newTestContext(http.MethodPut, "/Patient/1", map[string]string{"If-Match": `W/"3"`})
	v, err := parseIfMatch(c)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, int64(3), *v)
}

func TestParseIfMatch_AbsentHeaderReturnsNil(t *testing.T) {
	c := newTestContext(http.MethodPut, "/Patient/1", nil)
	v, err := parseIfMatch(c)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestParseIfMatch_InvalidValueErrors(t *testing.T) {
	c := newTestContext(http.MethodPut, "/Patient/1", map[string]string{"If-Match": "not-a-version"})
	_, err := parseIfMatch(c)
	assert.Error(t, err)
}

func TestEtagAndLocation(t *testing.T) {
	assert.Equal(t, `W/"4"`, etag(4))
	assert.Equal(t, "http://host/fhir/Patient/1/_history/4", location("http://host/fhir", "Patient", "1", 4))
	assert.Equal(t, "http://host/fhir/Patient/1/_history/4", location("http://host/fhir/", "Patient", "1", 4))
}

func TestLastModifiedHeader_FormatsAsHTTPDate(t *testing.T) {
	ts := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "Thu, 30 Jul 2026 12:00:00 GMT", lastModifiedHeader(ts))
}

func TestBaseURL_HonorsForwardedHeaders(t *testing.T) {
	c := newTestContext(http.MethodGet, "/fhir/Patient", map[string]string{
		"X-Forwarded-Proto": "https",
		"X-Forwarded-Host":  "public.example.org",
	})
	assert.Equal(t, "https://public.example.org/fhir", baseURL(c, "/fhir"))
}

func TestBaseURL_FallsBackToRequestHost(t *testing.T) {
	c := newTestContext(http.MethodGet, "/fhir/Patient", nil)
	c.Request.Host = "localhost:8080"
	assert.Equal(t, "http://localhost:8080/fhir", baseURL(c, "/fhir"))
}
