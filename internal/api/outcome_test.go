package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fhirstore/zunder/internal/apperr"
	"github.com/fhirstore/zunder/pkg/fhirmodel"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecordedTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/Patient/1", nil)
	return c, w
}

func TestWriteError_UsesAppErrKindForStatusAndIssueCode(t *testing.T) {
	c, w := newRecordedTestContext()
	writeError(c, apperr.Newf(apperr.KindNotFound, "Patient/1 not found"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, fhirJSON, w.Header().Get("Content-Type"))

	var outcome fhirmodel.OperationOutcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &outcome))
	require.Len(t, outcome.Issue, 1)
	assert.Equal(t, "not-found", outcome.Issue[0].Code)
	assert.Equal(t, "Patient/1 not found", outcome.Issue[0].Diagnostics)
}

func TestWriteError_NonTaxonomyErrorIsInternal(t *testing.T) {
	c, w := newRecordedTestContext()
	writeError(c, assertPlainError{})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

type assertPlainError struct{}

func (assertPlainError) Error() string { return "boom" }

func TestWriteResource_SetsFhirContentType(t *testing.T) {
	c, w := newRecordedTestContext()
	writeResource(c, http.StatusOK, []byte(`{"resourceType":"Patient","id":"1"}`))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, fhirJSON, w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"resourceType":"Patient","id":"1"}`, w.Body.String())
}

func TestWriteBundle_SetsFhirContentType(t *testing.T) {
	c, w := newRecordedTestContext()
	writeBundle(c, http.StatusOK, &fhirmodel.Bundle{ResourceType: "Bundle", Type: "searchset"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, fhirJSON, w.Header().Get("Content-Type"))
}
