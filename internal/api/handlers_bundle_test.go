package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fhirstore/zunder/internal/runtimeconfig"
	"github.com/fhirstore/zunder/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBundleTestContext(body string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	return c, w
}

func TestSubmitBundle_RejectsNonBundleResourceType(t *testing.T) {
	s := &Server{Config: newTestRuntimeCache()}
	c, w := newBundleTestContext(`{"resourceType":"Patient"}`)
	s.SubmitBundle(c)
	assert.NotEqual(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "must be a Bundle")
}

func TestSubmitBundle_RejectsUnsupportedBundleType(t *testing.T) {
	s := &Server{Config: newTestRuntimeCache()}
	c, w := newBundleTestContext(`{"resourceType":"Bundle","type":"collection"}`)
	s.SubmitBundle(c)
	assert.Contains(t, w.Body.String(), "unsupported bundle type")
}

func TestSubmitBundle_GatesOnBatchInteractionToggle(t *testing.T) {
	cfg := newTestRuntimeCache()
	s := &Server{Config: cfg}
	c, w := newBundleTestContext(`{"resourceType":"Bundle","type":"batch"}`)
	// Bundle processor is nil, so if the gate didn't short-circuit this
	// would panic on s.Bundle.Process instead of returning 405.
	cfg.Set(runtimeconfig.InteractionsSystemBatch, json.RawMessage("false"))
	s.SubmitBundle(c)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHistoryCount_DefaultsTo100(t *testing.T) {
	c, _ := newBundleTestContext("")
	assert.Equal(t, 100, historyCount(c))
}

func TestHistoryCount_UsesCountQueryParam(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/Patient/_history?_count=5", nil)
	assert.Equal(t, 5, historyCount(c))
}

func TestHistoryCount_IgnoresInvalidCount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/Patient/_history?_count=nope", nil)
	assert.Equal(t, 100, historyCount(c))
}

func TestWriteHistoryBundle_MarksDeletedRowsAsDeleteMethod(t *testing.T) {
	s := &Server{}
	c, w := newBundleTestContext("")
	rows := []store.ResourceRow{
		{Type: "Patient", ID: "1", VersionID: 2, LastUpdated: time.Now(), Deleted: true},
		{Type: "Patient", ID: "1", VersionID: 1, LastUpdated: time.Now(), Body: []byte(`{"resourceType":"Patient","id":"1"}`)},
	}
	s.writeHistoryBundle(c, rows)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"method":"DELETE"`)
	assert.Contains(t, w.Body.String(), `"status":"204"`)
}
