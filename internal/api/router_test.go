package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fhirstore/zunder/internal/runtimeconfig"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRouter_HealthEndpointAlwaysUp(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := &Server{Config: newTestRuntimeCache(), Conformance: &fakeFhirContext{}}
	router := NewRouter(s)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestNewRouter_GatesDisabledInteractionBeforeHandlerRuns(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := newTestRuntimeCache()
	cfg.Set(runtimeconfig.InteractionsInstanceRead, json.RawMessage("false"))
	s := &Server{Config: cfg, Conformance: &fakeFhirContext{}}
	router := NewRouter(s)

	// Store is nil: if the toggle didn't short-circuit before s.Read ran,
	// this would panic on a nil-pointer dereference instead of returning 405.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/Patient/1", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestNewRouter_MetadataRouteIsGated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := newTestRuntimeCache()
	cfg.Set(runtimeconfig.InteractionsSystemCapabilities, json.RawMessage("false"))
	s := &Server{Config: cfg, Conformance: &fakeFhirContext{}}
	router := NewRouter(s)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metadata", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
