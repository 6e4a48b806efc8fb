package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/fhirstore/zunder/internal/config"
	"github.com/fhirstore/zunder/internal/runtimeconfig"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func newTestRuntimeCache() *runtimeconfig.Cache {
	return runtimeconfig.NewCache(&config.Config{LogLevel: logrus.InfoLevel})
}

func TestGate_RunsHandlerWhenInteractionEnabled(t *testing.T) {
	cfg := newTestRuntimeCache()
	c, w := newRecordedTestContext()

	called := false
	gate(cfg, runtimeconfig.InteractionsTypeCreate, func(c *gin.Context) {
		called = true
		c.Status(http.StatusOK)
	})(c)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGate_ShortCircuitsWhenInteractionDisabled(t *testing.T) {
	cfg := newTestRuntimeCache()
	cfg.Set(runtimeconfig.InteractionsTypeCreate, json.RawMessage("false"))
	c, w := newRecordedTestContext()

	called := false
	gate(cfg, runtimeconfig.InteractionsTypeCreate, func(c *gin.Context) {
		called = true
	})(c)

	assert.False(t, called)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRequireEnabled_ReturnsTrueWhenEnabled(t *testing.T) {
	cfg := newTestRuntimeCache()
	c, _ := newRecordedTestContext()
	assert.True(t, requireEnabled(c, cfg, runtimeconfig.InteractionsTypeCreate))
}

func TestRequireEnabled_WritesOutcomeWhenDisabled(t *testing.T) {
	cfg := newTestRuntimeCache()
	cfg.Set(runtimeconfig.InteractionsInstanceDelete, json.RawMessage("false"))
	c, w := newRecordedTestContext()
	assert.False(t, requireEnabled(c, cfg, runtimeconfig.InteractionsInstanceDelete))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
