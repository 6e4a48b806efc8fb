package api

import (
	"github.com/fhirstore/zunder/internal/apperr"
	"github.com/fhirstore/zunder/internal/runtimeconfig"
	"github.com/gin-gonic/gin"
)

// requireEnabled answers the request with a 405 Method Not Allowed
// OperationOutcome if key is toggled off in the runtime-config cache
// (spec §4.9: interaction toggles gate whether a given CapabilityStatement
// interaction is even reachable, independent of the static route table).
// It returns false when the request was aborted so the caller can bail
// out of its handler immediately.
func requireEnabled(c *gin.Context, cfg *runtimeconfig.Cache, key runtimeconfig.ConfigKey) bool {
	if cfg.GetBool(key) {
		return true
	}
	writeError(c, apperr.Newf(apperr.KindMethodNotAllowed, "interaction %q is disabled on this server", key))
	return false
}

// gate wraps a gin.HandlerFunc so the interaction toggle is checked
// before the handler body runs at all, for routes registered in
// router.go rather than checked inline.
func gate(cfg *runtimeconfig.Cache, key runtimeconfig.ConfigKey, h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireEnabled(c, cfg, key) {
			return
		}
		h(c)
	}
}
