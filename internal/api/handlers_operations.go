package api

import (
	"encoding/json"
	"net/http"

	"github.com/fhirstore/zunder/internal/apperr"
	"github.com/fhirstore/zunder/pkg/fhirmodel"
	"github.com/gin-gonic/gin"
)

// Validate handles POST /$validate (and the type- and instance-level
// $validate routes): every profile listed in meta.profile is resolved
// through spec §4.3's conformance context, and the first one that fails
// to resolve or is not installed is reported. A resource that declares
// no profile is reported as having no issues; no base-type profile is
// looked up in its place, and the resource is not checked element by
// element against any profile's snapshot.
func (s *Server) Validate(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		writeError(c, err)
		return
	}
	var meta struct {
		ResourceType string   `json:"resourceType"`
		Meta         struct {
			Profile []string `json:"profile"`
		} `json:"meta"`
	}
	if jerr := json.Unmarshal(body, &meta); jerr != nil {
		writeError(c, apperr.Wrap(apperr.KindInvalidResource, jerr, "parse resource for validation"))
		return
	}
	if meta.ResourceType == "" {
		writeOutcome(c, http.StatusOK, fhirmodel.IssueSeverityError, "structure", "resource missing resourceType")
		return
	}
	if pathType := c.Param("type"); pathType != "" && pathType != meta.ResourceType {
		writeOutcome(c, http.StatusOK, fhirmodel.IssueSeverityError, "invalid",
			"resource type "+meta.ResourceType+" does not match the operation's resource type "+pathType)
		return
	}

	for _, profile := range meta.Meta.Profile {
		if _, ok, err := s.Conformance.Resolve(profile, ""); err != nil {
			writeOutcome(c, http.StatusOK, fhirmodel.IssueSeverityError, "exception", "failed to resolve profile "+profile+": "+err.Error())
			return
		} else if !ok {
			writeOutcome(c, http.StatusOK, fhirmodel.IssueSeverityWarning, "not-found", "declared profile "+profile+" is not installed on this server")
			return
		}
	}
	writeOutcome(c, http.StatusOK, fhirmodel.IssueSeverityInfo, "informational", "no issues detected")
}

func writeOutcome(c *gin.Context, status int, severity, code, diagnostics string) {
	c.Header("Content-Type", fhirJSON)
	c.JSON(status, fhirmodel.NewOperationOutcome(severity, code, diagnostics))
}
