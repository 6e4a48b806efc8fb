package api

import (
	"net/http"

	"github.com/fhirstore/zunder/internal/apperr"
	"github.com/fhirstore/zunder/internal/runtimeconfig"
	"github.com/fhirstore/zunder/pkg/fhirmodel"
	"github.com/gin-gonic/gin"
)

// Search handles GET /:type — a type-level search. The matched logical
// ids (C5's "Execute" step, internal/search.Engine) are each re-read from
// the store and assembled into a searchset Bundle (spec §4.5/§6); no
// separate batch-read exists yet, so this fetches one row per match,
// capped by search.max_count the same way the query itself is capped.
func (s *Server) Search(c *gin.Context) {
	s.runSearch(c, c.Param("type"))
}

// SystemSearch handles GET /_search (whole-system search, spec §6's
// system interaction set): every resource type named by a `_type`
// parameter is searched in turn and the matches are combined into one
// searchset bundle. A request without `_type` is rejected with 400.
func (s *Server) SystemSearch(c *gin.Context) {
	s.runSearch(c, "")
}

func (s *Server) runSearch(c *gin.Context, resourceType string) {
	maxCount := s.Config.GetInt(runtimeconfig.SearchMaxCount)
	defaultCount := s.Config.GetInt(runtimeconfig.SearchDefaultCount)
	rawQuery := c.Request.URL.RawQuery

	if resourceType != "" {
		s.searchOneType(c, resourceType, rawQuery, defaultCount, maxCount)
		return
	}

	// System-level search without a resourceType in the path: spec §6
	// only requires the `_type` parameter be honored to scope the union;
	// absent that, there is no single resources table scan that spans
	// every type at once, so this server requires `_type` at the system
	// level and reports 400 otherwise — a documented scope limit, not a
	// silent no-op.
	values := c.Request.URL.Query()
	types := values["_type"]
	if len(types) == 0 {
		writeError(c, apperr.New(apperr.KindValidation, "system-level search requires a _type parameter naming one or more resource types"))
		return
	}
	var entries []fhirmodel.BundleEntry
	for _, t := range types {
		ids, err := s.Engine.FindIDs(t, rawQuery, clampCount(defaultCount, maxCount))
		if err != nil {
			writeError(c, err)
			return
		}
		rows, err := s.readAll(t, ids)
		if err != nil {
			writeError(c, err)
			return
		}
		entries = append(entries, rows...)
	}
	writeBundle(c, http.StatusOK, &fhirmodel.Bundle{ResourceType: "Bundle", Type: fhirmodel.BundleTypeSearchset, Entry: entries})
}

func (s *Server) searchOneType(c *gin.Context, resourceType, rawQuery string, defaultCount, maxCount int) {
	ids, err := s.Engine.FindIDs(resourceType, rawQuery, clampCount(defaultCount, maxCount))
	if err != nil {
		writeError(c, err)
		return
	}
	entries, err := s.readAll(resourceType, ids)
	if err != nil {
		writeError(c, err)
		return
	}
	total := len(entries)
	writeBundle(c, http.StatusOK, &fhirmodel.Bundle{ResourceType: "Bundle", Type: fhirmodel.BundleTypeSearchset, Total: &total, Entry: entries})
}

func (s *Server) readAll(resourceType string, ids []string) ([]fhirmodel.BundleEntry, error) {
	entries := make([]fhirmodel.BundleEntry, 0, len(ids))
	for _, id := range ids {
		row, err := s.Store.Read(resourceType, id)
		if err != nil {
			if appErr, ok := apperr.As(err); ok && appErr.Kind == apperr.KindNotFound {
				continue // raced with a concurrent delete between FindIDs and Read
			}
			return nil, err
		}
		entries = append(entries, fhirmodel.BundleEntry{
			FullURL:  location(s.baseURLForBare(), resourceType, id, row.VersionID),
			Resource: row.Body,
		})
	}
	return entries, nil
}

// baseURLForBare gives a location(...) call a base URL when no
// *gin.Context is in scope; callers that do have one should use
// s.baseURLFor(c) to honor X-Forwarded-* instead. Kept to the
// process-static base path/host configured at startup.
func (s *Server) baseURLForBare() string { return s.StaticBaseURL }

func clampCount(defaultCount, maxCount int) int {
	if maxCount > 0 && defaultCount > maxCount {
		return maxCount
	}
	if defaultCount <= 0 {
		return maxCount
	}
	return defaultCount
}

// CompartmentSearch handles GET /:type/:id/:compartment — a Patient (or
// other) compartment search: every resource of :compartment referencing
// :type/:id through the compartment's membership, delegated to the
// search engine's reference-matching the same way a reverse chain would
// (spec §6 lists compartment search as an instance-scoped operation).
func (s *Server) CompartmentSearch(c *gin.Context) {
	resourceType, id, compartment := c.Param("type"), c.Param("id"), c.Param("compartment")
	rawQuery := c.Request.URL.RawQuery
	refParam := compartmentRefParam(compartment)
	query := refParam + "=" + resourceType + "/" + id
	if rawQuery != "" {
		query += "&" + rawQuery
	}
	s.searchOneType(c, compartment, query, s.Config.GetInt(runtimeconfig.SearchDefaultCount), s.Config.GetInt(runtimeconfig.SearchMaxCount))
}

// compartmentRefParam names the search parameter most clinical resource
// types use to reference their owning Patient compartment ("subject" for
// clinical-event resources, "patient" everywhere else). A full
// CompartmentDefinition-driven lookup (spec §4.3 resolves compartment
// membership generically for any compartment type) would walk the
// installed CompartmentDefinition resource instead of this hardcoded
// set; this is a deliberate scope cut to the common Patient-compartment
// case, noted in DESIGN.md.
func compartmentRefParam(resourceType string) string {
	switch resourceType {
	case "Observation", "Condition", "DiagnosticReport", "Procedure", "MedicationRequest", "Immunization":
		return "subject"
	default:
		return "patient"
	}
}
