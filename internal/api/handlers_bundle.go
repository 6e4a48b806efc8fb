package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/fhirstore/zunder/internal/apperr"
	"github.com/fhirstore/zunder/internal/bundle"
	"github.com/fhirstore/zunder/internal/runtimeconfig"
	"github.com/fhirstore/zunder/internal/store"
	"github.com/fhirstore/zunder/pkg/fhirmodel"
	"github.com/gin-gonic/gin"
)

// SubmitBundle handles POST /[base] — a batch or transaction submission
// (spec §4.7/§6). The bundle's own `type` picks batch vs transaction vs
// history-replay; this handler only validates the envelope is a Bundle
// and gates on the matching interaction toggle before handing off to
// internal/bundle.Processor.
func (s *Server) SubmitBundle(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		writeError(c, err)
		return
	}
	var b fhirmodel.Bundle
	if err := json.Unmarshal(body, &b); err != nil {
		writeError(c, apperr.Wrap(apperr.KindInvalidResource, err, "parse request bundle"))
		return
	}
	if b.ResourceType != "Bundle" {
		writeError(c, apperr.New(apperr.KindInvalidResource, "request body must be a Bundle"))
		return
	}

	var gateKey runtimeconfig.ConfigKey
	switch b.Type {
	case fhirmodel.BundleTypeBatch:
		gateKey = runtimeconfig.InteractionsSystemBatch
	case fhirmodel.BundleTypeTransaction:
		gateKey = runtimeconfig.InteractionsSystemTransaction
	case fhirmodel.BundleTypeHistory:
		gateKey = runtimeconfig.InteractionsSystemHistoryBundle
	default:
		writeError(c, apperr.Newf(apperr.KindInvalidResource, "unsupported bundle type %q", b.Type))
		return
	}
	if !requireEnabled(c, s.Config, gateKey) {
		return
	}

	prefer, _ := parsePrefer(c)
	result, err := s.Bundle.Process(&b, bundle.Options{BaseURL: s.baseURLFor(c), PreferReturn: prefer})
	if err != nil {
		writeError(c, err)
		return
	}
	writeBundle(c, http.StatusOK, result)
}

// SystemHistory handles GET /_history.
func (s *Server) SystemHistory(c *gin.Context) {
	rows, err := s.Store.SystemHistory(historyCount(c))
	if err != nil {
		writeError(c, err)
		return
	}
	s.writeHistoryBundle(c, rows)
}

// TypeHistory handles GET /:type/_history.
func (s *Server) TypeHistory(c *gin.Context) {
	rows, err := s.Store.TypeHistory(c.Param("type"), historyCount(c))
	if err != nil {
		writeError(c, err)
		return
	}
	s.writeHistoryBundle(c, rows)
}

// InstanceHistory handles GET /:type/:id/_history.
func (s *Server) InstanceHistory(c *gin.Context) {
	rows, err := s.Store.History(c.Param("type"), c.Param("id"), historyCount(c))
	if err != nil {
		writeError(c, err)
		return
	}
	s.writeHistoryBundle(c, rows)
}

func historyCount(c *gin.Context) int {
	if raw := c.Query("_count"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return 100
}

func (s *Server) writeHistoryBundle(c *gin.Context, rows []store.ResourceRow) {
	entries := make([]fhirmodel.BundleEntry, 0, len(rows))
	base := s.baseURLFor(c)
	for _, row := range rows {
		entry := fhirmodel.BundleEntry{
			FullURL: location(base, row.Type, row.ID, row.VersionID),
			Request: &fhirmodel.BundleEntryRequest{Method: "PUT", URL: row.Type + "/" + row.ID},
		}
		status := "200"
		if row.Deleted {
			status = "204"
			entry.Request.Method = "DELETE"
		}
		entry.Response = &fhirmodel.BundleEntryResponse{
			Status:       status,
			Etag:         etag(row.VersionID),
			LastModified: lastModifiedHeader(row.LastUpdated),
		}
		if !row.Deleted {
			entry.Resource = row.Body
		}
		entries = append(entries, entry)
	}
	writeBundle(c, http.StatusOK, &fhirmodel.Bundle{ResourceType: "Bundle", Type: fhirmodel.BundleTypeHistory, Entry: entries})
}
