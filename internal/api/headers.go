package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fhirstore/zunder/pkg/fhirmodel"
	"github.com/gin-gonic/gin"
)

const httpTimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// fhirJSON is the media type every response body is written as; the
// server only implements the JSON wire format (spec §6 Non-goals
// exclude XML).
const fhirJSON = "application/fhir+json"

func etag(versionID int64) string { return fmt.Sprintf(`W/"%d"`, versionID) }

func lastModifiedHeader(t time.Time) string { return t.UTC().Format(httpTimeFormat) }

func location(baseURL, resourceType, id string, versionID int64) string {
	return fmt.Sprintf("%s/%s/%s/_history/%d", strings.TrimSuffix(baseURL, "/"), resourceType, id, versionID)
}

// parsePrefer reads the Prefer request header (spec §6: return=minimal
// |representation|OperationOutcome, handling=strict|lenient).
func parsePrefer(c *gin.Context) (fhirmodel.PreferReturn, fhirmodel.PreferHandling) {
	ret := fhirmodel.PreferReturnMinimal
	handling := fhirmodel.PreferHandlingStrict
	for _, part := range strings.Split(c.GetHeader("Prefer"), ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, val := strings.TrimSpace(kv[0]), strings.Trim(strings.TrimSpace(kv[1]), `"`)
		switch key {
		case "return":
			switch val {
			case "representation":
				ret = fhirmodel.PreferReturnRepresentation
			case "OperationOutcome":
				ret = fhirmodel.PreferReturnOperationOutcome
			default:
				ret = fhirmodel.PreferReturnMinimal
			}
		case "handling":
			if val == "lenient" {
				handling = fhirmodel.PreferHandlingLenient
			}
		}
	}
	return ret, handling
}

// parseIfMatch extracts the expected version from an If-Match header,
// stripping the weak-validator prefix and surrounding quotes FHIR
// servers commonly emit (spec §6: "If-Match: W/\"<versionId>\"").
func parseIfMatch(c *gin.Context) (*int64, error) {
	raw := strings.TrimSpace(c.GetHeader("If-Match"))
	if raw == "" {
		return nil, nil
	}
	raw = strings.TrimPrefix(raw, "W/")
	raw = strings.Trim(raw, `"`)
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid If-Match header %q", raw)
	}
	return &n, nil
}

// writeHistoryHeaders sets the Location/ETag/Last-Modified headers a
// successful create/update/delete always carries (spec §6).
func writeHistoryHeaders(c *gin.Context, baseURL, resourceType, id string, versionID int64, lastUpdated time.Time) {
	c.Header("Location", location(baseURL, resourceType, id, versionID))
	c.Header("ETag", etag(versionID))
	c.Header("Last-Modified", lastModifiedHeader(lastUpdated))
}

// baseURL derives the server's externally-visible base URL from the
// incoming request, honoring a reverse proxy's X-Forwarded-* headers
// the way the teacher's RequestLogger already reads client-facing
// request metadata (c.ClientIP()) rather than trusting only the raw
// connection.
func baseURL(c *gin.Context, basePath string) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	host := c.Request.Host
	if fwd := c.GetHeader("X-Forwarded-Host"); fwd != "" {
		host = fwd
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, basePath)
}
