// Package bundle implements C7: the batch/transaction/history bundle
// processor (spec §4.7). Grounded on original_source's
// api/handlers/batch.rs (request dispatch, header/options plumbing),
// db/transaction.rs (the per-entry store calls), services/conditional.rs
// (conditional create/update/delete matching) and
// services/conditional_references.rs (in-body reference rewriting).
package bundle

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fhirstore/zunder/internal/apperr"
	"github.com/fhirstore/zunder/internal/hooks"
	"github.com/fhirstore/zunder/internal/runtimeconfig"
	"github.com/fhirstore/zunder/internal/search"
	"github.com/fhirstore/zunder/internal/store"
	"github.com/fhirstore/zunder/pkg/fhirmodel"
	"github.com/google/uuid"
)

// Processor is C7's entry point: one instance shared across requests,
// driving the resource store, search engine, and hook dispatcher that
// every bundle entry ultimately needs.
type Processor struct {
	Store  *store.ResourceStore
	Engine *search.Engine
	Hooks  *hooks.Dispatcher
	Config *runtimeconfig.Cache
}

func NewProcessor(s *store.ResourceStore, e *search.Engine, h *hooks.Dispatcher, cfg *runtimeconfig.Cache) *Processor {
	return &Processor{Store: s, Engine: e, Hooks: h, Config: cfg}
}

// Options carries the per-request context every bundle mode needs:
// the server's own base URL (for Location headers and resolving
// relative entry.request.url values) and the client's Prefer:return
// preference (spec §6's Prefer header handling, applied uniformly
// across entries).
type Options struct {
	BaseURL      string
	PreferReturn fhirmodel.PreferReturn
}

// Process dispatches to the mode-specific processor named by
// bundle.Type, the three bundle types spec §4.7 names.
func (p *Processor) Process(b *fhirmodel.Bundle, opts Options) (*fhirmodel.Bundle, error) {
	if err := p.checkEntryLimit(b); err != nil {
		return nil, err
	}
	switch b.Type {
	case fhirmodel.BundleTypeBatch:
		return p.ProcessBatch(b, opts)
	case fhirmodel.BundleTypeTransaction:
		return p.ProcessTransaction(b, opts)
	case fhirmodel.BundleTypeHistory:
		return p.ProcessHistory(b, opts)
	default:
		return nil, apperr.Newf(apperr.KindInvalidResource, "unsupported bundle type %q", b.Type)
	}
}

func (p *Processor) checkEntryLimit(b *fhirmodel.Bundle) error {
	max := p.Config.GetInt(runtimeconfig.BundleMaxEntries)
	if max > 0 && len(b.Entry) > max {
		return apperr.Newf(apperr.KindBusinessRule, "bundle has %d entries, exceeding the configured maximum of %d", len(b.Entry), max)
	}
	return nil
}

// entryURL is a parsed Bundle.entry.request.url: a resource-type-scoped
// path with an optional instance id, sub-path (_history, $operation),
// and a raw search/conditional query string.
type entryURL struct {
	ResourceType string
	ID           string
	VersionID    string // set for .../_history/{vid}
	IsHistory    bool
	Operation    string // set for $op entries, without the leading $
	Query        string // everything after '?'
}

func parseEntryURL(raw string) (entryURL, error) {
	path, query, _ := strings.Cut(raw, "?")
	path = strings.TrimPrefix(strings.TrimPrefix(path, "/"), "fhir/")
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return entryURL{}, apperr.Newf(apperr.KindValidation, "empty entry request url")
	}

	u := entryURL{ResourceType: segments[0], Query: query}
	rest := segments[1:]
	for i := 0; i < len(rest); i++ {
		seg := rest[i]
		switch {
		case strings.HasPrefix(seg, "$"):
			u.Operation = strings.TrimPrefix(seg, "$")
		case seg == "_history":
			u.IsHistory = true
			if i+1 < len(rest) {
				u.VersionID = rest[i+1]
				i++
			}
		case u.ID == "":
			u.ID = seg
		}
	}
	return u, nil
}

// resourceTypeAndID extracts resourceType/id from a json resource body,
// tolerating a missing id (POST entries allocate one).
func resourceTypeAndID(body []byte) (string, string, error) {
	var meta struct {
		ResourceType string `json:"resourceType"`
		ID           string `json:"id"`
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		return "", "", apperr.Wrap(apperr.KindInvalidResource, err, "parse entry resource")
	}
	if meta.ResourceType == "" {
		return "", "", apperr.New(apperr.KindInvalidResource, "entry resource missing resourceType")
	}
	return meta.ResourceType, meta.ID, nil
}

func newLogicalID() string { return uuid.NewString() }

func etag(versionID int64) string { return fmt.Sprintf(`W/"%d"`, versionID) }

func location(baseURL, resourceType, id string, versionID int64) string {
	return fmt.Sprintf("%s/%s/%s/_history/%d", strings.TrimSuffix(baseURL, "/"), resourceType, id, versionID)
}

func lastModified(t time.Time) string { return t.UTC().Format(http_TimeFormat) }

const http_TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// entryResponse builds Bundle.entry.response for a successful write,
// honoring Prefer:return (spec §6): minimal omits the body, representation
// echoes the stored resource, operationoutcome always attaches a success
// OperationOutcome instead.
func entryResponse(status string, loc string, versionID int64, prefer fhirmodel.PreferReturn, body []byte) *fhirmodel.BundleEntryResponse {
	resp := &fhirmodel.BundleEntryResponse{
		Status:       status,
		Location:     loc,
		Etag:         etag(versionID),
		LastModified: lastModified(time.Now()),
	}
	switch prefer {
	case fhirmodel.PreferReturnOperationOutcome:
		resp.Outcome = fhirmodel.NewOperationOutcome(fhirmodel.IssueSeverityInfo, "informational", "write succeeded")
	case fhirmodel.PreferReturnRepresentation:
		// The caller attaches Resource on the BundleEntry itself, not the
		// response sub-object, matching how a direct (non-bundle) write
		// returns the representation as the HTTP body rather than nested
		// under response.
	}
	return resp
}

func errorResponse(err error) *fhirmodel.BundleEntryResponse {
	appErr, ok := apperr.As(err)
	kind := apperr.KindInternal
	msg := err.Error()
	if ok {
		kind = appErr.Kind
		msg = appErr.Msg
	}
	return &fhirmodel.BundleEntryResponse{
		Status:  strconv.Itoa(kind.HTTPStatus()),
		Outcome: fhirmodel.NewOperationOutcome(fhirmodel.IssueSeverityError, kind.IssueCode(), msg),
	}
}
