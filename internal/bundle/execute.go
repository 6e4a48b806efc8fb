package bundle

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/fhirstore/zunder/internal/apperr"
	"github.com/fhirstore/zunder/internal/index"
	"github.com/fhirstore/zunder/internal/store"
	"github.com/fhirstore/zunder/pkg/fhirmodel"
	"github.com/jmoiron/sqlx"
)

// executeEntry runs one bundle entry's request against tx and returns the
// response entry to splice into the reply bundle, plus the audit row
// describing what happened. It is shared by batch mode (one call per
// independent transaction) and transaction mode (several calls sharing
// one transaction, already ordered DELETE/POST/PUT-PATCH/GET by the
// caller). placeholders maps `urn:uuid:...` fullUrls already allocated
// earlier in this bundle to their concrete `Type/id`, used both to
// rewrite references inside this entry's own body and (after a POST) to
// register this entry's own fullUrl for later entries to resolve against.
func (p *Processor) executeEntry(tx store.TxContext, entry fhirmodel.BundleEntry, opts Options, placeholders map[string]string) (fhirmodel.BundleEntry, auditEntry) {
	rawTx := tx.Tx()
	req := entry.Request
	if req == nil || req.Method == "" {
		return errEntry(entry, apperr.New(apperr.KindValidation, "bundle entry missing request"))
	}
	method := strings.ToUpper(req.Method)

	parsed, err := parseEntryURL(req.URL)
	if err != nil {
		return errEntry(entry, err)
	}

	switch method {
	case "GET", "HEAD":
		return p.executeRead(tx, parsed, entry)
	case "POST":
		return p.executeCreate(tx, rawTx, parsed, entry, opts, placeholders)
	case "PUT":
		return p.executeUpdate(tx, rawTx, parsed, entry, opts, placeholders, req.IfMatch, req.IfNoneMatch, "PUT")
	case "PATCH":
		return p.executeUpdate(tx, rawTx, parsed, entry, opts, placeholders, req.IfMatch, "", "PATCH")
	case "DELETE":
		return p.executeDelete(tx, rawTx, parsed, entry)
	default:
		return errEntry(entry, apperr.Newf(apperr.KindMethodNotAllowed, "unsupported bundle entry method %q", method))
	}
}

func errEntry(entry fhirmodel.BundleEntry, err error) (fhirmodel.BundleEntry, auditEntry) {
	appErr, ok := apperr.As(err)
	status := apperr.KindInternal.HTTPStatus()
	msg := err.Error()
	if ok {
		status = appErr.Kind.HTTPStatus()
		msg = appErr.Msg
	}
	var method, url string
	if entry.Request != nil {
		method, url = entry.Request.Method, entry.Request.URL
	}
	return fhirmodel.BundleEntry{FullURL: entry.FullURL, Response: errorResponse(err)},
		auditEntry{method: method, url: url, statusCode: status, errMsg: msg}
}

func (p *Processor) executeRead(tx store.TxContext, u entryURL, entry fhirmodel.BundleEntry) (fhirmodel.BundleEntry, auditEntry) {
	if u.ID == "" {
		return errEntry(entry, apperr.New(apperr.KindBusinessRule, "search is not supported inside a batch/transaction entry"))
	}
	var row *store.ResourceRow
	var err error
	if u.IsHistory && u.VersionID != "" {
		var vid int64
		if vid, err = parseInt64(u.VersionID); err == nil {
			row, err = tx.ReadVersion(u.ResourceType, u.ID, vid)
		}
	} else {
		row, err = tx.ReadCurrent(u.ResourceType, u.ID)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = apperr.Newf(apperr.KindNotFound, "%s/%s not found", u.ResourceType, u.ID)
		}
		return errEntry(entry, err)
	}
	if row.Deleted {
		return errEntry(entry, apperr.Newf(apperr.KindDeleted, "%s/%s is deleted", u.ResourceType, u.ID))
	}
	resp := &fhirmodel.BundleEntryResponse{Status: "200", Etag: etag(row.VersionID)}
	return fhirmodel.BundleEntry{FullURL: entry.FullURL, Resource: row.Body, Response: resp},
		auditEntry{method: "GET", url: entry.Request.URL, statusCode: 200, resourceType: u.ResourceType, resourceID: u.ID}
}

func (p *Processor) executeCreate(tx store.TxContext, rawTx *sqlx.Tx, u entryURL, entry fhirmodel.BundleEntry, opts Options, placeholders map[string]string) (fhirmodel.BundleEntry, auditEntry) {
	body, err := rewritePlaceholderReferences(rawTx, p.Engine, entry.Resource, placeholders)
	if err != nil {
		return errEntry(entry, err)
	}
	resourceType, bodyID, err := resourceTypeAndID(body)
	if err != nil {
		return errEntry(entry, err)
	}
	if resourceType != u.ResourceType {
		return errEntry(entry, apperr.Newf(apperr.KindInvalidResource, "entry resourceType %q does not match request url type %q", resourceType, u.ResourceType))
	}

	if entry.Request.IfNoneExist != "" {
		result, err := resolveConditionalCreate(p.Engine, rawTx, resourceType, entry.Request.IfNoneExist)
		if err != nil {
			return errEntry(entry, err)
		}
		if result.Matched {
			row, err := tx.ReadCurrent(resourceType, result.MatchID)
			if err != nil {
				return errEntry(entry, apperr.Wrap(apperr.KindDatabase, err, "read conditional-create match"))
			}
			resp := &fhirmodel.BundleEntryResponse{Status: "200", Location: location(opts.BaseURL, resourceType, result.MatchID, row.VersionID), Etag: etag(row.VersionID)}
			if entry.FullURL != "" {
				placeholders[entry.FullURL] = resourceType + "/" + result.MatchID
			}
			return fhirmodel.BundleEntry{FullURL: entry.FullURL, Response: resp},
				auditEntry{method: "POST", url: entry.Request.URL, statusCode: 200, resourceType: resourceType, resourceID: result.MatchID}
		}
	}

	id := bodyID
	if id == "" {
		id = placeholderTarget(entry.FullURL, placeholders)
	}

	version, err := tx.NextVersion(resourceType, id)
	if err != nil {
		return errEntry(entry, apperr.Wrap(apperr.KindDatabase, err, "allocate version"))
	}
	body = setResourceID(body, id)
	hash := contentHash(body)
	row := &store.ResourceRow{Type: resourceType, ID: id, VersionID: version, Body: body, ContentHash: &hash}
	if err := tx.CreateResource(row); err != nil {
		return errEntry(entry, apperr.Wrap(apperr.KindDatabase, err, "insert resource"))
	}
	if err := p.afterWrite(rawTx, resourceType, id, version, body); err != nil {
		return errEntry(entry, err)
	}
	if entry.FullURL != "" {
		placeholders[entry.FullURL] = resourceType + "/" + id
	}

	resp := entryResponse("201", location(opts.BaseURL, resourceType, id, version), version, opts.PreferReturn, body)
	var outBody []byte
	if opts.PreferReturn == fhirmodel.PreferReturnRepresentation {
		outBody = body
	}
	return fhirmodel.BundleEntry{FullURL: entry.FullURL, Resource: outBody, Response: resp},
		auditEntry{method: "POST", url: entry.Request.URL, statusCode: 201, resourceType: resourceType, resourceID: id}
}

func (p *Processor) executeUpdate(tx store.TxContext, rawTx *sqlx.Tx, u entryURL, entry fhirmodel.BundleEntry, opts Options, placeholders map[string]string, ifMatch, ifNoneMatch, method string) (fhirmodel.BundleEntry, auditEntry) {
	body, err := rewritePlaceholderReferences(rawTx, p.Engine, entry.Resource, placeholders)
	if err != nil {
		return errEntry(entry, err)
	}
	resourceType, bodyID, err := resourceTypeAndID(body)
	if err != nil {
		return errEntry(entry, err)
	}

	id := u.ID
	if id == "" {
		if u.Query == "" {
			return errEntry(entry, apperr.New(apperr.KindValidation, "update entry url has no instance id or search criteria"))
		}
		result, err := resolveConditionalTarget(p.Engine, rawTx, resourceType, u.Query)
		if err != nil {
			return errEntry(entry, err)
		}
		id = result.TargetID
	} else if bodyID != "" && bodyID != id {
		return errEntry(entry, apperr.New(apperr.KindInvalidResource, "entry resource id does not match request url id"))
	}

	if cond, err := parseIfNoneMatch(ifNoneMatch); err != nil {
		return errEntry(entry, err)
	} else if cond != nil {
		if err := checkIfNoneMatch(tx, resourceType, id, cond); err != nil {
			return errEntry(entry, err)
		}
	}

	current, readErr := tx.ReadCurrent(resourceType, id)
	created := errors.Is(readErr, sql.ErrNoRows)
	if readErr != nil && !created {
		return errEntry(entry, apperr.Wrap(apperr.KindDatabase, readErr, "check existing resource"))
	}
	if !created && ifMatch != "" {
		expected, err := parseETagVersion(ifMatch)
		if err != nil {
			return errEntry(entry, err)
		}
		if expected != current.VersionID {
			return errEntry(entry, apperr.Newf(apperr.KindVersionConflict, "expected version %d, current is %d", expected, current.VersionID))
		}
	}

	version, err := tx.NextVersion(resourceType, id)
	if err != nil {
		return errEntry(entry, apperr.Wrap(apperr.KindDatabase, err, "allocate version"))
	}
	body = setResourceID(body, id)
	hash := contentHash(body)
	row := &store.ResourceRow{Type: resourceType, ID: id, VersionID: version, Body: body, ContentHash: &hash}
	if err := tx.UpdateResource(row); err != nil {
		return errEntry(entry, apperr.Wrap(apperr.KindDatabase, err, "write resource"))
	}
	if err := p.afterWrite(rawTx, resourceType, id, version, body); err != nil {
		return errEntry(entry, err)
	}
	if entry.FullURL != "" {
		placeholders[entry.FullURL] = resourceType + "/" + id
	}

	status := "200"
	if created {
		status = "201"
	}
	resp := entryResponse(status, location(opts.BaseURL, resourceType, id, version), version, opts.PreferReturn, body)
	var outBody []byte
	if opts.PreferReturn == fhirmodel.PreferReturnRepresentation {
		outBody = body
	}
	return fhirmodel.BundleEntry{FullURL: entry.FullURL, Resource: outBody, Response: resp},
		auditEntry{method: method, url: entry.Request.URL, statusCode: statusInt(status), resourceType: resourceType, resourceID: id}
}

func (p *Processor) executeDelete(tx store.TxContext, rawTx *sqlx.Tx, u entryURL, entry fhirmodel.BundleEntry) (fhirmodel.BundleEntry, auditEntry) {
	id := u.ID
	if id == "" {
		if u.Query == "" {
			return errEntry(entry, apperr.New(apperr.KindValidation, "delete entry url has no instance id or search criteria"))
		}
		ids, err := p.Engine.FindIDsTx(rawTx, u.ResourceType, u.Query, 2)
		if err != nil {
			return errEntry(entry, err)
		}
		switch len(ids) {
		case 0:
			resp := &fhirmodel.BundleEntryResponse{Status: "204"}
			return fhirmodel.BundleEntry{FullURL: entry.FullURL, Response: resp},
				auditEntry{method: "DELETE", url: entry.Request.URL, statusCode: 204}
		case 1:
			id = ids[0]
		default:
			return errEntry(entry, apperr.Newf(apperr.KindPreconditionFailed, "conditional delete criteria %q matched more than one %s", u.Query, u.ResourceType))
		}
	}

	current, err := tx.ReadCurrent(u.ResourceType, id)
	if errors.Is(err, sql.ErrNoRows) {
		resp := &fhirmodel.BundleEntryResponse{Status: "204"}
		return fhirmodel.BundleEntry{FullURL: entry.FullURL, Response: resp},
			auditEntry{method: "DELETE", url: entry.Request.URL, statusCode: 204, resourceType: u.ResourceType, resourceID: id}
	}
	if err != nil {
		return errEntry(entry, apperr.Wrap(apperr.KindDatabase, err, "check existing resource"))
	}
	if current.Deleted {
		resp := &fhirmodel.BundleEntryResponse{Status: "204"}
		return fhirmodel.BundleEntry{FullURL: entry.FullURL, Response: resp},
			auditEntry{method: "DELETE", url: entry.Request.URL, statusCode: 204, resourceType: u.ResourceType, resourceID: id}
	}

	version, err := tx.NextVersion(u.ResourceType, id)
	if err != nil {
		return errEntry(entry, apperr.Wrap(apperr.KindDatabase, err, "allocate version"))
	}
	if err := tx.DeleteResource(u.ResourceType, id, version); err != nil {
		return errEntry(entry, apperr.Wrap(apperr.KindDatabase, err, "write tombstone"))
	}
	if err := index.EnqueueJob(rawTx, u.ResourceType, id, version); err != nil {
		return errEntry(entry, apperr.Wrap(apperr.KindDatabase, err, "enqueue index job"))
	}
	// DispatchDelete is meant to run against a committed delete; inside a
	// bundle entry's own in-flight transaction there is no committed view
	// to run it against yet, so it runs against the pool here instead.
	// Harmless for its cleanup queries (matched by type/id, not by
	// transaction visibility) and still best-effort/logged-only on error.
	p.Hooks.DispatchDelete(p.Store.Conn(), u.ResourceType, id)

	resp := &fhirmodel.BundleEntryResponse{Status: "204"}
	return fhirmodel.BundleEntry{FullURL: entry.FullURL, Response: resp},
		auditEntry{method: "DELETE", url: entry.Request.URL, statusCode: 204, resourceType: u.ResourceType, resourceID: id}
}

// afterWrite runs the standard post-write sequence every create/update
// entry shares: dispatch typed hooks, then enqueue the async index job.
func (p *Processor) afterWrite(rawTx *sqlx.Tx, resourceType, id string, version int64, body []byte) error {
	if err := p.Hooks.DispatchWrite(rawTx, resourceType, id, body); err != nil {
		return err
	}
	if err := index.EnqueueJob(rawTx, resourceType, id, version); err != nil {
		return apperr.Wrap(apperr.KindDatabase, err, "enqueue index job")
	}
	return nil
}

func checkIfNoneMatch(tx store.TxContext, resourceType, id string, cond *ifNoneMatchCondition) error {
	if cond.Any {
		if _, err := tx.ReadCurrent(resourceType, id); err == nil {
			return apperr.Newf(apperr.KindPreconditionFailed, "%s/%s already exists", resourceType, id)
		} else if !errors.Is(err, sql.ErrNoRows) {
			return apperr.Wrap(apperr.KindDatabase, err, "check existing resource")
		}
		return nil
	}
	exists, err := tx.VersionExists(resourceType, id, cond.Version)
	if err != nil {
		return apperr.Wrap(apperr.KindDatabase, err, "check existing version")
	}
	if exists {
		return apperr.Newf(apperr.KindPreconditionFailed, "%s/%s version %d already exists", resourceType, id, cond.Version)
	}
	return nil
}

// placeholderTarget allocates the logical id for a create entry whose
// resource body carried no id of its own: if an earlier phase already
// registered this entry's own fullUrl (transaction mode's POST id
// pre-allocation), reuse that id instead of minting a second one.
func placeholderTarget(fullURL string, placeholders map[string]string) string {
	if fullURL != "" {
		if existing, ok := placeholders[fullURL]; ok {
			if _, id, found := strings.Cut(existing, "/"); found {
				return id
			}
		}
	}
	return newLogicalID()
}

func setResourceID(body []byte, id string) []byte {
	var tree map[string]any
	if err := json.Unmarshal(body, &tree); err != nil {
		return body
	}
	tree["id"] = id
	out, err := json.Marshal(tree)
	if err != nil {
		return body
	}
	return out
}

func contentHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func parseInt64(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }

func statusInt(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func parseETagVersion(raw string) (int64, error) {
	v := strings.TrimPrefix(strings.TrimSpace(raw), "W/")
	v = strings.Trim(v, `"`)
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, apperr.Newf(apperr.KindValidation, "invalid If-Match value %q", raw)
	}
	return n, nil
}
