package bundle

import (
	"strings"

	"github.com/fhirstore/zunder/internal/apperr"
	"github.com/fhirstore/zunder/internal/index"
	"github.com/fhirstore/zunder/internal/store"
	"github.com/fhirstore/zunder/pkg/fhirmodel"
)

// ProcessHistory sequentially replays a history bundle — each entry
// names an exact resourceType/id/_history/versionId and is written at
// that version directly rather than through NextVersion's counter
// allocation, so the replay reproduces the version sequence the bundle
// was captured with. Each entry commits independently and replay is
// idempotent: an entry whose version already exists is a no-op, so
// re-submitting the same bundle (after a partial failure, or simply
// twice) is safe. Grounded on spec §4.7's history mode and
// original_source's db/transaction.rs version-counter handling,
// generalized here to also accept an already-known target version.
func (p *Processor) ProcessHistory(b *fhirmodel.Bundle, opts Options) (*fhirmodel.Bundle, error) {
	audit := newTransactionAudit(fhirmodel.BundleTypeHistory)
	out := make([]fhirmodel.BundleEntry, len(b.Entry))

	for i, entry := range b.Entry {
		var respEntry fhirmodel.BundleEntry
		var rec auditEntry
		err := p.Store.WithTx(func(tx store.TxContext) error {
			respEntry, rec = p.replayHistoryEntry(tx, entry)
			if rec.errMsg != "" {
				return errRollbackOnly
			}
			return nil
		})
		if err != nil && err != errRollbackOnly {
			respEntry, rec = errEntry(entry, err)
		}
		out[i] = respEntry
		audit.appendEntry(i, rec)
	}

	if err := audit.flushDB(p.Store.Conn(), "completed", ""); err != nil {
		return nil, err
	}

	return &fhirmodel.Bundle{ResourceType: "Bundle", Type: fhirmodel.BundleTypeHistoryResponse, Entry: out}, nil
}

func (p *Processor) replayHistoryEntry(tx store.TxContext, entry fhirmodel.BundleEntry) (fhirmodel.BundleEntry, auditEntry) {
	if entry.Request == nil || entry.Request.URL == "" {
		return errEntry(entry, apperr.New(apperr.KindValidation, "history entry missing request url"))
	}
	u, err := parseEntryURL(entry.Request.URL)
	if err != nil {
		return errEntry(entry, err)
	}
	if u.ID == "" || u.VersionID == "" {
		return errEntry(entry, apperr.New(apperr.KindValidation, "history entry url must name an instance id and _history version"))
	}
	version, err := parseInt64(u.VersionID)
	if err != nil {
		return errEntry(entry, apperr.Newf(apperr.KindValidation, "invalid history version %q", u.VersionID))
	}

	exists, err := tx.VersionExists(u.ResourceType, u.ID, version)
	if err != nil {
		return errEntry(entry, apperr.Wrap(apperr.KindDatabase, err, "check existing version"))
	}
	if exists {
		resp := &fhirmodel.BundleEntryResponse{Status: "200", Etag: etag(version)}
		return fhirmodel.BundleEntry{FullURL: entry.FullURL, Response: resp},
			auditEntry{method: entry.Request.Method, url: entry.Request.URL, statusCode: 200, resourceType: u.ResourceType, resourceID: u.ID}
	}

	if err := tx.SyncVersionCounter(u.ResourceType, u.ID, version); err != nil {
		return errEntry(entry, apperr.Wrap(apperr.KindDatabase, err, "advance version counter"))
	}

	rawTx := tx.Tx()
	method := strings.ToUpper(entry.Request.Method)
	if method == "DELETE" {
		if err := tx.DeleteResource(u.ResourceType, u.ID, version); err != nil {
			return errEntry(entry, apperr.Wrap(apperr.KindDatabase, err, "write tombstone"))
		}
		if err := index.EnqueueJob(rawTx, u.ResourceType, u.ID, version); err != nil {
			return errEntry(entry, apperr.Wrap(apperr.KindDatabase, err, "enqueue index job"))
		}
		resp := &fhirmodel.BundleEntryResponse{Status: "204", Etag: etag(version)}
		return fhirmodel.BundleEntry{FullURL: entry.FullURL, Response: resp},
			auditEntry{method: "DELETE", url: entry.Request.URL, statusCode: 204, resourceType: u.ResourceType, resourceID: u.ID}
	}

	body := setResourceID(entry.Resource, u.ID)
	hash := contentHash(body)
	row := &store.ResourceRow{Type: u.ResourceType, ID: u.ID, VersionID: version, Body: body, ContentHash: &hash}
	if err := tx.CreateResource(row); err != nil {
		return errEntry(entry, apperr.Wrap(apperr.KindDatabase, err, "replay resource version"))
	}
	if err := p.afterWrite(rawTx, u.ResourceType, u.ID, version, body); err != nil {
		return errEntry(entry, err)
	}
	resp := &fhirmodel.BundleEntryResponse{Status: "200", Etag: etag(version)}
	return fhirmodel.BundleEntry{FullURL: entry.FullURL, Response: resp},
		auditEntry{method: method, url: entry.Request.URL, statusCode: 200, resourceType: u.ResourceType, resourceID: u.ID}
}
