package bundle

import (
	"github.com/fhirstore/zunder/internal/store"
	"github.com/fhirstore/zunder/pkg/fhirmodel"
)

// ProcessBatch runs every entry in its own transaction, independent of
// every other entry: one entry's failure never rolls back another's
// success (spec §4.7's batch mode). Placeholder fullUrl references are
// still resolved against entries processed earlier in the same batch,
// matching common practice for the simple "create a handful of
// resources together" batches this mode is meant for, but an entry can
// never see another entry's writes before that entry's own transaction
// has committed — so a forward reference (an earlier entry pointing at
// a later one) will not resolve.
func (p *Processor) ProcessBatch(b *fhirmodel.Bundle, opts Options) (*fhirmodel.Bundle, error) {
	audit := newTransactionAudit(fhirmodel.BundleTypeBatch)
	placeholders := make(map[string]string, len(b.Entry))
	out := make([]fhirmodel.BundleEntry, len(b.Entry))

	for i, entry := range b.Entry {
		var respEntry fhirmodel.BundleEntry
		var rec auditEntry
		err := p.Store.WithTx(func(tx store.TxContext) error {
			respEntry, rec = p.executeEntry(tx, entry, opts, placeholders)
			if rec.errMsg != "" {
				// Roll back this entry's own transaction only; the error is
				// still reported through respEntry/rec, never propagated to
				// the bundle as a whole.
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

	status := "completed"
	if err := audit.flushDB(p.Store.Conn(), status, ""); err != nil {
		return nil, err
	}

	return &fhirmodel.Bundle{ResourceType: "Bundle", Type: fhirmodel.BundleTypeBatchResponse, Entry: out}, nil
}

// errRollbackOnly is a sentinel returned from inside WithTx to force a
// rollback of one failed entry's transaction without surfacing a Go
// error from ProcessBatch itself — the failure already lives in the
// entry's own response/audit record.
var errRollbackOnly = rollbackOnlyError{}

type rollbackOnlyError struct{}

func (rollbackOnlyError) Error() string { return "bundle entry rolled back independently" }
