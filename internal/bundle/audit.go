package bundle

import (
	"github.com/jmoiron/sqlx"
)

// transactionAudit accumulates per-entry outcomes for one bundle run and
// flushes them to fhir_transactions/fhir_transaction_entries, the
// tracking tables spec §4.7 implies ("Processor writes tracking rows...
// timing, status, per-entry status codes") so a transaction's history
// can be inspected after the fact independent of the resources it
// touched.
type transactionAudit struct {
	id         string
	bundleType string
	entries    []auditEntry
}

type auditEntry struct {
	index        int
	method       string
	url          string
	statusCode   int
	resourceType string
	resourceID   string
	errMsg       string
}

func newTransactionAudit(bundleType string) *transactionAudit {
	return &transactionAudit{id: newLogicalID(), bundleType: bundleType}
}

func (a *transactionAudit) record(index int, method, url string, statusCode int, resourceType, resourceID, errMsg string) {
	a.entries = append(a.entries, auditEntry{
		index: index, method: method, url: url, statusCode: statusCode,
		resourceType: resourceType, resourceID: resourceID, errMsg: errMsg,
	})
}

// appendEntry records e (as returned by executeEntry) at bundle position i.
func (a *transactionAudit) appendEntry(i int, e auditEntry) {
	e.index = i
	a.entries = append(a.entries, e)
}

// flush writes the transaction header and every recorded entry inside
// tx, so a rolled-back bundle's audit trail rolls back with it and a
// committed bundle's audit trail commits atomically alongside the data
// it describes.
func (a *transactionAudit) flush(tx *sqlx.Tx, status string, errMsg string) error {
	if _, err := tx.Exec(`
		INSERT INTO fhir_transactions (id, bundle_type, status, started_at, finished_at, entry_count, error)
		VALUES ($1, $2, $3, now(), now(), $4, $5)
	`, a.id, a.bundleType, status, len(a.entries), nullIfEmptyStr(errMsg)); err != nil {
		return err
	}
	for _, e := range a.entries {
		if _, err := tx.Exec(`
			INSERT INTO fhir_transaction_entries
				(transaction_id, entry_index, method, url, status_code, resource_type, resource_id, error)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, a.id, e.index, e.method, e.url, e.statusCode,
			nullIfEmptyStr(e.resourceType), nullIfEmptyStr(e.resourceID), nullIfEmptyStr(e.errMsg)); err != nil {
			return err
		}
	}
	return nil
}

// flushDB is flush run in its own short transaction, for batch mode
// where each entry already committed independently by the time the
// audit trail is written.
func (a *transactionAudit) flushDB(db *sqlx.DB, status string, errMsg string) error {
	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := a.flush(tx, status, errMsg); err != nil {
		return err
	}
	return tx.Commit()
}

func nullIfEmptyStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
