package bundle

import (
	"strings"

	"github.com/fhirstore/zunder/internal/apperr"
	"github.com/fhirstore/zunder/internal/store"
	"github.com/fhirstore/zunder/pkg/fhirmodel"
)

// phaseRank orders bundle entries for transaction-mode execution: DELETE,
// then POST, then PUT/PATCH, then GET/HEAD (spec §4.7's processing
// order, grounded on original_source's db/transaction.rs phase split,
// which exists so a PUT can reference a resource a DELETE in the same
// bundle is removing space for, and a GET can read back what an earlier
// phase in the same bundle just wrote).
func phaseRank(method string) int {
	switch strings.ToUpper(method) {
	case "DELETE":
		return 0
	case "POST":
		return 1
	case "PUT", "PATCH":
		return 2
	default:
		return 3
	}
}

// ProcessTransaction runs every entry inside one atomic transaction:
// either all entries commit or none do. POST entries with a `urn:uuid:`
// fullUrl have their logical id pre-allocated before any entry runs, so
// an entry that runs before a given POST (an earlier POST in the same
// phase) can still carry a placeholder reference to the resource that
// POST creates. The first entry to fail aborts the whole transaction; that
// entry's error is what the caller reports (spec §4.7: "commit or
// rollback with the first offending entry").
func (p *Processor) ProcessTransaction(b *fhirmodel.Bundle, opts Options) (*fhirmodel.Bundle, error) {
	placeholders := seedPlaceholders(b)
	audit := newTransactionAudit(fhirmodel.BundleTypeTransaction)
	out := make([]fhirmodel.BundleEntry, len(b.Entry))

	order := make([]int, len(b.Entry))
	for i := range order {
		order[i] = i
	}
	sortByPhase(order, b.Entry)

	var firstFailure error
	txErr := p.Store.WithTx(func(tx store.TxContext) error {
		for _, i := range order {
			entry := b.Entry[i]
			respEntry, rec := p.executeEntry(tx, entry, opts, placeholders)
			out[i] = respEntry
			audit.appendEntry(i, rec)
			if rec.errMsg != "" && firstFailure == nil {
				firstFailure = apperr.Newf(apperr.KindBusinessRule,
					"transaction entry %d (%s %s) failed: %s", i, rec.method, rec.url, rec.errMsg)
			}
		}
		if firstFailure != nil {
			return firstFailure
		}
		return nil
	})

	if txErr != nil {
		_ = audit.flushDB(p.Store.Conn(), "rolled_back", txErr.Error())
		return nil, txErr
	}

	if err := audit.flushDB(p.Store.Conn(), "completed", ""); err != nil {
		return nil, err
	}

	return &fhirmodel.Bundle{ResourceType: "Bundle", Type: fhirmodel.BundleTypeTransactionResponse, Entry: out}, nil
}

// seedPlaceholders pre-allocates the logical id every POST entry with a
// `urn:uuid:` fullUrl will receive, before any entry actually executes,
// so an entry can carry a reference to a POST that runs after it.
func seedPlaceholders(b *fhirmodel.Bundle) map[string]string {
	placeholders := make(map[string]string, len(b.Entry))
	for _, entry := range b.Entry {
		if entry.Request == nil || !strings.EqualFold(entry.Request.Method, "POST") {
			continue
		}
		if !strings.HasPrefix(entry.FullURL, "urn:uuid:") {
			continue
		}
		parsed, err := parseEntryURL(entry.Request.URL)
		if err != nil {
			continue
		}
		id := ""
		if _, bodyID, err := resourceTypeAndID(entry.Resource); err == nil {
			id = bodyID
		}
		if id == "" {
			id = newLogicalID()
		}
		placeholders[entry.FullURL] = parsed.ResourceType + "/" + id
	}
	return placeholders
}

func sortByPhase(order []int, entries []fhirmodel.BundleEntry) {
	rank := func(i int) int {
		if entries[i].Request == nil {
			return 3
		}
		return phaseRank(entries[i].Request.Method)
	}
	// Stable insertion sort: bundles are small (spec §4.7's entry-count
	// cap), and this preserves original relative order within a phase.
	for i := 1; i < len(order); i++ {
		j := i
		for j > 0 && rank(order[j-1]) > rank(order[j]) {
			order[j-1], order[j] = order[j], order[j-1]
			j--
		}
	}
}
