// Package hooks implements C8: a small registry of typed post-write
// triggers that run inside a create/update's own transaction, before it
// commits, rebuilding the
// extracted tables a handful of resource types maintain outside the
// generic search-index path (spec §4.8). original_source kept only one
// hook file (hooks/terminology.rs); its ResourceHook trait itself wasn't
// retained, so the registry shape here follows this repo's own
// `internal/search/lookup.Cache`/`internal/index` convention of a small
// interface plus a slice-based dispatcher rather than copying Rust trait
// object machinery.
package hooks

import (
	"encoding/json"

	"github.com/fhirstore/zunder/pkg/logger"
	"github.com/jmoiron/sqlx"
)

// Hook reacts to a write of one of the resource types it declares
// interest in. AfterWrite runs inside the same store transaction as the
// write itself, so a hook failure can still roll the whole write back;
// AfterDelete runs best-effort after the row is gone
// and only logs on failure (spec §4.8: "delete best-effort deletes
// extracted rows by key").
type Hook interface {
	ResourceTypes() []string
	AfterWrite(tx *sqlx.Tx, resourceType, id string, body json.RawMessage) error
	AfterDelete(db *sqlx.DB, resourceType, id string) error
}

// Dispatcher fans a write or delete out to every Hook registered for
// that resource type.
type Dispatcher struct {
	byType map[string][]Hook
}

func NewDispatcher(registered ...Hook) *Dispatcher {
	d := &Dispatcher{byType: make(map[string][]Hook)}
	for _, h := range registered {
		for _, rt := range h.ResourceTypes() {
			d.byType[rt] = append(d.byType[rt], h)
		}
	}
	return d
}

// DispatchWrite runs every hook registered for resourceType inside tx,
// after the resource store's own create/update statements but before
// commit. Returning an error aborts the whole transaction (spec §4.8
// hooks fire "after commit" conceptually, but running them inside the
// same transaction that performed the write is what lets a hook failure
// veto the write rather than leaving extracted tables out of sync with
// a already-committed resource).
func (d *Dispatcher) DispatchWrite(tx *sqlx.Tx, resourceType, id string, body json.RawMessage) error {
	for _, h := range d.byType[resourceType] {
		if err := h.AfterWrite(tx, resourceType, id, body); err != nil {
			return err
		}
	}
	return nil
}

// DispatchDelete runs every hook registered for resourceType against db
// after a delete has committed. Failures are logged, never returned:
// a hook cleaning up extracted rows must not turn a successful delete
// into a client-visible error (spec §4.8: "best-effort").
func (d *Dispatcher) DispatchDelete(db *sqlx.DB, resourceType, id string) {
	for _, h := range d.byType[resourceType] {
		if err := h.AfterDelete(db, resourceType, id); err != nil {
			logger.WithFields(logger.Fields{
				"resource_type": resourceType,
				"id":            id,
				"error":         err,
			}).Warn("hook failed to clean up extracted rows after delete")
		}
	}
}

// RegisterDefault builds the dispatcher this server runs in production:
// search-parameter cache invalidation, membership-table rebuilds, and
// terminology extraction (spec §4.8's named hook set).
func RegisterDefault(invalidator Invalidator, db *sqlx.DB) *Dispatcher {
	return NewDispatcher(
		NewSearchParamHook(invalidator),
		NewMembershipHook(),
		NewTerminologyHook(),
	)
}
