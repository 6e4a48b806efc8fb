// Package conformance implements C3: resolving a canonical URL (and
// optional version) to a conformance resource (StructureDefinition,
// ValueSet, CodeSystem, SearchParameter, ...), materializing differential
// snapshots, and deep-expanding element types. Grounded on
// original_source's conformance.rs (DbConformanceProvider/
// FlexibleFhirContext/EmptyConformanceProvider split), adapted to the
// teacher's repository-over-sqlx pattern instead of an async trait object.
package conformance

import (
	"encoding/json"
	"sync"

	"github.com/fhirstore/zunder/internal/apperr"
	"github.com/jmoiron/sqlx"
)

// ResourceProvider is the narrow persistence capability FhirContext needs:
// list every current version sharing a canonical URL, or fetch one exact
// (url, version) pair. Implemented by a Postgres-backed provider and by an
// empty stub for indexing-path evaluation (spec §4.3 / original_source's
// EmptyConformanceProvider, used to avoid lock contention while indexing).
type ResourceProvider interface {
	ListByCanonical(canonicalURL string) ([]json.RawMessage, error)
	GetByCanonicalAndVersion(canonicalURL, version string) (json.RawMessage, bool, error)
}

// FhirContext resolves conformance resources and their deep-expanded
// snapshots.
type FhirContext interface {
	Resolve(canonicalURL, version string) (json.RawMessage, bool, error)
	Snapshot(canonicalURL, version string) (*ExpandedSnapshot, error)
}

// dbProvider reads conformance resources from the resources table by
// canonical_url/canonical_version, mirroring DbConformanceProvider.
type dbProvider struct {
	db *sqlx.DB
}

func NewDBProvider(db *sqlx.DB) ResourceProvider { return &dbProvider{db: db} }

func (p *dbProvider) ListByCanonical(canonicalURL string) ([]json.RawMessage, error) {
	var bodies []json.RawMessage
	err := p.db.Select(&bodies, `
		SELECT body FROM resources
		WHERE canonical_url = $1 AND is_current AND NOT deleted
	`, canonicalURL)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, err, "list conformance resources by canonical url")
	}
	return bodies, nil
}

func (p *dbProvider) GetByCanonicalAndVersion(canonicalURL, version string) (json.RawMessage, bool, error) {
	var body json.RawMessage
	err := p.db.Get(&body, `
		SELECT body FROM resources
		WHERE canonical_url = $1 AND canonical_version = $2 AND is_current AND NOT deleted
	`, canonicalURL, version)
	if err != nil {
		return nil, false, nil
	}
	return body, true, nil
}

// EmptyProvider never resolves anything. Used for indexing-path expression
// evaluation: the type pass falls back to dynamic typing, which is
// sufficient because the indexer never needs static type errors, only
// runtime navigation (spec §4.3's "used for FHIRPath evaluation during
// indexing to avoid deadlocks" rationale).
type EmptyProvider struct{}

func (EmptyProvider) ListByCanonical(string) ([]json.RawMessage, error) { return nil, nil }
func (EmptyProvider) GetByCanonicalAndVersion(string, string) (json.RawMessage, bool, error) {
	return nil, false, nil
}

// flexibleContext is the default FhirContext: resolves against a
// ResourceProvider and memoizes snapshot materialization per (url,
// version) under a shared-across-readers lock (spec §4.3).
type flexibleContext struct {
	provider ResourceProvider

	mu        sync.RWMutex
	snapshots map[string]*ExpandedSnapshot
	inflight  map[string]*sync.WaitGroup
}

func NewFlexibleContext(provider ResourceProvider) FhirContext {
	return &flexibleContext{
		provider:  provider,
		snapshots: make(map[string]*ExpandedSnapshot),
		inflight:  make(map[string]*sync.WaitGroup),
	}
}

func (c *flexibleContext) Resolve(canonicalURL, version string) (json.RawMessage, bool, error) {
	if version != "" {
		return c.provider.GetByCanonicalAndVersion(canonicalURL, version)
	}
	bodies, err := c.provider.ListByCanonical(canonicalURL)
	if err != nil {
		return nil, false, err
	}
	if len(bodies) == 0 {
		return nil, false, nil
	}
	return bodies[0], true, nil
}

func snapshotKey(url, version string) string { return url + "|" + version }

// Snapshot returns the memoized, deep-expanded snapshot for (url,
// version), materializing it on first request. Concurrent requests for
// the same key wait on the same materialization instead of duplicating
// the work (spec §4.3: "computation runs once per key").
func (c *flexibleContext) Snapshot(canonicalURL, version string) (*ExpandedSnapshot, error) {
	key := snapshotKey(canonicalURL, version)

	c.mu.RLock()
	if snap, ok := c.snapshots[key]; ok {
		c.mu.RUnlock()
		return snap, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	if snap, ok := c.snapshots[key]; ok {
		c.mu.Unlock()
		return snap, nil
	}
	if wg, inProgress := c.inflight[key]; inProgress {
		c.mu.Unlock()
		wg.Wait()
		c.mu.RLock()
		snap := c.snapshots[key]
		c.mu.RUnlock()
		return snap, nil
	}
	wg := &sync.WaitGroup{}
	wg.Add(1)
	c.inflight[key] = wg
	c.mu.Unlock()

	snap, err := c.materialize(canonicalURL, version, make(map[string]bool))

	c.mu.Lock()
	if err == nil {
		c.snapshots[key] = snap
	}
	delete(c.inflight, key)
	wg.Done()
	c.mu.Unlock()

	return snap, err
}
