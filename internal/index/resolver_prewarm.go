package index

import (
	"encoding/json"
	"strings"

	"github.com/fhirstore/zunder/internal/fhirpath"
	"github.com/jmoiron/sqlx"
)

// IndexingResolver backs FHIRPath's `resolve()` during search-parameter
// extraction (e.g. `subject.where(resolve() is Patient)`): an LRU cache
// pre-warmed with every reference found on the resource being indexed,
// falling back to a direct lookup, and finally a type-only stub so
// `resolve()` never blocks indexing on a slow or missing target (spec
// §4.4 / §4.1).
type IndexingResolver struct {
	db        *sqlx.DB
	lru       *fhirpath.LRUResolver
	fullURLs  map[string]string // Bundle.entry.fullUrl -> "Type/id", seeded per transaction
}

func NewIndexingResolver(db *sqlx.DB, cacheSize int) *IndexingResolver {
	r := &IndexingResolver{db: db, fullURLs: make(map[string]string)}
	r.lru = fhirpath.NewLRUResolver(cacheSize, r.backingResolve)
	return r
}

// SeedFullURLMapping lets a transaction bundle register its placeholder
// `urn:uuid:...` fullUrls before indexing entries that reference each
// other (spec §4.7's placeholder rewriting feeds this).
func (r *IndexingResolver) SeedFullURLMapping(mapping map[string]string) {
	for from, to := range mapping {
		r.fullURLs[from] = to
	}
}

// PrewarmForResource resolves and caches every reference found on body
// up front, so the FHIRPath evaluation that follows never blocks inside
// the VM's single-threaded Run call.
func (r *IndexingResolver) PrewarmForResource(body json.RawMessage) {
	for _, ref := range extractAllReferences(body) {
		r.lru.Resolve(ref)
	}
}

func (r *IndexingResolver) Resolve(reference string) (fhirpath.Value, bool) {
	if mapped, ok := r.fullURLs[reference]; ok {
		reference = mapped
	}
	return r.lru.Resolve(reference)
}

func (r *IndexingResolver) backingResolve(reference string) (fhirpath.Value, bool) {
	if r.db == nil {
		return stubResolve(reference)
	}
	resourceType, id, ok := splitRelativeReference(reference)
	if !ok {
		return stubResolve(reference)
	}
	var raw json.RawMessage
	err := r.db.Get(&raw, `SELECT body FROM resources WHERE resource_type = $1 AND id = $2 AND is_current AND NOT deleted`, resourceType, id)
	if err != nil {
		return stubResolve(reference)
	}
	return fhirpath.NewLazy(&raw, nil), true
}

func stubResolve(reference string) (fhirpath.Value, bool) {
	resourceType, id, ok := splitRelativeReference(reference)
	if !ok {
		return fhirpath.Empty(), false
	}
	stubBytes, _ := json.Marshal(map[string]string{"resourceType": resourceType, "id": id})
	stub := json.RawMessage(stubBytes)
	return fhirpath.NewLazy(&stub, nil), true
}

func splitRelativeReference(reference string) (resourceType, id string, ok bool) {
	reference = strings.TrimPrefix(reference, "#")
	parts := strings.SplitN(reference, "/", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	id = parts[1]
	if idx := strings.Index(id, "/_history/"); idx >= 0 {
		id = id[:idx]
	}
	return parts[0], id, id != "" && parts[0] != ""
}

// extractAllReferences walks the whole document collecting every
// `{"reference": "..."}` literal, used to prewarm the resolver cache
// before FHIRPath evaluation runs.
func extractAllReferences(body json.RawMessage) []string {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil
	}
	var out []string
	walkReferences(v, &out)
	return out
}

func walkReferences(v any, out *[]string) {
	switch t := v.(type) {
	case map[string]any:
		if ref, ok := t["reference"].(string); ok && ref != "" {
			*out = append(*out, ref)
		}
		for _, val := range t {
			walkReferences(val, out)
		}
	case []any:
		for _, item := range t {
			walkReferences(item, out)
		}
	}
}
