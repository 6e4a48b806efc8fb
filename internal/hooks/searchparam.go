package hooks

import (
	"encoding/json"

	"github.com/jmoiron/sqlx"
)

// Invalidator is the subset of internal/search/lookup.Cache this hook
// needs; declared locally so hooks doesn't import lookup just to get a
// method signature (avoids a dependency cycle risk if lookup ever needs
// hooks for anything administrative).
type Invalidator interface {
	Invalidate()
}

// SearchParamHook clears the process-wide SearchParameter definition
// cache whenever a SearchParameter resource is written, so the next
// search/index pass picks up the change; the cache has no expiry of its
// own and keeps entries until invalidated (spec §4.8: "SearchParameter writes invalidate
// the parameter cache").
type SearchParamHook struct {
	cache Invalidator
}

func NewSearchParamHook(cache Invalidator) *SearchParamHook {
	return &SearchParamHook{cache: cache}
}

func (h *SearchParamHook) ResourceTypes() []string { return []string{"SearchParameter"} }

func (h *SearchParamHook) AfterWrite(tx *sqlx.Tx, resourceType, id string, body json.RawMessage) error {
	h.cache.Invalidate()
	return nil
}

func (h *SearchParamHook) AfterDelete(db *sqlx.DB, resourceType, id string) error {
	h.cache.Invalidate()
	return nil
}
