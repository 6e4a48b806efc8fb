// Package lookup implements the "Resolve" stage of C5: looking up a
// search-parameter name against the active SearchParameter definitions for
// a resource type, falling back to DomainResource and Resource (spec
// §4.5). Definitions are cached and invalidated by C8 hooks whenever a
// SearchParameter resource is written.
package lookup

import (
	"encoding/json"
	"sync"

	"github.com/fhirstore/zunder/pkg/fhirmodel"
	"github.com/jmoiron/sqlx"
)

// DefinitionStore reads installed SearchParameter resources.
type DefinitionStore interface {
	ListActive(resourceType string) ([]fhirmodel.SearchParameterDefinition, error)
}

type dbDefinitionStore struct {
	db *sqlx.DB
}

func NewDBDefinitionStore(db *sqlx.DB) DefinitionStore { return &dbDefinitionStore{db: db} }

type searchParameterBody struct {
	URL        string   `json:"url"`
	Code       string   `json:"code"`
	Base       []string `json:"base"`
	Type       string   `json:"type"`
	Expression string   `json:"expression"`
	Target     []string `json:"target,omitempty"`
	Component  []struct {
		Definition string `json:"definition"`
		Expression string `json:"expression"`
	} `json:"component,omitempty"`
}

func (s *dbDefinitionStore) ListActive(resourceType string) ([]fhirmodel.SearchParameterDefinition, error) {
	var bodies []json.RawMessage
	err := s.db.Select(&bodies, `
		SELECT body FROM resources
		WHERE resource_type = 'SearchParameter' AND is_current AND NOT deleted
	`)
	if err != nil {
		return nil, err
	}

	var defs []fhirmodel.SearchParameterDefinition
	for _, raw := range bodies {
		var sp searchParameterBody
		if err := json.Unmarshal(raw, &sp); err != nil {
			continue
		}
		if !containsBase(sp.Base, resourceType) {
			continue
		}
		def := fhirmodel.SearchParameterDefinition{
			Code: sp.Code, ResourceType: resourceType,
			Type: fhirmodel.SearchParamType(sp.Type), Expression: sp.Expression,
			Targets: sp.Target, CanonicalURL: sp.URL,
		}
		for _, c := range sp.Component {
			def.Components = append(def.Components, fhirmodel.SearchParamComponent{
				Definition: c.Definition, Expression: c.Expression,
			})
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func containsBase(bases []string, resourceType string) bool {
	for _, b := range bases {
		if b == resourceType || b == "Resource" || b == "DomainResource" {
			return true
		}
	}
	return false
}

// Cache holds the active search-parameter definitions per resource type,
// keyed by (type, code) for O(1) lookup with fallback to DomainResource
// and Resource base types (spec §4.5's "Resolve" rule). Invalidated
// wholesale by C8 on any SearchParameter write — the working set is small
// enough that a full rebuild is cheap and simpler than per-entry eviction.
type Cache struct {
	store DefinitionStore

	mu      sync.RWMutex
	byType  map[string]map[string]fhirmodel.SearchParameterDefinition
	loaded  map[string]bool
}

func NewCache(store DefinitionStore) *Cache {
	return &Cache{
		store:  store,
		byType: make(map[string]map[string]fhirmodel.SearchParameterDefinition),
		loaded: make(map[string]bool),
	}
}

// Invalidate drops the cached definitions for every resource type,
// forcing a reload on next Resolve. Called by the hook dispatcher after
// any SearchParameter write.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byType = make(map[string]map[string]fhirmodel.SearchParameterDefinition)
	c.loaded = make(map[string]bool)
}

func (c *Cache) ensureLoaded(resourceType string) error {
	c.mu.RLock()
	loaded := c.loaded[resourceType]
	c.mu.RUnlock()
	if loaded {
		return nil
	}

	defs, err := c.store.ListActive(resourceType)
	if err != nil {
		return err
	}

	byCode := make(map[string]fhirmodel.SearchParameterDefinition, len(defs))
	for _, d := range defs {
		byCode[d.Code] = d
	}

	c.mu.Lock()
	c.byType[resourceType] = byCode
	c.loaded[resourceType] = true
	c.mu.Unlock()
	return nil
}

// Resolve looks up a parameter code for resourceType, falling back to
// DomainResource then Resource if not found directly on the type (spec
// §4.5). Returns ok=false if no definition exists at any level.
func (c *Cache) Resolve(resourceType, code string) (fhirmodel.SearchParameterDefinition, bool, error) {
	for _, candidate := range []string{resourceType, "DomainResource", "Resource"} {
		if err := c.ensureLoaded(candidate); err != nil {
			return fhirmodel.SearchParameterDefinition{}, false, err
		}
		c.mu.RLock()
		def, ok := c.byType[candidate][code]
		c.mu.RUnlock()
		if ok {
			return def, true, nil
		}
	}
	return fhirmodel.SearchParameterDefinition{}, false, nil
}

// All returns every active definition for resourceType (used by the
// indexer to iterate all parameters for a write).
func (c *Cache) All(resourceType string) ([]fhirmodel.SearchParameterDefinition, error) {
	if err := c.ensureLoaded(resourceType); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]fhirmodel.SearchParameterDefinition, 0, len(c.byType[resourceType]))
	for _, d := range c.byType[resourceType] {
		out = append(out, d)
	}
	return out, nil
}
