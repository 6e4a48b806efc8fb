package hooks

import (
	"encoding/json"

	"github.com/jmoiron/sqlx"
)

// TerminologyHook maintains the extracted terminology tables
// (terminology_concepts, conceptmap_groups, conceptmap_targets) on every
// CodeSystem or ConceptMap write; no handler in this repository reads them (spec
// §4.8: "CodeSystem writes rebuild extracted concept rows; ConceptMap
// writes rebuild group/element/target rows"). Grounded on
// original_source's hooks/terminology.rs `index_codesystem`/
// `index_conceptmap`: delete this resource's previously-extracted rows,
// then re-insert from the current body, all in one transaction.
//
// The Go schema (internal/store/schema.go) is flatter than
// original_source's: `terminology_concepts` keys on
// (codesystem_url, code) with no per-version row, and
// `conceptmap_targets` keys on (conceptmap_url, group_index,
// element_index) with room for exactly one target per element rather
// than original_source's separate elements/targets tables supporting
// many targets. Both simplifications are carried straight through here
// rather than re-normalizing the schema for a feature (multiple
// equivalence targets per mapped code) nothing else in this repo reads.
type TerminologyHook struct{}

func NewTerminologyHook() *TerminologyHook { return &TerminologyHook{} }

func (h *TerminologyHook) ResourceTypes() []string {
	return []string{"CodeSystem", "ConceptMap"}
}

func (h *TerminologyHook) AfterWrite(tx *sqlx.Tx, resourceType, id string, body json.RawMessage) error {
	switch resourceType {
	case "CodeSystem":
		return h.indexCodeSystem(tx, body)
	case "ConceptMap":
		return h.indexConceptMap(tx, body)
	}
	return nil
}

// AfterDelete is a no-op: the extracted rows of a deleted CodeSystem or
// ConceptMap are not removed, and stay in the CASCADE-free terminology
// tables until the next write of a resource with the same canonical url
// re-indexes them.
func (h *TerminologyHook) AfterDelete(db *sqlx.DB, resourceType, id string) error {
	return nil
}

type codeSystemConcept struct {
	Code        string               `json:"code"`
	Display     string               `json:"display"`
	Concept     []codeSystemConcept  `json:"concept"`
	Property    []json.RawMessage    `json:"property"`
	Designation []json.RawMessage    `json:"designation"`
}

type flatConcept struct {
	Code       string
	Display    string
	ParentCode *string
}

func flattenConcepts(concepts []codeSystemConcept, parent *string) []flatConcept {
	var out []flatConcept
	for _, c := range concepts {
		if c.Code == "" {
			continue
		}
		display := c.Display
		if display == "" {
			display = c.Code
		}
		out = append(out, flatConcept{Code: c.Code, Display: display, ParentCode: parent})
		if len(c.Concept) > 0 {
			code := c.Code
			out = append(out, flattenConcepts(c.Concept, &code)...)
		}
	}
	return out
}

func (h *TerminologyHook) indexCodeSystem(tx *sqlx.Tx, body json.RawMessage) error {
	var cs struct {
		URL     string               `json:"url"`
		Version string               `json:"version"`
		Concept []codeSystemConcept  `json:"concept"`
	}
	if err := json.Unmarshal(body, &cs); err != nil || cs.URL == "" {
		return nil
	}

	if _, err := tx.Exec(`DELETE FROM terminology_concepts WHERE codesystem_url = $1`, cs.URL); err != nil {
		return err
	}

	for _, fc := range flattenConcepts(cs.Concept, nil) {
		if _, err := tx.Exec(`
			INSERT INTO terminology_concepts (codesystem_url, codesystem_version, code, display, parent_code)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (codesystem_url, code) DO UPDATE
				SET codesystem_version = EXCLUDED.codesystem_version,
					display = EXCLUDED.display,
					parent_code = EXCLUDED.parent_code
		`, cs.URL, nullIfEmpty(cs.Version), fc.Code, fc.Display, fc.ParentCode); err != nil {
			return err
		}
	}
	return nil
}

type conceptMapTarget struct {
	Code        string `json:"code"`
	Equivalence string `json:"equivalence"`
}

type conceptMapElement struct {
	Code   string             `json:"code"`
	Target []conceptMapTarget `json:"target"`
}

type conceptMapGroup struct {
	Source  string              `json:"source"`
	Target  string              `json:"target"`
	Element []conceptMapElement `json:"element"`
}

func (h *TerminologyHook) indexConceptMap(tx *sqlx.Tx, body json.RawMessage) error {
	var cm struct {
		URL   string            `json:"url"`
		Group []conceptMapGroup `json:"group"`
	}
	if err := json.Unmarshal(body, &cm); err != nil || cm.URL == "" {
		return nil
	}

	// conceptmap_targets references conceptmap_groups only by (url,
	// group_index), not a foreign key, so deleting groups alone would
	// leave orphaned target rows behind; clear both explicitly.
	if _, err := tx.Exec(`DELETE FROM conceptmap_targets WHERE conceptmap_url = $1`, cm.URL); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM conceptmap_groups WHERE conceptmap_url = $1`, cm.URL); err != nil {
		return err
	}

	for gi, group := range cm.Group {
		if _, err := tx.Exec(`
			INSERT INTO conceptmap_groups (conceptmap_url, group_index, source_system, target_system)
			VALUES ($1, $2, $3, $4)
		`, cm.URL, gi, nullIfEmpty(group.Source), nullIfEmpty(group.Target)); err != nil {
			return err
		}

		for ei, element := range group.Element {
			if element.Code == "" {
				continue
			}
			var targetCode, equivalence *string
			if len(element.Target) > 0 {
				t := element.Target[0]
				if t.Code != "" {
					targetCode = &t.Code
				}
				equivalence = nullIfEmpty(t.Equivalence)
			}
			if _, err := tx.Exec(`
				INSERT INTO conceptmap_targets (conceptmap_url, group_index, element_index, source_code, target_code, equivalence)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, cm.URL, gi, ei, element.Code, targetCode, equivalence); err != nil {
				return err
			}
		}
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
