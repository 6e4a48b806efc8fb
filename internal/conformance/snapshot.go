package conformance

import (
	"encoding/json"
	"fmt"

	"github.com/fhirstore/zunder/internal/apperr"
)

// ElementDefinition is the subset of a StructureDefinition.snapshot (or
// .differential) element this server needs for type resolution and
// validation: path, cardinality, declared types, slicing discriminators.
type ElementDefinition struct {
	Path     string          `json:"path"`
	Min      int             `json:"min"`
	Max      string          `json:"max"`
	Type     []ElementType   `json:"type,omitempty"`
	Binding  *ElementBinding `json:"binding,omitempty"`
	Slicing  *ElementSlicing `json:"slicing,omitempty"`
	Fixed    json.RawMessage `json:"-"`
}

type ElementType struct {
	Code          string   `json:"code"`
	Profile       []string `json:"profile,omitempty"`
	TargetProfile []string `json:"targetProfile,omitempty"`
}

type ElementBinding struct {
	Strength string `json:"strength"`
	ValueSet string `json:"valueSet,omitempty"`
}

type ElementSlicing struct {
	Discriminator []SlicingDiscriminator `json:"discriminator,omitempty"`
	Rules         string                  `json:"rules"`
}

type SlicingDiscriminator struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// ExpandedSnapshot is a StructureDefinition's fully materialized element
// list: differential merged onto base, then deep-expanded so every
// complex-typed element's child elements are inlined at its path (spec
// §4.3 step 3).
type ExpandedSnapshot struct {
	URL       string
	Version   string
	Type      string
	BaseURL   string
	Elements  []ElementDefinition
	ByPath    map[string]*ElementDefinition
}

type structureDefinition struct {
	ResourceType string              `json:"resourceType"`
	URL          string              `json:"url"`
	Version      string              `json:"version"`
	Type         string              `json:"type"`
	BaseDefinition string            `json:"baseDefinition"`
	Kind         string              `json:"kind"`
	Derivation   string              `json:"derivation"`
	Snapshot     *elementList        `json:"snapshot,omitempty"`
	Differential *elementList        `json:"differential,omitempty"`
}

type elementList struct {
	Element []ElementDefinition `json:"element"`
}

// materialize resolves (url, version), recursively resolving the base
// definition first (cycle-detected via visiting), merges a differential
// onto it element-by-element, then deep-expands complex-typed elements.
func (c *flexibleContext) materialize(url, version string, visiting map[string]bool) (*ExpandedSnapshot, error) {
	key := snapshotKey(url, version)
	if visiting[key] {
		return nil, apperr.Newf(apperr.KindInvalidResource, "cyclic StructureDefinition base chain at %s", url)
	}
	visiting[key] = true
	defer delete(visiting, key)

	raw, ok, err := c.Resolve(url, version)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Newf(apperr.KindNotFound, "StructureDefinition %s not found", url)
	}

	var sd structureDefinition
	if err := json.Unmarshal(raw, &sd); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidResource, err, "parse StructureDefinition")
	}

	var elements []ElementDefinition
	switch {
	case sd.Snapshot != nil && len(sd.Snapshot.Element) > 0:
		elements = sd.Snapshot.Element
	case sd.Differential != nil && sd.BaseDefinition != "":
		baseURL, baseVersion := splitCanonical(sd.BaseDefinition)
		base, err := c.materialize(baseURL, baseVersion, visiting)
		if err != nil {
			return nil, fmt.Errorf("materialize base %s: %w", sd.BaseDefinition, err)
		}
		elements = mergeDifferential(base.Elements, sd.Differential.Element)
	default:
		return nil, apperr.Newf(apperr.KindInvalidResource, "StructureDefinition %s has neither snapshot nor differential+base", url)
	}

	expanded, err := c.deepExpand(elements, visiting)
	if err != nil {
		return nil, err
	}

	byPath := make(map[string]*ElementDefinition, len(expanded))
	for i := range expanded {
		byPath[expanded[i].Path] = &expanded[i]
	}

	return &ExpandedSnapshot{
		URL: sd.URL, Version: sd.Version, Type: sd.Type, BaseURL: sd.BaseDefinition,
		Elements: expanded, ByPath: byPath,
	}, nil
}

// mergeDifferential merges differential elements onto the base snapshot
// element-by-element (matched by path): cardinality narrows, type
// constraints narrow the allowed set, binding/slicing overrides replace.
// New paths not present in base are appended (extension/added slices).
func mergeDifferential(base []ElementDefinition, diff []ElementDefinition) []ElementDefinition {
	merged := make([]ElementDefinition, len(base))
	copy(merged, base)
	index := make(map[string]int, len(merged))
	for i, e := range merged {
		index[e.Path] = i
	}

	for _, d := range diff {
		if i, ok := index[d.Path]; ok {
			merged[i] = mergeElement(merged[i], d)
		} else {
			merged = append(merged, d)
			index[d.Path] = len(merged) - 1
		}
	}
	return merged
}

func mergeElement(base, diff ElementDefinition) ElementDefinition {
	out := base
	if diff.Min > out.Min {
		out.Min = diff.Min
	}
	if diff.Max != "" {
		out.Max = diff.Max
	}
	if len(diff.Type) > 0 {
		out.Type = diff.Type
	}
	if diff.Binding != nil {
		out.Binding = diff.Binding
	}
	if diff.Slicing != nil {
		out.Slicing = diff.Slicing
	}
	return out
}

// deepExpand inlines every complex-typed element's own snapshot elements
// at its path, so `Patient.contact.name` carries `HumanName`'s full
// element set without a second lookup (spec §4.3 step 3).
func (c *flexibleContext) deepExpand(elements []ElementDefinition, visiting map[string]bool) ([]ElementDefinition, error) {
	out := make([]ElementDefinition, 0, len(elements))
	for _, el := range elements {
		out = append(out, el)
		if len(el.Type) != 1 {
			continue
		}
		typeCode := el.Type[0].Code
		if isPrimitiveTypeCode(typeCode) || typeCode == "" {
			continue
		}
		childURL := "http://hl7.org/fhir/StructureDefinition/" + typeCode
		child, err := c.materialize(childURL, "", visiting)
		if err != nil {
			// A complex type we can't resolve (e.g. not yet installed) still
			// lets navigation work dynamically; skip inlining rather than fail
			// the whole snapshot (mirrors spec §4.3's tolerant expansion).
			continue
		}
		for _, childEl := range child.Elements {
			rebased := childEl
			rebased.Path = el.Path + trimTypeName(childEl.Path, child.Type)
			out = append(out, rebased)
		}
	}
	return out, nil
}

func trimTypeName(path, typeName string) string {
	prefix := typeName
	if len(path) > len(prefix) && path[:len(prefix)] == prefix {
		return path[len(prefix):]
	}
	return ""
}

var primitiveTypeCodes = map[string]bool{
	"boolean": true, "integer": true, "string": true, "decimal": true,
	"uri": true, "url": true, "canonical": true, "base64Binary": true,
	"instant": true, "date": true, "dateTime": true, "time": true,
	"code": true, "oid": true, "id": true, "markdown": true,
	"unsignedInt": true, "positiveInt": true, "uuid": true,
}

func isPrimitiveTypeCode(code string) bool { return primitiveTypeCodes[code] }

func splitCanonical(canonical string) (url, version string) {
	for i := len(canonical) - 1; i >= 0; i-- {
		if canonical[i] == '|' {
			return canonical[:i], canonical[i+1:]
		}
	}
	return canonical, ""
}
