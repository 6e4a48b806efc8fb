package bundle

import (
	"encoding/json"
	"strings"

	"github.com/fhirstore/zunder/internal/apperr"
	"github.com/fhirstore/zunder/internal/search"
	"github.com/jmoiron/sqlx"
)

// rewritePlaceholderReferences replaces every `urn:uuid:...` reference
// string anywhere under body with the concrete `Type/id` the bundle
// processor allocated for that placeholder fullUrl, and resolves every
// conditional-reference search URI (`Type?criteria`) against tx. Both
// rewrites happen in place on a generic JSON tree walk, grounded on
// original_source's services/conditional_references.rs
// `resolve_conditional_references`/`collect_conditional_reference_occurrences`,
// adapted from its path-tracking mutation (needed there to support
// JSON Pointer-style re-entry) to a direct recursive walk since Go's
// `any`-typed decoded JSON can be mutated through maps/slices in place
// without re-deriving a path.
func rewritePlaceholderReferences(tx *sqlx.Tx, engine *search.Engine, body []byte, placeholders map[string]string) ([]byte, error) {
	var tree any
	if err := json.Unmarshal(body, &tree); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidResource, err, "parse resource for reference rewriting")
	}

	rewritten, err := walkRewrite(tx, engine, tree, placeholders)
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(rewritten)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "re-encode resource after reference rewriting")
	}
	return out, nil
}

func walkRewrite(tx *sqlx.Tx, engine *search.Engine, node any, placeholders map[string]string) (any, error) {
	switch v := node.(type) {
	case map[string]any:
		if ref, ok := v["reference"].(string); ok {
			resolved, err := resolveOneReference(tx, engine, ref, placeholders)
			if err != nil {
				return nil, err
			}
			if resolved != "" {
				v["reference"] = resolved
			}
		}
		for key, child := range v {
			newChild, err := walkRewrite(tx, engine, child, placeholders)
			if err != nil {
				return nil, err
			}
			v[key] = newChild
		}
		return v, nil
	case []any:
		for i, child := range v {
			newChild, err := walkRewrite(tx, engine, child, placeholders)
			if err != nil {
				return nil, err
			}
			v[i] = newChild
		}
		return v, nil
	default:
		return node, nil
	}
}

// resolveOneReference returns a replacement for ref, or "" if ref needs
// no rewriting (an ordinary Type/id reference, a plain URL, etc.).
func resolveOneReference(tx *sqlx.Tx, engine *search.Engine, ref string, placeholders map[string]string) (string, error) {
	if target, ok := placeholders[ref]; ok {
		return target, nil
	}
	if !strings.Contains(ref, "?") {
		return "", nil
	}

	resourceType, query, fragment, ok := parseConditionalReferenceURI(ref)
	if !ok {
		return "", nil
	}
	if err := validateConditionalReferenceQuery(query); err != nil {
		return "", err
	}

	ids, err := engine.FindIDsTx(tx, resourceType, query, 2)
	if err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", apperr.Newf(apperr.KindPreconditionFailed, "conditional reference %q matched no %s", ref, resourceType)
	case 1:
		target := resourceType + "/" + ids[0]
		if fragment != "" {
			target += "#" + fragment
		}
		return target, nil
	default:
		return "", apperr.Newf(apperr.KindPreconditionFailed, "conditional reference %q matched more than one %s", ref, resourceType)
	}
}

// parseConditionalReferenceURI splits "Type?criteria[#fragment]" (or the
// same shape after an absolute base URL) into its parts. Grounded on
// original_source's `parse_conditional_reference_search_uri`.
func parseConditionalReferenceURI(ref string) (resourceType, query, fragment string, ok bool) {
	withoutFragment, frag, _ := strings.Cut(ref, "#")
	typePart, q, found := strings.Cut(withoutFragment, "?")
	if !found {
		return "", "", "", false
	}
	if idx := strings.LastIndex(typePart, "/"); idx >= 0 {
		typePart = typePart[idx+1:]
	}
	if !isValidResourceTypeName(typePart) {
		return "", "", "", false
	}
	return typePart, q, frag, true
}

func isValidResourceTypeName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z') {
			return false
		}
	}
	return s[0] >= 'A' && s[0] <= 'Z'
}

// disallowedConditionalReferenceParams rejects result-shaping parameters
// in a conditional reference's query string — it must identify exactly
// zero, one, or many matches, never page/sort/include them. Grounded on
// original_source's `validate_conditional_reference_query_items`.
var disallowedConditionalReferenceParams = map[string]bool{
	"_count": true, "_offset": true, "_sort": true, "_include": true,
	"_revinclude": true, "_summary": true, "_elements": true, "_format": true,
	"_pretty": true, "_total": true, "_cursor": true, "_cursor_direction": true,
	"_maxresults": true, "_type": true,
}

func validateConditionalReferenceQuery(query string) error {
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		key, _, _ := strings.Cut(pair, "=")
		base, _, _ := strings.Cut(key, ":")
		if disallowedConditionalReferenceParams[base] {
			return apperr.Newf(apperr.KindValidation, "conditional reference query must not include %q", base)
		}
	}
	return nil
}
