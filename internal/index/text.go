// Package index implements C4: extracting search-table rows from a
// resource body for every active search-parameter definition and writing
// them. A resource write only enqueues an index job (EnqueueJob); the
// indexing worker extracts and writes the rows later, in its own
// transaction (spec §4.4).
package index

import (
	"encoding/json"
	"strings"
)

// ExtractNarrativeText pulls resource.text.div's XHTML narrative, strips
// tags, and returns plain text for the `_text` search parameter
// (narrative content only, per the Standard).
func ExtractNarrativeText(body json.RawMessage) string {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}
	textRaw, ok := doc["text"]
	if !ok {
		return ""
	}
	var text struct {
		Div string `json:"div"`
	}
	if err := json.Unmarshal(textRaw, &text); err != nil {
		return ""
	}
	if text.Div == "" {
		return ""
	}
	return stripHTML(text.Div)
}

// ExtractAllTextualContent gathers every human-readable string on a
// resource for the `_content` search parameter: the narrative plus every
// nested .text/.display field and the well-known complex-type fields
// (HumanName, Address, Annotation, ContactPoint) a reader would recognize
// as "the text of this resource" (spec §4.4).
func ExtractAllTextualContent(body json.RawMessage) string {
	var parts []string
	if narrative := ExtractNarrativeText(body); narrative != "" {
		parts = append(parts, narrative)
	}

	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return strings.Join(parts, " ")
	}
	extractTextAndDisplay(v, &parts)
	extractComplexTypes(v, &parts)
	return strings.Join(dedupePreserveOrder(parts), " ")
}

func extractTextAndDisplay(v any, acc *[]string) {
	switch t := v.(type) {
	case map[string]any:
		for key, val := range t {
			switch key {
			case "text", "display":
				if s, ok := val.(string); ok {
					pushClean(acc, s)
				}
				extractTextAndDisplay(val, acc)
			default:
				extractTextAndDisplay(val, acc)
			}
		}
	case []any:
		for _, item := range t {
			extractTextAndDisplay(item, acc)
		}
	}
}

func extractComplexTypes(v any, acc *[]string) {
	switch t := v.(type) {
	case map[string]any:
		switch {
		case hasHumanNameFields(t):
			extractHumanName(t, acc)
		case hasAddressFields(t):
			extractAddress(t, acc)
		case t["authorReference"] != nil || t["authorString"] != nil:
			if s, ok := t["text"].(string); ok {
				pushClean(acc, s)
			}
		case t["system"] != nil && t["value"] != nil:
			if s, ok := t["value"].(string); ok {
				pushClean(acc, s)
			}
		}
		for _, val := range t {
			switch val.(type) {
			case []any, map[string]any:
				extractComplexTypes(val, acc)
			}
		}
	case []any:
		for _, item := range t {
			extractComplexTypes(item, acc)
		}
	}
}

func hasHumanNameFields(m map[string]any) bool {
	return m["family"] != nil || m["given"] != nil || m["prefix"] != nil || m["suffix"] != nil
}

func hasAddressFields(m map[string]any) bool {
	return m["line"] != nil || m["city"] != nil || m["state"] != nil || m["postalCode"] != nil || m["country"] != nil
}

func extractHumanName(m map[string]any, acc *[]string) {
	if s, ok := m["text"].(string); ok {
		pushClean(acc, s)
	}
	if s, ok := m["family"].(string); ok {
		pushClean(acc, s)
	}
	for _, field := range []string{"given", "prefix", "suffix"} {
		if arr, ok := m[field].([]any); ok {
			for _, item := range arr {
				if s, ok := item.(string); ok {
					pushClean(acc, s)
				}
			}
		}
	}
}

func extractAddress(m map[string]any, acc *[]string) {
	if s, ok := m["text"].(string); ok {
		pushClean(acc, s)
	}
	if arr, ok := m["line"].([]any); ok {
		for _, item := range arr {
			if s, ok := item.(string); ok {
				pushClean(acc, s)
			}
		}
	}
	for _, field := range []string{"city", "district", "state", "postalCode", "country"} {
		if s, ok := m[field].(string); ok {
			pushClean(acc, s)
		}
	}
}

func pushClean(acc *[]string, s string) {
	s = strings.TrimSpace(s)
	if s != "" {
		*acc = append(*acc, s)
	}
}

func dedupePreserveOrder(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// stripHTML removes tags and decodes the handful of entities XHTML
// narrative commonly uses, collapsing runs of whitespace the way a
// search index should (sufficient for full-text indexing, not a general
// HTML-to-text converter).
func stripHTML(html string) string {
	var b strings.Builder
	b.Grow(len(html))
	inTag := false
	lastWasSpace := true
	for _, c := range html {
		switch {
		case c == '<':
			inTag = true
			if !lastWasSpace {
				b.WriteByte(' ')
				lastWasSpace = true
			}
		case c == '>':
			inTag = false
			if !lastWasSpace {
				b.WriteByte(' ')
				lastWasSpace = true
			}
		case !inTag:
			b.WriteRune(c)
			lastWasSpace = c == ' ' || c == '\t' || c == '\n' || c == '\r'
		}
	}
	decoded := b.String()
	for _, pair := range [][2]string{
		{"&lt;", "<"}, {"&gt;", ">"}, {"&amp;", "&"}, {"&quot;", "\""}, {"&apos;", "'"}, {"&nbsp;", " "},
	} {
		decoded = strings.ReplaceAll(decoded, pair[0], pair[1])
	}
	return strings.Join(strings.Fields(decoded), " ")
}
