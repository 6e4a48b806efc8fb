package builder

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// unescapeSearchValue reverses FHIR search value escaping: \$, \,, \|,
// and \\ each collapse to their unescaped character; any other backslash
// sequence is left as-is.
func unescapeSearchValue(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		if runes[i] == '\\' && i+1 < len(runes) {
			switch runes[i+1] {
			case '$', ',', '|', '\\':
				b.WriteRune(runes[i+1])
				i++
				continue
			}
		}
		b.WriteRune(runes[i])
	}
	return b.String()
}

// splitUnescaped splits on delim, treating a backslash-escaped delim as
// literal rather than a separator (so "a\\|b|c" splits into ["a\\|b",
// "c"], matching FHIR's token `system|code` escaping rules).
func splitUnescaped(s string, delim rune) []string {
	var parts []string
	var cur strings.Builder
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		if runes[i] == '\\' && i+1 < len(runes) {
			cur.WriteRune(runes[i])
			cur.WriteRune(runes[i+1])
			i++
			continue
		}
		if runes[i] == delim {
			parts = append(parts, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteRune(runes[i])
	}
	parts = append(parts, cur.String())
	return parts
}

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeStringForSearch folds accents and case for the `string` search
// type's substring/prefix matching (spec §4.5: "café" matches "cafe").
func NormalizeStringForSearch(s string) string {
	out, _, err := transform.String(stripAccents, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}
