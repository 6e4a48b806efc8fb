package index

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractNarrativeText(t *testing.T) {
	body := json.RawMessage(`{"text":{"div":"<div xmlns=\"http://www.w3.org/1999/xhtml\"><p>Jane <b>Doe</b></p></div>"}}`)
	assert.Equal(t, "Jane Doe", ExtractNarrativeText(body))
}

func TestExtractNarrativeText_NoText(t *testing.T) {
	assert.Equal(t, "", ExtractNarrativeText(json.RawMessage(`{"resourceType":"Patient"}`)))
}

func TestExtractAllTextualContent_HumanName(t *testing.T) {
	body := json.RawMessage(`{
		"resourceType": "Patient",
		"name": [{"family": "Doe", "given": ["Jane", "Q"]}]
	}`)
	content := ExtractAllTextualContent(body)
	assert.Contains(t, content, "Doe")
	assert.Contains(t, content, "Jane")
	assert.Contains(t, content, "Q")
}

func TestExtractAllTextualContent_Address(t *testing.T) {
	body := json.RawMessage(`{
		"resourceType": "Patient",
		"address": [{"line": ["123 Main St"], "city": "Springfield", "postalCode": "00000"}]
	}`)
	content := ExtractAllTextualContent(body)
	assert.Contains(t, content, "123 Main St")
	assert.Contains(t, content, "Springfield")
	assert.Contains(t, content, "00000")
}

func TestExtractAllTextualContent_DisplayFields(t *testing.T) {
	body := json.RawMessage(`{
		"resourceType": "Observation",
		"code": {"coding": [{"system": "http://loinc.org", "code": "1234-5", "display": "Hemoglobin"}]}
	}`)
	assert.Contains(t, ExtractAllTextualContent(body), "Hemoglobin")
}

func TestDedupePreserveOrder(t *testing.T) {
	out := dedupePreserveOrder([]string{"b", "a", "b", "c", "a"})
	assert.Equal(t, []string{"b", "a", "c"}, out)
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "a b", stripHTML("<p>a</p> <p>b</p>"))
	assert.Equal(t, "a & b", stripHTML("a &amp; b"))
}
