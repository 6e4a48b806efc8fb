package index

import (
	"encoding/json"
	"fmt"

	"github.com/fhirstore/zunder/internal/fhirpath"
	"github.com/fhirstore/zunder/internal/search/builder"
	"github.com/fhirstore/zunder/internal/search/lookup"
	"github.com/fhirstore/zunder/pkg/fhirmodel"
	"github.com/shopspring/decimal"
)

// Indexer evaluates every active SearchParameter's FHIRPath expression
// against a resource body and produces the typed rows Writer persists
// into the search_* tables (spec §4.4's extraction half of C4).
type Indexer struct {
	defs     *lookup.Cache
	resolver *IndexingResolver
}

func NewIndexer(defs *lookup.Cache, resolver *IndexingResolver) *Indexer {
	return &Indexer{defs: defs, resolver: resolver}
}

// ExtractedRows holds every typed row produced for one resource version,
// grouped by target table, ready for Writer to bulk-replace.
type ExtractedRows struct {
	Strings    []StringRow
	Tokens     []TokenRow
	TokenIDs   []TokenIdentifierRow
	References []ReferenceRow
	Dates      []DateRow
	Numbers    []NumberRow
	Quantities []QuantityRow
	URIs       []URIRow
	Composites []CompositeRow

	TextTokens    string
	ContentTokens string
}

type StringRow struct {
	ParamCode       string
	Value           string
	ValueNormalized string
}

type TokenRow struct {
	ParamCode string
	System    *string
	Code      string
	Display   string
}

type TokenIdentifierRow struct {
	ParamCode  string
	TypeSystem string
	TypeCode   string
	Value      string
}

type ReferenceRow struct {
	ParamCode  string
	TargetType string
	TargetID   string
}

type DateRow struct {
	ParamCode string
	Start     string // RFC3339
	End       string
}

type NumberRow struct {
	ParamCode string
	Value     decimal.Decimal
}

type QuantityRow struct {
	ParamCode string
	Value     decimal.Decimal
	System    *string
	Code      *string
	Unit      *string
}

type URIRow struct {
	ParamCode string
	Value     string
}

type CompositeRow struct {
	ParamCode  string
	Components []json.RawMessage // positional, one per component definition
}

// Extract runs every active search-parameter definition for
// resourceType's FHIRPath expression against body and returns the full
// set of typed rows to persist, plus the two always-present special
// parameters (_text/_content) the Standard defines outside the
// SearchParameter registry.
func (ix *Indexer) Extract(resourceType string, body json.RawMessage) (*ExtractedRows, error) {
	defs, err := ix.defs.All(resourceType)
	if err != nil {
		return nil, fmt.Errorf("load search parameter definitions: %w", err)
	}

	ix.resolver.PrewarmForResource(body)

	out := &ExtractedRows{}
	for _, def := range defs {
		if len(def.Components) > 0 {
			rows, err := ix.extractComposite(def, body)
			if err == nil {
				out.Composites = append(out.Composites, rows...)
			}
			continue
		}

		values, err := ix.evalExpression(def.Expression, body)
		if err != nil {
			continue // an unevaluable expression must not abort the whole write
		}
		ix.appendTyped(out, def, values)
	}

	out.TextTokens = ExtractNarrativeText(body)
	out.ContentTokens = ExtractAllTextualContent(body)

	return out, nil
}

func (ix *Indexer) evalExpression(expr string, body json.RawMessage) (fhirpath.Collection, error) {
	node, err := fhirpath.Parse(expr)
	if err != nil {
		return nil, err
	}
	plan, err := fhirpath.Compile(node)
	if err != nil {
		return nil, err
	}
	root := fhirpath.NewLazy(&body, nil)
	vm := fhirpath.NewVM()
	return vm.Run(plan, fhirpath.Collection{root}, &fhirpath.EvalContext{This: root, Resolver: ix.resolver})
}

func (ix *Indexer) appendTyped(out *ExtractedRows, def fhirmodel.SearchParameterDefinition, values fhirpath.Collection) {
	for _, raw := range values {
		v := raw.Materialize()
		switch def.Type {
		case fhirmodel.SPTypeString:
			s := displayString(v)
			if s == "" {
				continue
			}
			out.Strings = append(out.Strings, StringRow{ParamCode: def.Code, Value: s, ValueNormalized: builder.NormalizeStringForSearch(s)})
		case fhirmodel.SPTypeURI:
			s := displayString(v)
			if s == "" {
				continue
			}
			out.URIs = append(out.URIs, URIRow{ParamCode: def.Code, Value: s})
		case fhirmodel.SPTypeToken:
			out.Tokens = append(out.Tokens, tokenRowsFromValue(def.Code, v)...)
			out.TokenIDs = append(out.TokenIDs, tokenIdentifierRowsFromValue(def.Code, v)...)
		case fhirmodel.SPTypeReference:
			if r, ok := referenceRowFromValue(def.Code, v); ok {
				out.References = append(out.References, r)
			}
		case fhirmodel.SPTypeDate:
			if d, ok := dateRowFromValue(def.Code, v); ok {
				out.Dates = append(out.Dates, d)
			}
		case fhirmodel.SPTypeNumber:
			if n, ok := numberRowFromValue(def.Code, v); ok {
				out.Numbers = append(out.Numbers, n)
			}
		case fhirmodel.SPTypeQuantity:
			if q, ok := quantityRowFromValue(def.Code, v); ok {
				out.Quantities = append(out.Quantities, q)
			}
		}
	}
}
