package builder

import "github.com/fhirstore/zunder/internal/search/params"

// ResolvedParam pairs a parsed SearchItem with its looked-up definition
// (the "Resolve" stage's output, consumed here by "Plan"), flattened to
// the single-value shape the clause builders below iterate over.
type ResolvedParam struct {
	Code      string
	Type      ParamType
	Modifier  params.SearchModifier
	Values    []ResolvedValue
	Component []ComponentSpec // for composite params
}

type ResolvedValue struct {
	Prefix params.SearchPrefix
	Raw    string
}

// ParamType mirrors fhirmodel.SearchParamType but lives in this package so
// clause builders don't need to import fhirmodel for a handful of
// constants.
type ParamType string

const (
	TypeString    ParamType = "string"
	TypeToken     ParamType = "token"
	TypeReference ParamType = "reference"
	TypeDate      ParamType = "date"
	TypeNumber    ParamType = "number"
	TypeQuantity  ParamType = "quantity"
	TypeURI       ParamType = "uri"
	TypeComposite ParamType = "composite"
)

// ComponentSpec is one resolved component of a composite search parameter.
type ComponentSpec struct {
	Code string
	Type ParamType
}
