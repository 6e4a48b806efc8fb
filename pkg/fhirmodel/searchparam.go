package fhirmodel

// SearchParamType is the declared value family of a search parameter, per
// the Standard's SearchParameter.type.
type SearchParamType string

const (
	SPTypeString    SearchParamType = "string"
	SPTypeToken     SearchParamType = "token"
	SPTypeReference SearchParamType = "reference"
	SPTypeDate      SearchParamType = "date"
	SPTypeNumber    SearchParamType = "number"
	SPTypeQuantity  SearchParamType = "quantity"
	SPTypeURI       SearchParamType = "uri"
	SPTypeComposite SearchParamType = "composite"
	SPTypeSpecial   SearchParamType = "special"
)

// SearchParamComponent is one component of a composite search parameter.
type SearchParamComponent struct {
	// Definition is the canonical URL of the component SearchParameter.
	Definition string `json:"definition"`
	Expression string `json:"expression"`
}

// SearchParameterDefinition is the resolved, cached shape of a
// SearchParameter resource used by the indexer (C4) and the query builder
// (C5).
type SearchParameterDefinition struct {
	Code         string                 `json:"code"`
	ResourceType string                 `json:"base"`
	Type         SearchParamType        `json:"type"`
	Expression   string                 `json:"expression"`
	Modifiers    []string               `json:"modifiers,omitempty"`
	Comparators  []string               `json:"comparators,omitempty"`
	Chains       []string               `json:"chains,omitempty"`
	Targets      []string               `json:"targets,omitempty"`
	MultipleOr   bool                   `json:"multipleOr"`
	MultipleAnd  bool                   `json:"multipleAnd"`
	Components   []SearchParamComponent `json:"components,omitempty"`
	CanonicalURL string                 `json:"url,omitempty"`
}
