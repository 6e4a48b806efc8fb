// Package params implements the "Parse" stage of C5: splitting a raw query
// string into typed search items, separate from the "Resolve"/"Plan"
// stages that internal/search/lookup and internal/search/builder own.
// Grounded on spec §4.5's Parse/Resolve/Plan breakdown.
package params

// SearchPrefix is a comparator token attached to a search value
// (spec §4.5: eq/ne/gt/lt/ge/le/sa/eb/ap).
type SearchPrefix string

const (
	PrefixEq SearchPrefix = "eq"
	PrefixNe SearchPrefix = "ne"
	PrefixGt SearchPrefix = "gt"
	PrefixLt SearchPrefix = "lt"
	PrefixGe SearchPrefix = "ge"
	PrefixLe SearchPrefix = "le"
	PrefixSa SearchPrefix = "sa"
	PrefixEb SearchPrefix = "eb"
	PrefixAp SearchPrefix = "ap"
)

var validPrefixes = map[string]SearchPrefix{
	"eq": PrefixEq, "ne": PrefixNe, "gt": PrefixGt, "lt": PrefixLt,
	"ge": PrefixGe, "le": PrefixLe, "sa": PrefixSa, "eb": PrefixEb, "ap": PrefixAp,
}

// SearchModifier is a `:modifier` suffix on a parameter name.
type SearchModifier string

const (
	ModifierNone        SearchModifier = ""
	ModifierExact       SearchModifier = "exact"
	ModifierContains    SearchModifier = "contains"
	ModifierMissing     SearchModifier = "missing"
	ModifierNot         SearchModifier = "not"
	ModifierAbove       SearchModifier = "above"
	ModifierBelow       SearchModifier = "below"
	ModifierIn          SearchModifier = "in"
	ModifierNotIn       SearchModifier = "not-in"
	ModifierOfType      SearchModifier = "of-type"
	ModifierIdentifier  SearchModifier = "identifier"
	ModifierText        SearchModifier = "text"
	ModifierTextAdvanced SearchModifier = "text-advanced"
	ModifierCodeText    SearchModifier = "code-text"
	// A type-filter modifier is any resource type name (reference params,
	// e.g. subject:Patient); it is not in the closed set above and is
	// carried in SearchItem.TypeFilter instead of Modifier.
)

var knownModifiers = map[string]SearchModifier{
	"exact": ModifierExact, "contains": ModifierContains, "missing": ModifierMissing,
	"not": ModifierNot, "above": ModifierAbove, "below": ModifierBelow,
	"in": ModifierIn, "not-in": ModifierNotIn, "of-type": ModifierOfType,
	"identifier": ModifierIdentifier, "text": ModifierText,
	"text-advanced": ModifierTextAdvanced, "code-text": ModifierCodeText,
}

// SearchValue is one comma/OR-joined value with its optional prefix.
type SearchValue struct {
	Prefix SearchPrefix
	Raw    string
}

// SearchItem is one resolved `name[:modifier][.chain]=value,value&...` query
// parameter, before definition lookup.
type SearchItem struct {
	ParamName   string
	Modifier    SearchModifier
	TypeFilter  string // set when the modifier segment names a resource type
	Chain       []string
	Values      [][]SearchValue // outer slice = AND (repeated param / &), inner = OR (comma)
}

// ResultParameters holds the non-resource-filtering query parameters
// (spec §4.5's list): _sort, _count, _include, _revinclude, _summary,
// _elements, _total, _has, _filter, _type, _format, _cursor.
type ResultParameters struct {
	Sort       []SortSpec
	Count      *int
	Include    []IncludeSpec
	RevInclude []IncludeSpec
	Summary    string
	Elements   []string
	Total      string
	Has        []HasSpec
	Filter     string
	Type       []string
	Format     string
	Cursor     string
}

type SortSpec struct {
	Param      string
	Descending bool
}

type IncludeSpec struct {
	SourceType string
	Param      string
	TargetType string // "" means any
	Iterate    bool
}

// HasSpec is one `_has:Type:param:searchparam=value` reverse-chain item.
type HasSpec struct {
	ResourceType string
	RefParam     string
	SearchParam  string
	Value        string
}

// ParsedQuery is the full output of Parse: resource filter items plus
// result parameters.
type ParsedQuery struct {
	Items  []SearchItem
	Result ResultParameters
}
