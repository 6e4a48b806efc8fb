package fhirpath

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind tags which variant a Value holds.
type Kind int

const (
	KindEmpty Kind = iota
	KindBoolean
	KindInteger
	KindDecimal
	KindString
	KindDate
	KindDateTime
	KindTime
	KindQuantity
	KindObject
	KindLazyJSON
)

// DatePrecision is how much of a date/time value was actually specified —
// "2020" carries YearPrecision, "2020-03-04T10:00:00Z" carries full
// SecondPrecision. The indexer widens a value to a [start, end) interval
// based on this precision (spec §4.4).
type DatePrecision int

const (
	YearPrecision DatePrecision = iota
	MonthPrecision
	DayPrecision
	SecondPrecision
)

// Quantity pairs a decimal value with a unit, carrying the UCUM system/code
// when known (spec §4.5's quantity clause needs system+code+unit to judge
// an `eq`/`ap` match).
type Quantity struct {
	Value  decimal.Decimal
	System string
	Code   string
	Unit   string
}

// Value is the tagged-variant path-language value (spec §4.1). Only the
// field matching Kind is meaningful; the rest are zero.
type Value struct {
	Kind Kind

	Boolean  bool
	Integer  int64
	Decimal  decimal.Decimal
	String   string
	Date     string // ISO date string at whatever precision was parsed
	DateTime string
	Time     string
	Precision DatePrecision
	TZOffset  string
	Quantity Quantity

	// Object holds a complex value's children keyed by FHIR element name.
	// Each child is itself a Collection (FHIR elements are inherently
	// repeatable at the Value level; cardinality is enforced structurally
	// by whichever StructureDefinition was used to parse the body).
	Object map[string]Collection

	// Lazy defers materialization of a JSON subtree: navigation just grows
	// Path; only when a Value actually needs comparing/indexing is the
	// subtree parsed into one of the strict variants via Materialize.
	Lazy *LazyJSON
}

// LazyJSON is a zero-copy slice into a shared parsed JSON document: root
// is shared by every LazyJSON value, Path narrows from it. Cloning a
// LazyJSON clones only the (cheap) path slice.
type LazyJSON struct {
	Root *json.RawMessage
	Path []string
}

// Collection is an ordered sequence of Values: the result of every
// path-language expression, regardless of arity.
type Collection []Value

func Empty() Value     { return Value{Kind: KindEmpty} }
func Bool(b bool) Value { return Value{Kind: KindBoolean, Boolean: b} }
func Int(i int64) Value { return Value{Kind: KindInteger, Integer: i} }
func Dec(d decimal.Decimal) Value { return Value{Kind: KindDecimal, Decimal: d} }
func Str(s string) Value { return Value{Kind: KindString, String: s} }

func (v Value) IsEmpty() bool { return v.Kind == KindEmpty }

// Materialize resolves a LazyJSON value into one of the strict variants.
// Non-lazy values are returned unchanged.
func (v Value) Materialize() Value {
	if v.Kind != KindLazyJSON || v.Lazy == nil {
		return v
	}
	node := navigateRawJSON(*v.Lazy.Root, v.Lazy.Path)
	return valueFromJSON(node)
}

func navigateRawJSON(root json.RawMessage, path []string) json.RawMessage {
	var cur any
	if err := json.Unmarshal(root, &cur); err != nil {
		return json.RawMessage("null")
	}
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return json.RawMessage("null")
		}
		cur = m[seg]
	}
	out, err := json.Marshal(cur)
	if err != nil {
		return json.RawMessage("null")
	}
	return out
}

func valueFromJSON(raw json.RawMessage) Value {
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return Empty()
	}
	return valueFromAny(generic)
}

func valueFromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Empty()
	case bool:
		return Bool(t)
	case string:
		return Str(t)
	case float64:
		if t == float64(int64(t)) {
			return Int(int64(t))
		}
		return Dec(decimal.NewFromFloat(t))
	case map[string]any:
		obj := make(map[string]Collection, len(t))
		for k, child := range t {
			if arr, ok := child.([]any); ok {
				items := make(Collection, 0, len(arr))
				for _, item := range arr {
					items = append(items, valueFromAny(item))
				}
				obj[k] = items
				continue
			}
			obj[k] = Collection{valueFromAny(child)}
		}
		return Value{Kind: KindObject, Object: obj}
	case []any:
		// An array under an object key is expanded into that key's
		// Collection by the map case above. A bare array reached here (a
		// lazy path that ends on an array, or an array nested directly in
		// an array) folds to its first element materialized.
		if len(t) == 0 {
			return Empty()
		}
		return valueFromAny(t[0])
	default:
		return Empty()
	}
}

// NewLazy wraps a shared JSON root at the given path.
func NewLazy(root *json.RawMessage, path []string) Value {
	cp := make([]string, len(path))
	copy(cp, path)
	return Value{Kind: KindLazyJSON, Lazy: &LazyJSON{Root: root, Path: cp}}
}

// Equal implements the path language's equality: numeric coercion across
// integer/decimal, case-sensitive string comparison, structural equality
// for objects. Returns (equal, comparable) — comparable is false when the
// two values have incomparable kinds, per "empty propagates" semantics.
func Equal(a, b Value) (equal bool, comparable bool) {
	a, b = a.Materialize(), b.Materialize()
	if a.Kind == KindEmpty || b.Kind == KindEmpty {
		return false, false
	}

	switch {
	case isNumeric(a.Kind) && isNumeric(b.Kind):
		return asDecimal(a).Equal(asDecimal(b)), true
	case a.Kind == KindString && b.Kind == KindString:
		return a.String == b.String, true
	case a.Kind == KindBoolean && b.Kind == KindBoolean:
		return a.Boolean == b.Boolean, true
	case a.Kind == KindDate && b.Kind == KindDate:
		return a.Date == b.Date, true
	case a.Kind == KindDateTime && b.Kind == KindDateTime:
		return a.DateTime == b.DateTime, true
	case a.Kind == KindTime && b.Kind == KindTime:
		return a.Time == b.Time, true
	case a.Kind == KindQuantity && b.Kind == KindQuantity:
		return a.Quantity.Value.Equal(b.Quantity.Value) &&
			strings.EqualFold(a.Quantity.Code, b.Quantity.Code), true
	case a.Kind == KindObject && b.Kind == KindObject:
		return objectsEqual(a.Object, b.Object), true
	default:
		return false, false
	}
}

func isNumeric(k Kind) bool { return k == KindInteger || k == KindDecimal }

func asDecimal(v Value) decimal.Decimal {
	if v.Kind == KindInteger {
		return decimal.NewFromInt(v.Integer)
	}
	return v.Decimal
}

func objectsEqual(a, b map[string]Collection) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			eq, cmp := Equal(av[i], bv[i])
			if !cmp || !eq {
				return false
			}
		}
	}
	return true
}
