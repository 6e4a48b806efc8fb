package index

import (
	"strings"
	"time"

	"github.com/fhirstore/zunder/internal/fhirpath"
	"github.com/fhirstore/zunder/internal/search/builder"
	"github.com/shopspring/decimal"
)

// displayString reduces a FHIRPath value to the plain text a `string` or
// `uri` search parameter indexes: scalars render directly, and the
// handful of complex types commonly bound to a string-typed expression
// (HumanName, Address, Annotation) fall back to their own .text.
func displayString(v fhirpath.Value) string {
	switch v.Kind {
	case fhirpath.KindString:
		return v.String
	case fhirpath.KindDate:
		return v.Date
	case fhirpath.KindDateTime:
		return v.DateTime
	case fhirpath.KindTime:
		return v.Time
	case fhirpath.KindInteger, fhirpath.KindDecimal, fhirpath.KindBoolean:
		return "" // non-string scalars never satisfy a string/uri parameter
	case fhirpath.KindObject:
		if s := objectField(v, "text"); s != "" {
			return s
		}
		return ""
	default:
		return ""
	}
}

// objectField returns the first scalar string under key in an Object
// value's children, materializing lazily-held children as needed.
func objectField(v fhirpath.Value, key string) string {
	if v.Kind != fhirpath.KindObject {
		return ""
	}
	children, ok := v.Object[key]
	if !ok || len(children) == 0 {
		return ""
	}
	child := children[0].Materialize()
	if child.Kind == fhirpath.KindString {
		return child.String
	}
	return ""
}

func objectFieldValue(v fhirpath.Value, key string) (fhirpath.Value, bool) {
	if v.Kind != fhirpath.KindObject {
		return fhirpath.Value{}, false
	}
	children, ok := v.Object[key]
	if !ok || len(children) == 0 {
		return fhirpath.Value{}, false
	}
	return children[0].Materialize(), true
}

func objectFieldArray(v fhirpath.Value, key string) []fhirpath.Value {
	if v.Kind != fhirpath.KindObject {
		return nil
	}
	children, ok := v.Object[key]
	if !ok {
		return nil
	}
	out := make([]fhirpath.Value, 0, len(children))
	for _, c := range children {
		out = append(out, c.Materialize())
	}
	return out
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// tokenRowsFromValue turns one evaluated element into the token rows the
// `token` search type indexes: a bare code or boolean, a Coding, a
// CodeableConcept (one row per coding; its text gets no row of its own),
// or an Identifier/ContactPoint's system+value pair (spec §4.4/§4.5).
func tokenRowsFromValue(code string, v fhirpath.Value) []TokenRow {
	switch v.Kind {
	case fhirpath.KindString:
		if v.String == "" {
			return nil
		}
		return []TokenRow{{ParamCode: code, Code: v.String}}
	case fhirpath.KindBoolean:
		b := "false"
		if v.Boolean {
			b = "true"
		}
		return []TokenRow{{ParamCode: code, Code: b}}
	case fhirpath.KindObject:
		return tokenRowsFromObject(code, v)
	default:
		return nil
	}
}

func tokenRowsFromObject(code string, v fhirpath.Value) []TokenRow {
	if codings := objectFieldArray(v, "coding"); len(codings) > 0 {
		var out []TokenRow
		for _, c := range codings {
			out = append(out, codingTokenRow(code, c))
		}
		return out
	}
	if _, hasCode := objectFieldValue(v, "code"); hasCode {
		return []TokenRow{codingTokenRow(code, v)}
	}
	if value, hasValue := objectFieldValue(v, "value"); hasValue && value.Kind == fhirpath.KindString {
		system := objectField(v, "system")
		return []TokenRow{{ParamCode: code, System: strPtr(system), Code: value.String}}
	}
	return nil
}

func codingTokenRow(code string, coding fhirpath.Value) TokenRow {
	system := objectField(coding, "system")
	tokenCode := objectField(coding, "code")
	display := objectField(coding, "display")
	return TokenRow{ParamCode: code, System: strPtr(system), Code: tokenCode, Display: display}
}

// tokenIdentifierRowsFromValue populates search_token_identifier for the
// `:of-type` modifier, which matches on an Identifier's type coding plus
// its value rather than the identifier's own system (spec §4.5).
func tokenIdentifierRowsFromValue(code string, v fhirpath.Value) []TokenIdentifierRow {
	if v.Kind != fhirpath.KindObject {
		return nil
	}
	value, hasValue := objectFieldValue(v, "value")
	if !hasValue || value.Kind != fhirpath.KindString || value.String == "" {
		return nil
	}
	typeVal, hasType := objectFieldValue(v, "type")
	if !hasType {
		return nil
	}
	var out []TokenIdentifierRow
	for _, coding := range objectFieldArray(typeVal, "coding") {
		system := objectField(coding, "system")
		typeCode := objectField(coding, "code")
		if typeCode == "" {
			continue
		}
		out = append(out, TokenIdentifierRow{ParamCode: code, TypeSystem: system, TypeCode: typeCode, Value: value.String})
	}
	return out
}

// referenceRowFromValue resolves a Reference element (or a bare
// "Type/id" string) to its target identity. A reference with no
// "Type/id" form, such as "urn:uuid:...", yields no row.
func referenceRowFromValue(code string, v fhirpath.Value) (ReferenceRow, bool) {
	var refStr string
	switch v.Kind {
	case fhirpath.KindString:
		refStr = v.String
	case fhirpath.KindObject:
		refStr = objectField(v, "reference")
	default:
		return ReferenceRow{}, false
	}
	refStr = strings.TrimSpace(refStr)
	if refStr == "" {
		return ReferenceRow{}, false
	}
	targetType, targetID, ok := splitRelativeReference(refStr)
	if !ok {
		return ReferenceRow{}, false
	}
	return ReferenceRow{ParamCode: code, TargetType: targetType, TargetID: targetID}, true
}

// dateRowFromValue expands a date/dateTime scalar, or a Period's
// start/end pair, into the [start,end) range search_date stores (spec
// §4.4/§4.5 share the widening rule in internal/search/builder).
func dateRowFromValue(code string, v fhirpath.Value) (DateRow, bool) {
	switch v.Kind {
	case fhirpath.KindString:
		return dateRowFromLiteral(code, v.String)
	case fhirpath.KindDate:
		return dateRowFromLiteral(code, v.Date)
	case fhirpath.KindDateTime:
		return dateRowFromLiteral(code, v.DateTime)
	case fhirpath.KindObject:
		startVal, hasStart := objectFieldValue(v, "start")
		endVal, hasEnd := objectFieldValue(v, "end")
		if !hasStart && !hasEnd {
			return DateRow{}, false
		}
		var start, end time.Time
		if hasStart && startVal.Kind == fhirpath.KindString && startVal.String != "" {
			s, _, err := builder.ExpandDateLiteral(startVal.String)
			if err != nil {
				return DateRow{}, false
			}
			start = s
		} else {
			start = time.Time{}
		}
		if hasEnd && endVal.Kind == fhirpath.KindString && endVal.String != "" {
			_, e, err := builder.ExpandDateLiteral(endVal.String)
			if err != nil {
				return DateRow{}, false
			}
			end = e
		} else {
			end = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
		}
		return DateRow{ParamCode: code, Start: start.Format(time.RFC3339Nano), End: end.Format(time.RFC3339Nano)}, true
	default:
		return DateRow{}, false
	}
}

func dateRowFromLiteral(code, raw string) (DateRow, bool) {
	if raw == "" {
		return DateRow{}, false
	}
	start, end, err := builder.ExpandDateLiteral(raw)
	if err != nil {
		return DateRow{}, false
	}
	return DateRow{ParamCode: code, Start: start.Format(time.RFC3339Nano), End: end.Format(time.RFC3339Nano)}, true
}

// numberRowFromValue accepts an Integer or Decimal scalar only; `number`
// search parameters are never bound to complex FHIR types.
func numberRowFromValue(code string, v fhirpath.Value) (NumberRow, bool) {
	switch v.Kind {
	case fhirpath.KindInteger:
		return NumberRow{ParamCode: code, Value: decimal.NewFromInt(v.Integer)}, true
	case fhirpath.KindDecimal:
		return NumberRow{ParamCode: code, Value: v.Decimal}, true
	default:
		return NumberRow{}, false
	}
}

// quantityRowFromValue reads a Quantity element's value/system/code/unit,
// whether already materialized to fhirpath.Quantity or still a generic
// Object (the common case, since resource bodies carry no type tags).
func quantityRowFromValue(code string, v fhirpath.Value) (QuantityRow, bool) {
	if v.Kind == fhirpath.KindQuantity {
		return QuantityRow{
			ParamCode: code,
			Value:     v.Quantity.Value,
			System:    strPtr(v.Quantity.System),
			Code:      strPtr(v.Quantity.Code),
			Unit:      strPtr(v.Quantity.Unit),
		}, true
	}
	if v.Kind != fhirpath.KindObject {
		return QuantityRow{}, false
	}
	valueVal, ok := objectFieldValue(v, "value")
	if !ok {
		return QuantityRow{}, false
	}
	var dec decimal.Decimal
	switch valueVal.Kind {
	case fhirpath.KindInteger:
		dec = decimal.NewFromInt(valueVal.Integer)
	case fhirpath.KindDecimal:
		dec = valueVal.Decimal
	default:
		return QuantityRow{}, false
	}
	system := objectField(v, "system")
	qcode := objectField(v, "code")
	unit := objectField(v, "unit")
	return QuantityRow{ParamCode: code, Value: dec, System: strPtr(system), Code: strPtr(qcode), Unit: strPtr(unit)}, true
}
