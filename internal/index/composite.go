package index

import (
	"encoding/json"
	"time"

	"github.com/fhirstore/zunder/internal/fhirpath"
	"github.com/fhirstore/zunder/internal/search/builder"
	"github.com/fhirstore/zunder/pkg/fhirmodel"
	"github.com/shopspring/decimal"
)

// extractComposite evaluates a composite search parameter's group-root
// expression (e.g. Observation.component) to find each co-occurring
// tuple, then evaluates every component's own expression relative to that
// single group item: one search_composite row per group item, with
// positional components in def.Components order, so the query builder's
// `$`-joined match is guaranteed to compare values drawn from the same
// occurrence rather than an independently-matched cross-product (spec
// §4.4/§4.5).
func (ix *Indexer) extractComposite(def fhirmodel.SearchParameterDefinition, body json.RawMessage) ([]CompositeRow, error) {
	groupItems, err := ix.evalExpression(def.Expression, body)
	if err != nil {
		return nil, err
	}

	var rows []CompositeRow
	for _, item := range groupItems {
		item = item.Materialize()
		components := make([]json.RawMessage, len(def.Components))
		complete := true
		for i, comp := range def.Components {
			values, err := ix.evalComponentExpression(comp.Expression, item)
			if err != nil || len(values) == 0 {
				complete = false
				break
			}
			components[i] = componentJSON(values[0].Materialize())
		}
		if !complete {
			continue
		}
		rows = append(rows, CompositeRow{ParamCode: def.Code, Components: components})
	}
	return rows, nil
}

// evalComponentExpression runs a component's expression with the group
// item, not the whole resource, as $this/root.
func (ix *Indexer) evalComponentExpression(expr string, groupItem fhirpath.Value) (fhirpath.Collection, error) {
	node, err := fhirpath.Parse(expr)
	if err != nil {
		return nil, err
	}
	plan, err := fhirpath.Compile(node)
	if err != nil {
		return nil, err
	}
	vm := fhirpath.NewVM()
	return vm.Run(plan, fhirpath.Collection{groupItem}, &fhirpath.EvalContext{This: groupItem, Resolver: ix.resolver})
}

// componentJSON encodes one component value into the {"system","code",
// "value","start","end","unit"} shape builder.buildCompositeComponentClause
// reads from the JSONB components array, populating only the fields
// applicable to the value's shape.
func componentJSON(v fhirpath.Value) json.RawMessage {
	obj := map[string]string{}

	switch v.Kind {
	case fhirpath.KindInteger:
		obj["value"] = decimal.NewFromInt(v.Integer).String()
	case fhirpath.KindDecimal:
		obj["value"] = v.Decimal.String()
	case fhirpath.KindString:
		obj["code"] = v.String
		obj["value"] = v.String
		if start, end, err := builder.ExpandDateLiteral(v.String); err == nil {
			obj["start"] = start.Format(time.RFC3339Nano)
			obj["end"] = end.Format(time.RFC3339Nano)
		}
	case fhirpath.KindQuantity:
		obj["value"] = v.Quantity.Value.String()
		if v.Quantity.System != "" {
			obj["system"] = v.Quantity.System
		}
		if v.Quantity.Code != "" {
			obj["code"] = v.Quantity.Code
		}
	case fhirpath.KindObject:
		populateObjectComponent(v, obj)
	}

	marshaled, err := json.Marshal(obj)
	if err != nil {
		return json.RawMessage("{}")
	}
	return marshaled
}

func populateObjectComponent(v fhirpath.Value, obj map[string]string) {
	if qr, ok := quantityRowFromValue("", v); ok {
		obj["value"] = qr.Value.String()
		if qr.System != nil {
			obj["system"] = *qr.System
		}
		if qr.Code != nil {
			obj["code"] = *qr.Code
		}
		return
	}
	if dr, ok := dateRowFromValue("", v); ok {
		obj["start"] = dr.Start
		obj["end"] = dr.End
		return
	}
	if rows := tokenRowsFromValue("", v); len(rows) > 0 {
		if rows[0].System != nil {
			obj["system"] = *rows[0].System
		}
		obj["code"] = rows[0].Code
		return
	}
	if s := displayString(v); s != "" {
		obj["value"] = s
	}
}
