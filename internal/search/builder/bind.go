// Package builder implements the "Plan" stage of C5: compiling resolved
// search items into a Postgres WHERE clause built from one EXISTS
// subquery per clause against the typed search_* tables (spec §4.5),
// grounded on original_source's query_builder module.
package builder

// BindValue is one positional query argument collected while building a
// clause tree; the final SQL uses $1..$N placeholders in push order.
type BindValue struct {
	Text  *string
	Array []string
}

// push_text/push_text_array in the grounding source append a bind value
// and return its 1-based placeholder index.
func pushText(params *[]BindValue, v string) int {
	*params = append(*params, BindValue{Text: &v})
	return len(*params)
}

func pushTextArray(params *[]BindValue, v []string) int {
	*params = append(*params, BindValue{Array: v})
	return len(*params)
}

// Args renders bind values in placeholder order for driver consumption.
func Args(params []BindValue) []any {
	out := make([]any, len(params))
	for i, p := range params {
		if p.Array != nil {
			out[i] = p.Array
		} else {
			out[i] = *p.Text
		}
	}
	return out
}
