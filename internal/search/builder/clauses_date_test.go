package builder

import (
	"testing"

	"github.com/fhirstore/zunder/internal/search/params"
	"github.com/stretchr/testify/assert"
)

// pins the ge/le boundary decision recorded in DESIGN.md (spec §4.5,
// Open Question #1): ge/le use a strict inequality against the opposite
// endpoint of the search value's own half-open range, so a value whose
// range abuts another resource's range at the shared instant does not
// spuriously overlap it.
func TestBuildDateClause_GeUsesStrictGreaterThan(t *testing.T) {
	resolved := ResolvedParam{
		Values: []ResolvedValue{{Prefix: params.PrefixGe, Raw: "2024-01-01"}},
	}
	var bind []BindValue
	clause := buildDateClause(resolved, &bind)

	assert.Contains(t, clause, "sp.end_date > $1::timestamptz")
	assert.NotContains(t, clause, ">=")
}

func TestBuildDateClause_LeUsesStrictLessThan(t *testing.T) {
	resolved := ResolvedParam{
		Values: []ResolvedValue{{Prefix: params.PrefixLe, Raw: "2024-01-01"}},
	}
	var bind []BindValue
	clause := buildDateClause(resolved, &bind)

	assert.Contains(t, clause, "sp.start_date < $1::timestamptz")
	assert.NotContains(t, clause, "<=")
}

func TestBuildDateClause_EqOverlapsWholeRange(t *testing.T) {
	resolved := ResolvedParam{
		Values: []ResolvedValue{{Prefix: params.PrefixEq, Raw: "2024-01-01"}},
	}
	var bind []BindValue
	clause := buildDateClause(resolved, &bind)

	assert.Contains(t, clause, "sp.start_date >= $1::timestamptz")
	assert.Contains(t, clause, "sp.end_date <= $2::timestamptz")
	assert.Len(t, bind, 2)
}

func TestBuildDateClause_DefaultsMissingPrefixToEq(t *testing.T) {
	withPrefix := ResolvedParam{Values: []ResolvedValue{{Prefix: params.PrefixEq, Raw: "2024-06-15"}}}
	withoutPrefix := ResolvedParam{Values: []ResolvedValue{{Raw: "2024-06-15"}}}

	var a, b []BindValue
	assert.Equal(t, buildDateClause(withPrefix, &a), buildDateClause(withoutPrefix, &b))
}

func TestBuildDateClause_MultipleValuesJoinedWithOr(t *testing.T) {
	resolved := ResolvedParam{
		Values: []ResolvedValue{
			{Prefix: params.PrefixEq, Raw: "2024-01-01"},
			{Prefix: params.PrefixEq, Raw: "2024-02-01"},
		},
	}
	var bind []BindValue
	clause := buildDateClause(resolved, &bind)

	assert.Contains(t, clause, " OR ")
	assert.Len(t, bind, 4)
}

func TestBuildDateClause_InvalidDateSkipped(t *testing.T) {
	resolved := ResolvedParam{
		Values: []ResolvedValue{{Prefix: params.PrefixEq, Raw: "not-a-date"}},
	}
	var bind []BindValue
	clause := buildDateClause(resolved, &bind)

	assert.Empty(t, clause)
	assert.Empty(t, bind)
}

func TestBuildLastUpdatedClause_GeIsInclusive(t *testing.T) {
	// _lastUpdated compares a single instant column rather than a range,
	// so ge/le stay inclusive here unlike buildDateClause's range-vs-range
	// comparison above.
	resolved := ResolvedParam{
		Values: []ResolvedValue{{Prefix: params.PrefixGe, Raw: "2024-01-01"}},
	}
	var bind []BindValue
	clause := buildLastUpdatedClause(resolved, &bind, "r")

	assert.Contains(t, clause, "r.last_updated >= $1::timestamptz")
}
