package bundle

import (
	"strconv"
	"strings"

	"github.com/fhirstore/zunder/internal/apperr"
	"github.com/fhirstore/zunder/internal/search"
	"github.com/jmoiron/sqlx"
)

// ifNoneMatchCondition is a parsed If-None-Match header on a PUT (update)
// entry: either "*" (fail if any version exists) or a specific
// ETag version (fail if that version exists). Grounded on
// original_source's services/conditional.rs
// `parse_if_none_match_for_conditional_update`.
type ifNoneMatchCondition struct {
	Any        bool
	Version    int64
	HasVersion bool
}

func parseIfNoneMatch(raw string) (*ifNoneMatchCondition, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if raw == "*" {
		return &ifNoneMatchCondition{Any: true}, nil
	}
	if strings.Contains(raw, ",") {
		return nil, apperr.Newf(apperr.KindValidation, "If-None-Match does not support multiple ETags for a conditional write: %q", raw)
	}
	v := strings.TrimPrefix(raw, "W/")
	v = strings.Trim(v, `"`)
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, apperr.Newf(apperr.KindValidation, "invalid If-None-Match value %q", raw)
	}
	return &ifNoneMatchCondition{Version: n, HasVersion: true}, nil
}

// conditionalCreateResult is the outcome of matching a conditional
// create's If-None-Exist search criteria against existing resources
// (spec §4.7: "conditional create: 0 -> create, 1 -> return existing,
// >=2 -> 412").
type conditionalCreateResult struct {
	Matched bool
	MatchID string
}

func resolveConditionalCreate(engine *search.Engine, tx *sqlx.Tx, resourceType, criteria string) (conditionalCreateResult, error) {
	ids, err := engine.FindIDsTx(tx, resourceType, criteria, 2)
	if err != nil {
		return conditionalCreateResult{}, err
	}
	switch len(ids) {
	case 0:
		return conditionalCreateResult{}, nil
	case 1:
		return conditionalCreateResult{Matched: true, MatchID: ids[0]}, nil
	default:
		return conditionalCreateResult{}, apperr.Newf(apperr.KindPreconditionFailed,
			"conditional create criteria %q matched more than one %s", criteria, resourceType)
	}
}

// conditionalTargetResolution is the outcome of resolving a conditional
// update/patch/delete's search-criteria URL to a concrete instance id
// (spec §4.7's conditional update/patch/delete semantics, grounded on
// original_source's `resolve_conditional_target`).
type conditionalTargetResolution struct {
	TargetID     string
	TargetExists bool
}

func resolveConditionalTarget(engine *search.Engine, tx *sqlx.Tx, resourceType, criteria string) (conditionalTargetResolution, error) {
	ids, err := engine.FindIDsTx(tx, resourceType, criteria, 2)
	if err != nil {
		return conditionalTargetResolution{}, err
	}
	switch len(ids) {
	case 0:
		return conditionalTargetResolution{TargetID: newLogicalID()}, nil
	case 1:
		return conditionalTargetResolution{TargetID: ids[0], TargetExists: true}, nil
	default:
		return conditionalTargetResolution{}, apperr.Newf(apperr.KindPreconditionFailed,
			"conditional criteria %q matched more than one %s", criteria, resourceType)
	}
}
