package builder

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fhirstore/zunder/internal/search/params"
)

// buildDateClause ports original_source's build_date_clause: FHIR date
// search compares half-open [start,end) ranges rather than instants, so
// every prefix has a boundary rule tied to which side is exclusive (spec
// §4.5, Open Question #1 — ge/le use strict inequality at the shared
// boundary because the adjacent interval's excluded endpoint must not be
// treated as an overlap).
func buildDateClause(resolved ResolvedParam, bindParams *[]BindValue) string {
	var parts []string
	for _, v := range resolved.Values {
		prefix := v.Prefix
		if prefix == "" {
			prefix = params.PrefixEq
		}
		start, end, err := fhirDateRange(v.Raw)
		if err != nil {
			continue
		}

		var clause string
		switch prefix {
		case params.PrefixEq:
			sIdx := pushText(bindParams, start.Format(time.RFC3339Nano))
			eIdx := pushText(bindParams, end.Format(time.RFC3339Nano))
			clause = fmt.Sprintf("(sp.start_date >= $%d::timestamptz AND sp.end_date <= $%d::timestamptz)", sIdx, eIdx)
		case params.PrefixNe:
			sIdx := pushText(bindParams, start.Format(time.RFC3339Nano))
			eIdx := pushText(bindParams, end.Format(time.RFC3339Nano))
			clause = fmt.Sprintf("(sp.end_date <= $%d::timestamptz OR sp.start_date >= $%d::timestamptz)", sIdx, eIdx)
		case params.PrefixGt:
			eIdx := pushText(bindParams, end.Format(time.RFC3339Nano))
			clause = fmt.Sprintf("sp.end_date > $%d::timestamptz", eIdx)
		case params.PrefixGe:
			// CRITICAL: > not >=. If sp.end_date == search.start and end is
			// exclusive, [..., T) does not overlap [T, ∞).
			sIdx := pushText(bindParams, start.Format(time.RFC3339Nano))
			clause = fmt.Sprintf("sp.end_date > $%d::timestamptz", sIdx)
		case params.PrefixLt:
			sIdx := pushText(bindParams, start.Format(time.RFC3339Nano))
			clause = fmt.Sprintf("sp.start_date < $%d::timestamptz", sIdx)
		case params.PrefixLe:
			// CRITICAL: < not <=, mirroring Ge above.
			eIdx := pushText(bindParams, end.Format(time.RFC3339Nano))
			clause = fmt.Sprintf("sp.start_date < $%d::timestamptz", eIdx)
		case params.PrefixSa:
			eIdx := pushText(bindParams, end.Format(time.RFC3339Nano))
			clause = fmt.Sprintf("sp.start_date >= $%d::timestamptz", eIdx)
		case params.PrefixEb:
			sIdx := pushText(bindParams, start.Format(time.RFC3339Nano))
			clause = fmt.Sprintf("sp.end_date <= $%d::timestamptz", sIdx)
		case params.PrefixAp:
			aStart, aEnd := approximateDateRange(start, end)
			sIdx := pushText(bindParams, aStart.Format(time.RFC3339Nano))
			eIdx := pushText(bindParams, aEnd.Format(time.RFC3339Nano))
			clause = fmt.Sprintf("(sp.start_date < $%d::timestamptz AND sp.end_date > $%d::timestamptz)", eIdx, sIdx)
		}
		parts = append(parts, clause)
	}
	return joinOr(parts)
}

// buildLastUpdatedClause is the _lastUpdated equivalent against the
// resource row's single last_updated timestamp instead of a range table.
func buildLastUpdatedClause(resolved ResolvedParam, bindParams *[]BindValue, resourceAlias string) string {
	var parts []string
	for _, v := range resolved.Values {
		prefix := v.Prefix
		if prefix == "" {
			prefix = params.PrefixEq
		}
		start, end, err := fhirDateRange(v.Raw)
		if err != nil {
			continue
		}
		a := resourceAlias
		var clause string
		switch prefix {
		case params.PrefixEq:
			sIdx := pushText(bindParams, start.Format(time.RFC3339Nano))
			eIdx := pushText(bindParams, end.Format(time.RFC3339Nano))
			clause = fmt.Sprintf("(%s.last_updated >= $%d::timestamptz AND %s.last_updated < $%d::timestamptz)", a, sIdx, a, eIdx)
		case params.PrefixNe:
			sIdx := pushText(bindParams, start.Format(time.RFC3339Nano))
			eIdx := pushText(bindParams, end.Format(time.RFC3339Nano))
			clause = fmt.Sprintf("NOT (%s.last_updated >= $%d::timestamptz AND %s.last_updated < $%d::timestamptz)", a, sIdx, a, eIdx)
		case params.PrefixGt, params.PrefixSa:
			eIdx := pushText(bindParams, end.Format(time.RFC3339Nano))
			clause = fmt.Sprintf("%s.last_updated >= $%d::timestamptz", a, eIdx)
		case params.PrefixGe:
			sIdx := pushText(bindParams, start.Format(time.RFC3339Nano))
			clause = fmt.Sprintf("%s.last_updated >= $%d::timestamptz", a, sIdx)
		case params.PrefixLt, params.PrefixEb:
			sIdx := pushText(bindParams, start.Format(time.RFC3339Nano))
			clause = fmt.Sprintf("%s.last_updated < $%d::timestamptz", a, sIdx)
		case params.PrefixLe:
			eIdx := pushText(bindParams, end.Format(time.RFC3339Nano))
			clause = fmt.Sprintf("%s.last_updated < $%d::timestamptz", a, eIdx)
		case params.PrefixAp:
			aStart, aEnd := approximateDateRange(start, end)
			sIdx := pushText(bindParams, aStart.Format(time.RFC3339Nano))
			eIdx := pushText(bindParams, aEnd.Format(time.RFC3339Nano))
			clause = fmt.Sprintf("(%s.last_updated >= $%d::timestamptz AND %s.last_updated < $%d::timestamptz)", a, sIdx, a, eIdx)
		}
		parts = append(parts, clause)
	}
	return joinOr(parts)
}

// ExpandDateLiteral exposes fhirDateRange's [start,end) widening for the
// indexer, which needs the same precision-aware expansion to populate
// search_date rows (spec §4.4/§4.5 share one date model).
func ExpandDateLiteral(raw string) (time.Time, time.Time, error) {
	return fhirDateRange(raw)
}

// fhirDateRange expands a FHIR date/dateTime literal into the half-open
// [start, end) instant range implied by its stated precision: YYYY is a
// full year, YYYY-MM a month, YYYY-MM-DD a day, and a full timestamp
// widens to the precision of its trailing fractional-seconds digits (or
// whole seconds/minutes if absent).
func fhirDateRange(raw string) (time.Time, time.Time, error) {
	s := strings.TrimSpace(raw)
	switch {
	case len(s) == 4 && isAllDigits(s):
		year, err := strconv.Atoi(s)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0), nil

	case len(s) == 7 && s[4] == '-':
		year, err := strconv.Atoi(s[0:4])
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		month, err := strconv.Atoi(s[5:7])
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0), nil

	case len(s) == 10 && s[4] == '-' && s[7] == '-':
		start, err := time.ParseInLocation("2006-01-02", s, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		return start, start.AddDate(0, 0, 1), nil
	}

	dtPart, tzPart := splitDatetimeTimezone(s)
	naive, unit, err := parseDatetimeWithPrecision(dtPart)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	offset, err := parseTzOffset(tzPart)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	loc := time.FixedZone("", offset)
	dt := time.Date(naive.Year(), naive.Month(), naive.Day(), naive.Hour(), naive.Minute(), naive.Second(), naive.Nanosecond(), loc)
	start := dt.UTC()
	end := dt.Add(unit).UTC()
	return start, end, nil
}

func isAllDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func splitDatetimeTimezone(s string) (string, string) {
	if strings.HasSuffix(s, "Z") {
		return s[:len(s)-1], "Z"
	}
	if pos := strings.LastIndexByte(s, '+'); pos >= 0 {
		return s[:pos], s[pos:]
	}
	if pos := strings.LastIndexByte(s, '-'); pos >= 0 {
		if strings.Contains(s[:pos], "T") && len(s[pos:]) >= 6 {
			return s[:pos], s[pos:]
		}
	}
	return s, ""
}

func parseTzOffset(tz string) (int, error) {
	if tz == "" || tz == "Z" {
		return 0, nil
	}
	sign := 1
	if strings.HasPrefix(tz, "-") {
		sign = -1
	}
	t := strings.TrimLeft(tz, "+-")
	hm := strings.SplitN(t, ":", 2)
	if len(hm) != 2 {
		return 0, fmt.Errorf("invalid timezone offset %q", tz)
	}
	hours, err := strconv.Atoi(hm[0])
	if err != nil {
		return 0, err
	}
	mins, err := strconv.Atoi(hm[1])
	if err != nil {
		return 0, err
	}
	return sign * (hours*3600 + mins*60), nil
}

// parseDatetimeWithPrecision returns the naive local time and the
// duration of one unit at the literal's stated precision (minute, second,
// or a fraction-of-a-second determined by the number of decimal digits).
func parseDatetimeWithPrecision(dt string) (time.Time, time.Duration, error) {
	if naive, err := time.Parse("2006-01-02T15:04", dt); err == nil {
		return naive, time.Minute, nil
	}

	if base, frac, ok := strings.Cut(dt, "."); ok {
		naive, err := time.Parse("2006-01-02T15:04:05", base)
		if err != nil {
			return time.Time{}, 0, err
		}
		digits := 0
		for _, c := range frac {
			if c < '0' || c > '9' {
				break
			}
			digits++
		}
		if digits > 6 {
			digits = 6
		}
		if digits == 0 {
			return naive, time.Second, nil
		}
		micros := int64(1)
		for i := 0; i < 6-digits; i++ {
			micros *= 10
		}
		return naive, time.Duration(micros) * time.Microsecond, nil
	}

	naive, err := time.Parse("2006-01-02T15:04:05", dt)
	if err != nil {
		return time.Time{}, 0, err
	}
	return naive, time.Second, nil
}

// approximateDateRange widens [start,end) by the larger of 10% of its
// duration or one day, matching the `ap` tolerance used for numbers and
// quantities (spec §4.5).
func approximateDateRange(start, end time.Time) (time.Time, time.Time) {
	duration := end.Sub(start)
	minDelta := 24 * time.Hour
	approx := minDelta
	if duration > 0 {
		tenPercent := time.Duration(float64(duration) * 0.1)
		if tenPercent > minDelta {
			approx = tenPercent
		}
	}
	return start.Add(-approx), end.Add(approx)
}

// dateRangeComparison renders the same prefix-to-inequality mapping as
// buildDateClause but against arbitrary start/end SQL expressions, so the
// composite-parameter JSONB path can reuse the boundary semantics.
func dateRangeComparison(prefix params.SearchPrefix, start, end time.Time, bindParams *[]BindValue, startExpr, endExpr string) string {
	if prefix == "" {
		prefix = params.PrefixEq
	}
	switch prefix {
	case params.PrefixEq:
		sIdx := pushText(bindParams, start.Format(time.RFC3339Nano))
		eIdx := pushText(bindParams, end.Format(time.RFC3339Nano))
		return fmt.Sprintf("(%s >= $%d::timestamptz AND %s <= $%d::timestamptz)", startExpr, sIdx, endExpr, eIdx)
	case params.PrefixNe:
		sIdx := pushText(bindParams, start.Format(time.RFC3339Nano))
		eIdx := pushText(bindParams, end.Format(time.RFC3339Nano))
		return fmt.Sprintf("(%s <= $%d::timestamptz OR %s >= $%d::timestamptz)", endExpr, sIdx, startExpr, eIdx)
	case params.PrefixGt:
		eIdx := pushText(bindParams, end.Format(time.RFC3339Nano))
		return fmt.Sprintf("%s > $%d::timestamptz", endExpr, eIdx)
	case params.PrefixGe:
		sIdx := pushText(bindParams, start.Format(time.RFC3339Nano))
		return fmt.Sprintf("%s > $%d::timestamptz", endExpr, sIdx)
	case params.PrefixLt:
		sIdx := pushText(bindParams, start.Format(time.RFC3339Nano))
		return fmt.Sprintf("%s < $%d::timestamptz", startExpr, sIdx)
	case params.PrefixLe:
		eIdx := pushText(bindParams, end.Format(time.RFC3339Nano))
		return fmt.Sprintf("%s < $%d::timestamptz", startExpr, eIdx)
	case params.PrefixSa:
		eIdx := pushText(bindParams, end.Format(time.RFC3339Nano))
		return fmt.Sprintf("%s >= $%d::timestamptz", startExpr, eIdx)
	case params.PrefixEb:
		sIdx := pushText(bindParams, start.Format(time.RFC3339Nano))
		return fmt.Sprintf("%s <= $%d::timestamptz", endExpr, sIdx)
	case params.PrefixAp:
		aStart, aEnd := approximateDateRange(start, end)
		sIdx := pushText(bindParams, aStart.Format(time.RFC3339Nano))
		eIdx := pushText(bindParams, aEnd.Format(time.RFC3339Nano))
		return fmt.Sprintf("(%s < $%d::timestamptz AND %s > $%d::timestamptz)", startExpr, eIdx, endExpr, sIdx)
	}
	return ""
}

// splitPrefix splits a leading 2-char comparator prefix (eq/ne/gt/...)
// from the remainder of a search value literal, used by the JSONB
// composite-component clause builders which receive raw unsplit values.
func splitPrefix(raw string) (params.SearchPrefix, string) {
	if len(raw) >= 2 {
		if p, ok := validPrefixLookup[raw[:2]]; ok && len(raw) > 2 {
			return p, raw[2:]
		}
	}
	return params.PrefixEq, raw
}

var validPrefixLookup = map[string]params.SearchPrefix{
	"eq": params.PrefixEq, "ne": params.PrefixNe, "gt": params.PrefixGt, "lt": params.PrefixLt,
	"ge": params.PrefixGe, "le": params.PrefixLe, "sa": params.PrefixSa, "eb": params.PrefixEb, "ap": params.PrefixAp,
}

func joinOr(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		return "(" + strings.Join(parts, " OR ") + ")"
	}
}

func joinAnd(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		return "(" + strings.Join(parts, " AND ") + ")"
	}
}
