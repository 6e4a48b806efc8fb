package builder

import (
	"fmt"
	"strings"

	"github.com/fhirstore/zunder/internal/search/params"
	"github.com/shopspring/decimal"
)

// buildNumberClause ports original_source's build_number_clause: FHIR
// number search treats the literal's implied precision (the half-ulp of
// its last significant digit) as a tolerance window rather than comparing
// floats directly, so "100" and "100.00" match differently sized bands
// around the same value (spec §4.5).
func buildNumberClause(resolved ResolvedParam, bindParams *[]BindValue) string {
	var parts []string
	for _, v := range resolved.Values {
		prefix := v.Prefix
		if prefix == "" {
			prefix = params.PrefixEq
		}
		min, max, err := numberPrecisionRange(v.Raw)
		if err != nil {
			continue
		}
		clause, ok := numericComparison(prefix, v.Raw, min, max, bindParams, "sp.value")
		if !ok {
			continue
		}
		parts = append(parts, clause)
	}
	return joinOr(parts)
}

// buildQuantityClause additionally filters on system/code/unit per the
// three-part `value|system|code` / `value||code` grammar: an explicit
// system narrows to an exact code match, while a bare `||code` matches
// either the coded or display unit (spec §4.5 — "it is inappropriate to
// search on the human display for the unit" when a system is given).
func buildQuantityClause(resolved ResolvedParam, bindParams *[]BindValue) string {
	var parts []string
	for _, v := range resolved.Values {
		prefix := v.Prefix
		if prefix == "" {
			prefix = params.PrefixEq
		}
		q, err := parseQuantity(v.Raw)
		if err != nil {
			continue
		}
		min, max, err := numberPrecisionRange(q.number)
		if err != nil {
			continue
		}
		clause, ok := numericComparison(prefix, q.number, min, max, bindParams, "sp.value")
		if !ok {
			continue
		}

		switch {
		case q.system != nil && q.code != nil:
			sysIdx := pushText(bindParams, *q.system)
			codeIdx := pushText(bindParams, *q.code)
			clause += fmt.Sprintf(" AND sp.system = $%d AND sp.code = $%d", sysIdx, codeIdx)
		case q.system == nil && q.code != nil:
			codeIdx := pushText(bindParams, *q.code)
			clause += fmt.Sprintf(" AND (sp.code = $%d OR sp.unit = $%d)", codeIdx, codeIdx)
		case q.system != nil && q.code == nil:
			sysIdx := pushText(bindParams, *q.system)
			clause += fmt.Sprintf(" AND sp.system = $%d", sysIdx)
		}
		parts = append(parts, "("+clause+")")
	}
	return joinOr(parts)
}

func numericComparison(prefix params.SearchPrefix, raw string, min, max decimal.Decimal, bindParams *[]BindValue, col string) (string, bool) {
	switch prefix {
	case params.PrefixEq:
		minIdx := pushText(bindParams, min.String())
		maxIdx := pushText(bindParams, max.String())
		return fmt.Sprintf("(%s >= $%d::numeric AND %s < $%d::numeric)", col, minIdx, col, maxIdx), true
	case params.PrefixNe:
		minIdx := pushText(bindParams, min.String())
		maxIdx := pushText(bindParams, max.String())
		return fmt.Sprintf("(%s < $%d::numeric OR %s >= $%d::numeric)", col, minIdx, col, maxIdx), true
	case params.PrefixGt, params.PrefixSa:
		maxIdx := pushText(bindParams, max.String())
		return fmt.Sprintf("%s >= $%d::numeric", col, maxIdx), true
	case params.PrefixGe:
		minIdx := pushText(bindParams, min.String())
		return fmt.Sprintf("%s >= $%d::numeric", col, minIdx), true
	case params.PrefixLt, params.PrefixEb:
		minIdx := pushText(bindParams, min.String())
		return fmt.Sprintf("%s < $%d::numeric", col, minIdx), true
	case params.PrefixLe:
		maxIdx := pushText(bindParams, max.String())
		return fmt.Sprintf("%s < $%d::numeric", col, maxIdx), true
	case params.PrefixAp:
		value, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return "", false
		}
		precision, err := decimalPrecision(strings.TrimSpace(raw))
		if err != nil {
			return "", false
		}
		tenPercent := value.Abs().Div(decimal.NewFromInt(10))
		delta := tenPercent
		if precision.GreaterThan(delta) {
			delta = precision
		}
		apMin := value.Sub(delta)
		apMax := value.Add(delta)
		minIdx := pushText(bindParams, apMin.String())
		maxIdx := pushText(bindParams, apMax.String())
		return fmt.Sprintf("(%s >= $%d::numeric AND %s <= $%d::numeric)", col, minIdx, col, maxIdx), true
	}
	return "", false
}

type parsedQuantity struct {
	number string
	system *string
	code   *string
}

// parseQuantity supports [number], [number]||[code], and
// [number]|[system]|[code].
func parseQuantity(raw string) (parsedQuantity, error) {
	if num, rest, ok := strings.Cut(raw, "||"); ok {
		code := rest
		return parsedQuantity{number: num, code: &code}, nil
	}
	parts := strings.Split(raw, "|")
	switch len(parts) {
	case 1:
		return parsedQuantity{number: parts[0]}, nil
	case 3:
		q := parsedQuantity{number: parts[0]}
		if parts[1] != "" {
			q.system = &parts[1]
		}
		if parts[2] != "" {
			q.code = &parts[2]
		}
		return q, nil
	default:
		return parsedQuantity{}, fmt.Errorf("invalid quantity literal %q", raw)
	}
}

// numberPrecisionRange returns [value-precision, value+precision] where
// precision is half the unit of the literal's least significant digit.
func numberPrecisionRange(raw string) (decimal.Decimal, decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	number, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	precision, err := decimalPrecision(s)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return number.Sub(precision), number.Add(precision), nil
}

// decimalPrecision computes the half-ulp precision window implied by a
// literal's written form: fractional digits count significant places,
// exponential notation counts significant digits in the coefficient, and
// a bare integer is treated as precise to the units place.
func decimalPrecision(valueStr string) (decimal.Decimal, error) {
	s := strings.TrimSpace(valueStr)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "+"), "-")

	if coeff, expStr, ok := cutExponent(s); ok {
		exp, err := parseInt(expStr)
		if err != nil {
			return decimal.Zero, err
		}
		coeff = strings.TrimLeft(coeff, "+-")
		digits := 0
		for _, c := range coeff {
			if c >= '0' && c <= '9' {
				digits++
			}
		}
		if digits == 0 {
			digits = 1
		}
		unit := pow10(exp - (digits - 1))
		return unit.Div(decimal.NewFromInt(2)), nil
	}

	if _, frac, ok := strings.Cut(s, "."); ok {
		places := int32(len(frac))
		return decimal.New(5, -(places + 1)), nil
	}
	return decimal.New(5, -1), nil
}

func cutExponent(s string) (coeff, exp string, ok bool) {
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		return s[:i], s[i+1:], true
	}
	return s, "", false
}

func parseInt(s string) (int, error) {
	neg := false
	if strings.HasPrefix(s, "+") {
		s = s[1:]
	} else if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid exponent %q", s)
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		n = -n
	}
	return n, nil
}

func pow10(power int) decimal.Decimal {
	if power >= 0 {
		result := decimal.NewFromInt(1)
		ten := decimal.NewFromInt(10)
		for i := 0; i < power; i++ {
			result = result.Mul(ten)
		}
		return result
	}
	return decimal.New(1, int32(power))
}
