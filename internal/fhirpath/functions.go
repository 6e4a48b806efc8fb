package fhirpath

import (
	"strings"

	"github.com/shopspring/decimal"
)

func callUnary(op string, operand Collection) (Collection, error) {
	if len(operand) == 0 {
		return Collection{}, nil
	}
	if len(operand) != 1 {
		return nil, typeErr("unary %s requires a singleton operand", op)
	}
	v := operand[0].Materialize()
	switch op {
	case "-":
		switch v.Kind {
		case KindInteger:
			return Collection{Int(-v.Integer)}, nil
		case KindDecimal:
			return Collection{Dec(v.Decimal.Neg())}, nil
		case KindQuantity:
			q := v.Quantity
			q.Value = q.Value.Neg()
			return Collection{{Kind: KindQuantity, Quantity: q}}, nil
		default:
			return nil, typeErr("unary - requires a numeric operand, got %v", v.Kind)
		}
	case "+":
		if !isNumeric(v.Kind) && v.Kind != KindQuantity {
			return nil, typeErr("unary + requires a numeric operand")
		}
		return Collection{v}, nil
	default:
		return nil, unsupported("unary " + op)
	}
}

func callBinary(op string, left, right Collection) (Collection, error) {
	switch op {
	case "=":
		return equalityOp(left, right, false)
	case "!=":
		return equalityOp(left, right, true)
	case "~", "!~":
		return equivalenceOp(left, right, op == "!~")
	case "and":
		return logicalAnd(left, right), nil
	case "or":
		return logicalOr(left, right), nil
	case "xor":
		return logicalXor(left, right), nil
	case "implies":
		return logicalImplies(left, right), nil
	case "in":
		return membershipIn(left, right), nil
	case "contains":
		return membershipIn(right, left), nil
	case "|":
		return unionOp(left, right), nil
	case "&":
		return concatStrings(left, right), nil
	case "+", "-", "*", "/", "div", "mod":
		return arithmeticOp(op, left, right)
	case "<", "<=", ">", ">=":
		return comparisonOp(op, left, right)
	default:
		return nil, unsupported("binary " + op)
	}
}

func equalityOp(left, right Collection, negate bool) (Collection, error) {
	if len(left) == 0 || len(right) == 0 {
		return Collection{}, nil
	}
	if len(left) != len(right) {
		return Collection{Bool(negate)}, nil
	}
	for i := range left {
		eq, comparable := Equal(left[i], right[i])
		if !comparable {
			return Collection{}, nil
		}
		if !eq {
			return Collection{Bool(negate)}, nil
		}
	}
	return Collection{Bool(!negate)}, nil
}

// equivalenceOp implements `~`/`!~`: like equality but never propagates
// empty — two empty collections are equivalent, and values of
// incomparable kinds are simply not equivalent. Numeric values compare
// exactly, as with `=`.
func equivalenceOp(left, right Collection, negate bool) (Collection, error) {
	if len(left) != len(right) {
		return Collection{Bool(negate)}, nil
	}
	for i := range left {
		eq, comparable := Equal(left[i], right[i])
		if comparable && !eq {
			return Collection{Bool(negate)}, nil
		}
		if !comparable && !bothEmpty(left[i], right[i]) {
			return Collection{Bool(negate)}, nil
		}
	}
	return Collection{Bool(!negate)}, nil
}

func bothEmpty(a, b Value) bool { return a.Kind == KindEmpty && b.Kind == KindEmpty }

func logicalAnd(left, right Collection) Collection {
	l, lok := boolOf(left)
	r, rok := boolOf(right)
	if lok && !l || rok && !r {
		return Collection{Bool(false)}
	}
	if lok && rok {
		return Collection{Bool(l && r)}
	}
	return Collection{}
}

func logicalOr(left, right Collection) Collection {
	l, lok := boolOf(left)
	r, rok := boolOf(right)
	if lok && l || rok && r {
		return Collection{Bool(true)}
	}
	if lok && rok {
		return Collection{Bool(l || r)}
	}
	return Collection{}
}

func logicalXor(left, right Collection) Collection {
	l, lok := boolOf(left)
	r, rok := boolOf(right)
	if !lok || !rok {
		return Collection{}
	}
	return Collection{Bool(l != r)}
}

func logicalImplies(left, right Collection) Collection {
	l, lok := boolOf(left)
	if lok && !l {
		return Collection{Bool(true)}
	}
	r, rok := boolOf(right)
	if rok && r {
		return Collection{Bool(true)}
	}
	if lok && rok {
		return Collection{Bool(!l || r)}
	}
	return Collection{}
}

func boolOf(c Collection) (bool, bool) {
	if len(c) != 1 || c[0].Kind != KindBoolean {
		return false, false
	}
	return c[0].Boolean, true
}

func membershipIn(item, collection Collection) Collection {
	if len(item) != 1 {
		return Collection{}
	}
	for _, v := range collection {
		if eq, cmp := Equal(item[0], v); cmp && eq {
			return Collection{Bool(true)}
		}
	}
	return Collection{Bool(false)}
}

func unionOp(left, right Collection) Collection {
	out := make(Collection, 0, len(left)+len(right))
	out = append(out, left...)
	for _, r := range right {
		if !containsValue(out, r) {
			out = append(out, r)
		}
	}
	return out
}

func concatStrings(left, right Collection) Collection {
	l := stringOrEmpty(left)
	r := stringOrEmpty(right)
	return Collection{Str(l + r)}
}

func stringOrEmpty(c Collection) string {
	if len(c) != 1 {
		return ""
	}
	v := c[0].Materialize()
	if v.Kind == KindString {
		return v.String
	}
	return ""
}

func arithmeticOp(op string, left, right Collection) (Collection, error) {
	if len(left) == 0 || len(right) == 0 {
		return Collection{}, nil
	}
	if len(left) != 1 || len(right) != 1 {
		return nil, typeErr("%s requires singleton operands", op)
	}
	a, b := left[0].Materialize(), right[0].Materialize()

	if op == "+" && a.Kind == KindString && b.Kind == KindString {
		return Collection{Str(a.String + b.String)}, nil
	}
	if !isNumeric(a.Kind) || !isNumeric(b.Kind) {
		return nil, typeErr("%s requires numeric operands, got %v and %v", op, a.Kind, b.Kind)
	}

	da, db := asDecimal(a), asDecimal(b)
	switch op {
	case "+":
		return decResult(da.Add(db), a, b), nil
	case "-":
		return decResult(da.Sub(db), a, b), nil
	case "*":
		return decResult(da.Mul(db), a, b), nil
	case "/":
		if db.IsZero() {
			return Collection{}, nil
		}
		return Collection{Dec(da.DivRound(db, 16))}, nil
	case "div":
		if db.IsZero() {
			return Collection{}, nil
		}
		return Collection{Int(da.Div(db).Truncate(0).IntPart())}, nil
	case "mod":
		if db.IsZero() {
			return Collection{}, nil
		}
		return Collection{Dec(da.Mod(db))}, nil
	}
	return nil, unsupported(op)
}

func decResult(d decimal.Decimal, a, b Value) Value {
	if a.Kind == KindInteger && b.Kind == KindInteger {
		return Int(d.IntPart())
	}
	return Dec(d)
}

func comparisonOp(op string, left, right Collection) (Collection, error) {
	if len(left) == 0 || len(right) == 0 {
		return Collection{}, nil
	}
	if len(left) != 1 || len(right) != 1 {
		return nil, typeErr("%s requires singleton operands", op)
	}
	a, b := left[0].Materialize(), right[0].Materialize()

	var cmp int
	switch {
	case isNumeric(a.Kind) && isNumeric(b.Kind):
		cmp = asDecimal(a).Cmp(asDecimal(b))
	case a.Kind == KindString && b.Kind == KindString:
		cmp = strings.Compare(a.String, b.String)
	case a.Kind == KindDate && b.Kind == KindDate:
		cmp = strings.Compare(a.Date, b.Date)
	case a.Kind == KindDateTime && b.Kind == KindDateTime:
		cmp = strings.Compare(a.DateTime, b.DateTime)
	case a.Kind == KindTime && b.Kind == KindTime:
		cmp = strings.Compare(a.Time, b.Time)
	default:
		return nil, typeErr("%s is not defined for %v and %v", op, a.Kind, b.Kind)
	}

	var result bool
	switch op {
	case "<":
		result = cmp < 0
	case "<=":
		result = cmp <= 0
	case ">":
		result = cmp > 0
	case ">=":
		result = cmp >= 0
	}
	return Collection{Bool(result)}, nil
}

// builtinFunctions holds the supported function subset (spec §4.2 names
// this as a bounded builtin table, not an open-ended plugin surface).
var builtinFunctions = map[string]func(vm *VM, target Collection, args []Collection, ctx *EvalContext) (Collection, error){
	"empty":    func(_ *VM, t Collection, _ []Collection, _ *EvalContext) (Collection, error) { return Collection{Bool(len(t) == 0)}, nil },
	"exists":   func(_ *VM, t Collection, args []Collection, _ *EvalContext) (Collection, error) { return Collection{Bool(len(t) > 0)}, nil },
	"count":    func(_ *VM, t Collection, _ []Collection, _ *EvalContext) (Collection, error) { return Collection{Int(int64(len(t)))}, nil },
	"first":    func(_ *VM, t Collection, _ []Collection, _ *EvalContext) (Collection, error) { if len(t) == 0 { return Collection{}, nil }; return Collection{t[0]}, nil },
	"last":     func(_ *VM, t Collection, _ []Collection, _ *EvalContext) (Collection, error) { if len(t) == 0 { return Collection{}, nil }; return Collection{t[len(t)-1]}, nil },
	"single":   fnSingle,
	"tail":     func(_ *VM, t Collection, _ []Collection, _ *EvalContext) (Collection, error) { if len(t) == 0 { return Collection{}, nil }; return t[1:], nil },
	"not":      fnNot,
	"distinct": fnDistinct,
	"isDistinct": func(vm *VM, t Collection, a []Collection, c *EvalContext) (Collection, error) {
		d, _ := fnDistinct(vm, t, a, c)
		return Collection{Bool(len(d) == len(t))}, nil
	},
	"toString":  fnToString,
	"toInteger": fnToInteger,
	"toDecimal": fnToDecimal,
	"toBoolean": fnToBoolean,
	"children":  fnChildren,
	"descendants": fnDescendants,
	"trace": func(_ *VM, t Collection, _ []Collection, _ *EvalContext) (Collection, error) { return t, nil },
	"combine": func(_ *VM, t Collection, args []Collection, _ *EvalContext) (Collection, error) {
		if len(args) != 1 {
			return nil, typeErr("combine requires exactly 1 argument")
		}
		out := make(Collection, 0, len(t)+len(args[0]))
		out = append(out, t...)
		out = append(out, args[0]...)
		return out, nil
	},
	"union": func(_ *VM, t Collection, args []Collection, _ *EvalContext) (Collection, error) {
		if len(args) != 1 {
			return nil, typeErr("union requires exactly 1 argument")
		}
		return unionOp(t, args[0]), nil
	},
	"contains": fnStringContains,
	"startsWith": fnStringStartsWith,
	"endsWith":  fnStringEndsWith,
	"upper":     fnUpper,
	"lower":     fnLower,
	"length":    fnLength,
	"substring": fnSubstring,
	"replace":   fnReplace,
	"matches":   fnMatches,
	"join":      fnJoin,
	"abs":       fnAbs,
	"ceiling":   fnCeiling,
	"floor":     fnFloor,
	"round":     fnRound,
	"sqrt":      fnSqrt,
	"truncate":  fnTruncate,
}

func fnSingle(_ *VM, t Collection, _ []Collection, _ *EvalContext) (Collection, error) {
	if len(t) == 0 {
		return Collection{}, nil
	}
	if len(t) > 1 {
		return nil, invalidOp("single() requires a collection of at most one item, got %d", len(t))
	}
	return t, nil
}

func fnNot(_ *VM, t Collection, _ []Collection, _ *EvalContext) (Collection, error) {
	b, ok := boolOf(t)
	if !ok {
		return Collection{}, nil
	}
	return Collection{Bool(!b)}, nil
}

func fnDistinct(_ *VM, t Collection, _ []Collection, _ *EvalContext) (Collection, error) {
	var out Collection
	for _, v := range t {
		if !containsValue(out, v) {
			out = append(out, v)
		}
	}
	return out, nil
}

func fnToString(_ *VM, t Collection, _ []Collection, _ *EvalContext) (Collection, error) {
	if len(t) != 1 {
		return Collection{}, nil
	}
	v := t[0].Materialize()
	switch v.Kind {
	case KindString:
		return Collection{v}, nil
	case KindInteger:
		return Collection{Str(decimal.NewFromInt(v.Integer).String())}, nil
	case KindDecimal:
		return Collection{Str(v.Decimal.String())}, nil
	case KindBoolean:
		if v.Boolean {
			return Collection{Str("true")}, nil
		}
		return Collection{Str("false")}, nil
	default:
		return Collection{}, nil
	}
}

func fnToInteger(_ *VM, t Collection, _ []Collection, _ *EvalContext) (Collection, error) {
	if len(t) != 1 {
		return Collection{}, nil
	}
	v := t[0].Materialize()
	switch v.Kind {
	case KindInteger:
		return Collection{v}, nil
	case KindDecimal:
		return Collection{Int(v.Decimal.IntPart())}, nil
	case KindString:
		d, err := decimal.NewFromString(v.String)
		if err != nil {
			return Collection{}, nil
		}
		return Collection{Int(d.IntPart())}, nil
	default:
		return Collection{}, nil
	}
}

func fnToDecimal(_ *VM, t Collection, _ []Collection, _ *EvalContext) (Collection, error) {
	if len(t) != 1 {
		return Collection{}, nil
	}
	v := t[0].Materialize()
	switch v.Kind {
	case KindDecimal:
		return Collection{v}, nil
	case KindInteger:
		return Collection{Dec(decimal.NewFromInt(v.Integer))}, nil
	case KindString:
		d, err := decimal.NewFromString(v.String)
		if err != nil {
			return Collection{}, nil
		}
		return Collection{Dec(d)}, nil
	default:
		return Collection{}, nil
	}
}

func fnToBoolean(_ *VM, t Collection, _ []Collection, _ *EvalContext) (Collection, error) {
	if len(t) != 1 {
		return Collection{}, nil
	}
	v := t[0].Materialize()
	switch v.Kind {
	case KindBoolean:
		return Collection{v}, nil
	case KindString:
		switch strings.ToLower(v.String) {
		case "true", "t", "yes", "y", "1", "1.0":
			return Collection{Bool(true)}, nil
		case "false", "f", "no", "n", "0", "0.0":
			return Collection{Bool(false)}, nil
		}
	case KindInteger:
		if v.Integer == 1 {
			return Collection{Bool(true)}, nil
		}
		if v.Integer == 0 {
			return Collection{Bool(false)}, nil
		}
	}
	return Collection{}, nil
}

func fnChildren(_ *VM, t Collection, _ []Collection, _ *EvalContext) (Collection, error) {
	var out Collection
	for _, v := range t {
		v = v.Materialize()
		if v.Kind != KindObject {
			continue
		}
		for _, children := range v.Object {
			out = append(out, children...)
		}
	}
	return out, nil
}

func fnDescendants(vm *VM, t Collection, args []Collection, ctx *EvalContext) (Collection, error) {
	var all Collection
	frontier := t
	for len(frontier) > 0 {
		children, _ := fnChildren(vm, frontier, nil, ctx)
		if len(children) == 0 {
			break
		}
		all = append(all, children...)
		frontier = children
	}
	return all, nil
}

func fnStringContains(_ *VM, t Collection, args []Collection, _ *EvalContext) (Collection, error) {
	s := stringOrEmpty(t)
	sub := stringOrEmpty(args[0])
	return Collection{Bool(strings.Contains(s, sub))}, nil
}

func fnStringStartsWith(_ *VM, t Collection, args []Collection, _ *EvalContext) (Collection, error) {
	return Collection{Bool(strings.HasPrefix(stringOrEmpty(t), stringOrEmpty(args[0])))}, nil
}

func fnStringEndsWith(_ *VM, t Collection, args []Collection, _ *EvalContext) (Collection, error) {
	return Collection{Bool(strings.HasSuffix(stringOrEmpty(t), stringOrEmpty(args[0])))}, nil
}

func fnUpper(_ *VM, t Collection, _ []Collection, _ *EvalContext) (Collection, error) {
	return Collection{Str(strings.ToUpper(stringOrEmpty(t)))}, nil
}

func fnLower(_ *VM, t Collection, _ []Collection, _ *EvalContext) (Collection, error) {
	return Collection{Str(strings.ToLower(stringOrEmpty(t)))}, nil
}

func fnLength(_ *VM, t Collection, _ []Collection, _ *EvalContext) (Collection, error) {
	return Collection{Int(int64(len([]rune(stringOrEmpty(t)))))}, nil
}

func fnSubstring(_ *VM, t Collection, args []Collection, _ *EvalContext) (Collection, error) {
	s := []rune(stringOrEmpty(t))
	if len(args) == 0 || len(args[0]) != 1 || args[0][0].Kind != KindInteger {
		return Collection{}, nil
	}
	start := int(args[0][0].Integer)
	if start < 0 || start >= len(s) {
		return Collection{}, nil
	}
	end := len(s)
	if len(args) > 1 && len(args[1]) == 1 && args[1][0].Kind == KindInteger {
		if l := start + int(args[1][0].Integer); l < end {
			end = l
		}
	}
	return Collection{Str(string(s[start:end]))}, nil
}

func fnReplace(_ *VM, t Collection, args []Collection, _ *EvalContext) (Collection, error) {
	if len(args) != 2 {
		return Collection{}, nil
	}
	s := stringOrEmpty(t)
	pattern := stringOrEmpty(args[0])
	replacement := stringOrEmpty(args[1])
	return Collection{Str(strings.ReplaceAll(s, pattern, replacement))}, nil
}

func fnMatches(_ *VM, t Collection, args []Collection, _ *EvalContext) (Collection, error) {
	// Regex matching against FHIRPath's ECMA-262 dialect is out of scope
	// for the indexer's expression subset; treat as unsupported so callers
	// see a clear Unsupported failure rather than a silent false positive.
	return nil, unsupported("matches")
}

func fnJoin(_ *VM, t Collection, args []Collection, _ *EvalContext) (Collection, error) {
	sep := ""
	if len(args) > 0 {
		sep = stringOrEmpty(args[0])
	}
	parts := make([]string, 0, len(t))
	for _, v := range t {
		v = v.Materialize()
		if v.Kind == KindString {
			parts = append(parts, v.String)
		}
	}
	return Collection{Str(strings.Join(parts, sep))}, nil
}

func fnAbs(_ *VM, t Collection, _ []Collection, _ *EvalContext) (Collection, error) {
	if len(t) != 1 {
		return Collection{}, nil
	}
	v := t[0].Materialize()
	if !isNumeric(v.Kind) {
		return Collection{}, nil
	}
	return Collection{decResult(asDecimal(v).Abs(), v, v)}, nil
}

func fnCeiling(_ *VM, t Collection, _ []Collection, _ *EvalContext) (Collection, error) {
	if len(t) != 1 || !isNumeric(t[0].Kind) {
		return Collection{}, nil
	}
	return Collection{Int(asDecimal(t[0]).Ceil().IntPart())}, nil
}

func fnFloor(_ *VM, t Collection, _ []Collection, _ *EvalContext) (Collection, error) {
	if len(t) != 1 || !isNumeric(t[0].Kind) {
		return Collection{}, nil
	}
	return Collection{Int(asDecimal(t[0]).Floor().IntPart())}, nil
}

func fnRound(_ *VM, t Collection, args []Collection, _ *EvalContext) (Collection, error) {
	if len(t) != 1 || !isNumeric(t[0].Kind) {
		return Collection{}, nil
	}
	places := int32(0)
	if len(args) > 0 && len(args[0]) == 1 && args[0][0].Kind == KindInteger {
		places = int32(args[0][0].Integer)
	}
	return Collection{Dec(asDecimal(t[0]).Round(places))}, nil
}

func fnSqrt(_ *VM, t Collection, _ []Collection, _ *EvalContext) (Collection, error) {
	if len(t) != 1 || !isNumeric(t[0].Kind) {
		return Collection{}, nil
	}
	f, _ := asDecimal(t[0]).Float64()
	if f < 0 {
		return Collection{}, nil
	}
	return Collection{Dec(decimal.NewFromFloat(sqrtFloat(f)))}, nil
}

func sqrtFloat(f float64) float64 {
	if f == 0 {
		return 0
	}
	x := f
	for i := 0; i < 40; i++ {
		x = 0.5 * (x + f/x)
	}
	return x
}

func fnTruncate(_ *VM, t Collection, _ []Collection, _ *EvalContext) (Collection, error) {
	if len(t) != 1 || !isNumeric(t[0].Kind) {
		return Collection{}, nil
	}
	return Collection{Int(asDecimal(t[0]).Truncate(0).IntPart())}, nil
}
