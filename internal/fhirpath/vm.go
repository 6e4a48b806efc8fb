package fhirpath

// DefaultIterationLimit bounds repeat()'s fixed-point loop to prevent a
// cyclic graph from spinning forever (spec §4.2).
const DefaultIterationLimit = 10000

// MaxStackDepthCeiling is the hard ceiling Compile enforces; a plan whose
// statically computed depth exceeds this is rejected before it ever runs.
const MaxStackDepthCeiling = 256

// EvalContext carries the implicit iteration variables ($this/$index/
// $total) plus external constants (%resource, %context, caller-supplied
// values) and the installed ResourceResolver.
type EvalContext struct {
	This     Value
	Index    int64
	Total    Collection
	Vars     map[string]Collection
	Resolver ResourceResolver
}

// VM is a single-threaded, non-reentrant interpreter over a stack of
// Collections (spec §4.2). One VM instance is safe to reuse sequentially
// across many Run calls but must not be shared across goroutines.
type VM struct {
	stack []Collection
}

func NewVM() *VM { return &VM{} }

// Run executes a compiled Plan against an input collection and evaluation
// context, returning the result collection.
func (vm *VM) Run(plan *Plan, input Collection, ctx *EvalContext) (Collection, error) {
	if plan.MaxStackDepth > MaxStackDepthCeiling {
		return nil, invalidOp("plan exceeds max stack depth %d", MaxStackDepthCeiling)
	}
	vm.stack = vm.stack[:0]
	this := ctx.This
	if len(input) == 1 {
		this = input[0]
	}
	return vm.exec(plan, this, ctx)
}

func (vm *VM) push(c Collection) { vm.stack = append(vm.stack, c) }
func (vm *VM) pop() Collection {
	n := len(vm.stack)
	top := vm.stack[n-1]
	vm.stack = vm.stack[:n-1]
	return top
}

func (vm *VM) exec(plan *Plan, this Value, ctx *EvalContext) (Collection, error) {
	pc := 0
	savedTop := len(vm.stack)
	for pc < len(plan.Instrs) {
		ins := plan.Instrs[pc]
		switch ins.Op {
		case OpReturn:
			if len(vm.stack) <= savedTop {
				return Collection{}, nil
			}
			return vm.pop(), nil

		case OpPushConst:
			vm.push(Collection{plan.Consts[ins.Const]})

		case OpLoadThis:
			vm.push(Collection{this})

		case OpLoadIndex:
			vm.push(Collection{Int(ctx.Index)})

		case OpLoadTotal:
			vm.push(ctx.Total)

		case OpLoadVar:
			if v, ok := ctx.Vars[ins.Segment]; ok {
				vm.push(v)
			} else {
				vm.push(Collection{})
			}

		case OpNavigate:
			target := vm.pop()
			vm.push(navigate(target, ins.Segment))

		case OpIndex:
			idxColl := vm.pop()
			target := vm.pop()
			vm.push(indexInto(target, idxColl))

		case OpCallUnary:
			operand := vm.pop()
			out, err := callUnary(ins.Impl, operand)
			if err != nil {
				return nil, err
			}
			vm.push(out)

		case OpCallBinary:
			right := vm.pop()
			left := vm.pop()
			out, err := callBinary(ins.Impl, left, right)
			if err != nil {
				return nil, err
			}
			vm.push(out)

		case OpCallFn:
			args := make([]Collection, ins.Argc)
			for i := ins.Argc - 1; i >= 0; i-- {
				args[i] = vm.pop()
			}
			target := vm.pop()
			out, err := vm.callFn(ins.Impl, target, args, plan, ins.Sub, ctx)
			if err != nil {
				return nil, err
			}
			vm.push(out)

		case OpWhere:
			target := vm.pop()
			out, err := vm.runWhere(plan.Subplans[ins.Sub], target, ins.Impl, ctx)
			if err != nil {
				return nil, err
			}
			vm.push(out)

		case OpSelect:
			target := vm.pop()
			out, err := vm.runSelect(plan.Subplans[ins.Sub], target, ins.Impl, ctx)
			if err != nil {
				return nil, err
			}
			vm.push(out)

		case OpIif:
			cond := vm.pop()
			result, err := vm.runIif(plan, ins, this, ctx, cond)
			if err != nil {
				return nil, err
			}
			vm.push(result)

		case OpIs:
			operand := vm.pop()
			vm.push(evalIs(operand, ins.Type))

		case OpAs:
			operand := vm.pop()
			vm.push(evalAs(operand, ins.Type))

		case OpOfType:
			target := vm.pop()
			vm.push(evalOfType(target, ins.Type))

		case OpDup:
			top := vm.stack[len(vm.stack)-1]
			vm.push(top)

		case OpPop:
			vm.pop()

		case OpJump:
			pc = ins.Target
			continue

		case OpJumpIfFalse:
			cond := vm.pop()
			if !collectionIsTrue(cond) {
				pc = ins.Target
				continue
			}

		default:
			return nil, unsupported("opcode")
		}
		pc++
	}
	return Collection{}, nil
}

func collectionIsTrue(c Collection) bool {
	if len(c) != 1 {
		return false
	}
	return c[0].Kind == KindBoolean && c[0].Boolean
}

func (vm *VM) runWhere(sub *Plan, target Collection, fn string, ctx *EvalContext) (Collection, error) {
	var out Collection
	anyTrue := false
	allTrue := true
	for i, item := range target {
		sub2 := *ctx
		sub2.Index = int64(i)
		sub2.Total = target
		res, err := vm.exec(sub, item, &sub2)
		if err != nil {
			return nil, err
		}
		truthy := collectionIsTrue(res)
		if truthy {
			anyTrue = true
			out = append(out, item)
		} else {
			allTrue = false
		}
	}
	switch fn {
	case "exists":
		return Collection{Bool(anyTrue)}, nil
	case "all":
		return Collection{Bool(allTrue)}, nil
	default: // where
		return out, nil
	}
}

func (vm *VM) runSelect(sub *Plan, target Collection, fn string, ctx *EvalContext) (Collection, error) {
	if fn == "repeat" {
		return vm.runRepeat(sub, target, ctx)
	}
	var out Collection
	for i, item := range target {
		sub2 := *ctx
		sub2.Index = int64(i)
		sub2.Total = target
		res, err := vm.exec(sub, item, &sub2)
		if err != nil {
			return nil, err
		}
		out = append(out, res...)
	}
	return out, nil
}

// runRepeat applies sub repeatedly until no new items are produced,
// deduplicating by value equality and capping iterations to prevent
// runaway cycles through self-referential structures (spec §4.2).
func (vm *VM) runRepeat(sub *Plan, seed Collection, ctx *EvalContext) (Collection, error) {
	seen := make([]Value, 0, len(seed))
	frontier := seed
	iterations := 0
	for len(frontier) > 0 {
		iterations++
		if iterations > DefaultIterationLimit {
			return nil, &EvalError{Kind: FailIterationLimit, Msg: "repeat() exceeded iteration limit"}
		}
		var next Collection
		for i, item := range frontier {
			sub2 := *ctx
			sub2.Index = int64(i)
			sub2.Total = frontier
			res, err := vm.exec(sub, item, &sub2)
			if err != nil {
				return nil, err
			}
			for _, v := range res {
				if !containsValue(seen, v) {
					seen = append(seen, v)
					next = append(next, v)
				}
			}
		}
		frontier = next
	}
	return seen, nil
}

func containsValue(haystack []Value, v Value) bool {
	for _, h := range haystack {
		if eq, cmp := Equal(h, v); cmp && eq {
			return true
		}
	}
	return false
}

func (vm *VM) runIif(plan *Plan, ins Instr, this Value, ctx *EvalContext, cond Collection) (Collection, error) {
	if collectionIsTrue(cond) {
		return vm.exec(plan.Subplans[ins.Sub], this, ctx)
	}
	if ins.Sub2 >= 0 {
		return vm.exec(plan.Subplans[ins.Sub2], this, ctx)
	}
	return Collection{}, nil
}

func (vm *VM) callFn(name string, target Collection, args []Collection, plan *Plan, subIdx int, ctx *EvalContext) (Collection, error) {
	if fn, ok := builtinFunctions[name]; ok {
		return fn(vm, target, args, ctx)
	}
	if name == "resolve" {
		return resolveFn(target, ctx)
	}
	return nil, unsupported(name)
}

// navigate steps from a collection into a named child element, flattening
// across every item in the input collection (FHIRPath member access is
// implicitly distributed over collections).
func navigate(c Collection, segment string) Collection {
	var out Collection
	for _, v := range c {
		v = v.Materialize()
		if v.Kind != KindObject {
			continue
		}
		if children, ok := v.Object[segment]; ok {
			out = append(out, children...)
		}
	}
	return out
}

func indexInto(c Collection, idx Collection) Collection {
	if len(idx) != 1 || idx[0].Kind != KindInteger {
		return Collection{}
	}
	i := idx[0].Integer
	if i < 0 || i >= int64(len(c)) {
		return Collection{}
	}
	return Collection{c[i]}
}

func evalIs(c Collection, spec TypeSpecifierNode) Collection {
	if len(c) != 1 {
		return Collection{}
	}
	return Collection{Bool(valueMatchesType(c[0], spec))}
}

func evalAs(c Collection, spec TypeSpecifierNode) Collection {
	if len(c) != 1 || !valueMatchesType(c[0], spec) {
		return Collection{}
	}
	return c
}

func evalOfType(c Collection, spec TypeSpecifierNode) Collection {
	var out Collection
	for _, v := range c {
		if valueMatchesType(v, spec) {
			out = append(out, v)
		}
	}
	return out
}

func valueMatchesType(v Value, spec TypeSpecifierNode) bool {
	v = v.Materialize()
	switch spec.Name {
	case "Boolean":
		return v.Kind == KindBoolean
	case "Integer":
		return v.Kind == KindInteger
	case "Decimal":
		return v.Kind == KindDecimal
	case "String":
		return v.Kind == KindString
	case "Date":
		return v.Kind == KindDate
	case "DateTime":
		return v.Kind == KindDateTime
	case "Time":
		return v.Kind == KindTime
	case "Quantity":
		return v.Kind == KindQuantity
	default:
		if v.Kind != KindObject {
			return false
		}
		rt, ok := v.Object["resourceType"]
		if !ok || len(rt) != 1 || rt[0].Kind != KindString {
			return false
		}
		return rt[0].String == spec.Name
	}
}

func resolveFn(target Collection, ctx *EvalContext) (Collection, error) {
	if ctx.Resolver == nil {
		return Collection{}, nil
	}
	var out Collection
	for _, v := range target {
		v = v.Materialize()
		ref := referenceString(v)
		if ref == "" {
			continue
		}
		if resolved, ok := ctx.Resolver.Resolve(ref); ok {
			out = append(out, resolved)
		}
	}
	return out, nil
}

func referenceString(v Value) string {
	if v.Kind == KindString {
		return v.String
	}
	if v.Kind == KindObject {
		if refs, ok := v.Object["reference"]; ok && len(refs) == 1 && refs[0].Kind == KindString {
			return refs[0].String
		}
	}
	return ""
}
