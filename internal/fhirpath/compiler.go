package fhirpath

import "fmt"

// Opcode is one instruction in a compiled Plan (spec §4.2's bytecode).
type Opcode int

const (
	OpPushConst Opcode = iota
	OpLoadThis
	OpLoadIndex
	OpLoadTotal
	OpLoadVar
	OpNavigate
	OpCallUnary
	OpCallBinary
	OpCallFn
	OpIndex
	OpDup
	OpPop
	OpWhere
	OpSelect
	OpIif
	OpOfType
	OpIs
	OpAs
	OpJump
	OpJumpIfFalse
	OpReturn
)

// Instr is one opcode plus its operands. Which fields are meaningful
// depends on Op; unused fields are zero.
type Instr struct {
	Op      Opcode
	Const   int    // index into Plan.Consts
	Segment string // Navigate: element name
	Impl    string // CallUnary/CallBinary/CallFn: builtin name
	Argc    int    // CallFn: argument count (each already pushed as a Collection)
	Sub     int    // Where/Select/Iif-then: index into Plan.Subplans
	Sub2    int    // Iif-else: index into Plan.Subplans (-1 if absent)
	Type    TypeSpecifierNode
	Target  int // Jump/JumpIfFalse: instruction index
}

// Plan is a compiled, flat instruction list ready for the VM. Subplans hold
// the bodies of lambda arguments (where/select/all/exists/iif branches),
// each compiled and invoked with a fresh $this/$index context.
type Plan struct {
	Instrs       []Instr
	Consts       []Value
	Subplans     []*Plan
	MaxStackDepth int
	Type         ExprType
}

// Compiler lowers a parsed AST into a Plan. No type pass runs: no node is
// annotated with an ExprType, Plan.Type is left at its zero value, member
// access is not resolved against any conformance context, and type errors
// are reported only when the VM runs the plan.
type Compiler struct {
	registry *TypeRegistry
	depth    int
	maxDepth int
}

func NewCompiler() *Compiler {
	return &Compiler{registry: NewTypeRegistry()}
}

// Compile compiles a parsed AST node into an executable Plan.
func Compile(node Node) (*Plan, error) {
	c := NewCompiler()
	plan := &Plan{}
	if err := c.emit(plan, node); err != nil {
		return nil, err
	}
	plan.Instrs = append(plan.Instrs, Instr{Op: OpReturn})
	plan.MaxStackDepth = c.maxDepth
	if plan.MaxStackDepth > MaxStackDepthCeiling {
		return nil, fmt.Errorf("fhirpath: plan stack depth %d exceeds ceiling %d", plan.MaxStackDepth, MaxStackDepthCeiling)
	}
	return plan, nil
}

func (c *Compiler) push() {
	c.depth++
	if c.depth > c.maxDepth {
		c.maxDepth = c.depth
	}
}
func (c *Compiler) pop() { c.depth-- }

func (c *Compiler) constIndex(plan *Plan, v Value) int {
	plan.Consts = append(plan.Consts, v)
	return len(plan.Consts) - 1
}

func (c *Compiler) subplanIndex(plan *Plan, sub *Plan) int {
	plan.Subplans = append(plan.Subplans, sub)
	return len(plan.Subplans) - 1
}

// compileSub compiles a lambda-argument node into its own Plan, sharing
// this compiler's max-stack-depth tracking (a subplan's depth contributes
// to the same ceiling since subplans run on the VM's one shared stack
// within a nested call, not concurrently).
func (c *Compiler) compileSub(node Node) (*Plan, error) {
	sub := &Plan{}
	savedDepth := c.depth
	c.depth = 0
	if err := c.emit(sub, node); err != nil {
		return nil, err
	}
	sub.Instrs = append(sub.Instrs, Instr{Op: OpReturn})
	c.depth = savedDepth
	return sub, nil
}

func (c *Compiler) emit(plan *Plan, node Node) error {
	switch n := node.(type) {
	case LiteralNode:
		idx := c.constIndex(plan, n.Value)
		plan.Instrs = append(plan.Instrs, Instr{Op: OpPushConst, Const: idx})
		c.push()
		return nil

	case ThisNode:
		plan.Instrs = append(plan.Instrs, Instr{Op: OpLoadThis})
		c.push()
		return nil
	case IndexNode:
		plan.Instrs = append(plan.Instrs, Instr{Op: OpLoadIndex})
		c.push()
		return nil
	case TotalNode:
		plan.Instrs = append(plan.Instrs, Instr{Op: OpLoadTotal})
		c.push()
		return nil

	case ExternalConstNode:
		plan.Instrs = append(plan.Instrs, Instr{Op: OpLoadVar, Segment: n.Name})
		c.push()
		return nil

	case IdentNode:
		// A bare identifier at the start of an expression is implicit
		// navigation from $this (e.g. a top-level "name" in a resource
		// context); emit LoadThis then Navigate, same as InvocationNode with
		// a nil target would.
		plan.Instrs = append(plan.Instrs, Instr{Op: OpLoadThis})
		c.push()
		plan.Instrs = append(plan.Instrs, Instr{Op: OpNavigate, Segment: n.Name})
		return nil

	case InvocationNode:
		if n.Target != nil {
			if err := c.emit(plan, n.Target); err != nil {
				return err
			}
		} else {
			plan.Instrs = append(plan.Instrs, Instr{Op: OpLoadThis})
			c.push()
		}
		plan.Instrs = append(plan.Instrs, Instr{Op: OpNavigate, Segment: n.Member})
		return nil

	case IndexerNode:
		if err := c.emit(plan, n.Target); err != nil {
			return err
		}
		if err := c.emit(plan, n.Index); err != nil {
			return err
		}
		plan.Instrs = append(plan.Instrs, Instr{Op: OpIndex})
		c.pop()
		return nil

	case UnaryNode:
		if err := c.emit(plan, n.Operand); err != nil {
			return err
		}
		plan.Instrs = append(plan.Instrs, Instr{Op: OpCallUnary, Impl: opName(n.Op)})
		return nil

	case BinaryNode:
		return c.emitBinary(plan, n)

	case IsNode:
		if err := c.emit(plan, n.Operand); err != nil {
			return err
		}
		plan.Instrs = append(plan.Instrs, Instr{Op: OpIs, Type: n.Type})
		return nil

	case AsNode:
		if err := c.emit(plan, n.Operand); err != nil {
			return err
		}
		plan.Instrs = append(plan.Instrs, Instr{Op: OpAs, Type: n.Type})
		return nil

	case FunctionCallNode:
		return c.emitFunctionCall(plan, n)

	default:
		return fmt.Errorf("fhirpath: compiler: unhandled node type %T", node)
	}
}

func opName(op TokenKind) string {
	switch op {
	case TokPlus:
		return "+"
	case TokMinus:
		return "-"
	default:
		return "?"
	}
}

func (c *Compiler) emitBinary(plan *Plan, n BinaryNode) error {
	// `where`/`select`/boolean short-circuit forms are handled as function
	// calls, not binary operators; every BinaryNode here is a plain
	// operator applied to two already-evaluated collections.
	if err := c.emit(plan, n.Left); err != nil {
		return err
	}
	if err := c.emit(plan, n.Right); err != nil {
		return err
	}
	plan.Instrs = append(plan.Instrs, Instr{Op: OpCallBinary, Impl: binaryOpName(n.Op)})
	c.pop()
	return nil
}

func binaryOpName(op TokenKind) string {
	names := map[TokenKind]string{
		TokPlus: "+", TokMinus: "-", TokStar: "*", TokSlash: "/",
		TokDiv: "div", TokMod: "mod", TokAmp: "&", TokPipe: "|",
		TokEq: "=", TokNeq: "!=", TokEquiv: "~", TokNequiv: "!~",
		TokLt: "<", TokLe: "<=", TokGt: ">", TokGe: ">=",
		TokAnd: "and", TokOr: "or", TokXor: "xor", TokImplies: "implies",
		TokIn: "in", TokContains: "contains",
	}
	return names[op]
}

// lambdaFunctions names the builtins whose arguments are subplans invoked
// per-item rather than plain eagerly-evaluated collections.
var lambdaFunctions = map[string]bool{
	"where": true, "select": true, "all": true, "exists": true,
	"repeat": true, "aggregate": true, "sort": true,
}

func (c *Compiler) emitFunctionCall(plan *Plan, n FunctionCallNode) error {
	if n.Target != nil {
		if err := c.emit(plan, n.Target); err != nil {
			return err
		}
	} else {
		plan.Instrs = append(plan.Instrs, Instr{Op: OpLoadThis})
		c.push()
	}

	switch n.Name {
	case "iif":
		if len(n.Args) < 2 {
			return fmt.Errorf("fhirpath: iif requires at least 2 arguments")
		}
		if err := c.emit(plan, n.Args[0]); err != nil {
			return err
		}
		thenSub, err := c.compileSub(n.Args[1])
		if err != nil {
			return err
		}
		elseIdx := -1
		if len(n.Args) > 2 {
			elseSub, err := c.compileSub(n.Args[2])
			if err != nil {
				return err
			}
			elseIdx = c.subplanIndex(plan, elseSub)
		}
		thenIdx := c.subplanIndex(plan, thenSub)
		plan.Instrs = append(plan.Instrs, Instr{Op: OpIif, Sub: thenIdx, Sub2: elseIdx})
		return nil

	case "ofType":
		if len(n.Args) != 1 {
			return fmt.Errorf("fhirpath: ofType requires exactly 1 argument")
		}
		ident, ok := n.Args[0].(IdentNode)
		if !ok {
			return fmt.Errorf("fhirpath: ofType argument must be a type name")
		}
		plan.Instrs = append(plan.Instrs, Instr{Op: OpOfType, Type: TypeSpecifierNode{Name: ident.Name}})
		return nil

	default:
		if lambdaFunctions[n.Name] {
			return c.emitLambdaCall(plan, n)
		}
		for _, arg := range n.Args {
			if err := c.emit(plan, arg); err != nil {
				return err
			}
		}
		plan.Instrs = append(plan.Instrs, Instr{Op: OpCallFn, Impl: n.Name, Argc: len(n.Args)})
		for range n.Args {
			c.pop()
		}
		return nil
	}
}

func (c *Compiler) emitLambdaCall(plan *Plan, n FunctionCallNode) error {
	if len(n.Args) == 0 {
		plan.Instrs = append(plan.Instrs, Instr{Op: OpCallFn, Impl: n.Name, Argc: 0})
		return nil
	}
	sub, err := c.compileSub(n.Args[0])
	if err != nil {
		return err
	}
	subIdx := c.subplanIndex(plan, sub)
	switch n.Name {
	case "where", "all", "exists":
		plan.Instrs = append(plan.Instrs, Instr{Op: OpWhere, Sub: subIdx, Impl: n.Name})
	case "select", "repeat":
		plan.Instrs = append(plan.Instrs, Instr{Op: OpSelect, Sub: subIdx, Impl: n.Name})
	default:
		plan.Instrs = append(plan.Instrs, Instr{Op: OpCallFn, Impl: n.Name, Argc: 1, Sub: subIdx})
	}
	return nil
}
