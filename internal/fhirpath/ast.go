package fhirpath

// Node is a parsed AST node. Nodes carry no static type annotation; the
// compiler lowers them directly to opcodes.
type Node interface{ node() }

type (
	// LiteralNode is a constant value: string/number/boolean/date/time/quantity.
	LiteralNode struct {
		Value Value
		Unit  string // non-empty for quantity literals, e.g. "3 'mg'" or "3 days"
	}

	// IdentNode is a bare member-access segment ("name", "Patient").
	IdentNode struct{ Name string }

	// ThisNode / IndexNode / TotalNode reference the implicit iteration
	// variables inside a lambda subplan.
	ThisNode  struct{}
	IndexNode struct{}
	TotalNode struct{}

	// ExternalConstNode references a %-prefixed environment variable
	// (%context, %resource, %ucum, or a caller-supplied constant).
	ExternalConstNode struct{ Name string }

	// InvocationNode is `Target.Member` member access.
	InvocationNode struct {
		Target Node
		Member string
	}

	// IndexerNode is `Target[Index]`.
	IndexerNode struct {
		Target Node
		Index  Node
	}

	// FunctionCallNode is `Target.fn(args...)`, or a bare `fn(args...)` when
	// Target is nil (applies to $this implicitly, e.g. top-level `where(...)`).
	FunctionCallNode struct {
		Target Node
		Name   string
		Args   []Node
	}

	// UnaryNode is `-x` / `+x`.
	UnaryNode struct {
		Op      TokenKind
		Operand Node
	}

	// BinaryNode covers arithmetic, comparison, equality, membership,
	// boolean, and union operators.
	BinaryNode struct {
		Op    TokenKind
		Left  Node
		Right Node
	}

	// TypeSpecifierNode names a type for is/as/ofType — possibly
	// namespace-qualified ("FHIR.Patient", "System.String").
	TypeSpecifierNode struct {
		Namespace string // "" if unqualified
		Name      string
	}

	// IsNode / AsNode carry an operand plus a type specifier; kept
	// distinct from a generic FunctionCallNode because the compiler lowers
	// them to dedicated opcodes (Is/As). `ofType(T)` is parsed as a
	// FunctionCallNode, which the compiler lowers to OfType.
	IsNode struct {
		Operand Node
		Type    TypeSpecifierNode
	}
	AsNode struct {
		Operand Node
		Type    TypeSpecifierNode
	}
)

func (LiteralNode) node()       {}
func (IdentNode) node()         {}
func (ThisNode) node()          {}
func (IndexNode) node()         {}
func (TotalNode) node()         {}
func (ExternalConstNode) node() {}
func (InvocationNode) node()    {}
func (IndexerNode) node()       {}
func (FunctionCallNode) node()  {}
func (UnaryNode) node()         {}
func (BinaryNode) node()        {}
func (IsNode) node()            {}
func (AsNode) node()            {}
