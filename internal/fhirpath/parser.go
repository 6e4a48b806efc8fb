package fhirpath

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseError reports a syntax error with its source token position.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse error at %d: %s", e.Pos, e.Msg) }

// parser is a recursive-descent, precedence-climbing parser over the
// token stream Lex produces. Operator precedence (low to high) follows
// the Standard's grammar: implies < or/xor < and < membership
// (in/contains) < equality < inequality < union < additive <
// multiplicative < type (is/as) < unary < invocation/indexer.
type parser struct {
	toks []Token
	pos  int
}

// Parse lexes and parses a path-language expression into an AST.
func Parse(src string) (Node, error) {
	toks, err := Lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	node, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if p.peek().Kind != TokEOF {
		return nil, &ParseError{p.peek().Pos, "unexpected trailing input"}
	}
	return node, nil
}

func (p *parser) peek() Token   { return p.toks[p.pos] }
func (p *parser) advance() Token { t := p.toks[p.pos]; if p.pos < len(p.toks)-1 { p.pos++ }; return t }

func (p *parser) expect(k TokenKind, what string) (Token, error) {
	if p.peek().Kind != k {
		return Token{}, &ParseError{p.peek().Pos, "expected " + what}
	}
	return p.advance(), nil
}

func (p *parser) parseExpression() (Node, error) { return p.parseImplies() }

func (p *parser) parseImplies() (Node, error) {
	left, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	for p.peek().Kind == TokImplies {
		p.advance()
		right, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		left = BinaryNode{Op: TokImplies, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().Kind == TokOr || p.peek().Kind == TokXor {
		op := p.advance().Kind
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = BinaryNode{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseMembership()
	if err != nil {
		return nil, err
	}
	for p.peek().Kind == TokAnd {
		p.advance()
		right, err := p.parseMembership()
		if err != nil {
			return nil, err
		}
		left = BinaryNode{Op: TokAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseMembership() (Node, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.peek().Kind == TokIn || p.peek().Kind == TokContains {
		op := p.advance().Kind
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = BinaryNode{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseEquality() (Node, error) {
	left, err := p.parseInequality()
	if err != nil {
		return nil, err
	}
	for isEqualityOp(p.peek().Kind) {
		op := p.advance().Kind
		right, err := p.parseInequality()
		if err != nil {
			return nil, err
		}
		left = BinaryNode{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func isEqualityOp(k TokenKind) bool {
	return k == TokEq || k == TokNeq || k == TokEquiv || k == TokNequiv
}

func (p *parser) parseInequality() (Node, error) {
	left, err := p.parseUnion()
	if err != nil {
		return nil, err
	}
	for isInequalityOp(p.peek().Kind) {
		op := p.advance().Kind
		right, err := p.parseUnion()
		if err != nil {
			return nil, err
		}
		left = BinaryNode{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func isInequalityOp(k TokenKind) bool {
	return k == TokLt || k == TokLe || k == TokGt || k == TokGe
}

func (p *parser) parseUnion() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.peek().Kind == TokPipe {
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = BinaryNode{Op: TokPipe, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAdditive() (Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.peek().Kind == TokPlus || p.peek().Kind == TokMinus || p.peek().Kind == TokAmp {
		op := p.advance().Kind
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = BinaryNode{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (Node, error) {
	left, err := p.parseTypeExpr()
	if err != nil {
		return nil, err
	}
	for isMultiplicativeOp(p.peek().Kind) {
		op := p.advance().Kind
		right, err := p.parseTypeExpr()
		if err != nil {
			return nil, err
		}
		left = BinaryNode{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func isMultiplicativeOp(k TokenKind) bool {
	return k == TokStar || k == TokSlash || k == TokDiv || k == TokMod
}

func (p *parser) parseTypeExpr() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().Kind == TokIs || p.peek().Kind == TokAs {
		op := p.advance().Kind
		spec, err := p.parseTypeSpecifier()
		if err != nil {
			return nil, err
		}
		if op == TokIs {
			left = IsNode{Operand: left, Type: spec}
		} else {
			left = AsNode{Operand: left, Type: spec}
		}
	}
	return left, nil
}

func (p *parser) parseTypeSpecifier() (TypeSpecifierNode, error) {
	first, err := p.expect(TokIdent, "type name")
	if err != nil {
		return TypeSpecifierNode{}, err
	}
	if p.peek().Kind == TokDot {
		p.advance()
		second, err := p.expect(TokIdent, "type name")
		if err != nil {
			return TypeSpecifierNode{}, err
		}
		return TypeSpecifierNode{Namespace: first.Text, Name: second.Text}, nil
	}
	return TypeSpecifierNode{Name: first.Text}, nil
}

func (p *parser) parseUnary() (Node, error) {
	if p.peek().Kind == TokPlus || p.peek().Kind == TokMinus {
		op := p.advance().Kind
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return UnaryNode{Op: op, Operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Node, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().Kind {
		case TokDot:
			p.advance()
			member, err := p.parseMemberOrCall(node)
			if err != nil {
				return nil, err
			}
			node = member
		case TokLBracket:
			p.advance()
			idx, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokRBracket, "]"); err != nil {
				return nil, err
			}
			node = IndexerNode{Target: node, Index: idx}
		default:
			return node, nil
		}
	}
}

func (p *parser) parseMemberOrCall(target Node) (Node, error) {
	name, err := p.expect(TokIdent, "member or function name")
	if err != nil {
		return nil, err
	}
	if p.peek().Kind == TokLParen {
		p.advance()
		args, err := p.parseArgList()
		if err != nil {
			return nil, err
		}
		return FunctionCallNode{Target: target, Name: name.Text, Args: args}, nil
	}
	return InvocationNode{Target: target, Member: name.Text}, nil
}

func (p *parser) parseArgList() ([]Node, error) {
	var args []Node
	if p.peek().Kind == TokRParen {
		p.advance()
		return args, nil
	}
	for {
		arg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.peek().Kind == TokComma {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(TokRParen, ")"); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.peek()
	switch t.Kind {
	case TokNumber:
		p.advance()
		lit, unit := LiteralNode{}, ""
		if p.peek().Kind == TokUnit {
			unit = p.advance().Text
		} else if p.peek().Kind == TokString {
			// quantity with a UCUM unit string literal, e.g. 3 'mg'
			unit = p.advance().Text
		}
		if strings.Contains(t.Text, ".") {
			d, err := decimal.NewFromString(t.Text)
			if err != nil {
				return nil, &ParseError{t.Pos, "invalid decimal literal"}
			}
			lit = LiteralNode{Value: Dec(d), Unit: unit}
		} else {
			i, err := strconv.ParseInt(t.Text, 10, 64)
			if err != nil {
				return nil, &ParseError{t.Pos, "invalid integer literal"}
			}
			lit = LiteralNode{Value: Int(i), Unit: unit}
		}
		if unit != "" {
			q := Quantity{Unit: unit, Code: unit}
			if lit.Value.Kind == KindInteger {
				q.Value = decimal.NewFromInt(lit.Value.Integer)
			} else {
				q.Value = lit.Value.Decimal
			}
			lit.Value = Value{Kind: KindQuantity, Quantity: q}
		}
		return lit, nil
	case TokString:
		p.advance()
		return LiteralNode{Value: Str(t.Text)}, nil
	case TokDate:
		p.advance()
		return LiteralNode{Value: Value{Kind: KindDate, Date: t.Text}}, nil
	case TokDateTime:
		p.advance()
		return LiteralNode{Value: Value{Kind: KindDateTime, DateTime: t.Text}}, nil
	case TokTime:
		p.advance()
		return LiteralNode{Value: Value{Kind: KindTime, Time: t.Text}}, nil
	case TokDollarThis:
		p.advance()
		return ThisNode{}, nil
	case TokDollarIndex:
		p.advance()
		return IndexNode{}, nil
	case TokDollarTotal:
		p.advance()
		return TotalNode{}, nil
	case TokExternalConst:
		p.advance()
		return ExternalConstNode{Name: strings.TrimPrefix(t.Text, "%")}, nil
	case TokLParen:
		p.advance()
		inner, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, ")"); err != nil {
			return nil, err
		}
		return inner, nil
	case TokLBrace:
		// empty collection literal `{}`
		p.advance()
		if _, err := p.expect(TokRBrace, "}"); err != nil {
			return nil, err
		}
		return LiteralNode{Value: Empty()}, nil
	case TokIdent:
		p.advance()
		if p.peek().Kind == TokLParen {
			p.advance()
			args, err := p.parseArgList()
			if err != nil {
				return nil, err
			}
			return FunctionCallNode{Name: t.Text, Args: args}, nil
		}
		switch t.Text {
		case "true":
			return LiteralNode{Value: Bool(true)}, nil
		case "false":
			return LiteralNode{Value: Bool(false)}, nil
		}
		return IdentNode{Name: t.Text}, nil
	default:
		return nil, &ParseError{t.Pos, "unexpected token"}
	}
}
