// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package asm

import "fmt"

type parser struct {
	lex *lexer
	tok token
}

func newParser(src string) (*parser, error) {
	p := &parser{lex: newLexer(src)}
	if err := p.bump(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *parser) bump() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) expect(k tokenKind, what string) (token, error) {
	if p.tok.kind != k {
		return token{}, newError(SyntaxErr, p.tok.line, "expected %s, found %q", what, p.tok.text)
	}
	t := p.tok
	if err := p.bump(); err != nil {
		return token{}, err
	}
	return t, nil
}

func (p *parser) expectKeyword(kw string) error {
	if p.tok.kind != tokIdent || p.tok.text != kw {
		return newError(SyntaxErr, p.tok.line, "expected %q, found %q", kw, p.tok.text)
	}
	return p.bump()
}

func (p *parser) atKeyword(kw string) bool {
	return p.tok.kind == tokIdent && p.tok.text == kw
}

// parseProgram parses every graph declaration in src.
func parseProgram(src string) (*Program, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	prog := &Program{}
	for p.tok.kind != tokEOF {
		g, err := p.parseGraph()
		if err != nil {
			return nil, err
		}
		prog.Graphs = append(prog.Graphs, g)
	}
	return prog, nil
}

func (p *parser) parseGraph() (*GraphDecl, error) {
	line := p.tok.line
	if err := p.expectKeyword("graph"); err != nil {
		return nil, err
	}
	nameTok, err := p.expect(tokIdent, "graph name")
	if err != nil {
		return nil, err
	}
	g := &GraphDecl{Line: line, Name: nameTok.text, Exported: true}
	if _, err := p.expect(tokLParen, "("); err != nil {
		return nil, err
	}
	for p.tok.kind != tokRParen {
		pname, err := p.expect(tokIdent, "parameter name")
		if err != nil {
			return nil, err
		}
		param := ParamDecl{Name: pname.text}
		if p.tok.kind == tokColon {
			if err := p.bump(); err != nil {
				return nil, err
			}
			ty, err := p.parseType()
			if err != nil {
				return nil, err
			}
			param.Type = ty
		}
		g.Params = append(g.Params, param)
		if p.tok.kind == tokComma {
			if err := p.bump(); err != nil {
				return nil, err
			}
		} else {
			break
		}
	}
	if _, err := p.expect(tokRParen, ")"); err != nil {
		return nil, err
	}
	if p.tok.kind == tokColon {
		if err := p.bump(); err != nil {
			return nil, err
		}
		ty, err := p.parseType()
		if err != nil {
			return nil, err
		}
		g.ReturnType = ty
	}
	if _, err := p.expect(tokLBrace, "{"); err != nil {
		return nil, err
	}
	for p.tok.kind != tokRBrace {
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		g.Stmts = append(g.Stmts, s)
	}
	if _, err := p.expect(tokRBrace, "}"); err != nil {
		return nil, err
	}
	return g, nil
}

func (p *parser) parseType() (*TypeExpr, error) {
	switch {
	case p.atKeyword("schema"):
		if err := p.bump(); err != nil {
			return nil, err
		}
		return &TypeExpr{Schema: true}, nil
	case p.atKeyword("set"):
		if err := p.bump(); err != nil {
			return nil, err
		}
		if _, err := p.expect(tokLAngle, "<"); err != nil {
			return nil, err
		}
		elem, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRAngle, ">"); err != nil {
			return nil, err
		}
		return &TypeExpr{SetElem: elem}, nil
	case p.atKeyword("map"):
		if err := p.bump(); err != nil {
			return nil, err
		}
		if _, err := p.expect(tokLBrace, "{"); err != nil {
			return nil, err
		}
		var fields []MapFieldType
		for p.tok.kind != tokRBrace {
			fname, err := p.expect(tokIdent, "map field name")
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokColon, ":"); err != nil {
				return nil, err
			}
			fty, err := p.parseType()
			if err != nil {
				return nil, err
			}
			fields = append(fields, MapFieldType{Name: fname.text, Type: fty})
			if p.tok.kind == tokComma {
				if err := p.bump(); err != nil {
					return nil, err
				}
			} else {
				break
			}
		}
		if _, err := p.expect(tokRBrace, "}"); err != nil {
			return nil, err
		}
		return &TypeExpr{MapFields: fields}, nil
	case p.tok.kind == tokIdent && isPrimitiveName(p.tok.text):
		name := p.tok.text
		if err := p.bump(); err != nil {
			return nil, err
		}
		return &TypeExpr{Primitive: name}, nil
	case p.tok.kind == tokIdent:
		name := p.tok.text
		if err := p.bump(); err != nil {
			return nil, err
		}
		te := &TypeExpr{Named: name}
		if p.tok.kind == tokLAngle {
			if err := p.bump(); err != nil {
				return nil, err
			}
			for {
				arg, err := p.parseType()
				if err != nil {
					return nil, err
				}
				te.Args = append(te.Args, arg)
				if p.tok.kind == tokComma {
					if err := p.bump(); err != nil {
						return nil, err
					}
					continue
				}
				break
			}
			if _, err := p.expect(tokRAngle, ">"); err != nil {
				return nil, err
			}
		}
		return te, nil
	default:
		return nil, newError(SyntaxErr, p.tok.line, "expected a type, found %q", p.tok.text)
	}
}

func isPrimitiveName(s string) bool {
	switch s {
	case "int64", "double", "string", "bytes":
		return true
	default:
		return false
	}
}

func (p *parser) parseStmt() (Stmt, error) {
	line := p.tok.line
	switch {
	case p.atKeyword("return"):
		if err := p.bump(); err != nil {
			return nil, err
		}
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokSemi, ";"); err != nil {
			return nil, err
		}
		return &ReturnStmt{Line: line, Value: v}, nil
	case p.atKeyword("if"):
		return p.parseIf()
	case p.tok.kind == tokIdent && p.peekIsAssign():
		name := p.tok.text
		if err := p.bump(); err != nil {
			return nil, err
		}
		if _, err := p.expect(tokAssign, "="); err != nil {
			return nil, err
		}
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokSemi, ";"); err != nil {
			return nil, err
		}
		return &NodeStmt{Line: line, Name: name, Value: v}, nil
	default:
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokSemi, ";"); err != nil {
			return nil, err
		}
		return &NodeStmt{Line: line, Value: v}, nil
	}
}

// peekIsAssign reports whether the current ident token is immediately
// followed by '=' (a named node binding) rather than being the start
// of an expression statement. It peeks without disturbing p.tok by
// scanning a throwaway lexer copy.
func (p *parser) peekIsAssign() bool {
	tmp := *p.lex
	next, err := tmp.next()
	return err == nil && next.kind == tokAssign
}

func (p *parser) parseIf() (Stmt, error) {
	line := p.tok.line
	if err := p.expectKeyword("if"); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	stmt := &IfStmt{Line: line, Precondition: cond, Then: then}
	if p.atKeyword("else") {
		if err := p.bump(); err != nil {
			return nil, err
		}
		els, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		stmt.Else = els
	}
	return stmt, nil
}

func (p *parser) parseBlock() ([]Stmt, error) {
	if _, err := p.expect(tokLBrace, "{"); err != nil {
		return nil, err
	}
	var stmts []Stmt
	for p.tok.kind != tokRBrace {
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	if _, err := p.expect(tokRBrace, "}"); err != nil {
		return nil, err
	}
	return stmts, nil
}

// Expression grammar, lowest to highest precedence:
//   pipe := or ('$' pipe)?              (right-assoc)
//   or   := and ('||' and)*
//   and  := eq ('&&' eq)*
//   eq   := coalesce (('=='|'!=') coalesce)?
//   coalesce := unary ('??' unary)?
//   unary := '!' unary | postfix
//   postfix := primary ('.' ident | arg)*
//   arg is a postfix-without-juxtaposition-chain primary, the
//   application argument to a builtin call head.

func (p *parser) parseExpr() (Expr, error) {
	lhs, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind == tokDollar {
		line := p.tok.line
		if err := p.bump(); err != nil {
			return nil, err
		}
		rhs, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return applyPipe(lhs, rhs, line)
	}
	return lhs, nil
}

func (p *parser) parseOr() (Expr, error) {
	lhs, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOr {
		line := p.tok.line
		if err := p.bump(); err != nil {
			return nil, err
		}
		rhs, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		lhs = &BinaryExpr{Line: line, Op: OpOr, L: lhs, R: rhs}
	}
	return lhs, nil
}

func (p *parser) parseAnd() (Expr, error) {
	lhs, err := p.parseEq()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokAnd {
		line := p.tok.line
		if err := p.bump(); err != nil {
			return nil, err
		}
		rhs, err := p.parseEq()
		if err != nil {
			return nil, err
		}
		lhs = &BinaryExpr{Line: line, Op: OpAnd, L: lhs, R: rhs}
	}
	return lhs, nil
}

func (p *parser) parseEq() (Expr, error) {
	lhs, err := p.parseCoalesce()
	if err != nil {
		return nil, err
	}
	if p.tok.kind == tokEq || p.tok.kind == tokNe {
		op, line := OpEq, p.tok.line
		if p.tok.kind == tokNe {
			op = OpNe
		}
		if err := p.bump(); err != nil {
			return nil, err
		}
		rhs, err := p.parseCoalesce()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Line: line, Op: op, L: lhs, R: rhs}, nil
	}
	return lhs, nil
}

func (p *parser) parseCoalesce() (Expr, error) {
	lhs, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.tok.kind == tokCoalesce {
		line := p.tok.line
		if err := p.bump(); err != nil {
			return nil, err
		}
		rhs, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &SelectExpr{Line: line, L: lhs, R: rhs}, nil
	}
	return lhs, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.tok.kind == tokNot {
		line := p.tok.line
		if err := p.bump(); err != nil {
			return nil, err
		}
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Line: line, Op: OpNot, X: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.tok.kind == tokDot:
			if err := p.bump(); err != nil {
				return nil, err
			}
			fname, err := p.expect(tokIdent, "field name")
			if err != nil {
				return nil, err
			}
			e = &FieldExpr{Line: fname.line, Recv: e, Field: fname.text}
		case p.canStartArg():
			arg, err := p.parseArg()
			if err != nil {
				return nil, err
			}
			e, err = applyArg(e, arg)
			if err != nil {
				return nil, err
			}
		default:
			return e, nil
		}
	}
}

// canStartArg reports whether the current token can begin a
// juxtaposed application argument (as opposed to ending the
// expression).
func (p *parser) canStartArg() bool {
	switch p.tok.kind {
	case tokIdent, tokInt, tokString, tokHexBytes, tokLParen:
		return true
	default:
		return false
	}
}

// parseArg parses one application argument: a primary plus any
// dotted-field chain, but not a further juxtaposed application (that
// would be ambiguous with the next argument).
func (p *parser) parseArg() (Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokDot {
		if err := p.bump(); err != nil {
			return nil, err
		}
		fname, err := p.expect(tokIdent, "field name")
		if err != nil {
			return nil, err
		}
		e = &FieldExpr{Line: fname.line, Recv: e, Field: fname.text}
	}
	return e, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	line := p.tok.line
	switch p.tok.kind {
	case tokInt:
		v := p.tok.ival
		if err := p.bump(); err != nil {
			return nil, err
		}
		return &LiteralExpr{Line: line, Kind: LitInt, Int: v}, nil
	case tokString:
		v := p.tok.text
		if err := p.bump(); err != nil {
			return nil, err
		}
		return &LiteralExpr{Line: line, Kind: LitString, Str: v}, nil
	case tokHexBytes:
		v := p.tok.bval
		if err := p.bump(); err != nil {
			return nil, err
		}
		return &LiteralExpr{Line: line, Kind: LitBytes, Byt: v}, nil
	case tokLParen:
		if err := p.bump(); err != nil {
			return nil, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return e, nil
	case tokIdent:
		return p.parseIdentPrimary()
	default:
		return nil, newError(SyntaxErr, line, "unexpected token %q", p.tok.text)
	}
}

func (p *parser) parseIdentPrimary() (Expr, error) {
	line := p.tok.line
	name := p.tok.text
	switch name {
	case "null":
		if err := p.bump(); err != nil {
			return nil, err
		}
		return &LiteralExpr{Line: line, Kind: LitNull}, nil
	case "true", "false":
		if err := p.bump(); err != nil {
			return nil, err
		}
		return &LiteralExpr{Line: line, Kind: LitBool, Int: boolInt(name == "true")}, nil
	case "create_map":
		if err := p.bump(); err != nil {
			return nil, err
		}
		return &CreateMapExpr{Line: line}, nil
	case "m_insert":
		field, err := p.parseParenIdent()
		if err != nil {
			return nil, err
		}
		return &MapInsertExpr{Line: line, Field: field}, nil
	case "delete_from_map":
		field, err := p.parseParenIdent()
		if err != nil {
			return nil, err
		}
		return &MapDeleteExpr{Line: line, Field: field}, nil
	case "t_insert":
		field, err := p.parseParenIdent()
		if err != nil {
			return nil, err
		}
		return &TableInsertExpr{Line: line, Field: field}, nil
	case "delete_from_table":
		field, err := p.parseParenIdent()
		if err != nil {
			return nil, err
		}
		return &TableDeleteExpr{Line: line, Field: field}, nil
	case "build_table":
		if err := p.bump(); err != nil {
			return nil, err
		}
		if _, err := p.expect(tokLParen, "("); err != nil {
			return nil, err
		}
		ty, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return &BuildTableExpr{Line: line, Type: ty}, nil
	case "call":
		graph, err := p.parseParenIdent()
		if err != nil {
			return nil, err
		}
		return &CallExpr{Line: line, Graph: graph}, nil
	case "s_insert":
		if err := p.bump(); err != nil {
			return nil, err
		}
		return &SetInsertExpr{Line: line}, nil
	case "delete_from_set":
		if err := p.bump(); err != nil {
			return nil, err
		}
		return &SetDeleteExpr{Line: line}, nil
	case "point_get":
		if err := p.bump(); err != nil {
			return nil, err
		}
		return &PointGetExpr{Line: line}, nil
	case "select":
		if err := p.bump(); err != nil {
			return nil, err
		}
		return &SelectExpr{Line: line}, nil
	default:
		if err := p.bump(); err != nil {
			return nil, err
		}
		return &RefExpr{Line: line, Name: name}, nil
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (p *parser) parseParenIdent() (string, error) {
	if err := p.bump(); err != nil {
		return "", err
	}
	if _, err := p.expect(tokLParen, "("); err != nil {
		return "", err
	}
	id, err := p.expect(tokIdent, "identifier")
	if err != nil {
		return "", err
	}
	if _, err := p.expect(tokRParen, ")"); err != nil {
		return "", err
	}
	return id.text, nil
}

// applyPipe fills the right-hand side of '$' into lhs's trailing
// operand slot.
func applyPipe(lhs, rhs Expr, line int) (Expr, error) {
	switch e := lhs.(type) {
	case *MapInsertExpr:
		if e.Map != nil {
			return nil, newError(ArityErr, line, "m_insert already has a map operand")
		}
		e.Map = rhs
		return e, nil
	case *MapDeleteExpr:
		if e.Map != nil {
			return nil, newError(ArityErr, line, "delete_from_map already has a map operand")
		}
		e.Map = rhs
		return e, nil
	case *BuildTableExpr:
		if e.Map != nil {
			return nil, newError(ArityErr, line, "build_table already has a map operand")
		}
		e.Map = rhs
		return e, nil
	case *TableInsertExpr:
		if e.Value != nil {
			return nil, newError(ArityErr, line, "t_insert already has a value operand")
		}
		e.Value = rhs
		return e, nil
	case *SetInsertExpr:
		if e.Value != nil {
			return nil, newError(ArityErr, line, "s_insert already has a value operand")
		}
		e.Value = rhs
		return e, nil
	default:
		return nil, newError(ArityErr, line, "left side of $ is not a partial application")
	}
}

// applyArg fills one juxtaposed argument into e's first unfilled
// operand slot, in the order that slot is conventionally supplied
// (table/set before value, field before selector).
func applyArg(e, arg Expr) (Expr, error) {
	switch v := e.(type) {
	case *MapInsertExpr:
		if v.Value == nil {
			v.Value = arg
			return v, nil
		}
	case *MapDeleteExpr:
		if v.Map == nil {
			v.Map = arg
			return v, nil
		}
	case *BuildTableExpr:
		if v.Map == nil {
			v.Map = arg
			return v, nil
		}
	case *TableInsertExpr:
		if v.Table == nil {
			v.Table = arg
			return v, nil
		}
	case *TableDeleteExpr:
		if v.Table == nil {
			v.Table = arg
			return v, nil
		}
	case *SetInsertExpr:
		if v.Set == nil {
			v.Set = arg
			return v, nil
		}
	case *SetDeleteExpr:
		if v.Selector == nil {
			v.Selector = arg
			return v, nil
		}
		if v.Set == nil {
			v.Set = arg
			return v, nil
		}
	case *PointGetExpr:
		if v.Set == nil {
			v.Set = arg
			return v, nil
		}
		if v.Selector == nil {
			v.Selector = arg
			return v, nil
		}
	case *SelectExpr:
		if v.L == nil {
			v.L = arg
			return v, nil
		}
		if v.R == nil {
			v.R = arg
			return v, nil
		}
	case *CallExpr:
		v.Args = append(v.Args, arg)
		return v, nil
	}
	return nil, fmt.Errorf("asm: too many arguments applied to %T", e)
}
