// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package schema

import "fmt"

// parser is a hand-written recursive-descent parser over the token
// stream produced by lexer. It mirrors the teacher's ast/parser.go
// structure: a single lookahead token and explicit expect helpers.
// Parsing stops at the first error, which is returned rather than
// panicked.
type parser struct {
	lex  *lexer
	tok  token
	errs Errors
}

func newParser(src string) (*parser, error) {
	p := &parser{lex: newLexer(src)}
	if err := p.bump(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *parser) bump() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) loc() Location { return Location{Pos: p.tok.pos, Line: p.tok.line} }

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	if p.tok.kind != kind {
		return token{}, newError(ParseErr, p.loc(), "expected %s, found %s", what, p.describe())
	}
	t := p.tok
	if err := p.bump(); err != nil {
		return token{}, err
	}
	return t, nil
}

func (p *parser) describe() string {
	switch p.tok.kind {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return fmt.Sprintf("identifier %q", p.tok.text)
	default:
		return "token"
	}
}

func (p *parser) expectIdent(what string) (string, Location, error) {
	loc := p.loc()
	t, err := p.expect(tokIdent, what)
	if err != nil {
		return "", loc, err
	}
	return t.text, loc, nil
}

// parseFile parses a complete schema source into a File AST.
func parseFile(src string) (*File, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	f := &File{}
	for p.tok.kind != tokEOF {
		if p.tok.kind == tokIdent && p.tok.text == "type" {
			td, err := p.parseTypeDecl()
			if err != nil {
				return nil, err
			}
			f.Types = append(f.Types, td)
			continue
		}
		if p.tok.kind == tokIdent && p.tok.text == "export" {
			ed, err := p.parseExportDecl()
			if err != nil {
				return nil, err
			}
			f.Exports = append(f.Exports, ed)
			continue
		}
		return nil, newError(ParseErr, p.loc(), "expected 'type' or 'export', found %s", p.describe())
	}
	return f, nil
}

func (p *parser) parseTypeDecl() (*TypeDecl, error) {
	loc := p.loc()
	if err := p.bump(); err != nil { // consume 'type'
		return nil, err
	}
	name, _, err := p.expectIdent("type name")
	if err != nil {
		return nil, err
	}
	td := &TypeDecl{Loc: loc, Name: name}
	if p.tok.kind == tokLAngle {
		if err := p.bump(); err != nil {
			return nil, err
		}
		for {
			g, _, err := p.expectIdent("generic parameter name")
			if err != nil {
				return nil, err
			}
			td.Generics = append(td.Generics, g)
			if p.tok.kind == tokComma {
				if err := p.bump(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
		if _, err := p.expect(tokRAngle, "'>'"); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(tokLBrace, "'{'"); err != nil {
		return nil, err
	}
	for p.tok.kind != tokRBrace {
		fd, err := p.parseFieldDecl()
		if err != nil {
			return nil, err
		}
		td.Fields = append(td.Fields, fd)
		if p.tok.kind == tokComma {
			if err := p.bump(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if _, err := p.expect(tokRBrace, "'}'"); err != nil {
		return nil, err
	}
	return td, nil
}

func (p *parser) parseFieldDecl() (*FieldDecl, error) {
	loc := p.loc()
	fd := &FieldDecl{Loc: loc}
	for p.tok.kind == tokAt {
		ann, err := p.parseAnnotation()
		if err != nil {
			return nil, err
		}
		fd.Annotations = append(fd.Annotations, ann)
	}
	name, nameLoc, err := p.expectIdent("field name")
	if err != nil {
		return nil, err
	}
	fd.Name = name
	fd.Loc = nameLoc
	if _, err := p.expect(tokColon, "':'"); err != nil {
		return nil, err
	}
	ty, err := p.parseTypeExpr()
	if err != nil {
		return nil, err
	}
	fd.Type = ty
	if p.tok.kind == tokQuestion {
		fd.Optional = true
		if err := p.bump(); err != nil {
			return nil, err
		}
	}
	return fd, nil
}

func (p *parser) parseAnnotation() (*Annotation, error) {
	loc := p.loc()
	if err := p.bump(); err != nil { // consume '@'
		return nil, err
	}
	name, _, err := p.expectIdent("annotation name")
	if err != nil {
		return nil, err
	}
	ann := &Annotation{Loc: loc, Name: name}
	if p.tok.kind == tokLParen {
		if err := p.bump(); err != nil {
			return nil, err
		}
		for p.tok.kind != tokRParen {
			lit, err := p.parseLiteral()
			if err != nil {
				return nil, err
			}
			ann.Args = append(ann.Args, lit)
			if p.tok.kind == tokComma {
				if err := p.bump(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
	}
	return ann, nil
}

func (p *parser) parseLiteral() (Literal, error) {
	switch p.tok.kind {
	case tokString:
		s := p.tok.text
		if err := p.bump(); err != nil {
			return Literal{}, err
		}
		return Literal{Kind: LitString, Str: s}, nil
	case tokInt:
		v := p.tok.ival
		if err := p.bump(); err != nil {
			return Literal{}, err
		}
		return Literal{Kind: LitInt, Int: v}, nil
	case tokHexBytes:
		b := p.tok.bval
		if err := p.bump(); err != nil {
			return Literal{}, err
		}
		return Literal{Kind: LitBytes, Byt: b}, nil
	default:
		return Literal{}, newError(ParseErr, p.loc(), "expected literal, found %s", p.describe())
	}
}

// parseTypeExpr parses a type expression: a primitive name, `set<T>`,
// or a named type reference with optional `<Args>` specialization.
func (p *parser) parseTypeExpr() (TypeExpr, error) {
	loc := p.loc()
	name, _, err := p.expectIdent("type name")
	if err != nil {
		return nil, err
	}
	if name == "set" {
		if _, err := p.expect(tokLAngle, "'<'"); err != nil {
			return nil, err
		}
		elem, err := p.parseTypeExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRAngle, "'>'"); err != nil {
			return nil, err
		}
		return &SetExpr{Loc: loc, Elem: elem}, nil
	}
	if primitiveNames[name] {
		return &PrimitiveExpr{Loc: loc, Name: name}, nil
	}
	ne := &NamedExpr{Loc: loc, Name: name}
	if p.tok.kind == tokLAngle {
		if err := p.bump(); err != nil {
			return nil, err
		}
		for {
			arg, err := p.parseTypeExpr()
			if err != nil {
				return nil, err
			}
			ne.Args = append(ne.Args, arg)
			if p.tok.kind == tokComma {
				if err := p.bump(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
		if _, err := p.expect(tokRAngle, "'>'"); err != nil {
			return nil, err
		}
	}
	return ne, nil
}

func (p *parser) parseExportDecl() (*ExportDecl, error) {
	loc := p.loc()
	if err := p.bump(); err != nil { // consume 'export'
		return nil, err
	}
	ty, err := p.parseTypeExpr()
	if err != nil {
		return nil, err
	}
	name, _, err := p.expectIdent("export name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokSemi, "';'"); err != nil {
		return nil, err
	}
	return &ExportDecl{Loc: loc, Type: ty, TableName: name}, nil
}
