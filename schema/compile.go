// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package schema

import "fmt"

// Compile parses schema source text and monomorphizes every generic
// record type reachable from an export into a concrete SpecializedType,
// interned by its stable textual name. It implements the algorithm of
// the teacher's type-resolution pass adapted to record-type
// specialization: recursive types are broken by inserting a not-yet-
// filled SpecializedType into the intern cache before resolving its
// fields, so a field referencing its own enclosing type (directly or
// through a chain) resolves to the same pointer instead of looping.
func Compile(src string) (*CompiledSchema, error) {
	file, err := parseFile(src)
	if err != nil {
		return nil, err
	}

	c := &compiler{
		decls: make(map[string]*TypeDecl),
		cache: make(map[string]*SpecializedType),
	}

	for _, td := range file.Types {
		if _, dup := c.decls[td.Name]; dup {
			c.errs = append(c.errs, newError(DuplicateTypeErr, td.Loc, "type %q declared more than once", td.Name))
			continue
		}
		c.decls[td.Name] = td
	}
	if len(c.errs) > 0 {
		return nil, c.errs
	}

	out := &CompiledSchema{Types: make(map[string]*SpecializedType), Exports: make(map[string]FieldType)}
	seenExport := make(map[string]bool)
	for _, ed := range file.Exports {
		if seenExport[ed.TableName] {
			c.errs = append(c.errs, newError(DuplicateExportErr, ed.Loc, "export %q declared more than once", ed.TableName))
			continue
		}
		seenExport[ed.TableName] = true
		ft, err := c.resolveTypeExpr(ed.Type, nil)
		if err != nil {
			return nil, err
		}
		out.Exports[ed.TableName] = ft
		out.ExportOrder = append(out.ExportOrder, ed.TableName)
	}
	if len(c.errs) > 0 {
		return nil, c.errs
	}

	for name, st := range c.cache {
		out.Types[name] = st
	}

	c.validateAll(out)
	if len(c.errs) > 0 {
		return nil, c.errs
	}
	return out, nil
}

// compiler holds the state of one Compile invocation: the raw type
// declarations by name and the cache of already-specialized (or
// in-progress) types, keyed by their specialized name.
type compiler struct {
	decls map[string]*TypeDecl
	cache map[string]*SpecializedType
	errs  Errors
}

// resolveTypeExpr resolves an AST type expression to a concrete
// FieldType under the given generic-parameter bindings (nil at the
// top level, where there are none).
func (c *compiler) resolveTypeExpr(expr TypeExpr, bindings map[string]FieldType) (FieldType, error) {
	switch e := expr.(type) {
	case *PrimitiveExpr:
		prim, ok := primitiveFromName(e.Name)
		if !ok {
			return nil, newError(UnknownTypeErr, e.Loc, "unknown primitive type %q", e.Name)
		}
		return PrimitiveField{Prim: prim}, nil

	case *SetExpr:
		elem, err := c.resolveTypeExpr(e.Elem, bindings)
		if err != nil {
			return nil, err
		}
		return SetField{Elem: elem}, nil

	case *NamedExpr:
		if bound, ok := bindings[e.Name]; ok && len(e.Args) == 0 {
			return bound, nil
		}
		decl, ok := c.decls[e.Name]
		if !ok {
			return nil, newError(UnknownTypeErr, e.Loc, "unknown type %q", e.Name)
		}
		if len(e.Args) != len(decl.Generics) {
			return nil, newError(ArityMismatchErr, e.Loc,
				"type %q expects %d type argument(s), got %d", e.Name, len(decl.Generics), len(e.Args))
		}
		resolvedArgs := make([]FieldType, len(e.Args))
		for i, a := range e.Args {
			ft, err := c.resolveTypeExpr(a, bindings)
			if err != nil {
				return nil, err
			}
			resolvedArgs[i] = ft
		}
		return c.specialize(decl, resolvedArgs)
	default:
		return nil, fmt.Errorf("schema: unhandled type expression %T", expr)
	}
}

func specializedName(base string, args []FieldType) string {
	if len(args) == 0 {
		return base
	}
	name := base + "<"
	for i, a := range args {
		if i > 0 {
			name += ","
		}
		name += a.String()
	}
	return name + ">"
}

// specialize monomorphizes decl with resolvedArgs, returning the
// (possibly shared, possibly still-filling) SpecializedType wrapped as
// a NamedField.
func (c *compiler) specialize(decl *TypeDecl, resolvedArgs []FieldType) (FieldType, error) {
	name := specializedName(decl.Name, resolvedArgs)
	if existing, ok := c.cache[name]; ok {
		return NamedField{Type: existing}, nil
	}

	st := newSpecializedType(name)
	c.cache[name] = st // inserted before resolving fields: breaks recursive cycles

	bindings := make(map[string]FieldType, len(decl.Generics))
	for i, g := range decl.Generics {
		bindings[g] = resolvedArgs[i]
	}

	seenField := make(map[string]bool)
	for _, fd := range decl.Fields {
		if seenField[fd.Name] {
			c.errs = append(c.errs, newError(DuplicateFieldErr, fd.Loc, "field %q declared more than once in type %q", fd.Name, decl.Name))
			continue
		}
		seenField[fd.Name] = true

		ft, err := c.resolveTypeExpr(fd.Type, bindings)
		if err != nil {
			return nil, err
		}
		if fd.Optional {
			ft = OptionalField{Inner: ft}
		}
		anns, err := c.resolveAnnotations(fd)
		if err != nil {
			return nil, err
		}
		st.addField(&Field{Name: fd.Name, Type: ft, Annotations: anns})
	}

	return NamedField{Type: st}, nil
}

func (c *compiler) resolveAnnotations(fd *FieldDecl) ([]FieldAnnotation, error) {
	out := make([]FieldAnnotation, 0, len(fd.Annotations))
	for _, a := range fd.Annotations {
		switch a.Name {
		case "primary":
			out = append(out, FieldAnnotation{Kind: AnnPrimary})
		case "unique":
			out = append(out, FieldAnnotation{Kind: AnnUnique})
		case "index":
			out = append(out, FieldAnnotation{Kind: AnnIndex})
		case "packed":
			out = append(out, FieldAnnotation{Kind: AnnPacked})
		case "default":
			if len(a.Args) != 1 {
				c.errs = append(c.errs, newError(BadAnnotationArgsErr, a.Loc, "@default takes exactly one literal argument"))
				continue
			}
			out = append(out, FieldAnnotation{Kind: AnnDefault, DefaultLit: a.Args[0]})
		case "rename_from":
			if len(a.Args) != 1 || a.Args[0].Kind != LitString {
				c.errs = append(c.errs, newError(BadAnnotationArgsErr, a.Loc, "@rename_from takes exactly one string argument"))
				continue
			}
			out = append(out, FieldAnnotation{Kind: AnnRenameFrom, RenameOld: a.Args[0].Str})
		default:
			c.errs = append(c.errs, newError(UnknownAnnotationErr, a.Loc, "unknown annotation @%s", a.Name))
		}
	}
	return out, nil
}

// validateAll runs the cross-field and cross-type validations that
// can only be checked once every reachable specialization has been
// resolved: primary-key cardinality, annotation applicability,
// rename_from collisions, default-literal type agreement, and the
// requirement that any set's element type carry a non-optional
// primary key.
func (c *compiler) validateAll(s *CompiledSchema) {
	for _, st := range s.Types {
		c.validateType(st)
	}
	for name, ft := range s.Exports {
		c.validateSetElements(ft, name)
	}
	for _, st := range s.Types {
		for _, f := range st.Fields() {
			c.validateSetElements(f.Type, st.Name+"."+f.Name)
		}
	}
}

func (c *compiler) validateType(st *SpecializedType) {
	primaryCount := 0
	renameOld := make(map[string]bool)
	for _, f := range st.Fields() {
		if f.HasAnnotation(AnnPrimary) {
			primaryCount++
		}
		for _, a := range f.Annotations {
			switch a.Kind {
			case AnnUnique, AnnIndex:
				_, isPrim := f.Type.(PrimitiveField)
				packed := f.HasAnnotation(AnnPacked)
				if !isPrim && !packed {
					c.errs = append(c.errs, newError(IndexOnNonPrimitiveErr, st.loc(),
						"field %q of type %q: @unique/@index only apply to primitive or packed fields", f.Name, st.Name))
				}
			case AnnDefault:
				if prim, ok := f.Type.(PrimitiveField); ok {
					if !defaultLiteralMatches(prim.Prim, a.DefaultLit) {
						c.errs = append(c.errs, newError(DefaultTypeMismatchErr, st.loc(),
							"field %q of type %q: @default literal does not match field type %s", f.Name, st.Name, prim.Prim))
					}
				}
			case AnnRenameFrom:
				if renameOld[a.RenameOld] {
					c.errs = append(c.errs, newError(DuplicateRenameFromErr, st.loc(),
						"field %q of type %q: more than one @rename_from with the same old name", f.Name, st.Name))
				}
				renameOld[a.RenameOld] = true
				if _, exists := st.Field(a.RenameOld); exists {
					c.errs = append(c.errs, newError(RenameFromCollisionErr, st.loc(),
						"field %q of type %q: @rename_from(%q) collides with an existing field of that name", f.Name, st.Name, a.RenameOld))
				}
			}
		}
	}
	if primaryCount > 1 {
		c.errs = append(c.errs, newError(MultiplePrimaryErr, st.loc(),
			"type %q declares more than one @primary field", st.Name))
	}
}

// validateSetElements recurses into ft looking for SetField nodes and
// checks that each one's element type has exactly one non-optional
// @primary field, identifying the offending location by ctx.
func (c *compiler) validateSetElements(ft FieldType, ctx string) {
	switch v := ft.(type) {
	case SetField:
		named, ok := v.Elem.(NamedField)
		if !ok {
			c.errs = append(c.errs, newError(MissingPrimaryOnSetElementErr, Location{},
				"%s: set element type must be a named record type with a primary key", ctx))
			return
		}
		if pf, ok := named.Type.PrimaryField(); !ok {
			c.errs = append(c.errs, newError(MissingPrimaryOnSetElementErr, Location{},
				"%s: set element type %q has no @primary field", ctx, named.Type.Name))
		} else if _, opt := pf.Type.(OptionalField); opt {
			c.errs = append(c.errs, newError(MissingPrimaryOnSetElementErr, Location{},
				"%s: primary key of set element type %q is optional", ctx, named.Type.Name))
		}
		c.validateSetElements(v.Elem, ctx)
	case OptionalField:
		c.validateSetElements(v.Inner, ctx)
	case NamedField:
		// Fields of the named type are validated independently as that
		// type's own SpecializedType entry; do not recurse here or
		// every cycle would loop forever.
	}
}

func defaultLiteralMatches(p Primitive, lit Literal) bool {
	switch p {
	case String:
		return lit.Kind == LitString
	case Int64:
		return lit.Kind == LitInt
	case Bytes:
		return lit.Kind == LitBytes
	case Double:
		return lit.Kind == LitInt // integer literals are accepted as double defaults (e.g. @default(0))
	default:
		return false
	}
}

// loc returns a best-effort location for a SpecializedType: record
// types don't currently retain the declaration's Location once
// specialized (the same decl may specialize many times at different
// call sites), so whole-type errors are reported without one.
func (t *SpecializedType) loc() Location { return Location{} }
