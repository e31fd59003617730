package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Lambdas
// ---------------------------------------------------------------------------

// lower rewrites an expression for a context expecting type expected:
// lambdas become functions or closure objects, inferred array literals take
// the representation of the expected type.
func (c *Compiler) lower(e Expr, expected *Type) Expr {
	switch v := e.(type) {
	case *Lambda:
		return c.resolveLambda(v, expected)
	case *ArrayLiteral:
		if v.Kind != ArrayInferred || expected == nil {
			return v
		}
		switch {
		case expected.IsComplex() && expected.Name == "Array":
			return at(&ArrayLiteral{Elements: v.Elements, Kind: ArrayComplex}, v.Span())
		case expected.Kind == TypePointer:
			return at(&ArrayLiteral{Elements: v.Elements, Kind: ArrayPrimitive}, v.Span())
		}
	}
	return e
}

// lambdaType returns the declared type of a lambda; parameters without an
// annotation stay unresolved and a missing return type means void.
func lambdaType(l *Lambda) *Type {
	params := make([]*Type, len(l.Params))
	for i, p := range l.Params {
		params[i] = p.Type
		if params[i] == nil {
			params[i] = Unresolved
		}
	}
	ret := l.ReturnType
	if ret == nil || ret.Kind == TypeUnresolved {
		ret = Void
	}
	return FunctionOf(ret, params...)
}

// capture is a variable of the enclosing frame used by a lambda body.
type capture struct {
	Name string
	Type *Type
}

// resolveLambda synthesizes the code for a lambda. A lambda that captures
// nothing becomes a plain function referenced by name. Otherwise a closure
// struct is registered holding the invoke function followed by the
// captured values, and the lambda becomes a call of its initializer.
func (c *Compiler) resolveLambda(l *Lambda, expected *Type) Expr {
	span := l.Span()
	pos := span.Start
	if expected != nil {
		switch expected.Kind {
		case TypeFunction, TypeAny, TypeID:
		default:
			failAt(pos, "cannot use a lambda as a value of type '%s'", expected)
		}
	}
	var want *Type
	if expected != nil && expected.Kind == TypeFunction {
		want = expected
		if len(want.Params) != len(l.Params) {
			failAt(pos, "lambda takes %d parameters, but %d are expected", len(l.Params), len(want.Params))
		}
	}

	params := make([]*Parameter, len(l.Params))
	paramTypes := make([]*Type, len(l.Params))
	for i, p := range l.Params {
		t := p.Type
		if t == nil || !t.IsResolved() {
			if want == nil {
				failAt(pos, "cannot infer the type of lambda parameter '%s'", p.Name)
			}
			t = want.Params[i]
		}
		t = c.resolveType(t, pos)
		params[i] = &Parameter{Name: p.Name, Type: t}
		paramTypes[i] = t
	}
	ret := l.ReturnType
	if ret == nil || !ret.IsResolved() {
		ret = Void
		if want != nil {
			ret = want.Return
		}
	}
	ret = c.resolveType(ret, pos)

	var annotations Annotations
	if !c.scope.ARC {
		annotations |= AnnotationDisableARC
	}
	if c.scope.Unsafe {
		annotations |= AnnotationUnsafe
	}
	c.stats.Lambdas++

	captures := c.captures(l)
	if len(captures) == 0 {
		name := fmt.Sprintf("__%s_lambda_invoke_%d", c.scope.Function, c.nextID())
		fn := at(&FunctionDeclaration{
			Name:        name,
			Params:      params,
			ReturnType:  ret,
			Annotations: annotations,
			Body:        l.Body,
		}, span)
		c.registerFunction(fn)
		c.emitDetached(fn)
		return ident(name, span)
	}

	typeName := fmt.Sprintf("__%s_lambda_literal_%d", c.scope.Function, c.nextID())
	self := Complex(typeName)
	attrs := []*Parameter{{Name: closureInvoke, Type: FunctionOf(ret, append([]*Type{self}, paramTypes...)...)}}
	args := []Expr{nil}
	for _, cap := range captures {
		attrs = append(attrs, &Parameter{Name: cap.Name, Type: cap.Type})
		args = append(args, ident(cap.Name, span))
	}
	decl := at(&TypeDeclaration{Name: typeName, Attributes: attrs}, span)
	c.types.Register(decl)

	invoke := at(&FunctionDeclaration{
		Name:        "invoke",
		Kind:        FunctionInstance,
		TypeName:    typeName,
		Params:      append([]*Parameter{{Name: closureReceiver, Type: self}}, params...),
		ReturnType:  ret,
		Annotations: annotations,
		Body:        l.Body,
	}, span)

	synthesized := c.synthesize(decl)
	for _, fn := range synthesized {
		c.registerFunction(fn)
	}
	c.registerFunction(invoke)
	for _, fn := range synthesized {
		c.emitDetached(fn)
	}
	c.emitDetached(invoke)

	args[0] = at(&Typecast{Value: ident(invoke.MangledName(), span), Type: Any}, span)
	init := at(&FunctionCall{Name: MangleInitializer(typeName), Args: args}, span)
	return at(&Typecast{Value: init, Type: FunctionOf(ret, paramTypes...)}, span)
}

// captures lists the variables of the current frame that the lambda body
// refers to, in order of first use. A member of the implicit receiver
// captures the receiver itself.
func (c *Compiler) captures(l *Lambda) []capture {
	declared := make(map[string]bool)
	for _, p := range l.Params {
		declared[p.Name] = true
	}
	var refs []string
	seen := make(map[string]bool)
	ref := func(name string) {
		if !seen[name] {
			seen[name] = true
			refs = append(refs, name)
		}
	}

	var visit func(Node) bool
	visit = func(node Node) bool {
		switch v := node.(type) {
		case *Identifier:
			ref(v.Name)
		case *FunctionCall:
			if v.Callee == nil {
				ref(v.Name)
			}
		case *Assignment:
			if id, ok := v.Target.(*Identifier); ok {
				ref(id.Name)
			}
		case *VariableDeclaration:
			declared[v.Name] = true
		case *ForLoop:
			declared[v.Variable] = true
		case *Lambda:
			for _, p := range v.Params {
				declared[p.Name] = true
			}
		case *MemberAccess:
			for _, m := range v.Members {
				switch m.Kind {
				case MemberInitialIdentifier:
					ref(m.Name)
				case MemberInitialCall:
					Inspect(m.Call, visit)
				case MemberInitialExpression:
					Inspect(m.Expr, visit)
				case MemberFunctionCall:
					for _, a := range m.Call.Args {
						Inspect(a, visit)
					}
				}
			}
			return false
		}
		return true
	}
	Inspect(l.Body, visit)

	var out []capture
	added := make(map[string]bool)
	add := func(name string, t *Type) {
		if !added[name] {
			added[name] = true
			out = append(out, capture{Name: name, Type: t})
		}
	}
	for _, name := range refs {
		if declared[name] {
			continue
		}
		if t, ok := c.scope.TypeOf(name); ok {
			add(name, t)
			continue
		}
		if _, isFunction := c.functions[name]; isFunction {
			continue
		}
		if _, _, ok := c.selfPath(name, true); ok {
			recv, _ := c.scope.Receiver()
			add(recv.Name, recv.Type)
		}
	}
	return out
}
