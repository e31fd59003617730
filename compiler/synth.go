package compiler

import (
	"github.com/agreefuture/yo/vm"
)

// ---------------------------------------------------------------------------
// Auto-synthesis: initializers, accessors and dealloc functions for structs
// ---------------------------------------------------------------------------

const (
	deallocMember   = "__dealloc"
	userDealloc     = "dealloc"
	objectLocal     = "%object"
	closureReceiver = "%self"
	closureInvoke   = "%invoke"
	deferHandleType = "_DeferHandle"
)

func ident(name string, span Span) *Identifier {
	return at(&Identifier{Name: name}, span)
}

func number(v int64, span Span) *NumberLiteral {
	return at(&NumberLiteral{Value: v}, span)
}

func attributeOf(object, attr string, span Span) *MemberAccess {
	return at(&MemberAccess{Members: []MemberSegment{
		{Kind: MemberInitialIdentifier, Name: object},
		{Kind: MemberAttribute, Name: attr},
	}}, span)
}

func methodCall(object, method string, args []Expr, unused bool, span Span) *MemberAccess {
	call := at(&FunctionCall{Name: method, Args: args, UnusedReturnValue: unused}, span)
	return at(&MemberAccess{Members: []MemberSegment{
		{Kind: MemberInitialIdentifier, Name: object},
		{Kind: MemberFunctionCall, Name: method, Call: call},
	}}, span)
}

func block(span Span, stmts ...Stmt) *Composite {
	return at(&Composite{Statements: stmts}, span)
}

// synthesize generates the initializer, getters, setters and dealloc
// function of a registered struct.
func (c *Compiler) synthesize(decl *TypeDeclaration) []*FunctionDeclaration {
	entry, ok := c.types.Entry(decl.Name)
	if !ok {
		failAt(decl.Span().Start, "type '%s' is not registered", decl.Name)
	}
	span := decl.Span()
	self := Complex(decl.Name)

	// T_Sinit(attrs...): T
	var params []*Parameter
	init := []Stmt{
		at(&VariableDeclaration{
			Name:  objectLocal,
			Type:  self,
			Value: at(&Typecast{Value: c.callNamed("runtime_Salloc", span, number(int64(entry.Size), span)), Type: self}, span),
		}, span),
		at(&ArraySetter{
			Target: at(&Typecast{Value: ident(objectLocal, span), Type: PointerTo(I64)}, span),
			Offset: number(0, span),
			Value:  number(vm.MakeHeader(int64(entry.Index), 1), span),
		}, span),
	}
	for _, attr := range entry.Attributes {
		params = append(params, &Parameter{Name: attr.Name, Type: attr.Type})
		init = append(init, at(&Assignment{Target: attributeOf(objectLocal, attr.Name, span), Value: ident(attr.Name, span)}, span))
	}
	init = append(init, at(&ReturnStatement{Value: ident(objectLocal, span)}, span))

	fns := []*FunctionDeclaration{at(&FunctionDeclaration{
		Name:       "init",
		Kind:       FunctionStatic,
		TypeName:   decl.Name,
		Params:     params,
		ReturnType: self,
		Body:       block(span, init...),
	}, span)}

	// getters and setters
	for _, attr := range entry.Attributes {
		fns = append(fns,
			at(&FunctionDeclaration{
				Name:       "get_" + attr.Name,
				Kind:       FunctionInstance,
				TypeName:   decl.Name,
				Params:     []*Parameter{{Name: "self", Type: self}},
				ReturnType: attr.Type,
				Body:       block(span, at(&ReturnStatement{Value: attributeOf("self", attr.Name, span)}, span)),
			}, span),
			at(&FunctionDeclaration{
				Name:       "set_" + attr.Name,
				Kind:       FunctionInstance,
				TypeName:   decl.Name,
				Params:     []*Parameter{{Name: "self", Type: self}, {Name: "%value", Type: attr.Type}},
				ReturnType: Void,
				Body:       block(span, at(&Assignment{Target: attributeOf("self", attr.Name, span), Value: ident("%value", span)}, span)),
			}, span),
		)
	}

	// dealloc: the user's dealloc method first, then the attributes
	var teardown []Stmt
	if _, ok := c.functions[MangleInstance(decl.Name, userDealloc)]; ok {
		teardown = append(teardown, methodCall("self", userDealloc, nil, true, span))
	}
	for _, attr := range entry.Attributes {
		if c.types.SupportsARC(attr.Type) {
			release := c.callNamed("runtime_Srelease", span, attributeOf("self", attr.Name, span))
			release.UnusedReturnValue = true
			teardown = append(teardown, release)
		}
	}
	fns = append(fns, at(&FunctionDeclaration{
		Name:        deallocMember,
		Kind:        FunctionInstance,
		TypeName:    decl.Name,
		Params:      []*Parameter{{Name: "self", Type: self}},
		ReturnType:  Void,
		Annotations: AnnotationDisableARC,
		Body:        block(span, teardown...),
	}, span))

	return fns
}

func (c *Compiler) callNamed(name string, span Span, args ...Expr) *FunctionCall {
	return at(&FunctionCall{Name: name, Args: args}, span)
}

// ---------------------------------------------------------------------------
// Protocols
// ---------------------------------------------------------------------------

// expandProtocols copies protocol default methods into every conforming
// type that does not implement them. Base protocols apply to every struct.
// Self in a method signature becomes the conforming type.
func expandProtocols(nodes []Stmt) []Stmt {
	protocols := make(map[string]*ProtocolDeclaration)
	var base []string
	implemented := make(map[string]map[string]bool)

	for _, node := range nodes {
		switch n := node.(type) {
		case *ProtocolDeclaration:
			if _, dup := protocols[n.Name]; dup {
				failAt(n.Span().Start, "protocol '%s' declared more than once", n.Name)
			}
			protocols[n.Name] = n
			if n.Annotations.Has(AnnotationBaseProtocol) {
				base = append(base, n.Name)
			}
		case *TypeImplementation:
			if implemented[n.TypeName] == nil {
				implemented[n.TypeName] = make(map[string]bool)
			}
			for _, fn := range n.Functions {
				if fn.Kind == FunctionInstance {
					implemented[n.TypeName][fn.Name] = true
				}
			}
		}
	}

	out := nodes
	for _, node := range nodes {
		decl, ok := node.(*TypeDeclaration)
		if !ok {
			continue
		}
		conforms := append([]string(nil), decl.Protocols...)
		for _, b := range base {
			if !contains(conforms, b) {
				conforms = append(conforms, b)
			}
		}

		impl := at(&TypeImplementation{TypeName: decl.Name}, decl.Span())
		self := Complex(decl.Name)
		for _, name := range conforms {
			proto, ok := protocols[name]
			if !ok {
				failAt(decl.Span().Start, "type '%s' conforms to unknown protocol '%s'", decl.Name, name)
			}
			for _, fn := range proto.Functions {
				if implemented[decl.Name][fn.Name] {
					continue
				}
				if fn.Body == nil {
					failAt(decl.Span().Start, "type '%s' does not implement '%s' required by protocol '%s'", decl.Name, fn.Name, name)
				}
				params := make([]*Parameter, len(fn.Params))
				for i, p := range fn.Params {
					params[i] = &Parameter{Name: p.Name, Type: p.Type.replaceNamed("Self", self)}
				}
				impl.Functions = append(impl.Functions, at(&FunctionDeclaration{
					Name:        fn.Name,
					Kind:        FunctionInstance,
					TypeName:    decl.Name,
					Params:      params,
					ReturnType:  fn.ReturnType.replaceNamed("Self", self),
					Variadic:    fn.Variadic,
					Annotations: fn.Annotations,
					Body:        fn.Body,
				}, fn.Span()))
				if implemented[decl.Name] == nil {
					implemented[decl.Name] = make(map[string]bool)
				}
				implemented[decl.Name][fn.Name] = true
			}
		}
		if len(impl.Functions) > 0 {
			out = append(out, impl)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
