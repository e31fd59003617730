package compiler

import (
	"github.com/agreefuture/yo/vm"
)

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

const (
	intrinsicDecltype = "runtime_Sdecltype"
	intrinsicOffset   = "runtime_Soffset"
)

// callTarget says how the callee address is produced.
type callTarget struct {
	sig    *FunctionSignature
	label  string // bytecode function pushed by label
	callee Expr   // function value: local, attribute or expression
}

// resolveCall finds what a call refers to, in order: a function value
// (Callee, or a local of function type), a declared function, a struct
// initializer, a method or function attribute of the implicit receiver, and
// a global of function type. The returned call may be rewritten.
func (c *Compiler) resolveCall(n *FunctionCall) (*FunctionCall, callTarget) {
	pos := n.Span().Start
	if n.Callee != nil {
		t := c.typeOf(n.Callee)
		if t.Kind != TypeFunction {
			failAt(pos, "cannot call a value of type '%s'", t)
		}
		return n, callTarget{sig: signatureOf(t), callee: n.Callee}
	}

	if t, ok := c.scope.TypeOf(n.Name); ok {
		if t.Kind != TypeFunction {
			failAt(pos, "'%s' is not a function", n.Name)
		}
		return n, callTarget{sig: signatureOf(t), callee: ident(n.Name, n.Span())}
	}
	if sig, ok := c.function(n.Name, pos); ok {
		return n, callTarget{sig: sig, label: n.Name}
	}
	if _, ok := c.types.Entry(n.Name); ok {
		init := MangleInitializer(n.Name)
		sig, _ := c.function(init, pos)
		rewritten := *n
		rewritten.Name = init
		return &rewritten, callTarget{sig: sig, label: init}
	}
	if rewritten, ok := c.implicitSelfCall(n); ok {
		return c.resolveCall(rewritten)
	}
	if _, g, ok := c.global(n.Name); ok {
		if g.Type.Kind != TypeFunction {
			failAt(pos, "'%s' is not a function", n.Name)
		}
		return n, callTarget{sig: signatureOf(g.Type), callee: ident(n.Name, n.Span())}
	}
	failAt(pos, "undefined function '%s'", n.Name)
	return nil, callTarget{}
}

func signatureOf(t *Type) *FunctionSignature {
	return &FunctionSignature{ParamTypes: t.Params, ReturnType: t.Return}
}

// emitCall pushes the arguments right to left, then the callee, and calls.
// The trailing arguments of a variadic call are collected into one array
// argument unless a single spread argument forwards an existing one. A
// buffer built for the tail is freed after the call. A discarded
// reference-counted result is released, any other is popped.
func (c *Compiler) emitCall(n *FunctionCall) {
	if n.Callee == nil {
		switch n.Name {
		case intrinsicDecltype, intrinsicOffset:
			c.emit(c.lowerIntrinsic(n))
			if n.UnusedReturnValue {
				c.op(vm.OpPOP, 0)
			}
			return
		}
	}

	call, target := c.resolveCall(n)
	sig := target.sig
	args := c.lowerArguments(call, sig)

	owned := !sig.Native && sig.Variadic && c.isMaterializedBuffer(args[len(args)-1])
	for i := len(args) - 1; i >= 0; i-- {
		c.emit(args[i])
		if owned && i == len(args)-1 {
			c.op(vm.OpDUP, 0)
		}
	}
	switch {
	case target.callee != nil:
		c.emit(target.callee)
	case sig.Native:
		c.push(sig.Address)
	default:
		c.jump(vm.OpPUSH, target.label)
	}
	c.op(vm.OpCALL, len(args))
	if owned {
		// the copy kept below the arguments is under the result now
		c.op(vm.OpSWAP, 0)
		c.emitNativeCall(MangleStatic("runtime", "free"), 1)
		c.op(vm.OpPOP, 0)
	}

	if call.UnusedReturnValue {
		if c.supportsARC(sig.ReturnType) {
			c.op(vm.OpRELEASE, 0)
		} else {
			c.op(vm.OpPOP, 0)
		}
	}
}

// isMaterializedBuffer reports whether a variadic tail is a heap copy made
// for this call. Callees borrow the buffer and the caller frees it.
func (c *Compiler) isMaterializedBuffer(arg Expr) bool {
	lit, ok := arg.(*ArrayLiteral)
	if !ok || c.arrayKind(lit) != ArrayPrimitive {
		return false
	}
	_, _, constant := constantElements(lit)
	return !constant
}

func (c *Compiler) lowerArguments(call *FunctionCall, sig *FunctionSignature) []Expr {
	pos := call.Span().Start
	name := call.Name
	if name == "" {
		name = "function value"
	}
	fixed := sig.Argc()
	if sig.Variadic {
		fixed--
		if len(call.Args) < fixed {
			failAt(pos, "wrong number of arguments in call to '%s': expected at least %d, got %d", name, fixed, len(call.Args))
		}
	} else if len(call.Args) != fixed {
		failAt(pos, "wrong number of arguments in call to '%s': expected %d, got %d", name, fixed, len(call.Args))
	}

	checked := !sig.Has(AnnotationUnchecked)
	args := make([]Expr, 0, fixed+1)
	for i := 0; i < fixed; i++ {
		expected := sig.ParamTypes[i]
		arg := c.lower(call.Args[i], expected)
		if _, spread := arg.(*Spread); spread {
			failAt(arg.Span().Start, "a spread argument is only allowed last in a variadic call")
		}
		if checked {
			if t := c.typeOf(arg); !t.IsCompatible(expected) {
				failAt(arg.Span().Start, "argument %d of '%s': cannot pass '%s' as '%s'", i+1, name, t, expected)
			}
		}
		args = append(args, arg)
	}
	if !sig.Variadic {
		return args
	}

	tail := call.Args[fixed:]
	expected := sig.ParamTypes[fixed]
	if len(tail) == 1 {
		if spread, ok := tail[0].(*Spread); ok {
			if t := c.typeOf(spread.Value); !t.IsCompatible(expected) {
				failAt(spread.Span().Start, "cannot spread '%s' as '%s'", t, expected)
			}
			return append(args, spread.Value)
		}
	}
	kind := ArrayComplex
	if expected.Kind == TypePointer {
		kind = ArrayPrimitive
	}
	span := call.Span()
	if len(tail) > 0 {
		span = Span{Start: tail[0].Span().Start, End: tail[len(tail)-1].Span().End}
	}
	for _, a := range tail {
		if _, ok := a.(*Spread); ok {
			failAt(a.Span().Start, "a spread argument is only allowed last in a variadic call")
		}
	}
	if len(tail) == 0 && kind == ArrayPrimitive {
		return append(args, number(0, span))
	}
	return append(args, at(&ArrayLiteral{Elements: tail, Kind: kind}, span))
}

// lowerIntrinsic folds runtime::decltype(e) to the name of e's type and
// runtime::offset(Type, attribute) to the attribute's byte offset.
func (c *Compiler) lowerIntrinsic(n *FunctionCall) Expr {
	pos := n.Span().Start
	switch n.Name {
	case intrinsicDecltype:
		if len(n.Args) != 1 {
			failAt(pos, "decltype takes exactly one argument")
		}
		return at(&StringLiteral{Value: c.typeOf(n.Args[0]).String()}, n.Span())
	default:
		if len(n.Args) != 2 {
			failAt(pos, "offset takes a type and an attribute name")
		}
		typeName, ok1 := n.Args[0].(*Identifier)
		attrName, ok2 := n.Args[1].(*Identifier)
		if !ok1 || !ok2 {
			failAt(pos, "offset takes a type and an attribute name")
		}
		offset, ok := c.types.Offset(typeName.Name, attrName.Name)
		if !ok {
			failAt(pos, "type '%s' has no member '%s'", typeName.Name, attrName.Name)
		}
		return number(int64(offset), n.Span())
	}
}
