package compiler

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/agreefuture/yo/vm"
)

// ---------------------------------------------------------------------------
// Array literals
// ---------------------------------------------------------------------------

// arrayKind decides the representation of a literal whose kind was not
// fixed by the expected type: an empty literal or one holding only
// reference-counted values is an Array, anything else a primitive buffer.
func (c *Compiler) arrayKind(n *ArrayLiteral) ArrayKind {
	if n.Kind != ArrayInferred {
		return n.Kind
	}
	for _, e := range n.Elements {
		if !c.supportsARC(c.typeOf(e)) {
			return ArrayPrimitive
		}
	}
	return ArrayComplex
}

// constantElements returns the values of a literal made only of number
// literals, as doubles if any element is one.
func constantElements(n *ArrayLiteral) ([]int64, bool, bool) {
	doubles := false
	for _, e := range n.Elements {
		lit, ok := e.(*NumberLiteral)
		if !ok {
			return nil, false, false
		}
		doubles = doubles || lit.IsDouble
	}
	values := make([]int64, len(n.Elements))
	for i, e := range n.Elements {
		lit := e.(*NumberLiteral)
		switch {
		case !doubles:
			values[i] = lit.Value
		case lit.IsDouble:
			values[i] = doubleBits(lit.Double)
		default:
			values[i] = doubleBits(float64(lit.Value))
		}
	}
	return values, doubles, true
}

func (c *Compiler) VisitArrayLiteral(n *ArrayLiteral) {
	pos := n.Span().Start
	kind := c.arrayKind(n)
	if kind == ArrayPrimitive {
		if len(n.Elements) == 0 {
			failAt(pos, "cannot allocate an empty primitive array")
		}
		if values, _, ok := constantElements(n); ok {
			c.jump(vm.OpLOADC, c.constantBlob(8, values))
			return
		}
		c.emitCall(at(&FunctionCall{Name: c.primitiveArrayInitializer(len(n.Elements)), Args: n.Elements}, n.Span()))
		return
	}

	if _, ok := c.types.Entry("Array"); !ok {
		failAt(pos, "complex array literals require the prelude type 'Array'")
	}
	if len(n.Elements) == 0 {
		c.emitCall(at(&FunctionCall{Name: MangleStatic("Array", "new")}, n.Span()))
		return
	}
	for _, e := range n.Elements {
		if t := c.typeOf(e); !c.supportsARC(t) {
			failAt(e.Span().Start, "a complex array literal cannot contain a value of type '%s'", t)
		}
	}
	c.emitCall(at(&FunctionCall{Name: c.complexArrayInitializer(len(n.Elements)), Args: n.Elements}, n.Span()))
}

func (c *Compiler) arrayLiteralType(n *ArrayLiteral) *Type {
	if c.arrayKind(n) == ArrayComplex {
		return Complex("Array")
	}
	if _, doubles, ok := constantElements(n); ok && doubles {
		return PointerTo(Double)
	}
	return PointerTo(I64)
}

// constantBlob registers a constant array and returns its label. Identical
// blobs share one label.
func (c *Compiler) constantBlob(elementSize int, values []int64) string {
	key := fmt.Sprint(elementSize, values)
	if name, ok := c.literals[key]; ok {
		return name
	}
	name := "array_" + uuid.NewString()
	c.literals[key] = name
	c.data = append(c.data, arrayLiteral(name, elementSize, values))
	return name
}

// primitiveArrayInitializer returns the function that copies n values into
// a fresh 8-byte-per-element buffer, synthesizing it on first use.
func (c *Compiler) primitiveArrayInitializer(n int) string {
	member := fmt.Sprintf("_specializedPrimitiveArrayInitializer%d", n)
	name := MangleStatic("runtime", member)
	if _, ok := c.functions[name]; ok {
		return name
	}
	const buffer = "%buffer"
	var span Span
	params := make([]*Parameter, n)
	body := []Stmt{at(&VariableDeclaration{
		Name:  buffer,
		Type:  PointerTo(Any),
		Value: at(&Typecast{Value: c.callNamed(MangleStatic("runtime", "alloc"), span, number(int64(8*n), span)), Type: PointerTo(Any)}, span),
	}, span)}
	for i := range params {
		arg := fmt.Sprintf("_%d", i)
		params[i] = &Parameter{Name: arg, Type: Any}
		body = append(body, at(&ArraySetter{Target: ident(buffer, span), Offset: number(int64(i), span), Value: ident(arg, span)}, span))
	}
	body = append(body, at(&ReturnStatement{Value: at(&Typecast{Value: ident(buffer, span), Type: PointerTo(I64)}, span)}, span))

	fn := &FunctionDeclaration{
		Name:        member,
		Kind:        FunctionStatic,
		TypeName:    "runtime",
		Params:      params,
		ReturnType:  PointerTo(I64),
		Annotations: AnnotationDisableARC,
		Body:        block(span, body...),
	}
	c.registerFunction(fn)
	c.emitDetached(fn)
	return name
}

// complexArrayInitializer returns the function that appends n objects to a
// new Array, synthesizing it on first use.
func (c *Compiler) complexArrayInitializer(n int) string {
	member := fmt.Sprintf("_arrayLiteralInit%d", n)
	name := MangleStatic("Array", member)
	if _, ok := c.functions[name]; ok {
		return name
	}
	const array = "%array"
	var span Span
	params := make([]*Parameter, n)
	body := []Stmt{at(&VariableDeclaration{
		Name:  array,
		Type:  Complex("Array"),
		Value: c.callNamed(MangleStatic("Array", "new"), span),
	}, span)}
	for i := range params {
		arg := fmt.Sprintf("_%d", i)
		params[i] = &Parameter{Name: arg, Type: ID}
		body = append(body, methodCall(array, "append", []Expr{ident(arg, span)}, true, span))
	}
	body = append(body, at(&ReturnStatement{Value: ident(array, span)}, span))

	fn := &FunctionDeclaration{
		Name:       member,
		Kind:       FunctionStatic,
		TypeName:   "Array",
		Params:     params,
		ReturnType: Complex("Array"),
		Body:       block(span, body...),
	}
	c.registerFunction(fn)
	c.emitDetached(fn)
	return name
}
