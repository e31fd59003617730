package compiler

import (
	"math"

	"github.com/agreefuture/yo/vm"
)

// ---------------------------------------------------------------------------
// Expression codegen
// ---------------------------------------------------------------------------

var intOps = map[BinaryOperator]vm.Opcode{
	OpAdd: vm.OpADD, OpSub: vm.OpSUB, OpMul: vm.OpMUL, OpDiv: vm.OpDIV, OpMod: vm.OpMOD,
	OpAnd: vm.OpAND, OpOr: vm.OpOR, OpXor: vm.OpXOR, OpShl: vm.OpSHL, OpShr: vm.OpSHR,
}

var doubleOps = map[BinaryOperator]vm.Opcode{
	OpAdd: vm.OpDADD, OpSub: vm.OpDSUB, OpMul: vm.OpDMUL, OpDiv: vm.OpDDIV,
}

var loadOps = map[int]vm.Opcode{1: vm.OpLOADH8, 2: vm.OpLOADH16, 4: vm.OpLOADH32, 8: vm.OpLOADH64}

var storeOps = map[int]vm.Opcode{1: vm.OpSTOREH8, 2: vm.OpSTOREH16, 4: vm.OpSTOREH32, 8: vm.OpSTOREH64}

func doubleBits(f float64) int64 {
	return int64(math.Float64bits(f))
}

func (c *Compiler) VisitIdentifier(n *Identifier) {
	pos := n.Span().Start
	switch n.Name {
	case "nil":
		c.push(0)
		return
	case "#function":
		c.VisitStringLiteral(at(&StringLiteral{Value: c.scope.Function}, n.Span()))
		return
	}
	if idx, ok := c.scope.Index(n.Name); ok {
		c.op(vm.OpLOAD, idx)
		return
	}
	if access, ok := c.implicitSelfAttribute(n.Name, n.Span()); ok {
		c.VisitMemberAccess(access)
		return
	}
	if i, _, ok := c.global(n.Name); ok {
		c.op(vm.OpREADH, globalAddress(i))
		return
	}
	if k, ok := c.constants[n.Name]; ok {
		c.emit(c.constantValue(k))
		return
	}
	if sig, ok := c.function(n.Name, pos); ok {
		if sig.Native {
			c.push(sig.Address)
		} else {
			c.jump(vm.OpPUSH, n.Name)
		}
		return
	}
	failAt(pos, "undefined identifier '%s'", n.Name)
}

func (c *Compiler) constantValue(k *ConstantDeclaration) Expr {
	if k.Type != nil && k.Type.IsResolved() {
		return at(&Typecast{Value: k.Value, Type: k.Type}, k.Span())
	}
	return k.Value
}

func (c *Compiler) VisitNumberLiteral(n *NumberLiteral) {
	if n.IsDouble {
		c.push(doubleBits(n.Double))
		return
	}
	c.push(n.Value)
}

func (c *Compiler) VisitBooleanLiteral(n *BooleanLiteral) {
	if n.Value {
		c.push(1)
	} else {
		c.push(0)
	}
}

// VisitStringLiteral stores the bytes as a constant blob and wraps them in
// a String object.
func (c *Compiler) VisitStringLiteral(n *StringLiteral) {
	c.emitCall(c.stringInit(n))
}

func (c *Compiler) stringInit(n *StringLiteral) *FunctionCall {
	if _, ok := c.types.Entry("String"); !ok {
		failAt(n.Span().Start, "string literals require the prelude type 'String'")
	}
	return at(&FunctionCall{Name: MangleInitializer("String"), Args: []Expr{c.cString(n.Value, n.Span())}}, n.Span())
}

// cString returns an expression yielding the address of a NUL-terminated
// constant copy of s.
func (c *Compiler) cString(s string, span Span) *RawInstruction {
	values := make([]int64, 0, len(s)+1)
	for i := 0; i < len(s); i++ {
		values = append(values, int64(s[i]))
	}
	values = append(values, 0)
	blob := c.constantBlob(1, values)
	return at(&RawInstruction{
		Instructions: []UnresolvedInstruction{unresolved(vm.OpLOADC, blob)},
		Type:         PointerTo(I8),
	}, span)
}

func (c *Compiler) VisitBinaryOperation(n *BinaryOperation) {
	pos := n.Span().Start
	lt, rt := c.typeOf(n.LHS), c.typeOf(n.RHS)
	if lt.Kind == TypeDouble || rt.Kind == TypeDouble {
		op, ok := doubleOps[n.Op]
		if !ok {
			failAt(pos, "operator '%s' is not defined for doubles", n.Op)
		}
		c.emitAsDouble(n.LHS, lt, pos)
		c.emitAsDouble(n.RHS, rt, pos)
		c.op(op, 0)
		return
	}
	checkArithmetic(n.Op.String(), lt, pos)
	checkArithmetic(n.Op.String(), rt, pos)
	c.emit(n.LHS)
	c.emit(n.RHS)
	c.op(intOps[n.Op], 0)
}

func checkArithmetic(op string, t *Type, pos Position) {
	if !t.IsIntegral() && t.Kind != TypePointer && t.Kind != TypeAny {
		failAt(pos, "operator '%s' cannot be applied to a value of type '%s'", op, t)
	}
}

func (c *Compiler) emitAsDouble(e Expr, t *Type, pos Position) {
	c.emit(e)
	if t.Kind == TypeDouble {
		return
	}
	if !t.IsIntegral() && t.Kind != TypeAny {
		failAt(pos, "cannot use a value of type '%s' as a double", t)
	}
	c.op(vm.OpCVTI2D, 0)
}

func (c *Compiler) VisitUnaryExpression(n *UnaryExpression) {
	pos := n.Span().Start
	t := c.typeOf(n.Operand)
	switch n.Op {
	case UnaryNegate:
		c.emit(n.Operand)
		if t.Kind == TypeDouble {
			c.push(doubleBits(-1))
			c.op(vm.OpDMUL, 0)
			return
		}
		checkArithmetic("-", t, pos)
		c.push(-1)
		c.op(vm.OpMUL, 0)
	case UnaryBitwiseNot:
		checkArithmetic("~", t, pos)
		c.emit(n.Operand)
		c.op(vm.OpNOT, 0)
	case UnaryLogicalNot:
		c.emit(n.Operand)
		c.op(vm.OpLNOT, 0)
	}
}

// VisitComparison leaves 1 or 0. Greater-than comparisons negate the
// opposite test so that operands are still evaluated left to right.
func (c *Compiler) VisitComparison(n *Comparison) {
	pos := n.Span().Start
	lt, rt := c.typeOf(n.LHS), c.typeOf(n.RHS)
	relational := n.Op != CmpEqual && n.Op != CmpNotEqual
	if relational {
		checkArithmetic(n.Op.String(), lt, pos)
		checkArithmetic(n.Op.String(), rt, pos)
	}

	eq, less, lessEq := vm.OpEQ, vm.OpLT, vm.OpLE
	if lt.Kind == TypeDouble || rt.Kind == TypeDouble {
		eq, less, lessEq = vm.OpDEQ, vm.OpDLT, vm.OpDLE
		c.emitAsDouble(n.LHS, lt, pos)
		c.emitAsDouble(n.RHS, rt, pos)
	} else {
		c.emit(n.LHS)
		c.emit(n.RHS)
	}

	switch n.Op {
	case CmpEqual:
		c.op(eq, 0)
	case CmpNotEqual:
		c.op(eq, 0)
		c.op(vm.OpLNOT, 0)
	case CmpLess:
		c.op(less, 0)
	case CmpLessEqual:
		c.op(lessEq, 0)
	case CmpGreater:
		c.op(lessEq, 0)
		c.op(vm.OpLNOT, 0)
	case CmpGreaterEqual:
		c.op(less, 0)
		c.op(vm.OpLNOT, 0)
	}
}

// VisitBinaryCondition short-circuits: the left truth value is kept on the
// stack and decides whether the right side runs.
func (c *Compiler) VisitBinaryCondition(n *BinaryCondition) {
	end := c.localLabel("cond_end", c.nextID())
	c.emitCondition(n.LHS)
	c.op(vm.OpDUP, 0)
	if n.Op == LogicalAnd {
		c.op(vm.OpLNOT, 0)
	}
	c.jump(vm.OpJUMP, end)
	c.op(vm.OpPOP, 0)
	c.emitCondition(n.RHS)
	c.add(label(end))
}

func (c *Compiler) VisitImplicitNonZeroComparison(n *ImplicitNonZeroComparison) {
	c.emit(n.Value)
	c.op(vm.OpLNOT, 0)
	c.op(vm.OpLNOT, 0)
}

// emitCondition leaves 1 or 0 for any expression.
func (c *Compiler) emitCondition(e Expr) {
	if _, ok := e.(Cond); ok {
		c.emit(e)
		return
	}
	c.VisitImplicitNonZeroComparison(at(&ImplicitNonZeroComparison{Value: e}, e.Span()))
}

func (c *Compiler) VisitFunctionCall(n *FunctionCall) {
	c.emitCall(n)
}

func (c *Compiler) VisitTypeMemberFunctionCall(n *TypeMemberFunctionCall) {
	c.emitCall(c.lowerTypeMemberCall(n))
}

func (c *Compiler) lowerTypeMemberCall(n *TypeMemberFunctionCall) *FunctionCall {
	return at(&FunctionCall{
		Name:              MangleStatic(n.TypeName, n.Member),
		Args:              n.Args,
		UnusedReturnValue: n.UnusedReturnValue,
	}, n.Span())
}

func (c *Compiler) VisitMemberAccess(n *MemberAccess) {
	resolved, _ := c.resolveMemberAccess(n)
	c.emit(resolved)
}

// VisitArrayGetter loads an element of the target's width. Array objects
// are read through Array.get.
func (c *Compiler) VisitArrayGetter(n *ArrayGetter) {
	pos := n.Span().Start
	sub := c.subscriptOf(n.Target, n.FieldType, pos)
	if sub.array {
		c.emitCall(at(&FunctionCall{Name: MangleInstance("Array", "get"), Args: []Expr{n.Target, n.Offset}}, n.Span()))
		return
	}
	c.emitOffset(n.Offset, sub.scale, pos)
	c.emit(n.Target)
	c.op(loadOps[sub.width], 0)
}

type subscript struct {
	width int
	scale int // bytes per index step
	elem  *Type
	array bool
}

func (c *Compiler) subscriptOf(target Expr, field *Type, pos Position) subscript {
	if field != nil {
		t := c.resolveType(field, pos)
		return subscript{width: t.Size(), scale: 1, elem: t}
	}
	t := c.typeOf(target)
	switch {
	case t.Kind == TypePointer:
		elem := t.Elem
		if elem.Kind == TypeVoid {
			elem = Any
		}
		return subscript{width: elem.Size(), scale: elem.Size(), elem: elem}
	case t.Kind == TypeAny:
		return subscript{width: 8, scale: 8, elem: Any}
	case t.IsComplex() && t.Name == "Array":
		return subscript{array: true, elem: Any}
	}
	failAt(pos, "cannot subscript a value of type '%s'", t)
	return subscript{}
}

func (c *Compiler) emitOffset(offset Expr, scale int, pos Position) {
	if lit, ok := offset.(*NumberLiteral); ok && !lit.IsDouble {
		c.push(lit.Value * int64(scale))
		return
	}
	if t := c.typeOf(offset); !t.IsIntegral() && t.Kind != TypeAny {
		failAt(pos, "index must be an integer, not '%s'", t)
	}
	c.emit(offset)
	if scale != 1 {
		c.push(int64(scale))
		c.op(vm.OpMUL, 0)
	}
}

func (c *Compiler) VisitLambda(n *Lambda) {
	c.emit(c.resolveLambda(n, nil))
}

func (c *Compiler) VisitRawInstruction(n *RawInstruction) {
	c.add(n.Instructions...)
}

func (c *Compiler) VisitPointerOperation(n *PointerOperation) {
	pos := n.Span().Start
	switch n.Op {
	case PointerDeref:
		t := c.typeOf(n.Operand)
		if t.Kind != TypePointer && t.Kind != TypeAny {
			failAt(pos, "cannot dereference a value of type '%s'", t)
		}
		c.VisitArrayGetter(at(&ArrayGetter{Target: n.Operand, Offset: number(0, n.Span())}, n.Span()))
	default:
		c.emitAddressOf(n.Operand, pos)
	}
}

// emitAddressOf pushes the heap address of a frame slot, global, attribute
// or pointer element.
func (c *Compiler) emitAddressOf(e Expr, pos Position) {
	switch o := e.(type) {
	case *Identifier:
		if idx, ok := c.scope.Index(o.Name); ok {
			c.op(vm.OpADDR, idx)
			return
		}
		if access, ok := c.implicitSelfAttribute(o.Name, o.Span()); ok {
			c.emitAddressOf(access, pos)
			return
		}
		if i, _, ok := c.global(o.Name); ok {
			c.push(int64(globalAddress(i)))
			return
		}
	case *MemberAccess:
		resolved, _ := c.resolveMemberAccess(o)
		if getter, ok := resolved.(*ArrayGetter); ok {
			c.emitElementAddress(getter, pos)
			return
		}
	case *ArrayGetter:
		c.emitElementAddress(o, pos)
		return
	}
	failAt(pos, "cannot take the address of this expression")
}

func (c *Compiler) emitElementAddress(g *ArrayGetter, pos Position) {
	sub := c.subscriptOf(g.Target, g.FieldType, pos)
	if sub.array {
		failAt(pos, "cannot take the address of an Array element")
	}
	c.emitOffset(g.Offset, sub.scale, pos)
	c.emit(g.Target)
	c.op(vm.OpADD, 0)
}

func (c *Compiler) VisitRangeLiteral(n *RangeLiteral) {
	c.emitCall(c.lowerRange(n))
}

func (c *Compiler) lowerRange(n *RangeLiteral) *FunctionCall {
	ctor := "exclusive"
	if n.Inclusive {
		ctor = "inclusive"
	}
	return at(&FunctionCall{Name: MangleStatic("Range", ctor), Args: []Expr{n.Start, n.End}}, n.Span())
}

func (c *Compiler) VisitSpread(n *Spread) {
	failAt(n.Span().Start, "a spread argument is only allowed last in a variadic call")
}

// VisitBoxed wraps an integer, double or bool in a Number object.
func (c *Compiler) VisitBoxed(n *Boxed) {
	c.emitCall(c.lowerBoxed(n))
}

func (c *Compiler) lowerBoxed(n *Boxed) *FunctionCall {
	t := c.typeOf(n.Value)
	var tag int64
	switch {
	case t.Kind == TypeDouble:
		tag = 1
	case t.Kind == TypeBool:
		tag = 2
	case t.IsIntegral():
		tag = 0
	default:
		failAt(n.Span().Start, "cannot box a value of type '%s'", t)
	}
	return at(&FunctionCall{
		Name: MangleInitializer("Number"),
		Args: []Expr{at(&Typecast{Value: n.Value, Type: Any}, n.Span()), number(tag, n.Span())},
	}, n.Span())
}

// VisitTypecast reinterprets the value, converting between integers and
// doubles.
func (c *Compiler) VisitTypecast(n *Typecast) {
	to := c.resolveType(n.Type, n.Span().Start)
	value := c.lower(n.Value, to)
	from := c.typeOf(value)
	c.emit(value)
	switch {
	case to.Kind == TypeDouble && from.IsIntegral():
		c.op(vm.OpCVTI2D, 0)
	case from.Kind == TypeDouble && to.IsIntegral():
		c.op(vm.OpCVTD2I, 0)
	}
}

func (c *Compiler) VisitNoop(n *Noop) {}
