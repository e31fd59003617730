package compiler

// ---------------------------------------------------------------------------
// Type inference
// ---------------------------------------------------------------------------

// typeOf returns the static type of e in the current scope. It emits no
// code.
func (c *Compiler) typeOf(e Expr) *Type {
	t := &typer{c: c}
	e.Accept(t)
	if t.t == nil {
		failAt(e.Span().Start, "cannot infer the type of this expression")
	}
	return t.t
}

type typer struct {
	c *Compiler
	t *Type
}

func (v *typer) VisitIdentifier(n *Identifier) {
	c := v.c
	pos := n.Span().Start
	switch n.Name {
	case "nil":
		v.t = Any
		return
	case "#function":
		v.t = Complex("String")
		return
	}
	if t, ok := c.scope.TypeOf(n.Name); ok {
		v.t = t
		return
	}
	if access, ok := c.implicitSelfAttribute(n.Name, n.Span()); ok {
		v.t = c.typeOf(access)
		return
	}
	if _, g, ok := c.global(n.Name); ok {
		v.t = g.Type
		return
	}
	if k, ok := c.constants[n.Name]; ok {
		if k.Type != nil && k.Type.IsResolved() {
			v.t = c.resolveType(k.Type, pos)
		} else {
			v.t = c.typeOf(k.Value)
		}
		return
	}
	if sig, ok := c.function(n.Name, pos); ok {
		v.t = sig.Type()
		return
	}
	failAt(pos, "undefined identifier '%s'", n.Name)
}

func (v *typer) VisitNumberLiteral(n *NumberLiteral) {
	switch {
	case n.Type != nil:
		v.t = n.Type
	case n.IsDouble:
		v.t = Double
	default:
		v.t = Int
	}
}

func (v *typer) VisitStringLiteral(n *StringLiteral)   { v.t = Complex("String") }
func (v *typer) VisitBooleanLiteral(n *BooleanLiteral) { v.t = Bool }

func (v *typer) VisitBinaryOperation(n *BinaryOperation) {
	lt, rt := v.c.typeOf(n.LHS), v.c.typeOf(n.RHS)
	switch {
	case lt.Kind == TypeDouble || rt.Kind == TypeDouble:
		v.t = Double
	case lt.Kind == TypePointer && (n.Op == OpAdd || n.Op == OpSub):
		v.t = lt
	case rt.Kind == TypePointer && n.Op == OpAdd:
		v.t = rt
	case lt.IsInteger() && lt.Equal(rt):
		v.t = lt
	default:
		v.t = Int
	}
}

func (v *typer) VisitUnaryExpression(n *UnaryExpression) {
	switch n.Op {
	case UnaryNegate:
		v.t = v.c.typeOf(n.Operand)
	case UnaryBitwiseNot:
		v.t = Int
	default:
		v.t = Bool
	}
}

func (v *typer) VisitComparison(n *Comparison)                               { v.t = Bool }
func (v *typer) VisitBinaryCondition(n *BinaryCondition)                     { v.t = Bool }
func (v *typer) VisitImplicitNonZeroComparison(n *ImplicitNonZeroComparison) { v.t = Bool }

func (v *typer) VisitFunctionCall(n *FunctionCall) {
	if n.Callee == nil {
		switch n.Name {
		case intrinsicDecltype:
			v.t = Complex("String")
			return
		case intrinsicOffset:
			v.t = Int
			return
		}
	}
	_, target := v.c.resolveCall(n)
	v.t = target.sig.ReturnType
}

func (v *typer) VisitTypeMemberFunctionCall(n *TypeMemberFunctionCall) {
	v.VisitFunctionCall(v.c.lowerTypeMemberCall(n))
}

func (v *typer) VisitMemberAccess(n *MemberAccess) {
	_, v.t = v.c.resolveMemberAccess(n)
}

func (v *typer) VisitArrayGetter(n *ArrayGetter) {
	v.t = v.c.subscriptOf(n.Target, n.FieldType, n.Span().Start).elem
}

func (v *typer) VisitArrayLiteral(n *ArrayLiteral) {
	v.t = v.c.arrayLiteralType(n)
}

func (v *typer) VisitLambda(n *Lambda) {
	v.t = lambdaType(n)
}

func (v *typer) VisitRawInstruction(n *RawInstruction) {
	v.t = n.Type
}

func (v *typer) VisitPointerOperation(n *PointerOperation) {
	if n.Op != PointerDeref {
		v.t = PointerTo(v.c.typeOf(n.Operand))
		return
	}
	t := v.c.typeOf(n.Operand)
	switch t.Kind {
	case TypePointer:
		v.t = t.Elem
	case TypeAny:
		v.t = Any
	default:
		failAt(n.Span().Start, "cannot dereference a value of type '%s'", t)
	}
}

func (v *typer) VisitRangeLiteral(n *RangeLiteral) { v.t = Complex("Range") }
func (v *typer) VisitSpread(n *Spread)             { v.t = v.c.typeOf(n.Value) }
func (v *typer) VisitBoxed(n *Boxed)               { v.t = Complex("Number") }

func (v *typer) VisitTypecast(n *Typecast) {
	v.t = v.c.resolveType(n.Type, n.Span().Start)
}

func (v *typer) VisitNoop(n *Noop) { v.t = Void }

func (v *typer) notAnExpression(n Node) {
	failAt(n.Span().Start, "statement used as an expression")
}

func (v *typer) VisitVariableDeclaration(n *VariableDeclaration)   { v.notAnExpression(n) }
func (v *typer) VisitConstantDeclaration(n *ConstantDeclaration)   { v.notAnExpression(n) }
func (v *typer) VisitAssignment(n *Assignment)                     { v.notAnExpression(n) }
func (v *typer) VisitArraySetter(n *ArraySetter)                   { v.notAnExpression(n) }
func (v *typer) VisitComposite(n *Composite)                       { v.notAnExpression(n) }
func (v *typer) VisitConditionalStatement(n *ConditionalStatement) { v.notAnExpression(n) }
func (v *typer) VisitWhileStatement(n *WhileStatement)             { v.notAnExpression(n) }
func (v *typer) VisitForLoop(n *ForLoop)                           { v.notAnExpression(n) }
func (v *typer) VisitReturnStatement(n *ReturnStatement)           { v.notAnExpression(n) }
func (v *typer) VisitBreakStatement(n *BreakStatement)             { v.notAnExpression(n) }
func (v *typer) VisitContinueStatement(n *ContinueStatement)       { v.notAnExpression(n) }
func (v *typer) VisitDeferStatement(n *DeferStatement)             { v.notAnExpression(n) }
func (v *typer) VisitFunctionDeclaration(n *FunctionDeclaration)   { v.notAnExpression(n) }
func (v *typer) VisitTypeDeclaration(n *TypeDeclaration)           { v.notAnExpression(n) }
func (v *typer) VisitEnumDeclaration(n *EnumDeclaration)           { v.notAnExpression(n) }
func (v *typer) VisitProtocolDeclaration(n *ProtocolDeclaration)   { v.notAnExpression(n) }
func (v *typer) VisitTypeImplementation(n *TypeImplementation)     { v.notAnExpression(n) }
func (v *typer) VisitImportStatement(n *ImportStatement)           { v.notAnExpression(n) }
