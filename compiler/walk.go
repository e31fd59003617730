package compiler

// Inspect traverses the tree rooted at node in depth-first order, calling f
// for every node. If f returns false the children of that node are skipped.
func Inspect(node Node, f func(Node) bool) {
	if node == nil {
		return
	}
	node.Accept(&walker{f: f})
}

type walker struct {
	f func(Node) bool
}

func (w *walker) walk(nodes ...Node) {
	for _, n := range nodes {
		if n == nil {
			continue
		}
		// typed nil children (optional bodies, values) are skipped
		switch v := n.(type) {
		case *Composite:
			if v == nil {
				continue
			}
		}
		n.Accept(w)
	}
}

func (w *walker) walkExprs(exprs []Expr) {
	for _, e := range exprs {
		w.walk(e)
	}
}

func (w *walker) expr(e Expr) Node {
	if e == nil {
		return nil
	}
	return e
}

func (w *walker) VisitIdentifier(n *Identifier)         { w.f(n) }
func (w *walker) VisitNumberLiteral(n *NumberLiteral)   { w.f(n) }
func (w *walker) VisitStringLiteral(n *StringLiteral)   { w.f(n) }
func (w *walker) VisitBooleanLiteral(n *BooleanLiteral) { w.f(n) }
func (w *walker) VisitRawInstruction(n *RawInstruction) { w.f(n) }
func (w *walker) VisitNoop(n *Noop)                     { w.f(n) }
func (w *walker) VisitBreakStatement(n *BreakStatement) { w.f(n) }
func (w *walker) VisitContinueStatement(n *ContinueStatement) {
	w.f(n)
}
func (w *walker) VisitEnumDeclaration(n *EnumDeclaration) { w.f(n) }
func (w *walker) VisitTypeDeclaration(n *TypeDeclaration) { w.f(n) }
func (w *walker) VisitImportStatement(n *ImportStatement) { w.f(n) }

func (w *walker) VisitBinaryOperation(n *BinaryOperation) {
	if w.f(n) {
		w.walk(n.LHS, n.RHS)
	}
}

func (w *walker) VisitUnaryExpression(n *UnaryExpression) {
	if w.f(n) {
		w.walk(n.Operand)
	}
}

func (w *walker) VisitComparison(n *Comparison) {
	if w.f(n) {
		w.walk(n.LHS, n.RHS)
	}
}

func (w *walker) VisitBinaryCondition(n *BinaryCondition) {
	if w.f(n) {
		w.walk(n.LHS, n.RHS)
	}
}

func (w *walker) VisitImplicitNonZeroComparison(n *ImplicitNonZeroComparison) {
	if w.f(n) {
		w.walk(n.Value)
	}
}

func (w *walker) VisitFunctionCall(n *FunctionCall) {
	if w.f(n) {
		w.walk(w.expr(n.Callee))
		w.walkExprs(n.Args)
	}
}

func (w *walker) VisitTypeMemberFunctionCall(n *TypeMemberFunctionCall) {
	if w.f(n) {
		w.walkExprs(n.Args)
	}
}

func (w *walker) VisitMemberAccess(n *MemberAccess) {
	if !w.f(n) {
		return
	}
	for _, m := range n.Members {
		switch m.Kind {
		case MemberInitialCall, MemberFunctionCall:
			w.walk(m.Call)
		case MemberInitialExpression:
			w.walk(m.Expr)
		}
	}
}

func (w *walker) VisitArrayGetter(n *ArrayGetter) {
	if w.f(n) {
		w.walk(n.Target, n.Offset)
	}
}

func (w *walker) VisitArrayLiteral(n *ArrayLiteral) {
	if w.f(n) {
		w.walkExprs(n.Elements)
	}
}

func (w *walker) VisitLambda(n *Lambda) {
	if w.f(n) {
		w.walk(n.Body)
	}
}

func (w *walker) VisitPointerOperation(n *PointerOperation) {
	if w.f(n) {
		w.walk(n.Operand)
	}
}

func (w *walker) VisitRangeLiteral(n *RangeLiteral) {
	if w.f(n) {
		w.walk(n.Start, n.End)
	}
}

func (w *walker) VisitSpread(n *Spread) {
	if w.f(n) {
		w.walk(n.Value)
	}
}

func (w *walker) VisitBoxed(n *Boxed) {
	if w.f(n) {
		w.walk(n.Value)
	}
}

func (w *walker) VisitTypecast(n *Typecast) {
	if w.f(n) {
		w.walk(n.Value)
	}
}

func (w *walker) VisitVariableDeclaration(n *VariableDeclaration) {
	if w.f(n) {
		w.walk(w.expr(n.Value))
	}
}

func (w *walker) VisitConstantDeclaration(n *ConstantDeclaration) {
	if w.f(n) {
		w.walk(w.expr(n.Value))
	}
}

func (w *walker) VisitAssignment(n *Assignment) {
	if w.f(n) {
		w.walk(n.Target, n.Value)
	}
}

func (w *walker) VisitArraySetter(n *ArraySetter) {
	if w.f(n) {
		w.walk(n.Target, n.Offset, n.Value)
	}
}

func (w *walker) VisitComposite(n *Composite) {
	if !w.f(n) {
		return
	}
	for _, s := range n.Statements {
		w.walk(s)
	}
}

func (w *walker) VisitConditionalStatement(n *ConditionalStatement) {
	if !w.f(n) {
		return
	}
	for _, b := range n.Branches {
		w.walk(b.Cond, b.Body)
	}
	if n.Else != nil {
		w.walk(n.Else)
	}
}

func (w *walker) VisitWhileStatement(n *WhileStatement) {
	if w.f(n) {
		w.walk(n.Cond, n.Body)
	}
}

func (w *walker) VisitForLoop(n *ForLoop) {
	if w.f(n) {
		w.walk(n.Target, n.Body)
	}
}

func (w *walker) VisitReturnStatement(n *ReturnStatement) {
	if w.f(n) {
		w.walk(w.expr(n.Value))
	}
}

func (w *walker) VisitDeferStatement(n *DeferStatement) {
	if w.f(n) {
		w.walk(n.Body)
	}
}

func (w *walker) VisitFunctionDeclaration(n *FunctionDeclaration) {
	if w.f(n) && n.Body != nil {
		w.walk(n.Body)
	}
}

func (w *walker) VisitProtocolDeclaration(n *ProtocolDeclaration) {
	if !w.f(n) {
		return
	}
	for _, fn := range n.Functions {
		w.walk(fn)
	}
}

func (w *walker) VisitTypeImplementation(n *TypeImplementation) {
	if !w.f(n) {
		return
	}
	for _, fn := range n.Functions {
		w.walk(fn)
	}
}
