package compiler

// ---------------------------------------------------------------------------
// Member access resolution
// ---------------------------------------------------------------------------

// resolveMemberAccess lowers a chain like a.b.c() into attribute loads and
// calls. Enum cases fold to their ordinal; attributes become byte-offset
// ArrayGetters; methods become calls of T_Imethod with the receiver first;
// function-typed attributes are called through their value; methods on id
// receivers are sent dynamically.
func (c *Compiler) resolveMemberAccess(n *MemberAccess) (Expr, *Type) {
	span := n.Span()
	pos := span.Start
	members := n.Members
	if len(members) < 2 {
		failAt(pos, "malformed member access")
	}

	first := members[0]
	if len(members) == 2 && first.Kind == MemberInitialIdentifier && members[1].Kind == MemberAttribute && !c.scope.Contains(first.Name) {
		if _, isEnum := c.types.Enum(first.Name); isEnum {
			ordinal, ok := c.types.EnumCase(first.Name, members[1].Name)
			if !ok {
				failAt(pos, "enum '%s' has no case '%s'", first.Name, members[1].Name)
			}
			t := EnumType(first.Name)
			return at(&NumberLiteral{Value: int64(ordinal), Type: t}, span), t
		}
	}

	var cur Expr
	switch first.Kind {
	case MemberInitialIdentifier:
		cur = ident(first.Name, span)
	case MemberInitialCall:
		cur = first.Call
	case MemberInitialExpression:
		cur = first.Expr
	default:
		failAt(pos, "malformed member access")
	}
	curType := c.typeOf(cur)

	for _, m := range members[1:] {
		switch m.Kind {
		case MemberAttribute:
			attr := c.attribute(curType, m.Name, pos)
			cur = at(&ArrayGetter{Target: cur, Offset: number(int64(attr.Offset), span), FieldType: attr.Type}, span)
			curType = attr.Type
		case MemberFunctionCall:
			cur, curType = c.resolveMethodCall(cur, curType, m.Call)
		default:
			failAt(pos, "malformed member access")
		}
	}
	return cur, curType
}

func (c *Compiler) attribute(t *Type, name string, pos Position) Attribute {
	if !t.IsComplex() {
		failAt(pos, "cannot access '%s' on a value of type '%s'", name, t)
	}
	entry, ok := c.types.Entry(t.Name)
	if !ok {
		failAt(pos, "unknown type '%s'", t.Name)
	}
	attr, ok := entry.Attribute(name)
	if !ok {
		failAt(pos, "type '%s' has no member '%s'", t.Name, name)
	}
	return attr
}

func (c *Compiler) resolveMethodCall(recv Expr, recvType *Type, call *FunctionCall) (Expr, *Type) {
	span := call.Span()
	pos := span.Start
	switch recvType.Kind {
	case TypeComplex, TypeEnum:
		if recvType.IsComplex() {
			entry, _ := c.types.Entry(recvType.Name)
			if attr, ok := entry.Attribute(call.Name); ok && attr.Type.Kind == TypeFunction {
				getter := at(&ArrayGetter{Target: recv, Offset: number(int64(attr.Offset), span), FieldType: attr.Type}, span)
				return at(&FunctionCall{Callee: getter, Args: call.Args, UnusedReturnValue: call.UnusedReturnValue}, span), attr.Type.Return
			}
		}
		name := MangleInstance(recvType.Name, call.Name)
		sig, ok := c.function(name, pos)
		if !ok {
			failAt(pos, "type '%s' has no method '%s'", recvType.Name, call.Name)
		}
		args := append([]Expr{recv}, call.Args...)
		return at(&FunctionCall{Name: name, Args: args, UnusedReturnValue: call.UnusedReturnValue}, span), sig.ReturnType

	case TypeID:
		if !c.scope.Unsafe {
			failAt(pos, "calling '%s' on a value of type 'id' is only allowed in unsafe code; wrap the call in an unsafe block", call.Name)
		}
		return c.msgSend(recv, call), ID
	}
	failAt(pos, "cannot call '%s' on a value of type '%s'", call.Name, recvType)
	return nil, nil
}

// msgSend lowers a method call on an id receiver to a dynamic dispatch
// through runtime::msgSend with the selector as a C string.
func (c *Compiler) msgSend(recv Expr, call *FunctionCall) *FunctionCall {
	span := call.Span()
	args := []Expr{recv, c.cString(call.Name, span), number(int64(len(call.Args)), span)}
	args = append(args, call.Args...)
	args = append(args, number(0, span))
	return at(&FunctionCall{Name: MangleStatic("runtime", "msgSend"), Args: args, UnusedReturnValue: call.UnusedReturnValue}, span)
}

// ---------------------------------------------------------------------------
// Implicit self
// ---------------------------------------------------------------------------

// selfPath finds the receiver that owns member, starting at the frame's
// receiver and following captured self attributes of closure structs. It
// returns the segments leading to the owner.
func (c *Compiler) selfPath(member string, method bool) ([]MemberSegment, *Type, bool) {
	recv, ok := c.scope.Receiver()
	if !ok {
		return nil, nil, false
	}
	path := []MemberSegment{{Kind: MemberInitialIdentifier, Name: recv.Name}}
	t := recv.Type
	for t.IsComplex() {
		if c.types.HasMember(t.Name, member) || (method && c.hasMethod(t.Name, member)) {
			return path, t, true
		}
		next := ""
		for _, name := range []string{"self", closureReceiver} {
			if c.types.HasMember(t.Name, name) {
				next = name
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, MemberSegment{Kind: MemberAttribute, Name: next})
		t, _ = c.types.TypeOfMember(t.Name, next)
	}
	return nil, nil, false
}

func pathExpr(path []MemberSegment, span Span) Expr {
	if len(path) == 1 {
		return ident(path[0].Name, span)
	}
	return at(&MemberAccess{Members: path}, span)
}

// implicitSelfAttribute resolves a bare name to an attribute of the
// receiver.
func (c *Compiler) implicitSelfAttribute(name string, span Span) (*MemberAccess, bool) {
	path, _, ok := c.selfPath(name, false)
	if !ok {
		return nil, false
	}
	segments := append(append([]MemberSegment(nil), path...), MemberSegment{Kind: MemberAttribute, Name: name})
	return at(&MemberAccess{Members: segments}, span), true
}

// implicitSelfCall resolves a bare call to a method of the receiver or a
// call through a function-typed attribute of it.
func (c *Compiler) implicitSelfCall(n *FunctionCall) (*FunctionCall, bool) {
	path, t, ok := c.selfPath(n.Name, true)
	if !ok {
		return nil, false
	}
	span := n.Span()
	recv := pathExpr(path, span)
	if c.hasMethod(t.Name, n.Name) {
		args := append([]Expr{recv}, n.Args...)
		return at(&FunctionCall{Name: MangleInstance(t.Name, n.Name), Args: args, UnusedReturnValue: n.UnusedReturnValue}, span), true
	}
	attrType, _ := c.types.TypeOfMember(t.Name, n.Name)
	if attrType.Kind != TypeFunction {
		failAt(span.Start, "'%s' is not a function", n.Name)
	}
	segments := append(append([]MemberSegment(nil), path...), MemberSegment{Kind: MemberAttribute, Name: n.Name})
	callee := at(&MemberAccess{Members: segments}, span)
	return at(&FunctionCall{Callee: callee, Args: n.Args, UnusedReturnValue: n.UnusedReturnValue}, span), true
}
