package compiler

import (
	"fmt"
	"strings"

	"github.com/agreefuture/yo/vm"
)

// ---------------------------------------------------------------------------
// Statement codegen
// ---------------------------------------------------------------------------

const (
	deferHandlePrefix = "%defer_handle_"
	retvalPrefix      = "%retval_"
)

func isDeferHandle(name string) bool {
	return strings.HasPrefix(name, deferHandlePrefix)
}

func (c *Compiler) declareLocal(name string, t *Type, pos Position) {
	if name == "nil" {
		failAt(pos, "cannot use reserved identifier '%s'", name)
	}
	if c.scope.Contains(name) {
		failAt(pos, "redeclaration of '%s'", name)
	}
	c.scope.Locals = append(c.scope.Locals, Binding{Name: name, Type: t})
}

// VisitComposite emits a block. Every local declared directly in the block
// is allocated on entry. On the normal exit path the block releases its
// defer handles, then its reference-counted locals, both in reverse
// declaration order, and drops its slots.
func (c *Compiler) VisitComposite(n *Composite) {
	saved := c.scope
	defer func() { c.scope = saved }()
	if n.Unsafe {
		c.scope.Unsafe = true
	}

	start := len(c.scope.Locals)
	handles := make(map[*DeferStatement]string)
	retval := ""
	for _, stmt := range n.Statements {
		pos := stmt.Span().Start
		switch s := stmt.(type) {
		case *VariableDeclaration:
			c.declareLocal(s.Name, c.declaredType(s.Name, s.Type, s.Value, pos), pos)
		case *DeferStatement:
			if _, ok := c.types.Entry(deferHandleType); !ok {
				failAt(pos, "defer requires the prelude type '%s'", deferHandleType)
			}
			name := fmt.Sprintf("%s%d", deferHandlePrefix, c.nextID())
			c.declareLocal(name, Complex(deferHandleType), pos)
			handles[s] = name
		case *ReturnStatement:
			if c.scope.ARC && retval == "" {
				t := c.scope.ReturnType
				if t.Kind == TypeVoid {
					t = Any
				}
				retval = fmt.Sprintf("%s%d", retvalPrefix, c.nextID())
				c.declareLocal(retval, t, pos)
			}
		}
	}
	count := len(c.scope.Locals) - start
	if count > 0 {
		c.op(vm.OpALLOC, count)
	}

	for _, stmt := range n.Statements {
		switch s := stmt.(type) {
		case *DeferStatement:
			c.emitDeferHandle(s, handles[s])
		case *ReturnStatement:
			c.emitReturn(s, retval)
			return
		default:
			stmt.Accept(c)
		}
	}
	c.emitUnwind(start)
}

// emitUnwind releases and drops the frame locals from index depth on.
func (c *Compiler) emitUnwind(depth int) {
	locals := c.scope.Locals[depth:]
	for i := len(locals) - 1; i >= 0; i-- {
		if isDeferHandle(locals[i].Name) {
			c.emitRelease(depth + i + 1)
		}
	}
	if c.scope.ARC {
		for i := len(locals) - 1; i >= 0; i-- {
			if !isDeferHandle(locals[i].Name) && c.supportsARC(locals[i].Type) {
				c.emitRelease(depth + i + 1)
			}
		}
	}
	if len(locals) > 0 {
		c.op(vm.OpPOPI, len(locals))
	}
}

func (c *Compiler) emitRelease(index int) {
	c.op(vm.OpLOAD, index)
	c.op(vm.OpRELEASE, 0)
}

func (c *Compiler) emitRetain(index int) {
	c.op(vm.OpLOAD, index)
	c.op(vm.OpRETAIN, 0)
}

// emitMarkForRelease hands the value of a frame slot to the caller with a
// pending release.
func (c *Compiler) emitMarkForRelease(index int) {
	c.op(vm.OpLOAD, index)
	c.emitNativeCall("runtime_SmarkForRelease", 1)
	c.op(vm.OpPOP, 0)
}

func (c *Compiler) emitNativeCall(name string, argc int) {
	sig, ok := c.functions[name]
	if !ok || !sig.Native {
		failAt(Position{}, "missing runtime function '%s'", name)
	}
	c.push(sig.Address)
	c.op(vm.OpCALL, argc)
}

// emitReturn emits a return in a reference-counted frame as follows. The
// value is stored in the block's return temporary. Defer handles run first.
// A computed result is retained before the frame's locals are released, so
// that returning a member of a local does not read freed memory. The result
// is then marked for release and handed back.
func (c *Compiler) emitReturn(n *ReturnStatement, retval string) {
	pos := n.Span().Start
	rt := c.scope.ReturnType
	var value Expr = n.Value
	if value == nil {
		value = at(&Typecast{Value: number(0, n.Span()), Type: Any}, n.Span())
	}
	value = c.lower(value, rt)
	if rt.Kind != TypeVoid {
		if vt := c.typeOf(value); !vt.IsCompatible(rt) {
			failAt(pos, "cannot return '%s' from '%s', which returns '%s'", vt, c.scope.Function, rt)
		}
	}
	argc := len(c.scope.Parameters)

	if !c.scope.ARC {
		c.emit(value)
		c.releaseDeferHandles("")
		c.op(vm.OpRET, argc)
		return
	}

	temp, _ := c.scope.Index(retval)
	c.emit(value)
	c.op(vm.OpSTORE, temp)

	returned := ""
	if id, ok := value.(*Identifier); ok && c.scope.Contains(id.Name) {
		returned = id.Name
	}
	c.releaseDeferHandles(returned)

	owned := returned == "" && c.supportsARC(rt)
	if owned {
		c.emitRetain(temp)
	}
	for i := len(c.scope.Locals) - 1; i >= 0; i-- {
		l := c.scope.Locals[i]
		if l.Name == retval || l.Name == returned || isDeferHandle(l.Name) || !c.supportsARC(l.Type) {
			continue
		}
		c.emitRelease(i + 1)
	}
	for i, p := range c.scope.Parameters {
		if p.Name == returned || !c.supportsARC(p.Type) {
			continue
		}
		c.emitRelease(-(2 + i))
	}

	switch {
	case returned != "":
		t, _ := c.scope.TypeOf(returned)
		if c.supportsARC(t) {
			idx, _ := c.scope.Index(returned)
			c.emitMarkForRelease(idx)
		}
	case owned:
		c.emitMarkForRelease(temp)
	}
	c.op(vm.OpLOAD, temp)
	c.op(vm.OpRET, argc)
}

func (c *Compiler) releaseDeferHandles(skip string) {
	for i := len(c.scope.Locals) - 1; i >= 0; i-- {
		if name := c.scope.Locals[i].Name; isDeferHandle(name) && name != skip {
			c.emitRelease(i + 1)
		}
	}
}

// emitDeferHandle stores a _DeferHandle wrapping the deferred body in its
// slot. Releasing the handle at block exit runs the body from the handle's
// dealloc method.
func (c *Compiler) emitDeferHandle(n *DeferStatement, slot string) {
	span := n.Span()
	body := at(&Lambda{Params: nil, ReturnType: Void, Body: n.Body}, span)
	handle := at(&FunctionCall{Name: MangleInitializer(deferHandleType), Args: []Expr{body}}, span)
	c.emitLocalInit(slot, handle, span.Start)
}

func (c *Compiler) emitLocalInit(name string, value Expr, pos Position) {
	t, _ := c.scope.TypeOf(name)
	idx, _ := c.scope.Index(name)
	value = c.lower(value, t)
	if vt := c.typeOf(value); !vt.IsCompatible(t) {
		failAt(pos, "cannot initialize '%s' of type '%s' with a value of type '%s'", name, t, vt)
	}
	c.emit(value)
	c.op(vm.OpSTORE, idx)
	if c.scope.ARC && c.supportsARC(t) {
		c.emitRetain(idx)
	}
}

func (c *Compiler) VisitVariableDeclaration(n *VariableDeclaration) {
	if c.scope.Kind == ScopeGlobal || n.Value == nil {
		return
	}
	c.emitLocalInit(n.Name, n.Value, n.Span().Start)
}

func (c *Compiler) VisitConstantDeclaration(n *ConstantDeclaration) {
	if c.scope.Kind != ScopeGlobal {
		failAt(n.Span().Start, "constants must be declared at top level")
	}
}

// VisitAssignment stores into a local, parameter, global, attribute or
// pointer element. Reference-counted targets release the old value and
// retain the new one.
func (c *Compiler) VisitAssignment(n *Assignment) {
	pos := n.Span().Start
	switch target := n.Target.(type) {
	case *Identifier:
		if idx, ok := c.scope.Index(target.Name); ok {
			t, _ := c.scope.TypeOf(target.Name)
			c.emitCheckedValue(n.Value, t, pos)
			arc := c.scope.ARC && c.supportsARC(t)
			if arc {
				c.emitRelease(idx)
			}
			c.op(vm.OpSTORE, idx)
			if arc {
				c.emitRetain(idx)
			}
			return
		}
		if access, ok := c.implicitSelfAttribute(target.Name, target.Span()); ok {
			c.emitMemberStore(access, n.Value, pos)
			return
		}
		if i, g, ok := c.global(target.Name); ok {
			addr := globalAddress(i)
			c.emitCheckedValue(n.Value, g.Type, pos)
			arc := c.scope.ARC && c.supportsARC(g.Type)
			if arc {
				c.op(vm.OpREADH, addr)
				c.op(vm.OpRELEASE, 0)
			}
			c.op(vm.OpWRITEH, addr)
			if arc {
				c.op(vm.OpREADH, addr)
				c.op(vm.OpRETAIN, 0)
			}
			return
		}
		if _, ok := c.constants[target.Name]; ok {
			failAt(pos, "cannot assign to constant '%s'", target.Name)
		}
		failAt(pos, "assignment to undefined identifier '%s'", target.Name)

	case *MemberAccess:
		c.emitMemberStore(target, n.Value, pos)

	case *ArrayGetter:
		c.VisitArraySetter(at(&ArraySetter{Target: target.Target, Offset: target.Offset, Value: n.Value, ValueType: target.FieldType}, n.Span()))

	case *PointerOperation:
		if target.Op != PointerDeref {
			failAt(pos, "cannot assign to an address")
		}
		c.VisitArraySetter(at(&ArraySetter{Target: target.Operand, Offset: number(0, n.Span()), Value: n.Value}, n.Span()))

	default:
		failAt(pos, "invalid assignment target")
	}
}

func (c *Compiler) emitCheckedValue(value Expr, expected *Type, pos Position) {
	value = c.lower(value, expected)
	if vt := c.typeOf(value); !vt.IsCompatible(expected) {
		failAt(pos, "cannot assign a value of type '%s' to '%s'", vt, expected)
	}
	c.emit(value)
}

// emitMemberStore stores value into an attribute. With reference counting
// the old value is released through a getter before the store and the new
// value retained after it.
func (c *Compiler) emitMemberStore(target *MemberAccess, value Expr, pos Position) {
	resolved, t := c.resolveMemberAccess(target)
	getter, ok := resolved.(*ArrayGetter)
	if !ok || getter.FieldType == nil {
		failAt(pos, "cannot assign to the result of a call")
	}
	if isTemporary(getter.Target) {
		failAt(pos, "cannot assign to an attribute of a temporary value")
	}
	c.emitCheckedValue(value, t, pos)
	arc := c.scope.ARC && c.supportsARC(t)
	if arc {
		c.emit(getter)
		c.op(vm.OpRELEASE, 0)
	}
	c.VisitArraySetter(at(&ArraySetter{
		Target:    getter.Target,
		Offset:    getter.Offset,
		Value:     at(&Noop{}, target.Span()),
		ValueType: getter.FieldType,
	}, target.Span()))
	if arc {
		c.emit(getter)
		c.op(vm.OpRETAIN, 0)
	}
}

// isTemporary reports whether evaluating e calls a function or creates an
// object. The base of a member store is evaluated more than once.
func isTemporary(e Expr) bool {
	found := false
	Inspect(e, func(n Node) bool {
		switch n.(type) {
		case *FunctionCall, *TypeMemberFunctionCall, *StringLiteral, *Boxed, *ArrayLiteral, *Lambda:
			found = true
		}
		return !found
	})
	return found
}

// VisitArraySetter emits value, offset, target and a store of the element
// width. Array objects are stored through Array.set.
func (c *Compiler) VisitArraySetter(n *ArraySetter) {
	pos := n.Span().Start
	sub := c.subscriptOf(n.Target, n.ValueType, pos)
	if sub.array {
		call := at(&FunctionCall{
			Name:              MangleInstance("Array", "set"),
			Args:              []Expr{n.Target, n.Offset, at(&Typecast{Value: n.Value, Type: Any}, n.Span())},
			UnusedReturnValue: true,
		}, n.Span())
		c.emitCall(call)
		return
	}
	if _, isNoop := n.Value.(*Noop); !isNoop {
		c.emitCheckedValue(n.Value, sub.elem, pos)
	}
	c.emitOffset(n.Offset, sub.scale, pos)
	c.emit(n.Target)
	c.op(storeOps[sub.width], 0)
}

func (c *Compiler) VisitConditionalStatement(n *ConditionalStatement) {
	id := c.nextID()
	end := c.localLabel("if_end", id)
	for i, branch := range n.Branches {
		next := c.localLabel(fmt.Sprintf("if_%d_next", i), id)
		c.emitCondition(branch.Cond)
		c.op(vm.OpLNOT, 0)
		c.jump(vm.OpJUMP, next)
		c.VisitComposite(branch.Body)
		c.jump(vm.OpUJUMP, end)
		c.add(label(next))
	}
	if n.Else != nil {
		c.VisitComposite(n.Else)
	}
	c.add(label(end))
}

func (c *Compiler) VisitWhileStatement(n *WhileStatement) {
	id := c.nextID()
	cond := c.localLabel("while_cond", id)
	end := c.localLabel("while_end", id)
	c.add(label(cond))
	c.emitCondition(n.Cond)
	c.op(vm.OpLNOT, 0)
	c.jump(vm.OpJUMP, end)
	c.loops = append(c.loops, loopLabels{cond: cond, end: end, depth: len(c.scope.Locals)})
	c.VisitComposite(n.Body)
	c.loops = c.loops[:len(c.loops)-1]
	c.jump(vm.OpUJUMP, cond)
	c.add(label(end))
}

// VisitForLoop lowers `for x in target { ... }` to a while loop over
// target.iterator() using hasNext() and next().
func (c *Compiler) VisitForLoop(n *ForLoop) {
	span := n.Span()
	id := c.nextID()
	target := fmt.Sprintf("%%target_%d", id)
	iter := fmt.Sprintf("%%iter_%d", id)

	var next Expr = methodCall(iter, "next", nil, false, span)
	elemType := n.Type
	if elemType == nil {
		elemType = Unresolved
	}
	if elemType.Kind != TypeUnresolved {
		next = at(&Typecast{Value: next, Type: elemType}, span)
	}

	body := block(span,
		at(&VariableDeclaration{Name: n.Variable, Type: elemType, Value: next}, span),
		n.Body,
	)
	c.VisitComposite(block(span,
		at(&VariableDeclaration{Name: target, Type: Unresolved, Value: n.Target}, span),
		at(&VariableDeclaration{Name: iter, Type: Unresolved, Value: methodCall(target, "iterator", nil, false, span)}, span),
		at(&WhileStatement{Cond: methodCall(iter, "hasNext", nil, false, span), Body: body}, span),
	))
}

func (c *Compiler) VisitBreakStatement(n *BreakStatement) {
	if len(c.loops) == 0 {
		failAt(n.Span().Start, "break outside of a loop")
	}
	loop := c.loops[len(c.loops)-1]
	c.emitUnwind(loop.depth)
	c.jump(vm.OpUJUMP, loop.end)
}

func (c *Compiler) VisitContinueStatement(n *ContinueStatement) {
	if len(c.loops) == 0 {
		failAt(n.Span().Start, "continue outside of a loop")
	}
	loop := c.loops[len(c.loops)-1]
	c.emitUnwind(loop.depth)
	c.jump(vm.OpUJUMP, loop.cond)
}

func (c *Compiler) VisitReturnStatement(n *ReturnStatement) {
	failAt(n.Span().Start, "return outside of a block")
}

func (c *Compiler) VisitDeferStatement(n *DeferStatement) {
	failAt(n.Span().Start, "defer outside of a block")
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

func (c *Compiler) VisitFunctionDeclaration(n *FunctionDeclaration) {
	if c.scope.Kind != ScopeGlobal {
		failAt(n.Span().Start, "nested function declarations are not supported; use a lambda")
	}
	c.compileFunction(n)
}

func (c *Compiler) VisitTypeImplementation(n *TypeImplementation) {
	for _, fn := range n.Functions {
		c.compileFunction(fn)
	}
}

func (c *Compiler) VisitTypeDeclaration(n *TypeDeclaration)         {}
func (c *Compiler) VisitEnumDeclaration(n *EnumDeclaration)         {}
func (c *Compiler) VisitProtocolDeclaration(n *ProtocolDeclaration) {}
func (c *Compiler) VisitImportStatement(n *ImportStatement)         {}
