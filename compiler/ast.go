package compiler

import "fmt"

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for yo
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

func (p Position) String() string {
	if p.Line == 0 {
		return "<synthesized>"
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// Node is the interface implemented by all AST nodes. Accept dispatches to
// the Visitor method for the concrete node type, so adding a node type
// without a handler fails to build.
type Node interface {
	Span() Span
	Accept(v Visitor)
}

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// Cond is the interface for expressions that produce a truth value.
type Cond interface {
	Expr
	cond() // marker method
}

type base struct {
	SpanVal Span
}

func (b *base) Span() Span        { return b.SpanVal }
func (b *base) setSpan(span Span) { b.SpanVal = span }

type spanSetter interface {
	setSpan(Span)
}

// at attaches a source span to a freshly built node.
func at[N spanSetter](n N, span Span) N {
	n.setSpan(span)
	return n
}

// ---------------------------------------------------------------------------
// Visitor
// ---------------------------------------------------------------------------

// Visitor has one method per concrete node type.
type Visitor interface {
	VisitIdentifier(n *Identifier)
	VisitNumberLiteral(n *NumberLiteral)
	VisitStringLiteral(n *StringLiteral)
	VisitBooleanLiteral(n *BooleanLiteral)
	VisitBinaryOperation(n *BinaryOperation)
	VisitUnaryExpression(n *UnaryExpression)
	VisitComparison(n *Comparison)
	VisitBinaryCondition(n *BinaryCondition)
	VisitImplicitNonZeroComparison(n *ImplicitNonZeroComparison)
	VisitFunctionCall(n *FunctionCall)
	VisitTypeMemberFunctionCall(n *TypeMemberFunctionCall)
	VisitMemberAccess(n *MemberAccess)
	VisitArrayGetter(n *ArrayGetter)
	VisitArrayLiteral(n *ArrayLiteral)
	VisitLambda(n *Lambda)
	VisitRawInstruction(n *RawInstruction)
	VisitPointerOperation(n *PointerOperation)
	VisitRangeLiteral(n *RangeLiteral)
	VisitSpread(n *Spread)
	VisitBoxed(n *Boxed)
	VisitTypecast(n *Typecast)
	VisitNoop(n *Noop)

	VisitVariableDeclaration(n *VariableDeclaration)
	VisitConstantDeclaration(n *ConstantDeclaration)
	VisitAssignment(n *Assignment)
	VisitArraySetter(n *ArraySetter)
	VisitComposite(n *Composite)
	VisitConditionalStatement(n *ConditionalStatement)
	VisitWhileStatement(n *WhileStatement)
	VisitForLoop(n *ForLoop)
	VisitReturnStatement(n *ReturnStatement)
	VisitBreakStatement(n *BreakStatement)
	VisitContinueStatement(n *ContinueStatement)
	VisitDeferStatement(n *DeferStatement)
	VisitFunctionDeclaration(n *FunctionDeclaration)
	VisitTypeDeclaration(n *TypeDeclaration)
	VisitEnumDeclaration(n *EnumDeclaration)
	VisitProtocolDeclaration(n *ProtocolDeclaration)
	VisitTypeImplementation(n *TypeImplementation)
	VisitImportStatement(n *ImportStatement)
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Identifier references a variable, function, constant or global.
type Identifier struct {
	base
	Name string
}

// NumberLiteral is an integer or double literal. Type overrides the
// inferred type when set.
type NumberLiteral struct {
	base
	Value    int64
	Double   float64
	IsDouble bool
	Type     *Type
}

// StringLiteral is lowered to a String object.
type StringLiteral struct {
	base
	Value string
}

// BooleanLiteral is true or false.
type BooleanLiteral struct {
	base
	Value bool
}

// BinaryOperator is an arithmetic or bitwise operator.
type BinaryOperator int

const (
	OpAdd BinaryOperator = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
)

var binaryOperatorNames = [...]string{"+", "-", "*", "/", "%", "&", "|", "^", "<<", ">>"}

func (op BinaryOperator) String() string { return binaryOperatorNames[op] }

// BinaryOperation applies an arithmetic or bitwise operator.
type BinaryOperation struct {
	base
	Op  BinaryOperator
	LHS Expr
	RHS Expr
}

// UnaryOperator is a prefix operator.
type UnaryOperator int

const (
	UnaryNegate UnaryOperator = iota
	UnaryBitwiseNot
	UnaryLogicalNot
)

// UnaryExpression applies a prefix operator.
type UnaryExpression struct {
	base
	Op      UnaryOperator
	Operand Expr
}

// ComparisonOperator is a relational operator.
type ComparisonOperator int

const (
	CmpEqual ComparisonOperator = iota
	CmpNotEqual
	CmpLess
	CmpLessEqual
	CmpGreater
	CmpGreaterEqual
)

var comparisonOperatorNames = [...]string{"==", "!=", "<", "<=", ">", ">="}

func (op ComparisonOperator) String() string { return comparisonOperatorNames[op] }

// Comparison compares two values.
type Comparison struct {
	base
	Op  ComparisonOperator
	LHS Expr
	RHS Expr
}

// LogicalOperator joins two conditions.
type LogicalOperator int

const (
	LogicalAnd LogicalOperator = iota
	LogicalOr
)

// BinaryCondition is a short-circuiting && or ||.
type BinaryCondition struct {
	base
	Op  LogicalOperator
	LHS Expr
	RHS Expr
}

// ImplicitNonZeroComparison treats any value as a condition (value != 0).
type ImplicitNonZeroComparison struct {
	base
	Value Expr
}

// FunctionCall calls a named function, or the function value produced by
// Callee when it is set.
type FunctionCall struct {
	base
	Name              string
	Callee            Expr
	Args              []Expr
	UnusedReturnValue bool
}

// TypeMemberFunctionCall calls a static member: Type::member(args).
type TypeMemberFunctionCall struct {
	base
	TypeName          string
	Member            string
	Args              []Expr
	UnusedReturnValue bool
}

// MemberKind classifies one segment of a member access chain.
type MemberKind int

const (
	MemberInitialIdentifier MemberKind = iota
	MemberInitialCall
	MemberInitialExpression
	MemberAttribute
	MemberFunctionCall
)

// MemberSegment is one link of a member access chain.
type MemberSegment struct {
	Kind MemberKind
	Name string        // identifier or attribute name
	Call *FunctionCall // initial call or method call
	Expr Expr          // initial expression
}

// MemberAccess is a chain like a.b.c() resolved left to right.
type MemberAccess struct {
	base
	Members []MemberSegment
}

// UnusedReturnValue reports whether the chain ends in a call whose result is
// discarded.
func (n *MemberAccess) UnusedReturnValue() bool {
	last := n.Members[len(n.Members)-1]
	return last.Kind == MemberFunctionCall && last.Call.UnusedReturnValue
}

// ArrayGetter loads Target[Offset]. FieldType, when set, is the width of
// the loaded value and the offset is a byte offset.
type ArrayGetter struct {
	base
	Target    Expr
	Offset    Expr
	FieldType *Type
}

// ArrayKind selects the representation of an array literal.
type ArrayKind int

const (
	ArrayInferred  ArrayKind = iota // from the element types
	ArrayPrimitive                  // raw buffer of 8-byte values
	ArrayComplex                    // Array object holding references
)

// ArrayLiteral is [a, b, c].
type ArrayLiteral struct {
	base
	Elements []Expr
	Kind     ArrayKind
}

// Parameter is a named, typed function parameter or struct attribute.
type Parameter struct {
	Name string
	Type *Type
}

// Lambda is an anonymous function. Parameter types and the return type may
// be left unresolved and taken from the expected function type.
type Lambda struct {
	base
	Params     []*Parameter
	ReturnType *Type
	Body       *Composite
}

// RawInstruction injects already-lowered instructions.
type RawInstruction struct {
	base
	Instructions []UnresolvedInstruction
	Type         *Type
}

// PointerOperator is &, * or &!.
type PointerOperator int

const (
	PointerRef PointerOperator = iota
	PointerDeref
	PointerRefAbsolute
)

// PointerOperation takes an address or dereferences a pointer.
type PointerOperation struct {
	base
	Op      PointerOperator
	Operand Expr
}

// RangeLiteral is a..<b or a...b.
type RangeLiteral struct {
	base
	Start     Expr
	End       Expr
	Inclusive bool
}

// Spread forwards an existing array as the variadic tail: ...args.
type Spread struct {
	base
	Value Expr
}

// Boxed wraps a primitive value in a Number object: @(value).
type Boxed struct {
	base
	Value Expr
}

// Typecast reinterprets or converts a value: value as Type.
type Typecast struct {
	base
	Value Expr
	Type  *Type
}

// Noop emits nothing. As the value of an ArraySetter it stores whatever is
// already on top of the stack.
type Noop struct {
	base
}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// VariableDeclaration declares a local, or a global at top level.
type VariableDeclaration struct {
	base
	Name  string
	Type  *Type
	Value Expr
}

// ConstantDeclaration declares a compile-time constant.
type ConstantDeclaration struct {
	base
	Name  string
	Type  *Type
	Value Expr
}

// Assignment stores Value into Target.
type Assignment struct {
	base
	Target Expr
	Value  Expr
}

// ArraySetter stores Value at Target[Offset]. ValueType, when set, is the
// width of the stored value and the offset is a byte offset.
type ArraySetter struct {
	base
	Target    Expr
	Offset    Expr
	Value     Expr
	ValueType *Type
}

// Composite is a block of statements.
type Composite struct {
	base
	Statements []Stmt
	Unsafe     bool
}

// ConditionalBranch is one `if`/`else if` arm.
type ConditionalBranch struct {
	Cond Expr
	Body *Composite
}

// ConditionalStatement is an if / else if / else chain.
type ConditionalStatement struct {
	base
	Branches []*ConditionalBranch
	Else     *Composite
}

// WhileStatement loops while Cond holds.
type WhileStatement struct {
	base
	Cond Expr
	Body *Composite
}

// ForLoop iterates over Target through its iterator protocol.
type ForLoop struct {
	base
	Variable string
	Type     *Type
	Target   Expr
	Body     *Composite
}

// ReturnStatement returns from the enclosing function.
type ReturnStatement struct {
	base
	Value Expr
}

// BreakStatement leaves the innermost loop.
type BreakStatement struct {
	base
}

// ContinueStatement jumps to the innermost loop's condition.
type ContinueStatement struct {
	base
}

// DeferStatement runs Body when the enclosing block exits.
type DeferStatement struct {
	base
	Body *Composite
}

// FunctionKind distinguishes free functions from type members.
type FunctionKind int

const (
	FunctionGlobal FunctionKind = iota
	FunctionStatic
	FunctionInstance
)

// Annotations is the set of attributes attached with #[...].
type Annotations uint8

const (
	AnnotationDisableARC Annotations = 1 << iota
	AnnotationUnchecked
	AnnotationUnsafe
	AnnotationBaseProtocol
)

var annotationNames = map[string]Annotations{
	"disable_arc":   AnnotationDisableARC,
	"unchecked":     AnnotationUnchecked,
	"unsafe":        AnnotationUnsafe,
	"base_protocol": AnnotationBaseProtocol,
}

// Has reports whether all bits of a are set.
func (s Annotations) Has(a Annotations) bool {
	return s&a == a
}

// FunctionDeclaration declares a global, static or instance function.
type FunctionDeclaration struct {
	base
	Name        string
	Kind        FunctionKind
	TypeName    string
	Params      []*Parameter
	ReturnType  *Type
	Variadic    bool
	Annotations Annotations
	Body        *Composite
}

// MangledName returns the function's symbol name.
func (n *FunctionDeclaration) MangledName() string {
	switch n.Kind {
	case FunctionStatic:
		return MangleStatic(n.TypeName, n.Name)
	case FunctionInstance:
		return MangleInstance(n.TypeName, n.Name)
	}
	return MangleGlobal(n.Name)
}

// Signature returns the function table entry for the declaration.
func (n *FunctionDeclaration) Signature() *FunctionSignature {
	params := make([]*Type, len(n.Params))
	for i, p := range n.Params {
		params[i] = p.Type
	}
	return &FunctionSignature{
		Name:        n.MangledName(),
		ParamTypes:  params,
		ReturnType:  n.ReturnType,
		Variadic:    n.Variadic,
		Annotations: n.Annotations,
	}
}

// TypeDeclaration declares a struct.
type TypeDeclaration struct {
	base
	Name        string
	Attributes  []*Parameter
	Protocols   []string
	Annotations Annotations
}

// EnumDeclaration declares an enum; cases are numbered from 0.
type EnumDeclaration struct {
	base
	Name  string
	Cases []string
}

// ProtocolDeclaration declares default instance methods. Self in their
// signatures stands for the conforming type.
type ProtocolDeclaration struct {
	base
	Name        string
	Annotations Annotations
	Functions   []*FunctionDeclaration
}

// TypeImplementation adds static and instance functions to a type.
type TypeImplementation struct {
	base
	TypeName  string
	Functions []*FunctionDeclaration
}

// ImportStatement names another source file.
type ImportStatement struct {
	base
	Path string
}

// ---------------------------------------------------------------------------
// Interface plumbing
// ---------------------------------------------------------------------------

func (n *Identifier) Accept(v Visitor)                { v.VisitIdentifier(n) }
func (n *NumberLiteral) Accept(v Visitor)             { v.VisitNumberLiteral(n) }
func (n *StringLiteral) Accept(v Visitor)             { v.VisitStringLiteral(n) }
func (n *BooleanLiteral) Accept(v Visitor)            { v.VisitBooleanLiteral(n) }
func (n *BinaryOperation) Accept(v Visitor)           { v.VisitBinaryOperation(n) }
func (n *UnaryExpression) Accept(v Visitor)           { v.VisitUnaryExpression(n) }
func (n *Comparison) Accept(v Visitor)                { v.VisitComparison(n) }
func (n *BinaryCondition) Accept(v Visitor)           { v.VisitBinaryCondition(n) }
func (n *ImplicitNonZeroComparison) Accept(v Visitor) { v.VisitImplicitNonZeroComparison(n) }
func (n *FunctionCall) Accept(v Visitor)              { v.VisitFunctionCall(n) }
func (n *TypeMemberFunctionCall) Accept(v Visitor)    { v.VisitTypeMemberFunctionCall(n) }
func (n *MemberAccess) Accept(v Visitor)              { v.VisitMemberAccess(n) }
func (n *ArrayGetter) Accept(v Visitor)               { v.VisitArrayGetter(n) }
func (n *ArrayLiteral) Accept(v Visitor)              { v.VisitArrayLiteral(n) }
func (n *Lambda) Accept(v Visitor)                    { v.VisitLambda(n) }
func (n *RawInstruction) Accept(v Visitor)            { v.VisitRawInstruction(n) }
func (n *PointerOperation) Accept(v Visitor)          { v.VisitPointerOperation(n) }
func (n *RangeLiteral) Accept(v Visitor)              { v.VisitRangeLiteral(n) }
func (n *Spread) Accept(v Visitor)                    { v.VisitSpread(n) }
func (n *Boxed) Accept(v Visitor)                     { v.VisitBoxed(n) }
func (n *Typecast) Accept(v Visitor)                  { v.VisitTypecast(n) }
func (n *Noop) Accept(v Visitor)                      { v.VisitNoop(n) }

func (n *VariableDeclaration) Accept(v Visitor)  { v.VisitVariableDeclaration(n) }
func (n *ConstantDeclaration) Accept(v Visitor)  { v.VisitConstantDeclaration(n) }
func (n *Assignment) Accept(v Visitor)           { v.VisitAssignment(n) }
func (n *ArraySetter) Accept(v Visitor)          { v.VisitArraySetter(n) }
func (n *Composite) Accept(v Visitor)            { v.VisitComposite(n) }
func (n *ConditionalStatement) Accept(v Visitor) { v.VisitConditionalStatement(n) }
func (n *WhileStatement) Accept(v Visitor)       { v.VisitWhileStatement(n) }
func (n *ForLoop) Accept(v Visitor)              { v.VisitForLoop(n) }
func (n *ReturnStatement) Accept(v Visitor)      { v.VisitReturnStatement(n) }
func (n *BreakStatement) Accept(v Visitor)       { v.VisitBreakStatement(n) }
func (n *ContinueStatement) Accept(v Visitor)    { v.VisitContinueStatement(n) }
func (n *DeferStatement) Accept(v Visitor)       { v.VisitDeferStatement(n) }
func (n *FunctionDeclaration) Accept(v Visitor)  { v.VisitFunctionDeclaration(n) }
func (n *TypeDeclaration) Accept(v Visitor)      { v.VisitTypeDeclaration(n) }
func (n *EnumDeclaration) Accept(v Visitor)      { v.VisitEnumDeclaration(n) }
func (n *ProtocolDeclaration) Accept(v Visitor)  { v.VisitProtocolDeclaration(n) }
func (n *TypeImplementation) Accept(v Visitor)   { v.VisitTypeImplementation(n) }
func (n *ImportStatement) Accept(v Visitor)      { v.VisitImportStatement(n) }

func (n *Identifier) expr()                {}
func (n *NumberLiteral) expr()             {}
func (n *StringLiteral) expr()             {}
func (n *BooleanLiteral) expr()            {}
func (n *BinaryOperation) expr()           {}
func (n *UnaryExpression) expr()           {}
func (n *Comparison) expr()                {}
func (n *BinaryCondition) expr()           {}
func (n *ImplicitNonZeroComparison) expr() {}
func (n *FunctionCall) expr()              {}
func (n *TypeMemberFunctionCall) expr()    {}
func (n *MemberAccess) expr()              {}
func (n *ArrayGetter) expr()               {}
func (n *ArrayLiteral) expr()              {}
func (n *Lambda) expr()                    {}
func (n *RawInstruction) expr()            {}
func (n *PointerOperation) expr()          {}
func (n *RangeLiteral) expr()              {}
func (n *Spread) expr()                    {}
func (n *Boxed) expr()                     {}
func (n *Typecast) expr()                  {}
func (n *Noop) expr()                      {}

func (n *Comparison) cond()                {}
func (n *BinaryCondition) cond()           {}
func (n *ImplicitNonZeroComparison) cond() {}

func (n *FunctionCall) stmt()           {}
func (n *TypeMemberFunctionCall) stmt() {}
func (n *MemberAccess) stmt()           {}
func (n *RawInstruction) stmt()         {}
func (n *VariableDeclaration) stmt()    {}
func (n *ConstantDeclaration) stmt()    {}
func (n *Assignment) stmt()             {}
func (n *ArraySetter) stmt()            {}
func (n *Composite) stmt()              {}
func (n *ConditionalStatement) stmt()   {}
func (n *WhileStatement) stmt()         {}
func (n *ForLoop) stmt()                {}
func (n *ReturnStatement) stmt()        {}
func (n *BreakStatement) stmt()         {}
func (n *ContinueStatement) stmt()      {}
func (n *DeferStatement) stmt()         {}
func (n *FunctionDeclaration) stmt()    {}
func (n *TypeDeclaration) stmt()        {}
func (n *EnumDeclaration) stmt()        {}
func (n *ProtocolDeclaration) stmt()    {}
func (n *TypeImplementation) stmt()     {}
func (n *ImportStatement) stmt()        {}
