package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Parser: Recursive descent parser for yo
// ---------------------------------------------------------------------------

// Parser parses yo source code into an AST. It stops at the first error.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	errors    []*CompileError
}

// bailout unwinds the parser after the first error has been recorded.
type bailout struct{}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a whole translation unit.
func Parse(input string) ([]Stmt, error) {
	p := NewParser(input)
	nodes := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		return nil, &ParseError{Errors: errs}
	}
	return nodes, nil
}

// ParseType parses a type written in yo syntax, such as "*i8" or
// "fn(int): String".
func ParseType(input string) (t *Type, err error) {
	p := NewParser(input)
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			err = &ParseError{Errors: p.errors}
		}
	}()
	t = p.parseType()
	if !p.curTokenIs(TokenEOF) {
		p.errorf("unexpected %s after type", p.curToken.Type)
	}
	return t, nil
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// accept consumes the current token if it has type t.
func (p *Parser) accept(t TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	return false
}

// expect consumes a token of type t or fails.
func (p *Parser) expect(t TokenType) Token {
	tok := p.curToken
	if tok.Type != t {
		p.errorf("expected %s, got %s", t, describe(tok))
	}
	p.nextToken()
	return tok
}

func describe(tok Token) string {
	switch tok.Type {
	case TokenIdentifier, TokenInteger, TokenFloat:
		return fmt.Sprintf("%s %q", tok.Type, tok.Literal)
	case TokenString:
		return "string literal"
	case TokenError:
		return tok.Literal
	}
	return fmt.Sprintf("'%s'", tok.Type)
}

// errorf records a parse error and abandons the parse.
func (p *Parser) errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if p.curToken.Type == TokenError {
		msg = p.curToken.Literal
	}
	p.errors = append(p.errors, &CompileError{Pos: p.curToken.Pos, Message: msg})
	panic(bailout{})
}

// Errors returns accumulated parse errors.
func (p *Parser) Errors() []*CompileError {
	return p.errors
}

func (p *Parser) span(start Position) Span {
	return Span{Start: start, End: p.curToken.Pos}
}

// ---------------------------------------------------------------------------
// Top-level parsing
// ---------------------------------------------------------------------------

// ParseProgram parses declarations until EOF or the first error.
func (p *Parser) ParseProgram() (nodes []Stmt) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
		}
	}()
	for !p.curTokenIs(TokenEOF) {
		nodes = append(nodes, p.parseTopLevel())
	}
	return nodes
}

func (p *Parser) parseTopLevel() Stmt {
	start := p.curToken.Pos
	annotations := p.parseAnnotations()

	switch p.curToken.Type {
	case TokenFn:
		fn := p.parseFunction(FunctionGlobal, "", annotations)
		return fn
	case TokenType_:
		decl := p.parseTypeDeclaration(start)
		decl.Annotations = annotations
		return decl
	case TokenProtocol:
		return p.parseProtocol(start, annotations)
	}
	if annotations != 0 {
		p.errorf("annotations are only allowed on functions, types and protocols")
	}

	switch p.curToken.Type {
	case TokenEnum:
		return p.parseEnum(start)
	case TokenImpl:
		return p.parseImpl(start)
	case TokenUse:
		p.nextToken()
		path := p.expect(TokenString)
		p.expect(TokenSemicolon)
		return at(&ImportStatement{Path: path.Literal}, p.span(start))
	case TokenConst:
		p.nextToken()
		name := p.expect(TokenIdentifier).Literal
		typ := Unresolved
		if p.accept(TokenColon) {
			typ = p.parseType()
		}
		p.expect(TokenAssign)
		value := p.parseExpression()
		p.expect(TokenSemicolon)
		return at(&ConstantDeclaration{Name: name, Type: typ, Value: value}, p.span(start))
	case TokenVal, TokenVar:
		return p.parseVariableDeclaration()
	}
	p.errorf("expected declaration, got %s", describe(p.curToken))
	return nil
}

// parseAnnotations parses `#[a, b]` lists.
func (p *Parser) parseAnnotations() Annotations {
	var set Annotations
	for p.accept(TokenHashLBracket) {
		for {
			// `unsafe` is both a keyword and an annotation
			tok := p.curToken
			if tok.Type == TokenUnsafe {
				p.nextToken()
			} else {
				tok = p.expect(TokenIdentifier)
			}
			a, ok := annotationNames[tok.Literal]
			if !ok {
				p.errors = append(p.errors, &CompileError{Pos: tok.Pos, Message: fmt.Sprintf("unknown annotation '%s'", tok.Literal)})
				panic(bailout{})
			}
			set |= a
			if !p.accept(TokenComma) {
				break
			}
		}
		p.expect(TokenRBracket)
	}
	return set
}

// parseFunction parses `fn name(params): ret { body }`. Protocol
// requirements may end with `;` instead of a body.
func (p *Parser) parseFunction(kind FunctionKind, typeName string, annotations Annotations) *FunctionDeclaration {
	start := p.curToken.Pos
	p.expect(TokenFn)
	name := p.expect(TokenIdentifier).Literal
	fn := &FunctionDeclaration{
		Name:        name,
		Kind:        kind,
		TypeName:    typeName,
		Annotations: annotations,
		ReturnType:  Void,
	}
	fn.Params, fn.Variadic = p.parseParameters(typeName)
	if p.accept(TokenColon) {
		fn.ReturnType = p.parseType()
	}
	for _, param := range fn.Params {
		if !param.Type.IsResolved() {
			p.errorf("parameter '%s' of function '%s' needs a type", param.Name, name)
		}
	}
	if p.curTokenIs(TokenSemicolon) && typeName != "" {
		p.nextToken()
		return at(fn, p.span(start))
	}
	fn.Body = p.parseBlock()
	return at(fn, p.span(start))
}

// parseParameters parses `(a: T, b, rest: *any...)`. An untyped `self`
// gets the type of the enclosing impl block.
func (p *Parser) parseParameters(selfType string) ([]*Parameter, bool) {
	p.expect(TokenLParen)
	var params []*Parameter
	variadic := false
	for !p.curTokenIs(TokenRParen) {
		if variadic {
			p.errorf("variadic parameter must be the last parameter")
		}
		name := p.expect(TokenIdentifier).Literal
		typ := Unresolved
		if p.accept(TokenColon) {
			typ = p.parseType()
		} else if name == "self" && selfType != "" {
			typ = Complex(selfType)
		}
		if p.accept(TokenEllipsis) {
			variadic = true
		}
		params = append(params, &Parameter{Name: name, Type: typ})
		if !p.accept(TokenComma) {
			break
		}
	}
	p.expect(TokenRParen)
	return params, variadic
}

func (p *Parser) parseTypeDeclaration(start Position) *TypeDeclaration {
	p.expect(TokenType_)
	decl := &TypeDeclaration{Name: p.expect(TokenIdentifier).Literal}
	if p.accept(TokenColon) {
		for {
			decl.Protocols = append(decl.Protocols, p.expect(TokenIdentifier).Literal)
			if !p.accept(TokenComma) {
				break
			}
		}
	}
	p.expect(TokenLBrace)
	for !p.curTokenIs(TokenRBrace) {
		name := p.expect(TokenIdentifier).Literal
		p.expect(TokenColon)
		decl.Attributes = append(decl.Attributes, &Parameter{Name: name, Type: p.parseType()})
		if !p.accept(TokenComma) {
			break
		}
	}
	p.expect(TokenRBrace)
	return at(decl, p.span(start))
}

func (p *Parser) parseEnum(start Position) *EnumDeclaration {
	p.expect(TokenEnum)
	decl := &EnumDeclaration{Name: p.expect(TokenIdentifier).Literal}
	p.expect(TokenLBrace)
	for !p.curTokenIs(TokenRBrace) {
		decl.Cases = append(decl.Cases, p.expect(TokenIdentifier).Literal)
		if !p.accept(TokenComma) {
			break
		}
	}
	p.expect(TokenRBrace)
	return at(decl, p.span(start))
}

func (p *Parser) parseProtocol(start Position, annotations Annotations) *ProtocolDeclaration {
	p.expect(TokenProtocol)
	decl := &ProtocolDeclaration{Name: p.expect(TokenIdentifier).Literal, Annotations: annotations}
	p.expect(TokenLBrace)
	for !p.curTokenIs(TokenRBrace) {
		a := p.parseAnnotations()
		decl.Functions = append(decl.Functions, p.parseFunction(FunctionInstance, "Self", a))
	}
	p.expect(TokenRBrace)
	return at(decl, p.span(start))
}

func (p *Parser) parseImpl(start Position) *TypeImplementation {
	p.expect(TokenImpl)
	impl := &TypeImplementation{TypeName: p.expect(TokenIdentifier).Literal}
	p.expect(TokenLBrace)
	for !p.curTokenIs(TokenRBrace) {
		a := p.parseAnnotations()
		kind := FunctionInstance
		if p.accept(TokenStatic) {
			kind = FunctionStatic
		}
		fn := p.parseFunction(kind, impl.TypeName, a)
		if fn.Body == nil {
			p.errorf("function '%s' needs a body", fn.Name)
		}
		impl.Functions = append(impl.Functions, fn)
	}
	p.expect(TokenRBrace)
	return at(impl, p.span(start))
}

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

func (p *Parser) parseType() *Type {
	switch p.curToken.Type {
	case TokenStar:
		p.nextToken()
		return PointerTo(p.parseType())
	case TokenFn:
		p.nextToken()
		p.expect(TokenLParen)
		var params []*Type
		for !p.curTokenIs(TokenRParen) {
			params = append(params, p.parseType())
			if !p.accept(TokenComma) {
				break
			}
		}
		p.expect(TokenRParen)
		ret := Void
		if p.accept(TokenColon) {
			ret = p.parseType()
		}
		return FunctionOf(ret, params...)
	case TokenIdentifier:
		name := p.curToken.Literal
		p.nextToken()
		return Named(name)
	}
	p.errorf("expected type, got %s", describe(p.curToken))
	return nil
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) parseBlock() *Composite {
	start := p.curToken.Pos
	p.expect(TokenLBrace)
	block := &Composite{}
	for !p.curTokenIs(TokenRBrace) {
		if p.curTokenIs(TokenEOF) {
			p.errorf("unexpected end of input, expected '}'")
		}
		block.Statements = append(block.Statements, p.parseStatement())
	}
	p.expect(TokenRBrace)
	return at(block, p.span(start))
}

func (p *Parser) parseStatement() Stmt {
	start := p.curToken.Pos

	switch p.curToken.Type {
	case TokenVal, TokenVar:
		return p.parseVariableDeclaration()

	case TokenIf:
		return p.parseIf()

	case TokenWhile:
		p.nextToken()
		cond := p.parseCondition()
		body := p.parseBlock()
		return at(&WhileStatement{Cond: cond, Body: body}, p.span(start))

	case TokenFor:
		p.nextToken()
		loop := &ForLoop{Variable: p.expect(TokenIdentifier).Literal, Type: Unresolved}
		if p.accept(TokenColon) {
			loop.Type = p.parseType()
		}
		p.expect(TokenIn)
		loop.Target = p.parseExpression()
		loop.Body = p.parseBlock()
		return at(loop, p.span(start))

	case TokenReturn:
		p.nextToken()
		ret := &ReturnStatement{}
		if !p.curTokenIs(TokenSemicolon) {
			ret.Value = p.parseExpression()
		}
		p.expect(TokenSemicolon)
		return at(ret, p.span(start))

	case TokenBreak:
		p.nextToken()
		p.expect(TokenSemicolon)
		return at(&BreakStatement{}, p.span(start))

	case TokenContinue:
		p.nextToken()
		p.expect(TokenSemicolon)
		return at(&ContinueStatement{}, p.span(start))

	case TokenDefer:
		p.nextToken()
		return at(&DeferStatement{Body: p.parseBlock()}, p.span(start))

	case TokenUnsafe:
		p.nextToken()
		block := p.parseBlock()
		block.Unsafe = true
		return block

	case TokenLBrace:
		return p.parseBlock()
	}

	expr := p.parseExpression()
	if p.accept(TokenAssign) {
		switch target := expr.(type) {
		case *Identifier, *ArrayGetter:
		case *MemberAccess:
			if target.Members[len(target.Members)-1].Kind != MemberAttribute {
				p.errorf("cannot assign to the result of a call")
			}
		case *PointerOperation:
			if target.Op != PointerDeref {
				p.errorf("cannot assign to an address")
			}
		default:
			p.errorf("invalid assignment target")
		}
		value := p.parseExpression()
		p.expect(TokenSemicolon)
		return at(&Assignment{Target: expr, Value: value}, p.span(start))
	}
	p.expect(TokenSemicolon)

	switch e := expr.(type) {
	case *FunctionCall:
		e.UnusedReturnValue = true
		return e
	case *TypeMemberFunctionCall:
		e.UnusedReturnValue = true
		return e
	case *MemberAccess:
		last := e.Members[len(e.Members)-1]
		if last.Kind == MemberFunctionCall {
			last.Call.UnusedReturnValue = true
			return e
		}
	}
	p.errorf("expression statement must be a call or an assignment")
	return nil
}

func (p *Parser) parseVariableDeclaration() *VariableDeclaration {
	start := p.curToken.Pos
	p.nextToken() // val or var
	decl := &VariableDeclaration{Name: p.expect(TokenIdentifier).Literal, Type: Unresolved}
	if p.accept(TokenColon) {
		decl.Type = p.parseType()
	}
	if p.accept(TokenAssign) {
		decl.Value = p.parseExpression()
	} else if !decl.Type.IsResolved() {
		p.errorf("declaration of '%s' needs a type or an initial value", decl.Name)
	}
	p.expect(TokenSemicolon)
	return at(decl, p.span(start))
}

func (p *Parser) parseIf() *ConditionalStatement {
	start := p.curToken.Pos
	stmt := &ConditionalStatement{}
	for {
		p.expect(TokenIf)
		cond := p.parseCondition()
		stmt.Branches = append(stmt.Branches, &ConditionalBranch{Cond: cond, Body: p.parseBlock()})
		if !p.accept(TokenElse) {
			break
		}
		if !p.curTokenIs(TokenIf) {
			stmt.Else = p.parseBlock()
			break
		}
	}
	return at(stmt, p.span(start))
}

// parseCondition parses an expression used as a truth value. Plain values
// are compared against zero.
func (p *Parser) parseCondition() Expr {
	expr := p.parseExpression()
	if _, ok := expr.(Cond); ok {
		return expr
	}
	return at(&ImplicitNonZeroComparison{Value: expr}, expr.Span())
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// ParseExpression parses a single expression.
func (p *Parser) ParseExpression() (expr Expr, err error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			err = &ParseError{Errors: p.errors}
		}
	}()
	return p.parseExpression(), nil
}

func (p *Parser) parseExpression() Expr {
	return p.parseOr()
}

func (p *Parser) parseOr() Expr {
	left := p.parseAnd()
	for p.curTokenIs(TokenOrOr) {
		start := p.curToken.Pos
		p.nextToken()
		left = at(&BinaryCondition{Op: LogicalOr, LHS: left, RHS: p.parseAnd()}, p.span(start))
	}
	return left
}

func (p *Parser) parseAnd() Expr {
	left := p.parseComparison()
	for p.curTokenIs(TokenAndAnd) {
		start := p.curToken.Pos
		p.nextToken()
		left = at(&BinaryCondition{Op: LogicalAnd, LHS: left, RHS: p.parseComparison()}, p.span(start))
	}
	return left
}

var comparisonTokens = map[TokenType]ComparisonOperator{
	TokenEq:    CmpEqual,
	TokenNotEq: CmpNotEqual,
	TokenLT:    CmpLess,
	TokenLE:    CmpLessEqual,
	TokenGT:    CmpGreater,
	TokenGE:    CmpGreaterEqual,
}

func (p *Parser) parseComparison() Expr {
	left := p.parseRange()
	if op, ok := comparisonTokens[p.curToken.Type]; ok {
		start := p.curToken.Pos
		p.nextToken()
		return at(&Comparison{Op: op, LHS: left, RHS: p.parseRange()}, p.span(start))
	}
	return left
}

func (p *Parser) parseRange() Expr {
	left := p.parseBinary(0)
	if p.curTokenIs(TokenRangeExcl) || p.curTokenIs(TokenEllipsis) {
		start := p.curToken.Pos
		inclusive := p.curTokenIs(TokenEllipsis)
		p.nextToken()
		return at(&RangeLiteral{Start: left, End: p.parseBinary(0), Inclusive: inclusive}, p.span(start))
	}
	return left
}

// binaryLevels lists arithmetic and bitwise operators from lowest to
// highest precedence.
var binaryLevels = []map[TokenType]BinaryOperator{
	{TokenPipe: OpOr},
	{TokenCaret: OpXor},
	{TokenAmp: OpAnd},
	{TokenShl: OpShl, TokenShr: OpShr},
	{TokenPlus: OpAdd, TokenMinus: OpSub},
	{TokenStar: OpMul, TokenSlash: OpDiv, TokenPercent: OpMod},
}

func (p *Parser) parseBinary(level int) Expr {
	if level == len(binaryLevels) {
		return p.parseCast()
	}
	left := p.parseBinary(level + 1)
	for {
		op, ok := binaryLevels[level][p.curToken.Type]
		if !ok {
			return left
		}
		start := p.curToken.Pos
		p.nextToken()
		left = at(&BinaryOperation{Op: op, LHS: left, RHS: p.parseBinary(level + 1)}, p.span(start))
	}
}

func (p *Parser) parseCast() Expr {
	expr := p.parseUnary()
	for p.curTokenIs(TokenAs) {
		start := p.curToken.Pos
		p.nextToken()
		expr = at(&Typecast{Value: expr, Type: p.parseType()}, p.span(start))
	}
	return expr
}

func (p *Parser) parseUnary() Expr {
	start := p.curToken.Pos
	switch p.curToken.Type {
	case TokenMinus:
		p.nextToken()
		operand := p.parseUnary()
		if lit, ok := operand.(*NumberLiteral); ok {
			lit.Value = -lit.Value
			lit.Double = -lit.Double
			return lit
		}
		return at(&UnaryExpression{Op: UnaryNegate, Operand: operand}, p.span(start))
	case TokenBang:
		p.nextToken()
		return at(&UnaryExpression{Op: UnaryLogicalNot, Operand: p.parseUnary()}, p.span(start))
	case TokenTilde:
		p.nextToken()
		return at(&UnaryExpression{Op: UnaryBitwiseNot, Operand: p.parseUnary()}, p.span(start))
	case TokenAmp:
		p.nextToken()
		return at(&PointerOperation{Op: PointerRef, Operand: p.parseUnary()}, p.span(start))
	case TokenAmpBang:
		p.nextToken()
		return at(&PointerOperation{Op: PointerRefAbsolute, Operand: p.parseUnary()}, p.span(start))
	case TokenStar:
		p.nextToken()
		return at(&PointerOperation{Op: PointerDeref, Operand: p.parseUnary()}, p.span(start))
	case TokenEllipsis:
		p.nextToken()
		return at(&Spread{Value: p.parseUnary()}, p.span(start))
	}
	return p.parsePostfix(p.parsePrimary())
}

// parsePostfix folds calls, member accesses and subscripts onto expr.
func (p *Parser) parsePostfix(expr Expr) Expr {
	for {
		start := p.curToken.Pos
		switch p.curToken.Type {
		case TokenDot:
			p.nextToken()
			name := p.expect(TokenIdentifier).Literal
			access, ok := expr.(*MemberAccess)
			if !ok {
				access = at(&MemberAccess{Members: []MemberSegment{initialSegment(expr)}}, expr.Span())
			}
			if p.curTokenIs(TokenLParen) {
				call := at(&FunctionCall{Name: name, Args: p.parseArguments()}, p.span(start))
				access.Members = append(access.Members, MemberSegment{Kind: MemberFunctionCall, Name: name, Call: call})
			} else {
				access.Members = append(access.Members, MemberSegment{Kind: MemberAttribute, Name: name})
			}
			access.SpanVal.End = p.curToken.Pos
			expr = access

		case TokenLParen:
			expr = at(&FunctionCall{Callee: expr, Args: p.parseArguments()}, p.span(start))

		case TokenLBracket:
			p.nextToken()
			offset := p.parseExpression()
			p.expect(TokenRBracket)
			expr = at(&ArrayGetter{Target: expr, Offset: offset}, p.span(start))

		default:
			return expr
		}
	}
}

func initialSegment(expr Expr) MemberSegment {
	switch e := expr.(type) {
	case *Identifier:
		return MemberSegment{Kind: MemberInitialIdentifier, Name: e.Name}
	case *FunctionCall:
		if e.Callee == nil {
			return MemberSegment{Kind: MemberInitialCall, Name: e.Name, Call: e}
		}
	}
	return MemberSegment{Kind: MemberInitialExpression, Expr: expr}
}

func (p *Parser) parseArguments() []Expr {
	p.expect(TokenLParen)
	var args []Expr
	for !p.curTokenIs(TokenRParen) {
		args = append(args, p.parseExpression())
		if !p.accept(TokenComma) {
			break
		}
	}
	p.expect(TokenRParen)
	return args
}

func (p *Parser) parsePrimary() Expr {
	tok := p.curToken
	start := tok.Pos

	switch tok.Type {
	case TokenInteger:
		p.nextToken()
		v, err := strconv.ParseInt(strings.ReplaceAll(tok.Literal, "_", ""), 0, 64)
		if err != nil {
			p.curToken = tok
			p.errorf("invalid integer literal %s", tok.Literal)
		}
		return at(&NumberLiteral{Value: v}, p.span(start))

	case TokenFloat:
		p.nextToken()
		v, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.curToken = tok
			p.errorf("invalid float literal %s", tok.Literal)
		}
		return at(&NumberLiteral{Double: v, IsDouble: true}, p.span(start))

	case TokenString:
		p.nextToken()
		return at(&StringLiteral{Value: tok.Literal}, p.span(start))

	case TokenTrue, TokenFalse:
		p.nextToken()
		return at(&BooleanLiteral{Value: tok.Type == TokenTrue}, p.span(start))

	case TokenIdentifier:
		p.nextToken()
		if p.curTokenIs(TokenColonColon) {
			p.nextToken()
			member := p.expect(TokenIdentifier).Literal
			if !p.curTokenIs(TokenLParen) {
				p.errorf("expected call of %s::%s", tok.Literal, member)
			}
			return at(&TypeMemberFunctionCall{TypeName: tok.Literal, Member: member, Args: p.parseArguments()}, p.span(start))
		}
		if p.curTokenIs(TokenLParen) {
			return at(&FunctionCall{Name: tok.Literal, Args: p.parseArguments()}, p.span(start))
		}
		return at(&Identifier{Name: tok.Literal}, p.span(start))

	case TokenLParen:
		p.nextToken()
		expr := p.parseExpression()
		p.expect(TokenRParen)
		return expr

	case TokenLBracket:
		p.nextToken()
		lit := &ArrayLiteral{}
		for !p.curTokenIs(TokenRBracket) {
			lit.Elements = append(lit.Elements, p.parseExpression())
			if !p.accept(TokenComma) {
				break
			}
		}
		p.expect(TokenRBracket)
		return at(lit, p.span(start))

	case TokenAt:
		p.nextToken()
		p.expect(TokenLParen)
		value := p.parseExpression()
		p.expect(TokenRParen)
		return at(&Boxed{Value: value}, p.span(start))

	case TokenFn:
		return p.parseLambda()
	}

	p.errorf("unexpected %s", describe(tok))
	return nil
}

// parseLambda parses `fn (a, b: T): R { body }`.
func (p *Parser) parseLambda() *Lambda {
	start := p.curToken.Pos
	p.expect(TokenFn)
	params, variadic := p.parseParameters("")
	if variadic {
		p.errorf("lambdas cannot be variadic")
	}
	lambda := &Lambda{Params: params, ReturnType: Unresolved}
	if p.accept(TokenColon) {
		lambda.ReturnType = p.parseType()
	}
	lambda.Body = p.parseBlock()
	return at(lambda, p.span(start))
}
