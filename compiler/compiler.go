package compiler

import (
	"fmt"
	"os"
	"sort"

	"github.com/tliron/commonlog"

	"github.com/agreefuture/yo/vm"
)

var log = commonlog.GetLogger("yo.compiler")

const (
	staticInitializers = "__INVOKING_ALL_STATIC_INITIALIZERS__"
	staticCleanup      = "__INVOKING_ALL_STATIC_CLEANUP_FUNCTIONS__"
	entryPoint         = "main"
	programEnd         = "end"
)

// Options configures a compilation.
type Options struct {
	// NoPrelude compiles the program without the bundled String, Array,
	// Number, Range and _DeferHandle types.
	NoPrelude bool
}

// Stats summarizes a compilation.
type Stats struct {
	Functions    int
	Lambdas      int
	Types        int
	Instructions int
	Constants    int
}

type loopLabels struct {
	cond  string
	end   string
	depth int // number of frame locals when the loop was entered
}

// Compiler turns a checked AST into a linked vm.Program. A Compiler is used
// for exactly one compilation.
type Compiler struct {
	opts      Options
	functions map[string]*FunctionSignature
	resolved  map[string]bool
	types     *TypeCache
	globals   []Binding
	constants map[string]*ConstantDeclaration

	scope    Scope
	out      *[]UnresolvedInstruction
	main     []UnresolvedInstruction
	detached [][]UnresolvedInstruction
	data     []UnresolvedInstruction
	loops    []loopLabels

	counter  int
	literals map[string]string // constant blob key -> label
	stats    Stats
}

func newCompiler(opts Options) *Compiler {
	c := &Compiler{
		opts:      opts,
		functions: make(map[string]*FunctionSignature),
		resolved:  make(map[string]bool),
		types:     NewTypeCache(),
		constants: make(map[string]*ConstantDeclaration),
		scope:     GlobalScope(),
		literals:  make(map[string]string),
	}
	c.out = &c.main
	return c
}

// Compile compiles a parsed program. Unless opts.NoPrelude is set the
// prelude is compiled along with it.
func Compile(nodes []Stmt, opts Options) (prog *vm.Program, stats *Stats, err error) {
	defer catchCompileError(&err)
	if !opts.NoPrelude {
		nodes = append(Prelude(), nodes...)
	}
	c := newCompiler(opts)
	prog = c.compile(nodes)
	return prog, &c.stats, nil
}

// CompileSource parses and compiles a single source text.
func CompileSource(src string, opts Options) (*vm.Program, *Stats, error) {
	nodes, err := Parse(src)
	if err != nil {
		return nil, nil, err
	}
	return Compile(nodes, opts)
}

// CompileFile compiles path and everything it imports.
func CompileFile(path string, opts Options) (*vm.Program, *Stats, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil, err
	}
	nodes, err := ResolveImports(path)
	if err != nil {
		return nil, nil, err
	}
	return Compile(nodes, opts)
}

func (c *Compiler) compile(nodes []Stmt) *vm.Program {
	nodes = expandProtocols(nodes)
	a := analyze(nodes)
	c.functions = a.Functions
	for _, fn := range vm.Natives() {
		c.registerNative(fn)
	}
	log.Debugf("analyzed %d functions, %d types, %d enums", len(a.Functions), len(a.Types), len(a.Enums))

	for _, e := range a.Enums {
		c.types.RegisterEnum(e)
	}
	for _, t := range a.Types {
		c.types.Declare(t)
	}
	for _, t := range a.Types {
		c.types.Register(t)
	}

	var synthesized []*FunctionDeclaration
	for _, t := range a.Types {
		for _, fn := range c.synthesize(t) {
			if fn.Kind != FunctionStatic || fn.Name != "init" {
				c.registerFunction(fn)
			}
			synthesized = append(synthesized, fn)
		}
	}

	for _, k := range a.Constants {
		c.constants[k.Name] = k
	}
	for _, g := range a.Globals {
		c.globals = append(c.globals, Binding{Name: g.Name, Type: c.declaredType(g.Name, g.Type, g.Value, g.Span().Start)})
	}

	if sig, ok := c.function(entryPoint, Position{}); !ok || sig.Native {
		failAt(Position{}, "undefined function '%s'", entryPoint)
	} else if sig.Argc() != 0 {
		failAt(Position{}, "'%s' must not take parameters", entryPoint)
	}
	c.emitBootstrap()

	for _, node := range nodes {
		node.Accept(c)
	}
	for _, fn := range synthesized {
		c.emitDetached(fn)
	}
	c.emitStaticFunctions(a.Globals)

	prog := c.link()
	c.stats.Types = len(c.types.Entries())
	c.stats.Instructions = len(prog.Code)
	c.stats.Constants = len(prog.Constants)
	log.Infof("compiled %d functions (%d lambdas), %d types, %d instructions",
		c.stats.Functions, c.stats.Lambdas, c.stats.Types, c.stats.Instructions)
	return prog
}

// emitBootstrap writes the entry sequence at address 0: run the static
// initializers, call main leaving its result on the stack, run the static
// cleanup functions and jump past the end of the code.
func (c *Compiler) emitBootstrap() {
	c.add(comment("bootstrap"))
	c.add(unresolved(vm.OpPUSH, staticInitializers))
	c.op(vm.OpCALL, 0)
	c.op(vm.OpPOP, 0)
	c.add(unresolved(vm.OpPUSH, entryPoint))
	c.op(vm.OpCALL, 0)
	c.add(unresolved(vm.OpPUSH, staticCleanup))
	c.op(vm.OpCALL, 0)
	c.op(vm.OpPOP, 0)
	c.add(unresolved(vm.OpUJUMP, programEnd))
}

// emitStaticFunctions generates the functions that assign every global its
// initial value and release every global at exit.
func (c *Compiler) emitStaticFunctions(globals []*VariableDeclaration) {
	var init, cleanup []Stmt
	for _, g := range globals {
		span := g.Span()
		if g.Value != nil {
			init = append(init, at(&Assignment{Target: ident(g.Name, span), Value: g.Value}, span))
		}
		cleanup = append(cleanup, at(&Assignment{
			Target: ident(g.Name, span),
			Value:  at(&Typecast{Value: number(0, span), Type: Any}, span),
		}, span))
	}
	for _, fn := range []*FunctionDeclaration{
		{Name: staticInitializers, ReturnType: Void, Body: &Composite{Statements: init}},
		{Name: staticCleanup, ReturnType: Void, Body: &Composite{Statements: cleanup}},
	} {
		c.registerFunction(fn)
		c.emitDetached(fn)
	}
}

// ---------------------------------------------------------------------------
// Emission helpers
// ---------------------------------------------------------------------------

func (c *Compiler) add(instrs ...UnresolvedInstruction) {
	*c.out = append(*c.out, instrs...)
}

func (c *Compiler) op(op vm.Opcode, imm int) {
	c.add(operation(op, int64(imm)))
}

func (c *Compiler) push(v int64) {
	c.add(operation(vm.OpPUSH, v))
}

func (c *Compiler) jump(op vm.Opcode, target string) {
	c.add(unresolved(op, target))
}

func (c *Compiler) emit(e Expr) {
	e.Accept(c)
}

func (c *Compiler) nextID() int {
	c.counter++
	return c.counter
}

// localLabel returns a function-local label. Local labels start with a dot
// and are not padded to odd addresses by the linker.
func (c *Compiler) localLabel(kind string, id int) string {
	return fmt.Sprintf(".%s_%s_%d", c.scope.Function, kind, id)
}

// emitDetached compiles fn into its own chunk, appended after the main
// stream when linking. The current scope and loop stack are preserved.
func (c *Compiler) emitDetached(fn *FunctionDeclaration) {
	var chunk []UnresolvedInstruction
	saved := c.out
	c.out = &chunk
	c.compileFunction(fn)
	c.out = saved
	c.detached = append(c.detached, chunk)
}

func (c *Compiler) withScope(s Scope, f func()) {
	saved, savedLoops := c.scope, c.loops
	defer func() {
		c.scope, c.loops = saved, savedLoops
	}()
	c.scope = s
	c.loops = nil
	f()
}

// ---------------------------------------------------------------------------
// Function table
// ---------------------------------------------------------------------------

func (c *Compiler) registerNative(fn *vm.NativeFunction) {
	if _, dup := c.functions[fn.Name]; dup {
		failAt(Position{}, "function '%s' conflicts with a runtime function", fn.Name)
	}
	params := make([]*Type, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = mustParseType(p)
	}
	sig := &FunctionSignature{
		Name:       fn.Name,
		ParamTypes: params,
		ReturnType: mustParseType(fn.Returns),
		Variadic:   fn.Variadic,
		Native:     true,
		Address:    fn.Address,
	}
	if fn.Unchecked {
		sig.Annotations |= AnnotationUnchecked
	}
	c.functions[fn.Name] = sig
}

func mustParseType(s string) *Type {
	t, err := ParseType(s)
	if err != nil {
		panic(fmt.Sprintf("native type %q: %v", s, err))
	}
	return t
}

func (c *Compiler) registerFunction(fn *FunctionDeclaration) {
	sig := fn.Signature()
	if _, dup := c.functions[sig.Name]; dup {
		failAt(fn.Span().Start, "function '%s' declared more than once", sig.Name)
	}
	c.functions[sig.Name] = sig
}

// function returns the signature called name with its types resolved.
// Resolution is lazy so that natives referring to prelude types only fail
// when they are used without the prelude.
func (c *Compiler) function(name string, pos Position) (*FunctionSignature, bool) {
	sig, ok := c.functions[name]
	if !ok {
		return nil, false
	}
	if !c.resolved[name] {
		c.resolved[name] = true
		for i, p := range sig.ParamTypes {
			sig.ParamTypes[i] = c.types.Resolve(p, pos)
		}
		sig.ReturnType = c.types.Resolve(sig.ReturnType, pos)
	}
	return sig, true
}

func (c *Compiler) hasMethod(typeName, method string) bool {
	_, ok := c.functions[MangleInstance(typeName, method)]
	return ok
}

func (c *Compiler) resolveType(t *Type, pos Position) *Type {
	return c.types.Resolve(t, pos)
}

func (c *Compiler) supportsARC(t *Type) bool {
	return c.types.SupportsARC(t)
}

func (c *Compiler) global(name string) (int, Binding, bool) {
	for i, g := range c.globals {
		if g.Name == name {
			return i, g, true
		}
	}
	return 0, Binding{}, false
}

func globalAddress(index int) int {
	return vm.GlobalsBase + 8*index
}

// declaredType returns the type of a variable: the annotation when present,
// otherwise the inferred type of its value.
func (c *Compiler) declaredType(name string, declared *Type, value Expr, pos Position) *Type {
	var t *Type
	switch {
	case declared != nil && declared.Kind != TypeUnresolved:
		t = c.resolveType(declared, pos)
	case value == nil:
		failAt(pos, "cannot infer the type of '%s' without a value", name)
	default:
		t = c.typeOf(value)
		if !t.IsResolved() {
			failAt(pos, "cannot infer the type of '%s'; annotate the lambda's parameter types", name)
		}
	}
	if t.Kind == TypeVoid {
		failAt(pos, "cannot declare '%s' of type void", name)
	}
	return t
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

func (c *Compiler) compileFunction(fn *FunctionDeclaration) {
	name := fn.MangledName()
	pos := fn.Span().Start
	sig, ok := c.function(name, pos)
	if !ok {
		failAt(pos, "function '%s' is not registered", name)
	}
	if fn.Body == nil {
		failAt(pos, "function '%s' has no body", name)
	}

	params := make([]Binding, len(fn.Params))
	for i, p := range fn.Params {
		for _, prev := range params[:i] {
			if prev.Name == p.Name {
				failAt(pos, "duplicate parameter '%s' in '%s'", p.Name, name)
			}
		}
		params[i] = Binding{Name: p.Name, Type: sig.ParamTypes[i]}
	}

	scope := Scope{
		Kind:       ScopeFunction,
		Function:   name,
		ReturnType: sig.ReturnType,
		Parameters: params,
		ARC:        !fn.Annotations.Has(AnnotationDisableARC),
		Unsafe:     fn.Annotations.Has(AnnotationUnsafe),
	}
	c.stats.Functions++

	c.withScope(scope, func() {
		c.add(label(name))
		if scope.ARC {
			for i, p := range params {
				if c.supportsARC(p.Type) {
					c.op(vm.OpLOAD, -(2 + i))
					c.op(vm.OpRETAIN, 0)
				}
			}
		}
		body := fn.Body
		if !endsWithReturn(body) {
			implicit := at(&ReturnStatement{Value: at(&Typecast{Value: number(0, body.Span()), Type: Any}, body.Span())}, body.Span())
			body = at(&Composite{
				Statements: append(append([]Stmt(nil), body.Statements...), implicit),
				Unsafe:     body.Unsafe,
			}, body.Span())
		}
		c.VisitComposite(body)
	})
}

func endsWithReturn(body *Composite) bool {
	if len(body.Statements) == 0 {
		return false
	}
	_, ok := body.Statements[len(body.Statements)-1].(*ReturnStatement)
	return ok
}

// listSymbols returns the sorted names of the function table, for
// deterministic metatype method tables.
func (c *Compiler) listSymbols() []string {
	names := make([]string, 0, len(c.functions))
	for name := range c.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
