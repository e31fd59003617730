package compiler

// ---------------------------------------------------------------------------
// Semantic analysis: collect the global tables before codegen
// ---------------------------------------------------------------------------

// FunctionSignature describes a callable entry of the function table.
type FunctionSignature struct {
	Name        string // mangled
	ParamTypes  []*Type
	ReturnType  *Type
	Variadic    bool
	Annotations Annotations
	Native      bool
	Address     int64 // natives only
}

// Argc returns the number of declared parameters, the variadic tail
// included.
func (s *FunctionSignature) Argc() int {
	return len(s.ParamTypes)
}

// Has reports whether the signature carries annotation a.
func (s *FunctionSignature) Has(a Annotations) bool {
	return s.Annotations.Has(a)
}

// Type returns the function type of the signature.
func (s *FunctionSignature) Type() *Type {
	return FunctionOf(s.ReturnType, s.ParamTypes...)
}

// Analysis is the result of semantic analysis.
type Analysis struct {
	Functions map[string]*FunctionSignature
	Types     []*TypeDeclaration
	Enums     []*EnumDeclaration
	Globals   []*VariableDeclaration
	Constants []*ConstantDeclaration
}

// Analyze makes one forward pass over the top-level nodes. It does not
// modify the tree. Conflicting declarations fail the compilation.
func Analyze(nodes []Stmt) (a *Analysis, err error) {
	defer catchCompileError(&err)
	return analyze(nodes), nil
}

func analyze(nodes []Stmt) *Analysis {
	a := &Analysis{Functions: make(map[string]*FunctionSignature)}
	names := make(map[string]Position)

	declareName := func(name string, pos Position) {
		if prev, ok := names[name]; ok {
			failAt(pos, "'%s' is already declared at %s", name, prev)
		}
		names[name] = pos
	}

	addFunction := func(fn *FunctionDeclaration) {
		sig := fn.Signature()
		if _, ok := a.Functions[sig.Name]; ok {
			failAt(fn.Span().Start, "function '%s' declared more than once", sig.Name)
		}
		if fn.Variadic {
			last := fn.Params[len(fn.Params)-1].Type
			if !last.Equal(PointerTo(Any)) && !last.Equal(Complex("Array")) {
				failAt(fn.Span().Start, "%s declared as variadic, but the last parameter is neither '*any' nor 'Array'", sig.Name)
			}
		}
		a.Functions[sig.Name] = sig
	}

	for _, node := range nodes {
		switch n := node.(type) {
		case *FunctionDeclaration:
			declareName(n.Name, n.Span().Start)
			addFunction(n)

		case *TypeImplementation:
			for _, fn := range n.Functions {
				addFunction(fn)
			}

		case *TypeDeclaration:
			declareName(n.Name, n.Span().Start)
			a.Types = append(a.Types, n)
			params := make([]*Type, len(n.Attributes))
			for i, attr := range n.Attributes {
				params[i] = attr.Type
			}
			init := MangleInitializer(n.Name)
			if _, ok := a.Functions[init]; ok {
				failAt(n.Span().Start, "function '%s' declared more than once", init)
			}
			a.Functions[init] = &FunctionSignature{Name: init, ParamTypes: params, ReturnType: Complex(n.Name)}

		case *EnumDeclaration:
			declareName(n.Name, n.Span().Start)
			a.Enums = append(a.Enums, n)

		case *VariableDeclaration:
			declareName(n.Name, n.Span().Start)
			a.Globals = append(a.Globals, n)

		case *ConstantDeclaration:
			declareName(n.Name, n.Span().Start)
			switch n.Value.(type) {
			case *NumberLiteral, *StringLiteral, *BooleanLiteral:
			default:
				failAt(n.Span().Start, "unsupported constant type for '%s'", n.Name)
			}
			a.Constants = append(a.Constants, n)

		case *ProtocolDeclaration, *ImportStatement:

		default:
			failAt(node.Span().Start, "unexpected statement at top level")
		}
	}

	for _, fn := range nodes {
		if impl, ok := fn.(*TypeImplementation); ok {
			if _, isType := names[impl.TypeName]; !isType {
				failAt(impl.Span().Start, "impl of unknown type '%s'", impl.TypeName)
			}
		}
	}
	return a
}
