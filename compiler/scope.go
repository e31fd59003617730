package compiler

// ScopeKind distinguishes the global scope from function scopes.
type ScopeKind int

const (
	ScopeGlobal ScopeKind = iota
	ScopeFunction
)

// Binding is a named, typed stack slot.
type Binding struct {
	Name string
	Type *Type
}

// Scope describes the stack frame of the function being compiled.
// Parameters live below the frame pointer, locals above it; nested blocks
// append their locals to the same frame.
type Scope struct {
	Kind       ScopeKind
	Function   string // mangled name
	ReturnType *Type
	Parameters []Binding
	Locals     []Binding
	Unsafe     bool
	ARC        bool
}

// GlobalScope returns the scope used outside of any function.
func GlobalScope() Scope {
	return Scope{Kind: ScopeGlobal, ReturnType: Void}
}

// Contains reports whether name is a parameter or local of the frame.
func (s Scope) Contains(name string) bool {
	_, ok := s.Index(name)
	return ok
}

// TypeOf returns the type of the parameter or local called name.
func (s Scope) TypeOf(name string) (*Type, bool) {
	for i := len(s.Locals) - 1; i >= 0; i-- {
		if s.Locals[i].Name == name {
			return s.Locals[i].Type, true
		}
	}
	for _, p := range s.Parameters {
		if p.Name == name {
			return p.Type, true
		}
	}
	return nil, false
}

// Index returns the frame-relative slot of name: locals are numbered from
// 1 upwards, parameter i sits at -(2+i) below the saved frame pointer and
// return address.
func (s Scope) Index(name string) (int, bool) {
	for i := len(s.Locals) - 1; i >= 0; i-- {
		if s.Locals[i].Name == name {
			return i + 1, true
		}
	}
	for i, p := range s.Parameters {
		if p.Name == name {
			return -(2 + i), true
		}
	}
	return 0, false
}

// WithLocals returns a copy of the scope with extra locals appended.
func (s Scope) WithLocals(locals ...Binding) Scope {
	out := s
	out.Locals = make([]Binding, 0, len(s.Locals)+len(locals))
	out.Locals = append(out.Locals, s.Locals...)
	out.Locals = append(out.Locals, locals...)
	return out
}

// Receiver returns the implicit receiver parameter, if the function has one.
func (s Scope) Receiver() (Binding, bool) {
	if len(s.Parameters) == 0 {
		return Binding{}, false
	}
	p := s.Parameters[0]
	if p.Name == "self" || p.Name == closureReceiver {
		return p, true
	}
	return Binding{}, false
}
