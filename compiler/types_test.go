package compiler

import "testing"

func TestTypeCompatibility(t *testing.T) {
	str := Complex("String")
	tests := []struct {
		name string
		a, b *Type
		want bool
	}{
		{"same primitive", Int, Int, true},
		{"integer widths", I8, Int, true},
		{"bool and int", Bool, Int, true},
		{"enum and int", EnumType("Color"), Int, true},
		{"double and int", Double, Int, false},
		{"any", Double, Any, true},
		{"pointer to any", PointerTo(I8), PointerTo(Any), true},
		{"pointer widths", PointerTo(I8), PointerTo(Int), true},
		{"pointer and int", PointerTo(I8), Int, false},
		{"structs", str, Complex("Number"), false},
		{"struct and id", str, ID, true},
		{"id and struct", ID, str, true},
		{"id and int", ID, Int, false},
		{"function and id", FunctionOf(Void), ID, true},
		{"functions", FunctionOf(Int, Int), FunctionOf(I32, Int), true},
		{"function arity", FunctionOf(Int, Int), FunctionOf(Int), false},
		{"function return", FunctionOf(Int), FunctionOf(str), false},
	}
	for _, tt := range tests {
		if got := tt.a.IsCompatible(tt.b); got != tt.want {
			t.Errorf("%s: %s compatible with %s = %v, want %v", tt.name, tt.a, tt.b, got, tt.want)
		}
	}
}

func TestTypeEquality(t *testing.T) {
	if !PointerTo(Complex("A")).Equal(PointerTo(Complex("A"))) {
		t.Error("structurally equal pointers should be equal")
	}
	if Complex("A").Equal(EnumType("A")) {
		t.Error("a struct is not an enum")
	}
	if FunctionOf(Int, Int).Equal(FunctionOf(Int, I8)) {
		t.Error("parameter types differ")
	}
}

func TestTypeSizes(t *testing.T) {
	tests := []struct {
		typ  *Type
		want int
	}{
		{I8, 1}, {I16, 2}, {I32, 4}, {I64, 8}, {Int, 8}, {Double, 8},
		{Bool, 8}, {PointerTo(I8), 8}, {Complex("String"), 8},
	}
	for _, tt := range tests {
		if got := tt.typ.Size(); got != tt.want {
			t.Errorf("%s.Size() = %d, want %d", tt.typ, got, tt.want)
		}
	}
}

func TestTypeResolution(t *testing.T) {
	if Unresolved.IsResolved() || PointerTo(Unresolved).IsResolved() || FunctionOf(Unresolved).IsResolved() {
		t.Error("unresolved components should make the type unresolved")
	}
	if !FunctionOf(Void, PointerTo(Int)).IsResolved() {
		t.Error("fn(*int): void is resolved")
	}
	self := FunctionOf(Complex("Self"), PointerTo(Complex("Self")))
	if got := self.replaceNamed("Self", Complex("Point")).String(); got != "fn(*Point): Point" {
		t.Errorf("replaceNamed = %s", got)
	}
}

func TestTypeCacheLayout(t *testing.T) {
	tc := NewTypeCache()
	tc.RegisterEnum(&EnumDeclaration{Name: "Color", Cases: []string{"red", "green"}})
	list := &TypeDeclaration{Name: "List", Attributes: []*Parameter{{Name: "head", Type: Complex("Node")}}}
	node := &TypeDeclaration{Name: "Node", Attributes: []*Parameter{
		{Name: "tag", Type: I8},
		{Name: "color", Type: Complex("Color")},
		{Name: "next", Type: Complex("Node")},
	}}
	tc.Declare(list)
	tc.Declare(node)
	tc.Register(list)
	entry := tc.Register(node)

	if entry.Index != 2 {
		t.Errorf("Node type id = %d, want 2", entry.Index)
	}
	offsets := map[string]int{"tag": 8, "color": 9, "next": 17}
	for name, want := range offsets {
		if got, ok := tc.Offset("Node", name); !ok || got != want {
			t.Errorf("offset of %s = %d, %v, want %d", name, got, ok, want)
		}
	}
	if entry.Size != 25 {
		t.Errorf("Node size = %d, want 25", entry.Size)
	}
	if typ, _ := tc.TypeOfMember("Node", "color"); typ.Kind != TypeEnum {
		t.Errorf("color type = %s, want the enum", typ)
	}
	if i, ok := tc.EnumCase("Color", "green"); !ok || i != 1 {
		t.Errorf("EnumCase(green) = %d, %v", i, ok)
	}
	if !tc.SupportsARC(Complex("Node")) || tc.SupportsARC(EnumType("Color")) || tc.SupportsARC(Int) {
		t.Error("SupportsARC is wrong")
	}
	if !tc.SupportsARC(FunctionOf(Void)) {
		t.Error("function values are reference counted")
	}
}

func TestTypeCacheErrors(t *testing.T) {
	tests := []struct {
		name string
		run  func(tc *TypeCache)
		want string
	}{
		{"unknown attribute type", func(tc *TypeCache) {
			tc.Register(&TypeDeclaration{Name: "A", Attributes: []*Parameter{{Name: "b", Type: Complex("Missing")}}})
		}, "unknown type 'Missing'"},
		{"duplicate attribute", func(tc *TypeCache) {
			tc.Register(&TypeDeclaration{Name: "A", Attributes: []*Parameter{{Name: "x", Type: Int}, {Name: "x", Type: Int}}})
		}, "attribute 'x' declared more than once in type 'A'"},
		{"duplicate type", func(tc *TypeCache) {
			tc.Declare(&TypeDeclaration{Name: "A"})
			tc.RegisterEnum(&EnumDeclaration{Name: "A"})
		}, "type 'A' declared more than once"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			func() {
				defer catchCompileError(&err)
				tt.run(NewTypeCache())
			}()
			if err == nil || err.(*CompileError).Message != tt.want {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestAnalyzeDuplicates(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"function twice", "fn f() {}\nfn f() {}", "'f' is already declared at 1:1"},
		{"type and global", "type A { x: int }\nval A = 1;", "'A' is already declared at 1:1"},
		{"method twice", "type A { x: int }\nimpl A {\n fn m(self) {}\n fn m(self) {}\n}", "function 'A_Im' declared more than once"},
		{"unknown impl", "impl B { fn m(self) {} }", "impl of unknown type 'B'"},
		{"bad variadic", "fn f(a: int...) {}", "f declared as variadic, but the last parameter is neither '*any' nor 'Array'"},
		{"constant expression", "const C = 1 + 2;", "unsupported constant type for 'C'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes, err := Parse(tt.src)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			_, err = Analyze(nodes)
			ce, ok := err.(*CompileError)
			if !ok {
				t.Fatalf("err = %v, want a *CompileError", err)
			}
			if ce.Message != tt.want {
				t.Errorf("message = %q, want %q", ce.Message, tt.want)
			}
		})
	}
}

func TestAnalyzeTables(t *testing.T) {
	nodes, err := Parse(`
type Pair { a: int, b: String }
enum E { x }
val g = 1;
const C = "c";
impl Pair { static fn make(): Pair { return Pair(1, "b"); } }
fn main(): int { return 0; }
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	a, err := Analyze(nodes)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	for _, name := range []string{"Pair_Sinit", "Pair_Smake", "main"} {
		if _, ok := a.Functions[name]; !ok {
			t.Errorf("missing function %s", name)
		}
	}
	if init := a.Functions["Pair_Sinit"]; init.Argc() != 2 || init.ReturnType.String() != "Pair" {
		t.Errorf("initializer = %+v", init)
	}
	if len(a.Types) != 1 || len(a.Enums) != 1 || len(a.Globals) != 1 || len(a.Constants) != 1 {
		t.Errorf("tables = %d types, %d enums, %d globals, %d constants", len(a.Types), len(a.Enums), len(a.Globals), len(a.Constants))
	}
}
