package compiler

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agreefuture/yo/vm"
)

// runSource compiles src with the prelude and runs it on a fresh heap.
func runSource(t *testing.T, src string) (int64, string, *vm.Interpreter) {
	t.Helper()
	prog, _, err := CompileSource(src, Options{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return runProgram(t, prog)
}

func runProgram(t *testing.T, prog *vm.Program) (int64, string, *vm.Interpreter) {
	t.Helper()
	var out bytes.Buffer
	in := vm.NewInterpreter(prog, vm.Options{HeapSize: 1 << 16, ResetOnFree: true, Stdout: &out})
	result, err := in.Run()
	if err != nil {
		t.Fatalf("run: %v\n%s", err, vm.Disassemble(prog))
	}
	return result, out.String(), in
}

func expectNoLeaks(t *testing.T, in *vm.Interpreter) {
	t.Helper()
	if live := in.LiveAllocations(); len(live) != 0 {
		t.Errorf("%d allocations still live:\n%s", len(live), strings.Join(in.HeapReport(), "\n"))
	}
}

func TestPrograms(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		result int64
		output string
		leaks  bool // skip the leak check
	}{
		{
			name:   "arithmetic",
			src:    `fn main(): int { return (7 + 3) * 4 - 10 / 2 % 3; }`,
			result: 38,
		},
		{
			name: "printing",
			src: `
fn main() {
    io::printi(42);
    io::print("hello, yo");
    io::printd(2.5);
    io::print(#function);
}`,
			output: "42\nhello, yo\n2.5\nmain\n",
		},
		{
			name: "while with break and continue",
			src: `
fn main(): int {
    var i = 0;
    var sum = 0;
    while true {
        i = i + 1;
        if i > 10 {
            break;
        }
        if i % 2 == 0 {
            continue;
        }
        sum = sum + i;
    }
    return sum;
}`,
			result: 25,
		},
		{
			name: "if else chain",
			src: `
fn classify(n: int): int {
    if n < 0 {
        return -1;
    } else if n == 0 {
        return 0;
    } else {
        return 1;
    }
}

fn main(): int {
    return classify(-5) * 100 + classify(0) * 10 + classify(9);
}`,
			result: -99,
		},
		{
			name: "for over ranges",
			src: `
fn main(): int {
    var sum = 0;
    for i in 1...4 {
        sum = sum + i;
    }
    for j in 0..<3 {
        sum = sum + 10;
    }
    return sum;
}`,
			result: 40,
		},
		{
			name: "recursion",
			src: `
fn fib(n: int): int {
    if n < 2 {
        return n;
    }
    return fib(n - 1) + fib(n - 2);
}

fn main(): int { return fib(15); }`,
			result: 610,
		},
		{
			name: "structs and methods",
			src: `
type Counter { value: int }

impl Counter {
    static fn starting(at: int): Counter {
        return Counter(at);
    }

    fn increment(self, by: int) {
        value = value + by;
    }

    fn get(self): int {
        return value;
    }
}

fn main(): int {
    val c = Counter::starting(5);
    c.increment(3);
    c.increment(2);
    return c.get() + c.value;
}`,
			result: 20,
		},
		{
			name: "nested objects",
			src: `
type Point { x: int, y: int }
type Line { from: Point, to: Point }

impl Line {
    fn length2(self): int {
        val dx = to.x - from.x;
        val dy = to.y - from.y;
        return dx * dx + dy * dy;
    }
}

fn main(): int {
    val a = Point(1, 1);
    val line = Line(a, Point(4, 5));
    a.x = 100;
    return line.length2();
}`,
			result: 9232,
		},
		{
			name: "closures",
			src: `
fn apply(f: fn(int): int, x: int): int {
    return f(x);
}

fn main(): int {
    val k = 10;
    val add = fn (x: int): int { return x + k; };
    return apply(add, 5) + apply(fn (x: int): int { return x * 2; }, 4);
}`,
			result: 23,
		},
		{
			name: "defer runs in reverse order",
			src: `
fn main() {
    defer { io::printi(3); }
    defer { io::printi(2); }
    io::printi(1);
}`,
			output: "1\n2\n3\n",
		},
		{
			name: "enums",
			src: `
enum Color { red, green, blue }

fn main(): int {
    val c = Color.blue;
    if c == Color.green {
        return 1;
    }
    return c as int;
}`,
			result: 2,
		},
		{
			name: "globals and constants",
			src: `
const BASE = 100;
var counter = 0;

fn bump() {
    counter = counter + 1;
}

fn main(): int {
    bump();
    bump();
    bump();
    return BASE + counter;
}`,
			result: 103,
		},
		{
			name: "strings",
			src: `
fn main(): int {
    val s = "hello";
    val t = "hello";
    if s.equals(t) {
        return s.length();
    }
    return 0;
}`,
			result: 5,
		},
		{
			name: "primitive arrays",
			src: `
fn main(): int {
    val xs: *int = [1, 2, 3];
    var total = 0;
    var i = 0;
    while i < 3 {
        total = total + xs[i];
        i = i + 1;
    }
    val ys: *int = [total, 10];
    val r = ys[0] + ys[1];
    runtime::free(ys);
    return r;
}`,
			result: 16,
		},
		{
			name: "array of strings",
			src: `
fn main() {
    val words = ["yo", "lang"];
    for w: String in words {
        io::print(w);
    }
}`,
			output: "yo\nlang\n",
		},
		{
			name: "boxing",
			src: `
fn main(): int {
    val n = @(41);
    return n.intValue() + 1;
}`,
			result: 42,
		},
		{
			name: "doubles",
			src: `
fn main(): int {
    val d = 1.5 * 4.0;
    io::printd(d);
    return d as int;
}`,
			result: 6,
			output: "6\n",
		},
		{
			name: "protocol default methods",
			src: `
protocol Describable {
    fn describe(self: Self): int {
        return 7;
    }
}

type Box: Describable { size: int }

fn main(): int {
    val b = Box(3);
    return b.describe() + b.retainCount();
}`,
			result: 8,
		},
		{
			name: "dynamic dispatch in unsafe code",
			src: `
fn main(): int {
    val o: id = "abc";
    unsafe {
        return o.length() as int;
    }
}`,
			result: 3,
		},
		{
			name: "reference-counted member store",
			src: `
type Holder { s: String }

fn main(): int {
    val h = Holder("a");
    h.s = "bcd";
    return h.s.length();
}`,
			result: 3,
		},
		{
			name: "variadic arguments",
			src: `
fn sum(n: int, xs: *any...): int {
    var total = 0;
    var i = 0;
    while i < n {
        total = total + (xs[i] as int);
        i = i + 1;
    }
    return total;
}

fn main(): int {
    val a = 1;
    val b = 2;
    return sum(2, a, b) + sum(3, 4, 5, 6) + sum(0);
}`,
			result: 18,
		},
		{
			name: "sequential inference",
			src: `
fn main() {
    val x = 5;
    val y = x;
    io::print(runtime::decltype(x));
    io::print(runtime::decltype(y));
}`,
			output: "int\nint\n",
		},
		{
			name: "returning a sibling local",
			src: `
type Box { v: int }

fn make(): Box {
    val first = Box(1);
    val second = first;
    return second;
}

fn main(): int {
    val b = make();
    return b.retainCount();
}`,
			result: 1,
		},
		{
			name: "pure lambda allocates nothing",
			src: `
fn main(): int {
    val before = runtime::alloc(8);
    val f = fn (x: int): int { return x; };
    val after = runtime::alloc(8);
    val gap = (after as int) - (before as int);
    runtime::free(before);
    runtime::free(after);
    return gap + f(0);
}`,
			result: 8,
		},
		{
			name: "impure lambda allocates one closure",
			src: `
fn main(): int {
    val k = 0;
    val before = runtime::alloc(8);
    val f = fn (x: int): int { return x + k; };
    val after = runtime::alloc(8);
    val gap = (after as int) - (before as int);
    runtime::free(before);
    runtime::free(after);
    return gap + f(0);
}`,
			result: 8 + 24,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, output, in := runSource(t, tt.src)
			if result != tt.result {
				t.Errorf("result = %d, want %d", result, tt.result)
			}
			if output != tt.output {
				t.Errorf("output = %q, want %q", output, tt.output)
			}
			if !tt.leaks {
				expectNoLeaks(t, in)
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"undefined identifier", "fn main(): int { return y; }", "undefined identifier 'y'"},
		{"undefined function", "fn main() { foo(); }", "undefined function 'foo'"},
		{"missing main", "fn helper() {}", "undefined function 'main'"},
		{"main with parameters", "fn main(argc: int) {}", "'main' must not take parameters"},
		{"break outside loop", "fn main() { break; }", "break outside of a loop"},
		{"continue outside loop", "fn main() { continue; }", "continue outside of a loop"},
		{"redeclaration", "fn main() { val x = 1; val x = 2; }", "redeclaration of 'x'"},
		{"empty primitive array", "fn main() { val xs: *int = []; }", "cannot allocate an empty primitive array"},
		{"id call outside unsafe", `fn main() { val o: id = "s"; o.length(); }`, "is only allowed in unsafe code"},
		{"argument count", "fn f(a: int) {}\nfn main() { f(1, 2); }", "wrong number of arguments in call to 'f': expected 1, got 2"},
		{"argument type", "fn f(a: int) {}\nfn main() { f(\"s\"); }", "argument 1 of 'f': cannot pass 'String' as 'int'"},
		{"return type", "fn main(): int { return \"s\"; }", "cannot return 'String' from 'main', which returns 'int'"},
		{"unknown member", "type P { x: int }\nfn main(): int { val p = P(1); return p.y; }", "type 'P' has no member 'y'"},
		{"unknown enum case", "enum E { a }\nfn main(): int { return E.b as int; }", "enum 'E' has no case 'b'"},
		{"missing protocol method", "protocol P { fn f(self: Self); }\ntype T: P { x: int }\nfn main() {}", "type 'T' does not implement 'f' required by protocol 'P'"},
		{"assign to constant", "const C = 1;\nfn main() { C = 2; }", "cannot assign to constant 'C'"},
		{"store into a call result", "type P { s: String }\nfn make(): P { return P(\"a\"); }\nfn main() { make().s = \"b\"; }", "cannot assign to an attribute of a temporary value"},
		{"store into an initializer result", "type P { x: int }\nfn main() { P(1).x = 2; }", "cannot assign to an attribute of a temporary value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := CompileSource(tt.src, Options{})
			if err == nil {
				t.Fatal("expected a compile error")
			}
			var ce *CompileError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %T %v, want *CompileError", err, err)
			}
			if !strings.Contains(ce.Message, tt.want) {
				t.Errorf("message = %q, want it to contain %q", ce.Message, tt.want)
			}
		})
	}
}

func TestConstantArrayDeduplication(t *testing.T) {
	prog, _, err := CompileSource(`
fn main(): int {
    val xs: *int = [7, 8, 9];
    val ys: *int = [7, 8, 9];
    val zs: *int = [7, 8];
    if xs == ys {
        return zs[1];
    }
    return 0;
}`, Options{NoPrelude: true})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	blobs := 0
	for _, k := range prog.Constants {
		if len(k.Values) == 3 && k.Values[0] == 7 && k.Values[2] == 9 {
			blobs++
		}
	}
	if blobs != 1 {
		t.Errorf("got %d blobs for [7, 8, 9], want 1", blobs)
	}
	result, _, _ := runProgram(t, prog)
	if result != 8 {
		t.Errorf("result = %d, want 8 (both literals at one address)", result)
	}
}

func TestImplicitSelfChains(t *testing.T) {
	const src = `
type C { v: int }
type B { c: C }
type A { b: B }

impl A {
    fn get(self): int { return %s; }
}

fn main(): int {
    val a = A(B(C(7)));
    return a.get();
}`
	compile := func(chain string) *vm.Program {
		prog, _, err := CompileSource(fmt.Sprintf(src, chain), Options{})
		if err != nil {
			t.Fatalf("compile %s: %v", chain, err)
		}
		return prog
	}
	implicit, explicit := compile("b.c.v"), compile("self.b.c.v")
	if len(implicit.Code) != len(explicit.Code) {
		t.Fatalf("code lengths differ: %d and %d", len(implicit.Code), len(explicit.Code))
	}
	for i := range implicit.Code {
		if implicit.Code[i] != explicit.Code[i] {
			t.Errorf("instruction %d: %s and %s", i,
				vm.FormatInstruction(implicit, i, implicit.Code[i]),
				vm.FormatInstruction(explicit, i, explicit.Code[i]))
		}
	}
	result, _, in := runProgram(t, implicit)
	if result != 7 {
		t.Errorf("result = %d, want 7", result)
	}
	expectNoLeaks(t, in)
}

func TestCompileWithoutPrelude(t *testing.T) {
	prog, _, err := CompileSource("fn main(): int { return 6 * 7; }", Options{NoPrelude: true})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(prog.Metatypes) != 0 {
		t.Errorf("got %d metatypes, want none", len(prog.Metatypes))
	}
	result, _, _ := runProgram(t, prog)
	if result != 42 {
		t.Errorf("result = %d, want 42", result)
	}

	_, _, err = CompileSource(`fn main() { val s = "x"; }`, Options{NoPrelude: true})
	if err == nil || !strings.Contains(err.Error(), "string literals require the prelude type 'String'") {
		t.Errorf("err = %v, want a missing prelude error", err)
	}
}

func TestCompileStats(t *testing.T) {
	_, stats, err := CompileSource(`
fn main(): int {
    val k = 1;
    val f = fn (x: int): int { return x + k; };
    val g = fn (x: int): int { return x; };
    return f(g(1));
}`, Options{NoPrelude: true})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if stats.Lambdas != 2 {
		t.Errorf("Lambdas = %d, want 2", stats.Lambdas)
	}
	if stats.Types != 1 {
		t.Errorf("Types = %d, want 1 closure type", stats.Types)
	}
	if stats.Instructions == 0 || stats.Functions == 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestProgramLayout(t *testing.T) {
	prog, _, err := CompileSource("fn helper(): int { return 1; }\nfn main(): int { return helper(); }", Options{NoPrelude: true})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	for _, name := range []string{"main", "helper"} {
		addr, ok := prog.Symbols[name]
		if !ok {
			t.Fatalf("no symbol %s", name)
		}
		if addr%2 != 1 {
			t.Errorf("%s at even address %d", name, addr)
		}
	}
	if got := prog.Symbols["end"]; got > int64(len(prog.Code)) {
		t.Errorf("end = %d, past the code (%d)", got, len(prog.Code))
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCompileFileWithImports(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lib/math.yo", "fn twice(x: int): int { return x * 2; }\n")
	writeFile(t, dir, "lib/all.yo", "use \"math\";\n")
	main := writeFile(t, dir, "main.yo", `
use "lib/math";
use "lib/all.yo";

fn main(): int {
    return twice(21);
}
`)
	prog, _, err := CompileFile(main, Options{})
	if err != nil {
		t.Fatalf("CompileFile: %v", err)
	}
	result, _, _ := runProgram(t, prog)
	if result != 42 {
		t.Errorf("result = %d, want 42", result)
	}
}

func TestImportErrors(t *testing.T) {
	dir := t.TempDir()
	missing := writeFile(t, dir, "main.yo", "use \"nowhere\";\nfn main() {}\n")
	if _, err := ResolveImports(missing); err == nil || !strings.Contains(err.Error(), "import") {
		t.Errorf("err = %v, want an import error", err)
	}

	writeFile(t, dir, "broken.yo", "fn f( {}\n")
	user := writeFile(t, dir, "user.yo", "use \"broken\";\nfn main() {}\n")
	_, err := ResolveImports(user)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want a *ParseError", err)
	}
	if !strings.HasSuffix(pe.File, "broken.yo") {
		t.Errorf("File = %q, want the imported file", pe.File)
	}
}

func TestResolveImportsSourceOverlay(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "main.yo", "this is not yo\n")
	nodes, err := ResolveImportsSource(path, "fn main(): int { return 1; }")
	if err != nil {
		t.Fatalf("ResolveImportsSource: %v", err)
	}
	if len(nodes) != 1 {
		t.Errorf("got %d declarations, want 1", len(nodes))
	}
}

func TestPreludeParses(t *testing.T) {
	if len(Prelude()) == 0 {
		t.Fatal("prelude is empty")
	}
	if !strings.Contains(PreludeSource(), "type String") {
		t.Error("prelude does not declare String")
	}
}
