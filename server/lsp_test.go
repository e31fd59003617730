package server

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/agreefuture/yo/compiler"
)

func newTestLSP(t *testing.T) *LspServer {
	t.Helper()
	lsp := &LspServer{
		worker: NewCompileWorker(),
		docs:   make(map[string]string),
	}
	t.Cleanup(lsp.worker.Stop)
	return lsp
}

// ---------------------------------------------------------------------------
// LSP text extraction helpers
// ---------------------------------------------------------------------------

func TestExtractPrefix(t *testing.T) {
	tests := []struct {
		name string
		text string
		pos  protocol.Position
		want string
	}{
		{"simple word", "val x = len", protocol.Position{Line: 0, Character: 11}, "len"},
		{"at start", "whi", protocol.Position{Line: 0, Character: 3}, "whi"},
		{"empty line", "", protocol.Position{Line: 0, Character: 0}, ""},
		{"multi line", "first line\nsecond line\nret", protocol.Position{Line: 2, Character: 3}, "ret"},
		{"after member dot", "p.leng", protocol.Position{Line: 0, Character: 6}, "leng"},
		{"after static colons", "Range::incl", protocol.Position{Line: 0, Character: 11}, "incl"},
		{"with underscore", "my_fun", protocol.Position{Line: 0, Character: 6}, "my_fun"},
		{"cursor at beginning", "hello", protocol.Position{Line: 0, Character: 0}, ""},
		{"cursor past end", "abc", protocol.Position{Line: 0, Character: 40}, "abc"},
		{"line beyond document", "single line", protocol.Position{Line: 5, Character: 0}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractPrefix(tt.text, tt.pos); got != tt.want {
				t.Errorf("extractPrefix = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBoolPtr(t *testing.T) {
	p := boolPtr(true)
	if p == nil {
		t.Fatal("boolPtr should not return nil")
	}
	if !*p {
		t.Errorf("boolPtr(true) = %v, want true", *p)
	}
}

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

func TestDiagnosticForCompileError(t *testing.T) {
	err := &compiler.CompileError{Pos: compiler.Position{Line: 3, Column: 5}, Message: "boom"}
	d := diagnosticFor(err, "")
	if d.Message != "boom" {
		t.Errorf("message = %q, want boom", d.Message)
	}
	if d.Range.Start.Line != 2 || d.Range.Start.Character != 4 {
		t.Errorf("start = %+v, want line 2 character 4", d.Range.Start)
	}
	if d.Range.End.Line != 2 || d.Range.End.Character != 5 {
		t.Errorf("end = %+v, want line 2 character 5", d.Range.End)
	}
	if d.Severity == nil || *d.Severity != protocol.DiagnosticSeverityError {
		t.Error("severity should be error")
	}
	if d.Source == nil || *d.Source != lspName {
		t.Errorf("source = %v, want %s", d.Source, lspName)
	}
}

func TestDiagnosticForParseErrorInOtherFile(t *testing.T) {
	err := &compiler.ParseError{
		File:   "/src/lib.yo",
		Errors: []*compiler.CompileError{{Pos: compiler.Position{Line: 7, Column: 2}, Message: "expected ';'"}},
	}
	d := diagnosticFor(err, "/src/main.yo")
	if d.Range.Start.Line != 0 || d.Range.Start.Character != 0 {
		t.Errorf("start = %+v, want top of document", d.Range.Start)
	}
	if !strings.Contains(d.Message, "/src/lib.yo") {
		t.Errorf("message = %q, want it to name the imported file", d.Message)
	}

	d = diagnosticFor(err, "/src/lib.yo")
	if d.Range.Start.Line != 6 || d.Message != "expected ';'" {
		t.Errorf("diagnostic = %+v, want the parse error position and message", d)
	}
}

func TestDiagnoseCleanDocument(t *testing.T) {
	lsp := newTestLSP(t)
	diags := lsp.diagnose("untitled:clean", "fn main(): int {\n    return 0;\n}\n")
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %+v", diags)
	}
}

func TestDiagnoseCompileError(t *testing.T) {
	lsp := newTestLSP(t)
	diags := lsp.diagnose("untitled:broken", "fn main(): int {\n    return missing;\n}\n")
	if len(diags) != 1 {
		t.Fatalf("expected one diagnostic, got %d", len(diags))
	}
	if !strings.Contains(diags[0].Message, "undefined identifier 'missing'") {
		t.Errorf("message = %q", diags[0].Message)
	}
	if diags[0].Range.Start.Line != 1 {
		t.Errorf("line = %d, want 1", diags[0].Range.Start.Line)
	}
}

func TestDiagnoseParseError(t *testing.T) {
	lsp := newTestLSP(t)
	diags := lsp.diagnose("untitled:syntax", "fn main(: int {")
	if len(diags) != 1 {
		t.Fatalf("expected one diagnostic, got %d", len(diags))
	}
	if diags[0].Message == "" {
		t.Error("diagnostic should carry the parser message")
	}
}

func TestDiagnoseResolvesImports(t *testing.T) {
	dir := t.TempDir()
	lib := "fn helper(): int {\n    return 41;\n}\n"
	if err := os.WriteFile(filepath.Join(dir, "lib.yo"), []byte(lib), 0644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "main.yo")
	text := "use \"lib\";\n\nfn main(): int {\n    return helper() + 1;\n}\n"

	lsp := newTestLSP(t)
	diags := lsp.diagnose(protocol.DocumentUri("file://"+path), text)
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %+v", diags)
	}
}

// ---------------------------------------------------------------------------
// Completion
// ---------------------------------------------------------------------------

func labels(items []protocol.CompletionItem) map[string]bool {
	out := make(map[string]bool)
	for _, item := range items {
		out[item.Label] = true
	}
	return out
}

func TestCompleteKeywordsWithoutProgram(t *testing.T) {
	lsp := newTestLSP(t)
	got := labels(lsp.complete("untitled:none", "wh"))
	if !got["while"] {
		t.Errorf("completions %v should include while", got)
	}
	if got["return"] {
		t.Error("completions should be filtered by prefix")
	}
}

func TestCompleteFromLastCleanCompile(t *testing.T) {
	lsp := newTestLSP(t)
	uri := protocol.DocumentUri("untitled:complete")
	src := "type Point {\n    x: int,\n    y: int\n}\n\nfn makePoint(): Point {\n    return Point(1, 2);\n}\n\nfn main(): int {\n    return 0;\n}\n"
	if diags := lsp.diagnose(uri, src); len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %+v", diags)
	}

	got := labels(lsp.complete(uri, "ma"))
	if !got["makePoint"] || !got["main"] {
		t.Errorf("completions %v should include makePoint and main", got)
	}
	got = labels(lsp.complete(uri, "Po"))
	if !got["Point"] {
		t.Errorf("completions %v should include Point", got)
	}
	for label := range labels(lsp.complete(uri, "_")) {
		t.Errorf("internal name %q should not be offered", label)
	}

	// A broken edit keeps the last clean program.
	lsp.diagnose(uri, "fn main(): int { return nope; }")
	if got := labels(lsp.complete(uri, "make")); !got["makePoint"] {
		t.Error("completions should survive a failed compile")
	}
}

// ---------------------------------------------------------------------------
// Compile worker
// ---------------------------------------------------------------------------

func TestCompileWorkerRecoversPanics(t *testing.T) {
	w := NewCompileWorker()
	defer w.Stop()

	_, err := w.Do(func(*workspace) any { panic("kaput") })
	if err == nil || !strings.Contains(err.Error(), "kaput") {
		t.Fatalf("err = %v, want the panic value", err)
	}

	v, err := w.Do(func(ws *workspace) any { return len(ws.programs) })
	if err != nil || v.(int) != 0 {
		t.Fatalf("worker should keep serving after a panic, got %v, %v", v, err)
	}
}
