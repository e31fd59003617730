package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "demo"
version = "0.1.0"
entry = "src/app.yo"

[compiler]
prelude = false
print-instructions = true

[runtime]
heap-size = 4096
check-heap-empty = true
reset-on-free = false
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "demo" {
		t.Errorf("project name = %q, want demo", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if m.Compiler.Prelude {
		t.Error("compiler prelude = true, want false")
	}
	if !m.Compiler.PrintInstructions {
		t.Error("compiler print-instructions = false, want true")
	}
	if m.Runtime.HeapSize != 4096 {
		t.Errorf("runtime heap-size = %d, want 4096", m.Runtime.HeapSize)
	}
	if !m.Runtime.CheckHeapEmpty {
		t.Error("runtime check-heap-empty = false, want true")
	}
	if m.Runtime.ResetOnFree {
		t.Error("runtime reset-on-free = true, want false")
	}

	abs, _ := filepath.Abs(dir)
	if want := filepath.Join(abs, "src", "app.yo"); m.EntryPath() != want {
		t.Errorf("entry path = %q, want %q", m.EntryPath(), want)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Entry != "main.yo" {
		t.Errorf("default entry = %q, want main.yo", m.Project.Entry)
	}
	if !m.Compiler.Prelude {
		t.Error("default prelude = false, want true")
	}
	if m.Runtime.HeapSize != DefaultHeapSize {
		t.Errorf("default heap-size = %d, want %d", m.Runtime.HeapSize, DefaultHeapSize)
	}
	if !m.Runtime.ResetOnFree {
		t.Error("default reset-on-free = false, want true")
	}
	if m.Runtime.CheckHeapEmpty {
		t.Error("default check-heap-empty = true, want false")
	}
}

func TestLoadManifestErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "[project\nname = 1", "parse error"},
		{"unknown key", "[runtime]\nstack-size = 10", "unknown key"},
		{"heap size", "[runtime]\nheap-size = 0", "heap-size must be positive"},
		{"wrong type", "[compiler]\nprelude = \"yes\"", "parse error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, tt.content)
			_, err := Load(dir)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatal("expected an error for a directory without yo.toml")
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, `[project]
name = "found-project"
`)

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
	abs, _ := filepath.Abs(dir)
	if m.Dir != abs {
		t.Errorf("manifest dir = %q, want %q", m.Dir, abs)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no yo.toml exists")
	}
}

func TestEntryPathAbsolute(t *testing.T) {
	m := Default()
	m.Dir = "/app"
	m.Project.Entry = "/elsewhere/main.yo"
	if got := m.EntryPath(); got != "/elsewhere/main.yo" {
		t.Errorf("entry path = %q, want /elsewhere/main.yo", got)
	}
	m.Project.Entry = "main.yo"
	if got := m.EntryPath(); got != filepath.Join("/app", "main.yo") {
		t.Errorf("entry path = %q, want /app/main.yo", got)
	}
}
