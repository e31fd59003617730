package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveImports parses path and splices every file it imports with
// `use "file";` in place of the import statement. Each file is included
// once; later imports of the same file are dropped.
func ResolveImports(path string) ([]Stmt, error) {
	r := &importResolver{seen: make(map[string]bool)}
	return r.resolve(path)
}

// ResolveImportsSource is ResolveImports for a file whose current contents
// are src rather than what is on disk. Imports are still read from disk.
func ResolveImportsSource(path, src string) ([]Stmt, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	r := &importResolver{
		seen:    make(map[string]bool),
		overlay: map[string]string{abs: src},
	}
	return r.resolve(path)
}

type importResolver struct {
	seen    map[string]bool
	overlay map[string]string
}

func (r *importResolver) read(abs string) (string, error) {
	if src, ok := r.overlay[abs]; ok {
		return src, nil
	}
	data, err := os.ReadFile(abs)
	return string(data), err
}

func (r *importResolver) resolve(path string) ([]Stmt, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if r.seen[abs] {
		return nil, nil
	}
	r.seen[abs] = true

	src, err := r.read(abs)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", path, err)
	}
	nodes, err := Parse(src)
	if err != nil {
		if pe, ok := err.(*ParseError); ok {
			pe.File = path
		}
		return nil, err
	}
	log.Debugf("parsed %s: %d declarations", path, len(nodes))

	var out []Stmt
	for _, node := range nodes {
		imp, ok := node.(*ImportStatement)
		if !ok {
			out = append(out, node)
			continue
		}
		target := imp.Path
		if !strings.HasSuffix(target, ".yo") {
			target += ".yo"
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(abs), target)
		}
		imported, err := r.resolve(target)
		if err != nil {
			return nil, err
		}
		out = append(out, imported...)
	}
	return out, nil
}
