package compiler

import (
	_ "embed"
	"fmt"
)

//go:embed prelude.yo
var preludeSource string

// PreludeSource returns the source of the prelude.
func PreludeSource() string {
	return preludeSource
}

// Prelude returns a freshly parsed copy of the prelude.
func Prelude() []Stmt {
	nodes, err := Parse(preludeSource)
	if err != nil {
		panic(fmt.Sprintf("prelude: %v", err))
	}
	return nodes
}
