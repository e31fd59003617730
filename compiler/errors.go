package compiler

import (
	"fmt"
	"strings"
)

// CompileError is a semantic error. Compilation stops at the first one.
type CompileError struct {
	Pos     Position
	Message string
}

func (e *CompileError) Error() string {
	if e.Pos.Line == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

// ParseError reports syntax errors. The first entry is the one that
// stopped the parser.
type ParseError struct {
	File   string
	Errors []*CompileError
}

func (e *ParseError) Error() string {
	var sb strings.Builder
	sb.WriteString("syntax error")
	if e.File != "" {
		sb.WriteString(" in ")
		sb.WriteString(e.File)
	}
	if len(e.Errors) > 0 {
		sb.WriteString(" at ")
		sb.WriteString(e.Errors[0].Error())
	}
	return sb.String()
}

// Pos returns the position of the first error.
func (e *ParseError) Pos() Position {
	if len(e.Errors) == 0 {
		return Position{}
	}
	return e.Errors[0].Pos
}

// failAt aborts compilation. The panic is recovered by Compile.
func failAt(pos Position, format string, args ...any) {
	panic(&CompileError{Pos: pos, Message: fmt.Sprintf(format, args...)})
}

// catchCompileError converts a CompileError panic into err. Other panics
// propagate.
func catchCompileError(err *error) {
	if r := recover(); r != nil {
		ce, ok := r.(*CompileError)
		if !ok {
			panic(r)
		}
		*err = ce
	}
}
