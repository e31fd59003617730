package server

import (
	"fmt"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/agreefuture/yo/vm"
)

// workspace is the state owned by the compile goroutine: the last program
// that compiled cleanly for each open document.
type workspace struct {
	programs map[protocol.DocumentUri]*vm.Program
}

// compileRequest represents a unit of work to be executed on the compile
// goroutine.
type compileRequest struct {
	fn   func(*workspace) any
	done chan compileResult
}

// compileResult holds the return value from a compile operation.
type compileResult struct {
	value any
	err   error
}

// CompileWorker serializes all compilations through a single goroutine.
// Editors send change notifications faster than a document compiles, and
// the workspace must not be touched by two handlers at once.
type CompileWorker struct {
	ws       *workspace
	requests chan compileRequest
	quit     chan struct{}
}

// NewCompileWorker creates a CompileWorker and starts the processing
// goroutine.
func NewCompileWorker() *CompileWorker {
	w := &CompileWorker{
		ws:       &workspace{programs: make(map[protocol.DocumentUri]*vm.Program)},
		requests: make(chan compileRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *CompileWorker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs a function on the workspace, recovering from panics.
func (w *CompileWorker) execute(fn func(*workspace) any) compileResult {
	var result compileResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				result.err = fmt.Errorf("%v", r)
			}
		}()
		result.value = fn(w.ws)
	}()
	return result
}

// Do submits a function for execution on the compile goroutine and blocks
// until it completes. Returns the result and any error (including panics).
func (w *CompileWorker) Do(fn func(*workspace) any) (any, error) {
	req := compileRequest{
		fn:   fn,
		done: make(chan compileResult, 1),
	}
	w.requests <- req
	result := <-req.done
	return result.value, result.err
}

// Stop shuts down the worker goroutine.
func (w *CompileWorker) Stop() {
	close(w.quit)
}
