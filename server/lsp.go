package server

import (
	"errors"
	"net/url"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/agreefuture/yo/compiler"
	"github.com/agreefuture/yo/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "yo-lsp"

var log = commonlog.GetLogger("yo.lsp")

// LspServer compiles open yo documents and reports the first error of each
// as a diagnostic.
type LspServer struct {
	worker *CompileWorker
	opts   compiler.Options

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server. opts are passed to every compilation.
func NewLSP(opts compiler.Options) *LspServer {
	s := &LspServer{
		worker:  NewCompileWorker(),
		opts:    opts,
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Info("yo LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{}

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	s.worker.Do(func(ws *workspace) any {
		delete(ws.programs, uri)
		return nil
	})

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	uri := params.TextDocument.URI

	s.mu.Lock()
	text, ok := s.docs[string(uri)]
	s.mu.Unlock()

	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}
	return s.complete(uri, prefix), nil
}

// complete offers keywords plus the functions and types of the last clean
// compilation of the document.
func (s *LspServer) complete(uri protocol.DocumentUri, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	add := func(label string, kind protocol.CompletionItemKind, detail string) {
		if !strings.HasPrefix(label, prefix) {
			return
		}
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &label,
		})
	}

	for _, kw := range compiler.Keywords() {
		add(kw, protocol.CompletionItemKindKeyword, "keyword")
	}

	result, err := s.worker.Do(func(ws *workspace) any {
		return ws.programs[uri]
	})
	if err != nil {
		return items
	}
	prog, _ := result.(*vm.Program)
	if prog == nil {
		return items
	}

	for _, mt := range prog.Metatypes {
		if !isInternalName(mt.Name) {
			add(mt.Name, protocol.CompletionItemKindStruct, "type")
		}
	}
	var functions []string
	for name := range prog.Symbols {
		if !isInternalName(name) && !strings.Contains(name, "_S") && !strings.Contains(name, "_I") {
			functions = append(functions, name)
		}
	}
	sort.Strings(functions)
	for _, name := range functions {
		add(name, protocol.CompletionItemKindFunction, "function")
	}

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}

func isInternalName(name string) bool {
	return strings.HasPrefix(name, "_") || name == "end"
}

// --- Diagnostics ---

// diagnose compiles a document and returns its diagnostics: none when it
// compiles, otherwise one for the first error.
func (s *LspServer) diagnose(uri protocol.DocumentUri, text string) []protocol.Diagnostic {
	result, err := s.worker.Do(func(ws *workspace) any {
		path, isFile := uriPath(uri)
		var prog *vm.Program
		var compileErr error
		if isFile {
			var nodes []compiler.Stmt
			nodes, compileErr = compiler.ResolveImportsSource(path, text)
			if compileErr == nil {
				prog, _, compileErr = compiler.Compile(nodes, s.opts)
			}
		} else {
			prog, _, compileErr = compiler.CompileSource(text, s.opts)
		}
		if compileErr != nil {
			return diagnosticFor(compileErr, path)
		}
		ws.programs[uri] = prog
		return nil
	})
	if err != nil {
		log.Errorf("compiling %s: %s", uri, err)
		return []protocol.Diagnostic{diagnosticFor(err, "")}
	}
	if d, ok := result.(protocol.Diagnostic); ok {
		return []protocol.Diagnostic{d}
	}
	return []protocol.Diagnostic{}
}

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	diagnostics := s.diagnose(uri, text)
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// diagnosticFor converts a compilation error into a diagnostic. Errors
// located in another file than path are reported at the top of the
// document with their full message.
func diagnosticFor(err error, path string) protocol.Diagnostic {
	var pos compiler.Position
	message := err.Error()

	var pe *compiler.ParseError
	var ce *compiler.CompileError
	switch {
	case errors.As(err, &pe):
		if (pe.File == "" || pe.File == path) && len(pe.Errors) > 0 {
			pos = pe.Pos()
			message = pe.Errors[0].Message
		}
	case errors.As(err, &ce):
		pos = ce.Pos
		message = ce.Message
	}

	start := protocol.Position{}
	if pos.Line > 0 {
		start.Line = protocol.UInteger(pos.Line - 1)
	}
	if pos.Column > 0 {
		start.Character = protocol.UInteger(pos.Column - 1)
	}
	end := start
	if pos.Line > 0 {
		end.Character++
	}

	severity := protocol.DiagnosticSeverityError
	source := lspName
	return protocol.Diagnostic{
		Range:    protocol.Range{Start: start, End: end},
		Severity: &severity,
		Source:   &source,
		Message:  message,
	}
}

// uriPath returns the filesystem path of a file: URI.
func uriPath(uri protocol.DocumentUri) (string, bool) {
	u, err := url.Parse(string(uri))
	if err != nil || u.Scheme != "file" {
		return "", false
	}
	return u.Path, true
}

// --- Text extraction helpers ---

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 && isIdentChar(rune(line[start-1])) {
		start--
	}

	if start == col {
		return ""
	}

	return line[start:col]
}

func isIdentChar(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}

func boolPtr(b bool) *bool {
	return &b
}
