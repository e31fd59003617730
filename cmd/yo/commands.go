package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pterm/pterm"

	"github.com/agreefuture/yo/compiler"
	"github.com/agreefuture/yo/manifest"
	"github.com/agreefuture/yo/server"
	"github.com/agreefuture/yo/vm"
)

// imageExt marks files holding an encoded vm.Program.
const imageExt = ".yob"

// compileFlags are the options shared by every command that compiles or
// runs a program. Flags that are set override the manifest.
type compileFlags struct {
	noPrelude   *bool
	print       *bool
	heapSize    *int
	checkHeap   *bool
	noResetFree *bool
}

func addCompileFlags(fs *flag.FlagSet) *compileFlags {
	return &compileFlags{
		noPrelude:   fs.Bool("no-prelude", false, "Do not link the embedded prelude"),
		print:       fs.Bool("print", false, "Print the bytecode before running"),
		heapSize:    fs.Int("heap", manifest.DefaultHeapSize, "Heap size in bytes"),
		checkHeap:   fs.Bool("check-heap", false, "Fail when allocations are still live at exit"),
		noResetFree: fs.Bool("no-reset-on-free", false, "Keep the contents of freed memory"),
	}
}

func (f *compileFlags) apply(fs *flag.FlagSet, m *manifest.Manifest) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "no-prelude":
			m.Compiler.Prelude = !*f.noPrelude
		case "print":
			m.Compiler.PrintInstructions = *f.print
		case "heap":
			m.Runtime.HeapSize = *f.heapSize
		case "check-heap":
			m.Runtime.CheckHeapEmpty = *f.checkHeap
		case "no-reset-on-free":
			m.Runtime.ResetOnFree = !*f.noResetFree
		}
	})
}

// resolveTarget picks the file a command works on and the manifest that
// configures it. An explicit file is configured by the nearest yo.toml
// above it, if any; without one the nearest manifest's entry is used.
func resolveTarget(args []string) (string, *manifest.Manifest, error) {
	if len(args) > 1 {
		return "", nil, fmt.Errorf("expected at most one file, got %d", len(args))
	}

	dir := "."
	if len(args) == 1 {
		dir = filepath.Dir(args[0])
	}
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return "", nil, fmt.Errorf("loading manifest: %w", err)
	}

	if len(args) == 1 {
		if m == nil {
			m = manifest.Default()
			m.Dir, _ = filepath.Abs(dir)
		}
		return args[0], m, nil
	}
	if m == nil {
		return "", nil, errors.New("no file given and no yo.toml found")
	}
	return m.EntryPath(), m, nil
}

// loadProgram compiles a source file or decodes an image.
func loadProgram(path string, m *manifest.Manifest) (*vm.Program, *compiler.Stats, error) {
	if strings.HasSuffix(path, imageExt) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, err
		}
		prog, err := vm.UnmarshalProgram(data)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		return prog, nil, nil
	}
	return compiler.CompileFile(path, compiler.Options{NoPrelude: !m.Compiler.Prelude})
}

// execute runs a program with the manifest's runtime settings and returns
// main's result and the allocations still live at exit.
func execute(prog *vm.Program, m *manifest.Manifest, stdout io.Writer) (result int64, live []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			me, ok := r.(*vm.MemoryError)
			if !ok {
				panic(r)
			}
			err = fmt.Errorf("preparing the heap: %w", me)
		}
	}()

	in := vm.NewInterpreter(prog, vm.Options{
		HeapSize:    m.Runtime.HeapSize,
		ResetOnFree: m.Runtime.ResetOnFree,
		Stdout:      stdout,
	})
	result, err = in.Run()
	if err != nil {
		return 0, nil, err
	}
	live = in.HeapReport()
	if m.Runtime.CheckHeapEmpty && len(live) > 0 {
		return result, live, fmt.Errorf("%d allocations still live at exit", len(live))
	}
	return result, live, nil
}

func printHeapReport(live []string) {
	pterm.Warning.Printf("%d allocations still live at exit\n", len(live))
	for _, line := range live {
		fmt.Fprintln(os.Stderr, "  "+line)
	}
}

func printDisassembly(prog *vm.Program) {
	pterm.DefaultSection.Println("Bytecode")
	fmt.Print(vm.Disassemble(prog))
}

func printStats(stats *compiler.Stats) {
	if stats == nil {
		return
	}
	pterm.Info.Printf("%d functions, %d lambdas, %d types, %d instructions, %d constants\n",
		stats.Functions, stats.Lambdas, stats.Types, stats.Instructions, stats.Constants)
}

func fail(err error) int {
	pterm.Error.Println(err.Error())
	return 1
}

// handleRunCommand processes the `yo run` subcommand. main's return value
// becomes the exit status.
func handleRunCommand(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	flags := addCompileFlags(fs)
	stats := fs.Bool("stats", false, "Print compilation statistics")
	fs.Parse(args)

	path, m, err := resolveTarget(fs.Args())
	if err != nil {
		return fail(err)
	}
	flags.apply(fs, m)

	prog, st, err := loadProgram(path, m)
	if err != nil {
		return fail(err)
	}
	if *stats {
		printStats(st)
	}
	if m.Compiler.PrintInstructions {
		printDisassembly(prog)
	}
	return runProgram(prog, m)
}

// handleExecCommand processes the `yo exec` subcommand.
func handleExecCommand(args []string) int {
	fs := flag.NewFlagSet("exec", flag.ExitOnError)
	flags := addCompileFlags(fs)
	fs.Parse(args)

	if fs.NArg() != 1 || !strings.HasSuffix(fs.Arg(0), imageExt) {
		return fail(fmt.Errorf("exec expects one %s image", imageExt))
	}
	path, m, err := resolveTarget(fs.Args())
	if err != nil {
		return fail(err)
	}
	flags.apply(fs, m)

	prog, _, err := loadProgram(path, m)
	if err != nil {
		return fail(err)
	}
	if m.Compiler.PrintInstructions {
		printDisassembly(prog)
	}
	return runProgram(prog, m)
}

func runProgram(prog *vm.Program, m *manifest.Manifest) int {
	result, live, err := execute(prog, m, os.Stdout)
	if len(live) > 0 {
		printHeapReport(live)
	}
	if err != nil {
		return fail(err)
	}
	return int(result)
}

// handleBuildCommand processes the `yo build` subcommand.
// Usage:
//
//	yo build                 # <entry>.yob next to the entry
//	yo build -o app.yob x.yo # custom output
func handleBuildCommand(args []string) int {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	flags := addCompileFlags(fs)
	output := fs.String("o", "", "Output image path")
	fs.Parse(args)

	path, m, err := resolveTarget(fs.Args())
	if err != nil {
		return fail(err)
	}
	flags.apply(fs, m)
	if strings.HasSuffix(path, imageExt) {
		return fail(fmt.Errorf("%s is already an image", path))
	}

	prog, st, err := loadProgram(path, m)
	if err != nil {
		return fail(err)
	}
	if m.Compiler.PrintInstructions {
		printDisassembly(prog)
	}

	out := *output
	if out == "" {
		out = strings.TrimSuffix(path, filepath.Ext(path)) + imageExt
	}
	if err := writeImage(out, prog); err != nil {
		return fail(err)
	}
	printStats(st)
	pterm.Success.Printf("wrote %s\n", out)
	return 0
}

func writeImage(path string, prog *vm.Program) error {
	data, err := vm.MarshalProgram(prog)
	if err != nil {
		return fmt.Errorf("encoding image: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing image: %w", err)
	}
	return nil
}

// handleDisasmCommand processes the `yo disasm` subcommand.
func handleDisasmCommand(args []string) int {
	fs := flag.NewFlagSet("disasm", flag.ExitOnError)
	flags := addCompileFlags(fs)
	fs.Parse(args)

	path, m, err := resolveTarget(fs.Args())
	if err != nil {
		return fail(err)
	}
	flags.apply(fs, m)

	prog, st, err := loadProgram(path, m)
	if err != nil {
		return fail(err)
	}
	printStats(st)
	printDisassembly(prog)
	return 0
}

// handleLSPCommand processes the `yo lsp` subcommand. It blocks until the
// client disconnects.
func handleLSPCommand(args []string) int {
	fs := flag.NewFlagSet("lsp", flag.ExitOnError)
	noPrelude := fs.Bool("no-prelude", false, "Do not link the embedded prelude")
	fs.Parse(args)

	srv := server.NewLSP(compiler.Options{NoPrelude: *noPrelude})
	if err := srv.Run(); err != nil {
		return fail(fmt.Errorf("language server: %w", err))
	}
	return 0
}
