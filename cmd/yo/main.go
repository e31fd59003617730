// yo CLI - compiles and runs yo programs
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

const versionStr = "0.1.0"

// verbosity counts repeated -v flags; -vv counts twice.
type verbosity int

func (v *verbosity) String() string { return strconv.Itoa(int(*v)) }
func (v *verbosity) IsBoolFlag() bool { return true }

func (v *verbosity) Set(s string) error {
	on, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	if on {
		*v++
	}
	return nil
}

type doubleVerbosity struct{ v *verbosity }

func (d doubleVerbosity) String() string   { return "false" }
func (d doubleVerbosity) IsBoolFlag() bool { return true }

func (d doubleVerbosity) Set(s string) error {
	on, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	if on {
		*d.v += 2
	}
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: yo [-v|-vv] <command> [options] [file]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  run [file.yo|file.yob]   compile (if needed) and run a program\n")
	fmt.Fprintf(os.Stderr, "  build [-o out] [file.yo] compile a program into a bytecode image\n")
	fmt.Fprintf(os.Stderr, "  exec file.yob            run a bytecode image\n")
	fmt.Fprintf(os.Stderr, "  disasm [file]            print the bytecode of a program or image\n")
	fmt.Fprintf(os.Stderr, "  lsp                      start the language server on stdio\n")
	fmt.Fprintf(os.Stderr, "  version                  print version and exit\n")
	fmt.Fprintf(os.Stderr, "\nWithout a file, the entry of the nearest yo.toml is used.\n")
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  yo run examples/closures.yo\n")
	fmt.Fprintf(os.Stderr, "  yo build -o app.yob && yo exec app.yob\n")
	fmt.Fprintf(os.Stderr, "  yo -vv disasm main.yo\n")
}

func main() {
	var v verbosity
	flag.Var(&v, "v", "Verbose output (repeat for debug logging)")
	flag.Var(doubleVerbosity{&v}, "vv", "Debug logging")
	flag.Usage = usage
	flag.Parse()

	commonlog.Configure(int(v), nil)

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	var code int
	switch args[0] {
	case "run":
		code = handleRunCommand(args[1:])
	case "exec":
		code = handleExecCommand(args[1:])
	case "build":
		code = handleBuildCommand(args[1:])
	case "disasm":
		code = handleDisasmCommand(args[1:])
	case "lsp":
		code = handleLSPCommand(args[1:])
	case "version":
		fmt.Printf("yo version %s\n", versionStr)
	default:
		pterm.Error.Printf("unknown command %q\n", args[0])
		usage()
		code = 2
	}
	os.Exit(code)
}
