package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/fatih/color"

	"tacc/internal/compiler"
	"tacc/internal/diag"
)

func main() {
	if len(os.Args) < 3 || os.Args[1] != "build" {
		fmt.Fprintln(os.Stderr, "usage: taccbuild build <source-file>... [-O0|-O1|-O2]")
		os.Exit(1)
	}

	var paths []string
	level := compiler.O1
	for _, arg := range os.Args[2:] {
		switch arg {
		case "-O0":
			level = compiler.O0
		case "-O1":
			level = compiler.O1
		case "-O2":
			level = compiler.O2
		default:
			paths = append(paths, arg)
		}
	}
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "taccbuild: no source files given")
		os.Exit(1)
	}

	target := compiler.TargetELF
	outputName := "app"
	if runtime.GOOS == "windows" {
		target = compiler.TargetPE
		outputName = "app.exe"
	}

	opts := compiler.Options{Level: level, Target: target}
	result, errs := compiler.Build(paths, opts)
	if len(errs) > 0 {
		printDiagnostics(errs, readSources(paths))
		os.Exit(1)
	}

	var bytes []byte
	switch target {
	case compiler.TargetPE:
		bytes = result.PE.Bytes
	default:
		bytes = result.ELF.Bytes
	}

	if err := os.WriteFile(outputName, bytes, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "taccbuild: cannot write %s: %s\n", outputName, err)
		os.Exit(1)
	}

	color.Green("wrote %s", outputName)
}

// printDiagnostics renders each error on its own line, §6's
// "<phase>: <message> <file>:<line>:<col>" form, with caret context when
// the offending file's source is still available.
func printDiagnostics(errs []diag.CompilerError, sources map[string]string) {
	fmt.Fprint(os.Stderr, compiler.Diagnostics(errs, sources))
}

func readSources(paths []string) map[string]string {
	sources := make(map[string]string, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		sources[p] = string(b)
	}
	return sources
}
