// Package compiler wires every phase spec.md names into one pipeline:
// parse, type-check, lower to IR, construct SSA, run the IR-level
// optimizers, allocate registers, lower and encode to x86-64, patch call
// sites, and assemble a container image. It is the orchestration seam
// cmd/taccbuild drives, grounded on kanso-lang-kanso's cmd/kanso-cli
// main.go (parse, then report) extended across every later phase this
// core adds.
package compiler

import (
	"fmt"

	"tacc/internal/container"
	"tacc/internal/diag"
	"tacc/internal/emit"
	"tacc/internal/ir"
	"tacc/internal/opt"
	"tacc/internal/parser"
	"tacc/internal/regalloc"
	"tacc/internal/sema"
	"tacc/internal/ssa"
	"tacc/internal/x86"
)

// OptLevel selects which middle-end passes run and which register
// allocator lowers the result: linear at O0, graph-coloring at O1+
// (spec.md §9).
type OptLevel int

const (
	O0 OptLevel = iota
	O1
	O2
)

// Target selects the container format a build's image is written in.
type Target int

const (
	TargetELF Target = iota
	TargetPE
)

// Options configures one build.
type Options struct {
	Level  OptLevel
	Target Target

	// ImportDLL is the DLL every unresolved extern call is attributed to
	// in a PE build's import table. Ignored for ELF.
	ImportDLL string

	GPRCount int
	SSECount int
}

func (o Options) withDefaults() Options {
	if o.ImportDLL == "" {
		o.ImportDLL = "msvcrt.dll"
	}
	if o.GPRCount == 0 {
		o.GPRCount = 6
	}
	if o.SSECount == 0 {
		o.SSECount = 8
	}
	return o
}

// Result is one build's output: the fully-lowered module plus whichever
// container image the target produced.
type Result struct {
	Module *ir.Module
	PE     *container.PEImage
	ELF    *container.ELFImage
}

// Build runs every phase named in spec.md §1-§7 over the given source
// files and returns either a finished image or the diagnostics
// explaining why the build failed. A non-empty diagnostic slice always
// means compilation failed; Result is nil in that case, matching the
// CLI's "non-zero exit on any compile error" contract (spec.md §6).
func Build(paths []string, opts Options) (*Result, []diag.CompilerError) {
	opts = opts.withDefaults()
	mod := ir.NewModule()
	convention := ir.SystemV
	if opts.Target == TargetPE {
		convention = ir.Windows
	}

	construct := func(m *ir.Module, fn *ir.Function) {
		m.ReserveNames(fn)
		ssa.Construct(m, fn)
	}

	var diags []diag.CompilerError
	for _, path := range paths {
		prog, err := parser.ParseFile(path)
		if err != nil {
			diags = append(diags, asCompilerError(err, "parse"))
			continue
		}

		analyzer := sema.NewAnalyzer(mod, path)
		checked, errs := analyzer.Analyze(prog)
		if len(errs) > 0 {
			diags = append(diags, errs...)
			continue
		}

		emit.Program(mod, checked, convention, construct)
	}
	if len(diags) > 0 {
		return nil, diags
	}

	runMiddleEnd(mod, opts.Level)

	lowered, allocDiags := lowerFunctions(mod, opts)
	if len(allocDiags) > 0 {
		return nil, allocDiags
	}

	entry := findEntry(mod)
	if entry == "" {
		return nil, []diag.CompilerError{{
			Level: diag.Error, Code: diag.ResolveUndefined, Phase: "resolve",
			Message: "no function named \"main\" found in any namespace",
		}}
	}

	code, entryOffset, externs := container.WithLoweredFunctions(lowered, entry)
	data := buildDataSection(mod)

	result := &Result{Module: mod}
	switch opts.Target {
	case TargetPE:
		result.PE = container.BuildPE64(code, data, entryOffset, importsFor(externs, opts.ImportDLL))
	default:
		// ELF's import/PLT wiring is a stub at this stage (container/elf.go);
		// an extern call left unresolved here has no image-level home yet.
		result.ELF = container.BuildELF64(code, data, entryOffset)
	}
	return result, nil
}

func asCompilerError(err error, phase string) diag.CompilerError {
	if ce, ok := err.(diag.CompilerError); ok {
		return ce
	}
	return diag.CompilerError{Level: diag.Error, Phase: phase, Message: err.Error()}
}

// runMiddleEnd runs spec.md §4.9-§4.12's optimizers in the order the
// core's own Reconstruct dependency requires: inlining first (it may
// duplicate allocas and calls across function boundaries), then
// mem-to-register promotion per function (each promotion already
// reconstructs its own function via ssa.Reconstruct internally through
// opt.PromoteToRegisters's contract), then copy propagation, then dead
// code elimination. O0 skips every optimizer and goes straight to
// allocation; O1 runs the full set once; O2 iterates until a pass makes
// no further change, guarding against the inliner oscillation spec.md
// §4.15 warns about by capping iterations.
func runMiddleEnd(mod *ir.Module, level OptLevel) {
	if level == O0 {
		return
	}

	opt.Inline(mod)

	const maxIterations = 8
	for _, fn := range mod.Functions {
		if fn.Attributes.Has(ir.AttrExtern) {
			continue
		}
		iterations := 1
		if level == O2 {
			iterations = maxIterations
		}
		for i := 0; i < iterations; i++ {
			before := fn.InstructionCount()
			opt.PromoteToRegisters(mod, fn)
			opt.CopyPropagate(fn)
			opt.DeadCodeEliminate(fn)
			if level != O2 || fn.InstructionCount() == before {
				break
			}
		}
	}
}

// lowerFunctions allocates registers and lowers every non-extern function
// to encoded x86-64, in module order so the final image lists functions
// deterministically.
func lowerFunctions(mod *ir.Module, opts Options) ([]*x86.EncodedFunction, []diag.CompilerError) {
	var lowered []*x86.EncodedFunction
	var diags []diag.CompilerError
	for _, fn := range mod.Functions {
		if fn.Attributes.Has(ir.AttrExtern) {
			continue
		}
		gpr, sse, slots := allocate(fn, opts)
		lf := x86.Lower(mod, fn, gpr, sse, slots)
		lowered = append(lowered, x86.Encode(lf))
	}
	return lowered, diags
}

// allocate dispatches to the linear allocator at O0 and the
// graph-coloring allocator at O1+, per spec.md §9's resolved Open
// Question on which allocator runs at which level.
func allocate(fn *ir.Function, opts Options) (gpr, sse *regalloc.Assignment, slots *regalloc.StackSlotAllocator) {
	if opts.Level == O0 {
		return regalloc.NewLinearAllocator(opts.GPRCount, opts.SSECount).Allocate(fn)
	}
	return regalloc.NewGraphColorAllocator(opts.GPRCount, opts.SSECount).Allocate(fn)
}

// findEntry returns the qualified name of the function named "main" in
// any namespace, or "" if none exists (spec.md §8 scenario 1-3's entry
// point).
func findEntry(mod *ir.Module) string {
	for _, fn := range mod.Functions {
		if fn.Name == "main" && !fn.Attributes.Has(ir.AttrExtern) {
			return fn.QualifiedName
		}
	}
	return ""
}

// buildDataSection lays out every global in declaration order: an
// initialized non-extern global contributes its initializer bytes, and an
// extern or uninitialized global contributes zero bytes of its width.
func buildDataSection(mod *ir.Module) []byte {
	var data []byte
	for _, g := range mod.Globals {
		if g.Extern || g.InitRef < 0 {
			data = append(data, make([]byte, g.Type.Width())...)
			continue
		}
		c := mod.Constants.Get(g.InitRef)
		data = append(data, constantBytes(c, g.Type.Width())...)
	}
	return data
}

func constantBytes(c ir.Constant, width int) []byte {
	buf := make([]byte, width)
	for i := 0; i < width; i++ {
		buf[i] = byte(c.IntBits >> (8 * i))
	}
	return buf
}

func importsFor(externs []x86.ExternCall, dll string) []container.Import {
	seen := map[string]bool{}
	var imports []container.Import
	for _, e := range externs {
		if seen[e.Callee] {
			continue
		}
		seen[e.Callee] = true
		imports = append(imports, container.Import{DLL: dll, Symbol: e.Callee})
	}
	return imports
}

// Diagnostics renders a build's diagnostics as spec.md §6's one-line-per
// error CLI form, via diag.Reporter when the file's source is available.
func Diagnostics(errs []diag.CompilerError, sources map[string]string) string {
	out := ""
	for _, e := range errs {
		if src, ok := sources[e.Position.File]; ok {
			out += diag.NewReporter(src).Format(e)
			continue
		}
		out += fmt.Sprintf("%s: %s %s\n", e.Phase, e.Message, e.Position)
	}
	return out
}
