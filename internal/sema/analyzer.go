package sema

import (
	"fmt"

	"github.com/alecthomas/participle/v2/lexer"

	"tacc/internal/ast"
	"tacc/internal/diag"
	"tacc/internal/ir"
	"tacc/internal/parser"
)

// Global is a namespace-level static variable.
type Global struct {
	Name      string
	Qualified string
	Type      ir.Type
	Extern    bool
	Init      *ast.Expr // nil when Extern or zero-initialized
}

// CheckedFunction is a function whose signature and body have passed
// type checking; emit walks AST directly but resolves every identifier
// through Locals, the same flat scope the checker built.
type CheckedFunction struct {
	AST        *ast.Function
	Name       string
	Qualified  string
	Public     bool
	Extern     bool
	Params     []*Symbol
	ReturnType ir.Type
	Locals     *SymbolTable
}

type CheckedProgram struct {
	Namespace string
	Globals   []*Global
	GlobalScope *SymbolTable
	Functions []*CheckedFunction
}

// Analyzer walks a parsed Program, resolving names and checking types,
// grounded on kanso-lang-kanso's internal/semantic.Analyzer (cut down to
// one flat per-function scope — this language has no nested shadowing).
type Analyzer struct {
	mod     *ir.Module
	errs    []diag.CompilerError
	file    string
	funcSig map[string]*CheckedFunction
}

func NewAnalyzer(mod *ir.Module, file string) *Analyzer {
	return &Analyzer{mod: mod, file: file, funcSig: map[string]*CheckedFunction{}}
}

// Analyze type-checks prog and returns the checked program plus every
// diagnostic found; callers should treat a non-empty error slice as fatal.
func (a *Analyzer) Analyze(prog *ast.Program) (*CheckedProgram, []diag.CompilerError) {
	ns := prog.Namespace
	checked := &CheckedProgram{Namespace: ns.Name.Value}
	checked.GlobalScope = NewSymbolTable(nil)

	for _, g := range ns.Statics {
		typ := resolveType(g.Type)
		qualified := ns.Name.Value + "::" + g.Name.Value
		if checked.GlobalScope.LookupLocal(g.Name.Value) != nil {
			a.errf(diag.ResolveDuplicate, g.Pos, "duplicate global %q", g.Name.Value)
			continue
		}
		id := a.mod.AddGlobal(&ir.GlobalVar{Name: qualified, Type: typ, Extern: g.Extern, InitRef: -1})
		checked.GlobalScope.Define(g.Name.Value, SymbolGlobal, typ, id)
		checked.Globals = append(checked.Globals, &Global{Name: g.Name.Value, Qualified: qualified, Type: typ, Extern: g.Extern, Init: g.Init})
		if g.Extern && g.Init != nil {
			a.errf(diag.TypeInvalidOperand, g.Pos, "extern static %q may not have an initializer", g.Name.Value)
		}
	}

	// First pass: register every function's signature, so calls can
	// resolve forward references within the same namespace.
	for _, fn := range ns.Functions {
		qualified := ns.Name.Value + "::" + fn.Name.Value
		if _, exists := a.funcSig[fn.Name.Value]; exists {
			a.errf(diag.ResolveDuplicate, fn.Pos, "duplicate function %q", fn.Name.Value)
			continue
		}
		cf := &CheckedFunction{
			AST: fn, Name: fn.Name.Value, Qualified: qualified,
			Public: fn.Visibility != "private", Extern: fn.Extern,
			ReturnType: ir.Prim(ir.Void),
		}
		if fn.Return != nil {
			cf.ReturnType = resolveType(fn.Return)
		}
		for _, p := range fn.Params {
			cf.Params = append(cf.Params, &Symbol{Name: p.Name.Value, Kind: SymbolParameter, Type: resolveType(p.Type)})
		}
		a.funcSig[fn.Name.Value] = cf
		checked.Functions = append(checked.Functions, cf)
	}

	for _, cf := range checked.Functions {
		a.checkFunction(cf, checked.GlobalScope)
	}

	return checked, a.errs
}

func (a *Analyzer) checkFunction(cf *CheckedFunction, globals *SymbolTable) {
	cf.Locals = NewSymbolTable(globals)
	for _, p := range cf.Params {
		id := a.mod.FreshName()
		p.ID = id
		cf.Locals.Define(p.Name, SymbolParameter, p.Type, id)
	}
	if cf.Extern || cf.AST.Body == nil {
		return
	}
	for _, stmt := range cf.AST.Body.Statements {
		a.checkStatement(stmt, cf)
	}
}

func (a *Analyzer) checkStatement(s *ast.Statement, cf *CheckedFunction) {
	switch {
	case s.Let != nil:
		l := s.Let
		t := a.exprType(l.Expr, cf)
		declared := t
		if l.Type != nil {
			declared = resolveType(l.Type)
			if !declared.Equal(t) {
				a.errf(diag.TypeMismatch, l.Pos, "cannot initialize %q of type %s with value of type %s", l.Name.Value, declared, t)
			}
		}
		if cf.Locals.LookupLocal(l.Name.Value) != nil {
			a.errf(diag.ResolveDuplicate, l.Pos, "duplicate local %q", l.Name.Value)
			return
		}
		id := a.mod.FreshName()
		cf.Locals.Define(l.Name.Value, SymbolVariable, declared, id)

	case s.Return != nil:
		if s.Return.Expr == nil {
			if cf.ReturnType.Kind != ir.Void {
				a.errf(diag.TypeMismatch, s.Return.Pos, "function %q must return a value of type %s", cf.Name, cf.ReturnType)
			}
			return
		}
		t := a.exprType(s.Return.Expr, cf)
		if !t.Equal(cf.ReturnType) {
			a.errf(diag.TypeMismatch, s.Return.Pos, "function %q returns %s, got %s", cf.Name, cf.ReturnType, t)
		}

	case s.If != nil:
		t := a.exprType(s.If.Cond, cf)
		if !t.Equal(ir.Prim(ir.Bool)) {
			a.errf(diag.TypeMismatch, s.If.Pos, "if condition must be bool, got %s", t)
		}
		for _, st := range s.If.Then.Statements {
			a.checkStatement(st, cf)
		}
		if s.If.Else != nil {
			for _, st := range s.If.Else.Statements {
				a.checkStatement(st, cf)
			}
		}

	case s.While != nil:
		t := a.exprType(s.While.Cond, cf)
		if !t.Equal(ir.Prim(ir.Bool)) {
			a.errf(diag.TypeMismatch, s.While.Pos, "while condition must be bool, got %s", t)
		}
		for _, st := range s.While.Body.Statements {
			a.checkStatement(st, cf)
		}

	case s.For != nil:
		f := s.For
		if f.Init != nil {
			t := a.exprType(f.Init.Expr, cf)
			declared := t
			if f.Init.Type != nil {
				declared = resolveType(f.Init.Type)
			}
			if cf.Locals.LookupLocal(f.Init.Name.Value) != nil {
				a.errf(diag.ResolveDuplicate, f.Pos, "duplicate local %q", f.Init.Name.Value)
			} else {
				id := a.mod.FreshName()
				cf.Locals.Define(f.Init.Name.Value, SymbolVariable, declared, id)
			}
		}
		if f.Cond != nil {
			t := a.exprType(f.Cond, cf)
			if !t.Equal(ir.Prim(ir.Bool)) {
				a.errf(diag.TypeMismatch, f.Pos, "for condition must be bool, got %s", t)
			}
		}
		if f.Post != nil {
			sym := cf.Locals.Lookup(f.Post.Target.Value)
			if sym == nil {
				a.errf(diag.ResolveUndefined, f.Pos, "undefined variable %q", f.Post.Target.Value)
			}
			a.exprType(f.Post.Expr, cf)
		}
		for _, st := range f.Body.Statements {
			a.checkStatement(st, cf)
		}

	case s.Assign != nil:
		sym := cf.Locals.Lookup(s.Assign.Target.Value)
		if sym == nil {
			a.errf(diag.ResolveUndefined, s.Assign.Pos, "undefined variable %q", s.Assign.Target.Value)
			a.exprType(s.Assign.Expr, cf)
			return
		}
		t := a.exprType(s.Assign.Expr, cf)
		if !t.Equal(sym.Type) {
			a.errf(diag.TypeMismatch, s.Assign.Pos, "cannot assign %s to %q of type %s", t, s.Assign.Target.Value, sym.Type)
		}

	case s.ExprStmt != nil:
		a.exprType(s.ExprStmt.Expr, cf)
	}
}

// exprType computes e's static type, checking every operand along the
// way; it reports and then assumes the left-hand type on a mismatch so
// checking can continue.
func (a *Analyzer) exprType(e *ast.Expr, cf *CheckedFunction) ir.Type {
	tree := parser.Rebalance(e)
	return a.binNodeType(tree, cf)
}

func (a *Analyzer) binNodeType(n *ast.BinNode, cf *CheckedFunction) ir.Type {
	if n.Op == "" {
		return a.unaryType(n.Value, cf)
	}
	lt := a.binNodeType(n.Left, cf)
	rt := a.binNodeType(n.Right, cf)
	switch n.Op {
	case "&&", "||":
		if !lt.Equal(ir.Prim(ir.Bool)) || !rt.Equal(ir.Prim(ir.Bool)) {
			a.errf(diag.TypeMismatch, n.Pos, "logical operator %q requires bool operands", n.Op)
		}
		return ir.Prim(ir.Bool)
	case "==", "!=", "<", "<=", ">", ">=":
		if !lt.Equal(rt) {
			a.errf(diag.TypeMismatch, n.Pos, "comparison %q requires matching operand types, got %s and %s", n.Op, lt, rt)
		}
		return ir.Prim(ir.Bool)
	default:
		if !lt.Equal(rt) {
			a.errf(diag.TypeMismatch, n.Pos, "arithmetic operator %q requires matching operand types, got %s and %s", n.Op, lt, rt)
		}
		return lt
	}
}

func (a *Analyzer) unaryType(u *ast.UnaryExpr, cf *CheckedFunction) ir.Type {
	t := a.primaryType(u.Value.Primary, cf)
	switch u.Operator {
	case "!":
		if !t.Equal(ir.Prim(ir.Bool)) {
			a.errf(diag.TypeMismatch, u.Pos, "unary \"!\" requires bool, got %s", t)
		}
		return ir.Prim(ir.Bool)
	case "-":
		return t
	default:
		return t
	}
}

func (a *Analyzer) primaryType(p *ast.PrimaryExpr, cf *CheckedFunction) ir.Type {
	switch {
	case p.Float != nil:
		return ir.Prim(ir.F64)
	case p.Number != nil:
		return ir.Prim(ir.I64)
	case p.Bool != nil:
		return ir.Prim(ir.Bool)
	case p.Ident != nil:
		sym := cf.Locals.Lookup(p.Ident.Value)
		if sym == nil {
			a.errf(diag.ResolveUndefined, p.Pos, "undefined variable %q", p.Ident.Value)
			return ir.Prim(ir.I64)
		}
		return sym.Type
	case p.Parens != nil:
		return a.exprType(p.Parens, cf)
	case p.Call != nil:
		callee, ok := a.funcSig[p.Call.Callee.Value]
		if !ok {
			a.errf(diag.ResolveUndefined, p.Pos, "call to undefined function %q", p.Call.Callee.Value)
			return ir.Prim(ir.Void)
		}
		if len(p.Call.Args) != len(callee.Params) {
			a.errf(diag.TypeArityMismatch, p.Pos, "call to %q expects %d argument(s), got %d", p.Call.Callee.Value, len(callee.Params), len(p.Call.Args))
		}
		for i, arg := range p.Call.Args {
			at := a.exprType(arg, cf)
			if i < len(callee.Params) && !at.Equal(callee.Params[i].Type) {
				a.errf(diag.TypeMismatch, p.Pos, "argument %d of call to %q: expected %s, got %s", i+1, p.Call.Callee.Value, callee.Params[i].Type, at)
			}
		}
		return callee.ReturnType
	default:
		return ir.Prim(ir.Void)
	}
}

func (a *Analyzer) errf(code string, pos lexer.Position, format string, args ...interface{}) {
	a.errs = append(a.errs, diag.CompilerError{
		Level: diag.Error, Code: code, Phase: "type",
		Message:  fmt.Sprintf(format, args...),
		Position: diag.Position{File: a.file, Line: pos.Line, Column: pos.Column},
		Length:   1,
	})
}

// resolveType maps a parsed type name to its ir.Type.
func resolveType(t *ast.Type) ir.Type {
	switch t.Name {
	case "i8":
		return ir.Prim(ir.I8)
	case "i16":
		return ir.Prim(ir.I16)
	case "i32":
		return ir.Prim(ir.I32)
	case "i64":
		return ir.Prim(ir.I64)
	case "u8":
		return ir.Prim(ir.U8)
	case "u16":
		return ir.Prim(ir.U16)
	case "u32":
		return ir.Prim(ir.U32)
	case "u64":
		return ir.Prim(ir.U64)
	case "f32":
		return ir.Prim(ir.F32)
	case "f64":
		return ir.Prim(ir.F64)
	case "bool":
		return ir.Prim(ir.Bool)
	default:
		return ir.Prim(ir.Void)
	}
}
