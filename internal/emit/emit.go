// Package emit lowers a checked program into pre-SSA ir.Function CFGs:
// every non-special instruction's Name holds a raw variable id (reused
// across every reassignment of that source variable in different
// blocks), leaving phi placement entirely to ssa.Construct (spec.md §4.8).
//
// Boolean-valued expressions pose the one real design problem here: CMP
// never produces a result name and BR's targets live on the block, not
// the instruction, so a comparison used directly as an if/while condition
// lowers straight to CMP+BR, but one assigned to a variable (`let ok: bool
// = a == b;`) has no single instruction that can produce it. Such values
// are materialized by branching to one of two blocks that each write a
// true/false CONSTANT into the same destination id, letting ssa.Construct
// place the join phi — the same "jumping code" technique used for
// short-circuit && / || (genCond below), grounded in shape on how
// kanso-lang-kanso's codegen threads branch targets through nested
// conditions, generalized here to a value-producing form.
package emit

import (
	"fmt"
	"math"
	"strconv"

	"tacc/internal/ast"
	"tacc/internal/ir"
	"tacc/internal/parser"
	"tacc/internal/sema"
)

// Program lowers every function and global initializer in checked into
// mod, then runs SSA construction over each emitted function.
func Program(mod *ir.Module, checked *sema.CheckedProgram, convention ir.CallingConvention, construct func(*ir.Module, *ir.Function)) {
	for _, g := range checked.Globals {
		if g.Extern || g.Init == nil {
			continue
		}
		gv := mod.Globals[globalIndex(checked, g.Name)]
		gv.InitRef = mod.Constants.Intern(foldConstant(parser.Rebalance(g.Init)))
	}

	for _, cf := range checked.Functions {
		fn := ir.NewFunction(cf.Name, cf.Qualified)
		fn.Arity = len(cf.Params)
		fn.Convention = convention
		fn.ReturnType = cf.ReturnType
		if cf.Public {
			fn.Attributes |= ir.AttrPublic
		} else {
			fn.Attributes |= ir.AttrPrivate
		}
		for _, p := range cf.Params {
			fn.ParamTypes = append(fn.ParamTypes, p.Type)
		}
		if cf.Extern {
			fn.Attributes |= ir.AttrExtern
			mod.AddFunction(fn)
			continue
		}
		fn.Inlinable = true

		e := &emitter{mod: mod, fn: fn, cf: cf, program: checked}
		entry := fn.CFG.NewBlock()
		fn.CFG.Append(entry)
		e.cur = entry
		for i, p := range cf.Params {
			e.cur.AddInstruction(&ir.Instruction{Name: p.ID, Type: p.Type, Left: ir.NoName, Right: ir.NoName, Code: ir.PARAM, Aux: int64(i)})
		}
		e.emitStatements(cf.AST.Body.Statements)
		if e.cur != nil && !blockEnded(e.cur) {
			e.cur.Next = nil
			e.cur.AddInstruction(&ir.Instruction{Name: ir.NoName, Left: ir.NoName, Right: ir.NoName, Code: ir.RETURN})
		}

		mod.AddFunction(fn)
		construct(mod, fn)
	}
}

func globalIndex(checked *sema.CheckedProgram, name string) int {
	sym := checked.GlobalScope.LookupLocal(name)
	return sym.ID
}

// foldConstant evaluates a literal-only expression tree at compile time;
// global initializers are restricted to constant literals (§3's
// GlobalVar.InitRef is a constant-pool index, not an instruction stream).
func foldConstant(n *ast.BinNode) ir.Constant {
	if n.Op != "" {
		panic(fmt.Sprintf("static initializer must be a constant literal, not operator %q", n.Op))
	}
	p := n.Value.Value.Primary
	switch {
	case p.Number != nil:
		v, _ := strconv.ParseInt(*p.Number, 0, 64)
		return ir.Constant{Type: ir.Prim(ir.I64), IntBits: uint64(v)}
	case p.Float != nil:
		v, _ := strconv.ParseFloat(*p.Float, 64)
		return ir.Constant{Type: ir.Prim(ir.F64), IntBits: floatBits(v)}
	case p.Bool != nil:
		if *p.Bool == "true" {
			return ir.Constant{Type: ir.Prim(ir.Bool), IntBits: 1}
		}
		return ir.Constant{Type: ir.Prim(ir.Bool), IntBits: 0}
	default:
		panic("static initializer must be a constant literal")
	}
}

type emitter struct {
	mod     *ir.Module
	fn      *ir.Function
	cf      *sema.CheckedFunction
	cur     *ir.BasicBlock
	program *sema.CheckedProgram
}

func (e *emitter) newBlock() *ir.BasicBlock {
	b := e.fn.CFG.NewBlock()
	e.fn.CFG.Append(b)
	return b
}

func (e *emitter) jumpTo(target *ir.BasicBlock) {
	e.cur.AddInstruction(&ir.Instruction{Name: ir.NoName, Left: ir.NoName, Right: ir.NoName, Code: ir.BR, Aux: int64(ir.Unconditional)})
	e.cur.SetBranch(target, true)
}

func (e *emitter) emitStatements(stmts []*ast.Statement) {
	for _, s := range stmts {
		if e.cur == nil || blockEnded(e.cur) {
			return
		}
		e.emitStatement(s)
	}
}

func (e *emitter) emitStatement(s *ast.Statement) {
	switch {
	case s.Let != nil:
		sym := e.cf.Locals.LookupLocal(s.Let.Name.Value)
		e.emitInto(sym.ID, sym.Type, parser.Rebalance(s.Let.Expr))

	case s.Assign != nil:
		sym := e.cf.Locals.Lookup(s.Assign.Target.Value)
		e.emitInto(sym.ID, sym.Type, parser.Rebalance(s.Assign.Expr))

	case s.ExprStmt != nil:
		e.emitValue(parser.Rebalance(s.ExprStmt.Expr))

	case s.Return != nil:
		if s.Return.Expr == nil {
			// A RETURN-terminated block has no fall-through successor; clear
			// whatever stale Next a later sibling block's allocation left
			// behind via FlowGraph.Append's append-order side effect.
			e.cur.Next = nil
			e.cur.AddInstruction(&ir.Instruction{Name: ir.NoName, Left: ir.NoName, Right: ir.NoName, Code: ir.RETURN})
			return
		}
		v, _ := e.emitValue(parser.Rebalance(s.Return.Expr))
		e.cur.Next = nil
		e.cur.AddInstruction(&ir.Instruction{Name: ir.NoName, Left: v, Right: ir.NoName, Code: ir.RETURN})

	case s.If != nil:
		e.emitIf(s.If)

	case s.While != nil:
		e.emitWhile(s.While.Cond, s.While.Body.Statements)

	case s.For != nil:
		e.emitFor(s.For)
	}
}

func (e *emitter) emitIf(s *ast.IfStmt) {
	thenBlock := e.newBlock()
	var elseBlock *ir.BasicBlock
	afterBlock := e.newBlock()
	falseTarget := afterBlock
	if s.Else != nil {
		elseBlock = e.newBlock()
		falseTarget = elseBlock
	}

	e.genCond(parser.Rebalance(s.Cond), false, thenBlock, falseTarget)

	e.cur = thenBlock
	e.emitStatements(s.Then.Statements)
	if e.cur != nil && !blockEnded(e.cur) {
		e.jumpTo(afterBlock)
	}

	if s.Else != nil {
		e.cur = elseBlock
		e.emitStatements(s.Else.Statements)
		if e.cur != nil && !blockEnded(e.cur) {
			e.jumpTo(afterBlock)
		}
	}

	e.cur = afterBlock
}

func (e *emitter) emitWhile(cond *ast.Expr, body []*ast.Statement) {
	condBlock := e.newBlock()
	e.jumpTo(condBlock)

	bodyBlock := e.newBlock()
	afterBlock := e.newBlock()

	e.cur = condBlock
	e.genCond(parser.Rebalance(cond), false, bodyBlock, afterBlock)

	e.cur = bodyBlock
	e.emitStatements(body)
	if e.cur != nil && !blockEnded(e.cur) {
		e.jumpTo(condBlock)
	}

	e.cur = afterBlock
}

// emitFor desugars to init; while (cond) { body; post; }.
func (e *emitter) emitFor(s *ast.ForStmt) {
	if s.Init != nil {
		sym := e.cf.Locals.LookupLocal(s.Init.Name.Value)
		e.emitInto(sym.ID, sym.Type, parser.Rebalance(s.Init.Expr))
	}

	cond := s.Cond
	if cond == nil {
		cond = &ast.Expr{Left: &ast.UnaryExpr{Value: &ast.PostfixExpr{Primary: &ast.PrimaryExpr{Bool: strPtr("true")}}}}
	}

	condBlock := e.newBlock()
	e.jumpTo(condBlock)

	bodyBlock := e.newBlock()
	afterBlock := e.newBlock()

	e.cur = condBlock
	e.genCond(parser.Rebalance(cond), false, bodyBlock, afterBlock)

	e.cur = bodyBlock
	e.emitStatements(s.Body.Statements)
	if e.cur != nil && !blockEnded(e.cur) {
		if s.Post != nil {
			sym := e.cf.Locals.Lookup(s.Post.Target.Value)
			e.emitInto(sym.ID, sym.Type, parser.Rebalance(s.Post.Expr))
		}
		e.jumpTo(condBlock)
	}

	e.cur = afterBlock
}

func strPtr(s string) *string { return &s }

// blockEnded reports whether b already has a terminating instruction
// (BR, checked via Terminator, or RETURN) and so must not be appended to
// further.
func blockEnded(b *ir.BasicBlock) bool {
	if b.Terminator() != nil {
		return true
	}
	if len(b.Instructions) == 0 {
		return false
	}
	return b.Instructions[len(b.Instructions)-1].Code == ir.RETURN
}

// emitInto lowers tree's value directly into the variable id target,
// reusing the pre-SSA "raw variable id" convention: writing the same id
// from multiple blocks is exactly what ssa.Construct expects to phi.
func (e *emitter) emitInto(target int, typ ir.Type, tree *ast.BinNode) {
	if isBoolProducing(tree) {
		e.materializeBoolInto(target, tree)
		return
	}
	if tree.Op == "" {
		e.emitUnaryInto(target, typ, tree.Value)
		return
	}
	lv, lt := e.emitValue(tree.Left)
	rv, _ := e.emitValue(tree.Right)
	e.cur.AddInstruction(&ir.Instruction{Name: target, Type: lt, Left: lv, Right: rv, Code: arithCode(tree.Op)})
}

func (e *emitter) emitUnaryInto(target int, typ ir.Type, u *ast.UnaryExpr) {
	if u.Operator == "!" {
		e.materializeBoolInto(target, &ast.BinNode{Value: u})
		return
	}
	if u.Operator == "-" {
		v, t := e.primaryValue(u.Value.Primary)
		e.cur.AddInstruction(&ir.Instruction{Name: target, Type: t, Left: v, Right: ir.NoName, Code: ir.UNARY_MINUS})
		return
	}
	v, t := e.primaryValue(u.Value.Primary)
	e.cur.AddInstruction(&ir.Instruction{Name: target, Type: t, Left: v, Right: ir.NoName, Code: ir.COPY})
}

// materializeBoolInto evaluates tree as a condition and writes a true/false
// CONSTANT into target from whichever arm is taken; ssa.Construct phis the
// two definitions together at the join block.
func (e *emitter) materializeBoolInto(target int, tree *ast.BinNode) {
	trueBlock := e.newBlock()
	falseBlock := e.newBlock()
	afterBlock := e.newBlock()

	e.genCond(tree, false, trueBlock, falseBlock)

	e.cur = trueBlock
	trueConst := e.mod.Constants.Intern(ir.Constant{Type: ir.Prim(ir.Bool), IntBits: 1})
	e.cur.AddInstruction(&ir.Instruction{Name: target, Type: ir.Prim(ir.Bool), Left: ir.NoName, Right: ir.NoName, Code: ir.CONSTANT, Aux: int64(trueConst)})
	e.jumpTo(afterBlock)

	e.cur = falseBlock
	falseConst := e.mod.Constants.Intern(ir.Constant{Type: ir.Prim(ir.Bool), IntBits: 0})
	e.cur.AddInstruction(&ir.Instruction{Name: target, Type: ir.Prim(ir.Bool), Left: ir.NoName, Right: ir.NoName, Code: ir.CONSTANT, Aux: int64(falseConst)})
	e.jumpTo(afterBlock)

	e.cur = afterBlock
}

// isBoolProducing reports whether tree's root is a comparison, logical
// operator, or unary not — the cases that need materializeBoolInto rather
// than a single arithmetic instruction.
func isBoolProducing(tree *ast.BinNode) bool {
	switch tree.Op {
	case "&&", "||", "==", "!=", "<", "<=", ">", ">=":
		return true
	}
	if tree.Op == "" && tree.Value != nil && tree.Value.Operator == "!" {
		return true
	}
	return false
}

// genCond lowers tree as a branch condition: it ends e.cur with a BR that
// reaches trueTarget when tree evaluates to (negate ? false : true) and
// falseTarget otherwise, implementing short-circuit && / || as nested
// branches (the "jumping code" technique) rather than ever materializing
// an intermediate bool value.
func (e *emitter) genCond(tree *ast.BinNode, negate bool, trueTarget, falseTarget *ir.BasicBlock) {
	switch tree.Op {
	case "&&":
		mid := e.newBlock()
		if !negate {
			e.genCond(tree.Left, false, mid, falseTarget)
			e.cur = mid
			e.genCond(tree.Right, false, trueTarget, falseTarget)
		} else {
			// De Morgan: !(A && B) == !A || !B
			e.genCond(tree.Left, true, trueTarget, mid)
			e.cur = mid
			e.genCond(tree.Right, true, trueTarget, falseTarget)
		}
		return

	case "||":
		mid := e.newBlock()
		if !negate {
			e.genCond(tree.Left, false, trueTarget, mid)
			e.cur = mid
			e.genCond(tree.Right, false, trueTarget, falseTarget)
		} else {
			// !(A || B) == !A && !B
			e.genCond(tree.Left, true, mid, falseTarget)
			e.cur = mid
			e.genCond(tree.Right, true, trueTarget, falseTarget)
		}
		return

	case "==", "!=", "<", "<=", ">", ">=":
		lv, lt := e.emitValue(tree.Left)
		rv, _ := e.emitValue(tree.Right)
		pred := predicateFor(tree.Op)
		if negate {
			pred = pred.Negate()
		}
		e.cur.AddInstruction(&ir.Instruction{Name: ir.NoName, Type: lt, Left: lv, Right: rv, Code: ir.CMP})
		e.cur.AddInstruction(&ir.Instruction{Name: ir.NoName, Left: ir.NoName, Right: ir.NoName, Code: ir.BR, Aux: int64(pred)})
		cmpBlock := e.cur
		cont := e.newBlock()
		// cont was appended after trueTarget/falseTarget's own blocks were
		// allocated, so FlowGraph.Append's automatic Next-wiring lands on
		// whichever of those happens to be the graph's current tail, not on
		// cmpBlock; the false edge has to be wired here explicitly, the same
		// way opt/inline.go assigns Next/Branch directly instead of trusting
		// append order.
		cmpBlock.Next = cont
		cmpBlock.SetBranch(trueTarget, false)
		e.cur = cont
		e.jumpTo(falseTarget)
		return
	}

	// Unary leaf: either a "!" wrapping a nested condition, or a plain bool
	// atom compared against a true constant.
	u := tree.Value
	if u.Operator == "!" {
		if inner := parensOf(u); inner != nil {
			e.genCond(inner, !negate, trueTarget, falseTarget)
			return
		}
		v, _ := e.primaryValue(u.Value.Primary)
		e.compareAtom(v, !negate, trueTarget, falseTarget)
		return
	}
	v, _ := e.emitValue(tree)
	e.compareAtom(v, negate, trueTarget, falseTarget)
}

func (e *emitter) compareAtom(v int, negate bool, trueTarget, falseTarget *ir.BasicBlock) {
	trueConst := e.mod.Constants.Intern(ir.Constant{Type: ir.Prim(ir.Bool), IntBits: 1})
	tc := e.fresh()
	e.cur.AddInstruction(&ir.Instruction{Name: tc, Type: ir.Prim(ir.Bool), Left: ir.NoName, Right: ir.NoName, Code: ir.CONSTANT, Aux: int64(trueConst)})
	pred := ir.Equals
	if negate {
		pred = ir.NotEquals
	}
	e.cur.AddInstruction(&ir.Instruction{Name: ir.NoName, Type: ir.Prim(ir.Bool), Left: v, Right: tc, Code: ir.CMP})
	e.cur.AddInstruction(&ir.Instruction{Name: ir.NoName, Left: ir.NoName, Right: ir.NoName, Code: ir.BR, Aux: int64(pred)})
	cmpBlock := e.cur
	cont := e.newBlock()
	cmpBlock.Next = cont
	cmpBlock.SetBranch(trueTarget, false)
	e.cur = cont
	e.jumpTo(falseTarget)
}

// parensOf returns the parenthesized sub-expression of u's operand, if
// any, rebalanced into a condition tree; nil when u wraps a plain atom.
func parensOf(u *ast.UnaryExpr) *ast.BinNode {
	if u.Value.Primary.Parens == nil {
		return nil
	}
	return parser.Rebalance(u.Value.Primary.Parens)
}

func predicateFor(op string) ir.Predicate {
	switch op {
	case "==":
		return ir.Equals
	case "!=":
		return ir.NotEquals
	case "<":
		return ir.Less
	case "<=":
		return ir.LessEquals
	case ">":
		return ir.Greater
	case ">=":
		return ir.GreaterEquals
	default:
		panic("not a comparison operator: " + op)
	}
}

func arithCode(op string) ir.Code {
	switch op {
	case "+":
		return ir.ADD
	case "-":
		return ir.SUB
	case "*":
		return ir.MUL
	case "/":
		return ir.DIV
	case "%":
		return ir.MODULO
	default:
		panic("not an arithmetic operator: " + op)
	}
}

func (e *emitter) fresh() int { return e.mod.FreshName() }

// emitValue lowers tree into a fresh temporary and returns its id and
// type; comparisons and logical operators go through materializeBoolInto
// to get a fresh destination id first.
func (e *emitter) emitValue(tree *ast.BinNode) (int, ir.Type) {
	if isBoolProducing(tree) {
		id := e.fresh()
		e.materializeBoolInto(id, tree)
		return id, ir.Prim(ir.Bool)
	}
	if tree.Op == "" {
		return e.unaryValue(tree.Value)
	}
	lv, lt := e.emitValue(tree.Left)
	rv, _ := e.emitValue(tree.Right)
	id := e.fresh()
	e.cur.AddInstruction(&ir.Instruction{Name: id, Type: lt, Left: lv, Right: rv, Code: arithCode(tree.Op)})
	return id, lt
}

func (e *emitter) unaryValue(u *ast.UnaryExpr) (int, ir.Type) {
	if u.Operator == "!" {
		id := e.fresh()
		e.materializeBoolInto(id, &ast.BinNode{Value: u})
		return id, ir.Prim(ir.Bool)
	}
	if u.Operator == "-" {
		v, t := e.primaryValue(u.Value.Primary)
		id := e.fresh()
		e.cur.AddInstruction(&ir.Instruction{Name: id, Type: t, Left: v, Right: ir.NoName, Code: ir.UNARY_MINUS})
		return id, t
	}
	return e.primaryValue(u.Value.Primary)
}

func (e *emitter) primaryValue(p *ast.PrimaryExpr) (int, ir.Type) {
	switch {
	case p.Number != nil:
		v, _ := strconv.ParseInt(*p.Number, 0, 64)
		idx := e.mod.Constants.Intern(ir.Constant{Type: ir.Prim(ir.I64), IntBits: uint64(v)})
		id := e.fresh()
		e.cur.AddInstruction(&ir.Instruction{Name: id, Type: ir.Prim(ir.I64), Left: ir.NoName, Right: ir.NoName, Code: ir.CONSTANT, Aux: int64(idx)})
		return id, ir.Prim(ir.I64)

	case p.Float != nil:
		v, _ := strconv.ParseFloat(*p.Float, 64)
		idx := e.mod.Constants.Intern(ir.Constant{Type: ir.Prim(ir.F64), IntBits: floatBits(v)})
		id := e.fresh()
		e.cur.AddInstruction(&ir.Instruction{Name: id, Type: ir.Prim(ir.F64), Left: ir.NoName, Right: ir.NoName, Code: ir.CONSTANT, Aux: int64(idx)})
		return id, ir.Prim(ir.F64)

	case p.Bool != nil:
		bits := uint64(0)
		if *p.Bool == "true" {
			bits = 1
		}
		idx := e.mod.Constants.Intern(ir.Constant{Type: ir.Prim(ir.Bool), IntBits: bits})
		id := e.fresh()
		e.cur.AddInstruction(&ir.Instruction{Name: id, Type: ir.Prim(ir.Bool), Left: ir.NoName, Right: ir.NoName, Code: ir.CONSTANT, Aux: int64(idx)})
		return id, ir.Prim(ir.Bool)

	case p.Ident != nil:
		sym := e.cf.Locals.Lookup(p.Ident.Value)
		if sym.Kind == sema.SymbolGlobal {
			id := e.fresh()
			e.cur.AddInstruction(&ir.Instruction{Name: id, Type: sym.Type, Left: ir.NoName, Right: ir.NoName, Code: ir.LOAD_GLOBAL, Aux: int64(sym.ID)})
			return id, sym.Type
		}
		return sym.ID, sym.Type

	case p.Parens != nil:
		return e.emitValue(parser.Rebalance(p.Parens))

	case p.Call != nil:
		return e.emitCall(p.Call)

	default:
		return ir.NoName, ir.Prim(ir.Void)
	}
}

func (e *emitter) emitCall(c *ast.CallExpr) (int, ir.Type) {
	sig := e.lookupFunc(c.Callee.Value)

	args := make([]int, len(c.Args))
	for i, a := range c.Args {
		v, _ := e.emitValue(parser.Rebalance(a))
		args[i] = v
	}
	for i, v := range args {
		e.cur.AddInstruction(&ir.Instruction{Name: ir.NoName, Type: sig.paramTypes[i], Left: v, Right: ir.NoName, Code: ir.ARG})
	}

	callIdx := e.fn.AddCall(ir.CallSite{Callee: sig.qualified, NumArgs: len(args)})
	if sig.returnType.Kind == ir.Void {
		e.cur.AddInstruction(&ir.Instruction{Name: ir.NoName, Type: sig.returnType, Left: ir.NoName, Right: ir.NoName, Code: ir.CALL, Aux: callIdx})
		return ir.NoName, sig.returnType
	}
	id := e.fresh()
	e.cur.AddInstruction(&ir.Instruction{Name: id, Type: sig.returnType, Left: ir.NoName, Right: ir.NoName, Code: ir.CALL, Aux: callIdx})
	return id, sig.returnType
}

type funcSignature struct {
	qualified  string
	paramTypes []ir.Type
	returnType ir.Type
}

// lookupFunc resolves a call target against the module's already-emitted
// or yet-to-be-emitted functions. Program's two-pass emission order (a
// function being lowered can call one that appears later in source) means
// this looks the signature up from the checked program, not from mod.
func (e *emitter) lookupFunc(name string) funcSignature {
	for _, cf := range e.allFunctions() {
		if cf.Name == name {
			pts := make([]ir.Type, len(cf.Params))
			for i, p := range cf.Params {
				pts[i] = p.Type
			}
			return funcSignature{qualified: cf.Qualified, paramTypes: pts, returnType: cf.ReturnType}
		}
	}
	panic("emit: call to unresolved function " + name)
}

func (e *emitter) allFunctions() []*sema.CheckedFunction {
	return e.program.Functions
}

func floatBits(v float64) uint64 {
	return math.Float64bits(v)
}
