package opt

import (
	"tacc/internal/analysis"
	"tacc/internal/ir"
)

// InlineThreshold is the instruction-count ceiling a callee must stay
// at or under to be considered for inlining (spec.md §4.12).
const InlineThreshold = 40

// Inline performs bottom-up inlining over every function in mod, guided
// by the module's call graph and its strongly connected components
// (spec.md §4.12), grounded on original_source/src/core/poOptInline.cpp.
func Inline(mod *ir.Module) {
	inl := newInliner(mod)
	for _, fn := range inl.bottomUpOrder() {
		inl.inlineCallsIn(fn)
	}
}

type inliner struct {
	mod       *ir.Module
	scc       *analysis.SCC
	index     map[string]int
	inlinable map[string]bool
}

func newInliner(mod *ir.Module) *inliner {
	index := make(map[string]int, len(mod.Functions))
	for i, f := range mod.Functions {
		index[f.QualifiedName] = i
	}
	scc := analysis.NewSCC(len(mod.Functions))
	for i, f := range mod.Functions {
		for _, call := range f.Calls {
			if j, ok := index[call.Callee]; ok {
				scc.AddEdge(i, j)
			}
		}
	}
	scc.Compute()

	inl := &inliner{mod: mod, scc: scc, index: index, inlinable: map[string]bool{}}
	for _, f := range mod.Functions {
		inl.inlinable[f.QualifiedName] = inl.precheck(f)
	}
	return inl
}

// precheck marks f eligible when it is not extern, stays at or under
// InlineThreshold instructions, and contains no direct self-call
// (spec.md §4.12's pre-marking step).
func (inl *inliner) precheck(f *ir.Function) bool {
	if f.Attributes.Has(ir.AttrExtern) {
		return false
	}
	if f.InstructionCount() > InlineThreshold {
		return false
	}
	for _, call := range f.Calls {
		if call.Callee == f.QualifiedName {
			return false
		}
	}
	return true
}

// bottomUpOrder visits a function only once every callee outside its own
// SCC has already been visited (spec.md §4.12: "a node is eligible when
// every child in a different SCC has been visited"). A residual cycle
// that can never satisfy that condition is flushed in declaration order
// rather than spun on forever — there is nothing unsafe about visiting a
// mutually recursive group in arbitrary order, since §8 requires same-
// SCC calls to be refused at the call site regardless of visit order.
func (inl *inliner) bottomUpOrder() []*ir.Function {
	n := len(inl.mod.Functions)
	visited := make([]bool, n)
	order := make([]*ir.Function, 0, n)
	for len(order) < n {
		progressed := false
		for i, f := range inl.mod.Functions {
			if visited[i] {
				continue
			}
			if inl.readyToVisit(i, f, visited) {
				order = append(order, f)
				visited[i] = true
				progressed = true
			}
		}
		if !progressed {
			for i, f := range inl.mod.Functions {
				if !visited[i] {
					order = append(order, f)
					visited[i] = true
				}
			}
		}
	}
	return order
}

func (inl *inliner) readyToVisit(i int, f *ir.Function, visited []bool) bool {
	for _, call := range f.Calls {
		j, ok := inl.index[call.Callee]
		if !ok || j == i {
			continue
		}
		if inl.scc.Header(j) == inl.scc.Header(i) {
			continue
		}
		if !visited[j] {
			return false
		}
	}
	return true
}

// inlineCallsIn repeatedly inlines the first eligible CALL found in a
// not-yet-visited-this-iteration block of fn, restarting the scan after
// each splice since it changes fn's block list (spec.md §4.12's safety
// rule: "inlining stops when the caller's block containing the CALL has
// already been visited in this iteration; outer iteration resumes from
// the start").
func (inl *inliner) inlineCallsIn(fn *ir.Function) {
	callerSCC := -1
	if i, ok := inl.index[fn.QualifiedName]; ok {
		callerSCC = inl.scc.Header(i)
	}

	visitedBlocks := map[*ir.BasicBlock]bool{}
	for {
		progressed := false
		for _, b := range append([]*ir.BasicBlock(nil), fn.CFG.Blocks...) {
			if visitedBlocks[b] {
				continue
			}
			callIdx, argStart, callee := inl.findEligibleCall(fn, b, callerSCC)
			if callIdx < 0 {
				continue
			}
			visitedBlocks[b] = true
			inlineCallAt(inl.mod, fn, b, argStart, callIdx, callee)
			progressed = true
			break
		}
		if !progressed {
			return
		}
	}
}

// findEligibleCall returns the index of the first CALL in b whose callee
// is inlinable and not in fn's own SCC (spec.md §8: same-SCC and self-
// recursive calls are always refused), along with the index where its
// preceding ARG run begins.
func (inl *inliner) findEligibleCall(fn *ir.Function, b *ir.BasicBlock, callerSCC int) (callIdx, argStart int, callee *ir.Function) {
	for i, ins := range b.Instructions {
		if ins.IsErased() || ins.Code != ir.CALL {
			continue
		}
		site := fn.CallAt(ins)
		if !inl.inlinable[site.Callee] {
			continue
		}
		cf := inl.mod.FindFunction(site.Callee)
		if cf == nil {
			continue
		}
		if j, ok := inl.index[site.Callee]; ok && inl.scc.Header(j) == callerSCC {
			continue
		}
		start := i
		for start > 0 && !b.Instructions[start-1].IsErased() && b.Instructions[start-1].Code == ir.ARG {
			start--
		}
		return i, start, cf
	}
	return -1, -1, nil
}

// returnSite records one callee RETURN, translated into the block the
// clone of its owning block became and the (already-renamed) SSA name
// of the returned value, or ir.NoName for a void return.
type returnSite struct {
	block *ir.BasicBlock
	value int
}

// inlineCallAt splices callee's body into fn in place of the CALL at
// b.Instructions[callIdx], per the six steps of spec.md §4.12.
func inlineCallAt(mod *ir.Module, fn *ir.Function, b *ir.BasicBlock, argStart, callIdx int, callee *ir.Function) {
	callIns := b.Instructions[callIdx]
	args := make([]int, 0, callIdx-argStart)
	for i := argStart; i < callIdx; i++ {
		args = append(args, b.Instructions[i].Left)
	}

	// Step 1: split b immediately after the ARG run. "before" keeps the
	// non-ARG prefix (the ARGs and the CALL are dropped per step 5);
	// "after" keeps everything past the CALL plus b's original outgoing
	// edges.
	before := b
	origNext, origBranch, origUncond := b.Next, b.Branch, b.Unconditional
	after := fn.CFG.NewBlock()
	after.Instructions = append([]*ir.Instruction(nil), b.Instructions[callIdx+1:]...)
	after.Next = origNext
	after.Branch = origBranch
	after.Unconditional = origUncond
	if origNext != nil {
		origNext.Prev = after
	}

	before.Instructions = append([]*ir.Instruction(nil), b.Instructions[:argStart]...)
	before.Branch = nil
	before.Unconditional = false

	// Step 2-3: clone each callee block under fresh, module-wide unique
	// names, rewrite PARAM into a COPY of the matching caller-side ARG
	// value, and mirror the callee's own CFG edges.
	rename := map[int]int{}
	get := func(old int) int {
		if old == ir.NoName {
			return ir.NoName
		}
		if v, ok := rename[old]; ok {
			return v
		}
		v := mod.FreshName()
		rename[old] = v
		return v
	}

	calleeBlocks := callee.CFG.Blocks
	clones := make([]*ir.BasicBlock, len(calleeBlocks))
	blockMap := make(map[*ir.BasicBlock]*ir.BasicBlock, len(calleeBlocks))
	for i := range calleeBlocks {
		clones[i] = fn.CFG.NewBlock()
		blockMap[calleeBlocks[i]] = clones[i]
	}

	returns := make([]returnSite, 0, 2)
	for i, cb := range calleeBlocks {
		nc := clones[i]
		for _, p := range cb.Phis {
			if p.IsErased() {
				continue
			}
			np := ir.NewPhi(get(p.Name), p.Type)
			for _, op := range p.Operands {
				pred := blockMap[op.Pred]
				np.Operands = append(np.Operands, ir.PhiOperand{Value: get(op.Value), Pred: pred})
			}
			nc.AddPhi(np)
		}

		hasReturn := false
		for _, ins := range cb.Instructions {
			if ins.IsErased() {
				continue
			}
			if ins.Code == ir.RETURN {
				hasReturn = true
				returns = append(returns, returnSite{block: nc, value: get(ins.Left)})
				continue
			}
			nins := &ir.Instruction{Type: ins.Type, Left: ins.Left, Right: ins.Right, Code: ins.Code, Aux: ins.Aux}
			switch ins.Code {
			case ir.PARAM:
				nins.Code = ir.COPY
				nins.Left = args[int(ins.Aux)]
				nins.Right = ir.NoName
				nins.Name = get(ins.Name)
			case ir.CALL:
				nins.Aux = fn.AddCall(callee.CallAt(ins))
				nins.Name = get(ins.Name)
			default:
				nins.RenameOperands(get)
				nins.Name = get(ins.Name)
			}
			nc.AddInstruction(nins)
		}

		if hasReturn {
			nc.Next = nil
			nc.SetBranch(after, true)
		} else {
			if cb.Next != nil {
				nc.Next = blockMap[cb.Next]
			}
			if cb.Branch != nil {
				nc.SetBranch(blockMap[cb.Branch], cb.Unconditional)
			}
		}
	}

	// Splice the clones into fn's block list and textual chain.
	fn.CFG.Blocks = append(fn.CFG.Blocks, clones...)
	fn.CFG.Blocks = append(fn.CFG.Blocks, after)
	entryClone := blockMap[callee.CFG.Entry()]
	before.Next = entryClone
	entryClone.Prev = before
	if len(clones) > 0 {
		after.Prev = clones[len(clones)-1]
	}

	// Step 4: wire the call's result. Zero returns: nothing to wire (any
	// use of callIns.Name, if present, is unreachable). One return: a
	// COPY. More than one: a phi over the return blocks.
	if callIns.Name != ir.NoName {
		switch len(returns) {
		case 0:
			// void/unreachable result; leave unresolved, DCE will drop it.
		case 1:
			after.Instructions = append([]*ir.Instruction{{
				Name: callIns.Name, Type: callee.ReturnType, Code: ir.COPY,
				Left: returns[0].value, Right: ir.NoName,
			}}, after.Instructions...)
		default:
			p := ir.NewPhi(callIns.Name, callee.ReturnType)
			for _, r := range returns {
				p.SetOperandFor(r.block, r.value)
			}
			after.Phis = append([]*ir.Phi{p}, after.Phis...)
		}
	}

	fn.CFG.RecomputeIncoming()
}
