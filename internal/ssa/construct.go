// Package ssa implements SSA construction, reconstruction, and
// destruction (spec.md §4.8), grounded on original_source/src/core/
// poSSA.cpp's rename-via-dominator-tree approach.
package ssa

import (
	"tacc/internal/analysis"
	"tacc/internal/ir"
)

// Construct converts fn from its pre-SSA form — every non-special
// instruction's Name holding a raw variable id, possibly assigned by
// several instructions in different blocks — into SSA: a phi is placed
// at each variable's iterated dominance frontier, and every definition
// and use is renamed to a fresh, module-wide unique name via a
// dominator-tree-preorder walk with per-variable stacks (spec.md §4.8).
func Construct(mod *ir.Module, fn *ir.Function) {
	dom := analysis.ComputeDominators(fn.CFG)
	vars, defBlocks, varType := collectVariableDefs(fn)
	phiOf := placePhis(fn, dom, vars, defBlocks, varType)
	entry := fn.CFG.Entry()
	if entry == nil {
		return
	}
	rename(mod, dom, entry, phiOf)
}

func collectVariableDefs(fn *ir.Function) (vars []int, defBlocks map[int][]*ir.BasicBlock, varType map[int]ir.Type) {
	defBlocks = map[int][]*ir.BasicBlock{}
	varType = map[int]ir.Type{}
	seen := map[int]map[*ir.BasicBlock]bool{}
	for _, b := range fn.CFG.Blocks {
		for _, ins := range b.Instructions {
			if ins.IsErased() || !ins.Defines() {
				continue
			}
			v := ins.Name
			if seen[v] == nil {
				seen[v] = map[*ir.BasicBlock]bool{}
				vars = append(vars, v)
				varType[v] = ins.Type
			}
			if !seen[v][b] {
				seen[v][b] = true
				defBlocks[v] = append(defBlocks[v], b)
			}
		}
	}
	return vars, defBlocks, varType
}

// placePhis inserts one phi per variable at each block in its iterated
// dominance frontier, and returns, per variable, the phi installed in
// each such block.
func placePhis(fn *ir.Function, dom *analysis.Dominators, vars []int, defBlocks map[int][]*ir.BasicBlock, varType map[int]ir.Type) map[int]map[*ir.BasicBlock]*ir.Phi {
	phiOf := map[int]map[*ir.BasicBlock]*ir.Phi{}
	for _, v := range vars {
		frontier := dom.IteratedFrontier(defBlocks[v])
		for _, b := range frontier {
			if phiOf[v] == nil {
				phiOf[v] = map[*ir.BasicBlock]*ir.Phi{}
			}
			if _, exists := phiOf[v][b]; exists {
				continue
			}
			p := ir.NewPhi(v, varType[v])
			b.AddPhi(p)
			phiOf[v][b] = p
		}
	}
	return phiOf
}

// rename walks the dominator tree in preorder, renaming every phi result,
// instruction definition, and operand read to a fresh SSA name, and
// updating each successor's phi operand for the edge just taken.
func rename(mod *ir.Module, dom *analysis.Dominators, entry *ir.BasicBlock, phiOf map[int]map[*ir.BasicBlock]*ir.Phi) {
	stacks := map[int][]int{}

	top := func(v int) int {
		s := stacks[v]
		if len(s) == 0 {
			// No definition dominates this use yet; only possible for a
			// malformed pre-SSA CFG (a use with no reaching def). Fall back
			// to the raw id so renaming still produces a well-formed,
			// if meaningless, program rather than panicking.
			return v
		}
		return s[len(s)-1]
	}

	var visit func(b *ir.BasicBlock)
	visit = func(b *ir.BasicBlock) {
		var pushedVars []int
		push := func(v int) int {
			name := mod.FreshName()
			stacks[v] = append(stacks[v], name)
			pushedVars = append(pushedVars, v)
			return name
		}

		for v, byBlock := range phiOf {
			if p, ok := byBlock[b]; ok {
				p.Name = push(v)
			}
		}

		for _, ins := range b.Instructions {
			if ins.IsErased() {
				continue
			}
			raw := ins.Name
			defines := ins.Defines()
			ins.RenameOperands(func(v int) int { return top(v) })
			if defines {
				ins.Name = push(raw)
			}
		}

		for _, s := range b.Successors() {
			for v, byBlock := range phiOf {
				if p, ok := byBlock[s]; ok {
					p.SetOperandFor(b, top(v))
				}
			}
		}

		for _, c := range dom.Children(b) {
			visit(c)
		}

		for _, v := range pushedVars {
			stacks[v] = stacks[v][:len(stacks[v])-1]
		}
	}
	visit(entry)
}
