// Package opt implements the IR-level optimizations run between SSA
// construction and register allocation: mem-to-register promotion, dead
// code elimination, copy propagation, and bottom-up inlining (spec.md
// C9-C12), grounded on original_source/src/core/poOptMemToReg.cpp,
// poOptDCE.cpp, poOptCopy.cpp, and poOptInline.cpp.
package opt

import (
	"tacc/internal/analysis"
	"tacc/internal/ir"
	"tacc/internal/ssa"
)

// PromoteToRegisters implements spec.md §4.9: every ALLOCA of a scalar
// pointer whose uses are restricted to offset-zero PTRs that are in turn
// used only by LOAD and STORE is promoted away. The ALLOCA becomes a
// zero CONSTANT of the pointed-to type, each PTR is erased, each LOAD
// becomes a COPY reading the promoted variable's current value, and each
// STORE becomes a COPY redefining it. SSA Reconstruct then re-threads
// the promoted variable's reaching definitions across blocks. Any ALLOCA
// whose use set doesn't match this shape is left untouched, per the
// failure policy in spec.md §4.9 ("skipped silently; its stack slot
// survives to the allocator").
func PromoteToRegisters(mod *ir.Module, fn *ir.Function) []int {
	u := analysis.ComputeUses(fn)
	candidates := findPromotable(fn, u)
	if len(candidates) == 0 {
		return nil
	}

	varType := map[int]ir.Type{}
	// defSite marks, for each converted definition instruction (the
	// promoted CONSTANT or a converted STORE), which placeholder variable
	// it now defines; readSite marks each converted LOAD similarly.
	defSite := map[*ir.Instruction]int{}
	readSite := map[*ir.Instruction]int{}
	promoted := make([]int, 0, len(candidates))

	for _, alloca := range candidates {
		placeholder := alloca.Name
		scalar := *alloca.Type.Elem
		varType[placeholder] = scalar
		promoted = append(promoted, placeholder)

		zeroIdx := mod.Constants.Intern(ir.Constant{Type: scalar})
		alloca.Code = ir.CONSTANT
		alloca.Type = scalar
		alloca.Aux = int64(zeroIdx)
		alloca.Left = ir.NoName
		alloca.Right = ir.NoName
		alloca.Name = mod.FreshName()
		defSite[alloca] = placeholder

		for _, ref := range u.GetUses(placeholder) {
			ptr := ref.Instruction
			ptrName := ptr.Name
			ptr.Erase()
			for _, ref2 := range u.GetUses(ptrName) {
				switch ins := ref2.Instruction; ins.Code {
				case ir.LOAD:
					ins.Code = ir.COPY
					ins.Left = placeholder
					ins.Right = ir.NoName
					ins.Type = scalar
					readSite[ins] = placeholder
				case ir.STORE:
					value := ins.Right
					ins.Code = ir.COPY
					ins.Left = value
					ins.Right = ir.NoName
					ins.Type = scalar
					ins.Name = mod.FreshName()
					defSite[ins] = placeholder
				}
			}
		}
	}

	blockEndDefs := map[int]map[*ir.BasicBlock]int{}
	for _, b := range fn.CFG.Blocks {
		local := map[int]int{}
		for _, ins := range b.Instructions {
			if ins.IsErased() {
				continue
			}
			if p, ok := readSite[ins]; ok {
				if v, have := local[p]; have {
					ins.Left = v
				}
			}
			if p, ok := defSite[ins]; ok {
				local[p] = ins.Name
			}
		}
		for p, v := range local {
			if blockEndDefs[p] == nil {
				blockEndDefs[p] = map[*ir.BasicBlock]int{}
			}
			blockEndDefs[p][b] = v
		}
	}

	ssa.Reconstruct(mod, fn, blockEndDefs, varType)

	for _, b := range fn.CFG.Blocks {
		b.Compact()
	}
	return promoted
}

// findPromotable scans fn for ALLOCA instructions whose entire use chain
// is offset-zero PTR -> {LOAD, STORE}, per spec.md §4.9's failure policy.
func findPromotable(fn *ir.Function, u *analysis.Uses) []*ir.Instruction {
	var out []*ir.Instruction
	for _, b := range fn.CFG.Blocks {
		for _, ins := range b.Instructions {
			if ins.IsErased() || ins.Code != ir.ALLOCA {
				continue
			}
			if ins.Type.Kind != ir.Pointer || ins.Type.Elem == nil {
				continue
			}
			elem := *ins.Type.Elem
			if elem.Kind == ir.Array || elem.Kind == ir.User {
				continue
			}
			if isPromotable(ins, u) {
				out = append(out, ins)
			}
		}
	}
	return out
}

func isPromotable(alloca *ir.Instruction, u *analysis.Uses) bool {
	ptrUses := u.GetUses(alloca.Name)
	if len(ptrUses) == 0 {
		return false
	}
	for _, ref := range ptrUses {
		if ref.IsPhi || ref.Instruction.Code != ir.PTR || ref.Instruction.Left != alloca.Name || ref.Instruction.Aux != 0 {
			return false
		}
		for _, ref2 := range u.GetUses(ref.Instruction.Name) {
			if ref2.IsPhi {
				return false
			}
			ins := ref2.Instruction
			switch ins.Code {
			case ir.LOAD:
				if ins.Left != ref.Instruction.Name {
					return false
				}
			case ir.STORE:
				if ins.Left != ref.Instruction.Name {
					return false
				}
			default:
				return false
			}
		}
	}
	return true
}
