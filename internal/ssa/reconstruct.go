package ssa

import (
	"tacc/internal/analysis"
	"tacc/internal/ir"
)

// Reconstruct repairs SSA for a set of variables whose reaching
// definitions were invalidated by an in-place rewrite — mem-to-reg
// promotion (where a LOAD becomes a COPY reading the placeholder
// variable id) or inlining (where cloned defs need to merge with the
// caller's existing ones). defs[v] gives, for each variable v, every
// block that now holds a known definition of v and the name that
// definition produced; every remaining use of the placeholder id v
// anywhere in fn is resolved by searching the dominator predecessor
// chain, synthesizing a phi at any join reached by more than one
// definition (spec.md §4.8).
func Reconstruct(mod *ir.Module, fn *ir.Function, defs map[int]map[*ir.BasicBlock]int, varType map[int]ir.Type) {
	u := analysis.ComputeUses(fn)

	for v, blockDefs := range defs {
		r := &reconstructor{
			mod:      mod,
			variable: v,
			typ:      varType[v],
			defAt:    map[*ir.BasicBlock]int{},
		}
		for b, name := range blockDefs {
			r.defAt[b] = name
		}

		for _, ref := range u.GetUses(v) {
			if ref.IsPhi {
				for i := range ref.Phi.Operands {
					if ref.Phi.Operands[i].Value == v {
						ref.Phi.Operands[i].Value = r.reachingDef(ref.Phi.Operands[i].Pred)
					}
				}
				continue
			}
			resolved := r.reachingDef(ref.Block)
			ref.Instruction.RenameOperands(func(op int) int {
				if op == v {
					return resolved
				}
				return op
			})
		}

		collapseTrivialPhis(fn, r.created)
	}
}

type reconstructor struct {
	mod      *ir.Module
	variable int
	typ      ir.Type
	defAt    map[*ir.BasicBlock]int
	created  []*ir.Phi
}

// reachingDef finds the value of r.variable at the end of b, synthesizing
// a phi when more than one predecessor supplies a (possibly different)
// definition. Recording the phi's own name in defAt before recursing into
// predecessors breaks cycles through loop back edges.
func (r *reconstructor) reachingDef(b *ir.BasicBlock) int {
	if name, ok := r.defAt[b]; ok {
		return name
	}
	preds := b.Incoming
	switch len(preds) {
	case 0:
		// No definition reaches here (entry block, or unreachable code);
		// leave the placeholder id rather than panicking on malformed input.
		r.defAt[b] = r.variable
		return r.variable
	case 1:
		name := r.reachingDef(preds[0])
		r.defAt[b] = name
		return name
	default:
		p := ir.NewPhi(r.mod.FreshName(), r.typ)
		b.AddPhi(p)
		r.defAt[b] = p.Name
		r.created = append(r.created, p)
		for _, pred := range preds {
			p.SetOperandFor(pred, r.reachingDef(pred))
		}
		return p.Name
	}
}

// collapseTrivialPhis replaces any synthesized phi whose operands are all
// the same value (after ignoring self-references) with that value
// directly everywhere in fn, then erases the phi. Keeps reconstruct from
// leaving behind redundant single-value phis at loop headers with only
// one real reaching definition.
func collapseTrivialPhis(fn *ir.Function, created []*ir.Phi) {
	for _, p := range created {
		if p.IsErased() {
			continue
		}
		same := ir.NoName
		trivial := true
		for _, op := range p.Operands {
			if op.Value == p.Name {
				continue // self-reference, ignore
			}
			if same == ir.NoName {
				same = op.Value
				continue
			}
			if op.Value != same {
				trivial = false
				break
			}
		}
		if !trivial || same == ir.NoName {
			continue
		}
		replaceEverywhere(fn, p.Name, same)
		p.Erase()
	}
}

// replaceEverywhere rewrites every operand occurrence of old, across
// every block's instructions and phis, to fresh.
func replaceEverywhere(fn *ir.Function, old, fresh int) {
	for _, b := range fn.CFG.Blocks {
		for _, ins := range b.Instructions {
			if !ins.IsErased() {
				ins.ReplaceOperand(old, fresh)
			}
		}
		for _, p := range b.Phis {
			if !p.IsErased() {
				p.ReplaceOperand(old, fresh)
			}
		}
	}
}
