// Package analysis implements the dataflow analyses consumed by the SSA
// and optimization passes: dominators, strongly connected components, the
// nested-loop forest, liveness, def-use chains, and phi webs (spec.md §4.2
// - §4.7).
package analysis

import "tacc/internal/ir"

// Dominators holds, for a single function's FlowGraph, the dominator set,
// immediate dominator, and dominance frontier of every block (spec.md
// §4.2).
type Dominators struct {
	graph    *ir.FlowGraph
	index    map[*ir.BasicBlock]int
	order    []*ir.BasicBlock
	dom      []map[int]bool // Dom(n), indexed by position in order
	idom     []int          // -1 for the entry
	frontier [][]int        // DF(n), indexed by position in order
}

// ComputeDominators runs the iterative fixed-point dominator computation
// of spec.md §4.2: Dom(n) = {n} ∪ ⋂_{p ∈ preds(n)} Dom(p), seeded with
// all-blocks for non-entry nodes and {entry} for the entry.
func ComputeDominators(g *ir.FlowGraph) *Dominators {
	order := g.Blocks
	n := len(order)
	d := &Dominators{
		graph: g,
		index: make(map[*ir.BasicBlock]int, n),
		order: order,
		dom:   make([]map[int]bool, n),
		idom:  make([]int, n),
	}
	for i, b := range order {
		d.index[b] = i
		d.idom[i] = -1
	}
	if n == 0 {
		return d
	}

	all := make(map[int]bool, n)
	for i := 0; i < n; i++ {
		all[i] = true
	}
	for i := range order {
		if i == 0 {
			d.dom[0] = map[int]bool{0: true}
		} else {
			d.dom[i] = cloneSet(all)
		}
	}

	preds := d.predecessors()

	changed := true
	for changed {
		changed = false
		for i := 1; i < n; i++ {
			var newDom map[int]bool
			for _, p := range preds[i] {
				if newDom == nil {
					newDom = cloneSet(d.dom[p])
					continue
				}
				newDom = intersect(newDom, d.dom[p])
			}
			if newDom == nil {
				newDom = map[int]bool{}
			}
			newDom[i] = true
			if !setEqual(newDom, d.dom[i]) {
				d.dom[i] = newDom
				changed = true
			}
		}
	}

	d.computeImmediateDominators()
	d.computeDominanceFrontier(preds)
	return d
}

func (d *Dominators) predecessors() [][]int {
	preds := make([][]int, len(d.order))
	for i, b := range d.order {
		for _, s := range b.Successors() {
			si := d.index[s]
			preds[si] = append(preds[si], i)
		}
	}
	return preds
}

func (d *Dominators) computeImmediateDominators() {
	for i := range d.order {
		d.idom[i] = -1
		if i == 0 {
			continue
		}
		// The immediate dominator is the unique strict dominator that does
		// not strictly dominate any other strict dominator of i.
		for cand := range d.dom[i] {
			if cand == i {
				continue
			}
			isImmediate := true
			for other := range d.dom[i] {
				if other == i || other == cand {
					continue
				}
				if d.dom[other][cand] {
					isImmediate = false
					break
				}
			}
			if isImmediate {
				d.idom[i] = cand
				break
			}
		}
	}
}

func (d *Dominators) computeDominanceFrontier(preds [][]int) {
	d.frontier = make([][]int, len(d.order))
	for y := range d.order {
		if len(preds[y]) < 2 {
			continue
		}
		for _, p := range preds[y] {
			runner := p
			for runner != d.idom[y] && runner != -1 {
				d.frontier[runner] = appendUnique(d.frontier[runner], y)
				runner = d.idom[runner]
			}
		}
	}
}

// Dominates reports whether a dominates b (reflexively: a dominates a).
func (d *Dominators) Dominates(a, b *ir.BasicBlock) bool {
	bi, ok := d.index[b]
	if !ok {
		return false
	}
	ai, ok := d.index[a]
	if !ok {
		return false
	}
	return d.dom[bi][ai]
}

// IDom returns b's immediate dominator, or nil for the entry block.
func (d *Dominators) IDom(b *ir.BasicBlock) *ir.BasicBlock {
	i, ok := d.index[b]
	if !ok || d.idom[i] == -1 {
		return nil
	}
	return d.order[d.idom[i]]
}

// Frontier returns the dominance frontier of b.
func (d *Dominators) Frontier(b *ir.BasicBlock) []*ir.BasicBlock {
	i, ok := d.index[b]
	if !ok {
		return nil
	}
	return d.blocksFrom(d.frontier[i])
}

// IteratedFrontier returns the closure of the DF operation over a set of
// blocks (spec.md §4.2's "iterated-DF query").
func (d *Dominators) IteratedFrontier(blocks []*ir.BasicBlock) []*ir.BasicBlock {
	work := make([]int, 0, len(blocks))
	inSet := map[int]bool{}
	for _, b := range blocks {
		if i, ok := d.index[b]; ok && !inSet[i] {
			inSet[i] = true
			work = append(work, i)
		}
	}
	result := map[int]bool{}
	for len(work) > 0 {
		n := work[len(work)-1]
		work = work[:len(work)-1]
		for _, f := range d.frontier[n] {
			if !result[f] {
				result[f] = true
				work = append(work, f)
			}
		}
	}
	out := make([]int, 0, len(result))
	for i := range result {
		out = append(out, i)
	}
	return d.blocksFrom(out)
}

// Children returns the blocks b immediately dominates, i.e. the dominator
// tree's children of b.
func (d *Dominators) Children(b *ir.BasicBlock) []*ir.BasicBlock {
	bi, ok := d.index[b]
	if !ok {
		return nil
	}
	var out []*ir.BasicBlock
	for i := range d.order {
		if d.idom[i] == bi {
			out = append(out, d.order[i])
		}
	}
	return out
}

// PreorderDomTree walks the dominator tree rooted at the entry block in
// preorder, which is the order SSA rename requires (spec.md §4.8).
func (d *Dominators) PreorderDomTree() []*ir.BasicBlock {
	if len(d.order) == 0 {
		return nil
	}
	var out []*ir.BasicBlock
	var visit func(b *ir.BasicBlock)
	visit = func(b *ir.BasicBlock) {
		out = append(out, b)
		for _, c := range d.Children(b) {
			visit(c)
		}
	}
	visit(d.order[0])
	return out
}

func (d *Dominators) blocksFrom(idxs []int) []*ir.BasicBlock {
	out := make([]*ir.BasicBlock, len(idxs))
	for i, idx := range idxs {
		out[i] = d.order[idx]
	}
	return out
}

func cloneSet(s map[int]bool) map[int]bool {
	out := make(map[int]bool, len(s))
	for k := range s {
		out[k] = true
	}
	return out
}

func intersect(a, b map[int]bool) map[int]bool {
	out := map[int]bool{}
	for k := range a {
		if b[k] {
			out[k] = true
		}
	}
	return out
}

func setEqual(a, b map[int]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func appendUnique(s []int, v int) []int {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}
