package regalloc

import (
	"sort"

	"tacc/internal/analysis"
	"tacc/internal/ir"
	"tacc/internal/ssa"
)

// GraphColorAllocator builds Chaitin-style interference graphs per
// register class and colors them, coalescing along phi webs before
// simplification (spec.md §4.14), grounded on
// original_source/src/core/poRegGraph.cpp.
type GraphColorAllocator struct {
	GPRCount int
	SSECount int
}

func NewGraphColorAllocator(gprCount, sseCount int) *GraphColorAllocator {
	return &GraphColorAllocator{GPRCount: gprCount, SSECount: sseCount}
}

type interferenceGraph struct {
	class   Class
	nodes   map[int]bool
	edges   map[int]map[int]bool
	webs    *analysis.PhiWebs
	members map[int][]int // representative -> every name merged into it
}

func newInterferenceGraph(class Class, webs *analysis.PhiWebs) *interferenceGraph {
	return &interferenceGraph{
		class:   class,
		nodes:   map[int]bool{},
		edges:   map[int]map[int]bool{},
		webs:    webs,
		members: map[int][]int{},
	}
}

func (g *interferenceGraph) addNode(name int) {
	rep := g.webs.Representative(name)
	if !g.nodes[rep] {
		g.nodes[rep] = true
		g.edges[rep] = map[int]bool{}
	}
	g.members[rep] = appendIfMissing(g.members[rep], name)
}

func appendIfMissing(xs []int, v int) []int {
	for _, x := range xs {
		if x == v {
			return xs
		}
	}
	return append(xs, v)
}

func (g *interferenceGraph) addEdge(a, b int) {
	ra, rb := g.webs.Representative(a), g.webs.Representative(b)
	if ra == rb {
		return
	}
	g.addNode(ra)
	g.addNode(rb)
	g.edges[ra][rb] = true
	g.edges[rb][ra] = true
}

func (g *interferenceGraph) degree(n int) int { return len(g.edges[n]) }

// removeNode deletes n and its incident edges, returning its former
// neighbors.
func (g *interferenceGraph) removeNode(n int) []int {
	neighbors := make([]int, 0, len(g.edges[n]))
	for nb := range g.edges[n] {
		neighbors = append(neighbors, nb)
		delete(g.edges[nb], n)
	}
	delete(g.edges, n)
	delete(g.nodes, n)
	return neighbors
}

// buildInterferenceGraphs runs liveness and, for each class, connects
// every pair of values simultaneously live at any program point (spec.md
// §4.5, §4.14).
func buildInterferenceGraphs(fn *ir.Function, live *analysis.Liveness, webs *analysis.PhiWebs) (gpr, sse *interferenceGraph) {
	gpr = newInterferenceGraph(GPR, webs)
	sse = newInterferenceGraph(SSE, webs)
	graphFor := func(t ir.Type) *interferenceGraph {
		if ClassOf(t) == SSE {
			return sse
		}
		return gpr
	}

	typeOf := map[int]ir.Type{}
	for _, b := range fn.CFG.Blocks {
		for _, p := range b.Phis {
			if !p.IsErased() {
				typeOf[p.Name] = p.Type
			}
		}
		for _, ins := range b.Instructions {
			if !ins.IsErased() && ins.Defines() {
				typeOf[ins.Name] = ins.Type
			}
		}
	}
	for name, t := range typeOf {
		graphFor(t).addNode(name)
	}

	names := make([]int, 0, len(typeOf))
	for name := range typeOf {
		names = append(names, name)
	}
	sort.Ints(names)
	for i, a := range names {
		ra := live.RangeOf(a)
		for _, b := range names[i+1:] {
			if ClassOf(typeOf[a]) != ClassOf(typeOf[b]) {
				continue
			}
			if ra.Overlaps(live.RangeOf(b)) {
				graphFor(typeOf[a]).addEdge(a, b)
			}
		}
	}
	return gpr, sse
}

// colorGraph simplifies nodes of degree < k onto a stack, then colors in
// reverse, choosing the lowest register not used by an already-colored
// neighbor; a node that cannot simplify (degree >= k everywhere) is
// pushed anyway as a spill candidate and may end up uncolorable, at
// which point it is marked spilled instead (spec.md §4.14 steps 3-5).
func colorGraph(g *interferenceGraph, k int) (colors map[int]int, spilled map[int]bool) {
	remaining := map[int]bool{}
	for n := range g.nodes {
		remaining[n] = true
	}
	work := &interferenceGraph{class: g.class, nodes: map[int]bool{}, edges: map[int]map[int]bool{}, webs: g.webs, members: g.members}
	for n := range g.nodes {
		work.nodes[n] = true
		work.edges[n] = map[int]bool{}
		for nb := range g.edges[n] {
			work.edges[n][nb] = true
		}
	}

	var stack []int
	for len(work.nodes) > 0 {
		picked := -1
		for n := range work.nodes {
			if work.degree(n) < k {
				picked = n
				break
			}
		}
		if picked == -1 {
			for n := range work.nodes {
				picked = n
				break
			}
		}
		work.removeNode(picked)
		stack = append(stack, picked)
	}

	colors = map[int]int{}
	spilled = map[int]bool{}
	for i := len(stack) - 1; i >= 0; i-- {
		n := stack[i]
		used := map[int]bool{}
		for nb := range g.edges[n] {
			if c, ok := colors[nb]; ok {
				used[c] = true
			}
		}
		chosen := -1
		for c := 0; c < k; c++ {
			if !used[c] {
				chosen = c
				break
			}
		}
		if chosen == -1 {
			spilled[n] = true
			continue
		}
		colors[n] = chosen
	}
	return colors, spilled
}

// Allocate colors fn's GPR and SSE interference graphs, spilling any
// uncolorable web to a stack slot at every use and def, then splits
// critical edges and rewrites phi webs to their representative via
// ssa.Destruct so the colored names are ready for lowering.
func (alloc *GraphColorAllocator) Allocate(fn *ir.Function) (gpr, sse *Assignment, slots *StackSlotAllocator) {
	live := analysis.ComputeLiveness(fn)
	webs := analysis.ComputePhiWebs(fn)
	uses := analysis.ComputeUses(fn)
	slots = NewStackSlotAllocator()

	gprGraph, sseGraph := buildInterferenceGraphs(fn, live, webs)

	gpr = colorClass(gprGraph, alloc.GPRCount, uses, slots)
	sse = colorClass(sseGraph, alloc.SSECount, uses, slots)

	ssa.Destruct(fn)
	return gpr, sse, slots
}

func colorClass(g *interferenceGraph, k int, uses *analysis.Uses, slots *StackSlotAllocator) *Assignment {
	asn := newAssignment(g.class)
	colors, spilled := colorGraph(g, k)

	for rep, reg := range colors {
		for _, member := range g.members[rep] {
			asn.setHome(member, reg)
		}
	}
	for rep := range spilled {
		size := 8
		for _, member := range g.members[rep] {
			slot := slots.AllocateSlot(member, size)
			asn.setSlot(member, slot)
			asn.setSpillPos(member, 0)
			if def, ok := uses.Def(member); ok {
				asn.addSpillSite(member, def.AbsolutePos)
			}
			for _, ref := range uses.GetUses(member) {
				asn.addSpillSite(member, ref.AbsolutePos)
			}
		}
	}
	return asn
}
