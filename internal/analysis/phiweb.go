package analysis

import "tacc/internal/ir"

// PhiWebs unions every phi's result name with its operand names via
// union-find, so the register allocators can treat a web as a single
// coalescing candidate (spec.md §4.7), grounded on
// original_source/src/core/poPhiWeb.h.
type PhiWebs struct {
	parent map[int]int
	rank   map[int]int
}

// ComputePhiWebs merges the name of every phi in fn with each of its
// operand names.
func ComputePhiWebs(fn *ir.Function) *PhiWebs {
	w := &PhiWebs{parent: map[int]int{}, rank: map[int]int{}}
	for _, p := range fn.AllPhis() {
		if p.IsErased() {
			continue
		}
		w.add(p.Name)
		for _, op := range p.Operands {
			if op.Value == ir.NoName {
				continue
			}
			w.add(op.Value)
			w.merge(p.Name, op.Value)
		}
	}
	return w
}

func (w *PhiWebs) add(name int) {
	if _, ok := w.parent[name]; !ok {
		w.parent[name] = name
		w.rank[name] = 0
	}
}

func (w *PhiWebs) find(name int) int {
	w.add(name)
	root := name
	for w.parent[root] != root {
		root = w.parent[root]
	}
	for w.parent[name] != root {
		next := w.parent[name]
		w.parent[name] = root
		name = next
	}
	return root
}

// merge unions the webs containing a and b.
func (w *PhiWebs) merge(a, b int) {
	ra, rb := w.find(a), w.find(b)
	if ra == rb {
		return
	}
	if w.rank[ra] < w.rank[rb] {
		ra, rb = rb, ra
	}
	w.parent[rb] = ra
	if w.rank[ra] == w.rank[rb] {
		w.rank[ra]++
	}
}

// Representative returns the canonical name for name's web. A name never
// touched by any phi is its own singleton web.
func (w *PhiWebs) Representative(name int) int {
	if _, ok := w.parent[name]; !ok {
		return name
	}
	return w.find(name)
}

// SameWeb reports whether a and b belong to the same phi web.
func (w *PhiWebs) SameWeb(a, b int) bool {
	return w.Representative(a) == w.Representative(b)
}

// Members returns every name in the same web as name, including name
// itself, in unspecified order.
func (w *PhiWebs) Members(name int) []int {
	root := w.Representative(name)
	var out []int
	for n := range w.parent {
		if w.find(n) == root {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		out = []int{name}
	}
	return out
}
