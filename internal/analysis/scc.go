package analysis

// SCC computes strongly connected components over an integer-keyed graph
// using Tarjan's algorithm (spec.md §4.3), grounded on
// original_source/src/core/poSCC.cpp. Used by the inliner to detect
// recursive call cycles.
type SCC struct {
	edges   [][]int
	number  []int
	lowlink []int
	onStack []bool
	header  []int
	stack   []int
	index   int
}

// NewSCC allocates an SCC solver over numVertices nodes, numbered
// 0..numVertices-1.
func NewSCC(numVertices int) *SCC {
	s := &SCC{
		edges:   make([][]int, numVertices),
		number:  make([]int, numVertices),
		lowlink: make([]int, numVertices),
		onStack: make([]bool, numVertices),
		header:  make([]int, numVertices),
	}
	for i := range s.number {
		s.number[i] = -1
		s.lowlink[i] = -1
		s.header[i] = -1
	}
	return s
}

func (s *SCC) AddEdge(from, to int) {
	s.edges[from] = append(s.edges[from], to)
}

// Compute runs Tarjan's algorithm over every unvisited vertex.
func (s *SCC) Compute() {
	for v := range s.edges {
		if s.number[v] == -1 {
			s.strongConnect(v)
		}
	}
}

// Header returns the root (first-discovered node) of the SCC containing
// v. A singleton SCC with no self-edge has Header(v) == v and no edge
// v->v; the inliner treats that as non-recursive.
func (s *SCC) Header(v int) int { return s.header[v] }

// IsSingleton reports whether v's component contains only v.
func (s *SCC) IsSingleton(v int) bool {
	if s.header[v] != v {
		return false
	}
	for u, h := range s.header {
		if u != v && h == v {
			return false
		}
	}
	for _, w := range s.edges[v] {
		if w == v {
			return false // self-edge: recursive singleton
		}
	}
	return true
}

func (s *SCC) strongConnect(v int) {
	s.index++
	s.number[v] = s.index
	s.lowlink[v] = s.index
	s.stack = append(s.stack, v)
	s.onStack[v] = true

	for _, w := range s.edges[v] {
		if s.number[w] == -1 {
			s.strongConnect(w)
			s.lowlink[v] = min(s.lowlink[v], s.lowlink[w])
		} else if s.number[w] < s.number[v] && s.onStack[w] {
			s.lowlink[v] = min(s.lowlink[v], s.number[w])
		}
	}

	if s.lowlink[v] == s.number[v] {
		for len(s.stack) > 0 && s.number[s.stack[len(s.stack)-1]] >= s.number[v] {
			w := s.stack[len(s.stack)-1]
			s.stack = s.stack[:len(s.stack)-1]
			s.onStack[w] = false
			s.header[w] = v
		}
	}
}
