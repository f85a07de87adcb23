package ir

// BasicBlock is a maximal straight-line instruction sequence, linked into
// the function's textual order via Next/Prev (spec.md §3).
type BasicBlock struct {
	ID           int
	Instructions []*Instruction
	Phis         []*Phi
	Incoming     []*BasicBlock

	// Branch is the block's sole explicit branch target. When Unconditional
	// is true there is no fall-through successor; otherwise Next is the
	// fall-through (false) edge and Branch is the taken (true) edge.
	Branch        *BasicBlock
	Unconditional bool

	Next, Prev *BasicBlock
}

func newBlock(id int) *BasicBlock {
	return &BasicBlock{ID: id}
}

func (b *BasicBlock) AddInstruction(ins *Instruction) {
	b.Instructions = append(b.Instructions, ins)
}

func (b *BasicBlock) AddPhi(p *Phi) {
	b.Phis = append(b.Phis, p)
}

// AddIncoming records pred as a predecessor of b, unless already present.
func (b *BasicBlock) AddIncoming(pred *BasicBlock) {
	for _, p := range b.Incoming {
		if p == pred {
			return
		}
	}
	b.Incoming = append(b.Incoming, pred)
}

func (b *BasicBlock) RemoveIncoming(pred *BasicBlock) {
	out := b.Incoming[:0]
	for _, p := range b.Incoming {
		if p != pred {
			out = append(out, p)
		}
	}
	b.Incoming = out
}

// SetBranch wires b's explicit branch edge and keeps the target's Incoming
// set consistent.
func (b *BasicBlock) SetBranch(target *BasicBlock, unconditional bool) {
	if b.Branch != nil && b.Branch != target {
		b.Branch.RemoveIncoming(b)
	}
	b.Branch = target
	b.Unconditional = unconditional
	if target != nil {
		target.AddIncoming(b)
	}
}

// Successors returns the block's CFG successors in (fall-through, branch)
// order, omitting nil entries; when Next and Branch are the same block it
// appears twice.
func (b *BasicBlock) Successors() []*BasicBlock {
	var out []*BasicBlock
	if !b.Unconditional && b.Next != nil {
		out = append(out, b.Next)
	}
	if b.Branch != nil {
		out = append(out, b.Branch)
	}
	return out
}

// Compact removes erased instructions and phis in place, per the
// compaction sweep required by spec.md §4.1.
func (b *BasicBlock) Compact() {
	out := b.Instructions[:0]
	for _, ins := range b.Instructions {
		if !ins.IsErased() {
			out = append(out, ins)
		}
	}
	b.Instructions = out

	outPhis := b.Phis[:0]
	for _, p := range b.Phis {
		if !p.IsErased() {
			outPhis = append(outPhis, p)
		}
	}
	b.Phis = outPhis
}

// Terminator returns the block's last instruction if it is a BR, else nil.
func (b *BasicBlock) Terminator() *Instruction {
	if len(b.Instructions) == 0 {
		return nil
	}
	last := b.Instructions[len(b.Instructions)-1]
	if last.Code == BR {
		return last
	}
	return nil
}

// FlowGraph is the ordered list of basic blocks for one function; the first
// block is the entry (spec.md §3). Block insertion/removal keeps Next/Prev
// and the Blocks slice consistent.
type FlowGraph struct {
	Blocks  []*BasicBlock
	nextID  int
}

func NewFlowGraph() *FlowGraph {
	return &FlowGraph{}
}

func (g *FlowGraph) Entry() *BasicBlock {
	if len(g.Blocks) == 0 {
		return nil
	}
	return g.Blocks[0]
}

// NewBlock allocates a fresh block with a function-unique id; it is not yet
// linked into the graph.
func (g *FlowGraph) NewBlock() *BasicBlock {
	b := newBlock(g.nextID)
	g.nextID++
	return b
}

// Append adds b to the end of the block list, linking it after the current
// last block.
func (g *FlowGraph) Append(b *BasicBlock) {
	if len(g.Blocks) == 0 {
		g.Blocks = append(g.Blocks, b)
		return
	}
	last := g.Blocks[len(g.Blocks)-1]
	last.Next = b
	b.Prev = last
	g.Blocks = append(g.Blocks, b)
}

// InsertAfter splices nb into the textual order immediately after after,
// maintaining Next/Prev links and the Blocks slice order. Callers are
// responsible for wiring nb's own Branch/Incoming edges.
func (g *FlowGraph) InsertAfter(after, nb *BasicBlock) {
	idx := g.indexOf(after)
	if idx < 0 {
		g.Append(nb)
		return
	}
	next := after.Next
	after.Next = nb
	nb.Prev = after
	nb.Next = next
	if next != nil {
		next.Prev = nb
	}
	out := make([]*BasicBlock, 0, len(g.Blocks)+1)
	out = append(out, g.Blocks[:idx+1]...)
	out = append(out, nb)
	out = append(out, g.Blocks[idx+1:]...)
	g.Blocks = out
}

// Remove unlinks bb from the textual order. It does not touch bb's own
// Incoming/Branch state, nor any block that pointed to bb — callers must
// retarget those edges first (e.g. during inlining's block splicing).
func (g *FlowGraph) Remove(bb *BasicBlock) {
	idx := g.indexOf(bb)
	if idx < 0 {
		return
	}
	if bb.Prev != nil {
		bb.Prev.Next = bb.Next
	}
	if bb.Next != nil {
		bb.Next.Prev = bb.Prev
	}
	g.Blocks = append(g.Blocks[:idx], g.Blocks[idx+1:]...)
}

func (g *FlowGraph) indexOf(bb *BasicBlock) int {
	for i, b := range g.Blocks {
		if b == bb {
			return i
		}
	}
	return -1
}

// RecomputeIncoming rebuilds every block's Incoming set from scratch by
// walking each block's Successors(). Structural edits that change many
// edges at once (block splitting, inlining, critical-edge splitting)
// should finish with a single call to this rather than trying to keep
// Incoming incrementally consistent through every intermediate step.
func (g *FlowGraph) RecomputeIncoming() {
	for _, b := range g.Blocks {
		b.Incoming = nil
	}
	for _, b := range g.Blocks {
		for _, s := range b.Successors() {
			s.AddIncoming(b)
		}
	}
}

// ReversePostOrder returns the function's blocks in reverse postorder from
// the entry, which is the order SSA rename, DCE, and register allocation
// all walk (spec.md §5).
func (g *FlowGraph) ReversePostOrder() []*BasicBlock {
	entry := g.Entry()
	if entry == nil {
		return nil
	}
	visited := make(map[*BasicBlock]bool)
	var post []*BasicBlock
	var visit func(b *BasicBlock)
	visit = func(b *BasicBlock) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range b.Successors() {
			visit(s)
		}
		post = append(post, b)
	}
	visit(entry)
	out := make([]*BasicBlock, len(post))
	for i, b := range post {
		out[len(post)-1-i] = b
	}
	return out
}
