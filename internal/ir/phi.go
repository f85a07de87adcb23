package ir

// PhiOperand pairs an incoming value with the predecessor block it flows
// from. Operand order is kept aligned with BasicBlock.Incoming by position
// (spec.md §3, §5).
type PhiOperand struct {
	Value int
	Pred  *BasicBlock
}

// Phi is the pseudo-instruction at a join point described in spec.md §3.
// Invariant: len(Operands) == len(block.Incoming), and operand k
// corresponds to block.Incoming[k].
type Phi struct {
	Name     int
	Type     Type
	Operands []PhiOperand
}

func NewPhi(name int, typ Type) *Phi {
	return &Phi{Name: name, Type: typ}
}

func (p *Phi) IsErased() bool { return p.Name == NoName }

func (p *Phi) Erase() { p.Name = NoName }

// OperandFor returns the incoming value from pred, and whether it was
// found.
func (p *Phi) OperandFor(pred *BasicBlock) (int, bool) {
	for _, op := range p.Operands {
		if op.Pred == pred {
			return op.Value, true
		}
	}
	return NoName, false
}

// SetOperandFor overwrites (or appends, if absent) the operand for pred.
func (p *Phi) SetOperandFor(pred *BasicBlock, value int) {
	for i := range p.Operands {
		if p.Operands[i].Pred == pred {
			p.Operands[i].Value = value
			return
		}
	}
	p.Operands = append(p.Operands, PhiOperand{Value: value, Pred: pred})
}

// ReplaceOperand rewrites every occurrence of old among this phi's operand
// values with fresh.
func (p *Phi) ReplaceOperand(old, fresh int) {
	for i := range p.Operands {
		if p.Operands[i].Value == old {
			p.Operands[i].Value = fresh
		}
	}
}

// Names returns every operand value in operand order, duplicates
// included, for use by phi-web construction.
func (p *Phi) Names() []int {
	names := make([]int, len(p.Operands))
	for i, op := range p.Operands {
		names[i] = op.Value
	}
	return names
}
