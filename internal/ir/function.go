package ir

// Attr is a bitmask of function attributes (spec.md §3).
type Attr int

const (
	AttrExtern Attr = 1 << iota
	AttrPublic
	AttrPrivate
)

func (a Attr) Has(f Attr) bool { return a&f != 0 }

// CallingConvention selects the ABI register assignment used by §4.16's
// x86-64 lowering.
type CallingConvention int

const (
	SystemV CallingConvention = iota
	Windows
)

// Function owns one FlowGraph and is itself owned by a Module.
type Function struct {
	Name          string
	QualifiedName string
	Arity         int
	Attributes    Attr
	Convention    CallingConvention
	CFG           *FlowGraph
	ParamTypes    []Type
	ReturnType    Type
	Inlinable     bool

	// Calls is the aux table CALL instructions index into via
	// Instruction.Aux.
	Calls []CallSite
}

func NewFunction(name, qualified string) *Function {
	return &Function{
		Name:          name,
		QualifiedName: qualified,
		CFG:           NewFlowGraph(),
	}
}

// AddCall interns a call site and returns its aux index.
func (f *Function) AddCall(site CallSite) int64 {
	f.Calls = append(f.Calls, site)
	return int64(len(f.Calls) - 1)
}

func (f *Function) CallAt(ins *Instruction) CallSite {
	return f.Calls[ins.Aux]
}

// InstructionCount totals instructions across all blocks, used by the
// inliner's size threshold (spec.md §4.12).
func (f *Function) InstructionCount() int {
	n := 0
	for _, b := range f.CFG.Blocks {
		n += len(b.Instructions)
	}
	return n
}

// Blocks is shorthand for f.CFG.Blocks.
func (f *Function) Blocks() []*BasicBlock { return f.CFG.Blocks }

// AllInstructions returns every instruction (not phis; see AllPhis) in the
// function, used by passes that need to visit every def regardless of order.
func (f *Function) AllInstructions() []*Instruction {
	var out []*Instruction
	for _, b := range f.CFG.Blocks {
		out = append(out, b.Instructions...)
	}
	return out
}

func (f *Function) AllPhis() []*Phi {
	var out []*Phi
	for _, b := range f.CFG.Blocks {
		out = append(out, b.Phis...)
	}
	return out
}

// FindDef returns the instruction or phi defining name, and the block it
// lives in.
func (f *Function) FindDef(name int) (*Instruction, *Phi, *BasicBlock) {
	for _, b := range f.CFG.Blocks {
		for _, p := range b.Phis {
			if p.Name == name {
				return nil, p, b
			}
		}
		for _, ins := range b.Instructions {
			if ins.Name == name {
				return ins, nil, b
			}
		}
	}
	return nil, nil, nil
}
