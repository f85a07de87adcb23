package ir

// Instruction is the three-address record described in spec.md §3:
// {name, type, left, right, code} plus a single aux payload that stands in
// for the constant/memOffset/param/alloca/call index the spec describes as
// a union. Name is the SSA value id; -1 means erased (spec.md §4.1).
//
// Operand interpretation depends on Code:
//
//	CONSTANT     Aux = index into Module.Constants
//	PARAM        Aux = parameter index
//	COPY         Left = source name
//	ADD..MODULO  Left, Right = operand names
//	UNARY_MINUS  Left = operand name
//	SIGN_EXTEND, ZERO_EXTEND, BITWISE_CAST, CONVERT
//	             Left = source name; Type is the target type
//	ALLOCA       Aux = size in bytes of the allocated slot; Type is a
//	             pointer to the allocated element type
//	MALLOC       Left = name of the size operand
//	LOAD         Left = pointer name
//	STORE        Left = pointer name, Right = value name
//	PTR          Left = base pointer name, Aux = static byte offset
//	ELEMENT_PTR  Left = base pointer name, Right = index name,
//	             Aux = element size in bytes
//	LOAD_GLOBAL  Aux = index into Module.Globals
//	STORE_GLOBAL Aux = index into Module.Globals, Right = value name
//	CMP          Left, Right = compared operand names; no result name
//	             (DCE seeds from Left/Right directly; see spec.md §4.10)
//	BR           Aux = Predicate; branch target(s) live on BasicBlock,
//	             not on the instruction
//	CALL         Aux = index into Function.Calls
//	ARG          Left = name of the next argument value, in push order
//	RETURN       Left = name of the returned value, or -1 for void
type Instruction struct {
	Name  int
	Type  Type
	Left  int
	Right int
	Code  Code
	Aux   int64
}

const NoName = -1

// canDefine reports whether this instruction's opcode is ever capable of
// producing a result name. BR, CMP, STORE, STORE_GLOBAL, RETURN, and ARG
// never are — their Name field is always NoName by convention, which is
// not the same thing as having been erased.
func (i *Instruction) canDefine() bool {
	switch i.Code {
	case BR, CMP, STORE, STORE_GLOBAL, RETURN, ARG:
		return false
	default:
		return true
	}
}

// IsErased reports whether a DCE-eligible instruction's result was erased.
// Opcodes that never define a name (see canDefine) are never "erased" by
// this check, even though their Name field is permanently NoName: letting
// Name==NoName mean erased for them would make Compact strip every CMP,
// BR, RETURN, ARG, and STORE the first time any pass ran.
func (i *Instruction) IsErased() bool { return i.canDefine() && i.Name == NoName }

func (i *Instruction) Erase() { i.Name = NoName }

// Defines reports whether this instruction produces a usable SSA name.
// BR and CMP never define a name; STORE/STORE_GLOBAL/RETURN/ARG do not
// either.
func (i *Instruction) Defines() bool {
	return i.canDefine() && i.Name != NoName
}

// Predicate reinterprets Aux for a BR instruction.
func (i *Instruction) Predicate() Predicate {
	return Predicate(i.Aux)
}

// Operands returns the names this instruction reads, skipping -1 slots and
// the aux-repurposed fields of special instructions (except CMP/STORE/
// ELEMENT_PTR/ARG/RETURN/MALLOC, which read real names despite being
// special or side-effecting).
func (i *Instruction) Operands() []int {
	var ops []int
	add := func(n int) {
		if n != NoName {
			ops = append(ops, n)
		}
	}
	switch i.Code {
	case CONSTANT, PARAM, ALLOCA:
		// left/right are not names
	case BR:
		// predicate lives in Aux, not an operand name
	case CALL:
		// callee arguments are separate ARG instructions
	case MALLOC:
		add(i.Left)
	case COPY, UNARY_MINUS, SIGN_EXTEND, ZERO_EXTEND, BITWISE_CAST, CONVERT, LOAD, ARG, RETURN:
		add(i.Left)
	case STORE:
		add(i.Left)
		add(i.Right)
	case PTR:
		add(i.Left)
	case ELEMENT_PTR:
		add(i.Left)
		add(i.Right)
	case LOAD_GLOBAL:
		// no name operands
	case STORE_GLOBAL:
		add(i.Right)
	case CMP:
		add(i.Left)
		add(i.Right)
	default: // arithmetic binary ops
		add(i.Left)
		add(i.Right)
	}
	return ops
}

// ReplaceOperand rewrites every occurrence of old with fresh among this
// instruction's name operands. Used by copy propagation, inlining, and
// destruct rewrites.
func (i *Instruction) ReplaceOperand(old, fresh int) {
	switch i.Code {
	case CONSTANT, PARAM, ALLOCA, BR, CALL, LOAD_GLOBAL:
		return
	}
	if i.Left == old {
		i.Left = fresh
	}
	if i.Right == old {
		i.Right = fresh
	}
}

// RenameOperands applies f to every name-operand slot this instruction
// reads (the same slots Operands reports), in place. SSA construct and
// reconstruct use this to rewrite pre-SSA variable ids into fresh SSA
// names without hand-rolling the per-opcode slot selection twice.
func (i *Instruction) RenameOperands(f func(int) int) {
	switch i.Code {
	case CONSTANT, PARAM, ALLOCA, BR, CALL, LOAD_GLOBAL:
		return
	case MALLOC, COPY, UNARY_MINUS, SIGN_EXTEND, ZERO_EXTEND, BITWISE_CAST, CONVERT, LOAD, ARG, RETURN, PTR:
		if i.Left != NoName {
			i.Left = f(i.Left)
		}
	case STORE, ELEMENT_PTR, CMP:
		if i.Left != NoName {
			i.Left = f(i.Left)
		}
		if i.Right != NoName {
			i.Right = f(i.Right)
		}
	case STORE_GLOBAL:
		if i.Right != NoName {
			i.Right = f(i.Right)
		}
	default:
		if i.Left != NoName {
			i.Left = f(i.Left)
		}
		if i.Right != NoName {
			i.Right = f(i.Right)
		}
	}
}

// CallSite is the aux payload for a CALL instruction.
type CallSite struct {
	Callee  string
	NumArgs int
}
