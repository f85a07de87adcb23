package ir

// Code is the operation selector carried by every Instruction. The set is
// closed and partitions into data, arithmetic, conversion, memory, and
// control operations, matching spec.md §3.
type Code int

const (
	// Data
	CONSTANT Code = iota
	PARAM
	PHI // phis are modeled as a distinct type (Phi), this tag exists only
	// so Code.String() and switch statements over instruction kinds stay
	// exhaustive; no Instruction is ever constructed with Code == PHI.
	COPY

	// Arithmetic
	ADD
	SUB
	MUL
	DIV
	AND
	OR
	UNARY_MINUS
	LEFT_SHIFT
	RIGHT_SHIFT
	MODULO

	// Conversions
	SIGN_EXTEND
	ZERO_EXTEND
	BITWISE_CAST
	CONVERT

	// Memory
	ALLOCA
	MALLOC
	LOAD
	STORE
	PTR
	ELEMENT_PTR
	LOAD_GLOBAL
	STORE_GLOBAL

	// Control
	CMP
	BR
	CALL
	ARG
	RETURN
)

var codeNames = map[Code]string{
	CONSTANT: "CONSTANT", PARAM: "PARAM", PHI: "PHI", COPY: "COPY",
	ADD: "ADD", SUB: "SUB", MUL: "MUL", DIV: "DIV", AND: "AND", OR: "OR",
	UNARY_MINUS: "UNARY_MINUS", LEFT_SHIFT: "LEFT_SHIFT", RIGHT_SHIFT: "RIGHT_SHIFT",
	MODULO: "MODULO", SIGN_EXTEND: "SIGN_EXTEND", ZERO_EXTEND: "ZERO_EXTEND",
	BITWISE_CAST: "BITWISE_CAST", CONVERT: "CONVERT", ALLOCA: "ALLOCA",
	MALLOC: "MALLOC", LOAD: "LOAD", STORE: "STORE", PTR: "PTR",
	ELEMENT_PTR: "ELEMENT_PTR", LOAD_GLOBAL: "LOAD_GLOBAL", STORE_GLOBAL: "STORE_GLOBAL",
	CMP: "CMP", BR: "BR", CALL: "CALL", ARG: "ARG", RETURN: "RETURN",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "UNKNOWN"
}

// IsSpecial reports whether left/right are names or an aux index, per
// spec.md §3: CONSTANT, CALL, BR, PARAM, ALLOCA, and MALLOC repurpose
// left/right as aux indices rather than SSA names.
func (c Code) IsSpecial() bool {
	switch c {
	case CONSTANT, CALL, BR, PARAM, ALLOCA, MALLOC:
		return true
	default:
		return false
	}
}

// HasSideEffect reports whether the DCE root set seeds from this
// instruction's operands (spec.md §4.10).
func (c Code) HasSideEffect() bool {
	switch c {
	case CMP, RETURN, ARG, BR, LOAD, STORE, CALL:
		return true
	default:
		return false
	}
}

// Predicate selects the branch kind of a BR instruction.
type Predicate int

const (
	Unconditional Predicate = iota
	Equals
	NotEquals
	Less
	Greater
	GreaterEquals
	LessEquals
)

var predicateNames = map[Predicate]string{
	Unconditional: "UNCONDITIONAL", Equals: "EQUALS", NotEquals: "NOT_EQUALS",
	Less: "LESS", Greater: "GREATER", GreaterEquals: "GREATER_EQUALS",
	LessEquals: "LESS_EQUALS",
}

func (p Predicate) String() string {
	if s, ok := predicateNames[p]; ok {
		return s
	}
	return "UNKNOWN"
}

// Negate returns the predicate for the logically negated condition, used by
// the front end when desugaring `if (!cond)` and loop exit tests.
func (p Predicate) Negate() Predicate {
	switch p {
	case Equals:
		return NotEquals
	case NotEquals:
		return Equals
	case Less:
		return GreaterEquals
	case GreaterEquals:
		return Less
	case Greater:
		return LessEquals
	case LessEquals:
		return Greater
	default:
		return p
	}
}
