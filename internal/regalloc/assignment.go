// Package regalloc implements the linear and graph-coloring register
// allocators and the stack-slot allocator they share (spec.md C13-C15),
// grounded on original_source/src/core/poRegLinear.cpp and
// poRegGraph.cpp.
package regalloc

import "tacc/internal/ir"

// Class is the ABI register class a value belongs to (spec.md glossary:
// "ABI register class").
type Class int

const (
	GPR Class = iota
	SSE
)

// ClassOf infers a value's register class from its IR type.
func ClassOf(t ir.Type) Class {
	if t.IsSSEClass() {
		return SSE
	}
	return GPR
}

// Assignment is the allocator output both C13 and C14 produce, unified
// into one representation per spec.md §9's open question ("implementers
// should unify the representation so lowering does not branch on
// allocator identity"). A name is either register-resident for its
// entire life (Home != -1, SpillPos == -1), evicted partway through
// (Home != -1 up to SpillPos, then live only in its stack slot except at
// discrete restore points), or spilled from the moment of definition
// (Home == -1, restored at each use).
type Assignment struct {
	class Class

	home     map[int]int // name -> register, for its register-resident span
	spillPos map[int]int // name -> position it was evicted at, or absent
	slot     map[int]int // name -> stack slot id, for any spilled name
	restore  map[int]map[int]int // name -> position -> register reloaded into
	spillAt  map[int]map[int]bool // name -> set of positions a spill-store happens at
	touched  map[int]bool
}

func newAssignment(class Class) *Assignment {
	return &Assignment{
		class:    class,
		home:     map[int]int{},
		spillPos: map[int]int{},
		slot:     map[int]int{},
		restore:  map[int]map[int]int{},
		spillAt:  map[int]map[int]bool{},
		touched:  map[int]bool{},
	}
}

func (a *Assignment) setHome(name, reg int) {
	a.home[name] = reg
	a.touched[reg] = true
}

func (a *Assignment) setSpillPos(name, pos int) { a.spillPos[name] = pos }

func (a *Assignment) setSlot(name, slot int) { a.slot[name] = slot }

func (a *Assignment) addRestore(name, pos, reg int) {
	if a.restore[name] == nil {
		a.restore[name] = map[int]int{}
	}
	a.restore[name][pos] = reg
	a.touched[reg] = true
}

func (a *Assignment) addSpillSite(name, pos int) {
	if a.spillAt[name] == nil {
		a.spillAt[name] = map[int]bool{}
	}
	a.spillAt[name][pos] = true
}

// RegisterByVariable implements the query described in spec.md §4.14:
// a colored/resident register at pos, else a restore record at pos,
// else -1 ("a name that neither has a color nor a live spill/restore at
// that position").
func (a *Assignment) RegisterByVariable(name, pos int) (int, bool) {
	if reg, ok := a.home[name]; ok {
		if sp, spilled := a.spillPos[name]; !spilled || pos < sp {
			return reg, true
		}
	}
	if m, ok := a.restore[name]; ok {
		if reg, ok := m[pos]; ok {
			return reg, true
		}
	}
	return -1, false
}

// IsSpilled reports whether name was ever evicted to a stack slot.
func (a *Assignment) IsSpilled(name int) bool {
	_, ok := a.spillPos[name]
	if ok {
		return true
	}
	_, homeless := a.home[name]
	_, hasSlot := a.slot[name]
	return !homeless && hasSlot
}

// SlotOf returns the stack slot backing a spilled name.
func (a *Assignment) SlotOf(name int) (int, bool) {
	s, ok := a.slot[name]
	return s, ok
}

// SpillsAt reports whether a spill-store to name's slot must be emitted
// immediately after the instruction at pos.
func (a *Assignment) SpillsAt(name, pos int) bool {
	return a.spillAt[name] != nil && a.spillAt[name][pos]
}

// TouchedRegisters returns every physical register this assignment used,
// for the prologue/epilogue callee-saved bookkeeping in §4.16.
func (a *Assignment) TouchedRegisters() []int {
	out := make([]int, 0, len(a.touched))
	for r := range a.touched {
		out = append(out, r)
	}
	return out
}

// Class reports which ABI register class this assignment covers; the
// lowerer runs one allocation per class (spec.md §4.13, §4.14 both speak
// of "the register... of the appropriate class").
func (a *Assignment) Class() Class { return a.class }
