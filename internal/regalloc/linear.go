package regalloc

import (
	"tacc/internal/analysis"
	"tacc/internal/ir"
)

// LinearAllocator is the single-pass, expiry-driven allocator of spec.md
// §4.13, grounded on original_source/src/core/poRegLinear.cpp. It walks
// the function as one linear sequence in block order; at each position
// it frees any register whose occupant has expired, assigns a free
// register to each newly defined name, and otherwise spills whichever
// resident's next use is farthest away.
type LinearAllocator struct {
	GPRCount int
	SSECount int
}

func NewLinearAllocator(gprCount, sseCount int) *LinearAllocator {
	return &LinearAllocator{GPRCount: gprCount, SSECount: sseCount}
}

type regSlot struct {
	occupant int // name, or ir.NoName if free
	expiry   int // position after which this register is free
}

type linearBank struct {
	class Class
	regs  []regSlot
	asn   *Assignment
	uses  *analysis.Uses
	slots *StackSlotAllocator
}

func newLinearBank(class Class, n int, uses *analysis.Uses, slots *StackSlotAllocator) *linearBank {
	regs := make([]regSlot, n)
	for i := range regs {
		regs[i].occupant = ir.NoName
	}
	return &linearBank{class: class, regs: regs, asn: newAssignment(class), uses: uses, slots: slots}
}

// expireAt frees any register whose occupant's live range ended at or
// before pos.
func (b *linearBank) expireAt(live *analysis.Liveness, pos int) {
	for i := range b.regs {
		if b.regs[i].occupant == ir.NoName {
			continue
		}
		if b.regs[i].expiry <= pos {
			b.regs[i].occupant = ir.NoName
		}
	}
}

func (b *linearBank) freeRegister() (int, bool) {
	for i := range b.regs {
		if b.regs[i].occupant == ir.NoName {
			return i, true
		}
	}
	return -1, false
}

// farthestNextUse picks the resident register whose occupant's next use
// (strictly after pos) is latest, spilling it to make room.
func (b *linearBank) farthestNextUse(pos int) int {
	best, bestNext := -1, pos
	for i := range b.regs {
		if b.regs[i].occupant == ir.NoName {
			continue
		}
		next, ok := b.uses.FindNextUse(b.regs[i].occupant, pos+1)
		nextPos := next.AbsolutePos
		if !ok {
			nextPos = 1 << 30 // never used again: the ideal spill victim
		}
		if best == -1 || nextPos > bestNext {
			best, bestNext = i, nextPos
		}
	}
	return best
}

// assign binds name to a register at pos, spilling an existing occupant
// when every register of this class is busy.
func (b *linearBank) assign(name, pos, size int) int {
	if reg, ok := b.freeRegister(); ok {
		b.regs[reg] = regSlot{occupant: name, expiry: b.asn.spillEnd(name, pos)}
		b.asn.setHome(name, reg)
		return reg
	}
	victimReg := b.farthestNextUse(pos)
	victim := b.regs[victimReg].occupant
	b.spill(victim, victimReg, pos, size)
	b.regs[victimReg] = regSlot{occupant: name, expiry: -1}
	b.asn.setHome(name, victimReg)
	return victimReg
}

func (b *linearBank) spill(victim, reg, pos, size int) {
	b.asn.setSpillPos(victim, pos)
	slot := b.slots.AllocateSlot(victim, size)
	b.asn.setSlot(victim, slot)
	b.asn.addSpillSite(victim, pos)
	for {
		ref, ok := b.uses.FindNextUse(victim, pos+1)
		if !ok {
			break
		}
		b.asn.addRestore(victim, ref.AbsolutePos, reg)
		pos = ref.AbsolutePos
	}
}

// spillEnd is a placeholder satisfied trivially: a freshly homed
// register's occupant isn't known to expire until liveness says so; the
// caller overwrites Assignment.home's expiry bookkeeping via the bank's
// own regSlot, so this just returns a sentinel far in the future and the
// real expiry is set by the caller from the liveness range.
func (a *Assignment) spillEnd(name, pos int) int { return 1 << 30 }

// Allocate runs the linear allocator over fn and returns one Assignment
// per register class, plus the stack slot allocator any spills were made
// against (x86.Lower needs this exact instance to resolve spill offsets).
func (alloc *LinearAllocator) Allocate(fn *ir.Function) (gpr, sse *Assignment, slots *StackSlotAllocator) {
	uses := analysis.ComputeUses(fn)
	live := analysis.ComputeLiveness(fn)
	slots = NewStackSlotAllocator()

	gprBank := newLinearBank(GPR, alloc.GPRCount, uses, slots)
	sseBank := newLinearBank(SSE, alloc.SSECount, uses, slots)
	bankFor := func(c Class) *linearBank {
		if c == SSE {
			return sseBank
		}
		return gprBank
	}

	// pos must stay aligned with analysis.ComputeUses's AbsolutePos
	// numbering (one position per phi, then one per instruction) since
	// FindNextUse and RangeOf are both keyed by that scheme.
	pos := 0
	for _, b := range fn.CFG.Blocks {
		for _, p := range b.Phis {
			if p.IsErased() {
				pos++
				continue
			}
			bank := bankFor(ClassOf(p.Type))
			bank.expireAt(live, pos)
			reg := bank.assign(p.Name, pos, p.Type.Width())
			bank.regs[reg].expiry = live.RangeOf(p.Name).End
			pos++
		}
		for _, ins := range b.Instructions {
			if ins.IsErased() {
				pos++
				continue
			}
			for _, bank := range []*linearBank{gprBank, sseBank} {
				bank.expireAt(live, pos)
			}
			if ins.Defines() {
				bank := bankFor(ClassOf(ins.Type))
				reg := bank.assign(ins.Name, pos, ins.Type.Width())
				bank.regs[reg].expiry = live.RangeOf(ins.Name).End
			}
			pos++
		}
	}

	return gprBank.asn, sseBank.asn, slots
}
