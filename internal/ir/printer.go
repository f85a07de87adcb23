package ir

import (
	"fmt"
	"strings"
)

// Printer renders a Function's CFG in a readable three-address form, used
// by tests and diagnostics rather than any downstream consumer.
type Printer struct {
	output strings.Builder
}

func NewPrinter() *Printer { return &Printer{} }

func PrintFunction(f *Function) string {
	p := NewPrinter()
	p.printFunction(f)
	return p.output.String()
}

func (p *Printer) line(format string, args ...interface{}) {
	p.output.WriteString(fmt.Sprintf(format, args...))
	p.output.WriteString("\n")
}

func (p *Printer) printFunction(f *Function) {
	p.line("func %s(%s) -> %s", f.QualifiedName, joinTypes(f.ParamTypes), f.ReturnType)
	for _, b := range f.CFG.Blocks {
		p.printBlock(f, b)
	}
}

func (p *Printer) printBlock(f *Function, b *BasicBlock) {
	preds := make([]string, len(b.Incoming))
	for i, pr := range b.Incoming {
		preds[i] = fmt.Sprintf("bb%d", pr.ID)
	}
	p.line("bb%d: ; preds = %s", b.ID, strings.Join(preds, ", "))
	for _, phi := range b.Phis {
		if phi.IsErased() {
			continue
		}
		var ops []string
		for _, op := range phi.Operands {
			ops = append(ops, fmt.Sprintf("[bb%d: %%%d]", op.Pred.ID, op.Value))
		}
		p.line("  %%%d = phi %s %s", phi.Name, phi.Type, strings.Join(ops, " "))
	}
	for _, ins := range b.Instructions {
		if ins.IsErased() {
			continue
		}
		p.printInstruction(f, ins)
	}
	switch {
	case b.Unconditional && b.Branch != nil:
		p.line("  br bb%d", b.Branch.ID)
	case b.Branch != nil:
		p.line("  br.cond bb%d else bb%d", b.Branch.ID, nextID(b.Next))
	}
}

func nextID(b *BasicBlock) int {
	if b == nil {
		return -1
	}
	return b.ID
}

func (p *Printer) printInstruction(f *Function, ins *Instruction) {
	name := ""
	if ins.Defines() {
		name = fmt.Sprintf("%%%d = ", ins.Name)
	}
	switch ins.Code {
	case CONSTANT:
		p.line("  %s%s %d", name, ins.Code, ins.Aux)
	case PARAM:
		p.line("  %s%s #%d", name, ins.Code, ins.Aux)
	case CALL:
		site := f.CallAt(ins)
		p.line("  %s%s %s/%d", name, ins.Code, site.Callee, site.NumArgs)
	case BR:
		p.line("  %s %s", ins.Code, ins.Predicate())
	default:
		p.line("  %s%s %s, %s", name, ins.Code, operandStr(ins.Left), operandStr(ins.Right))
	}
}

func operandStr(n int) string {
	if n == NoName {
		return "-"
	}
	return fmt.Sprintf("%%%d", n)
}

func joinTypes(ts []Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}
