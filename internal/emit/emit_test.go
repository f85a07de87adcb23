package emit

import (
	"testing"

	"tacc/internal/ir"
	"tacc/internal/parser"
	"tacc/internal/sema"
	"tacc/internal/ssa"
)

func lower(t *testing.T, src string) (*ir.Module, *sema.CheckedProgram) {
	t.Helper()
	prog, err := parser.ParseSource("test.tc", src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	mod := ir.NewModule()
	checked, errs := sema.NewAnalyzer(mod, "test.tc").Analyze(prog)
	if len(errs) > 0 {
		t.Fatalf("type check: %v", errs[0])
	}
	construct := func(m *ir.Module, fn *ir.Function) {
		m.ReserveNames(fn)
		ssa.Construct(m, fn)
	}
	Program(mod, checked, ir.SystemV, construct)
	return mod, checked
}

func TestProgramLowersArithmeticAndReturn(t *testing.T) {
	mod, _ := lower(t, `
		namespace T {
			public fun main(): i64 {
				let x: i64 = 5;
				x = x * 5 + 10;
				return x;
			}
		}
	`)
	fn := mod.FindFunction("T::main")
	if fn == nil {
		t.Fatal("expected T::main to be lowered")
	}
	var sawReturn bool
	for _, b := range fn.CFG.Blocks {
		for _, ins := range b.Instructions {
			if ins.Code == ir.RETURN {
				sawReturn = true
			}
		}
	}
	if !sawReturn {
		t.Fatal("expected a RETURN instruction somewhere in main")
	}
}

func TestProgramLowersCallWithArgsBeforeCall(t *testing.T) {
	mod, _ := lower(t, `
		namespace T {
			public fun add(a: i64, b: i64): i64 {
				return a + b;
			}
			public fun main(): i64 {
				return add(3, 4);
			}
		}
	`)
	fn := mod.FindFunction("T::main")
	if fn == nil {
		t.Fatal("expected T::main to be lowered")
	}
	var callIdx = -1
	var argsSeenBeforeCall int
	for _, b := range fn.CFG.Blocks {
		for i, ins := range b.Instructions {
			if ins.Code == ir.ARG {
				argsSeenBeforeCall++
			}
			if ins.Code == ir.CALL {
				callIdx = i
			}
		}
	}
	if callIdx == -1 {
		t.Fatal("expected a CALL instruction lowering add(3, 4)")
	}
	if argsSeenBeforeCall != 2 {
		t.Fatalf("expected 2 ARG instructions ahead of the call, got %d", argsSeenBeforeCall)
	}
}

// TestProgramLowersShortCircuitBoolWithoutMaterializingInCondition checks
// that a boolean expression used directly as an if-condition lowers to
// CMP+BR with no intervening materialized value (the "jumping code"
// path), by confirming there is no CONSTANT writing a bool value ahead of
// the branch for a simple relational condition.
func TestProgramLowersShortCircuitBoolWithoutMaterializingInCondition(t *testing.T) {
	mod, _ := lower(t, `
		namespace T {
			public fun main(): i64 {
				let x: i64 = 5;
				if (x > 0 && x < 10) {
					return 1;
				}
				return 0;
			}
		}
	`)
	fn := mod.FindFunction("T::main")
	if fn == nil {
		t.Fatal("expected T::main to be lowered")
	}
	var cmpCount int
	for _, b := range fn.CFG.Blocks {
		for _, ins := range b.Instructions {
			if ins.Code == ir.CMP {
				cmpCount++
			}
			if ins.Code == ir.CONSTANT && ins.Type.Kind == ir.Bool {
				t.Fatalf("expected no bool CONSTANT in a relational if-condition, found one in block %d", b.ID)
			}
		}
	}
	if cmpCount < 2 {
		t.Fatalf("expected at least 2 CMPs for the && condition, got %d", cmpCount)
	}
}

func TestProgramMaterializesBoolAssignedToVariable(t *testing.T) {
	mod, _ := lower(t, `
		namespace T {
			public fun main(): i64 {
				let x: i64 = 5;
				let ok: bool = x == 5;
				if (ok) {
					return 1;
				}
				return 0;
			}
		}
	`)
	fn := mod.FindFunction("T::main")
	if fn == nil {
		t.Fatal("expected T::main to be lowered")
	}
	var sawBoolConstant bool
	for _, b := range fn.CFG.Blocks {
		for _, ins := range b.Instructions {
			if ins.Code == ir.CONSTANT && ins.Type.Kind == ir.Bool {
				sawBoolConstant = true
			}
		}
	}
	if !sawBoolConstant {
		t.Fatal("expected a materialized bool CONSTANT for `let ok: bool = x == 5;`")
	}
}

func TestProgramFoldsLiteralGlobalInitializer(t *testing.T) {
	mod, _ := lower(t, `
		namespace T {
			static counter: i64 = 42;
			public fun main(): i64 {
				return counter;
			}
		}
	`)
	if len(mod.Globals) != 1 {
		t.Fatalf("expected 1 global, got %d", len(mod.Globals))
	}
	g := mod.Globals[0]
	if g.InitRef < 0 {
		t.Fatal("expected a non-extern global to have a folded InitRef")
	}
	c := mod.Constants.Get(g.InitRef)
	if c.IntBits != 42 {
		t.Fatalf("folded constant = %d, want 42", c.IntBits)
	}
}
