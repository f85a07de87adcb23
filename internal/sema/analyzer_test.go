package sema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tacc/internal/ir"
	"tacc/internal/parser"
)

func checkSource(t *testing.T, src string) (*CheckedProgram, []error) {
	t.Helper()
	prog, err := parser.ParseSource("test.tc", src)
	require.NoError(t, err)

	mod := ir.NewModule()
	analyzer := NewAnalyzer(mod, "test.tc")
	checked, errs := analyzer.Analyze(prog)

	generic := make([]error, len(errs))
	for i, e := range errs {
		generic[i] = e
	}
	return checked, generic
}

func TestAnalyzeAcceptsWellTypedProgram(t *testing.T) {
	checked, errs := checkSource(t, `
		namespace T {
			public fun add(a: i64, b: i64): i64 {
				return a + b;
			}
			public fun main(): i64 {
				let x: i64 = add(3, 4);
				return x;
			}
		}
	`)
	assert.Empty(t, errs)
	require.Len(t, checked.Functions, 2)
	assert.Equal(t, "T::add", checked.Functions[0].Qualified)
	assert.Equal(t, "T::main", checked.Functions[1].Qualified)
}

func TestAnalyzeReportsUndefinedCall(t *testing.T) {
	_, errs := checkSource(t, `
		namespace T {
			public fun main(): i64 {
				return missing(1);
			}
		}
	`)
	require.NotEmpty(t, errs)
}

func TestAnalyzeReportsTypeMismatch(t *testing.T) {
	_, errs := checkSource(t, `
		namespace T {
			public fun main(): bool {
				return 1;
			}
		}
	`)
	require.NotEmpty(t, errs)
}

func TestAnalyzeRegistersGlobalsAsSymbolGlobal(t *testing.T) {
	checked, errs := checkSource(t, `
		namespace T {
			static counter: i64 = 1;
			public fun main(): i64 {
				return counter;
			}
		}
	`)
	assert.Empty(t, errs)
	sym := checked.GlobalScope.Lookup("counter")
	require.NotNil(t, sym)
	assert.Equal(t, SymbolGlobal, sym.Kind)
}
