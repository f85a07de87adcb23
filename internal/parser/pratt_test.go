package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tacc/internal/ast"
)

func parseReturnExpr(t *testing.T, expr string) *ast.BinNode {
	t.Helper()
	prog, err := ParseSource("test.tc", `namespace T { public fun main(): i64 { return `+expr+`; } }`)
	require.NoError(t, err)
	return Rebalance(prog.Namespace.Functions[0].Body.Statements[0].Return.Expr)
}

func TestRebalanceGivesMultiplicationHigherPrecedence(t *testing.T) {
	tree := parseReturnExpr(t, "1 + 2 * 3")
	require.Equal(t, "+", tree.Op)
	assert.Equal(t, "", tree.Left.Op)
	require.Equal(t, "*", tree.Right.Op)
}

func TestRebalanceLeftAssociatesEqualPrecedence(t *testing.T) {
	tree := parseReturnExpr(t, "1 - 2 - 3")
	require.Equal(t, "-", tree.Op)
	require.Equal(t, "-", tree.Left.Op)
	assert.Equal(t, "", tree.Left.Left.Op)
}

func TestRebalanceLogicalOperatorsBindLoosestThanComparisons(t *testing.T) {
	tree := parseReturnExpr(t, "1 < 2 && 3 < 4")
	require.Equal(t, "&&", tree.Op)
	require.Equal(t, "<", tree.Left.Op)
	require.Equal(t, "<", tree.Right.Op)
}
