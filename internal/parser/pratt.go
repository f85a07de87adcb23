package parser

import "tacc/internal/ast"

// binaryPrecedence mirrors kanso-lang-kanso's internal/parser/parser_pratt.go
// precedence table; logical operators bind loosest, multiplicative tightest.
var binaryPrecedence = map[string]int{
	"||": 1,
	"&&": 2,
	"==": 3, "!=": 3,
	"<": 4, "<=": 4, ">": 4, ">=": 4,
	"+": 5, "-": 5,
	"*": 6, "/": 6, "%": 6,
}

// Rebalance turns e's flat Left/Ops list (the shape internal/grammar's
// participle rules produce, since participle can't climb precedence
// itself) into a proper binary evaluation tree, by replaying the flat
// operator sequence through a standard precedence-climbing pass.
func Rebalance(e *ast.Expr) *ast.BinNode {
	ops := make([]*ast.BinOp, len(e.Ops))
	copy(ops, e.Ops)
	node := &ast.BinNode{Pos: e.Left.Pos, Value: e.Left}
	node, _ = climb(node, ops, 0)
	return node
}

func climb(left *ast.BinNode, ops []*ast.BinOp, minPrec int) (*ast.BinNode, []*ast.BinOp) {
	for len(ops) > 0 {
		prec, ok := binaryPrecedence[ops[0].Operator]
		if !ok || prec < minPrec {
			break
		}
		op := ops[0]
		ops = ops[1:]
		right := &ast.BinNode{Pos: op.Right.Pos, Value: op.Right}
		for len(ops) > 0 {
			nextPrec, ok := binaryPrecedence[ops[0].Operator]
			if !ok || nextPrec <= prec {
				break
			}
			right, ops = climb(right, ops, prec+1)
		}
		left = &ast.BinNode{Pos: left.Pos, Op: op.Operator, Left: left, Right: right}
	}
	return left, ops
}
