// Package grammar builds the participle parser over internal/ast's
// struct-tag grammar and internal/lexer's stateful token rules, exactly as
// kanso-lang-kanso's grammar package wires lexer.MustStateful output into
// participle.Build.
package grammar

import (
	"fmt"

	"github.com/alecthomas/participle/v2"

	"tacc/internal/ast"
	"tacc/internal/lexer"
)

var parser = buildParser()

func buildParser() *participle.Parser[ast.Program] {
	p, err := participle.Build[ast.Program](
		participle.Lexer(lexer.Rules),
		participle.Elide("Whitespace", "Comment"),
		participle.UseLookahead(3),
	)
	if err != nil {
		panic(fmt.Errorf("failed to build parser: %w", err))
	}
	return p
}

// Parse runs the grammar over source, tagging any error with sourceName.
func Parse(sourceName, source string) (*ast.Program, error) {
	return parser.ParseString(sourceName, source)
}
