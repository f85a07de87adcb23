// Package parser turns a parse error from internal/grammar into a
// diag.CompilerError, the same seam kanso-lang-kanso's internal/parser
// package occupies between grammar.KansoLexer/participle and the rest of
// the compiler.
package parser

import (
	"os"

	"github.com/alecthomas/participle/v2/lexer"

	"tacc/internal/ast"
	"tacc/internal/diag"
	"tacc/internal/grammar"
)

// positioned is implemented by participle's parse errors.
type positioned interface {
	Position() lexer.Position
	Message() string
}

func ParseFile(path string) (*ast.Program, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, diag.CompilerError{
			Level:   diag.Error,
			Code:    diag.ParseUnexpectedTok,
			Phase:   "parse",
			Message: "cannot read source file: " + err.Error(),
		}
	}
	return ParseSource(path, string(source))
}

func ParseSource(sourceName, source string) (*ast.Program, error) {
	prog, err := grammar.Parse(sourceName, source)
	if err == nil {
		return prog, nil
	}
	if pe, ok := err.(positioned); ok {
		pos := pe.Position()
		return nil, diag.CompilerError{
			Level:   diag.Error,
			Code:    diag.ParseUnexpectedTok,
			Phase:   "parse",
			Message: pe.Message(),
			Position: diag.Position{
				File:   sourceName,
				Line:   pos.Line,
				Column: pos.Column,
			},
			Length: 1,
		}
	}
	return nil, diag.CompilerError{
		Level:   diag.Error,
		Code:    diag.ParseExpected,
		Phase:   "parse",
		Message: err.Error(),
		Position: diag.Position{
			File: sourceName,
		},
	}
}
