// Package lexer builds the participle stateful lexer used by
// internal/grammar, adapted from kanso-lang-kanso's grammar/lexer.go.
package lexer

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// Rules is the token-rule table. Order matters within a state: participle
// tries each rule in turn and takes the first match.
var Rules = lexer.MustStateful(lexer.Rules{
	"Root": {
		{"DocComment", `///[^\n]*`, nil},
		{"Comment", `//[^\n]*`, nil},

		{"Float", `[0-9]+\.[0-9]+`, nil},
		{"Integer", `0x[0-9a-fA-F]+|[0-9]+`, nil},

		{"Ident", `[a-zA-Z_][a-zA-Z0-9_]*`, nil},

		// Multi-character operators must be tried before their
		// single-character prefixes.
		{"Operator", `(&&|\|\||==|!=|<=|>=|::|[-+*/%=<>!&:,;(){}])`, nil},

		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})
