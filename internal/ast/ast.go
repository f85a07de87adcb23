// Package ast is the typed parse tree internal/grammar's participle parser
// builds directly from struct tags, adapted from kanso-lang-kanso's
// grammar package (which serves the same dual role there). Pos/EndPos/
// Tokens fields are populated automatically by participle; they carry no
// grammar tag of their own.
package ast

import "github.com/alecthomas/participle/v2/lexer"

// PosIdent is an identifier with its source position, used wherever a
// name needs to anchor a diagnostic.
type PosIdent struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Value  string `@Ident`
}

type Program struct {
	Pos       lexer.Position
	EndPos    lexer.Position
	Namespace *Namespace `@@`
}

type Namespace struct {
	Pos       lexer.Position
	EndPos    lexer.Position
	Name      PosIdent      `"namespace" @@ "{"`
	Statics   []*StaticDecl `@@*`
	Functions []*Function   `@@*`
	Close     string        `"}"`
}

// StaticDecl is a namespace-level variable, either locally defined
// ("static NAME: TYPE = EXPR;") or an extern import of one defined
// elsewhere ("static extern NAME: TYPE;").
type StaticDecl struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Extern bool     `"static" [ @"extern" ]`
	Name   PosIdent `@@ ":"`
	Type   *Type    `@@`
	Init   *Expr    `[ "=" @@ ] ";"`
}

type Type struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Name   string `@( "i8" | "i16" | "i32" | "i64" | "u8" | "u16" | "u32" | "u64" | "f32" | "f64" | "bool" | "void" )`
}

// Function is a namespace-level function: an extern function has no body
// (a declaration of a symbol defined elsewhere); visibility defaults to
// private when neither "public" nor "private" is written.
type Function struct {
	Pos       lexer.Position
	EndPos    lexer.Position
	DocBefore *DocComment  `@@?`
	Visibility string      `[ @("public" | "private") ]`
	Extern    bool         `[ @"extern" ]`
	Name      PosIdent     `"fun" @@ "("`
	Params    []*Param     `[ @@ { "," @@ } ] ")"`
	Return    *Type        `[ ":" @@ ]`
	Body      *Block       `( @@ | ";" )`
}

type DocComment struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Text   string `@DocComment`
}

type Param struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Name   PosIdent `@@ ":"`
	Type   *Type    `@@`
}

type Block struct {
	Pos        lexer.Position
	EndPos     lexer.Position
	Statements []*Statement `"{" @@* "}"`
}

// Statement is one of the source language's statement forms; exactly one
// field is non-nil after a successful parse.
type Statement struct {
	Pos      lexer.Position
	EndPos   lexer.Position
	Let      *LetStmt    `  @@`
	Return   *ReturnStmt `| @@`
	If       *IfStmt     `| @@`
	While    *WhileStmt  `| @@`
	For      *ForStmt    `| @@`
	Assign   *AssignStmt `| @@`
	ExprStmt *ExprStmt   `| @@`
}

type LetStmt struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Name   PosIdent `"let" @@`
	Type   *Type    `[ ":" @@ ]`
	Expr   *Expr    `"=" @@ ";"`
}

type AssignStmt struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Target PosIdent `@@ "="`
	Expr   *Expr    `@@ ";"`
}

type ExprStmt struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Expr   *Expr `@@ ";"`
}

type ReturnStmt struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Expr   *Expr `"return" [ @@ ] ";"`
}

type IfStmt struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Cond   *Expr  `"if" "(" @@ ")"`
	Then   *Block `@@`
	Else   *Block `[ "else" @@ ]`
}

type WhileStmt struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Cond   *Expr  `"while" "(" @@ ")"`
	Body   *Block `@@`
}

// ForStmt is desugared by internal/emit into the WhileStmt CFG shape
// (init; while (cond) { body; post; }).
type ForStmt struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Init   *ForInit `"for" "(" @@? ";"`
	Cond   *Expr    `[ @@ ] ";"`
	Post   *ForPost `[ @@ ] ")"`
	Body   *Block   `@@`
}

type ForInit struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Name   PosIdent `"let" @@`
	Type   *Type    `[ ":" @@ ]`
	Expr   *Expr    `"=" @@`
}

type ForPost struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Target PosIdent `@@ "="`
	Expr   *Expr    `@@`
}

// Expr is the logical-or precedence level, the top of the expression
// grammar; lower levels are climbed by internal/parser's Pratt helper
// rather than encoded as further nested grammar types, matching how
// kanso-lang-kanso's BinaryExpr/BinOp flattens precedence into one level
// and lets a post-parse pass (here: emit) apply precedence climbing.
type Expr struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Left   *UnaryExpr `@@`
	Ops    []*BinOp   `{ @@ }`
}

type BinOp struct {
	Pos      lexer.Position
	EndPos   lexer.Position
	Operator string     `@("||" | "&&" | "==" | "!=" | "<=" | ">=" | "<" | ">" | "+" | "-" | "*" | "/" | "%")`
	Right    *UnaryExpr `@@`
}

type UnaryExpr struct {
	Pos      lexer.Position
	EndPos   lexer.Position
	Operator string       `[ @("!" | "-") ]`
	Value    *PostfixExpr `@@`
}

type PostfixExpr struct {
	Pos     lexer.Position
	EndPos  lexer.Position
	Primary *PrimaryExpr `@@`
}

type PrimaryExpr struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Call   *CallExpr `  @@`
	Float  *string   `| @Float`
	Number *string   `| @Integer`
	Bool   *string   `| @( "true" | "false" )`
	Ident  *PosIdent `| @@`
	Parens *Expr     `| "(" @@ ")"`
}

type CallExpr struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Callee PosIdent `@@ "("`
	Args   []*Expr  `[ @@ { "," @@ } ] ")"`
}

// BinNode is the precedence-climbed evaluation tree internal/parser's
// Pratt pass builds from an Expr's flat Left/Ops list (grounded on
// kanso-lang-kanso's internal/parser/parser_pratt.go). A leaf node carries
// Value and has no Op; an interior node carries Op, Left, and Right.
type BinNode struct {
	Pos   lexer.Position
	Op    string
	Left  *BinNode
	Right *BinNode
	Value *UnaryExpr
}
