// Package diag formats and reports compiler errors (spec.md §7), adapted
// from _examples/kanso-lang-kanso/internal/errors's Rust-like caret
// diagnostics. The front-end phases (lex/parse/type/resolve) and the
// back-end phases (allocator/encoder/patch/internal) share one
// CompilerError shape and one code-range convention.
package diag

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Level is an error's severity.
type Level string

const (
	Error   Level = "error"
	Warning Level = "warning"
	Note    Level = "note"
)

// Code ranges, mirroring the teacher's E0001-E0099-style convention but
// split across the phases spec.md §7 names:
//
//	D0001-D0099  lex-error
//	D0100-D0199  parse-error
//	D0200-D0299  type-error
//	D0300-D0399  resolve-error
//	D0600-D0699  allocator-error
//	D0700-D0799  encoder-error
//	D0800-D0899  patch-error
//	D0900-D0999  internal-error
const (
	LexUnexpectedRune   = "D0001"
	LexUnterminated     = "D0002"
	LexInvalidNumber    = "D0003"
	ParseUnexpectedTok  = "D0100"
	ParseExpected       = "D0101"
	TypeMismatch        = "D0200"
	TypeUnknown         = "D0201"
	TypeArityMismatch   = "D0202"
	TypeInvalidOperand  = "D0203"
	ResolveUndefined    = "D0300"
	ResolveDuplicate    = "D0301"
	AllocatorOutOfRegs  = "D0600"
	AllocatorBadClass   = "D0601"
	EncoderUnsupported  = "D0700"
	EncoderOverflow     = "D0701"
	PatchDisplacement   = "D0800"
	PatchUnresolvedCall = "D0801"
	InternalInvariant   = "D0900"
)

// Position is a 1-based line/column location in one source file.
type Position struct {
	File   string
	Line   int
	Column int
}

func (p Position) String() string { return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column) }

// CompilerError is one reported diagnostic (spec.md §7: "<phase>:
// <message> <file>:<line>:<col>").
type CompilerError struct {
	Level    Level
	Code     string
	Phase    string // "lex", "parse", "type", "resolve", "allocator", "encoder", "patch", "internal"
	Message  string
	Position Position
	Length   int
	Notes    []string
}

func (e CompilerError) Error() string {
	return fmt.Sprintf("%s: %s %s", e.Phase, e.Message, e.Position)
}

// Reporter formats CompilerErrors against one file's source, Rust-style,
// grounded on internal/errors.ErrorReporter's FormatError.
type Reporter struct {
	source string
	lines  []string
}

func NewReporter(source string) *Reporter {
	return &Reporter{source: source, lines: strings.Split(source, "\n")}
}

// Format renders err as a multi-line caret diagnostic when source for its
// file is available, else falls back to the single-line §6 CLI form.
func (r *Reporter) Format(err CompilerError) string {
	if err.Position.Line <= 0 || err.Position.Line > len(r.lines) {
		return fmt.Sprintf("%s: %s %s\n", err.Phase, err.Message, err.Position)
	}

	var out strings.Builder
	levelColor := levelColorFor(err.Level)
	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	if err.Code != "" {
		out.WriteString(fmt.Sprintf("%s[%s]: %s\n", levelColor(string(err.Level)), err.Code, err.Message))
	} else {
		out.WriteString(fmt.Sprintf("%s: %s\n", levelColor(string(err.Level)), err.Message))
	}

	width := lineNumberWidth(err.Position.Line)
	indent := strings.Repeat(" ", width)
	out.WriteString(fmt.Sprintf("%s %s %s\n", indent, dim("-->"), err.Position))
	out.WriteString(fmt.Sprintf("%s %s\n", indent, dim("│")))

	line := r.lines[err.Position.Line-1]
	out.WriteString(fmt.Sprintf("%s %s %s\n", bold(fmt.Sprintf("%*d", width, err.Position.Line)), dim("│"), line))
	out.WriteString(fmt.Sprintf("%s %s %s\n", indent, dim("│"), marker(err.Position.Column, err.Length, err.Level)))

	for _, note := range err.Notes {
		noteColor := color.New(color.FgBlue).SprintFunc()
		out.WriteString(fmt.Sprintf("%s %s %s %s\n", indent, dim("│"), noteColor("note:"), note))
	}
	out.WriteString("\n")
	return out.String()
}

func levelColorFor(l Level) func(...interface{}) string {
	switch l {
	case Warning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	case Note:
		return color.New(color.FgBlue, color.Bold).SprintFunc()
	default:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	}
}

func marker(column, length int, level Level) string {
	if length <= 0 {
		length = 1
	}
	spaces := strings.Repeat(" ", maxInt(0, column-1))
	c := color.New(color.FgRed, color.Bold).SprintFunc()
	if level == Warning {
		c = color.New(color.FgYellow, color.Bold).SprintFunc()
	}
	return spaces + c(strings.Repeat("^", length))
}

func lineNumberWidth(line int) int {
	w := len(fmt.Sprintf("%d", line))
	if w < 3 {
		return 3
	}
	return w
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
