// Copyright 2026 The Traceplane Authors
// SPDX-License-Identifier: Apache-2.0

// Package filter compiles event filter expressions to executable stack
// bytecode. Filter expressions select which captured events are kept:
// comparisons over event fields (`pid == 1234`, `comm != "bash"`),
// combined with `&&`, `||`, `!` and parentheses. Context fields use a
// `$ctx.` prefix (`$ctx.hostname == "build-07"`).
//
// Compilation is strictly local. Only the expression text ever crosses a
// process boundary; each process compiles the text itself and a compiled
// program offered by a remote peer is never accepted. That discipline is
// enforced by the event rule codec (the bytecode has no wire form at
// all), and it is the reason this package exposes no deserializer.
package filter

import (
	"fmt"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// CompileError describes a filter expression that failed to compile.
// Callers can extract it with errors.As to distinguish a bad expression
// from infrastructure failures.
type CompileError struct {
	// Expression is the full source text that failed.
	Expression string
	// Message is the parser's description of the failure, including the
	// offending position where available.
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("filter compile: %s in %q", e.Message, e.Expression)
}

// Compiler turns filter expression text into executable bytecode. The
// event rule model depends on this interface rather than on the concrete
// compiler so tests can substitute counting or failing implementations.
type Compiler interface {
	Compile(expression string) (*Bytecode, error)
}

// ExpressionCompiler is the standard Compiler. It is stateless and safe
// for concurrent use.
type ExpressionCompiler struct{}

// Compile-time interface check.
var _ Compiler = (*ExpressionCompiler)(nil)

// NewCompiler returns the standard expression compiler.
func NewCompiler() *ExpressionCompiler {
	return &ExpressionCompiler{}
}

var expressionLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "whitespace", Pattern: `\s+`},
	{Name: "Number", Pattern: `\d+`},
	{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
	{Name: "Ident", Pattern: `\$?[a-zA-Z_][a-zA-Z0-9_.]*`},
	{Name: "Operator", Pattern: `==|!=|<=|>=|&&|\|\||[!<>()]`},
})

var expressionParser = participle.MustBuild[orExpression](
	participle.Lexer(expressionLexer),
	participle.Unquote("String"),
)

// Grammar, lowest precedence first. Comparisons do not chain: `a < b < c`
// is a parse error rather than a silently surprising result.

type orExpression struct {
	Left  *andExpression   `parser:"@@"`
	Right []*andExpression `parser:"( '||' @@ )*"`
}

type andExpression struct {
	Left  *unaryExpression   `parser:"@@"`
	Right []*unaryExpression `parser:"( '&&' @@ )*"`
}

type unaryExpression struct {
	Negated    *unaryExpression `parser:"  '!' @@"`
	Comparison *comparison      `parser:"| @@"`
}

type comparison struct {
	Left     *operand `parser:"@@"`
	Operator string   `parser:"( @( '==' | '!=' | '<=' | '>=' | '<' | '>' )"`
	Right    *operand `parser:"  @@ )?"`
}

type operand struct {
	Number *int64        `parser:"  @Number"`
	Text   *string       `parser:"| @String"`
	Field  *string       `parser:"| @Ident"`
	Sub    *orExpression `parser:"| '(' @@ ')'"`
}

// Compile parses expression and emits its bytecode. An empty expression
// and any syntax error return a *CompileError.
func (c *ExpressionCompiler) Compile(expression string) (*Bytecode, error) {
	if expression == "" {
		return nil, &CompileError{Expression: expression, Message: "empty expression"}
	}
	parsed, err := expressionParser.ParseString("", expression)
	if err != nil {
		return nil, &CompileError{Expression: expression, Message: err.Error()}
	}
	bytecode := &Bytecode{source: expression}
	bytecode.emitOr(parsed)
	return bytecode, nil
}

func (b *Bytecode) emitOr(e *orExpression) {
	b.emitAnd(e.Left)
	for _, right := range e.Right {
		b.emitAnd(right)
		b.emit(Instruction{Op: OpOr})
	}
}

func (b *Bytecode) emitAnd(e *andExpression) {
	b.emitUnary(e.Left)
	for _, right := range e.Right {
		b.emitUnary(right)
		b.emit(Instruction{Op: OpAnd})
	}
}

func (b *Bytecode) emitUnary(e *unaryExpression) {
	if e.Negated != nil {
		b.emitUnary(e.Negated)
		b.emit(Instruction{Op: OpNot})
		return
	}
	b.emitComparison(e.Comparison)
}

func (b *Bytecode) emitComparison(e *comparison) {
	b.emitOperand(e.Left)
	if e.Right == nil {
		return
	}
	b.emitOperand(e.Right)
	switch e.Operator {
	case "==":
		b.emit(Instruction{Op: OpEqual})
	case "!=":
		b.emit(Instruction{Op: OpNotEqual})
	case "<":
		b.emit(Instruction{Op: OpLess})
	case "<=":
		b.emit(Instruction{Op: OpLessEqual})
	case ">":
		b.emit(Instruction{Op: OpGreater})
	case ">=":
		b.emit(Instruction{Op: OpGreaterEqual})
	default:
		// The grammar only admits the six operators above.
		panic("filter: comparison operator " + e.Operator + " escaped the grammar")
	}
}

func (b *Bytecode) emitOperand(e *operand) {
	switch {
	case e.Number != nil:
		b.emit(Instruction{Op: OpLoadNumber, Number: *e.Number})
	case e.Text != nil:
		b.emit(Instruction{Op: OpLoadString, Text: *e.Text})
	case e.Field != nil:
		b.emit(Instruction{Op: OpLoadField, Field: *e.Field})
	case e.Sub != nil:
		b.emitOr(e.Sub)
	}
}
