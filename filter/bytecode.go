// Copyright 2026 The Traceplane Authors
// SPDX-License-Identifier: Apache-2.0

package filter

import "fmt"

// Op is a bytecode operation.
type Op uint8

const (
	// OpLoadField pushes the value of an event field.
	OpLoadField Op = iota + 1
	// OpLoadNumber pushes an integer literal.
	OpLoadNumber
	// OpLoadString pushes a string literal.
	OpLoadString
	// Comparison operations pop two values and push a boolean.
	OpEqual
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
	// Logical operations. OpAnd and OpOr pop two values, OpNot pops one;
	// operands are coerced to booleans by truthiness.
	OpAnd
	OpOr
	OpNot
)

func (op Op) String() string {
	switch op {
	case OpLoadField:
		return "load-field"
	case OpLoadNumber:
		return "load-number"
	case OpLoadString:
		return "load-string"
	case OpEqual:
		return "eq"
	case OpNotEqual:
		return "ne"
	case OpLess:
		return "lt"
	case OpLessEqual:
		return "le"
	case OpGreater:
		return "gt"
	case OpGreaterEqual:
		return "ge"
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	case OpNot:
		return "not"
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// Instruction is one bytecode operation with its immediate operand. Only
// the operand matching the Op is meaningful.
type Instruction struct {
	Op     Op
	Field  string
	Number int64
	Text   string
}

// Bytecode is a compiled filter program: a linear instruction sequence
// evaluated on a value stack, one run per candidate event. Bytecode has
// no serialized form; it exists only in the process that compiled it.
type Bytecode struct {
	instructions []Instruction
	source       string
}

// Source returns the expression text this program was compiled from.
func (b *Bytecode) Source() string {
	return b.source
}

// Instructions returns the program's instruction sequence.
func (b *Bytecode) Instructions() []Instruction {
	return b.instructions
}

// Len returns the number of instructions.
func (b *Bytecode) Len() int {
	return len(b.instructions)
}

func (b *Bytecode) emit(instruction Instruction) {
	b.instructions = append(b.instructions, instruction)
}

// Eval runs the program against an event's field values and reports
// whether the event passes the filter. Field values may be signed or
// unsigned integers, strings, or booleans. Referencing a field absent
// from fields, or comparing incompatible types, is an evaluation error
// and the event is not matched.
func (b *Bytecode) Eval(fields map[string]any) (bool, error) {
	stack := make([]any, 0, 8)
	push := func(v any) { stack = append(stack, v) }
	pop := func() any {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}

	for _, instruction := range b.instructions {
		switch instruction.Op {
		case OpLoadNumber:
			push(instruction.Number)
		case OpLoadString:
			push(instruction.Text)
		case OpLoadField:
			raw, ok := fields[instruction.Field]
			if !ok {
				return false, fmt.Errorf("filter eval: unknown field %q", instruction.Field)
			}
			value, err := normalizeField(instruction.Field, raw)
			if err != nil {
				return false, err
			}
			push(value)
		case OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
			if len(stack) < 2 {
				return false, fmt.Errorf("filter eval: stack underflow at %s", instruction.Op)
			}
			right := pop()
			left := pop()
			result, err := compare(instruction.Op, left, right)
			if err != nil {
				return false, err
			}
			push(result)
		case OpAnd:
			right := truthy(pop())
			left := truthy(pop())
			push(left && right)
		case OpOr:
			right := truthy(pop())
			left := truthy(pop())
			push(left || right)
		case OpNot:
			push(!truthy(pop()))
		default:
			return false, fmt.Errorf("filter eval: invalid opcode %d", instruction.Op)
		}
	}
	if len(stack) != 1 {
		return false, fmt.Errorf("filter eval: program left %d values on the stack", len(stack))
	}
	return truthy(stack[0]), nil
}

// normalizeField widens integer field values to int64 and rejects types
// the comparison operators cannot handle.
func normalizeField(name string, raw any) (any, error) {
	switch v := raw.(type) {
	case int64, string, bool:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	default:
		return nil, fmt.Errorf("filter eval: field %q has unsupported type %T", name, raw)
	}
}

func compare(op Op, left, right any) (bool, error) {
	switch l := left.(type) {
	case int64:
		r, ok := right.(int64)
		if !ok {
			return false, fmt.Errorf("filter eval: comparing number with %T", right)
		}
		return orderResult(op, l == r, l < r)
	case string:
		r, ok := right.(string)
		if !ok {
			return false, fmt.Errorf("filter eval: comparing string with %T", right)
		}
		return orderResult(op, l == r, l < r)
	case bool:
		r, ok := right.(bool)
		if !ok {
			return false, fmt.Errorf("filter eval: comparing boolean with %T", right)
		}
		switch op {
		case OpEqual:
			return l == r, nil
		case OpNotEqual:
			return l != r, nil
		}
		return false, fmt.Errorf("filter eval: booleans only support == and !=")
	}
	return false, fmt.Errorf("filter eval: unsupported comparison operand %T", left)
}

func orderResult(op Op, equal, less bool) (bool, error) {
	switch op {
	case OpEqual:
		return equal, nil
	case OpNotEqual:
		return !equal, nil
	case OpLess:
		return less, nil
	case OpLessEqual:
		return less || equal, nil
	case OpGreater:
		return !less && !equal, nil
	case OpGreaterEqual:
		return !less, nil
	}
	return false, fmt.Errorf("filter eval: %s is not a comparison", op)
}

func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case string:
		return v != ""
	}
	return false
}
