// Copyright 2026 The Traceplane Authors
// SPDX-License-Identifier: Apache-2.0

package eventrule

import (
	"errors"
	"fmt"

	"github.com/traceplane/traceplane/filter"
	"github.com/traceplane/traceplane/lib/payload"
)

// Kind identifies an event rule variant. Kind values are wire
// discriminants: stable across releases, never renumbered.
type Kind uint32

const (
	// KindTracepoint selects tracepoint events by name pattern.
	KindTracepoint Kind = 0
	// KindSyscall selects system call events by name pattern and
	// emission site.
	KindSyscall Kind = 1
)

func (k Kind) String() string {
	switch k {
	case KindTracepoint:
		return "tracepoint"
	case KindSyscall:
		return "syscall"
	}
	return fmt.Sprintf("kind(%d)", uint32(k))
}

var (
	// ErrInvalidEnumValue is returned when a wire value for an enumerated
	// field is outside the recognized domain. Out-of-domain values are
	// never coerced.
	ErrInvalidEnumValue = errors.New("invalid enum value")

	// ErrUnknownKind is returned when a decoded kind discriminant does
	// not match any rule variant.
	ErrUnknownKind = errors.New("unknown event rule kind")

	// ErrEmptyPattern is returned when a rule is constructed without a
	// name pattern. The pattern is mandatory for every variant.
	ErrEmptyPattern = errors.New("event rule pattern must not be empty")
)

// Rule is an event rule of any kind. Instances are produced by the
// validating constructors or by Decode, and are immutable once handed to
// a registry; equality is variant-aware and excludes derived state such
// as cached filter bytecode.
//
// The unexported serialize method closes the set: rule variants live in
// this package only, which is what lets the codec dispatch exhaustively.
type Rule interface {
	// Kind returns the variant's wire discriminant.
	Kind() Kind

	// Equal reports semantic equality: same kind and identical identity
	// fields. Cached bytecode never participates.
	Equal(other Rule) bool

	// Bytecode returns the rule's compiled filter program, compiling and
	// caching it on first use. Rules without a filter expression return
	// (nil, nil).
	Bytecode(compiler filter.Compiler) (*filter.Bytecode, error)

	// serializeRecord appends the variant record (everything after the
	// kind discriminant) to builder.
	serializeRecord(builder *payload.Builder)
}

// Encode serializes rule into a fresh buffer: the kind discriminant
// followed by the variant record.
func Encode(rule Rule) []byte {
	builder := payload.NewBuilder()
	builder.WriteUint32(uint32(rule.Kind()))
	rule.serializeRecord(builder)
	return builder.Bytes()
}

// Decode reads one encoded rule from view. It returns the reconstructed
// rule and the number of bytes consumed. The kind discriminant is read
// first and dispatched; an unrecognized discriminant fails with
// ErrUnknownKind and consumes nothing usable; the caller must discard
// the whole message.
func Decode(view *payload.View) (Rule, int, error) {
	start := view.Consumed()

	kindValue, err := view.Uint32()
	if err != nil {
		return nil, 0, fmt.Errorf("event rule kind: %w", err)
	}

	var rule Rule
	switch Kind(kindValue) {
	case KindSyscall:
		rule, err = decodeSyscallRecord(view)
	case KindTracepoint:
		rule, err = decodeTracepointRecord(view)
	default:
		return nil, 0, fmt.Errorf("%w: %d", ErrUnknownKind, kindValue)
	}
	if err != nil {
		return nil, 0, err
	}
	return rule, view.Consumed() - start, nil
}

// checkRecordLength panics if a variant encoder produced a record whose
// size disagrees with the lengths it recorded. A mismatch means the
// encoder itself is broken, which is a bug, not a reportable condition.
func checkRecordLength(builder *payload.Builder, start, expected int) {
	if written := builder.Len() - start; written != expected {
		panic(fmt.Sprintf("eventrule: encoder wrote %d bytes but recorded %d", written, expected))
	}
}
