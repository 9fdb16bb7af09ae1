// Copyright 2026 The Traceplane Authors
// SPDX-License-Identifier: Apache-2.0

package eventrule

import (
	"fmt"

	"github.com/traceplane/traceplane/filter"
	"github.com/traceplane/traceplane/lib/payload"
)

// EmissionSite is the point relative to a system call at which an event
// fires. Wire values; stable.
type EmissionSite uint32

const (
	// EmissionSiteEntryExit fires on both call entry and return.
	EmissionSiteEntryExit EmissionSite = 0
	// EmissionSiteEntry fires on call entry only.
	EmissionSiteEntry EmissionSite = 1
	// EmissionSiteExit fires on call return only.
	EmissionSiteExit EmissionSite = 2
)

func (s EmissionSite) String() string {
	switch s {
	case EmissionSiteEntryExit:
		return "entry+exit"
	case EmissionSiteEntry:
		return "entry"
	case EmissionSiteExit:
		return "exit"
	}
	return fmt.Sprintf("emission-site(%d)", uint32(s))
}

func (s EmissionSite) valid() bool {
	return s <= EmissionSiteExit
}

// SyscallRule selects system call events.
//
// Wire record, after the kind discriminant (all u32 little-endian,
// packed):
//
//	emission_site_type:u32
//	pattern_len:u32            terminator-inclusive
//	filter_expression_len:u32  terminator-inclusive, 0 = absent
//	pattern bytes              NUL-terminated
//	filter expression bytes    NUL-terminated, present iff len > 0
type SyscallRule struct {
	emissionSite     EmissionSite
	pattern          string
	filterExpression string

	// Compiled filter cache: the program plus the expression text it was
	// compiled from. Derived state: excluded from Equal and from the
	// wire, rebuilt locally whenever the expression changes.
	compiledFrom string
	bytecode     *filter.Bytecode
}

// Compile-time interface check.
var _ Rule = (*SyscallRule)(nil)

// NewSyscallRule builds a syscall rule. pattern is a glob over syscall
// names and is mandatory; filterExpression may be empty for no filter.
// Wire decode funnels through the same construction, so local input and
// remote input face identical validation.
func NewSyscallRule(site EmissionSite, pattern, filterExpression string) (*SyscallRule, error) {
	if !site.valid() {
		return nil, fmt.Errorf("%w: syscall emission site %d", ErrInvalidEnumValue, uint32(site))
	}
	if pattern == "" {
		return nil, fmt.Errorf("syscall rule: %w", ErrEmptyPattern)
	}
	return &SyscallRule{
		emissionSite:     site,
		pattern:          pattern,
		filterExpression: filterExpression,
	}, nil
}

// Kind returns KindSyscall.
func (r *SyscallRule) Kind() Kind {
	return KindSyscall
}

// EmissionSite returns where the rule fires relative to the call.
func (r *SyscallRule) EmissionSite() EmissionSite {
	return r.emissionSite
}

// Pattern returns the glob over syscall names.
func (r *SyscallRule) Pattern() string {
	return r.pattern
}

// FilterExpression returns the filter text and whether one is set.
func (r *SyscallRule) FilterExpression() (string, bool) {
	return r.filterExpression, r.filterExpression != ""
}

// SetFilterExpression replaces the filter text. The cached bytecode is
// invalidated; the next Bytecode call recompiles. Mutation requires
// single-writer discipline, since the cache is unsynchronized.
func (r *SyscallRule) SetFilterExpression(expression string) {
	r.filterExpression = expression
	r.bytecode = nil
	r.compiledFrom = ""
}

// Bytecode returns the compiled filter program, compiling it on first
// use and whenever the expression has changed since the last compile.
// Rules without a filter return (nil, nil).
func (r *SyscallRule) Bytecode(compiler filter.Compiler) (*filter.Bytecode, error) {
	if r.filterExpression == "" {
		return nil, nil
	}
	if r.bytecode != nil && r.compiledFrom == r.filterExpression {
		return r.bytecode, nil
	}
	bytecode, err := compiler.Compile(r.filterExpression)
	if err != nil {
		return nil, err
	}
	r.bytecode = bytecode
	r.compiledFrom = r.filterExpression
	return bytecode, nil
}

// Equal reports whether other is a syscall rule with the same emission
// site, pattern, and filter expression text.
func (r *SyscallRule) Equal(other Rule) bool {
	o, ok := other.(*SyscallRule)
	if !ok {
		return false
	}
	return r.emissionSite == o.emissionSite &&
		r.pattern == o.pattern &&
		r.filterExpression == o.filterExpression
}

func (r *SyscallRule) serializeRecord(builder *payload.Builder) {
	start := builder.Len()

	builder.WriteUint32(uint32(r.emissionSite))

	// Length fields are computed from the real byte length of the string
	// content plus the terminator, never tracked independently.
	patternLength := uint32(len(r.pattern) + 1)
	var filterLength uint32
	if r.filterExpression != "" {
		filterLength = uint32(len(r.filterExpression) + 1)
	}
	builder.WriteUint32(patternLength)
	builder.WriteUint32(filterLength)

	writtenPattern := builder.WriteTerminatedString(r.pattern)
	writtenFilter := uint32(0)
	if r.filterExpression != "" {
		writtenFilter = builder.WriteTerminatedString(r.filterExpression)
	}
	if writtenPattern != patternLength || writtenFilter != filterLength {
		panic("eventrule: syscall record length fields disagree with written strings")
	}
	checkRecordLength(builder, start, 12+int(patternLength)+int(filterLength))
}

func decodeSyscallRecord(view *payload.View) (*SyscallRule, error) {
	siteValue, err := view.Uint32()
	if err != nil {
		return nil, fmt.Errorf("syscall rule emission site: %w", err)
	}
	site := EmissionSite(siteValue)
	if !site.valid() {
		return nil, fmt.Errorf("%w: syscall emission site %d", ErrInvalidEnumValue, siteValue)
	}

	patternLength, err := view.Uint32()
	if err != nil {
		return nil, fmt.Errorf("syscall rule pattern length: %w", err)
	}
	filterLength, err := view.Uint32()
	if err != nil {
		return nil, fmt.Errorf("syscall rule filter length: %w", err)
	}

	if patternLength == 0 {
		// Absent pattern: same construction failure as locally supplied
		// empty input.
		return nil, fmt.Errorf("syscall rule: %w", ErrEmptyPattern)
	}
	pattern, err := view.TerminatedString(patternLength)
	if err != nil {
		return nil, fmt.Errorf("syscall rule pattern: %w", err)
	}

	filterExpression := ""
	if filterLength > 0 {
		filterExpression, err = view.TerminatedString(filterLength)
		if err != nil {
			return nil, fmt.Errorf("syscall rule filter expression: %w", err)
		}
	}

	return NewSyscallRule(site, pattern, filterExpression)
}
