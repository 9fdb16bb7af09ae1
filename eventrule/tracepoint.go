// Copyright 2026 The Traceplane Authors
// SPDX-License-Identifier: Apache-2.0

package eventrule

import (
	"fmt"
	"slices"

	"github.com/traceplane/traceplane/filter"
	"github.com/traceplane/traceplane/lib/payload"
)

// TracingDomain is the instrumentation domain a tracepoint rule applies
// to. Wire values; stable.
type TracingDomain uint32

const (
	// DomainKernel selects kernel tracepoints.
	DomainKernel TracingDomain = 0
	// DomainUser selects userspace tracepoints.
	DomainUser TracingDomain = 1
)

func (d TracingDomain) String() string {
	switch d {
	case DomainKernel:
		return "kernel"
	case DomainUser:
		return "user"
	}
	return fmt.Sprintf("domain(%d)", uint32(d))
}

func (d TracingDomain) valid() bool {
	return d <= DomainUser
}

// LogLevelRuleType says how a tracepoint rule constrains event log
// levels. Wire values; stable.
type LogLevelRuleType uint32

const (
	// LogLevelRuleNone applies no log level constraint.
	LogLevelRuleNone LogLevelRuleType = 0
	// LogLevelRuleExactly matches events at exactly the given level.
	LogLevelRuleExactly LogLevelRuleType = 1
	// LogLevelRuleAsSevereAs matches events at least as severe as the
	// given level.
	LogLevelRuleAsSevereAs LogLevelRuleType = 2
)

func (t LogLevelRuleType) valid() bool {
	return t <= LogLevelRuleAsSevereAs
}

// TracepointRule selects tracepoint events by name pattern within a
// tracing domain, optionally constrained by a filter expression, a log
// level rule, and name pattern exclusions.
//
// Wire record, after the kind discriminant (all integers u32
// little-endian, packed):
//
//	domain:u32
//	log_level_rule_type:u32    0 = none
//	log_level:u32              meaningful only when rule type != 0
//	exclusion_count:u32
//	pattern_len:u32            terminator-inclusive
//	filter_expression_len:u32  terminator-inclusive, 0 = absent
//	pattern bytes              NUL-terminated
//	filter expression bytes    NUL-terminated, present iff len > 0
//	per exclusion:             exclusion_len:u32 then NUL-terminated bytes
type TracepointRule struct {
	domain           TracingDomain
	pattern          string
	filterExpression string
	logLevelRule     LogLevelRuleType
	logLevel         uint32
	exclusions       []string

	compiledFrom string
	bytecode     *filter.Bytecode
}

// Compile-time interface check.
var _ Rule = (*TracepointRule)(nil)

// NewTracepointRule builds a tracepoint rule with no log level
// constraint and no exclusions. pattern is mandatory.
func NewTracepointRule(domain TracingDomain, pattern, filterExpression string) (*TracepointRule, error) {
	if !domain.valid() {
		return nil, fmt.Errorf("%w: tracing domain %d", ErrInvalidEnumValue, uint32(domain))
	}
	if pattern == "" {
		return nil, fmt.Errorf("tracepoint rule: %w", ErrEmptyPattern)
	}
	return &TracepointRule{
		domain:           domain,
		pattern:          pattern,
		filterExpression: filterExpression,
	}, nil
}

// Kind returns KindTracepoint.
func (r *TracepointRule) Kind() Kind {
	return KindTracepoint
}

// Domain returns the rule's tracing domain.
func (r *TracepointRule) Domain() TracingDomain {
	return r.domain
}

// Pattern returns the glob over tracepoint names.
func (r *TracepointRule) Pattern() string {
	return r.pattern
}

// FilterExpression returns the filter text and whether one is set.
func (r *TracepointRule) FilterExpression() (string, bool) {
	return r.filterExpression, r.filterExpression != ""
}

// LogLevelRule returns the log level constraint. Level is meaningful
// only when the returned type is not LogLevelRuleNone.
func (r *TracepointRule) LogLevelRule() (LogLevelRuleType, uint32) {
	return r.logLevelRule, r.logLevel
}

// SetLogLevelRule sets the log level constraint. Use LogLevelRuleNone to
// clear it (level is ignored).
func (r *TracepointRule) SetLogLevelRule(ruleType LogLevelRuleType, level uint32) error {
	if !ruleType.valid() {
		return fmt.Errorf("%w: log level rule type %d", ErrInvalidEnumValue, uint32(ruleType))
	}
	r.logLevelRule = ruleType
	if ruleType == LogLevelRuleNone {
		level = 0
	}
	r.logLevel = level
	return nil
}

// Exclusions returns the name patterns excluded from the rule.
func (r *TracepointRule) Exclusions() []string {
	return slices.Clone(r.exclusions)
}

// SetExclusions replaces the exclusion pattern list. Entries must be
// non-empty; order is preserved and significant for equality.
func (r *TracepointRule) SetExclusions(exclusions []string) error {
	for _, exclusion := range exclusions {
		if exclusion == "" {
			return fmt.Errorf("tracepoint rule: exclusion %w", ErrEmptyPattern)
		}
	}
	r.exclusions = slices.Clone(exclusions)
	return nil
}

// SetFilterExpression replaces the filter text and invalidates the
// cached bytecode. Single-writer discipline applies.
func (r *TracepointRule) SetFilterExpression(expression string) {
	r.filterExpression = expression
	r.bytecode = nil
	r.compiledFrom = ""
}

// Bytecode returns the compiled filter program, compiling it on first
// use. Rules without a filter return (nil, nil).
func (r *TracepointRule) Bytecode(compiler filter.Compiler) (*filter.Bytecode, error) {
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

// Equal reports whether other is a tracepoint rule with identical
// identity fields. The cached bytecode does not participate.
func (r *TracepointRule) Equal(other Rule) bool {
	o, ok := other.(*TracepointRule)
	if !ok {
		return false
	}
	return r.domain == o.domain &&
		r.pattern == o.pattern &&
		r.filterExpression == o.filterExpression &&
		r.logLevelRule == o.logLevelRule &&
		r.logLevel == o.logLevel &&
		slices.Equal(r.exclusions, o.exclusions)
}

func (r *TracepointRule) serializeRecord(builder *payload.Builder) {
	start := builder.Len()

	builder.WriteUint32(uint32(r.domain))
	builder.WriteUint32(uint32(r.logLevelRule))
	builder.WriteUint32(r.logLevel)
	builder.WriteUint32(uint32(len(r.exclusions)))

	patternLength := uint32(len(r.pattern) + 1)
	var filterLength uint32
	if r.filterExpression != "" {
		filterLength = uint32(len(r.filterExpression) + 1)
	}
	builder.WriteUint32(patternLength)
	builder.WriteUint32(filterLength)

	expected := 24 + int(patternLength) + int(filterLength)
	builder.WriteTerminatedString(r.pattern)
	if r.filterExpression != "" {
		builder.WriteTerminatedString(r.filterExpression)
	}
	for _, exclusion := range r.exclusions {
		exclusionLength := uint32(len(exclusion) + 1)
		builder.WriteUint32(exclusionLength)
		builder.WriteTerminatedString(exclusion)
		expected += 4 + int(exclusionLength)
	}
	checkRecordLength(builder, start, expected)
}

func decodeTracepointRecord(view *payload.View) (*TracepointRule, error) {
	domainValue, err := view.Uint32()
	if err != nil {
		return nil, fmt.Errorf("tracepoint rule domain: %w", err)
	}
	domain := TracingDomain(domainValue)
	if !domain.valid() {
		return nil, fmt.Errorf("%w: tracing domain %d", ErrInvalidEnumValue, domainValue)
	}

	logLevelRuleValue, err := view.Uint32()
	if err != nil {
		return nil, fmt.Errorf("tracepoint rule log level rule type: %w", err)
	}
	logLevelRule := LogLevelRuleType(logLevelRuleValue)
	if !logLevelRule.valid() {
		return nil, fmt.Errorf("%w: log level rule type %d", ErrInvalidEnumValue, logLevelRuleValue)
	}
	logLevel, err := view.Uint32()
	if err != nil {
		return nil, fmt.Errorf("tracepoint rule log level: %w", err)
	}

	exclusionCount, err := view.Uint32()
	if err != nil {
		return nil, fmt.Errorf("tracepoint rule exclusion count: %w", err)
	}

	patternLength, err := view.Uint32()
	if err != nil {
		return nil, fmt.Errorf("tracepoint rule pattern length: %w", err)
	}
	filterLength, err := view.Uint32()
	if err != nil {
		return nil, fmt.Errorf("tracepoint rule filter length: %w", err)
	}

	if patternLength == 0 {
		return nil, fmt.Errorf("tracepoint rule: %w", ErrEmptyPattern)
	}
	pattern, err := view.TerminatedString(patternLength)
	if err != nil {
		return nil, fmt.Errorf("tracepoint rule pattern: %w", err)
	}

	filterExpression := ""
	if filterLength > 0 {
		filterExpression, err = view.TerminatedString(filterLength)
		if err != nil {
			return nil, fmt.Errorf("tracepoint rule filter expression: %w", err)
		}
	}

	var exclusions []string
	for i := uint32(0); i < exclusionCount; i++ {
		exclusionLength, err := view.Uint32()
		if err != nil {
			return nil, fmt.Errorf("tracepoint rule exclusion %d length: %w", i, err)
		}
		exclusion, err := view.TerminatedString(exclusionLength)
		if err != nil {
			return nil, fmt.Errorf("tracepoint rule exclusion %d: %w", i, err)
		}
		exclusions = append(exclusions, exclusion)
	}

	rule, err := NewTracepointRule(domain, pattern, filterExpression)
	if err != nil {
		return nil, err
	}
	if err := rule.SetLogLevelRule(logLevelRule, logLevel); err != nil {
		return nil, err
	}
	if err := rule.SetExclusions(exclusions); err != nil {
		return nil, err
	}
	return rule, nil
}
