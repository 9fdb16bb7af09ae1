// Copyright 2026 The Traceplane Authors
// SPDX-License-Identifier: Apache-2.0

// Package eventrule implements the event rule model of the tracing
// control plane and its wire codec. An event rule names a condition that
// selects which trace events are captured: a pattern over event names,
// an optional filter expression, and variant-specific selectors such as
// the syscall emission site.
//
// The rule set is closed: the Rule interface has an unexported method,
// so only the variants defined here can implement it, and the codec
// dispatches on a stable numeric kind tag. A decoded discriminant outside
// the known set rejects the whole message: variant bodies carry their
// own length layout, so there is no safe way to skip an unknown one.
//
// # Trust boundary
//
// Rules cross a process boundary between client tools and the tracing
// service. Everything arriving from the wire is treated as hostile:
// enum values are validated against their domain, declared string
// lengths are bounds-checked against the payload, terminator bytes are
// verified, and the mandatory-pattern rule is enforced identically for
// wire decode and local construction. Filter expressions cross the wire
// as text only. Compiled filter bytecode has no wire representation and
// is never accepted from a peer; each process compiles the text locally
// and caches the program on a non-identity field excluded from equality
// and from the codec.
package eventrule
