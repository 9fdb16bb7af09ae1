// Copyright 2026 The Traceplane Authors
// SPDX-License-Identifier: Apache-2.0

// Package snapshot implements snapshot output descriptors: named
// destinations to which an on-demand dump of buffered trace data is
// flushed. An output points either at a local directory or at a remote
// relay's control/data endpoint, with an optional byte cap on the dump
// size.
//
// Descriptors cross the control channel, so the same trust rules as
// event rules apply: DecodeOutput validates everything before a
// descriptor becomes observable, and an invalid descriptor is never
// returned. The Registry tracks the validated outputs a session knows
// about and can persist them across service restarts.
package snapshot

import (
	"errors"
	"fmt"

	"github.com/traceplane/traceplane/lib/payload"
)

// MaxNameLength bounds an output name in bytes. Empty is allowed and
// means "use the default output".
const MaxNameLength = 255

// ErrInvalidOutput is returned for any descriptor that fails
// validation, whether built locally or decoded from the wire.
var ErrInvalidOutput = errors.New("invalid snapshot output")

// Destination kind discriminants on the wire.
const (
	destinationKindLocal   uint32 = 1
	destinationKindNetwork uint32 = 2
)

// Destination is where a snapshot is flushed: exactly one of a local
// path or a network endpoint. The set is closed; the sum is enforced by
// the type rather than by paired nullable fields.
type Destination interface {
	kind() uint32
	validate() error
	equal(other Destination) bool
	serialize(builder *payload.Builder)
}

// LocalDestination flushes to a directory on the machine running the
// tracing service.
type LocalDestination struct {
	Path string
}

// NetworkDestination flushes to a remote relay. The control port
// carries commands and metadata; the data port carries the trace bytes.
type NetworkDestination struct {
	Host        string
	ControlPort uint16
	DataPort    uint16
}

// Compile-time sum checks.
var (
	_ Destination = LocalDestination{}
	_ Destination = NetworkDestination{}
)

func (d LocalDestination) kind() uint32 { return destinationKindLocal }

func (d LocalDestination) validate() error {
	if d.Path == "" {
		return fmt.Errorf("%w: local destination path is empty", ErrInvalidOutput)
	}
	return nil
}

func (d LocalDestination) equal(other Destination) bool {
	o, ok := other.(LocalDestination)
	return ok && d.Path == o.Path
}

func (d LocalDestination) serialize(builder *payload.Builder) {
	pathLength := uint32(len(d.Path) + 1)
	builder.WriteUint32(pathLength)
	if builder.WriteTerminatedString(d.Path) != pathLength {
		panic("snapshot: local destination length field disagrees with written path")
	}
}

func (d NetworkDestination) kind() uint32 { return destinationKindNetwork }

func (d NetworkDestination) validate() error {
	if d.Host == "" {
		return fmt.Errorf("%w: network destination host is empty", ErrInvalidOutput)
	}
	if d.ControlPort == 0 || d.DataPort == 0 {
		return fmt.Errorf("%w: network destination ports must be nonzero", ErrInvalidOutput)
	}
	return nil
}

func (d NetworkDestination) equal(other Destination) bool {
	o, ok := other.(NetworkDestination)
	return ok && d == o
}

func (d NetworkDestination) serialize(builder *payload.Builder) {
	hostLength := uint32(len(d.Host) + 1)
	builder.WriteUint32(hostLength)
	if builder.WriteTerminatedString(d.Host) != hostLength {
		panic("snapshot: network destination length field disagrees with written host")
	}
	builder.WriteUint32(uint32(d.ControlPort))
	builder.WriteUint32(uint32(d.DataPort))
}

// Output is a snapshot output descriptor. Build one with NewOutput (or
// receive one from DecodeOutput); both validate before the descriptor
// becomes observable, and a registered descriptor is treated as
// immutable from then on.
type Output struct {
	// Name identifies the output within a session. Empty selects the
	// default output; the registry assigns a generated name on Add.
	Name string

	// Destination is the flush target. Exactly one destination kind, by
	// construction.
	Destination Destination

	// MaxSize caps the snapshot size in bytes. Zero means unbounded.
	// It is a legal value in its own right, not an "absent" marker.
	MaxSize uint64
}

// NewOutput builds a validated output descriptor.
func NewOutput(name string, destination Destination, maxSize uint64) (*Output, error) {
	output := &Output{Name: name, Destination: destination, MaxSize: maxSize}
	if err := output.Validate(); err != nil {
		return nil, err
	}
	return output, nil
}

// Validate checks the descriptor: name within bounds, exactly one
// well-formed destination, MaxSize unrestricted.
func (o *Output) Validate() error {
	if len(o.Name) > MaxNameLength {
		return fmt.Errorf("%w: name length %d exceeds %d", ErrInvalidOutput, len(o.Name), MaxNameLength)
	}
	if o.Destination == nil {
		return fmt.Errorf("%w: no destination", ErrInvalidOutput)
	}
	return o.Destination.validate()
}

// Equal reports deep field equality. Outputs with different destination
// kinds are never equal.
func (o *Output) Equal(other *Output) bool {
	if other == nil {
		return false
	}
	return o.Name == other.Name &&
		o.MaxSize == other.MaxSize &&
		o.Destination.equal(other.Destination)
}

// Encode serializes the descriptor: name length and bytes, destination
// kind tag, destination fields, then the size cap. It refuses to encode
// an invalid descriptor; an Output built through NewOutput or
// DecodeOutput always passes.
func (o *Output) Encode() ([]byte, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	builder := payload.NewBuilder()
	nameLength := uint32(len(o.Name) + 1)
	builder.WriteUint32(nameLength)
	if builder.WriteTerminatedString(o.Name) != nameLength {
		panic("snapshot: output name length field disagrees with written name")
	}
	builder.WriteUint32(o.Destination.kind())
	o.Destination.serialize(builder)
	builder.WriteUint64(o.MaxSize)
	return builder.Bytes(), nil
}

// DecodeOutput reads one encoded descriptor from view, returning it and
// the number of bytes consumed. The result is validated before being
// returned; a descriptor that fails validation is reported as
// ErrInvalidOutput and never observable.
func DecodeOutput(view *payload.View) (*Output, int, error) {
	start := view.Consumed()

	nameLength, err := view.Uint32()
	if err != nil {
		return nil, 0, fmt.Errorf("snapshot output name length: %w", err)
	}
	name, err := view.TerminatedString(nameLength)
	if err != nil {
		return nil, 0, fmt.Errorf("snapshot output name: %w", err)
	}

	kindValue, err := view.Uint32()
	if err != nil {
		return nil, 0, fmt.Errorf("snapshot output destination kind: %w", err)
	}

	var destination Destination
	switch kindValue {
	case destinationKindLocal:
		pathLength, err := view.Uint32()
		if err != nil {
			return nil, 0, fmt.Errorf("snapshot output path length: %w", err)
		}
		path, err := view.TerminatedString(pathLength)
		if err != nil {
			return nil, 0, fmt.Errorf("snapshot output path: %w", err)
		}
		destination = LocalDestination{Path: path}
	case destinationKindNetwork:
		hostLength, err := view.Uint32()
		if err != nil {
			return nil, 0, fmt.Errorf("snapshot output host length: %w", err)
		}
		host, err := view.TerminatedString(hostLength)
		if err != nil {
			return nil, 0, fmt.Errorf("snapshot output host: %w", err)
		}
		controlPort, err := view.Uint32()
		if err != nil {
			return nil, 0, fmt.Errorf("snapshot output control port: %w", err)
		}
		dataPort, err := view.Uint32()
		if err != nil {
			return nil, 0, fmt.Errorf("snapshot output data port: %w", err)
		}
		// Ports travel as u32; the valid TCP range check happens here,
		// before narrowing.
		if controlPort > 65535 || dataPort > 65535 {
			return nil, 0, fmt.Errorf("%w: port out of range (control %d, data %d)", ErrInvalidOutput, controlPort, dataPort)
		}
		destination = NetworkDestination{
			Host:        host,
			ControlPort: uint16(controlPort),
			DataPort:    uint16(dataPort),
		}
	default:
		return nil, 0, fmt.Errorf("%w: destination kind %d", ErrInvalidOutput, kindValue)
	}

	maxSize, err := view.Uint64()
	if err != nil {
		return nil, 0, fmt.Errorf("snapshot output max size: %w", err)
	}

	output, err := NewOutput(name, destination, maxSize)
	if err != nil {
		return nil, 0, err
	}
	return output, view.Consumed() - start, nil
}
