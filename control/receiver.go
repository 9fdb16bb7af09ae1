// Copyright 2026 The Traceplane Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/traceplane/traceplane/eventrule"
	"github.com/traceplane/traceplane/filter"
	"github.com/traceplane/traceplane/lib/payload"
	"github.com/traceplane/traceplane/snapshot"
)

// Consumer receives fully validated instances decoded from the control
// channel. It is the session-registry boundary: the Receiver validates
// and reconstructs; the Consumer owns what happens next.
type Consumer interface {
	RegisterRule(rule eventrule.Rule) error
	AddSnapshotOutput(output *snapshot.Output) error
	RemoveSnapshotOutput(name string) error
}

// Receiver is the service side of a control channel. It reads frames,
// decodes and validates their payloads, recompiles filter expressions
// locally, and hands the results to the Consumer. Malformed messages
// are logged and dropped; the frame layer keeps the stream aligned, so
// one bad message does not poison the channel.
type Receiver struct {
	fd       int
	consumer Consumer
	compiler filter.Compiler
	logger   *slog.Logger
}

// NewReceiver builds a Receiver. compiler is used to compile filter
// expressions arriving as text; logger may be nil for slog.Default().
func NewReceiver(fd int, consumer Consumer, compiler filter.Compiler, logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{fd: fd, consumer: consumer, compiler: compiler, logger: logger}
}

// Run reads and dispatches frames until the peer closes the channel.
// It returns nil on a clean close and the transport error otherwise.
// Rejected messages are logged, not fatal.
func (r *Receiver) Run() error {
	for {
		frame, err := ReadFrame(r.fd)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := r.handle(frame); err != nil {
			r.logger.Warn("rejected control message",
				"type", frame.Type,
				"payload_bytes", len(frame.Payload),
				"error", err)
		}
	}
}

// HandleFrame decodes and dispatches a single frame. Exposed for
// callers that drive the channel themselves.
func (r *Receiver) HandleFrame(frame Frame) error {
	return r.handle(frame)
}

func (r *Receiver) handle(frame Frame) error {
	view := payload.NewView(frame.Payload)
	switch frame.Type {
	case MessageRegisterEventRule:
		rule, consumed, err := eventrule.Decode(view)
		if err != nil {
			return err
		}
		if consumed != len(frame.Payload) {
			return fmt.Errorf("event rule message has %d trailing bytes", len(frame.Payload)-consumed)
		}
		// The expression arrived as text; compile it here so the
		// executable program is always this process's own work.
		if _, err := rule.Bytecode(r.compiler); err != nil {
			return err
		}
		return r.consumer.RegisterRule(rule)

	case MessageAddSnapshotOutput:
		output, consumed, err := snapshot.DecodeOutput(view)
		if err != nil {
			return err
		}
		if consumed != len(frame.Payload) {
			return fmt.Errorf("snapshot output message has %d trailing bytes", len(frame.Payload)-consumed)
		}
		return r.consumer.AddSnapshotOutput(output)

	case MessageRemoveSnapshotOutput:
		nameLength, err := view.Uint32()
		if err != nil {
			return fmt.Errorf("remove snapshot output name length: %w", err)
		}
		name, err := view.TerminatedString(nameLength)
		if err != nil {
			return fmt.Errorf("remove snapshot output name: %w", err)
		}
		if view.Remaining() != 0 {
			return fmt.Errorf("remove snapshot output message has %d trailing bytes", view.Remaining())
		}
		return r.consumer.RemoveSnapshotOutput(name)

	default:
		return fmt.Errorf("unknown control message type %d", frame.Type)
	}
}
