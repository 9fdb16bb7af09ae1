// Copyright 2026 The Traceplane Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"fmt"

	"github.com/traceplane/traceplane/eventrule"
	"github.com/traceplane/traceplane/lib/payload"
	"github.com/traceplane/traceplane/snapshot"
)

// Channel is the client side of a control channel: it encodes model
// instances and writes them as frames. The descriptor is opened and
// closed by the caller; a Channel must not be shared by concurrent
// senders without external serialization.
type Channel struct {
	fd int
}

// NewChannel wraps an open descriptor.
func NewChannel(fd int) *Channel {
	return &Channel{fd: fd}
}

// SendRule transmits an event rule. Only the rule's identity fields
// travel; any compiled filter bytecode stays local.
func (c *Channel) SendRule(rule eventrule.Rule) error {
	return WriteFrame(c.fd, Frame{
		Type:    MessageRegisterEventRule,
		Payload: eventrule.Encode(rule),
	})
}

// SendAddOutput transmits a snapshot output descriptor.
func (c *Channel) SendAddOutput(output *snapshot.Output) error {
	encoded, err := output.Encode()
	if err != nil {
		return fmt.Errorf("send snapshot output: %w", err)
	}
	return WriteFrame(c.fd, Frame{
		Type:    MessageAddSnapshotOutput,
		Payload: encoded,
	})
}

// SendRemoveOutput asks the service to delete the named snapshot
// output.
func (c *Channel) SendRemoveOutput(name string) error {
	builder := payload.NewBuilder()
	builder.WriteUint32(uint32(len(name) + 1))
	builder.WriteTerminatedString(name)
	return WriteFrame(c.fd, Frame{
		Type:    MessageRemoveSnapshotOutput,
		Payload: builder.Bytes(),
	})
}
