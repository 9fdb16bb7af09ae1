// Copyright 2026 The Traceplane Authors
// SPDX-License-Identifier: Apache-2.0

// Package control implements the control channel between client tools
// and the tracing service: framed messages carrying encoded event rules
// and snapshot-output commands over a descriptor the caller has already
// opened.
//
// Each frame is a fixed header (message type and payload length, both
// u32 little-endian) followed by the payload. Frames ride on
// lib/fdio's full-count transfers, so a frame either arrives whole or
// the failure is explicit. The payload is decoded by the model codecs
// (eventrule, snapshot), which perform all trust-boundary validation;
// this package adds the outer guards: a cap on declared payload
// length, and rejection of frames with trailing bytes after the decoded
// message.
//
// Filter bytecode never appears on this channel. When a received rule
// carries a filter expression, the Receiver compiles the text with its
// local compiler before handing the rule on, so the executable form is
// always locally produced.
package control

import (
	"errors"
	"fmt"
	"io"

	"github.com/traceplane/traceplane/lib/fdio"
	"github.com/traceplane/traceplane/lib/payload"
)

// Message types on the control channel. Wire values; stable.
const (
	// MessageRegisterEventRule carries an encoded event rule.
	MessageRegisterEventRule uint32 = 1
	// MessageAddSnapshotOutput carries an encoded snapshot output
	// descriptor.
	MessageAddSnapshotOutput uint32 = 2
	// MessageRemoveSnapshotOutput carries a snapshot output name
	// (length-prefixed, NUL-terminated).
	MessageRemoveSnapshotOutput uint32 = 3
)

// frameHeaderLength is the fixed frame header size: message type (u32)
// plus payload length (u32).
const frameHeaderLength = 8

// MaxFramePayloadLength caps a frame's declared payload. Control
// messages are small; the cap keeps a hostile peer from making the
// service allocate gigabytes on the strength of a length field.
const MaxFramePayloadLength = 1 << 20

// ErrFrameTooLarge is returned when a frame declares a payload above
// MaxFramePayloadLength.
var ErrFrameTooLarge = errors.New("control frame payload exceeds maximum")

// Frame is one control channel message.
type Frame struct {
	Type    uint32
	Payload []byte
}

// WriteFrame writes one frame to fd. The transfer either completes or
// returns an error; a peer that closes mid-frame is reported as
// io.ErrUnexpectedEOF.
func WriteFrame(fd int, frame Frame) error {
	if len(frame.Payload) > MaxFramePayloadLength {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame.Payload))
	}
	builder := payload.NewBuilder()
	builder.WriteUint32(frame.Type)
	builder.WriteUint32(uint32(len(frame.Payload)))
	builder.WriteBytes(frame.Payload)

	buffer := builder.Bytes()
	result := fdio.WriteFull(fd, buffer)
	if result.Failed() {
		return fmt.Errorf("write control frame: %w", result.Err)
	}
	if !result.Complete(len(buffer)) {
		return fmt.Errorf("write control frame: %w", io.ErrUnexpectedEOF)
	}
	return nil
}

// ReadFrame reads one frame from fd. A clean close on a frame boundary
// returns io.EOF; a close inside a frame returns io.ErrUnexpectedEOF.
func ReadFrame(fd int) (Frame, error) {
	header := make([]byte, frameHeaderLength)
	result := fdio.ReadFull(fd, header)
	if result.Failed() {
		return Frame{}, fmt.Errorf("read control frame header: %w", result.Err)
	}
	if result.Transferred == 0 {
		return Frame{}, io.EOF
	}
	if !result.Complete(frameHeaderLength) {
		return Frame{}, fmt.Errorf("read control frame header: %w", io.ErrUnexpectedEOF)
	}

	view := payload.NewView(header)
	messageType, err := view.Uint32()
	if err != nil {
		return Frame{}, err
	}
	payloadLength, err := view.Uint32()
	if err != nil {
		return Frame{}, err
	}
	if payloadLength > MaxFramePayloadLength {
		return Frame{}, fmt.Errorf("%w: %d bytes declared", ErrFrameTooLarge, payloadLength)
	}

	frame := Frame{Type: messageType}
	if payloadLength > 0 {
		frame.Payload = make([]byte, payloadLength)
		result = fdio.ReadFull(fd, frame.Payload)
		if result.Failed() {
			return Frame{}, fmt.Errorf("read control frame payload: %w", result.Err)
		}
		if !result.Complete(int(payloadLength)) {
			return Frame{}, fmt.Errorf("read control frame payload: %w", io.ErrUnexpectedEOF)
		}
	}
	return frame, nil
}
