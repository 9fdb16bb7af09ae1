// Copyright 2026 The Traceplane Authors
// SPDX-License-Identifier: Apache-2.0

// Package payload provides the bounds-checked cursor abstractions used by
// the control protocol codecs: View for decoding a received buffer, Builder
// for producing one.
//
// The wire format is packed with no padding, and all multi-byte integers
// are little-endian. Strings travel NUL-terminated with the terminator
// included in their recorded length, so a zero length can serve as the
// "absent" marker for optional string fields.
//
// A View never reads past the window it was created over: every primitive
// checks the remaining byte count first and fails with ErrTruncated, which
// is what makes the decoders safe against hostile length fields.
package payload

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// byteOrder is the single byte order used by the entire wire format.
var byteOrder = binary.LittleEndian

// ErrTruncated is returned when a View has fewer bytes remaining than a
// read primitive requires.
var ErrTruncated = errors.New("truncated payload")

// ErrMalformed is returned when a payload is structurally invalid in a way
// that is not a simple shortage of bytes: a declared string length whose
// final byte is not the NUL terminator, or a zero-length string field where
// the format requires a terminated string.
var ErrMalformed = errors.New("malformed payload")

// View is a non-owning read window over a byte buffer. Each read primitive
// advances the offset; none of them ever reads beyond the underlying
// buffer. A View does not copy the buffer, so the buffer must not be
// mutated while the View is in use.
type View struct {
	buffer []byte
	offset int
}

// NewView creates a View over the full extent of buffer.
func NewView(buffer []byte) *View {
	return &View{buffer: buffer}
}

// Remaining returns the number of unread bytes left in the window.
func (v *View) Remaining() int {
	return len(v.buffer) - v.offset
}

// Consumed returns the number of bytes read so far.
func (v *View) Consumed() int {
	return v.offset
}

// Uint32 reads a little-endian uint32 and advances the offset.
func (v *View) Uint32() (uint32, error) {
	if v.Remaining() < 4 {
		return 0, fmt.Errorf("%w: need 4 bytes for uint32, have %d", ErrTruncated, v.Remaining())
	}
	value := byteOrder.Uint32(v.buffer[v.offset:])
	v.offset += 4
	return value, nil
}

// Uint64 reads a little-endian uint64 and advances the offset.
func (v *View) Uint64() (uint64, error) {
	if v.Remaining() < 8 {
		return 0, fmt.Errorf("%w: need 8 bytes for uint64, have %d", ErrTruncated, v.Remaining())
	}
	value := byteOrder.Uint64(v.buffer[v.offset:])
	v.offset += 8
	return value, nil
}

// Bytes reads exactly length bytes and advances the offset. The returned
// slice aliases the underlying buffer; callers that retain it beyond the
// life of the buffer must copy.
func (v *View) Bytes(length int) ([]byte, error) {
	if length < 0 {
		return nil, fmt.Errorf("%w: negative byte count %d", ErrMalformed, length)
	}
	if v.Remaining() < length {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, length, v.Remaining())
	}
	data := v.buffer[v.offset : v.offset+length]
	v.offset += length
	return data, nil
}

// TerminatedString reads a NUL-terminated string whose declared length
// (terminator included) is length, verifies the terminator byte is
// actually 0x00, and returns the string without it. The terminator check
// is deliberate defense against a peer whose declared length does not
// cover the whole string.
func (v *View) TerminatedString(length uint32) (string, error) {
	if length == 0 {
		return "", fmt.Errorf("%w: zero-length terminated string", ErrMalformed)
	}
	data, err := v.Bytes(int(length))
	if err != nil {
		return "", err
	}
	if data[length-1] != 0 {
		return "", fmt.Errorf("%w: string of declared length %d is not NUL-terminated", ErrMalformed, length)
	}
	return string(data[:length-1]), nil
}

// Builder is an owned, append-only buffer for encoding. The zero value is
// ready to use.
type Builder struct {
	buffer []byte
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Len returns the number of bytes written so far.
func (b *Builder) Len() int {
	return len(b.buffer)
}

// Bytes returns the encoded buffer. The slice aliases the Builder's
// storage and is invalidated by further writes.
func (b *Builder) Bytes() []byte {
	return b.buffer
}

// WriteUint32 appends a little-endian uint32.
func (b *Builder) WriteUint32(value uint32) {
	b.buffer = byteOrder.AppendUint32(b.buffer, value)
}

// WriteUint64 appends a little-endian uint64.
func (b *Builder) WriteUint64(value uint64) {
	b.buffer = byteOrder.AppendUint64(b.buffer, value)
}

// WriteBytes appends data verbatim.
func (b *Builder) WriteBytes(data []byte) {
	b.buffer = append(b.buffer, data...)
}

// WriteTerminatedString appends value followed by a NUL terminator and
// returns the recorded length, terminator included. The returned length is
// what belongs in the corresponding length field: it is computed from the
// bytes actually written, never tracked separately.
func (b *Builder) WriteTerminatedString(value string) uint32 {
	b.buffer = append(b.buffer, value...)
	b.buffer = append(b.buffer, 0)
	return uint32(len(value) + 1)
}

// View returns a read View over the bytes written so far. Intended for
// loopback decoding; the View is invalidated by further writes.
func (b *Builder) View() *View {
	return NewView(b.buffer)
}
