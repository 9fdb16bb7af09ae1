// Copyright 2026 The Traceplane Authors
// SPDX-License-Identifier: Apache-2.0

// Package fdio provides full-count reads and writes on raw file
// descriptors. The control channel runs over a descriptor the caller has
// already opened (pipe, unix socket, inherited fd), and the protocol
// depends on whole frames arriving intact: a read or write that moves
// fewer bytes than requested because a signal interrupted the call, or
// because the kernel split the transfer, would corrupt the stream.
//
// ReadFull and WriteFull mask both conditions. Interrupted calls are
// retried indefinitely; partial transfers continue as long as the
// underlying call makes progress. The outcome is a Result carrying the
// transferred count and the error separately, because a short transfer
// has two distinct meanings that callers must not conflate:
//
//   - short count, nil error: the peer closed cleanly mid-transfer
//     (or end of file was reached); no bytes were lost.
//   - short count, non-nil error: the descriptor failed mid-transfer.
//
// The package holds no locks. A single descriptor must not be driven by
// two concurrent callers without external serialization, and no timeout
// is imposed: callers needing bounded waits must configure the descriptor
// (non-blocking mode, peer watchdog) before calling in.
package fdio

import "golang.org/x/sys/unix"

// Syscall seams, replaced in tests to simulate interruption and
// constrained-progress descriptors.
var (
	readFunc  = unix.Read
	writeFunc = unix.Write
)

// Result is the outcome of a full-count transfer. Transferred is the
// number of bytes actually moved; Err is the error from the underlying
// call that stopped the transfer, or nil if the transfer either completed
// or stopped cleanly (peer closed, end of file).
type Result struct {
	Transferred int
	Err         error
}

// Complete reports whether the full requested count was transferred
// without error.
func (r Result) Complete(requested int) bool {
	return r.Err == nil && r.Transferred == requested
}

// ClosedEarly reports the clean short outcome: fewer bytes than requested
// but no error, meaning the peer stopped the stream rather than the
// descriptor failing.
func (r Result) ClosedEarly(requested int) bool {
	return r.Err == nil && r.Transferred < requested
}

// Failed reports whether the transfer stopped on a descriptor error. The
// transferred count is still meaningful: bytes moved before the failure
// were delivered.
func (r Result) Failed() bool {
	return r.Err != nil
}

// ReadFull reads from fd until buffer is full, the descriptor reports end
// of file, or an error other than EINTR occurs. See Result for how the
// outcomes are distinguished.
func ReadFull(fd int, buffer []byte) Result {
	transferred := 0
	for transferred < len(buffer) {
		n, err := readFunc(fd, buffer[transferred:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return Result{Transferred: transferred, Err: err}
		}
		if n == 0 {
			// End of file: clean stop, possibly short.
			break
		}
		transferred += n
	}
	return Result{Transferred: transferred}
}

// WriteFull writes buffer to fd until every byte is written or an error
// other than EINTR occurs. See Result for how the outcomes are
// distinguished.
func WriteFull(fd int, buffer []byte) Result {
	transferred := 0
	for transferred < len(buffer) {
		n, err := writeFunc(fd, buffer[transferred:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return Result{Transferred: transferred, Err: err}
		}
		if n == 0 {
			break
		}
		transferred += n
	}
	return Result{Transferred: transferred}
}
