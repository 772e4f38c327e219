// Copyright (c) 2018 Western Digital Corporation or its affiliates.  All rights reserved.
// SPDX-License-Identifier: MIT

package core

import "io"

// Error is our own defined error type so the same codes can cross the
// controller/worker boundary as process exit statuses and log lines.
type Error int

const (
	// NoError means no error.
	NoError = Error(iota)

	//------ Errors from the RAID logical layer ------//

	// ErrInvalidAddress is returned when a global block number is outside the
	// addressable range of the array.
	ErrInvalidAddress

	// ErrInvalidBuffer is returned when a caller hands us a nil buffer, or a
	// buffer whose length doesn't match the configured block size.
	ErrInvalidBuffer

	// ErrCorruptParity is returned by verification when a parity block does
	// not match the XOR of the data blocks in its stripe.
	ErrCorruptParity

	//------ Errors from the wire protocol ------//

	// ErrIO is returned when a read or write on a disk channel fails outright.
	// The peer is probably gone.
	ErrIO

	// ErrShortIO is returned when a channel transfer moves fewer bytes than
	// the fixed message layout demands. Always fatal to the current operation,
	// never retried.
	ErrShortIO

	// ErrUnknownCommand is returned by a worker that received a command tag
	// outside the known set. The worker treats this as a protocol violation
	// and exits with failure status.
	ErrUnknownCommand

	//------ Errors from the orchestration layer ------//

	// ErrSpawn is returned when creating a worker process or its channel pair
	// fails. During initial setup this rolls back the whole array.
	ErrSpawn

	// ErrDiskDead is returned for operations routed to a slot whose worker
	// has been killed and not yet restored.
	ErrDiskDead

	//------ Errors from the disk worker ------//

	// ErrCheckpoint is returned when a worker fails to persist its checkpoint
	// file at exit.
	ErrCheckpoint

	//------ Meta-error ------//

	// ErrUnknown is an error that we're not really sure about.
	ErrUnknown
)

var description = map[Error]string{
	NoError: "no error",

	// RAID logical layer.
	ErrInvalidAddress: "block number out of range",
	ErrInvalidBuffer:  "invalid or mis-sized data buffer",
	ErrCorruptParity:  "parity does not match XOR of data blocks",

	// Wire protocol.
	ErrIO:             "I/O error on disk channel",
	ErrShortIO:        "short transfer on disk channel",
	ErrUnknownCommand: "unknown command tag",

	// Orchestration.
	ErrSpawn:    "failed to spawn disk worker",
	ErrDiskDead: "disk worker is dead, restore it first",

	// Disk worker.
	ErrCheckpoint: "failed to write checkpoint file",

	// Meta-error.
	ErrUnknown: "unknown error!!!! contact a programming professional to diagnose",
}

// String returns a human readable error message.
func (e Error) String() string {
	if s, ok := description[e]; ok {
		return s
	}
	return "NO DESCRIPTION FOR ERROR FIX THIS"
}

// Error returns a golang error object with an error message corresponding to
// this core.Error.
func (e Error) Error() error {
	if e == NoError {
		return nil
	}
	return goError(e)
}

// Is checks whether the generic Go error 'g' is actually the receiver error
// underneath.
func (e Error) Is(g error) bool {
	b, ok := g.(goError)
	return ok && (Error)(b) == e
}

// goError is a wrapper type to make our Error act like Go's 'error'.
type goError Error

// Error implements the 'error' interface.
func (g goError) Error() string {
	return (Error)(g).String()
}

// SimError gets the underlying core.Error from an error.
func SimError(err error) (Error, bool) {
	e, ok := err.(goError)
	return Error(e), ok
}

// FromIOError maps an error returned by a channel read/write to our error
// space. Short transfers (including a clean EOF in the middle of a message
// exchange) are distinguished from outright I/O failures because the protocol
// treats any partial message as a violation.
func FromIOError(err error) Error {
	switch err {
	case nil:
		return NoError
	case io.EOF, io.ErrUnexpectedEOF:
		return ErrShortIO
	default:
		return ErrIO
	}
}
