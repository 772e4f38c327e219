// Copyright (c) 2018 Western Digital Corporation or its affiliates.  All rights reserved.
// SPDX-License-Identifier: MIT

// Package wire is the binary contract between the controller and the disk
// workers. Both sides encode and decode with these helpers and nothing else,
// so the layout lives in exactly one place.
//
// Every message starts with a fixed-size command tag. READ and WRITE carry
// the local block index on the target disk (the stripe number, not the
// global block number). A WRITE request and a READ reply carry exactly one
// block of payload. There is no framing and no versioning beyond the fixed
// field sizes, and the protocol is strictly request/response: the controller
// never has two requests in flight.
package wire

import (
	"encoding/binary"
	"io"

	"github.com/westerndigitalcorporation/raidsim/internal/core"
)

// Op is the command tag at the head of every message.
type Op uint32

const (
	// OpRead asks the worker to send back one block.
	OpRead Op = iota
	// OpWrite hands the worker one block to store. The worker sends no reply.
	OpWrite
	// OpExit asks the worker to checkpoint its disk and terminate.
	OpExit
)

// String returns the name of the command tag.
func (o Op) String() string {
	switch o {
	case OpRead:
		return "READ"
	case OpWrite:
		return "WRITE"
	case OpExit:
		return "EXIT"
	}
	return "UNKNOWN"
}

// All integer fields are little-endian uint32.
const fieldSize = 4

// WriteOp writes a command tag to a disk channel.
func WriteOp(w io.Writer, op Op) core.Error {
	return putUint32(w, uint32(op))
}

// ReadOp reads the next command tag from a disk channel.
func ReadOp(r io.Reader) (Op, core.Error) {
	v, err := getUint32(r)
	return Op(v), err
}

// WriteIndex writes a local block index to a disk channel.
func WriteIndex(w io.Writer, index int) core.Error {
	return putUint32(w, uint32(index))
}

// ReadIndex reads a local block index from a disk channel.
func ReadIndex(r io.Reader) (int, core.Error) {
	v, err := getUint32(r)
	return int(v), err
}

// WritePayload writes exactly one block of payload. io.Writer promises that
// a nil error means the full slice was written, so a short write surfaces
// here as an error.
func WritePayload(w io.Writer, b []byte) core.Error {
	if _, err := w.Write(b); err != nil {
		return core.FromIOError(err)
	}
	return core.NoError
}

// ReadPayload fills b with exactly one block of payload. A transfer shorter
// than len(b) is a protocol violation and reports ErrShortIO.
func ReadPayload(r io.Reader, b []byte) core.Error {
	if _, err := io.ReadFull(r, b); err != nil {
		return core.FromIOError(err)
	}
	return core.NoError
}

// SendRead sends a complete READ request for the given local block index.
func SendRead(w io.Writer, index int) core.Error {
	if err := WriteOp(w, OpRead); err != core.NoError {
		return err
	}
	return WriteIndex(w, index)
}

// SendWrite sends a complete WRITE request: tag, local block index, and one
// block of payload. The worker does not acknowledge writes.
func SendWrite(w io.Writer, index int, payload []byte) core.Error {
	if err := WriteOp(w, OpWrite); err != core.NoError {
		return err
	}
	if err := WriteIndex(w, index); err != core.NoError {
		return err
	}
	return WritePayload(w, payload)
}

// SendExit sends an EXIT request. EXIT carries nothing else.
func SendExit(w io.Writer) core.Error {
	return WriteOp(w, OpExit)
}

func putUint32(w io.Writer, v uint32) core.Error {
	var buf [fieldSize]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	if _, err := w.Write(buf[:]); err != nil {
		return core.FromIOError(err)
	}
	return core.NoError
}

func getUint32(r io.Reader) (uint32, core.Error) {
	var buf [fieldSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, core.FromIOError(err)
	}
	return binary.LittleEndian.Uint32(buf[:]), core.NoError
}
