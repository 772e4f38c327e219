// Copyright (c) 2018 Western Digital Corporation or its affiliates.  All rights reserved.
// SPDX-License-Identifier: MIT

// Package disk implements the disk worker: one single-threaded command loop
// per worker process, serving READ/WRITE/EXIT requests from the controller
// over a pair of unidirectional byte channels.
package disk

import (
	"io"
	"io/ioutil"

	log "github.com/golang/glog"

	"github.com/westerndigitalcorporation/raidsim/internal/core"
	"github.com/westerndigitalcorporation/raidsim/internal/wire"
)

// Worker owns the in-memory byte array for one disk slot and serves commands
// until it is told to exit or the channel breaks. A restarted worker is a
// brand new zero-filled instance; it never inherits the data of the worker
// it replaces.
type Worker struct {
	id   int
	cfg  Config
	data []byte
	in   io.Reader
	out  io.Writer
}

// NewWorker creates a worker for slot 'id' with a zero-filled disk, reading
// requests from 'in' and sending replies on 'out'.
func NewWorker(id int, cfg Config, in io.Reader, out io.Writer) *Worker {
	return &Worker{
		id:   id,
		cfg:  cfg,
		data: make([]byte, cfg.Geometry.DiskSize),
		in:   in,
		out:  out,
	}
}

// Serve runs the command loop. It returns NoError after a clean EXIT (the
// checkpoint has been written by then), and an error after any protocol
// violation, in which case no checkpoint is written and the in-memory data
// is lost. A violation only takes down this worker; the controller notices
// the broken channel on its next request.
func (w *Worker) Serve() core.Error {
	for {
		op, err := wire.ReadOp(w.in)
		if err != core.NoError {
			log.Errorf("disk %d: failed to read command: %s", w.id, err)
			return err
		}

		switch op {
		case wire.OpRead:
			if err := w.handleRead(); err != core.NoError {
				return err
			}

		case wire.OpWrite:
			if err := w.handleWrite(); err != core.NoError {
				return err
			}

		case wire.OpExit:
			if err := w.checkpoint(); err != core.NoError {
				return err
			}
			w.data = nil
			return core.NoError

		default:
			log.Errorf("disk %d: unknown command %d", w.id, op)
			return core.ErrUnknownCommand
		}
	}
}

// handleRead reads the local block index and sends exactly one block back.
func (w *Worker) handleRead() core.Error {
	index, err := wire.ReadIndex(w.in)
	if err != core.NoError {
		log.Errorf("disk %d: failed to read block number: %s", w.id, err)
		return err
	}
	block, cerr := w.block(index)
	if cerr != core.NoError {
		return cerr
	}
	w.debugf("disk %d: read block %d", w.id, index)
	if err := wire.WritePayload(w.out, block); err != core.NoError {
		log.Errorf("disk %d: failed to send block %d: %s", w.id, index, err)
		return err
	}
	return core.NoError
}

// handleWrite reads the local block index and one block of payload and
// stores it. Writes are not acknowledged.
func (w *Worker) handleWrite() core.Error {
	index, err := wire.ReadIndex(w.in)
	if err != core.NoError {
		log.Errorf("disk %d: failed to read block number: %s", w.id, err)
		return err
	}
	block, cerr := w.block(index)
	if cerr != core.NoError {
		// A bad index is a protocol violation; the payload is not drained.
		return cerr
	}
	if err := wire.ReadPayload(w.in, block); err != core.NoError {
		log.Errorf("disk %d: failed to read block data: %s", w.id, err)
		return err
	}
	w.debugf("disk %d: wrote block %d", w.id, index)
	return core.NoError
}

// block returns the slice of the disk holding the given local block. An out
// of range index from the controller is a protocol violation.
func (w *Worker) block(index int) ([]byte, core.Error) {
	b := w.cfg.Geometry.BlockSize
	if index < 0 || (index+1)*b > len(w.data) {
		log.Errorf("disk %d: block number %d out of range", w.id, index)
		return nil, core.ErrInvalidAddress
	}
	return w.data[index*b : (index+1)*b], core.NoError
}

// checkpoint persists the full disk contents, exactly DiskSize raw bytes
// with no header, to the deterministic file for this slot. Only EXIT
// triggers persistence.
func (w *Worker) checkpoint() core.Error {
	path := CheckpointPath(w.cfg.CheckpointDir, w.id)
	if err := ioutil.WriteFile(path, w.data, 0644); err != nil {
		log.Errorf("disk %d: failed to write checkpoint %s: %s", w.id, path, err)
		return core.ErrCheckpoint
	}
	w.debugf("disk %d: checkpointed %d bytes to %s", w.id, len(w.data), path)
	return core.NoError
}

func (w *Worker) debugf(format string, args ...interface{}) {
	if w.cfg.Debug {
		log.Infof(format, args...)
	} else {
		log.V(2).Infof(format, args...)
	}
}
