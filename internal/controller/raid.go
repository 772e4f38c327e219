// Copyright (c) 2018 Western Digital Corporation or its affiliates.  All rights reserved.
// SPDX-License-Identifier: MIT

package controller

import (
	log "github.com/golang/glog"

	"github.com/westerndigitalcorporation/raidsim/internal/core"
	"github.com/westerndigitalcorporation/raidsim/internal/wire"
)

// ReadBlock reads the logical block 'block' into b, which must be exactly
// one block long. The read goes to a single data disk; nothing is ever
// reconstructed from parity, so a read routed to a dead disk fails.
func (c *Controller) ReadBlock(block int, b []byte) core.Error {
	c.lock.Lock()
	defer c.lock.Unlock()

	op := startOp("read_block")
	return op.done(c.readBlockLocked(block, b))
}

func (c *Controller) readBlockLocked(block int, b []byte) core.Error {
	if cerr := c.checkArgs(block, b); cerr != core.NoError {
		return cerr
	}
	diskIdx, stripe := c.geom.Locate(block)
	if c.cfg.Debug {
		log.Infof("read block %d -> disk %d stripe %d", block, diskIdx, stripe)
	}
	return c.readFrom(c.slots[diskIdx], stripe, b)
}

// WriteBlock writes one block of data to the logical block 'block' and
// brings the parity disk up to date with a full-stripe recompute: the other
// data disks' blocks at the same stripe are read back, parity is recomputed
// over all of them plus the new data, and the result is written to the
// parity disk.
//
// If the data write fails, parity has not been touched and the stripe is
// still consistent. If a failure hits during the parity phase, the data disk
// has already been updated and parity is stale until a later successful
// write to the same stripe; that narrow window is accepted behavior, not
// repaired here.
func (c *Controller) WriteBlock(block int, data []byte) core.Error {
	c.lock.Lock()
	defer c.lock.Unlock()

	op := startOp("write_block")
	return op.done(c.writeBlockLocked(block, data))
}

func (c *Controller) writeBlockLocked(block int, data []byte) core.Error {
	if cerr := c.checkArgs(block, data); cerr != core.NoError {
		return cerr
	}
	diskIdx, stripe := c.geom.Locate(block)
	if c.cfg.Debug {
		log.Infof("write block %d -> disk %d stripe %d", block, diskIdx, stripe)
	}

	if cerr := c.writeTo(c.slots[diskIdx], stripe, data); cerr != core.NoError {
		log.Errorf("failed to write block %d to disk %d: %s", block, diskIdx, cerr)
		return cerr
	}

	// Full-stripe recompute. Read the current content of the other data
	// disks at this stripe and encode the parity shard from all D blocks.
	shards := make([][]byte, c.geom.TotalSlots())
	for i := 0; i < c.geom.NumDisks; i++ {
		if i == diskIdx {
			shards[i] = data
			continue
		}
		buf := make([]byte, c.geom.BlockSize)
		if cerr := c.readFrom(c.slots[i], stripe, buf); cerr != core.NoError {
			log.Errorf("failed to read stripe %d from disk %d for parity: %s", stripe, i, cerr)
			return cerr
		}
		shards[i] = buf
	}
	shards[c.geom.ParitySlot()] = make([]byte, c.geom.BlockSize)
	if err := c.enc.Encode(shards); err != nil {
		log.Errorf("parity encode failed: %s", err)
		return core.ErrUnknown
	}

	if cerr := c.writeTo(c.slots[c.geom.ParitySlot()], stripe, shards[c.geom.ParitySlot()]); cerr != core.NoError {
		log.Errorf("failed to write updated parity for stripe %d: %s", stripe, cerr)
		return cerr
	}
	return core.NoError
}

// ReadParityBlock reads the parity disk's block at the given stripe into b.
func (c *Controller) ReadParityBlock(stripe int, b []byte) core.Error {
	c.lock.Lock()
	defer c.lock.Unlock()

	op := startOp("read_parity")
	return op.done(c.readParityLocked(stripe, b))
}

func (c *Controller) readParityLocked(stripe int, b []byte) core.Error {
	if c.slots == nil {
		return core.ErrDiskDead
	}
	if stripe < 0 || stripe >= c.geom.BlocksPerDisk() {
		return core.ErrInvalidAddress
	}
	if len(b) != c.geom.BlockSize {
		return core.ErrInvalidBuffer
	}
	return c.readFrom(c.slots[c.geom.ParitySlot()], stripe, b)
}

// VerifyStripe reads every data block and the parity block at the given
// stripe and checks the parity invariant. Returns ErrCorruptParity if parity
// does not match the XOR of the data blocks.
func (c *Controller) VerifyStripe(stripe int) core.Error {
	c.lock.Lock()
	defer c.lock.Unlock()

	op := startOp("verify_stripe")
	return op.done(c.verifyStripeLocked(stripe))
}

func (c *Controller) verifyStripeLocked(stripe int) core.Error {
	if c.slots == nil {
		return core.ErrDiskDead
	}
	if stripe < 0 || stripe >= c.geom.BlocksPerDisk() {
		return core.ErrInvalidAddress
	}
	shards := make([][]byte, c.geom.TotalSlots())
	for i := range shards {
		shards[i] = make([]byte, c.geom.BlockSize)
		if cerr := c.readFrom(c.slots[i], stripe, shards[i]); cerr != core.NoError {
			return cerr
		}
	}
	ok, err := c.enc.Verify(shards)
	if err != nil {
		log.Errorf("parity verify failed: %s", err)
		return core.ErrUnknown
	}
	if !ok {
		return core.ErrCorruptParity
	}
	return core.NoError
}

// checkArgs validates a block number and a caller buffer. Rejections happen
// before any I/O and surface no partial effects.
func (c *Controller) checkArgs(block int, b []byte) core.Error {
	if c.slots == nil {
		return core.ErrDiskDead
	}
	if !c.geom.ValidBlock(block) {
		log.Errorf("invalid block number %d", block)
		return core.ErrInvalidAddress
	}
	if b == nil || len(b) != c.geom.BlockSize {
		log.Errorf("invalid data buffer for block %d", block)
		return core.ErrInvalidBuffer
	}
	return core.NoError
}

// readFrom issues a READ for one local block to a single worker and blocks
// for the full reply.
func (c *Controller) readFrom(s *slot, stripe int, b []byte) core.Error {
	if !s.running() {
		return core.ErrDiskDead
	}
	if cerr := wire.SendRead(s.toDisk, stripe); cerr != core.NoError {
		log.Errorf("read: failed to send command to %s: %s", s.name, cerr)
		return cerr
	}
	if cerr := wire.ReadPayload(s.fromDisk, b); cerr != core.NoError {
		log.Errorf("read: failed to read data from %s: %s", s.name, cerr)
		return cerr
	}
	return core.NoError
}

// writeTo issues a WRITE for one local block to a single worker. The
// protocol has no write acknowledgment; an error here means the channel
// itself failed.
func (c *Controller) writeTo(s *slot, stripe int, data []byte) core.Error {
	if !s.running() {
		return core.ErrDiskDead
	}
	if cerr := wire.SendWrite(s.toDisk, stripe, data); cerr != core.NoError {
		log.Errorf("write: failed to send block to %s: %s", s.name, cerr)
		return cerr
	}
	return core.NoError
}
