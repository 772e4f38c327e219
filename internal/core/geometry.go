// Copyright (c) 2018 Western Digital Corporation or its affiliates.  All rights reserved.
// SPDX-License-Identifier: MIT

package core

import "fmt"

// Geometry describes the shape of the simulated array. It is fixed at
// startup and shared, read-only, by the controller and every disk worker.
type Geometry struct {
	// NumDisks is the number of data disks (D). The array runs D+1 worker
	// slots; slot D is the parity disk.
	NumDisks int

	// BlockSize is the size of one block in bytes (B). Every payload on the
	// wire is exactly this long.
	BlockSize int

	// DiskSize is the capacity of a single disk in bytes (S). Each worker
	// holds a byte array of exactly this size.
	DiskSize int
}

// TotalSlots returns the number of worker slots, data disks plus parity.
func (g Geometry) TotalSlots() int {
	return g.NumDisks + 1
}

// ParitySlot returns the slot index of the parity disk.
func (g Geometry) ParitySlot() int {
	return g.NumDisks
}

// BlocksPerDisk returns how many blocks fit on a single disk.
func (g Geometry) BlocksPerDisk() int {
	return g.DiskSize / g.BlockSize
}

// MaxBlocks returns the size of the addressable logical block range,
// [0, DiskSize/BlockSize). Note that this intentionally equals the capacity
// of a single disk, matching the address check the simulator has always had.
func (g Geometry) MaxBlocks() int {
	return g.DiskSize / g.BlockSize
}

// ValidBlock reports whether a global block number is addressable.
func (g Geometry) ValidBlock(block int) bool {
	return block >= 0 && block < g.MaxBlocks()
}

// Locate maps a global block number to its (data disk, stripe) coordinates.
// Each disk is a linear array of blocks, so the block's index on the
// individual disk equals the stripe number.
func (g Geometry) Locate(block int) (disk, stripe int) {
	return block % g.NumDisks, block / g.NumDisks
}

// Validate validates that the geometry has reasonable (not obviously wrong)
// values.
func (g Geometry) Validate() error {
	if g.NumDisks < 2 {
		return fmt.Errorf("need at least two data disks, have %d", g.NumDisks)
	}
	if g.BlockSize <= 0 {
		return fmt.Errorf("block size must be positive, have %d", g.BlockSize)
	}
	if g.DiskSize <= 0 || g.DiskSize%g.BlockSize != 0 {
		return fmt.Errorf("disk size %d is not a positive multiple of block size %d", g.DiskSize, g.BlockSize)
	}
	return nil
}

// String returns a human-readable summary of the geometry.
func (g Geometry) String() string {
	return fmt.Sprintf("%d+1 disks, %dB blocks, %dB per disk", g.NumDisks, g.BlockSize, g.DiskSize)
}
