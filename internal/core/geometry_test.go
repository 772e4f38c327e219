// Copyright (c) 2018 Western Digital Corporation or its affiliates.  All rights reserved.
// SPDX-License-Identifier: MIT

package core

import "testing"

var testGeom = Geometry{NumDisks: 3, BlockSize: 4, DiskSize: 16}

func TestGeometryDerived(t *testing.T) {
	if testGeom.TotalSlots() != 4 {
		t.Errorf("expected 4 slots, got %d", testGeom.TotalSlots())
	}
	if testGeom.ParitySlot() != 3 {
		t.Errorf("expected parity in slot 3, got %d", testGeom.ParitySlot())
	}
	if testGeom.BlocksPerDisk() != 4 {
		t.Errorf("expected 4 blocks per disk, got %d", testGeom.BlocksPerDisk())
	}
	// The addressable range equals a single disk's capacity.
	if testGeom.MaxBlocks() != 4 {
		t.Errorf("expected 4 addressable blocks, got %d", testGeom.MaxBlocks())
	}
}

func TestLocate(t *testing.T) {
	cases := []struct {
		block, disk, stripe int
	}{
		{0, 0, 0},
		{1, 1, 0},
		{2, 2, 0},
		{3, 0, 1},
		{7, 1, 2},
	}
	for _, c := range cases {
		disk, stripe := testGeom.Locate(c.block)
		if disk != c.disk || stripe != c.stripe {
			t.Errorf("block %d: got (%d, %d), want (%d, %d)", c.block, disk, stripe, c.disk, c.stripe)
		}
	}
}

func TestValidBlock(t *testing.T) {
	for _, block := range []int{0, 1, 2, 3} {
		if !testGeom.ValidBlock(block) {
			t.Errorf("block %d should be addressable", block)
		}
	}
	for _, block := range []int{-1, 4, 100} {
		if testGeom.ValidBlock(block) {
			t.Errorf("block %d should not be addressable", block)
		}
	}
}

func TestGeometryValidate(t *testing.T) {
	if err := testGeom.Validate(); err != nil {
		t.Errorf("valid geometry rejected: %s", err)
	}
	bad := []Geometry{
		{NumDisks: 1, BlockSize: 4, DiskSize: 16},
		{NumDisks: 3, BlockSize: 0, DiskSize: 16},
		{NumDisks: 3, BlockSize: -4, DiskSize: 16},
		{NumDisks: 3, BlockSize: 4, DiskSize: 0},
		{NumDisks: 3, BlockSize: 4, DiskSize: 15},
	}
	for _, g := range bad {
		if err := g.Validate(); err == nil {
			t.Errorf("geometry %+v should not validate", g)
		}
	}
}
