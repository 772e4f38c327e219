// Copyright (c) 2018 Western Digital Corporation or its affiliates.  All rights reserved.
// SPDX-License-Identifier: MIT

package controller

import (
	"fmt"
	"os"
	"os/exec"
)

// slot is the controller's record for one worker slot: the process handle
// and the two channel endpoints the controller retains. There is exactly one
// record per slot for the life of the simulation; init and restore replace
// its fields in place, never the record itself.
//
// Endpoint ownership: the controller holds the write end of the to-disk
// channel and the read end of the from-disk channel. The other two halves
// belong to the worker process and are never touched here after spawn.
type slot struct {
	id   int
	name string

	// cmd is the running worker process, or nil if the slot's worker has
	// been killed (or was never started).
	cmd *exec.Cmd

	// toDisk is the write end of the controller→worker channel.
	toDisk *os.File
	// fromDisk is the read end of the worker→controller channel.
	fromDisk *os.File

	// restarts counts how many times this slot's worker has been restored.
	restarts int
}

// slotName names a slot for logs and metrics: data disks are "d<i>", the
// parity slot is "p".
func slotName(id, numDisks int) string {
	if id == numDisks {
		return "p"
	}
	return fmt.Sprintf("d%d", id)
}

// running returns true if the slot's worker process is alive as far as the
// controller knows.
func (s *slot) running() bool {
	return s.cmd != nil
}

// pid returns the worker's process ID if it's running, 0 otherwise.
func (s *slot) pid() int {
	if !s.running() {
		return 0
	}
	return s.cmd.Process.Pid
}

// closeEndpoints closes the controller-side channel endpoints. Used when the
// slot is being rebuilt or torn down; the stale descriptors must not outlive
// the worker they belonged to or a later reader could wait forever on a
// channel nobody writes.
func (s *slot) closeEndpoints() {
	if s.toDisk != nil {
		s.toDisk.Close()
		s.toDisk = nil
	}
	if s.fromDisk != nil {
		s.fromDisk.Close()
		s.fromDisk = nil
	}
}

// String returns a human-readable string of the slot.
func (s *slot) String() string {
	if s.running() {
		return fmt.Sprintf("%s [pid %d]", s.name, s.pid())
	}
	return fmt.Sprintf("%s [down]", s.name)
}
