// Copyright (c) 2018 Western Digital Corporation or its affiliates.  All rights reserved.
// SPDX-License-Identifier: MIT

package controller

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/westerndigitalcorporation/raidsim/internal/core"
)

// Config encapsulates parameters for the RAID controller.
type Config struct {
	// Geometry is the array shape: data disk count, block size, per-disk
	// capacity. Fixed for the life of the simulation.
	Geometry core.Geometry

	// CheckpointDir is where workers write their checkpoint files and where
	// the shared worker config file is placed.
	CheckpointDir string

	// WorkerBin is the path of the disk worker binary to spawn. If empty,
	// the controller looks for "raiddisk" next to its own executable and
	// then on PATH.
	WorkerBin string

	// Debug enables per-operation debug output in the controller and in the
	// workers it spawns.
	Debug bool

	// UseFailure registers the disk_kill/disk_restore handlers with the
	// failure service so faults can be injected over HTTP.
	UseFailure bool
}

// Validate validates the configuration object has reasonable (not obviously
// wrong) values.
func (c Config) Validate() error {
	if err := c.Geometry.Validate(); err != nil {
		return err
	}
	if c.CheckpointDir == "" {
		return fmt.Errorf("checkpoint directory can not be empty")
	}
	return nil
}

// findWorkerBin resolves the disk worker binary to spawn.
func (c Config) findWorkerBin() (string, error) {
	if c.WorkerBin != "" {
		return c.WorkerBin, nil
	}
	if self, err := os.Executable(); err == nil {
		bin := filepath.Join(filepath.Dir(self), "raiddisk")
		if fi, err := os.Stat(bin); err == nil && fi.Mode().Perm()&0100 != 0 {
			return bin, nil
		}
	}
	return exec.LookPath("raiddisk")
}

// DefaultConfig specifies the default values for Config.
var DefaultConfig = Config{
	Geometry: core.Geometry{
		NumDisks:  4,
		BlockSize: 512,
		DiskSize:  64 * 512,
	},
	CheckpointDir: ".",
}

// DefaultTestConfig specifies the default values for Config that is used for
// testing. The geometry is the smallest one that still exercises striping.
var DefaultTestConfig = Config{
	Geometry: core.Geometry{
		NumDisks:  3,
		BlockSize: 4,
		DiskSize:  16,
	},
	CheckpointDir: ".",
	Debug:         true,
	UseFailure:    true,
}
