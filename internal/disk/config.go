// Copyright (c) 2018 Western Digital Corporation or its affiliates.  All rights reserved.
// SPDX-License-Identifier: MIT

package disk

import (
	"fmt"
	"path/filepath"

	"github.com/westerndigitalcorporation/raidsim/internal/core"
)

// Config encapsulates parameters for a disk worker. The controller writes it
// to a JSON file once per run and every worker reads the same file, so all
// slots agree on the array geometry.
type Config struct {
	// Geometry is the array shape. The worker only uses BlockSize and
	// DiskSize, but carrying the whole geometry keeps one config for all
	// slots.
	Geometry core.Geometry

	// CheckpointDir is where checkpoint files are written at EXIT.
	CheckpointDir string

	// Debug enables per-command debug output.
	Debug bool
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
// testing. The geometry is tiny so tests can inspect whole disks.
var DefaultTestConfig = Config{
	Geometry: core.Geometry{
		NumDisks:  3,
		BlockSize: 4,
		DiskSize:  16,
	},
	CheckpointDir: ".",
	Debug:         true,
}

// CheckpointPath returns the deterministic checkpoint file name for a slot.
func CheckpointPath(dir string, id int) string {
	return filepath.Join(dir, fmt.Sprintf("disk_%d.dat", id))
}
