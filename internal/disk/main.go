// Copyright (c) 2018 Western Digital Corporation or its affiliates.  All rights reserved.
// SPDX-License-Identifier: MIT

package disk

import (
	"encoding/json"
	"flag"
	"os"

	log "github.com/golang/glog"

	"github.com/westerndigitalcorporation/raidsim/internal/core"
)

// Main is the entry point of a disk worker process. It is a function rather
// than a main package so the controller's tests can re-exec the test binary
// as a worker. Returns the process exit status.
//
// The worker's stdin and stdout are the channel pair wired up by the
// controller before spawning, so glog output must only ever go to stderr.
func Main(args []string) int {
	fs := flag.NewFlagSet("raiddisk", flag.ExitOnError)
	id := fs.Int("id", -1, "worker slot index")
	cfgFile := fs.String("diskCfg", "", "configuration file for the disk worker")
	fs.Bool("logtostderr", true, "accepted for symmetry with the other binaries; the worker always logs to stderr")
	fs.Parse(args)
	flag.Set("logtostderr", "true")

	cfg := DefaultConfig
	if *cfgFile != "" {
		f, err := os.Open(*cfgFile)
		if err != nil {
			log.Errorf("couldn't open the provided config file: %s", err)
			return 1
		}
		dec := json.NewDecoder(f)
		err = dec.Decode(&cfg)
		f.Close()
		if err != nil {
			log.Errorf("failed to decode the config file: %s", err)
			return 1
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Errorf("failed to validate configuration: %s", err)
		return 1
	}
	if *id < 0 || *id >= cfg.Geometry.TotalSlots() {
		log.Errorf("slot index %d out of range for %s", *id, cfg.Geometry)
		return 1
	}

	w := NewWorker(*id, cfg, os.Stdin, os.Stdout)
	status := 0
	if err := w.Serve(); err != core.NoError {
		log.Errorf("disk %d exiting with failure: %s", *id, err)
		status = 1
	}
	log.Flush()
	return status
}
