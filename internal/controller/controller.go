// Copyright (c) 2018 Western Digital Corporation or its affiliates.  All rights reserved.
// SPDX-License-Identifier: MIT

// Package controller implements the RAID-4 controller: it spawns one disk
// worker process per slot, speaks the wire protocol to them over pipe pairs,
// maintains the parity disk, and injects and recovers from simulated disk
// failures.
package controller

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"

	log "github.com/golang/glog"
	"github.com/klauspost/reedsolomon"

	"github.com/westerndigitalcorporation/raidsim/internal/core"
	"github.com/westerndigitalcorporation/raidsim/internal/disk"
	"github.com/westerndigitalcorporation/raidsim/internal/wire"
	"github.com/westerndigitalcorporation/raidsim/pkg/failures"
)

// workerEnv is set in the environment of every spawned worker. Test binaries
// use it to tell apart being re-executed as a worker from running tests.
const workerEnv = "RAIDSIM_WORKER_PROCESS"

// workerCfgName is the name of the shared worker config file, written into
// the checkpoint directory by InitializeAll.
const workerCfgName = "disk.cfg"

// Controller drives the array. All exported operations are synchronous and
// serialized: the controller has at most one request in flight to one worker
// at any time, which is what makes the per-worker channels safe without any
// protocol-level locking.
type Controller struct {
	cfg  *Config
	geom core.Geometry

	// enc computes and checks parity. With one parity shard, Reed-Solomon
	// parity is exactly the XOR fold across the data shards.
	enc reedsolomon.Encoder

	loggers []Logger
	bin     string // resolved worker binary
	cfgPath string // path of the shared worker config file

	// lock serializes the exported operations. The core request path is
	// single-threaded, but the failure service can poke SimulateFailure and
	// Restore from HTTP handler goroutines.
	lock  sync.Mutex
	slots []*slot
}

// NewController creates a controller for the configured geometry. No workers
// are started until InitializeAll.
func NewController(cfg *Config, loggers []Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	enc, err := reedsolomon.New(cfg.Geometry.NumDisks, 1)
	if err != nil {
		return nil, err
	}
	c := &Controller{
		cfg:     cfg,
		geom:    cfg.Geometry,
		enc:     enc,
		loggers: loggers,
	}
	if cfg.UseFailure {
		c.registerFailureHandlers()
	}
	return c, nil
}

// Geometry returns the array geometry.
func (c *Controller) Geometry() core.Geometry {
	return c.geom
}

// InitializeAll spawns a worker process with a fresh channel pair for every
// slot, data disks first and the parity disk last. It fails atomically: if
// any spawn fails, every worker started so far is torn down and no partial
// array is left live.
func (c *Controller) InitializeAll() core.Error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.slots != nil {
		log.Errorf("array is already initialized")
		return core.ErrSpawn
	}

	var err error
	if c.bin, err = c.cfg.findWorkerBin(); err != nil {
		log.Errorf("can't find disk worker binary: %s", err)
		return core.ErrSpawn
	}

	// All workers read one shared config file for the geometry.
	c.cfgPath = filepath.Join(c.cfg.CheckpointDir, workerCfgName)
	wcfg := disk.Config{
		Geometry:      c.geom,
		CheckpointDir: c.cfg.CheckpointDir,
		Debug:         c.cfg.Debug,
	}
	if err := writeConfigFile(c.cfgPath, wcfg); err != nil {
		log.Errorf("failed to write worker config file: %s", err)
		return core.ErrSpawn
	}

	total := c.geom.TotalSlots()
	slots := make([]*slot, total)
	for i := 0; i < total; i++ {
		slots[i] = &slot{id: i, name: slotName(i, c.geom.NumDisks)}
		if cerr := c.spawn(slots[i]); cerr != core.NoError {
			log.Errorf("init disk %d failed, rolling back", i)
			for j := 0; j <= i; j++ {
				c.teardown(slots[j])
			}
			return core.ErrSpawn
		}
	}
	c.slots = slots
	log.Infof("array initialized: %s", c.geom)
	return core.NoError
}

// spawn starts a worker process for the slot and wires up a fresh channel
// pair, replacing the slot's process handle and endpoints in place.
//
// os/exec passes the child exactly the three stdio descriptors; every other
// descriptor the controller holds (including every other slot's endpoints)
// is close-on-exec, so the new worker starts owning only its own halves.
// The controller closes its copies of the child's halves right after Start
// or the worker would never see EOF on its command channel.
func (c *Controller) spawn(s *slot) core.Error {
	toR, toW, err := os.Pipe()
	if err != nil {
		log.Errorf("pipe: %s", err)
		return core.ErrSpawn
	}
	fromR, fromW, err := os.Pipe()
	if err != nil {
		log.Errorf("pipe: %s", err)
		toR.Close()
		toW.Close()
		return core.ErrSpawn
	}

	cmd := exec.Command(c.bin,
		"-id", strconv.Itoa(s.id),
		"-diskCfg", c.cfgPath,
		"-logtostderr")
	cmd.Stdin = toR
	cmd.Stdout = fromW
	cmd.Stderr = NewLogDemuxer(s.name, c.loggers)
	cmd.Env = append(os.Environ(), workerEnv+"=1")

	if err := cmd.Start(); err != nil {
		log.Errorf("failed to start worker %s: %s", s.name, err)
		toR.Close()
		toW.Close()
		fromR.Close()
		fromW.Close()
		return core.ErrSpawn
	}

	// The child holds its own copies of these now.
	toR.Close()
	fromW.Close()

	s.cmd = cmd
	s.toDisk = toW
	s.fromDisk = fromR
	metricWorkersUp.Inc()
	log.V(1).Infof("spawned %s", s)
	return core.NoError
}

// teardown hard-stops a slot's worker during init rollback and releases the
// controller-side endpoints.
func (c *Controller) teardown(s *slot) {
	if s.running() {
		s.cmd.Process.Kill()
		s.cmd.Wait()
		s.cmd = nil
		metricWorkersUp.Dec()
	}
	s.closeEndpoints()
}

// ShutdownAndWait sends EXIT to every live worker, then reaps them all. Each
// worker checkpoints its disk before exiting; exit codes are not inspected.
// No zombie processes remain when this returns.
func (c *Controller) ShutdownAndWait() {
	c.lock.Lock()
	defer c.lock.Unlock()

	for _, s := range c.slots {
		if !s.running() {
			continue
		}
		if err := wire.SendExit(s.toDisk); err != core.NoError {
			log.Errorf("warning: failed to send exit command to %s: %s", s.name, err)
		}
	}
	for _, s := range c.slots {
		if !s.running() {
			continue
		}
		s.cmd.Wait()
		s.cmd = nil
		metricWorkersUp.Dec()
		s.closeEndpoints()
		log.V(1).Infof("reaped %s", s.name)
	}
	log.Infof("all disk workers terminated")
}

// SimulateFailure delivers SIGINT to the slot's worker and blocks until the
// process has been reaped. This models a fail-stop fault: the worker simply
// stops existing, with no partial writes. The slot's channel endpoints are
// left alone; they are invalid until Restore replaces them.
func (c *Controller) SimulateFailure(slotIdx int) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.simulateFailureLocked(slotIdx)
}

func (c *Controller) simulateFailureLocked(slotIdx int) {
	s := c.slots[slotIdx]
	if !s.running() {
		log.Errorf("disk %s is not running", s.name)
		return
	}
	if c.cfg.Debug {
		log.Infof("simulate: killing disk %s", s)
	}
	if err := s.cmd.Process.Signal(syscall.SIGINT); err != nil {
		log.Errorf("failed to signal %s: %s", s, err)
	}
	s.cmd.Wait()
	s.cmd = nil
	metricWorkersUp.Dec()
	metricFailures.WithLabelValues(s.name).Inc()
}

// Restore rebuilds a slot after a simulated failure: fresh channel pair,
// fresh spawn, exactly as InitializeAll did for that slot. The new worker
// starts from a zero-filled disk; it does not reload the old checkpoint and
// nothing reconstructs its content from parity. Failure to restore is
// unrecoverable and terminates the whole simulation.
func (c *Controller) Restore(slotIdx int) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.restoreLocked(slotIdx)
}

func (c *Controller) restoreLocked(slotIdx int) {
	s := c.slots[slotIdx]
	if s.running() {
		log.Errorf("disk %s is still running, not restoring", s.name)
		return
	}
	// The endpoints of the dead worker are useless now; drop them before
	// wiring up the new pair.
	s.closeEndpoints()
	if err := c.spawn(s); err != core.NoError {
		log.Fatalf("failed to restore disk process for slot %d: %s", slotIdx, err)
	}
	s.restarts++
	metricRestarts.WithLabelValues(s.name).Inc()
}

// registerFailureHandlers hooks SimulateFailure and Restore up to the
// failure service, so a test driver can inject faults over HTTP:
//
//	curl <addr>/__failure__ -XPOST -d '{"disk_kill": 2}'
//	curl <addr>/__failure__ -XPOST -d '{"disk_restore": 2}'
func (c *Controller) registerFailureHandlers() {
	failures.Register("disk_kill", c.failureHandler(func(c *Controller, slot int) {
		c.simulateFailureLocked(slot)
	}))
	failures.Register("disk_restore", c.failureHandler(func(c *Controller, slot int) {
		c.restoreLocked(slot)
	}))
}

func (c *Controller) failureHandler(f func(*Controller, int)) func(json.RawMessage) error {
	return func(config json.RawMessage) error {
		if config == nil {
			// Resetting the failure config is a no-op for one-shot faults.
			return nil
		}
		var slotIdx int
		if err := json.Unmarshal(config, &slotIdx); err != nil {
			return err
		}
		c.lock.Lock()
		defer c.lock.Unlock()
		if c.slots == nil || slotIdx < 0 || slotIdx >= len(c.slots) {
			return core.ErrInvalidAddress.Error()
		}
		f(c, slotIdx)
		return nil
	}
}

// A helper function to write configuration to a file in JSON format.
func writeConfigFile(fpath string, config interface{}) error {
	file, err := os.Create(fpath)
	if err != nil {
		return err
	}
	defer file.Close()
	enc := json.NewEncoder(file)
	return enc.Encode(config)
}
