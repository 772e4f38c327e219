// Copyright (c) 2018 Western Digital Corporation or its affiliates.  All rights reserved.
// SPDX-License-Identifier: MIT

package controller

import (
	"bytes"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/westerndigitalcorporation/raidsim/internal/core"
	"github.com/westerndigitalcorporation/raidsim/internal/disk"
	"github.com/westerndigitalcorporation/raidsim/pkg/failures"
	test "github.com/westerndigitalcorporation/raidsim/pkg/testutil"
)

// newTestConfig returns a config for a real array of worker processes, using
// this test binary as the worker (see TestMain).
func newTestConfig(t *testing.T) *Config {
	dir, err := ioutil.TempDir(test.TempDir(), "array")
	if err != nil {
		t.Fatalf("failed to create temp dir: %s", err)
	}
	cfg := DefaultTestConfig
	cfg.CheckpointDir = dir
	cfg.WorkerBin = os.Args[0]
	cfg.UseFailure = false
	return &cfg
}

// newTestArray starts a live array. Callers shut it down themselves when they
// care about checkpoints; the cleanup here is just a safety net.
func newTestArray(t *testing.T) *Controller {
	cfg := newTestConfig(t)
	c, err := NewController(cfg, []Logger{NewTerminalLogger()})
	if err != nil {
		t.Fatalf("failed to create controller: %s", err)
	}
	if cerr := c.InitializeAll(); cerr != core.NoError {
		t.Fatalf("failed to initialize array: %s", cerr)
	}
	t.Cleanup(c.ShutdownAndWait)
	return c
}

func mustWrite(t *testing.T, c *Controller, block int, data string) {
	if cerr := c.WriteBlock(block, []byte(data)); cerr != core.NoError {
		t.Fatalf("failed to write block %d: %s", block, cerr)
	}
}

func mustRead(t *testing.T, c *Controller, block int, want string) {
	b := make([]byte, c.Geometry().BlockSize)
	if cerr := c.ReadBlock(block, b); cerr != core.NoError {
		t.Fatalf("failed to read block %d: %s", block, cerr)
	}
	if !bytes.Equal(b, []byte(want)) {
		t.Fatalf("block %d is %q, want %q", block, b, want)
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	c := newTestArray(t)

	// A fresh array reads all zero.
	mustRead(t, c, 0, "\x00\x00\x00\x00")

	for block, data := range []string{"AAAA", "BBBB", "CCCC", "DDDD"} {
		mustWrite(t, c, block, data)
	}
	for block, data := range []string{"AAAA", "BBBB", "CCCC", "DDDD"} {
		mustRead(t, c, block, data)
	}

	// Overwrites take, including all-0xff data.
	mustWrite(t, c, 2, "\xff\xff\xff\xff")
	mustRead(t, c, 2, "\xff\xff\xff\xff")
}

func TestParityMaintenance(t *testing.T) {
	c := newTestArray(t)

	// Blocks 0, 1, 2 are stripe 0 of disks 0, 1, 2.
	mustWrite(t, c, 0, "AAAA")
	mustWrite(t, c, 1, "BBBB")
	mustWrite(t, c, 2, "CCCC")

	// 'A' ^ 'B' ^ 'C' == '@'.
	parity := make([]byte, c.Geometry().BlockSize)
	if cerr := c.ReadParityBlock(0, parity); cerr != core.NoError {
		t.Fatalf("failed to read parity: %s", cerr)
	}
	if !bytes.Equal(parity, []byte("@@@@")) {
		t.Fatalf("parity is %q, want %q", parity, "@@@@")
	}

	// Block 3 wraps to disk 0, stripe 1. Its stripe-mates are still zero, so
	// the parity block equals the data.
	mustWrite(t, c, 3, "DDDD")
	if cerr := c.ReadParityBlock(1, parity); cerr != core.NoError {
		t.Fatalf("failed to read parity: %s", cerr)
	}
	if !bytes.Equal(parity, []byte("DDDD")) {
		t.Fatalf("parity is %q, want %q", parity, "DDDD")
	}

	for stripe := 0; stripe < c.Geometry().BlocksPerDisk(); stripe++ {
		if cerr := c.VerifyStripe(stripe); cerr != core.NoError {
			t.Errorf("stripe %d: %s", stripe, cerr)
		}
	}
}

func TestArgValidation(t *testing.T) {
	c := newTestArray(t)
	good := make([]byte, c.Geometry().BlockSize)

	for _, block := range []int{-1, c.Geometry().MaxBlocks(), 1000} {
		if cerr := c.ReadBlock(block, good); cerr != core.ErrInvalidAddress {
			t.Errorf("read block %d: got %s, want %s", block, cerr, core.ErrInvalidAddress)
		}
		if cerr := c.WriteBlock(block, good); cerr != core.ErrInvalidAddress {
			t.Errorf("write block %d: got %s, want %s", block, cerr, core.ErrInvalidAddress)
		}
	}

	for _, buf := range [][]byte{nil, make([]byte, 1), make([]byte, 100)} {
		if cerr := c.ReadBlock(0, buf); cerr != core.ErrInvalidBuffer {
			t.Errorf("read with %d byte buffer: got %s, want %s", len(buf), cerr, core.ErrInvalidBuffer)
		}
		if cerr := c.WriteBlock(0, buf); cerr != core.ErrInvalidBuffer {
			t.Errorf("write with %d byte buffer: got %s, want %s", len(buf), cerr, core.ErrInvalidBuffer)
		}
	}

	for _, stripe := range []int{-1, c.Geometry().BlocksPerDisk()} {
		if cerr := c.ReadParityBlock(stripe, good); cerr != core.ErrInvalidAddress {
			t.Errorf("read parity %d: got %s, want %s", stripe, cerr, core.ErrInvalidAddress)
		}
		if cerr := c.VerifyStripe(stripe); cerr != core.ErrInvalidAddress {
			t.Errorf("verify stripe %d: got %s, want %s", stripe, cerr, core.ErrInvalidAddress)
		}
	}
}

func TestOpsBeforeInit(t *testing.T) {
	cfg := newTestConfig(t)
	c, err := NewController(cfg, []Logger{NewTerminalLogger()})
	if err != nil {
		t.Fatalf("failed to create controller: %s", err)
	}
	b := make([]byte, cfg.Geometry.BlockSize)
	if cerr := c.ReadBlock(0, b); cerr != core.ErrDiskDead {
		t.Errorf("read: got %s, want %s", cerr, core.ErrDiskDead)
	}
	if cerr := c.WriteBlock(0, b); cerr != core.ErrDiskDead {
		t.Errorf("write: got %s, want %s", cerr, core.ErrDiskDead)
	}
	if cerr := c.ReadParityBlock(0, b); cerr != core.ErrDiskDead {
		t.Errorf("read parity: got %s, want %s", cerr, core.ErrDiskDead)
	}
	if cerr := c.VerifyStripe(0); cerr != core.ErrDiskDead {
		t.Errorf("verify: got %s, want %s", cerr, core.ErrDiskDead)
	}
}

func TestInitRollback(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.WorkerBin = "/nonexistent/raiddisk"
	c, err := NewController(cfg, []Logger{NewTerminalLogger()})
	if err != nil {
		t.Fatalf("failed to create controller: %s", err)
	}
	if cerr := c.InitializeAll(); cerr != core.ErrSpawn {
		t.Fatalf("got %s, want %s", cerr, core.ErrSpawn)
	}
	// No partial array is left behind.
	b := make([]byte, cfg.Geometry.BlockSize)
	if cerr := c.ReadBlock(0, b); cerr != core.ErrDiskDead {
		t.Errorf("got %s, want %s", cerr, core.ErrDiskDead)
	}
}

func TestDoubleInit(t *testing.T) {
	c := newTestArray(t)
	if cerr := c.InitializeAll(); cerr != core.ErrSpawn {
		t.Errorf("second init: got %s, want %s", cerr, core.ErrSpawn)
	}
}

func TestFailStopAndRestore(t *testing.T) {
	c := newTestArray(t)
	mustWrite(t, c, 0, "AAAA")
	mustWrite(t, c, 1, "BBBB")
	mustWrite(t, c, 2, "CCCC")

	c.SimulateFailure(1)

	// Block 1 lives on the dead disk; its neighbors are unaffected.
	b := make([]byte, c.Geometry().BlockSize)
	if cerr := c.ReadBlock(1, b); cerr != core.ErrDiskDead {
		t.Fatalf("read from dead disk: got %s, want %s", cerr, core.ErrDiskDead)
	}
	mustRead(t, c, 0, "AAAA")
	mustRead(t, c, 2, "CCCC")

	// A write to the same stripe needs the dead disk for the parity
	// recompute, so it fails too.
	if cerr := c.WriteBlock(0, []byte("XXXX")); cerr != core.ErrDiskDead {
		t.Fatalf("write with dead stripe-mate: got %s, want %s", cerr, core.ErrDiskDead)
	}

	c.Restore(1)

	// The restored disk starts over from zero. Nothing reconstructs its old
	// content, so stripe 0 no longer matches its parity.
	mustRead(t, c, 1, "\x00\x00\x00\x00")
	mustRead(t, c, 2, "CCCC")
	if cerr := c.VerifyStripe(0); cerr != core.ErrCorruptParity {
		t.Fatalf("got %s, want %s", cerr, core.ErrCorruptParity)
	}

	// The next write to the stripe recomputes parity and heals it.
	mustWrite(t, c, 1, "EEEE")
	if cerr := c.VerifyStripe(0); cerr != core.NoError {
		t.Fatalf("stripe should be consistent again: %s", cerr)
	}

	found := false
	for _, line := range c.SlotStates() {
		if strings.HasPrefix(line, "d1") && strings.Contains(line, "restarts=1") {
			found = true
		}
	}
	if !found {
		t.Errorf("slot d1 should report one restart: %v", c.SlotStates())
	}
}

func TestParityDiskFailure(t *testing.T) {
	c := newTestArray(t)
	mustWrite(t, c, 0, "AAAA")

	c.SimulateFailure(c.Geometry().ParitySlot())

	b := make([]byte, c.Geometry().BlockSize)
	if cerr := c.ReadParityBlock(0, b); cerr != core.ErrDiskDead {
		t.Fatalf("got %s, want %s", cerr, core.ErrDiskDead)
	}
	// Data reads don't touch parity and keep working.
	mustRead(t, c, 0, "AAAA")
	// Writes do, for the parity update.
	if cerr := c.WriteBlock(1, []byte("BBBB")); cerr != core.ErrDiskDead {
		t.Fatalf("got %s, want %s", cerr, core.ErrDiskDead)
	}

	c.Restore(c.Geometry().ParitySlot())
	mustWrite(t, c, 1, "BBBB")
	if cerr := c.VerifyStripe(0); cerr != core.NoError {
		t.Fatalf("stripe should be consistent after parity restore: %s", cerr)
	}
}

func TestShutdownCheckpoints(t *testing.T) {
	cfg := newTestConfig(t)
	c, err := NewController(cfg, []Logger{NewTerminalLogger()})
	if err != nil {
		t.Fatalf("failed to create controller: %s", err)
	}
	if cerr := c.InitializeAll(); cerr != core.NoError {
		t.Fatalf("failed to initialize array: %s", cerr)
	}

	for block, data := range []string{"AAAA", "BBBB", "CCCC", "DDDD"} {
		mustWrite(t, c, block, data)
	}
	c.ShutdownAndWait()

	// Each checkpoint is the slot's raw 16 byte disk image. Block 3 wrapped
	// around to disk 0 stripe 1; the parity disk holds the stripe XORs.
	zeros := strings.Repeat("\x00", 8)
	want := []string{
		"AAAADDDD" + zeros,
		"BBBB" + zeros + "\x00\x00\x00\x00",
		"CCCC" + zeros + "\x00\x00\x00\x00",
		"@@@@DDDD" + zeros,
	}
	for slot := 0; slot < cfg.Geometry.TotalSlots(); slot++ {
		data, err := ioutil.ReadFile(disk.CheckpointPath(cfg.CheckpointDir, slot))
		if err != nil {
			t.Fatalf("failed to read checkpoint for slot %d: %s", slot, err)
		}
		if !bytes.Equal(data, []byte(want[slot])) {
			t.Errorf("slot %d checkpoint is %q, want %q", slot, data, want[slot])
		}
	}

	// The array is gone; operations fail cleanly instead of hanging.
	b := make([]byte, cfg.Geometry.BlockSize)
	if cerr := c.ReadBlock(0, b); cerr != core.ErrDiskDead {
		t.Errorf("got %s, want %s", cerr, core.ErrDiskDead)
	}
}

// TestFailureService drives disk_kill and disk_restore over HTTP the way an
// external test driver would. The failure registry is process-global, so this
// is the only test that registers handlers.
func TestFailureService(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.UseFailure = true
	c, err := NewController(cfg, []Logger{NewTerminalLogger()})
	if err != nil {
		t.Fatalf("failed to create controller: %s", err)
	}
	if cerr := c.InitializeAll(); cerr != core.NoError {
		t.Fatalf("failed to initialize array: %s", cerr)
	}
	t.Cleanup(c.ShutdownAndWait)

	mux := http.NewServeMux()
	failures.InitWithPathAndMux(mux, failures.DefaultFailureServicePath)
	srv := httptest.NewServer(mux)
	defer srv.Close()
	url := srv.URL + failures.DefaultFailureServicePath

	post := func(body string) *http.Response {
		resp, err := http.Post(url, "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("POST %s failed: %s", body, err)
		}
		resp.Body.Close()
		return resp
	}

	mustWrite(t, c, 1, "BBBB")

	if resp := post(`{"disk_kill": 1}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("disk_kill: status %d", resp.StatusCode)
	}
	b := make([]byte, cfg.Geometry.BlockSize)
	if cerr := c.ReadBlock(1, b); cerr != core.ErrDiskDead {
		t.Fatalf("got %s, want %s", cerr, core.ErrDiskDead)
	}

	if resp := post(`{"disk_restore": 1}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("disk_restore: status %d", resp.StatusCode)
	}
	mustRead(t, c, 1, "\x00\x00\x00\x00")

	// Out-of-range slots and unregistered keys are rejected.
	if resp := post(`{"disk_kill": 99}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad slot: status %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if resp := post(`{"no_such_failure": 1}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad key: status %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}
