// Copyright (c) 2018 Western Digital Corporation or its affiliates.  All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/codegangsta/cli"
	shlex "github.com/flynn-archive/go-shlex"
	"github.com/peterh/liner"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	log "github.com/golang/glog"
	"github.com/westerndigitalcorporation/raidsim/internal/controller"
	"github.com/westerndigitalcorporation/raidsim/internal/core"
	"github.com/westerndigitalcorporation/raidsim/internal/verify"
	"github.com/westerndigitalcorporation/raidsim/pkg/failures"
)

var usage = `
	raidsim drives a simulated RAID-4 array in which every disk is a separate
	worker process. It can start an array, read and write logical blocks,
	kill and restore individual disks, and verify the parity invariant both
	on the live array and over the checkpoint files a shutdown leaves behind.

	You can issue one command at a time:

		raidsim [flags...] <subcommand> [<flags>...]

	or start a command line interpreter and issue commands interactively:

		raidsim [flags...] shell

	Flag 'setup' runs commands at startup time, so a typical interactive
	session starts with:

		raidsim --setup start_array shell
	`

// raidCli owns the in-process array (when one has been started) and the
// command line framework used to launch commands against it.
type raidCli struct {
	// the command line framework we'll use to launch commands.
	app *cli.App
	// ctl is non-nil once start_array has run.
	ctl *controller.Controller
	// checkpointDir of the running array; ownDir is set when we created it
	// ourselves and should clean it up at exit.
	checkpointDir string
	ownDir        bool
	// True if we are running a shell.
	inShell bool
}

// newRaidCli creates a new raidCli object.
func newRaidCli() *raidCli {
	b := &raidCli{}
	app := cli.NewApp()
	app.Name = "raidsim"
	app.Usage = usage

	app.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "disks, d",
			Usage: "number of data disks (the array runs one extra parity disk)",
			Value: controller.DefaultConfig.Geometry.NumDisks,
		},
		cli.IntFlag{
			Name:  "block_size",
			Usage: "block size in bytes",
			Value: controller.DefaultConfig.Geometry.BlockSize,
		},
		cli.IntFlag{
			Name:  "disk_size",
			Usage: "per-disk capacity in bytes",
			Value: controller.DefaultConfig.Geometry.DiskSize,
		},
		cli.StringFlag{
			Name:  "dir",
			Usage: "checkpoint directory (default: a fresh temp dir)",
		},
		cli.StringFlag{
			Name:  "worker_bin",
			Usage: "path of the raiddisk binary (default: next to this binary, then PATH)",
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "enable per-operation debug output",
		},
		cli.StringFlag{
			Name:  "debug_addr",
			Usage: "serve /status, /metrics and the failure service on this address",
		},
		cli.StringSliceFlag{
			Name:  "setup",
			Usage: "Commands to run before doing anything else",
		},
	}

	blockflag := cli.IntFlag{
		Name:  "block, b",
		Usage: "global block number",
		Value: -1,
	}
	stripeflag := cli.IntFlag{
		Name:  "stripe, s",
		Usage: "stripe (local block) number",
		Value: -1,
	}

	app.Commands = []cli.Command{
		{
			Name:   "start_array",
			Usage:  "Spawn one worker process per disk slot and initialize the array",
			Action: b.cmdStartArray,
		},
		{
			Name:   "shutdown",
			Usage:  "Send EXIT to every worker (each checkpoints its disk) and reap them",
			Action: b.cmdShutdown,
		},
		{
			Name:  "read",
			Usage: "Read one logical block",
			Flags: []cli.Flag{blockflag},
			Action: b.cmdRead,
		},
		{
			Name:  "write",
			Usage: "Write one logical block and update parity",
			Flags: []cli.Flag{
				blockflag,
				cli.StringFlag{
					Name:  "data",
					Usage: "payload; zero-padded to the block size",
				},
			},
			Action: b.cmdWrite,
		},
		{
			Name:      "fail",
			Usage:     "Kill a disk worker process (fail-stop)",
			ArgsUsage: "<slot>",
			Action:    b.cmdFail,
		},
		{
			Name:      "restore",
			Usage:     "Restart a killed disk worker with a zero-filled disk",
			ArgsUsage: "<slot>",
			Action:    b.cmdRestore,
		},
		{
			Name:   "parity",
			Usage:  "Read one block from the parity disk",
			Flags:  []cli.Flag{stripeflag},
			Action: b.cmdParity,
		},
		{
			Name:   "verify_stripes",
			Usage:  "Check the parity invariant on the live array, stripe by stripe",
			Action: b.cmdVerifyStripes,
		},
		{
			Name:  "verify",
			Usage: "Verify the parity invariant over checkpoint files on disk",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "checkpoints",
					Usage: "directory holding the checkpoint files (default: the running array's dir)",
				},
				cli.StringFlag{
					Name:  "manifest",
					Usage: "bolt database to record the verification report in",
				},
			},
			Action: b.cmdVerify,
		},
		{
			Name:   "ps",
			Usage:  "List worker slots and their process state",
			Action: b.cmdPs,
		},
		{
			Name:   "shell",
			Usage:  "Start a command line interpreter",
			Action: b.cmdShell,
		},
	}
	app.Before = b.beforeSubcommandRun
	b.app = app

	for i := range b.app.Commands {
		b.app.Commands[i].HelpName = b.app.Commands[i].Name
	}
	return b
}

// run starts a command specified by users.
func (b *raidCli) run(args []string) error {
	return b.app.Run(args)
}

// stop frees up all resources used by the raidCli object.
func (b *raidCli) stop() {
	if b.ctl != nil {
		b.ctl.ShutdownAndWait()
		b.ctl = nil
	}
	if b.ownDir && b.checkpointDir != "" {
		os.RemoveAll(b.checkpointDir)
		b.checkpointDir = ""
	}
}

// geometry assembles the array geometry from the global flags.
func geometry(c *cli.Context) core.Geometry {
	return core.Geometry{
		NumDisks:  c.GlobalInt("disks"),
		BlockSize: c.GlobalInt("block_size"),
		DiskSize:  c.GlobalInt("disk_size"),
	}
}

// This function will be called before any subcommand gets started so some
// setup can be done here.
func (b *raidCli) beforeSubcommandRun(c *cli.Context) error {
	commands := c.GlobalStringSlice("setup")
	if len(commands) != 0 {
		log.Infof("Running setup commands...")
		for _, command := range commands {
			log.Infof("Running command %q", command)
			if err := b.runCommand(c, strings.Fields(command)...); err != nil {
				log.Errorf("error: %v", err)
				return err
			}
		}
		log.Infof("Setup is done!")
	}
	return nil
}

// cmdStartArray implements the "start_array" subcommand.
func (b *raidCli) cmdStartArray(c *cli.Context) {
	if b.ctl != nil {
		log.Errorf("There's already an array running, must shut it down first")
		return
	}

	dir := c.GlobalString("dir")
	if dir == "" {
		var err error
		if dir, err = ioutil.TempDir("", "raidsim"); err != nil {
			log.Fatalf("failed to create checkpoint dir: %s", err)
		}
		b.ownDir = true
	}
	b.checkpointDir = dir
	log.Infof("Checkpoint directory of the array: %s", dir)

	debugAddr := c.GlobalString("debug_addr")

	cfg := controller.DefaultConfig
	cfg.Geometry = geometry(c)
	cfg.CheckpointDir = dir
	cfg.WorkerBin = c.GlobalString("worker_bin")
	cfg.Debug = c.GlobalBool("debug")
	cfg.UseFailure = debugAddr != ""

	// Log worker output to a file in the checkpoint dir and to the terminal.
	loggers := []controller.Logger{controller.NewTerminalLogger()}
	logFile := filepath.Join(dir, "workers.log")
	if fLogger, err := controller.NewFileLogger(logFile); err == nil {
		loggers = append(loggers, fLogger)
	} else {
		log.Errorf("failed to create log file %s: %s", logFile, err)
	}

	ctl, err := controller.NewController(&cfg, loggers)
	if err != nil {
		log.Errorf("Couldn't create controller: %s", err)
		return
	}
	if cerr := ctl.InitializeAll(); cerr != core.NoError {
		log.Errorf("Couldn't initialize array: %s", cerr)
		return
	}
	b.ctl = ctl

	if debugAddr != "" {
		failures.Init()
		http.Handle("/metrics", promhttp.Handler())
		http.HandleFunc("/status", ctl.StatusHandler)
		go func() {
			if err := http.ListenAndServe(debugAddr, nil); err != nil {
				log.Errorf("debug server: %s", err)
			}
		}()
		log.Infof("Debug services on http://%s/{status,metrics,__failure__}", debugAddr)
	}
	log.Infof("Array is started!")
}

// cmdShutdown implements the "shutdown" subcommand.
func (b *raidCli) cmdShutdown(c *cli.Context) {
	if b.ctl == nil {
		log.Errorf("No array is running")
		return
	}
	b.ctl.ShutdownAndWait()
	b.ctl = nil
	log.Infof("Checkpoints are in %s", b.checkpointDir)
}

// cmdRead implements the "read" subcommand.
func (b *raidCli) cmdRead(c *cli.Context) {
	if b.ctl == nil {
		log.Errorf("No array is running, use start_array first")
		return
	}
	block := c.Int("block")
	buf := make([]byte, b.ctl.Geometry().BlockSize)
	if cerr := b.ctl.ReadBlock(block, buf); cerr != core.NoError {
		log.Errorf("Couldn't read block %d: %s", block, cerr)
		return
	}
	fmt.Printf("block %d: %q (%x)\n", block, buf, buf)
}

// cmdWrite implements the "write" subcommand.
func (b *raidCli) cmdWrite(c *cli.Context) {
	if b.ctl == nil {
		log.Errorf("No array is running, use start_array first")
		return
	}
	block := c.Int("block")
	blockSize := b.ctl.Geometry().BlockSize
	data := []byte(c.String("data"))
	if len(data) > blockSize {
		log.Errorf("Data is %d bytes, larger than the block size %d", len(data), blockSize)
		return
	}
	buf := make([]byte, blockSize)
	copy(buf, data)
	if cerr := b.ctl.WriteBlock(block, buf); cerr != core.NoError {
		log.Errorf("Couldn't write block %d: %s", block, cerr)
		return
	}
	fmt.Printf("wrote block %d\n", block)
}

// slotArg parses the slot number argument of fail/restore.
func (b *raidCli) slotArg(c *cli.Context) (int, bool) {
	slot, err := strconv.Atoi(c.Args().First())
	if err != nil {
		log.Errorf("error: expected a slot number, got %q", c.Args().First())
		return 0, false
	}
	if slot < 0 || slot >= b.ctl.Geometry().TotalSlots() {
		log.Errorf("error: slot %d out of range, array has slots 0..%d", slot, b.ctl.Geometry().TotalSlots()-1)
		return 0, false
	}
	return slot, true
}

// cmdFail implements the "fail" subcommand.
func (b *raidCli) cmdFail(c *cli.Context) {
	if b.ctl == nil {
		log.Errorf("No array is running, use start_array first")
		return
	}
	if slot, ok := b.slotArg(c); ok {
		b.ctl.SimulateFailure(slot)
	}
}

// cmdRestore implements the "restore" subcommand.
func (b *raidCli) cmdRestore(c *cli.Context) {
	if b.ctl == nil {
		log.Errorf("No array is running, use start_array first")
		return
	}
	if slot, ok := b.slotArg(c); ok {
		b.ctl.Restore(slot)
	}
}

// cmdParity implements the "parity" subcommand.
func (b *raidCli) cmdParity(c *cli.Context) {
	if b.ctl == nil {
		log.Errorf("No array is running, use start_array first")
		return
	}
	stripe := c.Int("stripe")
	buf := make([]byte, b.ctl.Geometry().BlockSize)
	if cerr := b.ctl.ReadParityBlock(stripe, buf); cerr != core.NoError {
		log.Errorf("Couldn't read parity stripe %d: %s", stripe, cerr)
		return
	}
	fmt.Printf("parity %d: %q (%x)\n", stripe, buf, buf)
}

// cmdVerifyStripes implements the "verify_stripes" subcommand.
func (b *raidCli) cmdVerifyStripes(c *cli.Context) {
	if b.ctl == nil {
		log.Errorf("No array is running, use start_array first")
		return
	}
	bad := 0
	for stripe := 0; stripe < b.ctl.Geometry().BlocksPerDisk(); stripe++ {
		if cerr := b.ctl.VerifyStripe(stripe); cerr == core.ErrCorruptParity {
			fmt.Printf("stripe %d: parity mismatch\n", stripe)
			bad++
		} else if cerr != core.NoError {
			log.Errorf("Couldn't verify stripe %d: %s", stripe, cerr)
			return
		}
	}
	fmt.Printf("verified %d stripes, %d bad\n", b.ctl.Geometry().BlocksPerDisk(), bad)
}

// cmdVerify implements the "verify" subcommand. It works on checkpoint files
// and doesn't need a running array.
func (b *raidCli) cmdVerify(c *cli.Context) {
	dir := c.String("checkpoints")
	if dir == "" {
		dir = b.checkpointDir
	}
	if dir == "" {
		log.Errorf("No checkpoint directory; pass --checkpoints or run an array first")
		return
	}
	report, err := verify.Run(dir, geometry(c))
	if err != nil {
		log.Errorf("Verification failed: %s", err)
		return
	}
	if report.OK() {
		fmt.Printf("all %d stripes consistent\n", report.Stripes)
	} else {
		fmt.Printf("%d of %d stripes inconsistent: %v\n", len(report.BadStripes), report.Stripes, report.BadStripes)
	}
	if db := c.String("manifest"); db != "" {
		if err := report.Record(db); err != nil {
			log.Errorf("Couldn't record manifest: %s", err)
			return
		}
		log.Infof("Recorded report in %s", db)
	}
}

// cmdPs implements the "ps" subcommand.
func (b *raidCli) cmdPs(c *cli.Context) {
	if b.ctl == nil {
		log.Errorf("No array is running, use start_array first")
		return
	}
	for _, line := range b.ctl.SlotStates() {
		fmt.Println(line)
	}
}

// cmdShell implements the "shell" subcommand.
func (b *raidCli) cmdShell(c *cli.Context) {
	b.inShell = true
	defer func() { b.inShell = false }()

	// Make cli not exit on errors.
	cli.OsExiter = func(int) {}

	liner := liner.NewLiner()
	liner.SetCtrlCAborts(true)

	// Add commands auto completion.
	liner.SetCompleter(func(line string) (c []string) {
		for _, cmd := range b.app.Commands {
			if strings.HasPrefix(cmd.Name, line) {
				c = append(c, cmd.Name)
			}
		}
		return
	})

	defer liner.Close()

	for {
		input, err := liner.Prompt("(raid) ")
		if err != nil {
			log.Errorf("error: %v", err)
			return
		}

		// 'shlex' splits the input line into tokens using shell-style rules
		// for quoting.
		args, err := shlex.Split(input)
		if err != nil {
			log.Errorf("error: %v", err)
			continue
		}

		// Skip empty line.
		if 0 == len(args) {
			continue
		}

		if args[0] == "exit" {
			return
		}

		if b.runCommand(c, args...) == nil {
			// Adds succeeded command to command history.
			liner.AppendHistory(input)
		}
	}
}

// runCommand runs a command after the cli gets started already (either from
// the command interpreter or setup flags), forwarding the global flags.
func (b *raidCli) runCommand(c *cli.Context, args ...string) error {
	simArgs := []string{"raidsim",
		"--disks", strconv.Itoa(c.GlobalInt("disks")),
		"--block_size", strconv.Itoa(c.GlobalInt("block_size")),
		"--disk_size", strconv.Itoa(c.GlobalInt("disk_size")),
	}
	if dir := c.GlobalString("dir"); dir != "" {
		simArgs = append(simArgs, "--dir", dir)
	}
	if bin := c.GlobalString("worker_bin"); bin != "" {
		simArgs = append(simArgs, "--worker_bin", bin)
	}
	if c.GlobalBool("debug") {
		simArgs = append(simArgs, "--debug")
	}
	if addr := c.GlobalString("debug_addr"); addr != "" {
		simArgs = append(simArgs, "--debug_addr", addr)
	}
	simArgs = append(simArgs, args...)
	return b.run(simArgs)
}
