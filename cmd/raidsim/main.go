// Copyright (c) 2018 Western Digital Corporation or its affiliates.  All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"flag"
	"os"
	"os/signal"

	log "github.com/golang/glog"
)

func main() {
	// We always log to stderr; stdout is for command output.
	flag.Set("logtostderr", "true")
	flag.Parse()

	cli := newRaidCli()

	// Shut the array down cleanly if we're interrupted, so the workers get
	// to checkpoint their disks.
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, os.Interrupt)
	go func() {
		<-sigchan
		log.Infof("Interrupted, shutting the array down...")
		cli.stop()
		log.Flush()
		os.Exit(1)
	}()

	if err := cli.run(os.Args); err != nil {
		log.Errorf("error: %v", err)
	}
	cli.stop()
	log.Flush()
}
