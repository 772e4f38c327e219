// Copyright (c) 2018 Western Digital Corporation or its affiliates.  All rights reserved.
// SPDX-License-Identifier: MIT

// raiddisk is the disk worker process. The controller spawns one per slot
// with a pipe pair on stdin/stdout and drives it with READ/WRITE/EXIT
// commands; it is not meant to be run by hand.
package main

import (
	"os"

	"github.com/westerndigitalcorporation/raidsim/internal/disk"
)

func main() {
	os.Exit(disk.Main(os.Args[1:]))
}
