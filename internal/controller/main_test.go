// Copyright (c) 2018 Western Digital Corporation or its affiliates.  All rights reserved.
// SPDX-License-Identifier: MIT

package controller

import (
	"os"
	"testing"

	"github.com/westerndigitalcorporation/raidsim/internal/disk"
	test "github.com/westerndigitalcorporation/raidsim/pkg/testutil"
)

// The tests here spawn real worker processes by re-executing this test binary
// with the worker marker set in the environment. In that mode we run the disk
// worker entry point instead of the tests.
func TestMain(m *testing.M) {
	if os.Getenv(workerEnv) == "1" {
		os.Exit(disk.Main(os.Args[1:]))
	}
	test.TestMain(m)
}
