// Copyright (c) 2018 Western Digital Corporation or its affiliates.  All rights reserved.
// SPDX-License-Identifier: MIT

package verify

import (
	"testing"

	test "github.com/westerndigitalcorporation/raidsim/pkg/testutil"
)

func TestMain(m *testing.M) {
	test.TestMain(m)
}
