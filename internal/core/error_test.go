// Copyright (c) 2018 Western Digital Corporation or its affiliates.  All rights reserved.
// SPDX-License-Identifier: MIT

package core

import (
	"fmt"
	"io"
	"testing"
)

func TestNoErrorIsNil(t *testing.T) {
	if NoError.Error() != nil {
		t.Errorf("NoError should convert to a nil go error")
	}
}

func TestErrorRoundTrip(t *testing.T) {
	for _, e := range []Error{ErrInvalidAddress, ErrDiskDead, ErrShortIO} {
		g := e.Error()
		if g == nil {
			t.Fatalf("%s should not convert to nil", e)
		}
		if !e.Is(g) {
			t.Errorf("Is should recognize %s", e)
		}
		back, ok := SimError(g)
		if !ok || back != e {
			t.Errorf("SimError(%v) = (%v, %v), want (%v, true)", g, back, ok, e)
		}
	}
}

func TestIsRejectsForeignErrors(t *testing.T) {
	if ErrIO.Is(fmt.Errorf("some other error")) {
		t.Errorf("Is should not match a foreign error")
	}
	if _, ok := SimError(fmt.Errorf("some other error")); ok {
		t.Errorf("SimError should not decode a foreign error")
	}
}

func TestFromIOError(t *testing.T) {
	if e := FromIOError(nil); e != NoError {
		t.Errorf("nil should map to NoError, got %s", e)
	}
	if e := FromIOError(io.EOF); e != ErrShortIO {
		t.Errorf("EOF should map to ErrShortIO, got %s", e)
	}
	if e := FromIOError(io.ErrUnexpectedEOF); e != ErrShortIO {
		t.Errorf("unexpected EOF should map to ErrShortIO, got %s", e)
	}
	if e := FromIOError(fmt.Errorf("broken pipe")); e != ErrIO {
		t.Errorf("other errors should map to ErrIO, got %s", e)
	}
}
