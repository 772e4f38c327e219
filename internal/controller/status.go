// Copyright (c) 2018 Western Digital Corporation or its affiliates.  All rights reserved.
// SPDX-License-Identifier: MIT

package controller

import (
	"fmt"
	"net/http"
)

// SlotStates returns one human-readable line per slot.
func (c *Controller) SlotStates() []string {
	c.lock.Lock()
	defer c.lock.Unlock()

	var out []string
	for _, s := range c.slots {
		out = append(out, fmt.Sprintf("%-16s restarts=%d", s, s.restarts))
	}
	return out
}

// StatusHandler serves a plain-text summary of the array: geometry, per-slot
// worker state, and operation latencies. Mounted on the debug address next
// to /metrics and the failure service.
func (c *Controller) StatusHandler(w http.ResponseWriter, r *http.Request) {
	c.lock.Lock()
	defer c.lock.Unlock()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "geometry: %s\n", c.geom)
	fmt.Fprintf(w, "checkpoint dir: %s\n\n", c.cfg.CheckpointDir)

	if c.slots == nil {
		fmt.Fprintf(w, "array not initialized\n")
		return
	}
	for _, s := range c.slots {
		fmt.Fprintf(w, "%-16s restarts=%d\n", s, s.restarts)
	}

	fmt.Fprintf(w, "\nop latencies:\n")
	for _, op := range []string{"read_block", "write_block", "read_parity", "verify_stripe"} {
		if s := summaryString(metricOpLatency.WithLabelValues(op)); s != "" {
			fmt.Fprintf(w, "  %-14s %s\n", op, s)
		}
	}
}
