// Copyright (c) 2018 Western Digital Corporation or its affiliates.  All rights reserved.
// SPDX-License-Identifier: MIT

package controller

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/westerndigitalcorporation/raidsim/internal/core"
)

var (
	// Counts of controller operations by op and result.
	metricOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "raidsim",
		Name:      "controller_ops",
		Help:      "counts of controller operations",
	}, []string{"op", "result"})

	// Latencies of successful controller operations.
	metricOpLatency = promauto.NewSummaryVec(prometheus.SummaryOpts{
		Subsystem: "raidsim",
		Name:      "controller_op_latency",
		Help:      "latency of successful controller operations",
	}, []string{"op"})

	// Number of live disk workers.
	metricWorkersUp = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "raidsim",
		Name:      "workers_up",
		Help:      "number of live disk worker processes",
	})

	// Injected failures and completed restores, per slot.
	metricFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "raidsim",
		Name:      "worker_failures",
		Help:      "simulated disk failures",
	}, []string{"disk"})
	metricRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "raidsim",
		Name:      "worker_restarts",
		Help:      "disk worker restores",
	}, []string{"disk"})
)

// opTimer tracks one controller operation for the metrics above.
type opTimer struct {
	name  string
	start time.Time
}

func startOp(name string) opTimer {
	return opTimer{name: name, start: time.Now()}
}

// done records the result and, for successes, the latency. It returns err
// unchanged so call sites can just wrap their return value.
func (t opTimer) done(err core.Error) core.Error {
	result := "ok"
	if err != core.NoError {
		result = "failed"
	}
	metricOps.WithLabelValues(t.name, result).Inc()
	if err == core.NoError {
		metricOpLatency.WithLabelValues(t.name).Observe(time.Since(t.start).Seconds())
	}
	return err
}

// summaryString renders latency quantiles of an observer for the status
// page.
func summaryString(obs prometheus.Observer) string {
	sum, ok := obs.(prometheus.Summary)
	if !ok {
		return ""
	}
	var value dto.Metric
	if sum.Write(&value) != nil || value.Summary == nil {
		return ""
	}
	out := fmt.Sprintf("count=%d;", *value.Summary.SampleCount)
	for _, q := range value.Summary.Quantile {
		out += fmt.Sprintf(" %gth=%.6f;", *q.Quantile*100, *q.Value)
	}
	return out[:len(out)-1]
}
