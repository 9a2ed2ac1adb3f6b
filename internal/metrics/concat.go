// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConcatDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "xstream_concat_duration_seconds",
		Help:    "Time taken to concatenate the segments of one stream",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"strategy", "result"})

	DecryptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xstream_decrypt_total",
		Help: "Total number of external decrypt runs by result",
	}, []string{"result"})
)

// ObserveConcat records one concatenation.
func ObserveConcat(strategy string, success bool, d time.Duration) {
	ConcatDuration.WithLabelValues(strategy, result(success)).Observe(d.Seconds())
}

// IncDecrypt records one external decrypt run.
func IncDecrypt(success bool) {
	DecryptTotal.WithLabelValues(result(success)).Inc()
}
