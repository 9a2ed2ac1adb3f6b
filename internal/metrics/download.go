// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics exposes Prometheus collectors for manifest parsing, segment
// downloads, concatenation and live recording.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SegmentsTotal counts segment fetch outcomes.
	SegmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xstream_segments_total",
		Help: "Total number of segment fetch attempts by outcome",
	}, []string{"outcome"})

	// SegmentFetchDuration tracks the wall time of single segment fetches.
	SegmentFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "xstream_segment_fetch_duration_seconds",
		Help:    "Time taken to fetch one segment",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	// DownloadBytesTotal counts payload bytes received.
	DownloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xstream_download_bytes_total",
		Help: "Total number of segment payload bytes received",
	})

	// SegmentsInFlight is the number of segment fetches currently running.
	SegmentsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xstream_segments_in_flight",
		Help: "Number of segment fetches currently running",
	})

	// DownloadThroughput is the most recent sampled throughput.
	DownloadThroughput = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "xstream_download_throughput_bytes_per_second",
		Help: "Sampled download throughput per stream",
	}, []string{"skey"})

	// RetryPassesTotal counts additional fetch passes.
	RetryPassesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xstream_download_retry_passes_total",
		Help: "Total number of retry passes started",
	})

	// StreamsTotal counts finished streams by type and final state.
	StreamsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xstream_streams_total",
		Help: "Total number of processed streams by type and state",
	}, []string{"type", "state"})
)

// ObserveSegment records one segment outcome and its duration.
func ObserveSegment(outcome string, d time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	SegmentsTotal.WithLabelValues(outcome).Inc()
	SegmentFetchDuration.Observe(d.Seconds())
}

// AddDownloadBytes records received payload bytes.
func AddDownloadBytes(n int64) {
	if n > 0 {
		DownloadBytesTotal.Add(float64(n))
	}
}

// SetThroughput records the sampled throughput of a stream.
func SetThroughput(skey string, bytesPerSecond float64) {
	DownloadThroughput.WithLabelValues(skey).Set(bytesPerSecond)
}

// ClearThroughput drops the throughput series of a finished stream.
func ClearThroughput(skey string) {
	DownloadThroughput.DeleteLabelValues(skey)
}

// IncRetryPass records a retry pass.
func IncRetryPass() {
	RetryPassesTotal.Inc()
}

// IncStream records a finished stream.
func IncStream(streamType, state string) {
	if streamType == "" {
		streamType = "unknown"
	}
	StreamsTotal.WithLabelValues(streamType, state).Inc()
}
