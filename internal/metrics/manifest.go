// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ManifestFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xstream_manifest_fetch_total",
		Help: "Total number of manifest fetches by detected kind and result",
	}, []string{"kind", "result"})

	ManifestStreams = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "xstream_manifest_streams",
		Help:    "Number of streams produced per top level manifest",
		Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64},
	})
)

// IncManifestFetch records a manifest fetch.
func IncManifestFetch(kind string, success bool) {
	if kind == "" {
		kind = "unknown"
	}
	ManifestFetchTotal.WithLabelValues(kind, result(success)).Inc()
}

// ObserveManifestStreams records the stream count of a top level manifest.
func ObserveManifestStreams(n int) {
	ManifestStreams.Observe(float64(n))
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
