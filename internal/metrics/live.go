// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LiveRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xstream_live_refresh_total",
		Help: "Total number of live manifest refreshes by result",
	}, []string{"result"})

	LiveNewSegmentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xstream_live_new_segments_total",
		Help: "Total number of segments discovered by live refreshes",
	})
)

// IncLiveRefresh records a refresh cycle. reason is "ok", "error" or "not_yet_available".
func IncLiveRefresh(reason string) {
	LiveRefreshTotal.WithLabelValues(reason).Inc()
}

// AddLiveSegments records newly discovered live segments.
func AddLiveSegments(n int) {
	if n > 0 {
		LiveNewSegmentsTotal.Add(float64(n))
	}
}
