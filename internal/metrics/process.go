// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ProcTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "xstream_process_terminate_total",
	Help: "Total number of termination signals sent to external tools by signal and result",
}, []string{"signal", "result"})

// IncProcTerminate records a termination signal.
func IncProcTerminate(signal, result string) {
	ProcTerminateTotal.WithLabelValues(signal, result).Inc()
}
