// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package downloader

import (
	"context"
	"errors"
	"net/http"
)

// Outcome is the result of one segment fetch attempt.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeResumed   Outcome = "resumed"
	OutcomeMissing   Outcome = "missing"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeRetry     Outcome = "retry"
	OutcomeFatal     Outcome = "fatal"
	OutcomeCancelled Outcome = "cancelled"
)

// DefaultRetryStatus are the statuses that schedule another pass.
var DefaultRetryStatus = []int{
	http.StatusRequestTimeout,
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// classifyStatus maps a response status to an outcome. OutcomeMissing means
// the 403/404 budget applies.
func classifyStatus(code int, retry map[int]bool) Outcome {
	switch {
	case code == http.StatusOK || code == http.StatusPartialContent:
		return OutcomeOK
	case code == http.StatusForbidden || code == http.StatusNotFound:
		return OutcomeMissing
	case code == http.StatusMethodNotAllowed:
		return OutcomeFatal
	case retry[code]:
		return OutcomeRetry
	}
	// unlisted statuses are bounded by the pass budget
	return OutcomeRetry
}

// classifyErr maps a transport error. Cancellation of the caller's context is
// never retried.
func classifyErr(ctx context.Context, err error) Outcome {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return OutcomeCancelled
	}
	return OutcomeRetry
}

func retrySet(codes []int) map[int]bool {
	if len(codes) == 0 {
		codes = DefaultRetryStatus
	}
	m := make(map[int]bool, len(codes))
	for _, c := range codes {
		m[c] = true
	}
	return m
}
