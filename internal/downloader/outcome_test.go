// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package downloader

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	retry := retrySet(nil)
	cases := []struct {
		code int
		want Outcome
	}{
		{http.StatusOK, OutcomeOK},
		{http.StatusPartialContent, OutcomeOK},
		{http.StatusNotFound, OutcomeMissing},
		{http.StatusForbidden, OutcomeMissing},
		{http.StatusMethodNotAllowed, OutcomeFatal},
		{http.StatusServiceUnavailable, OutcomeRetry},
		{http.StatusTooManyRequests, OutcomeRetry},
		{http.StatusTeapot, OutcomeRetry},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, classifyStatus(tc.code, retry), "status %d", tc.code)
	}
}

func TestRetrySet_Custom(t *testing.T) {
	set := retrySet([]int{418})
	assert.True(t, set[418])
	assert.False(t, set[503])
	assert.Len(t, retrySet(nil), len(DefaultRetryStatus))
}

func TestClassifyErr(t *testing.T) {
	assert.Equal(t, OutcomeRetry, classifyErr(context.Background(), errors.New("connection reset")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, OutcomeCancelled, classifyErr(ctx, errors.New("whatever")))
	assert.Equal(t, OutcomeCancelled, classifyErr(context.Background(), context.Canceled))
}
