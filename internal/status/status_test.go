// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package status

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/xstream/internal/downloader"
	"github.com/ManuGH/xstream/internal/metrics"
)

type staticProgress []downloader.Snapshot

func (s staticProgress) Progress() []downloader.Snapshot { return s }

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url) //nolint:noctx
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestRouter_Healthz(t *testing.T) {
	srv := httptest.NewServer(NewRouter(nil, Info{Version: "v1.2.3", JobID: "job-1", Started: time.Now()}, RateLimit{}))
	defer srv.Close()

	resp, body := get(t, srv.URL+"/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got HealthResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "healthy", got.Status)
	assert.Equal(t, "v1.2.3", got.Version)
	assert.Equal(t, "job-1", got.JobID)
}

func TestRouter_Progress(t *testing.T) {
	want := staticProgress{
		{SKey: "a1", Done: 1, Total: 4, Bytes: 100, TotalBytes: 400},
		{SKey: "v1", Done: 2, Total: 2, Bytes: 900, TotalBytes: 900, Speed: 12.5},
	}
	srv := httptest.NewServer(NewRouter(want, Info{JobID: "job-2"}, RateLimit{}))
	defer srv.Close()

	resp, body := get(t, srv.URL+"/progress")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got ProgressResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "job-2", got.JobID)
	if diff := cmp.Diff([]downloader.Snapshot(want), got.Streams); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}
}

func TestRouter_ProgressEmptyIsArray(t *testing.T) {
	srv := httptest.NewServer(NewRouter(nil, Info{}, RateLimit{}))
	defer srv.Close()

	_, body := get(t, srv.URL+"/progress")
	assert.Contains(t, string(body), `"streams":[]`)
}

func TestRouter_Metrics(t *testing.T) {
	metrics.IncLiveRefresh("ok")
	srv := httptest.NewServer(NewRouter(nil, Info{}, RateLimit{}))
	defer srv.Close()

	resp, body := get(t, srv.URL+"/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "xstream_live_refresh_total")
}

func TestRouter_RateLimited(t *testing.T) {
	srv := httptest.NewServer(NewRouter(nil, Info{}, RateLimit{Requests: 2, Window: time.Minute}))
	defer srv.Close()

	for i := 0; i < 2; i++ {
		resp, _ := get(t, srv.URL+"/healthz")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, body := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
	assert.Contains(t, string(body), "rate_limit_exceeded")
}

func TestStartShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	board := downloader.NewBoard()
	s, err := Start(context.Background(), "127.0.0.1:0", NewRouter(board, Info{}, DefaultRateLimit))
	require.NoError(t, err)

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + s.Addr() + "/progress")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Shutdown(context.Background()))
}
