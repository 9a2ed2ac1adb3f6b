// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/xstream/internal/downloader"
	"github.com/ManuGH/xstream/internal/manifest"
)

const mediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:4
#EXTINF:4.0,
seg0.ts
#EXTINF:4.0,
seg1.ts
#EXT-X-ENDLIST
`

func newOrigin(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/index.m3u8", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(mediaPlaylist))
	})
	mux.HandleFunc("/seg0.ts", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("AAAA"))
	})
	mux.HandleFunc("/seg1.ts", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("BBBB"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestListCommand_JSON(t *testing.T) {
	srv := newOrigin(t)

	out, err := execute(t, "list", "--save-dir", t.TempDir(), "--json", srv.URL+"/index.m3u8")
	require.NoError(t, err)

	var views []streamView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 1)
	assert.Equal(t, 0, views[0].Index)
	assert.Equal(t, 2, views[0].Segments)
	assert.InDelta(t, 8.0, views[0].Duration, 0.001)
}

func TestListCommand_Table(t *testing.T) {
	srv := newOrigin(t)

	out, err := execute(t, "list", "--save-dir", t.TempDir(), srv.URL+"/index.m3u8")
	require.NoError(t, err)
	assert.Contains(t, out, "Segments")
	assert.Contains(t, out, "8s")
}

func TestDownloadCommand_RawConcat(t *testing.T) {
	srv := newOrigin(t)
	saveDir := t.TempDir()

	out, err := execute(t, "download", "--save-dir", saveDir, "--raw-concat", "--no-progress", "-s", "0", srv.URL+"/index.m3u8")
	require.NoError(t, err, out)
	assert.Contains(t, out, "done")

	outputs, err := filepath.Glob(filepath.Join(saveDir, "*.ts"))
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	data, err := os.ReadFile(outputs[0])
	require.NoError(t, err)
	assert.Equal(t, "AAAABBBB", string(data))
}

func TestDownloadCommand_BadSelection(t *testing.T) {
	srv := newOrigin(t)

	_, err := execute(t, "download", "--save-dir", t.TempDir(), "--raw-concat", "-s", "5", srv.URL+"/index.m3u8")
	assert.Error(t, err)
}

func TestDownloadCommand_InvalidKeyFailsFast(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { hits++ }))
	defer srv.Close()

	_, err := execute(t, "download", "--save-dir", t.TempDir(), "--key", "nonsense", srv.URL+"/index.m3u8")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ContentKeys")
	assert.Zero(t, hits, "configuration errors surface before any request")
}

func TestDownloadCommand_MissingBinaryFailsBeforeFetch(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(mediaPlaylist))
	}))
	defer srv.Close()
	t.Setenv("PATH", t.TempDir())

	_, err := execute(t, "download", "--save-dir", t.TempDir(), "--binaries-dir", t.TempDir(), "--no-progress", srv.URL+"/index.m3u8")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg")
	assert.Zero(t, hits.Load(), "binaries are resolved before the manifest is fetched")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "xstream v"))
}

func TestParseHeaders(t *testing.T) {
	got, err := parseHeaders([]string{"Referer: https://example.com/a", "X-Token:abc"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Referer": "https://example.com/a", "X-Token": "abc"}, got)

	_, err = parseHeaders([]string{"no-colon"})
	assert.Error(t, err)
	_, err = parseHeaders([]string{": value"})
	assert.Error(t, err)
}

func TestRenderReport(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	out := renderReport(downloader.Report{
		Started:  start,
		Finished: start.Add(3 * time.Second),
		Streams: []downloader.StreamResult{
			{SKey: "v1", State: downloader.StateDone, Total: 2, Downloaded: 2, Bytes: 2048, Output: "/tmp/out.ts"},
			{SKey: "a1", State: downloader.StateFailed, Err: downloader.ErrRetriesExhausted},
		},
	})
	assert.Contains(t, out, "2/2")
	assert.Contains(t, out, "retry passes exhausted")
	assert.Contains(t, out, "2.0 kB in 3s")
}

func TestCriteria(t *testing.T) {
	c := criteria(downloadFlags{types: []string{" Audio ", "subtitle"}, lang: "en"})
	assert.Equal(t, []manifest.StreamType{manifest.TypeAudio, manifest.TypeSubtitle}, c.Types)
	assert.Equal(t, "en", c.Lang)
}
