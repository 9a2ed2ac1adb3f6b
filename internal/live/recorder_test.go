// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/xstream/internal/concat"
	"github.com/ManuGH/xstream/internal/downloader"
	"github.com/ManuGH/xstream/internal/manifest"
	"github.com/ManuGH/xstream/internal/manifest/dash"
)

type step struct {
	streams []*manifest.Stream
	err     error
}

// scriptedSource replays steps; the last one repeats.
type scriptedSource struct {
	mu     sync.Mutex
	steps  []step
	calls  int
	onCall func(n int)
}

func (s *scriptedSource) FetchMetadata(_ context.Context, _ string) ([]*manifest.Stream, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	st := s.steps[min(n, len(s.steps))-1]
	hook := s.onCall
	s.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return st.streams, st.err
}

func (s *scriptedSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type segServer struct {
	mu   sync.Mutex
	hits map[string]int
}

func (s *segServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	s.mu.Unlock()
	_, _ = w.Write([]byte(r.URL.Path))
}

func (s *segServer) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

type fakeMerger struct {
	mu   sync.Mutex
	jobs []concat.Job
}

func (m *fakeMerger) Merge(_ context.Context, job concat.Job) (concat.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job)
	return concat.Result{Output: job.Output}, nil
}

func liveStream(base string, live bool, names ...string) *manifest.Stream {
	st := &manifest.Stream{Name: "live", SKey: "v1", Type: manifest.TypeVideo, Extension: ".ts", IsLive: live}
	for _, n := range names {
		seg := manifest.NewSegment()
		seg.URL = base + "/" + n
		seg.Duration = 2
		st.AppendSegment(seg)
	}
	st.Renumber()
	return st
}

func setup(t *testing.T) (*httptest.Server, *segServer, *fakeMerger, *downloader.Downloader) {
	t.Helper()
	seg := &segServer{hits: map[string]int{}}
	srv := httptest.NewServer(seg)
	merger := &fakeMerger{}
	dl := downloader.New(srv.Client(), merger, downloader.Options{SaveDir: t.TempDir()})
	return srv, seg, merger, dl
}

func TestRecord_StopsWhenManifestEnds(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv, seg, merger, dl := setup(t)
	defer srv.Close()

	src := &scriptedSource{steps: []step{
		{streams: []*manifest.Stream{liveStream(srv.URL, true, "s0.ts", "s1.ts", "s2.ts")}},
		{streams: []*manifest.Stream{liveStream(srv.URL, false, "s1.ts", "s2.ts", "s3.ts")}},
	}}
	rec := New(src, dl, Options{Refresh: 5 * time.Millisecond})

	report, err := rec.Record(context.Background(), srv.URL+"/live.m3u8",
		[]*manifest.Stream{liveStream(srv.URL, true, "s0.ts", "s1.ts")})
	require.NoError(t, err)
	require.Len(t, report.Streams, 1)
	assert.Equal(t, downloader.StateDone, report.Streams[0].State)
	assert.Equal(t, 2, src.count())

	for _, p := range []string{"/s0.ts", "/s1.ts", "/s2.ts", "/s3.ts"} {
		assert.Equal(t, 1, seg.count(p), p)
	}
	require.Len(t, merger.jobs, 1)
	assert.Equal(t, []string{"0000.ts", "0001.ts", "0002.ts", "0003.ts"}, merger.jobs[0].Files)
}

func TestRecord_DurationLimit(t *testing.T) {
	srv, seg, merger, dl := setup(t)
	defer srv.Close()

	src := &scriptedSource{steps: []step{
		{streams: []*manifest.Stream{liveStream(srv.URL, true, "s0.ts", "s1.ts", "s2.ts")}},
		{streams: []*manifest.Stream{liveStream(srv.URL, true, "s0.ts", "s1.ts", "s2.ts", "s3.ts")}},
	}}
	rec := New(src, dl, Options{Refresh: 5 * time.Millisecond, Duration: 5 * time.Second})

	report, err := rec.Record(context.Background(), srv.URL+"/live.m3u8",
		[]*manifest.Stream{liveStream(srv.URL, true, "s0.ts", "s1.ts")})
	require.NoError(t, err)
	assert.Equal(t, 1, src.count(), "limit is reached after the first refresh")
	assert.Zero(t, seg.count("/s3.ts"))
	require.Len(t, merger.jobs, 1)
	assert.Len(t, merger.jobs[0].Files, 3)
	assert.Equal(t, downloader.StateDone, report.Streams[0].State)
}

func TestRecord_ForceReloadsUnmarkedManifest(t *testing.T) {
	srv, seg, merger, dl := setup(t)
	defer srv.Close()

	src := &scriptedSource{steps: []step{
		{streams: []*manifest.Stream{liveStream(srv.URL, false, "s0.ts", "s1.ts")}},
		{streams: []*manifest.Stream{liveStream(srv.URL, false, "s0.ts", "s1.ts", "s2.ts")}},
	}}
	rec := New(src, dl, Options{Refresh: 5 * time.Millisecond, Duration: 6 * time.Second, Force: true})

	report, err := rec.Record(context.Background(), srv.URL+"/live.m3u8",
		[]*manifest.Stream{liveStream(srv.URL, false, "s0.ts")})
	require.NoError(t, err)
	assert.Equal(t, 2, src.count(), "unmarked manifest is reloaded until the limit")
	assert.Equal(t, 1, seg.count("/s2.ts"))
	require.Len(t, merger.jobs, 1)
	assert.Equal(t, []string{"0000.ts", "0001.ts", "0002.ts"}, merger.jobs[0].Files)
	assert.Equal(t, downloader.StateDone, report.Streams[0].State)
}

func TestRecord_UnmarkedManifestStopsWithoutForce(t *testing.T) {
	srv, _, merger, dl := setup(t)
	defer srv.Close()

	src := &scriptedSource{steps: []step{
		{streams: []*manifest.Stream{liveStream(srv.URL, false, "s0.ts", "s1.ts")}},
	}}
	rec := New(src, dl, Options{Refresh: 5 * time.Millisecond})

	_, err := rec.Record(context.Background(), srv.URL+"/live.m3u8",
		[]*manifest.Stream{liveStream(srv.URL, false, "s0.ts")})
	require.NoError(t, err)
	assert.Zero(t, src.count())
	require.Len(t, merger.jobs, 1)
	assert.Equal(t, []string{"0000.ts"}, merger.jobs[0].Files)
}

func TestRecord_FetchesStreamsOneAtATime(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		order = append(order, filepath.Dir(r.URL.Path))
		mu.Unlock()
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()
	dl := downloader.New(srv.Client(), &fakeMerger{}, downloader.Options{SaveDir: t.TempDir()})

	video := liveStream(srv.URL+"/video", false, "s0.ts", "s1.ts", "s2.ts")
	audio := liveStream(srv.URL+"/audio", false, "s0.ts", "s1.ts", "s2.ts")
	audio.Name, audio.SKey, audio.Type = "live-audio", "a1", manifest.TypeAudio

	_, err := New(&scriptedSource{steps: []step{{}}}, dl, Options{Refresh: 5 * time.Millisecond}).
		Record(context.Background(), srv.URL+"/live.m3u8", []*manifest.Stream{video, audio})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/video", "/video", "/video", "/audio", "/audio", "/audio"}, order)
}

func TestRecord_HonoursNotYetAvailable(t *testing.T) {
	srv, _, merger, dl := setup(t)
	defer srv.Close()

	src := &scriptedSource{steps: []step{
		{
			streams: []*manifest.Stream{liveStream(srv.URL, true, "s0.ts")},
			err:     &dash.NotYetAvailableError{SKey: "v1", Wait: 5 * time.Millisecond},
		},
		{streams: []*manifest.Stream{liveStream(srv.URL, false, "s0.ts", "s1.ts")}},
	}}
	rec := New(src, dl, Options{Refresh: 5 * time.Millisecond})

	_, err := rec.Record(context.Background(), srv.URL+"/live.mpd",
		[]*manifest.Stream{liveStream(srv.URL, true, "s0.ts")})
	require.NoError(t, err)
	assert.Equal(t, 2, src.count())
	require.Len(t, merger.jobs, 1)
	assert.Equal(t, []string{"0000.ts", "0001.ts"}, merger.jobs[0].Files)
}

func TestRecord_CancellationStillConcatenates(t *testing.T) {
	srv, _, merger, dl := setup(t)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &scriptedSource{
		steps: []step{{streams: []*manifest.Stream{liveStream(srv.URL, true, "s0.ts", "s1.ts")}}},
		onCall: func(n int) {
			if n == 2 {
				cancel()
			}
		},
	}
	rec := New(src, dl, Options{Refresh: 5 * time.Millisecond})

	report, err := rec.Record(ctx, srv.URL+"/live.m3u8",
		[]*manifest.Stream{liveStream(srv.URL, true, "s0.ts", "s1.ts")})
	require.NoError(t, err)
	require.Len(t, report.Streams, 1)
	assert.Equal(t, downloader.StateDone, report.Streams[0].State)
	require.Len(t, merger.jobs, 1)
	assert.Equal(t, []string{"0000.ts", "0001.ts"}, merger.jobs[0].Files)
}

func TestRecord_LocalManifestRefreshedOnChange(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv, seg, _, dl := setup(t)
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "live.m3u8")
	require.NoError(t, os.WriteFile(path, []byte("#EXTM3U\n"), 0o644))

	src := &scriptedSource{steps: []step{
		{streams: []*manifest.Stream{liveStream(srv.URL, false, "s0.ts", "s1.ts")}},
	}}
	// a polling recorder would not refresh within the test
	rec := New(src, dl, Options{Refresh: time.Hour})

	type result struct {
		report downloader.Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := rec.Record(context.Background(), path,
			[]*manifest.Stream{liveStream(srv.URL, true, "s0.ts")})
		done <- result{report, err}
	}()

	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("#EXTM3U\n#EXT-X-ENDLIST\n"), 0o644)
		return src.count() > 0
	}, 5*time.Second, 20*time.Millisecond)

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, downloader.StateDone, res.report.Streams[0].State)
	case <-time.After(5 * time.Second):
		t.Fatal("recorder did not finish after the manifest changed")
	}
	assert.Equal(t, 1, seg.count("/s1.ts"))
}

func TestRecord_OpenFailure(t *testing.T) {
	srv, _, merger, dl := setup(t)
	defer srv.Close()

	rec := New(&scriptedSource{steps: []step{{}}}, dl, Options{})
	report, err := rec.Record(context.Background(), srv.URL+"/live.m3u8",
		[]*manifest.Stream{{Name: "empty", SKey: "e", IsLive: true}})
	require.NoError(t, err)
	require.Len(t, report.Streams, 1)
	assert.ErrorIs(t, report.Streams[0].Err, downloader.ErrNoSegments)
	assert.Empty(t, merger.jobs)
}

func TestInterval(t *testing.T) {
	r := &Recorder{}
	slow := &track{st: &manifest.Stream{RefreshInterval: 6 * time.Second}}
	fast := &track{st: &manifest.Stream{RefreshInterval: 2 * time.Second}}
	ended := &track{st: &manifest.Stream{RefreshInterval: time.Second}, done: true}

	assert.Equal(t, 2*time.Second, r.interval([]*track{slow, fast, ended}))
	assert.Equal(t, DefaultRefresh, r.interval([]*track{{st: &manifest.Stream{}}}))

	r.opts.Refresh = 10 * time.Second
	assert.Equal(t, 10*time.Second, r.interval([]*track{fast}))
}
