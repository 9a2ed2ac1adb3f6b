// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package live records live streams by reloading their manifest and fetching
// segments as they are published. Concatenation runs once when recording
// stops.
package live

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/xstream/internal/config"
	"github.com/ManuGH/xstream/internal/downloader"
	"github.com/ManuGH/xstream/internal/log"
	"github.com/ManuGH/xstream/internal/manifest"
	"github.com/ManuGH/xstream/internal/manifest/dash"
	"github.com/ManuGH/xstream/internal/metrics"
)

// DefaultRefresh is used when neither the options nor the manifest name a
// reload period.
const DefaultRefresh = 3 * time.Second

// Source reloads a manifest. *extractor.Extractor satisfies it.
type Source interface {
	FetchMetadata(ctx context.Context, uri string) ([]*manifest.Stream, error)
}

// Options tune a Recorder.
type Options struct {
	// Duration stops a stream once this much media has been recorded.
	// Zero records until cancelled or until the manifest ends.
	Duration time.Duration
	// Refresh fixes the reload period. Zero follows the manifest.
	Refresh        time.Duration
	CompareFullURL bool
	// Force keeps reloading streams whose manifest is not marked live, so
	// only cancellation or Duration ends the recording.
	Force bool
}

// OptionsFromConfig maps the application configuration.
func OptionsFromConfig(cfg config.AppConfig) Options {
	return Options{
		Duration:       cfg.Live.LiveDuration(),
		Refresh:        cfg.Live.RefreshInterval(),
		CompareFullURL: cfg.Download.CompareFullURL,
	}
}

// Recorder drives downloader sessions across manifest reloads.
type Recorder struct {
	source Source
	dl     *downloader.Downloader
	opts   Options
	now    func() time.Time
}

// New returns a Recorder.
func New(source Source, dl *downloader.Downloader, opts Options) *Recorder {
	return &Recorder{source: source, dl: dl, opts: opts, now: time.Now}
}

type track struct {
	st       *manifest.Stream
	sess     *downloader.Session
	pending  []*manifest.Segment
	recorded time.Duration
	started  time.Time
	fetchErr error
	done     bool
}

// Record fetches streams until ctx is cancelled, every stream reached the
// duration limit or the manifest is no longer live. Cancellation is the
// normal way to stop an open ended recording and still concatenates what was
// recorded; the returned error is reserved for setup failures.
func (r *Recorder) Record(ctx context.Context, uri string, streams []*manifest.Stream) (downloader.Report, error) {
	jobID := log.JobIDFromContext(ctx)
	if jobID == "" {
		jobID = uuid.NewString()
		ctx = log.ContextWithJobID(ctx, jobID)
	}
	logger := log.WithComponentFromContext(ctx, "live")
	report := downloader.Report{JobID: jobID, Started: r.now()}

	var tracks []*track
	for _, st := range streams {
		sess, err := r.dl.Open(ctx, st)
		if err != nil {
			report.Streams = append(report.Streams, downloader.StreamResult{
				SKey: st.SKey, Name: st.Name, Type: st.Type, State: downloader.StateFailed, Err: err,
			})
			logger.Error().Err(err).Str(log.FieldStreamKey, st.SKey).Msg("cannot record stream")
			continue
		}
		tracks = append(tracks, &track{st: st, sess: sess, pending: st.Segments, started: r.now()})
	}
	if len(tracks) == 0 {
		report.Finished = r.now()
		return report, nil
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	wake, watchDone, err := watchLocal(watchCtx, uri, logger)
	if err != nil {
		logger.Warn().Err(err).Str(log.FieldURL, uri).Msg("file watch unavailable, polling instead")
	}
	defer func() {
		stopWatch()
		if watchDone != nil {
			<-watchDone
		}
	}()

	logger.Info().
		Str(log.FieldEvent, "live.record_start").
		Int("streams", len(tracks)).
		Dur("limit", r.opts.Duration).
		Msg("recording live streams")

	for {
		r.fetchAll(ctx, tracks, logger)
		if ctx.Err() != nil || allDone(tracks) {
			break
		}

		wait := r.interval(tracks)
		if wake != nil {
			wait = 0
		}
		if err := sleep(ctx, wait, wake); err != nil {
			break
		}

		retryIn := r.refresh(ctx, uri, tracks, logger)
		for retryIn > 0 && ctx.Err() == nil {
			if err := sleep(ctx, retryIn, nil); err != nil {
				break
			}
			retryIn = r.refresh(ctx, uri, tracks, logger)
		}
	}

	// The recording ends here regardless of why; concat must not observe
	// the cancellation that stopped it.
	finishCtx := context.WithoutCancel(ctx)
	for _, t := range tracks {
		res := t.sess.Finish(finishCtx, t.fetchErr, true)
		res.Duration = r.now().Sub(t.started)
		t.sess.Close()
		report.Streams = append(report.Streams, res)
	}
	report.Finished = r.now()

	logger.Info().
		Str(log.FieldEvent, "live.record_done").
		Int("failed", report.Failed()).
		Int64(log.FieldBytes, report.Bytes()).
		Msg("live recording finished")
	return report, nil
}

// fetchAll downloads the pending segments of every active stream in
// parallel and applies the stop conditions.
func (r *Recorder) fetchAll(ctx context.Context, tracks []*track, logger zerolog.Logger) {
	// Streams are fetched one after another within a cycle.
	for _, t := range tracks {
		if ctx.Err() != nil {
			return
		}
		if t.done || len(t.pending) == 0 {
			continue
		}
		r.fetchTrack(ctx, t, logger)
	}

	for _, t := range tracks {
		if t.done {
			continue
		}
		switch {
		case r.opts.Duration > 0 && t.recorded >= r.opts.Duration:
			t.done = true
			logger.Info().
				Str(log.FieldEvent, "live.limit_reached").
				Str(log.FieldStreamKey, t.st.SKey).
				Dur("recorded", t.recorded).
				Msg("recording limit reached")
		case !r.opts.Force && !t.st.IsLive && len(t.pending) == 0:
			t.done = true
			logger.Info().
				Str(log.FieldEvent, "live.ended").
				Str(log.FieldStreamKey, t.st.SKey).
				Msg("manifest no longer live")
		}
	}
}

func (r *Recorder) fetchTrack(ctx context.Context, t *track, logger zerolog.Logger) {
	batch := t.pending
	err := t.sess.Fetch(ctx, batch)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return
	case errors.Is(err, downloader.ErrStreamFatal):
		t.fetchErr, t.done = err, true
		logger.Error().Err(err).Str(log.FieldStreamKey, t.st.SKey).Msg("stream aborted")
	default:
		// missing segments stay missing; the relaxed concat accepts gaps
		t.fetchErr = err
		logger.Warn().Err(err).Str(log.FieldStreamKey, t.st.SKey).Msg("live segments incomplete")
	}
	t.pending = nil
	for _, seg := range batch {
		if !seg.IsInit() && !seg.SkipConcat {
			t.recorded += time.Duration(seg.Duration * float64(time.Second))
		}
	}
}

// refresh reloads the manifest and queues new segments. It returns a
// positive wait when the manifest announced that nothing is published yet.
func (r *Recorder) refresh(ctx context.Context, uri string, tracks []*track, logger zerolog.Logger) time.Duration {
	next, err := r.source.FetchMetadata(ctx, uri)
	var retryIn time.Duration
	var notYet *dash.NotYetAvailableError
	switch {
	case errors.As(err, &notYet):
		metrics.IncLiveRefresh("not_yet_available")
		retryIn = notYet.Wait
		logger.Debug().Err(err).Msg("live manifest not yet available")
	case err != nil:
		metrics.IncLiveRefresh("error")
		if ctx.Err() == nil {
			logger.Warn().Err(err).Str(log.FieldURL, uri).Msg("live manifest refresh failed")
		}
		return 0
	default:
		metrics.IncLiveRefresh("ok")
	}

	bySKey := make(map[string]*manifest.Stream, len(next))
	for _, st := range next {
		bySKey[st.SKey] = st
	}
	for _, t := range tracks {
		if t.done {
			continue
		}
		n, ok := bySKey[t.st.SKey]
		if !ok {
			logger.Debug().Str(log.FieldStreamKey, t.st.SKey).Msg("stream absent from refreshed manifest")
			continue
		}
		known := make(map[*manifest.Segment]struct{}, len(t.st.Segments))
		for _, seg := range t.st.Segments {
			known[seg] = struct{}{}
		}
		t.st.Update(n)
		if t.st.LiveSegmentsExtend(n, r.opts.CompareFullURL) == 0 {
			continue
		}
		var added []*manifest.Segment
		for _, seg := range t.st.Segments {
			if _, ok := known[seg]; !ok {
				added = append(added, seg)
			}
		}
		t.sess.Extend(added)
		t.pending = append(t.pending, added...)
		metrics.AddLiveSegments(len(added))
		logger.Debug().
			Str(log.FieldStreamKey, t.st.SKey).
			Int("new_segments", len(added)).
			Msg("live manifest refreshed")
	}
	return retryIn
}

// interval is the reload period: the fixed option, else the shortest period
// a manifest suggests.
func (r *Recorder) interval(tracks []*track) time.Duration {
	if r.opts.Refresh > 0 {
		return r.opts.Refresh
	}
	var best time.Duration
	for _, t := range tracks {
		if t.done || t.st.RefreshInterval <= 0 {
			continue
		}
		if best == 0 || t.st.RefreshInterval < best {
			best = t.st.RefreshInterval
		}
	}
	if best == 0 {
		return DefaultRefresh
	}
	return best
}

func allDone(tracks []*track) bool {
	for _, t := range tracks {
		if !t.done {
			return false
		}
	}
	return true
}

// sleep waits for d, a wake-up or cancellation. d of zero waits for wake only.
func sleep(ctx context.Context, d time.Duration, wake <-chan struct{}) error {
	var timeout <-chan time.Time
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
	case <-wake:
	}
	return nil
}
