// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ManuGH/xstream/internal/concat"
	"github.com/ManuGH/xstream/internal/fsutil"
	"github.com/ManuGH/xstream/internal/keys"
	"github.com/ManuGH/xstream/internal/log"
	"github.com/ManuGH/xstream/internal/manifest"
	"github.com/ManuGH/xstream/internal/metrics"
	"github.com/ManuGH/xstream/internal/mp4box"
	"github.com/ManuGH/xstream/internal/telemetry"
)

const lockFile = ".xstream.lock"

// Session is an open stream directory. Live recording keeps one session
// across refresh cycles and fetches new segments into it.
type Session struct {
	d       *Downloader
	st      *manifest.Stream
	dir     string
	lock    *flock.Flock
	tracker *Tracker
	logger  zerolog.Logger
	passes  int

	stopProgress context.CancelFunc
	progressDone chan struct{}
}

func openSession(ctx context.Context, d *Downloader, st *manifest.Stream) (*Session, error) {
	ctx = log.ContextWithStreamKey(ctx, st.SKey)
	logger := log.WithComponentFromContext(ctx, "downloader")
	dir, err := fsutil.ConfineRelPath(d.opts.SaveDir, st.FolderName())
	if err != nil {
		return nil, fmt.Errorf("stream directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create stream directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
	}

	if err := writeCheckpoint(ctx, dir, newCheckpoint(st, dir, d.now())); err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	s := &Session{
		d:       d,
		st:      st,
		dir:     dir,
		lock:    lock,
		tracker: NewTracker(st.SKey, st.TotalCount(), declaredBytes(st.Segments)),
		logger:  logger,
	}
	d.board.put(s.tracker)
	s.startProgress()

	logger.Info().
		Str(log.FieldEvent, "stream.download_start").
		Str(log.FieldPath, dir).
		Int("segments", st.TotalCount()).
		Msg("downloading stream")
	return s, nil
}

// Dir is the directory holding the segment files.
func (s *Session) Dir() string { return s.dir }

// Tracker returns the progress tracker of the stream.
func (s *Session) Tracker() *Tracker { return s.tracker }

// Close stops progress reporting and releases the directory lock.
func (s *Session) Close() {
	if s.stopProgress != nil {
		s.stopProgress()
		<-s.progressDone
	}
	s.d.board.remove(s.st.SKey)
	metrics.ClearThroughput(s.st.SKey)
	if err := s.lock.Unlock(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to release stream lock")
	}
}

func (s *Session) startProgress() {
	if s.d.progress == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.stopProgress = cancel
	s.progressDone = make(chan struct{})
	go func() {
		defer close(s.progressDone)
		ticker := time.NewTicker(s.d.opts.ProgressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.d.progress(s.tracker.Snapshot())
				return
			case <-ticker.C:
				snap := s.tracker.Snapshot()
				metrics.SetThroughput(s.st.SKey, snap.Speed)
				s.d.progress(snap)
			}
		}
	}()
}

// Extend accounts for segments appended to the stream by a live refresh.
func (s *Session) Extend(added []*manifest.Segment) {
	n := 0
	for _, seg := range added {
		if !seg.IsInit() && !seg.SkipConcat {
			n++
		}
	}
	s.tracker.Extend(n, declaredBytes(added))
}

// Fetch downloads segs in passes until none is left to retry. Present files
// are skipped, zero-byte leftovers are removed first.
func (s *Session) Fetch(ctx context.Context, segs []*manifest.Segment) (err error) {
	ctx = log.ContextWithStreamKey(ctx, s.st.SKey)
	ctx, span := s.d.tracer.Start(ctx, "downloader.fetch",
		trace.WithAttributes(telemetry.StreamAttributes(s.st.SKey, string(s.st.Type), s.st.Bandwidth, s.st.IsLive)...))
	defer func() {
		snap := s.tracker.Snapshot()
		span.SetAttributes(telemetry.DownloadAttributes(snap.Done, snap.Skipped, snap.Bytes, s.passes)...)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	pending := s.resume(segs)
	for pass := 1; len(pending) > 0; pass++ {
		if pass > s.d.opts.MaxPasses {
			return fmt.Errorf("%w: %d segments after %d passes", ErrRetriesExhausted, len(pending), s.d.opts.MaxPasses)
		}
		if pass > 1 {
			metrics.IncRetryPass()
			s.logger.Warn().
				Str(log.FieldEvent, "segment.retry").
				Int(log.FieldPass, pass).
				Int("segments", len(pending)).
				Msg("retrying segments")
		}
		s.passes++
		pending, err = s.runPass(ctx, pending)
		if err != nil {
			return err
		}
	}
	return nil
}

// resume filters out skipped segments and files already on disk.
func (s *Session) resume(segs []*manifest.Segment) []*manifest.Segment {
	var pending []*manifest.Segment
	for _, seg := range segs {
		if seg.SkipConcat {
			continue
		}
		path := s.path(seg)
		info, err := os.Stat(path)
		switch {
		case err == nil && info.Size() > 0:
			s.tracker.Resume(info.Size(), declared(seg), !seg.IsInit())
			continue
		case err == nil:
			if rmErr := os.Remove(path); rmErr != nil {
				s.logger.Warn().Err(rmErr).Str(log.FieldPath, path).Msg("failed to remove empty segment")
			}
		}
		pending = append(pending, seg)
	}
	return pending
}

// runPass fetches pending once and returns the segments to retry. A fatal
// outcome cancels every in-flight fetch of the stream.
func (s *Session) runPass(ctx context.Context, pending []*manifest.Segment) ([]*manifest.Segment, error) {
	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(s.d.opts.Concurrency))
	speedUp := s.d.opts.SpeedUpLeft

	var mu sync.Mutex
	var retry []*manifest.Segment

	for i, seg := range pending {
		throttled := speedUp <= 0 || len(pending)-i > speedUp
		if throttled {
			if err := sem.Acquire(gctx, 1); err != nil {
				break
			}
			if err := s.d.wait(gctx); err != nil {
				sem.Release(1)
				break
			}
		}
		g.Go(func() error {
			if throttled {
				defer sem.Release(1)
			}
			out, err := s.fetchSegment(gctx, seg)
			switch out {
			case OutcomeFatal:
				return fmt.Errorf("%w: segment %s: %w", ErrStreamFatal, seg.Name, err)
			case OutcomeCancelled:
				return gctx.Err()
			case OutcomeRetry:
				s.logger.Debug().Err(err).Str(log.FieldSegment, seg.Name).Msg("segment scheduled for retry")
				mu.Lock()
				retry = append(retry, seg)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Slice(retry, func(i, j int) bool { return retry[i].Index < retry[j].Index })
	return retry, nil
}

// Finish concatenates the stream. relaxed accepts missing segment files and
// fetch errors other than cancellation, which is what live recording needs.
func (s *Session) Finish(ctx context.Context, fetchErr error, relaxed bool) StreamResult {
	snap := s.tracker.Snapshot()
	res := StreamResult{
		SKey:       s.st.SKey,
		Name:       s.st.Name,
		Type:       s.st.Type,
		Dir:        s.dir,
		Total:      snap.Total,
		Downloaded: snap.Done,
		Skipped:    snap.Skipped,
		Bytes:      snap.Bytes,
		Passes:     s.passes,
	}
	defer func() {
		metrics.IncStream(string(s.st.Type), string(res.State))
		ev := s.logger.Info()
		if res.Err != nil {
			ev = s.logger.Warn().Err(res.Err)
		}
		ev.Str(log.FieldEvent, "stream.download_done").
			Str("state", string(res.State)).
			Int("downloaded", res.Downloaded).
			Int("skipped", res.Skipped).
			Int64(log.FieldBytes, res.Bytes).
			Msg("stream finished")
	}()

	switch {
	case ctx.Err() != nil || errors.Is(fetchErr, context.Canceled):
		res.State, res.Err = StateCancelled, errors.Join(ctx.Err(), fetchErr)
		return res
	case fetchErr != nil && !relaxed:
		res.State, res.Err = StateFailed, fetchErr
		return res
	}

	if s.d.opts.DisableConcat || s.d.merger == nil {
		res.State = StateDone
		return res
	}

	files, missing := s.concatFiles()
	if missing > 0 && !relaxed {
		res.State = StateFailed
		res.Err = fmt.Errorf("%w: %d of %d", ErrConcatPrecondition, missing, missing+len(files))
		return res
	}
	if len(files) == 0 {
		res.State, res.Err = StateFailed, ErrNoSegments
		return res
	}

	job := concat.Job{
		Dir:    s.dir,
		Files:  files,
		Output: s.outputPath(),
		Raw:    s.d.opts.RawConcat,
		Keys:   s.contentKeys(files),
	}
	merged, err := s.d.merger.Merge(ctx, job)
	if err != nil {
		res.State, res.Err = StateFailed, err
		return res
	}
	res.State = StateDone
	res.Output = merged.Output

	if s.d.opts.DeleteSegments {
		s.deleteSegments(files)
	}
	return res
}

// concatFiles lists the present segment files in manifest order, init first.
func (s *Session) concatFiles() (files []string, missing int) {
	ordered := make([]*manifest.Segment, 0, len(s.st.Segments))
	for _, seg := range s.st.Segments {
		if seg.IsInit() {
			ordered = append([]*manifest.Segment{seg}, ordered...)
			continue
		}
		ordered = append(ordered, seg)
	}
	for _, seg := range ordered {
		if seg.SkipConcat {
			continue
		}
		info, err := os.Stat(s.path(seg))
		if err != nil || info.Size() == 0 {
			missing++
			continue
		}
		files = append(files, seg.Name)
	}
	return files, missing
}

// contentKeys narrows the configured keys to the default KID of the init
// segment, or of the manifest, falling back to every key when none matches.
func (s *Session) contentKeys(files []string) []keys.ContentKey {
	all := s.d.opts.ContentKeys
	if len(all) == 0 {
		return nil
	}
	var kids [][]byte
	if initSeg := s.st.InitSegment(); initSeg != nil && !initSeg.SkipConcat {
		if data, err := os.ReadFile(s.path(initSeg)); err == nil {
			if kid, ok := mp4box.FindDefaultKID(data); ok {
				kids = append(kids, kid)
			}
		}
	}
	if len(kids) == 0 {
		for _, k := range s.st.Keys {
			if len(k.KeyID) > 0 {
				kids = append(kids, k.KeyID)
			}
		}
	}

	var matched []keys.ContentKey
	for _, ck := range all {
		for _, kid := range kids {
			if bytes.Equal(ck.KID, kid) {
				matched = append(matched, ck)
				break
			}
		}
	}
	if len(matched) == 0 {
		s.logger.Debug().Int("files", len(files)).Msg("no content key matches the stream key id, passing all keys")
		return all
	}
	return matched
}

func (s *Session) deleteSegments(files []string) {
	for _, name := range files {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn().Err(err).Str(log.FieldSegment, name).Msg("failed to delete segment")
		}
	}
}

func (s *Session) path(seg *manifest.Segment) string {
	return filepath.Join(s.dir, seg.Name)
}

func (s *Session) outputPath() string {
	ext := s.st.Extension
	if ext == "" {
		ext = s.st.SegmentExtension()
	}
	return filepath.Join(s.d.opts.SaveDir, s.st.FolderName()+ext)
}

func declared(seg *manifest.Segment) int64 {
	if seg.Filesize > 0 {
		return seg.Filesize
	}
	if seg.ByteRange != nil {
		return seg.ByteRange.Length
	}
	return 0
}

func declaredBytes(segs []*manifest.Segment) int64 {
	var n int64
	for _, seg := range segs {
		if !seg.SkipConcat {
			n += declared(seg)
		}
	}
	return n
}
