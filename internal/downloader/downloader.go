// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package downloader fetches the segments of selected streams with bounded
// concurrency, retries transient failures in whole passes and hands the
// files to a Merger.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/ManuGH/xstream/internal/concat"
	"github.com/ManuGH/xstream/internal/config"
	"github.com/ManuGH/xstream/internal/keys"
	"github.com/ManuGH/xstream/internal/log"
	"github.com/ManuGH/xstream/internal/manifest"
	"github.com/ManuGH/xstream/internal/telemetry"
)

var (
	// ErrStreamFatal is returned when a segment answered 405.
	ErrStreamFatal = errors.New("downloader: fatal response, stream aborted")
	// ErrRetriesExhausted is returned when segments still failed after the last pass.
	ErrRetriesExhausted = errors.New("downloader: retry passes exhausted")
	// ErrConcatPrecondition is returned when segment files are missing at concat time.
	ErrConcatPrecondition = errors.New("downloader: segment files missing, concat refused")
	// ErrLocked is returned when another process holds the stream directory.
	ErrLocked = errors.New("downloader: save directory locked by another process")
	// ErrNoSegments is returned for streams without media segments.
	ErrNoSegments = errors.New("downloader: stream has no segments")
)

// Merger turns the downloaded segment files of one stream into its output.
type Merger interface {
	Merge(ctx context.Context, job concat.Job) (concat.Result, error)
}

// ProgressFunc receives periodic snapshots while a stream downloads.
type ProgressFunc func(Snapshot)

// Options tune a Downloader.
type Options struct {
	SaveDir     string
	Concurrency int
	MaxPasses   int
	RetryStatus []int
	// SpeedUpLeft lifts the concurrency bound once at most this many
	// segments of a pass remain to be started. 0 disables it.
	SpeedUpLeft int
	// RateLimit bounds request starts per second. 0 means unlimited.
	RateLimit      float64
	RawConcat      bool
	DisableConcat  bool
	DeleteSegments bool
	// ContentKeys are handed to the Merger for CENC content.
	ContentKeys      []keys.ContentKey
	ProgressInterval time.Duration
}

// OptionsFromConfig maps the application configuration. Content keys must be
// valid, which config validation has already ensured.
func OptionsFromConfig(cfg config.AppConfig) (Options, error) {
	contentKeys, err := keys.ParseContentKeys(cfg.Keys.ContentKeys)
	if err != nil {
		return Options{}, err
	}
	return Options{
		SaveDir:        cfg.SaveDir,
		Concurrency:    cfg.Network.LimitPerHost,
		MaxPasses:      cfg.Download.MaxPasses,
		RetryStatus:    cfg.Download.RetryStatus,
		SpeedUpLeft:    cfg.Download.SpeedUpLeft,
		RateLimit:      cfg.Download.RateLimit,
		RawConcat:      cfg.Download.RawConcat,
		DisableConcat:  cfg.Download.DisableConcat,
		DeleteSegments: cfg.Download.DeleteSegments,
		ContentKeys:    contentKeys,
	}, nil
}

// Downloader processes streams one at a time.
type Downloader struct {
	client   *http.Client
	merger   Merger
	opts     Options
	retry    map[int]bool
	limiter  *rate.Limiter
	board    *Board
	progress ProgressFunc
	tracer   trace.Tracer
	now      func() time.Time
}

// New returns a Downloader. merger may be nil when concat is disabled.
func New(client *http.Client, merger Merger, opts Options) *Downloader {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.MaxPasses <= 0 {
		opts.MaxPasses = 5
	}
	if opts.ProgressInterval < MinSampleInterval {
		opts.ProgressInterval = time.Second
	}
	if opts.SaveDir == "" {
		opts.SaveDir = "."
	}
	d := &Downloader{
		client: client,
		merger: merger,
		opts:   opts,
		retry:  retrySet(opts.RetryStatus),
		board:  NewBoard(),
		tracer: telemetry.Tracer("xstream/downloader"),
		now:    time.Now,
	}
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return d
}

// OnProgress registers fn for periodic progress snapshots.
func (d *Downloader) OnProgress(fn ProgressFunc) { d.progress = fn }

// Board exposes the progress of running streams.
func (d *Downloader) Board() *Board { return d.board }

// Download processes streams serially. A failed stream does not stop the
// batch; the returned error is only set when ctx is cancelled.
func (d *Downloader) Download(ctx context.Context, streams []*manifest.Stream) (Report, error) {
	jobID := log.JobIDFromContext(ctx)
	if jobID == "" {
		jobID = uuid.NewString()
		ctx = log.ContextWithJobID(ctx, jobID)
	}
	logger := log.WithComponentFromContext(ctx, "downloader")
	report := Report{JobID: jobID, Started: d.now()}

	for _, st := range streams {
		if err := ctx.Err(); err != nil {
			report.Finished = d.now()
			return report, err
		}
		res := d.DownloadStream(ctx, st)
		report.Streams = append(report.Streams, res)
		if res.Err != nil && res.State != StateCancelled {
			logger.Error().Err(res.Err).
				Str(log.FieldEvent, "stream.failed").
				Str(log.FieldStreamKey, st.SKey).
				Msg("stream failed, continuing with next")
		}
	}
	report.Finished = d.now()
	return report, ctx.Err()
}

// DownloadStream runs the full cycle for one stream.
func (d *Downloader) DownloadStream(ctx context.Context, st *manifest.Stream) StreamResult {
	started := d.now()
	sess, err := d.Open(ctx, st)
	if err != nil {
		res := StreamResult{SKey: st.SKey, Name: st.Name, Type: st.Type, State: StateFailed, Err: err}
		res.finish(started, d.now())
		return res
	}
	defer sess.Close()

	fetchErr := sess.Fetch(ctx, st.Segments)
	res := sess.Finish(ctx, fetchErr, false)
	res.finish(started, d.now())
	return res
}

// Open prepares the stream directory, takes its lock and writes the
// checkpoint. The caller must Close the session.
func (d *Downloader) Open(ctx context.Context, st *manifest.Stream) (*Session, error) {
	if st.MediaCount() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSegments, st.SKey)
	}
	return openSession(ctx, d, st)
}

func (d *Downloader) wait(ctx context.Context) error {
	if d.limiter == nil {
		return nil
	}
	return d.limiter.Wait(ctx)
}
